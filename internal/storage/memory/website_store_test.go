package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/website-archiver/internal/archive"
)

func TestWebsiteStore(t *testing.T) {
	t.Parallel()

	store := NewWebsiteStore([]archive.Website{
		{ID: "2", URL: "https://b.example.com", IsValid: true},
		{ID: "1", URL: "https://a.example.com", IsValid: true},
		{ID: "2", URL: "https://b2.example.com", IsValid: false},
	})

	sites, err := store.ListWebsites(context.Background())
	require.NoError(t, err)
	require.Equal(t, []archive.Website{
		{ID: "2", URL: "https://b2.example.com", IsValid: false},
		{ID: "1", URL: "https://a.example.com", IsValid: true},
	}, sites)

	require.NoError(t, store.UpdateStatus(context.Background(), "1", false))
	require.Error(t, store.UpdateStatus(context.Background(), "missing", true))
	require.Equal(t, 1, store.Writes())

	sites, err = store.ListWebsites(context.Background())
	require.NoError(t, err)
	require.False(t, sites[1].IsValid)
}

func TestRunStoreNewestFirst(t *testing.T) {
	t.Parallel()

	store := NewRunStore()
	base := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	for i, id := range []string{"a", "b", "c"} {
		require.NoError(t, store.RecordRun(context.Background(), archive.RunSummary{
			RunID:     id,
			StartedAt: base.Add(time.Duration(i) * time.Hour),
		}))
	}

	runs, err := store.ListRuns(context.Background(), 2)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	require.Equal(t, "c", runs[0].RunID)
	require.Equal(t, "b", runs[1].RunID)
}
