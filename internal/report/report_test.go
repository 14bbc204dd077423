package report

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/website-archiver/internal/archive"
)

func TestRenderSummary(t *testing.T) {
	t.Parallel()

	var r archive.Report
	r.RunID = "run-1"
	r.RunDate = "2024-03-01"
	r.Add(archive.JobResult{WebsiteID: "2", URL: "https://gone.example.com", CheckStatus: "dead", State: archive.JobDead, ExitCode: -1})
	r.Add(archive.JobResult{
		WebsiteID:   "1",
		URL:         "https://example.com",
		CheckStatus: "valid",
		State:       archive.JobArchived,
		Destination: "/archives/1/2024-03-01/example.com",
	})
	r.Add(archive.JobResult{
		WebsiteID:   "3",
		URL:         "https://slow.example.com",
		CheckStatus: "failed",
		State:       archive.JobFailed,
		ExitCode:    -1,
		Err:         errors.New(strings.Repeat("x", 100)),
	})

	var buf bytes.Buffer
	Render(&buf, r)
	out := buf.String()

	require.Contains(t, out, "Run run-1 (2024-03-01)")
	require.Contains(t, out, "/archives/1/2024-03-01/example.com")
	require.Contains(t, out, "ARCHIVED")
	require.Contains(t, out, strings.Repeat("x", 57)+"...")
	require.NotContains(t, out, strings.Repeat("x", 61))
	require.Less(t, strings.Index(out, "https://example.com"), strings.Index(out, "https://gone.example.com"))
}

func TestWebsitesAndRuns(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	Websites(&buf, []archive.Website{{ID: "1", URL: "https://example.com", IsValid: true}})
	require.Contains(t, buf.String(), "https://example.com")
	require.Contains(t, buf.String(), "true")

	buf.Reset()
	started := time.Date(2024, 3, 1, 3, 0, 0, 0, time.UTC)
	Runs(&buf, []archive.RunSummary{{
		RunID:      "run-1",
		RunDate:    "2024-03-01",
		StartedAt:  started,
		FinishedAt: started.Add(90 * time.Second),
		Archived:   2,
	}})
	require.Contains(t, buf.String(), "1m30s")
	require.Contains(t, buf.String(), "2024-03-01 03:00:00")
}
