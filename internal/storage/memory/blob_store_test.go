package memory

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBlobStorePutObject(t *testing.T) {
	t.Parallel()

	store := NewBlobStore()
	uri, err := store.PutObject(context.Background(), "42/2024-03-01/index.html", "text/html", strings.NewReader("content"))
	require.NoError(t, err)
	require.Equal(t, "memory://42/2024-03-01/index.html", uri)

	data, ok := store.Object("42/2024-03-01/index.html")
	require.True(t, ok)
	require.Equal(t, "content", string(data))
	require.Equal(t, []string{"42/2024-03-01/index.html"}, store.Keys())
}
