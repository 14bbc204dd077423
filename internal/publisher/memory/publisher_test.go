package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPublisherStoresMessages(t *testing.T) {
	t.Parallel()

	pub := New()
	id1, err := pub.Publish(context.Background(), "archive-results", map[string]string{"website_id": "1"})
	require.NoError(t, err)
	require.Equal(t, "memory-1", id1)
	id2, err := pub.Publish(context.Background(), "archive-runs", "payload")
	require.NoError(t, err)
	require.Equal(t, "memory-2", id2)

	msgs := pub.Messages()
	require.Len(t, msgs, 2)
	require.Equal(t, "archive-results", msgs[0].Topic)
	require.Equal(t, "archive-runs", msgs[1].Topic)
	require.Len(t, pub.Topic("archive-results"), 1)

	msgs[0].Topic = "modified"
	require.Equal(t, "archive-results", pub.Messages()[0].Topic)
}
