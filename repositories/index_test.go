package repositories

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/blugelabs/bluge"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestMessageIndex_Search(t *testing.T) {
	req := require.New(t)
	blugeWriter, err := bluge.OpenWriter(bluge.DefaultConfig(t.TempDir()))
	req.NoError(err)
	defer blugeWriter.Close()

	index := NewMessageIndex(blugeWriter, slog.Default())
	now := time.Now().UTC()
	pizza := DiskMessage{ID: uuid.New(), Author: "alice", Content: "who wants pizza tonight", At: now}
	sushi := DiskMessage{ID: uuid.New(), Author: "bob", Content: "sushi for me", At: now}
	req.NoError(index.Index(pizza))
	req.NoError(index.Index(sushi))

	ids, err := index.Search(context.Background(), "pizza", 10)
	req.NoError(err)
	req.Equal([]string{pizza.ID.String()}, ids)

	// Re-indexing replaces the document
	pizza.Content = "pasta after all"
	req.NoError(index.Index(pizza))
	ids, err = index.Search(context.Background(), "pizza", 10)
	req.NoError(err)
	req.Empty(ids)

	req.NoError(index.Remove(sushi.ID.String()))
	ids, err = index.Search(context.Background(), "sushi", 10)
	req.NoError(err)
	req.Empty(ids)
}
