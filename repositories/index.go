//go:generate go run go.uber.org/mock/mockgen -source=index.go -destination=../mocks/mock_message_index.go -package=mocks
package repositories

import (
	"context"
	"log/slog"

	"github.com/blugelabs/bluge"
)

const textField = "text"

// IMessageIndex is the full-text side of the message log.
type IMessageIndex interface {
	Index(message DiskMessage) error
	Remove(id string) error
	Search(ctx context.Context, query string, limit int) ([]string, error)
}

// MessageIndex keeps a Bluge document per stored message, keyed by message id.
type MessageIndex struct {
	writer *bluge.Writer
	log    *slog.Logger
}

func NewMessageIndex(writer *bluge.Writer, log *slog.Logger) *MessageIndex {
	return &MessageIndex{writer: writer, log: log}
}

// Index inserts or replaces the document of message.
func (i *MessageIndex) Index(message DiskMessage) error {
	doc := bluge.NewDocument(message.ID.String()).
		AddField(bluge.NewTextField(textField, message.Content).StoreValue()).
		AddField(bluge.NewKeywordField("author", message.Author).StoreValue()).
		AddField(bluge.NewDateTimeField("at", message.At))
	return i.writer.Update(doc.ID(), doc)
}

func (i *MessageIndex) Remove(id string) error {
	return i.writer.Delete(bluge.Identifier(id))
}

// Search returns the ids of the best matching messages, best match first.
func (i *MessageIndex) Search(ctx context.Context, query string, limit int) ([]string, error) {
	reader, err := i.writer.Reader()
	if err != nil {
		return nil, err
	}
	defer func() { _ = reader.Close() }()

	request := bluge.NewTopNSearch(limit, bluge.NewMatchQuery(query).SetField(textField))
	dmi, err := reader.Search(ctx, request)
	if err != nil {
		return nil, err
	}

	var ids []string
	match, err := dmi.Next()
	for err == nil && match != nil {
		err = match.VisitStoredFields(func(field string, value []byte) bool {
			if field == "_id" {
				ids = append(ids, string(value))
				return false
			}
			return true
		})
		if err != nil {
			break
		}
		match, err = dmi.Next()
	}
	if err != nil {
		return nil, err
	}
	i.log.Debug("Search done", "query", query, "hits", len(ids))
	return ids, nil
}
