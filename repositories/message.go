//go:generate go run go.uber.org/mock/mockgen -source=message.go -destination=../mocks/mock_message_repository.go -package=mocks
package repositories

import (
	"chat-relay/errors"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
)

const (
	messagePrefix = "msg:"
	messageIDKey  = "msgid:"
	// Highest 19-digit timestamp, used as the seek key of the first page.
	newestCursor = "9999999999999999999"
)

type IMessageRepository interface {
	StoreMessage(message DiskMessage) error
	GetMessages(cursor *string, limit int) ([]DiskMessage, *string, error)
	GetMessage(id uuid.UUID) (DiskMessage, error)
	UpdateMessage(id uuid.UUID, content string, at time.Time) (DiskMessage, error)
	DeleteMessage(id uuid.UUID) error
}

type MessageRepository struct {
	db            *badger.DB
	log           *slog.Logger
	limitMessages *int
}

func NewMessageRepository(db *badger.DB, log *slog.Logger, limitMessages *int) MessageRepository {
	return MessageRepository{db: db, log: log, limitMessages: limitMessages}
}

type DiskMessage struct {
	ID        uuid.UUID  `json:"id"`
	AuthorID  string     `json:"authorId"`
	Author    string     `json:"author"`
	Content   string     `json:"content"`
	ClientKey string     `json:"clientKey,omitempty"`
	At        time.Time  `json:"at"`
	EditedAt  *time.Time `json:"editedAt,omitempty"`
}

// messageKey is formatted as "msg:{timestamp_padded}:{uuid}" so that:
//  1. a 19-digit zero padding keeps the lexicographical order chronological.
//  2. the uuid separates two messages stored at the same nanosecond.
func messageKey(message DiskMessage) []byte {
	return []byte(fmt.Sprintf("%s%019d:%s", messagePrefix, message.At.UnixNano(), message.ID))
}

func idKey(id uuid.UUID) []byte {
	return []byte(messageIDKey + id.String())
}

// StoreMessage persists a message along with its id index in one transaction.
func (m MessageRepository) StoreMessage(message DiskMessage) error {
	bytes, err := json.Marshal(message)
	if err != nil {
		return err
	}
	key := messageKey(message)
	return m.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set(key, bytes); err != nil {
			return err
		}
		return txn.Set(idKey(message.ID), key)
	})
}

// GetMessages walks the log from newest to oldest.
// cursor is the key suffix of the last message of the previous page. The
// returned cursor is nil when the log has no older message.
func (m MessageRepository) GetMessages(cursor *string, limit int) ([]DiskMessage, *string, error) {
	if m.limitMessages != nil && (limit <= 0 || limit > *m.limitMessages) {
		limit = *m.limitMessages
	}
	var byteMessages [][]byte
	var lastKey string
	hasMore := false
	err := m.db.View(func(txn *badger.Txn) error {
		prefix := []byte(messagePrefix)
		prefixLen := len(messagePrefix)
		options := badger.DefaultIteratorOptions
		options.Reverse = true
		it := txn.NewIterator(options)
		defer it.Close()

		var seekKey []byte
		switch cursor {
		case nil:
			seekKey = append([]byte(messagePrefix), newestCursor...)
		default:
			seekKey = append([]byte(messagePrefix), *cursor...)
		}

		it.Seek(seekKey)

		if cursor != nil && it.ValidForPrefix(prefix) && string(it.Item().Key()[prefixLen:]) == *cursor {
			it.Next()
		}

		for ; it.ValidForPrefix(prefix); it.Next() {
			if limit > 0 && len(byteMessages) == limit {
				m.log.Debug(fmt.Sprintf("Maximum of %d message reached", limit))
				hasMore = true
				break
			}
			item := it.Item()
			lastKey = string(item.Key()[prefixLen:])
			err := item.Value(func(value []byte) error {
				byteMessages = append(byteMessages, append([]byte(nil), value...))
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	diskMessages := make([]DiskMessage, 0, len(byteMessages))
	for _, b := range byteMessages {
		var message DiskMessage
		if err = json.Unmarshal(b, &message); err != nil {
			return nil, nil, err
		}
		diskMessages = append(diskMessages, message)
	}
	if !hasMore {
		return diskMessages, nil, nil
	}
	return diskMessages, &lastKey, nil
}

func (m MessageRepository) GetMessage(id uuid.UUID) (DiskMessage, error) {
	var message DiskMessage
	err := m.db.View(func(txn *badger.Txn) error {
		_, err := lookup(txn, id, &message)
		return err
	})
	return message, err
}

// UpdateMessage rewrites the content in place. The key, hence the position in
// the log, never changes.
func (m MessageRepository) UpdateMessage(id uuid.UUID, content string, at time.Time) (DiskMessage, error) {
	var message DiskMessage
	err := m.db.Update(func(txn *badger.Txn) error {
		key, err := lookup(txn, id, &message)
		if err != nil {
			return err
		}
		message.Content = content
		message.EditedAt = &at
		bytes, err := json.Marshal(message)
		if err != nil {
			return err
		}
		return txn.Set(key, bytes)
	})
	return message, err
}

func (m MessageRepository) DeleteMessage(id uuid.UUID) error {
	return m.db.Update(func(txn *badger.Txn) error {
		var message DiskMessage
		key, err := lookup(txn, id, &message)
		if err != nil {
			return err
		}
		if err := txn.Delete(key); err != nil {
			return err
		}
		return txn.Delete(idKey(id))
	})
}

// lookup resolves the id index then decodes the message into dst.
func lookup(txn *badger.Txn, id uuid.UUID, dst *DiskMessage) ([]byte, error) {
	item, err := txn.Get(idKey(id))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, errors.ErrMessageNotFound
	}
	if err != nil {
		return nil, err
	}
	key, err := item.ValueCopy(nil)
	if err != nil {
		return nil, err
	}
	item, err = txn.Get(key)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, errors.ErrMessageNotFound
	}
	if err != nil {
		return nil, err
	}
	return key, item.Value(func(val []byte) error {
		return json.Unmarshal(val, dst)
	})
}
