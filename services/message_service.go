package services

import (
	"chat-relay/contract"
	"chat-relay/domain"
	"chat-relay/errors"
	"chat-relay/repositories"
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"
)

var _ contract.MessageStore = (*MessageService)(nil)

// MessageService is the durable side of the dual write.
// It knows nothing about live sessions: a message can be broadcast and never
// stored, or stored and never broadcast.
type MessageService struct {
	log        *slog.Logger
	repository repositories.IMessageRepository
	index      repositories.IMessageIndex
	filter     contract.ContentFilter
	timeout    time.Duration
	now        func() time.Time
}

func NewMessageService(log *slog.Logger, repository repositories.IMessageRepository,
	index repositories.IMessageIndex, timeout time.Duration) *MessageService {
	return &MessageService{log: log, repository: repository, index: index, timeout: timeout, now: time.Now}
}

// WithFilter rewrites text before it is stored, so stored and broadcast
// copies of a message read the same.
func (s *MessageService) WithFilter(filter contract.ContentFilter) *MessageService {
	s.filter = filter
	return s
}

func (s *MessageService) filtered(text string) string {
	if s.filter == nil {
		return text
	}
	return s.filter.Filter(text)
}

// Persist stores message on behalf of author and returns the acknowledged copy.
// The author name always comes from the verified subject.
func (s *MessageService) Persist(ctx context.Context, author domain.Subject, message domain.Message) (domain.Message, error) {
	message = message.StampedAt(s.now()).Normalize()
	if message.Text == "" {
		return domain.Message{}, fmt.Errorf("%w: empty text", errors.ErrInvalidMessage)
	}

	disk := repositories.DiskMessage{
		ID:        uuid.New(),
		AuthorID:  author.ID,
		Author:    author.Name,
		Content:   s.filtered(message.Text),
		ClientKey: message.ClientKey,
		At:        message.CreatedAt,
	}

	err := s.withTimeout(ctx, func() error {
		return s.repository.StoreMessage(disk)
	})
	if err != nil {
		s.log.Warn("Durable write failed", "author", author.ID, "error", err)
		return domain.Message{}, err
	}
	s.reindex(disk)
	return toDomainMessage(disk), nil
}

// List returns one page of history in ascending createdAt order.
// before is the cursor returned by the previous call, nil for the newest page.
func (s *MessageService) List(ctx context.Context, before *string, limit int) ([]domain.Message, *string, error) {
	var page []repositories.DiskMessage
	var cursor *string
	err := s.withTimeout(ctx, func() error {
		var err error
		page, cursor, err = s.repository.GetMessages(before, limit)
		return err
	})
	if err != nil {
		return nil, nil, err
	}
	return lo.Reverse(lo.Map(page, func(m repositories.DiskMessage, _ int) domain.Message {
		return toDomainMessage(m)
	})), cursor, nil
}

// Update edits the text of a message owned by author.
func (s *MessageService) Update(ctx context.Context, author domain.Subject, id, text string) (domain.Message, error) {
	messageID, err := uuid.Parse(id)
	if err != nil {
		return domain.Message{}, errors.ErrMessageNotFound
	}
	text = domain.Message{Text: text}.Normalize().Text
	if text == "" {
		return domain.Message{}, fmt.Errorf("%w: empty text", errors.ErrInvalidMessage)
	}

	var updated repositories.DiskMessage
	err = s.withTimeout(ctx, func() error {
		existing, err := s.repository.GetMessage(messageID)
		if err != nil {
			return err
		}
		if existing.AuthorID != author.ID {
			return errors.ErrForbidden
		}
		updated, err = s.repository.UpdateMessage(messageID, s.filtered(text), s.now().UTC())
		return err
	})
	if err != nil {
		return domain.Message{}, err
	}
	s.reindex(updated)
	return toDomainMessage(updated), nil
}

// Delete removes a message owned by author.
func (s *MessageService) Delete(ctx context.Context, author domain.Subject, id string) error {
	messageID, err := uuid.Parse(id)
	if err != nil {
		return errors.ErrMessageNotFound
	}
	err = s.withTimeout(ctx, func() error {
		existing, err := s.repository.GetMessage(messageID)
		if err != nil {
			return err
		}
		if existing.AuthorID != author.ID {
			return errors.ErrForbidden
		}
		return s.repository.DeleteMessage(messageID)
	})
	if err != nil {
		return err
	}
	if err := s.index.Remove(id); err != nil {
		s.log.Warn("Search index removal failed", "id", id, "error", err)
	}
	return nil
}

// Search resolves full-text hits back to stored messages, best match first.
// Hits whose message vanished in between are skipped.
func (s *MessageService) Search(ctx context.Context, query string, limit int) ([]domain.Message, error) {
	ids, err := s.index.Search(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errors.ErrPersistenceFailure, err)
	}
	res := make([]domain.Message, 0, len(ids))
	for _, id := range ids {
		messageID, err := uuid.Parse(id)
		if err != nil {
			continue
		}
		message, err := s.repository.GetMessage(messageID)
		if errors.Is(err, errors.ErrMessageNotFound) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %v", errors.ErrPersistenceFailure, err)
		}
		res = append(res, toDomainMessage(message))
	}
	return res, nil
}

func (s *MessageService) reindex(message repositories.DiskMessage) {
	if err := s.index.Index(message); err != nil {
		s.log.Warn("Search indexing failed", "id", message.ID, "error", err)
	}
}

// withTimeout runs fn bounded by the service timeout.
// Domain errors go through untouched, anything else is a persistence failure.
// On timeout fn keeps running in the background and its result is discarded.
func (s *MessageService) withTimeout(ctx context.Context, fn func() error) error {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %v", errors.ErrPersistenceFailure, err)
	}

	done := make(chan error, 1)
	go func() { done <- fn() }()

	select {
	case <-ctx.Done():
		return fmt.Errorf("%w: %v", errors.ErrPersistenceFailure, ctx.Err())
	case err := <-done:
		switch {
		case err == nil:
			return nil
		case errors.Is(err, errors.ErrMessageNotFound),
			errors.Is(err, errors.ErrForbidden),
			errors.Is(err, errors.ErrInvalidMessage):
			return err
		default:
			return fmt.Errorf("%w: %v", errors.ErrPersistenceFailure, err)
		}
	}
}

func toDomainMessage(m repositories.DiskMessage) domain.Message {
	return domain.Message{
		ID:        m.ID.String(),
		Text:      m.Content,
		Author:    m.Author,
		CreatedAt: m.At,
		ClientKey: m.ClientKey,
	}
}
