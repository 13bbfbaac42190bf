package client

import (
	"chat-relay/contract"
	"chat-relay/domain"
	"chat-relay/domain/event"
	"chat-relay/errors"
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

type State int

const (
	Loading State = iota
	Live
	Disconnected
)

func (s State) String() string {
	switch s {
	case Loading:
		return "loading"
	case Live:
		return "live"
	case Disconnected:
		return "disconnected"
	default:
		return fmt.Sprintf("unknown(%d)", int(s))
	}
}

type NoticeKind int

const (
	EntryAdded NoticeKind = iota
	EntryUpdated
	StateChanged
	EmitFailed
	PersistFailed
)

// Notice reports a change of the view or a failure the user should see.
type Notice struct {
	Kind  NoticeKind
	Entry Entry
	State State
	Err   error
}

// Reconciler merges history, local sends and broadcasts into one View.
// Every input goes through a single inbox drained by Run, so the three
// producers never race on the view.
type Reconciler struct {
	log            *slog.Logger
	author         string
	store          contract.MessagePersister
	persistTimeout time.Duration
	now            func() time.Time
	newKey         func() string

	inbox   chan input
	notices chan Notice
	done    chan struct{}

	// Owned by the Run goroutine.
	view    *View
	state   State
	cause   error
	emitter contract.Emitter
}

type input interface{ apply(r *Reconciler) }

type historyLoaded struct {
	messages []domain.Message
	emitter  contract.Emitter
	applied  chan struct{}
}

type broadcastReceived struct{ message domain.Message }

type localSend struct {
	text  string
	reply chan sendResult
}

type sendResult struct {
	entry Entry
	err   error
}

type persisted struct {
	localID string
	message domain.Message
}

type disconnected struct{ cause error }

type snapshotRequest struct{ reply chan snapshot }

type snapshot struct {
	entries []Entry
	state   State
}

type ReconcilerOption func(*Reconciler)

// WithClock replaces time.Now for optimistic timestamps.
func WithClock(now func() time.Time) ReconcilerOption {
	return func(r *Reconciler) { r.now = now }
}

func WithDedupTolerance(tolerance time.Duration) ReconcilerOption {
	return func(r *Reconciler) { r.view = NewView(tolerance) }
}

func WithNoticeBuffer(size int) ReconcilerOption {
	return func(r *Reconciler) { r.notices = make(chan Notice, size) }
}

func NewReconciler(log *slog.Logger, author string, store contract.MessagePersister, persistTimeout time.Duration, opts ...ReconcilerOption) *Reconciler {
	r := &Reconciler{
		log:            log,
		author:         author,
		store:          store,
		persistTimeout: persistTimeout,
		now:            time.Now,
		newKey:         func() string { return uuid.NewString() },
		inbox:          make(chan input, 64),
		notices:        make(chan Notice, 256),
		done:           make(chan struct{}),
		view:           NewView(DefaultDedupTolerance),
		state:          Loading,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Notices is closed when Run returns.
func (r *Reconciler) Notices() <-chan Notice {
	return r.notices
}

// Run drains the inbox until ctx is done.
func (r *Reconciler) Run(ctx context.Context) {
	defer close(r.notices)
	defer close(r.done)
	for {
		select {
		case <-ctx.Done():
			return
		case in := <-r.inbox:
			in.apply(r)
		}
	}
}

// LoadHistory merges a history page and moves the client to Live with
// emitter as its realtime channel. It returns once the page is merged.
func (r *Reconciler) LoadHistory(ctx context.Context, messages []domain.Message, emitter contract.Emitter) error {
	applied := make(chan struct{})
	if err := r.submit(ctx, historyLoaded{messages: messages, emitter: emitter, applied: applied}); err != nil {
		return err
	}
	select {
	case <-applied:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-r.done:
		return context.Canceled
	}
}

func (r *Reconciler) OnBroadcastReceived(ctx context.Context, message domain.Message) error {
	return r.submit(ctx, broadcastReceived{message: message})
}

// Disconnect records why the realtime channel is gone. Sends fail with
// cause until the next LoadHistory.
func (r *Reconciler) Disconnect(ctx context.Context, cause error) error {
	return r.submit(ctx, disconnected{cause: cause})
}

// SendLocal shows text immediately and starts the realtime emit and the
// durable write in parallel. It fails without adding an entry when the
// client is not Live.
func (r *Reconciler) SendLocal(ctx context.Context, text string) (Entry, error) {
	reply := make(chan sendResult, 1)
	if err := r.submit(ctx, localSend{text: text, reply: reply}); err != nil {
		return Entry{}, err
	}
	select {
	case res := <-reply:
		return res.entry, res.err
	case <-ctx.Done():
		return Entry{}, ctx.Err()
	case <-r.done:
		return Entry{}, context.Canceled
	}
}

func (r *Reconciler) Snapshot(ctx context.Context) ([]Entry, State, error) {
	reply := make(chan snapshot, 1)
	if err := r.submit(ctx, snapshotRequest{reply: reply}); err != nil {
		return nil, Loading, err
	}
	select {
	case s := <-reply:
		return s.entries, s.state, nil
	case <-ctx.Done():
		return nil, Loading, ctx.Err()
	case <-r.done:
		return nil, Loading, context.Canceled
	}
}

func (r *Reconciler) submit(ctx context.Context, in input) error {
	select {
	case r.inbox <- in:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-r.done:
		return context.Canceled
	}
}

func (h historyLoaded) apply(r *Reconciler) {
	defer close(h.applied)
	for _, message := range h.messages {
		r.merge(message, History, "")
	}
	r.emitter = h.emitter
	r.cause = nil
	r.transition(Live)
}

func (b broadcastReceived) apply(r *Reconciler) {
	r.merge(b.message, Broadcast, "")
}

func (s localSend) apply(r *Reconciler) {
	if r.state != Live || r.emitter == nil {
		s.reply <- sendResult{err: r.notLive()}
		return
	}
	message := domain.Message{
		Text:      s.text,
		Author:    r.author,
		CreatedAt: r.now(),
		ClientKey: r.newKey(),
	}.Normalize()
	localID := message.ClientKey
	entry := r.view.Append(message, Optimistic, localID)
	r.notify(Notice{Kind: EntryAdded, Entry: entry, State: r.state})
	s.reply <- sendResult{entry: entry}

	outgoing := event.OutgoingMessage{
		Text:      message.Text,
		Author:    message.Author,
		CreatedAt: message.CreatedAt,
		ClientKey: message.ClientKey,
	}
	go r.emit(r.emitter, outgoing)
	go r.persist(localID, message)
}

func (p persisted) apply(r *Reconciler) {
	entry, ok := r.view.Acknowledge(p.localID, p.message)
	if !ok {
		return
	}
	r.notify(Notice{Kind: EntryUpdated, Entry: entry, State: r.state})
}

func (d disconnected) apply(r *Reconciler) {
	r.cause = d.cause
	r.emitter = nil
	r.transition(Disconnected)
}

func (s snapshotRequest) apply(r *Reconciler) {
	s.reply <- snapshot{entries: r.view.Entries(), state: r.state}
}

func (r *Reconciler) merge(message domain.Message, provenance Provenance, localID string) (Entry, bool) {
	entry, added := r.view.Merge(message, provenance, localID)
	kind := EntryUpdated
	if added {
		kind = EntryAdded
	}
	r.notify(Notice{Kind: kind, Entry: entry, State: r.state})
	return entry, added
}

func (r *Reconciler) transition(next State) {
	if r.state == next {
		return
	}
	r.log.Debug("Client state changed", "from", r.state, "to", next)
	r.state = next
	r.notify(Notice{Kind: StateChanged, State: next, Err: r.cause})
}

func (r *Reconciler) notLive() error {
	if r.cause != nil {
		return fmt.Errorf("%w: %w", errors.ErrNotLive, r.cause)
	}
	return fmt.Errorf("%w: %w: handshake not complete", errors.ErrNotLive, errors.ErrTransport)
}

// notify never blocks the inbox; a reader that falls behind loses notices
// but can always ask for a Snapshot.
func (r *Reconciler) notify(n Notice) {
	select {
	case r.notices <- n:
	default:
		r.log.Debug("Notice dropped", "kind", n.Kind)
	}
}

func (r *Reconciler) emit(emitter contract.Emitter, message event.OutgoingMessage) {
	ctx, cancel := context.WithTimeout(context.Background(), r.persistTimeout)
	defer cancel()
	if err := emitter.Emit(ctx, message); err != nil {
		r.log.Warn("Realtime emit failed", "client_key", message.ClientKey, "error", err)
		r.notifyAsync(Notice{Kind: EmitFailed, Err: err})
	}
}

// persist never retracts the optimistic entry: on failure the sender keeps
// seeing it and is told the store did not take it.
func (r *Reconciler) persist(localID string, message domain.Message) {
	ctx, cancel := context.WithTimeout(context.Background(), r.persistTimeout)
	defer cancel()
	saved, err := r.store.Save(ctx, message)
	if err != nil {
		r.log.Warn("Durable write failed", "client_key", message.ClientKey, "error", err)
		r.notifyAsync(Notice{Kind: PersistFailed, Err: fmt.Errorf("%w: %w", errors.ErrPersistenceFailure, err)})
		return
	}
	_ = r.submit(context.Background(), persisted{localID: localID, message: saved})
}

// notifyAsync reports from a send goroutine through the inbox so the
// notices channel keeps a single writer.
func (r *Reconciler) notifyAsync(n Notice) {
	_ = r.submit(context.Background(), noticeInput{notice: n})
}

type noticeInput struct{ notice Notice }

func (n noticeInput) apply(r *Reconciler) {
	n.notice.State = r.state
	r.notify(n.notice)
}
