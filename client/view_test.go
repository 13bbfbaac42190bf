package client

import (
	"chat-relay/domain"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func texts(entries []Entry) []string {
	return lo.Map(entries, func(e Entry, _ int) string { return e.Message.Text })
}

func TestView_History_Then_Broadcast_Is_Ordered(t *testing.T) {
	req := require.New(t)
	view := NewView(DefaultDedupTolerance)

	// Given a history page [m1@t1, m2@t2]
	view.Merge(domain.Message{ID: "1", Text: "m1", Author: "alice", CreatedAt: t0}, History, "")
	view.Merge(domain.Message{ID: "2", Text: "m2", Author: "bob", CreatedAt: t0.Add(time.Second)}, History, "")

	// When m3@t3 is broadcast
	_, added := view.Merge(domain.Message{Text: "m3", Author: "carol", CreatedAt: t0.Add(time.Minute)}, Broadcast, "")

	// Then the view is [m1, m2, m3]
	req.True(added)
	req.Equal([]string{"m1", "m2", "m3"}, texts(view.Entries()))
}

func TestView_Late_History_Sorts_Before_Broadcast(t *testing.T) {
	req := require.New(t)
	view := NewView(DefaultDedupTolerance)

	view.Merge(domain.Message{Text: "m3", Author: "carol", CreatedAt: t0.Add(time.Minute)}, Broadcast, "")
	view.Merge(domain.Message{ID: "1", Text: "m1", Author: "alice", CreatedAt: t0}, History, "")
	view.Merge(domain.Message{ID: "2", Text: "m2", Author: "bob", CreatedAt: t0.Add(time.Second)}, History, "")

	req.Equal([]string{"m1", "m2", "m3"}, texts(view.Entries()))
}

func TestView_Ties_Keep_Arrival_Order(t *testing.T) {
	req := require.New(t)
	view := NewView(DefaultDedupTolerance)

	view.Merge(domain.Message{ID: "a", Text: "first", Author: "alice", CreatedAt: t0}, History, "")
	view.Merge(domain.Message{ID: "b", Text: "second", Author: "bob", CreatedAt: t0}, History, "")
	view.Merge(domain.Message{ID: "c", Text: "third", Author: "carol", CreatedAt: t0}, History, "")

	req.Equal([]string{"first", "second", "third"}, texts(view.Entries()))
}

func TestView_Dedup_Rules(t *testing.T) {
	key := uuid.NewString()
	testCases := []struct {
		name     string
		existing domain.Message
		incoming domain.Message
		merged   bool
	}{
		{
			name:     "same durable id",
			existing: domain.Message{ID: "42", Text: "hi", Author: "alice", CreatedAt: t0},
			incoming: domain.Message{ID: "42", Text: "hi", Author: "alice", CreatedAt: t0},
			merged:   true,
		},
		{
			name:     "same client key far apart in time",
			existing: domain.Message{Text: "hi", Author: "alice", CreatedAt: t0, ClientKey: key},
			incoming: domain.Message{ID: "42", Text: "hi", Author: "alice", CreatedAt: t0.Add(time.Minute), ClientKey: key},
			merged:   true,
		},
		{
			name:     "same author and text within tolerance",
			existing: domain.Message{Text: "hi", Author: "alice", CreatedAt: t0},
			incoming: domain.Message{ID: "42", Text: "hi", Author: "alice", CreatedAt: t0.Add(1500 * time.Millisecond)},
			merged:   true,
		},
		{
			name:     "same author and text outside tolerance",
			existing: domain.Message{Text: "hi", Author: "alice", CreatedAt: t0},
			incoming: domain.Message{ID: "42", Text: "hi", Author: "alice", CreatedAt: t0.Add(3 * time.Second)},
			merged:   false,
		},
		{
			name:     "different author",
			existing: domain.Message{Text: "hi", Author: "alice", CreatedAt: t0},
			incoming: domain.Message{Text: "hi", Author: "bob", CreatedAt: t0},
			merged:   false,
		},
		{
			name:     "two durable ids are two messages",
			existing: domain.Message{ID: "1", Text: "hi", Author: "alice", CreatedAt: t0},
			incoming: domain.Message{ID: "2", Text: "hi", Author: "alice", CreatedAt: t0},
			merged:   false,
		},
		{
			name:     "two client keys are two messages",
			existing: domain.Message{Text: "hi", Author: "alice", CreatedAt: t0, ClientKey: uuid.NewString()},
			incoming: domain.Message{Text: "hi", Author: "alice", CreatedAt: t0, ClientKey: uuid.NewString()},
			merged:   false,
		},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			req := require.New(t)
			view := NewView(DefaultDedupTolerance)
			view.Merge(tc.existing, Optimistic, "local")

			_, added := view.Merge(tc.incoming, History, "")

			req.Equal(!tc.merged, added)
			if tc.merged {
				req.Equal(1, view.Len())
			} else {
				req.Equal(2, view.Len())
			}
		})
	}
}

func TestView_Merge_Adopts_Durable_Fields(t *testing.T) {
	req := require.New(t)
	view := NewView(DefaultDedupTolerance)
	key := uuid.NewString()

	// Given an optimistic entry without id
	view.Merge(domain.Message{Text: "hi", Author: "alice", CreatedAt: t0, ClientKey: key}, Optimistic, key)

	// When the durable copy arrives through history
	stored := t0.Add(200 * time.Millisecond)
	entry, added := view.Merge(domain.Message{ID: "42", Text: "hi", Author: "alice", CreatedAt: stored, ClientKey: key}, History, "")

	// Then the existing entry adopts id and createdAt
	req.False(added)
	req.Equal("42", entry.Message.ID)
	req.Equal(stored, entry.Message.CreatedAt)
	req.Equal(History, entry.Provenance)
	req.Equal(key, entry.LocalID)
}

func TestView_Append_Never_Merges(t *testing.T) {
	req := require.New(t)
	view := NewView(DefaultDedupTolerance)
	view.Merge(domain.Message{ID: "old", Text: "ok", Author: "alice", CreatedAt: t0}, History, "")

	entry := view.Append(domain.Message{Text: "ok", Author: "alice", CreatedAt: t0.Add(time.Second), ClientKey: "k"}, Optimistic, "k")

	req.Equal(2, view.Len())
	req.Equal("k", entry.LocalID)
	req.Empty(view.Entries()[0].Message.ClientKey)
}

func TestView_Keyed_Message_Never_Matches_Stored_Copy_Without_Key(t *testing.T) {
	req := require.New(t)
	view := NewView(DefaultDedupTolerance)
	view.Append(domain.Message{Text: "ok", Author: "alice", CreatedAt: t0.Add(time.Second), ClientKey: "k"}, Optimistic, "k")

	// A stored copy without key is an older message with the same text
	_, added := view.Merge(domain.Message{ID: "old", Text: "ok", Author: "alice", CreatedAt: t0}, History, "")

	req.True(added)
	req.Equal(2, view.Len())
	entry, ok := view.Acknowledge("k", domain.Message{ID: "new-id", Text: "ok", Author: "alice", CreatedAt: t0.Add(time.Second), ClientKey: "k"})
	req.True(ok)
	req.Equal("new-id", entry.Message.ID)
	req.Equal(2, view.Len())
}

func TestView_Acknowledge(t *testing.T) {
	req := require.New(t)
	view := NewView(DefaultDedupTolerance)
	key := uuid.NewString()
	view.Merge(domain.Message{Text: "hi", Author: "alice", CreatedAt: t0, ClientKey: key}, Optimistic, key)

	entry, ok := view.Acknowledge(key, domain.Message{ID: "42", Text: "hi", Author: "alice", CreatedAt: t0, ClientKey: key})
	req.True(ok)
	req.Equal("42", entry.Message.ID)
	req.Equal(Optimistic, entry.Provenance)

	_, ok = view.Acknowledge("unknown", domain.Message{ID: "43"})
	req.False(ok)
}

func TestView_Acknowledge_Collapses_Copy_Already_Holding_Id(t *testing.T) {
	req := require.New(t)
	view := NewView(DefaultDedupTolerance)

	// Given an optimistic entry and a history copy of it that lost its client key
	view.Merge(domain.Message{Text: "hi", Author: "alice", CreatedAt: t0, ClientKey: "k"}, Optimistic, "k")
	view.Merge(domain.Message{ID: "42", Text: "hi", Author: "alice", CreatedAt: t0.Add(10 * time.Second)}, History, "")
	req.Equal(2, view.Len())

	// When the durable write is acknowledged
	view.Acknowledge("k", domain.Message{ID: "42", Text: "hi", Author: "alice", CreatedAt: t0.Add(10 * time.Second), ClientKey: "k"})

	// Then a single entry remains
	req.Equal(1, view.Len())
	req.Equal("42", view.Entries()[0].Message.ID)
}

func TestProvenance_String(t *testing.T) {
	req := require.New(t)
	req.Equal("history", History.String())
	req.Equal("optimistic", Optimistic.String())
	req.Equal("broadcast", Broadcast.String())
}
