package client

import (
	"chat-relay/domain"
	"sort"
	"time"
)

// DefaultDedupTolerance is the createdAt window within which two entries
// with the same author and text are treated as one message when neither
// carries an identity the other can match.
const DefaultDedupTolerance = 2 * time.Second

type Provenance int

const (
	History Provenance = iota
	Optimistic
	Broadcast
)

func (p Provenance) String() string {
	switch p {
	case History:
		return "history"
	case Optimistic:
		return "optimistic"
	case Broadcast:
		return "broadcast"
	default:
		return "unknown"
	}
}

// Entry is one displayed message.
type Entry struct {
	Message    domain.Message
	Provenance Provenance
	// LocalID identifies optimistic entries until the store acknowledges them.
	LocalID string
	seq     uint64
}

// View is the ordered, deduplicated list of messages shown by one client.
// It is not safe for concurrent use; the Reconciler owns it.
type View struct {
	entries   []Entry
	seq       uint64
	tolerance time.Duration
}

func NewView(tolerance time.Duration) *View {
	return &View{tolerance: tolerance}
}

// Entries returns a copy ordered by createdAt, ties by arrival.
func (v *View) Entries() []Entry {
	out := make([]Entry, len(v.entries))
	copy(out, v.entries)
	return out
}

func (v *View) Len() int {
	return len(v.entries)
}

// Merge adds message unless it duplicates an existing entry, in which case
// the existing entry adopts the durable fields of message. It reports
// whether an entry was added.
func (v *View) Merge(message domain.Message, provenance Provenance, localID string) (Entry, bool) {
	message = message.Normalize()
	if i := v.find(message); i >= 0 {
		return v.absorb(i, message, provenance), false
	}
	return v.Append(message, provenance, localID), true
}

// Append adds message without looking for a duplicate. A local send is
// always a new message, whatever the view already holds.
func (v *View) Append(message domain.Message, provenance Provenance, localID string) Entry {
	v.seq++
	entry := Entry{Message: message.Normalize(), Provenance: provenance, LocalID: localID, seq: v.seq}
	v.insert(entry)
	return entry
}

// Acknowledge binds the durable id and timestamp returned by the store to
// the optimistic entry created under localID.
func (v *View) Acknowledge(localID string, saved domain.Message) (Entry, bool) {
	for i := range v.entries {
		if v.entries[i].LocalID != localID {
			continue
		}
		// A broadcast or history copy may already hold this id.
		if dup := v.indexOfID(saved.ID); dup >= 0 && dup != i {
			v.remove(dup)
			if dup < i {
				i--
			}
		}
		return v.absorb(i, saved.Normalize(), v.entries[i].Provenance), true
	}
	return Entry{}, false
}

func (v *View) find(message domain.Message) int {
	if message.ID != "" {
		if i := v.indexOfID(message.ID); i >= 0 {
			return i
		}
	}
	if message.ClientKey != "" {
		for i, e := range v.entries {
			if e.Message.ClientKey == message.ClientKey {
				return i
			}
		}
	}
	for i, e := range v.entries {
		if v.sameContent(e.Message, message) {
			return i
		}
	}
	return -1
}

// sameContent is the fallback match. Two durable ids or two client keys
// that differ always mean two distinct messages. The store keeps client
// keys, so a stored copy without one never matches a keyed message.
func (v *View) sameContent(a, b domain.Message) bool {
	if a.ID != "" && b.ID != "" {
		return false
	}
	if a.ClientKey != "" && b.ClientKey != "" {
		return false
	}
	if (storedWithoutKey(a) && b.ClientKey != "") || (storedWithoutKey(b) && a.ClientKey != "") {
		return false
	}
	if a.Author != b.Author || a.Text != b.Text {
		return false
	}
	delta := a.CreatedAt.Sub(b.CreatedAt)
	if delta < 0 {
		delta = -delta
	}
	return delta <= v.tolerance
}

func storedWithoutKey(m domain.Message) bool {
	return m.ID != "" && m.ClientKey == ""
}

func (v *View) indexOfID(id string) int {
	if id == "" {
		return -1
	}
	for i, e := range v.entries {
		if e.Message.ID == id {
			return i
		}
	}
	return -1
}

// absorb merges incoming into entry i. Durable copies win on id, createdAt
// and text; a history copy upgrades the provenance.
func (v *View) absorb(i int, incoming domain.Message, provenance Provenance) Entry {
	entry := v.entries[i]
	current := entry.Message
	if incoming.ID != "" && current.ID == "" {
		current.ID = incoming.ID
		current.CreatedAt = incoming.CreatedAt
	}
	if incoming.ID != "" && incoming.ID == current.ID {
		current.Text = incoming.Text
	}
	if current.ClientKey == "" && (current.ID == "" || current.ID == incoming.ID) {
		current.ClientKey = incoming.ClientKey
	}
	entry.Message = current
	if provenance == History {
		entry.Provenance = History
	}
	v.remove(i)
	v.insert(entry)
	return entry
}

func (v *View) insert(entry Entry) {
	at := sort.Search(len(v.entries), func(i int) bool {
		e := v.entries[i]
		if e.Message.CreatedAt.Equal(entry.Message.CreatedAt) {
			return e.seq > entry.seq
		}
		return e.Message.CreatedAt.After(entry.Message.CreatedAt)
	})
	v.entries = append(v.entries, Entry{})
	copy(v.entries[at+1:], v.entries[at:])
	v.entries[at] = entry
}

func (v *View) remove(i int) {
	v.entries = append(v.entries[:i], v.entries[i+1:]...)
}
