// Package domain contains core concepts of the chat system.
// This file defines Message and the rules shared by every component
// that displays or stores one.
package domain

import (
	"strings"
	"time"
)

// MaxClockSkew bounds how far a client supplied createdAt may drift from the
// server clock before the server time is used instead.
const MaxClockSkew = 5 * time.Minute

// Message is a chat message as exchanged over the realtime channel and the
// REST boundary. ID is empty until the durable store acknowledges it.
type Message struct {
	ID        string    `json:"id,omitempty"`
	Text      string    `json:"text"`
	Author    string    `json:"author"`
	CreatedAt time.Time `json:"createdAt"`
	// ClientKey is generated by the sending client and travels through both
	// the broadcast and the durable write of the same logical message.
	ClientKey string `json:"clientKey,omitempty"`
}

// IsPersisted reports whether the store has assigned a durable id.
func (m Message) IsPersisted() bool {
	return m.ID != ""
}

// Normalize trims the text and truncates the timestamp to milliseconds,
// the precision kept by the JSON encoders of browser clients.
func (m Message) Normalize() Message {
	m.Text = strings.TrimSpace(m.Text)
	m.CreatedAt = m.CreatedAt.UTC().Truncate(time.Millisecond)
	return m
}

// StampedAt keeps the client createdAt when it lies within MaxClockSkew of
// now and replaces it with now otherwise. The relay applies it to both the
// broadcast and the stored copy so that they order alike.
func (m Message) StampedAt(now time.Time) Message {
	if m.CreatedAt.IsZero() || m.CreatedAt.Sub(now).Abs() > MaxClockSkew {
		m.CreatedAt = now
	}
	return m
}
