// Package event defines the realtime vocabulary exchanged between the relay
// and its clients. Every frame is a JSON envelope {"event": name, "data": payload}.
package event

import (
	"chat-relay/domain"
	"encoding/json"
	"fmt"
	"time"
)

type Name string

const (
	SendMessage    Name = "sendMessage"
	ReceiveMessage Name = "receiveMessage"
	Ready          Name = "ready"
	Error          Name = "error"
)

// DomainEvent is anything the relay can queue towards a session.
type DomainEvent interface {
	Name() Name
}

// MessageReceived is fanned out to every session other than the sender.
type MessageReceived struct {
	Message domain.Message
}

func (MessageReceived) Name() Name { return ReceiveMessage }

// SessionReady confirms the handshake and tells the client its session id.
type SessionReady struct {
	SessionID domain.SessionID `json:"sessionId"`
	Subject   domain.Subject   `json:"subject"`
}

func (SessionReady) Name() Name { return Ready }

// Rejected is the terminal event sent before the relay closes a connection.
type Rejected struct {
	Reason string `json:"reason"`
}

func (Rejected) Name() Name { return Error }

// Envelope is the frame written on the websocket.
type Envelope struct {
	Event Name            `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// OutgoingMessage is the payload of a client sendMessage frame.
type OutgoingMessage struct {
	Text      string    `json:"text"`
	Author    string    `json:"author"`
	CreatedAt time.Time `json:"createdAt"`
	ClientKey string    `json:"clientKey,omitempty"`
}

// Encode serializes a domain event into an envelope.
func Encode(e DomainEvent) ([]byte, error) {
	var payload any
	switch evt := e.(type) {
	case MessageReceived:
		payload = evt.Message
	default:
		payload = evt
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", e.Name(), err)
	}
	return json.Marshal(Envelope{Event: e.Name(), Data: data})
}

// EncodeOutgoing builds a client sendMessage frame.
func EncodeOutgoing(msg OutgoingMessage) ([]byte, error) {
	data, err := json.Marshal(msg)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{Event: SendMessage, Data: data})
}

// Decode parses an envelope without interpreting its payload.
func Decode(raw []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return Envelope{}, fmt.Errorf("decode envelope: %w", err)
	}
	if env.Event == "" {
		return Envelope{}, fmt.Errorf("decode envelope: missing event name")
	}
	return env, nil
}

// Payload unmarshals the envelope data into v.
func (e Envelope) Payload(v any) error {
	if len(e.Data) == 0 {
		return fmt.Errorf("event %s has no payload", e.Event)
	}
	return json.Unmarshal(e.Data, v)
}
