// Package ojproto defines the wire envelope for the daemon's listener.
// Renamed and generalised from the teacher's pkg/websocket: the same
// Message/Request/Response/Notification envelope, carried over JSON
// encoded and length-prefix framed atop a Unix domain socket instead of a
// WebSocket frame — the wire shape is identical, only the transport
// framing differs (SPEC_FULL.md §6.11).
package ojproto

import (
	"encoding/json"
	"time"
)

// MessageType distinguishes the envelope's role.
type MessageType string

const (
	MessageTypeRequest      MessageType = "request"
	MessageTypeResponse     MessageType = "response"
	MessageTypeNotification MessageType = "notification"
	MessageTypeError        MessageType = "error"
)

// Message is the base envelope for every frame exchanged with the daemon.
type Message struct {
	ID        string          `json:"id,omitempty"`
	Type      MessageType     `json:"type"`
	Action    string          `json:"action"`
	Payload   json.RawMessage `json:"payload"`
	Timestamp time.Time       `json:"timestamp"`
}

// ErrorPayload is the payload shape carried by a MessageTypeError frame.
type ErrorPayload struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// NewRequest builds a request frame.
func NewRequest(id, action string, payload interface{}) (*Message, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return &Message{ID: id, Type: MessageTypeRequest, Action: action, Payload: data, Timestamp: time.Now().UTC()}, nil
}

// NewResponse builds a response frame correlated to a request id.
func NewResponse(id, action string, payload interface{}) (*Message, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return &Message{ID: id, Type: MessageTypeResponse, Action: action, Payload: data, Timestamp: time.Now().UTC()}, nil
}

// NewNotification builds a server-push frame (used by the debug HTTP
// surface's event tail, not by request/response round trips).
func NewNotification(action string, payload interface{}) (*Message, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return &Message{Type: MessageTypeNotification, Action: action, Payload: data, Timestamp: time.Now().UTC()}, nil
}

// NewError builds an error response frame.
func NewError(id, action, code, message string, details map[string]interface{}) (*Message, error) {
	payload := ErrorPayload{Code: code, Message: message, Details: details}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return &Message{ID: id, Type: MessageTypeError, Action: action, Payload: data, Timestamp: time.Now().UTC()}, nil
}

// ParsePayload unmarshals the frame's payload into v.
func (m *Message) ParsePayload(v interface{}) error {
	if m.Payload == nil {
		return nil
	}
	return json.Unmarshal(m.Payload, v)
}
