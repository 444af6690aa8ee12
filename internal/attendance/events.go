package attendance

import (
	"fmt"
	"time"

	"github.com/goccy/go-json"

	"clubhub/internal/queue"
)

// EventChanged is the queue message type published after every write.
const EventChanged = "attendance.changed"

// Event describes a write to an attendance record.
type Event struct {
	SessionID string    `json:"session"`
	UserID    string    `json:"user"`
	Status    Status    `json:"status"`
	Method    Method    `json:"method"`
	Action    Action    `json:"action"`
	ActorID   string    `json:"actor,omitempty"`
	At        time.Time `json:"at"`
}

// Message encodes e for the queue.
func (e Event) Message() (queue.Message, error) {
	body, err := json.Marshal(e)
	if err != nil {
		return queue.Message{}, err
	}
	return queue.Message{Type: EventChanged, Body: body}, nil
}

// AuditEntry converts e to an audit trail entry.
func (e Event) AuditEntry() AuditEntry {
	return AuditEntry{
		SessionID: e.SessionID,
		UserID:    e.UserID,
		Status:    e.Status,
		Method:    e.Method,
		Action:    e.Action,
		ActorID:   e.ActorID,
		At:        e.At,
	}
}

// DecodeEvent parses a queue message published by the service.
func DecodeEvent(msg queue.Message) (Event, error) {
	if msg.Type != EventChanged {
		return Event{}, fmt.Errorf("unexpected message type %q", msg.Type)
	}
	var e Event
	if err := json.Unmarshal(msg.Body, &e); err != nil {
		return Event{}, fmt.Errorf("decode attendance event: %w", err)
	}
	if e.SessionID == "" || e.UserID == "" || !e.Status.Valid() {
		return Event{}, fmt.Errorf("incomplete attendance event")
	}
	if e.Action == "" {
		e.Action = ActionMark
	}
	return e, nil
}
