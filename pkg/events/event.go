package events

import (
	"encoding/json"
	"time"
)

// Session event types.
const (
	TypeFragment     = "FRAGMENT"
	TypeStatus       = "STATUS"
	TypeNotice       = "NOTICE"
	TypeConversation = "CONVERSATION"
)

// Event defines the contract for all session events.
type Event interface {
	// EventType returns the unique code for this event (e.g., "FRAGMENT").
	EventType() string

	// SessionId is the browser session the event belongs to.
	SessionId() string

	// Payload returns the data associated with the event.
	Payload() map[string]interface{}

	// Timestamp returns when the event occurred.
	Timestamp() time.Time
}

type BaseEvent struct {
	Type       string                 `json:"type"`
	Session    string                 `json:"session_id"`
	Data       map[string]interface{} `json:"data"`
	OccurredAt time.Time              `json:"occurred_at"`
}

func New(eventType, sessionId string, data map[string]interface{}) BaseEvent {
	return BaseEvent{
		Type:       eventType,
		Session:    sessionId,
		Data:       data,
		OccurredAt: time.Now(),
	}
}

func (e BaseEvent) EventType() string {
	return e.Type
}

func (e BaseEvent) SessionId() string {
	return e.Session
}

func (e BaseEvent) Payload() map[string]interface{} {
	return e.Data
}

func (e BaseEvent) Timestamp() time.Time {
	return e.OccurredAt
}

// Marshal encodes any Event in the wire shape used on the bus and the websocket.
func Marshal(e Event) ([]byte, error) {
	return json.Marshal(BaseEvent{
		Type:       e.EventType(),
		Session:    e.SessionId(),
		Data:       e.Payload(),
		OccurredAt: e.Timestamp(),
	})
}

func Unmarshal(data []byte) (BaseEvent, error) {
	var e BaseEvent
	err := json.Unmarshal(data, &e)
	return e, err
}
