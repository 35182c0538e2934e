package websocket

import (
	"encoding/json"

	"github.com/google/uuid"
)

// Event types pushed to a user's connections.
const (
	EventTransactionCreated = "transaction.created"
	EventTransactionUpdated = "transaction.updated"
	EventTransactionDeleted = "transaction.deleted"
)

// Event is the wire message. Payload is the transaction (created/updated)
// or {"id": ...} (deleted).
type Event struct {
	Type    string    `json:"type"`
	Payload any       `json:"payload"`
	UserID  uuid.UUID `json:"-"` // routing only
}

func (e *Event) encode() ([]byte, error) {
	return json.Marshal(e)
}

// Publish queues an event for every connection of userID. It never blocks:
// when the hub is saturated the event is dropped and counted.
func (h *Hub) Publish(userID uuid.UUID, eventType string, payload any) {
	evt := &Event{Type: eventType, Payload: payload, UserID: userID}
	select {
	case h.broadcast <- evt:
	default:
		h.metrics.IncCounter(metricsEventsDropped)
	}
}

// HasConnectedClients reports whether userID has an open connection.
func (h *Hub) HasConnectedClients(userID uuid.UUID) bool {
	return h.ClientCount(userID) > 0
}
