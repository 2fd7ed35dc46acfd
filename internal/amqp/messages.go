package amqp

import (
	"encoding/json"
	"time"
)

// ReclassifyMessage asks the worker to re-run classification over the whole
// transaction set. It carries no rule payload; the worker reads the current
// settings from the database when it processes the message.
type ReclassifyMessage struct {
	Reason    string    `json:"reason"`
	Timestamp time.Time `json:"timestamp"`
}

// NewReclassifyMessage creates a reclassification request
func NewReclassifyMessage(reason string) *ReclassifyMessage {
	return &ReclassifyMessage{
		Reason:    reason,
		Timestamp: time.Now(),
	}
}

// ToJSON converts the message to JSON bytes
func (m *ReclassifyMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// ReclassifyMessageFromJSON creates a message from JSON bytes
func ReclassifyMessageFromJSON(data []byte) (*ReclassifyMessage, error) {
	var msg ReclassifyMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
