// Package sink holds notification.Sink implementations.
package sink

import (
	"context"
	"sync"

	"bloodlink/internal/notification"
	id "bloodlink/pkg/domain"
)

// Memory keeps delivered messages in order. Used in tests and single-node runs.
type Memory struct {
	mu       sync.Mutex
	messages []notification.Message
}

func NewMemory() *Memory {
	return &Memory{}
}

func (m *Memory) Deliver(_ context.Context, messages []notification.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages = append(m.messages, messages...)
	return nil
}

// All returns a copy of every delivered message.
func (m *Memory) All() []notification.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]notification.Message(nil), m.messages...)
}

// For returns the messages delivered to one recipient.
func (m *Memory) For(recipientID id.UserID) []notification.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []notification.Message
	for _, msg := range m.messages {
		if msg.RecipientID == recipientID {
			out = append(out, msg)
		}
	}
	return out
}
