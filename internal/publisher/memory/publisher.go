// Package memory provides an in-process publisher for development and tests.
package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
)

// Message is one published payload retained for inspection.
type Message struct {
	Topic string
	Data  []byte
}

// Publisher records snapshot-updated events instead of sending them.
type Publisher struct {
	mu       sync.Mutex
	messages []Message
}

// New creates a Publisher.
func New() *Publisher {
	return &Publisher{}
}

// Publish marshals the payload and appends it to the in-memory log.
func (p *Publisher) Publish(_ context.Context, topic string, payload any) (string, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal payload: %w", err)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.messages = append(p.messages, Message{Topic: topic, Data: data})
	return fmt.Sprintf("memory-%d", len(p.messages)), nil
}

// Messages returns a copy of everything published so far.
func (p *Publisher) Messages() []Message {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Message(nil), p.messages...)
}
