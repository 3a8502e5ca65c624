// Package memqueue provides an in-memory engine.Queue for tests and local
// development.
package memqueue

import (
	"context"
	"sync"

	"github.com/openbp/engine"
)

// Message is one produced queue entry.
type Message struct {
	Topic   string
	Key     string
	Payload []byte
}

type Queue struct {
	mu       sync.Mutex
	messages []Message
}

var _ engine.Queue = (*Queue)(nil)

func New() *Queue {
	return &Queue{}
}

func (q *Queue) Send(ctx context.Context, topic string, key string, payload []byte) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.messages = append(q.messages, Message{
		Topic:   topic,
		Key:     key,
		Payload: append([]byte{}, payload...),
	})
	return nil
}

// Messages returns a snapshot of everything sent, optionally filtered by
// topic.
func (q *Queue) Messages(topic string) []Message {
	q.mu.Lock()
	defer q.mu.Unlock()

	var out []Message
	for _, m := range q.messages {
		if topic == "" || m.Topic == topic {
			out = append(out, m)
		}
	}
	return out
}
