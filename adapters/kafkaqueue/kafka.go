// Package kafkaqueue provides a Kafka backed implementation of engine.Queue.
package kafkaqueue

import (
	"context"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/openbp/engine"
)

// New returns a Queue producing to the given brokers. Topics are created by
// the platform's provisioning, not here.
func New(brokers []string) *Queue {
	return &Queue{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireAll,
			WriteTimeout: 10 * time.Second,
		},
	}
}

type Queue struct {
	writer *kafka.Writer
}

var _ engine.Queue = (*Queue)(nil)

func (q *Queue) Send(ctx context.Context, topic string, key string, payload []byte) error {
	return q.writer.WriteMessages(ctx, kafka.Message{
		Topic: topic,
		Key:   []byte(key),
		Value: payload,
	})
}

func (q *Queue) Close() error {
	return q.writer.Close()
}
