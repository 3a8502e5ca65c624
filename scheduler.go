package engine

import (
	"context"
	"os"

	"github.com/luno/jettison/errors"
	"github.com/luno/jettison/j"
	"github.com/robfig/cron/v3"
	"k8s.io/utils/clock"

	"github.com/openbp/engine/internal/logger"
)

const defaultSweepSpec = "@every 1m"

const defaultSweepLimit = 100

// Scheduler re-delivers elapsed delay events: on each sweep it lists pending
// events whose due date has passed and enqueues their firing message again.
// The dispatcher completes the pending row on redelivery. Construct once and
// call Run from a dedicated goroutine.
type Scheduler struct {
	events EventStore
	queue  Queue

	schedule cron.Schedule
	limit    int
	clock    clock.Clock
	logger   Logger
}

type SchedulerOption func(s *Scheduler)

// WithSweepSpec overrides the sweep schedule. Standard cron specs and the
// descriptor forms ("@every 30s", "@hourly") are accepted.
func WithSweepSpec(spec string) SchedulerOption {
	return func(s *Scheduler) {
		parsed, err := cron.ParseStandard(spec)
		if err != nil {
			panic(err)
		}
		s.schedule = parsed
	}
}

func WithSweepLimit(limit int) SchedulerOption {
	return func(s *Scheduler) {
		s.limit = limit
	}
}

func WithSchedulerClock(c clock.Clock) SchedulerOption {
	return func(s *Scheduler) {
		s.clock = c
	}
}

func WithSchedulerLogger(l Logger) SchedulerOption {
	return func(s *Scheduler) {
		s.logger = l
	}
}

func NewScheduler(events EventStore, queue Queue, opts ...SchedulerOption) *Scheduler {
	schedule, err := cron.ParseStandard(defaultSweepSpec)
	if err != nil {
		panic(err)
	}

	s := &Scheduler{
		events:   events,
		queue:    queue,
		schedule: schedule,
		limit:    defaultSweepLimit,
		clock:    clock.RealClock{},
		logger:   logger.New(os.Stdout, TraceIDFromContext),
	}
	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Run sweeps on the configured schedule until the context is cancelled. Sweep
// failures are logged and the loop continues; only context cancellation ends
// it.
func (s *Scheduler) Run(ctx context.Context) error {
	for {
		next := s.schedule.Next(s.clock.Now())

		t := s.clock.NewTimer(next.Sub(s.clock.Now()))
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C():
		}

		err := s.Sweep(ctx)
		if err != nil {
			// NoReturnErr: log and keep sweeping.
			s.logger.Error(ctx, errors.Wrap(err, "due date sweep failed"))
		}
	}
}

// Sweep enqueues one firing message per elapsed pending delay event.
func (s *Scheduler) Sweep(ctx context.Context) error {
	due, err := s.events.ListDueBefore(ctx, s.clock.Now(), s.limit)
	if err != nil {
		return err
	}

	for _, event := range due {
		m := Message{
			WorkflowID:      event.WorkflowID,
			EventTemplateID: event.EventTemplateID,
		}
		payload, err := Marshal(&m)
		if err != nil {
			return err
		}

		err = s.queue.Send(ctx, TopicEventFire, event.ID, payload)
		if err != nil {
			return errors.Wrap(err, "due event enqueue failed", j.MKV{
				"event_id":    event.ID,
				"workflow_id": event.WorkflowID,
			})
		}
	}

	return nil
}
