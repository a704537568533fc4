package services

import (
	"context"
	"time"

	"github.com/bidyaasp/project-management/internal/audit"
	"github.com/bidyaasp/project-management/internal/metrics"
	"github.com/bidyaasp/project-management/internal/models"
	"github.com/bidyaasp/project-management/pkg/logger"
	"github.com/google/uuid"
)

// ActivityEvent is the published form of one committed history row.
type ActivityEvent struct {
	ID         string               `json:"id"`
	Owner      string               `json:"owner"` // project, task
	OwnerID    uint                 `json:"owner_id"`
	ProjectID  uint                 `json:"project_id"`
	HistoryID  uint                 `json:"history_id"`
	ActorID    *uint                `json:"actor_id,omitempty"`
	Action     models.HistoryAction `json:"action"`
	Field      string               `json:"field,omitempty"`
	OldValue   *string              `json:"old_value,omitempty"`
	NewValue   *string              `json:"new_value,omitempty"`
	Summary    string               `json:"summary"`
	OccurredAt time.Time            `json:"occurred_at"`
}

// Publisher is handed the rows of a committed transaction.
type Publisher interface {
	Publish(ctx context.Context, written []audit.Written)
}

// ActivityPublisher turns committed history rows into queued activity tasks.
type ActivityPublisher struct {
	queue TaskQueue
}

func NewActivityPublisher(queue TaskQueue) *ActivityPublisher {
	return &ActivityPublisher{queue: queue}
}

func (p *ActivityPublisher) Publish(ctx context.Context, written []audit.Written) {
	if len(written) == 0 {
		return
	}

	now := time.Now().UTC()
	events := make([]ActivityEvent, 0, len(written))
	for _, w := range written {
		metrics.HistoryRows.WithLabelValues(w.Owner, string(w.Action)).Inc()
		events = append(events, ActivityEvent{
			ID:         uuid.NewString(),
			Owner:      w.Owner,
			OwnerID:    w.OwnerID,
			ProjectID:  w.ProjectID,
			HistoryID:  w.HistoryID,
			ActorID:    w.ActorID,
			Action:     w.Action,
			Field:      w.Field,
			OldValue:   w.Old,
			NewValue:   w.New,
			Summary:    w.Summary,
			OccurredAt: now,
		})
	}

	if p.queue == nil {
		return
	}
	if err := p.queue.Enqueue(ctx, &ActivityTask{Events: events}); err != nil {
		// history is already committed; a lost event only affects live feeds
		logger.Warn().Err(err).Int("events", len(events)).Msg("enqueue activity failed")
	}
}

// publish is nil-safe so services can run without a publisher in tests.
func publish(ctx context.Context, p Publisher, rec *audit.Recorder) {
	if p == nil || rec == nil {
		return
	}
	p.Publish(ctx, rec.Written())
}

// ActivitySink receives dispatched events outside the process.
type ActivitySink interface {
	Name() string
	Write(ctx context.Context, events []ActivityEvent) error
}

// ActivityDispatcher fans an activity task out to the SSE hub and sinks.
type ActivityDispatcher struct {
	hub   *SSEHub
	sinks []ActivitySink
}

func NewActivityDispatcher(hub *SSEHub, sinks ...ActivitySink) *ActivityDispatcher {
	return &ActivityDispatcher{hub: hub, sinks: sinks}
}

// Process is the queue processor for activity tasks. A failing sink fails
// the task so the async queue can redeliver it.
func (d *ActivityDispatcher) Process(ctx context.Context, task *ActivityTask) error {
	if d.hub != nil {
		for _, ev := range task.Events {
			d.hub.Publish(ev)
		}
		metrics.ActivityEvents.WithLabelValues("sse", "ok").Add(float64(len(task.Events)))
	}

	var firstErr error
	for _, sink := range d.sinks {
		if err := sink.Write(ctx, task.Events); err != nil {
			metrics.ActivityEvents.WithLabelValues(sink.Name(), "error").Add(float64(len(task.Events)))
			logger.Error().Err(err).Str("sink", sink.Name()).Msg("activity sink write failed")
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		metrics.ActivityEvents.WithLabelValues(sink.Name(), "ok").Add(float64(len(task.Events)))
	}
	return firstErr
}
