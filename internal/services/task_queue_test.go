package services

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/bidyaasp/project-management/internal/audit"
	"github.com/bidyaasp/project-management/internal/config"
	"github.com/bidyaasp/project-management/internal/models"
	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewTaskQueue_RedisDisabled(t *testing.T) {
	q := NewTaskQueue(&config.RedisConfig{Enabled: false})
	assert.False(t, q.IsAsync())
	assert.NoError(t, q.Close())
}

func TestSyncQueue_EnqueueWithoutProcessor(t *testing.T) {
	q := NewSyncQueue()
	assert.NoError(t, q.Enqueue(context.Background(), &ActivityTask{}))
}

func TestSyncQueue_ProcessesAndCloseWaits(t *testing.T) {
	q := NewSyncQueue()

	var mu sync.Mutex
	var got []string
	q.SetProcessor(func(ctx context.Context, task *ActivityTask) error {
		time.Sleep(10 * time.Millisecond)
		mu.Lock()
		defer mu.Unlock()
		for _, ev := range task.Events {
			got = append(got, ev.ID)
		}
		return nil
	})

	require.NoError(t, q.Enqueue(context.Background(), &ActivityTask{Events: []ActivityEvent{{ID: "e1"}}}))
	require.NoError(t, q.Close())

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"e1"}, got)
}

func TestNewWorker_DisabledReturnsNil(t *testing.T) {
	assert.Nil(t, NewWorker(&config.RedisConfig{Enabled: false}, nil))
}

func TestWorker_Handle(t *testing.T) {
	var got []*ActivityTask
	w := &Worker{process: func(_ context.Context, task *ActivityTask) error {
		got = append(got, task)
		return nil
	}}
	ctx := context.Background()

	payload, err := json.Marshal(&ActivityTask{Events: []ActivityEvent{{ID: "e1"}, {ID: "e2"}}})
	require.NoError(t, err)
	require.NoError(t, w.handle(ctx, asynq.NewTask(TaskTypeActivity, payload)))
	require.Len(t, got, 1)
	assert.Len(t, got[0].Events, 2)

	require.NoError(t, w.handle(ctx, asynq.NewTask(TaskTypeActivity, []byte(`{"events":[]}`))))
	assert.Len(t, got, 1, "empty tasks are acknowledged without processing")

	err = w.handle(ctx, asynq.NewTask(TaskTypeActivity, []byte("{")))
	assert.True(t, errors.Is(err, asynq.SkipRetry))
}

func TestWorker_HandlePropagatesProcessorError(t *testing.T) {
	boom := errors.New("sink down")
	w := &Worker{process: func(context.Context, *ActivityTask) error { return boom }}
	payload := []byte(`{"events":[{"id":"e1"}]}`)

	err := w.handle(context.Background(), asynq.NewTask(TaskTypeActivity, payload))
	assert.ErrorIs(t, err, boom)
	assert.False(t, errors.Is(err, asynq.SkipRetry), "processor failures are retried")
}

type captureQueue struct {
	tasks []*ActivityTask
}

func (q *captureQueue) Enqueue(_ context.Context, task *ActivityTask) error {
	q.tasks = append(q.tasks, task)
	return nil
}
func (q *captureQueue) IsAsync() bool { return false }
func (q *captureQueue) Close() error  { return nil }

func TestActivityPublisher_BuildsEvents(t *testing.T) {
	q := &captureQueue{}
	p := NewActivityPublisher(q)
	actor := uint(3)
	newVal := "done"

	p.Publish(context.Background(), []audit.Written{{
		Owner: "task", OwnerID: 9, ProjectID: 2, HistoryID: 40, ActorID: &actor,
		Action: models.ActionStatusChanged, Field: "status", New: &newVal, Summary: "moved",
	}})
	p.Publish(context.Background(), nil)

	require.Len(t, q.tasks, 1)
	require.Len(t, q.tasks[0].Events, 1)
	ev := q.tasks[0].Events[0]
	assert.NotEmpty(t, ev.ID)
	assert.Equal(t, uint(2), ev.ProjectID)
	assert.Equal(t, models.ActionStatusChanged, ev.Action)
	assert.Equal(t, "done", *ev.NewValue)
	assert.False(t, ev.OccurredAt.IsZero())
}

type failingSink struct{ calls int }

func (s *failingSink) Name() string { return "failing" }
func (s *failingSink) Write(context.Context, []ActivityEvent) error {
	s.calls++
	return errors.New("broker down")
}

func TestActivityDispatcher_HubAndSinks(t *testing.T) {
	hub := NewSSEHub()
	ch := hub.Subscribe(nil, "").Events
	sink := &failingSink{}
	d := NewActivityDispatcher(hub, sink)

	err := d.Process(context.Background(), &ActivityTask{Events: []ActivityEvent{{ID: "x", ProjectID: 1}}})
	assert.Error(t, err, "sink failure is reported for redelivery")
	assert.Equal(t, 1, sink.calls)

	select {
	case ev := <-ch:
		assert.Equal(t, "x", ev.ID)
	case <-time.After(time.Second):
		t.Fatal("hub did not receive the event")
	}
}
