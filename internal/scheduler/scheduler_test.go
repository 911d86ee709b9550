// File: internal/scheduler/scheduler_test.go
package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRunningScheduler(t *testing.T, workers, queueSize int) *Scheduler {
	t.Helper()
	sched := NewScheduler(&SchedulerConfig{Workers: workers, QueueSize: queueSize}, nil)
	require.NoError(t, sched.Start(context.Background()))
	t.Cleanup(func() { sched.Stop() })
	return sched
}

func TestSchedulerRunsTasks(t *testing.T) {
	sched := newRunningScheduler(t, 2, 10)

	var ran int32
	done := make(chan struct{})
	for i := 0; i < 5; i++ {
		err := sched.Submit("work", func(ctx context.Context) error {
			if atomic.AddInt32(&ran, 1) == 5 {
				close(done)
			}
			return nil
		})
		require.NoError(t, err)
	}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("tasks did not run")
	}
	assert.Equal(t, int32(5), atomic.LoadInt32(&ran))
}

func TestSchedulerDoubleStart(t *testing.T) {
	sched := newRunningScheduler(t, 1, 1)
	assert.Error(t, sched.Start(context.Background()))
}

func TestSchedulerQueueFull(t *testing.T) {
	sched := NewScheduler(&SchedulerConfig{Workers: 1, QueueSize: 1}, nil)
	// Not started: nothing drains the queue.
	require.NoError(t, sched.Submit("first", func(ctx context.Context) error { return nil }))

	err := sched.Submit("second", func(ctx context.Context) error { return nil })
	assert.Error(t, err)
}

func TestSchedulerSurvivesPanic(t *testing.T) {
	sched := newRunningScheduler(t, 1, 10)

	require.NoError(t, sched.Submit("boom", func(ctx context.Context) error {
		panic("kaput")
	}))

	// The single worker must still be alive to run this.
	done := make(chan struct{})
	require.NoError(t, sched.Submit("after", func(ctx context.Context) error {
		close(done)
		return nil
	}))

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not survive panicking task")
	}
}

func TestSchedulerSwallowsTaskErrors(t *testing.T) {
	sched := newRunningScheduler(t, 1, 10)

	done := make(chan struct{})
	require.NoError(t, sched.Submit("failing", func(ctx context.Context) error {
		defer close(done)
		return errors.New("task error")
	}))

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("task did not run")
	}
	assert.True(t, sched.IsHealthy())
}

func TestSchedulerStop(t *testing.T) {
	sched := NewScheduler(&SchedulerConfig{Workers: 2, QueueSize: 10}, nil)
	require.NoError(t, sched.Start(context.Background()))
	assert.True(t, sched.IsHealthy())

	require.NoError(t, sched.Stop())
	assert.False(t, sched.IsHealthy())

	// Stopping twice is a no-op.
	require.NoError(t, sched.Stop())
}

func TestSchedulerEvery(t *testing.T) {
	sched := newRunningScheduler(t, 1, 10)

	var ran int32
	sched.Every(20*time.Millisecond, "periodic", func(ctx context.Context) error {
		atomic.AddInt32(&ran, 1)
		return nil
	})

	assert.Eventually(t, func() bool {
		return atomic.LoadInt32(&ran) >= 2
	}, 2*time.Second, 10*time.Millisecond)
}
