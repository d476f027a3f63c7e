// internal/scheduler/scheduler_test.go
package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func TestSchedulerFiresJob(t *testing.T) {
	var fires atomic.Int32
	sched := New(context.Background())
	if err := sched.Add("sweep", "* * * * * *", func(context.Context) error {
		fires.Add(1)
		return errors.New("ignored")
	}); err != nil {
		t.Fatal(err)
	}
	sched.Start()
	defer sched.Stop()

	// Wait up to 2.5 seconds for at least one fire
	deadline := time.After(2500 * time.Millisecond)
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-deadline:
			t.Fatalf("job did not fire within 2.5s, fires=%d", fires.Load())
		case <-ticker.C:
			if fires.Load() > 0 {
				return
			}
		}
	}
}

func TestSchedulerSkipsAfterCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var fires atomic.Int32
	sched := New(ctx)
	if err := sched.Add("sweep", Every(time.Second), func(context.Context) error {
		fires.Add(1)
		return nil
	}); err != nil {
		t.Fatal(err)
	}
	sched.Start()
	time.Sleep(1500 * time.Millisecond)
	sched.Stop()

	if fires.Load() != 0 {
		t.Errorf("expected no fires after cancel, got %d", fires.Load())
	}
}

func TestSchedulerRejectsBadSchedule(t *testing.T) {
	sched := New(context.Background())
	if err := sched.Add("bad", "not a schedule", func(context.Context) error { return nil }); err == nil {
		t.Error("expected error for invalid schedule")
	}
}

func TestEvery(t *testing.T) {
	if got := Every(30 * time.Second); got != "@every 30s" {
		t.Errorf("expected @every 30s, got %s", got)
	}
}
