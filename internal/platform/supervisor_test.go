package platform

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func TestSupervisorRestartsFailedTask(t *testing.T) {
	sup := NewSupervisor(SupervisorPolicy{InitialBackoff: time.Millisecond, MaxBackoff: time.Millisecond})
	defer sup.StopAll()

	var attempts atomic.Int64
	done := make(chan struct{})
	err := sup.StartSpec(SupervisorChildSpec{Name: "flaky", Restart: SupervisorRestartTransient}, func(ctx context.Context) error {
		if attempts.Add(1) < 3 {
			return errors.New("boom")
		}
		close(done)
		return nil
	})
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("task never succeeded; attempts=%d", attempts.Load())
	}
	if attempts.Load() != 3 {
		t.Fatalf("expected 3 attempts, got %d", attempts.Load())
	}
}

func TestSupervisorTemporaryTaskNeverRestarts(t *testing.T) {
	sup := NewSupervisor(SupervisorPolicy{InitialBackoff: time.Millisecond})
	defer sup.StopAll()

	var attempts atomic.Int64
	ran := make(chan struct{})
	err := sup.StartSpec(SupervisorChildSpec{Name: "once", Restart: SupervisorRestartTemporary}, func(ctx context.Context) error {
		attempts.Add(1)
		close(ran)
		return errors.New("boom")
	})
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	<-ran
	time.Sleep(20 * time.Millisecond)
	if attempts.Load() != 1 {
		t.Fatalf("temporary task restarted: %d attempts", attempts.Load())
	}
}

func TestSupervisorMaxRestartsMarksPermanentFailure(t *testing.T) {
	var failedName string
	var failedCount int
	failed := make(chan struct{})
	sup := NewSupervisorWithHooks(SupervisorPolicy{
		InitialBackoff: time.Millisecond,
		MaxBackoff:     time.Millisecond,
		MaxRestarts:    2,
	}, SupervisorHooks{
		OnTaskPermanentFailure: func(name string, err error, restartCount int) {
			failedName = name
			failedCount = restartCount
			close(failed)
		},
	})
	defer sup.StopAll()

	if err := sup.Start("doomed", func(ctx context.Context) error {
		return errors.New("always fails")
	}); err != nil {
		t.Fatalf("start: %v", err)
	}

	select {
	case <-failed:
	case <-time.After(2 * time.Second):
		t.Fatalf("permanent failure hook never fired")
	}
	if failedName != "doomed" || failedCount != 2 {
		t.Fatalf("unexpected failure report: name=%s count=%d", failedName, failedCount)
	}

	children := sup.Children()
	if len(children) != 1 || !children[0].PermanentFailed {
		t.Fatalf("expected a permanently failed child, got %+v", children)
	}
}

func TestSupervisorRejectsDuplicateAndStops(t *testing.T) {
	sup := NewSupervisor(SupervisorPolicy{})
	defer sup.StopAll()

	started := make(chan struct{})
	if err := sup.Start("worker", func(ctx context.Context) error {
		close(started)
		<-ctx.Done()
		return nil
	}); err != nil {
		t.Fatalf("start: %v", err)
	}
	<-started

	if err := sup.Start("worker", func(ctx context.Context) error { return nil }); err == nil {
		t.Fatalf("expected duplicate-name error")
	}
	if got := sup.Tasks(); len(got) != 1 || got[0] != "worker" {
		t.Fatalf("unexpected task list: %v", got)
	}

	sup.Stop("worker")
	if got := sup.Tasks(); len(got) != 0 {
		t.Fatalf("task still listed after stop: %v", got)
	}
}
