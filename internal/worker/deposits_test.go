package worker

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Fi44er/giftcase/internal/service"
	"github.com/Fi44er/giftcase/utils"
)

type countingReconciler struct {
	calls atomic.Int32
	err   error
}

func (c *countingReconciler) ReconcileDeposits(ctx context.Context) (*service.ReconcileReport, error) {
	c.calls.Add(1)
	if _, ok := ctx.Deadline(); !ok {
		return nil, errors.New("expected a deadline on the pass")
	}
	return &service.ReconcileReport{Pending: 1}, c.err
}

func TestPollerRunsUntilCancelled(t *testing.T) {
	rec := &countingReconciler{}
	p := NewDepositPoller(rec, utils.NopLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		p.Start(ctx, 10*time.Millisecond)
		close(done)
	}()

	deadline := time.After(2 * time.Second)
	for rec.calls.Load() < 3 {
		select {
		case <-deadline:
			t.Fatalf("expected at least 3 passes, got %d", rec.calls.Load())
		case <-time.After(5 * time.Millisecond):
		}
	}
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("expected poller to stop after cancel")
	}
}

func TestRunOnceSurvivesErrors(t *testing.T) {
	rec := &countingReconciler{err: service.ErrExternalTransient}
	p := NewDepositPoller(rec, utils.NopLogger())

	p.RunOnce(context.Background())
	p.RunOnce(context.Background())
	if rec.calls.Load() != 2 {
		t.Fatalf("expected 2 calls, got %d", rec.calls.Load())
	}
}
