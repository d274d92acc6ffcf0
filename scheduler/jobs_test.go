package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"price_digest/services/dispatcher"
)

type fakeRunner struct {
	err   error
	calls int
	ctx   context.Context
}

func (f *fakeRunner) Run(ctx context.Context) (dispatcher.RunSummary, error) {
	f.calls++
	f.ctx = ctx
	return dispatcher.RunSummary{RunID: "run-1"}, f.err
}

func TestStartRegistersDigestJob(t *testing.T) {
	s := NewScheduler(&fakeRunner{}, 0, nil)
	if err := s.Start("07:30"); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer s.Stop()

	if n := s.cron.Len(); n != 1 {
		t.Fatalf("jobs = %d, want 1", n)
	}
	next := s.cron.Jobs()[0].NextRun().UTC()
	if next.Hour() != 7 || next.Minute() != 30 {
		t.Errorf("next run = %s", next)
	}
}

func TestStartRejectsBadTime(t *testing.T) {
	s := NewScheduler(&fakeRunner{}, 0, nil)
	if err := s.Start("25:99"); err == nil {
		t.Fatal("expected error")
	}
}

func TestRunDigest(t *testing.T) {
	for _, err := range []error{nil, dispatcher.ErrRunInProgress, errors.New("roster down")} {
		r := &fakeRunner{err: err}
		s := NewScheduler(r, time.Minute, nil)
		s.runDigest()
		if r.calls != 1 {
			t.Errorf("err=%v: calls = %d", err, r.calls)
		}
		if _, ok := r.ctx.Deadline(); !ok {
			t.Errorf("err=%v: run context has no deadline", err)
		}
	}
}

func TestStopCancelsRunContext(t *testing.T) {
	r := &fakeRunner{}
	s := NewScheduler(r, 0, nil)
	s.Stop()
	s.runDigest()
	if r.ctx.Err() == nil {
		t.Error("expected cancelled context after Stop")
	}
}
