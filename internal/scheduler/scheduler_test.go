package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestStartSchedulesJobs(t *testing.T) {
	noop := func(context.Context) error { return nil }
	s := New(time.UTC, []Job{
		{Name: "stations", Spec: "*/10 * * * *", Run: noop},
		{Name: "health", Spec: "0 */6 * * *", Run: noop},
	})
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer s.Stop()

	if s.Len() != 2 {
		t.Fatalf("expected 2 jobs, got %d", s.Len())
	}
}

func TestStartRejectsBadSpec(t *testing.T) {
	s := New(nil, []Job{{Name: "broken", Spec: "not a cron", Run: func(context.Context) error { return nil }}})
	if err := s.Start(context.Background()); err == nil {
		s.Stop()
		t.Fatal("expected invalid cron spec to fail")
	}
}

func TestRunJob(t *testing.T) {
	type key struct{}
	ctx := context.WithValue(context.Background(), key{}, "v")

	var got any
	err := RunJob(ctx, Job{Name: "ok", Run: func(ctx context.Context) error {
		got = ctx.Value(key{})
		return nil
	}})
	if err != nil || got != "v" {
		t.Fatalf("expected job to run with ctx, got %v (%v)", got, err)
	}

	boom := errors.New("boom")
	if err := RunJob(ctx, Job{Name: "fails", Run: func(context.Context) error { return boom }}); !errors.Is(err, boom) {
		t.Fatalf("expected job error, got %v", err)
	}

	err = RunJob(ctx, Job{Name: "panics", Run: func(context.Context) error { panic("bad") }})
	if err == nil {
		t.Fatal("expected panic to be reported as an error")
	}
}
