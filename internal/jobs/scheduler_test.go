package jobs

import (
	"context"
	"errors"
	"testing"
	"time"
)

type stubJob struct {
	next time.Time
	runs int
	err  error
}

func (j *stubJob) Run(ctx context.Context) error {
	j.runs++
	return j.err
}

func (j *stubJob) GetNextRunTime() time.Time {
	return j.next
}

func TestRunNowExecutesRegisteredJob(t *testing.T) {
	scheduler := NewJobScheduler()
	job := &stubJob{next: time.Now().Add(time.Hour)}
	scheduler.Register("stub", job)

	if err := scheduler.RunNow("stub"); err != nil {
		t.Fatalf("RunNow failed: %v", err)
	}
	if job.runs != 1 {
		t.Errorf("expected 1 run, got %d", job.runs)
	}
}

func TestRunNowUnknownJob(t *testing.T) {
	scheduler := NewJobScheduler()

	if err := scheduler.RunNow("missing"); err == nil {
		t.Error("expected error for unregistered job")
	}
}

func TestRunNowPropagatesJobError(t *testing.T) {
	scheduler := NewJobScheduler()
	jobErr := errors.New("boom")
	scheduler.Register("failing", &stubJob{next: time.Now().Add(time.Hour), err: jobErr})

	if err := scheduler.RunNow("failing"); !errors.Is(err, jobErr) {
		t.Errorf("expected job error, got %v", err)
	}
}

func TestGetStatusReportsNextRunTimes(t *testing.T) {
	scheduler := NewJobScheduler()
	next := time.Now().Add(30 * time.Minute)
	scheduler.Register("nightly", &stubJob{next: next})

	status := scheduler.GetStatus()
	if len(status) != 1 {
		t.Fatalf("expected 1 job, got %d", len(status))
	}
	entry, ok := status["nightly"]
	if !ok {
		t.Fatal("expected 'nightly' in status")
	}
	if entry.Name != "nightly" || !entry.NextRunTime.Equal(next) {
		t.Errorf("unexpected status entry: %+v", entry)
	}
}
