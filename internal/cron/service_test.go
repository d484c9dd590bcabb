package cron

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/angelmondragon/convtrack-backend/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus"
)

type fakeLock struct {
	acquired bool
	released int
}

func (f *fakeLock) Acquire(context.Context) (bool, error) {
	if f.acquired {
		return false, nil
	}
	f.acquired = true
	return true, nil
}

func (f *fakeLock) Release(context.Context) error {
	f.acquired = false
	f.released++
	return nil
}

type testJob struct {
	name     string
	err      error
	runs     int
	deadline time.Time
}

func (t *testJob) Name() string { return t.name }

func (t *testJob) Run(ctx context.Context) error {
	t.runs++
	t.deadline, _ = ctx.Deadline()
	return t.err
}

func TestServiceRunOnceRunsAllJobsEvenOnFailure(t *testing.T) {
	success := &testJob{name: "success"}
	failure := &testJob{name: "fail", err: errors.New("boom")}
	registry, err := NewRegistry(success, failure)
	if err != nil {
		t.Fatalf("registry: %v", err)
	}
	lock := &fakeLock{}
	cronMetrics := metrics.NewCronJobMetrics(prometheus.NewRegistry())
	service, err := NewService(ServiceParams{
		Logger:   newTestLogger(),
		Registry: registry,
		Lock:     lock,
		Metrics:  cronMetrics,
	})
	if err != nil {
		t.Fatalf("construct service: %v", err)
	}
	if err := service.RunOnce(context.Background()); err != nil {
		t.Fatalf("run once: %v", err)
	}
	if success.runs != 1 || failure.runs != 1 {
		t.Fatalf("expected each job once, got %d and %d", success.runs, failure.runs)
	}
	if lock.released != 1 {
		t.Fatalf("expected lock released once, got %d", lock.released)
	}
}

func TestServiceRunOnceSkipsWhenLocked(t *testing.T) {
	job := &testJob{name: "poll"}
	registry, _ := NewRegistry(job)
	service, err := NewService(ServiceParams{
		Logger:   newTestLogger(),
		Registry: registry,
		Lock:     &fakeLock{acquired: true},
	})
	if err != nil {
		t.Fatalf("construct service: %v", err)
	}
	if err := service.RunOnce(context.Background()); err != nil {
		t.Fatalf("run once: %v", err)
	}
	if job.runs != 0 {
		t.Fatalf("expected no runs while another instance holds the lock, got %d", job.runs)
	}
}

func TestServiceRunStopsOnCancel(t *testing.T) {
	job := &testJob{name: "poll"}
	registry, _ := NewRegistry(job)
	service, _ := NewService(ServiceParams{Logger: newTestLogger(), Registry: registry, Lock: &fakeLock{}})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := service.Run(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context canceled, got %v", err)
	}
}

func TestServiceBoundsJobsByTimeout(t *testing.T) {
	job := &testJob{name: "poll"}
	registry, _ := NewRegistry(job)
	service, err := NewService(ServiceParams{
		Logger:     newTestLogger(),
		Registry:   registry,
		Lock:       &fakeLock{},
		Interval:   time.Hour,
		JobTimeout: time.Minute,
	})
	if err != nil {
		t.Fatalf("construct service: %v", err)
	}
	before := time.Now()
	if err := service.RunOnce(context.Background()); err != nil {
		t.Fatalf("run once: %v", err)
	}
	if job.deadline.IsZero() || job.deadline.Sub(before) > time.Minute+time.Second {
		t.Fatalf("expected a one minute deadline, got %v", job.deadline)
	}
}

func TestNewServiceDefaults(t *testing.T) {
	service, err := NewService(ServiceParams{Logger: newTestLogger(), Lock: &fakeLock{}, JobTimeout: 2 * time.Hour})
	if err != nil {
		t.Fatalf("construct service: %v", err)
	}
	if service.Interval != defaultInterval || service.JobTimeout != defaultInterval {
		t.Fatalf("unexpected defaults interval=%v timeout=%v", service.Interval, service.JobTimeout)
	}
}

func TestNewServiceValidates(t *testing.T) {
	if _, err := NewService(ServiceParams{Lock: &fakeLock{}}); err == nil {
		t.Fatal("expected logger error")
	}
	if _, err := NewService(ServiceParams{Logger: newTestLogger()}); err == nil {
		t.Fatal("expected lock error")
	}
}
