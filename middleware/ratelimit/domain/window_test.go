package domain

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestWindow_Expired(t *testing.T) {
	start := time.Unix(1000, 0)
	w := Window{Start: start, Count: 3}

	if w.Expired(start.Add(999*time.Millisecond), time.Second) {
		t.Fatalf("expected window to be active before its size elapses")
	}
	if !w.Expired(start.Add(time.Second), time.Second) {
		t.Fatalf("expected window to expire exactly at start+size")
	}
}

type recordingStats struct {
	calls int
	err   error
}

func (r *recordingStats) Record(context.Context, StatsEvent) error {
	r.calls++
	return r.err
}

func TestMultiStats_RecordsAllAndReturnsFirstError(t *testing.T) {
	errA := errors.New("a")
	a := &recordingStats{err: errA}
	b := &recordingStats{err: errors.New("b")}
	c := &recordingStats{}

	err := MultiStats{a, nil, b, c}.Record(context.Background(), StatsEvent{Key: "k"})
	if !errors.Is(err, errA) {
		t.Fatalf("expected first error, got %v", err)
	}
	if a.calls != 1 || b.calls != 1 || c.calls != 1 {
		t.Fatalf("expected every store to be called once, got %d/%d/%d", a.calls, b.calls, c.calls)
	}
}
