package sessions

import (
	"context"
	"sync/atomic"
	"testing"
	"time"
)

func TestTracker_RegisterUnregisterCount(t *testing.T) {
	tr := NewTracker()
	if tr.Count() != 0 {
		t.Fatalf("initial count=%d, want 0", tr.Count())
	}

	u1 := tr.Register("s1", "198.51.100.1", Handle{})
	u2 := tr.Register("s2", "198.51.100.2", Handle{})
	if tr.Count() != 2 {
		t.Fatalf("count=%d, want 2", tr.Count())
	}

	u1()
	if tr.Count() != 1 {
		t.Fatalf("count=%d, want 1", tr.Count())
	}

	u2()
	if tr.Count() != 0 {
		t.Fatalf("count=%d, want 0", tr.Count())
	}
}

func TestTracker_UnregisterIdempotent(t *testing.T) {
	tr := NewTracker()
	u := tr.Register("s1", "198.51.100.1", Handle{})
	u()
	u()
	if tr.Count() != 0 {
		t.Fatalf("count=%d, want 0", tr.Count())
	}
}

func TestTracker_DuplicateIDReplacesOld(t *testing.T) {
	tr := NewTracker()
	var stopped atomic.Int64
	tr.Register("s1", "198.51.100.1", Handle{Stop: func() { stopped.Add(1) }})
	u2 := tr.Register("s1", "198.51.100.1", Handle{})

	if tr.Count() != 1 {
		t.Fatalf("count=%d, want 1", tr.Count())
	}

	u2()
	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	if _, stragglers := tr.Drain(ctx, "draining", "restart"); len(stragglers) != 0 {
		t.Fatalf("replaced entry should not block drain, stragglers=%v", stragglers)
	}
}

func TestTracker_LiveOldestFirst(t *testing.T) {
	tr := NewTracker()
	times := []time.Time{
		time.Date(2026, 8, 31, 10, 0, 5, 0, time.UTC),
		time.Date(2026, 8, 31, 10, 0, 1, 0, time.UTC),
		time.Date(2026, 8, 31, 10, 0, 3, 0, time.UTC),
	}
	i := 0
	tr.now = func() time.Time { ts := times[i]; i++; return ts }

	tr.Register("s1", "198.51.100.1", Handle{})
	tr.Register("s2", "198.51.100.2", Handle{})
	tr.Register("s3", "198.51.100.3", Handle{})

	live := tr.Live()
	if len(live) != 3 {
		t.Fatalf("live=%d, want 3", len(live))
	}
	if live[0].ID != "s2" || live[1].ID != "s3" || live[2].ID != "s1" {
		t.Fatalf("order = %s,%s,%s, want s2,s3,s1", live[0].ID, live[1].ID, live[2].ID)
	}
	if live[0].ClientIP != "198.51.100.2" {
		t.Fatalf("client ip = %q", live[0].ClientIP)
	}
}

func TestTracker_StopAll(t *testing.T) {
	tr := NewTracker()
	var s1, s2 atomic.Int64
	tr.Register("s1", "198.51.100.1", Handle{Stop: func() { s1.Add(1) }})
	tr.Register("s2", "198.51.100.2", Handle{Stop: func() { s2.Add(1) }})

	if n := tr.StopAll(); n != 2 {
		t.Fatalf("stopped=%d, want 2", n)
	}
	if s1.Load() != 1 || s2.Load() != 1 {
		t.Fatalf("stop calls=%d/%d, want 1/1", s1.Load(), s2.Load())
	}
}

func TestTracker_DrainNotifiesAndCompletes(t *testing.T) {
	tr := NewTracker()
	var got atomic.Int64
	var u1 func()
	u1 = tr.Register("s1", "198.51.100.1", Handle{Notify: func(code, message string) error {
		if code != "draining" {
			t.Errorf("code=%q", code)
		}
		got.Add(1)
		// the session hangs up once told
		go u1()
		return nil
	}})
	u2 := tr.Register("s2", "198.51.100.2", Handle{})
	u2()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	notified, stragglers := tr.Drain(ctx, "draining", "server restarting")
	if notified != 1 {
		t.Fatalf("notified=%d, want 1", notified)
	}
	if len(stragglers) != 0 {
		t.Fatalf("stragglers=%v, want none", stragglers)
	}
	if got.Load() != 1 {
		t.Fatalf("notify calls=%d, want 1", got.Load())
	}
}

func TestTracker_DrainReportsStragglers(t *testing.T) {
	tr := NewTracker()
	_ = tr.Register("s1", "198.51.100.1", Handle{})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, stragglers := tr.Drain(ctx, "draining", "server restarting")
	if len(stragglers) != 1 || stragglers[0].ID != "s1" {
		t.Fatalf("stragglers=%v, want s1", stragglers)
	}
}
