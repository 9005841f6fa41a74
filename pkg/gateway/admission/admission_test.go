package admission

import (
	"testing"
	"time"
)

type fakeClock struct {
	t time.Time
}

func (f *fakeClock) now() time.Time          { return f.t }
func (f *fakeClock) advance(d time.Duration) { f.t = f.t.Add(d) }

func newTestStore(cfg Config) (*Store, *fakeClock) {
	clk := &fakeClock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	return NewStore(cfg, clk.now), clk
}

func TestConcurrencyLimit(t *testing.T) {
	s, _ := newTestStore(Config{MaxConcurrent: 2, MaxPerWindow: 100})

	d1 := s.Acquire("10.0.0.1")
	d2 := s.Acquire("10.0.0.1")
	if !d1.Allowed || !d2.Allowed {
		t.Fatal("first two sessions should be admitted")
	}
	if d := s.Acquire("10.0.0.1"); d.Allowed {
		t.Fatal("third concurrent session should be denied")
	}

	// another IP is unaffected
	if d := s.Acquire("10.0.0.2"); !d.Allowed {
		t.Fatal("other IP should be admitted")
	}

	d1.Permit.Release()
	if d := s.Acquire("10.0.0.1"); !d.Allowed {
		t.Fatal("release should free a concurrency slot")
	}
}

func TestReleaseIdempotent(t *testing.T) {
	s, _ := newTestStore(Config{MaxConcurrent: 1, MaxPerWindow: 100})
	d := s.Acquire("10.0.0.1")
	d.Permit.Release()
	d.Permit.Release()
	if got := s.Active("10.0.0.1"); got != 0 {
		t.Fatalf("active = %d after double release, want 0", got)
	}
}

func TestRollingWindow(t *testing.T) {
	s, clk := newTestStore(Config{MaxConcurrent: 100, MaxPerWindow: 3})

	for i := 0; i < 3; i++ {
		d := s.Acquire("10.0.0.1")
		if !d.Allowed {
			t.Fatalf("start %d should be admitted", i)
		}
		d.Permit.Release()
		clk.advance(10 * time.Minute)
	}
	if d := s.Acquire("10.0.0.1"); d.Allowed {
		t.Fatal("fourth start inside the window should be denied")
	}

	// first start falls out of the window after enough time
	clk.advance(31 * time.Minute)
	if d := s.Acquire("10.0.0.1"); !d.Allowed {
		t.Fatal("start should be admitted once the oldest entry expires")
	}
}

func TestDeniedAcquireRecordsNothing(t *testing.T) {
	s, clk := newTestStore(Config{MaxConcurrent: 1, MaxPerWindow: 10})
	d := s.Acquire("10.0.0.1")
	for i := 0; i < 20; i++ {
		if got := s.Acquire("10.0.0.1"); got.Allowed {
			t.Fatal("should be denied while a session is active")
		}
	}
	d.Permit.Release()
	clk.advance(time.Minute)
	// only one start counted despite 20 denials
	for i := 0; i < 9; i++ {
		got := s.Acquire("10.0.0.1")
		if !got.Allowed {
			t.Fatalf("start %d should be admitted", i)
		}
		got.Permit.Release()
	}
}

func TestGC(t *testing.T) {
	s, clk := newTestStore(Config{MaxConcurrent: 2, MaxPerWindow: 10})
	d := s.Acquire("10.0.0.1")
	d.Permit.Release()
	clk.advance(Window + time.Minute)
	s.GC()
	s.mu.Lock()
	n := len(s.ips)
	s.mu.Unlock()
	if n != 0 {
		t.Fatalf("entries = %d after GC, want 0", n)
	}
}

func TestDefaults(t *testing.T) {
	cfg := Config{}.withDefaults()
	if cfg.MaxConcurrent != DefaultMaxConcurrent || cfg.MaxPerWindow != DefaultMaxPerWindow {
		t.Fatalf("defaults = %+v", cfg)
	}
}
