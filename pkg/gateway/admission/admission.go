// Package admission decides whether a new voice session may start for a
// given client IP. Two independent checks apply: a cap on concurrently
// active sessions and a rolling one-hour cap on session starts. Both are
// kept in an injected Store so handlers never touch package globals.
package admission

import (
	"sync"
	"time"
)

// Window is the span of the rolling start-rate check.
const Window = time.Hour

// Config bounds admission per client IP. Zero values fall back to the
// defaults below.
type Config struct {
	MaxConcurrent int
	MaxPerWindow  int
}

const (
	DefaultMaxConcurrent = 2
	DefaultMaxPerWindow  = 10
)

func (c Config) withDefaults() Config {
	if c.MaxConcurrent <= 0 {
		c.MaxConcurrent = DefaultMaxConcurrent
	}
	if c.MaxPerWindow <= 0 {
		c.MaxPerWindow = DefaultMaxPerWindow
	}
	return c
}

// Decision is the outcome of an admission check. When Allowed is true the
// caller holds a Permit and must Release it exactly once when the session
// ends; counters only move on these confirmed transitions.
type Decision struct {
	Allowed bool
	Reason  string
	Permit  *Permit
}

// Permit represents one admitted, running session.
type Permit struct {
	store *Store
	ip    string
	once  sync.Once
}

// Release marks the session ended. Safe to call more than once.
func (p *Permit) Release() {
	if p == nil {
		return
	}
	p.once.Do(func() { p.store.release(p.ip) })
}

type entry struct {
	active int
	starts []time.Time
}

// Store tracks per-IP admission state. Safe for concurrent use.
type Store struct {
	mu  sync.Mutex
	cfg Config
	now func() time.Time
	ips map[string]*entry
}

// NewStore builds a Store. now may be nil, in which case time.Now is used.
func NewStore(cfg Config, now func() time.Time) *Store {
	if now == nil {
		now = time.Now
	}
	return &Store{
		cfg: cfg.withDefaults(),
		now: now,
		ips: make(map[string]*entry),
	}
}

// Acquire checks both limits for ip and, when admitted, records the start
// and returns a Permit. A denied decision records nothing.
func (s *Store) Acquire(ip string) Decision {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	e := s.ips[ip]
	if e == nil {
		e = &entry{}
		s.ips[ip] = e
	}
	e.starts = pruneBefore(e.starts, now.Add(-Window))

	if e.active >= s.cfg.MaxConcurrent {
		s.dropIfIdle(ip, e)
		return Decision{Reason: "too many concurrent sessions"}
	}
	if len(e.starts) >= s.cfg.MaxPerWindow {
		s.dropIfIdle(ip, e)
		return Decision{Reason: "hourly session limit reached"}
	}

	e.active++
	e.starts = append(e.starts, now)
	return Decision{Allowed: true, Permit: &Permit{store: s, ip: ip}}
}

func (s *Store) release(ip string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.ips[ip]
	if e == nil {
		return
	}
	if e.active > 0 {
		e.active--
	}
	s.dropIfIdle(ip, e)
}

// Active reports the number of running sessions for ip.
func (s *Store) Active(ip string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.ips[ip]
	if e == nil {
		return 0
	}
	return e.active
}

// GC drops entries with no active sessions and no starts inside the
// window. Called periodically so idle IPs do not accumulate.
func (s *Store) GC() {
	s.mu.Lock()
	defer s.mu.Unlock()
	cutoff := s.now().Add(-Window)
	for ip, e := range s.ips {
		e.starts = pruneBefore(e.starts, cutoff)
		s.dropIfIdle(ip, e)
	}
}

// dropIfIdle must run with s.mu held.
func (s *Store) dropIfIdle(ip string, e *entry) {
	if e.active == 0 && len(e.starts) == 0 {
		delete(s.ips, ip)
	}
}

func pruneBefore(starts []time.Time, cutoff time.Time) []time.Time {
	i := 0
	for i < len(starts) && !starts[i].After(cutoff) {
		i++
	}
	if i == 0 {
		return starts
	}
	return append(starts[:0], starts[i:]...)
}
