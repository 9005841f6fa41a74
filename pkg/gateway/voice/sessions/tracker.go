// Package sessions tracks live voice sessions so the server can drain
// them during shutdown and report on the ones that will not go quietly.
package sessions

import (
	"context"
	"sort"
	"sync"
	"time"
)

// Handle is what a running session exposes to the tracker. Notify sends a
// gateway event to the client; Stop tears the session down.
type Handle struct {
	Stop   func()
	Notify func(code, message string) error
}

// Info describes one live session: who is connected and for how long.
type Info struct {
	ID        string
	ClientIP  string
	StartedAt time.Time
}

type trackedSession struct {
	handle Handle
	info   Info
	once   sync.Once
}

// Tracker is a registry of live sessions. The zero value is not usable;
// call NewTracker.
type Tracker struct {
	now func() time.Time

	mu       sync.Mutex
	sessions map[string]*trackedSession
	wg       sync.WaitGroup
}

func NewTracker() *Tracker {
	return &Tracker{
		now:      time.Now,
		sessions: make(map[string]*trackedSession),
	}
}

// Register adds a session and returns its unregister func. Registering a
// duplicate ID replaces and unregisters the old entry.
func (t *Tracker) Register(sessionID, clientIP string, h Handle) (unregister func()) {
	if t == nil {
		return func() {}
	}

	now := t.now
	if now == nil {
		now = time.Now
	}
	entry := &trackedSession{
		handle: h,
		info:   Info{ID: sessionID, ClientIP: clientIP, StartedAt: now()},
	}

	t.mu.Lock()
	if t.sessions == nil {
		t.sessions = make(map[string]*trackedSession)
	}
	old := t.sessions[sessionID]
	t.sessions[sessionID] = entry
	t.wg.Add(1)
	t.mu.Unlock()

	if old != nil {
		t.unregister(sessionID, old)
	}

	return func() { t.unregister(sessionID, entry) }
}

func (t *Tracker) unregister(sessionID string, entry *trackedSession) {
	if t == nil || entry == nil {
		return
	}
	entry.once.Do(func() {
		t.mu.Lock()
		if t.sessions != nil && t.sessions[sessionID] == entry {
			delete(t.sessions, sessionID)
		}
		t.mu.Unlock()
		t.wg.Done()
	})
}

// Count reports the number of live sessions.
func (t *Tracker) Count() int {
	if t == nil {
		return 0
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.sessions)
}

// Live lists the sessions still registered, oldest first.
func (t *Tracker) Live() []Info {
	if t == nil {
		return nil
	}
	t.mu.Lock()
	out := make([]Info, 0, len(t.sessions))
	for _, entry := range t.sessions {
		out = append(out, entry.info)
	}
	t.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.Before(out[j].StartedAt) })
	return out
}

// Drain notifies every live session that the server is going away, then
// waits for them to finish until ctx ends. It returns how many sessions
// were notified and which ones were still live when the wait gave up;
// an empty straggler list means the drain completed.
func (t *Tracker) Drain(ctx context.Context, code, message string) (notified int, stragglers []Info) {
	if t == nil {
		return 0, nil
	}

	var notifies []func(code, message string) error
	t.mu.Lock()
	for _, entry := range t.sessions {
		if entry == nil || entry.handle.Notify == nil {
			continue
		}
		notifies = append(notifies, entry.handle.Notify)
	}
	t.mu.Unlock()

	for _, notify := range notifies {
		_ = notify(code, message)
		notified++
	}

	if t.wait(ctx) {
		return notified, nil
	}
	return notified, t.Live()
}

// StopAll tears down every live session.
func (t *Tracker) StopAll() (stopped int) {
	if t == nil {
		return 0
	}

	var stops []func()
	t.mu.Lock()
	for _, entry := range t.sessions {
		if entry == nil || entry.handle.Stop == nil {
			continue
		}
		stops = append(stops, entry.handle.Stop)
	}
	t.mu.Unlock()

	for _, stop := range stops {
		stop()
		stopped++
	}
	return stopped
}

// wait blocks until every registered session has unregistered, or ctx
// ends. It reports whether the drain completed.
func (t *Tracker) wait(ctx context.Context) bool {
	if ctx == nil {
		t.wg.Wait()
		return true
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		t.wg.Wait()
	}()

	select {
	case <-done:
		return true
	case <-ctx.Done():
		return false
	}
}
