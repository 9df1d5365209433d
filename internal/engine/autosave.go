package engine

import (
	"context"
	"log"
	"sync"
	"time"
)

// Autosaver coalesces session checkpoints: each Offer snapshots the session
// and (re)arms a debounce timer, so a burst of node advances produces one
// checkpoint rather than one per mutation. Saves are best-effort; a failed
// checkpoint is logged and play continues.
type Autosaver struct {
	store    SessionStore
	debounce time.Duration

	mu      sync.Mutex
	pending map[string]*Session
	timers  map[string]*time.Timer
	closed  bool
}

// NewAutosaver creates an Autosaver writing through the given store.
// A non-positive debounce saves immediately on every Offer.
func NewAutosaver(store SessionStore, debounce time.Duration) *Autosaver {
	return &Autosaver{
		store:    store,
		debounce: debounce,
		pending:  make(map[string]*Session),
		timers:   make(map[string]*time.Timer),
	}
}

// Offer schedules a checkpoint of the session's current state. The session
// is snapshotted now; later mutations do not leak into the pending save.
func (a *Autosaver) Offer(s *Session) {
	snapshot := s.Clone()

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return
	}

	a.pending[snapshot.ID] = snapshot

	if a.debounce <= 0 {
		go a.save(snapshot.ID)
		return
	}

	if timer, ok := a.timers[snapshot.ID]; ok {
		timer.Reset(a.debounce)
		return
	}
	id := snapshot.ID
	a.timers[id] = time.AfterFunc(a.debounce, func() { a.save(id) })
}

// Cancel drops any pending checkpoint for the session. Used before a
// finalize save so a stale checkpoint cannot land afterwards.
func (a *Autosaver) Cancel(sessionID string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if timer, ok := a.timers[sessionID]; ok {
		timer.Stop()
		delete(a.timers, sessionID)
	}
	delete(a.pending, sessionID)
}

// Flush saves all pending checkpoints immediately.
func (a *Autosaver) Flush() {
	a.mu.Lock()
	for id, timer := range a.timers {
		timer.Stop()
		delete(a.timers, id)
	}
	ids := make([]string, 0, len(a.pending))
	for id := range a.pending {
		ids = append(ids, id)
	}
	a.mu.Unlock()

	for _, id := range ids {
		a.save(id)
	}
}

// Close flushes pending checkpoints and stops accepting new offers.
func (a *Autosaver) Close() {
	a.mu.Lock()
	a.closed = true
	a.mu.Unlock()
	a.Flush()
}

func (a *Autosaver) save(sessionID string) {
	a.mu.Lock()
	snapshot, ok := a.pending[sessionID]
	delete(a.pending, sessionID)
	delete(a.timers, sessionID)
	a.mu.Unlock()
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), bestEffortTimeout)
	defer cancel()
	if err := a.store.Checkpoint(ctx, snapshot); err != nil {
		log.Printf("session %s: checkpoint failed: %v", sessionID, err)
	}
}
