package presence

import (
	"errors"
	"sync"
	"time"

	"kawan/store"
	"kawan/utils"

	"github.com/bep/debounce"
)

// I_Writer persists a presence value for one user. Recreate is the
// self-heal path used when the record is missing or the write was
// rejected: it re-inserts the record with default fields plus the
// requested presence.
type I_Writer interface {
	WritePresence(online bool, lastSeen time.Time) error
	Recreate(online bool) error
}

// Tracker coalesces presence writes for a single session. Non-immediate
// updates pass a debounce window; while a write is in flight the newest
// requested value sits in a one-slot mailbox and is applied a beat after
// the in-flight write completes, so the persisted state always converges
// to the last requested value without write amplification.
type Tracker struct {
	writer I_Writer

	debounceWait time.Duration
	retryDelay   time.Duration
	idleTimeout  time.Duration

	mu        sync.Mutex
	debounced func(f func())
	gen       uint64  // bumped per requested value, stale writes are skipped
	pending   *update // latest value inside the debounce window
	inflight  bool
	queued    *update // one-slot mailbox, newest wins
	idleTimer *time.Timer
	closed    bool

	wmu sync.Mutex // serializes the actual store writes
}

// update is a requested presence value tagged with the generation it
// was requested at, so a write that lost a race to a newer request can
// be recognized and dropped instead of persisting last.
type update struct {
	online bool
	gen    uint64
}

func NewTracker(writer I_Writer) *Tracker {
	return NewTrackerWithDelays(writer, DebounceWait, RetryDelay, IdleTimeout)
}

// NewTrackerWithDelays exists so tests can shrink the windows.
func NewTrackerWithDelays(writer I_Writer, debounceWait, retryDelay, idleTimeout time.Duration) *Tracker {
	return &Tracker{
		writer:       writer,
		debounceWait: debounceWait,
		retryDelay:   retryDelay,
		idleTimeout:  idleTimeout,
		debounced:    debounce.New(debounceWait),
	}
}

// SetPresence requests a presence change. Immediate writes (sign-in and
// sign-out paths) apply synchronously, serialized against any in-flight
// write. Non-immediate writes are coalesced; only the most recent value
// in the window reaches the store.
func (me *Tracker) SetPresence(online bool, immediate bool) error {
	me.mu.Lock()
	if me.closed && !immediate {
		me.mu.Unlock()
		return nil
	}

	me.gen++
	u := update{online: online, gen: me.gen}

	if immediate {
		// drop anything staged, this value supersedes it
		me.pending = nil
		me.queued = nil
		me.mu.Unlock()
		return me.write(u)
	}

	me.pending = &u
	me.mu.Unlock()

	me.debounced(me.flush)
	return nil
}

// Activity marks the user active: a coalesced online update now and an
// inactivity timer that forces immediate offline if nothing else comes
// in. Every signal restarts the timer.
func (me *Tracker) Activity() {
	_ = me.SetPresence(true, false)

	me.mu.Lock()
	if me.closed {
		me.mu.Unlock()
		return
	}
	if me.idleTimer != nil {
		me.idleTimer.Stop()
	}
	me.idleTimer = time.AfterFunc(me.idleTimeout, func() {
		_ = me.SetPresence(false, true)
	})
	me.mu.Unlock()
}

// Shutdown stops the timers and forces an immediate offline write.
// Safe to call more than once.
func (me *Tracker) Shutdown() {
	me.mu.Lock()
	if me.closed {
		me.mu.Unlock()
		return
	}
	me.closed = true
	if me.idleTimer != nil {
		me.idleTimer.Stop()
		me.idleTimer = nil
	}
	me.pending = nil
	me.queued = nil
	me.gen++
	u := update{online: false, gen: me.gen}
	me.mu.Unlock()

	_ = me.write(u)
}

func (me *Tracker) flush() {
	me.mu.Lock()
	if me.pending == nil || me.closed {
		me.mu.Unlock()
		return
	}
	u := *me.pending
	me.pending = nil
	me.mu.Unlock()

	me.runWrite(u)
}

func (me *Tracker) runWrite(u update) {
	me.mu.Lock()
	if me.inflight {
		// newest wins, an older queued value is discarded
		me.queued = &u
		me.mu.Unlock()
		return
	}
	me.inflight = true
	me.mu.Unlock()

	if err := me.write(u); err != nil {
		utils.Log().Error(err, "presence write failed, state stays stale")
	}

	me.mu.Lock()
	me.inflight = false
	q := me.queued
	me.queued = nil
	closed := me.closed
	me.mu.Unlock()

	if q != nil && !closed {
		time.AfterFunc(me.retryDelay, func() { me.runWrite(*q) })
	}
}

func (me *Tracker) write(u update) error {
	me.wmu.Lock()
	defer me.wmu.Unlock()

	// a newer request may have won the race for the store lock; this
	// value is already superseded, persisting it would roll state back
	me.mu.Lock()
	stale := u.gen < me.gen
	me.mu.Unlock()
	if stale {
		return nil
	}

	err := me.writer.WritePresence(u.online, time.Now())
	if err == nil {
		return nil
	}

	if errors.Is(err, store.ErrNotFound) || errors.Is(err, store.ErrPermissionDenied) {
		utils.Log().V(2).Info("presence target missing or rejected, recreating record")
		if rerr := me.writer.Recreate(u.online); rerr != nil {
			utils.Log().Error(rerr, "presence self-heal failed")
			return rerr
		}
		return nil
	}

	return err
}
