package session

import (
	"sync"

	"kawan/auth"
	"kawan/components/presence"
	"kawan/utils"
)

// Event announces a sign-in or sign-out to interested listeners.
type Event struct {
	UID      string `json:"uid"`
	SignedIn bool   `json:"signedIn"`
}

// Session holds everything tied to one signed-in user: the verified
// identity, the presence tracker, and the cancel funcs of every live
// subscription opened on its behalf. Close runs each cancel exactly
// once and shuts the tracker down.
type Session struct {
	Identity auth.Identity
	JWT      string
	Tracker  *presence.Tracker

	mu      sync.Mutex
	cancels []func()
	closed  bool
}

func (me *Session) UID() string {
	return me.Identity.UID
}

// AddCancel registers a subscription teardown. If the session already
// closed, the func runs immediately so no handle leaks.
func (me *Session) AddCancel(cancel func()) {
	me.mu.Lock()
	if me.closed {
		me.mu.Unlock()
		cancel()
		return
	}
	me.cancels = append(me.cancels, cancel)
	me.mu.Unlock()
}

func (me *Session) Close() {
	me.mu.Lock()
	if me.closed {
		me.mu.Unlock()
		return
	}
	me.closed = true
	cancels := me.cancels
	me.cancels = nil
	me.mu.Unlock()

	for _, cancel := range cancels {
		cancel()
	}
	if me.Tracker != nil {
		me.Tracker.Shutdown()
	}
}

// WriterFactory builds the presence writer for an identity; injected
// from the composition root so this package stays store-agnostic.
type WriterFactory func(identity *auth.Identity) presence.I_Writer

// Manager tracks the active session per user. A fresh sign-in for a uid
// replaces (and fully closes) any prior session, so stale subscription
// handles from a previous connection never outlive it.
type Manager struct {
	mu        sync.Mutex
	active    map[string]*Session
	newWriter WriterFactory
	events    chan Event
}

func NewManager(newWriter WriterFactory) *Manager {
	return &Manager{
		active:    make(map[string]*Session),
		newWriter: newWriter,
		events:    make(chan Event, 16),
	}
}

// SignIn opens a session for the identity, closing any prior one for
// the same uid first. Unless the user opted to appear offline, the
// tracker asserts online immediately.
func (me *Manager) SignIn(identity *auth.Identity, jwt string, appearOffline bool) *Session {
	me.mu.Lock()
	prior := me.active[identity.UID]
	delete(me.active, identity.UID)
	me.mu.Unlock()

	if prior != nil {
		utils.Log().V(1).Info("replacing active session " + identity.UID)
		prior.Close()
	}

	s := &Session{
		Identity: *identity,
		JWT:      jwt,
		Tracker:  presence.NewTracker(me.newWriter(identity)),
	}

	if !appearOffline {
		if err := s.Tracker.SetPresence(true, true); err != nil {
			utils.Log().Error(err, "sign-in presence write failed")
		}
	}

	me.mu.Lock()
	me.active[identity.UID] = s
	me.mu.Unlock()

	me.publish(Event{UID: identity.UID, SignedIn: true})
	return s
}

func (me *Manager) Get(uid string) *Session {
	me.mu.Lock()
	defer me.mu.Unlock()
	return me.active[uid]
}

// SignOut closes and forgets the session. Closing the tracker writes
// offline immediately. Unknown uids are a no-op.
func (me *Manager) SignOut(uid string) {
	me.mu.Lock()
	s := me.active[uid]
	delete(me.active, uid)
	me.mu.Unlock()

	if s == nil {
		return
	}
	s.Close()
	me.publish(Event{UID: uid, SignedIn: false})
}

// Events delivers sign-in/out announcements. Slow consumers lose
// events rather than blocking the sign-in path.
func (me *Manager) Events() <-chan Event {
	return me.events
}

func (me *Manager) publish(ev Event) {
	select {
	case me.events <- ev:
	default:
	}
}

// CloseAll tears down every active session, used on shutdown.
func (me *Manager) CloseAll() {
	me.mu.Lock()
	sessions := make([]*Session, 0, len(me.active))
	for _, s := range me.active {
		sessions = append(sessions, s)
	}
	me.active = make(map[string]*Session)
	me.mu.Unlock()

	for _, s := range sessions {
		s.Close()
	}
}
