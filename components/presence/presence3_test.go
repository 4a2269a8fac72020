package presence

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"kawan/store"

	"github.com/stretchr/testify/assert"
)

func TestMain(m *testing.M) {
	//before
	fmt.Println("\nSTART UNIT TEST 'presence'")

	m.Run()

	//after
	fmt.Println("END UNIT TEST 'presence'")
}

type fakeWriter struct {
	mu        sync.Mutex
	writes    []bool
	missing   bool
	recreated int
	delay     time.Duration
}

func (me *fakeWriter) WritePresence(online bool, lastSeen time.Time) error {
	if me.delay > 0 {
		time.Sleep(me.delay)
	}
	me.mu.Lock()
	defer me.mu.Unlock()
	if me.missing {
		return store.ErrNotFound
	}
	me.writes = append(me.writes, online)
	return nil
}

func (me *fakeWriter) Recreate(online bool) error {
	me.mu.Lock()
	defer me.mu.Unlock()
	me.missing = false
	me.recreated++
	me.writes = append(me.writes, online)
	return nil
}

func (me *fakeWriter) snapshot() []bool {
	me.mu.Lock()
	defer me.mu.Unlock()
	out := make([]bool, len(me.writes))
	copy(out, me.writes)
	return out
}

func Test_DebounceCoalescesRapidUpdates(t *testing.T) {
	asserts := assert.New(t)
	w := &fakeWriter{}
	tracker := NewTrackerWithDelays(w, 50*time.Millisecond, 20*time.Millisecond, time.Hour)

	asserts.NoError(tracker.SetPresence(true, false))
	asserts.NoError(tracker.SetPresence(false, false))
	asserts.NoError(tracker.SetPresence(true, false))

	time.Sleep(200 * time.Millisecond)

	writes := w.snapshot()
	asserts.Len(writes, 1)
	asserts.True(writes[0])
}

func Test_ImmediateBypassesDebounce(t *testing.T) {
	asserts := assert.New(t)
	w := &fakeWriter{}
	tracker := NewTrackerWithDelays(w, time.Hour, 20*time.Millisecond, time.Hour)

	asserts.NoError(tracker.SetPresence(true, true))

	writes := w.snapshot()
	asserts.Len(writes, 1)
	asserts.True(writes[0])
}

func Test_QueuedValueAppliedAfterInflight(t *testing.T) {
	asserts := assert.New(t)
	w := &fakeWriter{delay: 150 * time.Millisecond}
	tracker := NewTrackerWithDelays(w, 50*time.Millisecond, 20*time.Millisecond, time.Hour)

	asserts.NoError(tracker.SetPresence(true, false))
	time.Sleep(70 * time.Millisecond) // first write is now in flight

	asserts.NoError(tracker.SetPresence(false, false))
	time.Sleep(60 * time.Millisecond)
	asserts.NoError(tracker.SetPresence(true, false)) // newest wins over the queued false

	time.Sleep(500 * time.Millisecond)

	writes := w.snapshot()
	asserts.Len(writes, 2)
	asserts.True(writes[0])
	asserts.True(writes[1])
}

func Test_ShutdownWritesOfflineOnce(t *testing.T) {
	asserts := assert.New(t)
	w := &fakeWriter{}
	tracker := NewTrackerWithDelays(w, 50*time.Millisecond, 20*time.Millisecond, time.Hour)

	tracker.Shutdown()
	tracker.Shutdown()

	writes := w.snapshot()
	asserts.Len(writes, 1)
	asserts.False(writes[0])
}

func Test_SignOutOutrunsStagedOnlineWrite(t *testing.T) {
	asserts := assert.New(t)
	w := &fakeWriter{}
	tracker := NewTrackerWithDelays(w, 50*time.Millisecond, 10*time.Millisecond, time.Hour)

	// an online update is staged but its write has not started yet
	asserts.NoError(tracker.SetPresence(true, false))
	tracker.mu.Lock()
	staged := *tracker.pending
	tracker.mu.Unlock()

	// sign-out reaches the store first with an immediate offline write
	asserts.NoError(tracker.SetPresence(false, true))

	// the older value arrives late and must be dropped, not persisted
	tracker.runWrite(staged)
	time.Sleep(100 * time.Millisecond)

	asserts.Equal([]bool{false}, w.snapshot())
}

func Test_SelfHealRecreatesMissingRecord(t *testing.T) {
	asserts := assert.New(t)
	w := &fakeWriter{missing: true}
	tracker := NewTrackerWithDelays(w, 50*time.Millisecond, 20*time.Millisecond, time.Hour)

	asserts.NoError(tracker.SetPresence(true, true))

	w.mu.Lock()
	defer w.mu.Unlock()
	asserts.Equal(1, w.recreated)
	asserts.Equal([]bool{true}, w.writes)
}

func Test_IdleTimeoutForcesOffline(t *testing.T) {
	asserts := assert.New(t)
	w := &fakeWriter{}
	tracker := NewTrackerWithDelays(w, 10*time.Millisecond, 10*time.Millisecond, 60*time.Millisecond)

	tracker.Activity()
	time.Sleep(200 * time.Millisecond)

	writes := w.snapshot()
	asserts.GreaterOrEqual(len(writes), 2)
	asserts.True(writes[0])
	asserts.False(writes[len(writes)-1])
}

func Test_CanSeeOnlineStatus(t *testing.T) {
	asserts := assert.New(t)

	asserts.True(CanSeeOnlineStatus("u1", "u1", PrivacyNobody, nil))
	asserts.True(CanSeeOnlineStatus("v1", "t1", PrivacyEveryone, nil))
	asserts.False(CanSeeOnlineStatus("v1", "t1", PrivacyNobody, []string{"v1"}))
	asserts.True(CanSeeOnlineStatus("v1", "t1", PrivacyFriends, []string{"v1"}))
	asserts.False(CanSeeOnlineStatus("v1", "t1", PrivacyFriends, []string{"x1"}))

	// unknown value falls back to the friends rule
	asserts.True(CanSeeOnlineStatus("v1", "t1", "sometimes", []string{"v1"}))
	asserts.False(CanSeeOnlineStatus("v1", "t1", "sometimes", nil))
}
