package inbox

import (
	"fmt"
	"testing"
	"time"

	"kawan/auth"
	"kawan/store"

	"github.com/stretchr/testify/assert"
)

func TestMain(m *testing.M) {
	//before
	fmt.Println("\nSTART UNIT TEST 'inbox'")

	m.Run()

	//after
	fmt.Println("END UNIT TEST 'inbox'")
}

type fakeInboxRepo struct {
	entries map[string][]*Notification
}

func newFakeInboxRepo() *fakeInboxRepo {
	return &fakeInboxRepo{entries: map[string][]*Notification{"u1": {}}}
}

func (me *fakeInboxRepo) Append(uid string, n *Notification) error {
	if _, ok := me.entries[uid]; !ok {
		return store.ErrNotFound
	}
	me.entries[uid] = append(me.entries[uid], Normalize(n))
	return nil
}

func (me *fakeInboxRepo) MarkRead(uid string, n *Notification) error {
	list, ok := me.entries[uid]
	if !ok {
		return store.ErrNotFound
	}
	for _, e := range list {
		if (n.ID != "" && e.ID == n.ID) || (n.ID == "" && e.MatchesTuple(n.Type, n.Message, n.Timestamp)) {
			e.Read = true
		}
	}
	return nil
}

func (me *fakeInboxRepo) Clear(uid string) error {
	if _, ok := me.entries[uid]; !ok {
		return store.ErrNotFound
	}
	me.entries[uid] = []*Notification{}
	return nil
}

func (me *fakeInboxRepo) List(uid string) ([]*Notification, error) {
	list, ok := me.entries[uid]
	if !ok {
		return nil, store.ErrNotFound
	}
	return list, nil
}

func (me *fakeInboxRepo) Subscribe(uid string) (<-chan []*Notification, func(), error) {
	ch := make(chan []*Notification)
	close(ch)
	return ch, func() {}, nil
}

var testClaims = &auth.Claims{ID: "u1", Usr: "Rain"}

func Test_VisibleAtFiltersStaleCalls(t *testing.T) {
	asserts := assert.New(t)
	now := time.Now()

	fresh := NewNotification(TypeCallRinging, "incoming call")
	fresh.CallStatus = CallStatusRinging
	fresh.Timestamp = now.Add(-10 * time.Second)
	asserts.True(fresh.VisibleAt(now))

	stale := NewNotification(TypeCallRinging, "incoming call")
	stale.CallStatus = CallStatusRinging
	stale.Timestamp = now.Add(-40 * time.Second)
	asserts.False(stale.VisibleAt(now))

	answered := NewNotification(TypeCallRinging, "incoming call")
	answered.CallStatus = "answered"
	answered.Timestamp = now.Add(-5 * time.Second)
	asserts.False(answered.VisibleAt(now))

	read := NewNotification(TypeCallRinging, "incoming call")
	read.CallStatus = CallStatusRinging
	read.Timestamp = now.Add(-5 * time.Second)
	read.Read = true
	asserts.False(read.VisibleAt(now))

	// social entries never expire
	old := NewNotification(TypeFriendRequestSent, "request")
	old.Timestamp = now.Add(-48 * time.Hour)
	old.Read = true
	asserts.True(old.VisibleAt(now))
}

func Test_FilterVisibleSortsNewestFirst(t *testing.T) {
	asserts := assert.New(t)
	now := time.Now()

	first := NewNotification(TypeFriendRequestSent, "oldest")
	first.Timestamp = now.Add(-3 * time.Hour)
	second := NewNotification(TypeUnfriended, "middle")
	second.Timestamp = now.Add(-2 * time.Hour)
	third := NewNotification(TypeFriendRequestAccepted, "newest")
	third.Timestamp = now.Add(-1 * time.Hour)

	out := FilterVisible([]*Notification{first, third, second}, now)
	asserts.Len(out, 3)
	asserts.Equal("newest", out[0].Message)
	asserts.Equal("middle", out[1].Message)
	asserts.Equal("oldest", out[2].Message)
}

func Test_GetNotificationsExcludesHiddenCalls(t *testing.T) {
	asserts := assert.New(t)
	repo := newFakeInboxRepo()
	ctr := NewInboxController(repo)

	social := NewNotification(TypeFriendRequestSent, "request")
	asserts.NoError(repo.Append("u1", social))

	stale := NewNotification(TypeCallRinging, "incoming call")
	stale.CallStatus = CallStatusRinging
	stale.Timestamp = time.Now().Add(-40 * time.Second)
	asserts.NoError(repo.Append("u1", stale))

	res, e, _ := ctr.GetNotifications(testClaims)
	asserts.Nil(e)
	asserts.Len(res.Notifications, 1)
	asserts.Equal(TypeFriendRequestSent, res.Notifications[0].Type)
}

func Test_MarkReadIsIdempotent(t *testing.T) {
	asserts := assert.New(t)
	repo := newFakeInboxRepo()
	ctr := NewInboxController(repo)

	n := NewNotification(TypeFriendRequestSent, "request")
	asserts.NoError(repo.Append("u1", n))

	res, e, _ := ctr.MarkRead(testClaims, n)
	asserts.Nil(e)
	asserts.Equal("success", res.Status)
	asserts.True(repo.entries["u1"][0].Read)

	res, e, _ = ctr.MarkRead(testClaims, n)
	asserts.Nil(e)
	asserts.Equal("success", res.Status)
}

func Test_MarkReadByLegacyTuple(t *testing.T) {
	asserts := assert.New(t)
	repo := newFakeInboxRepo()
	ctr := NewInboxController(repo)

	n := NewNotification(TypeUnfriended, "removed")
	asserts.NoError(repo.Append("u1", n))

	ref := &Notification{Type: n.Type, Message: n.Message, Timestamp: n.Timestamp}
	_, e, _ := ctr.MarkRead(testClaims, ref)
	asserts.Nil(e)
	asserts.True(repo.entries["u1"][0].Read)
}

func Test_ClearAll(t *testing.T) {
	asserts := assert.New(t)
	repo := newFakeInboxRepo()
	ctr := NewInboxController(repo)

	asserts.NoError(repo.Append("u1", NewNotification(TypeFriendRequestSent, "a")))
	asserts.NoError(repo.Append("u1", NewNotification(TypeUnfriended, "b")))

	res, e, _ := ctr.ClearAll(testClaims)
	asserts.Nil(e)
	asserts.Equal("success", res.Status)
	asserts.Empty(repo.entries["u1"])
}

func Test_NormalizeBackfillsId(t *testing.T) {
	asserts := assert.New(t)

	n := &Notification{Type: TypeFriendRequestSent, Message: "request"}
	Normalize(n)
	asserts.NotEmpty(n.ID)
	asserts.False(n.Timestamp.IsZero())
}
