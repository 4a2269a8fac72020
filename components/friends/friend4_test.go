package friends

import (
	"fmt"
	"testing"
	"time"

	"kawan/auth"
	"kawan/components/inbox"
	"kawan/components/user"
	"kawan/store"
	"kawan/utils"

	"github.com/juju/ratelimit"
	"github.com/stretchr/testify/assert"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

func TestMain(m *testing.M) {
	//before
	fmt.Println("\nSTART UNIT TEST 'friends'")

	m.Run()

	//after
	fmt.Println("END UNIT TEST 'friends'")
}

type fakeGraphRepo struct {
	users map[string]*user.DBUser
}

func newFakeGraphRepo() *fakeGraphRepo {
	return &fakeGraphRepo{users: make(map[string]*user.DBUser)}
}

func (me *fakeGraphRepo) addUser(uid, name, email string) *user.DBUser {
	u := &user.DBUser{UID: uid, Name: name, Email: utils.NormalizeEmail(email)}
	me.users[uid] = user.Normalize(u)
	return u
}

func (me *fakeGraphRepo) GetCollection() *mongo.Collection { return nil }

func (me *fakeGraphRepo) CreateUser(u *user.CreateUser) (*user.DBUser, error) {
	if _, ok := me.users[u.UID]; ok {
		return nil, store.ErrAlreadyExists
	}
	record := &user.DBUser{
		UID:                 u.UID,
		Name:                u.Name,
		Email:               u.Email,
		IsOnline:            u.IsOnline,
		OnlineStatusPrivacy: u.OnlineStatusPrivacy,
	}
	me.users[u.UID] = user.Normalize(record)
	return record, nil
}

func (me *fakeGraphRepo) MergeUser(uid string, fields bson.M) (*user.DBUser, error) {
	u, ok := me.users[uid]
	if !ok {
		return nil, store.ErrNotFound
	}
	return u, nil
}

func (me *fakeGraphRepo) FindUserById(uid string) (*user.DBUser, error) {
	u, ok := me.users[uid]
	if !ok {
		return nil, store.ErrNotFound
	}
	return user.Normalize(u), nil
}

func (me *fakeGraphRepo) FindUserByEmail(email string) (*user.DBUser, error) {
	for _, u := range me.users {
		if u.Email == utils.NormalizeEmail(email) {
			return user.Normalize(u), nil
		}
	}
	return nil, store.ErrNotFound
}

func (me *fakeGraphRepo) FindUsersIn(uids []string) ([]*user.DBUser, error) {
	res := []*user.DBUser{}
	for _, id := range uids {
		if u, ok := me.users[id]; ok {
			res = append(res, u)
		}
	}
	return res, nil
}

func (me *fakeGraphRepo) FindAllUsers() ([]*user.DBUser, error) {
	res := []*user.DBUser{}
	for _, u := range me.users {
		res = append(res, u)
	}
	return res, nil
}

func (me *fakeGraphRepo) UpdatePresence(uid string, online bool, lastSeen time.Time) error {
	u, ok := me.users[uid]
	if !ok {
		return store.ErrNotFound
	}
	u.IsOnline = online
	u.LastSeen = lastSeen
	return nil
}

func (me *fakeGraphRepo) WatchUser(uid string) (<-chan *user.DBUser, func(), error) {
	ch := make(chan *user.DBUser)
	close(ch)
	return ch, func() {}, nil
}

func (me *fakeGraphRepo) WatchAll() (<-chan []*user.DBUser, func(), error) {
	ch := make(chan []*user.DBUser)
	close(ch)
	return ch, func() {}, nil
}

func (me *fakeGraphRepo) PushRequest(toUID string, req *user.FriendRequest) error {
	u, ok := me.users[toUID]
	if !ok {
		return store.ErrNotFound
	}
	u.FriendRequests = append(u.FriendRequests, req)
	return nil
}

func (me *fakeGraphRepo) PullRequest(ownerUID string, req *user.FriendRequest) error {
	u, ok := me.users[ownerUID]
	if !ok {
		return store.ErrNotFound
	}
	kept := u.FriendRequests[:0]
	for _, r := range u.FriendRequests {
		if !r.Matches(req) {
			kept = append(kept, r)
		}
	}
	u.FriendRequests = kept
	return nil
}

func (me *fakeGraphRepo) AddFriend(uid, friendUID string) error {
	u, ok := me.users[uid]
	if !ok {
		return store.ErrNotFound
	}
	if !utils.StringInSlice(friendUID, u.Friends) {
		u.Friends = append(u.Friends, friendUID)
	}
	return nil
}

func (me *fakeGraphRepo) RemoveFriend(uid, friendUID string) error {
	u, ok := me.users[uid]
	if !ok {
		return store.ErrNotFound
	}
	kept := u.Friends[:0]
	for _, f := range u.Friends {
		if f != friendUID {
			kept = append(kept, f)
		}
	}
	u.Friends = kept
	return nil
}

type fakeInbox struct {
	appended map[string][]*inbox.Notification
}

func newFakeInbox() *fakeInbox {
	return &fakeInbox{appended: make(map[string][]*inbox.Notification)}
}

func (me *fakeInbox) Append(uid string, n *inbox.Notification) error {
	me.appended[uid] = append(me.appended[uid], n)
	return nil
}

func (me *fakeInbox) MarkRead(uid string, n *inbox.Notification) error { return nil }
func (me *fakeInbox) Clear(uid string) error                           { return nil }
func (me *fakeInbox) List(uid string) ([]*inbox.Notification, error) {
	return me.appended[uid], nil
}
func (me *fakeInbox) Subscribe(uid string) (<-chan []*inbox.Notification, func(), error) {
	ch := make(chan []*inbox.Notification)
	close(ch)
	return ch, func() {}, nil
}

func newTestController(repo *fakeGraphRepo, box *fakeInbox) FriendController {
	limiter := ratelimit.NewBucketWithRate(1000, 1000)
	return NewFriendController(repo, box, limiter)
}

func claimsFor(u *user.DBUser) *auth.Claims {
	return &auth.Claims{ID: u.UID, Usr: u.Name, Eml: u.Email}
}

func Test_SendRequestAppearsOnTarget(t *testing.T) {
	asserts := assert.New(t)
	repo := newFakeGraphRepo()
	box := newFakeInbox()
	ctr := newTestController(repo, box)

	alice := repo.addUser("a1", "Alice", "alice@example.com")
	bob := repo.addUser("b1", "Bob", "bob@example.com")

	req, e, _ := ctr.SendRequest(claimsFor(alice), bob.UID)
	asserts.Nil(e)
	asserts.NotEmpty(req.ID)
	asserts.Equal("a1", req.From)

	asserts.Len(repo.users["b1"].FriendRequests, 1)
	asserts.Len(box.appended["b1"], 1)
	asserts.Equal(inbox.TypeFriendRequestSent, box.appended["b1"][0].Type)
}

func Test_SendRequestByEmail(t *testing.T) {
	asserts := assert.New(t)
	repo := newFakeGraphRepo()
	ctr := newTestController(repo, newFakeInbox())

	alice := repo.addUser("a1", "Alice", "alice@example.com")
	repo.addUser("b1", "Bob", "bob@example.com")

	_, e, _ := ctr.SendRequest(claimsFor(alice), "Bob@Example.com")
	asserts.Nil(e)
	asserts.Len(repo.users["b1"].FriendRequests, 1)
}

func Test_SendRequestAutoCreatesMissingTarget(t *testing.T) {
	asserts := assert.New(t)
	repo := newFakeGraphRepo()
	ctr := newTestController(repo, newFakeInbox())

	alice := repo.addUser("a1", "Alice", "alice@example.com")

	_, e, _ := ctr.SendRequest(claimsFor(alice), "ghost")
	asserts.Nil(e)

	created, err := repo.FindUserById("ghost")
	asserts.NoError(err)
	asserts.Len(created.FriendRequests, 1)
}

func Test_SendRequestToSelfRejected(t *testing.T) {
	asserts := assert.New(t)
	repo := newFakeGraphRepo()
	ctr := newTestController(repo, newFakeInbox())

	alice := repo.addUser("a1", "Alice", "alice@example.com")

	_, e, _ := ctr.SendRequest(claimsFor(alice), "a1")
	asserts.NotNil(e)

	_, e, _ = ctr.SendRequest(claimsFor(alice), "alice@example.com")
	asserts.NotNil(e)
}

func Test_DuplicateSendRejectedBothDirections(t *testing.T) {
	asserts := assert.New(t)
	repo := newFakeGraphRepo()
	ctr := newTestController(repo, newFakeInbox())

	alice := repo.addUser("a1", "Alice", "alice@example.com")
	bob := repo.addUser("b1", "Bob", "bob@example.com")

	_, e, _ := ctr.SendRequest(claimsFor(alice), bob.UID)
	asserts.Nil(e)

	_, e, _ = ctr.SendRequest(claimsFor(alice), bob.UID)
	asserts.NotNil(e)

	// reverse direction is blocked by the same pending entry
	_, e, _ = ctr.SendRequest(claimsFor(bob), alice.UID)
	asserts.NotNil(e)
}

func Test_AcceptCreatesMutualFriendship(t *testing.T) {
	asserts := assert.New(t)
	repo := newFakeGraphRepo()
	box := newFakeInbox()
	ctr := newTestController(repo, box)

	alice := repo.addUser("a1", "Alice", "alice@example.com")
	bob := repo.addUser("b1", "Bob", "bob@example.com")

	req, e, _ := ctr.SendRequest(claimsFor(alice), bob.UID)
	asserts.Nil(e)

	res, e, _ := ctr.AcceptRequest(claimsFor(bob), req)
	asserts.Nil(e)
	asserts.Equal("success", res.Status)

	asserts.True(utils.StringInSlice("b1", repo.users["a1"].Friends))
	asserts.True(utils.StringInSlice("a1", repo.users["b1"].Friends))
	asserts.Empty(repo.users["b1"].FriendRequests)

	// both parties get an acceptance notification
	asserts.NotEmpty(box.appended["a1"])
	asserts.Equal(inbox.TypeFriendRequestAccepted, box.appended["a1"][0].Type)
}

func Test_AcceptUnknownRequest(t *testing.T) {
	asserts := assert.New(t)
	repo := newFakeGraphRepo()
	ctr := newTestController(repo, newFakeInbox())

	bob := repo.addUser("b1", "Bob", "bob@example.com")

	ref := user.NewFriendRequest("a1", "alice@example.com", "Alice")
	_, e, _ := ctr.AcceptRequest(claimsFor(bob), ref)
	asserts.NotNil(e)
	asserts.Empty(repo.users["b1"].Friends)
}

func Test_DeclineRemovesRequestOnly(t *testing.T) {
	asserts := assert.New(t)
	repo := newFakeGraphRepo()
	box := newFakeInbox()
	ctr := newTestController(repo, box)

	alice := repo.addUser("a1", "Alice", "alice@example.com")
	bob := repo.addUser("b1", "Bob", "bob@example.com")

	req, _, _ := ctr.SendRequest(claimsFor(alice), bob.UID)

	_, e, _ := ctr.DeclineRequest(claimsFor(bob), req)
	asserts.Nil(e)
	asserts.Empty(repo.users["b1"].FriendRequests)
	asserts.Empty(repo.users["a1"].Friends)
	asserts.Empty(repo.users["b1"].Friends)

	// both parties hear about the decline
	asserts.NotEmpty(box.appended["a1"])
	asserts.Equal(inbox.TypeFriendRequestDeclined, box.appended["a1"][len(box.appended["a1"])-1].Type)
	asserts.NotEmpty(box.appended["b1"])
	asserts.Equal(inbox.TypeFriendRequestDeclined, box.appended["b1"][len(box.appended["b1"])-1].Type)
}

func Test_UnfriendIsSymmetric(t *testing.T) {
	asserts := assert.New(t)
	repo := newFakeGraphRepo()
	box := newFakeInbox()
	ctr := newTestController(repo, box)

	alice := repo.addUser("a1", "Alice", "alice@example.com")
	bob := repo.addUser("b1", "Bob", "bob@example.com")

	req, _, _ := ctr.SendRequest(claimsFor(alice), bob.UID)
	_, e, _ := ctr.AcceptRequest(claimsFor(bob), req)
	asserts.Nil(e)

	_, e, _ = ctr.Unfriend(claimsFor(alice), "b1")
	asserts.Nil(e)
	asserts.Empty(repo.users["a1"].Friends)
	asserts.Empty(repo.users["b1"].Friends)

	// both parties hear about the removal
	asserts.Equal(inbox.TypeUnfriended, box.appended["b1"][len(box.appended["b1"])-1].Type)
	asserts.Equal(inbox.TypeUnfriended, box.appended["a1"][len(box.appended["a1"])-1].Type)

	// unfriending a non-friend is a quiet success with no new entries
	before := len(box.appended["a1"]) + len(box.appended["b1"])
	_, e, _ = ctr.Unfriend(claimsFor(alice), "b1")
	asserts.Nil(e)
	asserts.Equal(before, len(box.appended["a1"])+len(box.appended["b1"]))
}

func Test_IsFriend(t *testing.T) {
	asserts := assert.New(t)
	repo := newFakeGraphRepo()
	ctr := newTestController(repo, newFakeInbox())

	alice := repo.addUser("a1", "Alice", "alice@example.com")
	bob := repo.addUser("b1", "Bob", "bob@example.com")

	res, e, _ := ctr.IsFriend(claimsFor(alice), "b1")
	asserts.Nil(e)
	asserts.False(res.Friend)

	req, _, _ := ctr.SendRequest(claimsFor(alice), bob.UID)
	_, _, _ = ctr.AcceptRequest(claimsFor(bob), req)

	res, e, _ = ctr.IsFriend(claimsFor(alice), "b1")
	asserts.Nil(e)
	asserts.True(res.Friend)
}

func Test_MissingLimiterFailsClosed(t *testing.T) {
	asserts := assert.New(t)
	repo := newFakeGraphRepo()
	ctr := NewFriendController(repo, newFakeInbox(), nil)

	alice := repo.addUser("a1", "Alice", "alice@example.com")
	repo.addUser("b1", "Bob", "bob@example.com")

	_, e, _ := ctr.SendRequest(claimsFor(alice), "b1")
	asserts.NotNil(e)
	asserts.Equal(429, e.Code)
	asserts.Empty(repo.users["b1"].FriendRequests)
}
