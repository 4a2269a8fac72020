package friends

import (
	"errors"
	"fmt"
	"net/http"

	"kawan/auth"
	"kawan/components/inbox"
	"kawan/components/user"
	"kawan/jsonrpc2"
	"kawan/store"
	"kawan/utils"

	"github.com/juju/ratelimit"
)

type FriendController struct {
	friendService I_FriendRepo
	inboxService  inbox.I_InboxRepo
	limiter       *ratelimit.Bucket
}

func NewFriendController(friendService I_FriendRepo, inboxService inbox.I_InboxRepo, limiter *ratelimit.Bucket) FriendController {
	return FriendController{friendService, inboxService, limiter}
}

// allow gates every graph mutation. No limiter means no budget: the
// gate fails closed rather than letting mutations through unmetered.
func (me *FriendController) allow() *jsonrpc2.RPCError {
	if me.limiter == nil || me.limiter.TakeAvailable(1) == 0 {
		return jsonrpc2.NewError(store.CodeOf(store.ErrRateLimited), store.Message(store.ErrRateLimited))
	}
	return nil
}

// notify appends to the target's inbox. The graph write already
// happened, so a failure here is logged and swallowed.
func (me *FriendController) notify(uid string, n *inbox.Notification) {
	if err := me.inboxService.Append(uid, n); err != nil {
		Logger.Error(err, fmt.Sprintf("notification append failed for %s", uid))
	}
}

// resolveTarget accepts a uid or an email address. A uid that has no
// record yet gets a default one, mirroring the sign-in bootstrap, so a
// request can be extended to someone who has not signed in.
func (me *FriendController) resolveTarget(target string) (*user.DBUser, error) {
	if utils.IsValidEmail(target) {
		return me.friendService.FindUserByEmail(target)
	}

	found, err := me.friendService.FindUserById(target)
	if err == nil {
		return found, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}

	return me.friendService.CreateUser(user.NewDefaultUser(target, "", "", ""))
}

// SendRequest files a pending proposal on the target's record. Sending
// to yourself, to an existing friend, or while a request is already
// pending in either direction is rejected.
func (me *FriendController) SendRequest(validuser *auth.Claims, target string) (*user.FriendRequest, *jsonrpc2.RPCError, int) {
	if e := me.allow(); e != nil {
		return nil, e, http.StatusOK
	}

	if target == "" {
		return nil, jsonrpc2.NewError(http.StatusBadRequest, "target can not empty"), http.StatusOK
	}

	self, err := me.friendService.FindUserById(validuser.GetUID())
	if err != nil {
		return nil, jsonrpc2.NewError(store.CodeOf(err), store.Message(err)), http.StatusOK
	}

	other, err := me.resolveTarget(target)
	if err != nil {
		return nil, jsonrpc2.NewError(store.CodeOf(err), store.Message(err)), http.StatusOK
	}

	if other.UID == self.UID || (other.Email != "" && other.Email == self.Email) {
		return nil, jsonrpc2.NewError(http.StatusBadRequest, "can not send a friend request to yourself"), http.StatusOK
	}

	if utils.StringInSlice(other.UID, self.Friends) {
		return nil, jsonrpc2.NewError(store.CodeOf(store.ErrAlreadyExists), "already friends"), http.StatusOK
	}

	// pending in either direction blocks a duplicate
	for _, r := range other.FriendRequests {
		if r.From == self.UID || (r.FromEmail != "" && r.FromEmail == self.Email) {
			return nil, jsonrpc2.NewError(store.CodeOf(store.ErrAlreadyExists), "friend request already pending"), http.StatusOK
		}
	}
	for _, r := range self.FriendRequests {
		if r.From == other.UID || (r.FromEmail != "" && r.FromEmail == other.Email) {
			return nil, jsonrpc2.NewError(store.CodeOf(store.ErrAlreadyExists), "friend request already pending"), http.StatusOK
		}
	}

	req := user.NewFriendRequest(self.UID, self.Email, self.Name)
	if err := me.friendService.PushRequest(other.UID, req); err != nil {
		return nil, jsonrpc2.NewError(store.CodeOf(err), store.Message(err)), http.StatusOK
	}

	n := inbox.NewNotification(inbox.TypeFriendRequestSent, fmt.Sprintf("%s sent you a friend request", self.Name))
	n.From = self.UID
	n.FromName = self.Name
	n.To = other.UID
	n.ToName = other.Name
	me.notify(other.UID, n)

	return req, nil, http.StatusOK
}

// AcceptRequest turns a pending proposal into a mutual friendship: both
// friend sets gain the other uid, then the pending entry is removed.
// The writes are independent; a half-applied pair is logged loudly and
// surfaced as an error so the client retries.
func (me *FriendController) AcceptRequest(validuser *auth.Claims, ref *user.FriendRequest) (*user.ResponseStatus, *jsonrpc2.RPCError, int) {
	if e := me.allow(); e != nil {
		return nil, e, http.StatusOK
	}

	self, pending, e := me.findPending(validuser.GetUID(), ref)
	if e != nil {
		return nil, e, http.StatusOK
	}

	if err := me.friendService.AddFriend(self.UID, pending.From); err != nil {
		return nil, jsonrpc2.NewError(store.CodeOf(err), store.Message(err)), http.StatusOK
	}
	if err := me.friendService.AddFriend(pending.From, self.UID); err != nil {
		Logger.Error(err, fmt.Sprintf("friendship half-applied: %s has %s but not the reverse", self.UID, pending.From))
		return nil, jsonrpc2.NewError(store.CodeOf(err), store.Message(err)), http.StatusOK
	}

	if err := me.friendService.PullRequest(self.UID, pending); err != nil {
		Logger.Error(err, "accepted request could not be removed")
	}

	n := inbox.NewNotification(inbox.TypeFriendRequestAccepted, fmt.Sprintf("%s accepted your friend request", self.Name))
	n.From = self.UID
	n.FromName = self.Name
	n.To = pending.From
	n.ToName = pending.FromName
	me.notify(pending.From, n)

	n = inbox.NewNotification(inbox.TypeFriendRequestAccepted, fmt.Sprintf("you are now friends with %s", pending.FromName))
	n.From = pending.From
	n.FromName = pending.FromName
	n.To = self.UID
	n.ToName = self.Name
	me.notify(self.UID, n)

	return &user.ResponseStatus{UID: self.UID, Status: "success"}, nil, http.StatusOK
}

// DeclineRequest drops the pending entry without touching either
// friend set.
func (me *FriendController) DeclineRequest(validuser *auth.Claims, ref *user.FriendRequest) (*user.ResponseStatus, *jsonrpc2.RPCError, int) {
	if e := me.allow(); e != nil {
		return nil, e, http.StatusOK
	}

	self, pending, e := me.findPending(validuser.GetUID(), ref)
	if e != nil {
		return nil, e, http.StatusOK
	}

	if err := me.friendService.PullRequest(self.UID, pending); err != nil {
		return nil, jsonrpc2.NewError(store.CodeOf(err), store.Message(err)), http.StatusOK
	}

	n := inbox.NewNotification(inbox.TypeFriendRequestDeclined, fmt.Sprintf("%s declined your friend request", self.Name))
	n.From = self.UID
	n.FromName = self.Name
	n.To = pending.From
	n.ToName = pending.FromName
	me.notify(pending.From, n)

	n = inbox.NewNotification(inbox.TypeFriendRequestDeclined, fmt.Sprintf("you declined %s's friend request", pending.FromName))
	n.From = pending.From
	n.FromName = pending.FromName
	n.To = self.UID
	n.ToName = self.Name
	me.notify(self.UID, n)

	return &user.ResponseStatus{UID: self.UID, Status: "success"}, nil, http.StatusOK
}

// Unfriend removes the target from both friend sets. Unfriending
// someone who is not a friend succeeds without side effects.
func (me *FriendController) Unfriend(validuser *auth.Claims, targetUID string) (*user.ResponseStatus, *jsonrpc2.RPCError, int) {
	if e := me.allow(); e != nil {
		return nil, e, http.StatusOK
	}

	self, err := me.friendService.FindUserById(validuser.GetUID())
	if err != nil {
		return nil, jsonrpc2.NewError(store.CodeOf(err), store.Message(err)), http.StatusOK
	}

	if !utils.StringInSlice(targetUID, self.Friends) {
		return &user.ResponseStatus{UID: self.UID, Status: "success"}, nil, http.StatusOK
	}

	if err := me.friendService.RemoveFriend(self.UID, targetUID); err != nil {
		return nil, jsonrpc2.NewError(store.CodeOf(err), store.Message(err)), http.StatusOK
	}
	if err := me.friendService.RemoveFriend(targetUID, self.UID); err != nil {
		Logger.Error(err, fmt.Sprintf("unfriend half-applied: %s removed %s but not the reverse", self.UID, targetUID))
		return nil, jsonrpc2.NewError(store.CodeOf(err), store.Message(err)), http.StatusOK
	}

	targetName := targetUID
	if other, err := me.friendService.FindUserById(targetUID); err == nil && other.Name != "" {
		targetName = other.Name
	}

	n := inbox.NewNotification(inbox.TypeUnfriended, fmt.Sprintf("%s removed you from their friends", self.Name))
	n.From = self.UID
	n.FromName = self.Name
	n.To = targetUID
	n.ToName = targetName
	me.notify(targetUID, n)

	n = inbox.NewNotification(inbox.TypeUnfriended, fmt.Sprintf("you are no longer friends with %s", targetName))
	n.From = targetUID
	n.FromName = targetName
	n.To = self.UID
	n.ToName = self.Name
	me.notify(self.UID, n)

	return &user.ResponseStatus{UID: self.UID, Status: "success"}, nil, http.StatusOK
}

func (me *FriendController) IsFriend(validuser *auth.Claims, targetUID string) (*IsFriendResponse, *jsonrpc2.RPCError, int) {
	self, err := me.friendService.FindUserById(validuser.GetUID())
	if err != nil {
		return nil, jsonrpc2.NewError(store.CodeOf(err), store.Message(err)), http.StatusOK
	}

	return &IsFriendResponse{
		UID:    self.UID,
		Target: targetUID,
		Friend: utils.StringInSlice(targetUID, self.Friends),
	}, nil, http.StatusOK
}

func (me *FriendController) ListRequests(validuser *auth.Claims) (*RequestListResponse, *jsonrpc2.RPCError, int) {
	self, err := me.friendService.FindUserById(validuser.GetUID())
	if err != nil {
		return nil, jsonrpc2.NewError(store.CodeOf(err), store.Message(err)), http.StatusOK
	}

	return &RequestListResponse{UID: self.UID, Requests: self.FriendRequests}, nil, http.StatusOK
}

// findPending resolves a request reference against the caller's fresh
// record.
func (me *FriendController) findPending(uid string, ref *user.FriendRequest) (*user.DBUser, *user.FriendRequest, *jsonrpc2.RPCError) {
	if ref == nil || (ref.ID == "" && ref.From == "") {
		return nil, nil, jsonrpc2.NewError(http.StatusBadRequest, "request reference can not empty")
	}

	self, err := me.friendService.FindUserById(uid)
	if err != nil {
		return nil, nil, jsonrpc2.NewError(store.CodeOf(err), store.Message(err))
	}

	for _, r := range self.FriendRequests {
		if r.Matches(ref) {
			return self, r, nil
		}
	}

	return nil, nil, jsonrpc2.NewError(store.CodeOf(store.ErrNotFound), "friend request not found")
}
