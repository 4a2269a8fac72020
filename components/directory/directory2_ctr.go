package directory

import (
	"context"
	"fmt"
	"net/http"

	"kawan/auth"
	"kawan/components/presence"
	"kawan/components/user"
	"kawan/jsonrpc2"
	"kawan/store"
	"kawan/utils"
)

type DirectoryController struct {
	directoryService I_DirectoryRepo
	userService      user.I_UserRepo
	cache            *presence.Cache
}

func NewDirectoryController(directoryService I_DirectoryRepo, userService user.I_UserRepo, cache *presence.Cache) DirectoryController {
	return DirectoryController{directoryService, userService, cache}
}

// MaskEntry renders a record for one viewer. Presence leaks nothing
// the privacy rule hides: a hidden target reads as offline with no
// last-seen, and appear-offline always reads as offline.
func MaskEntry(viewer *user.DBUser, target *user.DBUser) *Entry {
	visible := presence.CanSeeOnlineStatus(viewer.UID, target.UID, target.OnlineStatusPrivacy, target.Friends)

	e := &Entry{
		UID:      target.UID,
		Name:     target.Name,
		Email:    target.Email,
		Avatar:   target.Avatar,
		IsFriend: utils.StringInSlice(target.UID, viewer.Friends),
		Visible:  visible,
	}

	if visible && !target.AppearOffline {
		e.IsOnline = target.IsOnline
		e.LastSeen = target.LastSeen
	}

	return e
}

func (me *DirectoryController) maskAll(viewer *user.DBUser, targets []*user.DBUser) []*Entry {
	entries := []*Entry{}
	for _, t := range targets {
		if t.UID == viewer.UID {
			continue
		}
		entries = append(entries, MaskEntry(viewer, t))
	}
	return entries
}

func (me *DirectoryController) SearchUsers(validuser *auth.Claims, keyword string) (*SearchResponse, *jsonrpc2.RPCError, int) {
	Logger.V(2).Info(fmt.Sprintf("search users %s %q", validuser.GetUID(), keyword))

	viewer, err := me.userService.FindUserById(validuser.GetUID())
	if err != nil {
		return nil, jsonrpc2.NewError(store.CodeOf(err), store.Message(err)), http.StatusOK
	}

	found, err := me.directoryService.SearchAll(keyword)
	if err != nil {
		return nil, jsonrpc2.NewError(store.CodeOf(err), store.Message(err)), http.StatusOK
	}

	return &SearchResponse{
		UID:     viewer.UID,
		Keyword: keyword,
		Entries: me.maskAll(viewer, found),
	}, nil, http.StatusOK
}

func (me *DirectoryController) SearchFriends(validuser *auth.Claims, keyword string) (*SearchResponse, *jsonrpc2.RPCError, int) {
	Logger.V(2).Info(fmt.Sprintf("search friends %s %q", validuser.GetUID(), keyword))

	viewer, err := me.userService.FindUserById(validuser.GetUID())
	if err != nil {
		return nil, jsonrpc2.NewError(store.CodeOf(err), store.Message(err)), http.StatusOK
	}

	found, err := me.directoryService.SearchFriends(viewer.UID, keyword)
	if err != nil {
		return nil, jsonrpc2.NewError(store.CodeOf(err), store.Message(err)), http.StatusOK
	}

	return &SearchResponse{
		UID:     viewer.UID,
		Keyword: keyword,
		Entries: me.maskAll(viewer, found),
	}, nil, http.StatusOK
}

// GetPresence answers one target's presence for the caller. The cache
// mirror is preferred when it holds a fresher value; the stored record
// is the fallback and the source of the privacy rule either way.
func (me *DirectoryController) GetPresence(validuser *auth.Claims, targetUID string) (*presence.PresenceResponse, *jsonrpc2.RPCError, int) {
	target, err := me.userService.FindUserById(targetUID)
	if err != nil {
		return nil, jsonrpc2.NewError(store.CodeOf(err), store.Message(err)), http.StatusOK
	}

	visible := presence.CanSeeOnlineStatus(validuser.GetUID(), target.UID, target.OnlineStatusPrivacy, target.Friends)

	res := &presence.PresenceResponse{UID: target.UID, Visible: visible}
	if !visible || target.AppearOffline {
		return res, nil, http.StatusOK
	}

	res.IsOnline = target.IsOnline
	res.LastSeen = target.LastSeen
	if online, lastSeen, ok := me.cache.GetOnline(context.Background(), target.UID); ok && lastSeen.After(target.LastSeen) {
		res.IsOnline = online
		res.LastSeen = lastSeen
	}

	return res, nil, http.StatusOK
}
