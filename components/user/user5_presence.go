package user

import (
	"context"
	"time"

	"kawan/auth"
	"kawan/components/presence"
)

// PresenceWriter persists presence values for one identity. It is the
// store side of a presence.Tracker: regular writes update the existing
// record and refresh the cache mirror; Recreate is the self-heal path
// that re-inserts a default record when the original vanished.
type PresenceWriter struct {
	userService I_UserRepo
	cache       *presence.Cache
	identity    auth.Identity
}

func NewPresenceWriter(userService I_UserRepo, cache *presence.Cache, identity *auth.Identity) presence.I_Writer {
	return &PresenceWriter{userService, cache, *identity}
}

func (me *PresenceWriter) WritePresence(online bool, lastSeen time.Time) error {
	if err := me.userService.UpdatePresence(me.identity.UID, online, lastSeen); err != nil {
		return err
	}

	me.cache.SetOnline(context.Background(), me.identity.UID, online, lastSeen)
	return nil
}

func (me *PresenceWriter) Recreate(online bool) error {
	nu := NewDefaultUser(me.identity.UID, me.identity.Name, me.identity.Email, me.identity.Avatar)
	nu.IsOnline = online
	nu.LastSeen = time.Now()

	if _, err := me.userService.CreateUser(nu); err != nil {
		return err
	}

	me.cache.SetOnline(context.Background(), me.identity.UID, online, nu.LastSeen)
	return nil
}
