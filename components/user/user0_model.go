package user

import (
	"time"

	"kawan/components/inbox"
	"kawan/utils"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

type Privacy = string

const (
	PrivacyEveryone Privacy = "everyone"
	PrivacyFriends  Privacy = "friends"
	PrivacyNobody   Privacy = "nobody"
)

var ValidPrivacies = [3]Privacy{PrivacyEveryone, PrivacyFriends, PrivacyNobody}

// FriendRequest is a pending, directional proposal stored on the
// receiver's record. The surrogate id identifies it; (From, Timestamp)
// is kept as a fallback for records written before ids existed.
type FriendRequest struct {
	ID        string    `json:"id,omitempty" bson:"id,omitempty"`
	From      string    `json:"from" bson:"from"`
	FromEmail string    `json:"fromEmail" bson:"fromEmail"`
	FromName  string    `json:"fromName" bson:"fromName"`
	Timestamp time.Time `json:"timestamp" bson:"timestamp"`
}

func NewFriendRequest(fromUID, fromEmail, fromName string) *FriendRequest {
	return &FriendRequest{
		ID:        uuid.New().String(),
		From:      fromUID,
		FromEmail: utils.NormalizeEmail(fromEmail),
		FromName:  fromName,
		Timestamp: time.Now(),
	}
}

// Matches pairs two request references: by id when both carry one,
// otherwise by origin and millisecond timestamp.
func (r *FriendRequest) Matches(other *FriendRequest) bool {
	if r == nil || other == nil {
		return false
	}
	if r.ID != "" && other.ID != "" {
		return r.ID == other.ID
	}
	return r.From == other.From && r.Timestamp.UnixMilli() == other.Timestamp.UnixMilli()
}

type DBUser struct {
	Id             primitive.ObjectID    `json:"id,omitempty" bson:"_id,omitempty"`
	UID            string                `json:"uid" bson:"uid"`
	Name           string                `json:"name" bson:"name"`
	Email          string                `json:"email" bson:"email"`
	Avatar         string                `json:"avatar" bson:"avatar"`
	Friends        []string              `json:"friends" bson:"friends"`
	FriendRequests []*FriendRequest      `json:"friendRequests" bson:"friendRequests"`
	Notifications  []*inbox.Notification `json:"notifications" bson:"notifications"`

	IsOnline            bool      `json:"isOnline" bson:"isOnline"`
	LastSeen            time.Time `json:"lastSeen,omitempty" bson:"lastSeen,omitempty"`
	AppearOffline       bool      `json:"appearOffline" bson:"appearOffline"`
	OnlineStatusPrivacy Privacy   `json:"onlineStatusPrivacy" bson:"onlineStatusPrivacy"`

	CreatedAt time.Time `json:"created_at,omitempty" bson:"created_at,omitempty"`
	LastLogin time.Time `json:"last_login,omitempty" bson:"last_login,omitempty"`
}

// CreateUser is the insert shape for a fresh record.
type CreateUser struct {
	UID            string                `json:"uid" bson:"uid"`
	Name           string                `json:"name" bson:"name"`
	Email          string                `json:"email" bson:"email"`
	Avatar         string                `json:"avatar" bson:"avatar"`
	Friends        []string              `json:"friends" bson:"friends"`
	FriendRequests []*FriendRequest      `json:"friendRequests" bson:"friendRequests"`
	Notifications  []*inbox.Notification `json:"notifications" bson:"notifications"`

	IsOnline            bool      `json:"isOnline" bson:"isOnline"`
	LastSeen            time.Time `json:"lastSeen,omitempty" bson:"lastSeen,omitempty"`
	AppearOffline       bool      `json:"appearOffline" bson:"appearOffline"`
	OnlineStatusPrivacy Privacy   `json:"onlineStatusPrivacy" bson:"onlineStatusPrivacy"`

	CreatedAt time.Time `json:"created_at,omitempty" bson:"created_at,omitempty"`
	LastLogin time.Time `json:"last_login,omitempty" bson:"last_login,omitempty"`
}

// NewDefaultUser builds the record Session Bootstrap persists on the
// first sign-in: empty collections, friends-only privacy, online now.
func NewDefaultUser(uid, name, email, avatar string) *CreateUser {
	now := time.Now()
	return &CreateUser{
		UID:                 uid,
		Name:                name,
		Email:               utils.NormalizeEmail(email),
		Avatar:              utils.UpgradeAvatar(avatar),
		Friends:             []string{},
		FriendRequests:      []*FriendRequest{},
		Notifications:       []*inbox.Notification{},
		IsOnline:            true,
		LastSeen:            now,
		OnlineStatusPrivacy: PrivacyFriends,
		CreatedAt:           now,
		LastLogin:           now,
	}
}

type ResponseUser struct {
	UID                 string    `json:"uid"`
	Name                string    `json:"name"`
	Email               string    `json:"email"`
	Avatar              string    `json:"avatar"`
	JWT                 string    `json:"jwt,omitempty"`
	IsOnline            bool      `json:"isOnline"`
	LastSeen            time.Time `json:"lastSeen,omitempty"`
	AppearOffline       bool      `json:"appearOffline"`
	OnlineStatusPrivacy Privacy   `json:"onlineStatusPrivacy"`
}

type ResponseStatus struct {
	UID    string `json:"uid"`
	Status string `json:"status"`
}

type LoginRequest struct {
	Provider   string `json:"provider"`
	Credential string `json:"credential"`
}

type GetUserRequest struct {
	UID string `json:"uid"`
}

type PrivacyRequest struct {
	UID                 string  `json:"uid"`
	AppearOffline       *bool   `json:"appearOffline,omitempty"`
	OnlineStatusPrivacy Privacy `json:"onlineStatusPrivacy,omitempty"`
}

// Normalize is the single store-boundary repair point for user records:
// defaults are substituted for missing fields so downstream code never
// sees nil collections, an unknown privacy value, or a thumbnail avatar.
func Normalize(u *DBUser) *DBUser {
	if u == nil {
		return nil
	}
	u.Email = utils.NormalizeEmail(u.Email)
	u.Avatar = utils.UpgradeAvatar(u.Avatar)
	if u.Friends == nil {
		u.Friends = []string{}
	}
	if u.FriendRequests == nil {
		u.FriendRequests = []*FriendRequest{}
	}
	if u.Notifications == nil {
		u.Notifications = []*inbox.Notification{}
	}
	switch u.OnlineStatusPrivacy {
	case PrivacyEveryone, PrivacyFriends, PrivacyNobody:
	default:
		u.OnlineStatusPrivacy = PrivacyFriends
	}
	for _, n := range u.Notifications {
		inbox.Normalize(n)
	}
	return u
}
