package inbox

import (
	"sort"
	"time"

	"github.com/lucsky/cuid"
)

type Type = string

const (
	TypeFriendRequestSent     Type = "friend_request_sent"
	TypeFriendRequestAccepted Type = "friend_request_accepted"
	TypeFriendRequestDeclined Type = "friend_request_declined"
	TypeUnfriended            Type = "unfriended"
	TypeCallRinging           Type = "call_ringing"
)

var ValidTypes = [5]Type{
	TypeFriendRequestSent,
	TypeFriendRequestAccepted,
	TypeFriendRequestDeclined,
	TypeUnfriended,
	TypeCallRinging,
}

// CallStatusRinging is the only call status a fresh call notification has;
// anything else means the call moved on and the entry is hidden.
const CallStatusRinging = "ringing"

// CallFreshness is how long a ringing call notification stays visible.
const CallFreshness = 30 * time.Second

type Notification struct {
	ID        string    `json:"id,omitempty" bson:"id,omitempty"`
	Type      Type      `json:"type" bson:"type"`
	Message   string    `json:"message" bson:"message"`
	Timestamp time.Time `json:"timestamp" bson:"timestamp"`
	Read      bool      `json:"read" bson:"read"`

	// social events
	From     string `json:"from,omitempty" bson:"from,omitempty"`
	FromName string `json:"fromName,omitempty" bson:"fromName,omitempty"`
	To       string `json:"to,omitempty" bson:"to,omitempty"`
	ToName   string `json:"toName,omitempty" bson:"toName,omitempty"`

	// call events
	CallerUID  string `json:"callerUid,omitempty" bson:"callerUid,omitempty"`
	CallID     string `json:"callId,omitempty" bson:"callId,omitempty"`
	CallStatus string `json:"callStatus,omitempty" bson:"callStatus,omitempty"`
}

// NewNotification stamps a fresh unread entry with a surrogate id.
func NewNotification(t Type, message string) *Notification {
	return &Notification{
		ID:        cuid.New(),
		Type:      t,
		Message:   message,
		Timestamp: time.Now(),
		Read:      false,
	}
}

// Normalize is the single store-boundary repair point for this entity:
// entries written before ids existed get one, a zero timestamp is pinned
// so sorting stays stable, and read defaults to false by construction.
func Normalize(n *Notification) *Notification {
	if n == nil {
		return nil
	}
	if n.ID == "" {
		n.ID = cuid.New()
	}
	if n.Timestamp.IsZero() {
		n.Timestamp = time.Unix(0, 0)
	}
	return n
}

// MatchesTuple reports the legacy (type, message, timestamp) identity,
// compared at millisecond precision like the wire format.
func (n *Notification) MatchesTuple(t Type, message string, ts time.Time) bool {
	return n.Type == t && n.Message == message && n.Timestamp.UnixMilli() == ts.UnixMilli()
}

// VisibleAt decides whether the entry shows in the inbox at the given
// moment. Call notifications are transient: hidden once read, once the
// call left ringing, or once stale. Everything else always shows.
func (n *Notification) VisibleAt(now time.Time) bool {
	if n.Type != TypeCallRinging {
		return true
	}
	if n.Read {
		return false
	}
	if n.CallStatus != CallStatusRinging {
		return false
	}
	return now.Sub(n.Timestamp) <= CallFreshness
}

// FilterVisible drops hidden entries and orders the rest newest first.
func FilterVisible(list []*Notification, now time.Time) []*Notification {
	out := make([]*Notification, 0, len(list))
	for _, n := range list {
		if n == nil {
			continue
		}
		if n.VisibleAt(now) {
			out = append(out, n)
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Timestamp.After(out[j].Timestamp)
	})

	return out
}
