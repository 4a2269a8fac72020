package presence

import (
	"kawan/utils"
	"time"
)

const (
	PrivacyEveryone = "everyone"
	PrivacyFriends  = "friends"
	PrivacyNobody   = "nobody"
)

// DebounceWait is the coalescing window for non-immediate presence
// updates; RetryDelay is how long a queued value waits after an
// in-flight write completes; IdleTimeout forces offline after silence.
const (
	DebounceWait = 1 * time.Second
	RetryDelay   = 500 * time.Millisecond
	IdleTimeout  = 30 * time.Second
)

type SetPresenceRequest struct {
	UID       string `json:"uid"`
	Online    bool   `json:"online"`
	Immediate bool   `json:"immediate"`
}

type PresenceResponse struct {
	UID      string    `json:"uid"`
	IsOnline bool      `json:"isOnline"`
	LastSeen time.Time `json:"lastSeen,omitempty"`
	Visible  bool      `json:"visible"`
}

// CanSeeOnlineStatus evaluates the target's privacy rule for a viewer.
// Self always sees itself; "everyone" opens up; "nobody" hides; the
// default "friends" requires the viewer in the target's friend set.
func CanSeeOnlineStatus(viewerUID, targetUID, privacy string, targetFriends []string) bool {
	if viewerUID == targetUID {
		return true
	}

	switch privacy {
	case PrivacyEveryone:
		return true
	case PrivacyNobody:
		return false
	default:
		return utils.StringInSlice(viewerUID, targetFriends)
	}
}
