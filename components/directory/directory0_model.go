package directory

import "time"

type SearchRequest struct {
	UID     string `json:"uid"`
	Keyword string `json:"keyword"`
}

type PresenceRequest struct {
	UID    string `json:"uid"`
	Target string `json:"target"`
}

// Entry is a directory row as one particular viewer sees it: presence
// fields are already masked by the target's privacy rule.
type Entry struct {
	UID      string    `json:"uid"`
	Name     string    `json:"name"`
	Email    string    `json:"email"`
	Avatar   string    `json:"avatar"`
	IsFriend bool      `json:"isFriend"`
	IsOnline bool      `json:"isOnline"`
	LastSeen time.Time `json:"lastSeen,omitempty"`
	Visible  bool      `json:"visible"`
}

type SearchResponse struct {
	UID     string   `json:"uid"`
	Keyword string   `json:"keyword"`
	Entries []*Entry `json:"entries"`
}
