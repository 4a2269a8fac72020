package friends

import (
	"kawan/components/user"
)

// SendRequestForm addresses the target by uid or by email; the
// controller resolves whichever is given.
type SendRequestForm struct {
	UID    string `json:"uid"`
	Target string `json:"target"`
}

// RequestRef points at a pending request on the caller's record, by
// surrogate id or by the (from, timestamp) fallback.
type RequestRef struct {
	UID     string              `json:"uid"`
	Request *user.FriendRequest `json:"request"`
}

type TargetForm struct {
	UID    string `json:"uid"`
	Target string `json:"target"`
}

type IsFriendResponse struct {
	UID    string `json:"uid"`
	Target string `json:"target"`
	Friend bool   `json:"friend"`
}

type RequestListResponse struct {
	UID      string                `json:"uid"`
	Requests []*user.FriendRequest `json:"requests"`
}
