package inbox

import (
	"fmt"
	"net/http"
	"time"

	"kawan/auth"
	"kawan/jsonrpc2"
	"kawan/store"
)

type ResponseStatus struct {
	UID    string `json:"uid"`
	Status string `json:"status"`
}

type InboxResponse struct {
	UID           string          `json:"uid"`
	Notifications []*Notification `json:"notifications"`
}

// MarkReadRequest points at one entry, by id or by the legacy tuple.
type MarkReadRequest struct {
	UID          string       `json:"uid"`
	Notification Notification `json:"notification"`
}

type InboxController struct {
	inboxService I_InboxRepo
}

func NewInboxController(inboxService I_InboxRepo) InboxController {
	return InboxController{inboxService}
}

// GetNotifications returns the visible inbox, newest first. Call
// notifications that went stale or left ringing are already filtered
// out here rather than on the client.
func (me *InboxController) GetNotifications(validuser *auth.Claims) (*InboxResponse, *jsonrpc2.RPCError, int) {
	Logger.V(2).Info(fmt.Sprintf("get notifications %s", validuser.GetUID()))

	list, err := me.inboxService.List(validuser.GetUID())
	if err != nil {
		return nil, jsonrpc2.NewError(store.CodeOf(err), store.Message(err)), http.StatusOK
	}

	return &InboxResponse{
		UID:           validuser.GetUID(),
		Notifications: FilterVisible(list, time.Now()),
	}, nil, http.StatusOK
}

// MarkRead flips one entry to read. Marking an entry that is already
// read reports success again.
func (me *InboxController) MarkRead(validuser *auth.Claims, n *Notification) (*ResponseStatus, *jsonrpc2.RPCError, int) {
	if n == nil || (n.ID == "" && n.Type == "") {
		return nil, jsonrpc2.NewError(http.StatusBadRequest, "notification reference can not empty"), http.StatusOK
	}

	if err := me.inboxService.MarkRead(validuser.GetUID(), n); err != nil {
		return nil, jsonrpc2.NewError(store.CodeOf(err), store.Message(err)), http.StatusOK
	}

	return &ResponseStatus{UID: validuser.GetUID(), Status: "success"}, nil, http.StatusOK
}

func (me *InboxController) ClearAll(validuser *auth.Claims) (*ResponseStatus, *jsonrpc2.RPCError, int) {
	if err := me.inboxService.Clear(validuser.GetUID()); err != nil {
		return nil, jsonrpc2.NewError(store.CodeOf(err), store.Message(err)), http.StatusOK
	}

	return &ResponseStatus{UID: validuser.GetUID(), Status: "success"}, nil, http.StatusOK
}
