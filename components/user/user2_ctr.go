package user

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"kawan/auth"
	"kawan/jsonrpc2"
	"kawan/store"
	"kawan/utils"

	"go.mongodb.org/mongo-driver/bson"
)

type UserController struct {
	userService I_UserRepo
}

func NewUserController(userService I_UserRepo) UserController {
	return UserController{userService}
}

// EnsureUser is the session bootstrap: create the record on first
// sign-in, otherwise merge the latest provider identity into it without
// touching accumulated friends, requests or notifications. Running it
// twice with the same identity persists the same state.
func (me *UserController) EnsureUser(identity *auth.Identity) (*DBUser, error) {
	existing, err := me.userService.FindUserById(identity.UID)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			return nil, err
		}
		return me.userService.CreateUser(NewDefaultUser(identity.UID, identity.Name, identity.Email, identity.Avatar))
	}

	fields := bson.M{"last_login": time.Now()}
	if identity.Name != "" {
		fields["name"] = identity.Name
	}
	if identity.Email != "" {
		fields["email"] = utils.NormalizeEmail(identity.Email)
	}
	if identity.Avatar != "" {
		fields["avatar"] = utils.UpgradeAvatar(identity.Avatar)
	}
	if !existing.AppearOffline {
		fields["isOnline"] = true
		fields["lastSeen"] = time.Now()
	}

	return me.userService.MergeUser(identity.UID, fields)
}

// Login exchanges a provider credential for a signed session token. A
// bootstrap persistence failure is logged and the sign-in proceeds
// anyway; the record is reconciled on the next presence write.
func (me *UserController) Login(ctx context.Context, provider auth.I_Provider, credential string) (*ResponseUser, *jsonrpc2.RPCError, int) {
	if credential == "" {
		return nil, jsonrpc2.NewError(http.StatusBadRequest, "credential can not empty"), http.StatusOK
	}

	identity, err := provider.Verify(ctx, credential)
	if err != nil {
		Logger.Error(err, "provider verification failed")
		return nil, jsonrpc2.NewError(http.StatusUnauthorized, store.Message(store.ErrNotAuthenticated)), http.StatusOK
	}

	res := &ResponseUser{
		UID:                 identity.UID,
		Name:                identity.Name,
		Email:               utils.NormalizeEmail(identity.Email),
		Avatar:              utils.UpgradeAvatar(identity.Avatar),
		IsOnline:            true,
		OnlineStatusPrivacy: PrivacyFriends,
	}

	if record, err := me.EnsureUser(identity); err != nil {
		Logger.Error(err, fmt.Sprintf("session bootstrap write failed for %s, continuing with provider identity", identity.UID))
	} else {
		utils.CopyStruct(record, res)
	}

	token, err := auth.CreateJWTToken(identity.UID, identity.Name, identity.Email)
	if err != nil {
		return nil, jsonrpc2.NewError(http.StatusInternalServerError, "failed to create session token"), http.StatusOK
	}
	res.JWT = token

	return res, nil, http.StatusOK
}

func (me *UserController) GetSelf(validuser *auth.Claims) (*ResponseUser, *jsonrpc2.RPCError, int) {
	Logger.V(2).Info(fmt.Sprintf("get self %s", validuser.GetUID()))

	user, err := me.userService.FindUserById(validuser.GetUID())
	if err != nil {
		return nil, jsonrpc2.NewError(store.CodeOf(err), store.Message(err)), http.StatusOK
	}

	var res ResponseUser
	utils.CopyStruct(user, &res)

	return &res, nil, http.StatusOK
}

// UpdatePrivacy changes the presence visibility controls. Turning on
// appearOffline also drops the stored online flag so the change shows
// without waiting for the next presence write.
func (me *UserController) UpdatePrivacy(validuser *auth.Claims, req *PrivacyRequest) (*ResponseStatus, *jsonrpc2.RPCError, int) {
	Logger.V(2).Info(fmt.Sprintf("update privacy %s", validuser.GetUID()))

	fields := bson.M{}
	if req.OnlineStatusPrivacy != "" {
		valid := false
		for _, p := range ValidPrivacies {
			if req.OnlineStatusPrivacy == p {
				valid = true
				break
			}
		}
		if !valid {
			return nil, jsonrpc2.NewError(http.StatusBadRequest, "unknown privacy value"), http.StatusOK
		}
		fields["onlineStatusPrivacy"] = req.OnlineStatusPrivacy
	}

	if req.AppearOffline != nil {
		fields["appearOffline"] = *req.AppearOffline
		if *req.AppearOffline {
			fields["isOnline"] = false
		}
	}

	if len(fields) == 0 {
		return nil, jsonrpc2.NewError(http.StatusBadRequest, "nothing to update"), http.StatusOK
	}

	if _, err := me.userService.MergeUser(validuser.GetUID(), fields); err != nil {
		return nil, jsonrpc2.NewError(store.CodeOf(err), store.Message(err)), http.StatusOK
	}

	return &ResponseStatus{UID: validuser.GetUID(), Status: "success"}, nil, http.StatusOK
}
