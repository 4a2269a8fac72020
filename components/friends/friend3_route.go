package friends

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"kawan/auth"
	"kawan/components/inbox"
	"kawan/jsonrpc2"
	"kawan/utils"

	"github.com/gin-gonic/gin"
	"github.com/go-logr/logr"
	"github.com/juju/ratelimit"
	"go.mongodb.org/mongo-driver/mongo"
)

var Logger logr.Logger = logr.Discard()

type FriendRoute struct {
	friendController FriendController
	limiter          *ratelimit.Bucket
}

func NewFriendRoute(mongoclient *mongo.Client, ctx context.Context, l logr.Logger, limiter *ratelimit.Bucket) FriendRoute {
	Logger = l
	Logger.V(2).Info("NewFriendRoute created")
	userCollection := mongoclient.Database("kawan").Collection("users")
	friendService := NewFriendService(userCollection, ctx)
	inboxService := inbox.NewInboxService(userCollection, ctx)
	friendController := NewFriendController(friendService, inboxService, limiter)
	return FriendRoute{friendController, limiter}
}

func (me *FriendRoute) InitRouteTo(rg *gin.RouterGroup) {
	router := rg.Group("/friend")
	router.POST("/rpc", me.RateLimit, me.RPCHandle)
}

func (me *FriendRoute) RateLimit(ctx *gin.Context) {
	// Check if the request is allowed by the rate limiter
	if me.limiter.TakeAvailable(1) == 0 {
		// The request is not allowed, so return an error
		ctx.AbortWithStatus(http.StatusTooManyRequests)
		return
	}
	ctx.Next()
}

func (me *FriendRoute) GetFriendService() I_FriendRepo {
	return me.friendController.friendService
}

func (me *FriendRoute) RPCHandle(ctx *gin.Context) {
	var jreq jsonrpc2.RPCRequest
	if err := ctx.ShouldBindJSON(&jreq); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"status": "jsonrpc fail", "message": err.Error()})
		return
	}

	Logger.V(2).Info(fmt.Sprintf("RPCHandle %s", jreq.Method))

	jres := &jsonrpc2.RPCResponse{
		JSONRPC: "2.0",
		ID:      jreq.ID,
	}

	vuser, ok := ctx.Get("validuser")
	if !ok {
		jres.Error = &jsonrpc2.RPCError{Code: http.StatusUnauthorized, Message: "unauthorized"}
		ctx.JSON(http.StatusUnauthorized, jres)
		return
	}

	validuser := vuser.(*auth.Claims)
	if validuser.IsExpired() {
		jres.Error = &jsonrpc2.RPCError{Code: http.StatusUnauthorized, Message: "session expired"}
		ctx.JSON(http.StatusUnauthorized, jres)
		return
	}

	statuscode := http.StatusBadRequest
	switch jreq.Method {
	case "SendRequest":
		statuscode = me.method_SendRequest(validuser, &jreq, jres)
	case "AcceptRequest":
		statuscode = me.method_AcceptRequest(validuser, &jreq, jres)
	case "DeclineRequest":
		statuscode = me.method_DeclineRequest(validuser, &jreq, jres)
	case "Unfriend":
		statuscode = me.method_Unfriend(validuser, &jreq, jres)
	case "IsFriend":
		statuscode = me.method_IsFriend(validuser, &jreq, jres)
	case "ListRequests":
		statuscode = me.method_ListRequests(validuser, &jreq, jres)
	default:
		jres.Error = &jsonrpc2.RPCError{Code: http.StatusMethodNotAllowed, Message: "method not allowed"}
	}

	if jres.Error != nil {
		Logger.Error(fmt.Errorf(jres.Error.Message), "response with error")
	}
	ctx.JSON(statuscode, jres)
}

func (me *FriendRoute) method_SendRequest(validuser *auth.Claims, jreq *jsonrpc2.RPCRequest, jres *jsonrpc2.RPCResponse) int {
	var form *SendRequestForm
	err := json.Unmarshal(jreq.Params, &form)
	if err != nil {
		jres.Error = &jsonrpc2.RPCError{Code: http.StatusBadRequest, Message: err.Error()}
		return http.StatusBadRequest
	}

	if form.UID != "" && validuser.GetUID() != form.UID {
		jres.Error = &jsonrpc2.RPCError{Code: http.StatusBadRequest, Message: "ilegal jwt"}
		return http.StatusBadRequest
	}

	res, e, code := me.friendController.SendRequest(validuser, form.Target)
	jres.Result, _ = utils.ToRawMessage(res)
	jres.Error = e

	return code
}

func (me *FriendRoute) method_AcceptRequest(validuser *auth.Claims, jreq *jsonrpc2.RPCRequest, jres *jsonrpc2.RPCResponse) int {
	var form *RequestRef
	err := json.Unmarshal(jreq.Params, &form)
	if err != nil {
		jres.Error = &jsonrpc2.RPCError{Code: http.StatusBadRequest, Message: err.Error()}
		return http.StatusBadRequest
	}

	res, e, code := me.friendController.AcceptRequest(validuser, form.Request)
	jres.Result, _ = utils.ToRawMessage(res)
	jres.Error = e

	return code
}

func (me *FriendRoute) method_DeclineRequest(validuser *auth.Claims, jreq *jsonrpc2.RPCRequest, jres *jsonrpc2.RPCResponse) int {
	var form *RequestRef
	err := json.Unmarshal(jreq.Params, &form)
	if err != nil {
		jres.Error = &jsonrpc2.RPCError{Code: http.StatusBadRequest, Message: err.Error()}
		return http.StatusBadRequest
	}

	res, e, code := me.friendController.DeclineRequest(validuser, form.Request)
	jres.Result, _ = utils.ToRawMessage(res)
	jres.Error = e

	return code
}

func (me *FriendRoute) method_Unfriend(validuser *auth.Claims, jreq *jsonrpc2.RPCRequest, jres *jsonrpc2.RPCResponse) int {
	var form *TargetForm
	err := json.Unmarshal(jreq.Params, &form)
	if err != nil {
		jres.Error = &jsonrpc2.RPCError{Code: http.StatusBadRequest, Message: err.Error()}
		return http.StatusBadRequest
	}

	res, e, code := me.friendController.Unfriend(validuser, form.Target)
	jres.Result, _ = utils.ToRawMessage(res)
	jres.Error = e

	return code
}

func (me *FriendRoute) method_IsFriend(validuser *auth.Claims, jreq *jsonrpc2.RPCRequest, jres *jsonrpc2.RPCResponse) int {
	var form *TargetForm
	err := json.Unmarshal(jreq.Params, &form)
	if err != nil {
		jres.Error = &jsonrpc2.RPCError{Code: http.StatusBadRequest, Message: err.Error()}
		return http.StatusBadRequest
	}

	res, e, code := me.friendController.IsFriend(validuser, form.Target)
	jres.Result, _ = utils.ToRawMessage(res)
	jres.Error = e

	return code
}

func (me *FriendRoute) method_ListRequests(validuser *auth.Claims, jreq *jsonrpc2.RPCRequest, jres *jsonrpc2.RPCResponse) int {
	res, e, code := me.friendController.ListRequests(validuser)
	jres.Result, _ = utils.ToRawMessage(res)
	jres.Error = e

	return code
}
