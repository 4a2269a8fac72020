package directory

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"kawan/auth"
	"kawan/components/presence"
	"kawan/components/user"
	"kawan/jsonrpc2"
	"kawan/utils"

	"github.com/gin-gonic/gin"
	"github.com/go-logr/logr"
	"github.com/juju/ratelimit"
	"go.mongodb.org/mongo-driver/mongo"
)

var Logger logr.Logger = logr.Discard()

type DirectoryRoute struct {
	directoryController DirectoryController
	limiter             *ratelimit.Bucket
}

func NewDirectoryRoute(mongoclient *mongo.Client, ctx context.Context, l logr.Logger, limiter *ratelimit.Bucket, cache *presence.Cache) DirectoryRoute {
	Logger = l
	Logger.V(2).Info("NewDirectoryRoute created")
	userCollection := mongoclient.Database("kawan").Collection("users")
	userService := user.NewUserService(userCollection, ctx)
	directoryService := NewDirectoryService(userService)
	directoryController := NewDirectoryController(directoryService, userService, cache)
	return DirectoryRoute{directoryController, limiter}
}

func (me *DirectoryRoute) InitRouteTo(rg *gin.RouterGroup) {
	router := rg.Group("/directory")
	router.POST("/rpc", me.RateLimit, me.RPCHandle)
}

func (me *DirectoryRoute) RateLimit(ctx *gin.Context) {
	// Check if the request is allowed by the rate limiter
	if me.limiter.TakeAvailable(1) == 0 {
		// The request is not allowed, so return an error
		ctx.AbortWithStatus(http.StatusTooManyRequests)
		return
	}
	ctx.Next()
}

func (me *DirectoryRoute) GetDirectoryService() I_DirectoryRepo {
	return me.directoryController.directoryService
}

func (me *DirectoryRoute) RPCHandle(ctx *gin.Context) {
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
	case "SearchUser":
		statuscode = me.method_SearchUser(validuser, &jreq, jres)
	case "SearchFriends":
		statuscode = me.method_SearchFriends(validuser, &jreq, jres)
	case "GetPresence":
		statuscode = me.method_GetPresence(validuser, &jreq, jres)
	default:
		jres.Error = &jsonrpc2.RPCError{Code: http.StatusMethodNotAllowed, Message: "method not allowed"}
	}

	if jres.Error != nil {
		Logger.Error(fmt.Errorf(jres.Error.Message), "response with error")
	}
	ctx.JSON(statuscode, jres)
}

func (me *DirectoryRoute) method_SearchUser(validuser *auth.Claims, jreq *jsonrpc2.RPCRequest, jres *jsonrpc2.RPCResponse) int {
	var form *SearchRequest
	err := json.Unmarshal(jreq.Params, &form)
	if err != nil {
		jres.Error = &jsonrpc2.RPCError{Code: http.StatusBadRequest, Message: err.Error()}
		return http.StatusBadRequest
	}

	res, e, code := me.directoryController.SearchUsers(validuser, form.Keyword)
	jres.Result, _ = utils.ToRawMessage(res)
	jres.Error = e

	return code
}

func (me *DirectoryRoute) method_SearchFriends(validuser *auth.Claims, jreq *jsonrpc2.RPCRequest, jres *jsonrpc2.RPCResponse) int {
	var form *SearchRequest
	err := json.Unmarshal(jreq.Params, &form)
	if err != nil {
		jres.Error = &jsonrpc2.RPCError{Code: http.StatusBadRequest, Message: err.Error()}
		return http.StatusBadRequest
	}

	res, e, code := me.directoryController.SearchFriends(validuser, form.Keyword)
	jres.Result, _ = utils.ToRawMessage(res)
	jres.Error = e

	return code
}

func (me *DirectoryRoute) method_GetPresence(validuser *auth.Claims, jreq *jsonrpc2.RPCRequest, jres *jsonrpc2.RPCResponse) int {
	var form *PresenceRequest
	err := json.Unmarshal(jreq.Params, &form)
	if err != nil {
		jres.Error = &jsonrpc2.RPCError{Code: http.StatusBadRequest, Message: err.Error()}
		return http.StatusBadRequest
	}

	res, e, code := me.directoryController.GetPresence(validuser, form.Target)
	jres.Result, _ = utils.ToRawMessage(res)
	jres.Error = e

	return code
}
