package inbox

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"kawan/auth"
	"kawan/jsonrpc2"
	"kawan/utils"

	"github.com/gin-gonic/gin"
	"github.com/go-logr/logr"
	"github.com/juju/ratelimit"
	"go.mongodb.org/mongo-driver/mongo"
)

var Logger logr.Logger = logr.Discard()

type InboxRoute struct {
	inboxController InboxController
	limiter         *ratelimit.Bucket
}

func NewInboxRoute(mongoclient *mongo.Client, ctx context.Context, l logr.Logger, limiter *ratelimit.Bucket) InboxRoute {
	Logger = l
	Logger.V(2).Info("NewInboxRoute created")
	userCollection := mongoclient.Database("kawan").Collection("users")
	inboxService := NewInboxService(userCollection, ctx)
	inboxController := NewInboxController(inboxService)
	return InboxRoute{inboxController, limiter}
}

func (me *InboxRoute) InitRouteTo(rg *gin.RouterGroup) {
	router := rg.Group("/inbox")
	router.POST("/rpc", me.RateLimit, me.RPCHandle)
}

func (me *InboxRoute) RateLimit(ctx *gin.Context) {
	// Check if the request is allowed by the rate limiter
	if me.limiter.TakeAvailable(1) == 0 {
		// The request is not allowed, so return an error
		ctx.AbortWithStatus(http.StatusTooManyRequests)
		return
	}
	ctx.Next()
}

func (me *InboxRoute) GetInboxService() I_InboxRepo {
	return me.inboxController.inboxService
}

func (me *InboxRoute) RPCHandle(ctx *gin.Context) {
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
	case "GetNotifications":
		statuscode = me.method_GetNotifications(validuser, &jreq, jres)
	case "MarkRead":
		statuscode = me.method_MarkRead(validuser, &jreq, jres)
	case "ClearAll":
		statuscode = me.method_ClearAll(validuser, &jreq, jres)
	default:
		jres.Error = &jsonrpc2.RPCError{Code: http.StatusMethodNotAllowed, Message: "method not allowed"}
	}

	if jres.Error != nil {
		Logger.Error(fmt.Errorf(jres.Error.Message), "response with error")
	}
	ctx.JSON(statuscode, jres)
}

func (me *InboxRoute) method_GetNotifications(validuser *auth.Claims, jreq *jsonrpc2.RPCRequest, jres *jsonrpc2.RPCResponse) int {
	res, e, code := me.inboxController.GetNotifications(validuser)
	jres.Result, _ = utils.ToRawMessage(res)
	jres.Error = e

	return code
}

func (me *InboxRoute) method_MarkRead(validuser *auth.Claims, jreq *jsonrpc2.RPCRequest, jres *jsonrpc2.RPCResponse) int {
	var form *MarkReadRequest
	err := json.Unmarshal(jreq.Params, &form)
	if err != nil {
		jres.Error = &jsonrpc2.RPCError{Code: http.StatusBadRequest, Message: err.Error()}
		return http.StatusBadRequest
	}

	res, e, code := me.inboxController.MarkRead(validuser, &form.Notification)
	jres.Result, _ = utils.ToRawMessage(res)
	jres.Error = e

	return code
}

func (me *InboxRoute) method_ClearAll(validuser *auth.Claims, jreq *jsonrpc2.RPCRequest, jres *jsonrpc2.RPCResponse) int {
	res, e, code := me.inboxController.ClearAll(validuser)
	jres.Result, _ = utils.ToRawMessage(res)
	jres.Error = e

	return code
}
