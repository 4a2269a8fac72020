package user

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"kawan/auth"
	"kawan/components/presence"
	"kawan/jsonrpc2"
	"kawan/session"
	"kawan/utils"

	"github.com/gin-gonic/gin"
	"github.com/go-logr/logr"
	"github.com/juju/ratelimit"
	"go.mongodb.org/mongo-driver/mongo"
)

var Logger logr.Logger = logr.Discard()

type UserRoute struct {
	userController UserController
	limiter        *ratelimit.Bucket
	google         *auth.GoogleProvider
	firebase       *auth.FirebaseProvider
	sessions       *session.Manager
}

func NewUserRoute(mongoclient *mongo.Client, ctx context.Context, l logr.Logger, limiter *ratelimit.Bucket, google *auth.GoogleProvider, firebase *auth.FirebaseProvider, sessions *session.Manager) UserRoute {
	Logger = l
	Logger.V(2).Info("NewUserRoute created")
	userCollection := mongoclient.Database("kawan").Collection("users")
	userService := NewUserService(userCollection, ctx)
	userController := NewUserController(userService)
	return UserRoute{userController, limiter, google, firebase, sessions}
}

func CheckAllowCredentials(ctx *gin.Context, res *ResponseUser, code int) *ResponseUser {
	if res != nil {
		a := ctx.GetHeader("Access-Control-Allow-Credentials")
		c := ctx.GetHeader("credentials")
		if Logger.V(2).Enabled() {
			msg := "request header :"
			for k, v := range ctx.Request.Header {
				msg = (fmt.Sprintf("%s\n%s: %s", msg, k, v))
			}
			Logger.V(2).Info(msg)
		}

		if a == "true" || c == "true" {
			Logger.V(2).Info("Set the JWT as an HTTP-only cookie")
			http.SetCookie(ctx.Writer, &http.Cookie{
				Name:     "jwt",
				Value:    res.JWT,
				HttpOnly: true,
				SameSite: http.SameSiteLaxMode,
				Expires:  time.Now().Add(25 * time.Hour),
				Path:     "/",
			})

			res.JWT = "#included"
		}
	}

	return res
}

func (me *UserRoute) InitRouteTo(rg *gin.RouterGroup) {
	router := rg.Group("/usr")
	router.POST("/rpc", me.RateLimit, me.RPCHandle)

	googleroute := rg.Group("google")
	googleroute.GET("/callback", me.GoogleCallback)
	googleroute.GET("/login", me.RateLimit, me.GoogleLogin)
}

// Google OAuth 2.0 login handler
func (me *UserRoute) GoogleLogin(c *gin.Context) {
	c.Redirect(http.StatusTemporaryRedirect, me.google.AuthCodeURL("state"))
}

// Google OAuth 2.0 callback handler
func (me *UserRoute) GoogleCallback(c *gin.Context) {
	code := c.Query("code")
	if code == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing code"})
		return
	}

	res, e, retcode := me.login(c, me.google, code)
	if e != nil {
		c.JSON(retcode, gin.H{"error": e.Message})
		return
	}
	CheckAllowCredentials(c, res, retcode)

	c.Redirect(http.StatusTemporaryRedirect, "/")
}

func (me *UserRoute) RateLimit(ctx *gin.Context) {
	// Check if the request is allowed by the rate limiter
	if me.limiter.TakeAvailable(1) == 0 {
		// The request is not allowed, so return an error
		ctx.AbortWithStatus(http.StatusTooManyRequests)
		return
	}
	ctx.Next()
}

func (me *UserRoute) GetUserService() I_UserRepo {
	return me.userController.userService
}

func (me *UserRoute) RPCHandle(ctx *gin.Context) {
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

	statuscode := http.StatusBadRequest
	switch jreq.Method {
	case "Login":
		statuscode = me.method_Login(ctx, &jreq, jres)
	case "Logout":
		statuscode = me.method_Logout(ctx, &jreq, jres)
	case "RefreshToken":
		statuscode = me.method_RefreshToken(ctx, &jreq, jres)
	case "GetSelf":
		statuscode = me.method_GetSelf(ctx, &jreq, jres)
	case "UpdatePrivacy":
		statuscode = me.method_UpdatePrivacy(ctx, &jreq, jres)
	case "SetPresence":
		statuscode = me.method_SetPresence(ctx, &jreq, jres)
	case "Heartbeat":
		statuscode = me.method_Heartbeat(ctx, &jreq, jres)
	default:
		jres.Error = &jsonrpc2.RPCError{Code: http.StatusMethodNotAllowed, Message: "method not allowed"}
	}

	if jres.Error != nil {
		Logger.Error(fmt.Errorf(jres.Error.Message), "response with error")
	}
	ctx.JSON(statuscode, jres)
}

// login runs the provider exchange and opens the session for the
// resulting identity.
func (me *UserRoute) login(ctx *gin.Context, provider auth.I_Provider, credential string) (*ResponseUser, *jsonrpc2.RPCError, int) {
	res, e, code := me.userController.Login(ctx.Request.Context(), provider, credential)
	if e != nil {
		return res, e, code
	}

	identity := &auth.Identity{UID: res.UID, Name: res.Name, Email: res.Email, Avatar: res.Avatar}
	me.sessions.SignIn(identity, res.JWT, res.AppearOffline)

	return res, nil, code
}

func (me *UserRoute) method_Login(ctx *gin.Context, jreq *jsonrpc2.RPCRequest, jres *jsonrpc2.RPCResponse) int {
	var login *LoginRequest
	err := json.Unmarshal(jreq.Params, &login)
	if err != nil {
		jres.Error = &jsonrpc2.RPCError{Code: http.StatusBadRequest, Message: err.Error()}
		return http.StatusBadRequest
	}

	var provider auth.I_Provider
	switch login.Provider {
	case "google":
		if me.google != nil {
			provider = me.google
		}
	case "firebase", "":
		if me.firebase != nil {
			provider = me.firebase
		}
	default:
		jres.Error = &jsonrpc2.RPCError{Code: http.StatusBadRequest, Message: "unknown provider"}
		return http.StatusBadRequest
	}
	if provider == nil {
		jres.Error = &jsonrpc2.RPCError{Code: http.StatusServiceUnavailable, Message: "provider not configured"}
		return http.StatusServiceUnavailable
	}

	res, e, code := me.login(ctx, provider, login.Credential)
	res = CheckAllowCredentials(ctx, res, code)
	jres.Result, _ = utils.ToRawMessage(res)
	jres.Error = e

	return code
}

func (me *UserRoute) method_Logout(ctx *gin.Context, jreq *jsonrpc2.RPCRequest, jres *jsonrpc2.RPCResponse) int {
	vuser, ok := ctx.Get("validuser")
	if !ok {
		jres.Error = &jsonrpc2.RPCError{Code: http.StatusUnauthorized, Message: "unauthorized"}
		return http.StatusUnauthorized
	}

	validuser := vuser.(*auth.Claims)

	// closing the session forces an immediate offline write
	me.sessions.SignOut(validuser.GetUID())

	http.SetCookie(ctx.Writer, &http.Cookie{
		Name:     "jwt",
		Value:    "",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Expires:  time.Unix(0, 0),
		Path:     "/",
	})

	jres.Result, _ = utils.ToRawMessage(&ResponseStatus{UID: validuser.GetUID(), Status: "success"})
	return http.StatusOK
}

func (me *UserRoute) method_RefreshToken(ctx *gin.Context, jreq *jsonrpc2.RPCRequest, jres *jsonrpc2.RPCResponse) int {
	vuser, ok := ctx.Get("validuser")
	if !ok {
		jres.Error = &jsonrpc2.RPCError{Code: http.StatusUnauthorized, Message: "unauthorized"}
		return http.StatusUnauthorized
	}

	var reg *GetUserRequest
	err := json.Unmarshal(jreq.Params, &reg)
	if err != nil {
		jres.Error = &jsonrpc2.RPCError{Code: http.StatusBadRequest, Message: err.Error()}
		return http.StatusBadRequest
	}

	validuser := vuser.(*auth.Claims)
	expiresAt := time.Unix(validuser.ExpiresAt, 0)
	//check if token has been expired more than duration
	if !time.Now().Add(time.Hour * 12).After(expiresAt) {
		jres.Error = &jsonrpc2.RPCError{Code: http.StatusUnauthorized, Message: "session expired"}
		return http.StatusUnauthorized
	}

	if validuser.GetUID() != reg.UID {
		jres.Error = &jsonrpc2.RPCError{Code: http.StatusBadRequest, Message: "ilegal jwt"}
		return http.StatusBadRequest
	}

	res, e, code := me.userController.GetSelf(validuser)
	if e == nil {
		res.JWT, _ = auth.CreateJWTToken(res.UID, res.Name, res.Email)
	}
	res = CheckAllowCredentials(ctx, res, code)
	jres.Result, _ = utils.ToRawMessage(res)
	jres.Error = e

	return code
}

func (me *UserRoute) method_GetSelf(ctx *gin.Context, jreq *jsonrpc2.RPCRequest, jres *jsonrpc2.RPCResponse) int {
	vuser, ok := ctx.Get("validuser")
	if !ok {
		jres.Error = &jsonrpc2.RPCError{Code: http.StatusUnauthorized, Message: "unauthorized"}
		return http.StatusUnauthorized
	}

	validuser := vuser.(*auth.Claims)
	if validuser.IsExpired() {
		jres.Error = &jsonrpc2.RPCError{Code: http.StatusUnauthorized, Message: "session expired"}
		return http.StatusUnauthorized
	}

	res, e, code := me.userController.GetSelf(validuser)
	jres.Result, _ = utils.ToRawMessage(res)
	jres.Error = e

	return code
}

func (me *UserRoute) method_UpdatePrivacy(ctx *gin.Context, jreq *jsonrpc2.RPCRequest, jres *jsonrpc2.RPCResponse) int {
	vuser, ok := ctx.Get("validuser")
	if !ok {
		jres.Error = &jsonrpc2.RPCError{Code: http.StatusUnauthorized, Message: "unauthorized"}
		return http.StatusUnauthorized
	}

	validuser := vuser.(*auth.Claims)
	if validuser.IsExpired() {
		jres.Error = &jsonrpc2.RPCError{Code: http.StatusUnauthorized, Message: "session expired"}
		return http.StatusUnauthorized
	}

	var reg *PrivacyRequest
	err := json.Unmarshal(jreq.Params, &reg)
	if err != nil {
		jres.Error = &jsonrpc2.RPCError{Code: http.StatusBadRequest, Message: err.Error()}
		return http.StatusBadRequest
	}

	if reg.UID != "" && validuser.GetUID() != reg.UID {
		jres.Error = &jsonrpc2.RPCError{Code: http.StatusBadRequest, Message: "ilegal jwt"}
		return http.StatusBadRequest
	}

	res, e, code := me.userController.UpdatePrivacy(validuser, reg)
	jres.Result, _ = utils.ToRawMessage(res)
	jres.Error = e

	// appearing offline must stick even if the tracker writes later
	if e == nil && reg.AppearOffline != nil && *reg.AppearOffline {
		if s := me.sessions.Get(validuser.GetUID()); s != nil {
			_ = s.Tracker.SetPresence(false, true)
		}
	}

	return code
}

func (me *UserRoute) method_SetPresence(ctx *gin.Context, jreq *jsonrpc2.RPCRequest, jres *jsonrpc2.RPCResponse) int {
	vuser, ok := ctx.Get("validuser")
	if !ok {
		jres.Error = &jsonrpc2.RPCError{Code: http.StatusUnauthorized, Message: "unauthorized"}
		return http.StatusUnauthorized
	}

	validuser := vuser.(*auth.Claims)

	var reg *presence.SetPresenceRequest
	err := json.Unmarshal(jreq.Params, &reg)
	if err != nil {
		jres.Error = &jsonrpc2.RPCError{Code: http.StatusBadRequest, Message: err.Error()}
		return http.StatusBadRequest
	}

	s := me.sessions.Get(validuser.GetUID())
	if s == nil {
		jres.Error = &jsonrpc2.RPCError{Code: http.StatusUnauthorized, Message: "no active session"}
		return http.StatusUnauthorized
	}

	if err := s.Tracker.SetPresence(reg.Online, reg.Immediate); err != nil {
		jres.Error = &jsonrpc2.RPCError{Code: http.StatusInternalServerError, Message: err.Error()}
		return http.StatusOK
	}

	jres.Result, _ = utils.ToRawMessage(&ResponseStatus{UID: validuser.GetUID(), Status: "success"})
	return http.StatusOK
}

func (me *UserRoute) method_Heartbeat(ctx *gin.Context, jreq *jsonrpc2.RPCRequest, jres *jsonrpc2.RPCResponse) int {
	vuser, ok := ctx.Get("validuser")
	if !ok {
		jres.Error = &jsonrpc2.RPCError{Code: http.StatusUnauthorized, Message: "unauthorized"}
		return http.StatusUnauthorized
	}

	validuser := vuser.(*auth.Claims)

	s := me.sessions.Get(validuser.GetUID())
	if s == nil {
		jres.Error = &jsonrpc2.RPCError{Code: http.StatusUnauthorized, Message: "no active session"}
		return http.StatusUnauthorized
	}

	s.Tracker.Activity()

	jres.Result, _ = utils.ToRawMessage(&ResponseStatus{UID: validuser.GetUID(), Status: "success"})
	return http.StatusOK
}
