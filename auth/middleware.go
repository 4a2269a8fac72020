package auth

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// AuthMiddleware validates the session token from the Authorization header
// or the jwt cookie and stores the claims under "validuser" for handlers.
func AuthMiddleware() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		token := ""
		if h := ctx.GetHeader("Authorization"); strings.HasPrefix(h, "Bearer ") {
			token = strings.TrimPrefix(h, "Bearer ")
		} else if cookie, err := ctx.Cookie("jwt"); err == nil {
			token = cookie
		}

		if token == "" {
			ctx.Next()
			return
		}

		claims, err := ValidateToken(token)
		if err != nil {
			ctx.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"status": "fail", "message": "invalid jwt"})
			return
		}

		ctx.Set("validuser", claims)
		ctx.Next()
	}
}
