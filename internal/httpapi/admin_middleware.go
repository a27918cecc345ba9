package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/sessions"
)

// AdminOnly ensures the session's role is admin.
func AdminOnly() gin.HandlerFunc {
	return func(c *gin.Context) {
		sessionAny, _ := c.Get("session")
		sess, _ := sessionAny.(*sessions.Session)
		role, _ := sess.Values["role"].(string)
		if role != "admin" {
			respondError(c, http.StatusForbidden, "FORBIDDEN", "admin privileges required")
			c.Abort()
			return
		}
		c.Next()
	}
}

func requireLogin(c *gin.Context) (string, bool) {
	sessionAny, _ := c.Get("session")
	sess, _ := sessionAny.(*sessions.Session)
	userid, _ := sess.Values["userid"].(string)
	if userid == "" {
		respondError(c, http.StatusUnauthorized, "UNAUTHORIZED", "login required")
		return "", false
	}
	return userid, true
}
