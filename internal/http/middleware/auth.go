package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/course-platform-backend/internal/auth"
)

// Gin context keys set by Authenticate.
const (
	userIDKey = "userID"
	roleKey   = "role"
	emailKey  = "email"

	// AccessTokenCookie is read when no Authorization header is sent.
	AccessTokenCookie = "access_token"
)

// UserID returns the authenticated user id, or "".
func UserID(c *gin.Context) string {
	v, _ := c.Get(userIDKey)
	return asString(v)
}

// Role returns the authenticated user's role, or "".
func Role(c *gin.Context) string {
	v, _ := c.Get(roleKey)
	return asString(v)
}

// Email returns the authenticated user's email, or "".
func Email(c *gin.Context) string {
	v, _ := c.Get(emailKey)
	return asString(v)
}

// bearerToken extracts the token from "Authorization: Bearer <t>" or the
// access_token cookie.
func bearerToken(c *gin.Context) string {
	if h := strings.TrimSpace(c.GetHeader("Authorization")); h != "" {
		scheme, tok, ok := strings.Cut(h, " ")
		if ok && strings.EqualFold(scheme, "Bearer") {
			return strings.TrimSpace(tok)
		}
		return ""
	}
	if ck, err := c.Cookie(AccessTokenCookie); err == nil {
		return strings.TrimSpace(ck)
	}
	return ""
}

func abortUnauthorized(c *gin.Context, msg string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
		"request_id": RequestIDFrom(c),
		"code":       "unauthorized",
		"message":    msg,
	})
}

// Authenticate validates the access token and stores user id, role and email
// in the context.
//
// With required=false a missing or unusable token lets the request through
// anonymously, so a stale cookie never hides public content.
func Authenticate(secret string, required bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		tok := bearerToken(c)
		if tok == "" {
			if required {
				abortUnauthorized(c, "authentication required")
				return
			}
			c.Next()
			return
		}

		claims, err := auth.ParseAccessToken(secret, tok)
		if err != nil && !required {
			LoggerFrom(c).Debug().Err(err).Msg("ignoring unusable token on optional auth")
			c.Next()
			return
		}
		if err != nil {
			msg := "invalid token"
			if errors.Is(err, auth.ErrTokenExpired) {
				msg = "token expired"
			}
			abortUnauthorized(c, msg)
			return
		}

		c.Set(userIDKey, claims.UserID)
		c.Set(roleKey, claims.Role)
		c.Set(emailKey, claims.Email)
		c.Next()
	}
}

// RequireRoles rejects authenticated users whose role is not listed. It must
// run after Authenticate(secret, true).
func RequireRoles(roles ...string) gin.HandlerFunc {
	allowed := make(map[string]struct{}, len(roles))
	for _, r := range roles {
		allowed[r] = struct{}{}
	}
	return func(c *gin.Context) {
		if UserID(c) == "" {
			abortUnauthorized(c, "authentication required")
			return
		}
		if _, ok := allowed[Role(c)]; !ok {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"request_id": RequestIDFrom(c),
				"code":       "forbidden",
				"message":    "insufficient permissions",
			})
			return
		}
		c.Next()
	}
}
