package identity

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/oklog/ulid/v2"
)

const (
	// CookieName matches the identifier the web client persists for a year.
	CookieName = "ghibli_visitor_id"
	contextKey = "visitor_identity"

	cookieMaxAge = 365 * 24 * 60 * 60
)

// Middleware resolves the caller's Identity and stores it on the request
// context. First-contact visitors get a fresh token cookie.
func Middleware(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, err := c.Cookie(CookieName)
		if err != nil || token == "" {
			token = ulid.Make().String()
			c.SetSameSite(http.SameSiteLaxMode)
			c.SetCookie(CookieName, token, cookieMaxAge, "/", "", false, true)
		}
		c.Set(contextKey, Identity{
			Token:       token,
			AddressHash: HashAddress(secret, c.ClientIP()),
		})
		c.Next()
	}
}

// FromContext returns the Identity resolved by Middleware. The zero value
// is returned on routes that skip the middleware.
func FromContext(c *gin.Context) Identity {
	if v, ok := c.Get(contextKey); ok {
		if id, ok := v.(Identity); ok {
			return id
		}
	}
	return Identity{}
}
