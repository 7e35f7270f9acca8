package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/smallbiznis/builder-auth/internal/origin"
)

const ginOriginKey = "request_origin"

// Origin derives the request origin once per request and stashes it in the
// gin context. Every handler branches on it: builder subdomains and the
// authorization server share one router.
func Origin() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(ginOriginKey, origin.FromRequest(c.Request))
		c.Next()
	}
}

// GetOrigin returns the origin attached by the Origin middleware.
func GetOrigin(c *gin.Context) (origin.Origin, bool) {
	value, ok := c.Get(ginOriginKey)
	if !ok {
		return origin.Origin{}, false
	}
	o, ok := value.(origin.Origin)
	return o, ok
}

// MustOrigin returns the attached origin, deriving it on the spot when the
// middleware did not run (tests mostly).
func MustOrigin(c *gin.Context) origin.Origin {
	if o, ok := GetOrigin(c); ok {
		return o
	}
	return origin.FromRequest(c.Request)
}
