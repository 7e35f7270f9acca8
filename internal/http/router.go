package http

import (
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/smallbiznis/builder-auth/internal/config"
	"github.com/smallbiznis/builder-auth/internal/http/handler"
	httpmiddleware "github.com/smallbiznis/builder-auth/internal/http/middleware"
	"github.com/smallbiznis/builder-auth/internal/middleware"
)

// NewRouter wires gin routes and middleware. One router serves both the
// authorization server and every builder subdomain; handlers branch on the
// request origin.
func NewRouter(cfg config.Config, authHandler *handler.AuthHandler, rateLimiter *middleware.RateLimiter) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(httpmiddleware.Origin())
	r.Use(httpmiddleware.RequestLogger(nil))
	if rateLimiter != nil {
		r.Use(rateLimiter.Handler())
	}
	r.Use(middleware.CORS(cfg))
	r.Use(otelgin.Middleware(cfg.ServiceName))

	oauthGroup := r.Group("/oauth/ws")
	{
		oauthGroup.GET("/authorize", authHandler.OAuthAuthorize)
		oauthGroup.POST("/token", authHandler.Token)
	}

	authGroup := r.Group("/auth")
	{
		authGroup.GET("/ws", authHandler.AuthWS)
		authGroup.GET("/ws/callback", authHandler.AuthWSCallback)
		authGroup.POST("/dev", authHandler.DevLogin)
	}

	r.GET("/login", authHandler.Login)
	r.GET("/logout", authHandler.Logout)
	r.POST("/logout", authHandler.Logout)
	r.GET("/error", authHandler.ErrorPage)

	r.GET("/.well-known/oauth-authorization-server", authHandler.Metadata)
	r.GET("/healthz", authHandler.Healthz)

	return r
}
