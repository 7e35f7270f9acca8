// Package handler holds the gin handlers. They stay thin: parse the
// request, pick the session store for the origin, delegate to the engine,
// and render the result.
package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/smallbiznis/builder-auth/internal/config"
	"github.com/smallbiznis/builder-auth/internal/federation"
	httpmiddleware "github.com/smallbiznis/builder-auth/internal/http/middleware"
	"github.com/smallbiznis/builder-auth/internal/oauth"
	"github.com/smallbiznis/builder-auth/internal/password"
	"github.com/smallbiznis/builder-auth/internal/repository"
	"github.com/smallbiznis/builder-auth/internal/session"
)

// AuthHandler serves the authorization endpoints and the builder login
// routes.
type AuthHandler struct {
	cfg       config.Config
	oauthSvc  *oauth.Service
	discovery *oauth.DiscoveryService
	sessions  *session.Manager
	returnTo  *session.ReturnTo
	strategy  *federation.Strategy
	flow      *federation.Client
	users     repository.UserDirectory
	logger    *zap.Logger
}

// NewAuthHandler wires dependencies.
func NewAuthHandler(
	cfg config.Config,
	oauthSvc *oauth.Service,
	discovery *oauth.DiscoveryService,
	sessions *session.Manager,
	returnTo *session.ReturnTo,
	strategy *federation.Strategy,
	flow *federation.Client,
	users repository.UserDirectory,
	logger *zap.Logger,
) *AuthHandler {
	return &AuthHandler{
		cfg:       cfg,
		oauthSvc:  oauthSvc,
		discovery: discovery,
		sessions:  sessions,
		returnTo:  returnTo,
		strategy:  strategy,
		flow:      flow,
		users:     users,
		logger:    logger,
	}
}

// OAuthAuthorize handles GET /oauth/ws/authorize.
func (h *AuthHandler) OAuthAuthorize(c *gin.Context) {
	o := httpmiddleware.MustOrigin(c)

	requestURL := *c.Request.URL
	requestURL.Scheme = o.Scheme
	requestURL.Host = o.Host

	result := h.oauthSvc.Authorize(c.Request.Context(), oauth.AuthorizeInput{
		Origin:     o,
		RequestURL: &requestURL,
		User:       h.sessions.Auth.GetUser(c.Request),
	})

	if result.Body != nil {
		c.JSON(result.Status, result.Body)
		return
	}
	if result.SaveReturnTo != "" {
		h.returnTo.Save(c.Writer, result.SaveReturnTo)
	}
	c.Redirect(http.StatusFound, result.RedirectURL)
}

// Token handles POST /oauth/ws/token.
func (h *AuthHandler) Token(c *gin.Context) {
	var req oauth.TokenRequest
	if err := c.ShouldBind(&req); err != nil {
		bindErr := oauth.NewTokenError(http.StatusBadRequest, oauth.CodeInvalidRequest, "malformed request body")
		c.JSON(bindErr.Status, bindErr.Body())
		return
	}

	resp, oauthErr := h.oauthSvc.Exchange(c.Request.Context(), req)
	if oauthErr != nil {
		c.JSON(oauthErr.Status, oauthErr.Body())
		return
	}
	c.Header("Cache-Control", "no-store")
	c.JSON(http.StatusOK, resp)
}

// AuthWS handles GET /auth/ws: the builder-side entry into the federated
// login. It only exists on builder origins.
func (h *AuthHandler) AuthWS(c *gin.Context) {
	o := httpmiddleware.MustOrigin(c)
	if !o.IsBuilder() {
		h.notFound(c)
		return
	}

	returnTo := c.Query("returnTo")
	if returnTo == "" {
		returnTo = "/"
	}

	authorizeURL, err := h.flow.AuthorizationURL(c.Request.Context(), o, returnTo)
	if err != nil {
		h.log().Error("start federated login failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":             oauth.CodeServerError,
			"error_description": "could not start login",
		})
		return
	}
	c.Redirect(http.StatusFound, authorizeURL)
}

// AuthWSCallback handles GET /auth/ws/callback on builder origins: it
// redeems the code, authenticates the token, and establishes the builder
// session.
func (h *AuthHandler) AuthWSCallback(c *gin.Context) {
	o := httpmiddleware.MustOrigin(c)
	if !o.IsBuilder() {
		h.notFound(c)
		return
	}
	ctx := c.Request.Context()

	accessToken, returnTo, err := h.flow.Exchange(ctx, o, c.Request.URL.Query())
	if err == nil {
		authenticated, authErr := h.strategy.Authenticate(ctx, accessToken, o)
		if authErr != nil {
			err = authErr
		} else {
			h.sessions.Builder.SetUser(c.Writer, authenticated)
			if returnTo == "" {
				returnTo = "/"
			}
			c.Redirect(http.StatusFound, returnTo)
			return
		}
	}

	message := "Authentication failed"
	if errors.Is(err, federation.ErrUnauthorized) {
		message = err.Error()
	}
	h.log().Warn("federated login failed", zap.Error(err), zap.String("project_id", o.ProjectID))
	h.sessions.Builder.SetError(c.Writer, c.Request, message)
	c.Redirect(http.StatusFound, "/error")
}

// Login handles GET /login on the authorization server.
func (h *AuthHandler) Login(c *gin.Context) {
	o := httpmiddleware.MustOrigin(c)
	if o.IsBuilder() {
		h.notFound(c)
		return
	}

	rt := c.Query("returnTo")

	if user := h.sessions.Auth.GetUser(c.Request); user != nil {
		// Already signed in: go straight to the requested destination.
		target := rt
		if target == "" {
			target = h.returnTo.Take(c.Writer, c.Request)
		}
		c.Redirect(http.StatusFound, target)
		return
	}

	if rt != "" {
		h.returnTo.Save(c.Writer, rt)
	}

	if !h.cfg.DevLogin {
		c.JSON(http.StatusOK, gin.H{
			"message": "Sign in with your identity provider to continue.",
		})
		return
	}
	c.Data(http.StatusOK, "text/html; charset=utf-8", []byte(loginPage))
}

// DevLogin handles POST /auth/dev. It is only mounted in development and
// signs in the configured development user.
func (h *AuthHandler) DevLogin(c *gin.Context) {
	o := httpmiddleware.MustOrigin(c)
	if o.IsBuilder() || !h.cfg.DevLogin {
		h.notFound(c)
		return
	}

	if h.cfg.DevPasswordHash != "" {
		ok, err := password.Verify(c.PostForm("password"), h.cfg.DevPasswordHash)
		if err != nil || !ok {
			c.JSON(http.StatusUnauthorized, gin.H{
				"error":             "access_denied",
				"error_description": "invalid credentials",
			})
			return
		}
	}

	user, err := h.users.GetByID(c.Request.Context(), h.cfg.DevUserID)
	if err != nil {
		h.log().Error("resolve dev user failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":             oauth.CodeServerError,
			"error_description": "could not resolve user",
		})
		return
	}

	h.sessions.Auth.SetUser(c.Writer, user)
	c.Redirect(http.StatusFound, h.returnTo.Take(c.Writer, c.Request))
}

// Logout handles GET and POST /logout on both origin kinds.
func (h *AuthHandler) Logout(c *gin.Context) {
	o := httpmiddleware.MustOrigin(c)
	h.sessions.ForOrigin(o).Clear(c.Writer)

	target := "/"
	if !o.IsBuilder() {
		target = "/login"
	}
	c.Redirect(http.StatusFound, target)
}

// ErrorPage handles GET /error: it surfaces and clears the last auth error
// recorded in the session.
func (h *AuthHandler) ErrorPage(c *gin.Context) {
	o := httpmiddleware.MustOrigin(c)
	message := h.sessions.ForOrigin(o).TakeError(c.Writer, c.Request)
	if message == "" {
		message = "Unknown error"
	}
	c.JSON(http.StatusOK, gin.H{"error": message})
}

// Metadata handles GET /.well-known/oauth-authorization-server. The
// document describes the authorization server, so builder origins 404.
func (h *AuthHandler) Metadata(c *gin.Context) {
	o := httpmiddleware.MustOrigin(c)
	if o.IsBuilder() {
		h.notFound(c)
		return
	}
	c.JSON(http.StatusOK, h.discovery.Metadata(o.Scheme, o.Host))
}

// Healthz reports liveness.
func (h *AuthHandler) Healthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *AuthHandler) notFound(c *gin.Context) {
	c.JSON(http.StatusNotFound, gin.H{"error": "not_found"})
}

func (h *AuthHandler) log() *zap.Logger {
	if h != nil && h.logger != nil {
		return h.logger
	}
	return zap.L()
}

const loginPage = `<!doctype html>
<html>
<head><title>Sign in</title></head>
<body>
<form method="post" action="/auth/dev">
<label>Password <input type="password" name="password"></label>
<button type="submit">Sign in</button>
</form>
</body>
</html>`
