package handler_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/smallbiznis/builder-auth/internal/adapter/cache"
	"github.com/smallbiznis/builder-auth/internal/config"
	"github.com/smallbiznis/builder-auth/internal/federation"
	httptransport "github.com/smallbiznis/builder-auth/internal/http"
	"github.com/smallbiznis/builder-auth/internal/http/handler"
	"github.com/smallbiznis/builder-auth/internal/oauth"
	"github.com/smallbiznis/builder-auth/internal/pkce"
	"github.com/smallbiznis/builder-auth/internal/repository"
	"github.com/smallbiznis/builder-auth/internal/session"
	"github.com/smallbiznis/builder-auth/internal/token"
)

const (
	testProjectID    = "3f9a1f6e-8f0f-4f57-9a4a-6f2b9a3d1c2e"
	testClientID     = "builder-client"
	testClientSecret = "builder-client-secret-0123456789"
	authHost         = "apps.example.com"
	builderHost      = "p-" + testProjectID + "." + authHost
	callbackURL      = "https://" + builderHost + "/auth/ws/callback"
)

type stack struct {
	cfg      config.Config
	codec    *token.Codec
	sessions *session.Manager
	router   *gin.Engine
}

func newStack(t *testing.T, mutate ...func(*config.Config)) *stack {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := config.Config{
		Environment:        "test",
		ServiceName:        "builder-auth-test",
		AuthSecret:         "auth-secret-0123456789abcdef0123",
		ClientID:           testClientID,
		ClientSecret:       testClientSecret,
		TokenIssuer:        "builder-auth",
		CodeTokenTTL:       5 * time.Minute,
		AccessTokenTTL:     time.Minute,
		SessionTTL:         time.Hour,
		ReturnToTTL:        time.Minute,
		DevLogin:           true,
		DevUserID:          "user-1",
		ProjectAccess:      []string{"user-1:" + testProjectID},
		UserEmailDomain:    "example.com",
		CORSAllowedMethods: []string{"GET", "POST", "OPTIONS"},
		CORSAllowedHeaders: []string{"Authorization", "Content-Type"},
	}

	for _, m := range mutate {
		m(&cfg)
	}

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	codec := token.NewCodec(cfg.TokenIssuer)
	access := repository.NewStaticAccessRepo(cfg.ProjectAccess)
	users := repository.NewStaticUserDirectory(cfg.UserEmailDomain)
	states := cache.NewMemoryStateStore()
	codes := cache.NewMemoryCodeConsumer()

	svc := oauth.NewService(cfg, codec, access, codes, node, nil)
	sessions := session.NewManager(
		session.NewStore(session.AuthCookie, cfg.AuthSecret, cfg.SessionTTL, false),
		session.NewStore(session.BuilderCookie, cfg.ClientSecret, cfg.SessionTTL, false),
	)
	returnTo := session.NewReturnTo(cfg.ReturnToTTL, false)
	strategy := federation.NewStrategy(cfg, codec, access, users, nil)
	flow := federation.NewClient(cfg, states, nil, nil)

	h := handler.NewAuthHandler(cfg, svc, &oauth.DiscoveryService{}, sessions, returnTo, strategy, flow, users, nil)
	return &stack{
		cfg:      cfg,
		codec:    codec,
		sessions: sessions,
		router:   httptransport.NewRouter(cfg, h, nil),
	}
}

func (s *stack) do(req *http.Request, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	for _, c := range cookies {
		req.AddCookie(c)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func cookieByName(t *testing.T, w *httptest.ResponseRecorder, name string) *http.Cookie {
	t.Helper()
	for _, c := range w.Result().Cookies() {
		if c.Name == name {
			return c
		}
	}
	t.Fatalf("cookie %q not set", name)
	return nil
}

func authorizeRequestURL(overrides url.Values) string {
	q := url.Values{}
	q.Set("response_type", "code")
	q.Set("client_id", testClientID)
	q.Set("redirect_uri", callbackURL)
	q.Set("state", "state-123")
	q.Set("scope", "project:"+testProjectID)
	q.Set("code_challenge", pkce.Challenge("verifier-123"))
	q.Set("code_challenge_method", "S256")
	for key, values := range overrides {
		q[key] = values
	}
	return "https://" + authHost + "/oauth/ws/authorize?" + q.Encode()
}

func devLogin(t *testing.T, s *stack) *http.Cookie {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "https://"+authHost+"/auth/dev", strings.NewReader(""))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := s.do(req)
	require.Equal(t, http.StatusFound, w.Code)
	return cookieByName(t, w, session.AuthCookie)
}

func TestHealthz(t *testing.T) {
	s := newStack(t)
	w := s.do(httptest.NewRequest(http.MethodGet, "https://"+authHost+"/healthz", nil))
	require.Equal(t, http.StatusOK, w.Code)
}

func TestMetadata(t *testing.T) {
	s := newStack(t)
	w := s.do(httptest.NewRequest(http.MethodGet, "https://"+authHost+"/.well-known/oauth-authorization-server", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var doc oauth.AuthorizationServerMetadata
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &doc))
	require.Equal(t, "https://"+authHost, doc.Issuer)
	require.Equal(t, "https://"+authHost+"/oauth/ws/authorize", doc.AuthorizationEndpoint)
	require.Equal(t, []string{"S256"}, doc.CodeChallengeMethodsSupported)
}

func TestMetadataNotOnBuilderOrigin(t *testing.T) {
	s := newStack(t)
	w := s.do(httptest.NewRequest(http.MethodGet, "https://"+builderHost+"/.well-known/oauth-authorization-server", nil))
	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestAuthorizeAnonymousRedirectsToLogin(t *testing.T) {
	s := newStack(t)
	w := s.do(httptest.NewRequest(http.MethodGet, authorizeRequestURL(nil), nil))

	require.Equal(t, http.StatusFound, w.Code)
	require.Equal(t, "/login", w.Header().Get("Location"))

	saved := cookieByName(t, w, "returnTo")
	require.Contains(t, saved.Value, "/oauth/ws/authorize")
}

func TestAuthorizeMissingRedirectURIIsJSON(t *testing.T) {
	s := newStack(t)
	req := httptest.NewRequest(http.MethodGet, "https://"+authHost+"/oauth/ws/authorize?response_type=code", nil)
	w := s.do(req, devLogin(t, s))

	require.Equal(t, http.StatusBadRequest, w.Code)
	var body oauth.ErrorBody
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Equal(t, oauth.CodeInvalidRequest, body.Code)
}

func TestFullCodeFlow(t *testing.T) {
	s := newStack(t)
	sessionCookie := devLogin(t, s)

	// Authorize issues a code bound to the PKCE challenge.
	w := s.do(httptest.NewRequest(http.MethodGet, authorizeRequestURL(nil), nil), sessionCookie)
	require.Equal(t, http.StatusFound, w.Code)

	target, err := url.Parse(w.Header().Get("Location"))
	require.NoError(t, err)
	require.Equal(t, builderHost, target.Host)
	require.Equal(t, "/auth/ws/callback", target.Path)
	require.Equal(t, "state-123", target.Query().Get("state"))
	code := target.Query().Get("code")
	require.NotEmpty(t, code)

	// The token endpoint swaps code plus verifier for an access token.
	form := url.Values{}
	form.Set("grant_type", "authorization_code")
	form.Set("code", code)
	form.Set("redirect_uri", callbackURL)
	form.Set("code_verifier", "verifier-123")
	form.Set("client_id", testClientID)
	form.Set("client_secret", testClientSecret)

	tokenReq := httptest.NewRequest(http.MethodPost, "https://"+authHost+"/oauth/ws/token", strings.NewReader(form.Encode()))
	tokenReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	tokenW := s.do(tokenReq)
	require.Equal(t, http.StatusOK, tokenW.Code)

	var resp oauth.TokenResponse
	require.NoError(t, json.Unmarshal(tokenW.Body.Bytes(), &resp))
	require.Equal(t, "Bearer", resp.TokenType)
	require.Equal(t, 60, resp.ExpiresIn)

	payload := s.codec.ReadAccessToken(resp.AccessToken, testClientSecret)
	require.NotNil(t, payload)
	require.Equal(t, "user-1", payload.UserID)
	require.Equal(t, testProjectID, payload.ProjectID)

	// A second exchange of the same code is refused.
	replayW := s.do(func() *http.Request {
		r := httptest.NewRequest(http.MethodPost, "https://"+authHost+"/oauth/ws/token", strings.NewReader(form.Encode()))
		r.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		return r
	}())
	require.Equal(t, http.StatusBadRequest, replayW.Code)
}

func TestTokenEndpointRejectsBadVerifier(t *testing.T) {
	s := newStack(t)
	sessionCookie := devLogin(t, s)

	w := s.do(httptest.NewRequest(http.MethodGet, authorizeRequestURL(nil), nil), sessionCookie)
	require.Equal(t, http.StatusFound, w.Code)
	target, err := url.Parse(w.Header().Get("Location"))
	require.NoError(t, err)

	form := url.Values{}
	form.Set("grant_type", "authorization_code")
	form.Set("code", target.Query().Get("code"))
	form.Set("redirect_uri", callbackURL)
	form.Set("code_verifier", "a-different-verifier")
	form.Set("client_id", testClientID)
	form.Set("client_secret", testClientSecret)

	req := httptest.NewRequest(http.MethodPost, "https://"+authHost+"/oauth/ws/token", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	tokenW := s.do(req)
	require.Equal(t, http.StatusBadRequest, tokenW.Code)

	var body oauth.ErrorBody
	require.NoError(t, json.Unmarshal(tokenW.Body.Bytes(), &body))
	require.Equal(t, oauth.CodeInvalidGrant, body.Code)
}

func TestTokenEndpointMalformedBody(t *testing.T) {
	s := newStack(t)

	req := httptest.NewRequest(http.MethodPost, "https://"+authHost+"/oauth/ws/token", strings.NewReader("%zz"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := s.do(req)
	require.Equal(t, http.StatusBadRequest, w.Code)

	var body oauth.ErrorBody
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Equal(t, oauth.CodeInvalidRequest, body.Code)
	require.NotEmpty(t, body.URI)
}

func TestAuthWSOnlyOnBuilderOrigin(t *testing.T) {
	s := newStack(t)

	w := s.do(httptest.NewRequest(http.MethodGet, "https://"+authHost+"/auth/ws", nil))
	require.Equal(t, http.StatusNotFound, w.Code)

	w = s.do(httptest.NewRequest(http.MethodGet, "https://"+builderHost+"/auth/ws?returnTo=%2Fdashboard", nil))
	require.Equal(t, http.StatusFound, w.Code)

	target, err := url.Parse(w.Header().Get("Location"))
	require.NoError(t, err)
	require.Equal(t, authHost, target.Host)
	require.Equal(t, "/oauth/ws/authorize", target.Path)
	require.Equal(t, testClientID, target.Query().Get("client_id"))
	require.Equal(t, "project:"+testProjectID, target.Query().Get("scope"))
	require.Equal(t, "S256", target.Query().Get("code_challenge_method"))
}

func TestLoginNotOnBuilderOrigin(t *testing.T) {
	s := newStack(t)
	w := s.do(httptest.NewRequest(http.MethodGet, "https://"+builderHost+"/login", nil))
	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestLoginRedirectsAuthenticatedUser(t *testing.T) {
	s := newStack(t)
	sessionCookie := devLogin(t, s)

	w := s.do(httptest.NewRequest(http.MethodGet, "https://"+authHost+"/login?returnTo=%2Fsomewhere", nil), sessionCookie)
	require.Equal(t, http.StatusFound, w.Code)
	require.Equal(t, "/somewhere", w.Header().Get("Location"))
}

func TestLoginAuthenticatedFallsBackToSavedReturnTo(t *testing.T) {
	s := newStack(t)
	sessionCookie := devLogin(t, s)

	// No query param: the destination stashed by an earlier authorize
	// redirect wins.
	seed := httptest.NewRecorder()
	session.NewReturnTo(time.Minute, false).Save(seed, "/stashed")

	req := httptest.NewRequest(http.MethodGet, "https://"+authHost+"/login", nil)
	w := s.do(req, sessionCookie, seed.Result().Cookies()[0])
	require.Equal(t, http.StatusFound, w.Code)
	require.Equal(t, "/stashed", w.Header().Get("Location"))
}

func TestDevLoginDisabled(t *testing.T) {
	s := newStack(t, func(cfg *config.Config) {
		cfg.DevLogin = false
	})

	req := httptest.NewRequest(http.MethodPost, "https://"+authHost+"/auth/dev", strings.NewReader(""))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	require.Equal(t, http.StatusNotFound, s.do(req).Code)
}

func TestDevLoginNotOnBuilderOrigin(t *testing.T) {
	s := newStack(t)

	req := httptest.NewRequest(http.MethodPost, "https://"+builderHost+"/auth/dev", strings.NewReader(""))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	require.Equal(t, http.StatusNotFound, s.do(req).Code)
}

func TestLogoutClearsSession(t *testing.T) {
	s := newStack(t)
	sessionCookie := devLogin(t, s)

	w := s.do(httptest.NewRequest(http.MethodPost, "https://"+authHost+"/logout", nil), sessionCookie)
	require.Equal(t, http.StatusFound, w.Code)
	require.Equal(t, "/login", w.Header().Get("Location"))

	cleared := cookieByName(t, w, session.AuthCookie)
	require.Empty(t, cleared.Value)
	require.Negative(t, cleared.MaxAge)
}

func TestErrorPageSurfacesLastError(t *testing.T) {
	s := newStack(t)

	seed := httptest.NewRecorder()
	s.sessions.Builder.SetError(seed, httptest.NewRequest(http.MethodGet, "/", nil), "token exchange failed")

	req := httptest.NewRequest(http.MethodGet, "https://"+builderHost+"/error", nil)
	w := s.do(req, seed.Result().Cookies()[0])
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), "token exchange failed")
}
