package federation

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/smallbiznis/builder-auth/internal/config"
	"github.com/smallbiznis/builder-auth/internal/domain"
	"github.com/smallbiznis/builder-auth/internal/oauth"
	"github.com/smallbiznis/builder-auth/internal/origin"
	"github.com/smallbiznis/builder-auth/internal/pkce"
	"github.com/smallbiznis/builder-auth/internal/repository"
)

const callbackPath = "/auth/ws/callback"

// Client drives the builder-side authorization code flow: it builds the
// authorize redirect and exchanges the returned code server-to-server.
type Client struct {
	cfg        config.Config
	states     repository.FlowStateStore
	httpClient *http.Client
	logger     *zap.Logger
}

// NewClient constructs the flow client. A nil http.Client gets a default
// with a 10 second timeout.
func NewClient(cfg config.Config, states repository.FlowStateStore, httpClient *http.Client, logger *zap.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &Client{cfg: cfg, states: states, httpClient: httpClient, logger: logger}
}

// AuthorizationURL starts a flow for the builder origin: generates the
// state and PKCE verifier, stashes them, and returns the authorize URL on
// the authorization server's base origin.
func (c *Client) AuthorizationURL(ctx context.Context, reqOrigin origin.Origin, returnTo string) (string, error) {
	if !reqOrigin.IsBuilder() {
		return "", fmt.Errorf("authorization url: %s is not a builder origin", reqOrigin.String())
	}
	if reqOrigin.String() == reqOrigin.BaseOrigin() {
		return "", fmt.Errorf("authorization url: origin and authorization origin cannot be the same")
	}

	state, err := pkce.GenerateState()
	if err != nil {
		return "", fmt.Errorf("generate state: %w", err)
	}
	verifier, err := pkce.GenerateVerifier()
	if err != nil {
		return "", fmt.Errorf("generate verifier: %w", err)
	}

	flow := domain.FlowState{
		State:        state,
		CodeVerifier: verifier,
		ReturnTo:     returnTo,
		CreatedAt:    time.Now().UTC(),
	}
	if err := c.states.SaveState(ctx, state, flow, c.cfg.CodeTokenTTL); err != nil {
		return "", fmt.Errorf("persist flow state: %w", err)
	}

	authorizeURL, err := url.Parse(reqOrigin.BaseOrigin() + "/oauth/ws/authorize")
	if err != nil {
		return "", fmt.Errorf("build authorize url: %w", err)
	}
	q := authorizeURL.Query()
	q.Set("response_type", "code")
	q.Set("client_id", c.cfg.ClientID)
	q.Set("redirect_uri", reqOrigin.String()+callbackPath)
	q.Set("state", state)
	q.Set("scope", oauth.ProjectScope(reqOrigin.ProjectID))
	q.Set("code_challenge", pkce.Challenge(verifier))
	q.Set("code_challenge_method", "S256")
	authorizeURL.RawQuery = q.Encode()

	return authorizeURL.String(), nil
}

// Exchange consumes the callback query: it validates the state, redeems
// the code at the token endpoint, and returns the access token together
// with the flow's return path.
func (c *Client) Exchange(ctx context.Context, reqOrigin origin.Origin, query url.Values) (string, string, error) {
	if errCode := query.Get("error"); errCode != "" {
		return "", "", fmt.Errorf("%w: authorization denied: %s (%s)",
			ErrUnauthorized, errCode, query.Get("error_description"))
	}

	code := strings.TrimSpace(query.Get("code"))
	state := strings.TrimSpace(query.Get("state"))
	if code == "" || state == "" {
		return "", "", fmt.Errorf("%w: code and state are required", ErrUnauthorized)
	}

	flow, err := c.states.TakeState(ctx, state)
	if err != nil {
		return "", "", fmt.Errorf("load flow state: %w", err)
	}
	if flow == nil {
		return "", "", fmt.Errorf("%w: unknown or expired state", ErrUnauthorized)
	}

	tokenResp, err := c.redeemCode(ctx, reqOrigin, code, flow.CodeVerifier)
	if err != nil {
		return "", "", err
	}
	return tokenResp.AccessToken, flow.ReturnTo, nil
}

func (c *Client) redeemCode(ctx context.Context, reqOrigin origin.Origin, code, verifier string) (*oauth.TokenResponse, error) {
	data := url.Values{}
	data.Set("grant_type", "authorization_code")
	data.Set("code", code)
	data.Set("redirect_uri", reqOrigin.String()+callbackPath)
	data.Set("code_verifier", verifier)
	data.Set("client_id", c.cfg.ClientID)
	data.Set("client_secret", c.cfg.ClientSecret)

	tokenURL := reqOrigin.BaseOrigin() + "/oauth/ws/token"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, tokenURL, strings.NewReader(data.Encode()))
	if err != nil {
		return nil, fmt.Errorf("build token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("token exchange request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read token response: %w", err)
	}

	if resp.StatusCode >= 300 {
		var oauthErr oauth.ErrorBody
		if err := json.Unmarshal(body, &oauthErr); err == nil && oauthErr.Code != "" {
			c.log().Warn("token exchange rejected",
				zap.Int("status", resp.StatusCode), zap.String("error", oauthErr.Code))
			return nil, fmt.Errorf("%w: token exchange failed: %s (%s)",
				ErrUnauthorized, oauthErr.Code, oauthErr.Description)
		}
		return nil, fmt.Errorf("token exchange failed: status=%d", resp.StatusCode)
	}

	var tokenResp oauth.TokenResponse
	if err := json.Unmarshal(body, &tokenResp); err != nil {
		return nil, fmt.Errorf("decode token response: %w", err)
	}
	if tokenResp.AccessToken == "" {
		return nil, fmt.Errorf("%w: empty access token in response", ErrUnauthorized)
	}
	return &tokenResp, nil
}

func (c *Client) log() *zap.Logger {
	if c != nil && c.logger != nil {
		return c.logger
	}
	return zap.L()
}
