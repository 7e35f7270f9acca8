// Package oauth implements the stateless authorization code engine: the
// authorize and token state machines. No call shares state with another;
// every grant travels inside the code token itself.
package oauth

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/bwmarrin/snowflake"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/smallbiznis/builder-auth/internal/config"
	"github.com/smallbiznis/builder-auth/internal/origin"
	"github.com/smallbiznis/builder-auth/internal/pkce"
	"github.com/smallbiznis/builder-auth/internal/repository"
	"github.com/smallbiznis/builder-auth/internal/token"
)

const scopePrefix = "project:"

// Service runs the authorize and token exchange state machines.
type Service struct {
	cfg    config.Config
	codec  *token.Codec
	access repository.AccessRepository
	codes  repository.CodeConsumer
	node   *snowflake.Node
	logger *zap.Logger
	tracer trace.Tracer
}

// NewService wires dependencies.
func NewService(cfg config.Config, codec *token.Codec, access repository.AccessRepository, codes repository.CodeConsumer, node *snowflake.Node, logger *zap.Logger) *Service {
	return &Service{
		cfg:    cfg,
		codec:  codec,
		access: access,
		codes:  codes,
		node:   node,
		logger: logger,
		tracer: otel.Tracer("github.com/smallbiznis/builder-auth/internal/oauth"),
	}
}

type authorizeParams struct {
	redirectURI   *url.URL
	clientID      string
	state         string
	projectID     string
	codeChallenge string
}

// Authorize runs the authorization endpoint state machine (RFC 6749
// §4.1.1 + RFC 7636). Until the redirect URI is verified against the
// server's own base origin, errors are JSON; afterwards every denial is a
// redirect carrying RFC 6749 error parameters.
func (s *Service) Authorize(ctx context.Context, in AuthorizeInput) AuthorizeResult {
	ctx, span := s.startSpan(ctx, "Service.Authorize")
	defer span.End()

	query := in.RequestURL.Query()

	rawRedirect := strings.TrimSpace(query.Get("redirect_uri"))
	if rawRedirect == "" {
		return jsonError(http.StatusBadRequest, CodeInvalidRequest, "No redirect_uri provided")
	}

	redirectOrigin, err := origin.Parse(rawRedirect)
	if err != nil || !origin.SameAuthorizationOrigin(in.Origin, redirectOrigin) {
		return jsonError(http.StatusBadRequest, CodeInvalidRequest,
			"The redirect_uri provided does not match the registered redirect URIs.")
	}

	redirectURI, err := url.Parse(rawRedirect)
	if err != nil {
		return jsonError(http.StatusBadRequest, CodeInvalidRequest, "Malformed redirect_uri")
	}

	// Redirect target is trusted from here on.
	params, validationErr := parseAuthorizeParams(redirectURI, query)
	if validationErr != "" {
		return errorRedirect(redirectURI, query.Get("state"), CodeInvalidRequest, validationErr)
	}

	if params.clientID != s.cfg.ClientID {
		return errorRedirect(redirectURI, params.state, CodeUnauthorizedClient, "Unknown client_id")
	}

	if in.User == nil {
		// Stash the full authorize URL so login lands back here. Local
		// schemes are forced to https to survive proxy hops.
		returnTo := *in.RequestURL
		returnTo.Scheme = "https"
		if returnTo.Host == "" {
			returnTo.Host = in.Origin.Host
		}
		return AuthorizeResult{RedirectURL: "/login", SaveReturnTo: returnTo.String()}
	}

	allowed, err := s.access.UserHasAccessTo(ctx, in.User.ID, params.projectID)
	if err != nil {
		span.RecordError(err)
		s.log().Error("project access check failed", zap.Error(err))
		return jsonError(http.StatusInternalServerError, CodeServerError, "Access check failed")
	}
	if !allowed {
		s.log().Warn("authorize denied: no project access",
			zap.String("user_id", in.User.ID), zap.String("project_id", params.projectID))
		return errorRedirect(redirectURI, params.state, CodeUnauthorizedClient,
			"User does not have access to the project")
	}

	code, err := s.codec.CreateCodeToken(token.CodeTokenPayload{
		UserID:        in.User.ID,
		ProjectID:     params.projectID,
		CodeChallenge: params.codeChallenge,
		TokenID:       s.node.Generate().String(),
	}, s.cfg.ClientSecret, s.cfg.CodeTokenTTL)
	if err != nil {
		span.RecordError(err)
		s.log().Error("mint code token failed", zap.Error(err))
		return jsonError(http.StatusInternalServerError, CodeServerError, "Could not issue authorization code")
	}

	s.audit("authorization_code.issued",
		zap.String("user_id", in.User.ID), zap.String("project_id", params.projectID))

	target := *redirectURI
	q := target.Query()
	q.Set("code", code)
	q.Set("state", params.state)
	target.RawQuery = q.Encode()
	return AuthorizeResult{RedirectURL: target.String()}
}

// Exchange runs the token endpoint state machine (RFC 6749 §4.1.3 + RFC
// 7636 §4.5). Errors are always JSON; this is a server-to-server call.
func (s *Service) Exchange(ctx context.Context, req TokenRequest) (*TokenResponse, *Error) {
	ctx, span := s.startSpan(ctx, "Service.Exchange")
	defer span.End()

	if missing := validateTokenRequest(req); missing != "" {
		return nil, NewTokenError(http.StatusBadRequest, CodeInvalidRequest, missing)
	}

	// Plain comparison: this secret is server-to-server, never typed by a
	// user. Known hardening gap, kept deliberately.
	if req.ClientID != s.cfg.ClientID || req.ClientSecret != s.cfg.ClientSecret {
		return nil, NewTokenError(http.StatusUnauthorized, CodeInvalidClient, "invalid client credentials")
	}

	codeToken := s.codec.ReadCodeToken(req.Code, s.cfg.ClientSecret)
	if codeToken == nil {
		return nil, NewTokenError(http.StatusBadRequest, CodeInvalidGrant, "invalid code")
	}

	if !pkce.VerifyChallenge(req.CodeVerifier, codeToken.CodeChallenge) {
		return nil, NewTokenError(http.StatusBadRequest, CodeInvalidGrant, "invalid code_verifier")
	}

	if s.codes != nil && codeToken.TokenID != "" {
		first, err := s.codes.Consume(ctx, codeToken.TokenID, s.cfg.CodeTokenTTL)
		if err != nil {
			// Best-effort guard: an unavailable tracker does not block the
			// exchange, it only loses replay protection.
			span.RecordError(err)
			s.log().Warn("consumed-code guard unavailable", zap.Error(err))
		} else if !first {
			s.log().Warn("code token replayed", zap.String("token_id", codeToken.TokenID))
			return nil, NewTokenError(http.StatusBadRequest, CodeInvalidGrant, "code already redeemed")
		}
	}

	// Access may have been revoked between the authorize and token calls.
	allowed, err := s.access.UserHasAccessTo(ctx, codeToken.UserID, codeToken.ProjectID)
	if err != nil {
		span.RecordError(err)
		s.log().Error("project access check failed", zap.Error(err))
		return nil, NewTokenError(http.StatusInternalServerError, CodeServerError, "access check failed")
	}
	if !allowed {
		return nil, NewTokenError(http.StatusBadRequest, CodeInvalidGrant, "user does not have access to the project")
	}

	accessToken, err := s.codec.CreateAccessToken(token.AccessTokenPayload{
		UserID:    codeToken.UserID,
		ProjectID: codeToken.ProjectID,
	}, s.cfg.ClientSecret, s.cfg.AccessTokenTTL)
	if err != nil {
		span.RecordError(err)
		s.log().Error("mint access token failed", zap.Error(err))
		return nil, NewTokenError(http.StatusInternalServerError, CodeServerError, "could not issue access token")
	}

	s.audit("access_token.issued",
		zap.String("user_id", codeToken.UserID), zap.String("project_id", codeToken.ProjectID))

	return &TokenResponse{
		AccessToken: accessToken,
		TokenType:   "Bearer",
		ExpiresIn:   int(s.cfg.AccessTokenTTL.Seconds()),
	}, nil
}

func parseAuthorizeParams(redirectURI *url.URL, query url.Values) (authorizeParams, string) {
	var problems []string

	responseType := query.Get("response_type")
	if responseType != "code" {
		problems = append(problems, "response_type must be 'code'")
	}
	clientID := strings.TrimSpace(query.Get("client_id"))
	if clientID == "" {
		problems = append(problems, "client_id is required")
	}
	state := query.Get("state")
	if state == "" {
		problems = append(problems, "state is required")
	}
	scope := query.Get("scope")
	projectID := strings.TrimPrefix(scope, scopePrefix)
	if !strings.HasPrefix(scope, scopePrefix) || projectID == "" {
		problems = append(problems, "scope must match 'project:<id>'")
	}
	codeChallenge := strings.TrimSpace(query.Get("code_challenge"))
	if codeChallenge == "" {
		problems = append(problems, "code_challenge is required")
	}
	if query.Get("code_challenge_method") != "S256" {
		problems = append(problems, "code_challenge_method must be 'S256'")
	}

	if len(problems) > 0 {
		return authorizeParams{}, "Validation error: " + strings.Join(problems, "; ")
	}

	return authorizeParams{
		redirectURI:   redirectURI,
		clientID:      clientID,
		state:         state,
		projectID:     projectID,
		codeChallenge: codeChallenge,
	}, ""
}

func validateTokenRequest(req TokenRequest) string {
	var problems []string
	if req.GrantType != "authorization_code" {
		problems = append(problems, "grant_type must be 'authorization_code'")
	}
	if req.Code == "" {
		problems = append(problems, "code is required")
	}
	if req.RedirectURI == "" {
		problems = append(problems, "redirect_uri is required")
	} else if parsed, err := url.Parse(req.RedirectURI); err != nil || parsed.Scheme == "" || parsed.Host == "" {
		problems = append(problems, "redirect_uri must be an absolute URL")
	}
	if req.CodeVerifier == "" {
		problems = append(problems, "code_verifier is required")
	}
	if req.ClientID == "" {
		problems = append(problems, "client_id is required")
	}
	if req.ClientSecret == "" {
		problems = append(problems, "client_secret is required")
	}
	if len(problems) == 0 {
		return ""
	}
	return "Validation error: " + strings.Join(problems, "; ")
}

func jsonError(status int, code, description string) AuthorizeResult {
	uri := redirectErrorURI
	if code == CodeServerError {
		uri = ""
	}
	return AuthorizeResult{
		Status: status,
		Body:   &ErrorBody{Code: code, Description: description, URI: uri},
	}
}

func errorRedirect(redirectURI *url.URL, state, code, description string) AuthorizeResult {
	target := *redirectURI
	q := target.Query()
	q.Set("error", code)
	q.Set("error_description", description)
	if state != "" {
		q.Set("state", state)
	}
	target.RawQuery = q.Encode()
	return AuthorizeResult{RedirectURL: target.String()}
}

func (s *Service) startSpan(ctx context.Context, name string) (context.Context, trace.Span) {
	if s == nil || s.tracer == nil {
		return ctx, trace.SpanFromContext(ctx)
	}
	return s.tracer.Start(ctx, name)
}

func (s *Service) audit(event string, fields ...zap.Field) {
	s.log().Info("audit", append([]zap.Field{zap.String("event", event)}, fields...)...)
}

func (s *Service) log() *zap.Logger {
	if s != nil && s.logger != nil {
		return s.logger
	}
	return zap.L()
}

// ProjectScope formats the scope parameter for a project.
func ProjectScope(projectID string) string {
	return fmt.Sprintf("%s%s", scopePrefix, projectID)
}
