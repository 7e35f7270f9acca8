// Package federation implements the builder side of the delegated login:
// the strategy that turns an access token into a local builder session,
// and the client that drives the authorize/token round trip.
package federation

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/smallbiznis/builder-auth/internal/config"
	"github.com/smallbiznis/builder-auth/internal/domain"
	"github.com/smallbiznis/builder-auth/internal/origin"
	"github.com/smallbiznis/builder-auth/internal/repository"
	"github.com/smallbiznis/builder-auth/internal/token"
)

// ErrUnauthorized marks authentication failures that the login flow turns
// into an error redirect rather than a 5xx.
var ErrUnauthorized = errors.New("unauthorized")

// Strategy authenticates a builder request with an access token obtained
// from the token endpoint.
type Strategy struct {
	cfg    config.Config
	codec  *token.Codec
	access repository.AccessRepository
	users  repository.UserDirectory
	logger *zap.Logger
}

// NewStrategy wires dependencies.
func NewStrategy(cfg config.Config, codec *token.Codec, access repository.AccessRepository, users repository.UserDirectory, logger *zap.Logger) *Strategy {
	return &Strategy{cfg: cfg, codec: codec, access: access, users: users, logger: logger}
}

// Authenticate verifies the access token against the origin the request
// was addressed to and resolves the user for the local builder session.
// The token's project grant must match the subdomain's project: a token
// minted for project A is useless against project B's origin.
func (s *Strategy) Authenticate(ctx context.Context, accessToken string, reqOrigin origin.Origin) (domain.User, error) {
	payload := s.codec.ReadAccessToken(accessToken, s.cfg.ClientSecret)
	if payload == nil {
		return domain.User{}, fmt.Errorf("%w: invalid or expired access token", ErrUnauthorized)
	}

	if !reqOrigin.IsBuilder() || payload.ProjectID != reqOrigin.ProjectID {
		return domain.User{}, fmt.Errorf("%w: token projectId and request projectId do not match", ErrUnauthorized)
	}

	allowed, err := s.access.UserHasAccessTo(ctx, payload.UserID, payload.ProjectID)
	if err != nil {
		return domain.User{}, fmt.Errorf("check project access: %w", err)
	}
	if !allowed {
		return domain.User{}, fmt.Errorf("%w: user does not have access to this project", ErrUnauthorized)
	}

	user, err := s.users.GetByID(ctx, payload.UserID)
	if err != nil {
		return domain.User{}, fmt.Errorf("resolve user: %w", err)
	}

	s.log().Debug("builder user authenticated",
		zap.String("user_id", user.ID), zap.String("project_id", payload.ProjectID))
	return user, nil
}

func (s *Strategy) log() *zap.Logger {
	if s != nil && s.logger != nil {
		return s.logger
	}
	return zap.L()
}
