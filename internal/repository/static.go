package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/smallbiznis/builder-auth/internal/domain"
)

var (
	_ AccessRepository = (*StaticAccessRepo)(nil)
	_ UserDirectory    = (*StaticUserDirectory)(nil)
)

// StaticAccessRepo serves project membership from a fixed set of
// "userID:projectID" pairs. Used when no database is configured.
type StaticAccessRepo struct {
	grants map[string]struct{}
}

// NewStaticAccessRepo parses "userID:projectID" pairs; malformed entries
// are ignored.
func NewStaticAccessRepo(pairs []string) *StaticAccessRepo {
	grants := make(map[string]struct{}, len(pairs))
	for _, pair := range pairs {
		userID, projectID, found := strings.Cut(strings.TrimSpace(pair), ":")
		if !found || userID == "" || projectID == "" {
			continue
		}
		grants[userID+":"+projectID] = struct{}{}
	}
	return &StaticAccessRepo{grants: grants}
}

func (r *StaticAccessRepo) UserHasAccessTo(ctx context.Context, userID, projectID string) (bool, error) {
	_, ok := r.grants[userID+":"+projectID]
	return ok, nil
}

// StaticUserDirectory synthesizes user records from the id alone.
type StaticUserDirectory struct {
	emailDomain string
}

func NewStaticUserDirectory(emailDomain string) *StaticUserDirectory {
	return &StaticUserDirectory{emailDomain: emailDomain}
}

func (r *StaticUserDirectory) GetByID(ctx context.Context, userID string) (domain.User, error) {
	if strings.TrimSpace(userID) == "" {
		return domain.User{}, fmt.Errorf("get user: empty id")
	}
	return domain.User{
		ID:    userID,
		Email: fmt.Sprintf("%s@%s", userID, r.emailDomain),
	}, nil
}
