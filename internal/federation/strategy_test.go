package federation

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/smallbiznis/builder-auth/internal/config"
	"github.com/smallbiznis/builder-auth/internal/domain"
	"github.com/smallbiznis/builder-auth/internal/origin"
	"github.com/smallbiznis/builder-auth/internal/token"
)

const (
	testProjectID    = "3f9a1f6e-8f0f-4f57-9a4a-6f2b9a3d1c2e"
	otherProjectID   = "9b2c4d6e-1a3f-4b5c-8d7e-0f1a2b3c4d5e"
	testClientSecret = "builder-client-secret-0123456789"
)

type fakeAccessRepo struct {
	grants map[string]bool
	err    error
}

func (f *fakeAccessRepo) UserHasAccessTo(ctx context.Context, userID, projectID string) (bool, error) {
	if f.err != nil {
		return false, f.err
	}
	return f.grants[userID+":"+projectID], nil
}

type fakeUserDirectory struct{}

func (fakeUserDirectory) GetByID(ctx context.Context, userID string) (domain.User, error) {
	return domain.User{ID: userID, Email: userID + "@example.com"}, nil
}

func testConfig() config.Config {
	return config.Config{
		ClientID:       "builder-client",
		ClientSecret:   testClientSecret,
		TokenIssuer:    "builder-auth",
		CodeTokenTTL:   5 * time.Minute,
		AccessTokenTTL: time.Minute,
	}
}

func builderOrigin(t *testing.T, projectID string) origin.Origin {
	t.Helper()
	o, err := origin.Parse("https://p-" + projectID + ".apps.example.com")
	require.NoError(t, err)
	return o
}

func mintAccessToken(t *testing.T, userID, projectID string) string {
	t.Helper()
	codec := token.NewCodec("builder-auth")
	raw, err := codec.CreateAccessToken(token.AccessTokenPayload{
		UserID:    userID,
		ProjectID: projectID,
	}, testClientSecret, time.Minute)
	require.NoError(t, err)
	return raw
}

func TestAuthenticateSuccess(t *testing.T) {
	access := &fakeAccessRepo{grants: map[string]bool{"user-1:" + testProjectID: true}}
	strategy := NewStrategy(testConfig(), token.NewCodec("builder-auth"), access, fakeUserDirectory{}, nil)

	user, err := strategy.Authenticate(context.Background(),
		mintAccessToken(t, "user-1", testProjectID), builderOrigin(t, testProjectID))
	require.NoError(t, err)
	require.Equal(t, "user-1", user.ID)
	require.Equal(t, "user-1@example.com", user.Email)
}

func TestAuthenticateInvalidToken(t *testing.T) {
	access := &fakeAccessRepo{grants: map[string]bool{"user-1:" + testProjectID: true}}
	strategy := NewStrategy(testConfig(), token.NewCodec("builder-auth"), access, fakeUserDirectory{}, nil)

	_, err := strategy.Authenticate(context.Background(), "garbage", builderOrigin(t, testProjectID))
	require.ErrorIs(t, err, ErrUnauthorized)
}

func TestAuthenticateProjectMismatch(t *testing.T) {
	// A token for project A presented on project B's origin is rejected
	// even though the signature is valid.
	access := &fakeAccessRepo{grants: map[string]bool{
		"user-1:" + testProjectID:  true,
		"user-1:" + otherProjectID: true,
	}}
	strategy := NewStrategy(testConfig(), token.NewCodec("builder-auth"), access, fakeUserDirectory{}, nil)

	_, err := strategy.Authenticate(context.Background(),
		mintAccessToken(t, "user-1", testProjectID), builderOrigin(t, otherProjectID))
	require.ErrorIs(t, err, ErrUnauthorized)
}

func TestAuthenticateNoAccess(t *testing.T) {
	access := &fakeAccessRepo{grants: map[string]bool{}}
	strategy := NewStrategy(testConfig(), token.NewCodec("builder-auth"), access, fakeUserDirectory{}, nil)

	_, err := strategy.Authenticate(context.Background(),
		mintAccessToken(t, "user-1", testProjectID), builderOrigin(t, testProjectID))
	require.ErrorIs(t, err, ErrUnauthorized)
}
