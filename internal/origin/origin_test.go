package origin

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

const projectID = "3f9a1f6e-8f0f-4f57-9a4a-6f2b9a3d1c2e"

func TestParseBuilderOrigin(t *testing.T) {
	o, err := Parse("https://p-" + projectID + ".apps.example.com/auth/ws/callback?x=1")
	require.NoError(t, err)

	require.Equal(t, "https", o.Scheme)
	require.Equal(t, "p-"+projectID+".apps.example.com", o.Host)
	require.Equal(t, projectID, o.ProjectID)
	require.True(t, o.IsBuilder())
	require.Equal(t, "apps.example.com", o.BaseHost())
	require.Equal(t, "https://apps.example.com", o.BaseOrigin())
	require.Equal(t, "https://p-"+projectID+".apps.example.com", o.String())
}

func TestParseBaseOrigin(t *testing.T) {
	o, err := Parse("https://apps.example.com/login")
	require.NoError(t, err)

	require.False(t, o.IsBuilder())
	require.Empty(t, o.ProjectID)
	require.Equal(t, "https://apps.example.com", o.BaseOrigin())
}

func TestParseStripsPort(t *testing.T) {
	o, err := Parse("http://apps.example.com:8080/")
	require.NoError(t, err)
	require.Equal(t, "apps.example.com", o.Host)
}

func TestParseRejectsRelative(t *testing.T) {
	_, err := Parse("/auth/ws/callback")
	require.Error(t, err)

	_, err = Parse("apps.example.com")
	require.Error(t, err)
}

func TestNonUUIDLabelIsNotBuilder(t *testing.T) {
	o, err := Parse("https://p-staging.apps.example.com")
	require.NoError(t, err)
	require.False(t, o.IsBuilder())
	// No label stripped: the host is the base host.
	require.Equal(t, "p-staging.apps.example.com", o.BaseHost())
}

func TestSameAuthorizationOrigin(t *testing.T) {
	base, err := Parse("https://apps.example.com")
	require.NoError(t, err)
	builder, err := Parse("https://p-" + projectID + ".apps.example.com")
	require.NoError(t, err)
	other, err := Parse("https://p-" + projectID + ".evil.example.net")
	require.NoError(t, err)
	httpBase, err := Parse("http://apps.example.com")
	require.NoError(t, err)

	require.True(t, SameAuthorizationOrigin(base, builder))
	require.True(t, SameAuthorizationOrigin(builder, builder))
	require.False(t, SameAuthorizationOrigin(base, other))
	require.False(t, SameAuthorizationOrigin(base, httpBase))
}

func TestFromRequest(t *testing.T) {
	r := httptest.NewRequest("GET", "/oauth/ws/authorize", nil)
	r.Host = "p-" + projectID + ".apps.example.com:443"
	r.Header.Set("X-Forwarded-Proto", "https")

	o := FromRequest(r)
	require.Equal(t, "https", o.Scheme)
	require.Equal(t, "p-"+projectID+".apps.example.com", o.Host)
	require.Equal(t, projectID, o.ProjectID)
}

func TestFromRequestDefaultScheme(t *testing.T) {
	r := httptest.NewRequest("GET", "/login", nil)
	r.Host = "apps.example.com"

	o := FromRequest(r)
	require.Equal(t, "http", o.Scheme)
	require.False(t, o.IsBuilder())
}
