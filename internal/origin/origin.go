// Package origin resolves request and redirect URLs into the tenant model:
// every project gets its own builder subdomain (p-<uuid>.<base>) while a
// single authorization server lives on the base origin.
package origin

import (
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"

	"github.com/google/uuid"
)

const builderLabelPrefix = "p-"

// Origin is a parsed scheme/host pair with the optional builder tenant
// label split out.
type Origin struct {
	Scheme string
	// Host is the full host without port.
	Host string
	// ProjectID is the uuid from a leading p-<uuid>. label, or empty.
	ProjectID string
}

// Parse splits a URL into its origin parts.
func Parse(rawURL string) (Origin, error) {
	parsed, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return Origin{}, fmt.Errorf("parse url: %w", err)
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return Origin{}, fmt.Errorf("url must be absolute: %q", rawURL)
	}
	host := stripPort(parsed.Host)
	return Origin{
		Scheme:    parsed.Scheme,
		Host:      host,
		ProjectID: projectIDFromHost(host),
	}, nil
}

// FromRequest resolves the origin the client addressed, honoring
// X-Forwarded-Proto when the service runs behind a proxy.
func FromRequest(r *http.Request) Origin {
	scheme := r.Header.Get("X-Forwarded-Proto")
	if scheme == "" {
		if r.TLS != nil {
			scheme = "https"
		} else {
			scheme = "http"
		}
	}
	host := stripPort(r.Host)
	return Origin{
		Scheme:    scheme,
		Host:      host,
		ProjectID: projectIDFromHost(host),
	}
}

// IsBuilder reports whether the origin carries a project tenant label.
func (o Origin) IsBuilder() bool {
	return o.ProjectID != ""
}

// BaseHost returns the host with any tenant label stripped.
func (o Origin) BaseHost() string {
	if o.ProjectID == "" {
		return o.Host
	}
	return strings.TrimPrefix(o.Host, builderLabelPrefix+o.ProjectID+".")
}

// BaseOrigin returns scheme://host with any tenant label stripped. This
// is the authorization server's origin for the tenant.
func (o Origin) BaseOrigin() string {
	return o.Scheme + "://" + o.BaseHost()
}

// String returns the origin as addressed, tenant label included.
func (o Origin) String() string {
	return o.Scheme + "://" + o.Host
}

// SameAuthorizationOrigin reports whether two origins share the same
// authorization server. Comparison is tenant-agnostic: any project
// subdomain of the same base domain is acceptable.
func SameAuthorizationOrigin(a, b Origin) bool {
	return a.BaseOrigin() == b.BaseOrigin()
}

func projectIDFromHost(host string) string {
	label, _, found := strings.Cut(host, ".")
	if !found || !strings.HasPrefix(label, builderLabelPrefix) {
		return ""
	}
	id := strings.TrimPrefix(label, builderLabelPrefix)
	if _, err := uuid.Parse(id); err != nil {
		return ""
	}
	return id
}

func stripPort(host string) string {
	if strings.Contains(host, ":") {
		if h, _, err := net.SplitHostPort(host); err == nil {
			return h
		}
	}
	return host
}
