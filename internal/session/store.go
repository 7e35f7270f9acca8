// Package session implements cookie sessions with no server-side storage:
// the payload (user identity and the last auth error) travels inside a
// signed token in the cookie itself.
package session

import (
	"net/http"
	"time"

	gojose "github.com/go-jose/go-jose/v4"
	gojwt "github.com/go-jose/go-jose/v4/jwt"

	"github.com/smallbiznis/builder-auth/internal/domain"
	"github.com/smallbiznis/builder-auth/internal/origin"
)

const (
	// AuthCookie is the authorization server's own session cookie.
	AuthCookie = "_session"
	// BuilderCookie is the per-builder-origin session cookie.
	BuilderCookie = "_builder_session"
)

type sessionData struct {
	User      *domain.User `json:"user,omitempty"`
	LastError string       `json:"lastError,omitempty"`
}

// Store reads and writes one named session cookie signed with one secret.
type Store struct {
	name   string
	secret string
	ttl    time.Duration
	secure bool
}

// NewStore creates a session store for the given cookie name and secret.
func NewStore(name, secret string, ttl time.Duration, secure bool) *Store {
	return &Store{name: name, secret: secret, ttl: ttl, secure: secure}
}

// GetUser returns the authenticated user, or nil when the session is
// missing, expired, or tampered with.
func (s *Store) GetUser(r *http.Request) *domain.User {
	return s.read(r).User
}

// SetUser establishes a fresh session for the user, stamping the issue
// date and discarding any previous error.
func (s *Store) SetUser(w http.ResponseWriter, user domain.User) {
	user.SessionIssueDate = time.Now().UTC()
	s.write(w, sessionData{User: &user})
}

// SetError records the last auth error alongside whatever session exists.
func (s *Store) SetError(w http.ResponseWriter, r *http.Request, message string) {
	data := s.read(r)
	data.LastError = message
	s.write(w, data)
}

// TakeError returns and clears the last auth error.
func (s *Store) TakeError(w http.ResponseWriter, r *http.Request) string {
	data := s.read(r)
	if data.LastError == "" {
		return ""
	}
	message := data.LastError
	data.LastError = ""
	s.write(w, data)
	return message
}

// Clear drops the session cookie.
func (s *Store) Clear(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     s.name,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   s.secure,
		SameSite: http.SameSiteLaxMode,
	})
}

func (s *Store) read(r *http.Request) sessionData {
	cookie, err := r.Cookie(s.name)
	if err != nil || cookie.Value == "" {
		return sessionData{}
	}
	parsed, err := gojwt.ParseSigned(cookie.Value, []gojose.SignatureAlgorithm{gojose.HS256})
	if err != nil {
		return sessionData{}
	}
	var std gojwt.Claims
	var data sessionData
	if err := parsed.Claims([]byte(s.secret), &std, &data); err != nil {
		return sessionData{}
	}
	if err := std.ValidateWithLeeway(gojwt.Expected{Issuer: s.name, Time: time.Now()}, 0); err != nil {
		return sessionData{}
	}
	return data
}

func (s *Store) write(w http.ResponseWriter, data sessionData) {
	if data.User == nil && data.LastError == "" {
		s.Clear(w)
		return
	}

	signer, err := gojose.NewSigner(
		gojose.SigningKey{Algorithm: gojose.HS256, Key: []byte(s.secret)},
		(&gojose.SignerOptions{}).WithType("JWT"),
	)
	if err != nil {
		return
	}
	now := time.Now().UTC()
	std := gojwt.Claims{
		Issuer:   s.name,
		IssuedAt: gojwt.NewNumericDate(now),
		Expiry:   gojwt.NewNumericDate(now.Add(s.ttl)),
	}
	value, err := gojwt.Signed(signer).Claims(std).Claims(data).Serialize()
	if err != nil {
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     s.name,
		Value:    value,
		Path:     "/",
		MaxAge:   int(s.ttl.Seconds()),
		HttpOnly: true,
		Secure:   s.secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// Manager holds the two session stores and picks one per request origin:
// builder subdomains never share a session with the authorization server.
type Manager struct {
	Auth    *Store
	Builder *Store
}

// NewManager wires the pair of stores.
func NewManager(auth, builder *Store) *Manager {
	return &Manager{Auth: auth, Builder: builder}
}

// ForOrigin returns the store matching the origin kind.
func (m *Manager) ForOrigin(o origin.Origin) *Store {
	if o.IsBuilder() {
		return m.Builder
	}
	return m.Auth
}
