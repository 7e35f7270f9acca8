package oauth

import (
	"net/url"

	"github.com/smallbiznis/builder-auth/internal/domain"
	"github.com/smallbiznis/builder-auth/internal/origin"
)

// AuthorizeInput is everything the authorize state machine needs from the
// HTTP layer. Authentication is an input here: the session collaborator
// decides who the caller is, not this package.
type AuthorizeInput struct {
	// Origin is the origin the request was addressed to.
	Origin origin.Origin
	// RequestURL is the full authorize request URL including query.
	RequestURL *url.URL
	// User is nil when the caller has no valid session.
	User *domain.User
}

// AuthorizeResult is the terminal outcome of an authorize request: either
// a JSON error document or a redirect, never both.
type AuthorizeResult struct {
	// Status and Body are set for direct JSON responses.
	Status int
	Body   *ErrorBody
	// RedirectURL is the 302 target when non-empty.
	RedirectURL string
	// SaveReturnTo, when non-empty, must be persisted in the return-to
	// cookie before redirecting (the login redirect path).
	SaveReturnTo string
}

// TokenRequest is the parsed form body of a token exchange.
type TokenRequest struct {
	GrantType    string `form:"grant_type"`
	Code         string `form:"code"`
	RedirectURI  string `form:"redirect_uri"`
	CodeVerifier string `form:"code_verifier"`
	ClientID     string `form:"client_id"`
	ClientSecret string `form:"client_secret"`
}

// TokenResponse is the successful token exchange document.
type TokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
}
