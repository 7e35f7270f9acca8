package oauth

import "fmt"

// RFC 6749 §5.2 error codes used by the engine.
const (
	CodeInvalidRequest     = "invalid_request"
	CodeInvalidClient      = "invalid_client"
	CodeInvalidGrant       = "invalid_grant"
	CodeUnauthorizedClient = "unauthorized_client"
	CodeServerError        = "server_error"
)

const (
	redirectErrorURI = "https://tools.ietf.org/html/rfc6749#section-3.1.2"
	tokenErrorURI    = "https://tools.ietf.org/html/rfc6749#section-5.2"
)

// Error is an RFC 6749 shaped protocol error carried as an ordinary value.
type Error struct {
	Status      int
	Code        string
	Description string
	URI         string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Description)
}

// Body returns the JSON response shape for the error.
func (e *Error) Body() ErrorBody {
	return ErrorBody{Code: e.Code, Description: e.Description, URI: e.URI}
}

// ErrorBody is the JSON error document per RFC 6749 §5.2.
type ErrorBody struct {
	Code        string `json:"error"`
	Description string `json:"error_description"`
	URI         string `json:"error_uri"`
}

// NewTokenError builds a token endpoint error carrying the RFC 6749 §5.2
// error URI.
func NewTokenError(status int, code, description string) *Error {
	return &Error{Status: status, Code: code, Description: description, URI: tokenErrorURI}
}
