package domain

import "time"

// FlowState is the builder-side half of a PKCE handshake: the verifier and
// return path stashed between starting the authorize redirect and the
// callback that exchanges the code.
type FlowState struct {
	State        string    `json:"state"`
	CodeVerifier string    `json:"codeVerifier"`
	ReturnTo     string    `json:"returnTo,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
}
