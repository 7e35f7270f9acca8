package domain

import "time"

// User is the identity established by the authorization server. It lives
// inside the session cookie; nothing in this service persists it.
type User struct {
	ID               string    `json:"id"`
	Email            string    `json:"email"`
	SessionIssueDate time.Time `json:"sessionIssueDate"`
}
