package session

import (
	"net/http"
	"time"
)

const returnToCookie = "returnTo"

// ReturnTo carries the intended destination across a login step. It is
// deliberately short-lived; keeping it longer makes no sense.
type ReturnTo struct {
	ttl    time.Duration
	secure bool
}

// NewReturnTo constructs the return-to cookie helper.
func NewReturnTo(ttl time.Duration, secure bool) *ReturnTo {
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &ReturnTo{ttl: ttl, secure: secure}
}

// Save writes the intended destination.
func (rt *ReturnTo) Save(w http.ResponseWriter, value string) {
	http.SetCookie(w, &http.Cookie{
		Name:     returnToCookie,
		Value:    value,
		Path:     "/",
		MaxAge:   int(rt.ttl.Seconds()),
		HttpOnly: true,
		Secure:   rt.secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// Take reads and clears the intended destination, defaulting to "/".
func (rt *ReturnTo) Take(w http.ResponseWriter, r *http.Request) string {
	value := "/"
	if cookie, err := r.Cookie(returnToCookie); err == nil && cookie.Value != "" {
		value = cookie.Value
	}
	http.SetCookie(w, &http.Cookie{
		Name:     returnToCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   rt.secure,
		SameSite: http.SameSiteLaxMode,
	})
	return value
}
