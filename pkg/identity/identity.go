// Package identity verifies who is behind a connection.
// Token issuance belongs to an external service; only verification lives here.
package identity

import (
	"errors"
	"net/http"
	"strings"
)

var ErrInvalidToken = errors.New("invalid token")

type Identity struct {
	UserId string
	Name   string
}

type Provider interface {
	Identify(token string) (Identity, error)
}

// Token extracts a token from the Authorization header
// or, for websocket upgrades, from the token query param.
func Token(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		if t, ok := strings.CutPrefix(h, "Bearer "); ok {
			return strings.TrimSpace(t)
		}
	}
	return r.URL.Query().Get("token")
}
