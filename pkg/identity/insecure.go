package identity

import "strings"

// Insecure trusts the token as "user_id" or "user_id:name".
// Dev mode only.
type Insecure struct{}

func (Insecure) Identify(token string) (Identity, error) {
	id, name, _ := strings.Cut(strings.TrimSpace(token), ":")
	if id == "" {
		return Identity{}, ErrInvalidToken
	}
	if name == "" {
		name = id
	}
	return Identity{UserId: id, Name: name}, nil
}
