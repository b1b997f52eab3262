package identity

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

type claims struct {
	Name string `json:"name"`
	jwt.RegisteredClaims
}

// JWT verifies HMAC signed tokens where the subject is the user id.
type JWT struct {
	secret []byte
	issuer string
}

func NewJWT(secret, issuer string) *JWT { return &JWT{secret: []byte(secret), issuer: issuer} }

func (j *JWT) Generate(userId, name string, ttl time.Duration) (string, error) {
	now := time.Now()
	c := claims{
		Name: name,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userId,
			Issuer:    j.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(j.secret)
}

func (j *JWT) Identify(token string) (Identity, error) {
	opts := []jwt.ParserOption{jwt.WithExpirationRequired()}
	if j.issuer != "" {
		opts = append(opts, jwt.WithIssuer(j.issuer))
	}
	t, err := jwt.ParseWithClaims(token, &claims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return j.secret, nil
	}, opts...)
	if err != nil {
		return Identity{}, ErrInvalidToken
	}
	c, ok := t.Claims.(*claims)
	if !ok || !t.Valid || c.Subject == "" {
		return Identity{}, ErrInvalidToken
	}
	name := c.Name
	if name == "" {
		name = c.Subject
	}
	return Identity{UserId: c.Subject, Name: name}, nil
}
