package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwt"
)

// Verifier parses and validates HS256 access tokens issued by the identity
// service. Token issuance lives there; this service only authenticates.
type Verifier struct {
	Secret    []byte
	Issuer    string
	Audience  string
	ClockSkew time.Duration
	Now       func() time.Time
}

// ParseAccessToken returns the subject of a valid access token.
func (v Verifier) ParseAccessToken(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", errors.New("auth: empty token")
	}
	if len(v.Secret) == 0 {
		return "", errors.New("auth: verifier secret not configured")
	}
	tok, err := jwt.Parse([]byte(raw), jwt.WithKey(jwa.HS256, v.Secret), jwt.WithValidate(false))
	if err != nil {
		return "", fmt.Errorf("auth: parse token: %w", err)
	}
	validator := TokenValidator{
		Issuer:    v.Issuer,
		Audience:  v.Audience,
		ClockSkew: v.ClockSkew,
		Algorithm: jwa.HS256,
	}
	if err := validator.Validate(tok, jwa.HS256, v.now()); err != nil {
		return "", err
	}
	sub := strings.TrimSpace(tok.Subject())
	if sub == "" {
		return "", errors.New("auth: token missing subject")
	}
	return sub, nil
}

func (v Verifier) now() time.Time {
	if v.Now != nil {
		return v.Now()
	}
	return time.Now()
}
