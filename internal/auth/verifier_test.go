package auth

import (
	"testing"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwt"
)

func signedToken(t *testing.T, secret []byte, subject string, now time.Time, ttl time.Duration) string {
	t.Helper()
	token, err := jwt.NewBuilder().
		Issuer("issuer").
		Audience([]string{"aud"}).
		Subject(subject).
		IssuedAt(now).
		NotBefore(now).
		Expiration(now.Add(ttl)).
		Build()
	if err != nil {
		t.Fatalf("build token: %v", err)
	}
	raw, err := jwt.Sign(token, jwt.WithKey(jwa.HS256, secret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return string(raw)
}

func TestVerifierParseAccessToken(t *testing.T) {
	secret := []byte("verifier-secret")
	now := time.Now()
	raw := signedToken(t, secret, "user-123", now, time.Minute)

	v := Verifier{Secret: secret, Issuer: "issuer", Audience: "aud", Now: func() time.Time { return now }}
	sub, err := v.ParseAccessToken(raw)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if sub != "user-123" {
		t.Fatalf("subject = %q, want user-123", sub)
	}
}

func TestVerifierRejectsWrongSecret(t *testing.T) {
	now := time.Now()
	raw := signedToken(t, []byte("right"), "user-123", now, time.Minute)

	v := Verifier{Secret: []byte("wrong"), Issuer: "issuer", Audience: "aud", Now: func() time.Time { return now }}
	if _, err := v.ParseAccessToken(raw); err == nil {
		t.Fatal("expected signature error")
	}
}

func TestVerifierRejectsExpired(t *testing.T) {
	secret := []byte("verifier-secret")
	now := time.Now()
	raw := signedToken(t, secret, "user-123", now.Add(-2*time.Hour), time.Minute)

	v := Verifier{Secret: secret, Issuer: "issuer", Audience: "aud", Now: func() time.Time { return now }}
	if _, err := v.ParseAccessToken(raw); err == nil {
		t.Fatal("expected expiration error")
	}
}

func TestVerifierRejectsEmptyToken(t *testing.T) {
	v := Verifier{Secret: []byte("s")}
	if _, err := v.ParseAccessToken("  "); err == nil {
		t.Fatal("expected empty token error")
	}
}
