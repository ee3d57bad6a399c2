package api

import (
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v4"
)

func signedHS256(t *testing.T, secret []byte, claims jwt.MapClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(secret)
	if err != nil {
		t.Fatalf("failed to sign token: %v", err)
	}
	return signed
}

func localAuth(t *testing.T, secret string) *Auth {
	t.Helper()
	t.Setenv(envLocalAuthMode, "hs256")
	t.Setenv(envLocalAuthSecret, secret)
	return NewAuth(nil, "api://aud", "https://issuer/")
}

func TestUserIDFromAuthHeaderHS256(t *testing.T) {
	secret := "test-secret"
	auth := localAuth(t, secret)
	signed := signedHS256(t, []byte(secret), jwt.MapClaims{
		"sub": "user-123",
		"aud": "api://aud",
		"iss": "https://issuer/",
		"exp": time.Now().Add(5 * time.Minute).Unix(),
		"iat": time.Now().Add(-time.Minute).Unix(),
	})

	userID, err := auth.UserIDFromAuthHeader("Bearer " + signed)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if userID != "user-123" {
		t.Fatalf("unexpected user id: %s", userID)
	}
}

func TestUserIDFromAuthHeaderMissing(t *testing.T) {
	auth := localAuth(t, "test-secret")
	if _, err := auth.UserIDFromAuthHeader(""); err == nil || err.Error() != "missing authorization header" {
		t.Fatalf("expected missing header error, got %v", err)
	}
}

func TestUserIDFromAuthHeaderNotBearer(t *testing.T) {
	auth := localAuth(t, "test-secret")
	if _, err := auth.UserIDFromAuthHeader("Basic dXNlcjpwYXNz"); err == nil || err.Error() != "bad auth header" {
		t.Fatalf("expected bad auth header error, got %v", err)
	}
}

func TestUserIDFromAuthHeaderManyPeriods(t *testing.T) {
	auth := localAuth(t, "test-secret")
	header := "Bearer " + strings.Repeat(".", 1000)
	if _, err := auth.UserIDFromAuthHeader(header); err == nil || err.Error() != "bad auth header" {
		t.Fatalf("expected bad auth header error, got %v", err)
	}
}

func TestUserIDFromAuthHeaderWrongSecret(t *testing.T) {
	auth := localAuth(t, "test-secret")
	signed := signedHS256(t, []byte("other-secret"), jwt.MapClaims{
		"sub": "user-123",
		"exp": time.Now().Add(5 * time.Minute).Unix(),
	})
	if _, err := auth.UserIDFromAuthHeader("Bearer " + signed); err == nil {
		t.Fatal("expected signature verification to fail")
	}
}

func TestUserIDFromAuthHeaderWrongAudience(t *testing.T) {
	auth := localAuth(t, "test-secret")
	signed := signedHS256(t, []byte("test-secret"), jwt.MapClaims{
		"sub": "user-123",
		"aud": "api://other",
		"iss": "https://issuer/",
		"exp": time.Now().Add(5 * time.Minute).Unix(),
	})
	if _, err := auth.UserIDFromAuthHeader("Bearer " + signed); err == nil || err.Error() != "invalid audience" {
		t.Fatalf("expected audience rejection, got %v", err)
	}
}

func TestUserIDFromAuthHeaderExpired(t *testing.T) {
	auth := localAuth(t, "test-secret")
	signed := signedHS256(t, []byte("test-secret"), jwt.MapClaims{
		"sub": "user-123",
		"aud": "api://aud",
		"iss": "https://issuer/",
		"exp": time.Now().Add(-5 * time.Minute).Unix(),
	})
	if _, err := auth.UserIDFromAuthHeader("Bearer " + signed); err == nil {
		t.Fatal("expected expired token to fail")
	}
}

func TestUserIDFromAuthHeaderMissingSub(t *testing.T) {
	auth := localAuth(t, "test-secret")
	signed := signedHS256(t, []byte("test-secret"), jwt.MapClaims{
		"aud": "api://aud",
		"iss": "https://issuer/",
		"exp": time.Now().Add(5 * time.Minute).Unix(),
	})
	if _, err := auth.UserIDFromAuthHeader("Bearer " + signed); err == nil || err.Error() != "missing sub" {
		t.Fatalf("expected missing sub error, got %v", err)
	}
}
