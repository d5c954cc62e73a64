package auth

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func signHS256(t *testing.T, secret string, claims *Claims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("failed to sign token: %v", err)
	}
	return signed
}

func TestNewVerifier_Disabled(t *testing.T) {
	v, err := NewVerifier(context.Background(), Config{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v != nil {
		t.Fatalf("expected nil verifier when unconfigured")
	}
}

func TestVerify_HS256RoundTrip(t *testing.T) {
	v, err := NewVerifier(context.Background(), Config{SharedSecret: "test-secret"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	token := signHS256(t, "test-secret", &Claims{
		UserID: "user-1",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "user-1",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})

	claims, err := v.Verify(token)
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	if claims.UserID != "user-1" {
		t.Errorf("UserID = %q, want user-1", claims.UserID)
	}
}

func TestVerify_WrongSecret(t *testing.T) {
	v, _ := NewVerifier(context.Background(), Config{SharedSecret: "right-secret"})
	token := signHS256(t, "wrong-secret", &Claims{
		RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour))},
	})
	if _, err := v.Verify(token); err == nil {
		t.Fatal("expected verification failure")
	}
}

func TestVerify_ExpiredToken(t *testing.T) {
	v, _ := NewVerifier(context.Background(), Config{SharedSecret: "test-secret"})
	token := signHS256(t, "test-secret", &Claims{
		RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour))},
	})
	if _, err := v.Verify(token); err == nil {
		t.Fatal("expected expired token to fail")
	}
}

func TestVerify_RejectsUnsignedToken(t *testing.T) {
	v, _ := NewVerifier(context.Background(), Config{SharedSecret: "test-secret"})
	token := jwt.NewWithClaims(jwt.SigningMethodNone, &Claims{})
	unsigned, err := token.SignedString(jwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatalf("failed to build token: %v", err)
	}
	if _, err := v.Verify(unsigned); err == nil {
		t.Fatal("expected alg=none token to fail")
	}
}

func TestClaimsContext(t *testing.T) {
	ctx := context.Background()
	if _, ok := GetClaims(ctx); ok {
		t.Fatal("empty context should have no claims")
	}
	claims := &Claims{UserID: "user-2"}
	ctx = WithClaims(ctx, claims)
	got, ok := GetClaims(ctx)
	if !ok || got.UserID != "user-2" {
		t.Errorf("got %+v, ok=%v", got, ok)
	}
}
