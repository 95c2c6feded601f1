package api

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/labstack/echo/v4"
)

var testSecret = []byte("test-secret")

func signToken(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(testSecret)
	if err != nil {
		t.Fatalf("failed to sign token: %v", err)
	}
	return signed
}

func userToken(t *testing.T, sub string) string {
	t.Helper()
	return signToken(t, jwt.MapClaims{
		"sub": sub,
		"exp": time.Now().Add(5 * time.Minute).Unix(),
		"iat": time.Now().Add(-time.Minute).Unix(),
	})
}

func TestBearerToken(t *testing.T) {
	tests := []struct {
		name    string
		header  string
		want    string
		wantErr error
	}{
		{name: "ok", header: "Bearer a.b.c", want: "a.b.c"},
		{name: "padded", header: "  Bearer a.b.c  ", want: "a.b.c"},
		{name: "missing", header: "   ", wantErr: errMissingAuthorization},
		{name: "scheme", header: "Basic a.b.c", wantErr: errBadAuthorization},
		{name: "not a jwt", header: "Bearer abc", wantErr: errBadAuthorization},
		{name: "many periods", header: "Bearer " + strings.Repeat(".", 1000), wantErr: errBadAuthorization},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := bearerToken(tt.header)
			if err != tt.wantErr {
				t.Fatalf("expected error %v, got %v", tt.wantErr, err)
			}
			if got != tt.want {
				t.Fatalf("unexpected token %q", got)
			}
		})
	}
}

func TestAuthHeaderFallsBackToQueryToken(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest("GET", "/stream?token=a.b.c", nil)
	c := e.NewContext(req, httptest.NewRecorder())
	if got := authHeader(c); got != "Bearer a.b.c" {
		t.Fatalf("unexpected header %q", got)
	}

	req.Header.Set(echo.HeaderAuthorization, "Bearer x.y.z")
	if got := authHeader(c); got != "Bearer x.y.z" {
		t.Fatalf("header should win over query, got %q", got)
	}
}

func TestAuthenticateHS256(t *testing.T) {
	token := signToken(t, jwt.MapClaims{
		"sub": "user-123",
		"aud": "api://aud",
		"iss": "https://issuer/",
		"exp": time.Now().Add(5 * time.Minute).Unix(),
		"nbf": time.Now().Add(-time.Minute).Unix(),
	})
	auth := NewTestAuth(testSecret)
	auth.Audience = "api://aud"
	auth.Issuer = "https://issuer/"

	p, err := auth.Authenticate("Bearer " + token)
	if err != nil {
		t.Fatalf("unexpected error verifying token: %v", err)
	}
	if p.Subject != "user-123" || p.Token != token {
		t.Fatalf("unexpected principal: %+v", p)
	}
}

func TestAuthenticateRejects(t *testing.T) {
	auth := NewTestAuth(testSecret)
	auth.Audience = "api://aud"

	expired := signToken(t, jwt.MapClaims{"sub": "u", "aud": "api://aud", "exp": time.Now().Add(-time.Hour).Unix()})
	noSub := signToken(t, jwt.MapClaims{"aud": "api://aud", "exp": time.Now().Add(time.Hour).Unix()})
	wrongAud := signToken(t, jwt.MapClaims{"sub": "u", "aud": "other", "exp": time.Now().Add(time.Hour).Unix()})
	otherSecret, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "u", "aud": "api://aud", "exp": time.Now().Add(time.Hour).Unix(),
	}).SignedString([]byte("nope"))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	for name, token := range map[string]string{
		"expired":       expired,
		"missing sub":   noSub,
		"audience":      wrongAud,
		"bad signature": otherSecret,
	} {
		if _, err := auth.Authenticate("Bearer " + token); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}
	if _, err := auth.Authenticate(""); err != errMissingAuthorization {
		t.Fatalf("expected missing header error, got %v", err)
	}
}

func TestKeyForTokenWithoutJWKS(t *testing.T) {
	auth := NewAuth(nil, "aud", "iss")
	if _, err := auth.keyForToken(&jwt.Token{Header: map[string]any{"kid": "k1"}}); err == nil {
		t.Fatal("expected error without a key set")
	}
}
