package api

import (
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"math/big"
	"strings"
	"testing"
	"time"

	"github.com/MicahParks/keyfunc"
	"github.com/bytedance/sonic"
	"github.com/golang-jwt/jwt/v4"
)

func TestBearerTokenFromStringSuccess(t *testing.T) {
	token, err := bearerTokenFromString("  Bearer header.payload.signature ")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if token != "header.payload.signature" {
		t.Fatalf("unexpected token content: %s", token)
	}
}

func TestBearerTokenFromStringErrors(t *testing.T) {
	tests := []struct {
		raw  string
		want error
	}{
		{raw: "", want: errMissingAuthorization},
		{raw: "   ", want: errMissingAuthorization},
		{raw: "Basic abc.def.ghi", want: errBadAuthorization},
		{raw: "Bearer ", want: errBadAuthorization},
		{raw: "Bearer " + strings.Repeat(".", 1000), want: errBadAuthorization},
		{raw: "Bearer onlyonepart", want: errBadAuthorization},
	}
	for _, tt := range tests {
		if _, err := bearerTokenFromString(tt.raw); err != tt.want {
			t.Fatalf("bearerTokenFromString(%q) error = %v, want %v", tt.raw, err, tt.want)
		}
	}
}

func TestIssueAndVerifySessionToken(t *testing.T) {
	auth := NewAuth([]byte("test-secret"), time.Hour, nil, "", "")
	token, expires, err := auth.Issue("admin")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if d := time.Until(expires); d <= 59*time.Minute || d > time.Hour {
		t.Fatalf("unexpected expiry: %v", expires)
	}

	userID, err := auth.UserIDFromAuthHeader("Bearer " + token)
	if err != nil {
		t.Fatalf("unexpected error verifying token: %v", err)
	}
	if userID != "admin" {
		t.Fatalf("unexpected user id: %s", userID)
	}

	other, _, _ := auth.Issue("admin")
	if other == token {
		t.Fatalf("expected distinct tokens per login")
	}
}

func TestSessionTokenRejections(t *testing.T) {
	auth := NewAuth([]byte("test-secret"), time.Hour, nil, "", "")

	wrongKey := NewAuth([]byte("other-secret"), time.Hour, nil, "", "")
	forged, _, _ := wrongKey.Issue("admin")
	if _, err := auth.UserIDFromBearer(forged); err == nil {
		t.Fatalf("expected token signed with another secret to be rejected")
	}

	expired := NewAuth([]byte("test-secret"), time.Hour, nil, "", "")
	expired.now = func() time.Time { return time.Now().Add(-3 * time.Hour) }
	old, _, _ := expired.Issue("admin")
	if _, err := auth.UserIDFromBearer(old); err == nil {
		t.Fatalf("expected expired token to be rejected")
	}

	foreign := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "admin",
		"iss": "someone-else",
		"exp": time.Now().Add(time.Hour).Unix(),
	})
	signed, _ := foreign.SignedString([]byte("test-secret"))
	if _, err := auth.UserIDFromBearer(signed); err == nil {
		t.Fatalf("expected token with foreign issuer to be rejected")
	}
}

func rsaJWKS(t *testing.T, kid string, key *rsa.PrivateKey) *keyfunc.JWKS {
	t.Helper()
	enc := base64.RawURLEncoding
	doc := map[string]any{
		"keys": []any{map[string]any{
			"kty": "RSA",
			"kid": kid,
			"alg": "RS256",
			"use": "sig",
			"n":   enc.EncodeToString(key.PublicKey.N.Bytes()),
			"e":   enc.EncodeToString(big.NewInt(int64(key.PublicKey.E)).Bytes()),
		}},
	}
	raw, err := sonic.Marshal(doc)
	if err != nil {
		t.Fatalf("marshal jwks: %v", err)
	}
	jwks, err := keyfunc.NewJSON(raw)
	if err != nil {
		t.Fatalf("jwks: %v", err)
	}
	return jwks
}

func signRS256(t *testing.T, key *rsa.PrivateKey, kid string, claims jwt.MapClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = kid
	signed, err := token.SignedString(key)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return signed
}

func TestExternalRS256Tokens(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	claims := func(aud string) jwt.MapClaims {
		return jwt.MapClaims{
			"sub": "auth0|42",
			"aud": aud,
			"iss": "https://issuer/",
			"exp": time.Now().Add(5 * time.Minute).Unix(),
			"iat": time.Now().Add(-time.Minute).Unix(),
		}
	}

	withoutJWKS := NewAuth([]byte("s"), time.Hour, nil, "", "")
	if _, err := withoutJWKS.UserIDFromBearer(signRS256(t, key, "k1", claims("api://aud"))); err == nil {
		t.Fatalf("RS256 must be rejected without JWKS")
	}

	auth := NewAuth([]byte("s"), time.Hour, rsaJWKS(t, "k1", key), "api://aud", "https://issuer/")
	userID, err := auth.UserIDFromBearer(signRS256(t, key, "k1", claims("api://aud")))
	if err != nil || userID != "auth0|42" {
		t.Fatalf("verify: %q %v", userID, err)
	}
	if _, ok := auth.keyCache.Load("k1"); !ok {
		t.Fatalf("expected verified key to be cached")
	}
	if _, err := auth.UserIDFromBearer(signRS256(t, key, "k1", claims("api://other"))); err == nil {
		t.Fatalf("expected audience mismatch to be rejected")
	}
}
