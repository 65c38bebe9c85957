package auth

import (
	"crypto"
	"crypto/hmac"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestVerifyDevToken(t *testing.T) {
	v := &Verifier{Mode: "dev"}

	pr, err := v.Verify("t_acme:planner")
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if pr.Tenant != "t_acme" || pr.Role != "planner" {
		t.Fatalf("principal %+v", pr)
	}

	pr, err = v.Verify("t_acme:planner:user42")
	if err != nil {
		t.Fatalf("verify with subject: %v", err)
	}
	if pr.Subject != "user42" {
		t.Fatalf("subject %q", pr.Subject)
	}

	if _, err := v.Verify("garbage"); err == nil {
		t.Fatal("expected error for malformed dev token")
	}
}

func hs256Token(t *testing.T, secret []byte, claims map[string]any) string {
	t.Helper()
	enc := func(v any) string {
		b, _ := json.Marshal(v)
		return base64.RawURLEncoding.EncodeToString(b)
	}
	signing := enc(map[string]any{"alg": "HS256", "typ": "JWT"}) + "." + enc(claims)
	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte(signing))
	return signing + "." + base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}

func TestVerifyHMACToken(t *testing.T) {
	secret := []byte("topsecret")
	v := &Verifier{Mode: "hmac", HMACSecret: secret, TenantClaim: "tenant", RoleClaim: "role", SubjectClaim: "sub"}

	tok := hs256Token(t, secret, map[string]any{"tenant": "t1", "role": "Admin", "sub": "u1"})
	pr, err := v.Verify(tok)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if pr.Tenant != "t1" || pr.Role != "admin" || pr.Subject != "u1" {
		t.Fatalf("principal %+v", pr)
	}

	// Wrong key must fail.
	bad := hs256Token(t, []byte("other"), map[string]any{"tenant": "t1", "role": "admin"})
	if _, err := v.Verify(bad); err == nil {
		t.Fatal("expected signature failure")
	}

	// Missing tenant claim must fail even with a valid signature.
	tok = hs256Token(t, secret, map[string]any{"role": "admin"})
	if _, err := v.Verify(tok); err == nil {
		t.Fatal("expected missing-tenant error")
	}
}

func rs256Token(t *testing.T, key *rsa.PrivateKey, kid string, claims map[string]any) string {
	t.Helper()
	enc := func(v any) string {
		b, _ := json.Marshal(v)
		return base64.RawURLEncoding.EncodeToString(b)
	}
	signing := enc(map[string]any{"alg": "RS256", "typ": "JWT", "kid": kid}) + "." + enc(claims)
	h := sha256.Sum256([]byte(signing))
	sig, err := rsa.SignPKCS1v15(rand.Reader, key, crypto.SHA256, h[:])
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return signing + "." + base64.RawURLEncoding.EncodeToString(sig)
}

func TestVerifyJWKSToken(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		doc := jwks{Keys: []jwk{{
			Kty: "RSA",
			Kid: "k1",
			Alg: "RS256",
			N:   base64.RawURLEncoding.EncodeToString(key.PublicKey.N.Bytes()),
			E:   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(key.PublicKey.E)).Bytes()),
		}}}
		_ = json.NewEncoder(w).Encode(doc)
	}))
	defer ts.Close()

	v := &Verifier{
		Mode:         "jwks",
		JWKSURL:      ts.URL,
		TenantClaim:  "tenant",
		RoleClaim:    "role",
		SubjectClaim: "sub",
		http:         ts.Client(),
		cacheTTL:     time.Minute,
	}

	tok := rs256Token(t, key, "k1", map[string]any{"tenant": "t1", "role": "Planner", "sub": "u9"})
	pr, err := v.Verify(tok)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if pr.Tenant != "t1" || pr.Role != "planner" || pr.Subject != "u9" {
		t.Fatalf("principal %+v", pr)
	}

	// Unknown kid is not in the key set.
	if _, err := v.Verify(rs256Token(t, key, "nope", map[string]any{"tenant": "t1", "role": "planner"})); err == nil {
		t.Fatal("expected unknown-kid error")
	}

	// HS256 tokens are rejected outright in jwks mode.
	if _, err := v.Verify(hs256Token(t, []byte("x"), map[string]any{"tenant": "t1", "role": "planner"})); err == nil {
		t.Fatal("expected alg rejection")
	}

	// A tampered signature must fail against the real key.
	forged, err2 := rsa.GenerateKey(rand.Reader, 2048)
	if err2 != nil {
		t.Fatalf("generate key: %v", err2)
	}
	if _, err := v.Verify(rs256Token(t, forged, "k1", map[string]any{"tenant": "t1", "role": "planner"})); err == nil {
		t.Fatal("expected signature failure")
	}
}
