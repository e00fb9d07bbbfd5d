package auth

import (
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

func newTestValidator(t *testing.T, cfg ValidatorConfig) (*jwtValidator, *rsa.PrivateKey) {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	v := NewValidator(logrus.New(), cfg).(*jwtValidator)
	v.keys["test-kid"] = &key.PublicKey
	return v, key
}

func signToken(t *testing.T, key *rsa.PrivateKey, claims jwt.MapClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = "test-kid"
	signed, err := token.SignedString(key)
	require.NoError(t, err)
	return signed
}

func TestJWTValidator_Validate_Success(t *testing.T) {
	v, key := newTestValidator(t, ValidatorConfig{Issuer: "https://issuer.example"})
	raw := signToken(t, key, jwt.MapClaims{
		"sub":    "alice",
		"iss":    "https://issuer.example",
		"exp":    time.Now().Add(time.Hour).Unix(),
		"roles":  "sre,platform",
		"groups": []any{"eng", "sre"},
	})

	tok, err := v.Validate(nil, raw)
	require.NoError(t, err)
	require.Equal(t, "alice", tok.Subject)
	require.Equal(t, []string{"sre", "platform"}, tok.Claims["roles"])
	require.Equal(t, []string{"eng", "sre"}, tok.Claims["groups"])
	require.Equal(t, raw, tok.RawBearer)
}

func TestJWTValidator_Validate_WrongIssuer(t *testing.T) {
	v, key := newTestValidator(t, ValidatorConfig{Issuer: "https://issuer.example"})
	raw := signToken(t, key, jwt.MapClaims{
		"sub": "alice",
		"iss": "https://someone-else.example",
		"exp": time.Now().Add(time.Hour).Unix(),
	})

	_, err := v.Validate(nil, raw)
	require.Error(t, err)
	require.Contains(t, err.Error(), "invalid issuer")
}

func TestJWTValidator_Validate_UnknownKid(t *testing.T) {
	v, key := newTestValidator(t, ValidatorConfig{})
	delete(v.keys, "test-kid")
	raw := signToken(t, key, jwt.MapClaims{"sub": "alice", "exp": time.Now().Add(time.Hour).Unix()})

	_, err := v.Validate(nil, raw)
	require.Error(t, err)
}

func TestJWTValidator_Validate_ExpiredToken(t *testing.T) {
	v, key := newTestValidator(t, ValidatorConfig{})
	raw := signToken(t, key, jwt.MapClaims{
		"sub": "alice",
		"exp": time.Now().Add(-time.Hour).Unix(),
	})

	_, err := v.Validate(nil, raw)
	require.Error(t, err)
}

func TestJWTValidator_Validate_AudienceMismatch(t *testing.T) {
	v, key := newTestValidator(t, ValidatorConfig{Audience: "runbook-api"})
	raw := signToken(t, key, jwt.MapClaims{
		"sub": "alice",
		"aud": "other-api",
		"exp": time.Now().Add(time.Hour).Unix(),
	})

	_, err := v.Validate(nil, raw)
	require.Error(t, err)
	require.Contains(t, err.Error(), "invalid audience")
}

func TestJWTValidator_Validate_AllowedGroupsEnforced(t *testing.T) {
	v, key := newTestValidator(t, ValidatorConfig{AllowedGroups: []string{"sre"}})
	raw := signToken(t, key, jwt.MapClaims{
		"sub":    "alice",
		"exp":    time.Now().Add(time.Hour).Unix(),
		"groups": []any{"eng"},
	})

	_, err := v.Validate(nil, raw)
	require.Error(t, err)
	require.Contains(t, err.Error(), "not in any allowed group")
}

func TestJWTValidator_StartNoop_WithoutJWKSURL(t *testing.T) {
	v, _ := newTestValidator(t, ValidatorConfig{})
	require.NoError(t, v.Start(nil))
	require.NoError(t, v.Stop())
}

func TestApplyDefaults(t *testing.T) {
	cfg := ValidatorConfig{}
	cfg.ApplyDefaults()
	require.Equal(t, time.Hour, cfg.RefreshInterval)
}

func TestNormalizeClaims(t *testing.T) {
	claims := jwt.MapClaims{
		"roles": "a, b ,c",
		"list":  []any{"x", "y"},
		"other": 5,
	}
	out := normalizeClaims(claims)
	require.Equal(t, []string{"a", "b", "c"}, out["roles"])
	require.Equal(t, []string{"x", "y"}, out["list"])
	_, ok := out["other"]
	require.False(t, ok)
}

func TestSplitComma(t *testing.T) {
	require.Equal(t, []string{"a", "b"}, splitComma("a, b"))
	require.Nil(t, splitComma(""))
}

func TestAnyIntersects(t *testing.T) {
	require.True(t, anyIntersects([]string{"a", "b"}, []string{"b"}))
	require.False(t, anyIntersects([]string{"a"}, []string{"b"}))
}

func TestExtractAudience(t *testing.T) {
	require.Equal(t, []string{"single"}, extractAudience(jwt.MapClaims{"aud": "single"}))
	require.Equal(t, []string{"a", "b"}, extractAudience(jwt.MapClaims{"aud": []any{"a", "b"}}))
	require.Nil(t, extractAudience(jwt.MapClaims{}))
}

func TestParseRSAPublicKey(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	jwk := jwkKey{
		Kty: "RSA",
		Use: "sig",
		Kid: "test",
		N:   base64URLEncode(key.PublicKey.N.Bytes()),
		E:   base64URLEncode(bigEndianExponent(key.PublicKey.E)),
	}

	pub, err := parseRSAPublicKey(jwk)
	require.NoError(t, err)
	require.Equal(t, key.PublicKey.E, pub.E)
	require.Equal(t, 0, key.PublicKey.N.Cmp(pub.N))
}

func TestKeyFunc_MissingKid(t *testing.T) {
	v, _ := newTestValidator(t, ValidatorConfig{})
	token := &jwt.Token{Header: map[string]any{}}
	_, err := v.keyFunc(token)
	require.Error(t, err)
}

func base64URLEncode(b []byte) string {
	return base64.RawURLEncoding.EncodeToString(b)
}

func bigEndianExponent(e int) []byte {
	var b []byte
	for e > 0 {
		b = append([]byte{byte(e & 0xff)}, b...)
		e >>= 8
	}
	if len(b) == 0 {
		b = []byte{0}
	}
	return b
}
