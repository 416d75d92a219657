package service

import (
	"context"
	"crypto/ed25519"
	"errors"
	"strings"
	"testing"
	"time"

	"microcredit-gateway/internal/adapter/storage/memory"
	"microcredit-gateway/internal/clock"
	"microcredit-gateway/internal/core/domain"
	"microcredit-gateway/internal/core/ports"
	"microcredit-gateway/internal/core/ports/mocks"
	"microcredit-gateway/pkg/apperror"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

var tokenEpoch = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type tokenFixture struct {
	issuer   *EphemeralTokenIssuer
	verifier *EphemeralTokenVerifier
	nonces   *memory.NonceStore
	clock    *clock.Manual
	key      ed25519.PrivateKey
}

func testSigningKey() ed25519.PrivateKey {
	seed := make([]byte, ed25519.SeedSize)
	for i := range seed {
		seed[i] = byte(i + 1)
	}
	return ed25519.NewKeyFromSeed(seed)
}

func setupTokens(t *testing.T) *tokenFixture {
	t.Helper()
	clk := clock.NewManual(tokenEpoch)
	key := testSigningKey()
	issuer := NewTokenIssuer(key, TokenIssuerOptions{
		Network:    "testnet",
		DefaultTTL: 60 * time.Second,
		MinTTL:     10 * time.Second,
		MaxTTL:     300 * time.Second,
	}, clk, zerolog.Nop())
	nonces := memory.NewNonceStore()
	keys := NewKeyProvider(issuer, nil, 10*time.Minute, clk, zerolog.Nop())
	verifier := NewTokenVerifier(keys, nonces, clk, TokenVerifierOptions{
		ClockSkew:  5 * time.Second,
		PathPrefix: "/api",
	}, zerolog.Nop())
	return &tokenFixture{issuer: issuer, verifier: verifier, nonces: nonces, clock: clk, key: key}
}

func (f *tokenFixture) issue(t *testing.T, method, path string, body []byte) *ports.IssuedToken {
	t.Helper()
	tok, err := f.issuer.Issue(context.Background(), ports.IssueTokenRequest{
		Subject:  "user:7",
		Method:   method,
		Path:     path,
		BodyHash: BodyHash(body),
	})
	require.NoError(t, err)
	return tok
}

// sign builds a token by hand so tests can produce payloads the issuer never would.
func (f *tokenFixture) sign(t *testing.T, claims jwt.Claims) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodEdDSA, claims)
	s, err := tok.SignedString(f.key)
	require.NoError(t, err)
	return s
}

func (f *tokenFixture) validClaims() *domain.EphemeralClaims {
	now := f.clock.Now()
	return &domain.EphemeralClaims{
		Method:   "POST",
		Path:     "/v1/credits/hold",
		BodyHash: BodyHash([]byte(`{"a":1}`)),
		Nonce:    "n-" + now.String(),
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    f.issuer.Address(),
			Subject:   "user:7",
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Minute)),
		},
	}
}

func assertCode(t *testing.T, err error, code string) {
	t.Helper()
	require.Error(t, err)
	assert.Equal(t, code, apperror.CodeOf(err), "unexpected error: %v", err)
}

// ---- Issue ----

func TestTokenIssuer_Issue(t *testing.T) {
	f := setupTokens(t)

	tok, err := f.issuer.Issue(context.Background(), ports.IssueTokenRequest{
		Subject:  "user:7",
		Method:   "post",
		Path:     "/v1/credits/hold",
		BodyHash: "abcdefghijk",
		TTL:      120 * time.Second,
	})
	require.NoError(t, err)

	assert.Equal(t, "EdDSA", tok.Algorithm)
	assert.Equal(t, f.issuer.Address(), tok.KeyID)
	assert.Equal(t, tokenEpoch.Unix(), tok.IssuedAt)
	assert.Equal(t, tokenEpoch.Unix()+120, tok.ExpiresAt)
	assert.Equal(t, 2, strings.Count(tok.Token, "."))

	claims := &domain.EphemeralClaims{}
	parsed, err := jwt.NewParser(jwt.WithoutClaimsValidation()).ParseWithClaims(tok.Token, claims, func(*jwt.Token) (any, error) {
		return f.key.Public(), nil
	})
	require.NoError(t, err)
	assert.Equal(t, "JWT", parsed.Header["typ"])
	assert.Equal(t, f.issuer.Address(), parsed.Header["kid"])
	assert.Equal(t, f.issuer.Address(), claims.Issuer)
	assert.Equal(t, "user:7", claims.Subject)
	assert.Equal(t, "POST", claims.Method)
	assert.Equal(t, "/v1/credits/hold", claims.Path)
	assert.Equal(t, "abcdefghijk", claims.BodyHash)
	assert.Equal(t, "testnet", claims.Net)
	assert.Len(t, claims.Nonce, 22) // 16 bytes, base64url unpadded
}

func TestTokenIssuer_Issue_DefaultTTLAndFreshNonce(t *testing.T) {
	f := setupTokens(t)

	a := f.issue(t, "GET", "/x", nil)
	b := f.issue(t, "GET", "/x", nil)

	assert.Equal(t, tokenEpoch.Unix()+60, a.ExpiresAt)
	assert.NotEqual(t, a.Token, b.Token, "each token carries its own nonce")
}

func TestTokenIssuer_Issue_Validation(t *testing.T) {
	f := setupTokens(t)

	tests := []struct {
		name  string
		req   ports.IssueTokenRequest
		field string
	}{
		{"ttl too short", ports.IssueTokenRequest{Subject: "s", Method: "GET", Path: "/x", BodyHash: "h", TTL: 5 * time.Second}, "ttlSeconds"},
		{"ttl too long", ports.IssueTokenRequest{Subject: "s", Method: "GET", Path: "/x", BodyHash: "h", TTL: 301 * time.Second}, "ttlSeconds"},
		{"missing subject", ports.IssueTokenRequest{Method: "GET", Path: "/x", BodyHash: "h"}, "sub"},
		{"missing method", ports.IssueTokenRequest{Subject: "s", Path: "/x", BodyHash: "h"}, "method"},
		{"relative path", ports.IssueTokenRequest{Subject: "s", Method: "GET", Path: "x", BodyHash: "h"}, "path"},
		{"missing body hash", ports.IssueTokenRequest{Subject: "s", Method: "GET", Path: "/x"}, "bodyHash"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.issuer.Issue(context.Background(), tt.req)
			var appErr *apperror.AppError
			require.ErrorAs(t, err, &appErr)
			assert.Equal(t, "VALIDATION_ERROR", appErr.Code)
			assert.Contains(t, appErr.Fields, tt.field)
		})
	}
}

func TestTokenIssuer_PublicKeyDocument(t *testing.T) {
	f := setupTokens(t)

	doc := f.issuer.PublicKeyDocument()
	require.NotNil(t, doc.JWK)
	assert.Equal(t, "OKP", doc.JWK.Kty)
	assert.Equal(t, "Ed25519", doc.JWK.Crv)
	assert.Equal(t, doc.Address, doc.JWK.Kid)

	pub, err := DecodeAddress(doc.Address)
	require.NoError(t, err)
	assert.Equal(t, f.key.Public(), pub)

	decoded, err := DecodePublicKey(&doc)
	require.NoError(t, err)
	assert.Equal(t, pub, decoded)
}

func TestTokenIssuer_ConfiguredAddress(t *testing.T) {
	clk := clock.NewManual(tokenEpoch)
	issuer := NewTokenIssuer(testSigningKey(), TokenIssuerOptions{
		Address: "BANKADDR", DefaultTTL: time.Minute, MinTTL: 10 * time.Second, MaxTTL: 5 * time.Minute,
	}, clk, zerolog.Nop())

	tok, err := issuer.Issue(context.Background(), ports.IssueTokenRequest{Subject: "s", Method: "GET", Path: "/x", BodyHash: "h"})
	require.NoError(t, err)
	assert.Equal(t, "BANKADDR", tok.KeyID)
}

// ---- Verify ----

func TestTokenVerifier_RoundTrip(t *testing.T) {
	f := setupTokens(t)
	body := []byte(`{"amount_micro":500,"idempotencyKey":"k1"}`)
	tok := f.issue(t, "POST", "/v1/credits/hold", body)

	claims, err := f.verifier.Verify(context.Background(), ports.VerifyRequest{
		Token: tok.Token, Method: "post", Path: "/api/v1/credits/hold", Body: body,
	})
	require.NoError(t, err)
	assert.Equal(t, "user:7", claims.Subject)
	assert.Equal(t, 1, f.nonces.Len())
}

// Token valid for 60s: rejected once expired, and usable only once while valid.
func TestTokenVerifier_ExpiryAndReplay(t *testing.T) {
	f := setupTokens(t)
	tok := f.issue(t, "GET", "/x", nil)
	req := ports.VerifyRequest{Token: tok.Token, Method: "GET", Path: "/x"}

	f.clock.Set(tokenEpoch.Add(61 * time.Second))
	_, err := f.verifier.Verify(context.Background(), req)
	assertCode(t, err, "TOKEN_EXPIRED")
	assert.Equal(t, "token expired", err.(*apperror.AppError).Message)
	assert.Zero(t, f.nonces.Len(), "rejected tokens must not consume their nonce")

	f.clock.Set(tokenEpoch.Add(10 * time.Second))
	_, err = f.verifier.Verify(context.Background(), req)
	require.NoError(t, err)

	_, err = f.verifier.Verify(context.Background(), req)
	assertCode(t, err, "REPLAY_DETECTED")
}

func TestTokenVerifier_ExpiryBoundary(t *testing.T) {
	f := setupTokens(t)
	tok := f.issue(t, "GET", "/x", nil)

	f.clock.Set(tokenEpoch.Add(60 * time.Second))
	_, err := f.verifier.Verify(context.Background(), ports.VerifyRequest{Token: tok.Token, Method: "GET", Path: "/x"})
	assert.NoError(t, err, "exp == now is still valid")
}

// Key order and whitespace do not change the body hash.
func TestTokenVerifier_CanonicalBody(t *testing.T) {
	f := setupTokens(t)

	for _, body := range []string{`{"a":1,"b":2}`, `{"b": 2, "a":1}`} {
		tok := f.issue(t, "POST", "/v1/credits/hold", []byte(`{"a":1,"b":2}`))
		_, err := f.verifier.Verify(context.Background(), ports.VerifyRequest{
			Token: tok.Token, Method: "POST", Path: "/v1/credits/hold", Body: []byte(body),
		})
		assert.NoError(t, err, "body %s", body)
	}
}

func TestTokenVerifier_Rejections(t *testing.T) {
	body := []byte(`{"a":1}`)

	tests := []struct {
		name  string
		token func(f *tokenFixture) string
		req   ports.VerifyRequest
		code  string
	}{
		{
			name:  "missing bearer",
			token: func(*tokenFixture) string { return "  " },
			code:  "MISSING_BEARER",
		},
		{
			name:  "one dot",
			token: func(*tokenFixture) string { return "abc.def" },
			code:  "BAD_TOKEN_FORMAT",
		},
		{
			name:  "garbage segments",
			token: func(*tokenFixture) string { return "!!!.???.***" },
			code:  "BAD_TOKEN_FORMAT",
		},
		{
			name: "tampered payload",
			token: func(f *tokenFixture) string {
				good := f.sign(t, f.validClaims())
				other := f.validClaims()
				other.Subject = "user:8"
				forged := f.sign(t, other)
				g, o := strings.Split(good, "."), strings.Split(forged, ".")
				return g[0] + "." + o[1] + "." + g[2]
			},
			code: "BAD_SIGNATURE",
		},
		{
			name: "foreign key",
			token: func(f *tokenFixture) string {
				other := ed25519.NewKeyFromSeed(make([]byte, ed25519.SeedSize))
				s, err := jwt.NewWithClaims(jwt.SigningMethodEdDSA, f.validClaims()).SignedString(other)
				require.NoError(t, err)
				return s
			},
			code: "BAD_SIGNATURE",
		},
		{
			name: "hmac algorithm",
			token: func(f *tokenFixture) string {
				s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, f.validClaims()).SignedString([]byte("secret"))
				require.NoError(t, err)
				return s
			},
			code: "BAD_SIGNATURE",
		},
		{
			name: "iat beyond skew",
			token: func(f *tokenFixture) string {
				c := f.validClaims()
				c.IssuedAt = jwt.NewNumericDate(f.clock.Now().Add(6 * time.Second))
				return f.sign(t, c)
			},
			code: "INVALID_IAT",
		},
		{
			name: "missing exp",
			token: func(f *tokenFixture) string {
				c := f.validClaims()
				c.ExpiresAt = nil
				return f.sign(t, c)
			},
			code: "TOKEN_EXPIRED",
		},
		{
			name: "missing nonce",
			token: func(f *tokenFixture) string {
				c := f.validClaims()
				c.Nonce = ""
				return f.sign(t, c)
			},
			code: "MISSING_CLAIM",
		},
		{
			name:  "method mismatch",
			token: func(f *tokenFixture) string { return f.sign(t, f.validClaims()) },
			req:   ports.VerifyRequest{Method: "GET", Path: "/v1/credits/hold", Body: body},
			code:  "METHOD_MISMATCH",
		},
		{
			name:  "path mismatch",
			token: func(f *tokenFixture) string { return f.sign(t, f.validClaims()) },
			req:   ports.VerifyRequest{Method: "POST", Path: "/v1/credits/capture", Body: body},
			code:  "PATH_MISMATCH",
		},
		{
			name:  "body mismatch",
			token: func(f *tokenFixture) string { return f.sign(t, f.validClaims()) },
			req:   ports.VerifyRequest{Method: "POST", Path: "/v1/credits/hold", Body: []byte(`{"a":2}`)},
			code:  "BODY_HASH_MISMATCH",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := setupTokens(t)
			req := tt.req
			if req.Method == "" {
				req = ports.VerifyRequest{Method: "POST", Path: "/v1/credits/hold", Body: body}
			}
			req.Token = tt.token(f)

			_, err := f.verifier.Verify(context.Background(), req)
			assertCode(t, err, tt.code)
			assert.Zero(t, f.nonces.Len())
		})
	}
}

func TestTokenVerifier_MissingClaimMessage(t *testing.T) {
	f := setupTokens(t)
	c := f.validClaims()
	c.Path = ""

	_, err := f.verifier.Verify(context.Background(), ports.VerifyRequest{
		Token: f.sign(t, c), Method: "POST", Path: "/v1/credits/hold", Body: []byte(`{"a":1}`),
	})
	var appErr *apperror.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, "payload missing path", appErr.Message)
	assert.Equal(t, 400, appErr.HTTPStatus)
}

func TestTokenVerifier_IatWithinSkew(t *testing.T) {
	f := setupTokens(t)
	c := f.validClaims()
	c.IssuedAt = jwt.NewNumericDate(f.clock.Now().Add(5 * time.Second))

	_, err := f.verifier.Verify(context.Background(), ports.VerifyRequest{
		Token: f.sign(t, c), Method: "POST", Path: "/v1/credits/hold", Body: []byte(`{"a":1}`),
	})
	assert.NoError(t, err)
}

func TestTokenVerifier_NonceStoreFailureFailsClosed(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	f := setupTokens(t)
	nonces := mocks.NewMockNonceStore(ctrl)
	nonces.EXPECT().Record(gomock.Any(), gomock.Any()).Return(false, errors.New("connection refused"))
	verifier := NewTokenVerifier(NewKeyProvider(f.issuer, nil, time.Minute, f.clock, zerolog.Nop()), nonces, f.clock, TokenVerifierOptions{ClockSkew: 5 * time.Second}, zerolog.Nop())

	tok := f.issue(t, "GET", "/x", nil)
	_, err := verifier.Verify(context.Background(), ports.VerifyRequest{Token: tok.Token, Method: "GET", Path: "/x"})

	var appErr *apperror.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, "INTERNAL_ERROR", appErr.Code)
	assert.Equal(t, 500, appErr.HTTPStatus)
}

func TestTokenVerifier_NonceRecordFields(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	f := setupTokens(t)
	nonces := mocks.NewMockNonceStore(ctrl)
	verifier := NewTokenVerifier(NewKeyProvider(f.issuer, nil, time.Minute, f.clock, zerolog.Nop()), nonces, f.clock, TokenVerifierOptions{}, zerolog.Nop())

	tok := f.issue(t, "GET", "/x", nil)
	nonces.EXPECT().Record(gomock.Any(), gomock.Any()).DoAndReturn(func(_ context.Context, rec domain.NonceRecord) (bool, error) {
		assert.NotEmpty(t, rec.Nonce)
		assert.Equal(t, tok.IssuedAt, rec.IssuedAt)
		assert.Equal(t, tok.ExpiresAt, rec.ExpiresAt)
		assert.Equal(t, f.issuer.Address(), rec.Issuer)
		return true, nil
	})

	_, err := verifier.Verify(context.Background(), ports.VerifyRequest{Token: tok.Token, Method: "GET", Path: "/x"})
	require.NoError(t, err)
}

func TestTokenVerifier_KeyServiceDown(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	f := setupTokens(t)
	keys := mocks.NewMockKeyProvider(ctrl)
	keys.EXPECT().PublicKey(gomock.Any()).Return(nil, apperror.ErrKeyServiceUnavailable(errors.New("timeout")))
	verifier := NewTokenVerifier(keys, f.nonces, f.clock, TokenVerifierOptions{}, zerolog.Nop())

	tok := f.issue(t, "GET", "/x", nil)
	_, err := verifier.Verify(context.Background(), ports.VerifyRequest{Token: tok.Token, Method: "GET", Path: "/x"})
	assertCode(t, err, "KEY_SERVICE_UNAVAILABLE")
}

func TestPathMatches(t *testing.T) {
	tests := []struct {
		name      string
		token     string
		request   string
		prefix    string
		wantMatch bool
	}{
		{"exact", "/v1/credits/hold", "/v1/credits/hold", "/api", true},
		{"request carries prefix", "/v1/credits/hold", "/api/v1/credits/hold", "/api", true},
		{"token carries prefix", "/api/v1/credits/hold", "/v1/credits/hold", "/api", true},
		{"prefix disabled", "/v1/credits/hold", "/api/v1/credits/hold", "", false},
		{"prefix not at segment boundary", "/v1/x", "/apiv1/x", "/api", false},
		{"prefix as whole path", "/", "/api", "/api", false},
		{"different path", "/v1/credits/hold", "/api/v1/credits/capture", "/api", false},
		{"double prefix", "/v1/x", "/api/api/v1/x", "/api", false},
		{"legit api segment", "/api/v1/x", "/api/v1/x", "/api", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.wantMatch, PathMatches(tt.token, tt.request, tt.prefix))
		})
	}
}
