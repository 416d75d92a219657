package service

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"strings"
	"time"

	"microcredit-gateway/internal/clock"
	"microcredit-gateway/internal/core/domain"
	"microcredit-gateway/internal/core/ports"
	"microcredit-gateway/pkg/apperror"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"
)

// TokenVerifierOptions tunes claim checks.
type TokenVerifierOptions struct {
	ClockSkew  time.Duration // tolerated issuer clock lead on iat
	PathPrefix string        // routing prefix a token path may omit or carry; empty disables
}

// EphemeralTokenVerifier implements ports.TokenVerifier.
// Checks run in a fixed order and stop at the first failure; the nonce is
// only consumed once every other check has passed.
type EphemeralTokenVerifier struct {
	keys   ports.KeyProvider
	nonces ports.NonceStore
	clock  clock.Clock
	opts   TokenVerifierOptions
	log    zerolog.Logger
	parser *jwt.Parser
}

// NewTokenVerifier creates a new EphemeralTokenVerifier.
func NewTokenVerifier(keys ports.KeyProvider, nonces ports.NonceStore, clk clock.Clock, opts TokenVerifierOptions, log zerolog.Logger) *EphemeralTokenVerifier {
	return &EphemeralTokenVerifier{
		keys:   keys,
		nonces: nonces,
		clock:  clk,
		opts:   opts,
		log:    log,
		// Time claims are checked below against the injected clock.
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{jwt.SigningMethodEdDSA.Alg()}),
			jwt.WithoutClaimsValidation(),
		),
	}
}

// Verify authorizes req with its token, consuming the token nonce on success.
func (v *EphemeralTokenVerifier) Verify(ctx context.Context, req ports.VerifyRequest) (*domain.EphemeralClaims, error) {
	claims, err := v.verify(ctx, req)
	if err != nil {
		var appErr *apperror.AppError
		if errors.As(err, &appErr) && appErr.HTTPStatus < 500 {
			v.log.Debug().Str("reason", appErr.Message).Str("method", req.Method).Str("path", req.Path).Msg("ephemeral token rejected")
		}
		return nil, err
	}
	return claims, nil
}

func (v *EphemeralTokenVerifier) verify(ctx context.Context, req ports.VerifyRequest) (*domain.EphemeralClaims, error) {
	tokenString := strings.TrimSpace(req.Token)
	if tokenString == "" {
		return nil, apperror.ErrMissingBearer()
	}
	if strings.Count(tokenString, ".") != 2 {
		return nil, apperror.ErrBadTokenFormat()
	}

	key, err := v.keys.PublicKey(ctx)
	if err != nil {
		return nil, err
	}

	claims := &domain.EphemeralClaims{}
	_, err = v.parser.ParseWithClaims(tokenString, claims, func(*jwt.Token) (any, error) {
		return key, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenMalformed) {
			return nil, apperror.ErrBadTokenFormat()
		}
		return nil, apperror.ErrBadSignature()
	}

	now := v.clock.Now()
	if claims.ExpiresAt == nil || now.Unix() > claims.ExpiresAt.Unix() {
		return nil, apperror.ErrTokenExpired()
	}
	if claims.IssuedAt == nil || claims.IssuedAt.After(now.Add(v.opts.ClockSkew)) {
		return nil, apperror.ErrInvalidIat()
	}
	if missing := claims.MissingClaim(); missing != "" {
		return nil, apperror.ErrMissingClaim(missing)
	}

	if !strings.EqualFold(claims.Method, req.Method) {
		return nil, apperror.ErrMethodMismatch()
	}
	if !PathMatches(claims.Path, req.Path, v.opts.PathPrefix) {
		return nil, apperror.ErrPathMismatch()
	}
	if subtle.ConstantTimeCompare([]byte(BodyHash(req.Body)), []byte(claims.BodyHash)) != 1 {
		return nil, apperror.ErrBodyHashMismatch()
	}

	fresh, err := v.nonces.Record(ctx, domain.NonceRecord{
		Nonce:     claims.Nonce,
		IssuedAt:  claims.IssuedAt.Unix(),
		ExpiresAt: claims.ExpiresAt.Unix(),
		Issuer:    claims.Issuer,
		CreatedAt: now,
	})
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("recording nonce: %w", err))
	}
	if !fresh {
		return nil, apperror.ErrReplayDetected()
	}

	return claims, nil
}

// PathMatches reports whether a token path authorizes the request path.
// With a prefix set, "/x" and prefix+"/x" are equivalent; the prefix only
// counts when followed by a segment boundary.
func PathMatches(tokenPath, requestPath, prefix string) bool {
	if tokenPath == requestPath {
		return true
	}
	if prefix == "" {
		return false
	}
	if rest, ok := cutPrefixSegment(requestPath, prefix); ok && rest == tokenPath {
		return true
	}
	if rest, ok := cutPrefixSegment(tokenPath, prefix); ok && rest == requestPath {
		return true
	}
	return false
}

func cutPrefixSegment(path, prefix string) (string, bool) {
	if !strings.HasPrefix(path, prefix+"/") {
		return "", false
	}
	return path[len(prefix):], true
}
