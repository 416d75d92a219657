package middleware

import (
	"bytes"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"microcredit-gateway/internal/core/domain"
	"microcredit-gateway/internal/core/ports"
	"microcredit-gateway/pkg/apperror"
	"microcredit-gateway/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	HeaderAuthorization = "Authorization"
	HeaderAPIKey        = "X-API-Key"
	HeaderRequestID     = "X-Request-ID"

	// Context keys
	CtxClaims   = "ephemeral_claims"
	CtxSubject  = "subject"
	CtxOperator = "operator"
)

// EphemeralAuth verifies the request-bound token against the live request.
// The body is read once for hashing and restored for the handler.
func EphemeralAuth(verifier ports.TokenVerifier, altHeader string, log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := bearerToken(c.GetHeader(HeaderAuthorization))
		if token == "" && altHeader != "" {
			token = strings.TrimSpace(c.GetHeader(altHeader))
		}

		var body []byte
		if c.Request.Body != nil {
			var err error
			body, err = io.ReadAll(c.Request.Body)
			if err != nil {
				abortBodyError(c, err)
				return
			}
			c.Request.Body = io.NopCloser(bytes.NewReader(body))
		}

		claims, err := verifier.Verify(c.Request.Context(), ports.VerifyRequest{
			Token:  token,
			Method: c.Request.Method,
			Path:   c.Request.URL.Path,
			Body:   body,
		})
		if err != nil {
			var appErr *apperror.AppError
			if errors.As(err, &appErr) && appErr.HTTPStatus >= http.StatusInternalServerError {
				log.Error().Err(err).Str("path", c.Request.URL.Path).Msg("token verification failed")
			}
			response.Error(c, err)
			c.Abort()
			return
		}

		c.Set(CtxClaims, claims)
		c.Set(CtxSubject, claims.Subject)
		c.Next()
	}
}

// bearerToken extracts the token from "Bearer <token>" (scheme is case-insensitive).
func bearerToken(header string) string {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

// ClaimsFrom returns the verified token claims stored by EphemeralAuth.
func ClaimsFrom(c *gin.Context) (*domain.EphemeralClaims, bool) {
	v, ok := c.Get(CtxClaims)
	if !ok {
		return nil, false
	}
	claims, ok := v.(*domain.EphemeralClaims)
	return claims, ok
}

// APIKeyAuth protects operator routes with a static key checked against an
// argon2id hash. An empty hash disables every operator route.
func APIKeyAuth(hashSvc ports.HashService, keyHash string, log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := c.GetHeader(HeaderAPIKey)
		if key == "" || keyHash == "" {
			response.Error(c, apperror.ErrInvalidAPIKey())
			c.Abort()
			return
		}

		ok, err := hashSvc.Verify(key, keyHash)
		if err != nil {
			log.Error().Err(err).Msg("operator api key hash is unusable")
			response.Error(c, apperror.InternalError(err))
			c.Abort()
			return
		}
		if !ok {
			log.Warn().Str("client_ip", c.ClientIP()).Msg("invalid operator api key")
			response.Error(c, apperror.ErrInvalidAPIKey())
			c.Abort()
			return
		}

		c.Set(CtxOperator, true)
		c.Next()
	}
}

// RequestID propagates X-Request-ID or assigns a fresh one.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(HeaderRequestID)
		if id == "" || len(id) > 64 {
			id = uuid.New().String()
		}
		c.Set(response.CtxRequestID, id)
		c.Header(HeaderRequestID, id)
		c.Next()
	}
}

// RequestLogger creates a middleware that logs every HTTP request.
func RequestLogger(log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		latency := time.Since(start)
		status := c.Writer.Status()

		event := log.Info()
		if status >= http.StatusInternalServerError {
			event = log.Error()
		} else if status >= http.StatusBadRequest {
			event = log.Warn()
		}

		if sub, ok := c.Get(CtxSubject); ok {
			event = event.Interface("sub", sub)
		}
		if id, ok := c.Get(response.CtxRequestID); ok {
			event = event.Interface("request_id", id)
		}
		if len(c.Errors) > 0 {
			event = event.Str("error", c.Errors.String())
		}

		event.
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", status).
			Dur("latency", latency).
			Str("client_ip", c.ClientIP()).
			Msg("http request")
	}
}

// Recovery creates a panic recovery middleware.
func Recovery(log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				log.Error().Interface("panic", r).Str("path", c.Request.URL.Path).Msg("panic recovered")
				response.Error(c, apperror.InternalError(nil))
				c.Abort()
			}
		}()
		c.Next()
	}
}

func abortBodyError(c *gin.Context, err error) {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		response.Error(c, apperror.ErrPayloadTooLarge())
	} else {
		response.Error(c, apperror.Validation("cannot read request body"))
	}
	c.Abort()
}
