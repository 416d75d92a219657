package handler

import (
	"bytes"
	"encoding/json"
	"time"

	"microcredit-gateway/internal/adapter/http/dto"
	"microcredit-gateway/internal/adapter/http/middleware"
	"microcredit-gateway/internal/core/ports"
	"microcredit-gateway/internal/service"
	"microcredit-gateway/pkg/apperror"
	"microcredit-gateway/pkg/response"

	"github.com/gin-gonic/gin"
)

// TokenHandler issues ephemeral tokens and publishes the issuer key.
type TokenHandler struct {
	issuer ports.TokenIssuer
}

// NewTokenHandler creates a new TokenHandler.
func NewTokenHandler(issuer ports.TokenIssuer) *TokenHandler {
	return &TokenHandler{issuer: issuer}
}

// Issue handles POST /api/v1/token/issue.
func (h *TokenHandler) Issue(c *gin.Context) {
	var req dto.IssueTokenRequest
	if !bindJSON(c, &req) {
		return
	}

	bodyHash, err := requestBodyHash(req)
	if err != nil {
		response.Error(c, err)
		return
	}

	var ttl time.Duration
	if req.TTLSeconds != nil {
		ttl = time.Duration(*req.TTLSeconds) * time.Second
	}

	tok, err := h.issuer.Issue(c.Request.Context(), ports.IssueTokenRequest{
		Subject:  req.Sub,
		Method:   req.Method,
		Path:     req.Path,
		BodyHash: bodyHash,
		TTL:      ttl,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	c.Set(middleware.CtxAuditResourceID, req.Sub)
	response.OK(c, dto.IssueTokenResponse{
		Token:     tok.Token,
		IssuedAt:  tok.IssuedAt,
		ExpiresAt: tok.ExpiresAt,
		KeyID:     tok.KeyID,
		Algorithm: tok.Algorithm,
		BodyHash:  bodyHash,
	})
}

// PublicKey handles GET /api/v1/bank/pubkey.
func (h *TokenHandler) PublicKey(c *gin.Context) {
	response.OK(c, h.issuer.PublicKeyDocument())
}

// requestBodyHash picks the explicit hash, or hashes the supplied body the
// same way the verifier will. A JSON string body is taken as the raw body.
func requestBodyHash(req dto.IssueTokenRequest) (string, error) {
	body := bytes.TrimSpace(req.Body)
	hasBody := len(body) > 0 && !bytes.Equal(body, []byte("null"))

	if req.BodyHash != nil {
		if hasBody {
			return "", apperror.ValidationFields(map[string]string{"body": "send either body or bodyHash"})
		}
		return *req.BodyHash, nil
	}
	if !hasBody {
		return service.BodyHash(nil), nil
	}
	if body[0] == '"' {
		var raw string
		if err := json.Unmarshal(body, &raw); err != nil {
			return "", apperror.ValidationFields(map[string]string{"body": "invalid string"})
		}
		return service.BodyHash([]byte(raw)), nil
	}
	return service.BodyHash(body), nil
}
