package handler

import (
	"strconv"
	"time"

	"microcredit-gateway/internal/adapter/http/dto"
	"microcredit-gateway/internal/adapter/http/middleware"
	"microcredit-gateway/internal/core/domain"
	"microcredit-gateway/internal/core/ports"
	"microcredit-gateway/pkg/apperror"
	"microcredit-gateway/pkg/response"

	"github.com/gin-gonic/gin"
)

// CreditsHandler serves the token-authenticated hold/capture/release routes.
// The acting account is always the verified token subject.
type CreditsHandler struct {
	ledger   ports.LedgerService
	resolver ports.AccountResolver
}

// NewCreditsHandler creates a new CreditsHandler.
func NewCreditsHandler(ledger ports.LedgerService, resolver ports.AccountResolver) *CreditsHandler {
	return &CreditsHandler{ledger: ledger, resolver: resolver}
}

// account resolves the token subject; a body accountRef must name the same subject.
func (h *CreditsHandler) account(c *gin.Context, accountRef *string) (domain.AccountRef, bool) {
	sub := c.GetString(middleware.CtxSubject)
	if sub == "" {
		response.Error(c, apperror.ErrMissingBearer())
		return domain.AccountRef{}, false
	}
	if accountRef != nil && *accountRef != sub {
		response.Error(c, apperror.ErrForbidden())
		return domain.AccountRef{}, false
	}
	ref, err := h.resolver.Resolve(sub)
	if err != nil {
		response.Error(c, err)
		return domain.AccountRef{}, false
	}
	return ref, true
}

// Hold handles POST /api/v1/credits/hold.
func (h *CreditsHandler) Hold(c *gin.Context) {
	var req dto.HoldRequest
	if !bindJSON(c, &req) {
		return
	}
	ref, ok := h.account(c, req.AccountRef)
	if !ok {
		return
	}
	dto.TrimStrings(&req)

	var ttl time.Duration
	if req.TTLSeconds != nil {
		ttl = time.Duration(*req.TTLSeconds) * time.Second
	}

	hold, err := h.ledger.CreateHold(c.Request.Context(), ports.CreateHoldRequest{
		Account:        ref,
		AmountMicro:    req.AmountMicro,
		IdempotencyKey: req.IdempotencyKey,
		Metadata:       req.Metadata,
		ProviderRef:    req.ProviderRef,
		TTL:            ttl,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	c.Set(middleware.CtxAuditResourceID, strconv.FormatInt(hold.ID, 10))
	response.Created(c, dto.NewHoldResponse(hold))
}

// Capture handles POST /api/v1/credits/capture.
func (h *CreditsHandler) Capture(c *gin.Context) {
	var req dto.CaptureRequest
	if !bindJSON(c, &req) {
		return
	}
	ref, ok := h.account(c, req.AccountRef)
	if !ok {
		return
	}

	hold, err := h.ledger.Capture(c.Request.Context(), ports.CaptureRequest{
		Account:         ref,
		HoldID:          req.HoldID,
		ActualCostMicro: *req.ActualCostMicro,
		CaptureKey:      req.CaptureKey,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	c.Set(middleware.CtxAuditResourceID, strconv.FormatInt(hold.ID, 10))
	response.OK(c, dto.NewHoldResponse(hold))
}

// Release handles POST /api/v1/credits/release.
func (h *CreditsHandler) Release(c *gin.Context) {
	var req dto.ReleaseRequest
	if !bindJSON(c, &req) {
		return
	}
	ref, ok := h.account(c, req.AccountRef)
	if !ok {
		return
	}

	hold, err := h.ledger.CancelHold(c.Request.Context(), ref, req.HoldID)
	if err != nil {
		response.Error(c, err)
		return
	}

	c.Set(middleware.CtxAuditResourceID, strconv.FormatInt(hold.ID, 10))
	response.OK(c, dto.NewHoldResponse(hold))
}

// Balance handles GET /api/v1/credits/balance.
func (h *CreditsHandler) Balance(c *gin.Context) {
	ref, ok := h.account(c, nil)
	if !ok {
		return
	}

	account, err := h.ledger.GetAccount(c.Request.Context(), ref)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, dto.NewBalanceResponse(account))
}
