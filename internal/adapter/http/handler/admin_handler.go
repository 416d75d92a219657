package handler

import (
	"strconv"

	"microcredit-gateway/internal/adapter/http/dto"
	"microcredit-gateway/internal/adapter/http/middleware"
	"microcredit-gateway/internal/core/domain"
	"microcredit-gateway/internal/core/ports"
	"microcredit-gateway/pkg/apperror"
	"microcredit-gateway/pkg/response"

	"github.com/gin-gonic/gin"
)

// AdminHandler serves operator routes behind the API key.
type AdminHandler struct {
	ledger ports.LedgerService
}

// NewAdminHandler creates a new AdminHandler.
func NewAdminHandler(ledger ports.LedgerService) *AdminHandler {
	return &AdminHandler{ledger: ledger}
}

// OpenAccount handles POST /api/v1/admin/accounts.
func (h *AdminHandler) OpenAccount(c *gin.Context) {
	var req dto.OpenAccountRequest
	if c.Request.ContentLength != 0 && !bindJSON(c, &req) {
		return
	}

	account, err := h.ledger.OpenAccount(c.Request.Context(), req.Subject)
	if err != nil {
		response.Error(c, err)
		return
	}

	c.Set(middleware.CtxAuditResourceID, strconv.FormatInt(account.ID, 10))
	response.Created(c, dto.NewAccountResponse(account))
}

// Adjust handles POST /api/v1/admin/accounts/:id/adjust.
func (h *AdminHandler) Adjust(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req dto.AdjustRequest
	if !bindJSON(c, &req) {
		return
	}

	account, err := h.ledger.Adjust(c.Request.Context(), ports.AdjustRequest{
		AccountID:   id,
		DeltaMicro:  req.DeltaMicro,
		ExternalRef: req.ExternalRef,
		Metadata:    req.Metadata,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, dto.NewAccountResponse(account))
}

// Entries handles GET /api/v1/admin/accounts/:id/entries?limit=N.
func (h *AdminHandler) Entries(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			response.Error(c, apperror.ValidationFields(map[string]string{"limit": "must be a positive integer"}))
			return
		}
		limit = n
	}

	entries, err := h.ledger.ListEntries(c.Request.Context(), domain.AccountRef{ID: id}, limit)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, dto.NewLedgerEntryListResponse(id, entries))
}

// ReleaseExpired handles POST /api/v1/admin/holds/release-expired.
func (h *AdminHandler) ReleaseExpired(c *gin.Context) {
	released, err := h.ledger.ReleaseExpired(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, dto.ReleaseExpiredResponse{Released: released})
}
