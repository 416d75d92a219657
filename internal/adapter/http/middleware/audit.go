package middleware

import (
	"encoding/json"
	"net/http"

	"microcredit-gateway/internal/core/domain"
	"microcredit-gateway/internal/core/ports"

	"github.com/gin-gonic/gin"
)

// CtxAuditResourceID lets a handler name the resource it touched.
const CtxAuditResourceID = "audit_resource_id"

// AuditLog creates an audit middleware that records successful write operations.
// Actions are resolved from the matched route template, not the raw path.
func AuditLog(auditSvc ports.AuditService) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		// Only audit successful write operations (status 2xx)
		if c.Writer.Status() < 200 || c.Writer.Status() >= 300 {
			return
		}
		switch c.Request.Method {
		case http.MethodGet, http.MethodHead, http.MethodOptions:
			return
		}

		action, resourceType := mapRouteToAction(c.FullPath(), c.Request.Method)
		if action == "" {
			return
		}

		var subject *string
		if sub, ok := c.Get(CtxSubject); ok {
			if s, ok := sub.(string); ok {
				subject = &s
			}
		}

		resourceID := c.Param("id")
		if id, ok := c.Get(CtxAuditResourceID); ok {
			if s, ok := id.(string); ok {
				resourceID = s
			}
		}

		details, _ := json.Marshal(map[string]interface{}{
			"method": c.Request.Method,
			"path":   c.Request.URL.Path,
			"status": c.Writer.Status(),
		})

		auditSvc.Log(c.Request.Context(), &domain.AuditLog{
			Subject:      subject,
			Action:       action,
			ResourceType: resourceType,
			ResourceID:   resourceID,
			IPAddress:    c.ClientIP(),
			Details:      string(details),
		})
	}
}

func mapRouteToAction(route, method string) (domain.AuditAction, string) {
	if method != http.MethodPost {
		return "", ""
	}
	switch route {
	case "/api/v1/credits/hold":
		return domain.AuditActionHoldCreate, "hold"
	case "/api/v1/credits/capture":
		return domain.AuditActionHoldCapture, "hold"
	case "/api/v1/credits/release":
		return domain.AuditActionHoldRelease, "hold"
	case "/api/v1/token/issue":
		return domain.AuditActionTokenIssue, "token"
	case "/api/v1/admin/accounts":
		return domain.AuditActionAccountOpen, "account"
	case "/api/v1/admin/accounts/:id/adjust":
		return domain.AuditActionAccountAdjust, "account"
	case "/api/v1/admin/holds/release-expired":
		return domain.AuditActionExpirySweep, "hold"
	}
	return "", ""
}
