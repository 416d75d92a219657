package domain

import (
	"time"

	"github.com/google/uuid"
)

// AuditAction represents the type of audited action.
type AuditAction string

const (
	AuditActionHoldCreate    AuditAction = "HOLD_CREATE"
	AuditActionHoldCapture   AuditAction = "HOLD_CAPTURE"
	AuditActionHoldRelease   AuditAction = "HOLD_RELEASE"
	AuditActionTokenIssue    AuditAction = "TOKEN_ISSUE"
	AuditActionAccountOpen   AuditAction = "ACCOUNT_OPEN"
	AuditActionAccountAdjust AuditAction = "ACCOUNT_ADJUST"
	AuditActionExpirySweep   AuditAction = "EXPIRY_SWEEP"
)

// AuditLog records a single audited API call.
type AuditLog struct {
	ID           uuid.UUID   `json:"id"`
	Subject      *string     `json:"subject,omitempty"` // Verified token subject, if any
	Action       AuditAction `json:"action"`
	ResourceType string      `json:"resource_type"`
	ResourceID   string      `json:"resource_id,omitempty"`
	Details      string      `json:"details,omitempty"` // JSON string
	IPAddress    string      `json:"ip_address"`
	CreatedAt    time.Time   `json:"created_at"`
}
