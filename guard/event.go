package guard

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Severity levels for security events.
const (
	SeverityLow      = "low"
	SeverityMedium   = "medium"
	SeverityHigh     = "high"
	SeverityCritical = "critical"
)

// SecurityEvent records a blocked message or a guard degradation for audit.
// MessagePreview holds at most 200 characters of the offending input.
type SecurityEvent struct {
	ID             string    `json:"id"`
	WorkspaceID    string    `json:"workspace_id"`
	Severity       string    `json:"severity"`
	Reason         string    `json:"reason"`
	MessagePreview string    `json:"message_preview,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// NewSecurityEvent builds an event with the message truncated to the
// preview cap.
func NewSecurityEvent(workspaceID, severity, reason, message string) *SecurityEvent {
	return &SecurityEvent{
		ID:             uuid.New().String(),
		WorkspaceID:    workspaceID,
		Severity:       severity,
		Reason:         reason,
		MessagePreview: preview(message),
		CreatedAt:      time.Now().UTC(),
	}
}

// EventStore persists security events.
type EventStore interface {
	Record(ctx context.Context, event *SecurityEvent) error
}
