package review

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Service is a reviewable unit registered in a workspace. Reviews,
// schedules, and repository snapshots all reference services by ID.
type Service struct {
	ID          string `json:"id"`
	WorkspaceID string `json:"workspace_id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`

	// RepositoryName links the service to its codebase in "owner/repo"
	// form. Reviews without a linked repository cannot produce gap
	// analysis, only collected telemetry.
	RepositoryName string `json:"repository_name,omitempty"`

	// MetricsProvider optionally tags which provider's metrics are
	// authoritative when several integrations report for this service.
	MetricsProvider string `json:"metrics_provider,omitempty"`

	Active bool `json:"is_active"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewService registers an active service in a workspace.
func NewService(workspaceID, name, repositoryName string) *Service {
	now := time.Now().UTC()
	return &Service{
		ID:             uuid.New().String(),
		WorkspaceID:    workspaceID,
		Name:           name,
		RepositoryName: repositoryName,
		Active:         true,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

// Validate checks the fields required to persist a service.
func (s *Service) Validate() error {
	if s.WorkspaceID == "" {
		return fmt.Errorf("workspace_id is required")
	}
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	return nil
}
