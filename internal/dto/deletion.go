package dto

import (
	"time"

	"github.com/noah-isme/privacy-api/internal/models"
)

// CreateDeletionRequest is the inbound payload opening a deletion request.
type CreateDeletionRequest struct {
	Email string `json:"email" validate:"required,email"`
}

// DeletionRequestItem is the operator-facing view of a request.
type DeletionRequestItem struct {
	ID        string                `json:"id"`
	Email     string                `json:"email"`
	Status    models.DeletionStatus `json:"status"`
	CreatedAt time.Time             `json:"created_at"`
	UpdatedAt time.Time             `json:"updated_at"`
	HasReport bool                  `json:"has_report"`
}

// TriggerDeletionResponse acknowledges an accepted anonymization pass.
type TriggerDeletionResponse struct {
	ID       string                `json:"id"`
	Status   models.DeletionStatus `json:"status"`
	Enqueued bool                  `json:"enqueued"`
}

// ReportLinkResponse carries a signed download link for the deletion report.
type ReportLinkResponse struct {
	URL       string    `json:"url"`
	ExpiresAt time.Time `json:"expires_at"`
}
