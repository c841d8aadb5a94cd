package models

import "time"

// DeletionStatus tracks the lifecycle of a personal data deletion request.
// Status only advances forward; Deleted is terminal.
type DeletionStatus string

const (
	StatusPendingVerification DeletionStatus = "Pending Verification"
	StatusPendingApproval     DeletionStatus = "Pending Approval"
	StatusDeleted             DeletionStatus = "Deleted"
)

// DeletionRequest represents a subject's request to have their personal data
// removed. Once the pass completes, the request ID doubles as the anonymized
// name written into redacted records.
type DeletionRequest struct {
	ID        string         `db:"id" json:"id"`
	Email     string         `db:"email" json:"email"`
	Status    DeletionStatus `db:"status" json:"status"`
	CreatedAt time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt time.Time      `db:"updated_at" json:"updated_at"`
	// ReportPath holds the stored compliance report once the pass completes.
	ReportPath *string `db:"report_path" json:"-"`
}

// DeletionRequestFilter captures filtering criteria for the operator list view.
type DeletionRequestFilter struct {
	Status   *DeletionStatus
	Search   string
	Page     int
	PageSize int
}
