package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/privacy-api/internal/models"
)

// DeletionRequestRepository provides database access for deletion requests.
type DeletionRequestRepository struct {
	db *sqlx.DB
}

// NewDeletionRequestRepository creates a new instance of DeletionRequestRepository.
func NewDeletionRequestRepository(db *sqlx.DB) *DeletionRequestRepository {
	return &DeletionRequestRepository{db: db}
}

// Create inserts a new deletion request in Pending Verification.
func (r *DeletionRequestRepository) Create(ctx context.Context, req *models.DeletionRequest) error {
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if req.CreatedAt.IsZero() {
		req.CreatedAt = now
	}
	req.UpdatedAt = now
	if req.Status == "" {
		req.Status = models.StatusPendingVerification
	}

	const query = `INSERT INTO deletion_requests (id, email, status, created_at, updated_at) VALUES (:id, :email, :status, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, req); err != nil {
		return fmt.Errorf("create deletion request: %w", err)
	}
	return nil
}

// FindByID returns a deletion request by identifier.
func (r *DeletionRequestRepository) FindByID(ctx context.Context, id string) (*models.DeletionRequest, error) {
	const query = `SELECT id, email, status, created_at, updated_at, report_path FROM deletion_requests WHERE id = $1 LIMIT 1`
	var req models.DeletionRequest
	if err := r.db.GetContext(ctx, &req, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find deletion request by id: %w", err)
	}
	return &req, nil
}

// FindByEmail returns a deletion request by subject email.
func (r *DeletionRequestRepository) FindByEmail(ctx context.Context, email string) (*models.DeletionRequest, error) {
	const query = `SELECT id, email, status, created_at, updated_at, report_path FROM deletion_requests WHERE email = $1 LIMIT 1`
	var req models.DeletionRequest
	if err := r.db.GetContext(ctx, &req, query, email); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find deletion request by email: %w", err)
	}
	return &req, nil
}

// UpdateStatus advances the status of a request. The WHERE clause pins the
// expected current status so concurrent transitions cannot regress the state
// machine; callers get sql.ErrNoRows when the transition was lost.
func (r *DeletionRequestRepository) UpdateStatus(ctx context.Context, id string, from, to models.DeletionStatus) error {
	const query = `UPDATE deletion_requests SET status = $3, updated_at = $4 WHERE id = $1 AND status = $2`
	res, err := r.db.ExecContext(ctx, query, id, from, to, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("update deletion request status: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update deletion request status: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// SetReportPath stores the location of the rendered compliance report.
func (r *DeletionRequestRepository) SetReportPath(ctx context.Context, id, path string) error {
	const query = `UPDATE deletion_requests SET report_path = $2, updated_at = $3 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, path, time.Now().UTC()); err != nil {
		return fmt.Errorf("set deletion request report path: %w", err)
	}
	return nil
}

// DeleteStale removes requests still awaiting verification past the cutoff.
// Only Pending Verification rows are eligible; confirmed requests are never
// reaped regardless of age.
func (r *DeletionRequestRepository) DeleteStale(ctx context.Context, cutoff time.Time) (int64, error) {
	const query = `DELETE FROM deletion_requests WHERE status = $1 AND created_at < $2`
	res, err := r.db.ExecContext(ctx, query, models.StatusPendingVerification, cutoff)
	if err != nil {
		return 0, fmt.Errorf("delete stale deletion requests: %w", err)
	}
	deleted, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("delete stale deletion requests: %w", err)
	}
	return deleted, nil
}

// List returns deletion requests based on filters with total count.
func (r *DeletionRequestRepository) List(ctx context.Context, filter models.DeletionRequestFilter) ([]models.DeletionRequest, int, error) {
	baseQuery := `FROM deletion_requests WHERE 1=1`
	var conditions []string
	var args []interface{}

	if filter.Status != nil {
		conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)+1))
		args = append(args, *filter.Status)
	}
	if filter.Search != "" {
		conditions = append(conditions, fmt.Sprintf("LOWER(email) LIKE $%d", len(args)+1))
		args = append(args, "%"+strings.ToLower(filter.Search)+"%")
	}

	if len(conditions) > 0 {
		baseQuery += " AND " + strings.Join(conditions, " AND ")
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	pageSize := filter.PageSize
	if pageSize <= 0 || pageSize > 100 {
		pageSize = 20
	}
	offset := (page - 1) * pageSize

	listQuery := fmt.Sprintf("SELECT id, email, status, created_at, updated_at, report_path %s ORDER BY created_at DESC LIMIT %d OFFSET %d", baseQuery, pageSize, offset)

	var requests []models.DeletionRequest
	if err := r.db.SelectContext(ctx, &requests, listQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("list deletion requests: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", baseQuery)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count deletion requests: %w", err)
	}

	return requests, total, nil
}
