package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/privacy-api/internal/models"
)

func newRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	sqlxDB := sqlx.NewDb(db, "postgres")
	cleanup := func() {
		_ = sqlxDB.Close()
		db.Close()
	}
	return sqlxDB, mock, cleanup
}

func TestDeletionRequestRepositoryCreateDefaults(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewDeletionRequestRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO deletion_requests")).
		WithArgs(sqlmock.AnyArg(), "alice@x.com", string(models.StatusPendingVerification), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	req := &models.DeletionRequest{Email: "alice@x.com"}
	err := repo.Create(context.Background(), req)
	require.NoError(t, err)
	assert.NotEmpty(t, req.ID)
	assert.Equal(t, models.StatusPendingVerification, req.Status)
	assert.False(t, req.CreatedAt.IsZero())
}

func TestDeletionRequestRepositoryFindByIDNotFound(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewDeletionRequestRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, email, status, created_at, updated_at, report_path FROM deletion_requests WHERE id = $1")).
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.FindByID(context.Background(), "missing")
	assert.ErrorIs(t, err, sql.ErrNoRows)
}

func TestDeletionRequestRepositoryUpdateStatusPinsCurrentState(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewDeletionRequestRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE deletion_requests SET status = $3, updated_at = $4 WHERE id = $1 AND status = $2")).
		WithArgs("req-1", string(models.StatusPendingVerification), string(models.StatusPendingApproval), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.UpdateStatus(context.Background(), "req-1", models.StatusPendingVerification, models.StatusPendingApproval)
	require.NoError(t, err)
}

func TestDeletionRequestRepositoryUpdateStatusLostRace(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewDeletionRequestRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE deletion_requests SET status = $3, updated_at = $4 WHERE id = $1 AND status = $2")).
		WithArgs("req-1", string(models.StatusPendingApproval), string(models.StatusDeleted), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.UpdateStatus(context.Background(), "req-1", models.StatusPendingApproval, models.StatusDeleted)
	assert.ErrorIs(t, err, sql.ErrNoRows)
}

func TestDeletionRequestRepositoryDeleteStaleOnlyUnverified(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewDeletionRequestRepository(db)

	cutoff := time.Now().UTC().Add(-7 * 24 * time.Hour)
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM deletion_requests WHERE status = $1 AND created_at < $2")).
		WithArgs(string(models.StatusPendingVerification), cutoff).
		WillReturnResult(sqlmock.NewResult(0, 4))

	deleted, err := repo.DeleteStale(context.Background(), cutoff)
	require.NoError(t, err)
	assert.Equal(t, int64(4), deleted)
}

func TestDeletionRequestRepositoryListWithFilters(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewDeletionRequestRepository(db)

	now := time.Now().UTC()
	rows := sqlmock.NewRows([]string{"id", "email", "status", "created_at", "updated_at", "report_path"}).
		AddRow("req-1", "alice@x.com", string(models.StatusPendingApproval), now, now, nil)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, email, status, created_at, updated_at, report_path FROM deletion_requests WHERE 1=1 AND status = $1 AND LOWER(email) LIKE $2 ORDER BY created_at DESC LIMIT 20 OFFSET 0")).
		WithArgs(string(models.StatusPendingApproval), "%alice%").
		WillReturnRows(rows)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM deletion_requests WHERE 1=1 AND status = $1 AND LOWER(email) LIKE $2")).
		WithArgs(string(models.StatusPendingApproval), "%alice%").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	status := models.StatusPendingApproval
	items, total, err := repo.List(context.Background(), models.DeletionRequestFilter{Status: &status, Search: "Alice"})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, items, 1)
	assert.Equal(t, "req-1", items[0].ID)
}
