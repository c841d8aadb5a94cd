package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
)

// RecordRef is one candidate row found by the pre-filter scan.
type RecordRef struct {
	ID         string `db:"id"`
	MatchValue string `db:"match_value"`
}

// FieldValue is a computed replacement for one personal field.
type FieldValue struct {
	Name  string
	Value interface{}
}

// RecordRepository issues the generic read/update operations of the
// anonymization pass. Table and column names come from reference descriptors
// and must be validated by the caller before reaching this layer.
type RecordRepository struct {
	db *sqlx.DB
}

// NewRecordRepository creates a new instance of RecordRepository.
func NewRecordRepository(db *sqlx.DB) *RecordRepository {
	return &RecordRepository{db: db}
}

// FindMatching returns all rows of recordType whose matchField contains the
// email as a substring. LIKE is case-sensitive here on purpose: this is only
// the pre-filter, the precise token match happens in the engine.
func (r *RecordRepository) FindMatching(ctx context.Context, recordType, matchField, email string) ([]RecordRef, error) {
	query := fmt.Sprintf(`SELECT id, %s AS match_value FROM %s WHERE %s LIKE $1`, matchField, recordType, matchField)
	var refs []RecordRef
	if err := r.db.SelectContext(ctx, &refs, query, "%"+email+"%"); err != nil {
		return nil, fmt.Errorf("scan %s for matches: %w", recordType, err)
	}
	return refs, nil
}

// Redact rewrites the match field together with every personal field
// replacement in one statement scoped to a single row. Partial application of
// only some fields is therefore impossible.
func (r *RecordRepository) Redact(ctx context.Context, recordType, recordID, matchField, matchValue string, fields []FieldValue) error {
	assignments := make([]string, 0, len(fields)+1)
	args := make([]interface{}, 0, len(fields)+2)

	assignments = append(assignments, fmt.Sprintf("%s = $1", matchField))
	args = append(args, matchValue)

	for _, f := range fields {
		assignments = append(assignments, fmt.Sprintf("%s = $%d", f.Name, len(args)+1))
		args = append(args, f.Value)
	}

	query := fmt.Sprintf(`UPDATE %s SET %s WHERE id = $%d`, recordType, strings.Join(assignments, ", "), len(args)+1)
	args = append(args, recordID)

	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("redact %s %s: %w", recordType, recordID, err)
	}
	return nil
}
