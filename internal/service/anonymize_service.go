package service

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/noah-isme/privacy-api/internal/models"
	"github.com/noah-isme/privacy-api/internal/repository"
	appErrors "github.com/noah-isme/privacy-api/pkg/errors"
	"github.com/noah-isme/privacy-api/pkg/export"
)

type recordStore interface {
	FindMatching(ctx context.Context, recordType, matchField, email string) ([]repository.RecordRef, error)
	Redact(ctx context.Context, recordType, recordID, matchField, matchValue string, fields []repository.FieldValue) error
}

type subjectLookup interface {
	FindByEmail(ctx context.Context, email string) (*models.User, error)
}

// AnonymizeService sweeps the record types declared by reference descriptors
// and redacts the personal data referencing a deletion subject.
type AnonymizeService struct {
	records recordStore
	users   subjectLookup
	logger  *zap.Logger
	metrics *MetricsService
}

// NewAnonymizeService constructs the engine.
func NewAnonymizeService(records recordStore, users subjectLookup, logger *zap.Logger, metrics *MetricsService) *AnonymizeService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AnonymizeService{records: records, users: users, logger: logger, metrics: metrics}
}

// Run executes the anonymization pass for one subject across all descriptors.
// A malformed descriptor aborts the pass with an error so the job layer can
// surface and retry it; a single record's failed rewrite is logged and the
// pass continues. Re-running against already-redacted records is a no-op: the
// precise token check no longer matches once the email is gone.
func (s *AnonymizeService) Run(ctx context.Context, req *models.DeletionRequest, descriptors []models.ReferenceDescriptor) ([]export.DescriptorOutcome, error) {
	guest, err := s.subjectIsGuest(ctx, req.Email)
	if err != nil {
		return nil, err
	}

	pattern := emailTokenPattern(req.Email)
	outcomes := make([]export.DescriptorOutcome, 0, len(descriptors))

	for _, desc := range descriptors {
		if err := desc.Validate(); err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrConfig.Code, appErrors.ErrConfig.Status, "malformed reference descriptor")
		}

		outcome := export.DescriptorOutcome{RecordType: desc.RecordType}

		// Rules scoped to website users do not apply to staff subjects.
		if desc.AppliesToWebsiteUser && !guest {
			outcome.Skipped = true
			outcomes = append(outcomes, outcome)
			continue
		}

		refs, err := s.records.FindMatching(ctx, desc.RecordType, desc.MatchField, req.Email)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrConfig.Code, appErrors.ErrConfig.Status, "descriptor scan failed")
		}

		// The match field is rewritten via the token replacement below, so it
		// must not also receive a generic placeholder: the two assignments
		// would target the same column in one statement.
		replacements := fieldReplacements(desc.PersonalFields, desc.MatchField, req.Email)

		for _, ref := range refs {
			// The LIKE pre-filter can match an email that is merely a
			// substring of a longer token; the token check is the real gate.
			if !pattern.MatchString(ref.MatchValue) {
				continue
			}
			outcome.Matched++

			rebuilt := rewriteMatchValue(ref.MatchValue, pattern, req.ID)

			if err := s.records.Redact(ctx, desc.RecordType, ref.ID, desc.MatchField, rebuilt, replacements); err != nil {
				s.logger.Warn("record redaction failed, continuing",
					zap.String("record_type", desc.RecordType),
					zap.String("record_id", ref.ID),
					zap.String("request_id", req.ID),
					zap.Error(err))
				continue
			}
			outcome.Redacted++
			s.metrics.RecordRedaction(desc.RecordType)
		}

		outcomes = append(outcomes, outcome)
	}

	return outcomes, nil
}

func (s *AnonymizeService) subjectIsGuest(ctx context.Context, email string) (bool, error) {
	user, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			// Addresses without an account are website guests.
			return true, nil
		}
		return false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve subject roles")
	}
	return user.Role == models.RoleGuest, nil
}

// emailTokenPattern matches the email as a whole whitespace-delimited token.
func emailTokenPattern(email string) *regexp.Regexp {
	return regexp.MustCompile(`(?:^|\s)` + regexp.QuoteMeta(email) + `(?:\s|$)`)
}

// rewriteMatchValue replaces every token matching the pattern with the
// request ID, preserving all other tokens verbatim and in order. Tokens are
// rejoined with a single space.
func rewriteMatchValue(value string, pattern *regexp.Regexp, requestID string) string {
	tokens := strings.Fields(value)
	for i, tok := range tokens {
		if pattern.MatchString(tok) {
			tokens[i] = requestID
		}
	}
	return strings.Join(tokens, " ")
}

// fieldReplacements computes the per-field redaction values for a descriptor.
// Unique fields get the local part of the subject email; everything else gets
// the kind placeholder. The match field is excluded, it carries the rewritten
// token value instead.
func fieldReplacements(fields []models.PersonalField, matchField, email string) []repository.FieldValue {
	out := make([]repository.FieldValue, 0, len(fields))
	for _, f := range fields {
		if f.Name == matchField {
			continue
		}
		var value interface{}
		if f.Unique {
			value = emailLocalPart(email)
		} else {
			value = f.Kind.Placeholder(f.Name)
		}
		out = append(out, repository.FieldValue{Name: f.Name, Value: value})
	}
	return out
}

func emailLocalPart(email string) string {
	if at := strings.Index(email, "@"); at >= 0 {
		return email[:at]
	}
	return email
}
