package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/privacy-api/internal/models"
	"github.com/noah-isme/privacy-api/internal/repository"
	appErrors "github.com/noah-isme/privacy-api/pkg/errors"
)

type redactCall struct {
	recordType string
	recordID   string
	matchValue string
	fields     []repository.FieldValue
}

type recordStoreStub struct {
	// rows maps record type to its current rows. FindMatching emulates the
	// LIKE pre-filter with a substring check.
	rows       map[string][]repository.RecordRef
	scanErr    error
	redactErrs map[string]error
	scans      []string
	redacts    []redactCall
}

func (s *recordStoreStub) FindMatching(ctx context.Context, recordType, matchField, email string) ([]repository.RecordRef, error) {
	s.scans = append(s.scans, recordType)
	if s.scanErr != nil {
		return nil, s.scanErr
	}
	var out []repository.RecordRef
	for _, ref := range s.rows[recordType] {
		if strings.Contains(ref.MatchValue, email) {
			out = append(out, ref)
		}
	}
	return out, nil
}

func (s *recordStoreStub) Redact(ctx context.Context, recordType, recordID, matchField, matchValue string, fields []repository.FieldValue) error {
	if err := s.redactErrs[recordID]; err != nil {
		return err
	}
	s.redacts = append(s.redacts, redactCall{
		recordType: recordType,
		recordID:   recordID,
		matchValue: matchValue,
		fields:     fields,
	})
	for i, ref := range s.rows[recordType] {
		if ref.ID == recordID {
			s.rows[recordType][i].MatchValue = matchValue
		}
	}
	return nil
}

type subjectLookupStub struct {
	users map[string]*models.User
	err   error
}

func (s subjectLookupStub) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	if s.err != nil {
		return nil, s.err
	}
	if user, ok := s.users[email]; ok {
		return user, nil
	}
	return nil, sql.ErrNoRows
}

func commentsDescriptor() models.ReferenceDescriptor {
	return models.ReferenceDescriptor{
		RecordType: "comments",
		MatchField: "comment_email",
		PersonalFields: []models.PersonalField{
			{Name: "comment_email", Unique: true},
			{Name: "comment_by"},
		},
	}
}

func TestAnonymizeServiceRewritesTokens(t *testing.T) {
	records := &recordStoreStub{rows: map[string][]repository.RecordRef{
		"comments": {{ID: "rec-1", MatchValue: "alice@x.com bob@x.com"}},
	}}
	engine := NewAnonymizeService(records, subjectLookupStub{}, nil, nil)

	req := &models.DeletionRequest{ID: "req-1", Email: "alice@x.com"}
	outcomes, err := engine.Run(context.Background(), req, []models.ReferenceDescriptor{commentsDescriptor()})
	require.NoError(t, err)
	require.Len(t, outcomes, 1)
	assert.Equal(t, 1, outcomes[0].Matched)
	assert.Equal(t, 1, outcomes[0].Redacted)

	require.Len(t, records.redacts, 1)
	assert.Equal(t, "req-1 bob@x.com", records.redacts[0].matchValue)
}

func TestAnonymizeServiceSubstringIsNotAMatch(t *testing.T) {
	records := &recordStoreStub{rows: map[string][]repository.RecordRef{
		"comments": {{ID: "rec-1", MatchValue: "alice@x.com.au"}},
	}}
	engine := NewAnonymizeService(records, subjectLookupStub{}, nil, nil)

	req := &models.DeletionRequest{ID: "req-1", Email: "alice@x.com"}
	outcomes, err := engine.Run(context.Background(), req, []models.ReferenceDescriptor{commentsDescriptor()})
	require.NoError(t, err)
	assert.Equal(t, 0, outcomes[0].Matched)
	assert.Empty(t, records.redacts)
}

func TestAnonymizeServiceUniqueFieldGetsLocalPart(t *testing.T) {
	records := &recordStoreStub{rows: map[string][]repository.RecordRef{
		"contact_messages": {{ID: "rec-1", MatchValue: "jane.doe@example.org"}},
	}}
	engine := NewAnonymizeService(records, subjectLookupStub{}, nil, nil)

	desc := models.ReferenceDescriptor{
		RecordType: "contact_messages",
		MatchField: "sender",
		PersonalFields: []models.PersonalField{
			{Name: "login_handle", Unique: true},
			{Name: "sender_name"},
			{Name: "subscribed_on", Kind: models.FieldKindDate},
		},
	}
	req := &models.DeletionRequest{ID: "req-1", Email: "jane.doe@example.org"}
	_, err := engine.Run(context.Background(), req, []models.ReferenceDescriptor{desc})
	require.NoError(t, err)

	require.Len(t, records.redacts, 1)
	fields := records.redacts[0].fields
	require.Len(t, fields, 3)
	assert.Equal(t, repository.FieldValue{Name: "login_handle", Value: "jane.doe"}, fields[0])
	assert.Equal(t, repository.FieldValue{Name: "sender_name", Value: "sender_name"}, fields[1])
	assert.Equal(t, repository.FieldValue{Name: "subscribed_on", Value: "1111-01-01"}, fields[2])
}

func TestAnonymizeServiceMatchFieldExcludedFromReplacements(t *testing.T) {
	records := &recordStoreStub{rows: map[string][]repository.RecordRef{
		"comments": {{ID: "rec-1", MatchValue: "alice@x.com"}},
	}}
	engine := NewAnonymizeService(records, subjectLookupStub{}, nil, nil)

	req := &models.DeletionRequest{ID: "req-1", Email: "alice@x.com"}
	_, err := engine.Run(context.Background(), req, []models.ReferenceDescriptor{commentsDescriptor()})
	require.NoError(t, err)

	require.Len(t, records.redacts, 1)
	for _, f := range records.redacts[0].fields {
		assert.NotEqual(t, "comment_email", f.Name)
	}
	assert.Equal(t, "req-1", records.redacts[0].matchValue)
}

func TestAnonymizeServiceGuestRuleSkippedForStaff(t *testing.T) {
	records := &recordStoreStub{rows: map[string][]repository.RecordRef{
		"comments": {{ID: "rec-1", MatchValue: "staff@x.com"}},
	}}
	users := subjectLookupStub{users: map[string]*models.User{
		"staff@x.com": {ID: "user-1", Email: "staff@x.com", Role: models.RoleSystemManager},
	}}
	engine := NewAnonymizeService(records, users, nil, nil)

	desc := commentsDescriptor()
	desc.AppliesToWebsiteUser = true

	req := &models.DeletionRequest{ID: "req-1", Email: "staff@x.com"}
	outcomes, err := engine.Run(context.Background(), req, []models.ReferenceDescriptor{desc})
	require.NoError(t, err)
	require.Len(t, outcomes, 1)
	assert.True(t, outcomes[0].Skipped)
	assert.Empty(t, records.scans)
}

func TestAnonymizeServiceGuestRuleAppliesToGuestAccount(t *testing.T) {
	records := &recordStoreStub{rows: map[string][]repository.RecordRef{
		"comments": {{ID: "rec-1", MatchValue: "guest@x.com"}},
	}}
	users := subjectLookupStub{users: map[string]*models.User{
		"guest@x.com": {ID: "user-2", Email: "guest@x.com", Role: models.RoleGuest},
	}}
	engine := NewAnonymizeService(records, users, nil, nil)

	desc := commentsDescriptor()
	desc.AppliesToWebsiteUser = true

	req := &models.DeletionRequest{ID: "req-1", Email: "guest@x.com"}
	outcomes, err := engine.Run(context.Background(), req, []models.ReferenceDescriptor{desc})
	require.NoError(t, err)
	assert.Equal(t, 1, outcomes[0].Redacted)
}

func TestAnonymizeServiceMalformedDescriptorAborts(t *testing.T) {
	records := &recordStoreStub{}
	engine := NewAnonymizeService(records, subjectLookupStub{}, nil, nil)

	bad := models.ReferenceDescriptor{RecordType: "comments; DROP TABLE users", MatchField: "email"}
	req := &models.DeletionRequest{ID: "req-1", Email: "alice@x.com"}
	_, err := engine.Run(context.Background(), req, []models.ReferenceDescriptor{bad})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConfig.Code, appErrors.FromError(err).Code)
	assert.Empty(t, records.scans)
}

func TestAnonymizeServiceRecordFailureContinues(t *testing.T) {
	records := &recordStoreStub{
		rows: map[string][]repository.RecordRef{
			"comments": {
				{ID: "rec-1", MatchValue: "alice@x.com"},
				{ID: "rec-2", MatchValue: "hello alice@x.com"},
			},
		},
		redactErrs: map[string]error{"rec-1": errors.New("deadlock")},
	}
	engine := NewAnonymizeService(records, subjectLookupStub{}, nil, nil)

	req := &models.DeletionRequest{ID: "req-1", Email: "alice@x.com"}
	outcomes, err := engine.Run(context.Background(), req, []models.ReferenceDescriptor{commentsDescriptor()})
	require.NoError(t, err)
	assert.Equal(t, 2, outcomes[0].Matched)
	assert.Equal(t, 1, outcomes[0].Redacted)
	require.Len(t, records.redacts, 1)
	assert.Equal(t, "rec-2", records.redacts[0].recordID)
}

func TestAnonymizeServiceSecondRunIsNoOp(t *testing.T) {
	records := &recordStoreStub{rows: map[string][]repository.RecordRef{
		"comments": {{ID: "rec-1", MatchValue: "alice@x.com bob@x.com"}},
	}}
	engine := NewAnonymizeService(records, subjectLookupStub{}, nil, nil)

	req := &models.DeletionRequest{ID: "req-1", Email: "alice@x.com"}
	descriptors := []models.ReferenceDescriptor{commentsDescriptor()}

	first, err := engine.Run(context.Background(), req, descriptors)
	require.NoError(t, err)
	assert.Equal(t, 1, first[0].Redacted)

	second, err := engine.Run(context.Background(), req, descriptors)
	require.NoError(t, err)
	assert.Equal(t, 0, second[0].Matched)
	assert.Equal(t, 0, second[0].Redacted)
	assert.Len(t, records.redacts, 1)
}
