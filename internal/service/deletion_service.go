package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/privacy-api/internal/dto"
	"github.com/noah-isme/privacy-api/internal/models"
	appErrors "github.com/noah-isme/privacy-api/pkg/errors"
	"github.com/noah-isme/privacy-api/pkg/export"
	"github.com/noah-isme/privacy-api/pkg/jobs"
	"github.com/noah-isme/privacy-api/pkg/mailer"
)

// Job types dispatched by the deletion workflow.
const (
	JobTypeVerificationMail = "verification_mail"
	JobTypeApprovalMail     = "approval_mail"
	JobTypeAnonymize        = "anonymize"
)

// ConfirmOutcome distinguishes the rendered confirmation pages.
type ConfirmOutcome int

const (
	// ConfirmAccepted means the request advanced to Pending Approval.
	ConfirmAccepted ConfirmOutcome = iota
	// ConfirmAlreadyActivated means the link was already used.
	ConfirmAlreadyActivated
	// ConfirmInvalid means the link failed signature or expiry checks.
	ConfirmInvalid
)

// ConfirmResult carries what the status page needs.
type ConfirmResult struct {
	Outcome ConfirmOutcome
	Email   string
}

type deletionRequestStore interface {
	Create(ctx context.Context, req *models.DeletionRequest) error
	FindByID(ctx context.Context, id string) (*models.DeletionRequest, error)
	FindByEmail(ctx context.Context, email string) (*models.DeletionRequest, error)
	UpdateStatus(ctx context.Context, id string, from, to models.DeletionStatus) error
	SetReportPath(ctx context.Context, id, path string) error
	DeleteStale(ctx context.Context, cutoff time.Time) (int64, error)
	List(ctx context.Context, filter models.DeletionRequestFilter) ([]models.DeletionRequest, int, error)
}

type accountStore interface {
	Disable(ctx context.Context, email string) error
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

type jobDispatcher interface {
	Enqueue(job jobs.Job) error
}

type cooldownStore interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error)
}

type anonymizer interface {
	Run(ctx context.Context, req *models.DeletionRequest, descriptors []models.ReferenceDescriptor) ([]export.DescriptorOutcome, error)
}

type linkSigner interface {
	Generate(requestID, email string) (string, time.Time, error)
	Parse(token string) (requestID, email string, expiresAt time.Time, err error)
}

type reportSigner interface {
	Generate(requestID, relPath string) (string, time.Time, error)
	Parse(token string, allowExpired bool) (requestID, relPath string, expiresAt time.Time, err error)
}

type reportStorage interface {
	Save(filename string, data []byte) (string, error)
	Open(filename string) (*os.File, error)
}

type reportRenderer interface {
	Render(report export.DeletionReport) ([]byte, error)
}

// DeletionServiceConfig carries workflow tuning injected from configuration.
type DeletionServiceConfig struct {
	BaseURL         string
	OperatorEmails  []string
	RetentionWindow time.Duration
	ResendCooldown  time.Duration
	// SyncMode runs the anonymization pass inline. Diagnostic use only.
	SyncMode bool
}

// DeletionService owns the deletion request lifecycle: creation, email
// verification, operator approval, the anonymization pass, and reaping.
type DeletionService struct {
	repo        deletionRequestStore
	accounts    accountStore
	engine      anonymizer
	descriptors []models.ReferenceDescriptor
	mailQueue   jobDispatcher
	anonQueue   jobDispatcher
	cooldowns   cooldownStore
	signer      linkSigner
	mail        mailer.Sender
	reports     reportStorage
	reportSign  reportSigner
	renderer    reportRenderer
	validator   *validator.Validate
	logger      *zap.Logger
	metrics     *MetricsService
	cfg         DeletionServiceConfig
}

// DeletionServiceDeps bundles collaborators for construction.
type DeletionServiceDeps struct {
	Repo        deletionRequestStore
	Accounts    accountStore
	Engine      anonymizer
	Descriptors []models.ReferenceDescriptor
	MailQueue   jobDispatcher
	AnonQueue   jobDispatcher
	Cooldowns   cooldownStore
	Signer      linkSigner
	Mail        mailer.Sender
	Reports     reportStorage
	ReportSign  reportSigner
	Renderer    reportRenderer
	Validator   *validator.Validate
	Logger      *zap.Logger
	Metrics     *MetricsService
}

// NewDeletionService constructs the workflow service.
func NewDeletionService(deps DeletionServiceDeps, cfg DeletionServiceConfig) *DeletionService {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Validator == nil {
		deps.Validator = validator.New()
	}
	if cfg.RetentionWindow <= 0 {
		cfg.RetentionWindow = 7 * 24 * time.Hour
	}
	if cfg.ResendCooldown <= 0 {
		cfg.ResendCooldown = 15 * time.Minute
	}
	return &DeletionService{
		repo:        deps.Repo,
		accounts:    deps.Accounts,
		engine:      deps.Engine,
		descriptors: deps.Descriptors,
		mailQueue:   deps.MailQueue,
		anonQueue:   deps.AnonQueue,
		cooldowns:   deps.Cooldowns,
		signer:      deps.Signer,
		mail:        deps.Mail,
		reports:     deps.Reports,
		reportSign:  deps.ReportSign,
		renderer:    deps.Renderer,
		validator:   deps.Validator,
		logger:      deps.Logger,
		metrics:     deps.Metrics,
		cfg:         cfg,
	}
}

// Create opens a deletion request for the given email and queues the signed
// verification mail. Conflicting in-flight requests for the same address are
// rejected.
func (s *DeletionService) Create(ctx context.Context, req dto.CreateDeletionRequest, meta models.LoginRequest) (*models.DeletionRequest, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid email address")
	}

	if _, err := s.repo.FindByEmail(ctx, req.Email); err == nil {
		return nil, appErrors.Clone(appErrors.ErrConflict, "a deletion request for this email already exists")
	} else if !errors.Is(err, sql.ErrNoRows) {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check for existing request")
	}

	record := &models.DeletionRequest{
		ID:     uuid.NewString(),
		Email:  req.Email,
		Status: models.StatusPendingVerification,
	}
	if err := s.repo.Create(ctx, record); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create deletion request")
	}

	if err := s.mailQueue.Enqueue(jobs.Job{ID: uuid.NewString(), Type: JobTypeVerificationMail, Payload: record.ID}); err != nil {
		s.logger.Error("failed to enqueue verification mail", zap.String("request_id", record.ID), zap.Error(err))
	}

	s.audit(ctx, &models.AuditLog{
		Action:     models.AuditActionRequestCreate,
		Resource:   "deletion_requests",
		ResourceID: &record.ID,
		NewValues:  mustJSON(map[string]interface{}{"status": record.Status}),
		IPAddress:  meta.IP,
		UserAgent:  meta.UserAgent,
	})
	s.metrics.RecordRequestCreated()

	return record, nil
}

// Resend queues another verification mail for an unverified request, subject
// to a per-request cooldown.
func (s *DeletionService) Resend(ctx context.Context, id string) error {
	record, err := s.loadRequest(ctx, id)
	if err != nil {
		return err
	}
	if record.Status != models.StatusPendingVerification {
		return appErrors.Clone(appErrors.ErrPreconditionFailed, "request is already verified")
	}

	ok, err := s.cooldowns.Acquire(ctx, "resend:"+record.ID, s.cfg.ResendCooldown)
	if err != nil {
		s.logger.Warn("cooldown check failed, allowing resend", zap.String("request_id", record.ID), zap.Error(err))
	} else if !ok {
		return appErrors.Clone(appErrors.ErrCooldown, "verification mail was sent recently, try again later")
	}

	if err := s.mailQueue.Enqueue(jobs.Job{ID: uuid.NewString(), Type: JobTypeVerificationMail, Payload: record.ID}); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to enqueue verification mail")
	}
	return nil
}

// Confirm processes an inbound signed link. It never returns a transport
// error for bad links: the human-facing exit is a rendered status page.
func (s *DeletionService) Confirm(ctx context.Context, token string) (ConfirmResult, error) {
	requestID, email, _, err := s.signer.Parse(token)
	if err != nil {
		return ConfirmResult{Outcome: ConfirmInvalid}, nil
	}

	record, err := s.repo.FindByID(ctx, requestID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ConfirmResult{Outcome: ConfirmInvalid}, nil
		}
		return ConfirmResult{}, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load deletion request")
	}
	if record.Email != email {
		return ConfirmResult{Outcome: ConfirmInvalid}, nil
	}

	if record.Status != models.StatusPendingVerification {
		return ConfirmResult{Outcome: ConfirmAlreadyActivated, Email: record.Email}, nil
	}

	if err := s.repo.UpdateStatus(ctx, record.ID, models.StatusPendingVerification, models.StatusPendingApproval); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			// Lost a race with another confirm; the link did its job.
			return ConfirmResult{Outcome: ConfirmAlreadyActivated, Email: record.Email}, nil
		}
		return ConfirmResult{}, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to advance deletion request")
	}

	if err := s.mailQueue.Enqueue(jobs.Job{ID: uuid.NewString(), Type: JobTypeApprovalMail, Payload: record.ID}); err != nil {
		s.logger.Error("failed to enqueue approval mail", zap.String("request_id", record.ID), zap.Error(err))
	}

	s.audit(ctx, &models.AuditLog{
		Action:     models.AuditActionRequestConfirm,
		Resource:   "deletion_requests",
		ResourceID: &record.ID,
		OldValues:  mustJSON(map[string]interface{}{"status": models.StatusPendingVerification}),
		NewValues:  mustJSON(map[string]interface{}{"status": models.StatusPendingApproval}),
	})
	s.metrics.RecordRequestConfirmed()

	return ConfirmResult{Outcome: ConfirmAccepted, Email: record.Email}, nil
}

// TriggerDeletion disables the subject account and schedules the
// anonymization pass. The role and status gates run before any mutation.
func (s *DeletionService) TriggerDeletion(ctx context.Context, id string, actor *models.JWTClaims, meta models.LoginRequest) (*dto.TriggerDeletionResponse, error) {
	record, err := s.validatePreconditions(ctx, id, actor)
	if err != nil {
		return nil, err
	}

	if err := s.accounts.Disable(ctx, record.Email); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to disable account")
	}

	enqueued := false
	if s.cfg.SyncMode {
		if err := s.runPass(ctx, record.ID); err != nil {
			return nil, err
		}
	} else {
		if err := s.anonQueue.Enqueue(jobs.Job{ID: uuid.NewString(), Type: JobTypeAnonymize, Payload: record.ID}); err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to enqueue anonymization pass")
		}
		enqueued = true
	}

	s.audit(ctx, &models.AuditLog{
		UserID:     &actor.UserID,
		Action:     models.AuditActionDeletionTrigger,
		Resource:   "deletion_requests",
		ResourceID: &record.ID,
		IPAddress:  meta.IP,
		UserAgent:  meta.UserAgent,
	})

	status := record.Status
	if s.cfg.SyncMode {
		status = models.StatusDeleted
	}
	return &dto.TriggerDeletionResponse{ID: record.ID, Status: status, Enqueued: enqueued}, nil
}

// validatePreconditions is the authorization gate in front of the pass: the
// caller must hold the elevated role and the subject must have approved.
func (s *DeletionService) validatePreconditions(ctx context.Context, id string, actor *models.JWTClaims) (*models.DeletionRequest, error) {
	if actor == nil || actor.Role != models.RoleSystemManager {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only system managers may trigger data deletion")
	}

	record, err := s.loadRequest(ctx, id)
	if err != nil {
		return nil, err
	}
	if record.Status != models.StatusPendingApproval {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "this request has not yet been approved by the user")
	}
	return record, nil
}

// Reap deletes unverified requests older than the retention window. Failures
// are logged, never escalated: the sweep runs again on the next tick.
func (s *DeletionService) Reap(ctx context.Context) {
	cutoff := time.Now().UTC().Add(-s.cfg.RetentionWindow)
	deleted, err := s.repo.DeleteStale(ctx, cutoff)
	if err != nil {
		s.logger.Error("stale request sweep failed", zap.Error(err))
		return
	}
	if deleted > 0 {
		s.logger.Info("reaped stale deletion requests", zap.Int64("deleted", deleted))
		s.metrics.RecordRequestsReaped(deleted)
	}
}

// List returns deletion requests for the operator console.
func (s *DeletionService) List(ctx context.Context, filter models.DeletionRequestFilter) ([]dto.DeletionRequestItem, *models.Pagination, error) {
	records, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list deletion requests")
	}

	items := make([]dto.DeletionRequestItem, 0, len(records))
	for _, r := range records {
		items = append(items, toItem(r))
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	pageSize := filter.PageSize
	if pageSize <= 0 {
		pageSize = 20
	}
	return items, &models.Pagination{Page: page, PageSize: pageSize, TotalCount: total}, nil
}

// Get returns a single request for the operator console.
func (s *DeletionService) Get(ctx context.Context, id string) (*dto.DeletionRequestItem, error) {
	record, err := s.loadRequest(ctx, id)
	if err != nil {
		return nil, err
	}
	item := toItem(*record)
	return &item, nil
}

// ReportLink returns a signed, time-bounded download link for the compliance
// report of a completed request.
func (s *DeletionService) ReportLink(ctx context.Context, id string) (*dto.ReportLinkResponse, error) {
	record, err := s.loadRequest(ctx, id)
	if err != nil {
		return nil, err
	}
	if record.ReportPath == nil || *record.ReportPath == "" {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "no report available for this request")
	}

	token, expiresAt, err := s.reportSign.Generate(record.ID, *record.ReportPath)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to sign report link")
	}
	return &dto.ReportLinkResponse{
		URL:       fmt.Sprintf("%s/downloads/reports?token=%s", s.cfg.BaseURL, url.QueryEscape(token)),
		ExpiresAt: expiresAt,
	}, nil
}

// OpenReport resolves a signed download token into the stored report file.
func (s *DeletionService) OpenReport(ctx context.Context, token string) (*os.File, string, error) {
	requestID, relPath, _, err := s.reportSign.Parse(token, false)
	if err != nil {
		return nil, "", appErrors.Clone(appErrors.ErrLinkInvalid, "invalid or expired download token")
	}
	file, err := s.reports.Open(relPath)
	if err != nil {
		return nil, "", appErrors.Clone(appErrors.ErrNotFound, "report file not found")
	}
	return file, fmt.Sprintf("deletion-report-%s.pdf", requestID), nil
}

// HandleMailJob is the mail queue handler.
func (s *DeletionService) HandleMailJob(ctx context.Context, job jobs.Job) error {
	requestID, ok := job.Payload.(string)
	if !ok {
		return fmt.Errorf("mail job %s carries unexpected payload %T", job.ID, job.Payload)
	}
	switch job.Type {
	case JobTypeVerificationMail:
		return s.sendVerificationMail(ctx, requestID)
	case JobTypeApprovalMail:
		return s.sendApprovalMail(ctx, requestID)
	default:
		return fmt.Errorf("unknown mail job type %s", job.Type)
	}
}

// HandleAnonymizeJob is the long queue handler running the pass.
func (s *DeletionService) HandleAnonymizeJob(ctx context.Context, job jobs.Job) error {
	requestID, ok := job.Payload.(string)
	if !ok {
		return fmt.Errorf("anonymize job %s carries unexpected payload %T", job.ID, job.Payload)
	}
	return s.runPass(ctx, requestID)
}

// runPass executes the anonymization sweep and finalises the request. Safe to
// re-run: a request already in Deleted is a no-op, and the engine itself skips
// records whose email token is already gone.
func (s *DeletionService) runPass(ctx context.Context, requestID string) error {
	record, err := s.loadRequest(ctx, requestID)
	if err != nil {
		return err
	}
	if record.Status == models.StatusDeleted {
		return nil
	}
	if record.Status != models.StatusPendingApproval {
		return appErrors.Clone(appErrors.ErrPreconditionFailed, "this request has not yet been approved by the user")
	}

	outcomes, err := s.engine.Run(ctx, record, s.descriptors)
	if err != nil {
		return err
	}

	completedAt := time.Now().UTC()
	s.storeReport(record, outcomes, completedAt)

	if err := s.repo.UpdateStatus(ctx, record.ID, models.StatusPendingApproval, models.StatusDeleted); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			// A concurrent run finished first; nothing left to do.
			return nil
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to finalise deletion request")
	}

	s.audit(ctx, &models.AuditLog{
		Action:     models.AuditActionDeletionComplete,
		Resource:   "deletion_requests",
		ResourceID: &record.ID,
		NewValues:  mustJSON(map[string]interface{}{"status": models.StatusDeleted, "completed_at": completedAt}),
	})
	s.logger.Info("anonymization pass completed",
		zap.String("request_id", record.ID),
		zap.Int("descriptors", len(outcomes)))
	return nil
}

// storeReport renders and persists the compliance report. Report failures do
// not fail the pass: the redaction already happened.
func (s *DeletionService) storeReport(record *models.DeletionRequest, outcomes []export.DescriptorOutcome, completedAt time.Time) {
	if s.renderer == nil || s.reports == nil {
		return
	}
	data, err := s.renderer.Render(export.DeletionReport{
		RequestID:   record.ID,
		CompletedAt: completedAt,
		Outcomes:    outcomes,
	})
	if err != nil {
		s.logger.Warn("failed to render deletion report", zap.String("request_id", record.ID), zap.Error(err))
		return
	}
	relPath := fmt.Sprintf("%s.pdf", record.ID)
	if _, err := s.reports.Save(relPath, data); err != nil {
		s.logger.Warn("failed to store deletion report", zap.String("request_id", record.ID), zap.Error(err))
		return
	}
	if err := s.repo.SetReportPath(context.Background(), record.ID, relPath); err != nil {
		s.logger.Warn("failed to record deletion report path", zap.String("request_id", record.ID), zap.Error(err))
	}
}

func (s *DeletionService) sendVerificationMail(ctx context.Context, requestID string) error {
	record, err := s.loadRequest(ctx, requestID)
	if err != nil {
		return err
	}
	if record.Status != models.StatusPendingVerification {
		return nil
	}

	token, _, err := s.signer.Generate(record.ID, record.Email)
	if err != nil {
		return fmt.Errorf("sign confirmation link: %w", err)
	}
	link := fmt.Sprintf("%s/confirm?token=%s", s.cfg.BaseURL, url.QueryEscape(token))

	msg, err := mailer.ConfirmDeletion(record.Email, s.host(), link)
	if err != nil {
		return err
	}
	if err := s.mail.Send(ctx, msg); err != nil {
		return fmt.Errorf("send verification mail: %w", err)
	}
	s.logger.Info("verification mail sent", zap.String("request_id", record.ID))
	return nil
}

func (s *DeletionService) sendApprovalMail(ctx context.Context, requestID string) error {
	if len(s.cfg.OperatorEmails) == 0 {
		s.logger.Warn("no operator emails configured, skipping approval notification",
			zap.String("request_id", requestID))
		return nil
	}
	record, err := s.loadRequest(ctx, requestID)
	if err != nil {
		return err
	}

	link := fmt.Sprintf("%s/requests/%s", s.cfg.BaseURL, record.ID)
	msg, err := mailer.ApprovalRequired(s.cfg.OperatorEmails, record.Email, link)
	if err != nil {
		return err
	}
	if err := s.mail.Send(ctx, msg); err != nil {
		return fmt.Errorf("send approval mail: %w", err)
	}
	s.logger.Info("approval mail sent", zap.String("request_id", record.ID))
	return nil
}

func (s *DeletionService) loadRequest(ctx context.Context, id string) (*models.DeletionRequest, error) {
	record, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "deletion request not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load deletion request")
	}
	return record, nil
}

func (s *DeletionService) audit(ctx context.Context, entry *models.AuditLog) {
	if err := s.accounts.CreateAuditLog(ctx, entry); err != nil {
		s.logger.Warn("failed to record audit log", zap.String("action", entry.Action), zap.Error(err))
	}
}

func (s *DeletionService) host() string {
	if u, err := url.Parse(s.cfg.BaseURL); err == nil && u.Host != "" {
		return u.Host
	}
	return strings.TrimPrefix(s.cfg.BaseURL, "https://")
}

func toItem(r models.DeletionRequest) dto.DeletionRequestItem {
	return dto.DeletionRequestItem{
		ID:        r.ID,
		Email:     r.Email,
		Status:    r.Status,
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
		HasReport: r.ReportPath != nil && *r.ReportPath != "",
	}
}

func mustJSON(v interface{}) []byte {
	data, _ := json.Marshal(v)
	return data
}
