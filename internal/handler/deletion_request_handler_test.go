package handler

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/privacy-api/internal/dto"
	"github.com/noah-isme/privacy-api/internal/middleware"
	"github.com/noah-isme/privacy-api/internal/models"
	"github.com/noah-isme/privacy-api/internal/service"
	"github.com/noah-isme/privacy-api/internal/web"
	appErrors "github.com/noah-isme/privacy-api/pkg/errors"
)

type deletionServiceMock struct {
	createResp     *models.DeletionRequest
	createErr      error
	confirmResp    service.ConfirmResult
	confirmErr     error
	triggerResp    *dto.TriggerDeletionResponse
	triggerErr     error
	listResp       []dto.DeletionRequestItem
	reportFile     *os.File
	reportFilename string
	reportErr      error

	lastFilter  models.DeletionRequestFilter
	lastActor   *models.JWTClaims
	lastTrigger string
	resendIDs   []string
}

func (m *deletionServiceMock) Create(ctx context.Context, req dto.CreateDeletionRequest, meta models.LoginRequest) (*models.DeletionRequest, error) {
	return m.createResp, m.createErr
}

func (m *deletionServiceMock) Resend(ctx context.Context, id string) error {
	m.resendIDs = append(m.resendIDs, id)
	return nil
}

func (m *deletionServiceMock) Confirm(ctx context.Context, token string) (service.ConfirmResult, error) {
	return m.confirmResp, m.confirmErr
}

func (m *deletionServiceMock) TriggerDeletion(ctx context.Context, id string, actor *models.JWTClaims, meta models.LoginRequest) (*dto.TriggerDeletionResponse, error) {
	m.lastTrigger = id
	m.lastActor = actor
	return m.triggerResp, m.triggerErr
}

func (m *deletionServiceMock) List(ctx context.Context, filter models.DeletionRequestFilter) ([]dto.DeletionRequestItem, *models.Pagination, error) {
	m.lastFilter = filter
	return m.listResp, &models.Pagination{Page: 1, PageSize: 20, TotalCount: len(m.listResp)}, nil
}

func (m *deletionServiceMock) Get(ctx context.Context, id string) (*dto.DeletionRequestItem, error) {
	for _, item := range m.listResp {
		if item.ID == id {
			return &item, nil
		}
	}
	return nil, appErrors.ErrNotFound
}

func (m *deletionServiceMock) ReportLink(ctx context.Context, id string) (*dto.ReportLinkResponse, error) {
	return &dto.ReportLinkResponse{URL: "https://example.org/downloads/reports?token=x"}, nil
}

func (m *deletionServiceMock) OpenReport(ctx context.Context, token string) (*os.File, string, error) {
	return m.reportFile, m.reportFilename, m.reportErr
}

func newTestContext(t *testing.T) (*gin.Context, *gin.Engine, *httptest.ResponseRecorder) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, r := gin.CreateTestContext(w)
	r.SetHTMLTemplate(web.Templates())
	return c, r, w
}

func TestDeletionRequestHandlerCreate(t *testing.T) {
	mockSvc := &deletionServiceMock{
		createResp: &models.DeletionRequest{ID: "req-1", Email: "alice@x.com", Status: models.StatusPendingVerification},
	}
	handler := NewDeletionRequestHandler(mockSvc)

	c, _, w := newTestContext(t)
	req, _ := http.NewRequest(http.MethodPost, "/deletion-requests", bytes.NewBufferString(`{"email":"alice@x.com"}`))
	req.Header.Set("Content-Type", "application/json")
	c.Request = req

	handler.Create(c)
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Contains(t, w.Body.String(), "req-1")
}

func TestDeletionRequestHandlerCreateInvalidBody(t *testing.T) {
	handler := NewDeletionRequestHandler(&deletionServiceMock{})

	c, _, w := newTestContext(t)
	req, _ := http.NewRequest(http.MethodPost, "/deletion-requests", bytes.NewBufferString(`{"email":`))
	req.Header.Set("Content-Type", "application/json")
	c.Request = req

	handler.Create(c)
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestDeletionRequestHandlerCreateConflict(t *testing.T) {
	mockSvc := &deletionServiceMock{createErr: appErrors.ErrConflict}
	handler := NewDeletionRequestHandler(mockSvc)

	c, _, w := newTestContext(t)
	req, _ := http.NewRequest(http.MethodPost, "/deletion-requests", bytes.NewBufferString(`{"email":"alice@x.com"}`))
	req.Header.Set("Content-Type", "application/json")
	c.Request = req

	handler.Create(c)
	require.Equal(t, http.StatusConflict, w.Code)
}

func TestDeletionRequestHandlerConfirmAccepted(t *testing.T) {
	mockSvc := &deletionServiceMock{
		confirmResp: service.ConfirmResult{Outcome: service.ConfirmAccepted, Email: "alice@x.com"},
	}
	handler := NewDeletionRequestHandler(mockSvc)

	c, _, w := newTestContext(t)
	req, _ := http.NewRequest(http.MethodGet, "/confirm?token=abc", nil)
	c.Request = req

	handler.Confirm(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Confirmed")
	assert.Contains(t, w.Body.String(), "alice@x.com")
}

func TestDeletionRequestHandlerConfirmAlreadyActivated(t *testing.T) {
	mockSvc := &deletionServiceMock{
		confirmResp: service.ConfirmResult{Outcome: service.ConfirmAlreadyActivated, Email: "alice@x.com"},
	}
	handler := NewDeletionRequestHandler(mockSvc)

	c, _, w := newTestContext(t)
	req, _ := http.NewRequest(http.MethodGet, "/confirm?token=abc", nil)
	c.Request = req

	handler.Confirm(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "already been activated")
}

func TestDeletionRequestHandlerConfirmInvalid(t *testing.T) {
	mockSvc := &deletionServiceMock{
		confirmResp: service.ConfirmResult{Outcome: service.ConfirmInvalid},
	}
	handler := NewDeletionRequestHandler(mockSvc)

	c, _, w := newTestContext(t)
	req, _ := http.NewRequest(http.MethodGet, "/confirm?token=bad", nil)
	c.Request = req

	handler.Confirm(c)
	require.Equal(t, http.StatusGone, w.Code)
	assert.Contains(t, w.Body.String(), "Link Expired")
}

func TestDeletionRequestHandlerTriggerForwardsActor(t *testing.T) {
	mockSvc := &deletionServiceMock{
		triggerResp: &dto.TriggerDeletionResponse{ID: "req-1", Status: models.StatusPendingApproval, Enqueued: true},
	}
	handler := NewDeletionRequestHandler(mockSvc)

	c, _, w := newTestContext(t)
	req, _ := http.NewRequest(http.MethodPost, "/deletion-requests/req-1/trigger", nil)
	c.Request = req
	c.Params = gin.Params{{Key: "id", Value: "req-1"}}
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: "op-1", Role: models.RoleSystemManager})

	handler.Trigger(c)
	require.Equal(t, http.StatusAccepted, w.Code)
	assert.Equal(t, "req-1", mockSvc.lastTrigger)
	require.NotNil(t, mockSvc.lastActor)
	assert.Equal(t, models.RoleSystemManager, mockSvc.lastActor.Role)
}

func TestDeletionRequestHandlerTriggerPreconditionFailed(t *testing.T) {
	mockSvc := &deletionServiceMock{triggerErr: appErrors.ErrPreconditionFailed}
	handler := NewDeletionRequestHandler(mockSvc)

	c, _, w := newTestContext(t)
	req, _ := http.NewRequest(http.MethodPost, "/deletion-requests/req-1/trigger", nil)
	c.Request = req
	c.Params = gin.Params{{Key: "id", Value: "req-1"}}

	handler.Trigger(c)
	require.Equal(t, appErrors.ErrPreconditionFailed.Status, w.Code)
}

func TestDeletionRequestHandlerListParsesFilters(t *testing.T) {
	mockSvc := &deletionServiceMock{
		listResp: []dto.DeletionRequestItem{{ID: "req-1", Email: "alice@x.com"}},
	}
	handler := NewDeletionRequestHandler(mockSvc)

	c, _, w := newTestContext(t)
	req, _ := http.NewRequest(http.MethodGet, "/deletion-requests?status=Pending+Approval&search=alice&page=2&limit=10", nil)
	c.Request = req

	handler.List(c)
	require.Equal(t, http.StatusOK, w.Code)
	require.NotNil(t, mockSvc.lastFilter.Status)
	assert.Equal(t, models.StatusPendingApproval, *mockSvc.lastFilter.Status)
	assert.Equal(t, "alice", mockSvc.lastFilter.Search)
	assert.Equal(t, 2, mockSvc.lastFilter.Page)
	assert.Equal(t, 10, mockSvc.lastFilter.PageSize)
}

func TestDeletionRequestHandlerDownloadReport(t *testing.T) {
	file, err := os.CreateTemp(t.TempDir(), "report-*.pdf")
	require.NoError(t, err)
	_, err = file.WriteString("%PDF-1.4")
	require.NoError(t, err)
	_, err = file.Seek(0, 0)
	require.NoError(t, err)

	mockSvc := &deletionServiceMock{reportFile: file, reportFilename: "deletion-report-req-1.pdf"}
	handler := NewDeletionRequestHandler(mockSvc)

	c, _, w := newTestContext(t)
	req, _ := http.NewRequest(http.MethodGet, "/downloads/reports?token=x", nil)
	c.Request = req

	handler.DownloadReport(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/pdf", w.Header().Get("Content-Type"))
	assert.Contains(t, w.Header().Get("Content-Disposition"), "deletion-report-req-1.pdf")
	assert.Equal(t, "%PDF-1.4", w.Body.String())
}

func TestDeletionRequestHandlerDownloadReportInvalidToken(t *testing.T) {
	mockSvc := &deletionServiceMock{reportErr: appErrors.ErrLinkInvalid}
	handler := NewDeletionRequestHandler(mockSvc)

	c, _, w := newTestContext(t)
	req, _ := http.NewRequest(http.MethodGet, "/downloads/reports?token=bad", nil)
	c.Request = req

	handler.DownloadReport(c)
	require.Equal(t, http.StatusGone, w.Code)
}
