package handler

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/privacy-api/internal/dto"
	"github.com/noah-isme/privacy-api/internal/models"
	"github.com/noah-isme/privacy-api/internal/service"
	"github.com/noah-isme/privacy-api/internal/web"
	appErrors "github.com/noah-isme/privacy-api/pkg/errors"
	"github.com/noah-isme/privacy-api/pkg/response"
)

type deletionService interface {
	Create(ctx context.Context, req dto.CreateDeletionRequest, meta models.LoginRequest) (*models.DeletionRequest, error)
	Resend(ctx context.Context, id string) error
	Confirm(ctx context.Context, token string) (service.ConfirmResult, error)
	TriggerDeletion(ctx context.Context, id string, actor *models.JWTClaims, meta models.LoginRequest) (*dto.TriggerDeletionResponse, error)
	List(ctx context.Context, filter models.DeletionRequestFilter) ([]dto.DeletionRequestItem, *models.Pagination, error)
	Get(ctx context.Context, id string) (*dto.DeletionRequestItem, error)
	ReportLink(ctx context.Context, id string) (*dto.ReportLinkResponse, error)
	OpenReport(ctx context.Context, token string) (*os.File, string, error)
}

// DeletionRequestHandler exposes the deletion workflow endpoints.
type DeletionRequestHandler struct {
	svc deletionService
}

// NewDeletionRequestHandler constructs handler.
func NewDeletionRequestHandler(svc deletionService) *DeletionRequestHandler {
	return &DeletionRequestHandler{svc: svc}
}

// Create godoc
// @Summary Open a personal data deletion request
// @Tags Deletion Requests
// @Accept json
// @Produce json
// @Param payload body dto.CreateDeletionRequest true "Subject email"
// @Success 201 {object} response.Envelope
// @Router /deletion-requests [post]
func (h *DeletionRequestHandler) Create(c *gin.Context) {
	var req dto.CreateDeletionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid request body"))
		return
	}
	meta := models.LoginRequest{IP: c.ClientIP(), UserAgent: c.Request.UserAgent()}
	record, err := h.svc.Create(c.Request.Context(), req, meta)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, dto.DeletionRequestItem{
		ID:        record.ID,
		Email:     record.Email,
		Status:    record.Status,
		CreatedAt: record.CreatedAt,
		UpdatedAt: record.UpdatedAt,
	})
}

// Confirm renders the human-facing status page for an inbound signed link.
// The exit is a page, not an error payload, even for bad links.
func (h *DeletionRequestHandler) Confirm(c *gin.Context) {
	result, err := h.svc.Confirm(c.Request.Context(), c.Query("token"))
	if err != nil {
		c.HTML(http.StatusInternalServerError, web.StatusPageName, web.StatusPageData{
			Title:     "Something Went Wrong",
			Indicator: "red",
			Message:   "We could not process your confirmation. Please try again later.",
		})
		return
	}

	switch result.Outcome {
	case service.ConfirmAccepted:
		c.HTML(http.StatusOK, web.StatusPageName, web.StatusPageData{
			Title:     "Confirmed",
			Indicator: "green",
			Message:   fmt.Sprintf("The process for deletion of data associated with %s has been initiated.", result.Email),
		})
	case service.ConfirmAlreadyActivated:
		c.HTML(http.StatusOK, web.StatusPageName, web.StatusPageData{
			Title:     "Link Expired",
			Indicator: "red",
			Message:   "This link has already been activated for verification.",
		})
	default:
		c.HTML(http.StatusGone, web.StatusPageName, web.StatusPageData{
			Title:     "Link Expired",
			Indicator: "red",
			Message:   "This link is invalid or has expired.",
		})
	}
}

// Resend godoc
// @Summary Resend the verification mail for an unverified request
// @Tags Deletion Requests
// @Produce json
// @Param id path string true "Request ID"
// @Success 202 {object} response.Envelope
// @Router /deletion-requests/{id}/resend [post]
func (h *DeletionRequestHandler) Resend(c *gin.Context) {
	if err := h.svc.Resend(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusAccepted, gin.H{"status": "queued"}, nil)
}

// Trigger godoc
// @Summary Trigger the anonymization pass for an approved request
// @Tags Deletion Requests
// @Produce json
// @Param id path string true "Request ID"
// @Success 202 {object} response.Envelope
// @Router /deletion-requests/{id}/trigger [post]
func (h *DeletionRequestHandler) Trigger(c *gin.Context) {
	claims := claimsFromContext(c)
	meta := models.LoginRequest{IP: c.ClientIP(), UserAgent: c.Request.UserAgent()}
	resp, err := h.svc.TriggerDeletion(c.Request.Context(), c.Param("id"), claims, meta)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusAccepted, resp, nil)
}

// List godoc
// @Summary List deletion requests
// @Tags Deletion Requests
// @Produce json
// @Param status query string false "Status filter"
// @Param search query string false "Email search"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /deletion-requests [get]
func (h *DeletionRequestHandler) List(c *gin.Context) {
	filter := models.DeletionRequestFilter{
		Search:   c.Query("search"),
		Page:     intQuery(c, "page"),
		PageSize: intQuery(c, "limit"),
	}
	if raw := c.Query("status"); raw != "" {
		status := models.DeletionStatus(raw)
		filter.Status = &status
	}

	items, pagination, err := h.svc.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, pagination)
}

// Get godoc
// @Summary Get a deletion request
// @Tags Deletion Requests
// @Produce json
// @Param id path string true "Request ID"
// @Success 200 {object} response.Envelope
// @Router /deletion-requests/{id} [get]
func (h *DeletionRequestHandler) Get(c *gin.Context) {
	item, err := h.svc.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, item, nil)
}

// ReportLink godoc
// @Summary Get a signed download link for the deletion report
// @Tags Deletion Requests
// @Produce json
// @Param id path string true "Request ID"
// @Success 200 {object} response.Envelope
// @Router /deletion-requests/{id}/report [get]
func (h *DeletionRequestHandler) ReportLink(c *gin.Context) {
	link, err := h.svc.ReportLink(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, link, nil)
}

// DownloadReport streams a stored report resolved from a signed token.
func (h *DeletionRequestHandler) DownloadReport(c *gin.Context) {
	file, filename, err := h.svc.OpenReport(c.Request.Context(), c.Query("token"))
	if err != nil {
		response.Error(c, err)
		return
	}
	defer file.Close() //nolint:errcheck

	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.Header("Content-Type", "application/pdf")
	c.Status(http.StatusOK)
	_, _ = io.Copy(c.Writer, file)
}
