package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/course-scheduler/internal/dto"
	"github.com/noah-isme/course-scheduler/internal/models"
	"github.com/noah-isme/course-scheduler/internal/service"
	appErrors "github.com/noah-isme/course-scheduler/pkg/errors"
	"github.com/noah-isme/course-scheduler/pkg/response"
)

type scheduleReader interface {
	List(ctx context.Context, query dto.ScheduleQuery) ([]models.Schedule, *models.Pagination, error)
	Get(ctx context.Context, id string) (*models.Schedule, error)
	Assignments(ctx context.Context, id string) (*dto.ScheduleAssignmentsResponse, error)
	Publish(ctx context.Context, id string) (*models.Schedule, error)
	Delete(ctx context.Context, id string) error
	Export(ctx context.Context, id string, query dto.ExportQuery) (*service.ExportFile, error)
}

// ScheduleHandler manages persisted schedule versions.
type ScheduleHandler struct {
	service scheduleReader
}

// NewScheduleHandler constructs handler.
func NewScheduleHandler(svc scheduleReader) *ScheduleHandler {
	return &ScheduleHandler{service: svc}
}

// List godoc
// @Summary List schedule versions
// @Tags Schedules
// @Produce json
// @Security BearerAuth
// @Param levelId query string false "Filter by scope"
// @Param page query int false "Page"
// @Param page_size query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /schedules [get]
func (h *ScheduleHandler) List(c *gin.Context) {
	var query dto.ScheduleQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrInvalidRequest.Code, http.StatusBadRequest, "invalid query parameters"))
		return
	}
	items, pagination, err := h.service.List(c.Request.Context(), query)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, pagination)
}

// Get godoc
// @Summary Get a schedule version
// @Tags Schedules
// @Produce json
// @Security BearerAuth
// @Param id path string true "Schedule ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /schedules/{id} [get]
func (h *ScheduleHandler) Get(c *gin.Context) {
	schedule, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, schedule, nil)
}

// Assignments godoc
// @Summary List assignments of a schedule version
// @Tags Schedules
// @Produce json
// @Security BearerAuth
// @Param id path string true "Schedule ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /schedules/{id}/assignments [get]
func (h *ScheduleHandler) Assignments(c *gin.Context) {
	resp, err := h.service.Assignments(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, resp, nil)
}

// Publish godoc
// @Summary Publish a draft schedule version
// @Tags Schedules
// @Produce json
// @Security BearerAuth
// @Param id path string true "Schedule ID"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /schedules/{id}/publish [post]
func (h *ScheduleHandler) Publish(c *gin.Context) {
	schedule, err := h.service.Publish(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, schedule, nil)
}

// Delete godoc
// @Summary Delete a draft schedule version
// @Tags Schedules
// @Security BearerAuth
// @Param id path string true "Schedule ID"
// @Success 204
// @Failure 409 {object} response.Envelope
// @Router /schedules/{id} [delete]
func (h *ScheduleHandler) Delete(c *gin.Context) {
	if err := h.service.Delete(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// Export godoc
// @Summary Export a schedule version
// @Tags Schedules
// @Produce text/csv
// @Produce application/pdf
// @Security BearerAuth
// @Param id path string true "Schedule ID"
// @Param format query string false "csv or pdf"
// @Success 200 {file} file
// @Router /schedules/{id}/export [get]
func (h *ScheduleHandler) Export(c *gin.Context) {
	var query dto.ExportQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrInvalidRequest.Code, http.StatusBadRequest, "invalid query parameters"))
		return
	}
	file, err := h.service.Export(c.Request.Context(), c.Param("id"), query)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Attachment(c, file.Filename, file.ContentType, file.Data)
}
