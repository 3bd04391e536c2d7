package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/course-scheduler/internal/dto"
	"github.com/noah-isme/course-scheduler/internal/middleware"
	appErrors "github.com/noah-isme/course-scheduler/pkg/errors"
	"github.com/noah-isme/course-scheduler/pkg/response"
)

type scheduleGenerator interface {
	Generate(ctx context.Context, req dto.GenerateRequest) (*dto.GenerateResponse, error)
}

type generationRunner interface {
	Submit(req dto.GenerateRequest) (*dto.GenerationRun, error)
	Get(id string) (*dto.GenerationRun, error)
	Cancel(id string) (*dto.GenerationRun, error)
}

// GenerationHandler exposes schedule generation endpoints.
type GenerationHandler struct {
	generator scheduleGenerator
	runner    generationRunner
}

// NewGenerationHandler constructs the handler. runner may be nil when async runs are disabled.
func NewGenerationHandler(generator scheduleGenerator, runner generationRunner) *GenerationHandler {
	return &GenerationHandler{generator: generator, runner: runner}
}

// Generate godoc
// @Summary Generate a new schedule version
// @Description Runs the search synchronously and persists the result. Partial schedules are persisted and reported with diagnostics.
// @Tags Scheduler
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param payload body dto.GenerateRequest true "Generation payload"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 424 {object} response.Envelope
// @Failure 503 {object} response.Envelope
// @Router /schedules/generate [post]
func (h *GenerationHandler) Generate(c *gin.Context) {
	var req dto.GenerateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrInvalidRequest.Code, http.StatusBadRequest, "invalid generation payload"))
		return
	}
	resp, err := h.generator.Generate(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, resp, nil, requesterMeta(c))
}

// Submit godoc
// @Summary Queue a schedule generation
// @Tags Scheduler
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param payload body dto.GenerateRequest true "Generation payload"
// @Success 202 {object} response.Envelope
// @Failure 503 {object} response.Envelope
// @Router /schedules/generate/async [post]
func (h *GenerationHandler) Submit(c *gin.Context) {
	if h.runner == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrUnavailable, "async generation disabled"))
		return
	}
	var req dto.GenerateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrInvalidRequest.Code, http.StatusBadRequest, "invalid generation payload"))
		return
	}
	run, err := h.runner.Submit(req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Accepted(c, run)
}

// GetRun godoc
// @Summary Poll an asynchronous generation
// @Tags Scheduler
// @Produce json
// @Security BearerAuth
// @Param id path string true "Run ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /schedules/generate/runs/{id} [get]
func (h *GenerationHandler) GetRun(c *gin.Context) {
	if h.runner == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrUnavailable, "async generation disabled"))
		return
	}
	run, err := h.runner.Get(c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, run, nil)
}

// CancelRun godoc
// @Summary Cancel an asynchronous generation
// @Description Cancelled runs persist nothing.
// @Tags Scheduler
// @Produce json
// @Security BearerAuth
// @Param id path string true "Run ID"
// @Success 202 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /schedules/generate/runs/{id} [delete]
func (h *GenerationHandler) CancelRun(c *gin.Context) {
	if h.runner == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrUnavailable, "async generation disabled"))
		return
	}
	run, err := h.runner.Cancel(c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Accepted(c, run)
}

func requesterMeta(c *gin.Context) map[string]interface{} {
	claims := middleware.Claims(c)
	if claims == nil {
		return nil
	}
	return map[string]interface{}{"requestedBy": claims.UserID}
}
