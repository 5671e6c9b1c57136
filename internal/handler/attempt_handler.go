package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/stemsi/aptiq-proctor/internal/middleware"
	"github.com/stemsi/aptiq-proctor/internal/model"
	"github.com/stemsi/aptiq-proctor/internal/response"
	"github.com/stemsi/aptiq-proctor/internal/service"
	"github.com/stemsi/aptiq-proctor/internal/validator"
)

// AttemptHandler handles the attempt endpoints used while taking a test.
type AttemptHandler struct {
	attemptService *service.AttemptService
}

// NewAttemptHandler creates a new AttemptHandler.
func NewAttemptHandler(attemptService *service.AttemptService) *AttemptHandler {
	return &AttemptHandler{attemptService: attemptService}
}

// StartAttempt godoc
// POST /api/attempts/start
// Opens an attempt. 409 with attempt_id when one is already open.
func (h *AttemptHandler) StartAttempt(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	var req model.StartAttemptRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	started, err := h.attemptService.Start(c.Request.Context(), claims.UserID, req.TestID)
	if err != nil {
		var open *service.AttemptInProgressError
		if errors.As(err, &open) {
			response.Conflict(c, open.AttemptID)
			return
		}
		failAttempt(c, err)
		return
	}

	response.Success(c, http.StatusCreated, started)
}

// UpdateAnswer godoc
// PUT /api/attempts/:id/answer
func (h *AttemptHandler) UpdateAnswer(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	var req model.UpdateAnswerRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	if err := h.attemptService.SaveAnswer(c.Request.Context(), claims.UserID, c.Param("id"), req); err != nil {
		failAttempt(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"status": "saved"})
}

// RecordWarning godoc
// PUT /api/attempts/:id/warning
func (h *AttemptHandler) RecordWarning(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	var req model.RecordWarningRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	n, err := h.attemptService.RecordWarning(c.Request.Context(), claims.UserID, c.Param("id"), req)
	if err != nil {
		failAttempt(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"warnings": n})
}

// SubmitAttempt godoc
// POST /api/attempts/:id/submit
// Grades the submitted answers and completes the attempt.
func (h *AttemptHandler) SubmitAttempt(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	var req model.SubmitAttemptRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	result, err := h.attemptService.Submit(c.Request.Context(), claims.UserID, c.Param("id"), req)
	if err != nil {
		failAttempt(c, err)
		return
	}

	response.Success(c, http.StatusOK, result)
}

// ReviewAttempt godoc
// GET /api/attempts/:id/review
func (h *AttemptHandler) ReviewAttempt(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	review, err := h.attemptService.Review(c.Request.Context(), claims.UserID, c.Param("id"))
	if err != nil {
		failAttempt(c, err)
		return
	}

	response.Success(c, http.StatusOK, review)
}

// failAttempt maps attempt service errors to responses.
func failAttempt(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrTestNotFound), errors.Is(err, service.ErrAttemptNotFound):
		response.Fail(c, http.StatusNotFound, response.ErrNotFound)
	case errors.Is(err, service.ErrAttemptCompleted):
		response.Fail(c, http.StatusConflict, response.ErrAttemptCompleted)
	case errors.Is(err, service.ErrAttemptNotCompleted):
		response.Fail(c, http.StatusConflict, response.ErrAttemptNotDone)
	case errors.Is(err, service.ErrUnknownQuestion):
		response.Fail(c, http.StatusBadRequest, response.ErrUnknownQuestion)
	default:
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
	}
}
