package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/stemsi/aptiq-proctor/internal/response"
	"github.com/stemsi/aptiq-proctor/internal/service"
)

// TestHandler serves the test catalog.
type TestHandler struct {
	testService *service.TestService
}

// NewTestHandler creates a new TestHandler.
func NewTestHandler(testService *service.TestService) *TestHandler {
	return &TestHandler{testService: testService}
}

// ListTests godoc
// GET /api/tests
func (h *TestHandler) ListTests(c *gin.Context) {
	response.Success(c, http.StatusOK, h.testService.ListTests(c.Request.Context()))
}

// GetTest godoc
// GET /api/tests/:id
// Returns the data shown on the instructions screen.
func (h *TestHandler) GetTest(c *gin.Context) {
	test, err := h.testService.GetTest(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Fail(c, http.StatusNotFound, response.ErrNotFound)
		return
	}
	response.Success(c, http.StatusOK, test)
}
