package response

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// ErrorBody is the error response. Clients read the message from "error";
// 409 responses on attempt start also carry the open attempt's id.
type ErrorBody struct {
	Error     string            `json:"error"`
	Code      ErrCode           `json:"code"`
	Fields    map[string]string `json:"fields,omitempty"`
	AttemptID string            `json:"attempt_id,omitempty"`
	RequestID string            `json:"request_id,omitempty"`
}

// ────────────────────────────────────────────────────────────────────────────
// Helper builders
// ────────────────────────────────────────────────────────────────────────────

// Success sends data as the JSON body with the given status code.
func Success(c *gin.Context, statusCode int, data interface{}) {
	c.JSON(statusCode, data)
}

// Fail sends an error response with an error code and no field-level details.
func Fail(c *gin.Context, statusCode int, code ErrCode) {
	c.JSON(statusCode, buildError(c, code))
}

// FailWithFields sends an error response with field-level validation details.
func FailWithFields(c *gin.Context, statusCode int, code ErrCode, fields map[string]string) {
	body := buildError(c, code)
	body.Fields = fields
	c.JSON(statusCode, body)
}

// Conflict sends 409 with the id of the attempt that is already open.
func Conflict(c *gin.Context, attemptID string) {
	body := buildError(c, ErrAttemptInProgress)
	body.AttemptID = attemptID
	c.JSON(http.StatusConflict, body)
}

// AbortFail aborts the middleware chain and sends an error response.
func AbortFail(c *gin.Context, statusCode int, code ErrCode) {
	c.AbortWithStatusJSON(statusCode, buildError(c, code))
}

// ────────────────────────────────────────────────────────────────────────────
// Internal helpers
// ────────────────────────────────────────────────────────────────────────────

func buildError(c *gin.Context, code ErrCode) ErrorBody {
	id, _ := c.Get(ContextKeyRequestID)
	reqID, _ := id.(string)
	return ErrorBody{
		Error:     GetMessage(code),
		Code:      code,
		RequestID: reqID,
	}
}
