package dto

import (
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/trace"

	"github.com/tspence/api-key-generator/pkg/constants"
	"github.com/tspence/api-key-generator/pkg/errors"
)

// APIResponse is the envelope of every JSON response.
type APIResponse struct {
	Success   bool                  `json:"success"`
	Data      interface{}           `json:"data,omitempty"`
	Error     *errors.ErrorResponse `json:"error,omitempty"`
	TraceID   string                `json:"trace_id,omitempty"`
	RequestID string                `json:"request_id,omitempty"`
	Timestamp time.Time             `json:"timestamp"`
}

// SendSuccess writes data with status.
func SendSuccess(c *gin.Context, status int, data interface{}) {
	c.JSON(status, newEnvelope(c, true, data, nil))
}

// SendError writes err with the HTTP status of its code. Errors that are not
// ServiceErrors are reported as internal errors without detail.
func SendError(c *gin.Context, err error) {
	c.JSON(errors.StatusOf(err), newEnvelope(c, false, nil, errors.ToGenericErrorResponse(err)))
}

func newEnvelope(c *gin.Context, ok bool, data interface{}, errResp *errors.ErrorResponse) *APIResponse {
	resp := &APIResponse{
		Success:   ok,
		Data:      data,
		Error:     errResp,
		Timestamp: time.Now().UTC(),
	}
	ctx := c.Request.Context()
	if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
		resp.TraceID = sc.TraceID().String()
	}
	if requestID, ok := ctx.Value(constants.ContextKeyRequestID).(string); ok {
		resp.RequestID = requestID
	}
	return resp
}
