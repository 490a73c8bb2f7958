package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tspence/api-key-generator/internal/application/dto"
	"github.com/tspence/api-key-generator/internal/application/service"
	"github.com/tspence/api-key-generator/pkg/constants"
	"github.com/tspence/api-key-generator/pkg/errors"
)

// KeyHandler serves the key issuing and self-service endpoints.
type KeyHandler struct {
	keys service.KeyAppService
}

// NewKeyHandler creates a new KeyHandler.
func NewKeyHandler(keys service.KeyAppService) *KeyHandler {
	return &KeyHandler{keys: keys}
}

// IssueKey handles POST /v1/keys.
func (h *KeyHandler) IssueKey(c *gin.Context) {
	var req dto.IssueKeyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		dto.SendError(c, errors.WrapError(err, constants.ErrCodeInvalidRequest, "request body is not valid JSON"))
		return
	}

	resp, err := h.keys.IssueKey(c.Request.Context(), &req)
	if err != nil {
		dto.SendError(c, err)
		return
	}
	c.Header("Location", "/v1/keys/self")
	dto.SendSuccess(c, http.StatusCreated, resp)
}

// Self handles GET /v1/keys/self.
func (h *KeyHandler) Self(c *gin.Context) {
	key := service.KeyFromContext(c.Request.Context())
	if key == nil {
		dto.SendError(c, errors.ErrInternal("route is missing key authentication"))
		return
	}
	dto.SendSuccess(c, http.StatusOK, dto.NewKeyInfoResponse(key))
}

// RevokeSelf handles DELETE /v1/keys/self, revoking the presented key.
func (h *KeyHandler) RevokeSelf(c *gin.Context) {
	key := service.KeyFromContext(c.Request.Context())
	if key == nil {
		dto.SendError(c, errors.ErrInternal("route is missing key authentication"))
		return
	}
	if err := h.keys.RevokeKey(c.Request.Context(), key.ID); err != nil {
		dto.SendError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
