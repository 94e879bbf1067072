package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"callcenter/internal/queue"
	"callcenter/internal/response"
)

// writeError maps service errors onto HTTP responses. notFoundCode names the
// resource the route looks up.
func (h *Handler) writeError(c *gin.Context, err error, notFoundCode string) {
	status, body := http.StatusInternalServerError, response.ErrorResponse{
		Code:    "DB_ERROR",
		Message: "Internal error",
	}
	switch {
	case errors.Is(err, queue.ErrAlreadyQueued):
		status, body = http.StatusConflict, response.ErrorResponse{Code: "ALREADY_IN_QUEUE", Message: "User already has an active queue entry"}
	case errors.Is(err, queue.ErrAlreadyConnected):
		status, body = http.StatusConflict, response.ErrorResponse{Code: "ALREADY_CONNECTED", Message: "User is already connected to a representative"}
	case errors.Is(err, queue.ErrNotQueued):
		status, body = http.StatusNotFound, response.ErrorResponse{Code: "NOT_IN_QUEUE", Message: "Active queue entry not found"}
	case errors.Is(err, queue.ErrNotFound):
		status, body = http.StatusNotFound, response.ErrorResponse{Code: notFoundCode, Message: "Not found"}
	case errors.Is(err, queue.ErrNotRepresentative):
		status, body = http.StatusBadRequest, response.ErrorResponse{Code: "NOT_REPRESENTATIVE", Message: "User is not a representative"}
	case errors.Is(err, queue.ErrAgentBusy):
		status, body = http.StatusConflict, response.ErrorResponse{Code: "AGENT_BUSY", Message: "Representative has an active call"}
	case errors.Is(err, queue.ErrCallNotActive):
		status, body = http.StatusConflict, response.ErrorResponse{Code: "CALL_NOT_ACTIVE", Message: "Call is not active"}
	case errors.Is(err, queue.ErrInvalidCallStatus):
		status, body = http.StatusBadRequest, response.ErrorResponse{Code: "INVALID_STATUS", Message: "Unknown call status"}
	case errors.Is(err, queue.ErrForbidden):
		status, body = http.StatusForbidden, response.ErrorResponse{Code: "FORBIDDEN", Message: "Operation not permitted"}
	default:
		h.logger.Error().Err(err).Str("path", c.FullPath()).Msg("request failed")
	}
	c.JSON(status, body)
}

func validationError(c *gin.Context, message string, err error) {
	body := response.ErrorResponse{Code: "VALIDATION_ERROR", Message: message}
	if err != nil {
		body.Details = err.Error()
	}
	c.JSON(http.StatusBadRequest, body)
}

func idParam(c *gin.Context, code string) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		c.JSON(http.StatusBadRequest, response.ErrorResponse{Code: code, Message: "Invalid identifier"})
		return 0, false
	}
	return uint(id), true
}
