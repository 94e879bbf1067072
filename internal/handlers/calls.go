package handlers

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"callcenter/internal/auth"
	"callcenter/internal/models"
	"callcenter/internal/queue"
	"callcenter/internal/response"
)

type endCallRequest struct {
	Notes string `json:"notes" binding:"max=2000"`
}

// EndCall completes an active call and frees its representative.
// POST /api/calls/:id/end
func (h *Handler) EndCall(c *gin.Context) {
	h.closeCall(c, h.svc.EndCall)
}

// MarkCallMissed ends a call the customer never answered.
// POST /api/calls/:id/missed
func (h *Handler) MarkCallMissed(c *gin.Context) {
	h.closeCall(c, h.svc.MarkCallMissed)
}

type closeFunc func(ctx context.Context, actor models.User, callID uint, notes string) (*models.Call, error)

func (h *Handler) closeCall(c *gin.Context, closeFn closeFunc) {
	callID, ok := idParam(c, "INVALID_CALL_ID")
	if !ok {
		return
	}
	var req endCallRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		validationError(c, "Invalid end call request", err)
		return
	}

	call, err := closeFn(c.Request.Context(), auth.Actor(c), callID, req.Notes)
	if err != nil {
		h.writeError(c, err, "CALL_NOT_FOUND")
		return
	}
	c.JSON(http.StatusOK, response.NewCallResponse(call))
}

// ActiveCall returns the caller's active call as customer or representative.
// GET /api/calls/active
func (h *Handler) ActiveCall(c *gin.Context) {
	call, err := h.svc.ActiveCall(c.Request.Context(), c.GetUint("userID"))
	if errors.Is(err, queue.ErrNotFound) {
		c.JSON(http.StatusNotFound, response.ErrorResponse{Code: "NO_ACTIVE_CALL", Message: "No active call"})
		return
	}
	if err != nil {
		h.writeError(c, err, "CALL_NOT_FOUND")
		return
	}
	c.JSON(http.StatusOK, response.NewCallResponse(call))
}

// CallHistory lists the caller's calls, newest first. Admins may pass
// ?user_id= to read another user's history.
// GET /api/calls/history
func (h *Handler) CallHistory(c *gin.Context) {
	userID := c.GetUint("userID")
	if raw := c.Query("user_id"); raw != "" {
		if auth.Actor(c).Role != models.RoleAdmin {
			c.JSON(http.StatusForbidden, response.ErrorResponse{Code: "FORBIDDEN", Message: "Operation not permitted"})
			return
		}
		id, err := strconv.ParseUint(raw, 10, 64)
		if err != nil || id == 0 {
			c.JSON(http.StatusBadRequest, response.ErrorResponse{Code: "INVALID_USER_ID", Message: "Invalid identifier"})
			return
		}
		userID = uint(id)
	}

	calls, err := h.svc.CallHistory(c.Request.Context(), userID)
	if err != nil {
		h.writeError(c, err, "USER_NOT_FOUND")
		return
	}
	c.JSON(http.StatusOK, response.NewCallListResponse(calls))
}

// ListCalls is the admin view of calls, filtered by ?status=.
// GET /api/calls
func (h *Handler) ListCalls(c *gin.Context) {
	calls, err := h.svc.Calls(c.Request.Context(), models.CallStatus(c.Query("status")))
	if err != nil {
		h.writeError(c, err, "CALL_NOT_FOUND")
		return
	}
	c.JSON(http.StatusOK, response.NewCallListResponse(calls))
}
