package handlers

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"callcenter/internal/queue"
	"callcenter/internal/response"
)

// Handler serves the queue, agent and call endpoints.
type Handler struct {
	svc    *queue.Service
	logger zerolog.Logger
}

func New(svc *queue.Service, logger zerolog.Logger) *Handler {
	return &Handler{svc: svc, logger: logger}
}

type joinRequest struct {
	IsCallback       bool     `json:"is_callback"`
	CallbackPhone    string   `json:"callback_phone"`
	Priority         int      `json:"priority" binding:"min=0,max=10"`
	SkillsRequired   []string `json:"skills_required"`
	PreferredAgentID *uint    `json:"preferred_agent_id"`
}

// JoinQueue adds the caller to the queue.
// POST /api/queue/join
func (h *Handler) JoinQueue(c *gin.Context) {
	var req joinRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		validationError(c, "Invalid join request", err)
		return
	}
	if req.IsCallback && req.CallbackPhone == "" {
		validationError(c, "callback_phone is required for callbacks", nil)
		return
	}

	joined, err := h.svc.Join(c.Request.Context(), c.GetUint("userID"), queue.JoinOptions{
		IsCallback:       req.IsCallback,
		CallbackPhone:    req.CallbackPhone,
		Priority:         req.Priority,
		SkillsRequired:   req.SkillsRequired,
		PreferredAgentID: req.PreferredAgentID,
	})
	if errors.Is(err, queue.ErrAlreadyQueued) {
		c.JSON(http.StatusConflict, response.ErrorResponse{
			Code:    "ALREADY_IN_QUEUE",
			Message: "User already has an active queue entry",
			Entry:   response.NewQueueEntryResponse(joined.Entry),
		})
		return
	}
	if err != nil {
		h.writeError(c, err, "USER_NOT_FOUND")
		return
	}

	message := "Joined the queue"
	if joined.Existing {
		message = "Already in the queue"
	}
	c.JSON(http.StatusOK, response.JoinResponse{
		Message:          message,
		Entry:            response.NewQueueEntryResponse(joined.Entry),
		EstimatedMinutes: joined.EstimatedMinutes,
	})
}

// LeaveQueue cancels the caller's waiting entry. A connected caller gets 409.
// POST /api/queue/leave
func (h *Handler) LeaveQueue(c *gin.Context) {
	if err := h.svc.Leave(c.Request.Context(), c.GetUint("userID")); err != nil {
		h.writeError(c, err, "NOT_IN_QUEUE")
		return
	}
	c.JSON(http.StatusOK, response.SuccessResponse{Message: "Left the queue"})
}

// GetPosition returns the caller's position, 0 once connected.
// GET /api/queue/position
func (h *Handler) GetPosition(c *gin.Context) {
	pos, err := h.svc.Position(c.Request.Context(), c.GetUint("userID"))
	if err != nil {
		h.writeError(c, err, "NOT_IN_QUEUE")
		return
	}
	c.JSON(http.StatusOK, response.PositionResponse{Position: pos})
}

// GetWaitTime returns the caller's estimated wait in minutes.
// GET /api/queue/wait-time
func (h *Handler) GetWaitTime(c *gin.Context) {
	minutes, err := h.svc.EstimatedWait(c.Request.Context(), c.GetUint("userID"))
	if err != nil {
		h.writeError(c, err, "NOT_IN_QUEUE")
		return
	}
	c.JSON(http.StatusOK, response.WaitTimeResponse{EstimatedMinutes: minutes})
}

// LiveQueue is the representative monitor.
// GET /api/queue/live
func (h *Handler) LiveQueue(c *gin.Context) {
	snap, err := h.svc.Snapshot(c.Request.Context())
	if err != nil {
		h.writeError(c, err, "NOT_FOUND")
		return
	}
	c.JSON(http.StatusOK, snap)
}
