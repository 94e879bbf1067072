package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"callcenter/internal/auth"
	"callcenter/internal/models"
	"callcenter/internal/response"
)

// ListAgents returns every representative.
// GET /api/agents
func (h *Handler) ListAgents(c *gin.Context) {
	agents, err := h.svc.Agents(c.Request.Context())
	if err != nil {
		h.writeError(c, err, "AGENT_NOT_FOUND")
		return
	}
	out := make([]response.AgentResponse, 0, len(agents))
	for _, a := range agents {
		out = append(out, response.NewAgentResponse(a))
	}
	c.JSON(http.StatusOK, out)
}

type availabilityRequest struct {
	IsAvailable *bool `json:"is_available" binding:"required"`
}

// SetAvailability toggles a representative. Representatives may only change
// themselves.
// PUT /api/agents/:id/availability
func (h *Handler) SetAvailability(c *gin.Context) {
	agentID, ok := idParam(c, "INVALID_AGENT_ID")
	if !ok {
		return
	}
	actor := auth.Actor(c)
	if actor.Role != models.RoleAdmin && actor.ID != agentID {
		c.JSON(http.StatusForbidden, response.ErrorResponse{Code: "FORBIDDEN", Message: "Operation not permitted"})
		return
	}

	var req availabilityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		validationError(c, "is_available is required", err)
		return
	}

	agent, err := h.svc.SetAgentAvailability(c.Request.Context(), agentID, *req.IsAvailable)
	if err != nil {
		h.writeError(c, err, "AGENT_NOT_FOUND")
		return
	}
	c.JSON(http.StatusOK, response.NewAgentResponse(*agent))
}
