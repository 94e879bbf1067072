package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"callcenter/internal/auth"
	"callcenter/internal/models"
)

// RegisterRoutes mounts the API on r. authMW identifies the caller; ws is the
// websocket upgrade handler.
func RegisterRoutes(r gin.IRouter, h *Handler, authMW gin.HandlerFunc, ws gin.HandlerFunc) {
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	staff := auth.RequireRole(models.RoleRepresentative, models.RoleAdmin)

	queueGroup := r.Group("/api/queue", authMW)
	{
		queueGroup.POST("/join", h.JoinQueue)
		queueGroup.POST("/leave", h.LeaveQueue)
		queueGroup.GET("/position", h.GetPosition)
		queueGroup.GET("/wait-time", h.GetWaitTime)
		queueGroup.GET("/ws", ws)
		queueGroup.GET("/live", staff, h.LiveQueue)
	}

	agents := r.Group("/api/agents", authMW)
	{
		agents.GET("", auth.RequireRole(models.RoleAdmin), h.ListAgents)
		agents.PUT("/:id/availability", staff, h.SetAvailability)
	}

	calls := r.Group("/api/calls", authMW)
	{
		calls.GET("", auth.RequireRole(models.RoleAdmin), h.ListCalls)
		calls.GET("/active", h.ActiveCall)
		calls.GET("/history", h.CallHistory)
		calls.POST("/:id/end", staff, h.EndCall)
		calls.POST("/:id/missed", staff, h.MarkCallMissed)
	}
}
