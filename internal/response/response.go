package response

import (
	"time"

	"callcenter/internal/models"
)

// SuccessResponse is a plain acknowledgement.
type SuccessResponse struct {
	Message string `json:"message"`
}

// ErrorResponse is returned by every failing endpoint.
type ErrorResponse struct {
	// Machine readable code, e.g. NOT_IN_QUEUE
	Code string `json:"code"`

	Message string `json:"message"`

	// Optional details, never internal race information
	Details string `json:"details,omitempty"`

	// Set for ALREADY_IN_QUEUE
	Entry *QueueEntryResponse `json:"entry,omitempty"`
}

// QueueEntryResponse is the public view of a queue entry.
type QueueEntryResponse struct {
	ID            uint      `json:"id"`
	UserID        uint      `json:"user_id"`
	Position      int       `json:"position"`
	Status        string    `json:"status"`
	JoinedAt      time.Time `json:"joined_at"`
	IsCallback    bool      `json:"is_callback"`
	CallbackPhone string    `json:"callback_phone,omitempty"`
	Priority      int       `json:"priority"`
}

func NewQueueEntryResponse(e *models.QueueEntry) *QueueEntryResponse {
	if e == nil {
		return nil
	}
	return &QueueEntryResponse{
		ID:            e.ID,
		UserID:        e.UserID,
		Position:      e.Position,
		Status:        string(e.Status),
		JoinedAt:      e.JoinedAt,
		IsCallback:    e.IsCallback,
		CallbackPhone: e.CallbackPhone,
		Priority:      e.Priority,
	}
}

// JoinResponse answers POST /api/queue/join.
type JoinResponse struct {
	Message          string              `json:"message"`
	Entry            *QueueEntryResponse `json:"entry"`
	EstimatedMinutes int                 `json:"estimated_wait_time"`
}

type PositionResponse struct {
	Position int `json:"position"`
}

type WaitTimeResponse struct {
	EstimatedMinutes int `json:"estimated_wait_time"`
}

// AgentResponse is the public view of a representative.
type AgentResponse struct {
	ID             uint       `json:"id"`
	Name           string     `json:"name"`
	Surname        string     `json:"surname"`
	Email          string     `json:"email"`
	IsAvailable    bool       `json:"is_available"`
	AvailableSince *time.Time `json:"available_since,omitempty"`
	Skills         []string   `json:"skills,omitempty"`
}

func NewAgentResponse(u models.User) AgentResponse {
	return AgentResponse{
		ID:             u.ID,
		Name:           u.Name,
		Surname:        u.Surname,
		Email:          u.Email,
		IsAvailable:    u.IsAvailable,
		AvailableSince: u.AvailableSince,
		Skills:         u.SkillSet(),
	}
}

// CallResponse is the public view of a call.
type CallResponse struct {
	ID               uint       `json:"id"`
	CustomerID       uint       `json:"customer_id"`
	RepresentativeID uint       `json:"representative_id"`
	Status           string     `json:"status"`
	StartTime        time.Time  `json:"start_time"`
	EndTime          *time.Time `json:"end_time,omitempty"`
	DurationSeconds  int        `json:"duration_seconds,omitempty"`
	Notes            string     `json:"notes,omitempty"`
}

func NewCallResponse(c *models.Call) *CallResponse {
	if c == nil {
		return nil
	}
	return &CallResponse{
		ID:               c.ID,
		CustomerID:       c.CustomerID,
		RepresentativeID: c.RepresentativeID,
		Status:           string(c.Status),
		StartTime:        c.StartTime,
		EndTime:          c.EndTime,
		DurationSeconds:  int(c.Duration().Seconds()),
		Notes:            c.Notes,
	}
}

func NewCallListResponse(calls []models.Call) []*CallResponse {
	out := make([]*CallResponse, 0, len(calls))
	for i := range calls {
		out = append(out, NewCallResponse(&calls[i]))
	}
	return out
}
