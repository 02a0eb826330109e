package questions

import (
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/live-polling/backend/pkg/response"
)

// CreateRequest is the body for POST /questions.
type CreateRequest struct {
	Title   string   `json:"title"`
	Options []string `json:"options"`
}

// VoteRequest is the body for PUT /questions/:id/vote. OptionIndex is a
// pointer so index 0 survives required-field binding.
type VoteRequest struct {
	OptionIndex *int   `json:"optionIndex" binding:"required"`
	UserID      string `json:"userId" binding:"required"`
}

// Broadcaster pushes events to connected realtime clients. *realtime.Hub
// implements it.
type Broadcaster interface {
	PublishAll(event string, payload interface{})
	PublishToQuestion(questionID uuid.UUID, event string, payload interface{})
}

// Handler handles question HTTP endpoints.
type Handler struct {
	svc *Service
	hub Broadcaster
}

// NewHandler creates a questions handler.
func NewHandler(svc *Service, hub Broadcaster) *Handler {
	return &Handler{svc: svc, hub: hub}
}

// List handles GET /questions.
func (h *Handler) List(c *gin.Context) {
	list, err := h.svc.List(c.Request.Context())
	if err != nil {
		response.Internal(c, "failed to list questions")
		return
	}
	response.OK(c, list)
}

// Get handles GET /questions/:id.
func (h *Handler) Get(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid question id")
		return
	}
	q, err := h.svc.Get(c.Request.Context(), id)
	if errors.Is(err, ErrNotFound) {
		response.NotFound(c, ErrNotFound.Error())
		return
	}
	if err != nil {
		response.Internal(c, "failed to load question")
		return
	}
	response.OK(c, q)
}

// Create handles POST /questions. The new question is broadcast to every
// connected client.
func (h *Handler) Create(c *gin.Context) {
	var req CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request body")
		return
	}
	q, err := h.svc.Create(c.Request.Context(), req.Title, req.Options)
	if err != nil {
		if IsValidation(err) {
			response.BadRequest(c, err.Error())
			return
		}
		response.Internal(c, "failed to create question")
		return
	}
	h.hub.PublishAll("new_question", gin.H{"question": q})
	response.Created(c, q)
}

// Vote handles PUT /questions/:id/vote. Refreshed counts are broadcast to
// the question's room; the response carries the updated question.
func (h *Handler) Vote(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid question id")
		return
	}
	var req VoteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "optionIndex and userId are required")
		return
	}
	update, err := h.svc.Vote(c.Request.Context(), id, *req.OptionIndex, req.UserID)
	switch {
	case errors.Is(err, ErrNotFound):
		response.NotFound(c, ErrNotFound.Error())
		return
	case errors.Is(err, ErrInvalidOption):
		response.BadRequest(c, ErrInvalidOption.Error())
		return
	case errors.Is(err, ErrAlreadyVoted):
		response.Conflict(c, ErrAlreadyVoted.Error())
		return
	case err != nil:
		response.Internal(c, "failed to record vote")
		return
	}
	h.hub.PublishToQuestion(id, "vote_update", update)

	q, err := h.svc.Get(c.Request.Context(), id)
	if err != nil {
		response.Internal(c, "failed to load question")
		return
	}
	response.OK(c, q)
}

// Results handles GET /questions/:id/results.
func (h *Handler) Results(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid question id")
		return
	}
	res, err := h.svc.Results(c.Request.Context(), id)
	if errors.Is(err, ErrNotFound) {
		response.NotFound(c, ErrNotFound.Error())
		return
	}
	if err != nil {
		response.Internal(c, "failed to load results")
		return
	}
	response.OK(c, res)
}

// Leaderboard handles GET /questions/leaderboard.
func (h *Handler) Leaderboard(c *gin.Context) {
	list, err := h.svc.Leaderboard(c.Request.Context())
	if err != nil {
		response.Internal(c, "failed to load leaderboard")
		return
	}
	response.OK(c, list)
}
