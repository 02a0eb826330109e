package users

import (
	"context"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/live-polling/backend/internal/models"
	"github.com/live-polling/backend/pkg/response"
)

// RegisterRequest is the body for POST /users.
type RegisterRequest struct {
	Username  string `json:"username" binding:"required"`
	SessionID string `json:"sessionId" binding:"required"`
}

// Directory is the persistence surface the handler needs. *Repository
// implements it.
type Directory interface {
	Join(ctx context.Context, username, sessionID string) (*models.User, error)
	ListActive(ctx context.Context) ([]models.User, error)
}

// Handler handles user HTTP endpoints.
type Handler struct {
	dir Directory
}

// NewHandler creates a users handler.
func NewHandler(dir Directory) *Handler {
	return &Handler{dir: dir}
}

// Register handles POST /users.
func (h *Handler) Register(c *gin.Context) {
	var req RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "username and sessionId are required")
		return
	}
	username := strings.TrimSpace(req.Username)
	if username == "" {
		response.BadRequest(c, "username is required")
		return
	}
	u, err := h.dir.Join(c.Request.Context(), username, req.SessionID)
	if err != nil {
		response.Internal(c, "failed to register user")
		return
	}
	response.Created(c, u)
}

// ListActive handles GET /users/active.
func (h *Handler) ListActive(c *gin.Context) {
	list, err := h.dir.ListActive(c.Request.Context())
	if err != nil {
		response.Internal(c, "failed to list active users")
		return
	}
	response.OK(c, list)
}
