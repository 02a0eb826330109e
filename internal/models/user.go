package models

import (
	"time"

	"github.com/google/uuid"
)

// User is a participant identified by a display name and the ephemeral
// session ID of their realtime connection. VotedQuestions is derived from
// the vote records, not stored separately.
type User struct {
	ID             uuid.UUID   `json:"id"`
	Username       string      `json:"username"`
	SessionID      string      `json:"sessionId"`
	Active         bool        `json:"active"`
	VotedQuestions []uuid.UUID `json:"votedQuestions"`
	JoinedAt       time.Time   `json:"joinedAt"`
}
