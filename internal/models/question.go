package models

import (
	"time"

	"github.com/google/uuid"
)

// Option is one selectable choice within a Question. VotedUsers holds the
// session IDs that voted for this option; a session ID appears in at most
// one option's set per question.
type Option struct {
	Text       string   `json:"text"`
	Votes      int      `json:"votes"`
	VotedUsers []string `json:"votedUsers"`
}

// Question is a pollable item with an ordered set of options.
// TotalVotes always equals the sum of the option vote counts.
type Question struct {
	ID         uuid.UUID `json:"id"`
	Title      string    `json:"title"`
	Options    []Option  `json:"options"`
	IsActive   bool      `json:"isActive"`
	TotalVotes int       `json:"totalVotes"`
	CreatedAt  time.Time `json:"createdAt"`
}

// OptionResult is one row of a results projection.
type OptionResult struct {
	Text       string `json:"text"`
	Votes      int    `json:"votes"`
	Percentage int    `json:"percentage"`
}

// QuestionResults is the read-only aggregated view of a question.
type QuestionResults struct {
	QuestionID uuid.UUID      `json:"questionId"`
	Title      string         `json:"title"`
	TotalVotes int            `json:"totalVotes"`
	Options    []OptionResult `json:"options"`
}

// VoteUpdate is broadcast to a question room after a vote lands.
type VoteUpdate struct {
	QuestionID uuid.UUID `json:"questionId"`
	Options    []Option  `json:"options"`
	TotalVotes int       `json:"totalVotes"`
	VotedBy    string    `json:"votedBy"`
}
