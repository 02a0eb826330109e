// Package client is the Go client for the live-polling API: a stateless
// request/response client over HTTP plus a realtime event channel over
// WebSocket. The server remains the sole source of truth; the client holds
// no durable state.
package client

import "time"

// Option is one selectable choice within a question.
type Option struct {
	Text       string   `json:"text"`
	Votes      int      `json:"votes"`
	VotedUsers []string `json:"votedUsers"`
}

// Question is a pollable item with an ordered set of options.
type Question struct {
	ID         string    `json:"id"`
	Title      string    `json:"title"`
	Options    []Option  `json:"options"`
	IsActive   bool      `json:"isActive"`
	TotalVotes int       `json:"totalVotes"`
	CreatedAt  time.Time `json:"createdAt"`
}

// HasVoted reports whether the voter appears in any option's voter set.
// Deduplication is enforced server-side; this only mirrors fetched state.
func (q Question) HasVoted(voterID string) bool {
	for _, opt := range q.Options {
		for _, id := range opt.VotedUsers {
			if id == voterID {
				return true
			}
		}
	}
	return false
}

// OptionResult is one row of an aggregated results view.
type OptionResult struct {
	Text       string `json:"text"`
	Votes      int    `json:"votes"`
	Percentage int    `json:"percentage"`
}

// QuestionResults is the aggregated read-only view of a question.
type QuestionResults struct {
	QuestionID string         `json:"questionId"`
	Title      string         `json:"title"`
	TotalVotes int            `json:"totalVotes"`
	Options    []OptionResult `json:"options"`
}

// VoteUpdate carries refreshed counts after a vote lands.
type VoteUpdate struct {
	QuestionID string   `json:"questionId"`
	Options    []Option `json:"options"`
	TotalVotes int      `json:"totalVotes"`
	VotedBy    string   `json:"votedBy"`
}

// User is a registered participant.
type User struct {
	ID             string    `json:"id"`
	Username       string    `json:"username"`
	SessionID      string    `json:"sessionId"`
	Active         bool      `json:"active"`
	VotedQuestions []string  `json:"votedQuestions"`
	JoinedAt       time.Time `json:"joinedAt"`
}

// CreateQuestionData is the payload for creating a question.
type CreateQuestionData struct {
	Title   string   `json:"title"`
	Options []string `json:"options"`
}
