package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// RequestError reports a failed API call: a non-2xx response or a transport
// failure (StatusCode 0). The message comes from the response body's error
// field when present. Calls are never retried automatically; retrying is
// the caller's decision.
type RequestError struct {
	StatusCode int
	Message    string
}

func (e *RequestError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("request failed: %s", e.Message)
	}
	return fmt.Sprintf("request failed (%d): %s", e.StatusCode, e.Message)
}

// Client is a stateless request/response client for the polling API. Every
// method issues exactly one HTTP call.
type Client struct {
	baseURL string
	http    *http.Client
}

// New creates an API client for the given base URL (e.g.
// "http://localhost:8080"). A nil httpClient gets a 15s-timeout default.
func New(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	return &Client{baseURL: strings.TrimRight(baseURL, "/"), http: httpClient}
}

// ListQuestions returns all questions, newest first.
func (c *Client) ListQuestions(ctx context.Context) ([]Question, error) {
	var list []Question
	if err := c.do(ctx, http.MethodGet, "/questions", nil, &list); err != nil {
		return nil, err
	}
	return list, nil
}

// GetQuestion returns one question by ID.
func (c *Client) GetQuestion(ctx context.Context, id string) (*Question, error) {
	var q Question
	if err := c.do(ctx, http.MethodGet, "/questions/"+id, nil, &q); err != nil {
		return nil, err
	}
	return &q, nil
}

// CreateQuestion submits a new question and returns it with its assigned ID.
func (c *Client) CreateQuestion(ctx context.Context, data CreateQuestionData) (*Question, error) {
	var q Question
	if err := c.do(ctx, http.MethodPost, "/questions", data, &q); err != nil {
		return nil, err
	}
	return &q, nil
}

// CastVote votes for one option on behalf of voterID and returns the
// updated question. Voting twice on the same question yields a 409
// RequestError and changes nothing.
func (c *Client) CastVote(ctx context.Context, questionID string, optionIndex int, voterID string) (*Question, error) {
	body := map[string]interface{}{"optionIndex": optionIndex, "userId": voterID}
	var q Question
	if err := c.do(ctx, http.MethodPut, "/questions/"+questionID+"/vote", body, &q); err != nil {
		return nil, err
	}
	return &q, nil
}

// GetResults returns the aggregated results for one question.
func (c *Client) GetResults(ctx context.Context, questionID string) (*QuestionResults, error) {
	var res QuestionResults
	if err := c.do(ctx, http.MethodGet, "/questions/"+questionID+"/results", nil, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// Leaderboard returns the most-voted questions.
func (c *Client) Leaderboard(ctx context.Context) ([]Question, error) {
	var list []Question
	if err := c.do(ctx, http.MethodGet, "/questions/leaderboard", nil, &list); err != nil {
		return nil, err
	}
	return list, nil
}

// RegisterUser registers a display name for a realtime session.
func (c *Client) RegisterUser(ctx context.Context, username, sessionID string) (*User, error) {
	body := map[string]string{"username": username, "sessionId": sessionID}
	var u User
	if err := c.do(ctx, http.MethodPost, "/users", body, &u); err != nil {
		return nil, err
	}
	return &u, nil
}

// ActiveUsers returns currently connected participants.
func (c *Client) ActiveUsers(ctx context.Context) ([]User, error) {
	var list []User
	if err := c.do(ctx, http.MethodGet, "/users/active", nil, &list); err != nil {
		return nil, err
	}
	return list, nil
}

// Health checks server liveness.
func (c *Client) Health(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/health", nil, nil)
}

func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) error {
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return &RequestError{StatusCode: 0, Message: err.Error()}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var errBody struct {
			Error string `json:"error"`
		}
		message := "an error occurred"
		if json.NewDecoder(resp.Body).Decode(&errBody) == nil && errBody.Error != "" {
			message = errBody.Error
		}
		return &RequestError{StatusCode: resp.StatusCode, Message: message}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
