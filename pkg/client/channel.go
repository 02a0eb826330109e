package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

var (
	// ErrNotConnected is returned when sending before the channel reaches
	// the connected state.
	ErrNotConnected = errors.New("channel is not connected")
	// ErrClosed is returned after explicit teardown.
	ErrClosed = errors.New("channel is closed")
	// ErrVotePending is returned when a vote for the same question is
	// already awaiting its outcome.
	ErrVotePending = errors.New("a vote is already pending for this question")
	// ErrCreatePending is returned when a question submission is already
	// awaiting its outcome.
	ErrCreatePending = errors.New("a question submission is already pending")
)

// ChannelError wraps a connection failure or loss of the realtime channel.
type ChannelError struct {
	Err error
}

func (e *ChannelError) Error() string { return "channel: " + e.Err.Error() }
func (e *ChannelError) Unwrap() error { return e.Err }

// ServerError is an error event pushed by the server (vote_error,
// question_error).
type ServerError struct {
	Message string
}

func (e *ServerError) Error() string { return e.Message }

// State is the channel lifecycle state.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateClosed:
		return "closed"
	default:
		return "disconnected"
	}
}

// Handlers is the dispatch table for inbound events: one typed callback per
// event name, fixed when the channel is created. Nil entries ignore the
// event.
type Handlers struct {
	OnUserJoined       func(username, sessionID string)
	OnUserConnected    func(sessionID string)
	OnUserDisconnected func(sessionID, username string)
	OnNewQuestion      func(Question)
	OnQuestionCreated  func(Question)
	OnVoteUpdate       func(VoteUpdate)
	OnQuestionResults  func(QuestionResults)
	OnVoteError        func(message string)
	OnQuestionError    func(message string)
	OnChannelError     func(error)
}

// ChannelConfig configures a realtime channel.
type ChannelConfig struct {
	// URL is the WebSocket endpoint, e.g. "ws://localhost:8080/ws".
	URL      string
	Handlers Handlers
	// OnReconnect runs after the channel re-establishes a dropped
	// connection. The event stream has a gap at that point, so the
	// callback must re-fetch full state over the request/response client.
	OnReconnect func()
	// MaxReconnectAttempts bounds automatic reconnection. Zero means the
	// default (5); negative disables reconnection entirely.
	MaxReconnectAttempts int
	// ReconnectBackoff is the initial retry delay, doubled per attempt.
	// Zero means the default (500ms).
	ReconnectBackoff time.Duration
	Logger           *zap.Logger
}

type wsMessage struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

type voteOutcome struct {
	update VoteUpdate
	err    error
}

type createOutcome struct {
	question Question
	err      error
}

// Channel is one persistent bidirectional event connection with an
// explicit Open/Close lifecycle. At most one should exist per session.
type Channel struct {
	cfg    ChannelConfig
	logger *zap.Logger

	mu           sync.Mutex
	conn         *websocket.Conn
	state        State
	sessionID    string
	voteWaiters  map[string]chan voteOutcome
	createWaiter chan createOutcome
	done         chan struct{}
}

// NewChannel creates a channel in the disconnected state.
func NewChannel(cfg ChannelConfig) *Channel {
	if cfg.MaxReconnectAttempts == 0 {
		cfg.MaxReconnectAttempts = 5
	}
	if cfg.ReconnectBackoff <= 0 {
		cfg.ReconnectBackoff = 500 * time.Millisecond
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Channel{
		cfg:         cfg,
		logger:      logger,
		state:       StateDisconnected,
		voteWaiters: make(map[string]chan voteOutcome),
		done:        make(chan struct{}),
	}
}

// Open dials the server and blocks until the server confirms the session,
// so a returned nil guarantees Send is usable. Nothing is buffered while
// connecting.
func (c *Channel) Open(ctx context.Context) error {
	c.mu.Lock()
	switch c.state {
	case StateClosed:
		c.mu.Unlock()
		return ErrClosed
	case StateConnecting, StateConnected:
		c.mu.Unlock()
		return errors.New("channel is already open")
	}
	c.state = StateConnecting
	c.mu.Unlock()

	conn, sessionID, err := c.dial(ctx)
	if err != nil {
		c.mu.Lock()
		if c.state == StateConnecting {
			c.state = StateDisconnected
		}
		c.mu.Unlock()
		return &ChannelError{Err: err}
	}

	c.mu.Lock()
	if c.state == StateClosed {
		c.mu.Unlock()
		_ = conn.Close()
		return ErrClosed
	}
	c.conn = conn
	c.sessionID = sessionID
	c.state = StateConnected
	c.mu.Unlock()

	go c.readLoop(conn)
	return nil
}

// dial connects and waits for the server's "connected" event carrying the
// session ID assigned to this connection.
func (c *Channel) dial(ctx context.Context) (*websocket.Conn, string, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.cfg.URL, nil)
	if err != nil {
		return nil, "", err
	}

	deadline := time.Now().Add(10 * time.Second)
	if d, ok := ctx.Deadline(); ok {
		deadline = d
	}
	_ = conn.SetReadDeadline(deadline)
	for {
		var msg wsMessage
		if err := conn.ReadJSON(&msg); err != nil {
			_ = conn.Close()
			return nil, "", fmt.Errorf("awaiting session: %w", err)
		}
		if msg.Event != "connected" {
			continue
		}
		var payload struct {
			SessionID string `json:"sessionId"`
		}
		if err := json.Unmarshal(msg.Data, &payload); err != nil || payload.SessionID == "" {
			_ = conn.Close()
			return nil, "", errors.New("malformed session handshake")
		}
		_ = conn.SetReadDeadline(time.Time{})
		return conn, payload.SessionID, nil
	}
}

// Close tears the channel down. No callbacks fire and no waiters resolve
// with server outcomes after Close returns.
func (c *Channel) Close() error {
	c.mu.Lock()
	if c.state == StateClosed {
		c.mu.Unlock()
		return nil
	}
	c.state = StateClosed
	conn := c.conn
	c.conn = nil
	close(c.done)
	c.mu.Unlock()

	c.failPending(ErrClosed)
	if conn != nil {
		return conn.Close()
	}
	return nil
}

// State returns the current lifecycle state.
func (c *Channel) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// SessionID returns the server-assigned session identifier. It changes on
// every (re)connect.
func (c *Channel) SessionID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessionID
}

// Send emits a fire-and-forget named event.
func (c *Channel) Send(event string, payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode %s: %w", event, err)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateConnected {
		if c.state == StateClosed {
			return ErrClosed
		}
		return ErrNotConnected
	}
	_ = c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	return c.conn.WriteJSON(wsMessage{Event: event, Data: data})
}

// JoinUser registers a display name for this session.
func (c *Channel) JoinUser(username string) error {
	return c.Send("join_user", map[string]string{"username": username})
}

// JoinQuestionRoom subscribes to one question's update broadcasts.
func (c *Channel) JoinQuestionRoom(questionID string) error {
	return c.Send("join_question_room", map[string]string{"questionId": questionID})
}

// RequestResults asks the server to push current aggregated results; the
// answer arrives via OnQuestionResults.
func (c *Channel) RequestResults(questionID string) error {
	return c.Send("get_question_results", map[string]string{"questionId": questionID})
}

// Vote casts a vote and waits for the matching vote_update or vote_error,
// bounded by ctx. A dropped response therefore surfaces as a context error
// instead of leaving the operation pending forever.
func (c *Channel) Vote(ctx context.Context, questionID string, optionIndex int) (VoteUpdate, error) {
	ch := make(chan voteOutcome, 1)
	c.mu.Lock()
	if c.state != StateConnected {
		state := c.state
		c.mu.Unlock()
		if state == StateClosed {
			return VoteUpdate{}, ErrClosed
		}
		return VoteUpdate{}, ErrNotConnected
	}
	if _, ok := c.voteWaiters[questionID]; ok {
		c.mu.Unlock()
		return VoteUpdate{}, ErrVotePending
	}
	c.voteWaiters[questionID] = ch
	c.mu.Unlock()

	payload := map[string]interface{}{"questionId": questionID, "optionIndex": optionIndex}
	if err := c.Send("vote", payload); err != nil {
		c.removeVoteWaiter(questionID)
		return VoteUpdate{}, err
	}

	select {
	case <-ctx.Done():
		c.removeVoteWaiter(questionID)
		return VoteUpdate{}, ctx.Err()
	case out := <-ch:
		return out.update, out.err
	}
}

// CreateQuestion submits a question and waits for question_created or
// question_error, bounded by ctx.
func (c *Channel) CreateQuestion(ctx context.Context, data CreateQuestionData) (Question, error) {
	ch := make(chan createOutcome, 1)
	c.mu.Lock()
	if c.state != StateConnected {
		state := c.state
		c.mu.Unlock()
		if state == StateClosed {
			return Question{}, ErrClosed
		}
		return Question{}, ErrNotConnected
	}
	if c.createWaiter != nil {
		c.mu.Unlock()
		return Question{}, ErrCreatePending
	}
	c.createWaiter = ch
	c.mu.Unlock()

	if err := c.Send("create_question", data); err != nil {
		c.removeCreateWaiter()
		return Question{}, err
	}

	select {
	case <-ctx.Done():
		c.removeCreateWaiter()
		return Question{}, ctx.Err()
	case out := <-ch:
		return out.question, out.err
	}
}

func (c *Channel) readLoop(conn *websocket.Conn) {
	for {
		var msg wsMessage
		if err := conn.ReadJSON(&msg); err != nil {
			select {
			case <-c.done:
				return
			default:
			}
			newConn, rerr := c.reconnect(err)
			if rerr != nil {
				c.mu.Lock()
				if c.state != StateClosed {
					c.state = StateDisconnected
				}
				c.conn = nil
				c.mu.Unlock()
				c.failPending(&ChannelError{Err: err})
				if h := c.cfg.Handlers.OnChannelError; h != nil && !errors.Is(rerr, ErrClosed) {
					h(&ChannelError{Err: err})
				}
				return
			}
			conn = newConn
			continue
		}
		c.dispatch(msg)
	}
}

// reconnect retries the connection with exponential backoff. Responses to
// anything in flight were lost with the old connection, so pending waiters
// fail first; after a successful reconnect OnReconnect must re-fetch full
// state since the event stream is not gap-free.
func (c *Channel) reconnect(cause error) (*websocket.Conn, error) {
	c.failPending(&ChannelError{Err: cause})
	if c.cfg.MaxReconnectAttempts < 0 {
		return nil, &ChannelError{Err: cause}
	}

	c.mu.Lock()
	if c.state == StateClosed {
		c.mu.Unlock()
		return nil, ErrClosed
	}
	c.state = StateConnecting
	c.conn = nil
	c.mu.Unlock()

	backoff := c.cfg.ReconnectBackoff
	for attempt := 1; attempt <= c.cfg.MaxReconnectAttempts; attempt++ {
		select {
		case <-c.done:
			return nil, ErrClosed
		case <-time.After(backoff):
		}
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		conn, sessionID, err := c.dial(ctx)
		cancel()
		if err != nil {
			c.logger.Warn("reconnect attempt failed", zap.Int("attempt", attempt), zap.Error(err))
			backoff *= 2
			continue
		}

		c.mu.Lock()
		if c.state == StateClosed {
			c.mu.Unlock()
			_ = conn.Close()
			return nil, ErrClosed
		}
		c.conn = conn
		c.sessionID = sessionID
		c.state = StateConnected
		c.mu.Unlock()

		c.logger.Info("channel reconnected", zap.Int("attempt", attempt), zap.String("session_id", sessionID))
		if c.cfg.OnReconnect != nil {
			c.cfg.OnReconnect()
		}
		return conn, nil
	}
	return nil, fmt.Errorf("reconnect: gave up after %d attempts: %w", c.cfg.MaxReconnectAttempts, cause)
}

func (c *Channel) dispatch(msg wsMessage) {
	h := c.cfg.Handlers
	switch msg.Event {
	case "vote_update":
		var update VoteUpdate
		if json.Unmarshal(msg.Data, &update) != nil {
			return
		}
		c.mu.Lock()
		waiter := c.voteWaiters[update.QuestionID]
		delete(c.voteWaiters, update.QuestionID)
		c.mu.Unlock()
		if waiter != nil {
			waiter <- voteOutcome{update: update}
		}
		if h.OnVoteUpdate != nil {
			h.OnVoteUpdate(update)
		}

	case "vote_error":
		var payload struct {
			Message string `json:"message"`
		}
		if json.Unmarshal(msg.Data, &payload) != nil {
			return
		}
		// the event carries no question id, so every pending vote fails
		c.mu.Lock()
		waiters := c.voteWaiters
		c.voteWaiters = make(map[string]chan voteOutcome)
		c.mu.Unlock()
		for _, waiter := range waiters {
			waiter <- voteOutcome{err: &ServerError{Message: payload.Message}}
		}
		if h.OnVoteError != nil {
			h.OnVoteError(payload.Message)
		}

	case "question_created":
		var payload struct {
			Question Question `json:"question"`
		}
		if json.Unmarshal(msg.Data, &payload) != nil {
			return
		}
		c.mu.Lock()
		waiter := c.createWaiter
		c.createWaiter = nil
		c.mu.Unlock()
		if waiter != nil {
			waiter <- createOutcome{question: payload.Question}
		}
		if h.OnQuestionCreated != nil {
			h.OnQuestionCreated(payload.Question)
		}

	case "question_error":
		var payload struct {
			Message string `json:"message"`
		}
		if json.Unmarshal(msg.Data, &payload) != nil {
			return
		}
		c.mu.Lock()
		waiter := c.createWaiter
		c.createWaiter = nil
		c.mu.Unlock()
		if waiter != nil {
			waiter <- createOutcome{err: &ServerError{Message: payload.Message}}
		}
		if h.OnQuestionError != nil {
			h.OnQuestionError(payload.Message)
		}

	case "new_question":
		var payload struct {
			Question Question `json:"question"`
		}
		if json.Unmarshal(msg.Data, &payload) != nil {
			return
		}
		if h.OnNewQuestion != nil {
			h.OnNewQuestion(payload.Question)
		}

	case "question_results":
		var res QuestionResults
		if json.Unmarshal(msg.Data, &res) != nil {
			return
		}
		if h.OnQuestionResults != nil {
			h.OnQuestionResults(res)
		}

	case "user_joined":
		var payload struct {
			Username  string `json:"username"`
			SessionID string `json:"sessionId"`
		}
		if json.Unmarshal(msg.Data, &payload) != nil {
			return
		}
		if h.OnUserJoined != nil {
			h.OnUserJoined(payload.Username, payload.SessionID)
		}

	case "user_connected":
		var payload struct {
			SessionID string `json:"sessionId"`
		}
		if json.Unmarshal(msg.Data, &payload) != nil {
			return
		}
		if h.OnUserConnected != nil {
			h.OnUserConnected(payload.SessionID)
		}

	case "user_disconnected":
		var payload struct {
			SessionID string `json:"sessionId"`
			Username  string `json:"username"`
		}
		if json.Unmarshal(msg.Data, &payload) != nil {
			return
		}
		if h.OnUserDisconnected != nil {
			h.OnUserDisconnected(payload.SessionID, payload.Username)
		}

	default:
		// ignore
	}
}

func (c *Channel) removeVoteWaiter(questionID string) {
	c.mu.Lock()
	delete(c.voteWaiters, questionID)
	c.mu.Unlock()
}

func (c *Channel) removeCreateWaiter() {
	c.mu.Lock()
	c.createWaiter = nil
	c.mu.Unlock()
}

func (c *Channel) failPending(err error) {
	c.mu.Lock()
	waiters := c.voteWaiters
	c.voteWaiters = make(map[string]chan voteOutcome)
	createWaiter := c.createWaiter
	c.createWaiter = nil
	c.mu.Unlock()

	for _, waiter := range waiters {
		waiter <- voteOutcome{err: err}
	}
	if createWaiter != nil {
		createWaiter <- createOutcome{err: err}
	}
}
