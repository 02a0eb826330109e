package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/live-polling/backend/internal/models"
	"github.com/live-polling/backend/internal/questions"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // allow all origins in dev; restrict in production
	},
}

// WSMessage is the WebSocket message envelope.
type WSMessage struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// PollService is the question surface the gateway needs.
// *questions.Service implements it.
type PollService interface {
	Create(ctx context.Context, title string, options []string) (*models.Question, error)
	Vote(ctx context.Context, questionID uuid.UUID, optionIndex int, voterID string) (*models.VoteUpdate, error)
	Results(ctx context.Context, questionID uuid.UUID) (*models.QuestionResults, error)
}

// UserDirectory is the participant surface the gateway needs.
// *users.Repository implements it.
type UserDirectory interface {
	Join(ctx context.Context, username, sessionID string) (*models.User, error)
	Leave(ctx context.Context, sessionID string) error
}

// Client represents a single WebSocket connection. Its ID is the ephemeral
// session identifier used as the voter ID for every vote cast over this
// connection.
type Client struct {
	ID       string
	Username string
	JoinedAt time.Time
	hub      *Hub
	polls    PollService
	users    UserDirectory
	conn     *websocket.Conn
	send     chan WSMessage
	logger   *zap.Logger
}

// ServeWs handles the WebSocket upgrade and runs the client loop.
func ServeWs(hub *Hub, logger *zap.Logger, polls PollService, users UserDirectory) gin.HandlerFunc {
	return func(c *gin.Context) {
		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			logger.Warn("websocket upgrade failed", zap.Error(err))
			return
		}

		client := &Client{
			ID:       uuid.New().String(),
			JoinedAt: time.Now(),
			hub:      hub,
			polls:    polls,
			users:    users,
			conn:     conn,
			send:     make(chan WSMessage, 256),
			logger:   logger,
		}
		hub.Register(client)
		// session handshake: the client learns its ephemeral voter identity
		hub.SendToClient(client.ID, "connected", gin.H{"sessionId": client.ID})
		hub.PublishAll("user_connected", gin.H{"sessionId": client.ID})
		go client.writePump()
		client.readPump()
	}
}

func (c *Client) readPump() {
	defer func() {
		c.hub.Unregister(c)
		_ = c.users.Leave(context.Background(), c.ID)
		c.hub.PublishAll("user_disconnected", gin.H{"sessionId": c.ID, "username": c.Username})
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(65536)
	_ = c.conn.SetReadDeadline(time.Now().Add(PongWait * time.Second))
	c.conn.SetPongHandler(func(string) error {
		_ = c.conn.SetReadDeadline(time.Now().Add(PongWait * time.Second))
		return nil
	})

	for {
		var msg WSMessage
		if err := c.conn.ReadJSON(&msg); err != nil {
			break
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(PongWait * time.Second))
		c.handleMessage(msg)
	}
}

func (c *Client) handleMessage(msg WSMessage) {
	ctx := context.Background()

	switch msg.Event {
	case "join_user":
		var payload struct {
			Username string `json:"username"`
		}
		if err := json.Unmarshal(msg.Data, &payload); err != nil || payload.Username == "" {
			return
		}
		u, err := c.users.Join(ctx, payload.Username, c.ID)
		if err != nil {
			c.logger.Warn("join failed", zap.String("session_id", c.ID), zap.Error(err))
			return
		}
		c.Username = u.Username
		c.hub.PublishAll("user_joined", gin.H{"username": u.Username, "sessionId": c.ID})

	case "join_question_room":
		var payload struct {
			QuestionID uuid.UUID `json:"questionId"`
		}
		if err := json.Unmarshal(msg.Data, &payload); err != nil || payload.QuestionID == uuid.Nil {
			return
		}
		c.hub.JoinRoom(c, payload.QuestionID)

	case "vote":
		var payload struct {
			QuestionID  uuid.UUID `json:"questionId"`
			OptionIndex int       `json:"optionIndex"`
		}
		if err := json.Unmarshal(msg.Data, &payload); err != nil {
			c.sendError("vote_error", "invalid vote payload")
			return
		}
		update, err := c.polls.Vote(ctx, payload.QuestionID, payload.OptionIndex, c.ID)
		if err != nil {
			c.sendError("vote_error", voteErrorMessage(err))
			return
		}
		c.hub.PublishToQuestion(payload.QuestionID, "vote_update", update)

	case "create_question":
		var payload struct {
			Title   string   `json:"title"`
			Options []string `json:"options"`
		}
		if err := json.Unmarshal(msg.Data, &payload); err != nil {
			c.sendError("question_error", "invalid question payload")
			return
		}
		q, err := c.polls.Create(ctx, payload.Title, payload.Options)
		if err != nil {
			if questions.IsValidation(err) {
				c.sendError("question_error", err.Error())
			} else {
				c.sendError("question_error", "failed to create question")
			}
			return
		}
		c.hub.PublishAll("new_question", gin.H{"question": q})
		c.hub.SendToClient(c.ID, "question_created", gin.H{"question": q})

	case "get_question_results":
		var payload struct {
			QuestionID uuid.UUID `json:"questionId"`
		}
		if err := json.Unmarshal(msg.Data, &payload); err != nil {
			c.sendError("question_error", "invalid results payload")
			return
		}
		res, err := c.polls.Results(ctx, payload.QuestionID)
		if err != nil {
			c.sendError("question_error", resultsErrorMessage(err))
			return
		}
		c.hub.SendToClient(c.ID, "question_results", res)

	default:
		// ignore
	}
}

func (c *Client) sendError(event, message string) {
	c.hub.SendToClient(c.ID, event, gin.H{"message": message})
}

func voteErrorMessage(err error) string {
	switch {
	case errors.Is(err, questions.ErrNotFound),
		errors.Is(err, questions.ErrInvalidOption),
		errors.Is(err, questions.ErrAlreadyVoted):
		return err.Error()
	default:
		return "failed to record vote"
	}
}

func resultsErrorMessage(err error) string {
	if errors.Is(err, questions.ErrNotFound) {
		return err.Error()
	}
	return "failed to load results"
}

func (c *Client) writePump() {
	ticker := time.NewTicker(PingInterval * time.Second)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			_ = c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteJSON(msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
