package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testUpgrader = websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }}

// newWSServer runs a scripted WebSocket server. It performs the session
// handshake, then hands the connection to script.
func newWSServer(t *testing.T, script func(conn *websocket.Conn)) (*httptest.Server, string) {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		require.NoError(t, conn.WriteJSON(wsMessage{Event: "connected", Data: json.RawMessage(`{"sessionId":"sess-1"}`)}))
		if script != nil {
			script(conn)
		}
	}))
	return srv, "ws" + strings.TrimPrefix(srv.URL, "http")
}

// echoVotes reads vote events and answers each with a vote_update.
func echoVotes(conn *websocket.Conn) {
	for {
		var msg wsMessage
		if err := conn.ReadJSON(&msg); err != nil {
			return
		}
		if msg.Event != "vote" {
			continue
		}
		var vote struct {
			QuestionID  string `json:"questionId"`
			OptionIndex int    `json:"optionIndex"`
		}
		if json.Unmarshal(msg.Data, &vote) != nil {
			return
		}
		update, _ := json.Marshal(VoteUpdate{
			QuestionID: vote.QuestionID,
			Options:    []Option{{Text: "A", Votes: 1, VotedUsers: []string{"sess-1"}}},
			TotalVotes: 1,
			VotedBy:    "sess-1",
		})
		if conn.WriteJSON(wsMessage{Event: "vote_update", Data: update}) != nil {
			return
		}
	}
}

func openChannel(t *testing.T, url string, handlers Handlers) *Channel {
	t.Helper()
	ch := NewChannel(ChannelConfig{URL: url, Handlers: handlers, MaxReconnectAttempts: -1})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, ch.Open(ctx))
	t.Cleanup(func() { _ = ch.Close() })
	return ch
}

func TestOpenHandshake(t *testing.T) {
	srv, url := newWSServer(t, echoVotes)
	defer srv.Close()

	ch := openChannel(t, url, Handlers{})
	assert.Equal(t, StateConnected, ch.State())
	assert.Equal(t, "sess-1", ch.SessionID())

	require.NoError(t, ch.Close())
	assert.Equal(t, StateClosed, ch.State())
	assert.Equal(t, ErrClosed, ch.Send("vote", nil))
}

func TestSendBeforeOpen(t *testing.T) {
	ch := NewChannel(ChannelConfig{URL: "ws://127.0.0.1:1/ws"})
	assert.ErrorIs(t, ch.JoinUser("ana"), ErrNotConnected)
	_, err := ch.Vote(context.Background(), "q1", 0)
	assert.ErrorIs(t, err, ErrNotConnected)
}

func TestOpenFailureIsChannelError(t *testing.T) {
	ch := NewChannel(ChannelConfig{URL: "ws://127.0.0.1:1/ws"})
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	err := ch.Open(ctx)
	require.Error(t, err)
	var chanErr *ChannelError
	assert.True(t, errors.As(err, &chanErr))
	assert.Equal(t, StateDisconnected, ch.State())
}

func TestVoteResolvesOnUpdate(t *testing.T) {
	srv, url := newWSServer(t, echoVotes)
	defer srv.Close()

	updates := make(chan VoteUpdate, 1)
	ch := openChannel(t, url, Handlers{OnVoteUpdate: func(u VoteUpdate) { updates <- u }})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	update, err := ch.Vote(ctx, "q1", 0)
	require.NoError(t, err)
	assert.Equal(t, "q1", update.QuestionID)
	assert.Equal(t, 1, update.TotalVotes)

	select {
	case u := <-updates:
		assert.Equal(t, "q1", u.QuestionID, "typed handler fires too")
	case <-time.After(2 * time.Second):
		t.Fatal("vote_update handler not invoked")
	}
}

func TestVoteRejectedByServer(t *testing.T) {
	srv, url := newWSServer(t, func(conn *websocket.Conn) {
		var msg wsMessage
		if conn.ReadJSON(&msg) != nil {
			return
		}
		_ = conn.WriteJSON(wsMessage{Event: "vote_error", Data: json.RawMessage(`{"message":"you have already voted on this question"}`)})
		// hold the connection open until the client is done
		_ = conn.ReadJSON(&msg)
	})
	defer srv.Close()

	ch := openChannel(t, url, Handlers{})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, err := ch.Vote(ctx, "q1", 0)
	var srvErr *ServerError
	require.True(t, errors.As(err, &srvErr))
	assert.Equal(t, "you have already voted on this question", srvErr.Message)
}

func TestVoteTimesOutWithoutResponse(t *testing.T) {
	srv, url := newWSServer(t, func(conn *websocket.Conn) {
		// swallow everything, never answer
		for {
			var msg wsMessage
			if conn.ReadJSON(&msg) != nil {
				return
			}
		}
	})
	defer srv.Close()

	ch := openChannel(t, url, Handlers{})
	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	_, err := ch.Vote(ctx, "q1", 0)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	// the waiter slot is released, so a later vote is allowed again
	ctx2, cancel2 := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel2()
	_, err = ch.Vote(ctx2, "q1", 0)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestVotePendingGuard(t *testing.T) {
	got := make(chan struct{})
	srv, url := newWSServer(t, func(conn *websocket.Conn) {
		var msg wsMessage
		if conn.ReadJSON(&msg) != nil {
			return
		}
		close(got)
		_ = conn.ReadJSON(&msg) // hold the connection open, never answer
	})
	defer srv.Close()

	ch := openChannel(t, url, Handlers{})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = ch.Vote(ctx, "q1", 0)
	}()

	select {
	case <-got:
	case <-time.After(2 * time.Second):
		t.Fatal("vote never reached the server")
	}

	_, err := ch.Vote(context.Background(), "q1", 1)
	assert.ErrorIs(t, err, ErrVotePending)

	cancel()
	<-done
}

func TestCreateQuestionResolved(t *testing.T) {
	srv, url := newWSServer(t, func(conn *websocket.Conn) {
		for {
			var msg wsMessage
			if conn.ReadJSON(&msg) != nil {
				return
			}
			if msg.Event != "create_question" {
				continue
			}
			var data CreateQuestionData
			if json.Unmarshal(msg.Data, &data) != nil {
				return
			}
			payload, _ := json.Marshal(map[string]Question{"question": {ID: "q9", Title: data.Title}})
			if conn.WriteJSON(wsMessage{Event: "question_created", Data: payload}) != nil {
				return
			}
		}
	})
	defer srv.Close()

	ch := openChannel(t, url, Handlers{})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	q, err := ch.CreateQuestion(ctx, CreateQuestionData{Title: "Pick one", Options: []string{"A", "B"}})
	require.NoError(t, err)
	assert.Equal(t, "q9", q.ID)
	assert.Equal(t, "Pick one", q.Title)
}

func TestCreateQuestionRejected(t *testing.T) {
	srv, url := newWSServer(t, func(conn *websocket.Conn) {
		var msg wsMessage
		if conn.ReadJSON(&msg) != nil {
			return
		}
		_ = conn.WriteJSON(wsMessage{Event: "question_error", Data: json.RawMessage(`{"message":"all options must be unique"}`)})
		_ = conn.ReadJSON(&msg)
	})
	defer srv.Close()

	ch := openChannel(t, url, Handlers{})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, err := ch.CreateQuestion(ctx, CreateQuestionData{Title: "Pick one", Options: []string{"A", "a"}})
	var srvErr *ServerError
	require.True(t, errors.As(err, &srvErr))
	assert.Equal(t, "all options must be unique", srvErr.Message)
}

func TestServerPushDispatch(t *testing.T) {
	srv, url := newWSServer(t, func(conn *websocket.Conn) {
		question, _ := json.Marshal(map[string]Question{"question": {ID: "q2", Title: "Fresh question"}})
		_ = conn.WriteJSON(wsMessage{Event: "new_question", Data: question})
		_ = conn.WriteJSON(wsMessage{Event: "user_joined", Data: json.RawMessage(`{"username":"ana","sessionId":"sess-9"}`)})
		var msg wsMessage
		_ = conn.ReadJSON(&msg)
	})
	defer srv.Close()

	questions := make(chan Question, 1)
	joined := make(chan string, 1)
	openChannel(t, url, Handlers{
		OnNewQuestion: func(q Question) { questions <- q },
		OnUserJoined:  func(username, _ string) { joined <- username },
	})

	select {
	case q := <-questions:
		assert.Equal(t, "q2", q.ID)
	case <-time.After(2 * time.Second):
		t.Fatal("new_question not dispatched")
	}
	select {
	case name := <-joined:
		assert.Equal(t, "ana", name)
	case <-time.After(2 * time.Second):
		t.Fatal("user_joined not dispatched")
	}
}

func TestReconnectRefreshesState(t *testing.T) {
	var dials atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		n := dials.Add(1)
		_ = conn.WriteJSON(wsMessage{Event: "connected", Data: json.RawMessage(fmt.Sprintf(`{"sessionId":"sess-%d"}`, n))})
		if n == 1 {
			conn.Close() // drop the first connection immediately
			return
		}
		defer conn.Close()
		var msg wsMessage
		_ = conn.ReadJSON(&msg)
	}))
	defer srv.Close()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")

	refreshed := make(chan struct{}, 1)
	ch := NewChannel(ChannelConfig{
		URL:                  url,
		MaxReconnectAttempts: 3,
		ReconnectBackoff:     10 * time.Millisecond,
		OnReconnect:          func() { refreshed <- struct{}{} },
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, ch.Open(ctx))
	defer ch.Close()

	select {
	case <-refreshed:
	case <-time.After(5 * time.Second):
		t.Fatal("reconnect did not trigger a state refresh")
	}
	assert.Equal(t, StateConnected, ch.State())
	assert.Equal(t, "sess-2", ch.SessionID())
}
