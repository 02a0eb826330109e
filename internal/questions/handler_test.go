package questions

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/live-polling/backend/internal/models"
)

type recordedEvent struct {
	Event      string
	QuestionID uuid.UUID // uuid.Nil for global broadcasts
}

type fakeHub struct {
	mu     sync.Mutex
	events []recordedEvent
}

func (h *fakeHub) PublishAll(event string, _ interface{}) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.events = append(h.events, recordedEvent{Event: event})
}

func (h *fakeHub) PublishToQuestion(questionID uuid.UUID, event string, _ interface{}) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.events = append(h.events, recordedEvent{Event: event, QuestionID: questionID})
}

func (h *fakeHub) recorded() []recordedEvent {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]recordedEvent{}, h.events...)
}

func newTestRouter(t *testing.T) (*gin.Engine, *fakeHub) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	svc := NewService(newFakeStore(), nil)
	hub := &fakeHub{}
	h := NewHandler(svc, hub)

	r := gin.New()
	r.GET("/questions", h.List)
	r.GET("/questions/leaderboard", h.Leaderboard)
	r.GET("/questions/:id", h.Get)
	r.POST("/questions", h.Create)
	r.PUT("/questions/:id/vote", h.Vote)
	r.GET("/questions/:id/results", h.Results)
	return r, hub
}

func doJSON(t *testing.T, r *gin.Engine, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decodeInto(t *testing.T, w *httptest.ResponseRecorder, out interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), out))
}

func TestCreateVoteResultsRoundTrip(t *testing.T) {
	r, hub := newTestRouter(t)

	w := doJSON(t, r, http.MethodPost, "/questions", CreateRequest{Title: "Pick one", Options: []string{"A", "B"}})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var q models.Question
	decodeInto(t, w, &q)
	require.NotEqual(t, uuid.Nil, q.ID)

	votePath := fmt.Sprintf("/questions/%s/vote", q.ID)
	idx := 0
	w = doJSON(t, r, http.MethodPut, votePath, VoteRequest{OptionIndex: &idx, UserID: "voter1"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var voted models.Question
	decodeInto(t, w, &voted)
	assert.Equal(t, 1, voted.TotalVotes)

	w = doJSON(t, r, http.MethodGet, fmt.Sprintf("/questions/%s/results", q.ID), nil)
	require.Equal(t, http.StatusOK, w.Code)
	var res models.QuestionResults
	decodeInto(t, w, &res)
	assert.Equal(t, 1, res.TotalVotes)
	require.Len(t, res.Options, 2)
	assert.Equal(t, models.OptionResult{Text: "A", Votes: 1, Percentage: 100}, res.Options[0])
	assert.Equal(t, models.OptionResult{Text: "B", Votes: 0, Percentage: 0}, res.Options[1])

	events := hub.recorded()
	require.Len(t, events, 2)
	assert.Equal(t, "new_question", events[0].Event)
	assert.Equal(t, recordedEvent{Event: "vote_update", QuestionID: q.ID}, events[1])
}

func TestVoteTwiceConflicts(t *testing.T) {
	r, _ := newTestRouter(t)

	w := doJSON(t, r, http.MethodPost, "/questions", CreateRequest{Title: "Pick one", Options: []string{"A", "B"}})
	require.Equal(t, http.StatusCreated, w.Code)
	var q models.Question
	decodeInto(t, w, &q)

	idx := 0
	votePath := fmt.Sprintf("/questions/%s/vote", q.ID)
	w = doJSON(t, r, http.MethodPut, votePath, VoteRequest{OptionIndex: &idx, UserID: "voter1"})
	require.Equal(t, http.StatusOK, w.Code)

	w = doJSON(t, r, http.MethodPut, votePath, VoteRequest{OptionIndex: &idx, UserID: "voter1"})
	require.Equal(t, http.StatusConflict, w.Code)
	var errBody map[string]string
	decodeInto(t, w, &errBody)
	assert.Equal(t, ErrAlreadyVoted.Error(), errBody["error"])

	w = doJSON(t, r, http.MethodGet, "/questions/"+q.ID.String(), nil)
	require.Equal(t, http.StatusOK, w.Code)
	var got models.Question
	decodeInto(t, w, &got)
	assert.Equal(t, 1, got.TotalVotes)
}

func TestCreateRejectsInvalidTitle(t *testing.T) {
	r, hub := newTestRouter(t)
	w := doJSON(t, r, http.MethodPost, "/questions", CreateRequest{Title: "Hi", Options: []string{"A", "B"}})
	require.Equal(t, http.StatusBadRequest, w.Code)
	var errBody map[string]string
	decodeInto(t, w, &errBody)
	assert.Equal(t, "question title must be at least 5 characters", errBody["error"])
	assert.Empty(t, hub.recorded(), "no broadcast on rejected create")
}

func TestVoteValidationErrors(t *testing.T) {
	r, _ := newTestRouter(t)

	w := doJSON(t, r, http.MethodPost, "/questions", CreateRequest{Title: "Pick one", Options: []string{"A", "B"}})
	require.Equal(t, http.StatusCreated, w.Code)
	var q models.Question
	decodeInto(t, w, &q)

	idx := 5
	w = doJSON(t, r, http.MethodPut, fmt.Sprintf("/questions/%s/vote", q.ID), VoteRequest{OptionIndex: &idx, UserID: "voter1"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doJSON(t, r, http.MethodPut, "/questions/not-a-uuid/vote", VoteRequest{OptionIndex: &idx, UserID: "voter1"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	idx = 0
	w = doJSON(t, r, http.MethodPut, fmt.Sprintf("/questions/%s/vote", uuid.New()), VoteRequest{OptionIndex: &idx, UserID: "voter1"})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestListNewestFirst(t *testing.T) {
	r, _ := newTestRouter(t)
	for _, title := range []string{"First question", "Second question"} {
		w := doJSON(t, r, http.MethodPost, "/questions", CreateRequest{Title: title, Options: []string{"A", "B"}})
		require.Equal(t, http.StatusCreated, w.Code)
	}
	w := doJSON(t, r, http.MethodGet, "/questions", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var list []models.Question
	decodeInto(t, w, &list)
	require.Len(t, list, 2)
	assert.Equal(t, "Second question", list[0].Title)
}

func TestLeaderboardEndpoint(t *testing.T) {
	r, _ := newTestRouter(t)

	w := doJSON(t, r, http.MethodPost, "/questions", CreateRequest{Title: "Busy question", Options: []string{"A", "B"}})
	require.Equal(t, http.StatusCreated, w.Code)
	var q models.Question
	decodeInto(t, w, &q)
	w = doJSON(t, r, http.MethodPost, "/questions", CreateRequest{Title: "Quiet question", Options: []string{"A", "B"}})
	require.Equal(t, http.StatusCreated, w.Code)

	idx := 1
	w = doJSON(t, r, http.MethodPut, fmt.Sprintf("/questions/%s/vote", q.ID), VoteRequest{OptionIndex: &idx, UserID: "voter1"})
	require.Equal(t, http.StatusOK, w.Code)

	w = doJSON(t, r, http.MethodGet, "/questions/leaderboard", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var top []models.Question
	decodeInto(t, w, &top)
	require.Len(t, top, 1)
	assert.Equal(t, "Busy question", top[0].Title)
}
