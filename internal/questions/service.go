package questions

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/live-polling/backend/internal/models"
)

// Store is the persistence surface the service needs. *Repository
// implements it.
type Store interface {
	Create(ctx context.Context, q *models.Question) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Question, error)
	List(ctx context.Context) ([]models.Question, error)
	CastVote(ctx context.Context, questionID uuid.UUID, optionIdx int, voterID string) (bool, error)
}

// Service owns question business logic. Both the HTTP handlers and the
// realtime gateway go through it so votes and creates behave identically
// on either path.
type Service struct {
	store  Store
	logger *zap.Logger
}

// NewService creates a questions service.
func NewService(store Store, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{store: store, logger: logger}
}

// List returns all questions, newest first.
func (s *Service) List(ctx context.Context) ([]models.Question, error) {
	return s.store.List(ctx)
}

// Get returns one question by ID.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*models.Question, error) {
	return s.store.GetByID(ctx, id)
}

// Create validates and stores a new question. Empty option slots are
// discarded; title and options are trimmed.
func (s *Service) Create(ctx context.Context, title string, options []string) (*models.Question, error) {
	title, opts, err := ValidateCreate(title, options)
	if err != nil {
		return nil, err
	}
	q := &models.Question{Title: title, IsActive: true, Options: make([]models.Option, len(opts))}
	for i, text := range opts {
		q.Options[i] = models.Option{Text: text, VotedUsers: []string{}}
	}
	if err := s.store.Create(ctx, q); err != nil {
		return nil, err
	}
	s.logger.Info("question created", zap.String("question_id", q.ID.String()), zap.Int("options", len(q.Options)))
	return q, nil
}

// Vote casts voterID's vote for one option and returns the refreshed
// counts. A voter gets exactly one vote per question; a repeat returns
// ErrAlreadyVoted and changes nothing.
func (s *Service) Vote(ctx context.Context, questionID uuid.UUID, optionIndex int, voterID string) (*models.VoteUpdate, error) {
	q, err := s.store.GetByID(ctx, questionID)
	if err != nil {
		return nil, err
	}
	if optionIndex < 0 || optionIndex >= len(q.Options) {
		return nil, ErrInvalidOption
	}
	inserted, err := s.store.CastVote(ctx, questionID, optionIndex, voterID)
	if err != nil {
		return nil, err
	}
	if !inserted {
		return nil, ErrAlreadyVoted
	}

	q, err = s.store.GetByID(ctx, questionID)
	if err != nil {
		return nil, err
	}
	s.logger.Info("vote cast", zap.String("question_id", questionID.String()), zap.Int("option", optionIndex))
	return &models.VoteUpdate{
		QuestionID: q.ID,
		Options:    q.Options,
		TotalVotes: q.TotalVotes,
		VotedBy:    voterID,
	}, nil
}

// Results returns the aggregated projection for one question.
func (s *Service) Results(ctx context.Context, questionID uuid.UUID) (*models.QuestionResults, error) {
	q, err := s.store.GetByID(ctx, questionID)
	if err != nil {
		return nil, err
	}
	res := q.Results()
	return &res, nil
}

// Leaderboard returns the top questions by total votes.
func (s *Service) Leaderboard(ctx context.Context) ([]models.Question, error) {
	list, err := s.store.List(ctx)
	if err != nil {
		return nil, err
	}
	return models.Leaderboard(list), nil
}
