package questions

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/live-polling/backend/internal/models"
)

// Repository handles question persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a questions repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Create inserts a question and its options. Fills in ID and CreatedAt.
func (r *Repository) Create(ctx context.Context, q *models.Question) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	const insertQuestion = `INSERT INTO questions (id, title, is_active, total_votes)
		VALUES (gen_random_uuid(), $1, TRUE, 0)
		RETURNING id, created_at`
	if err := tx.QueryRow(ctx, insertQuestion, q.Title).Scan(&q.ID, &q.CreatedAt); err != nil {
		return fmt.Errorf("insert question: %w", err)
	}

	const insertOption = `INSERT INTO question_options (question_id, idx, text, votes) VALUES ($1, $2, $3, 0)`
	for i, opt := range q.Options {
		if _, err := tx.Exec(ctx, insertOption, q.ID, i, opt.Text); err != nil {
			return fmt.Errorf("insert option %d: %w", i, err)
		}
	}
	return tx.Commit(ctx)
}

// GetByID returns a question with its options and voter sets.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*models.Question, error) {
	const query = `SELECT id, title, is_active, total_votes, created_at FROM questions WHERE id = $1`
	var q models.Question
	err := r.pool.QueryRow(ctx, query, id).Scan(&q.ID, &q.Title, &q.IsActive, &q.TotalVotes, &q.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	opts, err := r.optionsFor(ctx, id)
	if err != nil {
		return nil, err
	}
	q.Options = opts
	return &q, nil
}

// List returns all questions, newest first, with options and voter sets.
func (r *Repository) List(ctx context.Context) ([]models.Question, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, title, is_active, total_votes, created_at
		FROM questions ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var list []models.Question
	byID := make(map[uuid.UUID]int)
	for rows.Next() {
		var q models.Question
		if err := rows.Scan(&q.ID, &q.Title, &q.IsActive, &q.TotalVotes, &q.CreatedAt); err != nil {
			return nil, err
		}
		q.Options = []models.Option{}
		byID[q.ID] = len(list)
		list = append(list, q)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	const optionQuery = `SELECT o.question_id, o.text, o.votes,
			COALESCE(array_agg(v.voter_id) FILTER (WHERE v.voter_id IS NOT NULL), '{}')
		FROM question_options o
		LEFT JOIN votes v ON v.question_id = o.question_id AND v.option_idx = o.idx
		GROUP BY o.question_id, o.idx, o.text, o.votes
		ORDER BY o.question_id, o.idx`
	optRows, err := r.pool.Query(ctx, optionQuery)
	if err != nil {
		return nil, err
	}
	defer optRows.Close()
	for optRows.Next() {
		var qid uuid.UUID
		var opt models.Option
		if err := optRows.Scan(&qid, &opt.Text, &opt.Votes, &opt.VotedUsers); err != nil {
			return nil, err
		}
		if i, ok := byID[qid]; ok {
			list[i].Options = append(list[i].Options, opt)
		}
	}
	return list, optRows.Err()
}

// CastVote records a vote for voterID on one option of a question. Returns
// false without changing any count when the voter has already voted on the
// question.
func (r *Repository) CastVote(ctx context.Context, questionID uuid.UUID, optionIdx int, voterID string) (bool, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return false, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	const insertVote = `INSERT INTO votes (question_id, voter_id, option_idx) VALUES ($1, $2, $3)
		ON CONFLICT (question_id, voter_id) DO NOTHING`
	tag, err := tx.Exec(ctx, insertVote, questionID, voterID, optionIdx)
	if err != nil {
		return false, fmt.Errorf("insert vote: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return false, nil
	}

	if _, err := tx.Exec(ctx, `UPDATE question_options SET votes = votes + 1 WHERE question_id = $1 AND idx = $2`, questionID, optionIdx); err != nil {
		return false, fmt.Errorf("bump option: %w", err)
	}
	if _, err := tx.Exec(ctx, `UPDATE questions SET total_votes = total_votes + 1 WHERE id = $1`, questionID); err != nil {
		return false, fmt.Errorf("bump total: %w", err)
	}
	return true, tx.Commit(ctx)
}

func (r *Repository) optionsFor(ctx context.Context, questionID uuid.UUID) ([]models.Option, error) {
	const query = `SELECT o.text, o.votes,
			COALESCE(array_agg(v.voter_id) FILTER (WHERE v.voter_id IS NOT NULL), '{}')
		FROM question_options o
		LEFT JOIN votes v ON v.question_id = o.question_id AND v.option_idx = o.idx
		WHERE o.question_id = $1
		GROUP BY o.idx, o.text, o.votes
		ORDER BY o.idx`
	rows, err := r.pool.Query(ctx, query, questionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	opts := []models.Option{}
	for rows.Next() {
		var opt models.Option
		if err := rows.Scan(&opt.Text, &opt.Votes, &opt.VotedUsers); err != nil {
			return nil, err
		}
		opts = append(opts, opt)
	}
	return opts, rows.Err()
}
