package users

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/live-polling/backend/internal/models"
)

// Repository handles participant persistence. Identity is the ephemeral
// realtime session ID; rejoining with the same session updates the name
// instead of creating a second row.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a users repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Join registers a display name for a session and marks it active.
func (r *Repository) Join(ctx context.Context, username, sessionID string) (*models.User, error) {
	const query = `INSERT INTO users (id, username, session_id, active)
		VALUES (gen_random_uuid(), $1, $2, TRUE)
		ON CONFLICT (session_id) DO UPDATE SET username = EXCLUDED.username, active = TRUE
		RETURNING id, joined_at`
	u := &models.User{Username: username, SessionID: sessionID, Active: true, VotedQuestions: []uuid.UUID{}}
	if err := r.pool.QueryRow(ctx, query, username, sessionID).Scan(&u.ID, &u.JoinedAt); err != nil {
		return nil, err
	}
	return u, nil
}

// Leave marks a session inactive. The row stays so past votes remain
// attributable.
func (r *Repository) Leave(ctx context.Context, sessionID string) error {
	_, err := r.pool.Exec(ctx, `UPDATE users SET active = FALSE WHERE session_id = $1`, sessionID)
	return err
}

// ListActive returns currently connected participants with the questions
// they have voted on, derived from the vote records.
func (r *Repository) ListActive(ctx context.Context) ([]models.User, error) {
	const query = `SELECT u.id, u.username, u.session_id, u.active, u.joined_at,
			COALESCE(array_agg(v.question_id) FILTER (WHERE v.question_id IS NOT NULL), '{}')
		FROM users u
		LEFT JOIN votes v ON v.voter_id = u.session_id
		WHERE u.active
		GROUP BY u.id
		ORDER BY u.joined_at`
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	list := []models.User{}
	for rows.Next() {
		var u models.User
		if err := rows.Scan(&u.ID, &u.Username, &u.SessionID, &u.Active, &u.JoinedAt, &u.VotedQuestions); err != nil {
			return nil, err
		}
		list = append(list, u)
	}
	return list, rows.Err()
}
