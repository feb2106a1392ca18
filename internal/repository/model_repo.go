package repository

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"mirage-backend/internal/models"
)

// ErrDuplicateName is returned when a user already has a chat with the
// requested name.
var ErrDuplicateName = errors.New("model name already exists for this user")

type ModelRepo struct {
	pool *pgxpool.Pool
}

func NewModelRepo(pool *pgxpool.Pool) *ModelRepo {
	return &ModelRepo{pool: pool}
}

func (r *ModelRepo) Create(ctx context.Context, userID, name string) (*models.Chat, error) {
	chat := &models.Chat{
		ModelID:   uuid.New(),
		UserID:    userID,
		ModelName: name,
	}

	query := `INSERT INTO models (model_id, user_id, model_name)
		VALUES ($1, $2, $3) RETURNING created_at`

	err := r.pool.QueryRow(ctx, query, chat.ModelID, chat.UserID, chat.ModelName).Scan(&chat.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return nil, ErrDuplicateName
		}
		return nil, err
	}
	return chat, nil
}

func (r *ModelRepo) ListByUser(ctx context.Context, userID string) ([]models.Chat, error) {
	rows, err := r.pool.Query(ctx,
		"SELECT model_id, model_name FROM models WHERE user_id = $1 ORDER BY created_at", userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	chats := []models.Chat{}
	for rows.Next() {
		var c models.Chat
		if err := rows.Scan(&c.ModelID, &c.ModelName); err != nil {
			return nil, err
		}
		c.UserID = userID
		chats = append(chats, c)
	}
	return chats, rows.Err()
}

// Delete removes the row matching (user_id, model_id). Deleting a row
// that is already gone is not an error, so compensating cleanup can be
// retried safely.
func (r *ModelRepo) Delete(ctx context.Context, userID, modelID string) error {
	_, err := r.pool.Exec(ctx,
		"DELETE FROM models WHERE user_id = $1 AND model_id = $2", userID, modelID)
	return err
}
