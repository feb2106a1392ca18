package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrQuotaExceeded is returned when a user's counter has reached the
// configured limit.
var ErrQuotaExceeded = errors.New("rate limit reached")

type RateLimitRepo struct {
	pool *pgxpool.Pool
}

func NewRateLimitRepo(pool *pgxpool.Pool) *RateLimitRepo {
	return &RateLimitRepo{pool: pool}
}

// Take consumes one request from the user's quota and returns the new
// count. The increment is a single conditional upsert so concurrent
// requests cannot race past the limit: when the counter is already at
// the limit (and the window, if any, has not expired) no row is
// updated and ErrQuotaExceeded is returned without incrementing.
//
// window <= 0 means the counter never resets, a lifetime quota.
func (r *RateLimitRepo) Take(ctx context.Context, userID string, limit int, window time.Duration) (int, error) {
	secs := window.Seconds()

	query := `
		INSERT INTO rate_limit (user_id, count, window_start)
		VALUES ($1, 1, now())
		ON CONFLICT (user_id) DO UPDATE SET
			count = CASE
				WHEN $2::float8 > 0 AND rate_limit.window_start <= now() - make_interval(secs => $2)
				THEN 1
				ELSE rate_limit.count + 1
			END,
			window_start = CASE
				WHEN $2::float8 > 0 AND rate_limit.window_start <= now() - make_interval(secs => $2)
				THEN now()
				ELSE rate_limit.window_start
			END
		WHERE rate_limit.count < $3
			OR ($2::float8 > 0 AND rate_limit.window_start <= now() - make_interval(secs => $2))
		RETURNING count`

	var count int
	err := r.pool.QueryRow(ctx, query, userID, secs, limit).Scan(&count)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, ErrQuotaExceeded
		}
		return 0, err
	}
	return count, nil
}
