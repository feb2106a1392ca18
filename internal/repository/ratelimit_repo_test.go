package repository

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// These tests exercise the conditional-upsert SQL itself and need a real
// database. Set TEST_DATABASE_URL to run them.
func testPool(t *testing.T) *pgxpool.Pool {
	t.Helper()

	dbURL := os.Getenv("TEST_DATABASE_URL")
	if dbURL == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, dbURL)
	if err != nil {
		t.Fatalf("Failed to connect: %v", err)
	}
	t.Cleanup(pool.Close)

	_, err = pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS rate_limit (
			user_id TEXT PRIMARY KEY,
			count INT NOT NULL DEFAULT 0,
			window_start TIMESTAMPTZ NOT NULL DEFAULT now()
		)
	`)
	if err != nil {
		t.Fatalf("Failed to create rate_limit table: %v", err)
	}

	return pool
}

func backdateWindow(t *testing.T, pool *pgxpool.Pool, userID string, age time.Duration) {
	t.Helper()
	_, err := pool.Exec(context.Background(),
		"UPDATE rate_limit SET window_start = now() - make_interval(secs => $2) WHERE user_id = $1",
		userID, age.Seconds())
	if err != nil {
		t.Fatalf("Failed to backdate window: %v", err)
	}
}

func currentCount(t *testing.T, pool *pgxpool.Pool, userID string) int {
	t.Helper()
	var count int
	err := pool.QueryRow(context.Background(),
		"SELECT count FROM rate_limit WHERE user_id = $1", userID).Scan(&count)
	if err != nil {
		t.Fatalf("Failed to read count: %v", err)
	}
	return count
}

func TestTakeStopsAtLimit(t *testing.T) {
	pool := testPool(t)
	repo := NewRateLimitRepo(pool)
	ctx := context.Background()
	userID := "user-" + uuid.NewString()

	for i := 1; i <= 3; i++ {
		count, err := repo.Take(ctx, userID, 3, 0)
		if err != nil {
			t.Fatalf("Take %d failed: %v", i, err)
		}
		if count != i {
			t.Errorf("Take %d: expected count %d, got %d", i, i, count)
		}
	}

	if _, err := repo.Take(ctx, userID, 3, 0); !errors.Is(err, ErrQuotaExceeded) {
		t.Fatalf("Expected ErrQuotaExceeded at the limit, got %v", err)
	}
	if got := currentCount(t, pool, userID); got != 3 {
		t.Errorf("Expected counter not incremented past the limit, got %d", got)
	}
}

func TestTakeLifetimeQuotaNeverResets(t *testing.T) {
	pool := testPool(t)
	repo := NewRateLimitRepo(pool)
	ctx := context.Background()
	userID := "user-" + uuid.NewString()

	for i := 0; i < 2; i++ {
		if _, err := repo.Take(ctx, userID, 2, 0); err != nil {
			t.Fatalf("Take failed: %v", err)
		}
	}

	// With window=0 even an ancient window_start must not reset.
	backdateWindow(t, pool, userID, 365*24*time.Hour)

	if _, err := repo.Take(ctx, userID, 2, 0); !errors.Is(err, ErrQuotaExceeded) {
		t.Fatalf("Expected lifetime quota to stay exhausted, got %v", err)
	}
}

func TestTakeWindowExpiryResetsCounter(t *testing.T) {
	pool := testPool(t)
	repo := NewRateLimitRepo(pool)
	ctx := context.Background()
	userID := "user-" + uuid.NewString()
	window := time.Hour

	for i := 0; i < 2; i++ {
		if _, err := repo.Take(ctx, userID, 2, window); err != nil {
			t.Fatalf("Take failed: %v", err)
		}
	}
	if _, err := repo.Take(ctx, userID, 2, window); !errors.Is(err, ErrQuotaExceeded) {
		t.Fatalf("Expected quota exhausted inside the window, got %v", err)
	}

	backdateWindow(t, pool, userID, 2*window)

	count, err := repo.Take(ctx, userID, 2, window)
	if err != nil {
		t.Fatalf("Expected expired window to reset the counter, got %v", err)
	}
	if count != 1 {
		t.Errorf("Expected count 1 after reset, got %d", count)
	}
}

func TestTakeWindowNotYetExpired(t *testing.T) {
	pool := testPool(t)
	repo := NewRateLimitRepo(pool)
	ctx := context.Background()
	userID := "user-" + uuid.NewString()
	window := time.Hour

	for i := 0; i < 2; i++ {
		if _, err := repo.Take(ctx, userID, 2, window); err != nil {
			t.Fatalf("Take failed: %v", err)
		}
	}

	// Half a window old: still inside, still exhausted.
	backdateWindow(t, pool, userID, window/2)

	if _, err := repo.Take(ctx, userID, 2, window); !errors.Is(err, ErrQuotaExceeded) {
		t.Fatalf("Expected quota still exhausted inside the window, got %v", err)
	}
	if got := currentCount(t, pool, userID); got != 2 {
		t.Errorf("Expected count unchanged, got %d", got)
	}
}
