package repository

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"mirage-backend/internal/models"
)

func newTestHistoryRepo(t *testing.T) *HistoryRepo {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	return NewHistoryRepo(client)
}

func TestHistoryAppendAndList(t *testing.T) {
	repo := newTestHistoryRepo(t)
	ctx := context.Background()
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	err := repo.Append(ctx, "u1", "m1",
		models.Message{Text: "What is X?", Timestamp: now, IsResponse: false},
		models.Message{Text: "X is a thing.", Timestamp: now, IsResponse: true},
	)
	if err != nil {
		t.Fatalf("Append failed: %v", err)
	}

	msgs, err := repo.List(ctx, "u1", "m1")
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(msgs) != 2 {
		t.Fatalf("Expected 2 messages, got %d", len(msgs))
	}
	if msgs[0].Text != "What is X?" || msgs[0].IsResponse {
		t.Errorf("Unexpected first message: %+v", msgs[0])
	}
	if msgs[1].Text != "X is a thing." || !msgs[1].IsResponse {
		t.Errorf("Unexpected second message: %+v", msgs[1])
	}

	// Transcripts are isolated per (user, model)
	other, err := repo.List(ctx, "u1", "m2")
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(other) != 0 {
		t.Errorf("Expected empty transcript for other model, got %d messages", len(other))
	}
}

func TestHistoryLastUserMessages(t *testing.T) {
	repo := newTestHistoryRepo(t)
	ctx := context.Background()
	now := time.Now().UTC()

	seed := []models.Message{
		{Text: "q1", Timestamp: now, IsResponse: false},
		{Text: "a1", Timestamp: now, IsResponse: true},
		{Text: "q2", Timestamp: now, IsResponse: false},
		{Text: "a2", Timestamp: now, IsResponse: true},
		{Text: "q3", Timestamp: now, IsResponse: false},
		{Text: "q4", Timestamp: now, IsResponse: false},
	}
	if err := repo.Append(ctx, "u1", "m1", seed...); err != nil {
		t.Fatalf("Append failed: %v", err)
	}

	texts, err := repo.LastUserMessages(ctx, "u1", "m1", 3)
	if err != nil {
		t.Fatalf("LastUserMessages failed: %v", err)
	}
	if len(texts) != 3 {
		t.Fatalf("Expected 3 texts, got %d: %v", len(texts), texts)
	}
	// Oldest first, responses excluded
	if texts[0] != "q2" || texts[1] != "q3" || texts[2] != "q4" {
		t.Errorf("Unexpected context order: %v", texts)
	}
}

func TestHistoryCap(t *testing.T) {
	repo := newTestHistoryRepo(t)
	ctx := context.Background()
	now := time.Now().UTC()

	for i := 0; i < historyCap+10; i++ {
		if err := repo.Append(ctx, "u1", "m1", models.Message{Text: "msg", Timestamp: now}); err != nil {
			t.Fatalf("Append failed: %v", err)
		}
	}

	msgs, err := repo.List(ctx, "u1", "m1")
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(msgs) != historyCap {
		t.Errorf("Expected transcript capped at %d, got %d", historyCap, len(msgs))
	}
}

func TestCurrentChatSelection(t *testing.T) {
	repo := newTestHistoryRepo(t)
	ctx := context.Background()

	current, err := repo.GetCurrent(ctx, "u1")
	if err != nil {
		t.Fatalf("GetCurrent failed: %v", err)
	}
	if current != "" {
		t.Errorf("Expected empty selection, got %q", current)
	}

	if err := repo.SetCurrent(ctx, "u1", "m42"); err != nil {
		t.Fatalf("SetCurrent failed: %v", err)
	}
	current, err = repo.GetCurrent(ctx, "u1")
	if err != nil {
		t.Fatalf("GetCurrent failed: %v", err)
	}
	if current != "m42" {
		t.Errorf("Expected m42, got %q", current)
	}

	if err := repo.ClearCurrent(ctx, "u1"); err != nil {
		t.Fatalf("ClearCurrent failed: %v", err)
	}
	current, _ = repo.GetCurrent(ctx, "u1")
	if current != "" {
		t.Errorf("Expected selection cleared, got %q", current)
	}
}

func TestHistoryClear(t *testing.T) {
	repo := newTestHistoryRepo(t)
	ctx := context.Background()

	if err := repo.Append(ctx, "u1", "m1", models.Message{Text: "hi", Timestamp: time.Now()}); err != nil {
		t.Fatalf("Append failed: %v", err)
	}
	if err := repo.Clear(ctx, "u1", "m1"); err != nil {
		t.Fatalf("Clear failed: %v", err)
	}

	msgs, err := repo.List(ctx, "u1", "m1")
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(msgs) != 0 {
		t.Errorf("Expected empty transcript after clear, got %d", len(msgs))
	}
}
