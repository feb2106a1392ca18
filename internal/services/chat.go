package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"mirage-backend/internal/models"
	"mirage-backend/internal/repository"
)

// ragTopK is how many snippets back each query.
const ragTopK = 3

type modelStore interface {
	Create(ctx context.Context, userID, name string) (*models.Chat, error)
	ListByUser(ctx context.Context, userID string) ([]models.Chat, error)
	Delete(ctx context.Context, userID, modelID string) error
}

type quotaStore interface {
	Take(ctx context.Context, userID string, limit int, window time.Duration) (int, error)
}

type historyStore interface {
	Append(ctx context.Context, userID, modelID string, msgs ...models.Message) error
	LastUserMessages(ctx context.Context, userID, modelID string, n int) ([]string, error)
	Clear(ctx context.Context, userID, modelID string) error
}

type scraper interface {
	Scrape(ctx context.Context, url string, depth int, rules models.ScrapeRules) ([]string, error)
}

type ragIndex interface {
	Ingest(ctx context.Context, userID, modelID string, pages []string, chunkPages bool) error
	Query(ctx context.Context, userID, modelID, query string, k int) (json.RawMessage, error)
	FetchData(ctx context.Context, userID, modelID string) ([]byte, string, error)
	Purge(ctx context.Context, userID, modelID string) error
}

type completer interface {
	Answer(ctx context.Context, results json.RawMessage, query string, previous []string) (string, error)
}

type notifier interface {
	Publish(ctx context.Context, userID string, msg models.WSMessage)
	EnqueueCleanup(ctx context.Context, task models.CleanupTask) error
}

// ChatService owns the chat lifecycle: the configure saga, messaging,
// deletion with index purge, and listing.
type ChatService struct {
	models  modelStore
	quota   quotaStore
	history historyStore
	scraper scraper
	rag     ragIndex
	llm     completer
	events  notifier

	limit  int
	window time.Duration
}

func NewChatService(
	modelRepo modelStore,
	quotaRepo quotaStore,
	historyRepo historyStore,
	scrapeService scraper,
	ragService ragIndex,
	llmService completer,
	events notifier,
	limit int,
	window time.Duration,
) *ChatService {
	return &ChatService{
		models:  modelRepo,
		quota:   quotaRepo,
		history: historyRepo,
		scraper: scrapeService,
		rag:     ragService,
		llm:     llmService,
		events:  events,
		limit:   limit,
		window:  window,
	}
}

func (s *ChatService) takeQuota(ctx context.Context, userID string) error {
	_, err := s.quota.Take(ctx, userID, s.limit, s.window)
	if err != nil {
		if errors.Is(err, repository.ErrQuotaExceeded) {
			return &RateLimitError{Message: "Rate limit reached"}
		}
		return fmt.Errorf("taking quota: %w", err)
	}
	return nil
}

// Configure runs the chat-configuration saga: insert the models row,
// scrape, ingest. Any failure after the insert triggers a compensating
// delete so the row never outlives a failed ingestion. The client sees
// the original failure even when the compensating delete itself fails;
// that orphan is escalated to the cleanup queue instead.
func (s *ChatService) Configure(ctx context.Context, req models.ConfigureChatRequest) error {
	fields := map[string]string{}
	if req.UserID == "" {
		fields["userId"] = "required"
	}
	if req.Name == "" {
		fields["name"] = "required"
	}
	if req.URL == "" {
		fields["url"] = "required"
	}
	if len(req.SelectedTags) == 0 {
		fields["selectedTags"] = "required"
	}
	depth, derr := req.Depth.Int64()
	if req.Depth == "" || derr != nil || depth <= 0 {
		fields["depth"] = "must be a positive number"
	} else if depth > MaxScrapeDepth {
		fields["depth"] = fmt.Sprintf("cannot exceed %d", MaxScrapeDepth)
	}
	if len(fields) > 0 {
		return &ValidationError{Fields: fields}
	}

	if err := s.takeQuota(ctx, req.UserID); err != nil {
		return err
	}

	chat, err := s.models.Create(ctx, req.UserID, req.Name)
	if err != nil {
		if errors.Is(err, repository.ErrDuplicateName) {
			return &ConflictError{Message: "Duplicate"}
		}
		return fmt.Errorf("inserting model: %w", err)
	}
	modelID := chat.ModelID.String()

	rules := models.ScrapeRules{
		MustStartWith:   req.BaseURL,
		IgnoreFragments: req.IgnoreFragments,
		ValidSelectors:  req.SelectedTags,
	}

	pages, err := s.scraper.Scrape(ctx, req.URL, int(depth), rules)
	if err != nil {
		s.cleanUp(ctx, req.UserID, modelID)
		return err
	}

	if err := s.rag.Ingest(ctx, req.UserID, modelID, pages, req.ChunkPages); err != nil {
		s.cleanUp(ctx, req.UserID, modelID)
		return err
	}

	s.events.Publish(ctx, req.UserID, models.WSMessage{
		Type:    "chat_list_updated",
		Payload: models.ChatListEvent{ModelID: modelID, ModelName: chat.ModelName},
	})
	return nil
}

// cleanUp is the compensating step of the configure saga. Its own
// failure is logged and handed to the reaper, never surfaced.
func (s *ChatService) cleanUp(ctx context.Context, userID, modelID string) {
	if err := s.models.Delete(ctx, userID, modelID); err != nil {
		log.Printf("cleanup: deleting model %s for user %s failed: %v", modelID, userID, err)
		if qerr := s.events.EnqueueCleanup(ctx, models.CleanupTask{UserID: userID, ModelID: modelID}); qerr != nil {
			log.Printf("cleanup: enqueue for model %s failed: %v", modelID, qerr)
		}
	}
}

// SendMessage answers a user query against the chat's index. The RAG
// query is the prior user queries joined with the new message; when the
// client sends no context the stored last-3 user messages are used.
func (s *ChatService) SendMessage(ctx context.Context, req models.SendMessageRequest) (string, error) {
	fields := map[string]string{}
	if req.UserID == "" {
		fields["userId"] = "required"
	}
	if req.CurrentChat == nil {
		fields["currentChat"] = "required"
	}
	if strings.TrimSpace(req.UserMessage) == "" {
		fields["userMessage"] = "required"
	}
	if req.ModelID == "" {
		fields["modelId"] = "required"
	}
	if len(fields) > 0 {
		return "", &ValidationError{Fields: fields}
	}

	if err := s.takeQuota(ctx, req.UserID); err != nil {
		return "", err
	}

	previous := req.Context
	if previous == nil {
		stored, err := s.history.LastUserMessages(ctx, req.UserID, req.ModelID, 3)
		if err != nil {
			log.Printf("history: loading context for user %s failed: %v", req.UserID, err)
		} else {
			previous = stored
		}
	}

	query := strings.TrimSpace(strings.Join(previous, " ") + " " + req.UserMessage)

	results, err := s.rag.Query(ctx, req.UserID, req.ModelID, query, ragTopK)
	if err != nil {
		return "", err
	}

	answer, err := s.llm.Answer(ctx, results, req.UserMessage, previous)
	if err != nil {
		return "", err
	}

	now := time.Now().UTC()
	if err := s.history.Append(ctx, req.UserID, req.ModelID,
		models.Message{Text: req.UserMessage, Timestamp: now, IsResponse: false},
		models.Message{Text: answer, Timestamp: now, IsResponse: true},
	); err != nil {
		log.Printf("history: appending messages for user %s failed: %v", req.UserID, err)
	}

	return answer, nil
}

// Delete removes the chat row, then purges the retrieval index and the
// stored transcript. Purge failures are retried out of band; the client
// still gets a success once the row is gone.
func (s *ChatService) Delete(ctx context.Context, userID, modelID string) error {
	fields := map[string]string{}
	if userID == "" {
		fields["userId"] = "required"
	}
	if modelID == "" {
		fields["modelId"] = "required"
	}
	if len(fields) > 0 {
		return &ValidationError{Fields: fields}
	}

	if err := s.models.Delete(ctx, userID, modelID); err != nil {
		return fmt.Errorf("deleting model: %w", err)
	}

	if err := s.rag.Purge(ctx, userID, modelID); err != nil {
		log.Printf("purge: model %s for user %s failed: %v", modelID, userID, err)
		if qerr := s.events.EnqueueCleanup(ctx, models.CleanupTask{UserID: userID, ModelID: modelID, PurgeOnly: true}); qerr != nil {
			log.Printf("purge: enqueue for model %s failed: %v", modelID, qerr)
		}
	}

	if err := s.history.Clear(ctx, userID, modelID); err != nil {
		log.Printf("history: clearing transcript for user %s failed: %v", userID, err)
	}

	s.events.Publish(ctx, userID, models.WSMessage{
		Type:    "chat_deleted",
		Payload: models.ChatListEvent{ModelID: modelID},
	})
	return nil
}

func (s *ChatService) List(ctx context.Context, userID string) ([]models.Chat, error) {
	if userID == "" {
		return nil, &ValidationError{Fields: map[string]string{"userId": "required"}}
	}
	chats, err := s.models.ListByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("listing models: %w", err)
	}
	return chats, nil
}

func (s *ChatService) GetData(ctx context.Context, userID, modelID string) ([]byte, string, error) {
	fields := map[string]string{}
	if userID == "" {
		fields["userId"] = "required"
	}
	if modelID == "" {
		fields["modelId"] = "required"
	}
	if len(fields) > 0 {
		return nil, "", &ValidationError{Fields: fields}
	}
	return s.rag.FetchData(ctx, userID, modelID)
}
