package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Chat is a row in the models table: a configured, independently-indexed
// content source plus its conversation. model_id is the identity; the
// user-chosen model_name is unique per user.
type Chat struct {
	ModelID   uuid.UUID `json:"model_id"`
	ModelName string    `json:"model_name"`
	UserID    string    `json:"-"`
	CreatedAt time.Time `json:"-"`
}

// ScrapeRules constrain the crawl performed by the external scrape
// service. Built per configure-chat call, never persisted.
type ScrapeRules struct {
	MustStartWith   string   `json:"must_start_with"`
	IgnoreFragments bool     `json:"ignore_fragments"`
	ValidSelectors  []string `json:"valid_selectors"`
}

// ConfigureChatRequest is the configure-chat payload. Depth is a
// json.Number because older frontend revisions sent it as a string.
type ConfigureChatRequest struct {
	UserID          string      `json:"userId"`
	Name            string      `json:"name"`
	URL             string      `json:"url"`
	Depth           json.Number `json:"depth"`
	SelectedTags    []string    `json:"selectedTags"`
	BaseURL         string      `json:"baseUrl"`
	IgnoreFragments bool        `json:"ignoreFragments"`
	ChunkPages      bool        `json:"chunkPages"`
}

type SendMessageRequest struct {
	UserID      string   `json:"userId"`
	CurrentChat *string  `json:"currentChat"`
	UserMessage string   `json:"userMessage"`
	Context     []string `json:"context"`
	ModelID     string   `json:"modelId"`
}

type SendMessageResponse struct {
	Response string `json:"response"`
}
