package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// RAGService talks to the external retrieval service. The same endpoint
// both ingests scraped pages (inference=false, keyed by user+model) and
// answers queries against the stored index (inference=true).
type RAGService struct {
	endpoint     string
	dataEndpoint string
	token        string
	client       *http.Client
}

func NewRAGService(endpoint, dataEndpoint, token string) *RAGService {
	return &RAGService{
		endpoint:     endpoint,
		dataEndpoint: dataEndpoint,
		token:        token,
		client:       &http.Client{Timeout: 60 * time.Second},
	}
}

type ragRequest struct {
	Query      string      `json:"query"`
	Data       interface{} `json:"data"`
	ChunkPages bool        `json:"chunk_pages"`
	UserID     string      `json:"user_id"`
	ModelID    string      `json:"model_id"`
	Inference  bool        `json:"inference"`
	K          int         `json:"k,omitempty"`
}

// upstreamDetail is the FastAPI error shape {"detail": "..."}.
type upstreamDetail struct {
	Detail string `json:"detail"`
}

func (s *RAGService) post(ctx context.Context, reqBody ragRequest, fallbackMsg string) (json.RawMessage, error) {
	body, err := json.Marshal(reqBody)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+s.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, &UpstreamError{Status: http.StatusInternalServerError, Message: fallbackMsg}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &UpstreamError{Status: http.StatusInternalServerError, Message: fallbackMsg}
	}

	if resp.StatusCode != http.StatusOK {
		// Surface the upstream detail message when there is one.
		var detail upstreamDetail
		msg := fallbackMsg
		if json.Unmarshal(raw, &detail) == nil && detail.Detail != "" {
			msg = detail.Detail
		}
		return nil, &UpstreamError{Status: http.StatusInternalServerError, Message: msg}
	}

	return json.RawMessage(raw), nil
}

// Ingest stores scraped pages in the index for (userID, modelID).
func (s *RAGService) Ingest(ctx context.Context, userID, modelID string, pages []string, chunkPages bool) error {
	_, err := s.post(ctx, ragRequest{
		Query:      "",
		Data:       pages,
		ChunkPages: chunkPages,
		UserID:     userID,
		ModelID:    modelID,
		Inference:  false,
	}, "An error occurred during initialization")
	return err
}

// Query returns the top-k snippets relevant to query, as raw JSON.
func (s *RAGService) Query(ctx context.Context, userID, modelID, query string, k int) (json.RawMessage, error) {
	return s.post(ctx, ragRequest{
		Query:      query,
		Data:       "",
		ChunkPages: false,
		UserID:     userID,
		ModelID:    modelID,
		Inference:  true,
		K:          k,
	}, "Error retrieving relevant data")
}

// FetchData retrieves the raw indexed content for display. Pure
// passthrough: the body and content type go back to the client as-is.
func (s *RAGService) FetchData(ctx context.Context, userID, modelID string) ([]byte, string, error) {
	u := fmt.Sprintf("%s?user_id=%s&model_id=%s",
		s.dataEndpoint, url.QueryEscape(userID), url.QueryEscape(modelID))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, "", err
	}
	req.Header.Set("Authorization", "Bearer "+s.token)

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, "", &UpstreamError{Status: http.StatusInternalServerError, Message: "Error in getting data"}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, "", &UpstreamError{Status: http.StatusInternalServerError, Message: "Error in getting data"}
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", &UpstreamError{Status: http.StatusInternalServerError, Message: "Error in getting data"}
	}
	return raw, resp.Header.Get("Content-Type"), nil
}

// Purge drops the stored index for (userID, modelID) so deleting a chat
// does not leak data on the retrieval side.
func (s *RAGService) Purge(ctx context.Context, userID, modelID string) error {
	u := fmt.Sprintf("%s?user_id=%s&model_id=%s",
		s.dataEndpoint, url.QueryEscape(userID), url.QueryEscape(modelID))

	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, u, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+s.token)

	resp, err := s.client.Do(req)
	if err != nil {
		return &UpstreamError{Status: http.StatusInternalServerError, Message: "Error purging indexed data"}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent && resp.StatusCode != http.StatusNotFound {
		return &UpstreamError{Status: http.StatusInternalServerError, Message: "Error purging indexed data"}
	}
	return nil
}
