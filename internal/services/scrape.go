package services

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	"mirage-backend/internal/models"
)

// MaxScrapeDepth mirrors the crawl ceiling enforced by the scrape
// service itself; rejecting locally gives the client a clean 400
// instead of an opaque upstream reply.
const MaxScrapeDepth = 300

// ScrapeService forwards crawl requests to the external scrape endpoint.
type ScrapeService struct {
	endpoint string
	token    string
	client   *http.Client
}

func NewScrapeService(endpoint, token string) *ScrapeService {
	return &ScrapeService{
		endpoint: endpoint,
		token:    token,
		client:   &http.Client{Timeout: 60 * time.Second},
	}
}

type scrapeRequest struct {
	URL   string             `json:"url"`
	Depth int                `json:"depth"`
	Rules models.ScrapeRules `json:"rules"`
}

// Scrape crawls url to the given depth and returns one text blob per
// page. A 404 from the endpoint means the service itself is down.
func (s *ScrapeService) Scrape(ctx context.Context, url string, depth int, rules models.ScrapeRules) ([]string, error) {
	body, err := json.Marshal(scrapeRequest{URL: url, Depth: depth, Rules: rules})
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
		return nil, &UpstreamError{Status: http.StatusInternalServerError,
			Message: "Error in scraping (potential timeout, decrease depth)"}
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, &UpstreamError{Status: http.StatusNotFound, Message: "Server down"}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &UpstreamError{Status: http.StatusInternalServerError,
			Message: "Error in scraping (potential timeout, decrease depth)"}
	}

	var pages []string
	if err := json.NewDecoder(resp.Body).Decode(&pages); err != nil {
		return nil, &UpstreamError{Status: http.StatusInternalServerError,
			Message: "Error in scraping (potential timeout, decrease depth)"}
	}
	return pages, nil
}
