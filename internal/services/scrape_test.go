package services

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"mirage-backend/internal/models"
)

func TestScrapeSuccess(t *testing.T) {
	var gotAuth string
	var gotReq scrapeRequest

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		json.NewDecoder(r.Body).Decode(&gotReq)
		json.NewEncoder(w).Encode([]string{"page one", "page two"})
	}))
	defer srv.Close()

	svc := NewScrapeService(srv.URL, "secret")
	pages, err := svc.Scrape(context.Background(), "https://example.com", 5, models.ScrapeRules{
		MustStartWith:  "https://example.com",
		ValidSelectors: []string{"p"},
	})
	if err != nil {
		t.Fatalf("Scrape failed: %v", err)
	}

	if len(pages) != 2 {
		t.Errorf("Expected 2 pages, got %d", len(pages))
	}
	if gotAuth != "Bearer secret" {
		t.Errorf("Expected bearer token forwarded, got %q", gotAuth)
	}
	if gotReq.URL != "https://example.com" || gotReq.Depth != 5 {
		t.Errorf("Unexpected request payload: %+v", gotReq)
	}
	if gotReq.Rules.MustStartWith != "https://example.com" {
		t.Errorf("Expected rules forwarded, got %+v", gotReq.Rules)
	}
}

func TestScrapeServiceDown(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	svc := NewScrapeService(srv.URL, "secret")
	_, err := svc.Scrape(context.Background(), "https://example.com", 1, models.ScrapeRules{})

	var uerr *UpstreamError
	if !errors.As(err, &uerr) {
		t.Fatalf("Expected UpstreamError, got %v", err)
	}
	if uerr.Status != http.StatusNotFound || uerr.Message != "Server down" {
		t.Errorf("Expected 404 'Server down', got %d %q", uerr.Status, uerr.Message)
	}
}

func TestScrapeFailure(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{"upstream 500", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		}},
		{"malformed body", func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte("not json"))
		}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(tc.handler)
			defer srv.Close()

			svc := NewScrapeService(srv.URL, "secret")
			_, err := svc.Scrape(context.Background(), "https://example.com", 1, models.ScrapeRules{})

			var uerr *UpstreamError
			if !errors.As(err, &uerr) {
				t.Fatalf("Expected UpstreamError, got %v", err)
			}
			if uerr.Status != http.StatusInternalServerError {
				t.Errorf("Expected status 500, got %d", uerr.Status)
			}
			if uerr.Message != "Error in scraping (potential timeout, decrease depth)" {
				t.Errorf("Unexpected message: %q", uerr.Message)
			}
		})
	}
}

func TestScrapeConnectionRefused(t *testing.T) {
	// Server closed before the call so the dial fails.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()

	svc := NewScrapeService(srv.URL, "secret")
	_, err := svc.Scrape(context.Background(), "https://example.com", 1, models.ScrapeRules{})

	var uerr *UpstreamError
	if !errors.As(err, &uerr) {
		t.Fatalf("Expected UpstreamError, got %v", err)
	}
	if uerr.Message != "Error in scraping (potential timeout, decrease depth)" {
		t.Errorf("Unexpected message: %q", uerr.Message)
	}
}
