package opensearch

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/loykin/pcron/internal/history"
)

func TestOpenSearchSinkSend(t *testing.T) {
	var receivedBody []byte
	var receivedURL string
	var receivedMethod string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		receivedMethod = r.Method
		receivedURL = r.URL.Path
		body, _ := io.ReadAll(r.Body)
		receivedBody = body

		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"_id":"test","_index":"test-index","result":"created"}`))
	}))
	defer server.Close()

	sink := New(server.URL, "test-index")

	event := history.Event{
		JobID:      "backup.db",
		OccurredAt: time.Now().UTC(),
		StartedAt:  time.Now().Add(-time.Minute).UTC(),
		Ran:        true,
	}
	ctx := context.Background()
	if err := sink.Send(ctx, event); err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}

	if receivedMethod != "POST" {
		t.Errorf("expected POST method, got: %s", receivedMethod)
	}

	expectedPath := "/test-index/_doc"
	if receivedURL != expectedPath {
		t.Errorf("expected URL path %s, got: %s", expectedPath, receivedURL)
	}

	var receivedEvent map[string]interface{}
	if err := json.Unmarshal(receivedBody, &receivedEvent); err != nil {
		t.Fatalf("failed to parse received JSON: %v", err)
	}
	if receivedEvent["job_id"] != event.JobID {
		t.Errorf("expected job_id %s, got: %v", event.JobID, receivedEvent["job_id"])
	}
}

func TestOpenSearchSinkSendError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"bad request"}`))
	}))
	defer server.Close()

	sink := New(server.URL, "test-index")
	event := history.Event{JobID: "j", OccurredAt: time.Now().UTC()}

	ctx := context.Background()
	err := sink.Send(ctx, event)
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	if !strings.Contains(err.Error(), "opensearch sink status 400") {
		t.Errorf("expected status error message, got: %v", err)
	}
}

func TestOpenSearchSinkURLConstruction(t *testing.T) {
	tests := []struct {
		name        string
		baseURL     string
		index       string
		expectedURL string
	}{
		{"basic URL", "http://localhost:9200", "logs", "http://localhost:9200/logs/_doc"},
		{"trailing slash", "http://localhost:9200/", "events", "http://localhost:9200/events/_doc"},
		{"https URL", "https://opensearch.example.com", "job-history", "https://opensearch.example.com/job-history/_doc"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var receivedURL string

			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				receivedURL = r.URL.String()
				w.WriteHeader(http.StatusCreated)
			}))
			defer server.Close()

			sink := New(tt.baseURL, tt.index)
			expectedPath := "/" + tt.index + "/_doc"
			if got := sink.baseURL + expectedPath; got != tt.expectedURL {
				t.Errorf("expected URL %s, got: %s", tt.expectedURL, got)
			}
			sink.baseURL = server.URL

			event := history.Event{JobID: "j", OccurredAt: time.Now()}
			_ = sink.Send(context.Background(), event)

			if receivedURL != expectedPath {
				t.Errorf("expected URL path %s, got: %s", expectedPath, receivedURL)
			}
		})
	}
}
