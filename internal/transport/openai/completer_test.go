package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"go.uber.org/zap"

	"splask/internal/domain"
)

// fakeAzure serves the chat completions endpoint, replying with content and
// capturing the last prompt it received.
type fakeAzure struct {
	content    string
	status     int
	lastPrompt string
}

func (f *fakeAzure) handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.URL.Path, "/chat/completions") {
			http.NotFound(w, r)
			return
		}

		body, _ := io.ReadAll(r.Body)
		var req struct {
			Messages []struct {
				Role    string `json:"role"`
				Content string `json:"content"`
			} `json:"messages"`
		}
		_ = json.Unmarshal(body, &req)
		if len(req.Messages) > 0 {
			f.lastPrompt = req.Messages[len(req.Messages)-1].Content
		}

		if f.status != 0 && f.status != http.StatusOK {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(f.status)
			_, _ = w.Write([]byte(`{"error":{"message":"boom","type":"server_error"}}`))
			return
		}

		w.Header().Set("Content-Type", "application/json")
		_, _ = fmt.Fprintf(w, `{"choices":[{"message":{"role":"assistant","content":%q}}]}`, f.content)
	}
}

func newTestCompleter(t *testing.T, fake *fakeAzure, maxResults int) (*Completer, *httptest.Server) {
	t.Helper()
	ts := httptest.NewServer(fake.handler())
	t.Cleanup(ts.Close)

	c := NewCompleter(&Config{
		Endpoint:          ts.URL,
		APIKey:            "test-key",
		Deployment:        "gpt-35-turbo",
		APIVersion:        "2024-02-15-preview",
		SummaryMaxResults: maxResults,
		Logger:            zap.NewNop(),
	})
	return c, ts
}

func TestGenerateQuery_ReturnsModelOutput(t *testing.T) {
	fake := &fakeAzure{content: "index=auth action=failure earliest=-24h"}
	c, _ := newTestCompleter(t, fake, 20)

	query, err := c.GenerateQuery(context.Background(), "Show failed logins last 24h")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if query != "index=auth action=failure earliest=-24h" {
		t.Errorf("unexpected query %q", query)
	}
	if fake.lastPrompt != "Show failed logins last 24h" {
		t.Errorf("user prompt was %q, want the raw question", fake.lastPrompt)
	}
}

func TestGenerateQuery_StripsCodeFence(t *testing.T) {
	fake := &fakeAzure{content: "```spl\nindex=main | head 5\n```"}
	c, _ := newTestCompleter(t, fake, 20)

	query, err := c.GenerateQuery(context.Background(), "first five events")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if query != "index=main | head 5" {
		t.Errorf("fence not stripped, got %q", query)
	}
}

func TestGenerateQuery_EmptyContent(t *testing.T) {
	fake := &fakeAzure{content: ""}
	c, _ := newTestCompleter(t, fake, 20)

	_, err := c.GenerateQuery(context.Background(), "anything")
	if !errors.Is(err, domain.ErrMalformedResponse) {
		t.Fatalf("expected ErrMalformedResponse, got %v", err)
	}
}

func TestGenerateQuery_APIError(t *testing.T) {
	fake := &fakeAzure{status: http.StatusInternalServerError}
	c, _ := newTestCompleter(t, fake, 20)

	_, err := c.GenerateQuery(context.Background(), "anything")
	if !errors.Is(err, domain.ErrUpstreamError) {
		t.Fatalf("expected ErrUpstreamError, got %v", err)
	}
}

func TestGenerateQuery_Unreachable(t *testing.T) {
	fake := &fakeAzure{content: "unused"}
	c, ts := newTestCompleter(t, fake, 20)
	ts.Close()

	_, err := c.GenerateQuery(context.Background(), "anything")
	if !errors.Is(err, domain.ErrUpstreamUnavailable) {
		t.Fatalf("expected ErrUpstreamUnavailable, got %v", err)
	}
}

func TestSummarize_TruncatesPrompt(t *testing.T) {
	fake := &fakeAzure{content: "A lot happened."}
	c, _ := newTestCompleter(t, fake, 2)

	results := []domain.Record{
		{"n": "1"}, {"n": "2"}, {"n": "3"}, {"n": "4"}, {"n": "5"},
	}

	summary, err := c.Summarize(context.Background(), "what happened?", results)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if summary != "A lot happened." {
		t.Errorf("unexpected summary %q", summary)
	}
	if !strings.Contains(fake.lastPrompt, "First 2 of 5") {
		t.Errorf("prompt does not state truncation:\n%s", fake.lastPrompt)
	}
	if strings.Contains(fake.lastPrompt, `"n":"3"`) {
		t.Errorf("truncated record leaked into prompt:\n%s", fake.lastPrompt)
	}
}

func TestSummarize_NoTruncationNote(t *testing.T) {
	fake := &fakeAzure{content: "Nothing much."}
	c, _ := newTestCompleter(t, fake, 20)

	_, err := c.Summarize(context.Background(), "what happened?", []domain.Record{{"n": "1"}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if strings.Contains(fake.lastPrompt, "First ") {
		t.Errorf("prompt claims truncation for a small result set:\n%s", fake.lastPrompt)
	}
}

func TestTruncateResults_Deterministic(t *testing.T) {
	results := make([]domain.Record, 30)
	for i := range results {
		results[i] = domain.Record{"i": i}
	}

	first, truncated := truncateResults(results, 20)
	if !truncated {
		t.Fatal("expected truncation")
	}
	if len(first) != 20 {
		t.Fatalf("expected 20 records, got %d", len(first))
	}

	// Same input, same prefix, every time.
	for run := 0; run < 3; run++ {
		again, _ := truncateResults(results, 20)
		for i := range again {
			if again[i]["i"] != first[i]["i"] {
				t.Fatalf("run %d: record %d differs", run, i)
			}
		}
	}
}

func TestTruncateResults_UnderLimit(t *testing.T) {
	results := []domain.Record{{"a": 1}, {"b": 2}}

	got, truncated := truncateResults(results, 20)
	if truncated {
		t.Error("unexpected truncation")
	}
	if len(got) != 2 {
		t.Errorf("expected all records, got %d", len(got))
	}
}

func TestStripCodeFence(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain", "index=main", "index=main"},
		{"fenced", "```\nindex=main\n```", "index=main"},
		{"fenced with language", "```spl\nindex=main\n```", "index=main"},
		{"single line fence", "```index=main | head```", "index=main | head"},
		{"surrounding whitespace", "  index=main \n", "index=main"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := stripCodeFence(tt.in); got != tt.want {
				t.Errorf("stripCodeFence(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}
