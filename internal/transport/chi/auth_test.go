package chi

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func authedRouter(apiKeys []string) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/ask", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	return BearerAuthMiddleware(apiKeys)(mux)
}

func TestBearerAuth_DisabledWhenNoKeys(t *testing.T) {
	handler := authedRouter(nil)

	req := httptest.NewRequest(http.MethodPost, "/ask", http.NoBody)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected pass-through without keys, got %d", rr.Code)
	}
}

func TestBearerAuth_RejectsMissingAndInvalid(t *testing.T) {
	handler := authedRouter([]string{"secret"})

	tests := []struct {
		name   string
		header string
	}{
		{"missing", ""},
		{"wrong scheme", "Basic secret"},
		{"wrong key", "Bearer nope"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/ask", http.NoBody)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rr := httptest.NewRecorder()
			handler.ServeHTTP(rr, req)

			if rr.Code != http.StatusUnauthorized {
				t.Errorf("expected 401, got %d", rr.Code)
			}
		})
	}
}

func TestBearerAuth_AcceptsValidKey(t *testing.T) {
	handler := authedRouter([]string{"secret"})

	req := httptest.NewRequest(http.MethodPost, "/ask", http.NoBody)
	req.Header.Set("Authorization", "Bearer secret")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
}

func TestBearerAuth_HealthExempt(t *testing.T) {
	handler := authedRouter([]string{"secret"})

	req := httptest.NewRequest(http.MethodGet, "/health", http.NoBody)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected health to bypass auth, got %d", rr.Code)
	}
}
