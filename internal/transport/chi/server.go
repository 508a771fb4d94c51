package chi

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"splask/internal/domain"
	askuc "splask/internal/usecase/ask"
)

// Error codes returned to clients.
const (
	codeBadRequest     = "bad_request"
	codeInvalidInput   = "invalid_input"
	codeSearchRejected = "search_rejected"
	codeSearchTimeout  = "search_timeout"
	codeUpstreamError  = "upstream_error"
	codeInternalError  = "internal_error"
)

// errorHandler tries to handle a domain error. Returns true if handled.
type errorHandler func(w http.ResponseWriter, err error) bool

// AskRequest is the POST /ask body.
type AskRequest struct {
	Question string `json:"question"`
	// Optional per-request overrides; the configured defaults apply when omitted.
	SearchHost     string   `json:"search_host,omitempty"`
	VerifySSL      *bool    `json:"verify_ssl,omitempty"`
	RequestTimeout *float64 `json:"request_timeout,omitempty"` // seconds
}

// AskResponse is the POST /ask response body.
type AskResponse struct {
	Question   string          `json:"question"`
	SearchHost string          `json:"search_host"`
	Query      string          `json:"query"`
	Results    []domain.Record `json:"results"`
	Summary    string          `json:"summary"`
}

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Server exposes the gateway over HTTP.
type Server struct {
	ask           *askuc.Service
	logger        *zap.Logger
	errorHandlers []errorHandler
}

// NewServer creates the HTTP API server.
func NewServer(ask *askuc.Service, logger *zap.Logger) *Server {
	s := &Server{
		ask:    ask,
		logger: logger,
	}
	s.errorHandlers = []errorHandler{
		sentinelHandler(domain.ErrInvalidInput, http.StatusBadRequest, codeInvalidInput),
		sentinelHandler(domain.ErrSearchRejected, http.StatusUnprocessableEntity, codeSearchRejected),
		sentinelHandler(domain.ErrSearchTimeout, http.StatusGatewayTimeout, codeSearchTimeout),
		sentinelHandler(domain.ErrUpstreamUnavailable, http.StatusBadGateway, codeUpstreamError),
		sentinelHandler(domain.ErrUpstreamError, http.StatusBadGateway, codeUpstreamError),
		sentinelHandler(domain.ErrMalformedResponse, http.StatusBadGateway, codeUpstreamError),
	}
	return s
}

// Health handles GET /health. Always ok, no dependency checks.
func (s *Server) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Ask handles POST /ask.
func (s *Server) Ask(w http.ResponseWriter, r *http.Request) {
	var req AskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "Invalid request body: "+err.Error())
		return
	}

	if req.Question == "" {
		writeError(w, http.StatusBadRequest, codeInvalidInput, "Question is required")
		return
	}

	q := askuc.Question{
		Text: req.Question,
		Overrides: domain.SearchOverrides{
			Host:      req.SearchHost,
			VerifySSL: req.VerifySSL,
		},
	}
	if req.RequestTimeout != nil && *req.RequestTimeout > 0 {
		q.Overrides.Timeout = time.Duration(*req.RequestTimeout * float64(time.Second))
	}

	answer, err := s.ask.Ask(r.Context(), q)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, AskResponse{
		Question:   answer.Question,
		SearchHost: answer.SearchHost,
		Query:      answer.Query,
		Results:    answer.Results,
		Summary:    answer.Summary,
	})
}

// Metrics handles GET /metrics.
func (s *Server) Metrics(w http.ResponseWriter, r *http.Request) {
	promhttp.Handler().ServeHTTP(w, r)
}

func (s *Server) handleDomainError(w http.ResponseWriter, err error) {
	for _, h := range s.errorHandlers {
		if h(w, err) {
			return
		}
	}

	s.logger.Error("unhandled error", zap.Error(err))
	writeError(w, http.StatusInternalServerError, codeInternalError, "internal error")
}

// sentinelHandler maps one sentinel error to one HTTP status and code.
func sentinelHandler(sentinel error, status int, code string) errorHandler {
	return func(w http.ResponseWriter, err error) bool {
		if !errors.Is(err, sentinel) {
			return false
		}
		writeError(w, status, code, safeMessage(err, sentinel))
		return true
	}
}

// safeMessage returns a short client-facing message without internal detail.
func safeMessage(err error, sentinel error) string {
	var stageErr *askuc.StageError
	if errors.As(err, &stageErr) {
		return string(stageErr.Stage) + ": " + sentinel.Error()
	}
	return sentinel.Error()
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, ErrorResponse{
		Code:    code,
		Message: message,
	})
}
