package splunk

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"splask/internal/domain"
	"splask/internal/metrics"
)

const (
	jobsPath = "/services/search/jobs"

	// dispatch states reported by the search platform while a job runs.
	stateDone   = "DONE"
	stateFailed = "FAILED"
)

// Client talks to the Splunk management REST API. The platform's search API is
// asynchronous (submit job, poll, fetch results); Run hides that behind one
// blocking call.
type Client struct {
	cfg        Config
	httpClient *http.Client
	logger     *zap.Logger
}

// Config holds the search platform connection settings.
type Config struct {
	Host         string
	Port         int
	Username     string
	Password     string
	Scheme       string
	VerifySSL    bool
	Timeout      time.Duration
	PollInterval time.Duration
	Logger       *zap.Logger
}

// NewClient creates a Splunk REST API client.
func NewClient(cfg Config) *Client {
	return &Client{
		cfg:        cfg,
		httpClient: newHTTPClient(cfg.VerifySSL, cfg.Timeout),
		logger:     cfg.Logger,
	}
}

// DefaultHost returns the configured search host.
func (c *Client) DefaultHost() string {
	return c.cfg.Host
}

// Run submits the SPL query, polls until the job completes, and returns the
// parsed result records. Overrides replace the configured host, TLS
// verification, or timeout for this call only.
func (c *Client) Run(ctx context.Context, query string, o domain.SearchOverrides) ([]domain.Record, error) {
	httpClient, baseURL, timeout := c.resolve(o)

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()

	results, err := c.run(ctx, httpClient, baseURL, query)

	duration := time.Since(start)

	if err != nil {
		metrics.UpstreamRequestsTotal.WithLabelValues("splunk", "search", "error").Inc()
		return nil, err
	}

	metrics.UpstreamRequestsTotal.WithLabelValues("splunk", "search", "success").Inc()
	metrics.UpstreamRequestDuration.WithLabelValues("splunk", "search").Observe(duration.Seconds())

	return results, nil
}

func (c *Client) run(ctx context.Context, httpClient *http.Client, baseURL, query string) ([]domain.Record, error) {
	sid, err := c.submit(ctx, httpClient, baseURL, query)
	if err != nil {
		return nil, err
	}

	c.logger.Debug("search job submitted", zap.String("sid", sid))

	if err := c.waitForCompletion(ctx, httpClient, baseURL, sid); err != nil {
		return nil, err
	}

	return c.fetchResults(ctx, httpClient, baseURL, sid)
}

// submit creates a search job and returns its SID.
func (c *Client) submit(ctx context.Context, httpClient *http.Client, baseURL, query string) (string, error) {
	form := url.Values{}
	form.Set("search", ensureSearchCommand(query))
	form.Set("exec_mode", "normal")
	form.Set("output_mode", "json")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, baseURL+jobsPath,
		strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("build submit request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.SetBasicAuth(c.cfg.Username, c.cfg.Password)

	body, contentType, err := c.do(httpClient, req, true)
	if err != nil {
		return "", err
	}

	return extractSID(body, contentType)
}

// waitForCompletion polls the job until it reports done, fails, or the context
// deadline expires.
func (c *Client) waitForCompletion(ctx context.Context, httpClient *http.Client, baseURL, sid string) error {
	jobURL := fmt.Sprintf("%s%s/%s?output_mode=json", baseURL, jobsPath, url.PathEscape(sid))

	ticker := time.NewTicker(c.cfg.PollInterval)
	defer ticker.Stop()

	for {
		done, err := c.pollOnce(ctx, httpClient, jobURL)
		if err != nil {
			return err
		}
		if done {
			return nil
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("job %s did not complete in time: %w", sid, domain.ErrSearchTimeout)
		case <-ticker.C:
		}
	}
}

func (c *Client) pollOnce(ctx context.Context, httpClient *http.Client, jobURL string) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, jobURL, http.NoBody)
	if err != nil {
		return false, fmt.Errorf("build poll request: %w", err)
	}
	req.SetBasicAuth(c.cfg.Username, c.cfg.Password)

	body, _, err := c.do(httpClient, req, false)
	if err != nil {
		return false, err
	}

	var payload struct {
		Entry []struct {
			Content struct {
				DispatchState string `json:"dispatchState"`
				IsDone        bool   `json:"isDone"`
			} `json:"content"`
		} `json:"entry"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return false, fmt.Errorf("parse job status: %w", domain.ErrMalformedResponse)
	}
	if len(payload.Entry) == 0 {
		return false, fmt.Errorf("job status has no entry: %w", domain.ErrMalformedResponse)
	}

	content := payload.Entry[0].Content
	c.logger.Debug("job state",
		zap.String("dispatch_state", content.DispatchState),
		zap.Bool("is_done", content.IsDone),
	)

	if content.DispatchState == stateFailed {
		return false, fmt.Errorf("search job failed: %w", domain.ErrSearchRejected)
	}
	return content.IsDone || content.DispatchState == stateDone, nil
}

// fetchResults retrieves the finished job's result records.
func (c *Client) fetchResults(ctx context.Context, httpClient *http.Client, baseURL, sid string) ([]domain.Record, error) {
	resultsURL := fmt.Sprintf("%s%s/%s/results?output_mode=json", baseURL, jobsPath, url.PathEscape(sid))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, resultsURL, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("build results request: %w", err)
	}
	req.SetBasicAuth(c.cfg.Username, c.cfg.Password)

	body, _, err := c.do(httpClient, req, false)
	if err != nil {
		return nil, err
	}

	var payload struct {
		Results []domain.Record `json:"results"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("parse results: %w", domain.ErrMalformedResponse)
	}

	c.logger.Debug("results retrieved", zap.Int("count", len(payload.Results)))

	if payload.Results == nil {
		return []domain.Record{}, nil
	}
	return payload.Results, nil
}

// do executes one HTTP call and returns the response body. submitCall controls
// whether a client-error status means the platform rejected the query.
func (c *Client) do(httpClient *http.Client, req *http.Request, submitCall bool) ([]byte, string, error) {
	resp, err := httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(req.Context().Err(), context.DeadlineExceeded) {
			return nil, "", fmt.Errorf("search platform call timed out: %w", domain.ErrSearchTimeout)
		}
		return nil, "", fmt.Errorf("search platform unreachable: %w", domain.ErrUpstreamUnavailable)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", fmt.Errorf("read search platform response: %w", domain.ErrUpstreamUnavailable)
	}

	if resp.StatusCode >= http.StatusBadRequest {
		c.logger.Warn("search platform error",
			zap.Int("status", resp.StatusCode),
			zap.String("url", req.URL.Redacted()),
		)
		if submitCall && resp.StatusCode < http.StatusInternalServerError &&
			resp.StatusCode != http.StatusUnauthorized && resp.StatusCode != http.StatusForbidden {
			return nil, "", fmt.Errorf("search platform rejected the query (status %d): %w",
				resp.StatusCode, domain.ErrSearchRejected)
		}
		return nil, "", fmt.Errorf("search platform returned status %d: %w",
			resp.StatusCode, domain.ErrUpstreamError)
	}

	return body, resp.Header.Get("Content-Type"), nil
}

// resolve applies per-request overrides, building a dedicated HTTP client only
// when the override changes TLS or timeout behavior.
func (c *Client) resolve(o domain.SearchOverrides) (*http.Client, string, time.Duration) {
	host := c.cfg.Host
	if o.Host != "" {
		host = o.Host
	}

	timeout := c.cfg.Timeout
	if o.Timeout > 0 {
		timeout = o.Timeout
	}

	verify := c.cfg.VerifySSL
	if o.VerifySSL != nil {
		verify = *o.VerifySSL
	}

	httpClient := c.httpClient
	if verify != c.cfg.VerifySSL || timeout != c.cfg.Timeout {
		httpClient = newHTTPClient(verify, timeout)
	}

	baseURL := fmt.Sprintf("%s://%s:%d", c.cfg.Scheme, host, c.cfg.Port)
	return httpClient, baseURL, timeout
}

func newHTTPClient(verifySSL bool, timeout time.Duration) *http.Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	if !verifySSL {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec // operator-controlled toggle
	}
	return &http.Client{
		Transport: transport,
		Timeout:   timeout,
	}
}

// ensureSearchCommand prefixes the query with "search" unless it already starts
// with a generating command, matching what the REST API expects.
func ensureSearchCommand(query string) string {
	trimmed := strings.TrimSpace(query)
	if strings.HasPrefix(trimmed, "search") || strings.HasPrefix(trimmed, "|") {
		return trimmed
	}
	return "search " + trimmed
}

// extractSID pulls the job SID out of the submit response. The platform answers
// JSON when asked, but some deployments fall back to the XML envelope.
func extractSID(body []byte, contentType string) (string, error) {
	if strings.HasPrefix(contentType, "application/json") {
		var payload struct {
			SID string `json:"sid"`
		}
		if err := json.Unmarshal(body, &payload); err == nil && payload.SID != "" {
			return payload.SID, nil
		}
	}

	// XML fallback: <response><sid>...</sid></response>
	text := string(body)
	if start := strings.Index(text, "<sid>"); start >= 0 {
		rest := text[start+len("<sid>"):]
		if end := strings.Index(rest, "</sid>"); end >= 0 {
			sid := strings.TrimSpace(rest[:end])
			if sid != "" {
				return sid, nil
			}
		}
	}

	return "", fmt.Errorf("submit response carries no job SID: %w", domain.ErrMalformedResponse)
}
