package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"splask/internal/domain"
	"splask/internal/metrics"
)

const generateSystemPrompt = "You are an expert Splunk Search Processing Language (SPL) assistant. " +
	"Given a natural language question, respond with only the SPL query that " +
	"should be executed in Splunk. The query must be valid SPL and should not " +
	"include explanations or backticks."

const summarizeSystemPrompt = "You help security analysts understand Splunk search results. " +
	"Summarize the results in clear, concise language, referencing the " +
	"original question when relevant. If no results are available, say so."

// Completer wraps the Azure OpenAI Chat Completions API for the two uses the
// gateway has: turning a question into SPL and summarizing a result set.
type Completer struct {
	client            *openai.Client
	deployment        string
	summaryMaxResults int
	logger            *zap.Logger
}

// Config holds the completion provider settings.
type Config struct {
	Endpoint          string
	APIKey            string
	Deployment        string
	APIVersion        string
	SummaryMaxResults int
	Logger            *zap.Logger
}

// NewCompleter creates an Azure OpenAI chat completion client.
func NewCompleter(cfg *Config) *Completer {
	clientCfg := openai.DefaultAzureConfig(cfg.APIKey, cfg.Endpoint)
	clientCfg.APIVersion = cfg.APIVersion
	deployment := cfg.Deployment
	clientCfg.AzureModelMapperFunc = func(string) string { return deployment }

	return &Completer{
		client:            openai.NewClientWithConfig(clientCfg),
		deployment:        cfg.Deployment,
		summaryMaxResults: cfg.SummaryMaxResults,
		logger:            cfg.Logger,
	}
}

// GenerateQuery turns a natural language question into an SPL query string.
// The model output is returned verbatim apart from stripping code fences the
// model sometimes wraps the query in despite instructions.
func (c *Completer) GenerateQuery(ctx context.Context, question string) (string, error) {
	messages := []openai.ChatCompletionMessage{
		{Role: openai.ChatMessageRoleSystem, Content: generateSystemPrompt},
		{Role: openai.ChatMessageRoleUser, Content: question},
	}

	// go-openai omits a zero temperature from the request body; the smallest
	// non-zero float is the documented way to pin deterministic output.
	content, err := c.chat(ctx, "generate_query", messages, math.SmallestNonzeroFloat32)
	if err != nil {
		return "", err
	}

	query := stripCodeFence(content)
	c.logger.Debug("generated SPL query", zap.String("query", query))
	return query, nil
}

// Summarize produces a natural language summary of the result set. At most
// summaryMaxResults records are embedded in the prompt; when the set is larger
// the prompt states the truncation so the summary can caveat incompleteness.
func (c *Completer) Summarize(ctx context.Context, question string, results []domain.Record) (string, error) {
	snippet, truncated := truncateResults(results, c.summaryMaxResults)

	encoded, err := json.Marshal(snippet)
	if err != nil {
		return "", fmt.Errorf("encode results snippet: %w", err)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Question: %s\n\n", question)
	if truncated {
		fmt.Fprintf(&b, "First %d of %d SPL result records (JSON array):\n%s\n\n", len(snippet), len(results), encoded)
	} else {
		fmt.Fprintf(&b, "SPL result records (JSON array):\n%s\n\n", encoded)
	}
	b.WriteString("Provide a short summary.")

	messages := []openai.ChatCompletionMessage{
		{Role: openai.ChatMessageRoleSystem, Content: summarizeSystemPrompt},
		{Role: openai.ChatMessageRoleUser, Content: b.String()},
	}

	summary, err := c.chat(ctx, "summarize", messages, 0.2)
	if err != nil {
		return "", err
	}

	c.logger.Debug("generated summary", zap.Int("results", len(results)), zap.Bool("truncated", truncated))
	return summary, nil
}

// chat performs one chat completion call and extracts the first choice's content.
func (c *Completer) chat(
	ctx context.Context, op string, messages []openai.ChatCompletionMessage, temperature float32,
) (string, error) {
	req := openai.ChatCompletionRequest{
		Model:       c.deployment,
		Temperature: temperature,
		Messages:    messages,
	}

	start := time.Now()

	resp, err := c.client.CreateChatCompletion(ctx, req)

	duration := time.Since(start)

	if err != nil {
		metrics.UpstreamRequestsTotal.WithLabelValues("openai", op, "error").Inc()
		return "", parseAPIError(err)
	}

	metrics.UpstreamRequestsTotal.WithLabelValues("openai", op, "success").Inc()
	metrics.UpstreamRequestDuration.WithLabelValues("openai", op).Observe(duration.Seconds())

	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("completion response has no choices: %w", domain.ErrMalformedResponse)
	}
	content := strings.TrimSpace(resp.Choices[0].Message.Content)
	if content == "" {
		return "", fmt.Errorf("completion response has empty content: %w", domain.ErrMalformedResponse)
	}
	return content, nil
}

// truncateResults returns the first limit records and whether truncation occurred.
// Deterministic: the same input always yields the same prefix.
func truncateResults(results []domain.Record, limit int) ([]domain.Record, bool) {
	if limit <= 0 || len(results) <= limit {
		return results, false
	}
	return results[:limit], true
}

// stripCodeFence removes a markdown code fence wrapping, including an optional
// language tag, and trims surrounding whitespace.
func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if idx := strings.Index(s, "\n"); idx >= 0 {
		// First fence line may carry a language tag ("spl", "splunk").
		first := strings.TrimSpace(s[:idx])
		if first == "" || !strings.ContainsAny(first, " |=") {
			s = s[idx+1:]
		}
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

// parseAPIError maps a go-openai error to the domain taxonomy: API-level errors
// become ErrUpstreamError, everything else (network, DNS, TLS) ErrUpstreamUnavailable.
func parseAPIError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return fmt.Errorf("completion API error %d: %s: %w",
			apiErr.HTTPStatusCode, apiErr.Message, domain.ErrUpstreamError)
	}

	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return fmt.Errorf("completion API error %d: %s: %w",
			reqErr.HTTPStatusCode, string(reqErr.Body), domain.ErrUpstreamError)
	}

	return fmt.Errorf("completion request failed: %v: %w", err, domain.ErrUpstreamUnavailable)
}
