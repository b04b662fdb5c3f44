package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"
)

// Static errors for LLM client operations.
var (
	// ErrEndpointRequired is returned when the completion endpoint is not provided.
	ErrEndpointRequired = errors.New("llm: endpoint is required")
	// ErrModelRequired is returned when the model name is not provided.
	ErrModelRequired = errors.New("llm: model is required")
	// ErrAPIKeyNotSet is returned when no API key is configured.
	ErrAPIKeyNotSet = errors.New("llm: HUGGINGFACE_API_KEY is not set")
	// ErrPromptRequired is returned when the prompt is empty.
	ErrPromptRequired = errors.New("llm: prompt is required")
	// ErrNoChoices is returned when the response contains no completion.
	ErrNoChoices = errors.New("llm: response contains no choices")
	// ErrEmptyCompletion is returned when the completion text is blank.
	ErrEmptyCompletion = errors.New("llm: empty completion")
	// ErrAPIError is returned when the response body carries an error object.
	ErrAPIError = errors.New("llm: api error")
	// ErrServerError is returned when the server returns a 5xx status code.
	ErrServerError = errors.New("llm: server error")
	// ErrRateLimited is returned when the server returns a 429 status code.
	ErrRateLimited = errors.New("llm: rate limited")
	// ErrRequestFailed is returned when the request fails with a non-2xx status code.
	ErrRequestFailed = errors.New("llm: request failed")
)

// Client defines the interface for chat completions.
type Client interface {
	// Complete sends messages and returns the first choice's content.
	Complete(ctx context.Context, messages []Message, opts CompletionOptions) (string, error)

	// Generate sends a single user prompt and returns the completion text.
	Generate(ctx context.Context, prompt string) (string, error)
}

// HTTPClient is the HTTP implementation of the Client interface.
type HTTPClient struct {
	apiKey      string
	endpoint    string
	model       string
	defaults    CompletionOptions
	httpClient  *http.Client
	maxRetries  int
	baseBackoff time.Duration
}

// ClientOption is a function that configures an HTTPClient.
type ClientOption func(*HTTPClient)

// WithAPIKey sets the API key for Bearer authentication.
func WithAPIKey(key string) ClientOption {
	return func(hc *HTTPClient) {
		hc.apiKey = key
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(c *http.Client) ClientOption {
	return func(hc *HTTPClient) {
		hc.httpClient = c
	}
}

// WithDefaults sets the completion options used by Generate.
func WithDefaults(opts CompletionOptions) ClientOption {
	return func(hc *HTTPClient) {
		hc.defaults = opts
	}
}

// WithMaxRetries sets the maximum number of retries for transient failures.
// The default is 0: a completion is attempted once.
func WithMaxRetries(n int) ClientOption {
	return func(hc *HTTPClient) {
		hc.maxRetries = n
	}
}

// WithBaseBackoff sets the initial backoff duration for retries.
func WithBaseBackoff(d time.Duration) ClientOption {
	return func(hc *HTTPClient) {
		hc.baseBackoff = d
	}
}

// NewClient creates a new chat completion client for the given endpoint
// (the full /chat/completions URL) and model.
// The API key can be set via the WithAPIKey option. If not provided,
// it is read from the environment variable HUGGINGFACE_API_KEY.
func NewClient(endpoint, model string, opts ...ClientOption) (*HTTPClient, error) {
	if endpoint == "" {
		return nil, ErrEndpointRequired
	}
	if model == "" {
		return nil, ErrModelRequired
	}

	c := &HTTPClient{
		endpoint: endpoint,
		model:    model,
		defaults: DefaultCompletionOptions(),
		// No client timeout: completions are bounded by the caller's context.
		httpClient:  &http.Client{},
		baseBackoff: 1 * time.Second,
	}

	for _, opt := range opts {
		opt(c)
	}

	if c.apiKey == "" {
		c.apiKey = os.Getenv("HUGGINGFACE_API_KEY")
	}

	if c.apiKey == "" {
		return nil, ErrAPIKeyNotSet
	}

	return c, nil
}

// Generate sends a single user prompt with the client defaults.
func (c *HTTPClient) Generate(ctx context.Context, prompt string) (string, error) {
	if strings.TrimSpace(prompt) == "" {
		return "", ErrPromptRequired
	}
	return c.Complete(ctx, []Message{{Role: RoleUser, Content: prompt}}, c.defaults)
}

// Complete sends messages to the completion endpoint and returns the trimmed
// content of the first choice.
func (c *HTTPClient) Complete(ctx context.Context, messages []Message, opts CompletionOptions) (string, error) {
	if len(messages) == 0 {
		return "", ErrPromptRequired
	}
	if opts.SystemPrompt != "" {
		messages = append([]Message{{Role: RoleSystem, Content: opts.SystemPrompt}}, messages...)
	}

	reqBody := chatRequest{
		Model:       c.model,
		Messages:    messages,
		MaxTokens:   opts.MaxTokens,
		Temperature: opts.Temperature,
	}

	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("llm: marshal request: %w", err)
	}

	var resp chatResponse
	if err := c.doRequestWithRetry(ctx, http.MethodPost, c.endpoint, bodyBytes, &resp); err != nil {
		return "", err
	}

	if resp.Error != nil {
		return "", fmt.Errorf("%w: %s", ErrAPIError, resp.Error.Message)
	}
	if len(resp.Choices) == 0 {
		return "", ErrNoChoices
	}

	text := strings.TrimSpace(resp.Choices[0].Message.Content)
	if text == "" {
		return "", ErrEmptyCompletion
	}
	return text, nil
}

// doRequestWithRetry performs an HTTP request with exponential backoff retry.
func (c *HTTPClient) doRequestWithRetry(ctx context.Context, method, url string, body []byte, result interface{}) error {
	var lastErr error
	backoff := c.baseBackoff

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return fmt.Errorf("llm: context cancelled: %w", ctx.Err())
			case <-time.After(backoff):
				backoff *= 2
			}
		}

		err := c.doRequest(ctx, method, url, body, result)
		if err == nil {
			return nil
		}

		if !isRetryable(err) {
			return err
		}

		lastErr = err
	}

	if c.maxRetries == 0 {
		return lastErr
	}
	return fmt.Errorf("llm: max retries exceeded: %w", lastErr)
}

// doRequest performs a single HTTP request.
func (c *HTTPClient) doRequest(ctx context.Context, method, url string, body []byte, result interface{}) error {
	var bodyReader io.Reader
	if body != nil {
		bodyReader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, bodyReader)
	if err != nil {
		return fmt.Errorf("llm: create request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &retryableError{err: fmt.Errorf("llm: request failed: %w", err)}
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return &retryableError{err: fmt.Errorf("llm: read response: %w", err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		if resp.StatusCode >= 500 {
			return &retryableError{err: fmt.Errorf("%w %d: %s", ErrServerError, resp.StatusCode, string(respBody))}
		}
		if resp.StatusCode == http.StatusTooManyRequests {
			return &retryableError{err: fmt.Errorf("%w: %s", ErrRateLimited, string(respBody))}
		}
		return fmt.Errorf("%w with status %d: %s", ErrRequestFailed, resp.StatusCode, string(respBody))
	}

	if result != nil {
		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("llm: unmarshal response: %w", err)
		}
	}

	return nil
}

// retryableError wraps errors that should be retried.
type retryableError struct {
	err error
}

func (e *retryableError) Error() string {
	return e.err.Error()
}

func (e *retryableError) Unwrap() error {
	return e.err
}

// isRetryable returns true if the error should be retried.
func isRetryable(err error) bool {
	var re *retryableError
	return errors.As(err, &re)
}

// Verify interface implementation at compile time.
var _ Client = (*HTTPClient)(nil)
