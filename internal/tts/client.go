package tts

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"unicode"
)

// Static errors for TTS client operations.
var (
	// ErrAPIKeyNotSet is returned when no API key is configured.
	ErrAPIKeyNotSet = errors.New("tts: ZALO_API_KEY is not set")
	// ErrTextRequired is returned when the text to synthesize is empty.
	ErrTextRequired = errors.New("tts: text is required")
	// ErrSynthesisFailed is returned when the API reports a non-zero error code.
	ErrSynthesisFailed = errors.New("tts: synthesis failed")
	// ErrNoAudioURL is returned when a successful response carries no audio URL.
	ErrNoAudioURL = errors.New("tts: no audio URL in response")
	// ErrRequestFailed is returned when a request fails with a non-2xx status code.
	ErrRequestFailed = errors.New("tts: request failed")
	// ErrEmptyAudio is returned when the audio download has no content.
	ErrEmptyAudio = errors.New("tts: empty audio")
)

// DefaultBaseURL is the Zalo AI API root.
const DefaultBaseURL = "https://api.zalo.ai"

// Client defines the interface for speech synthesis.
type Client interface {
	// Synthesize converts text to speech and returns the encoded audio bytes.
	Synthesize(ctx context.Context, text string) ([]byte, error)
}

// HTTPClient is the HTTP implementation of the Client interface.
type HTTPClient struct {
	apiKey     string
	baseURL    string
	opts       SynthesizeOptions
	httpClient *http.Client
}

// ClientOption is a function that configures an HTTPClient.
type ClientOption func(*HTTPClient)

// WithAPIKey sets the API key sent in the apikey header.
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

// WithBaseURL sets a custom base URL for the API.
func WithBaseURL(u string) ClientOption {
	return func(hc *HTTPClient) {
		hc.baseURL = strings.TrimRight(u, "/")
	}
}

// WithSpeaker sets the voice.
func WithSpeaker(id int) ClientOption {
	return func(hc *HTTPClient) {
		if id > 0 {
			hc.opts.SpeakerID = id
		}
	}
}

// WithSpeed sets the speaking rate.
func WithSpeed(speed float64) ClientOption {
	return func(hc *HTTPClient) {
		if speed > 0 {
			hc.opts.Speed = speed
		}
	}
}

// NewClient creates a new Zalo TTS client.
// The API key can be set via the WithAPIKey option. If not provided,
// it is read from the environment variable ZALO_API_KEY.
func NewClient(opts ...ClientOption) (*HTTPClient, error) {
	c := &HTTPClient{
		baseURL:    DefaultBaseURL,
		opts:       DefaultSynthesizeOptions(),
		// No client timeout: synthesis is bounded by the caller's context.
		httpClient: &http.Client{},
	}

	for _, opt := range opts {
		opt(c)
	}

	if c.apiKey == "" {
		c.apiKey = os.Getenv("ZALO_API_KEY")
	}

	if c.apiKey == "" {
		return nil, ErrAPIKeyNotSet
	}

	return c, nil
}

// Synthesize requests speech for text and downloads the resulting audio.
// Text longer than MaxInputRunes is synthesized in chunks and the MP3
// streams are joined in order. There is a single attempt per request.
func (c *HTTPClient) Synthesize(ctx context.Context, text string) ([]byte, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrTextRequired
	}

	var audio []byte
	for i, chunk := range SplitText(text, MaxInputRunes) {
		audioURL, err := c.requestSynthesis(ctx, chunk)
		if err != nil {
			return nil, fmt.Errorf("chunk %d: %w", i, err)
		}
		data, err := c.downloadAudio(ctx, audioURL)
		if err != nil {
			return nil, fmt.Errorf("chunk %d: %w", i, err)
		}
		audio = append(audio, data...)
	}
	return audio, nil
}

// SplitText cuts text into chunks of at most limit runes. Cuts prefer the
// last sentence end in the second half of a window, then the last space.
func SplitText(text string, limit int) []string {
	var chunks []string
	rest := []rune(strings.TrimSpace(text))
	for len(rest) > limit {
		cut := splitPoint(rest[:limit])
		if chunk := strings.TrimSpace(string(rest[:cut])); chunk != "" {
			chunks = append(chunks, chunk)
		}
		rest = []rune(strings.TrimSpace(string(rest[cut:])))
	}
	if len(rest) > 0 {
		chunks = append(chunks, string(rest))
	}
	return chunks
}

func splitPoint(window []rune) int {
	for i := len(window) - 1; i >= len(window)/2; i-- {
		switch window[i] {
		case '.', '!', '?', '…', '\n':
			return i + 1
		}
	}
	for i := len(window) - 1; i > 0; i-- {
		if unicode.IsSpace(window[i]) {
			return i
		}
	}
	return len(window)
}

// requestSynthesis posts the text form and returns the generated audio URL.
func (c *HTTPClient) requestSynthesis(ctx context.Context, text string) (string, error) {
	form := url.Values{}
	form.Set("input", text)
	form.Set("speaker_id", strconv.Itoa(c.opts.SpeakerID))
	form.Set("speed", strconv.FormatFloat(c.opts.Speed, 'f', -1, 64))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/tts/synthesize", strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("tts: create request: %w", err)
	}
	req.Header.Set("apikey", c.apiKey)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("tts: request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("tts: read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("%w with status %d: %s", ErrRequestFailed, resp.StatusCode, string(body))
	}

	var sr synthesizeResponse
	if err := json.Unmarshal(body, &sr); err != nil {
		return "", fmt.Errorf("tts: unmarshal response: %w", err)
	}
	if sr.ErrorCode != 0 {
		return "", fmt.Errorf("%w: code %d: %s", ErrSynthesisFailed, sr.ErrorCode, sr.ErrorMessage)
	}
	if sr.Data.URL == "" {
		return "", ErrNoAudioURL
	}

	return sr.Data.URL, nil
}

// downloadAudio fetches the generated audio file.
func (c *HTTPClient) downloadAudio(ctx context.Context, audioURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, audioURL, nil)
	if err != nil {
		return nil, fmt.Errorf("tts: create download request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("tts: download request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: audio download status %d", ErrRequestFailed, resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("tts: read audio: %w", err)
	}
	if len(data) == 0 {
		return nil, ErrEmptyAudio
	}

	return data, nil
}

// Verify interface implementation at compile time.
var _ Client = (*HTTPClient)(nil)
