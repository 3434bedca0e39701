package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/vnmchuo/interview-gateway/internal/provider"
)

const (
	DefaultModel   = "gemini-2.0-flash"
	defaultBaseURL = "https://generativelanguage.googleapis.com"

	// maxRateLimitRetries is how many times a 429 is retried before giving up.
	maxRateLimitRetries = 3
)

// backoffDelay is the wait before retry n (0-based): 2s, 4s, 8s.
func backoffDelay(n int) time.Duration {
	return time.Duration(1<<(n+1)) * time.Second
}

type generateRequest struct {
	SystemInstruction *content         `json:"system_instruction,omitempty"`
	Contents          []content        `json:"contents"`
	GenerationConfig  generationConfig `json:"generationConfig"`
}

type content struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts"`
}

type part struct {
	Text       string      `json:"text,omitempty"`
	InlineData *inlineData `json:"inlineData,omitempty"`
}

type inlineData struct {
	MimeType string `json:"mimeType"`
	Data     string `json:"data"`
}

type generationConfig struct {
	MaxOutputTokens    int             `json:"maxOutputTokens,omitempty"`
	Temperature        float64         `json:"temperature,omitempty"`
	ResponseMimeType   string          `json:"responseMimeType,omitempty"`
	ResponseModalities []string        `json:"responseModalities,omitempty"`
	SpeechConfig       *speechConfig   `json:"speechConfig,omitempty"`
	ThinkingConfig     *thinkingConfig `json:"thinkingConfig,omitempty"`
}

type speechConfig struct {
	VoiceConfig voiceConfig `json:"voiceConfig"`
}

type voiceConfig struct {
	PrebuiltVoiceConfig prebuiltVoiceConfig `json:"prebuiltVoiceConfig"`
}

type prebuiltVoiceConfig struct {
	VoiceName string `json:"voiceName"`
}

type thinkingConfig struct {
	ThinkingBudget int `json:"thinkingBudget"`
}

type generateResponse struct {
	Candidates    []candidate   `json:"candidates"`
	UsageMetadata usageMetadata `json:"usageMetadata"`
}

type candidate struct {
	Content content `json:"content"`
}

type usageMetadata struct {
	PromptTokenCount     int              `json:"promptTokenCount"`
	CandidatesTokenCount int              `json:"candidatesTokenCount"`
	TotalTokenCount      int              `json:"totalTokenCount"`
	PromptTokensDetails  []modalityTokens `json:"promptTokensDetails"`
}

type modalityTokens struct {
	Modality   string `json:"modality"`
	TokenCount int    `json:"tokenCount"`
}

func (u usageMetadata) total() int64 {
	if u.TotalTokenCount > 0 {
		return int64(u.TotalTokenCount)
	}
	return int64(u.PromptTokenCount + u.CandidatesTokenCount)
}

// audioTokensPerSecond is Gemini's fixed tokenization rate for audio input.
const audioTokensPerSecond = 32

func (u usageMetadata) audioSeconds() float64 {
	for _, d := range u.PromptTokensDetails {
		if d.Modality == "AUDIO" {
			return float64(d.TokenCount) / audioTokensPerSecond
		}
	}
	return 0
}

type apiError struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Details []struct {
			Type       string `json:"@type"`
			RetryDelay string `json:"retryDelay"`
		} `json:"details"`
	} `json:"error"`
}

// retryDelayHint extracts RetryInfo.retryDelay from a Gemini error body.
func retryDelayHint(body []byte) string {
	var e apiError
	if err := json.Unmarshal(body, &e); err != nil {
		return ""
	}
	for _, d := range e.Error.Details {
		if strings.Contains(d.Type, "RetryInfo") {
			return d.RetryDelay
		}
	}
	return ""
}

// client is the generateContent transport shared by the AI and voice
// backends.
type client struct {
	apiKey     string
	model      string
	baseURL    string
	httpClient *http.Client
	logger     *zap.Logger
	sleep      func(ctx context.Context, d time.Duration) error
}

func newClient(apiKey, model string, logger *zap.Logger) *client {
	if model == "" {
		model = DefaultModel
	}
	return &client{
		apiKey:     apiKey,
		model:      model,
		baseURL:    defaultBaseURL,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		logger:     logger,
		sleep:      sleepContext,
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// generate posts req, retrying 429 responses with exponential backoff.
func (c *client) generate(ctx context.Context, req *generateRequest) (*generateResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}

	url := fmt.Sprintf("%s/v1beta/models/%s:generateContent?key=%s", c.baseURL, c.model, c.apiKey)

	for attempt := 0; ; attempt++ {
		status, respBody, err := c.post(ctx, url, body)
		if err != nil {
			return nil, err
		}

		switch {
		case status == http.StatusOK:
			var out generateResponse
			if err := json.Unmarshal(respBody, &out); err != nil {
				return nil, fmt.Errorf("gemini: %w: %v", provider.ErrMalformedResponse, err)
			}
			return &out, nil

		case status == http.StatusTooManyRequests && attempt < maxRateLimitRetries:
			delay := backoffDelay(attempt)
			c.logger.Warn("gemini rate limited, retrying",
				zap.Duration("delay", delay),
				zap.Int("attempt", attempt+1),
				zap.Int("max_retries", maxRateLimitRetries),
			)
			if err := c.sleep(ctx, delay); err != nil {
				return nil, err
			}

		case status == http.StatusTooManyRequests:
			hint := retryDelayHint(respBody)
			msg := "Gemini free tier quota exhausted. Try again later or enable billing at ai.google.dev."
			if hint != "" {
				msg = fmt.Sprintf("Gemini free tier quota exhausted. Resets at midnight PT. Retry delay: %s", hint)
			}
			return nil, &provider.RateLimitError{Provider: "gemini", RetryDelay: hint, Message: msg}

		default:
			return nil, fmt.Errorf("gemini api error (status %d): %s", status, string(respBody))
		}
	}
}

func (c *client) post(ctx context.Context, url string, body []byte) (int, []byte, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return 0, nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, err
	}
	return resp.StatusCode, respBody, nil
}

// text joins the text parts of the first candidate.
func (r *generateResponse) text() string {
	if len(r.Candidates) == 0 {
		return ""
	}
	var b strings.Builder
	for _, p := range r.Candidates[0].Content.Parts {
		b.WriteString(p.Text)
	}
	return b.String()
}
