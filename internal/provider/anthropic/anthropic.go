package anthropic

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/vnmchuo/interview-gateway/internal/jsonrepair"
	"github.com/vnmchuo/interview-gateway/internal/provider"
)

const (
	DefaultModel = "claude-sonnet-4-5-20250929"
	apiVersion   = "2023-06-01"

	maxTokensDefault  = 1024
	maxTokensEvaluate = 512
)

type AnthropicProvider struct {
	apiKey     string
	model      string
	baseURL    string
	httpClient *http.Client
}

type messagesRequest struct {
	Model     string    `json:"model"`
	MaxTokens int       `json:"max_tokens"`
	System    string    `json:"system,omitempty"`
	Messages  []message `json:"messages"`
}

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type messagesResponse struct {
	ID      string         `json:"id"`
	Content []contentBlock `json:"content"`
	Model   string         `json:"model"`
	Usage   usage          `json:"usage"`
}

type contentBlock struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

type usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

func New(apiKey, model string) *AnthropicProvider {
	if model == "" {
		model = DefaultModel
	}
	return &AnthropicProvider{
		apiKey:     apiKey,
		model:      model,
		baseURL:    "https://api.anthropic.com/v1",
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

func (p *AnthropicProvider) Name() string {
	return "anthropic"
}

// complete sends one message and returns the first text block. Tokens are
// metered even when the caller later fails to parse the text.
func (p *AnthropicProvider) complete(ctx context.Context, system, user string, maxTokens int) (string, error) {
	body, err := json.Marshal(messagesRequest{
		Model:     p.model,
		MaxTokens: maxTokens,
		System:    system,
		Messages:  []message{{Role: "user", Content: user}},
	})
	if err != nil {
		return "", err
	}

	url := fmt.Sprintf("%s/messages", p.baseURL)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(body))
	if err != nil {
		return "", err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", p.apiKey)
	httpReq.Header.Set("anthropic-version", apiVersion)

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("anthropic api error (status %d): %s", resp.StatusCode, string(respBody))
	}

	var msg messagesResponse
	if err := json.NewDecoder(resp.Body).Decode(&msg); err != nil {
		return "", err
	}

	provider.MeterFrom(ctx).AddAITokens(int64(msg.Usage.InputTokens + msg.Usage.OutputTokens))

	for _, block := range msg.Content {
		if block.Type == "text" {
			return block.Text, nil
		}
	}
	return "", fmt.Errorf("anthropic api returned no text content: %w", provider.ErrMalformedResponse)
}

// decode parses model output, tolerating code fences.
func decode(text string, v any) error {
	if err := json.Unmarshal([]byte(jsonrepair.StripFences(text)), v); err != nil {
		return fmt.Errorf("anthropic: %w: %v", provider.ErrMalformedResponse, err)
	}
	return nil
}

func (p *AnthropicProvider) ParseJobListing(ctx context.Context, rawText string) (*provider.ParsedJobListing, error) {
	text, err := p.complete(ctx, provider.ParseJobListingPrompt, provider.ListingMessage(rawText), maxTokensDefault)
	if err != nil {
		return nil, err
	}
	var job provider.ParsedJobListing
	if err := decode(text, &job); err != nil {
		return nil, err
	}
	return &job, nil
}

func (p *AnthropicProvider) GenerateQuestions(ctx context.Context, job *provider.ParsedJobListing, style string, count int) ([]provider.InterviewQuestion, error) {
	text, err := p.complete(ctx, provider.GenerateQuestionsPrompt, provider.QuestionsMessage(job, style, count), maxTokensDefault)
	if err != nil {
		return nil, err
	}
	var qs []provider.InterviewQuestion
	if err := decode(text, &qs); err != nil {
		return nil, err
	}
	return qs, nil
}

func (p *AnthropicProvider) EvaluateAnswer(ctx context.Context, job *provider.ParsedJobListing, q *provider.InterviewQuestion, answer string) (*provider.AnswerEvaluation, error) {
	text, err := p.complete(ctx, provider.EvaluateAnswerPrompt, provider.EvaluationMessage(job, q, answer), maxTokensEvaluate)
	if err != nil {
		return nil, err
	}
	var eval provider.AnswerEvaluation
	if err := decode(text, &eval); err != nil {
		return nil, err
	}
	return &eval, nil
}

func (p *AnthropicProvider) GenerateReport(ctx context.Context, job *provider.ParsedJobListing, data *provider.InterviewData) (*provider.InterviewReport, error) {
	text, err := p.complete(ctx, provider.GenerateReportPrompt, provider.ReportMessage(job, data), maxTokensDefault)
	if err != nil {
		return nil, err
	}
	var report provider.InterviewReport
	if err := decode(text, &report); err != nil {
		return nil, err
	}
	return &report, nil
}
