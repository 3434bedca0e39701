package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/vnmchuo/interview-gateway/internal/jsonrepair"
	"github.com/vnmchuo/interview-gateway/internal/provider"
)

const (
	DefaultURL   = "http://localhost:11434"
	DefaultModel = "gemma3:4b"

	// maxEvaluateAttempts bounds round trips for one answer evaluation
	// before the neutral fallback is returned.
	maxEvaluateAttempts = 3

	// requestTimeout is longer than the cloud vendors' because local models
	// on CPU generate slowly.
	requestTimeout = 120 * time.Second

	numPredict  = 4096
	temperature = 0.7
)

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
	Stream   bool          `json:"stream"`
	Format   string        `json:"format"`
	Options  chatOptions   `json:"options"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatOptions struct {
	Temperature float64 `json:"temperature"`
	NumPredict  int     `json:"num_predict"`
}

type chatResponse struct {
	Model           string      `json:"model"`
	Message         chatMessage `json:"message"`
	Done            bool        `json:"done"`
	PromptEvalCount int         `json:"prompt_eval_count"`
	EvalCount       int         `json:"eval_count"`
}

// OllamaProvider talks to a local model server. Small models often return
// malformed JSON, so every response goes through the repair pass.
type OllamaProvider struct {
	baseURL    string
	model      string
	httpClient *http.Client
	logger     *zap.Logger
}

func New(baseURL, model string, logger *zap.Logger) *OllamaProvider {
	if baseURL == "" {
		baseURL = DefaultURL
	}
	if model == "" {
		model = DefaultModel
	}
	return &OllamaProvider{
		baseURL:    baseURL,
		model:      model,
		httpClient: &http.Client{Timeout: requestTimeout},
		logger:     logger,
	}
}

func (p *OllamaProvider) Name() string {
	return "ollama"
}

func (p *OllamaProvider) chat(ctx context.Context, system, user string) (string, error) {
	body, err := json.Marshal(chatRequest{
		Model: p.model,
		Messages: []chatMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: user},
		},
		Stream:  false,
		Format:  "json",
		Options: chatOptions{Temperature: temperature, NumPredict: numPredict},
	})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("ollama error %d: %s", resp.StatusCode, string(respBody))
	}

	var out chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("ollama: %w: %v", provider.ErrMalformedResponse, err)
	}
	provider.MeterFrom(ctx).AddAITokens(int64(out.PromptEvalCount + out.EvalCount))

	return jsonrepair.StripFences(out.Message.Content), nil
}

func (p *OllamaProvider) ParseJobListing(ctx context.Context, rawText string) (*provider.ParsedJobListing, error) {
	text, err := p.chat(ctx, provider.ParseJobListingPrompt, provider.ListingMessage(rawText))
	if err != nil {
		return nil, err
	}
	var job provider.ParsedJobListing
	if err := jsonrepair.Parse(text, &job); err != nil {
		return nil, fmt.Errorf("ollama: %w: %v", provider.ErrMalformedResponse, err)
	}
	return &job, nil
}

func (p *OllamaProvider) GenerateQuestions(ctx context.Context, job *provider.ParsedJobListing, style string, count int) ([]provider.InterviewQuestion, error) {
	text, err := p.chat(ctx, provider.GenerateQuestionsPrompt, provider.QuestionsMessage(job, style, count))
	if err != nil {
		return nil, err
	}
	var raw json.RawMessage
	if err := jsonrepair.Parse(text, &raw); err != nil {
		return nil, fmt.Errorf("ollama: %w: %v", provider.ErrMalformedResponse, err)
	}

	qs, shape := normalizeQuestions(raw)
	if shape == shapeUnknown {
		p.logger.Warn("unexpected questions format from ollama", zap.String("preview", preview(raw)))
	}
	return qs, nil
}

// EvaluateAnswer never fails on malformed output: after maxEvaluateAttempts
// unparseable round trips it returns the neutral fallback evaluation.
func (p *OllamaProvider) EvaluateAnswer(ctx context.Context, job *provider.ParsedJobListing, q *provider.InterviewQuestion, answer string) (*provider.AnswerEvaluation, error) {
	msg := provider.EvaluationMessage(job, q, answer)

	for attempt := 1; attempt <= maxEvaluateAttempts; attempt++ {
		text, err := p.chat(ctx, provider.EvaluateAnswerPrompt, msg)
		if err == nil {
			var eval provider.AnswerEvaluation
			if err = jsonrepair.Parse(text, &eval); err == nil {
				return &eval, nil
			}
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		p.logger.Warn("ollama evaluate attempt failed",
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", maxEvaluateAttempts),
			zap.Error(err),
		)
	}

	p.logger.Error("all ollama evaluate attempts failed, returning fallback score")
	return provider.FallbackEvaluation(), nil
}

func (p *OllamaProvider) GenerateReport(ctx context.Context, job *provider.ParsedJobListing, data *provider.InterviewData) (*provider.InterviewReport, error) {
	text, err := p.chat(ctx, provider.GenerateReportPrompt, provider.ReportMessage(job, data))
	if err != nil {
		return nil, err
	}
	var report provider.InterviewReport
	if err := jsonrepair.Parse(text, &report); err != nil {
		return nil, fmt.Errorf("ollama: %w: %v", provider.ErrMalformedResponse, err)
	}
	return &report, nil
}

func preview(b []byte) string {
	if len(b) > 200 {
		return string(b[:200])
	}
	return string(b)
}
