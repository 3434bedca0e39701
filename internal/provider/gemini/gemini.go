package gemini

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/vnmchuo/interview-gateway/internal/jsonrepair"
	"github.com/vnmchuo/interview-gateway/internal/provider"
)

const (
	maxTokensDefault  = 4096
	maxTokensEvaluate = 2048
	temperature       = 0.7
	thinkingBudget    = 1024
)

type GeminiProvider struct {
	*client
}

func New(apiKey, model string, logger *zap.Logger) *GeminiProvider {
	return &GeminiProvider{client: newClient(apiKey, model, logger)}
}

func (p *GeminiProvider) Name() string {
	return "gemini"
}

// isThinkingModel reports whether the model needs a thinking budget.
func (p *GeminiProvider) isThinkingModel() bool {
	return strings.Contains(p.model, "2.5")
}

func (p *GeminiProvider) generateJSON(ctx context.Context, system, user string, maxTokens int, v any) error {
	req := &generateRequest{
		SystemInstruction: &content{Parts: []part{{Text: system}}},
		Contents:          []content{{Role: "user", Parts: []part{{Text: user}}}},
		GenerationConfig: generationConfig{
			MaxOutputTokens:  maxTokens,
			Temperature:      temperature,
			ResponseMimeType: "application/json",
		},
	}
	if p.isThinkingModel() {
		req.GenerationConfig.ThinkingConfig = &thinkingConfig{ThinkingBudget: thinkingBudget}
	}

	resp, err := p.generate(ctx, req)
	if err != nil {
		return err
	}
	provider.MeterFrom(ctx).AddAITokens(resp.UsageMetadata.total())

	text := jsonrepair.StripFences(resp.text())
	if text == "" {
		return fmt.Errorf("gemini returned empty text: %w", provider.ErrMalformedResponse)
	}
	if err := json.Unmarshal([]byte(text), v); err != nil {
		return fmt.Errorf("gemini: %w: %v", provider.ErrMalformedResponse, err)
	}
	return nil
}

func (p *GeminiProvider) ParseJobListing(ctx context.Context, rawText string) (*provider.ParsedJobListing, error) {
	var job provider.ParsedJobListing
	if err := p.generateJSON(ctx, provider.ParseJobListingPrompt, provider.ListingMessage(rawText), maxTokensDefault, &job); err != nil {
		return nil, err
	}
	return &job, nil
}

func (p *GeminiProvider) GenerateQuestions(ctx context.Context, job *provider.ParsedJobListing, style string, count int) ([]provider.InterviewQuestion, error) {
	var qs []provider.InterviewQuestion
	if err := p.generateJSON(ctx, provider.GenerateQuestionsPrompt, provider.QuestionsMessage(job, style, count), maxTokensDefault, &qs); err != nil {
		return nil, err
	}
	return qs, nil
}

func (p *GeminiProvider) EvaluateAnswer(ctx context.Context, job *provider.ParsedJobListing, q *provider.InterviewQuestion, answer string) (*provider.AnswerEvaluation, error) {
	var eval provider.AnswerEvaluation
	if err := p.generateJSON(ctx, provider.EvaluateAnswerPrompt, provider.EvaluationMessage(job, q, answer), maxTokensEvaluate, &eval); err != nil {
		return nil, err
	}
	return &eval, nil
}

func (p *GeminiProvider) GenerateReport(ctx context.Context, job *provider.ParsedJobListing, data *provider.InterviewData) (*provider.InterviewReport, error) {
	var report provider.InterviewReport
	if err := p.generateJSON(ctx, provider.GenerateReportPrompt, provider.ReportMessage(job, data), maxTokensDefault, &report); err != nil {
		return nil, err
	}
	return &report, nil
}
