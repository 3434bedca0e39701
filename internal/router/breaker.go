package router

import (
	"context"
	"errors"
	"fmt"

	"github.com/sony/gobreaker"

	"github.com/vnmchuo/interview-gateway/internal/provider"
)

// isSuccessful keeps caller-side failures and vendor rate limits from
// tripping a breaker.
func isSuccessful(err error) bool {
	return err == nil ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, provider.ErrMalformedResponse) ||
		errors.Is(err, provider.ErrRateLimited)
}

func execute[T any](cb *gobreaker.CircuitBreaker, fn func() (T, error)) (T, error) {
	var zero T
	result, err := cb.Execute(func() (interface{}, error) {
		return fn()
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return zero, fmt.Errorf("%s: %w", cb.Name(), provider.ErrUnavailable)
	}
	if err != nil {
		return zero, err
	}
	return result.(T), nil
}

type guardedAI struct {
	next provider.AIProvider
	cb   *gobreaker.CircuitBreaker
}

func (g *guardedAI) Name() string { return g.next.Name() }

func (g *guardedAI) ParseJobListing(ctx context.Context, rawText string) (*provider.ParsedJobListing, error) {
	return execute(g.cb, func() (*provider.ParsedJobListing, error) {
		return g.next.ParseJobListing(ctx, rawText)
	})
}

func (g *guardedAI) GenerateQuestions(ctx context.Context, job *provider.ParsedJobListing, style string, count int) ([]provider.InterviewQuestion, error) {
	return execute(g.cb, func() ([]provider.InterviewQuestion, error) {
		return g.next.GenerateQuestions(ctx, job, style, count)
	})
}

func (g *guardedAI) EvaluateAnswer(ctx context.Context, job *provider.ParsedJobListing, q *provider.InterviewQuestion, answer string) (*provider.AnswerEvaluation, error) {
	return execute(g.cb, func() (*provider.AnswerEvaluation, error) {
		return g.next.EvaluateAnswer(ctx, job, q, answer)
	})
}

func (g *guardedAI) GenerateReport(ctx context.Context, job *provider.ParsedJobListing, data *provider.InterviewData) (*provider.InterviewReport, error) {
	return execute(g.cb, func() (*provider.InterviewReport, error) {
		return g.next.GenerateReport(ctx, job, data)
	})
}

type guardedVoice struct {
	next provider.VoiceProvider
	cb   *gobreaker.CircuitBreaker
}

func (g *guardedVoice) Name() string { return g.next.Name() }

func (g *guardedVoice) TextToSpeech(ctx context.Context, text, voiceID string) (*provider.Audio, error) {
	return execute(g.cb, func() (*provider.Audio, error) {
		return g.next.TextToSpeech(ctx, text, voiceID)
	})
}

func (g *guardedVoice) SpeechToText(ctx context.Context, audio []byte, filename string) (string, error) {
	return execute(g.cb, func() (string, error) {
		return g.next.SpeechToText(ctx, audio, filename)
	})
}
