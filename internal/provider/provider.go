package provider

import (
	"context"
	"io"
)

// AIProvider is a text-generation backend. Each operation is one round trip
// to the vendor with a fixed system instruction.
type AIProvider interface {
	Name() string
	ParseJobListing(ctx context.Context, rawText string) (*ParsedJobListing, error)
	GenerateQuestions(ctx context.Context, job *ParsedJobListing, style string, count int) ([]InterviewQuestion, error)
	EvaluateAnswer(ctx context.Context, job *ParsedJobListing, question *InterviewQuestion, answer string) (*AnswerEvaluation, error)
	GenerateReport(ctx context.Context, job *ParsedJobListing, data *InterviewData) (*InterviewReport, error)
}

// Audio is synthesized speech. Callers must close Body.
type Audio struct {
	Body        io.ReadCloser
	ContentType string
}

// VoiceProvider is a speech backend. An empty voiceID selects the backend's
// default voice.
type VoiceProvider interface {
	Name() string
	TextToSpeech(ctx context.Context, text, voiceID string) (*Audio, error)
	SpeechToText(ctx context.Context, audio []byte, filename string) (string, error)
}
