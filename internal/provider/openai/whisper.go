package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"time"

	"github.com/vnmchuo/interview-gateway/internal/provider"
)

const (
	WhisperModel   = "whisper-1"
	defaultBaseURL = "https://api.openai.com/v1"
)

type transcriptionResponse struct {
	Text     string  `json:"text"`
	Language string  `json:"language"`
	Duration float64 `json:"duration"`
}

// WhisperTranscriber posts audio to the dedicated transcription endpoint.
type WhisperTranscriber struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

func NewWhisper(apiKey string) *WhisperTranscriber {
	return &WhisperTranscriber{
		apiKey:     apiKey,
		baseURL:    defaultBaseURL,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

func (w *WhisperTranscriber) Transcribe(ctx context.Context, audio []byte, filename string) (string, error) {
	if filename == "" {
		filename = "recording.m4a"
	}
	body, contentType, err := multipartBody(audio, filename)
	if err != nil {
		return "", err
	}

	url := fmt.Sprintf("%s/audio/transcriptions", w.baseURL)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, body)
	if err != nil {
		return "", err
	}
	httpReq.Header.Set("Content-Type", contentType)
	httpReq.Header.Set("Authorization", fmt.Sprintf("Bearer %s", w.apiKey))

	resp, err := w.httpClient.Do(httpReq)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("openai transcription error (status %d): %s", resp.StatusCode, string(respBody))
	}

	var out transcriptionResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("openai: %w: %v", provider.ErrMalformedResponse, err)
	}
	provider.MeterFrom(ctx).AddSTTSeconds(out.Duration)

	return strings.TrimSpace(out.Text), nil
}

func multipartBody(audio []byte, filename string) (*bytes.Buffer, string, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, filename))
	h.Set("Content-Type", "audio/m4a")
	part, err := mw.CreatePart(h)
	if err != nil {
		return nil, "", err
	}
	if _, err := part.Write(audio); err != nil {
		return nil, "", err
	}

	if err := mw.WriteField("model", WhisperModel); err != nil {
		return nil, "", err
	}
	// verbose_json carries the audio duration used for cost metering.
	if err := mw.WriteField("response_format", "verbose_json"); err != nil {
		return nil, "", err
	}
	if err := mw.Close(); err != nil {
		return nil, "", err
	}
	return &buf, mw.FormDataContentType(), nil
}
