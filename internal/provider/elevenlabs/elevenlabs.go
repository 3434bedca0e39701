package elevenlabs

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/vnmchuo/interview-gateway/internal/provider"
)

const (
	DefaultVoiceID = "21m00Tcm4TlvDq8ikWAM"
	ttsModel       = "eleven_turbo_v2"
	maxSpeechChars = 5000
	defaultBaseURL = "https://api.elevenlabs.io/v1"
)

type voiceSettings struct {
	Stability       float64 `json:"stability"`
	SimilarityBoost float64 `json:"similarity_boost"`
	Style           float64 `json:"style"`
}

type speechRequest struct {
	Text          string        `json:"text"`
	ModelID       string        `json:"model_id"`
	VoiceSettings voiceSettings `json:"voice_settings"`
}

// Transcriber converts recorded audio to text.
type Transcriber interface {
	Transcribe(ctx context.Context, audio []byte, filename string) (string, error)
}

// VoiceProvider streams ElevenLabs speech and delegates transcription.
type VoiceProvider struct {
	apiKey      string
	baseURL     string
	httpClient  *http.Client
	transcriber Transcriber
}

func New(apiKey string, transcriber Transcriber) *VoiceProvider {
	return &VoiceProvider{
		apiKey:      apiKey,
		baseURL:     defaultBaseURL,
		httpClient:  &http.Client{Timeout: 60 * time.Second},
		transcriber: transcriber,
	}
}

func (p *VoiceProvider) Name() string {
	return "elevenlabs-whisper"
}

// TextToSpeech returns the vendor's response body as the audio stream.
func (p *VoiceProvider) TextToSpeech(ctx context.Context, text, voiceID string) (*provider.Audio, error) {
	if voiceID == "" {
		voiceID = DefaultVoiceID
	}
	text = provider.Truncate(text, maxSpeechChars)

	body, err := json.Marshal(speechRequest{
		Text:    text,
		ModelID: ttsModel,
		VoiceSettings: voiceSettings{
			Stability:       0.5,
			SimilarityBoost: 0.75,
			Style:           0.3,
		},
	})
	if err != nil {
		return nil, err
	}

	url := fmt.Sprintf("%s/text-to-speech/%s/stream", p.baseURL, voiceID)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("xi-api-key", p.apiKey)

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		respBody, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("elevenlabs api error (status %d): %s", resp.StatusCode, string(respBody))
	}
	provider.MeterFrom(ctx).AddTTSChars(int64(len([]rune(text))))

	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "audio/mpeg"
	}
	return &provider.Audio{Body: resp.Body, ContentType: contentType}, nil
}

func (p *VoiceProvider) SpeechToText(ctx context.Context, audio []byte, filename string) (string, error) {
	if p.transcriber == nil {
		return "", fmt.Errorf("elevenlabs: no transcriber configured")
	}
	return p.transcriber.Transcribe(ctx, audio, filename)
}
