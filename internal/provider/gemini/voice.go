package gemini

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/vnmchuo/interview-gateway/internal/provider"
)

const (
	maxSpeechChars   = 2000
	ttsVoice         = "Kore"
	ttsInstruction   = "Read the following aloud as a professional interviewer:\n\n"
	sttInstruction   = "Transcribe this audio exactly as spoken. Return only the transcription text, nothing else."
	sttMaxTokens     = 2048
	sttTemperature   = 0.1
	defaultAudioMime = "audio/m4a"
)

var audioMimeTypes = map[string]string{
	".m4a":  "audio/m4a",
	".mp3":  "audio/mpeg",
	".wav":  "audio/wav",
	".webm": "audio/webm",
	".ogg":  "audio/ogg",
	".aac":  "audio/aac",
	".flac": "audio/flac",
}

// VoiceProvider synthesizes and transcribes speech with the general-purpose
// model.
type VoiceProvider struct {
	*client
}

func NewVoice(apiKey, model string, logger *zap.Logger) *VoiceProvider {
	return &VoiceProvider{client: newClient(apiKey, model, logger)}
}

func (p *VoiceProvider) Name() string {
	return "gemini"
}

func (p *VoiceProvider) TextToSpeech(ctx context.Context, text, _ string) (*provider.Audio, error) {
	text = provider.Truncate(text, maxSpeechChars)

	resp, err := p.generate(ctx, &generateRequest{
		Contents: []content{{Role: "user", Parts: []part{{Text: ttsInstruction + text}}}},
		GenerationConfig: generationConfig{
			ResponseModalities: []string{"AUDIO"},
			SpeechConfig: &speechConfig{
				VoiceConfig: voiceConfig{PrebuiltVoiceConfig: prebuiltVoiceConfig{VoiceName: ttsVoice}},
			},
		},
	})
	if err != nil {
		return nil, err
	}
	provider.MeterFrom(ctx).AddTTSChars(int64(len([]rune(text))))

	if len(resp.Candidates) > 0 {
		for _, pt := range resp.Candidates[0].Content.Parts {
			if pt.InlineData == nil || !strings.HasPrefix(pt.InlineData.MimeType, "audio/") {
				continue
			}
			audio, err := base64.StdEncoding.DecodeString(pt.InlineData.Data)
			if err != nil {
				return nil, fmt.Errorf("gemini: invalid audio payload: %w", err)
			}
			return &provider.Audio{
				Body:        io.NopCloser(bytes.NewReader(audio)),
				ContentType: pt.InlineData.MimeType,
			}, nil
		}
	}
	return nil, fmt.Errorf("no audio in gemini response: %w", provider.ErrMalformedResponse)
}

func (p *VoiceProvider) SpeechToText(ctx context.Context, audio []byte, filename string) (string, error) {
	mime, ok := audioMimeTypes[strings.ToLower(filepath.Ext(filename))]
	if !ok {
		mime = defaultAudioMime
	}

	resp, err := p.generate(ctx, &generateRequest{
		Contents: []content{{
			Role: "user",
			Parts: []part{
				{InlineData: &inlineData{MimeType: mime, Data: base64.StdEncoding.EncodeToString(audio)}},
				{Text: sttInstruction},
			},
		}},
		GenerationConfig: generationConfig{
			MaxOutputTokens: sttMaxTokens,
			Temperature:     sttTemperature,
		},
	})
	if err != nil {
		return "", err
	}
	provider.MeterFrom(ctx).AddSTTSeconds(resp.UsageMetadata.audioSeconds())

	return strings.TrimSpace(resp.text()), nil
}
