package api

import (
	"errors"
	"io"
	"net/http"

	"go.uber.org/zap"
)

type ttsRequest struct {
	Text    string `json:"text"`
	VoiceID string `json:"voiceId"`
}

func (h *Handler) HandleTTS(w http.ResponseWriter, r *http.Request) {
	var req ttsRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Text == "" {
		writeError(w, http.StatusBadRequest, "Missing text")
		return
	}

	ctx, span := h.begin(r, "voice.tts")
	defer span.End()

	voice, err := h.voiceFor(ctx, span)
	if err != nil {
		h.fail(w, span, err, "TTS failed")
		return
	}
	audio, err := voice.TextToSpeech(ctx, req.Text, req.VoiceID)
	h.settle(ctx)
	if err != nil {
		h.fail(w, span, err, "TTS failed")
		return
	}
	defer audio.Body.Close()

	contentType := audio.ContentType
	if contentType == "" {
		contentType = "audio/mpeg"
	}
	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, audio.Body); err != nil {
		h.logger.Warn("audio stream interrupted", zap.Error(err))
	}
}

func (h *Handler) HandleSTT(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxAudioBody+(1<<20))
	file, header, err := r.FormFile("audio")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "Audio file too large")
			return
		}
		writeError(w, http.StatusBadRequest, "No audio file")
		return
	}
	defer file.Close()

	if header.Size > maxAudioBody {
		writeError(w, http.StatusRequestEntityTooLarge, "Audio file too large")
		return
	}
	data, err := io.ReadAll(file)
	if err != nil || len(data) == 0 {
		writeError(w, http.StatusBadRequest, "No audio file")
		return
	}

	ctx, span := h.begin(r, "voice.stt")
	defer span.End()

	voice, err := h.voiceFor(ctx, span)
	if err != nil {
		h.fail(w, span, err, "Transcription failed")
		return
	}
	text, err := voice.SpeechToText(ctx, data, header.Filename)
	h.settle(ctx)
	if err != nil {
		h.fail(w, span, err, "Transcription failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"text": text})
}
