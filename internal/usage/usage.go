// Package usage enforces per-user daily caps on AI tokens and synthesized
// speech characters.
package usage

import (
	"context"
	"fmt"
	"time"

	"github.com/vnmchuo/interview-gateway/internal/tier"
)

const dateLayout = "2006-01-02"

// Record is one user's consumption for one calendar day.
type Record struct {
	UserID   string `json:"-"`
	Date     string `json:"date"`
	AITokens int64  `json:"aiTokens"`
	TTSChars int64  `json:"ttsChars"`
}

// Store persists daily records. Get returns a zero record dated date when the
// user has no record for that day.
type Store interface {
	Get(ctx context.Context, userID, date string) (Record, error)
	Add(ctx context.Context, userID, date string, aiTokens, ttsChars int64) (Record, error)
}

type Kind string

const (
	KindAI  Kind = "ai"
	KindTTS Kind = "tts"
)

// ExceededError reports a daily cap that has been met or passed.
type ExceededError struct {
	Kind    Kind
	Current int64
	Limit   int64
}

func (e *ExceededError) Error() string {
	return fmt.Sprintf("daily %s usage limit reached (%d/%d)", e.Kind, e.Current, e.Limit)
}

type Tracker struct {
	store Store
	now   func() time.Time
}

func NewTracker(store Store) *Tracker {
	return &Tracker{store: store, now: time.Now}
}

// WithClock replaces the tracker's time source. Days roll over at midnight in
// the clock's location.
func (t *Tracker) WithClock(now func() time.Time) *Tracker {
	t.now = now
	return t
}

func (t *Tracker) today() string {
	return t.now().Format(dateLayout)
}

// Today returns the user's record for the current day.
func (t *Tracker) Today(ctx context.Context, userID string) (Record, error) {
	rec, err := t.store.Get(ctx, userID, t.today())
	if err != nil {
		return Record{}, fmt.Errorf("failed to get usage: %w", err)
	}
	return rec, nil
}

// Check rejects users whose AI usage already meets the tier cap, and for voice
// synthesis also those at the TTS cap. On success it returns the recorder the
// handler must call once the provider call completes.
func (t *Tracker) Check(ctx context.Context, userID string, profile tier.Profile, voiceSynthesis bool) (*Recorder, error) {
	rec, err := t.Today(ctx, userID)
	if err != nil {
		return nil, err
	}

	if rec.AITokens >= profile.DailyAITokens {
		return nil, &ExceededError{Kind: KindAI, Current: rec.AITokens, Limit: profile.DailyAITokens}
	}
	if voiceSynthesis && rec.TTSChars >= profile.DailyTTSChars {
		return nil, &ExceededError{Kind: KindTTS, Current: rec.TTSChars, Limit: profile.DailyTTSChars}
	}

	return &Recorder{tracker: t, userID: userID}, nil
}

// Recorder advances one user's daily ledger.
type Recorder struct {
	tracker *Tracker
	userID  string
}

func (r *Recorder) Record(ctx context.Context, aiTokens, ttsChars int64) error {
	if aiTokens <= 0 && ttsChars <= 0 {
		return nil
	}
	if aiTokens < 0 {
		aiTokens = 0
	}
	if ttsChars < 0 {
		ttsChars = 0
	}
	if _, err := r.tracker.store.Add(ctx, r.userID, r.tracker.today(), aiTokens, ttsChars); err != nil {
		return fmt.Errorf("failed to record usage: %w", err)
	}
	return nil
}

type contextKey string

const recorderKey contextKey = "usage_recorder"

func WithRecorder(ctx context.Context, r *Recorder) context.Context {
	return context.WithValue(ctx, recorderKey, r)
}

// RecorderFrom returns the request's recorder, or nil outside the usage gate.
func RecorderFrom(ctx context.Context) *Recorder {
	r, _ := ctx.Value(recorderKey).(*Recorder)
	return r
}
