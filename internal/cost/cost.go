// Package cost keeps the process-wide monthly spend ledger and derives the
// service degradation level from it.
package cost

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const monthLayout = "2006-01"

type Category string

const (
	CategoryAI  Category = "ai"
	CategoryTTS Category = "tts"
	CategorySTT Category = "stt"
)

// Rates are USD per unit: AI token, synthesized character, transcribed minute.
type Rates struct {
	AIToken   decimal.Decimal
	TTSChar   decimal.Decimal
	STTMinute decimal.Decimal
}

func DefaultRates() Rates {
	return Rates{
		AIToken:   decimal.RequireFromString("0.000003"),
		TTSChar:   decimal.RequireFromString("0.000018"),
		STTMinute: decimal.RequireFromString("0.006"),
	}
}

func (r Rates) For(cat Category) (decimal.Decimal, error) {
	switch cat {
	case CategoryAI:
		return r.AIToken, nil
	case CategoryTTS:
		return r.TTSChar, nil
	case CategorySTT:
		return r.STTMinute, nil
	}
	return decimal.Zero, fmt.Errorf("unknown cost category %q", cat)
}

// Ledger is the accumulated USD spend for one month.
type Ledger struct {
	Month string
	AI    decimal.Decimal
	TTS   decimal.Decimal
	STT   decimal.Decimal
}

func (l Ledger) Total() decimal.Decimal {
	return l.AI.Add(l.TTS).Add(l.STT)
}

// Store persists the monthly ledger. Get returns an empty ledger for a month
// with no spend.
type Store interface {
	Add(ctx context.Context, month string, cat Category, amount decimal.Decimal) (Ledger, error)
	Get(ctx context.Context, month string) (Ledger, error)
}

type Tracker struct {
	store  Store
	rates  Rates
	budget decimal.Decimal
	logger *zap.Logger
	now    func() time.Time
}

func NewTracker(store Store, rates Rates, budget decimal.Decimal, logger *zap.Logger) *Tracker {
	return &Tracker{
		store:  store,
		rates:  rates,
		budget: budget,
		logger: logger,
		now:    time.Now,
	}
}

// WithClock replaces the tracker's time source.
func (t *Tracker) WithClock(now func() time.Time) *Tracker {
	t.now = now
	return t
}

func (t *Tracker) month() string {
	return t.now().Format(monthLayout)
}

func (t *Tracker) percent(total decimal.Decimal) decimal.Decimal {
	return total.Div(t.budget).Mul(decimal.NewFromInt(100))
}

var (
	warningThreshold   = decimal.NewFromInt(80)
	degradedThreshold  = decimal.NewFromInt(95)
	emergencyThreshold = decimal.NewFromInt(100)
)

// RecordCost converts units of a category to USD and adds it to this month's
// ledger. Crossing 80% logs a warning, crossing 95% an error.
func (t *Tracker) RecordCost(ctx context.Context, cat Category, units decimal.Decimal) error {
	if !units.IsPositive() {
		return nil
	}
	rate, err := t.rates.For(cat)
	if err != nil {
		return err
	}
	amount := units.Mul(rate)

	ledger, err := t.store.Add(ctx, t.month(), cat, amount)
	if err != nil {
		return fmt.Errorf("failed to record cost: %w", err)
	}

	after := t.percent(ledger.Total())
	before := t.percent(ledger.Total().Sub(amount))

	if crossed(before, after, degradedThreshold) {
		t.logger.Error("monthly spend crossed degradation threshold",
			zap.String("percent", after.StringFixed(1)),
			zap.String("total", ledger.Total().StringFixed(2)),
			zap.String("budget", t.budget.StringFixed(2)),
		)
	} else if crossed(before, after, warningThreshold) {
		t.logger.Warn("monthly spend crossed warning threshold",
			zap.String("percent", after.StringFixed(1)),
			zap.String("total", ledger.Total().StringFixed(2)),
			zap.String("budget", t.budget.StringFixed(2)),
		)
	}
	return nil
}

func crossed(before, after, threshold decimal.Decimal) bool {
	return before.LessThan(threshold) && after.GreaterThanOrEqual(threshold)
}

// DegradationLevel computes the level from the ledger at call time.
func (t *Tracker) DegradationLevel(ctx context.Context) (Level, error) {
	ledger, err := t.store.Get(ctx, t.month())
	if err != nil {
		return LevelNone, fmt.Errorf("failed to get cost ledger: %w", err)
	}
	return LevelForPercent(t.percent(ledger.Total())), nil
}

// Status is the monitoring view of the current month.
type Status struct {
	Month            string    `json:"month"`
	TotalCost        string    `json:"totalCost"`
	Budget           string    `json:"budget"`
	PercentUsed      string    `json:"percentUsed"`
	DegradationLevel Level     `json:"degradationLevel"`
	Breakdown        Breakdown `json:"breakdown"`
}

type Breakdown struct {
	AI  string `json:"ai"`
	TTS string `json:"tts"`
	STT string `json:"stt"`
}

func (t *Tracker) Status(ctx context.Context) (Status, error) {
	ledger, err := t.store.Get(ctx, t.month())
	if err != nil {
		return Status{}, fmt.Errorf("failed to get cost ledger: %w", err)
	}
	pct := t.percent(ledger.Total())
	return Status{
		Month:            ledger.Month,
		TotalCost:        ledger.Total().StringFixed(2),
		Budget:           t.budget.StringFixed(2),
		PercentUsed:      pct.StringFixed(1),
		DegradationLevel: LevelForPercent(pct),
		Breakdown: Breakdown{
			AI:  ledger.AI.StringFixed(2),
			TTS: ledger.TTS.StringFixed(2),
			STT: ledger.STT.StringFixed(2),
		},
	}, nil
}
