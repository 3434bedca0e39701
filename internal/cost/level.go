package cost

import (
	"context"

	"github.com/shopspring/decimal"
)

type Level int

const (
	LevelNone Level = iota
	LevelWarning
	LevelDegraded
	LevelEmergency
)

func (l Level) String() string {
	switch l {
	case LevelWarning:
		return "warning"
	case LevelDegraded:
		return "degraded"
	case LevelEmergency:
		return "emergency"
	default:
		return "none"
	}
}

func (l Level) MarshalText() ([]byte, error) {
	return []byte(l.String()), nil
}

// LevelForPercent maps percent of budget spent to a level. Thresholds are
// inclusive.
func LevelForPercent(pct decimal.Decimal) Level {
	switch {
	case pct.GreaterThanOrEqual(emergencyThreshold):
		return LevelEmergency
	case pct.GreaterThanOrEqual(degradedThreshold):
		return LevelDegraded
	case pct.GreaterThanOrEqual(warningThreshold):
		return LevelWarning
	default:
		return LevelNone
	}
}

type contextKey string

const levelKey contextKey = "degradation_level"

func WithLevel(ctx context.Context, l Level) context.Context {
	return context.WithValue(ctx, levelKey, l)
}

func LevelFrom(ctx context.Context) Level {
	l, _ := ctx.Value(levelKey).(Level)
	return l
}
