package provider

import (
	"context"
	"sync"
)

// Usage is vendor-reported consumption for one request.
type Usage struct {
	AITokens   int64
	TTSChars   int64
	STTSeconds float64
}

// Meter accumulates usage reported by backends during one request.
type Meter struct {
	mu    sync.Mutex
	usage Usage
}

func NewMeter() *Meter {
	return &Meter{}
}

func (m *Meter) AddAITokens(n int64) {
	if m == nil || n <= 0 {
		return
	}
	m.mu.Lock()
	m.usage.AITokens += n
	m.mu.Unlock()
}

func (m *Meter) AddTTSChars(n int64) {
	if m == nil || n <= 0 {
		return
	}
	m.mu.Lock()
	m.usage.TTSChars += n
	m.mu.Unlock()
}

func (m *Meter) AddSTTSeconds(s float64) {
	if m == nil || s <= 0 {
		return
	}
	m.mu.Lock()
	m.usage.STTSeconds += s
	m.mu.Unlock()
}

// Drain returns the accumulated usage and resets the meter.
func (m *Meter) Drain() Usage {
	if m == nil {
		return Usage{}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	u := m.usage
	m.usage = Usage{}
	return u
}

type contextKey string

const meterKey contextKey = "usage_meter"

func WithMeter(ctx context.Context, m *Meter) context.Context {
	return context.WithValue(ctx, meterKey, m)
}

// MeterFrom returns the request's meter. A nil *Meter is safe to use.
func MeterFrom(ctx context.Context) *Meter {
	m, _ := ctx.Value(meterKey).(*Meter)
	return m
}
