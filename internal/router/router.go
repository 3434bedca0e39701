// Package router maps a subscription tier to the AI and voice backends that
// serve it. Backends are built lazily, once, and every one is wrapped in a
// circuit breaker.
package router

import (
	"fmt"
	"sync"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/vnmchuo/interview-gateway/internal/provider"
	"github.com/vnmchuo/interview-gateway/internal/tier"
)

type AIFactory func() provider.AIProvider

type VoiceFactory func() provider.VoiceProvider

// lazy builds its value on first use and reuses it afterwards.
type lazy[T any] struct {
	once  sync.Once
	build func() T
	value T
}

func (l *lazy[T]) get() T {
	l.once.Do(func() { l.value = l.build() })
	return l.value
}

type Router struct {
	catalog  *tier.Catalog
	override string
	logger   *zap.Logger

	mu    sync.RWMutex
	ai    map[string]*lazy[provider.AIProvider]
	voice map[string]*lazy[provider.VoiceProvider]
}

// NewRouter creates a selector over catalog. A non-empty aiOverride names the
// AI backend used for every tier regardless of the catalog.
func NewRouter(catalog *tier.Catalog, aiOverride string, logger *zap.Logger) *Router {
	return &Router{
		catalog:  catalog,
		override: aiOverride,
		logger:   logger,
		ai:       make(map[string]*lazy[provider.AIProvider]),
		voice:    make(map[string]*lazy[provider.VoiceProvider]),
	}
}

func newBreaker(name string) *gobreaker.CircuitBreaker {
	settings := gobreaker.Settings{
		Name:        name,
		MaxRequests: 3,
		Interval:    5 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
		IsSuccessful: isSuccessful,
	}
	return gobreaker.NewCircuitBreaker(settings)
}

// RegisterAI makes an AI backend available under name. The factory runs on
// the first request routed to it.
func (r *Router) RegisterAI(name string, f AIFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cb := newBreaker(name + "-ai")
	r.ai[name] = &lazy[provider.AIProvider]{build: func() provider.AIProvider {
		r.logger.Info("initialising ai backend", zap.String("backend", name))
		return &guardedAI{next: f(), cb: cb}
	}}
}

func (r *Router) RegisterVoice(name string, f VoiceFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cb := newBreaker(name + "-voice")
	r.voice[name] = &lazy[provider.VoiceProvider]{build: func() provider.VoiceProvider {
		r.logger.Info("initialising voice backend", zap.String("backend", name))
		return &guardedVoice{next: f(), cb: cb}
	}}
}

// AIBackendFor reports which AI backend serves tierName.
func (r *Router) AIBackendFor(tierName string) string {
	if r.override != "" {
		return r.override
	}
	return r.catalog.Get(tierName).AIBackend
}

func (r *Router) VoiceBackendFor(tierName string) string {
	return r.catalog.Get(tierName).VoiceBackend
}

func (r *Router) AI(tierName string) (provider.AIProvider, error) {
	name := r.AIBackendFor(tierName)
	r.mu.RLock()
	l, ok := r.ai[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("no ai backend registered as %q", name)
	}
	return l.get(), nil
}

func (r *Router) Voice(tierName string) (provider.VoiceProvider, error) {
	name := r.VoiceBackendFor(tierName)
	r.mu.RLock()
	l, ok := r.voice[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("no voice backend registered as %q", name)
	}
	return l.get(), nil
}
