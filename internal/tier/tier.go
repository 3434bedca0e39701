// Package tier holds the subscription tier catalog: request rates, daily caps
// and the backends each tier is served by.
package tier

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type Name string

const (
	Free    Name = "free"
	Pro     Name = "pro"
	Premium Name = "premium"
)

// Order is the ascending order caps must respect.
var Order = []Name{Free, Pro, Premium}

// Backend names understood by the provider selector.
const (
	BackendAnthropic  = "anthropic"
	BackendGemini     = "gemini"
	BackendOllama     = "ollama"
	BackendElevenLabs = "elevenlabs"
)

type Profile struct {
	Name              Name   `yaml:"-" json:"name"`
	RequestsPerMinute int    `yaml:"requests_per_minute" json:"requestsPerMinute"`
	DailyAITokens     int64  `yaml:"daily_ai_tokens" json:"dailyAiTokens"`
	DailyTTSChars     int64  `yaml:"daily_tts_chars" json:"dailyTtsChars"`
	AIBackend         string `yaml:"ai_backend" json:"aiBackend"`
	VoiceBackend      string `yaml:"voice_backend" json:"voiceBackend"`
}

// Catalog is immutable once built.
type Catalog struct {
	profiles map[Name]Profile
}

func DefaultCatalog() *Catalog {
	return &Catalog{profiles: map[Name]Profile{
		Free: {
			Name:              Free,
			RequestsPerMinute: 15,
			DailyAITokens:     2_000,
			DailyTTSChars:     0,
			AIBackend:         BackendGemini,
			VoiceBackend:      BackendGemini,
		},
		Pro: {
			Name:              Pro,
			RequestsPerMinute: 30,
			DailyAITokens:     50_000,
			DailyTTSChars:     15_000,
			AIBackend:         BackendAnthropic,
			VoiceBackend:      BackendElevenLabs,
		},
		Premium: {
			Name:              Premium,
			RequestsPerMinute: 60,
			DailyAITokens:     120_000,
			DailyTTSChars:     40_000,
			AIBackend:         BackendAnthropic,
			VoiceBackend:      BackendElevenLabs,
		},
	}}
}

// NewCatalog validates the given profiles and builds a catalog from them.
func NewCatalog(profiles map[Name]Profile) (*Catalog, error) {
	c := &Catalog{profiles: make(map[Name]Profile, len(profiles))}
	for name, p := range profiles {
		p.Name = name
		c.profiles[name] = p
	}
	if err := c.validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// LoadCatalog reads a YAML file keyed by tier name. Tiers missing from the
// file keep their defaults.
func LoadCatalog(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read tier config: %w", err)
	}

	var file struct {
		Tiers map[Name]Profile `yaml:"tiers"`
	}
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse tier config: %w", err)
	}

	merged := DefaultCatalog().profiles
	for name, p := range file.Tiers {
		if _, ok := merged[name]; !ok {
			return nil, fmt.Errorf("unknown tier %q in tier config", name)
		}
		merged[name] = p
	}
	return NewCatalog(merged)
}

func (c *Catalog) validate() error {
	var prev *Profile
	for _, name := range Order {
		p, ok := c.profiles[name]
		if !ok {
			return fmt.Errorf("tier %q is not configured", name)
		}
		if p.RequestsPerMinute <= 0 {
			return fmt.Errorf("tier %q: requests_per_minute must be positive", name)
		}
		if p.DailyAITokens < 0 || p.DailyTTSChars < 0 {
			return fmt.Errorf("tier %q: caps must not be negative", name)
		}
		if p.AIBackend == "" || p.VoiceBackend == "" {
			return fmt.Errorf("tier %q: backends must be set", name)
		}
		if prev != nil {
			if p.RequestsPerMinute < prev.RequestsPerMinute ||
				p.DailyAITokens < prev.DailyAITokens ||
				p.DailyTTSChars < prev.DailyTTSChars {
				return fmt.Errorf("tier %q: limits must not be lower than tier %q", name, prev.Name)
			}
		}
		prev = &p
	}
	return nil
}

// Get returns the profile for a tier name; unknown names resolve to free.
func (c *Catalog) Get(name string) Profile {
	if p, ok := c.profiles[Name(name)]; ok {
		return p
	}
	return c.profiles[Free]
}

// Parse normalises a stored tier value, defaulting to free.
func Parse(s string) Name {
	switch Name(s) {
	case Pro, Premium:
		return Name(s)
	default:
		return Free
	}
}
