// CLAUDE:SUMMARY Session configuration: yaml-tagged knobs, defaults, file loader.
package drive

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/hazyhaar/hyperdrive/fetch"
	"github.com/hazyhaar/hyperdrive/frame"
)

// Config holds session configuration. The zero value is usable; every
// field has a default.
type Config struct {
	// MaxCacheEntries bounds the snapshot cache; least recently used
	// entries are evicted beyond it. Default: 16.
	MaxCacheEntries int `yaml:"max_cache_entries"`

	// DefaultFrameLoading applies to frames without a loading
	// attribute. Default: eager.
	DefaultFrameLoading frame.LoadingMode `yaml:"default_frame_loading"`

	// DefaultHistoryAction applies to visits without an override.
	// Default: advance.
	DefaultHistoryAction HistoryAction `yaml:"default_history_action"`

	// SwapTimeout bounds render-delaying hooks, both frame before-swap
	// and session before-render holds. Default: 500ms.
	SwapTimeout time.Duration `yaml:"swap_timeout"`

	// LazyReveal picks the visibility model for lazy frames: auto
	// treats every frame as visible once the page settles, manual
	// waits for Reveal. Default: auto.
	LazyReveal frame.RevealPolicy `yaml:"lazy_reveal"`

	// SanitizeFragments scrubs stream templates before they touch the
	// document. Full-page renders are never sanitized.
	SanitizeFragments bool `yaml:"sanitize_fragments"`

	// MaxRedirects bounds redirect-following per visit. Default: 10.
	MaxRedirects int `yaml:"max_redirects"`

	// JournalPath enables the sqlite visit journal when non-empty.
	// The session itself never opens it; command wiring does.
	JournalPath string `yaml:"journal_path"`

	Fetch fetch.Config `yaml:"fetch"`
}

func (c *Config) defaults() {
	if c.MaxCacheEntries <= 0 {
		c.MaxCacheEntries = 16
	}
	if c.DefaultFrameLoading == "" {
		c.DefaultFrameLoading = frame.LoadEager
	}
	if c.DefaultHistoryAction == "" {
		c.DefaultHistoryAction = ActionAdvance
	}
	if c.SwapTimeout <= 0 {
		c.SwapTimeout = 500 * time.Millisecond
	}
	if c.LazyReveal == "" {
		c.LazyReveal = frame.RevealAuto
	}
	if c.MaxRedirects <= 0 {
		c.MaxRedirects = 10
	}
}

// LoadConfigFile reads a YAML config file. Missing fields keep their
// defaults when the config is handed to NewSession.
func LoadConfigFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("drive: parse config %s: %w", path, err)
	}
	return cfg, nil
}
