package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/dshills/pageview/internal/logging"
)

// Config is the complete viewer configuration.
type Config struct {
	Cache     CacheConfig     `toml:"cache" yaml:"cache"`
	Render    RenderConfig    `toml:"render" yaml:"render"`
	Selection SelectionConfig `toml:"selection" yaml:"selection"`
	Logging   LoggingConfig   `toml:"logging" yaml:"logging"`
	Source    SourceConfig    `toml:"source" yaml:"source"`
}

// CacheConfig configures the page bitmap cache.
type CacheConfig struct {
	// BudgetMB is the byte budget in MiB.
	BudgetMB int64 `toml:"budget_mb" yaml:"budget_mb"`

	// SingleFlight de-duplicates concurrent renders of the same page.
	SingleFlight bool `toml:"single_flight" yaml:"single_flight"`

	// StrictInvariants panics on an accounting mismatch instead of repairing it.
	StrictInvariants bool `toml:"strict_invariants" yaml:"strict_invariants"`
}

// RenderConfig configures the render scheduler.
type RenderConfig struct {
	BufferPages     int      `toml:"buffer_pages" yaml:"buffer_pages"`
	UnloadThreshold int      `toml:"unload_threshold" yaml:"unload_threshold"`
	Concurrency     int      `toml:"concurrency" yaml:"concurrency"`
	Debounce        Duration `toml:"debounce" yaml:"debounce"`
	PageGap         float64  `toml:"page_gap" yaml:"page_gap"`

	// Zoom is the initial zoom, relative to fitting the widest page to the
	// window width.
	Zoom float64 `toml:"zoom" yaml:"zoom"`
}

// SelectionConfig configures pointer selection.
type SelectionConfig struct {
	DoubleClickTime   Duration `toml:"double_click_time" yaml:"double_click_time"`
	DoubleClickRadius float64  `toml:"double_click_radius" yaml:"double_click_radius"`
	MergeTolerance    float64  `toml:"merge_tolerance" yaml:"merge_tolerance"`
}

// LoggingConfig configures logging.
type LoggingConfig struct {
	Level string `toml:"level" yaml:"level"`

	// File receives log output. Empty disables logging; the terminal is
	// owned by the view.
	File string `toml:"file" yaml:"file"`
}

// SourceConfig configures the image directory document source.
type SourceConfig struct {
	Dir string `toml:"dir" yaml:"dir"`

	// Fast scales with bilinear filtering instead of Catmull-Rom.
	Fast bool `toml:"fast" yaml:"fast"`

	// Watch detects removal of the document directory.
	Watch bool `toml:"watch" yaml:"watch"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Cache: CacheConfig{
			BudgetMB:     256,
			SingleFlight: true,
		},
		Render: RenderConfig{
			BufferPages:     3,
			UnloadThreshold: 10,
			Concurrency:     4,
			Debounce:        Duration(100 * time.Millisecond),
			PageGap:         8,
			Zoom:            1,
		},
		Selection: SelectionConfig{
			DoubleClickTime:   Duration(500 * time.Millisecond),
			DoubleClickRadius: 4,
			MergeTolerance:    2,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
		Source: SourceConfig{
			Watch: true,
		},
	}
}

// CacheBudget returns the cache budget in bytes.
func (c *Config) CacheBudget() int64 {
	return c.Cache.BudgetMB << 20
}

// LogLevel returns the parsed logging level.
func (c *Config) LogLevel() logging.LogLevel {
	return logging.ParseLogLevel(c.Logging.Level)
}

// Clone returns a copy of c.
func (c *Config) Clone() *Config {
	cp := *c
	return &cp
}

var validLevels = map[string]bool{
	"debug": true, "info": true, "warn": true, "warning": true, "error": true,
}

// Validate checks every setting and returns a ValidationErrors listing all
// failures, or nil.
func (c *Config) Validate() error {
	var errs ValidationErrors

	check := func(ok bool, path string, value any, msg string) {
		if !ok {
			errs = append(errs, &ValidationError{Path: path, Message: msg, Value: value})
		}
	}

	check(c.Cache.BudgetMB > 0, "cache.budget_mb", c.Cache.BudgetMB, "must be positive")
	check(c.Render.BufferPages >= 0, "render.buffer_pages", c.Render.BufferPages, "must not be negative")
	check(c.Render.UnloadThreshold >= 0, "render.unload_threshold", c.Render.UnloadThreshold, "must not be negative")
	check(c.Render.Concurrency >= 1 && c.Render.Concurrency <= 64, "render.concurrency", c.Render.Concurrency, "must be between 1 and 64")
	check(c.Render.Debounce >= 0, "render.debounce", c.Render.Debounce, "must not be negative")
	check(c.Render.PageGap >= 0, "render.page_gap", c.Render.PageGap, "must not be negative")
	check(c.Render.Zoom > 0, "render.zoom", c.Render.Zoom, "must be positive")
	check(c.Selection.DoubleClickTime > 0, "selection.double_click_time", c.Selection.DoubleClickTime, "must be positive")
	check(c.Selection.DoubleClickRadius >= 0, "selection.double_click_radius", c.Selection.DoubleClickRadius, "must not be negative")
	check(c.Selection.MergeTolerance >= 0, "selection.merge_tolerance", c.Selection.MergeTolerance, "must not be negative")
	check(validLevels[strings.ToLower(c.Logging.Level)], "logging.level", c.Logging.Level, "must be debug, info, warn or error")

	if len(errs) == 0 {
		return nil
	}
	return errs
}

// Duration is a time.Duration written as a string such as "100ms" in
// configuration files.
type Duration time.Duration

// Std returns d as a time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// String returns the duration in time.Duration notation.
func (d Duration) String() string {
	return time.Duration(d).String()
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", text, err)
	}
	*d = Duration(v)
	return nil
}
