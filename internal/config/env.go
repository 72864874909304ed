package config

import (
	"os"
	"sort"
	"strconv"
	"strings"
	"time"
)

// DefaultEnvPrefix is the prefix of environment overrides.
const DefaultEnvPrefix = "PAGEVIEW_"

// envSetter applies one environment value to a configuration.
type envSetter func(cfg *Config, value string) error

// envMapping maps variable names (without prefix) to setters.
var envMapping = map[string]envSetter{
	"CACHE_BUDGET_MB":             intSetter(func(c *Config, v int64) { c.Cache.BudgetMB = v }),
	"CACHE_SINGLE_FLIGHT":         boolSetter(func(c *Config, v bool) { c.Cache.SingleFlight = v }),
	"CACHE_STRICT":                boolSetter(func(c *Config, v bool) { c.Cache.StrictInvariants = v }),
	"RENDER_BUFFER_PAGES":         intSetter(func(c *Config, v int64) { c.Render.BufferPages = int(v) }),
	"RENDER_UNLOAD_THRESHOLD":     intSetter(func(c *Config, v int64) { c.Render.UnloadThreshold = int(v) }),
	"RENDER_CONCURRENCY":          intSetter(func(c *Config, v int64) { c.Render.Concurrency = int(v) }),
	"RENDER_DEBOUNCE":             durationSetter(func(c *Config, v time.Duration) { c.Render.Debounce = Duration(v) }),
	"RENDER_PAGE_GAP":             floatSetter(func(c *Config, v float64) { c.Render.PageGap = v }),
	"RENDER_ZOOM":                 floatSetter(func(c *Config, v float64) { c.Render.Zoom = v }),
	"SELECTION_DOUBLE_CLICK_TIME": durationSetter(func(c *Config, v time.Duration) { c.Selection.DoubleClickTime = Duration(v) }),
	"LOG_LEVEL":                   stringSetter(func(c *Config, v string) { c.Logging.Level = v }),
	"LOG_FILE":                    stringSetter(func(c *Config, v string) { c.Logging.File = v }),
	"SOURCE_DIR":                  stringSetter(func(c *Config, v string) { c.Source.Dir = v }),
	"SOURCE_FAST":                 boolSetter(func(c *Config, v bool) { c.Source.Fast = v }),
}

// EnvNames returns the recognized variable names for prefix, sorted.
func EnvNames(prefix string) []string {
	names := make([]string, 0, len(envMapping))
	for name := range envMapping {
		names = append(names, prefix+name)
	}
	sort.Strings(names)
	return names
}

// ApplyEnv overrides cfg with set environment variables named prefix+NAME.
// Empty values are treated as set. Unrecognized prefixed variables are
// ignored. The first malformed value is returned as an *EnvError.
func ApplyEnv(cfg *Config, prefix string) error {
	return applyEnv(cfg, prefix, os.LookupEnv)
}

func applyEnv(cfg *Config, prefix string, lookup func(string) (string, bool)) error {
	names := make([]string, 0, len(envMapping))
	for name := range envMapping {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		value, ok := lookup(prefix + name)
		if !ok {
			continue
		}
		if err := envMapping[name](cfg, value); err != nil {
			return &EnvError{Name: prefix + name, Value: value, Err: err}
		}
	}
	return nil
}

func stringSetter(set func(*Config, string)) envSetter {
	return func(c *Config, s string) error {
		set(c, s)
		return nil
	}
}

func intSetter(set func(*Config, int64)) envSetter {
	return func(c *Config, s string) error {
		v, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
		if err != nil {
			return err
		}
		set(c, v)
		return nil
	}
}

func floatSetter(set func(*Config, float64)) envSetter {
	return func(c *Config, s string) error {
		v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err != nil {
			return err
		}
		set(c, v)
		return nil
	}
}

func durationSetter(set func(*Config, time.Duration)) envSetter {
	return func(c *Config, s string) error {
		v, err := time.ParseDuration(strings.TrimSpace(s))
		if err != nil {
			return err
		}
		set(c, v)
		return nil
	}
}

// boolSetter accepts true/yes/on/1 and false/no/off/0.
func boolSetter(set func(*Config, bool)) envSetter {
	return func(c *Config, s string) error {
		switch strings.ToLower(strings.TrimSpace(s)) {
		case "true", "yes", "on", "1":
			set(c, true)
		case "false", "no", "off", "0":
			set(c, false)
		default:
			return strconv.ErrSyntax
		}
		return nil
	}
}
