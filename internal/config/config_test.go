package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/dshills/pageview/internal/logging"
)

func TestDefault_IsValid(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	if cfg.CacheBudget() != 256<<20 {
		t.Errorf("CacheBudget = %d", cfg.CacheBudget())
	}
	if cfg.Render.Debounce.Std() != 100*time.Millisecond {
		t.Errorf("Debounce = %v", cfg.Render.Debounce)
	}
	if cfg.LogLevel() != logging.LogLevelInfo {
		t.Errorf("LogLevel = %v", cfg.LogLevel())
	}
}

func TestValidate_CollectsAllErrors(t *testing.T) {
	cfg := Default()
	cfg.Cache.BudgetMB = 0
	cfg.Render.Concurrency = 0
	cfg.Logging.Level = "loud"

	err := cfg.Validate()
	if !errors.Is(err, ErrValidationFailed) {
		t.Fatalf("Validate = %v, want ErrValidationFailed", err)
	}
	var verrs ValidationErrors
	if !errors.As(err, &verrs) {
		t.Fatalf("expected ValidationErrors, got %T", err)
	}
	if len(verrs) != 3 {
		t.Errorf("got %d errors, want 3: %v", len(verrs), err)
	}
	for _, path := range []string{"cache.budget_mb", "render.concurrency", "logging.level"} {
		if !strings.Contains(err.Error(), path) {
			t.Errorf("error message missing %s: %v", path, err)
		}
	}
}

func TestLoadFile_TOML(t *testing.T) {
	path := writeFile(t, "pageview.toml", `
[cache]
budget_mb = 64

[render]
concurrency = 2
debounce = "250ms"
zoom = 1.5

[logging]
level = "debug"
`)

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if cfg.Cache.BudgetMB != 64 || cfg.Render.Concurrency != 2 || cfg.Render.Zoom != 1.5 {
		t.Errorf("unexpected values: %+v", cfg)
	}
	if cfg.Render.Debounce.Std() != 250*time.Millisecond {
		t.Errorf("Debounce = %v", cfg.Render.Debounce)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("Level = %q", cfg.Logging.Level)
	}
	// Unset values keep their defaults.
	if cfg.Render.BufferPages != 3 || !cfg.Cache.SingleFlight {
		t.Errorf("defaults lost: %+v", cfg)
	}
}

func TestLoadFile_YAML(t *testing.T) {
	path := writeFile(t, "pageview.yaml", `
cache:
  budget_mb: 32
selection:
  double_click_time: 300ms
  merge_tolerance: 1.5
source:
  dir: /tmp/pages
  fast: true
`)

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if cfg.Cache.BudgetMB != 32 {
		t.Errorf("BudgetMB = %d", cfg.Cache.BudgetMB)
	}
	if cfg.Selection.DoubleClickTime.Std() != 300*time.Millisecond || cfg.Selection.MergeTolerance != 1.5 {
		t.Errorf("selection = %+v", cfg.Selection)
	}
	if cfg.Source.Dir != "/tmp/pages" || !cfg.Source.Fast {
		t.Errorf("source = %+v", cfg.Source)
	}
}

func TestLoadFile_Missing(t *testing.T) {
	cfg, err := LoadFile(filepath.Join(t.TempDir(), "absent.toml"))
	if err != nil {
		t.Fatalf("missing file should not be an error: %v", err)
	}
	if cfg.Cache.BudgetMB != Default().Cache.BudgetMB {
		t.Error("missing file should yield defaults")
	}
}

func TestLoadFile_Errors(t *testing.T) {
	if _, err := LoadFile("settings.ini"); !errors.Is(err, ErrUnsupportedFormat) {
		t.Errorf("ini: %v", err)
	}

	path := writeFile(t, "bad.toml", "[cache\nbudget_mb = ")
	_, err := LoadFile(path)
	var pe *ParseError
	if !errors.As(err, &pe) {
		t.Fatalf("expected *ParseError, got %v", err)
	}
	if pe.Path != path || pe.Format != "toml" {
		t.Errorf("ParseError = %+v", pe)
	}

	path = writeFile(t, "bad.yaml", "render:\n  debounce: soon\n")
	if _, err := LoadFile(path); err == nil {
		t.Error("invalid duration should fail")
	}
}

func TestEncode_RoundTrip(t *testing.T) {
	cfg := Default()
	cfg.Render.Debounce = Duration(42 * time.Millisecond)
	cfg.Source.Dir = "docs"

	for _, format := range []Format{FormatTOML, FormatYAML} {
		t.Run(string(format), func(t *testing.T) {
			data, err := Encode(cfg, format)
			if err != nil {
				t.Fatalf("Encode: %v", err)
			}
			got := Default()
			if err := Decode(data, format, got); err != nil {
				t.Fatalf("Decode: %v\n%s", err, data)
			}
			if *got != *cfg {
				t.Errorf("round trip mismatch:\n got %+v\nwant %+v", got, cfg)
			}
		})
	}
}

func TestApplyEnv(t *testing.T) {
	env := map[string]string{
		"PV_CACHE_BUDGET_MB":    "16",
		"PV_CACHE_STRICT":       "yes",
		"PV_RENDER_DEBOUNCE":    "40ms",
		"PV_RENDER_ZOOM":        "2.5",
		"PV_LOG_LEVEL":          "warn",
		"PV_SOURCE_DIR":         "",
		"PV_SOMETHING_UNKNOWN":  "ignored",
		"OTHER_CACHE_BUDGET_MB": "1",
	}
	lookup := func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	}

	cfg := Default()
	cfg.Source.Dir = "before"
	if err := applyEnv(cfg, "PV_", lookup); err != nil {
		t.Fatalf("applyEnv: %v", err)
	}

	if cfg.Cache.BudgetMB != 16 || !cfg.Cache.StrictInvariants {
		t.Errorf("cache = %+v", cfg.Cache)
	}
	if cfg.Render.Debounce.Std() != 40*time.Millisecond || cfg.Render.Zoom != 2.5 {
		t.Errorf("render = %+v", cfg.Render)
	}
	if cfg.Logging.Level != "warn" {
		t.Errorf("level = %q", cfg.Logging.Level)
	}
	if cfg.Source.Dir != "" {
		t.Errorf("empty value should be applied, dir = %q", cfg.Source.Dir)
	}
}

func TestApplyEnv_Malformed(t *testing.T) {
	lookup := func(k string) (string, bool) {
		if k == "PV_RENDER_CONCURRENCY" {
			return "many", true
		}
		return "", false
	}

	err := applyEnv(Default(), "PV_", lookup)
	var ee *EnvError
	if !errors.As(err, &ee) || ee.Name != "PV_RENDER_CONCURRENCY" {
		t.Errorf("expected EnvError for concurrency, got %v", err)
	}
}

func TestApplyEnv_Process(t *testing.T) {
	t.Setenv("PAGEVIEW_LOG_FILE", "/tmp/pv.log")

	cfg := Default()
	if err := ApplyEnv(cfg, DefaultEnvPrefix); err != nil {
		t.Fatal(err)
	}
	if cfg.Logging.File != "/tmp/pv.log" {
		t.Errorf("File = %q", cfg.Logging.File)
	}

	names := EnvNames(DefaultEnvPrefix)
	if len(names) == 0 || !strings.HasPrefix(names[0], DefaultEnvPrefix) {
		t.Errorf("EnvNames = %v", names)
	}
}

func TestLoad_ValidatesAfterEnv(t *testing.T) {
	path := writeFile(t, "pageview.toml", "[render]\nconcurrency = 2\n")
	t.Setenv("PAGEVIEW_RENDER_CONCURRENCY", "0")

	if _, err := Load(path, DefaultEnvPrefix); !errors.Is(err, ErrValidationFailed) {
		t.Errorf("Load = %v, want validation failure", err)
	}
}

func TestWatcher_Reload(t *testing.T) {
	path := writeFile(t, "pageview.toml", "[cache]\nbudget_mb = 10\n")

	var mu sync.Mutex
	var got []*Config
	changed := make(chan struct{}, 4)
	w, err := NewWatcher(path, func(cfg *Config) {
		mu.Lock()
		got = append(got, cfg)
		mu.Unlock()
		changed <- struct{}{}
	}, WithWatchDebounce(20*time.Millisecond))
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	defer w.Close()

	// Several writes in a burst produce one reload with the final content.
	for _, mb := range []string{"11", "12", "13"} {
		if err := os.WriteFile(path, []byte("[cache]\nbudget_mb = "+mb+"\n"), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	select {
	case <-changed:
	case <-time.After(2 * time.Second):
		t.Fatal("no reload after write")
	}
	time.Sleep(100 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	if len(got) != 1 {
		t.Errorf("reloads = %d, want 1", len(got))
	}
	if got[len(got)-1].Cache.BudgetMB != 13 {
		t.Errorf("BudgetMB = %d, want 13", got[len(got)-1].Cache.BudgetMB)
	}
}

func TestWatcher_InvalidFileReportsError(t *testing.T) {
	path := writeFile(t, "pageview.toml", "[cache]\nbudget_mb = 10\n")

	errs := make(chan error, 4)
	w, err := NewWatcher(path, func(*Config) {
		t.Error("invalid config must not be delivered")
	}, WithWatchDebounce(10*time.Millisecond), WithErrorHandler(func(err error) { errs <- err }))
	if err != nil {
		t.Fatal(err)
	}
	defer w.Close()

	if err := os.WriteFile(path, []byte("[cache]\nbudget_mb = -1\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	select {
	case err := <-errs:
		if !errors.Is(err, ErrValidationFailed) {
			t.Errorf("error = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no error reported")
	}
}

func TestWatcher_CloseTwice(t *testing.T) {
	path := writeFile(t, "pageview.yaml", "cache:\n  budget_mb: 1\n")
	w, err := NewWatcher(path, nil)
	if err != nil {
		t.Fatal(err)
	}
	if w.Path() != path {
		t.Errorf("Path = %q, want %q", w.Path(), path)
	}
	if err := w.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}
