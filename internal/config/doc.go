// Package config provides the viewer's configuration: typed sections with
// defaults, TOML and YAML file loading, environment overrides, validation,
// and live reload of the configuration file.
//
// # Precedence
//
// Lowest to highest:
//
//  1. Built-in defaults
//  2. The configuration file (.toml, or .yaml/.yml)
//  3. PAGEVIEW_* environment variables
//  4. Command-line flags, applied by the caller
//
// # Basic Usage
//
//	cfg, err := config.Load(path, config.DefaultEnvPrefix)
//	if err != nil {
//		return err
//	}
//
// A missing file yields the defaults. Validation failures wrap
// ErrValidationFailed and list every offending field.
//
// # Live Reload
//
//	w, err := config.NewWatcher(path, func(cfg *config.Config) {
//		// adopt cfg
//	}, config.WithErrorHandler(report))
//	defer w.Close()
//
// The callback only receives configurations that load and validate.
package config
