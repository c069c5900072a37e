// Package config loads sweep settings from viper and resolves the paths they name.
package config

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/Veraticus/nsfw-sweep/internal/classifier"
	"github.com/Veraticus/nsfw-sweep/internal/common"
	"github.com/Veraticus/nsfw-sweep/internal/engine"
	"github.com/Veraticus/nsfw-sweep/internal/imaging"
	"github.com/Veraticus/nsfw-sweep/internal/model"
)

// SetDefaults registers the default value of every configuration key.
func SetDefaults() {
	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "console")
	viper.SetDefault("logging.file", "")

	viper.SetDefault("database.path", "$HOME/.local/share/sweep/sweep.db")

	viper.SetDefault("classifier.backend", "onnx")
	viper.SetDefault("classifier.model_path", "$HOME/.local/share/sweep/nsfw.onnx")
	viper.SetDefault("classifier.runtime_path", "")
	viper.SetDefault("classifier.input_name", "input")
	viper.SetDefault("classifier.output_name", "output")
	viper.SetDefault("classifier.input_size", 224)
	viper.SetDefault("classifier.layout", string(imaging.LayoutNHWC))
	viper.SetDefault("classifier.labels", []string{"SFW", classifier.DefaultFlaggedLabel})
	viper.SetDefault("classifier.flagged_label", classifier.DefaultFlaggedLabel)
	viper.SetDefault("classifier.endpoint", "")
	viper.SetDefault("classifier.api_key", "")
	viper.SetDefault("classifier.timeout", 30*time.Second)
	viper.SetDefault("classifier.max_attempts", 1)
	viper.SetDefault("classifier.retry_delay", time.Second)
	viper.SetDefault("classifier.cache_ttl", time.Duration(0))
	viper.SetDefault("classifier.rate_limit", 0)

	viper.SetDefault("scan.extensions", engine.DefaultExtensions)
	viper.SetDefault("scan.case_insensitive", false)
	viper.SetDefault("scan.max_concurrency", 0)
	viper.SetDefault("scan.threshold", model.FlaggedThreshold)

	viper.SetDefault("server.host", "127.0.0.1")
	viper.SetDefault("server.port", 8089)
	viper.SetDefault("server.tls", false)
	viper.SetDefault("server.cert_dir", "$HOME/.local/share/sweep/certs")
}

// LoadClassifierConfig loads model and classifier settings.
// The API key falls back to the INFERENCE_API_KEY environment variable.
func LoadClassifierConfig() (classifier.Config, error) {
	cfg := classifier.Config{
		Backend:      strings.ToLower(viper.GetString("classifier.backend")),
		ModelPath:    ExpandPath(viper.GetString("classifier.model_path")),
		RuntimePath:  ExpandPath(viper.GetString("classifier.runtime_path")),
		InputName:    viper.GetString("classifier.input_name"),
		OutputName:   viper.GetString("classifier.output_name"),
		InputSize:    viper.GetInt("classifier.input_size"),
		Layout:       viper.GetString("classifier.layout"),
		Labels:       viper.GetStringSlice("classifier.labels"),
		FlaggedLabel: viper.GetString("classifier.flagged_label"),
		Endpoint:     viper.GetString("classifier.endpoint"),
		APIKey:       viper.GetString("classifier.api_key"),
		Timeout:      viper.GetDuration("classifier.timeout"),
		MaxAttempts:  viper.GetInt("classifier.max_attempts"),
		RetryDelay:   viper.GetDuration("classifier.retry_delay"),
		CacheTTL:     viper.GetDuration("classifier.cache_ttl"),
		RateLimit:    viper.GetInt("classifier.rate_limit"),
	}

	if mean := viper.GetString("classifier.mean"); mean != "" {
		values, err := parseTriplet(mean)
		if err != nil {
			return cfg, fmt.Errorf("%w: classifier.mean: %w", common.ErrInvalidConfig, err)
		}
		cfg.Mean = values
	}
	if std := viper.GetString("classifier.std"); std != "" {
		values, err := parseTriplet(std)
		if err != nil {
			return cfg, fmt.Errorf("%w: classifier.std: %w", common.ErrInvalidConfig, err)
		}
		cfg.Std = values
	}

	if cfg.APIKey == "" {
		cfg.APIKey = os.Getenv("INFERENCE_API_KEY")
	}

	switch cfg.Backend {
	case "onnx":
		if cfg.ModelPath == "" {
			return cfg, fmt.Errorf("%w: classifier.model_path", common.ErrMissingConfig)
		}
		if _, err := imaging.ParseLayout(cfg.Layout); err != nil {
			return cfg, fmt.Errorf("%w: %w", common.ErrInvalidConfig, err)
		}
	case "http":
		if cfg.Endpoint == "" {
			return cfg, fmt.Errorf("%w: classifier.endpoint", common.ErrMissingConfig)
		}
	default:
		return cfg, fmt.Errorf("%w: unsupported classifier backend %q", common.ErrInvalidConfig, cfg.Backend)
	}

	if cfg.MaxAttempts < 1 {
		return cfg, fmt.Errorf("%w: classifier.max_attempts must be at least 1", common.ErrInvalidConfig)
	}

	return cfg, nil
}

// LoadScannerConfig loads directory scanning settings.
func LoadScannerConfig() (engine.ScannerConfig, error) {
	cfg := engine.ScannerConfig{
		Filter: engine.ExtensionFilter{
			Extensions:      viper.GetStringSlice("scan.extensions"),
			CaseInsensitive: viper.GetBool("scan.case_insensitive"),
		},
		MaxConcurrency: viper.GetInt("scan.max_concurrency"),
	}
	if cfg.MaxConcurrency < 0 {
		return cfg, fmt.Errorf("%w: scan.max_concurrency cannot be negative", common.ErrInvalidConfig)
	}
	return cfg, nil
}

// Threshold returns the confidence above which results are highlighted.
func Threshold() float64 {
	t := viper.GetFloat64("scan.threshold")
	if t <= 0 || t > 1 {
		return model.FlaggedThreshold
	}
	return t
}

// DatabasePath returns the expanded scan history location.
func DatabasePath() string {
	return ExpandPath(viper.GetString("database.path"))
}

// ServerAddr returns the host:port the HTTP API listens on.
func ServerAddr() string {
	return net.JoinHostPort(viper.GetString("server.host"), strconv.Itoa(viper.GetInt("server.port")))
}

// CertDir returns where the self-signed serving certificate is kept.
func CertDir() string {
	return ExpandPath(viper.GetString("server.cert_dir"))
}

// LogOptions returns logger settings from the logging section.
func LogOptions() common.LogOptions {
	return common.LogOptions{
		Level:  viper.GetString("logging.level"),
		Format: viper.GetString("logging.format"),
		File:   ExpandPath(viper.GetString("logging.file")),
	}
}

func parseTriplet(s string) ([]float64, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 3 {
		return nil, fmt.Errorf("expected 3 comma separated values, got %d", len(parts))
	}
	values := make([]float64, 0, 3)
	for _, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return nil, fmt.Errorf("invalid value %q: %w", p, err)
		}
		values = append(values, v)
	}
	return values, nil
}
