// Package config loads detection-shm settings from defaults, an optional YAML
// file and the environment.
package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/knadh/koanf"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"

	"github.com/srediag/detection-shm/internal/shm"
	"github.com/srediag/detection-shm/pkg/detection"
	"github.com/srediag/detection-shm/pkg/detector"
)

// EnvPrefix prefixes every environment override, e.g. DETECTSHM_SHM_NAME.
const EnvPrefix = "DETECTSHM_"

// ConfigFileEnv names the environment variable holding the YAML config path.
const ConfigFileEnv = EnvPrefix + "CONFIG"

// SHMConfig defines the shared memory segment.
type SHMConfig struct {
	Name   string `koanf:"name"`
	Perm   string `koanf:"perm"`
	Layout string `koanf:"layout"`
}

// DetectorConfig selects the inference backend.
type DetectorConfig struct {
	Kind    string        `koanf:"kind"`
	Sidecar string        `koanf:"sidecar"`
	URL     string        `koanf:"url"`
	Timeout time.Duration `koanf:"timeout"`
	Config  string        `koanf:"config"`
	Weights string        `koanf:"weights"`
}

// LogConfig controls the zap logger.
type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// AppConfig is the full configuration.
type AppConfig struct {
	SHM      SHMConfig      `koanf:"shm"`
	Detector DetectorConfig `koanf:"detector"`
	Log      LogConfig      `koanf:"log"`
}

func defaults() map[string]any {
	return map[string]any{
		"shm.name":         "/yolo_ipc_shm",
		"shm.perm":         "0666",
		"shm.layout":       string(detection.LayoutPlain),
		"detector.kind":    string(detector.KindFile),
		"detector.sidecar": "",
		"detector.url":     "http://127.0.0.1:8080",
		"detector.timeout": "30s",
		"detector.config":  "yolov4-tiny.cfg",
		"detector.weights": "yolov4-tiny.weights",
		"log.level":        "info",
		"log.format":       "json",
	}
}

// Load builds the configuration. filePath may be empty.
func Load(filePath string) (*AppConfig, error) {
	k := koanf.New(".")

	if err := k.Load(confmap.Provider(defaults(), "."), nil); err != nil {
		return nil, err
	}

	if filePath != "" {
		if err := k.Load(file.Provider(filePath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config file: %w", err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		return strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(s, EnvPrefix)), "_", ".")
	}), nil); err != nil {
		return nil, err
	}

	var cfg AppConfig
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, err
	}
	if err := ValidateConfig(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// ValidateConfig checks the values Load cannot type-check.
func ValidateConfig(cfg *AppConfig) error {
	if _, err := shm.CleanName(cfg.SHM.Name); err != nil {
		return err
	}
	if _, err := cfg.SHM.PermBits(); err != nil {
		return err
	}
	if _, err := detection.ParseLayout(cfg.SHM.Layout); err != nil {
		return err
	}
	switch detector.Kind(cfg.Detector.Kind) {
	case detector.KindFile, detector.KindHTTP:
	default:
		return fmt.Errorf("unknown detector kind %q", cfg.Detector.Kind)
	}
	return nil
}

// PermBits parses the octal permission string.
func (c SHMConfig) PermBits() (uint32, error) {
	p, err := strconv.ParseUint(c.Perm, 8, 32)
	if err != nil || p > 0o777 {
		return 0, fmt.Errorf("invalid shm perm %q", c.Perm)
	}
	return uint32(p), nil
}

// DetectorOptions converts the detector section for detector.New.
func (c *AppConfig) DetectorOptions() detector.Options {
	return detector.Options{
		Kind:    detector.Kind(c.Detector.Kind),
		Sidecar: c.Detector.Sidecar,
		HTTP: detector.HTTPOptions{
			URL:     c.Detector.URL,
			Timeout: c.Detector.Timeout,
			Config:  c.Detector.Config,
			Weights: c.Detector.Weights,
		},
	}
}
