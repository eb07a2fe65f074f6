// Package config layers the effective runtime configuration from three
// sources, later ones winning: built-in defaults, an optional YAML file,
// and SYSGLANCE_* environment variables (a .env file is honored too).
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/sysglance/sysglance/pkg/types"
)

const (
	// DefaultWindow is the delta-sampling window shared by all
	// rate-based collectors.
	DefaultWindow = 100 * time.Millisecond
	// DefaultDomainTimeout bounds a single domain's share of a report.
	DefaultDomainTimeout = 5 * time.Second
)

// DefaultExcludedFilesystems lists pseudo-filesystem types hidden from
// volume reports.
var DefaultExcludedFilesystems = []string{"tmpfs", "devtmpfs", "sysfs", "proc", "devpts"}

// Config carries every tunable shared by the collectors and the report
// assembler.
type Config struct {
	Window             time.Duration
	TopProcesses       int
	DomainTimeout      time.Duration
	ExcludeFilesystems []string
	GPU                GPUConfig
	NoColor            bool
}

// GPUConfig switches individual vendor backends off. Probing stays the
// default; these exist for machines where a broken driver makes a probe
// hang or crash.
type GPUConfig struct {
	DisableNVIDIA bool `yaml:"disable_nvidia"`
	DisableAMD    bool `yaml:"disable_amd"`
}

// fileConfig is the YAML shape. Durations are strings ("250ms", "2s")
// and scalars are pointers so an absent key keeps the default.
type fileConfig struct {
	Window             string     `yaml:"window"`
	TopProcesses       *int       `yaml:"top_processes"`
	DomainTimeout      string     `yaml:"domain_timeout"`
	ExcludeFilesystems []string   `yaml:"exclude_filesystems"`
	GPU                *GPUConfig `yaml:"gpu"`
	NoColor            *bool      `yaml:"no_color"`
}

// Default returns the stock configuration.
func Default() Config {
	return Config{
		Window:             DefaultWindow,
		TopProcesses:       types.DefaultTopProcesses,
		DomainTimeout:      DefaultDomainTimeout,
		ExcludeFilesystems: append([]string(nil), DefaultExcludedFilesystems...),
	}
}

// Load builds the effective configuration. An empty path skips the file
// layer entirely; a named file that is missing or malformed is an error.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		if err := cfg.applyFile(path); err != nil {
			return Config{}, err
		}
	}
	_ = godotenv.Load() // missing .env is fine
	if err := cfg.applyEnv(); err != nil {
		return Config{}, err
	}
	cfg.normalize()
	return cfg, nil
}

func (c *Config) applyFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading config: %w", err)
	}
	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return fmt.Errorf("parsing config: %w", err)
	}
	if fc.Window != "" {
		d, err := time.ParseDuration(fc.Window)
		if err != nil {
			return fmt.Errorf("config window: %w", err)
		}
		c.Window = d
	}
	if fc.TopProcesses != nil {
		c.TopProcesses = *fc.TopProcesses
	}
	if fc.DomainTimeout != "" {
		d, err := time.ParseDuration(fc.DomainTimeout)
		if err != nil {
			return fmt.Errorf("config domain_timeout: %w", err)
		}
		c.DomainTimeout = d
	}
	if fc.ExcludeFilesystems != nil {
		c.ExcludeFilesystems = fc.ExcludeFilesystems
	}
	if fc.GPU != nil {
		c.GPU = *fc.GPU
	}
	if fc.NoColor != nil {
		c.NoColor = *fc.NoColor
	}
	return nil
}

func (c *Config) applyEnv() error {
	if v := os.Getenv("SYSGLANCE_WINDOW"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("SYSGLANCE_WINDOW: %w", err)
		}
		c.Window = d
	}
	if v := os.Getenv("SYSGLANCE_TOP"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("SYSGLANCE_TOP: %w", err)
		}
		c.TopProcesses = n
	}
	if v := os.Getenv("SYSGLANCE_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("SYSGLANCE_TIMEOUT: %w", err)
		}
		c.DomainTimeout = d
	}
	if v := os.Getenv("SYSGLANCE_EXCLUDE_FS"); v != "" {
		c.ExcludeFilesystems = splitList(v)
	}
	if v := os.Getenv("SYSGLANCE_DISABLE_NVIDIA"); v != "" {
		c.GPU.DisableNVIDIA = isTruthy(v)
	}
	if v := os.Getenv("SYSGLANCE_DISABLE_AMD"); v != "" {
		c.GPU.DisableAMD = isTruthy(v)
	}
	if v := os.Getenv("SYSGLANCE_NO_COLOR"); v != "" {
		c.NoColor = isTruthy(v)
	}
	return nil
}

// normalize clamps nonsensical values back to defaults instead of
// erroring, so a sloppy config still produces a report.
func (c *Config) normalize() {
	if c.Window <= 0 {
		c.Window = DefaultWindow
	}
	if c.TopProcesses <= 0 {
		c.TopProcesses = types.DefaultTopProcesses
	}
	if c.DomainTimeout < 0 {
		c.DomainTimeout = DefaultDomainTimeout
	}
}

func splitList(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func isTruthy(v string) bool {
	b, err := strconv.ParseBool(strings.TrimSpace(v))
	return err == nil && b
}
