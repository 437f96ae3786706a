package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Config is the resolved miditake configuration.
type Config struct {
	MIDI   MIDIConfig   `mapstructure:"midi" yaml:"midi"`
	Output OutputConfig `mapstructure:"output" yaml:"output"`
	Replay ReplayConfig `mapstructure:"replay" yaml:"replay"`
	Scores ScoresConfig `mapstructure:"scores" yaml:"scores"`
}

type MIDIConfig struct {
	// InputPort and OutputPort are matched against the system's MIDI port
	// names. Empty selects the first port that is not a software Through
	// port.
	InputPort  string `mapstructure:"input_port" yaml:"input_port"`
	OutputPort string `mapstructure:"output_port" yaml:"output_port"`
}

type OutputConfig struct {
	Directory string `mapstructure:"directory" yaml:"directory"`
	// Prefix is the fixed leading part of exported file names.
	Prefix string `mapstructure:"prefix" yaml:"prefix"`
}

type ReplayConfig struct {
	// SettleMarginMS is the pause after the last replayed event before the
	// session reports completion.
	SettleMarginMS int `mapstructure:"settle_margin_ms" yaml:"settle_margin_ms"`
}

type ScoresConfig struct {
	Directory string `mapstructure:"directory" yaml:"directory"`
}

func defaultConfig() Config {
	home := os.Getenv("HOME")
	return Config{
		Output: OutputConfig{
			Directory: filepath.Join(home, "Music", "miditake"),
			Prefix:    "recording",
		},
		Replay: ReplayConfig{
			SettleMarginMS: 100,
		},
		Scores: ScoresConfig{
			Directory: filepath.Join(home, "Music", "scores"),
		},
	}
}

// Load reads the YAML config file and merges it over the defaults. A missing
// file is not an error; the defaults apply.
func Load(configFile string) (*Config, error) {
	cfg := defaultConfig()

	if configFile != "" {
		v := viper.New()
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			if _, missing := err.(viper.ConfigFileNotFoundError); !missing && !os.IsNotExist(err) {
				return nil, fmt.Errorf("reading config file %s: %w", configFile, err)
			}
		} else if err := v.Unmarshal(&cfg); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", configFile, err)
		}
	}

	applyDefaults(&cfg)
	cfg.Output.Directory = expandPath(cfg.Output.Directory)
	cfg.Scores.Directory = expandPath(cfg.Scores.Directory)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &cfg, nil
}

// applyDefaults fills fields a partial config file left empty.
func applyDefaults(cfg *Config) {
	def := defaultConfig()
	if cfg.Output.Directory == "" {
		cfg.Output.Directory = def.Output.Directory
	}
	if cfg.Output.Prefix == "" {
		cfg.Output.Prefix = def.Output.Prefix
	}
	if cfg.Replay.SettleMarginMS == 0 {
		cfg.Replay.SettleMarginMS = def.Replay.SettleMarginMS
	}
	if cfg.Scores.Directory == "" {
		cfg.Scores.Directory = def.Scores.Directory
	}
}

// Validate rejects values the looper cannot work with.
func (c *Config) Validate() error {
	if c.Replay.SettleMarginMS < 0 {
		return fmt.Errorf("replay.settle_margin_ms must not be negative, got %d", c.Replay.SettleMarginMS)
	}
	if strings.ContainsAny(c.Output.Prefix, "/\\") {
		return fmt.Errorf("output.prefix must not contain path separators, got %q", c.Output.Prefix)
	}
	if c.Output.Directory == "" {
		return fmt.Errorf("output.directory must not be empty")
	}
	return nil
}

// SettleMargin returns the replay settle margin as a duration.
func (c *Config) SettleMargin() time.Duration {
	return time.Duration(c.Replay.SettleMarginMS) * time.Millisecond
}

// WriteDefault writes a default config file, refusing to overwrite an
// existing one.
func WriteDefault(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists: %s", path)
	}

	cfg := defaultConfig()
	data, err := yaml.Marshal(&cfg)
	if err != nil {
		return fmt.Errorf("marshaling default config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	return nil
}

// expandPath expands a leading tilde to the user's home directory.
func expandPath(path string) string {
	if path == "~" {
		return os.Getenv("HOME")
	}
	if strings.HasPrefix(path, "~/") {
		return filepath.Join(os.Getenv("HOME"), path[2:])
	}
	return path
}
