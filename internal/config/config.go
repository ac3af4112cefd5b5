// Package config loads the process configuration once at startup. Business
// logic receives the resulting Config, never viper itself.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. CITYTRAIN_VOICE_BUCKET.
const EnvPrefix = "CITYTRAIN"

// Store drivers.
const (
	StoreMemory   = "memory"
	StoreSQLite   = "sqlite3"
	StorePostgres = "postgres"
)

// Synthesis service modes.
const (
	SynthLocal = "local"
	SynthHTTP  = "http"
)

// Config holds every setting the application needs.
type Config struct {
	Logging LoggingConfig `yaml:"logging" mapstructure:"logging"`
	Server  ServerConfig  `yaml:"server" mapstructure:"server"`
	Store   StoreConfig   `yaml:"store" mapstructure:"store"`
	Synth   SynthConfig   `yaml:"synth" mapstructure:"synth"`
	Voice   VoiceConfig   `yaml:"voice" mapstructure:"voice"`
	Fetch   FetchConfig   `yaml:"fetch" mapstructure:"fetch"`
}

// LoggingConfig selects the log level: error, warn, info or debug.
type LoggingConfig struct {
	Level string `yaml:"level" mapstructure:"level"`
}

// ServerConfig configures the HTTP proxy.
type ServerConfig struct {
	Addr string `yaml:"addr" mapstructure:"addr"`
}

// StoreConfig selects the breadcrumb store.
type StoreConfig struct {
	Driver string `yaml:"driver" mapstructure:"driver"`
	DSN    string `yaml:"dsn" mapstructure:"dsn"`
}

// SynthConfig selects the speech synthesis service.
type SynthConfig struct {
	Mode     string        `yaml:"mode" mapstructure:"mode"`
	Endpoint string        `yaml:"endpoint" mapstructure:"endpoint"`
	APIKey   string        `yaml:"apiKey" mapstructure:"apikey"`
	Timeout  time.Duration `yaml:"timeout" mapstructure:"timeout"`
	// Steps is how many polls the local service takes to complete a task.
	Steps int `yaml:"steps" mapstructure:"steps"`
}

// VoiceConfig is the service-level configuration of addVoice. Empty
// fields fall back to the enhancement's own defaults.
type VoiceConfig struct {
	Bucket       string `yaml:"bucket" mapstructure:"bucket"`
	Prefix       string `yaml:"prefix" mapstructure:"prefix"`
	Table        string `yaml:"table" mapstructure:"table"`
	Voice        string `yaml:"voice" mapstructure:"voice"`
	Engine       string `yaml:"engine" mapstructure:"engine"`
	LanguageCode string `yaml:"languageCode" mapstructure:"languagecode"`
	OutputFormat string `yaml:"outputFormat" mapstructure:"outputformat"`
	SampleRate   string `yaml:"sampleRate" mapstructure:"samplerate"`
	TextType     string `yaml:"textType" mapstructure:"texttype"`
	Concurrency  int    `yaml:"concurrency" mapstructure:"concurrency"`
}

// FetchConfig configures feed retrieval.
type FetchConfig struct {
	Timeout time.Duration `yaml:"timeout" mapstructure:"timeout"`
}

// Map returns the set fields keyed the way the voice enhancement expects.
func (v VoiceConfig) Map() map[string]any {
	m := map[string]any{}
	set := func(key, val string) {
		if val != "" {
			m[key] = val
		}
	}
	set("bucket", v.Bucket)
	set("prefix", v.Prefix)
	set("table", v.Table)
	set("voice", v.Voice)
	set("engine", v.Engine)
	set("languageCode", v.LanguageCode)
	set("outputFormat", v.OutputFormat)
	set("sampleRate", v.SampleRate)
	set("textType", v.TextType)
	if v.Concurrency > 0 {
		m["concurrency"] = v.Concurrency
	}
	return m
}

// defaults lists every key so environment overrides bind during Unmarshal.
var defaults = map[string]any{
	"logging.level":      "info",
	"server.addr":        ":8080",
	"store.driver":       StoreMemory,
	"store.dsn":          "",
	"synth.mode":         SynthLocal,
	"synth.endpoint":     "",
	"synth.apikey":       "",
	"synth.timeout":      15 * time.Second,
	"synth.steps":        1,
	"voice.bucket":       "",
	"voice.prefix":       "",
	"voice.table":        "breadcrumbs",
	"voice.voice":        "",
	"voice.engine":       "",
	"voice.languagecode": "",
	"voice.outputformat": "",
	"voice.samplerate":   "",
	"voice.texttype":     "",
	"voice.concurrency":  0,
	"fetch.timeout":      20 * time.Second,
}

// Default returns the configuration used when nothing is set.
func Default() Config {
	cfg, err := Load("")
	if err != nil {
		panic(fmt.Sprintf("config: defaults do not load: %v", err))
	}
	return cfg
}

// Load reads the YAML file at path (optional) and applies CITYTRAIN_*
// environment overrides on top of the defaults.
func Load(path string) (Config, error) {
	v := viper.New()
	for key, val := range defaults {
		v.SetDefault(key, val)
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	return cfg, nil
}

// Validate fails loudly on settings the selected modes cannot run without.
// All problems are reported together.
func (c Config) Validate() error {
	var errs []error

	switch strings.ToLower(c.Logging.Level) {
	case "error", "warn", "warning", "info", "debug":
	default:
		errs = append(errs, fmt.Errorf("logging.level: unknown level %q", c.Logging.Level))
	}

	switch c.Store.Driver {
	case StoreMemory:
	case StoreSQLite, StorePostgres:
		if c.Store.DSN == "" {
			errs = append(errs, fmt.Errorf("store.dsn: required for driver %s", c.Store.Driver))
		}
	default:
		errs = append(errs, fmt.Errorf("store.driver: unknown driver %q", c.Store.Driver))
	}

	switch c.Synth.Mode {
	case SynthLocal:
		if c.Synth.Steps < 0 {
			errs = append(errs, fmt.Errorf("synth.steps: must not be negative"))
		}
	case SynthHTTP:
		if c.Synth.Endpoint == "" {
			errs = append(errs, fmt.Errorf("synth.endpoint: required for mode http"))
		}
		if c.Synth.APIKey == "" {
			errs = append(errs, fmt.Errorf("synth.apiKey: required for mode http"))
		}
	default:
		errs = append(errs, fmt.Errorf("synth.mode: unknown mode %q", c.Synth.Mode))
	}

	if c.Voice.Concurrency < 0 {
		errs = append(errs, fmt.Errorf("voice.concurrency: must not be negative"))
	}

	return errors.Join(errs...)
}
