// Package config handles favisync configuration from YAML files.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level favisync configuration.
type Config struct {
	Source                 SourceConfig   `yaml:"source"`
	Width                  int            `yaml:"width"`
	Height                 int            `yaml:"height"`
	Match                  string         `yaml:"match"` // substring | selectors
	Dedup                  string         `yaml:"dedup"` // markup | resource
	RepublishOnStylesheets *bool          `yaml:"republish_on_stylesheets"`
	PartialStylesheets     bool           `yaml:"partial_stylesheets"`
	Sanitize               bool           `yaml:"sanitize"`
	Debounce               DebounceConfig `yaml:"debounce"`
	Browser                BrowserConfig  `yaml:"browser"`
	Server                 ServerConfig   `yaml:"server"`
	Sinks                  []SinkConfig   `yaml:"sinks"`
}

// SourceConfig locates the page and the tracked element.
type SourceConfig struct {
	File     string `yaml:"file"`
	URL      string `yaml:"url"`
	Selector string `yaml:"selector"`
	BaseURL  string `yaml:"base_url"`
}

// DebounceConfig controls publish coalescing and file-event batching.
type DebounceConfig struct {
	Window    time.Duration `yaml:"window"`
	MaxBuffer int           `yaml:"max_buffer"`
}

// BrowserConfig controls Chrome for url sources.
type BrowserConfig struct {
	Remote   string        `yaml:"remote"`
	Headless *bool         `yaml:"headless"`
	Inject   bool          `yaml:"inject"`
	Poll     time.Duration `yaml:"poll"` // tab re-read interval
}

// ServerConfig controls the HTTP favicon server.
type ServerConfig struct {
	Addr string `yaml:"addr"`
}

// SinkConfig defines an output backend.
type SinkConfig struct {
	Type string `yaml:"type"` // stdout | webhook | file | history
	URL  string `yaml:"url"`  // webhook
	Path string `yaml:"path"` // file, history
}

// Match and dedup modes.
const (
	MatchSubstring = "substring"
	MatchSelectors = "selectors"
	DedupMarkup    = "markup"
	DedupResource  = "resource"
)

// LoadFile reads a YAML configuration file and applies defaults.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	return Parse(data)
}

// Parse decodes YAML and applies defaults.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse: %w", err)
	}
	cfg.ApplyDefaults()
	return &cfg, nil
}

// ApplyDefaults fills unset fields.
func (c *Config) ApplyDefaults() {
	if c.Width <= 0 {
		c.Width = 32
	}
	if c.Height <= 0 {
		c.Height = 32
	}
	if c.Match == "" {
		c.Match = MatchSubstring
	}
	if c.Dedup == "" {
		c.Dedup = DedupMarkup
	}
	if c.RepublishOnStylesheets == nil {
		t := true
		c.RepublishOnStylesheets = &t
	}
	if c.Browser.Headless == nil {
		t := true
		c.Browser.Headless = &t
	}
	if c.Browser.Poll <= 0 {
		c.Browser.Poll = time.Second
	}
	if c.Debounce.MaxBuffer <= 0 {
		c.Debounce.MaxBuffer = 1000
	}
}

// Validate reports every configuration problem at once.
func (c *Config) Validate() error {
	var errs []error
	switch {
	case c.Source.File == "" && c.Source.URL == "":
		errs = append(errs, errors.New("source: file or url is required"))
	case c.Source.File != "" && c.Source.URL != "":
		errs = append(errs, errors.New("source: file and url are exclusive"))
	}
	if c.Source.Selector == "" {
		errs = append(errs, errors.New("source: selector is required"))
	}
	if c.Match != MatchSubstring && c.Match != MatchSelectors {
		errs = append(errs, fmt.Errorf("match: unknown mode %q", c.Match))
	}
	if c.Dedup != DedupMarkup && c.Dedup != DedupResource {
		errs = append(errs, fmt.Errorf("dedup: unknown mode %q", c.Dedup))
	}
	if c.Debounce.Window < 0 {
		errs = append(errs, errors.New("debounce: window must not be negative"))
	}
	for i, s := range c.Sinks {
		switch s.Type {
		case "stdout":
		case "webhook":
			if s.URL == "" {
				errs = append(errs, fmt.Errorf("sinks[%d]: webhook needs url", i))
			}
		case "file", "history":
			if s.Path == "" {
				errs = append(errs, fmt.Errorf("sinks[%d]: %s needs path", i, s.Type))
			}
		default:
			errs = append(errs, fmt.Errorf("sinks[%d]: unknown type %q", i, s.Type))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("config: %w", errors.Join(errs...))
	}
	return nil
}
