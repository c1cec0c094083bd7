// Package config reads the optional YAML application config. CLI flags
// that were set explicitly override it.
package config

import (
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"oht-analyzer/symbols"
)

const (
	DefaultDB           = "oht-analyzer.db"
	DefaultRules        = "rules.yaml"
	DefaultConcurrency  = 4
	DefaultPollInterval = 30 * time.Second
)

// SourceConfig is one codebase source bundle.
type SourceConfig struct {
	Codebase string `yaml:"codebase"`
	Path     string `yaml:"path"`
}

// SourcesConfig accepts either:
//  1. mapping form (preferred):
//     sources:
//     vehicle: /src/vehicle.zip
//     motion:  /src/motion
//  2. list form:
//     sources:
//     - codebase: vehicle
//     path: /src/vehicle.zip
type SourcesConfig struct {
	Items []SourceConfig
}

func (s *SourcesConfig) UnmarshalYAML(value *yaml.Node) error {
	if value == nil {
		return nil
	}
	switch value.Kind {
	case yaml.MappingNode:
		items := make([]SourceConfig, 0, len(value.Content)/2)
		for i := 0; i+1 < len(value.Content); i += 2 {
			k := value.Content[i]
			v := value.Content[i+1]
			id := strings.TrimSpace(k.Value)
			if id == "" || v.Kind != yaml.ScalarNode {
				continue
			}
			p := strings.TrimSpace(v.Value)
			if p == "" {
				continue
			}
			items = append(items, SourceConfig{Codebase: id, Path: p})
		}
		s.Items = items
		return nil
	case yaml.SequenceNode:
		var items []SourceConfig
		if err := value.Decode(&items); err != nil {
			return err
		}
		s.Items = items
		return nil
	default:
		return nil
	}
}

// Paths returns codebase -> path.
func (s SourcesConfig) Paths() map[string]string {
	out := make(map[string]string, len(s.Items))
	for _, it := range s.Items {
		id := strings.TrimSpace(it.Codebase)
		if id == "" || strings.TrimSpace(it.Path) == "" {
			continue
		}
		out[id] = strings.TrimSpace(it.Path)
	}
	return out
}

type FileConfig struct {
	DB       string `yaml:"db"`
	Rules    string `yaml:"rules"`
	LogLevel string `yaml:"log_level"`
	LogJSON  bool   `yaml:"log_json"`
	Debug    bool   `yaml:"debug"`

	// RequireBothCodebases defaults to true. RequiredSources, when set,
	// replaces the vehicle+motion pair.
	RequireBothCodebases *bool    `yaml:"require_both_codebases"`
	RequiredSources      []string `yaml:"required_sources"`

	Sources SourcesConfig `yaml:"sources"`

	Concurrency  int           `yaml:"concurrency"`
	Timeout      time.Duration `yaml:"timeout"`
	PollInterval time.Duration `yaml:"poll_interval"`
	Encodings    []string      `yaml:"encodings"`
	ContextLines int           `yaml:"context_lines"`
	MetricsFile  string        `yaml:"metrics_file"`
}

func LoadConfig(path string) (*FileConfig, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg FileConfig
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Required resolves the codebases an analysis needs. An empty, non-nil
// result means none.
func (c *FileConfig) Required() []string {
	if len(c.RequiredSources) > 0 {
		return append([]string(nil), c.RequiredSources...)
	}
	if c.RequireBothCodebases != nil && !*c.RequireBothCodebases {
		return []string{}
	}
	return []string{symbols.Vehicle, symbols.Motion}
}

// WithDefaults fills unset fields.
func (c *FileConfig) WithDefaults() *FileConfig {
	out := *c
	if out.DB == "" {
		out.DB = DefaultDB
	}
	if out.Rules == "" {
		out.Rules = DefaultRules
	}
	if out.LogLevel == "" {
		out.LogLevel = "info"
	}
	if out.Concurrency <= 0 {
		out.Concurrency = DefaultConcurrency
	}
	if out.PollInterval <= 0 {
		out.PollInterval = DefaultPollInterval
	}
	return &out
}
