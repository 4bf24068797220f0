package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// RuleDefinition is one alert rule as written in the rules file.
// Enum fields are kept as strings here and validated by the alerting package.
type RuleDefinition struct {
	Name            string  `yaml:"name"`
	Metric          string  `yaml:"metric"`
	Threshold       float64 `yaml:"threshold"`
	Comparison      string  `yaml:"comparison"`
	DurationSeconds int     `yaml:"duration_seconds"`
	Level           string  `yaml:"level"`
	Type            string  `yaml:"type"`
	Message         string  `yaml:"message"`
	Enabled         *bool   `yaml:"enabled,omitempty"`
}

// IsEnabled reports the enabled flag; rules without one are enabled
func (d RuleDefinition) IsEnabled() bool {
	return d.Enabled == nil || *d.Enabled
}

type rulesDocument struct {
	Rules []RuleDefinition `yaml:"rules"`
}

// LoadRules reads and parses a YAML rules file
func LoadRules(path string) ([]RuleDefinition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read rules file: %w", err)
	}
	defs, err := ParseRules(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse rules file %s: %w", path, err)
	}
	return defs, nil
}

// ParseRules decodes a rules document, rejecting unknown keys and duplicate names
func ParseRules(data []byte) ([]RuleDefinition, error) {
	var doc rulesDocument

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}

	seen := make(map[string]struct{}, len(doc.Rules))
	for i, def := range doc.Rules {
		name := strings.TrimSpace(def.Name)
		if name == "" {
			return nil, fmt.Errorf("rule %d: name is required", i)
		}
		if def.Metric == "" {
			return nil, fmt.Errorf("rule %q: metric is required", name)
		}
		if _, dup := seen[name]; dup {
			return nil, fmt.Errorf("rule %q: duplicate name", name)
		}
		seen[name] = struct{}{}
		doc.Rules[i].Name = name
	}

	return doc.Rules, nil
}
