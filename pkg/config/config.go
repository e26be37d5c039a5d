// Package config holds the settings of a parse session and loads them from
// YAML or JSON files.
package config

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config represents the complete configuration.
type Config struct {
	// DefinedSymbols are the names #ifdef and defined() treat as defined
	DefinedSymbols []string `yaml:"definedSymbols" json:"definedSymbols"`
	// MacroOverrides pins object-like macros for the whole session
	MacroOverrides map[string]string `yaml:"macroOverrides" json:"macroOverrides"`
	// FailFast stops at the first syntax error
	FailFast     bool     `yaml:"failFast" json:"failFast"`
	IncludePaths []string `yaml:"includePaths" json:"includePaths"`
	SystemPaths  []string `yaml:"systemPaths" json:"systemPaths"`
	// SearchSystem appends the C compiler's own <...> directories to
	// SystemPaths
	SearchSystem bool     `yaml:"searchSystem" json:"searchSystem"`
	External     External `yaml:"external" json:"external"`
}

// External configures the system preprocessor fallback
type External struct {
	Enabled bool     `yaml:"enabled" json:"enabled"`
	Command string   `yaml:"command" json:"command"`
	Args    []string `yaml:"args" json:"args"`
}

// New creates an empty Config
func New() *Config {
	return &Config{MacroOverrides: map[string]string{}}
}

// LoadFile loads configuration from a file (YAML or JSON based on extension)
// and merges it into c.
func (c *Config) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading config file: %w", err)
	}

	var loaded Config
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &loaded); err != nil {
			return fmt.Errorf("parsing YAML config: %w", err)
		}
	case ".json":
		if err := json.Unmarshal(data, &loaded); err != nil {
			return fmt.Errorf("parsing JSON config: %w", err)
		}
	default:
		// YAML is a superset of JSON
		if err := yaml.Unmarshal(data, &loaded); err != nil {
			return fmt.Errorf("unable to parse config as YAML or JSON: %w", err)
		}
	}

	c.Merge(&loaded)
	return nil
}

// Merge folds other into c. Lists are appended without duplicates,
// overrides from other win, and flags set in either stay set.
func (c *Config) Merge(other *Config) {
	if other == nil {
		return
	}
	c.DefinedSymbols = appendNew(c.DefinedSymbols, other.DefinedSymbols...)
	if len(other.MacroOverrides) > 0 && c.MacroOverrides == nil {
		c.MacroOverrides = map[string]string{}
	}
	maps.Copy(c.MacroOverrides, other.MacroOverrides)
	c.FailFast = c.FailFast || other.FailFast
	c.IncludePaths = appendNew(c.IncludePaths, other.IncludePaths...)
	c.SystemPaths = appendNew(c.SystemPaths, other.SystemPaths...)
	c.SearchSystem = c.SearchSystem || other.SearchSystem

	c.External.Enabled = c.External.Enabled || other.External.Enabled
	if other.External.Command != "" {
		c.External.Command = other.External.Command
	}
	c.External.Args = append(c.External.Args, other.External.Args...)
}

// SetMacro parses NAME=VALUE (or NAME, meaning 1) into an override
func (c *Config) SetMacro(def string) error {
	name, value, found := strings.Cut(def, "=")
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("invalid macro definition %q", def)
	}
	if !found {
		value = "1"
	}
	if c.MacroOverrides == nil {
		c.MacroOverrides = map[string]string{}
	}
	c.MacroOverrides[name] = value
	return nil
}

// Fingerprint identifies the settings that change a parse result. Two
// configs with the same fingerprint produce the same model from the same
// source.
func (c *Config) Fingerprint() string {
	canon := Config{
		DefinedSymbols: sorted(c.DefinedSymbols),
		FailFast:       c.FailFast,
		IncludePaths:   orNil(c.IncludePaths),
		SystemPaths:    orNil(c.SystemPaths),
		SearchSystem:   c.SearchSystem,
		External:       c.External,
	}
	canon.External.Args = orNil(canon.External.Args)
	if len(c.MacroOverrides) > 0 {
		canon.MacroOverrides = c.MacroOverrides
	}
	// json.Marshal sorts map keys
	data, err := json.Marshal(canon)
	if err != nil {
		panic(err)
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func appendNew(dst []string, items ...string) []string {
	for _, it := range items {
		if !slices.Contains(dst, it) {
			dst = append(dst, it)
		}
	}
	return dst
}

func orNil(s []string) []string {
	if len(s) == 0 {
		return nil
	}
	return s
}

func sorted(s []string) []string {
	out := slices.Clone(orNil(s))
	slices.Sort(out)
	return slices.Compact(out)
}
