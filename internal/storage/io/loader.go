package io

import (
	"context"
	"fmt"
	"io/fs"
	"path"
	"strings"
	"time"
	"unicode/utf8"

	"gopkg.in/yaml.v3"

	"github.com/slok/scriptrun/internal/model"
)

// ScriptYAMLRepository loads script definitions from YAML files.
type ScriptYAMLRepository struct {
	fs fs.FS
}

// NewScriptYAMLRepository creates a new YAML script repository.
func NewScriptYAMLRepository(filesystem fs.FS) *ScriptYAMLRepository {
	return &ScriptYAMLRepository{fs: filesystem}
}

// GetScript loads a script definition from a YAML file and returns a validated domain model.
// The script body can be inline (`content`) or in a file relative to the definition (`file`).
func (r *ScriptYAMLRepository) GetScript(ctx context.Context, p string) (model.ScriptSource, error) {
	data, err := fs.ReadFile(r.fs, p)
	if err != nil {
		return model.ScriptSource{}, fmt.Errorf("reading script file: %w", err)
	}

	if ctx.Err() != nil {
		return model.ScriptSource{}, ctx.Err()
	}

	var sc ScriptConfig
	if err := yaml.Unmarshal(data, &sc); err != nil {
		return model.ScriptSource{}, fmt.Errorf("parsing YAML: %w", err)
	}

	if err := sc.validate(); err != nil {
		return model.ScriptSource{}, fmt.Errorf("invalid script: %w", err)
	}

	content := sc.Content
	if sc.File != "" {
		body, err := fs.ReadFile(r.fs, path.Join(path.Dir(p), sc.File))
		if err != nil {
			return model.ScriptSource{}, fmt.Errorf("reading script body: %w", err)
		}
		content = string(body)
	}

	s := sc.toModel(content)
	if err := s.Validate(); err != nil {
		return model.ScriptSource{}, fmt.Errorf("invalid script: %w", err)
	}

	return s, nil
}

// ScriptConfig represents the YAML structure of a script definition.
type ScriptConfig struct {
	Name       string            `yaml:"name"`
	Content    string            `yaml:"content"`
	File       string            `yaml:"file"`
	Parameters []ParameterConfig `yaml:"parameters"`
}

// ParameterConfig represents the YAML structure of a script parameter.
type ParameterConfig struct {
	Name     string `yaml:"name"`
	Type     string `yaml:"type"`
	Required bool   `yaml:"required"`
	Default  any    `yaml:"default"`
	Pattern  string `yaml:"pattern"`
}

func (c ScriptConfig) validate() error {
	if c.Name == "" {
		return fmt.Errorf("name is required")
	}
	if c.Content == "" && c.File == "" {
		return fmt.Errorf("content or file is required")
	}
	if c.Content != "" && c.File != "" {
		return fmt.Errorf("only one of content or file can be specified")
	}
	for _, p := range c.Parameters {
		if p.Type != "" && !model.ParameterType(p.Type).Valid() {
			return fmt.Errorf("parameter %q has unknown type %q", p.Name, p.Type)
		}
	}
	return nil
}

func (c ScriptConfig) toModel(content string) model.ScriptSource {
	s := model.ScriptSource{
		Name:    c.Name,
		Content: content,
	}

	for _, p := range c.Parameters {
		typ := model.ParameterType(p.Type)
		if typ == "" {
			typ = model.ParameterTypeString
		}
		s.Parameters = append(s.Parameters, model.ParameterSpec{
			Name:     p.Name,
			Type:     typ,
			Required: p.Required,
			Default:  p.Default,
			Pattern:  p.Pattern,
		})
	}

	return s
}

// ConfigYAMLRepository loads the engine settings from YAML files.
type ConfigYAMLRepository struct {
	fs fs.FS
}

// NewConfigYAMLRepository creates a new YAML config repository.
func NewConfigYAMLRepository(filesystem fs.FS) *ConfigYAMLRepository {
	return &ConfigYAMLRepository{fs: filesystem}
}

// GetConfig loads the engine settings from a YAML file and returns a validated domain model.
func (r *ConfigYAMLRepository) GetConfig(ctx context.Context, p string) (model.EngineSettings, error) {
	data, err := fs.ReadFile(r.fs, p)
	if err != nil {
		return model.EngineSettings{}, fmt.Errorf("reading config file: %w", err)
	}

	if ctx.Err() != nil {
		return model.EngineSettings{}, ctx.Err()
	}

	var cfg EngineConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return model.EngineSettings{}, fmt.Errorf("parsing YAML: %w", err)
	}

	settings, err := cfg.toModel()
	if err != nil {
		return model.EngineSettings{}, fmt.Errorf("invalid configuration: %w", err)
	}

	return settings, nil
}

// EngineConfig represents the YAML structure of the engine configuration.
type EngineConfig struct {
	MaxConcurrent      int               `yaml:"max_concurrent"`
	MaxTranscriptBytes int               `yaml:"max_transcript_bytes"`
	MaxTimeout         string            `yaml:"max_timeout"`
	DefaultTimeout     string            `yaml:"default_timeout"`
	KillGrace          string            `yaml:"kill_grace"`
	Interpreter        []string          `yaml:"interpreter"`
	EnvPassthrough     []string          `yaml:"env_passthrough"`
	Policy             PolicyConfig      `yaml:"policy"`
	RoleTrust          map[string]string `yaml:"role_trust"`
}

// PolicyConfig represents the YAML structure of the content policy configuration.
type PolicyConfig struct {
	RestrictedCommands      []string `yaml:"restricted_commands"`
	RestrictedModules       []string `yaml:"restricted_modules"`
	DangerousPatterns       []string `yaml:"dangerous_patterns"`
	EncodedPayloadMinLength int      `yaml:"encoded_payload_min_length"`
	ObfuscationChar         string   `yaml:"obfuscation_char"`
	ObfuscationThreshold    int      `yaml:"obfuscation_threshold"`
}

func (c EngineConfig) toModel() (model.EngineSettings, error) {
	if c.MaxConcurrent < 0 {
		return model.EngineSettings{}, fmt.Errorf("max_concurrent can't be negative, got: %d", c.MaxConcurrent)
	}
	if c.MaxTranscriptBytes < 0 {
		return model.EngineSettings{}, fmt.Errorf("max_transcript_bytes can't be negative, got: %d", c.MaxTranscriptBytes)
	}

	maxTimeout, err := parseDuration("max_timeout", c.MaxTimeout)
	if err != nil {
		return model.EngineSettings{}, err
	}
	defTimeout, err := parseDuration("default_timeout", c.DefaultTimeout)
	if err != nil {
		return model.EngineSettings{}, err
	}
	killGrace, err := parseDuration("kill_grace", c.KillGrace)
	if err != nil {
		return model.EngineSettings{}, err
	}
	if maxTimeout > 0 && defTimeout > maxTimeout {
		return model.EngineSettings{}, fmt.Errorf("default_timeout (%s) can't be greater than max_timeout (%s)", defTimeout, maxTimeout)
	}

	policy, err := c.Policy.toModel()
	if err != nil {
		return model.EngineSettings{}, fmt.Errorf("policy: %w", err)
	}

	var roles map[string]model.TrustLevel
	if len(c.RoleTrust) > 0 {
		roles = make(map[string]model.TrustLevel, len(c.RoleTrust))
		for role, trust := range c.RoleTrust {
			t, err := model.ParseTrustLevel(trust)
			if err != nil {
				return model.EngineSettings{}, fmt.Errorf("role %q: %w", role, err)
			}
			roles[strings.ToLower(role)] = t
		}
	}

	return model.EngineSettings{
		MaxConcurrent:      c.MaxConcurrent,
		MaxTranscriptBytes: c.MaxTranscriptBytes,
		MaxTimeout:         maxTimeout,
		DefaultTimeout:     defTimeout,
		KillGrace:          killGrace,
		Interpreter:        c.Interpreter,
		EnvPassthrough:     c.EnvPassthrough,
		Policy:             policy,
		RoleTrust:          roles,
	}, nil
}

func (c PolicyConfig) toModel() (model.PolicySettings, error) {
	if c.EncodedPayloadMinLength < 0 {
		return model.PolicySettings{}, fmt.Errorf("encoded_payload_min_length can't be negative")
	}
	if c.ObfuscationThreshold < 0 {
		return model.PolicySettings{}, fmt.Errorf("obfuscation_threshold can't be negative")
	}

	var char rune
	if c.ObfuscationChar != "" {
		if utf8.RuneCountInString(c.ObfuscationChar) != 1 {
			return model.PolicySettings{}, fmt.Errorf("obfuscation_char must be a single character, got: %q", c.ObfuscationChar)
		}
		char, _ = utf8.DecodeRuneInString(c.ObfuscationChar)
	}

	return model.PolicySettings{
		RestrictedCommands:      c.RestrictedCommands,
		RestrictedModules:       c.RestrictedModules,
		DangerousPatterns:       c.DangerousPatterns,
		EncodedPayloadMinLength: c.EncodedPayloadMinLength,
		ObfuscationChar:         char,
		ObfuscationThreshold:    c.ObfuscationThreshold,
	}, nil
}

func parseDuration(field, s string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", field, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s can't be negative, got: %s", field, s)
	}
	return d, nil
}
