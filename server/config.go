package server

import (
	"encoding/json"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"go.perlls.io/perlls/fsext"
)

// Config is the runtime configuration surface. It can arrive from three
// places, lowest priority first: built-in defaults, a .perlls.yaml file
// in the workspace root, and workspace/didChangeConfiguration at runtime.
type Config struct {
	// IncludePaths are extra directories searched during module
	// resolution, ahead of the system paths.
	IncludePaths []string `json:"includePaths" yaml:"includePaths"`
	// UseSystemInc also consults the conventional system module paths.
	UseSystemInc bool `json:"useSystemInc" yaml:"useSystemInc"`
	// ResolutionTimeoutMs bounds module-resolution filesystem probing.
	ResolutionTimeoutMs int `json:"resolutionTimeoutMs" yaml:"resolutionTimeoutMs"`

	InlayHints InlayHintsConfig `json:"inlayHints" yaml:"inlayHints"`
	TestRunner TestRunnerConfig `json:"testRunner" yaml:"testRunner"`
}

// InlayHintsConfig gates the inlay-hint families.
type InlayHintsConfig struct {
	Enabled        bool `json:"enabled" yaml:"enabled"`
	ParameterHints bool `json:"parameterHints" yaml:"parameterHints"`
	TypeHints      bool `json:"typeHints" yaml:"typeHints"`
	ChainedHints   bool `json:"chainedHints" yaml:"chainedHints"`
	MaxLength      int  `json:"maxLength" yaml:"maxLength"`
}

// TestRunnerConfig configures the external test runner integration.
type TestRunnerConfig struct {
	Enabled bool     `json:"enabled" yaml:"enabled"`
	Command string   `json:"command" yaml:"command"`
	Args    []string `json:"args" yaml:"args"`
	Timeout int      `json:"timeout" yaml:"timeout"`
}

// DefaultConfig returns the built-in defaults.
func DefaultConfig() Config {
	return Config{
		ResolutionTimeoutMs: 2000,
		InlayHints: InlayHintsConfig{
			Enabled:        true,
			ParameterHints: true,
			MaxLength:      40,
		},
		TestRunner: TestRunnerConfig{
			Command: "prove",
			Timeout: 60,
		},
	}
}

// ResolutionTimeout returns the module-resolution bound as a duration.
func (c Config) ResolutionTimeout() time.Duration {
	if c.ResolutionTimeoutMs <= 0 {
		return 2 * time.Second
	}
	return time.Duration(c.ResolutionTimeoutMs) * time.Millisecond
}

// systemIncPaths are the conventional locations probed when UseSystemInc
// is set.
var systemIncPaths = []string{
	"/usr/share/perl5",
	"/usr/local/share/perl5",
	"/usr/lib/perl5",
	"/usr/local/lib/perl5",
}

// searchPaths returns the module search list for the current config.
func (c Config) searchPaths() []string {
	paths := append([]string{}, c.IncludePaths...)
	if c.UseSystemInc {
		paths = append(paths, systemIncPaths...)
	}
	return paths
}

// configHolder guards the live config; readers take a copy.
type configHolder struct {
	mu  sync.RWMutex
	cfg Config
}

func (h *configHolder) get() Config {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.cfg
}

func (h *configHolder) set(cfg Config) {
	h.mu.Lock()
	h.cfg = cfg
	h.mu.Unlock()
}

// LoadWorkspaceConfig reads .perlls.yaml from the workspace root into the
// given base config. A missing file is not an error.
func LoadWorkspaceConfig(fs fsext.Fs, root string, base Config) (Config, error) {
	data, err := fsext.ReadFile(fs, root+"/.perlls.yaml")
	if err != nil {
		return base, nil
	}
	if err := yaml.Unmarshal(data, &base); err != nil {
		return base, err
	}
	return base, nil
}

// mergeJSONSettings overlays a didChangeConfiguration settings object.
// The client may nest the section under "perlls".
func mergeJSONSettings(base Config, raw json.RawMessage) (Config, error) {
	var envelope struct {
		Perlls *json.RawMessage `json:"perlls"`
	}
	if err := json.Unmarshal(raw, &envelope); err == nil && envelope.Perlls != nil {
		raw = *envelope.Perlls
	}
	if err := json.Unmarshal(raw, &base); err != nil {
		return base, err
	}
	return base, nil
}
