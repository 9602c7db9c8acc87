// Package config handles YAML configuration parsing.
package config

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"envload/internal/feed"
	"envload/internal/stats"
)

// Built-in class names provided by the catalog.
const (
	ClassEnvironmental = "environmental-monitoring"
	ClassHighVolume    = "high-volume"
	ClassAlertMonitor  = "alert-monitor"
)

// Config is the root configuration structure.
type Config struct {
	Target      TargetConfig      `yaml:"target"`
	Run         RunSettings       `yaml:"run"`
	Classes     []ClassConfig     `yaml:"classes"`
	LoadProfile *LoadProfile      `yaml:"loadProfile,omitempty"`
	Thresholds  *stats.Thresholds `yaml:"thresholds,omitempty"`

	// Dir is the directory of the loaded file; relative feed paths resolve against it.
	Dir string `yaml:"-"`
}

// TargetConfig describes the system under test.
type TargetConfig struct {
	BaseURL     string            `yaml:"baseURL"`
	RegistryURL string            `yaml:"registryURL"` // service registry health check, empty to skip
	Timeout     time.Duration     `yaml:"timeout"`
	Headers     map[string]string `yaml:"headers,omitempty"`
}

// RunSettings controls population size, pacing limits and shutdown.
type RunSettings struct {
	Duration         time.Duration `yaml:"duration"` // 0 = until interrupted
	Users            int           `yaml:"users"`
	SpawnJitter      time.Duration `yaml:"spawnJitter"`
	ActionTimeout    time.Duration `yaml:"actionTimeout"`
	StopTimeout      time.Duration `yaml:"stopTimeout"`
	RPS              int           `yaml:"rps"` // global cap, 0 = unlimited
	MaxIterations    int           `yaml:"maxIterations"`
	WarmupIterations int           `yaml:"warmupIterations"`
}

// ClassConfig selects a built-in class (with overrides) or defines a custom
// class whose actions are templated HTTP requests.
type ClassConfig struct {
	Name     string         `yaml:"name"`
	Builtin  string         `yaml:"builtin,omitempty"`
	Share    int            `yaml:"share"`
	Users    int            `yaml:"users,omitempty"` // fixed instance count, bypasses share
	Pace     *PaceConfig    `yaml:"pace,omitempty"`
	Disabled bool           `yaml:"disabled,omitempty"`
	Sensors  []string       `yaml:"sensors,omitempty"` // values for ${sensor} in custom actions
	Data     []FeedConfig   `yaml:"data,omitempty"`
	Actions  []ActionConfig `yaml:"actions,omitempty"`
}

// FeedConfig attaches a CSV or JSON file to a custom class. Each action
// draws a row and exposes its fields as ${data.<name>.<field>}.
type FeedConfig struct {
	Name string `yaml:"name"`
	File string `yaml:"file"`
	Mode string `yaml:"mode,omitempty"` // sequential (default) or random
}

// PaceConfig is the think-time range between two actions of one user.
type PaceConfig struct {
	Min time.Duration `yaml:"min"`
	Max time.Duration `yaml:"max"`
}

// ActionConfig defines a single templated request.
type ActionConfig struct {
	Name    string            `yaml:"name"`
	Weight  int               `yaml:"weight"`
	Method  string            `yaml:"method"`
	Path    string            `yaml:"path"`
	Body    string            `yaml:"body,omitempty"`
	Accept  []int             `yaml:"accept,omitempty"`
	Expect  map[string]string `yaml:"expect,omitempty"`  // JSONPath -> expected value
	Extract map[string]string `yaml:"extract,omitempty"` // variable -> JSONPath
}

// LoadProfile defines the load pattern for a test.
type LoadProfile struct {
	Phases []Phase `yaml:"phases"`
}

// TotalDuration returns the sum of all phase durations.
func (lp *LoadProfile) TotalDuration() time.Duration {
	var total time.Duration
	for _, p := range lp.Phases {
		total += p.Duration
	}
	return total
}

// Phase represents a single phase in the load profile. Users holds a steady
// population; StartUsers/EndUsers ramp it linearly.
type Phase struct {
	Name       string        `yaml:"name"`
	Duration   time.Duration `yaml:"duration"`
	Users      int           `yaml:"users"`
	StartUsers int           `yaml:"startUsers"`
	EndUsers   int           `yaml:"endUsers"`
	RPS        int           `yaml:"rps"`
}

// Default returns the built-in environmental monitoring scenario.
func Default() *Config {
	return &Config{
		Target: TargetConfig{
			BaseURL:     "http://localhost:8010",
			RegistryURL: "http://localhost:8761/",
			Timeout:     10 * time.Second,
		},
		Run: RunSettings{
			Users:         10,
			SpawnJitter:   time.Second,
			ActionTimeout: 10 * time.Second,
			StopTimeout:   15 * time.Second,
		},
		Classes: []ClassConfig{
			{Name: ClassEnvironmental, Builtin: ClassEnvironmental, Share: 5},
			{Name: ClassHighVolume, Builtin: ClassHighVolume, Share: 3},
			{Name: ClassAlertMonitor, Builtin: ClassAlertMonitor, Share: 2},
		},
	}
}

// LoadConfig reads and parses a YAML configuration file on top of Default.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, err
	}
	cfg.Dir = filepath.Dir(path)
	return cfg, nil
}

// Parse decodes YAML on top of Default. Omitted sections keep their defaults;
// a classes list replaces the default classes entirely.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}
	return cfg, nil
}

// EnabledClasses returns the classes that take part in the run.
func (c *Config) EnabledClasses() []ClassConfig {
	out := make([]ClassConfig, 0, len(c.Classes))
	for _, cl := range c.Classes {
		if !cl.Disabled {
			out = append(out, cl)
		}
	}
	return out
}

// Validate checks the whole configuration and reports every problem found.
func (c *Config) Validate() error {
	var errs []error

	if c.Target.BaseURL == "" {
		errs = append(errs, errors.New("target.baseURL is required"))
	} else if u, err := url.Parse(c.Target.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		errs = append(errs, fmt.Errorf("target.baseURL %q is not an absolute URL", c.Target.BaseURL))
	}
	if c.Target.Timeout < 0 {
		errs = append(errs, errors.New("target.timeout must be >= 0"))
	}

	r := c.Run
	if r.Users < 0 {
		errs = append(errs, errors.New("run.users must be >= 0"))
	}
	for name, d := range map[string]time.Duration{
		"run.duration":      r.Duration,
		"run.spawnJitter":   r.SpawnJitter,
		"run.actionTimeout": r.ActionTimeout,
		"run.stopTimeout":   r.StopTimeout,
	} {
		if d < 0 {
			errs = append(errs, fmt.Errorf("%s must be >= 0", name))
		}
	}
	if r.RPS < 0 || r.MaxIterations < 0 || r.WarmupIterations < 0 {
		errs = append(errs, errors.New("run.rps, run.maxIterations and run.warmupIterations must be >= 0"))
	}

	enabled := c.EnabledClasses()
	if len(enabled) == 0 {
		errs = append(errs, errors.New("at least one enabled class is required"))
	}
	seen := make(map[string]bool)
	for i, cl := range c.Classes {
		if err := cl.validate(); err != nil {
			errs = append(errs, fmt.Errorf("classes[%d]: %w", i, err))
		}
		if cl.Name != "" && seen[cl.Name] {
			errs = append(errs, fmt.Errorf("classes[%d]: duplicate class name %q", i, cl.Name))
		}
		seen[cl.Name] = true
	}

	if c.LoadProfile != nil {
		for i, p := range c.LoadProfile.Phases {
			if p.Duration <= 0 {
				errs = append(errs, fmt.Errorf("loadProfile.phases[%d]: duration must be > 0", i))
			}
			if p.Users < 0 || p.StartUsers < 0 || p.EndUsers < 0 || p.RPS < 0 {
				errs = append(errs, fmt.Errorf("loadProfile.phases[%d]: counts must be >= 0", i))
			}
		}
	}

	if err := c.Thresholds.Validate(); err != nil {
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}

func (cl ClassConfig) validate() error {
	var errs []error
	if cl.Name == "" {
		errs = append(errs, errors.New("name is required"))
	}
	if cl.Share <= 0 && cl.Users <= 0 {
		errs = append(errs, fmt.Errorf("class %q: share must be > 0", cl.Name))
	}
	if cl.Users < 0 {
		errs = append(errs, fmt.Errorf("class %q: users must be >= 0", cl.Name))
	}
	if cl.Pace != nil && (cl.Pace.Min < 0 || cl.Pace.Max < cl.Pace.Min) {
		errs = append(errs, fmt.Errorf("class %q: pace must satisfy 0 <= min <= max", cl.Name))
	}
	switch {
	case cl.Builtin == "" && len(cl.Actions) == 0:
		errs = append(errs, fmt.Errorf("class %q: either builtin or actions is required", cl.Name))
	case cl.Builtin != "" && len(cl.Actions) > 0:
		errs = append(errs, fmt.Errorf("class %q: builtin and actions are mutually exclusive", cl.Name))
	case cl.Builtin == "" && cl.Pace == nil:
		errs = append(errs, fmt.Errorf("class %q: custom classes need a pace", cl.Name))
	}
	if cl.Builtin != "" && len(cl.Data) > 0 {
		errs = append(errs, fmt.Errorf("class %q: data feeds need custom actions", cl.Name))
	}
	for j, d := range cl.Data {
		if d.Name == "" || d.File == "" {
			errs = append(errs, fmt.Errorf("class %q: data[%d]: name and file are required", cl.Name, j))
		}
		if _, err := feed.ParseMode(d.Mode); err != nil {
			errs = append(errs, fmt.Errorf("class %q: data[%d]: %w", cl.Name, j, err))
		}
	}
	for j, a := range cl.Actions {
		if a.Name == "" {
			errs = append(errs, fmt.Errorf("class %q: actions[%d]: name is required", cl.Name, j))
		}
		if a.Weight <= 0 {
			errs = append(errs, fmt.Errorf("class %q: action %q: weight must be > 0", cl.Name, a.Name))
		}
		if a.Path == "" {
			errs = append(errs, fmt.Errorf("class %q: action %q: path is required", cl.Name, a.Name))
		}
		if !validMethod(a.Method) {
			errs = append(errs, fmt.Errorf("class %q: action %q: unsupported method %q", cl.Name, a.Name, a.Method))
		}
	}
	return errors.Join(errs...)
}

func validMethod(m string) bool {
	switch strings.ToUpper(m) {
	case http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodHead:
		return true
	}
	return false
}
