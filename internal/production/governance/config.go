package governance

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/yungbote/production-planner/internal/platform/envutil"
	"github.com/yungbote/production-planner/internal/platform/logger"
)

type EnhancementMode string

const (
	ModeStrict   EnhancementMode = "strict"
	ModeBalanced EnhancementMode = "balanced"
	ModeCreative EnhancementMode = "creative"
)

func (m EnhancementMode) Valid() bool {
	return m == ModeStrict || m == ModeBalanced || m == ModeCreative
}

// Settings is one fully resolved view of the governance flags.
type Settings struct {
	PromptEnhancementMode    EnhancementMode
	EnableWorkerEnhancements bool
	EnableProfileOverrides   bool

	EnableCostCaps bool
	MaxCostPerJob  float64
	MaxTotalCost   float64

	EnableTimeoutCaps bool
	MaxJobTimeout     time.Duration
	MaxTotalTimeout   time.Duration

	EnableQualityGates bool
	MinQualityScore    float64

	MaxRetries int
	Backoff    time.Duration

	MaxConcurrentJobs int
}

func Defaults() Settings {
	return Settings{
		PromptEnhancementMode:    ModeBalanced,
		EnableWorkerEnhancements: true,
		EnableProfileOverrides:   true,
		EnableCostCaps:           true,
		MaxCostPerJob:            1.00,
		MaxTotalCost:             10.00,
		EnableTimeoutCaps:        true,
		MaxJobTimeout:            600 * time.Second,
		MaxTotalTimeout:          3600 * time.Second,
		EnableQualityGates:       true,
		MinQualityScore:          0.3,
		MaxRetries:               3,
		Backoff:                  30 * time.Second,
		MaxConcurrentJobs:        3,
	}
}

// Override holds the fields a creative profile replaces. Nil means inherit.
type Override struct {
	PromptEnhancementMode    *string  `yaml:"prompt_enhancement_mode"`
	EnableWorkerEnhancements *bool    `yaml:"enable_worker_enhancements"`
	EnableCostCaps           *bool    `yaml:"enable_cost_caps"`
	MaxCostPerJob            *float64 `yaml:"max_cost_per_job"`
	MaxTotalCost             *float64 `yaml:"max_total_cost"`
	EnableTimeoutCaps        *bool    `yaml:"enable_timeout_caps"`
	MaxJobTimeoutSeconds     *int     `yaml:"max_job_timeout"`
	MaxTotalTimeoutSeconds   *int     `yaml:"max_total_timeout"`
	EnableQualityGates       *bool    `yaml:"enable_quality_gates"`
	MinQualityScore          *float64 `yaml:"min_quality_score"`
	MaxRetries               *int     `yaml:"max_retries"`
	BackoffSeconds           *int     `yaml:"backoff_seconds"`
}

// merge returns s with every set field of o laid on top.
func (o Override) merge(s Settings) Settings {
	if o.PromptEnhancementMode != nil {
		if m := EnhancementMode(strings.ToLower(strings.TrimSpace(*o.PromptEnhancementMode))); m.Valid() {
			s.PromptEnhancementMode = m
		}
	}
	if o.EnableWorkerEnhancements != nil {
		s.EnableWorkerEnhancements = *o.EnableWorkerEnhancements
	}
	if o.EnableCostCaps != nil {
		s.EnableCostCaps = *o.EnableCostCaps
	}
	if o.MaxCostPerJob != nil {
		s.MaxCostPerJob = *o.MaxCostPerJob
	}
	if o.MaxTotalCost != nil {
		s.MaxTotalCost = *o.MaxTotalCost
	}
	if o.EnableTimeoutCaps != nil {
		s.EnableTimeoutCaps = *o.EnableTimeoutCaps
	}
	if o.MaxJobTimeoutSeconds != nil {
		s.MaxJobTimeout = time.Duration(*o.MaxJobTimeoutSeconds) * time.Second
	}
	if o.MaxTotalTimeoutSeconds != nil {
		s.MaxTotalTimeout = time.Duration(*o.MaxTotalTimeoutSeconds) * time.Second
	}
	if o.EnableQualityGates != nil {
		s.EnableQualityGates = *o.EnableQualityGates
	}
	if o.MinQualityScore != nil {
		s.MinQualityScore = *o.MinQualityScore
	}
	if o.MaxRetries != nil {
		s.MaxRetries = *o.MaxRetries
	}
	if o.BackoffSeconds != nil {
		s.Backoff = time.Duration(*o.BackoffSeconds) * time.Second
	}
	return s
}

// Config is built once at startup and never changes afterwards.
type Config struct {
	global   Settings
	profiles map[string]Override
}

func NewConfig(global Settings, profiles map[string]Override) *Config {
	cp := make(map[string]Override, len(profiles))
	for k, v := range profiles {
		cp[strings.TrimSpace(k)] = v
	}
	return &Config{global: global, profiles: cp}
}

func (c *Config) Global() Settings { return c.global }

// Resolve returns the settings for profile. Unknown profiles, and every
// profile when overrides are disabled, get the globals unchanged.
func (c *Config) Resolve(profile string) Settings {
	if !c.global.EnableProfileOverrides {
		return c.global
	}
	o, ok := c.profiles[strings.TrimSpace(profile)]
	if !ok {
		return c.global
	}
	return o.merge(c.global)
}

// Profiles lists the configured profile ids.
func (c *Config) Profiles() []string {
	out := make([]string, 0, len(c.profiles))
	for k := range c.profiles {
		out = append(out, k)
	}
	return out
}

type profileFile struct {
	Profiles map[string]Override `yaml:"profiles"`
}

// LoadProfiles reads profile overrides from a YAML file of the form
//
//	profiles:
//	  cinematic:
//	    max_total_cost: 25
func LoadProfiles(path string) (map[string]Override, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read governance profiles: %w", err)
	}
	return ParseProfiles(b)
}

func ParseProfiles(b []byte) (map[string]Override, error) {
	var f profileFile
	if err := yaml.Unmarshal(b, &f); err != nil {
		return nil, fmt.Errorf("parse governance profiles: %w", err)
	}
	return f.Profiles, nil
}

// LoadConfigFromEnv collects the governance flags from the environment.
func LoadConfigFromEnv(log *logger.Logger) *Config {
	d := Defaults()
	s := Settings{
		PromptEnhancementMode:    EnhancementMode(strings.ToLower(envutil.String("PROMPT_ENHANCEMENT_MODE", string(d.PromptEnhancementMode)))),
		EnableWorkerEnhancements: envutil.Bool("ENABLE_WORKER_ENHANCEMENTS", d.EnableWorkerEnhancements),
		EnableProfileOverrides:   envutil.Bool("ENABLE_PROFILE_OVERRIDES", d.EnableProfileOverrides),
		EnableCostCaps:           envutil.Bool("ENABLE_COST_CAPS", d.EnableCostCaps),
		MaxCostPerJob:            envutil.Float("MAX_COST_PER_JOB", d.MaxCostPerJob),
		MaxTotalCost:             envutil.Float("MAX_TOTAL_COST", d.MaxTotalCost),
		EnableTimeoutCaps:        envutil.Bool("ENABLE_TIMEOUT_CAPS", d.EnableTimeoutCaps),
		MaxJobTimeout:            envutil.Seconds("MAX_JOB_TIMEOUT", d.MaxJobTimeout),
		MaxTotalTimeout:          envutil.Seconds("MAX_TOTAL_TIMEOUT", d.MaxTotalTimeout),
		EnableQualityGates:       envutil.Bool("ENABLE_QUALITY_GATES", d.EnableQualityGates),
		MinQualityScore:          envutil.Float("MIN_QUALITY_SCORE", d.MinQualityScore),
		MaxRetries:               envutil.Int("MAX_RETRIES", d.MaxRetries),
		Backoff:                  envutil.Seconds("BACKOFF_SECONDS", d.Backoff),
		MaxConcurrentJobs:        envutil.Int("MAX_CONCURRENT_JOBS", d.MaxConcurrentJobs),
	}
	if !s.PromptEnhancementMode.Valid() {
		if log != nil {
			log.Warn("Unknown PROMPT_ENHANCEMENT_MODE, using default", "value", s.PromptEnhancementMode, "default", d.PromptEnhancementMode)
		}
		s.PromptEnhancementMode = d.PromptEnhancementMode
	}
	if s.MaxConcurrentJobs <= 0 {
		s.MaxConcurrentJobs = d.MaxConcurrentJobs
	}
	if s.MaxRetries <= 0 {
		s.MaxRetries = d.MaxRetries
	}

	var profiles map[string]Override
	if path := envutil.String("GOVERNANCE_PROFILES_PATH", ""); path != "" {
		p, err := LoadProfiles(path)
		if err != nil {
			if log != nil {
				log.Warn("Governance profiles not loaded", "path", path, "error", err)
			}
		} else {
			profiles = p
			if log != nil {
				log.Info("Governance profiles loaded", "path", path, "count", len(p))
			}
		}
	}
	return NewConfig(s, profiles)
}
