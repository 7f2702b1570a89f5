package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v2"
)

// ErrInvalidConfig is wrapped by every validation failure. A session can
// never be constructed from a config that fails Validate.
var ErrInvalidConfig = errors.New("invalid config")

type Config struct {
	Server       ServerConfig       `yaml:"server"`
	Verification VerificationConfig `yaml:"verification"`
	Store        StoreConfig        `yaml:"store"`
	Audit        AuditConfig        `yaml:"audit"`
}

type ServerConfig struct {
	Port string `yaml:"port"`
	Env  string `yaml:"env"`
}

// VerificationConfig holds every tunable of the verification loop.
// Loaded once at startup and treated as immutable afterwards.
type VerificationConfig struct {
	Weights    SignalWeights   `yaml:"weights"`
	Thresholds StateThresholds `yaml:"thresholds"`
	Fallbacks  SignalFallbacks `yaml:"fallbacks"`

	// Alpha is the EMA smoothing factor. Close to 1 reacts fast,
	// close to 0 resists noise.
	Alpha float64 `yaml:"alpha"`

	// TickInterval is the verification loop period (default 500ms = 2 Hz).
	TickInterval time.Duration `yaml:"tick_interval"`

	// HysteresisMargin is the extra score required to climb back to a
	// less restrictive state. Entry uses the bare threshold.
	HysteresisMargin float64 `yaml:"hysteresis_margin"`

	// DegradedTickLimit is how many consecutive all-unavailable ticks
	// trigger a DegradedSignal warning.
	DegradedTickLimit int `yaml:"degraded_tick_limit"`
}

// SignalWeights must sum to 1.0.
type SignalWeights struct {
	Face     float64 `yaml:"face"`
	Liveness float64 `yaml:"liveness"`
	Behavior float64 `yaml:"behavior"`
}

// StateThresholds must be strictly decreasing: NormalMin > WatchMin > RestrictMin.
// Scores below RestrictMin map to REAUTH.
type StateThresholds struct {
	NormalMin   float64 `yaml:"normal_min"`
	WatchMin    float64 `yaml:"watch_min"`
	RestrictMin float64 `yaml:"restrict_min"`
}

// SignalFallbacks substitute for unavailable signals so the weighted
// formula keeps constant semantics run-to-run. Dropping a term would
// silently renormalize the weights.
type SignalFallbacks struct {
	Face     float64 `yaml:"face"`
	Liveness float64 `yaml:"liveness"`
	Behavior float64 `yaml:"behavior"`
}

type StoreConfig struct {
	RedisAddr     string `yaml:"redis_addr"`
	RedisPassword string `yaml:"redis_password"`
	RedisDB       int    `yaml:"redis_db"`
}

type AuditConfig struct {
	PostgresDSN string `yaml:"postgres_dsn"`
}

// DefaultVerification returns the stock loop tuning.
func DefaultVerification() VerificationConfig {
	return VerificationConfig{
		Weights:           SignalWeights{Face: 0.4, Liveness: 0.3, Behavior: 0.3},
		Thresholds:        StateThresholds{NormalMin: 0.7, WatchMin: 0.5, RestrictMin: 0.3},
		Fallbacks:         SignalFallbacks{Face: 0.85, Liveness: 0.70, Behavior: 0.80},
		Alpha:             0.3,
		TickInterval:      500 * time.Millisecond,
		HysteresisMargin:  0.02,
		DegradedTickLimit: 3,
	}
}

// Load reads a YAML config file and fills defaults for omitted fields.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	cfg := &Config{Verification: DefaultVerification()}
	if err := yaml.NewDecoder(f).Decode(cfg); err != nil {
		return nil, err
	}
	cfg.fillDefaults()

	if err := cfg.Verification.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) fillDefaults() {
	if c.Server.Port == "" {
		c.Server.Port = "8080"
	}
	d := DefaultVerification()
	v := &c.Verification
	if v.TickInterval == 0 {
		v.TickInterval = d.TickInterval
	}
	if v.DegradedTickLimit == 0 {
		v.DegradedTickLimit = d.DegradedTickLimit
	}
}

const weightSumTolerance = 1e-9

// Validate checks the invariants the rest of the system relies on.
// Fatal at startup: a broken config refuses to construct anything.
func (v VerificationConfig) Validate() error {
	sum := v.Weights.Face + v.Weights.Liveness + v.Weights.Behavior
	if sum < 1.0-weightSumTolerance || sum > 1.0+weightSumTolerance {
		return fmt.Errorf("%w: signal weights sum to %.6f, want 1.0", ErrInvalidConfig, sum)
	}
	if v.Weights.Face < 0 || v.Weights.Liveness < 0 || v.Weights.Behavior < 0 {
		return fmt.Errorf("%w: signal weights must be non-negative", ErrInvalidConfig)
	}

	t := v.Thresholds
	if !(t.NormalMin > t.WatchMin && t.WatchMin > t.RestrictMin) {
		return fmt.Errorf("%w: thresholds must be strictly decreasing, got (%.2f, %.2f, %.2f)",
			ErrInvalidConfig, t.NormalMin, t.WatchMin, t.RestrictMin)
	}
	if t.RestrictMin < 0 || t.NormalMin > 1 {
		return fmt.Errorf("%w: thresholds must lie within [0,1]", ErrInvalidConfig)
	}

	if v.Alpha <= 0 || v.Alpha >= 1 {
		return fmt.Errorf("%w: alpha %.4f outside (0,1)", ErrInvalidConfig, v.Alpha)
	}
	if v.TickInterval <= 0 {
		return fmt.Errorf("%w: tick interval must be positive", ErrInvalidConfig)
	}
	if v.HysteresisMargin < 0 {
		return fmt.Errorf("%w: hysteresis margin must be non-negative", ErrInvalidConfig)
	}

	for name, fb := range map[string]float64{
		"face":     v.Fallbacks.Face,
		"liveness": v.Fallbacks.Liveness,
		"behavior": v.Fallbacks.Behavior,
	} {
		if fb < 0 || fb > 1 {
			return fmt.Errorf("%w: %s fallback %.4f outside [0,1]", ErrInvalidConfig, name, fb)
		}
	}
	return nil
}
