package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"dario.cat/mergo"
	"github.com/BurntSushi/toml"

	"github.com/zephyrhq/claude-zephyr/internal/zerr"
)

// rawConfig is the literal shape of the TOML file, decoded before
// normalization into the typed Config the rest of the program
// consumes. Durations are plain integers in the file (seconds or
// milliseconds, per field) and converted to time.Duration below.
type rawConfig struct {
	Server struct {
		Port                    uint16 `toml:"port"`
		SwitchThresholdMS       int64  `toml:"switch_threshold_ms"`
		GracefulSwitchTimeoutMS int64  `toml:"graceful_switch_timeout_ms"`
	} `toml:"server"`

	Groups []struct {
		Name         string `toml:"name"`
		AuthTokenEnv string `toml:"auth_token_env"`
		Default      bool   `toml:"default"`
		Endpoints    []struct {
			URL  string `toml:"url"`
			Name string `toml:"name"`
		} `toml:"endpoints"`
	} `toml:"groups"`

	HealthCheck struct {
		IntervalSeconds    int64  `toml:"interval_seconds"`
		MinIntervalSeconds int64  `toml:"min_interval_seconds"`
		MaxIntervalSeconds int64  `toml:"max_interval_seconds"`
		TimeoutSeconds     int64  `toml:"timeout_seconds"`
		DynamicScaling     bool   `toml:"dynamic_scaling"`
		ClaudeBinaryPath   string `toml:"claude_binary_path"`
		FailureThreshold   uint32 `toml:"failure_threshold"`
	} `toml:"health_check"`

	Retry struct {
		Enabled           bool    `toml:"enabled"`
		MaxAttempts       uint32  `toml:"max_attempts"`
		BaseDelayMS       int64   `toml:"base_delay_ms"`
		BackoffMultiplier float32 `toml:"backoff_multiplier"`
	} `toml:"retry"`
}

// defaults returns the rawConfig populated with every field's default,
// so that mergo only needs to overlay the fields the operator actually
// set in the file (zero-value fields in the decoded struct are left
// alone by mergo.WithOverride, which only overwrites with non-zero
// source values).
func defaults() rawConfig {
	var d rawConfig
	d.Server.Port = 8080
	d.Server.SwitchThresholdMS = 50
	d.Server.GracefulSwitchTimeoutMS = 30_000
	d.HealthCheck.IntervalSeconds = 60
	d.HealthCheck.MinIntervalSeconds = 30
	d.HealthCheck.MaxIntervalSeconds = 3600
	d.HealthCheck.TimeoutSeconds = 15
	d.HealthCheck.DynamicScaling = false
	d.HealthCheck.ClaudeBinaryPath = "claude"
	d.HealthCheck.FailureThreshold = 3
	d.Retry.Enabled = true
	d.Retry.MaxAttempts = 3
	d.Retry.BaseDelayMS = 1000
	d.Retry.BackoffMultiplier = 2.0
	return d
}

// scaleCeiling is the denominator of the adaptive-interval load ratio.
// It is not exposed as a config knob.
const scaleCeiling = 4

// Load reads, decodes and validates the TOML config at path. It is
// called once at startup and never again.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, zerr.New(zerr.ConfigInvalid, fmt.Errorf("read config: %w", err))
	}

	var decoded rawConfig
	md, err := toml.Decode(string(b), &decoded)
	if err != nil {
		return nil, zerr.New(zerr.ConfigInvalid, fmt.Errorf("toml: %w", err))
	}

	rc := defaults()
	if err := mergo.Merge(&rc, decoded, mergo.WithOverride); err != nil {
		return nil, zerr.New(zerr.ConfigInvalid, fmt.Errorf("merge defaults: %w", err))
	}
	// Booleans that are explicitly false in the file are indistinguishable
	// from "unset" to mergo's zero-value check. enabled/dynamic_scaling
	// default true/false respectively, so only enabled needs the explicit
	// carry-through, and only when the file actually sets it.
	if md.IsDefined("retry", "enabled") {
		rc.Retry.Enabled = decoded.Retry.Enabled
	}

	if len(rc.Groups) == 0 {
		return nil, zerr.New(zerr.ConfigInvalid, fmt.Errorf("groups: at least one is required"))
	}

	groups := make(map[string]Group, len(rc.Groups))
	defaultGroup := ""
	seenEndpointNames := make(map[string]struct{})
	for i, g := range rc.Groups {
		name := strings.TrimSpace(g.Name)
		if name == "" {
			return nil, zerr.New(zerr.ConfigInvalid, fmt.Errorf("groups[%d]: name is required", i))
		}
		if _, dup := groups[name]; dup {
			return nil, zerr.New(zerr.ConfigInvalid, fmt.Errorf("groups: duplicate name %q", name))
		}
		if len(g.Endpoints) == 0 {
			return nil, zerr.New(zerr.ConfigInvalid, fmt.Errorf("groups[%d](%s): endpoints is empty", i, name))
		}
		tokenEnv := strings.TrimSpace(g.AuthTokenEnv)
		if tokenEnv == "" {
			return nil, zerr.New(zerr.ConfigInvalid, fmt.Errorf("groups[%d](%s): auth_token_env is required", i, name))
		}
		credential, ok := os.LookupEnv(tokenEnv)
		if !ok || credential == "" {
			return nil, zerr.New(zerr.CredentialMissing, fmt.Errorf("groups[%d](%s): environment variable %q is not set", i, name, tokenEnv))
		}

		var endpoints []Endpoint
		for j, e := range g.Endpoints {
			epName := strings.TrimSpace(e.Name)
			if epName == "" {
				epName = fmt.Sprintf("endpoint-%d", j)
			}
			raw := strings.TrimSpace(e.URL)
			u, err := url.Parse(raw)
			if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
				return nil, zerr.New(zerr.ConfigInvalid, fmt.Errorf("groups[%d](%s).endpoints[%d]: must be an http(s) URL with host, got %q", i, name, j, raw))
			}
			if _, dup := seenEndpointNames[name+"/"+epName]; dup {
				return nil, zerr.New(zerr.ConfigInvalid, fmt.Errorf("groups[%d](%s): duplicate endpoint name %q", i, name, epName))
			}
			seenEndpointNames[name+"/"+epName] = struct{}{}
			endpoints = append(endpoints, Endpoint{Name: epName, URL: raw})
		}

		if g.Default {
			if defaultGroup != "" {
				return nil, zerr.New(zerr.ConfigInvalid, fmt.Errorf("groups: more than one group marked default (%q and %q)", defaultGroup, name))
			}
			defaultGroup = name
		}

		groups[name] = Group{
			Name:       name,
			Default:    g.Default,
			Credential: credential,
			Endpoints:  endpoints,
		}
	}
	if defaultGroup == "" {
		return nil, zerr.New(zerr.ConfigInvalid, fmt.Errorf("groups: exactly one group must be marked default"))
	}

	hc := HealthCheck{
		Interval:         time.Duration(rc.HealthCheck.IntervalSeconds) * time.Second,
		MinInterval:      time.Duration(rc.HealthCheck.MinIntervalSeconds) * time.Second,
		MaxInterval:      time.Duration(rc.HealthCheck.MaxIntervalSeconds) * time.Second,
		Timeout:          time.Duration(rc.HealthCheck.TimeoutSeconds) * time.Second,
		DynamicScaling:   rc.HealthCheck.DynamicScaling,
		ClaudeBinaryPath: strings.TrimSpace(rc.HealthCheck.ClaudeBinaryPath),
		FailureThreshold: rc.HealthCheck.FailureThreshold,
		ScaleCeiling:     scaleCeiling,
	}
	if hc.MinInterval <= 0 || hc.MaxInterval <= 0 || hc.MinInterval > hc.MaxInterval {
		return nil, zerr.New(zerr.ConfigInvalid, fmt.Errorf("health_check: min_interval_seconds must be positive and <= max_interval_seconds"))
	}
	if hc.FailureThreshold == 0 {
		return nil, zerr.New(zerr.ConfigInvalid, fmt.Errorf("health_check: failure_threshold must be >= 1"))
	}

	retry := Retry{
		Enabled:           rc.Retry.Enabled,
		MaxAttempts:       rc.Retry.MaxAttempts,
		BaseDelay:         time.Duration(rc.Retry.BaseDelayMS) * time.Millisecond,
		BackoffMultiplier: rc.Retry.BackoffMultiplier,
	}
	if retry.MaxAttempts == 0 {
		retry.MaxAttempts = 1
	}

	return &Config{
		Listen:                  fmt.Sprintf(":%d", rc.Server.Port),
		SwitchThresholdMS:       rc.Server.SwitchThresholdMS,
		GracefulSwitchTimeoutMS: rc.Server.GracefulSwitchTimeoutMS,
		HealthCheck:             hc,
		Retry:                   retry,
		Groups:                  groups,
		DefaultGroup:            defaultGroup,
	}, nil
}
