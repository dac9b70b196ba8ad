package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// LoadConfig reads a YAML file and applies spec defaults (§6.4) for any
// field left unset.
func LoadConfig(filepath string) (*Config, error) {
	data, err := os.ReadFile(filepath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := Config{Dynamic: defaults()}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if len(cfg.Backends) == 0 {
		return nil, fmt.Errorf("no backends configured")
	}
	if cfg.LoadBalancerHost == "" {
		cfg.LoadBalancerHost = "0.0.0.0"
	}
	if cfg.LoadBalancerPort == 0 {
		cfg.LoadBalancerPort = 11434
	}
	applyDynamicDefaults(&cfg.Dynamic)

	return &cfg, nil
}

// applyDynamicDefaults fills in zero-valued dynamic settings. Used both by
// the initial load and by the watcher's reload, so a reloaded file that
// only overrides one knob doesn't zero out the rest.
func applyDynamicDefaults(d *Dynamic) {
	def := defaults()
	if d.MetricsIntervalSeconds == 0 {
		d.MetricsIntervalSeconds = def.MetricsIntervalSeconds
	}
	if d.HealthCheckIntervalSeconds == 0 {
		d.HealthCheckIntervalSeconds = def.HealthCheckIntervalSeconds
	}
	if d.RequestTimeoutSeconds == 0 {
		d.RequestTimeoutSeconds = def.RequestTimeoutSeconds
	}
	if d.UnhealthyThreshold == 0 {
		d.UnhealthyThreshold = def.UnhealthyThreshold
	}
	if d.RecoveryDelaySeconds == 0 {
		d.RecoveryDelaySeconds = def.RecoveryDelaySeconds
	}
	if d.SidecarHostSuffix == "" {
		d.SidecarHostSuffix = def.SidecarHostSuffix
	}
	if d.SidecarPortOffset == 0 {
		d.SidecarPortOffset = def.SidecarPortOffset
	}
}
