package config

import "github.com/inferlb/inferlb/internal/registry"

// Config is the static load balancer configuration (spec §6.4). Backends
// are fixed for the process lifetime: they seed the registry's key set
// once at startup and are never re-read from a reload.
type Config struct {
	LoadBalancerHost string          `yaml:"load_balancer_host"`
	LoadBalancerPort int             `yaml:"load_balancer_port"`
	Backends         []BackendConfig `yaml:"backends"`
	Dynamic          `yaml:",inline"`
}

// BackendConfig is one configured backend identity.
type BackendConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// Dynamic is the subset of configuration the watcher is allowed to
// hot-reload: intervals, thresholds, timeouts, and the sidecar addressing
// convention. It deliberately excludes Backends, whose key set is fixed
// per the registry's invariant.
type Dynamic struct {
	MetricsIntervalSeconds     int    `yaml:"metrics_interval"`
	HealthCheckIntervalSeconds int    `yaml:"health_check_interval"`
	RequestTimeoutSeconds      int    `yaml:"request_timeout"`
	UnhealthyThreshold         int    `yaml:"unhealthy_threshold"`
	RecoveryDelaySeconds       int    `yaml:"recovery_delay"`
	SidecarHostSuffix          string `yaml:"sidecar_host_suffix"`
	SidecarPortOffset          int    `yaml:"sidecar_port_offset"`
}

// defaults mirror spec §6.4: 2, 5, 300, 3, 30, plus the sidecar addressing
// convention from §9's deployment note.
func defaults() Dynamic {
	return Dynamic{
		MetricsIntervalSeconds:     2,
		HealthCheckIntervalSeconds: 5,
		RequestTimeoutSeconds:      300,
		UnhealthyThreshold:         3,
		RecoveryDelaySeconds:       30,
		SidecarHostSuffix:          "-monitor",
		SidecarPortOffset:          1000,
	}
}

// RegistryBackends converts the configured backend list into registry identities.
func (c *Config) RegistryBackends() []registry.Backend {
	out := make([]registry.Backend, 0, len(c.Backends))
	for _, b := range c.Backends {
		out = append(out, registry.Backend{Host: b.Host, Port: b.Port})
	}
	return out
}
