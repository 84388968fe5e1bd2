package engine

import (
	"fmt"

	"github.com/preesm/spider2-sub002/alloc"
	"github.com/preesm/spider2-sub002/platform"
	"github.com/preesm/spider2-sub002/providers/observability"
	"github.com/preesm/spider2-sub002/scheduler"
	"github.com/preesm/spider2-sub002/store"
)

// MappingPolicyKind selects a scheduler.MappingPolicy by name, the way the
// embedder's config file names it.
type MappingPolicyKind int

const (
	BestFit MappingPolicyKind = iota
	RoundRobin
)

// Config holds everything engine.Start needs to bring the runtime up: the
// platform description, the mapping/allocation policies, and the
// observability provider every component logs through.
type Config struct {
	Platform      *platform.Platform
	MappingPolicy MappingPolicyKind
	AllocMode     alloc.Mode
	Store         store.Store
	Observer      observability.Provider
	Trace         TraceSink
}

// Option is a functional option for Config.
type Option func(*Config)

// WithMappingPolicy selects BEST_FIT or ROUND_ROBIN (default BEST_FIT).
func WithMappingPolicy(k MappingPolicyKind) Option {
	return func(c *Config) { c.MappingPolicy = k }
}

// WithAllocMode selects the FIFO allocator's sharing strategy.
func WithAllocMode(m alloc.Mode) Option {
	return func(c *Config) { c.AllocMode = m }
}

// WithStore overrides the persistent-delay backing store (default
// store.NewInMemory()).
func WithStore(s store.Store) Option {
	return func(c *Config) { c.Store = s }
}

// WithObserver sets the observability provider every component logs
// through. A nil provider (the default) disables observability.
func WithObserver(obs observability.Provider) Option {
	return func(c *Config) { c.Observer = obs }
}

// WithTrace installs a TraceSink for Gantt/DOT export hooks. The default is
// a no-op sink.
func WithTrace(t TraceSink) Option {
	return func(c *Config) { c.Trace = t }
}

// LoadConfig loads envPath (an optional .env-style file) into the process
// environment via godotenv, then loads and validates the platform descriptor
// at platformPath with platform.Load. No configuration value is read back
// from the environment here; policy and other settings come from opts.
func LoadConfig(envPath, platformPath string, opts ...Option) (*Config, error) {
	if envPath != "" {
		if err := platform.LoadEnv(envPath); err != nil {
			return nil, fmt.Errorf("engine: load env %q: %w", envPath, err)
		}
	}
	plat, err := platform.Load(platformPath)
	if err != nil {
		return nil, classify(err, "", InvalidGraph)
	}
	cfg := &Config{
		Platform:      plat,
		MappingPolicy: BestFit,
		Store:         store.NewInMemory(),
		Trace:         noopTrace{},
	}
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.Store == nil {
		cfg.Store = store.NewInMemory()
	}
	if cfg.Trace == nil {
		cfg.Trace = noopTrace{}
	}
	return cfg, nil
}

func (c *Config) mappingPolicy() scheduler.MappingPolicy {
	switch c.MappingPolicy {
	case RoundRobin:
		return scheduler.NewRoundRobin(c.Platform)
	default:
		return scheduler.BestFit{}
	}
}
