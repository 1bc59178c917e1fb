// Package observability wires the structured logging and metrics components
// used throughout claimsync and exposes them behind a single provider.
package observability

import (
	"os"
	"sync"

	"claimsync/internal/observability/logger"
	"claimsync/internal/observability/metrics"
	"claimsync/internal/observability/types"
)

// Aliases so callers import only this package.
type (
	Logger  = types.Logger
	Metrics = types.Metrics
	Fields  = types.Fields
	Config  = types.Config
)

// Provider is re-exported from types for convenience.
type Provider = types.Provider

// DefaultProvider implements Provider. Logger and Metrics instances are
// created lazily, one per component name, and cached for the process
// lifetime.
type DefaultProvider struct {
	config  *Config
	mu      sync.RWMutex
	loggers map[string]Logger
	metric  map[string]Metrics
}

// NewProvider creates a provider from the given configuration. A nil
// LogOutput defaults to os.Stdout.
func NewProvider(config *Config) *DefaultProvider {
	if config.LogOutput == nil {
		config.LogOutput = os.Stdout
	}
	return &DefaultProvider{
		config:  config,
		loggers: make(map[string]Logger),
		metric:  make(map[string]Metrics),
	}
}

// Logger returns the component-scoped logger, creating it on first use.
// The component name becomes a persistent "component" field on every entry.
func (p *DefaultProvider) Logger(component string) Logger {
	p.mu.RLock()
	if l, ok := p.loggers[component]; ok {
		p.mu.RUnlock()
		return l
	}
	p.mu.RUnlock()

	p.mu.Lock()
	defer p.mu.Unlock()
	if l, ok := p.loggers[component]; ok {
		return l
	}

	fields := types.Fields{"component": component}
	for k, v := range p.config.AdditionalFields {
		fields[k] = v
	}

	l := logger.New(
		p.config.ServiceName,
		p.config.Environment,
		p.config.LogLevel,
		p.config.LogOutput,
		fields,
	)
	p.loggers[component] = l
	return l
}

// Metrics returns the component-scoped metrics collector, creating it on
// first use.
func (p *DefaultProvider) Metrics(component string) Metrics {
	p.mu.RLock()
	if m, ok := p.metric[component]; ok {
		p.mu.RUnlock()
		return m
	}
	p.mu.RUnlock()

	p.mu.Lock()
	defer p.mu.Unlock()
	if m, ok := p.metric[component]; ok {
		return m
	}

	m := metrics.New(p.config.ServiceName, component)
	p.metric[component] = m
	return m
}

// Components is a convenience returning both logger and metrics for a
// component in one call.
func (p *DefaultProvider) Components(component string) (Logger, Metrics) {
	return p.Logger(component), p.Metrics(component)
}

// Close releases sink resources. The JSON logger writes synchronously, so
// there is nothing to flush today.
func (p *DefaultProvider) Close() error {
	return nil
}
