// Package plugin exposes the webBnv plugin to an agent host.
package plugin

import (
	"log/slog"

	"github.com/bnv-me/webbnv/internal/startup"
	"github.com/bnv-me/webbnv/pkg/host"
)

const (
	Name        = "webBnv"
	Description = "Dresses the agent's ME:ID avatar from its recent conversations and the BNV wearable catalog."
)

// Option customizes the plugin's startup client.
type Option func(*startup.Options)

// WithEvents publishes lifecycle events to p.
func WithEvents(p startup.EventPublisher) Option {
	return func(o *startup.Options) { o.Events = p }
}

// WithGuard serializes outfit cycles across replicas with g.
func WithGuard(g startup.Guard) Option {
	return func(o *startup.Options) { o.Guard = g }
}

// WithLogger sets the plugin logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *startup.Options) { o.Logger = l }
}

// New returns the plugin. It contributes no conversational actions,
// evaluators or providers, only the startup client.
func New(opts ...Option) host.Plugin {
	var o startup.Options
	for _, opt := range opts {
		opt(&o)
	}
	return host.Plugin{
		Name:        Name,
		Description: Description,
		Actions:     []host.Action{},
		Evaluators:  []host.Evaluator{},
		Providers:   []host.Provider{},
		Clients:     []host.Client{startup.NewClient(o)},
	}
}

// StartupClient returns the plugin's startup client, or nil when p was not
// built by New.
func StartupClient(p host.Plugin) *startup.Client {
	for _, c := range p.Clients {
		if sc, ok := c.(*startup.Client); ok {
			return sc
		}
	}
	return nil
}
