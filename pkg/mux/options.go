package mux

import (
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/trace"
)

// config collects client construction knobs.
type config struct {
	logger    *slog.Logger
	registry  prometheus.Registerer
	tracerTP  trace.TracerProvider
	gzip      bool
	sessionID string
	newID     func() string
}

// Option configures a Client.
type Option func(*config)

// WithLogger sets the structured logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(c *config) {
		c.logger = logger
	}
}

// WithMetrics registers Prometheus instruments with the given registry.
// Without this option no metrics are collected.
func WithMetrics(reg prometheus.Registerer) Option {
	return func(c *config) {
		c.registry = reg
	}
}

// WithTracerProvider enables OpenTelemetry spans around Call and Ping.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(c *config) {
		c.tracerTP = tp
	}
}

// WithGzip compresses outbound frame bodies. Inbound gzip frames are
// always accepted.
func WithGzip(enabled bool) Option {
	return func(c *config) {
		c.gzip = enabled
	}
}

// WithSessionID sets the default terminal session id, used when Send or
// Call is given an empty one. One client can still serve many sessions
// by passing explicit ids per operation.
func WithSessionID(id string) Option {
	return func(c *config) {
		c.sessionID = id
	}
}

// WithMessageIDSource overrides the message id generator. Intended for
// tests that need predictable correlation ids.
func WithMessageIDSource(fn func() string) Option {
	return func(c *config) {
		c.newID = fn
	}
}
