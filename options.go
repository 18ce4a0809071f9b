package dexgo

import (
	"log/slog"
	"time"

	"github.com/hupe1980/dexgo/cluster"
)

// DefaultJobPrefix is the prefix used to derive cluster job names. Index
// names starting with this prefix are treated as cluster-submitted.
const DefaultJobPrefix = "dexgo"

type options struct {
	metricsCollector MetricsCollector
	logger           *Logger
	jobPrefix        string
	pollInterval     time.Duration
	remoteTimeout    time.Duration
	singleflight     bool
}

// Option configures Dexgo constructor behavior.
type Option func(*options)

// WithMetricsCollector configures a metrics collector for monitoring
// operations. Pass nil to disable metrics collection.
//
// Example with BasicMetricsCollector:
//
//	metrics := &dexgo.BasicMetricsCollector{}
//	dx, _ := dexgo.New(store, client, dexgo.WithMetricsCollector(metrics))
//	// ... use dx ...
//	stats := metrics.GetStats()
func WithMetricsCollector(mc MetricsCollector) Option {
	return func(o *options) {
		o.metricsCollector = mc
	}
}

// WithLogger configures structured logging for operations.
// Pass nil to disable logging.
//
// Example with JSON logging:
//
//	logger := dexgo.NewJSONLogger(slog.LevelInfo)
//	dx, _ := dexgo.New(store, client, dexgo.WithLogger(logger))
func WithLogger(logger *Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithLogLevel creates a text logger with the specified level and sets it.
// Convenience wrapper for WithLogger(NewTextLogger(level)).
func WithLogLevel(level slog.Level) Option {
	return func(o *options) {
		o.logger = NewTextLogger(level)
	}
}

// WithJobPrefix configures the prefix for derived cluster job names. Index
// names starting with the prefix are recognized as cluster-submitted and
// resolved against the cluster when no local artifact exists.
//
// An empty prefix keeps the default.
func WithJobPrefix(prefix string) Option {
	return func(o *options) {
		if prefix != "" {
			o.jobPrefix = prefix
		}
	}
}

// WithPollInterval configures the pacing of status polls in WaitReady and in
// the ephemeral keys/values/query jobs.
func WithPollInterval(interval time.Duration) Option {
	return func(o *options) {
		if interval > 0 {
			o.pollInterval = interval
		}
	}
}

// WithRemoteTimeout bounds each individual cluster call (submit, status,
// expand, clean, purge) with the given timeout, regardless of the client
// implementation. Zero disables the facade-level bound; clients may still
// apply their own.
func WithRemoteTimeout(timeout time.Duration) Option {
	return func(o *options) {
		o.remoteTimeout = timeout
	}
}

// WithSingleflight enables or disables collapsing concurrent
// materializations of the same index name into one cluster fetch. Enabled by
// default. Correctness does not depend on it: racing materializations write
// identical artifacts and the last rename wins.
func WithSingleflight(enabled bool) Option {
	return func(o *options) {
		o.singleflight = enabled
	}
}

func applyOptions(optFns []Option) options {
	o := options{
		metricsCollector: NoopMetricsCollector{},
		logger:           NoopLogger(),
		jobPrefix:        DefaultJobPrefix,
		pollInterval:     cluster.DefaultPollInterval,
		singleflight:     true,
	}
	for _, fn := range optFns {
		if fn != nil {
			fn(&o)
		}
	}
	if o.metricsCollector == nil {
		o.metricsCollector = NoopMetricsCollector{}
	}
	if o.logger == nil {
		o.logger = NoopLogger()
	}
	return o
}
