package apikey

import (
	"crypto/rand"
	"io"

	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/tspence/api-key-generator/pkg/logger"
)

// Option configures a Validator or CachedValidator.
type Option func(*options)

type options struct {
	logger  logger.Logger
	metrics *Metrics
	tracer  trace.Tracer
	random  io.Reader
}

func defaultOptions() options {
	return options{
		logger: logger.NewNoopLogger(),
		tracer: noop.NewTracerProvider().Tracer(tracerName),
		random: rand.Reader,
	}
}

func applyOptions(opts []Option) options {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

const tracerName = "github.com/tspence/api-key-generator/pkg/apikey"

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithMetrics sets the metrics sink.
func WithMetrics(m *Metrics) Option {
	return func(o *options) {
		o.metrics = m
	}
}

// WithTracer sets the tracer used for validation and generation spans.
func WithTracer(t trace.Tracer) Option {
	return func(o *options) {
		if t != nil {
			o.tracer = t
		}
	}
}

// WithRandom sets the source of key ids, secrets and salts. Defaults to crypto/rand.
func WithRandom(r io.Reader) Option {
	return func(o *options) {
		if r != nil {
			o.random = r
		}
	}
}
