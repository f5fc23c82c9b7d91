// Package prometheus adapts the observability MetricFactory to the
// Prometheus client.
package prometheus

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	promclient "github.com/prometheus/client_golang/prometheus"

	"github.com/xraph/trialpay/observability"
)

var _ observability.MetricFactory = (*Factory)(nil)

// Factory creates Prometheus collectors on demand and registers them with
// a Registerer. Dotted metric names become underscore-separated; counters get
// a "_total" suffix.
type Factory struct {
	namespace string
	reg       promclient.Registerer
	buckets   []float64

	mu         sync.Mutex
	counters   map[string]promclient.Counter
	histograms map[string]promclient.Histogram
	errs       []error
}

// Option configures a Factory.
type Option func(*Factory)

// WithNamespace prefixes every metric name.
func WithNamespace(ns string) Option {
	return func(f *Factory) { f.namespace = ns }
}

// WithBuckets overrides the histogram buckets.
func WithBuckets(b []float64) Option {
	return func(f *Factory) { f.buckets = b }
}

// NewFactory returns a Factory registering into reg, or the default
// registerer when reg is nil.
func NewFactory(reg promclient.Registerer, opts ...Option) *Factory {
	if reg == nil {
		reg = promclient.DefaultRegisterer
	}
	f := &Factory{
		reg:        reg,
		buckets:    promclient.DefBuckets,
		counters:   make(map[string]promclient.Counter),
		histograms: make(map[string]promclient.Histogram),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Counter implements observability.MetricFactory.
func (f *Factory) Counter(name string) observability.Counter {
	f.mu.Lock()
	defer f.mu.Unlock()

	if c, ok := f.counters[name]; ok {
		return c
	}
	c := promclient.NewCounter(promclient.CounterOpts{
		Namespace: f.namespace,
		Name:      metricName(name) + "_total",
		Help:      "Count of " + name + " events.",
	})
	if err := f.reg.Register(c); err != nil {
		var are promclient.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(promclient.Counter); ok {
				c = existing
			}
		} else {
			f.errs = append(f.errs, fmt.Errorf("register counter %s: %w", name, err))
		}
	}
	f.counters[name] = c
	return c
}

// Histogram implements observability.MetricFactory.
func (f *Factory) Histogram(name string) observability.Histogram {
	f.mu.Lock()
	defer f.mu.Unlock()

	if h, ok := f.histograms[name]; ok {
		return h
	}
	h := promclient.NewHistogram(promclient.HistogramOpts{
		Namespace: f.namespace,
		Name:      metricName(name),
		Help:      "Distribution of " + name + ".",
		Buckets:   f.buckets,
	})
	if err := f.reg.Register(h); err != nil {
		var are promclient.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(promclient.Histogram); ok {
				h = existing
			}
		} else {
			f.errs = append(f.errs, fmt.Errorf("register histogram %s: %w", name, err))
		}
	}
	f.histograms[name] = h
	return h
}

// Err returns the registration failures collected so far. Collectors that
// failed to register still work but are not exported.
func (f *Factory) Err() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return errors.Join(f.errs...)
}

func metricName(name string) string {
	return strings.NewReplacer(".", "_", "-", "_").Replace(name)
}
