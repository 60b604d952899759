// Package metrics counts scan and migration activity for one run and pushes
// the totals to a Prometheus Pushgateway.
package metrics

import (
	"context"
	"fmt"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/push"

	"imgmigrate/internal/migrate"
)

const namespace = "imgmigrate"

// Recorder holds the run counters on a private registry.
type Recorder struct {
	registry   *prometheus.Registry
	findings   prometheus.Counter
	migrated   prometheus.Counter
	duplicates prometheus.Counter
	downloaded prometheus.Counter
	failures   *prometheus.CounterVec
}

// NewRecorder registers the run counters on a fresh registry.
func NewRecorder() *Recorder {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)
	return &Recorder{
		registry: reg,
		findings: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "findings_total",
			Help:      "External image references found by scans.",
		}),
		migrated: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "images_migrated_total",
			Help:      "Image references replaced and recorded.",
		}),
		duplicates: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "duplicate_uploads_total",
			Help:      "Uploads answered with an existing backend asset.",
		}),
		downloaded: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "downloaded_bytes_total",
			Help:      "Bytes fetched from remote image hosts.",
		}),
		failures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "failures_total",
			Help:      "Migration failures by pipeline stage.",
		}, []string{"stage"}),
	}
}

// Registry exposes the underlying registry.
func (r *Recorder) Registry() *prometheus.Registry { return r.registry }

// FindingsObserved adds n scan findings.
func (r *Recorder) FindingsObserved(n int) {
	if n > 0 {
		r.findings.Add(float64(n))
	}
}

func (r *Recorder) ImageDownloaded(bytes int64) {
	if bytes > 0 {
		r.downloaded.Add(float64(bytes))
	}
}

func (r *Recorder) ImageMigrated()   { r.migrated.Inc() }
func (r *Recorder) DuplicateReused() { r.duplicates.Inc() }

func (r *Recorder) StageFailed(stage migrate.Stage) {
	r.failures.WithLabelValues(string(stage)).Inc()
}

// Push sends the current counters to the Pushgateway at url under job. An
// empty url is a no-op.
func (r *Recorder) Push(ctx context.Context, url, job string) error {
	url = strings.TrimSpace(url)
	if url == "" {
		return nil
	}
	if strings.TrimSpace(job) == "" {
		job = namespace
	}
	if err := push.New(url, job).Gatherer(r.registry).PushContext(ctx); err != nil {
		return fmt.Errorf("push metrics to %s: %w", url, err)
	}
	return nil
}

var _ migrate.Observer = (*Recorder)(nil)
