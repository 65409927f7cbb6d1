// Package metrics exports run results in the Prometheus text format, for the
// node_exporter textfile collector.
package metrics

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/jaspreet-dot-casa/pve-templates/pkg/provision"
)

const namespace = "pvetmpl"

// Recorder holds the metrics of the most recent run.
type Recorder struct {
	registry *prometheus.Registry

	runSuccess   prometheus.Gauge
	runTimestamp prometheus.Gauge
	runDuration  prometheus.Gauge
	templates    *prometheus.GaugeVec
	failures     *prometheus.GaugeVec
	fetchBytes   *prometheus.GaugeVec
	tmplDuration *prometheus.GaugeVec
}

// NewRecorder creates a recorder with its own registry.
func NewRecorder() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		runSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "run",
			Name:      "success",
			Help:      "Whether the last run succeeded (1) or not (0)",
		}),
		runTimestamp: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "run",
			Name:      "timestamp_seconds",
			Help:      "Unix time the last run finished",
		}),
		runDuration: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "run",
			Name:      "duration_seconds",
			Help:      "Duration of the last run in seconds",
		}),
		templates: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "run",
			Name:      "templates",
			Help:      "Number of templates in the last run by outcome",
		}, []string{"outcome"}),
		failures: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "run",
			Name:      "failed_step",
			Help:      "Step that aborted the last run (1), absent on success",
		}, []string{"step", "vmid"}),
		fetchBytes: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "template",
			Name:      "image_bytes",
			Help:      "Size of the fetched image in bytes",
		}, []string{"vmid", "name"}),
		tmplDuration: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "template",
			Name:      "duration_seconds",
			Help:      "Time spent provisioning a template in seconds",
		}, []string{"vmid", "name", "outcome"}),
	}

	r.registry.MustRegister(r.runSuccess, r.runTimestamp, r.runDuration,
		r.templates, r.failures, r.fetchBytes, r.tmplDuration)
	return r
}

// Observe records a run report, replacing any previous run.
func (r *Recorder) Observe(report *provision.Report) {
	r.templates.Reset()
	r.failures.Reset()
	r.fetchBytes.Reset()
	r.tmplDuration.Reset()

	success := 1.0
	if report.Err != nil {
		success = 0
	}
	r.runSuccess.Set(success)
	r.runTimestamp.Set(float64(report.Finished.Unix()))
	r.runDuration.Set(report.Finished.Sub(report.Started).Seconds())

	for _, o := range []provision.Outcome{provision.OutcomeCreated, provision.OutcomeSkipped, provision.OutcomeFailed} {
		r.templates.WithLabelValues(string(o)).Set(float64(report.Count(o)))
	}

	for _, res := range report.Results {
		vmid := strconv.Itoa(res.VMID)
		if res.Outcome == provision.OutcomeFailed {
			r.failures.WithLabelValues(string(res.Step), vmid).Set(1)
		}
		if res.Outcome == provision.OutcomeSkipped {
			continue
		}
		if res.Bytes > 0 {
			r.fetchBytes.WithLabelValues(vmid, res.Name).Set(float64(res.Bytes))
		}
		r.tmplDuration.WithLabelValues(vmid, res.Name, string(res.Outcome)).Set(res.Duration.Seconds())
	}
}

// Gatherer exposes the registry, e.g. for tests.
func (r *Recorder) Gatherer() prometheus.Gatherer {
	return r.registry
}

// WriteTextfile writes the metrics atomically to path.
func (r *Recorder) WriteTextfile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create metrics directory: %w", err)
	}
	if err := prometheus.WriteToTextfile(path, r.registry); err != nil {
		return fmt.Errorf("failed to write metrics: %w", err)
	}
	return nil
}
