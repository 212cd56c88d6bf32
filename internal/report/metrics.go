// Package report renders run artifacts meant for people and monitoring:
// the threshold sweep plot and a Prometheus textfile of run metrics.
package report

import (
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/YuminosukeSato/fraudkit/pkg/errors"
)

const namespace = "fraudkit"

// Metrics collects the scores of one pipeline run in a private registry, to
// be exported as a node_exporter textfile.
type Metrics struct {
	reg *prometheus.Registry

	foldMacroF1 *prometheus.GaugeVec
	foldAUC     *prometheus.GaugeVec
	foldLogLoss *prometheus.GaugeVec

	oofMacroF1 prometheus.Gauge
	oofAUC     prometheus.Gauge

	threshold        *prometheus.GaugeVec
	thresholdMacroF1 *prometheus.GaugeVec

	inferRows      prometheus.Gauge
	inferPositives prometheus.Gauge
	inferModels    prometheus.Gauge

	runDuration *prometheus.GaugeVec
	runLast     *prometheus.GaugeVec
}

// NewMetrics creates and registers every metric.
func NewMetrics() *Metrics {
	foldLabels := []string{"fold"}
	m := &Metrics{
		reg: prometheus.NewRegistry(),
		foldMacroF1: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "cv", Name: "fold_macro_f1",
			Help: "Macro F1 at threshold 0.5 on the held-out fold",
		}, foldLabels),
		foldAUC: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "cv", Name: "fold_auc",
			Help: "ROC AUC on the held-out fold",
		}, foldLabels),
		foldLogLoss: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "cv", Name: "fold_logloss",
			Help: "Binary log-loss on the held-out fold",
		}, foldLabels),
		oofMacroF1: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "cv", Name: "oof_macro_f1",
			Help: "Macro F1 at threshold 0.5 over all out-of-fold predictions",
		}),
		oofAUC: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "cv", Name: "oof_auc",
			Help: "ROC AUC over all out-of-fold predictions",
		}),
		threshold: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "threshold", Name: "selected",
			Help: "Selected decision threshold",
		}, []string{"strategy"}),
		thresholdMacroF1: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "threshold", Name: "macro_f1",
			Help: "Out-of-fold macro F1 at the selected threshold",
		}, []string{"strategy"}),
		inferRows: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "inference", Name: "rows",
			Help: "Rows scored by the last inference run",
		}),
		inferPositives: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "inference", Name: "positives",
			Help: "Rows predicted as fraud by the last inference run",
		}),
		inferModels: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "inference", Name: "models",
			Help: "Fold models averaged by the last inference run",
		}),
		runDuration: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Name: "run_duration_seconds",
			Help: "Wall time of the last run",
		}, []string{"command"}),
		runLast: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Name: "last_run_timestamp_seconds",
			Help: "Unix time the last run finished",
		}, []string{"command"}),
	}
	m.reg.MustRegister(
		m.foldMacroF1, m.foldAUC, m.foldLogLoss,
		m.oofMacroF1, m.oofAUC,
		m.threshold, m.thresholdMacroF1,
		m.inferRows, m.inferPositives, m.inferModels,
		m.runDuration, m.runLast,
	)
	return m
}

// ObserveFold records the diagnostics of a 1-based fold.
func (m *Metrics) ObserveFold(fold int, macroF1, auc, logLoss float64) {
	label := strconv.Itoa(fold)
	m.foldMacroF1.WithLabelValues(label).Set(macroF1)
	m.foldAUC.WithLabelValues(label).Set(auc)
	m.foldLogLoss.WithLabelValues(label).Set(logLoss)
}

// SetOOF records the scores over the whole out-of-fold vector.
func (m *Metrics) SetOOF(macroF1, auc float64) {
	m.oofMacroF1.Set(macroF1)
	m.oofAUC.Set(auc)
}

// SetThreshold records the selected threshold of a strategy.
func (m *Metrics) SetThreshold(strategy string, thr, macroF1 float64) {
	m.threshold.WithLabelValues(strategy).Set(thr)
	m.thresholdMacroF1.WithLabelValues(strategy).Set(macroF1)
}

// SetInference records the size of an inference run.
func (m *Metrics) SetInference(rows, positives, models int) {
	m.inferRows.Set(float64(rows))
	m.inferPositives.Set(float64(positives))
	m.inferModels.Set(float64(models))
}

// ObserveRun records the duration and completion time of a command.
func (m *Metrics) ObserveRun(command string, started, finished time.Time) {
	m.runDuration.WithLabelValues(command).Set(finished.Sub(started).Seconds())
	m.runLast.WithLabelValues(command).Set(float64(finished.Unix()))
}

// Gatherer exposes the registry.
func (m *Metrics) Gatherer() prometheus.Gatherer { return m.reg }

// WriteTextfile atomically writes the metrics in the text exposition format.
func (m *Metrics) WriteTextfile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errors.Wrapf(err, "create metrics dir for %s", path)
	}
	if err := prometheus.WriteToTextfile(path, m.reg); err != nil {
		return errors.Wrapf(err, "write metrics %s", path)
	}
	return nil
}
