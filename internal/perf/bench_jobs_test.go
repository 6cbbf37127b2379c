package perf

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"

	jobmetrics "github.com/odyssey-erp/purchasing/internal/jobs"
)

func TestReminderJobThroughputAndReliability(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := jobmetrics.NewMetrics(reg)

	for i := 0; i < 60; i++ {
		tracker := metrics.Track("emi:reminder")
		metrics.AddReminder("sent")
		if err := tracker.End(nil); err != nil {
			t.Fatalf("unexpected error ending reminder tracker: %v", err)
		}
	}

	// Backend outages surface as retried failures.
	for i := 0; i < 3; i++ {
		tracker := metrics.Track("emi:reminder")
		if err := tracker.End(errors.New("backend unavailable")); err == nil {
			t.Fatal("expected error to propagate")
		}
	}

	tracker := metrics.Track("idempotency:cleanup")
	time.Sleep(5 * time.Millisecond)
	metrics.AddPurgedKeys(42)
	if err := tracker.End(nil); err != nil {
		t.Fatalf("unexpected error ending cleanup tracker: %v", err)
	}

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("failed to gather metrics: %v", err)
	}

	success := metricValue(t, families, "purchasing_jobs_total", map[string]string{"job": "emi:reminder", "status": "success"})
	failure := metricValue(t, families, "purchasing_jobs_total", map[string]string{"job": "emi:reminder", "status": "failure"})
	if success+failure == 0 {
		t.Fatal("no reminder executions recorded")
	}
	if ratio := success / (success + failure); ratio < 0.9 {
		t.Fatalf("reminder success ratio too low: %f", ratio)
	}

	sent := metricValue(t, families, "purchasing_emi_reminders_total", map[string]string{"outcome": "sent"})
	if sent != 60 {
		t.Fatalf("expected 60 reminders sent, got %f", sent)
	}
	purged := metricValue(t, families, "purchasing_idempotency_keys_purged_total", map[string]string{})
	if purged != 42 {
		t.Fatalf("expected 42 purged keys, got %f", purged)
	}

	cleanupDuration := histogramMean(t, families, "purchasing_job_duration_seconds", map[string]string{"job": "idempotency:cleanup"})
	if cleanupDuration > 2.0 {
		t.Fatalf("cleanup duration above budget: %f", cleanupDuration)
	}
}

func metricValue(t *testing.T, families []*dto.MetricFamily, name string, labels map[string]string) float64 {
	t.Helper()
	for _, fam := range families {
		if fam.GetName() != name {
			continue
		}
		for _, metric := range fam.GetMetric() {
			if hasLabels(metric, labels) {
				if fam.GetType() == dto.MetricType_COUNTER {
					return metric.GetCounter().GetValue()
				}
				if fam.GetType() == dto.MetricType_GAUGE {
					return metric.GetGauge().GetValue()
				}
			}
		}
	}
	t.Fatalf("metric %s with labels %v not found", name, labels)
	return 0
}

func histogramMean(t *testing.T, families []*dto.MetricFamily, name string, labels map[string]string) float64 {
	t.Helper()
	for _, fam := range families {
		if fam.GetName() != name {
			continue
		}
		for _, metric := range fam.GetMetric() {
			if hasLabels(metric, labels) {
				hist := metric.GetHistogram()
				if hist == nil || hist.GetSampleCount() == 0 {
					t.Fatalf("histogram %s missing samples", name)
				}
				return hist.GetSampleSum() / float64(hist.GetSampleCount())
			}
		}
	}
	t.Fatalf("histogram %s with labels %v not found", name, labels)
	return 0
}

func hasLabels(metric *dto.Metric, labels map[string]string) bool {
	for _, lp := range metric.GetLabel() {
		if val, ok := labels[lp.GetName()]; ok {
			if lp.GetValue() != val {
				return false
			}
		}
	}
	for key := range labels {
		found := false
		for _, lp := range metric.GetLabel() {
			if lp.GetName() == key {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}
