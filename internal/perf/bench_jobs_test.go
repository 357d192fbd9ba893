package perf

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/backoffice/internal/inventory"
	jobmetrics "github.com/odyssey-erp/backoffice/internal/jobs"
	"github.com/odyssey-erp/backoffice/internal/shared"
	"github.com/odyssey-erp/backoffice/jobs"
)

type lowStockStub struct{ err error }

func (s lowStockStub) LowStock(_ context.Context, threshold int, ids []int64) ([]inventory.Product, error) {
	if s.err != nil {
		return nil, s.err
	}
	return []inventory.Product{{ID: ids[0], Stock: threshold}}, nil
}

type auditSink struct{}

func (auditSink) Record(context.Context, shared.AuditLog) error { return nil }

type cleanerStub struct{}

func (cleanerStub) Cleanup(context.Context, time.Duration) (int64, error) { return 4, nil }

func TestJobThroughputAndReliability(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := jobmetrics.NewMetrics(reg)
	ctx := context.Background()

	healthy := &jobs.OrderPlacedJob{Stock: lowStockStub{}, Audit: auditSink{}, Metrics: metrics, Threshold: 5}
	for i := int64(1); i <= 60; i++ {
		task, err := jobs.NewOrderPlacedTask(jobs.OrderPlacedPayload{OrderID: i, ProductIDs: []int64{i}})
		require.NoError(t, err)
		require.NoError(t, healthy.Handle(ctx, task))
	}

	flaky := &jobs.OrderPlacedJob{Stock: lowStockStub{err: errors.New("conn reset")}, Audit: auditSink{}, Metrics: metrics, Threshold: 5}
	for i := int64(1); i <= 3; i++ {
		task, err := jobs.NewOrderPlacedTask(jobs.OrderPlacedPayload{OrderID: i, ProductIDs: []int64{i}})
		require.NoError(t, err)
		require.Error(t, flaky.Handle(ctx, task))
	}

	cleanup := &jobs.IdempotencyCleanupJob{Store: cleanerStub{}, Metrics: metrics}
	for i := 0; i < 5; i++ {
		require.NoError(t, cleanup.Handle(ctx, nil))
	}

	families, err := reg.Gather()
	require.NoError(t, err)

	success := metricValue(t, families, "backoffice_jobs_total", map[string]string{"job": jobs.TaskOrderPlaced, "status": "success"})
	failure := metricValue(t, families, "backoffice_jobs_total", map[string]string{"job": jobs.TaskOrderPlaced, "status": "failure"})
	require.Equal(t, 63.0, success+failure)
	if ratio := success / (success + failure); ratio < 0.9 {
		t.Fatalf("order placed success ratio too low: %f", ratio)
	}

	require.Equal(t, 60.0, metricValue(t, families, "backoffice_low_stock_alerts_total", nil))
	require.Equal(t, 20.0, metricValue(t, families, "backoffice_idempotency_keys_purged_total", nil))

	if mean := histogramMean(t, families, "backoffice_job_duration_seconds", map[string]string{"job": jobs.TaskOrderPlaced}); mean > 0.5 {
		t.Fatalf("order placed mean duration above budget: %f", mean)
	}
}

func metricValue(t *testing.T, families []*dto.MetricFamily, name string, labels map[string]string) float64 {
	t.Helper()
	for _, fam := range families {
		if fam.GetName() != name {
			continue
		}
		for _, metric := range fam.GetMetric() {
			if !hasLabels(metric, labels) {
				continue
			}
			switch fam.GetType() {
			case dto.MetricType_COUNTER:
				return metric.GetCounter().GetValue()
			case dto.MetricType_GAUGE:
				return metric.GetGauge().GetValue()
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
	matched := 0
	for _, lp := range metric.GetLabel() {
		val, ok := labels[lp.GetName()]
		if !ok {
			continue
		}
		if lp.GetValue() != val {
			return false
		}
		matched++
	}
	return matched == len(labels)
}
