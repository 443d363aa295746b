package jobmetrics

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
)

func counterValue(t *testing.T, reg *prometheus.Registry, name string, labels map[string]string) float64 {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
	next:
		for _, metric := range mf.GetMetric() {
			for _, lp := range metric.GetLabel() {
				if labels[lp.GetName()] != lp.GetValue() {
					continue next
				}
			}
			return metric.GetCounter().GetValue()
		}
	}
	return 0
}

func TestTrackerRecordsOutcome(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	require.NoError(t, m.Track("scan").End(nil))
	boom := errors.New("boom")
	require.ErrorIs(t, m.Track("scan").End(boom), boom)

	require.InDelta(t, 1, counterValue(t, reg, "agri_jobs_total", map[string]string{"job": "scan", "status": "success"}), 0)
	require.InDelta(t, 1, counterValue(t, reg, "agri_jobs_total", map[string]string{"job": "scan", "status": "failure"}), 0)
	require.InDelta(t, 1, counterValue(t, reg, "agri_jobs_failures_total", map[string]string{"job": "scan"}), 0)
}

func TestAlertsAndNilSafety(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	m.AddAlerts("created", 2)
	m.AddAlerts("created", 0)
	require.InDelta(t, 2, counterValue(t, reg, "agri_inventory_low_stock_alerts_total", map[string]string{"outcome": "created"}), 0)

	var nilMetrics *Metrics
	nilMetrics.AddAlerts("created", 1)
	require.NoError(t, nilMetrics.Track("scan").End(nil))
}
