package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_Counters(t *testing.T) {
	r := NewRegistry("lms")
	r.ProgressReports.WithLabelValues(ResultApplied).Inc()
	r.ProgressReports.WithLabelValues(ResultApplied).Inc()
	r.CertificatesIssued.Inc()

	assert.Equal(t, 2.0, testutil.ToFloat64(r.ProgressReports.WithLabelValues(ResultApplied)))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.CertificatesIssued))

	families, err := r.Gatherer().Gather()
	require.NoError(t, err)
	names := make(map[string]bool)
	for _, f := range families {
		names[f.GetName()] = true
	}
	assert.True(t, names["lms_progress_reports_total"])
	assert.True(t, names["lms_certificates_issued_total"])
}
