package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordTransaction(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New("ledger-test")
	require.NoError(t, m.Register(reg))

	m.RecordTransaction("transfer_out", "completed", 0.01)
	m.RecordTransaction("transfer_out", "completed", 0.02)
	m.RecordTransaction("withdrawal", "failed", 0.01)
	m.NotificationDropped()

	assert.Equal(t, 2.0, testutil.ToFloat64(m.TransactionsTotal.WithLabelValues("transfer_out", "completed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.TransactionsTotal.WithLabelValues("withdrawal", "failed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.NotificationsDropped))

	rec := httptest.NewRecorder()
	Handler(reg).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Contains(t, rec.Body.String(), "ledger_transactions_total")
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.RecordHTTPRequest("GET", "/", 200, 0.1)
		m.RecordGRPCRequest("/x", "OK", 0.1)
		m.RecordTransaction("deposit", "completed", 0.1)
		m.ObserveLockWait(0.1)
		m.NotificationDropped()
		m.NotificationFailed()
	})
}

func TestRegisterTwiceFails(t *testing.T) {
	reg := prometheus.NewRegistry()
	require.NoError(t, New("a").Register(reg))
	assert.Error(t, New("a").Register(reg))
}
