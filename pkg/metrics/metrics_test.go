package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetrics_Record(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.MessageSubmitted("dm")
	m.MessageSubmitted("dm")
	m.MessageRejected("invalid_input")
	m.Delivered(true)
	m.Delivered(false)
	m.ConnectionOpened()
	m.ConnectionOpened()
	m.ConnectionClosed()
	m.SubscriptionsChanged(3)
	m.SubscriptionsChanged(-1)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.Submitted.WithLabelValues("dm")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Rejected.WithLabelValues("invalid_input")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Deliveries))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.DeliveryFailures))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Connections))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.Subscriptions))
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.MessageSubmitted("global")
		m.MessageRejected("persistence")
		m.Delivered(true)
		m.ConnectionOpened()
		m.ConnectionClosed()
		m.SubscriptionsChanged(1)
	})
}
