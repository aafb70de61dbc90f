package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetrics_Counters(t *testing.T) {
	m := New()

	m.Transition("Approved", "Assigned")
	m.Transition("Approved", "Assigned")
	m.BatchRow("assign", true)
	m.BatchRow("assign", false)
	m.ObserveCall("exams", time.Now(), errors.New("timeout"))

	assert.Equal(t, 2.0, testutil.ToFloat64(m.transitions.WithLabelValues("Approved", "Assigned")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.batchRows.WithLabelValues("assign", "failed")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.callDuration))
}

func TestMetrics_NilSafe(t *testing.T) {
	var m *Metrics

	assert.NotPanics(t, func() {
		m.Transition("a", "b")
		m.BatchRow("publish", true)
		m.ObserveCall("fees", time.Now(), nil)
		m.Error("conflict")
		_ = m.Handler()
	})
}
