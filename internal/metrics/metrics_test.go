package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestCollector_Counts(t *testing.T) {
	reg := prometheus.NewRegistry()
	c, err := New(reg)
	require.NoError(t, err)

	c.ObserveFetched("forum", 8)
	c.ObserveKept("forum", 5)
	c.ObserveRetry("forum")
	c.ObserveRetry("forum")
	c.ObservePruned("forum", "depth", 3)

	require.Equal(t, 8.0, testutil.ToFloat64(c.Fetched.WithLabelValues("forum")))
	require.Equal(t, 5.0, testutil.ToFloat64(c.Kept.WithLabelValues("forum")))
	require.Equal(t, 2.0, testutil.ToFloat64(c.Retries.WithLabelValues("forum")))
	require.Equal(t, 3.0, testutil.ToFloat64(c.Pruned.WithLabelValues("forum", "depth")))

	n, err := testutil.GatherAndCount(reg)
	require.NoError(t, err)
	require.Equal(t, 4, n)
}

func TestCollector_DoubleRegister(t *testing.T) {
	reg := prometheus.NewRegistry()
	_, err := New(reg)
	require.NoError(t, err)

	_, err = New(reg)
	require.Error(t, err)
}

func TestCollector_NilSafe(t *testing.T) {
	var c *Collector
	require.NotPanics(t, func() {
		c.ObserveFetched("forum", 1)
		c.ObserveKept("forum", 1)
		c.ObserveRetry("forum")
		c.ObservePruned("forum", "error", 1)
	})
}
