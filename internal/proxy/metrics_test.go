package proxy

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetProxyMetrics_Singleton(t *testing.T) {
	t.Parallel()

	m1 := getProxyMetrics()
	m2 := getProxyMetrics()
	require.NotNil(t, m1)
	assert.Same(t, m1, m2)
}

func TestCollectors_RegisterOnFreshRegistry(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	cs := Collectors()
	assert.Len(t, cs, 3)
	for _, c := range cs {
		require.NoError(t, reg.Register(c))
	}
}

func TestInitMetrics_PrepopulatesOutcomes(t *testing.T) {
	t.Parallel()

	InitMetrics("init-metrics-svc")

	m := getProxyMetrics()
	for _, outcome := range []string{
		outcomeSuccess, outcomeTimeout, outcomeUnreachable, outcomeStatus, outcomeCircuitOpen,
	} {
		assert.Equal(t, 0.0, testutil.ToFloat64(m.requestsTotal.WithLabelValues("init-metrics-svc", outcome)))
	}
}
