package observability

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestStatusClass(t *testing.T) {
	require.Equal(t, "2xx", StatusClass(200))
	require.Equal(t, "4xx", StatusClass(429))
	require.Equal(t, "5xx", StatusClass(502))
}

func TestCountersAreRegistered(t *testing.T) {
	before := testutil.ToFloat64(FallbacksTotal.WithLabelValues("3"))
	FallbacksTotal.WithLabelValues("3").Inc()
	require.Equal(t, before+1, testutil.ToFloat64(FallbacksTotal.WithLabelValues("3")))

	require.Equal(t, 1, testutil.CollectAndCount(UpstreamLatency))
}
