package metrics

import (
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

type fakeTokenSource struct{ count int }

func (f fakeTokenSource) ActiveCount() int { return f.count }

type fakeHealthChecker struct{ err error }

func (f fakeHealthChecker) HealthCheck(context.Context) error { return f.err }

// New registers against the default Prometheus registry, which panics on a
// second registration of the same names, so the tests share one set.
var testMetrics = New()

func TestMetrics_RefreshTokens(t *testing.T) {
	m := testMetrics
	m.RefreshTokens(fakeTokenSource{count: 3})
	require.InDelta(t, 3, testutil.ToFloat64(m.ActiveTokens), 0.001)
}

func TestMetrics_RefreshChannelHealth(t *testing.T) {
	m := testMetrics
	m.RefreshChannelHealth(context.Background(), "bench", fakeHealthChecker{})
	require.InDelta(t, 1, testutil.ToFloat64(m.ChannelHealth.WithLabelValues("bench")), 0.001)

	m.RefreshChannelHealth(context.Background(), "bench", fakeHealthChecker{err: errors.New("down")})
	require.InDelta(t, 0, testutil.ToFloat64(m.ChannelHealth.WithLabelValues("bench")), 0.001)
}

func TestMetrics_RecordToolFailure(t *testing.T) {
	m := testMetrics
	m.RecordToolFailure("shell_in_sandbox")
	m.RecordToolFailure("shell_in_sandbox")
	require.InDelta(t, 2, testutil.ToFloat64(m.ToolFailures.WithLabelValues("shell_in_sandbox")), 0.001)
}
