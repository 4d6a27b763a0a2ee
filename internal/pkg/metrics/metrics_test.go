package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestCollector(t *testing.T) {
	c := NewCollector()
	registry := prometheus.NewPedanticRegistry()
	require.NoError(t, registry.Register(c))

	c.ObserveRepository(OutcomeCompleted, "none", time.Second)
	c.ObserveRepository(OutcomeCompleted, "size-threshold", 3*time.Second)
	c.ObserveRepository(OutcomeFailed, "", 0)
	c.QuotaPause()
	c.ObserveRun(nil)
	c.ObserveRun(errors.New("boom"))

	require.Equal(t, 2.0, testutil.ToFloat64(c.repositoriesTotal.WithLabelValues(OutcomeCompleted)))
	require.Equal(t, 1.0, testutil.ToFloat64(c.repositoriesTotal.WithLabelValues(OutcomeFailed)))
	require.Equal(t, 1.0, testutil.ToFloat64(c.quotaPausesTotal))
	require.Equal(t, 1.0, testutil.ToFloat64(c.runsTotal.WithLabelValues("error")))
	require.Equal(t, 2, testutil.CollectAndCount(c, "repo_migrator_repository_duration_seconds"))
}

func TestCollector_NilIsNoop(t *testing.T) {
	var c *Collector
	c.ObserveRepository(OutcomeCompleted, "none", time.Second)
	c.QuotaPause()
	c.ObserveRun(nil)
}
