package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"repo-migrator/internal/core/migration"
	pkgErrors "repo-migrator/pkg/errors"
)

type countingTrigger struct {
	calls atomic.Int32
	err   error
}

func (c *countingTrigger) Run(context.Context) (*migration.RunReport, error) {
	c.calls.Add(1)
	if c.err != nil {
		return nil, c.err
	}
	return &migration.RunReport{RunID: "scheduled"}, nil
}

func TestScheduler_runsOnSchedule(t *testing.T) {
	trigger := &countingTrigger{}
	s := NewScheduler(trigger, zaptest.NewLogger(t))

	require.NoError(t, s.Start(context.Background(), "@every 1s"))
	defer s.Stop()

	assert.Eventually(t, func() bool { return trigger.calls.Load() >= 1 }, 3*time.Second, 50*time.Millisecond)
	assert.Contains(t, s.Entries(), jobMigrationRun)
}

func TestScheduler_acceptsSecondsField(t *testing.T) {
	s := NewScheduler(&countingTrigger{}, zaptest.NewLogger(t))
	require.NoError(t, s.Start(context.Background(), "0 0 2 * * *"))
	s.Stop()

	s = NewScheduler(&countingTrigger{}, zaptest.NewLogger(t))
	require.NoError(t, s.Start(context.Background(), "0 */6 * * *"))
	s.Stop()
}

func TestScheduler_invalidExpression(t *testing.T) {
	s := NewScheduler(&countingTrigger{}, zaptest.NewLogger(t))
	assert.Error(t, s.Start(context.Background(), "every tuesday"))
	assert.Error(t, s.Start(context.Background(), ""))
}

func TestScheduler_runOnce(t *testing.T) {
	trigger := &countingTrigger{err: pkgErrors.ErrRunInProgress}
	s := NewScheduler(trigger, zaptest.NewLogger(t))
	s.runOnce(context.Background())
	assert.Equal(t, int32(1), trigger.calls.Load())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	s.runOnce(ctx)
	assert.Equal(t, int32(1), trigger.calls.Load())
}
