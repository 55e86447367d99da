package reconciliation_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kislikjeka/moneyguard/internal/reconciliation"
	"github.com/kislikjeka/moneyguard/testutil/harness"
)

func TestRunner_RunsImmediatelyAndStops(t *testing.T) {
	app := harness.New(t)
	seed(t, app)

	runner := reconciliation.NewRunner(app.Reconciliation,
		reconciliation.RunnerConfig{Enabled: true, Interval: time.Hour}, app.Logger)

	go runner.Run(context.Background())

	require.Eventually(t, func() bool {
		_, err := app.Reconciliation.Latest(context.Background())
		return err == nil
	}, 2*time.Second, 10*time.Millisecond)

	runner.Stop()

	report, err := app.Reconciliation.Latest(context.Background())
	require.NoError(t, err)
	assert.Equal(t, reconciliation.TriggerScheduled, report.Trigger)
}

func TestRunner_Disabled(t *testing.T) {
	app := harness.New(t)
	runner := reconciliation.NewRunner(app.Reconciliation, reconciliation.RunnerConfig{}, app.Logger)

	runner.Run(context.Background())
	runner.Stop()

	_, err := app.Reconciliation.Latest(context.Background())
	assert.ErrorIs(t, err, reconciliation.ErrNoReport)
}
