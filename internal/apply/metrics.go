package apply

import (
	"context"

	"go.opentelemetry.io/otel/metric"

	"github.com/ashita-ai/saisei/internal/telemetry"
)

var (
	applyMeter  = telemetry.Meter("saisei/apply")
	applyTracer = telemetry.Tracer("saisei/apply")

	transactionsApplied metric.Int64Counter
	keepalivesApplied   metric.Int64Counter
	statementsApplied   metric.Int64Counter
	filesReplayed       metric.Int64Counter
)

func init() {
	var err error
	transactionsApplied, err = applyMeter.Int64Counter("saisei.apply.transactions",
		metric.WithDescription("Source transactions replayed and committed on the target"))
	if err != nil {
		transactionsApplied, _ = applyMeter.Int64Counter("saisei.apply.transactions.fallback")
	}
	keepalivesApplied, err = applyMeter.Int64Counter("saisei.apply.keepalives",
		metric.WithDescription("Origin-only keepalive transactions applied"))
	if err != nil {
		keepalivesApplied, _ = applyMeter.Int64Counter("saisei.apply.keepalives.fallback")
	}
	statementsApplied, err = applyMeter.Int64Counter("saisei.apply.statements",
		metric.WithDescription("DML statements executed on the target"))
	if err != nil {
		statementsApplied, _ = applyMeter.Int64Counter("saisei.apply.statements.fallback")
	}
	filesReplayed, err = applyMeter.Int64Counter("saisei.apply.files",
		metric.WithDescription("Prepared SQL files replayed, tail re-reads included"))
	if err != nil {
		filesReplayed, _ = applyMeter.Int64Counter("saisei.apply.files.fallback")
	}
}

// registerMetrics registers the replay position gauge for this applier.
// Called from New after the global meter provider has been initialized.
func (a *Applier) registerMetrics() {
	_, _ = applyMeter.Int64ObservableGauge("saisei.apply.replay_lsn",
		metric.WithDescription("Replay position: LSN of the last applied commit, keepalive or WAL switch"),
		metric.WithInt64Callback(func(_ context.Context, o metric.Int64Observer) error {
			o.Observe(int64(a.ReplayLSN()))
			return nil
		}),
	)
}
