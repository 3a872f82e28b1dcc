package reminder

import (
	"context"
	"time"

	"azanbot/internal/clock"
	"azanbot/internal/storage"
	"azanbot/pkg/logx"
)

// StatsReporter logs the delivery summary of the current IST day.
type StatsReporter struct {
	store storage.MessageLogStore
	clk   *clock.Service
	log   logx.Logger
}

func NewStatsReporter(store storage.MessageLogStore, clk *clock.Service, log logx.Logger) *StatsReporter {
	return &StatsReporter{store: store, clk: clk, log: log.With(logx.String("comp", "stats"))}
}

// Since returns the IST midnight that starts the day of now.
func Since(now time.Time) time.Time {
	n := now.In(clock.IST)
	return time.Date(n.Year(), n.Month(), n.Day(), 0, 0, 0, 0, clock.IST)
}

// Report reads and logs the day's stats.
func (r *StatsReporter) Report(ctx context.Context) (storage.MessageStats, error) {
	since := Since(r.clk.Now())
	st, err := r.store.MessageStats(ctx, since)
	if err != nil {
		r.log.Warn("stats.read_failed", logx.Err(err))
		return storage.MessageStats{}, err
	}
	r.log.Info("stats.daily",
		logx.String("date", since.Format("2006-01-02")),
		logx.Int64("total", st.Total),
		logx.Int64("sent", st.Sent),
		logx.Int64("failed", st.Failed),
		logx.Float64("delivery_rate", st.DeliveryRate),
	)
	return st, nil
}

// Run adapts Report to a scheduler job.
func (r *StatsReporter) Run(ctx context.Context) error {
	_, err := r.Report(ctx)
	return err
}
