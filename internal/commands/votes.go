package commands

import (
	"context"
	"fmt"

	"azanbot/internal/clock"
	"azanbot/internal/eventbus"
	"azanbot/internal/prayer"
	"azanbot/internal/storage"
	"azanbot/pkg/logx"
)

// VoteRecorder stores answers to the daily summary poll. Option i of the
// poll is prayer.All[i].
type VoteRecorder struct {
	store storage.VoteStore
	clk   *clock.Service
	log   logx.Logger
}

func NewVoteRecorder(store storage.VoteStore, clk *clock.Service, log logx.Logger) *VoteRecorder {
	return &VoteRecorder{store: store, clk: clk, log: log.With(logx.String("comp", "votes"))}
}

func (v *VoteRecorder) Record(ctx context.Context, a eventbus.PollAnswer) error {
	prayers := make([]string, 0, len(a.Options))
	for _, i := range a.Options {
		if i < 0 || i >= len(prayer.All) {
			continue
		}
		prayers = append(prayers, string(prayer.All[i]))
	}
	now := v.clk.Now()
	err := v.store.PutVote(ctx, storage.PrayerVote{
		SubscriberID: a.SubscriberID,
		SessionID:    a.SessionID,
		Date:         now.Format("2006-01-02"),
		Prayers:      prayers,
		UpdatedAt:    now,
	})
	if err != nil {
		return fmt.Errorf("put vote: %w", err)
	}
	v.log.Debug("votes.recorded", logx.String("session", a.SessionID), logx.String("subscriber", a.SubscriberID), logx.Strings("prayers", prayers))
	return nil
}

// Watch records poll answers until ctx ends.
func (v *VoteRecorder) Watch(ctx context.Context, bus eventbus.Bus) error {
	ch, unsub := bus.Subscribe(64, eventbus.TypePollAnswered)
	defer unsub()
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-ch:
			if !ok {
				return fmt.Errorf("votes: bus closed")
			}
			a, ok := ev.Data.(eventbus.PollAnswer)
			if !ok {
				continue
			}
			if err := v.Record(ctx, a); err != nil {
				v.log.Warn("votes.record_failed", logx.String("subscriber", a.SubscriberID), logx.Err(err))
			}
		}
	}
}
