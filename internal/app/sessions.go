package app

import (
	"context"

	"azanbot/internal/config"
	"azanbot/internal/transport/telegram"
	"azanbot/pkg/logx"
)

// addSession builds a session for sc and registers it with the gateway.
func (a *App) addSession(sc config.SessionConfig) error {
	tc, err := mapSessionConfig(sc)
	if err != nil {
		return err
	}
	s, err := telegram.NewSession(tc, a.store, a.bus, a.log.With(logx.String("comp", "telegram")))
	if err != nil {
		return err
	}
	s.OnText(func(ctx context.Context, sessionID, chatID, text string) {
		if err := a.commands.Handle(ctx, sessionID, chatID, text); err != nil {
			a.log.Warn("app.reply_failed", logx.String("session", sessionID), logx.Err(err))
		}
	})
	a.limited.Configure(sc.ID, sc.RatePerSec, sc.Burst)
	a.transport.Add(s)
	return nil
}

// syncSessions restarts the sessions whose config changed.
func (a *App) syncSessions(ctx context.Context, cfg *config.Config, changed []string) {
	want := map[string]config.SessionConfig{}
	for _, s := range cfg.ActiveSessions() {
		want[s.ID] = s
	}
	for _, id := range changed {
		if old, ok := a.transport.Remove(id); ok {
			if err := old.Stop(ctx); err != nil {
				a.log.Warn("app.session_stop_failed", logx.String("session", id), logx.Err(err))
			}
			a.reminders.CancelSession(id)
		}
		sc, ok := want[id]
		if !ok {
			a.log.Info("app.session_removed", logx.String("session", id))
			continue
		}
		if err := a.addSession(sc); err != nil {
			a.log.Error("app.session_failed", logx.String("session", id), logx.Err(err))
			continue
		}
		if s, ok := a.transport.Session(id); ok {
			if err := s.Start(ctx); err != nil {
				a.log.Error("app.session_start_failed", logx.String("session", id), logx.Err(err))
				continue
			}
		}
		a.log.Info("app.session_restarted", logx.String("session", id))
	}
}
