package commands

import (
	"context"
	"errors"
	"fmt"

	"azanbot/internal/clock"
	"azanbot/internal/dispatch"
	"azanbot/internal/prayer"
	"azanbot/internal/storage"
	"azanbot/pkg/logx"
)

// Times is the part of the prayer engine the replies need.
type Times interface {
	FindLocationByName(query string) (prayer.Location, error)
	ResolveToday(ctx context.Context, locationID int) (prayer.DailyPrayerTimes, error)
	NextPrayer(ctx context.Context, locationID int, now string) (prayer.Next, error)
	Locations() []prayer.Location
}

type Handler struct {
	times Times
	clk   *clock.Service
	gw    dispatch.Gateway
	log   logx.Logger
}

func NewHandler(times Times, clk *clock.Service, gw dispatch.Gateway, log logx.Logger) *Handler {
	return &Handler{times: times, clk: clk, gw: gw, log: log.With(logx.String("comp", "commands"))}
}

// Reply builds the answer to text. ok is false when text is not a command.
func (h *Handler) Reply(ctx context.Context, text string) (reply string, ok bool) {
	cmd := Parse(text)
	if cmd.Kind == None {
		return "", false
	}
	out, err := h.reply(ctx, cmd)
	if err != nil {
		h.log.Error("commands.failed", logx.String("command", cmd.Kind.String()), logx.Err(err))
		return ErrorReply, true
	}
	return out, true
}

func (h *Handler) reply(ctx context.Context, cmd Command) (string, error) {
	switch cmd.Kind {
	case Help:
		return fmt.Sprintf(helpReply, len(h.times.Locations())), nil
	case Locations:
		return locationsReply(h.times.Locations()), nil
	}

	if cmd.Location == "" {
		return missingLocationReply(cmd.Kind), nil
	}
	loc, err := h.times.FindLocationByName(cmd.Location)
	if errors.Is(err, prayer.ErrNotFound) {
		return unknownLocationReply(cmd.Location), nil
	}
	if err != nil {
		return "", err
	}

	if cmd.Kind == Next {
		now := h.clk.HHMM()
		n, err := h.times.NextPrayer(ctx, loc.ID, now)
		if errors.Is(err, prayer.ErrNotFound) {
			return unavailableReply(loc), nil
		}
		if err != nil {
			return "", err
		}
		return nextReply(loc, now, n), nil
	}

	t, err := h.times.ResolveToday(ctx, loc.ID)
	if errors.Is(err, prayer.ErrNotFound) {
		return unavailableReply(loc), nil
	}
	if err != nil {
		return "", err
	}
	return todayReply(loc, h.clk.Now(), t), nil
}

// Handle answers a private message through the gateway.
func (h *Handler) Handle(ctx context.Context, sessionID, chatID, text string) error {
	reply, ok := h.Reply(ctx, text)
	if !ok {
		return nil
	}
	ctx = dispatch.WithMeta(ctx, dispatch.Meta{Kind: storage.KindReply})
	if err := h.gw.SendText(ctx, sessionID, chatID, reply); err != nil {
		return err
	}
	h.log.Debug("commands.replied", logx.String("session", sessionID), logx.String("chat", chatID))
	return nil
}
