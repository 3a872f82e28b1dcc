package telegram

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	tele "gopkg.in/telebot.v4"

	"azanbot/internal/dispatch"
)

func chatID(op, sessionID, destinationID string) (int64, error) {
	id, err := strconv.ParseInt(destinationID, 10, 64)
	if err != nil {
		return 0, dispatch.Fail(op, sessionID, destinationID, fmt.Errorf("bad chat id %q: %w", destinationID, err))
	}
	return id, nil
}

// failure wraps a Bot API error, keeping the flood-control hint.
func failure(op, sessionID, destinationID string, err error) error {
	if err == nil {
		return nil
	}
	f := &dispatch.Failure{Op: op, SessionID: sessionID, DestinationID: destinationID, Err: err}
	var flood tele.FloodError
	if errors.As(err, &flood) && flood.RetryAfter > 0 {
		f.RetryAfter = time.Duration(flood.RetryAfter) * time.Second
	}
	return f
}
