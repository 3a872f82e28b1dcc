package dispatch

import (
	"context"
	"strings"
	"time"

	"azanbot/internal/storage"
	"azanbot/pkg/logx"

	"github.com/google/uuid"
)

// Tracked records a message log row for every text and poll sent through
// next. Log failures are logged, never returned.
type Tracked struct {
	next  Gateway
	store storage.MessageLogStore
	log   logx.Logger
	now   func() time.Time
}

func NewTracked(next Gateway, store storage.MessageLogStore, log logx.Logger) *Tracked {
	return &Tracked{next: next, store: store, log: log, now: time.Now}
}

func (t *Tracked) SendText(ctx context.Context, sessionID, destinationID, text string) error {
	err := t.next.SendText(ctx, sessionID, destinationID, text)
	t.record(ctx, sessionID, destinationID, text, err)
	return err
}

func (t *Tracked) SendPoll(ctx context.Context, sessionID, destinationID, question string, options []string) error {
	err := t.next.SendPoll(ctx, sessionID, destinationID, question, options)
	t.record(ctx, sessionID, destinationID, question+"\n"+strings.Join(options, "\n"), err)
	return err
}

func (t *Tracked) ListMembers(ctx context.Context, sessionID, destinationID string) ([]string, error) {
	return t.next.ListMembers(ctx, sessionID, destinationID)
}

func (t *Tracked) RemoveMembers(ctx context.Context, sessionID, destinationID string, memberIDs []string) error {
	return t.next.RemoveMembers(ctx, sessionID, destinationID, memberIDs)
}

func (t *Tracked) record(ctx context.Context, sessionID, destinationID, text string, sendErr error) {
	if t.store == nil {
		return
	}
	meta, _ := MetaFrom(ctx)
	row := storage.MessageLog{
		ID:            uuid.NewString(),
		SessionID:     sessionID,
		DestinationID: destinationID,
		Kind:          meta.Kind,
		Location:      meta.Location,
		Prayer:        meta.Prayer,
		Text:          text,
		Status:        storage.MessageSent,
		CreatedAt:     t.now(),
	}
	if sendErr != nil {
		row.Status = storage.MessageFailed
		row.Error = sendErr.Error()
	}
	// the send already happened; a cancelled ctx must not lose the row
	if err := t.store.AppendMessage(context.WithoutCancel(ctx), row); err != nil {
		t.log.Warn("dispatch.track_failed", logx.String("session", sessionID), logx.String("kind", string(meta.Kind)), logx.Err(err))
	}
}
