// Package registry is the source of truth for which destinations receive
// reminders for which location.
package registry

import (
	"context"
	"fmt"
	"strings"

	"azanbot/internal/config"
	"azanbot/internal/prayer"
	"azanbot/internal/storage"
	"azanbot/pkg/logx"
)

// DestinationMapping binds one location to one destination of a session.
type DestinationMapping = storage.Mapping

// Locator resolves location ids to display names.
type Locator interface {
	Lookup(id int) (prayer.Location, bool)
}

type Registry struct {
	store storage.MappingStore
	loc   Locator
	log   logx.Logger
}

// New builds a registry over store. loc may be nil.
func New(store storage.MappingStore, loc Locator, log logx.Logger) *Registry {
	return &Registry{store: store, loc: loc, log: log.With(logx.String("comp", "registry"))}
}

// FindEnabledMappings returns the session's enabled mappings ordered by
// location id.
func (r *Registry) FindEnabledMappings(ctx context.Context, sessionID string) ([]DestinationMapping, error) {
	ms, err := r.store.ListMappings(ctx, sessionID, true)
	if err != nil {
		return nil, fmt.Errorf("registry: list %s: %w", sessionID, err)
	}
	return ms, nil
}

func (r *Registry) Upsert(ctx context.Context, m DestinationMapping) error {
	m.SessionID = strings.TrimSpace(m.SessionID)
	m.DestinationID = strings.TrimSpace(m.DestinationID)
	if m.SessionID == "" || m.DestinationID == "" || m.LocationID <= 0 {
		return fmt.Errorf("registry: incomplete mapping %+v", m)
	}
	if err := r.store.UpsertMapping(ctx, m); err != nil {
		return fmt.Errorf("registry: upsert %s/%d: %w", m.SessionID, m.LocationID, err)
	}
	return nil
}

// SetEnabled soft-toggles a mapping. Mappings are never deleted.
func (r *Registry) SetEnabled(ctx context.Context, sessionID string, locationID int, enabled bool) error {
	if err := r.store.SetMappingEnabled(ctx, sessionID, locationID, enabled); err != nil {
		return fmt.Errorf("registry: set enabled %s/%d: %w", sessionID, locationID, err)
	}
	return nil
}

// Seed upserts the configured mappings. Mappings absent from seeds are left
// alone. It returns the number applied; a bad entry is logged and skipped.
func (r *Registry) Seed(ctx context.Context, seeds []config.DestinationSeed) int {
	n := 0
	for _, s := range seeds {
		m := DestinationMapping{
			SessionID:     s.Session,
			LocationID:    s.LocationID,
			DestinationID: s.DestinationID,
			Label:         strings.TrimSpace(s.Label),
			Enabled:       config.Enabled(s.Enabled),
		}
		if err := r.Upsert(ctx, m); err != nil {
			r.log.Warn("registry.seed_failed", logx.String("session", s.Session), logx.Int("location", s.LocationID), logx.Err(err))
			continue
		}
		n++
	}
	r.log.Info("registry.seeded", logx.Int("mappings", n))
	return n
}

// DisplayName is the label shown to subscribers for m: its Label, else the
// location name, else the location id.
func (r *Registry) DisplayName(m DestinationMapping) string {
	if m.Label != "" {
		return m.Label
	}
	if r.loc != nil {
		if l, ok := r.loc.Lookup(m.LocationID); ok {
			return l.Name
		}
	}
	return fmt.Sprintf("location %d", m.LocationID)
}
