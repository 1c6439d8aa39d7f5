// Package snapshotcache keeps the last good week snapshot in Redis so a
// restarted console can paint a stale grid before its first fetch lands.
package snapshotcache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/wolfman30/frontdesk-calendar/internal/calendar"
	"github.com/wolfman30/frontdesk-calendar/internal/clinictime"
)

const defaultTTL = 24 * time.Hour

// Store persists snapshots keyed by week start. A nil *Store, or one built
// without a client, is a no-op cache.
type Store struct {
	redis  *redis.Client
	ttl    time.Duration
	tracer trace.Tracer
}

func New(client *redis.Client, ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &Store{
		redis:  client,
		ttl:    ttl,
		tracer: otel.Tracer("frontdesk.internal.snapshotcache"),
	}
}

func (s *Store) enabled() bool { return s != nil && s.redis != nil }

func snapshotKey(weekStart clinictime.Date) string {
	return fmt.Sprintf("frontdesk:snapshot:%s", weekStart)
}

// Save writes snap under weekStart, replacing any earlier copy.
func (s *Store) Save(ctx context.Context, weekStart clinictime.Date, snap calendar.Snapshot) error {
	if !s.enabled() {
		return nil
	}
	ctx, span := s.tracer.Start(ctx, "snapshotcache.save")
	defer span.End()
	span.SetAttributes(attribute.String("frontdesk.week_start", weekStart.String()))

	data, err := json.Marshal(snap)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("snapshotcache: marshal snapshot: %w", err)
	}
	if err := s.redis.Set(ctx, snapshotKey(weekStart), data, s.ttl).Err(); err != nil {
		span.RecordError(err)
		return fmt.Errorf("snapshotcache: save snapshot: %w", err)
	}
	return nil
}

// Load returns the cached snapshot for weekStart. ok is false on a miss.
func (s *Store) Load(ctx context.Context, weekStart clinictime.Date) (calendar.Snapshot, bool, error) {
	if !s.enabled() {
		return calendar.Snapshot{}, false, nil
	}
	ctx, span := s.tracer.Start(ctx, "snapshotcache.load")
	defer span.End()
	span.SetAttributes(attribute.String("frontdesk.week_start", weekStart.String()))

	data, err := s.redis.Get(ctx, snapshotKey(weekStart)).Bytes()
	if errors.Is(err, redis.Nil) {
		return calendar.Snapshot{}, false, nil
	}
	if err != nil {
		span.RecordError(err)
		return calendar.Snapshot{}, false, fmt.Errorf("snapshotcache: load snapshot: %w", err)
	}
	var snap calendar.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		span.RecordError(err)
		return calendar.Snapshot{}, false, fmt.Errorf("snapshotcache: decode snapshot: %w", err)
	}
	return snap, true, nil
}
