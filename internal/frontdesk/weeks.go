package frontdesk

import (
	"context"

	"github.com/wolfman30/frontdesk-calendar/internal/calendar"
	"github.com/wolfman30/frontdesk-calendar/internal/clinictime"
)

// maxBrowsedWeeks bounds the weeks other than the visible one that are kept
// for follow-up clicks and drops.
const maxBrowsedWeeks = 8

// WeekView resolves the week containing date for one caller. The visible
// week is served from the console's snapshot. Any other week is fetched for
// this request and remembered, without moving the week other callers see.
// A failed fetch falls back to the last copy of that week, flagged stale,
// and the *calendar.FetchFailure is returned alongside the view.
func (c *Console) WeekView(ctx context.Context, date clinictime.Date) (View, error) {
	week := date.WeekStart()
	if week == c.WeekStart() {
		return c.View(), nil
	}

	st := Status{WeekStart: week, WeekEnd: week.AddDays(6)}
	snap, err := c.fetchWeek(ctx, week)
	if err != nil {
		failure := &calendar.FetchFailure{At: c.now(), Err: err}
		st.Stale = true
		st.LastError = failure.Error()
		if snap = c.lastKnownWeek(ctx, week); snap != nil {
			st.FetchedAt = snap.FetchedAt
		}
		c.logger.Warn("week view fetch failed", "week_start", week.String(), "error", err)
		return c.viewOf(st, snap), failure
	}
	st.FetchedAt = snap.FetchedAt
	st.RefreshedAt = c.now()
	return c.viewOf(st, snap), nil
}

// fetchWeek loads a week that is not the visible one, remembers it and
// writes it to the cache.
func (c *Console) fetchWeek(ctx context.Context, week clinictime.Date) (*calendar.Snapshot, error) {
	snap, err := c.backend.FetchWeek(ctx, c.providers.IDs(), week, week.AddDays(6))
	if err != nil {
		return nil, err
	}
	snap.WeekStart, snap.WeekEnd = week, week.AddDays(6)
	c.rememberWeek(week, &snap)
	if c.cache != nil {
		if err := c.cache.Save(ctx, week, snap); err != nil {
			c.logger.Warn("snapshot cache save failed", "week_start", week.String(), "error", err)
		}
	}
	return &snap, nil
}

func (c *Console) rememberWeek(week clinictime.Date, snap *calendar.Snapshot) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if week == c.weekStart {
		return
	}
	if _, ok := c.browsed[week]; !ok {
		c.browsedOrder = append(c.browsedOrder, week)
		if len(c.browsedOrder) > maxBrowsedWeeks {
			delete(c.browsed, c.browsedOrder[0])
			c.browsedOrder = c.browsedOrder[1:]
		}
	}
	c.browsed[week] = snap
}

func (c *Console) forgetBrowsed() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.browsed = make(map[clinictime.Date]*calendar.Snapshot)
	c.browsedOrder = nil
}

// knownSnapshot returns the snapshot already held for date's week: the
// visible one or a remembered one. It never fetches.
func (c *Console) knownSnapshot(date clinictime.Date) (*calendar.Snapshot, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if date.Between(c.weekStart, c.weekStart.AddDays(6)) {
		return c.snapshot, c.snapshot != nil
	}
	snap, ok := c.browsed[date.WeekStart()]
	return snap, ok
}

func (c *Console) lastKnownWeek(ctx context.Context, week clinictime.Date) *calendar.Snapshot {
	if snap, ok := c.knownSnapshot(week); ok {
		return snap
	}
	if c.cache == nil {
		return nil
	}
	snap, ok, err := c.cache.Load(ctx, week)
	if err != nil {
		c.logger.Warn("snapshot cache load failed", "week_start", week.String(), "error", err)
		return nil
	}
	if !ok {
		return nil
	}
	return &snap
}

// findEntity looks an entity up in the visible week, then in remembered
// weeks.
func (c *Console) findEntity(entityID string) (calendar.Entity, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if e, ok := c.snapshot.Find(entityID); ok {
		return e, true
	}
	for _, week := range c.browsedOrder {
		if e, ok := c.browsed[week].Find(entityID); ok {
			return e, true
		}
	}
	return nil, false
}

// FollowToday keeps the shared visible week on the week containing today and
// refreshes it. Once the clinic calendar rolls into a new week the grid moves
// with it.
func (c *Console) FollowToday(ctx context.Context, reason string) error {
	today := c.zone.Today(c.now())
	if today.WeekStart() != c.WeekStart() {
		c.logger.Info("following today into a new week", "week_start", today.WeekStart().String())
		return c.SetWeek(ctx, today)
	}
	return c.Refresh(ctx, reason)
}
