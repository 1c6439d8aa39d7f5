// Package frontdesk holds the console's application state: the snapshot the
// grid renders, the visible week and the refresh bookkeeping. Every
// component reads state through a Console; nothing is kept in globals.
package frontdesk

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/wolfman30/frontdesk-calendar/internal/calendar"
	"github.com/wolfman30/frontdesk-calendar/internal/clinictime"
	"github.com/wolfman30/frontdesk-calendar/internal/conflict"
	"github.com/wolfman30/frontdesk-calendar/internal/drag"
	"github.com/wolfman30/frontdesk-calendar/internal/observability/metrics"
	"github.com/wolfman30/frontdesk-calendar/internal/occupancy"
	"github.com/wolfman30/frontdesk-calendar/internal/scheduleapi"
	"github.com/wolfman30/frontdesk-calendar/internal/timegrid"
	"github.com/wolfman30/frontdesk-calendar/pkg/logging"
)

// Refresh reasons, used for logs and metrics.
const (
	ReasonPoll     = "poll"
	ReasonManual   = "manual"
	ReasonMutation = "mutation"
	ReasonWeek     = "week_change"
	ReasonStartup  = "startup"
)

// Backend is the schedule system of record. *scheduleapi.Client satisfies it.
type Backend interface {
	FetchWeek(ctx context.Context, providers []string, start, end clinictime.Date) (calendar.Snapshot, error)
	CreateAppointment(ctx context.Context, in scheduleapi.NewAppointment) (calendar.Appointment, error)
	Reschedule(ctx context.Context, appointmentID string, newStart time.Time, newProviderID string) error
	DeleteAppointment(ctx context.Context, appointmentID string) error
	CreateTimeBlock(ctx context.Context, in scheduleapi.NewTimeBlock) (calendar.TimeBlock, error)
	DeleteTimeBlock(ctx context.Context, blockID string) error
	SearchPatients(ctx context.Context, query string) ([]scheduleapi.Patient, error)
	AddPatient(ctx context.Context, in scheduleapi.NewPatient) (scheduleapi.Patient, error)
}

// SnapshotCache stores the last good snapshot per week.
// *snapshotcache.Store satisfies it.
type SnapshotCache interface {
	Save(ctx context.Context, weekStart clinictime.Date, snap calendar.Snapshot) error
	Load(ctx context.Context, weekStart clinictime.Date) (calendar.Snapshot, bool, error)
}

// Config wires a Console.
type Config struct {
	Grid         *timegrid.Grid
	Zone         *clinictime.Zone
	Providers    []calendar.Provider
	Backend      Backend
	Cache        SnapshotCache
	Metrics      *metrics.ConsoleMetrics
	Logger       *logging.Logger
	Drag         drag.Config
	SlotHeightPx int
	Now          func() time.Time
}

// Console is the single owner of the grid's state. The snapshot is replaced
// wholesale on every applied refresh and never mutated in place. Weeks other
// callers browse to are kept beside it and never replace it.
type Console struct {
	grid      *timegrid.Grid
	zone      *clinictime.Zone
	providers *calendar.ProviderSet
	backend   Backend
	cache     SnapshotCache
	metrics   *metrics.ConsoleMetrics
	logger    *logging.Logger
	now       func() time.Time

	detector conflict.Detector
	resolver occupancy.Resolver
	drag     *drag.Coordinator
	events   *broker

	mu          sync.RWMutex
	weekStart   clinictime.Date
	snapshot    *calendar.Snapshot
	stale       bool
	lastErr     error
	issued      uint64
	applied     uint64
	refreshedAt time.Time

	browsed      map[clinictime.Date]*calendar.Snapshot
	browsedOrder []clinictime.Date
}

// New builds a Console showing the week that contains today.
func New(cfg Config) (*Console, error) {
	if cfg.Grid == nil {
		return nil, errors.New("frontdesk: grid is required")
	}
	if cfg.Zone == nil {
		return nil, errors.New("frontdesk: clinic zone is required")
	}
	if cfg.Backend == nil {
		return nil, errors.New("frontdesk: schedule backend is required")
	}
	providers := cfg.Providers
	if len(providers) == 0 {
		providers = calendar.DefaultProviders
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Default()
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	slotHeight := cfg.SlotHeightPx
	if slotHeight <= 0 {
		slotHeight = drag.DefaultConfig().SlotHeightPx
	}
	dragCfg := cfg.Drag
	if dragCfg == (drag.Config{}) {
		dragCfg = drag.DefaultConfig()
	}
	dragCfg.SlotHeightPx = slotHeight

	c := &Console{
		grid:      cfg.Grid,
		zone:      cfg.Zone,
		providers: calendar.NewProviderSet(providers),
		backend:   cfg.Backend,
		cache:     cfg.Cache,
		metrics:   cfg.Metrics,
		logger:    logger.Component("frontdesk"),
		now:       now,
		detector:  conflict.Detector{Grid: cfg.Grid, Zone: cfg.Zone},
		resolver:  occupancy.Resolver{Grid: cfg.Grid, Zone: cfg.Zone, SlotHeightPx: slotHeight},
		events:    newBroker(),
		browsed:   make(map[clinictime.Date]*calendar.Snapshot),
	}
	c.weekStart = cfg.Zone.Today(now()).WeekStart()
	c.drag = drag.NewCoordinator(dragCfg, c.detector, c.Snapshot, cfg.Backend, logger)
	c.drag.OnCommitted = func(ctx context.Context, appointmentID string) {
		c.afterMutation(ctx, "reschedule", appointmentID)
	}
	return c, nil
}

// Snapshot returns the snapshot currently on screen. Callers must treat it
// as read-only; it may be nil before the first fetch.
func (c *Console) Snapshot() *calendar.Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.snapshot
}

// Providers lists the grid's provider columns in display order.
func (c *Console) Providers() []calendar.Provider { return c.providers.List() }

// Grid returns the slot lattice.
func (c *Console) Grid() *timegrid.Grid { return c.grid }

// Zone returns the clinic zone.
func (c *Console) Zone() *clinictime.Zone { return c.zone }

// Drag exposes the gesture coordinator for clients that stream pointer events.
func (c *Console) Drag() *drag.Coordinator { return c.drag }

// Status is the console's refresh state.
type Status struct {
	WeekStart   clinictime.Date `json:"week_start"`
	WeekEnd     clinictime.Date `json:"week_end"`
	Stale       bool            `json:"stale"`
	LastError   string          `json:"last_error,omitempty"`
	Generation  uint64          `json:"generation"`
	FetchedAt   time.Time       `json:"fetched_at,omitempty"`
	RefreshedAt time.Time       `json:"refreshed_at,omitempty"`
}

func (c *Console) Status() Status {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.statusLocked()
}

func (c *Console) statusLocked() Status {
	st := Status{
		WeekStart:   c.weekStart,
		WeekEnd:     c.weekStart.AddDays(6),
		Stale:       c.stale,
		Generation:  c.applied,
		RefreshedAt: c.refreshedAt,
	}
	if c.lastErr != nil {
		st.LastError = c.lastErr.Error()
	}
	if c.snapshot != nil {
		st.FetchedAt = c.snapshot.FetchedAt
	}
	return st
}

// WeekStart is the Monday of the visible week.
func (c *Console) WeekStart() clinictime.Date {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.weekStart
}

// Refresh fetches the visible week and replaces the snapshot. Each call takes
// a new generation; a response is applied only if no newer one has been
// applied and the visible week has not moved since it was issued. A failed
// fetch keeps the current snapshot, marks it stale and returns a
// *calendar.FetchFailure.
func (c *Console) Refresh(ctx context.Context, reason string) error {
	c.mu.Lock()
	c.issued++
	gen := c.issued
	week := c.weekStart
	c.mu.Unlock()

	logger := c.logger.With("generation", gen, "reason", reason, "week_start", week.String())
	snap, err := c.backend.FetchWeek(ctx, c.providers.IDs(), week, week.AddDays(6))

	c.mu.Lock()
	if gen <= c.applied || week != c.weekStart {
		c.mu.Unlock()
		c.metrics.ObserveRefresh(reason, "discarded")
		logger.Debug("discarding out-of-date fetch", "error", err)
		return nil
	}
	if err != nil {
		failure := &calendar.FetchFailure{At: c.now(), Err: err}
		c.stale = true
		c.lastErr = failure
		c.mu.Unlock()

		c.metrics.ObserveRefresh(reason, "failed")
		c.metrics.SetStale(true)
		logger.Warn("refresh failed; keeping last snapshot", "error", err)
		c.events.publish(Event{Type: EventStale, Generation: gen, Stale: true, Message: failure.Error(), At: failure.At})
		return failure
	}

	c.applied = gen
	c.snapshot = &snap
	c.stale = false
	c.lastErr = nil
	c.refreshedAt = c.now()
	c.mu.Unlock()

	c.metrics.ObserveRefresh(reason, "applied")
	c.metrics.SetStale(false)
	c.metrics.SetSnapshot(len(snap.Appointments), len(snap.TimeBlocks), len(snap.BookingLocks), len(snap.Holidays))
	logger.Debug("snapshot applied",
		"appointments", len(snap.Appointments),
		"time_blocks", len(snap.TimeBlocks),
		"booking_locks", len(snap.BookingLocks))
	c.events.publish(Event{Type: EventSnapshot, Generation: gen, At: c.now()})

	if c.cache != nil {
		if err := c.cache.Save(ctx, week, snap); err != nil {
			logger.Warn("snapshot cache save failed", "error", err)
		}
	}
	return nil
}

// Prime installs a cached snapshot for the visible week before the first
// fetch lands. The primed grid is marked stale. It is ignored once a fetch
// has been applied for the week.
func (c *Console) Prime(snap calendar.Snapshot) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if snap.WeekStart != c.weekStart {
		return false
	}
	if c.snapshot != nil && c.snapshot.WeekStart == c.weekStart {
		return false
	}
	c.snapshot = &snap
	c.stale = true
	c.metrics.SetStale(true)
	c.logger.Info("primed grid from cached snapshot", "week_start", snap.WeekStart.String(), "fetched_at", snap.FetchedAt)
	return true
}

// Warm loads the visible week from the cache, if one is configured.
func (c *Console) Warm(ctx context.Context) bool {
	if c.cache == nil {
		return false
	}
	week := c.WeekStart()
	snap, ok, err := c.cache.Load(ctx, week)
	if err != nil {
		c.logger.Warn("snapshot cache load failed", "week_start", week.String(), "error", err)
		return false
	}
	return ok && c.Prime(snap)
}

// SetWeek moves the shared visible week to the week containing date and
// refreshes it. The previous week's snapshot is dropped; a cached copy of the
// new week is shown, stale, until the fetch completes. Callers that only want
// to look at another week use WeekView.
func (c *Console) SetWeek(ctx context.Context, date clinictime.Date) error {
	week := date.WeekStart()
	c.mu.Lock()
	if week == c.weekStart && c.snapshot != nil {
		c.mu.Unlock()
		return nil
	}
	c.weekStart = week
	if c.snapshot != nil && c.snapshot.WeekStart != week {
		c.snapshot = nil
	}
	c.mu.Unlock()

	c.Warm(ctx)
	return c.Refresh(ctx, ReasonWeek)
}

// View is the resolved grid for the visible week.
type View struct {
	Status    Status              `json:"status"`
	Providers []calendar.Provider `json:"providers"`
	Slots     []timegrid.TimeSlot `json:"slots"`
	Week      occupancy.Week      `json:"week"`
}

// View resolves the current snapshot into placements and slot states.
func (c *Console) View() View {
	c.mu.RLock()
	snap := c.snapshot
	st := c.statusLocked()
	c.mu.RUnlock()
	return c.viewOf(st, snap)
}

func (c *Console) viewOf(st Status, snap *calendar.Snapshot) View {
	providers := c.providers.List()
	return View{
		Status:    st,
		Providers: providers,
		Slots:     c.grid.Slots(),
		Week:      c.resolver.ResolveWeek(st.WeekStart, providers, snap),
	}
}

func (c *Console) afterMutation(ctx context.Context, op, entityID string) {
	c.events.publish(Event{Type: EventMutation, Message: op + " " + entityID, At: c.now()})
	c.forgetBrowsed()
	if err := c.Refresh(ctx, ReasonMutation); err != nil {
		c.logger.Warn("refresh after mutation failed", "op", op, "entity_id", entityID, "error", err)
	}
}

// Subscribe registers for console events. The returned function
// unsubscribes and closes the channel.
func (c *Console) Subscribe() (<-chan Event, func()) {
	return c.events.subscribe()
}

// Close ends all event subscriptions. Stream clients are told the server is
// going away.
func (c *Console) Close() {
	c.events.close()
}
