package frontdesk

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/frontdesk-calendar/internal/calendar"
	"github.com/wolfman30/frontdesk-calendar/internal/clinictime"
	"github.com/wolfman30/frontdesk-calendar/internal/scheduleapi"
	"github.com/wolfman30/frontdesk-calendar/internal/timegrid"
	"github.com/wolfman30/frontdesk-calendar/pkg/logging"
)

var (
	monday  = clinictime.NewDate(2025, time.January, 6)
	tuesday = monday.AddDays(1)
	// 08:00 Monday in Honolulu.
	fixedNow = time.Date(2025, time.January, 6, 18, 0, 0, 0, time.UTC)
)

type rescheduleCall struct {
	id       string
	start    time.Time
	provider string
}

type fakeBackend struct {
	mu sync.Mutex

	snap     calendar.Snapshot
	fetchErr error
	fetches  int
	fetched  []clinictime.Date
	hook     func(n int, start clinictime.Date) (calendar.Snapshot, error)

	rescheduled   []rescheduleCall
	rescheduleErr error
	holdID        string
	release       chan struct{}
	entered       chan struct{}
	created       []scheduleapi.NewAppointment
	createErr     error
	blocks        []scheduleapi.NewTimeBlock
	deleted       []string
	deleteErr     error
	patients      []scheduleapi.NewPatient
	addPatientErr error
}

func (f *fakeBackend) FetchWeek(ctx context.Context, providers []string, start, end clinictime.Date) (calendar.Snapshot, error) {
	f.mu.Lock()
	f.fetches++
	n := f.fetches
	f.fetched = append(f.fetched, start)
	hook := f.hook
	snap := f.snap.Clone()
	err := f.fetchErr
	f.mu.Unlock()

	if hook != nil {
		return hook(n, start)
	}
	if err != nil {
		return calendar.Snapshot{}, err
	}
	snap.WeekStart = start
	snap.WeekEnd = end
	snap.FetchedAt = fixedNow
	return snap, nil
}

func (f *fakeBackend) CreateAppointment(ctx context.Context, in scheduleapi.NewAppointment) (calendar.Appointment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return calendar.Appointment{}, f.createErr
	}
	f.created = append(f.created, in)
	return calendar.Appointment{ID: "new-1", ProviderID: in.ProviderID, StartTime: in.Start, DurationMinutes: in.DurationMinutes}, nil
}

func (f *fakeBackend) Reschedule(ctx context.Context, id string, start time.Time, provider string) error {
	f.mu.Lock()
	hold, entered, release := f.holdID, f.entered, f.release
	f.mu.Unlock()
	if hold != "" && id == hold {
		close(entered)
		<-release
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.rescheduleErr != nil {
		return f.rescheduleErr
	}
	f.rescheduled = append(f.rescheduled, rescheduleCall{id: id, start: start, provider: provider})
	return nil
}

func (f *fakeBackend) DeleteAppointment(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.deleteErr != nil {
		return f.deleteErr
	}
	f.deleted = append(f.deleted, id)
	return nil
}

func (f *fakeBackend) CreateTimeBlock(ctx context.Context, in scheduleapi.NewTimeBlock) (calendar.TimeBlock, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.blocks = append(f.blocks, in)
	return calendar.TimeBlock{ID: "tb-new", ProviderID: in.ProviderID, Label: in.Label, StartTime: in.Start, EndTime: in.End}, nil
}

func (f *fakeBackend) DeleteTimeBlock(ctx context.Context, id string) error {
	return f.DeleteAppointment(ctx, id)
}

func (f *fakeBackend) SearchPatients(ctx context.Context, query string) ([]scheduleapi.Patient, error) {
	return []scheduleapi.Patient{{ID: "9", FirstName: "Noe", LastName: "Kealoha"}}, nil
}

func (f *fakeBackend) AddPatient(ctx context.Context, in scheduleapi.NewPatient) (scheduleapi.Patient, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.addPatientErr != nil {
		return scheduleapi.Patient{}, f.addPatientErr
	}
	f.patients = append(f.patients, in)
	return scheduleapi.Patient{ID: "p-new", FirstName: in.FirstName, LastName: in.LastName, DateOfBirth: in.DateOfBirth}, nil
}

func (f *fakeBackend) fetchCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.fetches
}

// holdReschedule makes the next reschedule of id wait until the returned
// function is called. entered is closed once the call is in flight.
func (f *fakeBackend) holdReschedule(id string) (entered <-chan struct{}, release func()) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.holdID = id
	f.entered = make(chan struct{})
	f.release = make(chan struct{})
	return f.entered, func() { close(f.release) }
}

func (f *fakeBackend) rescheduledIDs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var ids []string
	for _, c := range f.rescheduled {
		ids = append(ids, c.id)
	}
	return ids
}

func (f *fakeBackend) set(fn func(f *fakeBackend)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fn(f)
}

type fakeCache struct {
	mu    sync.Mutex
	saved map[clinictime.Date]calendar.Snapshot
}

func (c *fakeCache) Save(ctx context.Context, week clinictime.Date, snap calendar.Snapshot) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.saved == nil {
		c.saved = map[clinictime.Date]calendar.Snapshot{}
	}
	c.saved[week] = snap
	return nil
}

func (c *fakeCache) Load(ctx context.Context, week clinictime.Date) (calendar.Snapshot, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	snap, ok := c.saved[week]
	return snap, ok, nil
}

type fixture struct {
	console *Console
	backend *fakeBackend
	cache   *fakeCache
	zone    *clinictime.Zone
}

func newFixture(t *testing.T, snap calendar.Snapshot) *fixture {
	t.Helper()
	zone, err := clinictime.Load(clinictime.DefaultZone)
	require.NoError(t, err)
	grid, err := timegrid.NewGrid(timegrid.DefaultConfig())
	require.NoError(t, err)

	backend := &fakeBackend{snap: snap}
	cache := &fakeCache{}
	console, err := New(Config{
		Grid:      grid,
		Zone:      zone,
		Providers: calendar.DefaultProviders,
		Backend:   backend,
		Cache:     cache,
		Logger:    logging.Discard(),
		Now:       func() time.Time { return fixedNow },
	})
	require.NoError(t, err)
	return &fixture{console: console, backend: backend, cache: cache, zone: zone}
}

func (fx *fixture) at(date clinictime.Date, hour, minute int) time.Time {
	return fx.zone.At(date, timegrid.NewClock(hour, minute))
}

func appointment(id, provider string, start time.Time, minutes int) calendar.Appointment {
	return calendar.Appointment{
		ID: id, ProviderID: provider, PatientName: "Patient " + id,
		StartTime: start, DurationMinutes: minutes, AppointmentType: "Follow-up",
	}
}

func weekWith(appts ...calendar.Appointment) calendar.Snapshot {
	return calendar.Snapshot{Appointments: appts}
}

func TestNew_Validates(t *testing.T) {
	_, err := New(Config{})
	assert.Error(t, err)
}

func TestNew_StartsOnCurrentWeek(t *testing.T) {
	fx := newFixture(t, calendar.Snapshot{})
	// fixedNow is a Monday morning in Honolulu.
	assert.Equal(t, monday, fx.console.WeekStart())
	assert.Nil(t, fx.console.Snapshot())
}

func TestRefresh_AppliesSnapshotAndCachesIt(t *testing.T) {
	fx := newFixture(t, calendar.Snapshot{})
	fx.backend.set(func(f *fakeBackend) {
		f.snap = weekWith(appointment("a1", "cherie", fx.at(monday, 9, 0), 30))
	})
	events, unsubscribe := fx.console.Subscribe()
	defer unsubscribe()

	require.NoError(t, fx.console.Refresh(context.Background(), ReasonManual))

	snap := fx.console.Snapshot()
	require.NotNil(t, snap)
	assert.Len(t, snap.Appointments, 1)
	assert.Equal(t, monday, snap.WeekStart)

	st := fx.console.Status()
	assert.False(t, st.Stale)
	assert.Equal(t, uint64(1), st.Generation)

	cached, ok, _ := fx.cache.Load(context.Background(), monday)
	require.True(t, ok)
	assert.Len(t, cached.Appointments, 1)

	select {
	case ev := <-events:
		assert.Equal(t, EventSnapshot, ev.Type)
		assert.Equal(t, uint64(1), ev.Generation)
	default:
		t.Fatal("expected snapshot event")
	}
}

func TestRefresh_FailureKeepsLastSnapshotAndMarksStale(t *testing.T) {
	fx := newFixture(t, calendar.Snapshot{})
	fx.backend.set(func(f *fakeBackend) {
		f.snap = weekWith(appointment("a1", "cherie", fx.at(monday, 9, 0), 30))
	})
	ctx := context.Background()
	require.NoError(t, fx.console.Refresh(ctx, ReasonPoll))
	before := fx.console.Snapshot()

	fx.backend.set(func(f *fakeBackend) { f.fetchErr = errors.New("connection reset") })
	err := fx.console.Refresh(ctx, ReasonPoll)
	var failure *calendar.FetchFailure
	require.ErrorAs(t, err, &failure)

	assert.Same(t, before, fx.console.Snapshot())
	st := fx.console.Status()
	assert.True(t, st.Stale)
	assert.Contains(t, st.LastError, "connection reset")

	fx.backend.set(func(f *fakeBackend) {
		f.fetchErr = nil
		f.snap = weekWith(
			appointment("a1", "cherie", fx.at(monday, 9, 0), 30),
			appointment("a2", "anna-lia", fx.at(monday, 11, 0), 15))
	})
	require.NoError(t, fx.console.Refresh(ctx, ReasonPoll))
	assert.Len(t, fx.console.Snapshot().Appointments, 2)
	assert.False(t, fx.console.Status().Stale)
	assert.Empty(t, fx.console.Status().LastError)
}

func TestRefresh_DiscardsOutOfOrderResponses(t *testing.T) {
	fx := newFixture(t, calendar.Snapshot{})
	type reply struct {
		snap calendar.Snapshot
	}
	replies := []chan reply{make(chan reply, 1), make(chan reply, 1)}
	started := make(chan int, 2)
	fx.backend.set(func(f *fakeBackend) {
		f.hook = func(n int, start clinictime.Date) (calendar.Snapshot, error) {
			started <- n
			r := <-replies[n-1]
			r.snap.WeekStart = start
			return r.snap, nil
		}
	})

	ctx := context.Background()
	pollDone := make(chan error, 1)
	go func() { pollDone <- fx.console.Refresh(ctx, ReasonPoll) }()
	require.Equal(t, 1, <-started)

	manualDone := make(chan error, 1)
	go func() { manualDone <- fx.console.Refresh(ctx, ReasonManual) }()
	require.Equal(t, 2, <-started)

	// The newer request answers first.
	replies[1] <- reply{snap: weekWith(appointment("new", "cherie", fx.at(monday, 9, 0), 30))}
	require.NoError(t, <-manualDone)
	replies[0] <- reply{snap: weekWith(appointment("old", "cherie", fx.at(monday, 9, 0), 30))}
	require.NoError(t, <-pollDone)

	snap := fx.console.Snapshot()
	require.Len(t, snap.Appointments, 1)
	assert.Equal(t, "new", snap.Appointments[0].ID)
	assert.Equal(t, uint64(2), fx.console.Status().Generation)
}

func TestSetWeek_DiscardsResponseForPreviousWeek(t *testing.T) {
	fx := newFixture(t, calendar.Snapshot{})
	release := make(chan struct{})
	started := make(chan int, 2)
	fx.backend.set(func(f *fakeBackend) {
		f.hook = func(n int, start clinictime.Date) (calendar.Snapshot, error) {
			started <- n
			if n == 1 {
				<-release
			}
			return calendar.Snapshot{WeekStart: start, FetchedAt: fixedNow}, nil
		}
	})

	ctx := context.Background()
	done := make(chan error, 1)
	go func() { done <- fx.console.Refresh(ctx, ReasonPoll) }()
	<-started

	next := monday.AddDays(9) // Wednesday of the following week
	require.NoError(t, fx.console.SetWeek(ctx, next))
	close(release)
	require.NoError(t, <-done)

	assert.Equal(t, monday.AddDays(7), fx.console.WeekStart())
	require.NotNil(t, fx.console.Snapshot())
	assert.Equal(t, monday.AddDays(7), fx.console.Snapshot().WeekStart)
}

func TestWarm_PrimesStaleGridFromCache(t *testing.T) {
	fx := newFixture(t, calendar.Snapshot{})
	cached := calendar.Snapshot{
		WeekStart:    monday,
		Appointments: []calendar.Appointment{appointment("cached", "cherie", fx.at(monday, 9, 0), 30)},
		FetchedAt:    fixedNow.Add(-time.Hour),
	}
	require.NoError(t, fx.cache.Save(context.Background(), monday, cached))

	require.True(t, fx.console.Warm(context.Background()))
	assert.True(t, fx.console.Status().Stale)
	assert.Equal(t, "cached", fx.console.Snapshot().Appointments[0].ID)

	require.NoError(t, fx.console.Refresh(context.Background(), ReasonStartup))
	assert.False(t, fx.console.Status().Stale)
	assert.Empty(t, fx.console.Snapshot().Appointments)

	// Once fetched, the cache no longer overrides the grid.
	assert.False(t, fx.console.Prime(cached))
}

func TestPoller_RefreshesImmediatelyAndOnTick(t *testing.T) {
	fx := newFixture(t, calendar.Snapshot{})
	tick := make(chan time.Time, 1)
	stopped := make(chan struct{})
	poller, err := NewPoller(PollerConfig{
		Console: fx.console,
		Tick:    tick,
		Stop:    func() { close(stopped) },
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		poller.Start(ctx)
		close(done)
	}()

	waitFor(t, 250*time.Millisecond, func() bool { return fx.backend.fetchCount() >= 1 })
	tick <- fixedNow.Add(15 * time.Second)
	waitFor(t, 250*time.Millisecond, func() bool { return fx.backend.fetchCount() >= 2 })

	cancel()
	waitFor(t, 250*time.Millisecond, func() bool {
		select {
		case <-done:
			return true
		default:
			return false
		}
	})
	waitFor(t, 250*time.Millisecond, func() bool {
		select {
		case <-stopped:
			return true
		default:
			return false
		}
	})
}

func TestNewPoller_RequiresConsole(t *testing.T) {
	_, err := NewPoller(PollerConfig{})
	assert.Error(t, err)
}

func TestView_ResolvesVisibleWeek(t *testing.T) {
	fx := newFixture(t, calendar.Snapshot{})
	fx.backend.set(func(f *fakeBackend) {
		f.snap = calendar.Snapshot{
			Appointments: []calendar.Appointment{appointment("a1", "cherie", fx.at(monday, 9, 0), 30)},
			Holidays:     []calendar.Holiday{{Date: monday.AddDays(4), Name: "Test Holiday"}},
		}
	})
	require.NoError(t, fx.console.Refresh(context.Background(), ReasonManual))

	view := fx.console.View()
	assert.Len(t, view.Slots, 40)
	require.Len(t, view.Week.Days, 7)
	assert.Equal(t, monday, view.Week.Start)

	cherie := view.Week.Days[0].Providers[0]
	require.Len(t, cherie.Placements, 1)
	assert.Equal(t, 8, cherie.Placements[0].StartSlot)
	assert.Equal(t, 2, cherie.Placements[0].SpanSlots)
	assert.True(t, view.Week.Days[4].Closed)
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met within %s", timeout)
}

func TestClose_EndsSubscriptions(t *testing.T) {
	fx := newFixture(t, calendar.Snapshot{})
	events, unsubscribe := fx.console.Subscribe()

	fx.console.Close()
	_, open := <-events
	assert.False(t, open)
	unsubscribe()

	late, _ := fx.console.Subscribe()
	_, open = <-late
	assert.False(t, open)

	// Publishing after close must not panic.
	require.NoError(t, fx.console.Refresh(context.Background(), ReasonManual))
	fx.console.Close()
}
