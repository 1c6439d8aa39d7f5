// Package drag runs the press/drag/drop gesture that reschedules an
// appointment. A press becomes a drag only after the pointer is held for the
// activation delay or moved past the activation distance; releasing earlier
// is a click. A gesture never produces both.
package drag

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/wolfman30/frontdesk-calendar/internal/bookinglock"
	"github.com/wolfman30/frontdesk-calendar/internal/calendar"
	"github.com/wolfman30/frontdesk-calendar/internal/clinictime"
	"github.com/wolfman30/frontdesk-calendar/internal/conflict"
	"github.com/wolfman30/frontdesk-calendar/internal/timegrid"
	"github.com/wolfman30/frontdesk-calendar/pkg/logging"
)

var dragTracer = otel.Tracer("frontdesk.internal.drag")

// ErrGestureActive is returned when a second gesture starts while one is in
// progress or awaiting its commit.
var ErrGestureActive = errors.New("drag: another gesture is active")

// ErrMoveInFlight is returned when an appointment is pressed or dropped while
// a reschedule of that same appointment is still being sent.
var ErrMoveInFlight = errors.New("drag: appointment is already being moved")

// State of the coordinator.
type State int

const (
	Idle State = iota
	Pressed
	Dragging
	PendingCommit
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Pressed:
		return "pressed"
	case Dragging:
		return "dragging"
	case PendingCommit:
		return "pending_commit"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Point is a pointer position in grid pixels.
type Point struct {
	X float64
	Y float64
}

// Target is the grid cell under the pointer.
type Target struct {
	ProviderID string          `json:"provider_id"`
	Date       clinictime.Date `json:"date"`
	Slot       int             `json:"slot"`
}

// Outcome of releasing or dropping.
type Outcome string

const (
	OutcomeNone      Outcome = "none"
	OutcomeClick     Outcome = "click"
	OutcomeCancelled Outcome = "cancelled"
	OutcomeRejected  Outcome = "rejected"
	OutcomeCommitted Outcome = "committed"
	OutcomeFailed    Outcome = "failed"
)

// Result describes how a gesture ended. Err is a *calendar.ValidationError
// for rejections and a *calendar.MutationFailure for failed commits.
type Result struct {
	Outcome       Outcome
	AppointmentID string
	Target        *Target
	NewStart      time.Time
	Err           error
}

// Preview is the ghost card drawn under the pointer while dragging.
type Preview struct {
	Target   Target         `json:"target"`
	Start    timegrid.Clock `json:"start"`
	TopPx    int            `json:"top_px"`
	HeightPx int            `json:"height_px"`
	Valid    bool           `json:"valid"`
	Reason   calendar.Code  `json:"reason,omitempty"`
	Message  string         `json:"message,omitempty"`
}

// Committer sends the reschedule to the schedule backend.
type Committer interface {
	Reschedule(ctx context.Context, appointmentID string, newStart time.Time, newProviderID string) error
}

// Config holds the activation thresholds.
type Config struct {
	ActivationDelay    time.Duration
	ActivationDistance float64
	SlotHeightPx       int
}

// DefaultConfig is a 200ms hold or 8px of movement.
func DefaultConfig() Config {
	return Config{ActivationDelay: 200 * time.Millisecond, ActivationDistance: 8, SlotHeightPx: 48}
}

type gesture struct {
	id        string
	appt      calendar.Appointment
	origin    Target
	pressAt   Point
	pressedAt time.Time
	candidate *Target
}

// Coordinator owns the pointer gesture of one console and the set of
// appointments whose reschedule is in flight. Drops from clients that track
// their own gesture only lock the appointment being moved.
type Coordinator struct {
	cfg       Config
	detector  conflict.Detector
	snapshot  func() *calendar.Snapshot
	committer Committer
	logger    *logging.Logger

	// OnCommitted runs after a successful reschedule, outside the lock.
	OnCommitted func(ctx context.Context, appointmentID string)

	mu       sync.Mutex
	state    State
	current  *gesture
	inflight map[string]struct{}
}

// NewCoordinator wires a coordinator. snapshot returns the snapshot the grid
// is currently rendering and is read on every validation.
func NewCoordinator(cfg Config, detector conflict.Detector, snapshot func() *calendar.Snapshot, committer Committer, logger *logging.Logger) *Coordinator {
	if logger == nil {
		logger = logging.Default()
	}
	if cfg.SlotHeightPx <= 0 {
		cfg.SlotHeightPx = DefaultConfig().SlotHeightPx
	}
	if snapshot == nil {
		snapshot = func() *calendar.Snapshot { return nil }
	}
	return &Coordinator{
		cfg:       cfg,
		detector:  detector,
		snapshot:  snapshot,
		committer: committer,
		logger:    logger.Component("drag"),
		inflight:  make(map[string]struct{}),
	}
}

// State returns the current state.
func (c *Coordinator) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Press starts a gesture on an appointment card.
func (c *Coordinator) Press(appt calendar.Appointment, origin Target, p Point, at time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != Idle {
		return ErrGestureActive
	}
	if _, busy := c.inflight[appt.ID]; busy {
		return ErrMoveInFlight
	}
	c.state = Pressed
	c.current = &gesture{id: uuid.NewString(), appt: appt, origin: origin, pressAt: p, pressedAt: at}
	return nil
}

func (c *Coordinator) activated(g *gesture, p Point, at time.Time) bool {
	if c.cfg.ActivationDelay > 0 && at.Sub(g.pressedAt) >= c.cfg.ActivationDelay {
		return true
	}
	return c.cfg.ActivationDistance > 0 && math.Hypot(p.X-g.pressAt.X, p.Y-g.pressAt.Y) >= c.cfg.ActivationDistance
}

// Tick promotes a held press to a drag once the activation delay passes.
func (c *Coordinator) Tick(at time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != Pressed {
		return
	}
	g := c.current
	if c.cfg.ActivationDelay > 0 && at.Sub(g.pressedAt) >= c.cfg.ActivationDelay {
		c.startDrag(g)
	}
}

func (c *Coordinator) startDrag(g *gesture) {
	c.state = Dragging
	origin := g.origin
	g.candidate = &origin
	c.logger.Debug("drag started", "gesture_id", g.id, "appointment_id", g.appt.ID)
}

// Move tracks the pointer. target is nil when the pointer is outside the grid.
func (c *Coordinator) Move(p Point, target *Target, at time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch c.state {
	case Pressed:
		if !c.activated(c.current, p, at) {
			return
		}
		c.startDrag(c.current)
		fallthrough
	case Dragging:
		c.current.candidate = copyTarget(target)
	}
}

func copyTarget(t *Target) *Target {
	if t == nil {
		return nil
	}
	out := *t
	return &out
}

// Candidate returns the ghost preview while dragging over a target.
func (c *Coordinator) Candidate() (Preview, bool) {
	c.mu.Lock()
	if c.state != Dragging || c.current.candidate == nil {
		c.mu.Unlock()
		return Preview{}, false
	}
	appt := c.current.appt
	target := *c.current.candidate
	c.mu.Unlock()

	pv := Preview{Target: target}
	clock, ok := c.detector.Grid.ClockForIndex(target.Slot)
	if !ok {
		pv.Reason = calendar.CodeOutsideHours
		pv.Message = "outside business hours"
		return pv, true
	}
	pv.Start = clock
	pv.TopPx = timegrid.PixelOffset(target.Slot, c.cfg.SlotHeightPx)
	pv.HeightPx = c.detector.Grid.SpanSlots(appt.DurationMinutes) * c.cfg.SlotHeightPx
	if err := c.validate(c.snapshot(), appt, target); err != nil {
		if v, ok := calendar.AsValidation(err); ok {
			pv.Reason = v.Code
			pv.Message = v.Reason
		}
		return pv, true
	}
	pv.Valid = true
	return pv, true
}

// Cancel aborts a press or drag with no side effects. A gesture awaiting its
// commit cannot be cancelled.
func (c *Coordinator) Cancel() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != Pressed && c.state != Dragging {
		return false
	}
	c.reset()
	return true
}

func (c *Coordinator) reset() {
	c.state = Idle
	c.current = nil
}

// Release ends the gesture. A press released before activation is a click;
// a drag released over a target is validated and committed.
func (c *Coordinator) Release(ctx context.Context, p Point, target *Target, at time.Time) Result {
	c.mu.Lock()
	switch c.state {
	case Pressed:
		g := c.current
		if !c.activated(g, p, at) {
			c.reset()
			c.mu.Unlock()
			return Result{Outcome: OutcomeClick, AppointmentID: g.appt.ID}
		}
		c.startDrag(g)
	case Dragging:
	default:
		c.mu.Unlock()
		return Result{Outcome: OutcomeNone}
	}
	g := c.current
	if target == nil {
		c.reset()
		c.mu.Unlock()
		return Result{Outcome: OutcomeCancelled, AppointmentID: g.appt.ID}
	}
	if _, busy := c.inflight[g.appt.ID]; busy {
		c.reset()
		c.mu.Unlock()
		return inFlight(g.appt.ID, *target)
	}
	c.state = PendingCommit
	c.inflight[g.appt.ID] = struct{}{}
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		c.reset()
		delete(c.inflight, g.appt.ID)
		c.mu.Unlock()
	}()
	return c.commit(ctx, g.id, c.snapshot(), g.appt, *target)
}

// Drop runs the drop pipeline for a client that tracks the gesture itself,
// validating against snap. It leaves the pointer gesture alone: drops of
// different appointments proceed concurrently, and only a second drop of an
// appointment whose reschedule is still in flight is refused.
func (c *Coordinator) Drop(ctx context.Context, snap *calendar.Snapshot, appt calendar.Appointment, target Target) Result {
	c.mu.Lock()
	if _, busy := c.inflight[appt.ID]; busy {
		c.mu.Unlock()
		return inFlight(appt.ID, target)
	}
	c.inflight[appt.ID] = struct{}{}
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		delete(c.inflight, appt.ID)
		c.mu.Unlock()
	}()
	return c.commit(ctx, uuid.NewString(), snap, appt, target)
}

// InFlight reports whether a reschedule of the appointment is being sent.
func (c *Coordinator) InFlight(appointmentID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, busy := c.inflight[appointmentID]
	return busy
}

func inFlight(appointmentID string, target Target) Result {
	return Result{
		Outcome:       OutcomeRejected,
		AppointmentID: appointmentID,
		Target:        &target,
		Err:           &calendar.ValidationError{Code: calendar.CodeMoveInFlight, Reason: ErrMoveInFlight.Error()},
	}
}

// onOrigin reports whether target is where the appointment already starts:
// same provider, same clinic date and the same start time. An appointment
// starting between slot boundaries is never on the origin.
func (c *Coordinator) onOrigin(appt calendar.Appointment, target Target) bool {
	clock, ok := c.detector.Grid.ClockForIndex(target.Slot)
	if !ok || target.ProviderID != appt.ProviderID {
		return false
	}
	date, start := c.detector.Zone.Split(appt.StartTime)
	return date == target.Date && start.Minutes() == clock.Minutes()
}

func (c *Coordinator) checkLock(snap *calendar.Snapshot, target Target) error {
	if snap == nil {
		return nil
	}
	overlay := bookinglock.New(c.detector.Grid, c.detector.Zone, snap.BookingLocks)
	if lock, locked := overlay.LockAt(target.ProviderID, target.Date, target.Slot); locked {
		return &calendar.ValidationError{
			Code:     calendar.CodeLocked,
			Reason:   "slot is being booked by the scheduling assistant",
			Conflict: lock,
		}
	}
	return nil
}

func (c *Coordinator) validate(snap *calendar.Snapshot, appt calendar.Appointment, target Target) error {
	clock, ok := c.detector.Grid.ClockForIndex(target.Slot)
	if !ok {
		return calendar.NewValidationError(calendar.CodeOutsideHours, "slot %d is outside business hours", target.Slot)
	}
	if err := c.checkLock(snap, target); err != nil {
		return err
	}
	return c.detector.HasConflict(snap, conflict.Proposal{
		ProviderID:      target.ProviderID,
		Date:            target.Date,
		Start:           clock,
		DurationMinutes: appt.DurationMinutes,
		ExcludeID:       appt.ID,
	}).Err()
}

func (c *Coordinator) commit(ctx context.Context, gestureID string, snap *calendar.Snapshot, appt calendar.Appointment, target Target) Result {
	res := Result{AppointmentID: appt.ID, Target: &target}
	logger := c.logger.With("gesture_id", gestureID, "appointment_id", appt.ID,
		"provider_id", target.ProviderID, "date", target.Date.String(), "slot", target.Slot)

	// A locked target is refused even when it is the origin slot.
	if err := c.checkLock(snap, target); err != nil {
		res.Outcome = OutcomeRejected
		res.Err = err
		logger.Info("drop rejected", "error", err)
		return res
	}
	if c.onOrigin(appt, target) {
		res.Outcome = OutcomeCancelled
		logger.Debug("drop on origin slot ignored")
		return res
	}
	if err := c.validate(snap, appt, target); err != nil {
		res.Outcome = OutcomeRejected
		res.Err = err
		logger.Info("drop rejected", "error", err)
		return res
	}

	clock, _ := c.detector.Grid.ClockForIndex(target.Slot)
	res.NewStart = c.detector.Zone.At(target.Date, clock)

	// Once sent, the mutation runs to completion even if the caller goes away.
	ctx = context.WithoutCancel(ctx)
	ctx, span := dragTracer.Start(ctx, "drag.commit")
	defer span.End()
	span.SetAttributes(
		attribute.String("frontdesk.appointment_id", appt.ID),
		attribute.String("frontdesk.provider_id", target.ProviderID),
		attribute.String("frontdesk.new_start", c.detector.Zone.Format(res.NewStart)),
	)

	if c.committer == nil {
		res.Outcome = OutcomeFailed
		res.Err = &calendar.MutationFailure{Op: "reschedule", Reason: "no schedule backend configured"}
		return res
	}
	if err := c.committer.Reschedule(ctx, appt.ID, res.NewStart, target.ProviderID); err != nil {
		span.RecordError(err)
		res.Outcome = OutcomeFailed
		if _, ok := calendar.AsMutation(err); ok {
			res.Err = err
		} else {
			res.Err = &calendar.MutationFailure{Op: "reschedule", Err: err}
		}
		logger.Warn("reschedule failed", "error", err)
		return res
	}

	res.Outcome = OutcomeCommitted
	logger.Info("appointment rescheduled", "new_start", c.detector.Zone.Format(res.NewStart))
	if c.OnCommitted != nil {
		c.OnCommitted(ctx, appt.ID)
	}
	return res
}
