package frontdesk

import (
	"context"
	"errors"
	"fmt"

	"github.com/wolfman30/frontdesk-calendar/internal/calendar"
	"github.com/wolfman30/frontdesk-calendar/internal/clinictime"
	"github.com/wolfman30/frontdesk-calendar/internal/conflict"
	"github.com/wolfman30/frontdesk-calendar/internal/drag"
	"github.com/wolfman30/frontdesk-calendar/internal/occupancy"
	"github.com/wolfman30/frontdesk-calendar/internal/timegrid"
)

// Slot actions offered on a free slot.
const (
	ActionCreateAppointment = "create_appointment"
	ActionBlockTime         = "block_time"
)

// SlotAction is the dialog opened by clicking a free slot.
type SlotAction struct {
	ProviderID       string          `json:"provider_id"`
	ProviderName     string          `json:"provider_name"`
	Date             clinictime.Date `json:"date"`
	Start            timegrid.Clock  `json:"start"`
	StartLabel       string          `json:"start_label"`
	Actions          []string        `json:"actions"`
	AppointmentTypes []string        `json:"appointment_types"`
	Durations        []int           `json:"durations"`
	DefaultDuration  int             `json:"default_duration"`
	TimeBlockLabels  []string        `json:"time_block_labels"`
}

// slotIndex maps a clock to a grid slot, refusing times that are not on the
// lattice.
func (c *Console) slotIndex(clock timegrid.Clock) (int, error) {
	if !clock.Valid() {
		return 0, calendar.NewValidationError(calendar.CodeInvalidTime, "invalid time %s", clock)
	}
	if !c.grid.OnBoundary(clock.Minutes()) {
		return 0, calendar.NewValidationError(calendar.CodeInvalidTime,
			"%s is not on a %d-minute slot boundary", clock.Label(), c.grid.StepMinutes())
	}
	idx, ok := c.grid.IndexForMinutes(clock.Minutes())
	if !ok {
		return 0, calendar.NewValidationError(calendar.CodeOutsideHours, "%s is outside business hours", clock.Label())
	}
	return idx, nil
}

func (c *Console) provider(id string) (calendar.Provider, error) {
	p, ok := c.providers.Get(id)
	if !ok {
		return calendar.Provider{}, &calendar.ValidationError{
			Code:   calendar.CodeUnknownProvider,
			Reason: fmt.Sprintf("unknown provider %q", id),
		}
	}
	return p, nil
}

// OnSlotClick opens the create dialog for a free slot. Lunch, holiday,
// locked and occupied slots are refused with a *calendar.ValidationError.
// A date outside the visible week is checked against that week's snapshot.
func (c *Console) OnSlotClick(ctx context.Context, providerID string, date clinictime.Date, clock timegrid.Clock) (SlotAction, error) {
	p, err := c.provider(providerID)
	if err != nil {
		return SlotAction{}, err
	}
	idx, err := c.slotIndex(clock)
	if err != nil {
		return SlotAction{}, err
	}
	if date.IsZero() {
		return SlotAction{}, missing("date")
	}
	snap, err := c.snapshotFor(ctx, date)
	if err != nil {
		return SlotAction{}, err
	}

	holiday, _ := snap.HolidayOn(date)
	day := c.resolver.ResolveDay(date, providerID, snap.Appointments, snap.TimeBlocks, snap.BookingLocks, holiday)
	slot := day.Slots[idx]
	if !slot.Clickable {
		err := slotRefusal(slot, day)
		c.metrics.ObserveRejection(string(err.Code))
		return SlotAction{}, err
	}

	action := SlotAction{
		ProviderID:       p.ID,
		ProviderName:     p.DisplayName,
		Date:             date,
		Start:            clock,
		StartLabel:       clock.Label(),
		Actions:          []string{ActionCreateAppointment, ActionBlockTime},
		AppointmentTypes: append([]string(nil), calendar.AppointmentTypes...),
		TimeBlockLabels:  append([]string(nil), calendar.TimeBlockLabels...),
	}
	for _, d := range calendar.AppointmentDurations {
		res := c.detector.HasConflict(snap, conflict.Proposal{ProviderID: providerID, Date: date, Start: clock, DurationMinutes: d})
		if !res.Conflict {
			action.Durations = append(action.Durations, d)
		}
	}
	action.DefaultDuration = calendar.DefaultAppointmentDuration
	if len(action.Durations) > 0 && !containsInt(action.Durations, action.DefaultDuration) {
		action.DefaultDuration = action.Durations[len(action.Durations)-1]
	}
	return action, nil
}

func slotRefusal(slot occupancy.SlotState, day occupancy.Result) *calendar.ValidationError {
	switch slot.State {
	case occupancy.StateHoliday:
		return calendar.NewValidationError(calendar.CodeHoliday, "clinic closed on %s (%s)", day.Date, day.Holiday)
	case occupancy.StateLunch:
		return calendar.NewValidationError(calendar.CodeLunch, "%s is during lunch", slot.Clock.Label())
	case occupancy.StateLocked:
		return calendar.NewValidationError(calendar.CodeLocked, "%s: %s", slot.Clock.Label(), occupancy.LockLabel)
	}
	return calendar.NewValidationError(calendar.CodeConflict, "%s is already taken", slot.Clock.Label())
}

func containsInt(list []int, v int) bool {
	for _, x := range list {
		if x == v {
			return true
		}
	}
	return false
}

// EntityView is the detail card opened by clicking an appointment or block.
type EntityView struct {
	Kind        calendar.Kind         `json:"kind"`
	Appointment *calendar.Appointment `json:"appointment,omitempty"`
	TimeBlock   *calendar.TimeBlock   `json:"time_block,omitempty"`
	Start       string                `json:"start"`
	End         string                `json:"end"`
	Automated   bool                  `json:"automated,omitempty"`
}

// OnEntityClick returns the detail view for an appointment or time block.
// Booking locks are not clickable.
func (c *Console) OnEntityClick(entityID string) (EntityView, error) {
	e, ok := c.findEntity(entityID)
	if !ok {
		return EntityView{}, fmt.Errorf("frontdesk: entity %s: %w", entityID, calendar.ErrNotFound)
	}
	view := EntityView{
		Kind:  e.EntityKind(),
		Start: c.zone.Format(e.Start()),
		End:   c.zone.Format(e.End()),
	}
	switch v := e.(type) {
	case calendar.Appointment:
		view.Appointment = &v
		view.Automated = v.BookedByAgent()
	case calendar.TimeBlock:
		view.TimeBlock = &v
	default:
		return EntityView{}, &calendar.ValidationError{
			Code:     calendar.CodeLocked,
			Reason:   occupancy.LockLabel,
			Conflict: e,
		}
	}
	return view, nil
}

// DragResult is what a drop resolves to. Err carries the typed error for
// callers that map it to a transport status.
type DragResult struct {
	Success  bool          `json:"success"`
	Outcome  drag.Outcome  `json:"outcome"`
	Error    string        `json:"error,omitempty"`
	Code     calendar.Code `json:"code,omitempty"`
	NewStart string        `json:"new_start,omitempty"`
	Err      error         `json:"-"`
}

func failedDrag(err error) DragResult {
	res := DragResult{Outcome: drag.OutcomeRejected, Error: err.Error(), Err: err}
	if v, ok := calendar.AsValidation(err); ok {
		res.Error = v.Reason
		res.Code = v.Code
	}
	return res
}

// OnDragEnd drops an appointment on a provider column and slot. Same-slot
// drops succeed without a network call; locked or conflicting targets are
// refused before any call is made. Only the dropped appointment is held while
// its reschedule is in flight; drops of other appointments proceed.
func (c *Console) OnDragEnd(ctx context.Context, appointmentID, providerID string, date clinictime.Date, clock timegrid.Clock) DragResult {
	e, ok := c.findEntity(appointmentID)
	appt, isAppt := e.(calendar.Appointment)
	if !ok || !isAppt {
		return failedDrag(fmt.Errorf("frontdesk: appointment %s: %w", appointmentID, calendar.ErrNotFound))
	}
	if _, err := c.provider(providerID); err != nil {
		return c.rejectDrag(err)
	}
	idx, err := c.slotIndex(clock)
	if err != nil {
		return c.rejectDrag(err)
	}
	if date.IsZero() {
		return c.rejectDrag(missing("date"))
	}
	snap, err := c.snapshotFor(ctx, date)
	if err != nil {
		out := failedDrag(err)
		out.Outcome = drag.OutcomeFailed
		return out
	}

	res := c.drag.Drop(ctx, snap, appt, drag.Target{ProviderID: providerID, Date: date, Slot: idx})
	c.metrics.ObserveDragOutcome(string(res.Outcome))

	switch res.Outcome {
	case drag.OutcomeCommitted:
		return DragResult{Success: true, Outcome: res.Outcome, NewStart: c.zone.Format(res.NewStart)}
	case drag.OutcomeCancelled:
		return DragResult{Success: true, Outcome: res.Outcome}
	case drag.OutcomeRejected:
		if v, ok := calendar.AsValidation(res.Err); ok {
			c.metrics.ObserveRejection(string(v.Code))
		}
		return failedDrag(res.Err)
	}

	out := DragResult{Outcome: res.Outcome, Err: res.Err}
	if m, ok := calendar.AsMutation(res.Err); ok {
		out.Error = m.Error()
	} else if res.Err != nil {
		out.Error = res.Err.Error()
	} else {
		out.Err = errors.New("frontdesk: drop did not complete")
		out.Error = out.Err.Error()
	}
	return out
}

func (c *Console) rejectDrag(err error) DragResult {
	c.metrics.ObserveDragOutcome(string(drag.OutcomeRejected))
	if v, ok := calendar.AsValidation(err); ok {
		c.metrics.ObserveRejection(string(v.Code))
	}
	return failedDrag(err)
}
