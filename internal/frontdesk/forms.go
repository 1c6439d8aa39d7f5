package frontdesk

import (
	"context"
	"strings"

	"github.com/wolfman30/frontdesk-calendar/internal/calendar"
	"github.com/wolfman30/frontdesk-calendar/internal/clinictime"
	"github.com/wolfman30/frontdesk-calendar/internal/conflict"
	"github.com/wolfman30/frontdesk-calendar/internal/scheduleapi"
	"github.com/wolfman30/frontdesk-calendar/internal/timegrid"
)

// AppointmentForm is the booking dialog's submission.
type AppointmentForm struct {
	ProviderID      string          `json:"provider_id"`
	Date            clinictime.Date `json:"date"`
	Start           timegrid.Clock  `json:"start"`
	DurationMinutes int             `json:"duration_minutes"`
	AppointmentType string          `json:"appointment_type"`
	Reason          string          `json:"reason"`
	PatientID       string          `json:"patient_id"`
	PatientName     string          `json:"patient_name"`
	PatientDOB      string          `json:"patient_dob"`
	PatientPhone    string          `json:"patient_phone"`
}

// TimeBlockForm is the block-time dialog's submission. Label "Other" uses
// CustomLabel as the block's name.
type TimeBlockForm struct {
	ProviderID  string          `json:"provider_id"`
	Date        clinictime.Date `json:"date"`
	Start       timegrid.Clock  `json:"start"`
	End         timegrid.Clock  `json:"end"`
	Label       string          `json:"label"`
	CustomLabel string          `json:"custom_label"`
	Notes       string          `json:"notes"`
}

func missing(field string) *calendar.ValidationError {
	return calendar.NewValidationError(calendar.CodeMissingField, "%s is required", field)
}

// snapshotFor returns a snapshot covering date: the visible one, a
// remembered one, or a fresh fetch of date's week.
func (c *Console) snapshotFor(ctx context.Context, date clinictime.Date) (*calendar.Snapshot, error) {
	if snap, ok := c.knownSnapshot(date); ok {
		return snap, nil
	}
	snap, err := c.fetchWeek(ctx, date.WeekStart())
	if err != nil {
		return nil, &calendar.FetchFailure{At: c.now(), Err: err}
	}
	return snap, nil
}

func (c *Console) reject(err *calendar.ValidationError) error {
	c.metrics.ObserveRejection(string(err.Code))
	return err
}

func (c *Console) validateAppointment(f *AppointmentForm) *calendar.ValidationError {
	f.ProviderID = strings.TrimSpace(f.ProviderID)
	f.PatientName = strings.TrimSpace(f.PatientName)
	f.PatientID = strings.TrimSpace(f.PatientID)
	f.AppointmentType = strings.TrimSpace(f.AppointmentType)
	f.Reason = strings.TrimSpace(f.Reason)

	switch {
	case f.ProviderID == "":
		return missing("provider")
	case f.Date.IsZero():
		return missing("date")
	case f.PatientID == "" && f.PatientName == "":
		return missing("patient")
	case f.AppointmentType == "":
		return missing("appointment type")
	}
	if _, err := c.provider(f.ProviderID); err != nil {
		v, _ := calendar.AsValidation(err)
		return v
	}
	if !calendar.ValidAppointmentType(f.AppointmentType) {
		return calendar.NewValidationError(calendar.CodeInvalidOption, "unknown appointment type %q", f.AppointmentType)
	}
	if f.DurationMinutes == 0 {
		f.DurationMinutes = calendar.DefaultAppointmentDuration
	}
	if !calendar.ValidAppointmentDuration(f.DurationMinutes) {
		return calendar.NewValidationError(calendar.CodeInvalidOption,
			"duration must be one of %v minutes, got %d", calendar.AppointmentDurations, f.DurationMinutes)
	}
	if _, err := c.slotIndex(f.Start); err != nil {
		v, _ := calendar.AsValidation(err)
		return v
	}
	return nil
}

// BookAppointment validates the form against the current snapshot with the
// same detector drag-and-drop uses, creates the appointment and refreshes.
func (c *Console) BookAppointment(ctx context.Context, f AppointmentForm) (calendar.Appointment, error) {
	if v := c.validateAppointment(&f); v != nil {
		return calendar.Appointment{}, c.reject(v)
	}
	snap, err := c.snapshotFor(ctx, f.Date)
	if err != nil {
		return calendar.Appointment{}, err
	}
	res := c.detector.HasConflict(snap, conflict.Proposal{
		ProviderID:      f.ProviderID,
		Date:            f.Date,
		Start:           f.Start,
		DurationMinutes: f.DurationMinutes,
	})
	if res.Conflict {
		v, _ := calendar.AsValidation(res.Err())
		return calendar.Appointment{}, c.reject(v)
	}

	ctx = context.WithoutCancel(ctx)
	appt, err := c.backend.CreateAppointment(ctx, scheduleapi.NewAppointment{
		ProviderID:      f.ProviderID,
		PatientID:       f.PatientID,
		PatientName:     f.PatientName,
		PatientDOB:      f.PatientDOB,
		PatientPhone:    f.PatientPhone,
		Start:           c.zone.At(f.Date, f.Start),
		DurationMinutes: f.DurationMinutes,
		AppointmentType: f.AppointmentType,
		Reason:          f.Reason,
	})
	if err != nil {
		err = asMutation("create_appointment", err)
		c.logger.Warn("create appointment failed", "provider_id", f.ProviderID, "date", f.Date.String(), "error", err)
		return calendar.Appointment{}, err
	}
	c.logger.Info("appointment booked", "appointment_id", appt.ID, "provider_id", f.ProviderID,
		"start", c.zone.Format(c.zone.At(f.Date, f.Start)))
	c.afterMutation(ctx, "create_appointment", appt.ID)
	return appt, nil
}

func (c *Console) validateTimeBlock(f *TimeBlockForm) (string, *calendar.ValidationError) {
	f.ProviderID = strings.TrimSpace(f.ProviderID)
	f.Label = strings.TrimSpace(f.Label)
	f.CustomLabel = strings.TrimSpace(f.CustomLabel)
	f.Notes = strings.TrimSpace(f.Notes)

	name := f.Label
	if name == "Other" {
		name = f.CustomLabel
	}
	switch {
	case f.ProviderID == "":
		return "", missing("provider")
	case name == "":
		return "", missing("event name")
	case f.Date.IsZero():
		return "", missing("date")
	}
	if _, err := c.provider(f.ProviderID); err != nil {
		v, _ := calendar.AsValidation(err)
		return "", v
	}
	if !calendar.ValidTimeBlockLabel(f.Label) {
		return "", calendar.NewValidationError(calendar.CodeInvalidOption, "unknown time block type %q", f.Label)
	}
	return name, nil
}

// BlockTime marks a provider unavailable between Start and End on Date.
func (c *Console) BlockTime(ctx context.Context, f TimeBlockForm) (calendar.TimeBlock, error) {
	name, v := c.validateTimeBlock(&f)
	if v != nil {
		return calendar.TimeBlock{}, c.reject(v)
	}
	snap, err := c.snapshotFor(ctx, f.Date)
	if err != nil {
		return calendar.TimeBlock{}, err
	}
	if res := c.detector.CheckRange(snap, f.ProviderID, f.Date, f.Start, f.End, ""); res.Conflict {
		v, _ := calendar.AsValidation(res.Err())
		return calendar.TimeBlock{}, c.reject(v)
	}

	ctx = context.WithoutCancel(ctx)
	block, err := c.backend.CreateTimeBlock(ctx, scheduleapi.NewTimeBlock{
		ProviderID: f.ProviderID,
		Label:      name,
		Start:      c.zone.At(f.Date, f.Start),
		End:        c.zone.At(f.Date, f.End),
		Notes:      f.Notes,
	})
	if err != nil {
		err = asMutation("create_time_block", err)
		c.logger.Warn("create time block failed", "provider_id", f.ProviderID, "date", f.Date.String(), "error", err)
		return calendar.TimeBlock{}, err
	}
	c.logger.Info("time blocked", "time_block_id", block.ID, "provider_id", f.ProviderID, "label", name)
	c.afterMutation(ctx, "create_time_block", block.ID)
	return block, nil
}

// CancelAppointment deletes an appointment on the backend and refreshes.
func (c *Console) CancelAppointment(ctx context.Context, appointmentID string) error {
	if strings.TrimSpace(appointmentID) == "" {
		return c.reject(missing("appointment id"))
	}
	ctx = context.WithoutCancel(ctx)
	if err := c.backend.DeleteAppointment(ctx, appointmentID); err != nil {
		err = asMutation("delete_appointment", err)
		c.logger.Warn("cancel appointment failed", "appointment_id", appointmentID, "error", err)
		return err
	}
	c.logger.Info("appointment cancelled", "appointment_id", appointmentID)
	c.afterMutation(ctx, "delete_appointment", appointmentID)
	return nil
}

// DeleteTimeBlock removes a time block on the backend and refreshes.
func (c *Console) DeleteTimeBlock(ctx context.Context, blockID string) error {
	if strings.TrimSpace(blockID) == "" {
		return c.reject(missing("time block id"))
	}
	ctx = context.WithoutCancel(ctx)
	if err := c.backend.DeleteTimeBlock(ctx, blockID); err != nil {
		err = asMutation("delete_time_block", err)
		c.logger.Warn("delete time block failed", "time_block_id", blockID, "error", err)
		return err
	}
	c.logger.Info("time block deleted", "time_block_id", blockID)
	c.afterMutation(ctx, "delete_time_block", blockID)
	return nil
}

func asMutation(op string, err error) error {
	if _, ok := calendar.AsMutation(err); ok {
		return err
	}
	return &calendar.MutationFailure{Op: op, Err: err}
}
