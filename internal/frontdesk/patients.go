package frontdesk

import (
	"context"
	"fmt"
	"strings"

	"github.com/wolfman30/frontdesk-calendar/internal/calendar"
	"github.com/wolfman30/frontdesk-calendar/internal/clinictime"
	"github.com/wolfman30/frontdesk-calendar/internal/scheduleapi"
)

// SearchPatients backs the booking dialog's patient picker.
func (c *Console) SearchPatients(ctx context.Context, query string) ([]scheduleapi.Patient, error) {
	patients, err := c.backend.SearchPatients(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("frontdesk: search patients: %w", err)
	}
	return patients, nil
}

func (c *Console) validatePatient(p *scheduleapi.NewPatient) *calendar.ValidationError {
	for _, field := range []*string{
		&p.FirstName, &p.LastName, &p.DateOfBirth, &p.Phone, &p.Email, &p.Gender,
		&p.StreetAddress, &p.City, &p.State, &p.ZipCode,
		&p.PrimaryInsurance, &p.PrimarySubscriberID, &p.SecondaryInsurance, &p.SecondarySubscriberID,
	} {
		*field = strings.TrimSpace(*field)
	}

	switch {
	case p.FirstName == "":
		return missing("first name")
	case p.LastName == "":
		return missing("last name")
	case p.DateOfBirth == "":
		return missing("date of birth")
	case p.PrimaryInsurance == "":
		return missing("primary insurance")
	}
	dob, err := clinictime.ParseDate(p.DateOfBirth)
	if err != nil {
		return calendar.NewValidationError(calendar.CodeInvalidTime, "date of birth must be YYYY-MM-DD")
	}
	if c.zone.Today(c.now()).Before(dob) {
		return calendar.NewValidationError(calendar.CodeInvalidRange, "date of birth %s is in the future", dob)
	}
	p.DateOfBirth = dob.String()
	return nil
}

// AddPatient registers a new patient from the booking dialog. First name,
// last name, date of birth and primary insurance are required. The grid is
// not refreshed; patients are not shown on it.
func (c *Console) AddPatient(ctx context.Context, in scheduleapi.NewPatient) (scheduleapi.Patient, error) {
	if err := c.validatePatient(&in); err != nil {
		return scheduleapi.Patient{}, c.reject(err)
	}

	ctx = context.WithoutCancel(ctx)
	patient, err := c.backend.AddPatient(ctx, in)
	if err != nil {
		err = asMutation("add_patient", err)
		c.logger.Warn("add patient failed", "error", err)
		return scheduleapi.Patient{}, err
	}
	c.logger.Info("patient added", "patient_id", patient.ID)
	return patient, nil
}
