// Package clinictime is the single entry point for converting between
// instants and clinic wall-clock time. All conversions go through the IANA
// zone database so DST transitions land on the right slot.
package clinictime

import (
	"errors"
	"fmt"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/wolfman30/frontdesk-calendar/internal/timegrid"
)

// DefaultZone is the clinic zone used when none is configured.
const DefaultZone = "Pacific/Honolulu"

// ErrUnknownZone is returned for names the zone database does not know.
var ErrUnknownZone = errors.New("clinictime: unknown time zone")

// Zone converts instants to and from clinic wall-clock time.
type Zone struct {
	name string
	loc  *time.Location
}

// Load resolves an IANA zone name. An empty name loads DefaultZone.
func Load(name string) (*Zone, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		name = DefaultZone
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %v", ErrUnknownZone, name, err)
	}
	return &Zone{name: name, loc: loc}, nil
}

// FromLocation wraps an existing location.
func FromLocation(loc *time.Location) *Zone {
	if loc == nil {
		loc = time.UTC
	}
	return &Zone{name: loc.String(), loc: loc}
}

// Name is the IANA zone name.
func (z *Zone) Name() string { return z.name }

// Location is the underlying *time.Location.
func (z *Zone) Location() *time.Location { return z.loc }

// In converts an instant into clinic local time.
func (z *Zone) In(t time.Time) time.Time {
	return t.In(z.loc)
}

// Split returns the clinic-local date and wall clock of an instant.
func (z *Zone) Split(t time.Time) (Date, timegrid.Clock) {
	local := t.In(z.loc)
	return DateOf(local), timegrid.Clock{Hour: local.Hour(), Minute: local.Minute()}
}

// DateOf returns the clinic-local date of an instant.
func (z *Zone) DateOf(t time.Time) Date {
	return DateOf(t.In(z.loc))
}

// At builds the instant for a clinic-local date and wall clock. Wall times
// that fall in a spring-forward gap are normalized forward by the zone rules.
func (z *Zone) At(d Date, c timegrid.Clock) time.Time {
	return time.Date(d.Year, d.Month, d.Day, c.Hour, c.Minute, 0, 0, z.loc)
}

// MinutesOfDay returns minutes since local midnight for an instant.
func (z *Zone) MinutesOfDay(t time.Time) int {
	local := t.In(z.loc)
	return local.Hour()*60 + local.Minute()
}

// Format serializes an instant as RFC3339 with the clinic's offset in effect
// at that instant.
func (z *Zone) Format(t time.Time) string {
	return t.In(z.loc).Format(time.RFC3339)
}

// Today is the clinic-local date of now.
func (z *Zone) Today(now time.Time) Date {
	return z.DateOf(now)
}

// Parse reads a timestamp from the schedule backend. Offsets are honored;
// naive datetimes are treated as clinic local time.
func (z *Zone) Parse(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if t, err := time.Parse(time.RFC3339Nano, raw); err == nil {
		return t.In(z.loc), nil
	}
	if t, err := time.Parse("2006-01-02T15:04:05-0700", raw); err == nil {
		return t.In(z.loc), nil
	}
	for _, layout := range []string{"2006-01-02T15:04:05", "2006-01-02T15:04", "2006-01-02 15:04:05"} {
		if t, err := time.ParseInLocation(layout, raw, z.loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("clinictime: cannot parse timestamp %q", raw)
}

// SpanOn clips [start, end) to the clinic-local day date and returns it in
// minutes since local midnight. A span that began on an earlier day starts
// at 0; one that runs past midnight ends at 1440. ok is false when the span
// does not touch date.
func (z *Zone) SpanOn(date Date, start, end time.Time) (startMin, endMin int, ok bool) {
	sd, sc := z.Split(start)
	ed, ec := z.Split(end)
	switch {
	case sd == date:
		startMin = sc.Minutes()
	case sd.Before(date):
		startMin = 0
	default:
		return 0, 0, false
	}
	switch {
	case ed == date:
		endMin = ec.Minutes()
	case date.Before(ed):
		endMin = 24 * 60
	default:
		return 0, 0, false
	}
	if sd != date && endMin <= 0 {
		return 0, 0, false
	}
	return startMin, endMin, true
}
