package timegrid

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// ErrInvalidClock is returned when a wall-clock string cannot be parsed.
var ErrInvalidClock = errors.New("timegrid: invalid clock time")

// Clock is a wall-clock time of day in the clinic zone, minute precision.
type Clock struct {
	Hour   int `json:"hour"`
	Minute int `json:"minute"`
}

// NewClock builds a Clock, normalizing minute overflow into hours.
func NewClock(hour, minute int) Clock {
	return ClockFromMinutes(hour*60 + minute)
}

// ClockFromMinutes converts minutes since midnight into a Clock.
func ClockFromMinutes(minutes int) Clock {
	return Clock{Hour: minutes / 60, Minute: minutes % 60}
}

// Minutes returns minutes since midnight.
func (c Clock) Minutes() int {
	return c.Hour*60 + c.Minute
}

// Add returns the clock shifted by the given number of minutes.
func (c Clock) Add(minutes int) Clock {
	return ClockFromMinutes(c.Minutes() + minutes)
}

// Before reports whether c is strictly earlier than other.
func (c Clock) Before(other Clock) bool {
	return c.Minutes() < other.Minutes()
}

// Valid reports whether the clock is a real time of day. 24:00 is accepted
// as an end-of-day boundary.
func (c Clock) Valid() bool {
	if c.Hour == 24 {
		return c.Minute == 0
	}
	return c.Hour >= 0 && c.Hour < 24 && c.Minute >= 0 && c.Minute < 60
}

// String formats the clock as 24-hour "HH:MM".
func (c Clock) String() string {
	return fmt.Sprintf("%02d:%02d", c.Hour, c.Minute)
}

// Label formats the clock the way the grid's time column shows it ("1:30 PM").
func (c Clock) Label() string {
	hour := c.Hour % 12
	if hour == 0 {
		hour = 12
	}
	ampm := "AM"
	if c.Hour >= 12 && c.Hour < 24 {
		ampm = "PM"
	}
	return fmt.Sprintf("%d:%02d %s", hour, c.Minute, ampm)
}

var (
	clock24Pattern = regexp.MustCompile(`^(\d{1,2}):(\d{2})$`)
	clock12Pattern = regexp.MustCompile(`(?i)^(\d{1,2}):(\d{2})\s*(AM|PM)$`)
)

// ParseClock parses "HH:MM" (24-hour) or "h:mm AM" strings from form fields.
func ParseClock(raw string) (Clock, error) {
	s := strings.TrimSpace(raw)
	if m := clock12Pattern.FindStringSubmatch(s); m != nil {
		hour, _ := strconv.Atoi(m[1])
		minute, _ := strconv.Atoi(m[2])
		if hour < 1 || hour > 12 || minute > 59 {
			return Clock{}, fmt.Errorf("%w: %q", ErrInvalidClock, raw)
		}
		switch strings.ToUpper(m[3]) {
		case "AM":
			if hour == 12 {
				hour = 0
			}
		case "PM":
			if hour != 12 {
				hour += 12
			}
		}
		return Clock{Hour: hour, Minute: minute}, nil
	}
	if m := clock24Pattern.FindStringSubmatch(s); m != nil {
		hour, _ := strconv.Atoi(m[1])
		minute, _ := strconv.Atoi(m[2])
		c := Clock{Hour: hour, Minute: minute}
		if !c.Valid() {
			return Clock{}, fmt.Errorf("%w: %q", ErrInvalidClock, raw)
		}
		return c, nil
	}
	return Clock{}, fmt.Errorf("%w: %q", ErrInvalidClock, raw)
}

// MarshalText encodes the clock as "HH:MM".
func (c Clock) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// UnmarshalText accepts any format ParseClock understands.
func (c *Clock) UnmarshalText(text []byte) error {
	parsed, err := ParseClock(string(text))
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}
