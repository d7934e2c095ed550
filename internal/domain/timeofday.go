package domain

import (
	"database/sql/driver"
	"errors"
	"fmt"
	"strings"
	"time"
)

// TimeOfDay is a wall-clock time measured from midnight. Valid values lie in [00:00, 24:00).
type TimeOfDay time.Duration

const day = 24 * time.Hour

func NewTimeOfDay(hour, minute, second int) TimeOfDay {
	return TimeOfDay(time.Duration(hour)*time.Hour + time.Duration(minute)*time.Minute + time.Duration(second)*time.Second)
}

// TimeOfDayOf returns the wall-clock part of t in t's own location.
func TimeOfDayOf(t time.Time) TimeOfDay {
	return TimeOfDay(time.Duration(t.Hour())*time.Hour +
		time.Duration(t.Minute())*time.Minute +
		time.Duration(t.Second())*time.Second +
		time.Duration(t.Nanosecond()))
}

func ParseTimeOfDay(s string) (TimeOfDay, error) {
	s = strings.TrimSpace(s)
	for _, layout := range []string{"15:04:05.999999999", "15:04:05", "15:04"} {
		t, err := time.Parse(layout, s)
		if err == nil {
			return TimeOfDayOf(t), nil
		}
	}
	return 0, fmt.Errorf("invalid time of day %q", s)
}

func (t TimeOfDay) Valid() bool {
	return t >= 0 && time.Duration(t) < day
}

func (t TimeOfDay) Compare(u TimeOfDay) int {
	switch {
	case t < u:
		return -1
	case t > u:
		return 1
	default:
		return 0
	}
}

func (t TimeOfDay) Clock() (hour, minute, second int) {
	d := time.Duration(t)
	hour = int(d / time.Hour)
	minute = int(d % time.Hour / time.Minute)
	second = int(d % time.Minute / time.Second)
	return hour, minute, second
}

// On places t on the calendar date of d, in d's location.
func (t TimeOfDay) On(d time.Time) time.Time {
	return time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, d.Location()).Add(time.Duration(t))
}

func (t TimeOfDay) String() string {
	h, m, s := t.Clock()
	if s != 0 {
		return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%02d:%02d", h, m)
}

func (t TimeOfDay) Value() (driver.Value, error) {
	if !t.Valid() {
		return nil, fmt.Errorf("time of day out of range: %d", int64(t))
	}
	h, m, s := t.Clock()
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s), nil
}

func (t *TimeOfDay) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		return errors.New("time of day is null")
	case time.Time:
		*t = TimeOfDayOf(v)
		return nil
	case string:
		parsed, err := ParseTimeOfDay(v)
		if err != nil {
			return err
		}
		*t = parsed
		return nil
	case []byte:
		return t.Scan(string(v))
	case int64:
		// microseconds since midnight, as the binary time encoding carries it
		*t = TimeOfDay(time.Duration(v) * time.Microsecond)
		return nil
	default:
		return fmt.Errorf("cannot scan %T into TimeOfDay", src)
	}
}
