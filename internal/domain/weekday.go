package domain

import (
	"fmt"
	"strings"
	"time"
)

// Weekday is an ISO weekday: 1 = Monday ... 7 = Sunday.
type Weekday int16

const (
	Monday Weekday = iota + 1
	Tuesday
	Wednesday
	Thursday
	Friday
	Saturday
	Sunday
)

var weekdayNames = [...]string{"", "monday", "tuesday", "wednesday", "thursday", "friday", "saturday", "sunday"}

// WeekdayOf maps t's weekday, in t's location, to the ISO numbering.
func WeekdayOf(t time.Time) Weekday {
	wd := t.Weekday()
	if wd == time.Sunday {
		return Sunday
	}
	return Weekday(wd)
}

func ParseWeekday(s string) (Weekday, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	for i := Monday; i <= Sunday; i++ {
		if weekdayNames[i] == name {
			return i, nil
		}
	}
	return 0, fmt.Errorf("invalid weekday %q", s)
}

func (w Weekday) Valid() bool {
	return w >= Monday && w <= Sunday
}

func (w Weekday) String() string {
	if !w.Valid() {
		return fmt.Sprintf("weekday(%d)", int16(w))
	}
	return weekdayNames[w]
}
