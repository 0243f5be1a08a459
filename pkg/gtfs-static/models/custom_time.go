package models

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ClockTime is a GTFS time of day measured from "noon minus 12h" of the
// service day. Values past 24:00:00 belong to trips that started the day before.
type ClockTime time.Duration

// ParseClock parses "H:MM:SS" or "HH:MM:SS". Hours may exceed 23.
func ParseClock(s string) (ClockTime, error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) != 3 {
		return 0, fmt.Errorf("invalid clock time %q", s)
	}

	var fields [3]int
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil || n < 0 {
			return 0, fmt.Errorf("invalid clock time %q", s)
		}
		fields[i] = n
	}
	if fields[1] > 59 || fields[2] > 59 {
		return 0, fmt.Errorf("invalid clock time %q", s)
	}

	d := time.Duration(fields[0])*time.Hour + time.Duration(fields[1])*time.Minute + time.Duration(fields[2])*time.Second
	return ClockTime(d), nil
}

// Seconds since the start of the service day.
func (c ClockTime) Seconds() int {
	return int(time.Duration(c) / time.Second)
}

// PastMidnight reports whether the time lies in the following calendar day.
func (c ClockTime) PastMidnight() bool {
	return time.Duration(c) >= 24*time.Hour
}

// On returns the instant of c on the service day that starts on date,
// using noon minus 12h so DST transitions do not shift the result.
func (c ClockTime) On(date time.Time, loc *time.Location) time.Time {
	y, m, d := date.Date()
	noon := time.Date(y, m, d, 12, 0, 0, 0, loc)
	return noon.Add(-12 * time.Hour).Add(time.Duration(c))
}

func (c ClockTime) String() string {
	s := c.Seconds()
	return fmt.Sprintf("%02d:%02d:%02d", s/3600, (s/60)%60, s%60)
}

// NormalizeClock returns the canonical HH:MM:SS form of s, or "" when s is
// not a valid clock time.
func NormalizeClock(s string) string {
	c, err := ParseClock(s)
	if err != nil {
		return ""
	}
	return c.String()
}
