package models

import (
	"testing"
	"time"
)

func TestParseClock(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"08:15:00", "08:15:00", false},
		{"8:15:00", "08:15:00", false},
		{"25:30:10", "25:30:10", false},
		{" 23:59:59 ", "23:59:59", false},
		{"", "", true},
		{"08:15", "", true},
		{"08:61:00", "", true},
		{"ab:cd:ef", "", true},
	}

	for _, tc := range tests {
		got, err := ParseClock(tc.in)
		if tc.wantErr {
			if err == nil {
				t.Errorf("ParseClock(%q) expected error", tc.in)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseClock(%q) error = %v", tc.in, err)
			continue
		}
		if got.String() != tc.want {
			t.Errorf("ParseClock(%q) = %s, want %s", tc.in, got, tc.want)
		}
	}
}

func TestNormalizeClock(t *testing.T) {
	if got := NormalizeClock("7:05:00"); got != "07:05:00" {
		t.Errorf("NormalizeClock = %q", got)
	}
	if got := NormalizeClock("garbage"); got != "" {
		t.Errorf("NormalizeClock(garbage) = %q, want empty", got)
	}
}

func TestClockOnAcrossDST(t *testing.T) {
	loc, err := time.LoadLocation("America/Toronto")
	if err != nil {
		t.Skip("tzdata not available")
	}
	// 2024-03-10 is the spring-forward day in Toronto.
	date := time.Date(2024, 3, 10, 0, 0, 0, 0, loc)
	c, _ := ParseClock("12:00:00")

	got := c.On(date, loc)
	if got.Hour() != 12 || got.Day() != 10 {
		t.Errorf("12:00:00 on DST day = %v, want noon", got)
	}

	late, _ := ParseClock("25:10:00")
	got = late.On(time.Date(2024, 6, 1, 0, 0, 0, 0, loc), loc)
	if got.Day() != 2 || got.Hour() != 1 || got.Minute() != 10 {
		t.Errorf("25:10:00 = %v, want 01:10 next day", got)
	}
}

func TestCalendarRunsOn(t *testing.T) {
	c := Calendar{
		ServiceID: "WKDY",
		StartDate: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		EndDate:   time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC),
	}
	for d := time.Monday; d <= time.Friday; d++ {
		c.Days[d] = true
	}

	tests := []struct {
		date time.Time
		want bool
	}{
		{time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), true},    // monday, first day
		{time.Date(2024, 1, 31, 18, 0, 0, 0, time.UTC), true},  // wednesday, last day
		{time.Date(2024, 1, 6, 0, 0, 0, 0, time.UTC), false},   // saturday
		{time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC), false},   // out of range
		{time.Date(2023, 12, 29, 0, 0, 0, 0, time.UTC), false}, // before range
	}
	for _, tc := range tests {
		if got := c.RunsOn(tc.date); got != tc.want {
			t.Errorf("RunsOn(%s) = %v, want %v", tc.date.Format("2006-01-02"), got, tc.want)
		}
	}
}

func TestFeedMetadataVersionName(t *testing.T) {
	m := FeedMetadata{ETag: `"v1"`, LastModified: time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)}
	if got := m.VersionName(); got != `etag:"v1"` {
		t.Errorf("VersionName() = %q", got)
	}
	m.ETag = ""
	if got := m.VersionName(); got != "modified:2024-05-01T00:00:00Z" {
		t.Errorf("VersionName() = %q", got)
	}
}

func TestRouteDisplayName(t *testing.T) {
	if got := (Route{RouteID: "r", RouteLongName: "Long"}).DisplayName(); got != "Long" {
		t.Errorf("DisplayName() = %q", got)
	}
	if got := (Route{RouteID: "r"}).DisplayName(); got != "r" {
		t.Errorf("DisplayName() = %q", got)
	}
}
