package locale

import (
	"testing"
	"time"
)

func TestRegionForTimeZone(t *testing.T) {
	tests := []struct {
		tz   string
		want string
	}{
		{"America/Los_Angeles", "US"},
		{"america/new_york", "US"},
		{"America/Toronto", "CA"},
		{"Europe/London", "GB"},
		{"Asia/Jerusalem", "IL"},
		{"UTC", "US"},
		{"Mars/Olympus", "US"},
	}

	for _, tt := range tests {
		t.Run(tt.tz, func(t *testing.T) {
			if got := RegionForTimeZone(tt.tz, "US"); got != tt.want {
				t.Errorf("RegionForTimeZone(%q) = %q, want %q", tt.tz, got, tt.want)
			}
		})
	}
}

func TestRegionForLocation(t *testing.T) {
	if got := RegionForLocation(nil, "GB"); got != "GB" {
		t.Errorf("nil location: got %q", got)
	}
	if got := RegionForLocation(time.FixedZone("X", 3600), "GB"); got != "GB" {
		t.Errorf("fixed zone: got %q", got)
	}
	loc, err := time.LoadLocation("Europe/Berlin")
	if err != nil {
		t.Skipf("tzdata unavailable: %v", err)
	}
	if got := RegionForLocation(loc, "US"); got != "DE" {
		t.Errorf("Europe/Berlin: got %q", got)
	}
}
