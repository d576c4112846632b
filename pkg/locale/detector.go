package locale

import (
	"strings"
	"time"
)

// RegionForTimeZone returns the region whose clinics use tz, or fallback
// when the zone is unknown (UTC included).
func RegionForTimeZone(tz, fallback string) string {
	for _, c := range Countries {
		for _, z := range c.TimeZones {
			if strings.EqualFold(tz, z) {
				return c.Code
			}
		}
	}
	return fallback
}

// RegionForLocation is RegionForTimeZone for a loaded location.
func RegionForLocation(loc *time.Location, fallback string) string {
	if loc == nil {
		return fallback
	}
	return RegionForTimeZone(loc.String(), fallback)
}
