package locale

// Country maps an ISO 3166-1 region to the time zones a clinic in that
// region is configured with.
type Country struct {
	Code      string
	Name      string
	TimeZones []string
}

var Countries = []Country{
	{
		Code:      "US",
		Name:      "United States",
		TimeZones: []string{
			"America/New_York", "America/Chicago", "America/Denver", "America/Phoenix",
			"America/Los_Angeles", "America/Anchorage", "Pacific/Honolulu",
			"US/Eastern", "US/Central", "US/Mountain", "US/Pacific",
		},
	},
	{
		Code:      "CA",
		Name:      "Canada",
		TimeZones: []string{"America/Toronto", "America/Vancouver", "America/Edmonton", "America/Winnipeg", "America/Halifax"},
	},
	{
		Code:      "GB",
		Name:      "United Kingdom",
		TimeZones: []string{"Europe/London"},
	},
	{
		Code:      "DE",
		Name:      "Germany",
		TimeZones: []string{"Europe/Berlin"},
	},
	{
		Code:      "FR",
		Name:      "France",
		TimeZones: []string{"Europe/Paris"},
	},
	{
		Code:      "IL",
		Name:      "Israel",
		TimeZones: []string{"Asia/Jerusalem", "Asia/Tel_Aviv", "Israel"},
	},
	{
		Code:      "IN",
		Name:      "India",
		TimeZones: []string{"Asia/Kolkata", "Asia/Calcutta"},
	},
	{
		Code:      "AU",
		Name:      "Australia",
		TimeZones: []string{"Australia/Sydney", "Australia/Melbourne", "Australia/Brisbane", "Australia/Perth", "Australia/Adelaide"},
	},
}
