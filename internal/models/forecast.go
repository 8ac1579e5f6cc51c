package models

// RawForecast is the timeline API response shape we care about. The provider
// returns more fields; everything else is ignored on decode.
type RawForecast struct {
	TZOffset float64  `json:"tzoffset"`
	Timezone string   `json:"timezone"`
	Days     []RawDay `json:"days"`
}

// RawDay is one day of the provider forecast. Date is "2006-01-02".
type RawDay struct {
	Date  string    `json:"datetime"`
	Hours []RawHour `json:"hours"`
}

// RawHour is one hour entry within a day. Datetime is a local time-of-day
// string ("15:04:05"). Weather attributes are pointers so that fields the
// provider omits stay distinguishable from zero values.
type RawHour struct {
	Datetime   string   `json:"datetime"`
	Temp       *float64 `json:"temp"`
	Humidity   *float64 `json:"humidity"`
	Conditions *string  `json:"conditions"`
	WindSpeed  *float64 `json:"windspeed"`
	Precip     *float64 `json:"precip"`
}

// HourlyRecord is the normalized hour entry served to clients. Datetime keeps
// the provider's local time-of-day string. Absent source fields marshal as
// JSON null.
type HourlyRecord struct {
	Datetime   string   `json:"datetime"`
	Temp       *float64 `json:"temp"`
	Humidity   *float64 `json:"humidity"`
	Conditions *string  `json:"conditions"`
	WindSpeed  *float64 `json:"windspeed"`
	Precip     *float64 `json:"precip"`
}
