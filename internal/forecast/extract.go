package forecast

import (
	"time"

	"github.com/weathertowear/service/internal/models"
)

// maxHours is the length of the rolling forecast window.
const maxHours = 24

// datetimeLayout matches the provider's "day date" + "hour time-of-day" pair.
const datetimeLayout = "2006-01-02 15:04:05"

// Extract selects the rolling 24-hour window from a raw forecast document.
// The anchor is now truncated to the hour in the provider's own UTC offset,
// not the process-local zone: the document's day/hour fields are local to
// that offset. Entries timestamped at or before the anchor are skipped;
// extraction stops as soon as 24 entries have been collected.
//
// Entries whose day date or hour time-of-day cannot be resolved bypass the
// time filter but are still emitted. Documents with no days or days with no
// hours contribute nothing; a short document yields a short result.
func Extract(raw models.RawForecast, tzOffsetHours float64, now time.Time) []models.HourlyRecord {
	zone := time.FixedZone("provider", int(tzOffsetHours*3600))
	// Truncate on the wall clock, not absolute time: for fractional offsets
	// the two disagree.
	local := now.In(zone)
	anchor := time.Date(local.Year(), local.Month(), local.Day(), local.Hour(), 0, 0, 0, zone)

	records := make([]models.HourlyRecord, 0, maxHours)
	for _, day := range raw.Days {
		for _, hour := range day.Hours {
			if day.Date != "" && hour.Datetime != "" {
				full, err := time.ParseInLocation(datetimeLayout, day.Date+" "+hour.Datetime, zone)
				if err == nil && !full.After(anchor) {
					continue
				}
			}
			if len(records) >= maxHours {
				break
			}
			records = append(records, models.HourlyRecord{
				Datetime:   hour.Datetime,
				Temp:       hour.Temp,
				Humidity:   hour.Humidity,
				Conditions: hour.Conditions,
				WindSpeed:  hour.WindSpeed,
				Precip:     hour.Precip,
			})
		}
		if len(records) >= maxHours {
			break
		}
	}
	return records
}
