package utils

import "time"

const (
	DayKeyFormat   = "2006-01-02"
	MonthKeyFormat = "2006-01"
)

// excelEpochOffsetDays is the distance in days between the spreadsheet date
// epoch (1899-12-30) and the Unix epoch.
const excelEpochOffsetDays = 25569

// DayKey returns the calendar-day key (YYYY-MM-DD) for a timestamp.
func DayKey(t time.Time) string {
	return t.UTC().Format(DayKeyFormat)
}

// MonthKey returns the year-month key (YYYY-MM) for a timestamp.
func MonthKey(t time.Time) string {
	return t.UTC().Format(MonthKeyFormat)
}

// FromExcelSerial converts a spreadsheet date serial to a UTC time.
func FromExcelSerial(serial float64) time.Time {
	seconds := (serial - excelEpochOffsetDays) * 86400
	return time.Unix(int64(seconds), 0).UTC()
}

// ParseDayKey parses a YYYY-MM-DD day key. Returns the zero time on failure.
func ParseDayKey(s string) time.Time {
	t, err := time.Parse(DayKeyFormat, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
