package sigmet

import (
	"fmt"
	"time"
)

// Flag bits carried in the milliseconds word of a YMDSTime. The low 10
// bits are the milliseconds themselves.
const (
	ymdsMillisMask = 0x03FF
	ymdsFlagDST    = 1 << 10 // time is daylight savings
	ymdsFlagUTC    = 1 << 11 // time is UTC rather than radar local
	ymdsFlagLDST   = 1 << 12 // local time is daylight savings
)

// YMDSTime is the IRIS on-disk timestamp: seconds of day plus a
// milliseconds word carrying DST/UTC flags, with the calendar date
// alongside.
type YMDSTime struct {
	Seconds      int32
	Milliseconds uint16 // low 10 bits millis, bits 10-12 flags
	Year         uint16
	Month        uint16
	Day          uint16
}

// Seconds64 returns seconds since the Unix epoch in the stated zone,
// including the sub-second part.
func (y YMDSTime) Seconds64() float64 {
	d := time.Date(int(y.Year), time.Month(y.Month), int(y.Day), 0, 0, 0, 0, time.UTC)
	ms := float64(y.Milliseconds & ymdsMillisMask)
	return float64(d.Unix()) + float64(y.Seconds) + ms/1000.0
}

// IsUTC reports whether the timestamp is UTC rather than radar local.
func (y YMDSTime) IsUTC() bool { return y.Milliseconds&ymdsFlagUTC != 0 }

// IsDST reports whether the timestamp is daylight savings.
func (y YMDSTime) IsDST() bool { return y.Milliseconds&ymdsFlagDST != 0 }

// IsZero reports an all-zero (unset) timestamp.
func (y YMDSTime) IsZero() bool {
	return y.Year == 0 && y.Month == 0 && y.Day == 0 && y.Seconds == 0
}

func (y YMDSTime) String() string {
	return fmt.Sprintf("%04d-%02d-%02d %02d:%02d:%02d.%03d",
		y.Year, y.Month, y.Day,
		y.Seconds/3600, y.Seconds/60%60, y.Seconds%60,
		y.Milliseconds&ymdsMillisMask)
}

// FormatZone renders a GMT offset in minutes as the 11 byte wire zone
// string, eg "UTC-05:00". A zero offset with no recorded zone name means
// radar local time and renders blank.
func FormatZone(offsetMinutes int, haveZone bool) string {
	if offsetMinutes == 0 && !haveZone {
		return ""
	}
	sign := "+"
	m := offsetMinutes
	if m < 0 {
		sign = "-"
		m = -m
	}
	return fmt.Sprintf("UTC%s%02d:%02d", sign, m/60, m%60)
}
