package types

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// TimeUnit is the bar unit as encoded by the history provider.
type TimeUnit int

const (
	TimeUnitSecond TimeUnit = 1
	TimeUnitMinute TimeUnit = 2
	TimeUnitHour   TimeUnit = 3
	TimeUnitDay    TimeUnit = 4
	TimeUnitWeek   TimeUnit = 5
	TimeUnitMonth  TimeUnit = 6
)

// String returns the unit name.
func (u TimeUnit) String() string {
	switch u {
	case TimeUnitSecond:
		return "Second"
	case TimeUnitMinute:
		return "Minute"
	case TimeUnitHour:
		return "Hour"
	case TimeUnitDay:
		return "Day"
	case TimeUnitWeek:
		return "Week"
	case TimeUnitMonth:
		return "Month"
	default:
		return fmt.Sprintf("TimeUnit(%d)", int(u))
	}
}

// ParseTimeUnit accepts unit names in any case and their short forms.
func ParseTimeUnit(s string) (TimeUnit, error) {
	switch s {
	case "s", "second", "Second", "seconds":
		return TimeUnitSecond, nil
	case "m", "minute", "Minute", "minutes":
		return TimeUnitMinute, nil
	case "h", "hour", "Hour", "hours":
		return TimeUnitHour, nil
	case "d", "day", "Day", "days":
		return TimeUnitDay, nil
	case "w", "week", "Week", "weeks":
		return TimeUnitWeek, nil
	case "M", "month", "Month", "months":
		return TimeUnitMonth, nil
	default:
		return 0, fmt.Errorf("unknown time unit %q", s)
	}
}

// UnmarshalYAML accepts either the provider number or a unit name.
func (u *TimeUnit) UnmarshalYAML(value *yaml.Node) error {
	if n, err := strconv.Atoi(value.Value); err == nil {
		*u = TimeUnit(n)

		return nil
	}

	parsed, err := ParseTimeUnit(value.Value)
	if err != nil {
		return err
	}

	*u = parsed

	return nil
}

// MarshalYAML writes the lower-case unit name.
func (u TimeUnit) MarshalYAML() (any, error) {
	return strings.ToLower(u.String()), nil
}

// Timeframe is a bar width such as 3 minutes.
type Timeframe struct {
	UnitSize int      `yaml:"unit_size" json:"unit_size" validate:"gt=0"`
	Unit     TimeUnit `yaml:"unit" json:"unit" validate:"gte=1,lte=6"`
}

// Duration returns the fixed width of sub-week timeframes, or 0 for weeks and months.
func (t Timeframe) Duration() time.Duration {
	size := time.Duration(t.UnitSize)

	switch t.Unit {
	case TimeUnitSecond:
		return size * time.Second
	case TimeUnitMinute:
		return size * time.Minute
	case TimeUnitHour:
		return size * time.Hour
	case TimeUnitDay:
		return size * 24 * time.Hour
	default:
		return 0
	}
}

// String renders the timeframe like "3m".
func (t Timeframe) String() string {
	suffix := map[TimeUnit]string{
		TimeUnitSecond: "s",
		TimeUnitMinute: "m",
		TimeUnitHour:   "h",
		TimeUnitDay:    "d",
		TimeUnitWeek:   "w",
		TimeUnitMonth:  "M",
	}[t.Unit]

	return fmt.Sprintf("%d%s", t.UnitSize, suffix)
}
