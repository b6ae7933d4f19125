package domain

import "time"

// MoonPhase marks the quarter-phase transition falling on a given day.
type MoonPhase int

const (
	MoonNone MoonPhase = iota
	MoonNew
	MoonFirstQuarter
	MoonFull
	MoonLastQuarter
)

func (p MoonPhase) String() string {
	switch p {
	case MoonNew:
		return "new"
	case MoonFirstQuarter:
		return "first_quarter"
	case MoonFull:
		return "full"
	case MoonLastQuarter:
		return "last_quarter"
	default:
		return "none"
	}
}

// Almanac supplies the calendar overlays drawn by the renderer. Render
// output must be a pure function of its inputs, so implementations have to
// be deterministic: same date in, same answer out, on every host.
type Almanac interface {
	// HolidayName returns the display label for a holiday on the given
	// date, or "" when the date is ordinary.
	HolidayName(date time.Time) string

	// MoonPhase returns the quarter phase beginning on the given UTC day,
	// or MoonNone.
	MoonPhase(date time.Time) MoonPhase
}
