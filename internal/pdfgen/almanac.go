// Package pdfgen renders calendar designs to print-ready PDFs: a YAML
// template catalog, a deterministic SVG renderer with holiday, moon and
// watermark overlays, a content fingerprint, and an SVG-to-PDF transcoder
// that rasterizes in bounded-memory strips.
package pdfgen

import (
	"math"
	"time"

	"github.com/mintcal/mintcal/internal/domain"
)

// BuiltinAlmanac is the shipped domain.Almanac: a fixed-date holiday table
// and an arithmetic moon phase. Everything is computed, nothing fetched,
// so renders stay reproducible across hosts and years.
type BuiltinAlmanac struct{}

var _ domain.Almanac = BuiltinAlmanac{}

type monthDay struct {
	month time.Month
	day   int
}

var fixedHolidays = map[monthDay]string{
	{time.January, 1}:   "New Year's Day",
	{time.February, 14}: "Valentine's Day",
	{time.March, 17}:    "St. Patrick's Day",
	{time.July, 4}:      "Independence Day",
	{time.October, 31}:  "Halloween",
	{time.November, 11}: "Veterans Day",
	{time.December, 24}: "Christmas Eve",
	{time.December, 25}: "Christmas Day",
	{time.December, 31}: "New Year's Eve",
}

// HolidayName implements domain.Almanac.
func (BuiltinAlmanac) HolidayName(date time.Time) string {
	d := date.UTC()
	return fixedHolidays[monthDay{d.Month(), d.Day()}]
}

// Mean synodic month and a reference new moon (2000-01-06 18:14 UTC). The
// mean-cycle approximation drifts up to several hours from the true phase,
// which is invisible at day granularity on a wall calendar.
const synodicMonthDays = 29.530588853

var newMoonEpoch = time.Date(2000, time.January, 6, 18, 14, 0, 0, time.UTC)

// phaseFraction returns the position in the synodic cycle at t:
// 0 new, 0.25 first quarter, 0.5 full, 0.75 last quarter.
func phaseFraction(t time.Time) float64 {
	days := t.Sub(newMoonEpoch).Hours() / 24
	f := math.Mod(days, synodicMonthDays) / synodicMonthDays
	if f < 0 {
		f++
	}
	return f
}

// MoonPhase implements domain.Almanac. A day carries a phase marker when
// the corresponding cycle instant falls inside that UTC day.
func (BuiltinAlmanac) MoonPhase(date time.Time) domain.MoonPhase {
	d := date.UTC()
	dayStart := time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, time.UTC)
	start := phaseFraction(dayStart)
	end := phaseFraction(dayStart.Add(24 * time.Hour))

	crosses := func(q float64) bool {
		if start <= end {
			return start <= q && q < end
		}
		// The fraction wrapped past 1.0 inside this day.
		return q >= start || q < end
	}
	switch {
	case crosses(0):
		return domain.MoonNew
	case crosses(0.25):
		return domain.MoonFirstQuarter
	case crosses(0.5):
		return domain.MoonFull
	case crosses(0.75):
		return domain.MoonLastQuarter
	}
	return domain.MoonNone
}
