package pdfgen

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/mintcal/mintcal/internal/domain"
)

// svgUnitsPerInch is the SVG user-unit scale. 72 units per inch makes SVG
// font sizes equal PDF points, which the transcoder relies on.
const svgUnitsPerInch = 72.0

// RenderOptions are the editor toggles read from the calendar config.
// Unknown fields and malformed config fall back to defaults rather than
// failing a render over cosmetics.
type RenderOptions struct {
	ShowHolidays   bool `json:"show_holidays"`
	ShowMoonPhases bool `json:"show_moon_phases"`
	WeekendShading bool `json:"weekend_shading"`
}

// ParseRenderOptions decodes config bytes, tolerating absence and garbage.
func ParseRenderOptions(config []byte) RenderOptions {
	defaults := RenderOptions{ShowHolidays: true, ShowMoonPhases: true, WeekendShading: true}
	if len(config) == 0 {
		return defaults
	}
	o := defaults
	if err := json.Unmarshal(config, &o); err != nil {
		return defaults
	}
	return o
}

// RenderInput is everything a render depends on. RenderSVG is a pure
// function of this value: identical inputs produce byte-identical SVG.
type RenderInput struct {
	Template Template
	Title    string
	Year     int
	Events   []domain.CalendarEvent
	Options  RenderOptions

	// Watermark selects the tiled diagonal overlay; false draws the small
	// footer line paid renders get instead.
	Watermark bool

	Almanac domain.Almanac
}

// Fixed layout metrics, in SVG units.
const (
	pageMargin   = 36.0
	titleBandH   = 72.0
	monthLabelW  = 110.0
	cellStroke   = 0.6
	eventBarH    = 11.0
	eventBarGap  = 2.0
	maxEventBars = 2
)

// RenderSVG lays out the year grid: one row per month, one column per day
// 1..31, with holiday, moon and event overlays. Output is canonical SVG
// text with fixed element order, fixed attribute order and fixed decimal
// formatting; nothing in it depends on wall time or map iteration.
func RenderSVG(in RenderInput) (string, error) {
	if in.Year < 1 || in.Year > 9999 {
		return "", fmt.Errorf("op=pdfgen.render: year %d out of range: %w", in.Year, domain.ErrInvalidArgument)
	}
	if in.Template.Page.WidthIn <= 0 || in.Template.Page.HeightIn <= 0 {
		return "", fmt.Errorf("op=pdfgen.render: degenerate page: %w", domain.ErrInvalidArgument)
	}
	alm := in.Almanac
	if alm == nil {
		alm = BuiltinAlmanac{}
	}
	st := in.Template.Style
	font := st.FontFamily
	if font == "" {
		font = "Helvetica"
	}

	width := in.Template.Page.WidthIn * svgUnitsPerInch
	height := in.Template.Page.HeightIn * svgUnitsPerInch
	gridX := pageMargin + monthLabelW
	gridY := pageMargin + titleBandH
	gridW := width - pageMargin - gridX
	gridH := height - pageMargin - gridY
	rowH := gridH / 12
	colW := gridW / 31

	events := eventsByDay(in.Year, in.Events)

	w := &svgWriter{}
	w.openSVG(width, height)
	w.fillRect(0, 0, width, height, color(st.Background, "#ffffff"))

	title := strings.TrimSpace(in.Title)
	if title == "" {
		title = "Calendar"
	}
	ink := color(st.Ink, "#1a1a1a")
	accent := color(st.Accent, "#e05252")
	muted := color(st.Muted, "#a0a0a0")
	w.text(pageMargin, pageMargin+52, textStyle{size: 44, fill: ink, font: font, bold: true}, title)
	w.text(width-pageMargin, pageMargin+52, textStyle{size: 44, fill: accent, font: font, bold: true, anchor: "end"}, strconv.Itoa(in.Year))

	for m := time.January; m <= time.December; m++ {
		rowY := gridY + float64(m-1)*rowH
		w.text(pageMargin, rowY+rowH/2+5, textStyle{size: 15, fill: ink, font: font, bold: true}, strings.ToUpper(m.String()))

		days := daysIn(in.Year, m)
		for d := 1; d <= 31; d++ {
			x := gridX + float64(d-1)*colW
			if d > days {
				w.fillRectO(x, rowY, colW, rowH, muted, 0.35)
				w.strokeRect(x, rowY, colW, rowH, muted, cellStroke)
				continue
			}
			date := time.Date(in.Year, m, d, 0, 0, 0, 0, time.UTC)
			wd := date.Weekday()
			if in.Options.WeekendShading && (wd == time.Saturday || wd == time.Sunday) {
				w.fillRect(x, rowY, colW, rowH, color(st.Weekend, "#f2f2f5"))
			}
			w.strokeRect(x, rowY, colW, rowH, muted, cellStroke)

			holiday := ""
			if in.Options.ShowHolidays {
				holiday = alm.HolidayName(date)
			}
			numStyle := textStyle{size: 10, fill: ink, font: font}
			if holiday != "" {
				numStyle.fill = accent
				numStyle.bold = true
			}
			w.text(x+4, rowY+13, numStyle, strconv.Itoa(d))
			w.text(x+colW-4, rowY+13, textStyle{size: 7, fill: muted, font: font, anchor: "end"}, weekdayInitial(wd))
			if holiday != "" {
				w.text(x+4, rowY+23, textStyle{size: 6.5, fill: accent, font: font},
					truncate(holiday, maxChars(colW-8, 6.5)))
			}
			if in.Options.ShowMoonPhases {
				if phase := alm.MoonPhase(date); phase != domain.MoonNone {
					drawMoon(w, x+colW-9, rowY+21, 4, phase, ink)
				}
			}
			drawEventBars(w, events[dayKey{m, d}], x, rowY, colW, rowH, accent, muted, font)
		}
	}

	if in.Watermark {
		tiledWatermark(w, width, height, ink, font)
	} else {
		footerLine(w, width, height, muted, font)
	}
	w.closeSVG()
	return w.String(), nil
}

type dayKey struct {
	month time.Month
	day   int
}

// eventsByDay buckets the year's events for cell lookup. The map is only
// ever indexed, never iterated, so it cannot leak iteration order into the
// output. Bucket order is the canonical (date, id) order.
func eventsByDay(year int, events []domain.CalendarEvent) map[dayKey][]domain.CalendarEvent {
	sorted := make([]domain.CalendarEvent, len(events))
	copy(sorted, events)
	SortEvents(sorted)

	out := make(map[dayKey][]domain.CalendarEvent)
	for _, ev := range sorted {
		d := ev.Date.UTC()
		if d.Year() != year {
			continue
		}
		k := dayKey{d.Month(), d.Day()}
		out[k] = append(out[k], ev)
	}
	return out
}

func drawEventBars(w *svgWriter, evs []domain.CalendarEvent, x, rowY, colW, rowH float64, accent, muted, font string) {
	if len(evs) == 0 {
		return
	}
	show := len(evs)
	if show > maxEventBars {
		show = maxEventBars
	}
	stackH := float64(show)*eventBarH + float64(show-1)*eventBarGap
	top := rowY + rowH - 4 - stackH
	for i := 0; i < show; i++ {
		ev := evs[i]
		barY := top + float64(i)*(eventBarH+eventBarGap)
		w.roundedRect(x+2, barY, colW-4, eventBarH, 2, color(ev.Color, accent))
		w.text(x+5, barY+8.5, textStyle{size: 7.5, fill: "#ffffff", font: font},
			truncate(ev.Label, maxChars(colW-8, 7.5)))
	}
	if len(evs) > show {
		w.text(x+colW-4, top-3, textStyle{size: 6.5, fill: muted, font: font, anchor: "end"},
			fmt.Sprintf("+%d", len(evs)-show))
	}
}

func drawMoon(w *svgWriter, cx, cy, r float64, phase domain.MoonPhase, ink string) {
	switch phase {
	case domain.MoonNew:
		w.circle(cx, cy, r, ink, "", 0)
	case domain.MoonFull:
		w.circle(cx, cy, r, "none", ink, 1)
	case domain.MoonFirstQuarter:
		w.circle(cx, cy, r, "none", ink, 1)
		w.path(fmt.Sprintf("M%s %s A%s %s 0 0 1 %s %s Z",
			num(cx), num(cy-r), num(r), num(r), num(cx), num(cy+r)), ink)
	case domain.MoonLastQuarter:
		w.circle(cx, cy, r, "none", ink, 1)
		w.path(fmt.Sprintf("M%s %s A%s %s 0 0 0 %s %s Z",
			num(cx), num(cy-r), num(r), num(r), num(cx), num(cy+r)), ink)
	}
}

func daysIn(year int, m time.Month) int {
	return time.Date(year, m+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

func weekdayInitial(wd time.Weekday) string {
	return string("SMTWTFS"[int(wd)])
}

// maxChars estimates how many characters of the given font size fit in
// width. The 0.55 em average width slightly overestimates Helvetica, so
// labels err toward fitting.
func maxChars(width, fontSize float64) int {
	n := int(width / (fontSize * 0.55))
	if n < 1 {
		n = 1
	}
	return n
}

func truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max])
}

// color returns c when it is a #rrggbb value, lowercased for canonical
// output, and fallback otherwise. Event colors come from user rows, so
// they are validated before landing in an SVG attribute.
func color(c, fallback string) string {
	if len(c) != 7 || c[0] != '#' {
		return fallback
	}
	for _, ch := range c[1:] {
		switch {
		case ch >= '0' && ch <= '9', ch >= 'a' && ch <= 'f', ch >= 'A' && ch <= 'F':
		default:
			return fallback
		}
	}
	return strings.ToLower(c)
}
