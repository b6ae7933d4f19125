package pdfgen

import (
	"strings"
	"testing"
	"time"

	"github.com/mintcal/mintcal/internal/domain"
)

func day(t *testing.T, s string) time.Time {
	t.Helper()
	d, err := time.Parse("2006-01-02", s)
	if err != nil {
		t.Fatalf("parse %q: %v", s, err)
	}
	return d
}

func TestSortEventsByDateThenID(t *testing.T) {
	evs := []domain.CalendarEvent{
		{ID: "b", Date: day(t, "2025-03-01")},
		{ID: "a", Date: day(t, "2025-03-01")},
		{ID: "z", Date: day(t, "2025-01-15")},
	}
	SortEvents(evs)
	got := evs[0].ID + evs[1].ID + evs[2].ID
	if got != "zab" {
		t.Fatalf("order = %q; want zab", got)
	}
}

func TestEventsHashIgnoresInputOrder(t *testing.T) {
	a := []domain.CalendarEvent{
		{ID: "e1", Date: day(t, "2025-06-01"), Label: "Trip", Color: "#112233"},
		{ID: "e2", Date: day(t, "2025-02-14"), Label: "Dinner", Color: "#445566"},
	}
	b := []domain.CalendarEvent{a[1], a[0]}
	if EventsHash(a) != EventsHash(b) {
		t.Fatalf("hash depends on input order")
	}
}

func TestEventsHashSeparatesFields(t *testing.T) {
	a := []domain.CalendarEvent{{ID: "e1", Date: day(t, "2025-06-01"), Label: "ab", Color: "c"}}
	b := []domain.CalendarEvent{{ID: "e1", Date: day(t, "2025-06-01"), Label: "a", Color: "bc"}}
	if EventsHash(a) == EventsHash(b) {
		t.Fatalf("field boundary not part of the hash")
	}
}

func TestEventsHashNormalizesToUTC(t *testing.T) {
	paris := time.FixedZone("CET", 3600)
	a := []domain.CalendarEvent{{ID: "e1", Date: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}}
	b := []domain.CalendarEvent{{ID: "e1", Date: time.Date(2025, 6, 1, 13, 0, 0, 0, paris)}}
	if EventsHash(a) != EventsHash(b) {
		t.Fatalf("same instant hashed differently across zones")
	}
}

func TestFingerprintIdentity(t *testing.T) {
	eh := EventsHash(nil)
	base := Fingerprint("classic-year", 3, eh, true)
	if len(base) != 64 || strings.ToLower(base) != base {
		t.Fatalf("fingerprint %q; want lowercase hex sha256", base)
	}
	if Fingerprint("classic-year", 3, eh, true) != base {
		t.Fatalf("same inputs produced different fingerprints")
	}
	if Fingerprint("classic-year", 3, eh, false) == base {
		t.Fatalf("watermark flag not part of the identity")
	}
	if Fingerprint("classic-year", 4, eh, true) == base {
		t.Fatalf("config version not part of the identity")
	}
	if Fingerprint("compact-year", 3, eh, true) == base {
		t.Fatalf("template not part of the identity")
	}
}

func TestObjectKeyLayout(t *testing.T) {
	got := ObjectKey("u1", "c9", "abc123")
	want := "calendars/u1/c9/abc123.pdf"
	if got != want {
		t.Fatalf("ObjectKey = %q; want %q", got, want)
	}
}
