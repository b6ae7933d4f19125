package pdfgen

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"

	"github.com/mintcal/mintcal/internal/domain"
)

// LibraryVersion participates in the render fingerprint. Bump it whenever
// the renderer or transcoder changes output bytes for identical inputs, so
// stale stored PDFs stop short-circuiting regeneration.
const LibraryVersion = "1"

// SortEvents puts events into canonical render order: date, then id. The
// repository already lists them this way; sorting again keeps hashing and
// rendering pure functions of their arguments.
func SortEvents(events []domain.CalendarEvent) {
	sort.SliceStable(events, func(i, j int) bool {
		di, dj := events[i].Date, events[j].Date
		if !di.Equal(dj) {
			return di.Before(dj)
		}
		return events[i].ID < events[j].ID
	})
}

// EventsHash digests the canonical event tuples. Field and record
// separators keep ("ab","c") distinct from ("a","bc").
func EventsHash(events []domain.CalendarEvent) string {
	sorted := make([]domain.CalendarEvent, len(events))
	copy(sorted, events)
	SortEvents(sorted)

	h := sha256.New()
	for _, ev := range sorted {
		fmt.Fprintf(h, "%s\x1f%s\x1f%s\x1f%s\x1e",
			ev.Date.UTC().Format("2006-01-02"), ev.ID, ev.Label, ev.Color)
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Fingerprint identifies the exact PDF bytes a render would produce. Two
// jobs with equal fingerprints can share the stored object, which is what
// lets the handler skip the render when the object already exists. The
// watermark flag is part of the identity because it changes the bytes.
func Fingerprint(templateID string, configVersion int64, eventsHash string, watermark bool) string {
	h := sha256.New()
	fmt.Fprintf(h, "%s\x1f%d\x1f%s\x1f%s\x1f%t",
		templateID, configVersion, eventsHash, LibraryVersion, watermark)
	return hex.EncodeToString(h.Sum(nil))
}

// ObjectKey is the storage location for a rendered calendar PDF.
func ObjectKey(ownerID, calendarID, fingerprint string) string {
	return fmt.Sprintf("calendars/%s/%s/%s.pdf", ownerID, calendarID, fingerprint)
}
