// Package enrich normalizes adapter-produced entries: entry times are
// resolved in the configured reporting time zone, a time-of-day bucket is
// derived and attached as both tag and metadata, and each entry gets a
// category template so downstream consumers see a stable shape.
//
// Enrichment mutates entries in place and is idempotent: re-running it does
// not duplicate tags or corrupt the attached template.
package enrich

import (
	"fmt"
	"strings"
	"time"

	"lifelog-ingest/internal/common/logging"
	"lifelog-ingest/internal/models"
)

// Time-of-day buckets derived from the normalized local hour.
const (
	BucketMorning   = "morning"   // [05:00, 12:00)
	BucketAfternoon = "afternoon" // [12:00, 17:00)
	BucketEvening   = "evening"   // [17:00, 21:00)
	BucketNight     = "night"     // everything else
)

// bare time layouts providers send, with and without seconds and meridiem
var bareLayouts = []string{
	"15:04:05",
	"15:04",
	"3:04:05pm",
	"3:04pm",
	"3:04:05PM",
	"3:04PM",
}

// full timestamp layouts; zoned layouts are converted into the reporting zone
var fullLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04",
}

// Enricher normalizes entries into one reporting time zone.
type Enricher struct {
	loc    *time.Location
	logger logging.Logger
	now    func() time.Time
}

// New creates an enricher for the given IANA zone.
func New(zone string, logger logging.Logger) (*Enricher, error) {
	loc, err := time.LoadLocation(zone)
	if err != nil {
		return nil, fmt.Errorf("invalid reporting time zone %q: %w", zone, err)
	}
	if logger == nil {
		logger = logging.Global()
	}
	return &Enricher{loc: loc, logger: logger, now: time.Now}, nil
}

// EnrichResult enriches every entry of a result in place and returns the
// delivery-level summary bucket, taken from the first entry.
func (e *Enricher) EnrichResult(res *models.Result) string {
	summary := ""
	for _, entry := range res.Entries {
		bucket := e.EnrichEntry(entry, res.Date)
		if summary == "" {
			summary = bucket
		}
	}
	return summary
}

// EnrichEntry normalizes one entry against the event date and returns its
// time-of-day bucket.
func (e *Enricher) EnrichEntry(entry *models.Entry, date string) string {
	bucket := e.normalizeTime(entry, date)

	entry.SetMeta("time_of_day", bucket)
	entry.SetMeta("template", models.TemplateForCategory(entry.Category))

	entry.Tags = mergeTag(entry.Tags, bucket)

	return bucket
}

// normalizeTime resolves the entry time in the reporting zone. Bare times
// combine with the event date; parse failure leaves the original string
// untouched and records it under metadata.original_time.
func (e *Enricher) normalizeTime(entry *models.Entry, date string) string {
	raw := strings.TrimSpace(entry.Time)

	if raw == "" {
		// No data to normalize. Keep an already-derived bucket stable so
		// re-enrichment is idempotent; otherwise bucket the receipt time.
		if existing, ok := entry.Metadata["time_of_day"].(string); ok && existing != "" {
			return existing
		}
		return bucketFor(e.now().In(e.loc).Hour())
	}

	if t, ok := e.parseBare(raw, date); ok {
		entry.Time = t.Format("15:04")
		return bucketFor(t.Hour())
	}

	if t, ok := e.parseFull(raw); ok {
		local := t.In(e.loc)
		entry.Time = local.Format("15:04")
		return bucketFor(local.Hour())
	}

	// Never discard data: the unparseable value stays on the entry and is
	// preserved in metadata for later inspection.
	if _, recorded := entry.Metadata["original_time"]; !recorded {
		entry.SetMeta("original_time", raw)
	}
	e.logger.Debug("Unparseable entry time left as-is",
		logging.String("time", raw),
		logging.String("date", date),
	)
	if existing, ok := entry.Metadata["time_of_day"].(string); ok && existing != "" {
		return existing
	}
	return bucketFor(e.now().In(e.loc).Hour())
}

func (e *Enricher) parseBare(raw, date string) (time.Time, bool) {
	if date == "" {
		return time.Time{}, false
	}
	normalized := strings.ToLower(raw)
	for _, layout := range bareLayouts {
		if t, err := time.ParseInLocation("2006-01-02 "+layout, date+" "+normalized, e.loc); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func (e *Enricher) parseFull(raw string) (time.Time, bool) {
	for _, layout := range fullLayouts {
		var t time.Time
		var err error
		if strings.Contains(layout, "Z07") {
			t, err = time.Parse(layout, raw)
		} else {
			t, err = time.ParseInLocation(layout, raw, e.loc)
		}
		if err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// bucketFor maps a local hour to its time-of-day bucket.
func bucketFor(hour int) string {
	switch {
	case hour >= 5 && hour < 12:
		return BucketMorning
	case hour >= 12 && hour < 17:
		return BucketAfternoon
	case hour >= 17 && hour < 21:
		return BucketEvening
	default:
		return BucketNight
	}
}

// mergeTag appends tag and removes exact-match duplicates, preserving the
// first occurrence order.
func mergeTag(tags []string, tag string) []string {
	merged := append(append([]string{}, tags...), tag)
	seen := make(map[string]struct{}, len(merged))
	out := merged[:0]
	for _, t := range merged {
		if _, dup := seen[t]; dup {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}
