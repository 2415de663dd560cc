// Package adapters maps provider-specific webhook payloads into canonical
// results. One adapter per external service classifies the event kind,
// decides whether the payload is thin, hydrates it from the provider API
// when needed, and extracts entries through explicit field-name fallbacks
// since providers rename fields over time.
package adapters

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"lifelog-ingest/internal/common/errors"
	"lifelog-ingest/internal/common/logging"
	"lifelog-ingest/internal/models"
	"lifelog-ingest/internal/providerapi"
)

// Adapter converts one delivery into zero or more canonical results.
type Adapter interface {
	// Source returns the webhook source name the adapter serves.
	Source() string
	// Adapt maps the delivery. A delivery that cannot yield a dated result
	// fails explicitly rather than defaulting the date silently.
	Adapt(ctx context.Context, delivery *models.Delivery) ([]*models.Result, error)
}

// Registry holds the configured adapters keyed by source.
type Registry struct {
	adapters map[string]Adapter
}

// NewRegistry builds the full adapter set.
func NewRegistry(client providerapi.Client, loc *time.Location, logger logging.Logger) *Registry {
	if logger == nil {
		logger = logging.Global()
	}
	r := &Registry{adapters: make(map[string]Adapter)}
	r.Register(NewWhoop(client, loc, logger))
	r.Register(NewCalendar(loc, logger))
	r.Register(NewShortcut(loc, logger))
	return r
}

// Register adds an adapter, replacing any previous one for the source.
func (r *Registry) Register(a Adapter) {
	r.adapters[a.Source()] = a
}

// Get returns the adapter for a source.
func (r *Registry) Get(source string) (Adapter, bool) {
	a, ok := r.adapters[source]
	return a, ok
}

// HydrationState tags the outcome of the hydrate-on-demand stage.
type HydrationState int

const (
	// HydrationThin means the payload was complete enough to use directly.
	HydrationThin HydrationState = iota
	// HydrationDone means the effective payload is the fetched resource.
	HydrationDone
	// HydrationFailed means the fetch failed and the thin payload is used.
	HydrationFailed
)

// HydrationOutcome is the explicit result of the hydration stage rather
// than a silently overwritten payload.
type HydrationOutcome struct {
	State  HydrationState
	Reason string
}

// envelopeKeys are transport fields that carry no event content. A payload
// reduced to these (with no nested data object) is thin.
var envelopeKeys = map[string]struct{}{
	"id": {}, "user_id": {}, "type": {}, "trace_id": {}, "subscription_id": {},
	"signature": {}, "timestamp": {}, "event_id": {}, "resource_type": {},
	"resource_id": {}, "object_type": {}, "object_id": {},
}

// isThin reports whether the payload carries only envelope fields.
func isThin(payload map[string]interface{}) bool {
	for key, value := range payload {
		if _, envelope := envelopeKeys[key]; envelope {
			continue
		}
		if key == "data" || key == "record" {
			if _, nested := value.(map[string]interface{}); nested {
				return false
			}
			continue
		}
		return false
	}
	return true
}

// resolveKind prefers the payload-declared type over the endpoint's declared
// fallback kind. A mismatch is logged and the payload wins.
func resolveKind(payload map[string]interface{}, endpointKind string, logger logging.Logger) (kind string, mismatch bool) {
	declared, _ := stringField(payload, "type")
	if declared == "" {
		return endpointKind, false
	}
	if endpointKind != "" && declared != endpointKind {
		logger.Warn("Webhook kind mismatch",
			logging.String("endpoint_kind", endpointKind),
			logging.String("payload_kind", declared),
		)
		return declared, true
	}
	return declared, false
}

// eventID extracts the provider event id used for hydration and dedup.
func eventID(payload map[string]interface{}) string {
	id, _ := stringField(payload, "id", "event_id", "resource_id", "object_id")
	return id
}

// hydrate runs the hydrate-on-demand stage: a thin payload with an event id
// is replaced by the fetched resource. Failure never aborts the delivery.
func hydrate(ctx context.Context, client providerapi.Client, source, kind string, payload map[string]interface{}, logger logging.Logger) (map[string]interface{}, HydrationOutcome) {
	if !isThin(payload) {
		return payload, HydrationOutcome{State: HydrationThin}
	}

	id := eventID(payload)
	if id == "" || client == nil {
		return payload, HydrationOutcome{State: HydrationThin}
	}

	fetched, err := client.Fetch(ctx, source, kind, id)
	if err != nil {
		hydrationErr := errors.HydrationError("provider fetch failed", err).
			WithContext("source", source).
			WithContext("id", id)
		logger.Warn("Hydration failed, continuing with thin payload", logging.Err(hydrationErr))
		return payload, HydrationOutcome{State: HydrationFailed, Reason: err.Error()}
	}

	logger.Debug("Payload hydrated",
		logging.String("source", source),
		logging.String("kind", kind),
		logging.String("id", id),
	)
	return fetched, HydrationOutcome{State: HydrationDone}
}

// markProvenance records kind-mismatch and hydration facts on an entry for
// downstream traceability.
func markProvenance(entry *models.Entry, outcome HydrationOutcome, mismatch bool, originalKind string) {
	if outcome.State == HydrationDone {
		entry.SetMeta("webhook_hydrated", true)
	}
	if outcome.State == HydrationFailed {
		entry.SetMeta("webhook_hydration_failed", outcome.Reason)
	}
	if mismatch {
		entry.SetMeta("webhook_kind_mismatch", true)
		entry.SetMeta("webhook_original_kind", originalKind)
	}
}

// passthroughEntry wraps an unrecognized payload as a note entry so the
// delivery is never dropped on the floor.
func passthroughEntry(payload map[string]interface{}, source, kind string) (*models.Entry, error) {
	name := kind
	if name == "" {
		name = "event"
	}
	entry := &models.Entry{
		Name:     fmt.Sprintf("%s %s", source, name),
		Category: models.CategoryNote,
		Tags:     []string{"unrecognized"},
	}
	entry.SetMeta("raw_kind", kind)
	return entry, nil
}

// stringField returns the first present, non-empty string among keys.
// Dotted keys traverse nested objects.
func stringField(payload map[string]interface{}, keys ...string) (string, bool) {
	for _, key := range keys {
		if value, ok := lookup(payload, key); ok {
			if s, ok := value.(string); ok && s != "" {
				return s, true
			}
		}
	}
	return "", false
}

// numberField returns the first field among fallbacks that parses as a
// finite number. Providers send numbers as JSON numbers or strings.
func numberField(payload map[string]interface{}, keys ...string) (float64, bool) {
	for _, key := range keys {
		value, ok := lookup(payload, key)
		if !ok {
			continue
		}
		switch v := value.(type) {
		case float64:
			if !math.IsNaN(v) && !math.IsInf(v, 0) {
				return v, true
			}
		case int:
			return float64(v), true
		case string:
			if f, err := strconv.ParseFloat(v, 64); err == nil && !math.IsNaN(f) && !math.IsInf(f, 0) {
				return f, true
			}
		}
	}
	return 0, false
}

// lookup resolves a possibly dotted key path in nested payload objects.
func lookup(payload map[string]interface{}, key string) (interface{}, bool) {
	parts := strings.Split(key, ".")
	var current interface{} = payload
	for _, part := range parts {
		m, ok := current.(map[string]interface{})
		if !ok {
			return nil, false
		}
		current, ok = m[part]
		if !ok {
			return nil, false
		}
	}
	return current, true
}

// timestampLayouts providers use for start/end fields.
var timestampLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// parseTimestamp parses a provider timestamp, interpreting naive values in
// the reporting zone.
func parseTimestamp(raw string, loc *time.Location) (time.Time, error) {
	for _, layout := range timestampLayouts {
		if strings.Contains(layout, "Z07") {
			if t, err := time.Parse(layout, raw); err == nil {
				return t, nil
			}
			continue
		}
		if t, err := time.ParseInLocation(layout, raw, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unparseable timestamp %q", raw)
}

// deriveDate resolves the event date from the first parseable timestamp
// field, rendered in the reporting zone. The date must be derivable: an
// explicit error beats a silent default.
func deriveDate(payload map[string]interface{}, loc *time.Location, keys ...string) (string, error) {
	if date, ok := stringField(payload, "date"); ok {
		if _, err := time.Parse("2006-01-02", date); err == nil {
			return date, nil
		}
	}
	for _, key := range keys {
		raw, ok := stringField(payload, key)
		if !ok {
			continue
		}
		if t, err := parseTimestamp(raw, loc); err == nil {
			return t.In(loc).Format("2006-01-02"), nil
		}
	}
	return "", errors.ValidationError("event date is not derivable from payload")
}

// durationMinutes computes whole minutes between start and end fields when
// both parse.
func durationMinutes(payload map[string]interface{}, loc *time.Location, startKeys, endKeys []string) (float64, bool) {
	startRaw, ok := stringField(payload, startKeys...)
	if !ok {
		return 0, false
	}
	endRaw, ok := stringField(payload, endKeys...)
	if !ok {
		return 0, false
	}
	start, err := parseTimestamp(startRaw, loc)
	if err != nil {
		return 0, false
	}
	end, err := parseTimestamp(endRaw, loc)
	if err != nil {
		return 0, false
	}
	if end.Before(start) {
		return 0, false
	}
	return end.Sub(start).Minutes(), true
}

// localTime renders a timestamp field as HH:MM in the reporting zone.
func localTime(payload map[string]interface{}, loc *time.Location, keys ...string) string {
	raw, ok := stringField(payload, keys...)
	if !ok {
		return ""
	}
	t, err := parseTimestamp(raw, loc)
	if err != nil {
		return ""
	}
	return t.In(loc).Format("15:04")
}
