// Package models holds the canonical data types shared across the
// ingestion pipeline.
package models

import "time"

// Entry categories. Every stored entry carries exactly one.
const (
	CategoryFood       = "food"
	CategoryDrink      = "drink"
	CategorySnack      = "snack"
	CategorySupplement = "supplement"
	CategorySubstance  = "substance"
	CategoryNote       = "note"
	CategoryActivity   = "activity"
	CategoryTraining   = "training"
)

// Rendering templates assigned during enrichment.
const (
	TemplateActivity  = "activity_event"
	TemplateNutrition = "nutrition_event"
	TemplateContext   = "context_event"
)

// ValidCategory reports whether a category name is one of the known set.
func ValidCategory(category string) bool {
	switch category {
	case CategoryFood, CategoryDrink, CategorySnack, CategorySupplement,
		CategorySubstance, CategoryNote, CategoryActivity, CategoryTraining:
		return true
	}
	return false
}

// TemplateForCategory maps a category to its rendering template.
// Activity-like categories render as activity events, consumables as
// nutrition events, everything else as context.
func TemplateForCategory(category string) string {
	switch category {
	case CategoryActivity, CategoryTraining:
		return TemplateActivity
	case CategoryFood, CategoryDrink, CategorySnack, CategorySupplement, CategorySubstance:
		return TemplateNutrition
	default:
		return TemplateContext
	}
}

// Delivery is one inbound webhook request after body capture, before
// adaptation.
type Delivery struct {
	Source     string                 `json:"source"`
	EventType  string                 `json:"event_type"`
	Payload    map[string]interface{} `json:"payload"`
	RawBody    []byte                 `json:"-"`
	ReceivedAt time.Time              `json:"received_at"`
}

// Entry is one canonical lifelog entry produced by an adapter.
type Entry struct {
	Name            string                 `json:"name"`
	Category        string                 `json:"category"`
	Time            string                 `json:"time,omitempty"`
	DurationMinutes float64                `json:"duration_minutes,omitempty"`
	Metrics         map[string]float64     `json:"metrics,omitempty"`
	Notes           string                 `json:"notes,omitempty"`
	Tags            []string               `json:"tags,omitempty"`
	Metadata        map[string]interface{} `json:"metadata,omitempty"`
	Source          string                 `json:"source,omitempty"`
}

// SetMeta records a metadata value, allocating the map on first use.
func (e *Entry) SetMeta(key string, value interface{}) {
	if e.Metadata == nil {
		e.Metadata = make(map[string]interface{})
	}
	e.Metadata[key] = value
}

// SetMetric records a named metric, allocating the map on first use.
func (e *Entry) SetMetric(key string, value float64) {
	if e.Metrics == nil {
		e.Metrics = make(map[string]float64)
	}
	e.Metrics[key] = value
}

// HasTag reports whether the entry already carries a tag.
func (e *Entry) HasTag(tag string) bool {
	for _, t := range e.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// Result is one dated unit of work produced by adapting a delivery. A
// single delivery may yield several results when the payload spans dates.
type Result struct {
	Date         string                 `json:"date"`
	Entries      []*Entry               `json:"entries"`
	Totals       map[string]float64     `json:"totals,omitempty"`
	Metadata     map[string]interface{} `json:"metadata,omitempty"`
	ResponseBody map[string]interface{} `json:"-"`
	StatusCode   int                    `json:"-"`
	DedupeKey    string                 `json:"dedupe_key,omitempty"`
	EventID      string                 `json:"event_id,omitempty"`
	SkipStore    bool                   `json:"-"`
	Hydrated     bool                   `json:"hydrated,omitempty"`
}

// SetMeta records result-level metadata, allocating the map on first use.
func (r *Result) SetMeta(key string, value interface{}) {
	if r.Metadata == nil {
		r.Metadata = make(map[string]interface{})
	}
	r.Metadata[key] = value
}

// ArchiveRecord is the persistent dedup record for one processed delivery.
type ArchiveRecord struct {
	ID         int64     `json:"id"`
	Source     string    `json:"source"`
	Date       string    `json:"date"`
	EventType  string    `json:"event_type"`
	DedupeKey  string    `json:"dedupe_key"`
	ReceivedAt time.Time `json:"received_at"`
	Payload    string    `json:"payload,omitempty"`
}

// EventLogRecord is one row of the append-only audit trail.
type EventLogRecord struct {
	ID          int64     `json:"id"`
	Source      string    `json:"source"`
	EventType   string    `json:"event_type"`
	Day         string    `json:"day"`
	DedupeKey   string    `json:"dedupe_key,omitempty"`
	Status      string    `json:"status"`
	Body        string    `json:"body,omitempty"`
	ProcessedAt time.Time `json:"processed_at"`
}

// DailyEntry is a stored entry row joined to its date.
type DailyEntry struct {
	ID        int64     `json:"id"`
	Date      string    `json:"date"`
	Entry     *Entry    `json:"entry"`
	CreatedAt time.Time `json:"created_at"`
}
