package adapters

import (
	"context"
	"fmt"
	"time"

	"lifelog-ingest/internal/common/errors"
	"lifelog-ingest/internal/common/logging"
	"lifelog-ingest/internal/models"
)

// Shortcut adapts deliveries from the phone automation. Unlike provider
// webhooks the payload already carries explicit entries, so the adapter
// validates and passes them through. Entries may carry their own dates, in
// which case the delivery fans out into one result per date.
type Shortcut struct {
	loc    *time.Location
	logger logging.Logger
	now    func() time.Time
}

// NewShortcut creates the automation adapter.
func NewShortcut(loc *time.Location, logger logging.Logger) *Shortcut {
	if logger == nil {
		logger = logging.Global()
	}
	return &Shortcut{loc: loc, logger: logger, now: time.Now}
}

func (s *Shortcut) Source() string { return "shortcut" }

func (s *Shortcut) Adapt(ctx context.Context, delivery *models.Delivery) ([]*models.Result, error) {
	payload := delivery.Payload

	raw, ok := payload["entries"].([]interface{})
	if !ok {
		// A single entry may also arrive as the payload itself.
		if _, hasName := stringField(payload, "name"); !hasName {
			return nil, errors.ValidationError("payload has no entries")
		}
		raw = []interface{}{payload}
	}
	if len(raw) == 0 {
		return nil, errors.ValidationError("entries list is empty")
	}

	defaultDate := s.defaultDate(payload)

	byDate := make(map[string][]*models.Entry)
	var dates []string
	for i, item := range raw {
		obj, ok := item.(map[string]interface{})
		if !ok {
			return nil, errors.ValidationError(fmt.Sprintf("entry %d is not an object", i))
		}
		entry, date, err := s.parseEntry(obj, defaultDate)
		if err != nil {
			return nil, err
		}
		if _, seen := byDate[date]; !seen {
			dates = append(dates, date)
		}
		byDate[date] = append(byDate[date], entry)
	}

	skipStore, _ := payload["skip_store"].(bool)
	idempotencyKey, _ := stringField(payload, "idempotency_key")
	logged := 0
	for _, entries := range byDate {
		logged += len(entries)
	}

	var results []*models.Result
	for _, date := range dates {
		res := &models.Result{
			Date:      date,
			Entries:   byDate[date],
			SkipStore: skipStore,
			ResponseBody: map[string]interface{}{
				"status": "ok",
				"logged": logged,
			},
		}
		if idempotencyKey != "" {
			res.DedupeKey = fmt.Sprintf("%s:%s:%s", s.Source(), date, idempotencyKey)
		}
		results = append(results, res)
	}
	return results, nil
}

// defaultDate is the payload date when present, otherwise today in the
// reporting zone. Automation entries are logged as they happen, so unlike
// provider webhooks a missing date means now.
func (s *Shortcut) defaultDate(payload map[string]interface{}) string {
	if date, ok := stringField(payload, "date"); ok {
		if _, err := time.Parse("2006-01-02", date); err == nil {
			return date
		}
	}
	return s.now().In(s.loc).Format("2006-01-02")
}

func (s *Shortcut) parseEntry(obj map[string]interface{}, defaultDate string) (*models.Entry, string, error) {
	name, ok := stringField(obj, "name")
	if !ok {
		return nil, "", errors.ValidationError("entry has no name")
	}
	category, _ := stringField(obj, "category")
	if category == "" {
		category = models.CategoryNote
	}
	if !models.ValidCategory(category) {
		return nil, "", errors.ValidationError(fmt.Sprintf("unknown category %q", category))
	}

	entry := &models.Entry{
		Name:     name,
		Category: category,
		Source:   s.Source(),
	}
	if t, ok := stringField(obj, "time"); ok {
		entry.Time = t
	}
	if minutes, ok := numberField(obj, "duration_minutes", "duration"); ok {
		entry.DurationMinutes = minutes
	}
	if notes, ok := stringField(obj, "notes"); ok {
		entry.Notes = notes
	}
	if metrics, ok := obj["metrics"].(map[string]interface{}); ok {
		for key := range metrics {
			if value, ok := numberField(metrics, key); ok {
				entry.SetMetric(key, value)
			}
		}
	}
	if tags, ok := obj["tags"].([]interface{}); ok {
		for _, tag := range tags {
			if t, ok := tag.(string); ok && t != "" && !entry.HasTag(t) {
				entry.Tags = append(entry.Tags, t)
			}
		}
	}

	date := defaultDate
	if d, ok := stringField(obj, "date"); ok {
		if _, err := time.Parse("2006-01-02", d); err != nil {
			return nil, "", errors.ValidationError(fmt.Sprintf("entry date %q is not YYYY-MM-DD", d))
		}
		date = d
	}
	return entry, date, nil
}
