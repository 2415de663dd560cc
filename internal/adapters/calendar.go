package adapters

import (
	"context"
	"fmt"
	"time"

	"lifelog-ingest/internal/common/errors"
	"lifelog-ingest/internal/common/logging"
	"lifelog-ingest/internal/models"
)

// Calendar adapts calendar event deliveries. Payloads arrive complete, so
// no hydration stage runs.
type Calendar struct {
	loc    *time.Location
	logger logging.Logger
}

// NewCalendar creates the calendar adapter.
func NewCalendar(loc *time.Location, logger logging.Logger) *Calendar {
	if logger == nil {
		logger = logging.Global()
	}
	return &Calendar{loc: loc, logger: logger}
}

func (c *Calendar) Source() string { return "calendar" }

func (c *Calendar) Adapt(ctx context.Context, delivery *models.Delivery) ([]*models.Result, error) {
	payload := delivery.Payload
	kind, mismatch := resolveKind(payload, delivery.EventType, c.logger)

	title, ok := stringField(payload, "title", "summary", "name")
	if !ok {
		return nil, errors.ValidationError("calendar event has no title")
	}

	date, err := deriveDate(payload, c.loc, "start", "start_time", "begin", "end")
	if err != nil {
		return nil, err
	}

	entry := &models.Entry{
		Name:     title,
		Category: models.CategoryActivity,
		Time:     localTime(payload, c.loc, "start", "start_time", "begin"),
		Tags:     []string{"calendar"},
		Source:   c.Source(),
	}

	if minutes, ok := durationMinutes(payload, c.loc,
		[]string{"start", "start_time", "begin"},
		[]string{"end", "end_time", "finish"}); ok {
		entry.DurationMinutes = minutes
	}
	if location, ok := stringField(payload, "location", "venue"); ok {
		entry.SetMeta("location", location)
	}
	if attendees, ok := numberField(payload, "attendee_count", "attendees"); ok {
		entry.SetMetric("attendees", attendees)
	}
	if notes, ok := stringField(payload, "description", "notes"); ok {
		entry.Notes = notes
	}
	markProvenance(entry, HydrationOutcome{State: HydrationThin}, mismatch, delivery.EventType)

	id := eventID(payload)
	res := &models.Result{
		Date:    date,
		Entries: []*models.Entry{entry},
		EventID: id,
	}
	if id != "" {
		res.DedupeKey = fmt.Sprintf("%s:%s:%s", c.Source(), kind, id)
	}
	return []*models.Result{res}, nil
}
