package adapters

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "lifelog-ingest/internal/common/errors"
	"lifelog-ingest/internal/common/logging"
	"lifelog-ingest/internal/models"
)

type stubClient struct {
	payload  map[string]interface{}
	err      error
	calls    int
	lastKind string
	lastID   string
}

func (s *stubClient) Fetch(ctx context.Context, source, kind, id string) (map[string]interface{}, error) {
	s.calls++
	s.lastKind = kind
	s.lastID = id
	if s.err != nil {
		return nil, s.err
	}
	return s.payload, nil
}

func testLocation(t *testing.T) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)
	return loc
}

func TestWhoopWorkoutMapping(t *testing.T) {
	w := NewWhoop(nil, testLocation(t), logging.NopLogger{})

	results, err := w.Adapt(context.Background(), &models.Delivery{
		Source:    "whoop",
		EventType: "workout",
		Payload: map[string]interface{}{
			"id":     "w1",
			"type":   "workout",
			"sport":  "lacrosse",
			"start":  "2025-10-02T16:00:00Z",
			"end":    "2025-10-02T17:00:00Z",
			"strain": 12.3,
		},
	})
	require.NoError(t, err)
	require.Len(t, results, 1)

	res := results[0]
	assert.Equal(t, "2025-10-02", res.Date)
	assert.Equal(t, "whoop:w1", res.DedupeKey)
	assert.Equal(t, "w1", res.EventID)
	require.Len(t, res.Entries, 1)

	entry := res.Entries[0]
	assert.Equal(t, "Lacrosse", entry.Name)
	assert.Equal(t, models.CategoryTraining, entry.Category)
	assert.Equal(t, float64(60), entry.DurationMinutes)
	assert.Equal(t, 12.3, entry.Metrics["strain"])
	assert.Equal(t, "12:00", entry.Time)
}

func TestWhoopHydratesThinPayload(t *testing.T) {
	client := &stubClient{payload: map[string]interface{}{
		"id":     "abc123",
		"sport":  "running",
		"start":  "2025-10-02T11:00:00Z",
		"end":    "2025-10-02T11:30:00Z",
		"strain": 8.1,
	}}
	w := NewWhoop(client, testLocation(t), logging.NopLogger{})

	results, err := w.Adapt(context.Background(), &models.Delivery{
		Source:    "whoop",
		EventType: "workout",
		Payload: map[string]interface{}{
			"id":      "abc123",
			"user_id": "u-9",
			"type":    "workout",
		},
	})
	require.NoError(t, err)
	require.Len(t, results, 1)

	assert.Equal(t, 1, client.calls)
	assert.Equal(t, "workout", client.lastKind)
	assert.Equal(t, "abc123", client.lastID)

	res := results[0]
	assert.True(t, res.Hydrated)
	assert.Equal(t, "whoop:abc123", res.DedupeKey)

	entry := res.Entries[0]
	assert.Equal(t, "Running", entry.Name)
	assert.Equal(t, float64(30), entry.DurationMinutes)
	assert.Equal(t, true, entry.Metadata["webhook_hydrated"])
}

func TestWhoopCompletePayloadSkipsHydration(t *testing.T) {
	client := &stubClient{}
	w := NewWhoop(client, testLocation(t), logging.NopLogger{})

	_, err := w.Adapt(context.Background(), &models.Delivery{
		Source:    "whoop",
		EventType: "workout",
		Payload: map[string]interface{}{
			"id":    "w2",
			"sport": "yoga",
			"start": "2025-10-02T12:00:00Z",
		},
	})
	require.NoError(t, err)
	assert.Equal(t, 0, client.calls)
}

func TestWhoopHydrationFailureUsesThinPayload(t *testing.T) {
	client := &stubClient{err: errors.New("provider down")}
	w := NewWhoop(client, testLocation(t), logging.NopLogger{})

	results, err := w.Adapt(context.Background(), &models.Delivery{
		Source:    "whoop",
		EventType: "recovery",
		Payload: map[string]interface{}{
			"id":        "r1",
			"type":      "recovery",
			"timestamp": "2025-10-02T09:00:00Z",
		},
	})
	require.NoError(t, err)
	require.Len(t, results, 1)

	res := results[0]
	assert.False(t, res.Hydrated)
	entry := res.Entries[0]
	assert.Equal(t, "Recovery", entry.Name)
	assert.Equal(t, "provider down", entry.Metadata["webhook_hydration_failed"])
}

func TestWhoopKindMismatchPayloadWins(t *testing.T) {
	w := NewWhoop(nil, testLocation(t), logging.NopLogger{})

	// Delivered to the recovery endpoint but the payload says workout.
	results, err := w.Adapt(context.Background(), &models.Delivery{
		Source:    "whoop",
		EventType: "recovery",
		Payload: map[string]interface{}{
			"id":    "w3",
			"type":  "workout",
			"sport": "cycling",
			"start": "2025-10-02T16:00:00Z",
			"end":   "2025-10-02T17:00:00Z",
		},
	})
	require.NoError(t, err)

	entry := results[0].Entries[0]
	assert.Equal(t, models.CategoryTraining, entry.Category)
	assert.Equal(t, "Cycling", entry.Name)
	assert.Equal(t, true, entry.Metadata["webhook_kind_mismatch"])
	assert.Equal(t, "recovery", entry.Metadata["webhook_original_kind"])
}

func TestWhoopDateNotDerivable(t *testing.T) {
	w := NewWhoop(nil, testLocation(t), logging.NopLogger{})

	_, err := w.Adapt(context.Background(), &models.Delivery{
		Source:    "whoop",
		EventType: "workout",
		Payload: map[string]interface{}{
			"sport": "running",
		},
	})
	require.Error(t, err)
	assert.True(t, apperrors.IsType(err, apperrors.ErrTypeValidation))
}

func TestWhoopSleepAndRecoveryMetrics(t *testing.T) {
	w := NewWhoop(nil, testLocation(t), logging.NopLogger{})

	results, err := w.Adapt(context.Background(), &models.Delivery{
		Source:    "whoop",
		EventType: "sleep",
		Payload: map[string]interface{}{
			"id":    "s1",
			"start": "2025-10-01T23:00:00-04:00",
			"end":   "2025-10-02T07:00:00-04:00",
			"score": map[string]interface{}{
				"sleep_efficiency_percentage":  93.5,
				"sleep_performance_percentage": 88.0,
			},
		},
	})
	require.NoError(t, err)

	entry := results[0].Entries[0]
	assert.Equal(t, "Sleep", entry.Name)
	assert.Equal(t, float64(480), entry.DurationMinutes)
	assert.Equal(t, 93.5, entry.Metrics["sleep_efficiency"])
	assert.Equal(t, 88.0, entry.Metrics["sleep_performance"])
	// Date comes from the start timestamp.
	assert.Equal(t, "2025-10-01", results[0].Date)

	results, err = w.Adapt(context.Background(), &models.Delivery{
		Source:    "whoop",
		EventType: "recovery",
		Payload: map[string]interface{}{
			"id":         "r2",
			"created_at": "2025-10-02T06:30:00-04:00",
			"score": map[string]interface{}{
				"recovery_score":     67.0,
				"hrv_rmssd_milli":    54.2,
				"resting_heart_rate": 51.0,
			},
		},
	})
	require.NoError(t, err)

	entry = results[0].Entries[0]
	assert.Equal(t, 67.0, entry.Metrics["recovery_score"])
	assert.Equal(t, 54.2, entry.Metrics["hrv"])
	assert.Equal(t, 51.0, entry.Metrics["resting_heart_rate"])
}

func TestCalendarEvent(t *testing.T) {
	c := NewCalendar(testLocation(t), logging.NopLogger{})

	results, err := c.Adapt(context.Background(), &models.Delivery{
		Source:    "calendar",
		EventType: "event",
		Payload: map[string]interface{}{
			"id":       "ev-1",
			"title":    "Team standup",
			"start":    "2025-10-02T09:30:00-04:00",
			"end":      "2025-10-02T09:45:00-04:00",
			"location": "Zoom",
		},
	})
	require.NoError(t, err)
	require.Len(t, results, 1)

	res := results[0]
	assert.Equal(t, "2025-10-02", res.Date)
	assert.Equal(t, "calendar:event:ev-1", res.DedupeKey)

	entry := res.Entries[0]
	assert.Equal(t, "Team standup", entry.Name)
	assert.Equal(t, models.CategoryActivity, entry.Category)
	assert.Equal(t, "09:30", entry.Time)
	assert.Equal(t, float64(15), entry.DurationMinutes)
	assert.Equal(t, "Zoom", entry.Metadata["location"])
}

func TestCalendarMissingTitle(t *testing.T) {
	c := NewCalendar(testLocation(t), logging.NopLogger{})

	_, err := c.Adapt(context.Background(), &models.Delivery{
		Source:    "calendar",
		EventType: "event",
		Payload:   map[string]interface{}{"start": "2025-10-02T09:30:00Z"},
	})
	require.Error(t, err)
	assert.True(t, apperrors.IsType(err, apperrors.ErrTypeValidation))
}

func TestShortcutExplicitEntries(t *testing.T) {
	s := NewShortcut(testLocation(t), logging.NopLogger{})

	results, err := s.Adapt(context.Background(), &models.Delivery{
		Source:    "shortcut",
		EventType: "log",
		Payload: map[string]interface{}{
			"date":            "2025-10-02",
			"idempotency_key": "batch-7",
			"entries": []interface{}{
				map[string]interface{}{
					"name":     "Oatmeal",
					"category": "food",
					"time":     "8:15am",
					"metrics":  map[string]interface{}{"calories": 310.0},
				},
				map[string]interface{}{
					"name":     "Morning run",
					"category": "training",
					"duration": 25.0,
					"tags":     []interface{}{"cardio"},
				},
			},
		},
	})
	require.NoError(t, err)
	require.Len(t, results, 1)

	res := results[0]
	assert.Equal(t, "2025-10-02", res.Date)
	assert.Equal(t, "shortcut:2025-10-02:batch-7", res.DedupeKey)
	assert.Equal(t, map[string]interface{}{"status": "ok", "logged": 2}, res.ResponseBody)
	require.Len(t, res.Entries, 2)
	assert.Equal(t, 310.0, res.Entries[0].Metrics["calories"])
	assert.Equal(t, float64(25), res.Entries[1].DurationMinutes)
	assert.True(t, res.Entries[1].HasTag("cardio"))
}

func TestShortcutFansOutByEntryDate(t *testing.T) {
	s := NewShortcut(testLocation(t), logging.NopLogger{})

	results, err := s.Adapt(context.Background(), &models.Delivery{
		Source:    "shortcut",
		EventType: "log",
		Payload: map[string]interface{}{
			"entries": []interface{}{
				map[string]interface{}{"name": "Dinner", "category": "food", "date": "2025-10-01"},
				map[string]interface{}{"name": "Breakfast", "category": "food", "date": "2025-10-02"},
			},
		},
	})
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "2025-10-01", results[0].Date)
	assert.Equal(t, "2025-10-02", results[1].Date)
}

func TestShortcutSkipStore(t *testing.T) {
	s := NewShortcut(testLocation(t), logging.NopLogger{})

	results, err := s.Adapt(context.Background(), &models.Delivery{
		Source:    "shortcut",
		EventType: "log",
		Payload: map[string]interface{}{
			"skip_store": true,
			"entries": []interface{}{
				map[string]interface{}{"name": "Dry run", "category": "note", "date": "2025-10-02"},
			},
		},
	})
	require.NoError(t, err)
	assert.True(t, results[0].SkipStore)
}

func TestShortcutRejectsUnknownCategory(t *testing.T) {
	s := NewShortcut(testLocation(t), logging.NopLogger{})

	_, err := s.Adapt(context.Background(), &models.Delivery{
		Source:    "shortcut",
		EventType: "log",
		Payload: map[string]interface{}{
			"entries": []interface{}{
				map[string]interface{}{"name": "Mystery", "category": "banana"},
			},
		},
	})
	require.Error(t, err)
	assert.True(t, apperrors.IsType(err, apperrors.ErrTypeValidation))
}

func TestShortcutSingleEntryPayload(t *testing.T) {
	s := NewShortcut(testLocation(t), logging.NopLogger{})
	s.now = func() time.Time {
		return time.Date(2025, 10, 2, 14, 0, 0, 0, time.UTC)
	}

	results, err := s.Adapt(context.Background(), &models.Delivery{
		Source:    "shortcut",
		EventType: "log",
		Payload: map[string]interface{}{
			"name":     "Espresso",
			"category": "drink",
		},
	})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "2025-10-02", results[0].Date)
	assert.Equal(t, "Espresso", results[0].Entries[0].Name)
	// No idempotency key, so dedup is bypassed.
	assert.Empty(t, results[0].DedupeKey)
}

func TestIsThin(t *testing.T) {
	assert.True(t, isThin(map[string]interface{}{
		"id": "abc", "user_id": "u1", "type": "workout", "timestamp": "t",
	}))
	assert.False(t, isThin(map[string]interface{}{
		"id": "abc", "sport": "running",
	}))
	assert.False(t, isThin(map[string]interface{}{
		"id": "abc", "data": map[string]interface{}{"sport": "running"},
	}))
	// A scalar data field is still envelope noise.
	assert.True(t, isThin(map[string]interface{}{
		"id": "abc", "data": "opaque",
	}))
}

func TestNumberFieldFallbacks(t *testing.T) {
	payload := map[string]interface{}{
		"score":   map[string]interface{}{"strain": 12.3},
		"stringy": "4.5",
		"bad":     "not a number",
	}

	v, ok := numberField(payload, "strain", "score.strain")
	require.True(t, ok)
	assert.Equal(t, 12.3, v)

	v, ok = numberField(payload, "stringy")
	require.True(t, ok)
	assert.Equal(t, 4.5, v)

	_, ok = numberField(payload, "bad", "missing")
	assert.False(t, ok)
}

func TestSportNameFallback(t *testing.T) {
	assert.Equal(t, "Lacrosse", SportName("lacrosse"))
	assert.Equal(t, "Lacrosse", SportName("LACROSSE"))
	assert.Equal(t, "Goat Yoga", SportName("goat_yoga"))
	assert.Equal(t, "Workout", SportName(""))
}

func TestRegistryLookup(t *testing.T) {
	r := NewRegistry(nil, testLocation(t), logging.NopLogger{})

	for _, source := range []string{"whoop", "calendar", "shortcut"} {
		a, ok := r.Get(source)
		require.True(t, ok, source)
		assert.Equal(t, source, a.Source())
	}
	_, ok := r.Get("unknown")
	assert.False(t, ok)
}
