package adapters

import (
	"context"
	"fmt"
	"strings"
	"time"

	"lifelog-ingest/internal/common/logging"
	"lifelog-ingest/internal/models"
	"lifelog-ingest/internal/providerapi"
)

// Whoop adapts wearable deliveries. Three kinds exist: workout, sleep and
// recovery. Thin payloads are hydrated from the provider API before mapping.
type Whoop struct {
	client providerapi.Client
	loc    *time.Location
	logger logging.Logger
}

// NewWhoop creates the wearable adapter.
func NewWhoop(client providerapi.Client, loc *time.Location, logger logging.Logger) *Whoop {
	if logger == nil {
		logger = logging.Global()
	}
	return &Whoop{client: client, loc: loc, logger: logger}
}

func (w *Whoop) Source() string { return "whoop" }

// sportNames maps provider sport identifiers to entry names. Unknown sports
// fall back to a capitalized form of the raw value.
var sportNames = map[string]string{
	"lacrosse":         "Lacrosse",
	"running":          "Running",
	"cycling":          "Cycling",
	"swimming":         "Swimming",
	"weightlifting":    "Weightlifting",
	"functional":       "Functional Training",
	"hiit":             "HIIT",
	"yoga":             "Yoga",
	"walking":          "Walking",
	"basketball":       "Basketball",
	"soccer":           "Soccer",
	"tennis":           "Tennis",
	"rowing":           "Rowing",
	"hiking":           "Hiking",
	"climbing":         "Climbing",
	"skiing":           "Skiing",
	"martial_arts":     "Martial Arts",
	"boxing":           "Boxing",
	"pilates":          "Pilates",
	"spin":             "Spin",
	"crossfit":         "CrossFit",
	"stretching":       "Stretching",
	"meditation":       "Meditation",
	"elliptical":       "Elliptical",
	"stairmaster":      "Stairmaster",
	"jump_rope":        "Jump Rope",
	"golf":             "Golf",
	"surfing":          "Surfing",
	"skateboarding":    "Skateboarding",
	"snowboarding":     "Snowboarding",
	"paddleboarding":   "Paddleboarding",
	"track_and_field":  "Track & Field",
	"mountain_biking":  "Mountain Biking",
	"powerlifting":     "Powerlifting",
	"rock_climbing":    "Rock Climbing",
	"ice_hockey":       "Ice Hockey",
	"field_hockey":     "Field Hockey",
	"rugby":            "Rugby",
	"volleyball":       "Volleyball",
	"ultimate_frisbee": "Ultimate Frisbee",
}

// SportName resolves the entry name for a sport identifier.
func SportName(sport string) string {
	if name, ok := sportNames[strings.ToLower(sport)]; ok {
		return name
	}
	if sport == "" {
		return "Workout"
	}
	words := strings.Fields(strings.ReplaceAll(strings.ToLower(sport), "_", " "))
	for i, word := range words {
		words[i] = strings.ToUpper(word[:1]) + word[1:]
	}
	return strings.Join(words, " ")
}

func (w *Whoop) Adapt(ctx context.Context, delivery *models.Delivery) ([]*models.Result, error) {
	payload := delivery.Payload
	kind, mismatch := resolveKind(payload, delivery.EventType, w.logger)
	originalKind := delivery.EventType

	payload, outcome := hydrate(ctx, w.client, w.Source(), kind, payload, w.logger)

	var (
		entry *models.Entry
		err   error
	)
	switch kind {
	case "workout":
		entry, err = w.workoutEntry(payload)
	case "sleep":
		entry, err = w.sleepEntry(payload)
	case "recovery":
		entry, err = w.recoveryEntry(payload)
	default:
		entry, err = passthroughEntry(payload, w.Source(), kind)
	}
	if err != nil {
		return nil, err
	}

	date, err := deriveDate(payload, w.loc, "start", "end", "created_at", "updated_at", "timestamp")
	if err != nil {
		return nil, err
	}

	entry.Source = w.Source()
	markProvenance(entry, outcome, mismatch, originalKind)

	id := eventID(delivery.Payload)
	res := &models.Result{
		Date:     date,
		Entries:  []*models.Entry{entry},
		EventID:  id,
		Hydrated: outcome.State == HydrationDone,
	}
	if id != "" {
		res.DedupeKey = fmt.Sprintf("%s:%s", w.Source(), id)
	}
	return []*models.Result{res}, nil
}

func (w *Whoop) workoutEntry(payload map[string]interface{}) (*models.Entry, error) {
	sport, _ := stringField(payload, "sport", "sport_name", "activity", "score.sport")
	entry := &models.Entry{
		Name:     SportName(sport),
		Category: models.CategoryTraining,
		Time:     localTime(payload, w.loc, "start"),
		Tags:     []string{"workout"},
	}

	if minutes, ok := durationMinutes(payload, w.loc, []string{"start"}, []string{"end"}); ok {
		entry.DurationMinutes = minutes
	}
	if strain, ok := numberField(payload, "strain", "score.strain", "day_strain"); ok {
		entry.SetMetric("strain", strain)
	}
	if calories, ok := numberField(payload, "calories", "score.calories", "kilocalories"); ok {
		entry.SetMetric("calories", calories)
	}
	if avg, ok := numberField(payload, "average_heart_rate", "avg_heart_rate", "score.average_heart_rate"); ok {
		entry.SetMetric("avg_heart_rate", avg)
	}
	if max, ok := numberField(payload, "max_heart_rate", "score.max_heart_rate"); ok {
		entry.SetMetric("max_heart_rate", max)
	}
	if distance, ok := numberField(payload, "distance_meters", "distance", "score.distance_meter"); ok {
		entry.SetMetric("distance_meters", distance)
	}
	return entry, nil
}

func (w *Whoop) sleepEntry(payload map[string]interface{}) (*models.Entry, error) {
	entry := &models.Entry{
		Name:     "Sleep",
		Category: models.CategoryActivity,
		Time:     localTime(payload, w.loc, "start"),
		Tags:     []string{"sleep"},
	}

	if minutes, ok := durationMinutes(payload, w.loc, []string{"start"}, []string{"end"}); ok {
		entry.DurationMinutes = minutes
	}
	if efficiency, ok := numberField(payload, "sleep_efficiency", "efficiency", "score.sleep_efficiency_percentage"); ok {
		entry.SetMetric("sleep_efficiency", efficiency)
	}
	if performance, ok := numberField(payload, "sleep_performance", "score.sleep_performance_percentage"); ok {
		entry.SetMetric("sleep_performance", performance)
	}
	if need, ok := numberField(payload, "sleep_need_minutes", "score.sleep_needed.need_from_sleep_debt_milli"); ok {
		entry.SetMetric("sleep_need_minutes", need)
	}
	if disturbances, ok := numberField(payload, "disturbances", "score.stage_summary.disturbance_count"); ok {
		entry.SetMetric("disturbances", disturbances)
	}
	return entry, nil
}

func (w *Whoop) recoveryEntry(payload map[string]interface{}) (*models.Entry, error) {
	entry := &models.Entry{
		Name:     "Recovery",
		Category: models.CategoryNote,
		Tags:     []string{"recovery"},
	}

	if score, ok := numberField(payload, "recovery_score", "score.recovery_score", "recovery"); ok {
		entry.SetMetric("recovery_score", score)
	}
	if hrv, ok := numberField(payload, "hrv", "hrv_rmssd", "score.hrv_rmssd_milli"); ok {
		entry.SetMetric("hrv", hrv)
	}
	if rhr, ok := numberField(payload, "resting_heart_rate", "rhr", "score.resting_heart_rate"); ok {
		entry.SetMetric("resting_heart_rate", rhr)
	}
	if spo2, ok := numberField(payload, "spo2", "score.spo2_percentage"); ok {
		entry.SetMetric("spo2", spo2)
	}
	return entry, nil
}
