// Package handlers carries the HTTP surface: the webhook orchestrator, the
// read-only inspection API and health reporting.
package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"lifelog-ingest/internal/adapters"
	"lifelog-ingest/internal/auth"
	"lifelog-ingest/internal/common/errors"
	"lifelog-ingest/internal/common/logging"
	"lifelog-ingest/internal/config"
	"lifelog-ingest/internal/dailystore"
	"lifelog-ingest/internal/dedup"
	"lifelog-ingest/internal/enrich"
	"lifelog-ingest/internal/eventlog"
	"lifelog-ingest/internal/locks"
	"lifelog-ingest/internal/metrics"
	"lifelog-ingest/internal/models"
	"lifelog-ingest/internal/notify"
	"lifelog-ingest/internal/signature"
	"lifelog-ingest/internal/storage"
)

// Handlers holds the wired pipeline dependencies.
type Handlers struct {
	cfg       *config.Config
	verifiers map[string]*signature.Verifier
	registry  *adapters.Registry
	dedup     dedup.Checker
	events    *eventlog.Logger
	enricher  *enrich.Enricher
	notifier  *notify.Dispatcher
	daily     dailystore.Store
	store     storage.Storage
	locks     locks.Manager
	metrics   *metrics.Metrics
	auth      *auth.Service
	logger    logging.Logger
}

// New wires the handler set. notifier and authService may be nil when the
// corresponding surface is disabled.
func New(
	cfg *config.Config,
	registry *adapters.Registry,
	checker dedup.Checker,
	events *eventlog.Logger,
	enricher *enrich.Enricher,
	notifier *notify.Dispatcher,
	daily dailystore.Store,
	store storage.Storage,
	lockMgr locks.Manager,
	m *metrics.Metrics,
	authService *auth.Service,
	logger logging.Logger,
) *Handlers {
	if logger == nil {
		logger = logging.Global()
	}
	verifiers := make(map[string]*signature.Verifier)
	for name, sc := range cfg.Sources {
		verifiers[name] = signature.NewVerifier(name, sc, logger)
	}
	return &Handlers{
		cfg:       cfg,
		verifiers: verifiers,
		registry:  registry,
		dedup:     checker,
		events:    events,
		enricher:  enricher,
		notifier:  notifier,
		daily:     daily,
		store:     store,
		locks:     lockMgr,
		metrics:   m,
		auth:      authService,
		logger:    logger,
	}
}

// Router builds the full route table.
func (h *Handlers) Router() *mux.Router {
	r := mux.NewRouter()

	webhook := http.Handler(http.HandlerFunc(h.HandleWebhook))
	if h.metrics != nil {
		webhook = h.metrics.Middleware("/webhooks/{source}/{event}")(webhook)
		r.Handle("/metrics", h.metrics.Handler()).Methods(http.MethodGet)
	}
	r.Handle("/webhooks/{source}/{event}", webhook).Methods(http.MethodPost)
	r.HandleFunc("/health", h.HandleHealth).Methods(http.MethodGet)

	if h.auth != nil {
		r.HandleFunc("/api/login", h.HandleLogin).Methods(http.MethodPost)
		api := r.PathPrefix("/api").Subrouter()
		api.Use(h.auth.Middleware)
		api.HandleFunc("/events", h.HandleListEvents).Methods(http.MethodGet)
		api.HandleFunc("/archive/{source}/{date}", h.HandleListArchive).Methods(http.MethodGet)
		api.HandleFunc("/entries/{date}", h.HandleListEntries).Methods(http.MethodGet)
	}
	return r
}

// HandleWebhook runs one delivery through the pipeline: verify, adapt,
// dedup, audit, enrich, notify, persist.
func (h *Handlers) HandleWebhook(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	source, event := vars["source"], vars["event"]
	ctx := r.Context()

	sourceCfg, known := h.cfg.Source(source)
	if !known || !sourceCfg.Enabled {
		writeJSON(w, http.StatusNotFound, map[string]interface{}{"status": "unknown source"})
		return
	}
	if h.metrics != nil {
		h.metrics.WebhooksReceived.WithLabelValues(source, event).Inc()
	}

	body, err := signature.PreserveRequestBody(r)
	if err != nil {
		h.respondError(w, source, event, errors.InternalError("body read failed", err))
		return
	}

	if err := h.verifiers[source].Verify(r, body); err != nil {
		if h.metrics != nil {
			h.metrics.WebhooksRejected.WithLabelValues(source).Inc()
		}
		h.respondError(w, source, event, err)
		return
	}

	var payload map[string]interface{}
	if err := json.Unmarshal(body, &payload); err != nil {
		h.respondError(w, source, event, errors.ValidationError("body is not a JSON object"))
		return
	}

	adapter, ok := h.registry.Get(source)
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]interface{}{"status": "unknown source"})
		return
	}

	delivery := &models.Delivery{
		Source:     source,
		EventType:  event,
		Payload:    payload,
		RawBody:    body,
		ReceivedAt: time.Now(),
	}
	results, err := adapter.Adapt(ctx, delivery)
	if err != nil {
		h.respondError(w, source, event, err)
		return
	}

	processed := 0
	stored := 0
	var firstFresh *models.Result
	for _, res := range results {
		key := dedup.Key{Source: source, EventType: event, Date: res.Date, DedupeKey: res.DedupeKey}

		seen, err := h.dedup.Seen(ctx, key)
		if err != nil {
			h.logger.Warn("Dedup check failed, treating as fresh",
				logging.String("key", key.String()), logging.Err(err))
		}
		if seen {
			h.logger.Debug("Duplicate delivery skipped", logging.String("key", key.String()))
			continue
		}
		if firstFresh == nil {
			firstFresh = res
		}

		h.events.Record(ctx, source, event, res.Date, res.DedupeKey, string(body))

		bucket := h.enricher.EnrichResult(res)
		h.notifyResult(ctx, source, event, res, bucket, delivery.ReceivedAt)

		if !res.SkipStore {
			if err := h.persistResult(ctx, source, event, res, body); err != nil {
				if h.metrics != nil {
					h.metrics.WebhooksFailed.WithLabelValues(source, event).Inc()
				}
				h.respondError(w, source, event, err)
				return
			}
			stored += len(res.Entries)
		}

		if err := h.dedup.Remember(ctx, key); err != nil {
			h.logger.Warn("Dedup remember failed", logging.String("key", key.String()), logging.Err(err))
		}
		processed++
	}

	if processed == 0 {
		if h.metrics != nil {
			h.metrics.WebhooksSkipped.WithLabelValues(source, event).Inc()
		}
		writeJSON(w, http.StatusAccepted, map[string]interface{}{"status": "skipped"})
		return
	}

	response := map[string]interface{}{"status": "ok", "results": processed, "entries": stored}
	status := http.StatusOK
	if firstFresh != nil && firstFresh.ResponseBody != nil {
		response = firstFresh.ResponseBody
		if firstFresh.StatusCode != 0 {
			status = firstFresh.StatusCode
		}
	}
	writeJSON(w, status, response)
}

// persistResult appends the archive record and the daily entries under the
// partition lock. Both writes are fatal for the delivery.
func (h *Handlers) persistResult(ctx context.Context, source, event string, res *models.Result, body []byte) error {
	release, err := h.locks.Acquire(ctx, source+"|"+res.Date)
	if err != nil {
		return err
	}
	defer release()

	if err := h.store.AppendArchiveRecord(ctx, &models.ArchiveRecord{
		Source:     source,
		Date:       res.Date,
		EventType:  event,
		DedupeKey:  res.DedupeKey,
		ReceivedAt: time.Now(),
		Payload:    string(body),
	}); err != nil {
		return errors.PersistenceError("archive append failed", err)
	}

	if err := h.daily.AppendEntries(ctx, dailystore.AppendRequest{
		Date:     res.Date,
		Entries:  res.Entries,
		Metadata: res.Metadata,
	}); err != nil {
		return err
	}

	if h.metrics != nil {
		for _, entry := range res.Entries {
			h.metrics.EntriesStored.WithLabelValues(source, entry.Category).Inc()
		}
	}
	return nil
}

// notifyResult dispatches a best-effort notification for a fresh result.
func (h *Handlers) notifyResult(ctx context.Context, source, event string, res *models.Result, bucket string, receivedAt time.Time) {
	if h.notifier == nil || len(res.Entries) == 0 {
		return
	}
	first := res.Entries[0]
	summary := first.Name
	if len(res.Entries) > 1 {
		summary = fmt.Sprintf("%s and %d more", first.Name, len(res.Entries)-1)
	}
	dispatch := h.notifier.Dispatch(ctx, notify.Event{
		Summary: summary,
		Context: map[string]string{
			"date":        res.Date,
			"time_of_day": bucket,
			"entries":     strconv.Itoa(len(res.Entries)),
		},
		Source:     source,
		Kind:       event,
		ReceivedAt: receivedAt,
	})
	if !dispatch.Delivered {
		h.logger.Debug("Notification not delivered",
			logging.String("channel", dispatch.Channel),
			logging.String("reason", dispatch.Error))
	}
}

// HandleLogin issues a session token for the inspection API.
func (h *Handlers) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]interface{}{"error": "invalid request body"})
		return
	}
	token, err := h.auth.Login(req.Username, req.Password)
	if err != nil {
		writeJSON(w, http.StatusUnauthorized, map[string]interface{}{"error": "invalid credentials"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"token": token})
}

// HandleListEvents serves the audit trail with optional filters.
func (h *Handlers) HandleListEvents(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filters := storage.EventLogFilters{
		Source:    q.Get("source"),
		EventType: q.Get("event_type"),
		Day:       q.Get("day"),
	}
	limit, _ := strconv.Atoi(q.Get("limit"))
	offset, _ := strconv.Atoi(q.Get("offset"))

	records, err := h.events.List(r.Context(), filters, limit, offset)
	if err != nil {
		h.logger.Error("Event log list failed", err)
		writeJSON(w, http.StatusInternalServerError, map[string]interface{}{"error": "list failed"})
		return
	}
	if records == nil {
		records = []*models.EventLogRecord{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"events": records, "count": len(records)})
}

// HandleListArchive serves the archive records of one (source, date)
// partition.
func (h *Handlers) HandleListArchive(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	source, date := vars["source"], vars["date"]

	if _, err := time.Parse("2006-01-02", date); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]interface{}{"error": "date must be YYYY-MM-DD"})
		return
	}

	records, err := h.store.ListArchiveRecords(r.Context(), source, date)
	if err != nil {
		h.logger.Error("Archive list failed", err)
		writeJSON(w, http.StatusInternalServerError, map[string]interface{}{"error": "list failed"})
		return
	}
	if records == nil {
		records = []*models.ArchiveRecord{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"records": records, "count": len(records)})
}

// HandleListEntries serves the stored entries of one date.
func (h *Handlers) HandleListEntries(w http.ResponseWriter, r *http.Request) {
	date := mux.Vars(r)["date"]
	if _, err := time.Parse("2006-01-02", date); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]interface{}{"error": "date must be YYYY-MM-DD"})
		return
	}

	entries, err := h.store.ListDailyEntries(r.Context(), date)
	if err != nil {
		h.logger.Error("Daily entry list failed", err)
		writeJSON(w, http.StatusInternalServerError, map[string]interface{}{"error": "list failed"})
		return
	}
	if entries == nil {
		entries = []*models.DailyEntry{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"entries": entries, "count": len(entries)})
}

// HandleHealth reports storage health.
func (h *Handlers) HandleHealth(w http.ResponseWriter, r *http.Request) {
	if err := h.store.Health(); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]interface{}{"status": "unhealthy", "error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"status": "ok"})
}

// respondError maps an application error to its HTTP status. Rejections map
// to 401, validation to 400, everything else to 500.
func (h *Handlers) respondError(w http.ResponseWriter, source, event string, err error) {
	switch {
	case errors.IsRejection(err):
		h.logger.Warn("Delivery rejected",
			logging.String("source", source),
			logging.String("event", event),
			logging.Err(err))
		writeJSON(w, http.StatusUnauthorized, map[string]interface{}{"status": "unauthorized"})
	case errors.IsType(err, errors.ErrTypeValidation):
		h.logger.Warn("Delivery invalid",
			logging.String("source", source),
			logging.String("event", event),
			logging.Err(err))
		writeJSON(w, http.StatusBadRequest, map[string]interface{}{"status": "invalid", "error": err.Error()})
	default:
		h.logger.Error("Delivery processing failed", err,
			logging.String("source", source),
			logging.String("event", event))
		writeJSON(w, http.StatusInternalServerError, map[string]interface{}{"status": "error"})
	}
}

func writeJSON(w http.ResponseWriter, status int, body map[string]interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
