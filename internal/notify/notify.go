// Package notify renders and delivers chat notifications for processed
// deliveries. Dispatch is best-effort: a failed notification is reported in
// the result, never as an error that could fail the webhook response.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	"lifelog-ingest/internal/common/logging"
)

// Event describes one notification to render and deliver.
type Event struct {
	Summary         string
	Escalation      string
	Context         map[string]string
	Actions         []string
	Source          string
	Kind            string
	ReceivedAt      time.Time
	SuppressMention bool
	// Channel overrides the dispatcher's default channel when set.
	Channel string
	// RequireDedicated refuses shared-credential fallback for sensitive
	// channels.
	RequireDedicated bool
}

// Result reports the dispatch outcome. Error is informational only.
type Result struct {
	Delivered bool
	Channel   string
	Error     string
}

// Dispatcher delivers rendered events over an outbound webhook.
type Dispatcher struct {
	webhookURL     string
	defaultChannel string
	mention        string
	creds          *CredentialResolver
	client         *http.Client
	logger         logging.Logger
	now            func() time.Time
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithMention sets the handle appended to summaries unless suppressed.
func WithMention(handle string) Option {
	return func(d *Dispatcher) { d.mention = handle }
}

// WithHTTPClient swaps the transport, used by tests.
func WithHTTPClient(client *http.Client) Option {
	return func(d *Dispatcher) { d.client = client }
}

// New creates a dispatcher. An empty webhookURL disables delivery: Dispatch
// renders but reports Delivered false.
func New(webhookURL, defaultChannel string, creds *CredentialResolver, logger logging.Logger, opts ...Option) *Dispatcher {
	if logger == nil {
		logger = logging.Global()
	}
	d := &Dispatcher{
		webhookURL:     webhookURL,
		defaultChannel: defaultChannel,
		creds:          creds,
		client:         &http.Client{Timeout: 10 * time.Second},
		logger:         logger,
		now:            time.Now,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Render produces the message text for an event. Layout is a bold summary
// line with an optional mention, an escalation line, a key/value context
// block, an actions block, and a source footer.
func (d *Dispatcher) Render(ev Event) string {
	var b strings.Builder

	b.WriteString("*" + ev.Summary + "*")
	if d.mention != "" && !ev.SuppressMention {
		b.WriteString(" " + d.mention)
	}
	b.WriteString("\n")

	if ev.Escalation != "" {
		b.WriteString(ev.Escalation + "\n")
	}

	if len(ev.Context) > 0 {
		keys := make([]string, 0, len(ev.Context))
		for k := range ev.Context {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		b.WriteString("\n")
		for _, k := range keys {
			b.WriteString(fmt.Sprintf("%s: %s\n", k, ev.Context[k]))
		}
	}

	if len(ev.Actions) > 0 {
		b.WriteString("\n")
		for _, action := range ev.Actions {
			b.WriteString("- " + action + "\n")
		}
	}

	received := ev.ReceivedAt
	if received.IsZero() {
		received = d.now()
	}
	b.WriteString(fmt.Sprintf("\n_%s/%s at %s_", ev.Source, ev.Kind, received.Format("15:04")))
	return b.String()
}

// Dispatch renders and delivers one event. Failures land in the result, not
// in an error return.
func (d *Dispatcher) Dispatch(ctx context.Context, ev Event) Result {
	channel := ev.Channel
	if channel == "" {
		channel = d.defaultChannel
	}
	res := Result{Channel: channel}

	if d.webhookURL == "" {
		res.Error = "notifications disabled"
		return res
	}

	token, err := d.creds.Resolve(channel, ev.RequireDedicated)
	if err != nil {
		res.Error = err.Error()
		d.logger.Warn("Notification credential resolution failed",
			logging.String("channel", channel), logging.Err(err))
		return res
	}

	body, err := json.Marshal(map[string]string{
		"channel": channel,
		"text":    d.Render(ev),
	})
	if err != nil {
		res.Error = err.Error()
		return res
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.webhookURL, bytes.NewReader(body))
	if err != nil {
		res.Error = err.Error()
		return res
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := d.client.Do(req)
	if err != nil {
		res.Error = err.Error()
		d.logger.Warn("Notification delivery failed",
			logging.String("channel", channel), logging.Err(err))
		return res
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		res.Error = fmt.Sprintf("notification endpoint returned %d", resp.StatusCode)
		d.logger.Warn("Notification delivery rejected",
			logging.String("channel", channel),
			logging.Int("status", resp.StatusCode))
		return res
	}

	res.Delivered = true
	return res
}
