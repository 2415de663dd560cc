package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lifelog-ingest/internal/common/logging"
)

func resolverWithEnv(t *testing.T, env map[string]string, dir, shared string) *CredentialResolver {
	t.Helper()
	r := NewCredentialResolver(dir, shared)
	r.lookupEnv = func(key string) (string, bool) {
		v, ok := env[key]
		return v, ok
	}
	return r
}

func TestCredentialResolutionOrder(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "alerts"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "alerts", "token"), []byte("file-token\n"), 0o600))

	// Environment beats the token file.
	r := resolverWithEnv(t, map[string]string{"NOTIFY_ALERTS_TOKEN": "env-token"}, dir, "shared-token")
	token, err := r.Resolve("alerts", false)
	require.NoError(t, err)
	assert.Equal(t, "env-token", token)

	// Token file beats the shared fallback.
	r = resolverWithEnv(t, nil, dir, "shared-token")
	token, err = r.Resolve("alerts", false)
	require.NoError(t, err)
	assert.Equal(t, "file-token", token)

	// Unconfigured channel falls back to the shared token.
	token, err = r.Resolve("other", false)
	require.NoError(t, err)
	assert.Equal(t, "shared-token", token)
}

func TestCredentialDedicatedFailsClosed(t *testing.T) {
	r := resolverWithEnv(t, nil, t.TempDir(), "shared-token")

	_, err := r.Resolve("secure", true)
	require.Error(t, err)

	// Without the dedicated requirement the shared token would have served.
	token, err := r.Resolve("secure", false)
	require.NoError(t, err)
	assert.Equal(t, "shared-token", token)
}

func TestCredentialNoneAvailable(t *testing.T) {
	r := resolverWithEnv(t, nil, t.TempDir(), "")
	_, err := r.Resolve("alerts", false)
	require.Error(t, err)
}

func TestRenderLayout(t *testing.T) {
	d := New("", "lifelog", nil, logging.NopLogger{}, WithMention("@sam"))

	text := d.Render(Event{
		Summary:    "Workout logged",
		Escalation: "Strain above weekly average",
		Context:    map[string]string{"sport": "Lacrosse", "duration": "60m"},
		Actions:    []string{"Review recovery before tomorrow"},
		Source:     "whoop",
		Kind:       "workout",
		ReceivedAt: time.Date(2025, 10, 2, 16, 17, 0, 0, time.UTC),
	})

	assert.Contains(t, text, "*Workout logged* @sam\n")
	assert.Contains(t, text, "Strain above weekly average\n")
	// Context keys render sorted.
	assert.Contains(t, text, "duration: 60m\nsport: Lacrosse\n")
	assert.Contains(t, text, "- Review recovery before tomorrow\n")
	assert.Contains(t, text, "_whoop/workout at 16:17_")
}

func TestRenderSuppressedMention(t *testing.T) {
	d := New("", "lifelog", nil, logging.NopLogger{}, WithMention("@sam"))

	text := d.Render(Event{
		Summary:         "Routine entry",
		Source:          "shortcut",
		Kind:            "log",
		ReceivedAt:      time.Date(2025, 10, 2, 8, 0, 0, 0, time.UTC),
		SuppressMention: true,
	})
	assert.NotContains(t, text, "@sam")
}

func TestDispatchDelivers(t *testing.T) {
	var gotAuth string
	var gotBody map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	creds := resolverWithEnv(t, map[string]string{"NOTIFY_LIFELOG_TOKEN": "tok"}, "", "")
	d := New(srv.URL, "lifelog", creds, logging.NopLogger{})

	res := d.Dispatch(context.Background(), Event{
		Summary: "Entry stored",
		Source:  "shortcut",
		Kind:    "log",
	})
	assert.True(t, res.Delivered)
	assert.Empty(t, res.Error)
	assert.Equal(t, "Bearer tok", gotAuth)
	assert.Equal(t, "lifelog", gotBody["channel"])
	assert.Contains(t, gotBody["text"], "*Entry stored*")
}

func TestDispatchFailureNeverErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	creds := resolverWithEnv(t, map[string]string{"NOTIFY_LIFELOG_TOKEN": "tok"}, "", "")
	d := New(srv.URL, "lifelog", creds, logging.NopLogger{})

	res := d.Dispatch(context.Background(), Event{Summary: "x", Source: "s", Kind: "k"})
	assert.False(t, res.Delivered)
	assert.Contains(t, res.Error, "502")
}

func TestDispatchDisabled(t *testing.T) {
	d := New("", "lifelog", NewCredentialResolver("", ""), logging.NopLogger{})
	res := d.Dispatch(context.Background(), Event{Summary: "x"})
	assert.False(t, res.Delivered)
	assert.Equal(t, "notifications disabled", res.Error)
}

func TestDispatchMissingCredentials(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("no request expected without credentials")
	}))
	defer srv.Close()

	creds := resolverWithEnv(t, nil, "", "")
	d := New(srv.URL, "lifelog", creds, logging.NopLogger{})

	res := d.Dispatch(context.Background(), Event{Summary: "x", Source: "s", Kind: "k"})
	assert.False(t, res.Delivered)
	assert.NotEmpty(t, res.Error)
}
