package notify

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"lifelog-ingest/internal/common/errors"
)

// CredentialResolver resolves per-channel delivery tokens. Resolution order:
// a channel-specific environment variable, then a token file under the
// credentials directory, then the shared token unless the channel requires
// dedicated credentials.
type CredentialResolver struct {
	credentialsDir string
	sharedToken    string
	lookupEnv      func(string) (string, bool)
}

// NewCredentialResolver creates a resolver over the credentials directory
// and shared fallback token.
func NewCredentialResolver(credentialsDir, sharedToken string) *CredentialResolver {
	return &CredentialResolver{
		credentialsDir: credentialsDir,
		sharedToken:    sharedToken,
		lookupEnv:      os.LookupEnv,
	}
}

// envVarName derives NOTIFY_<CHANNEL>_TOKEN from a channel name.
func envVarName(channel string) string {
	upper := strings.ToUpper(channel)
	upper = strings.Map(func(r rune) rune {
		if (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			return r
		}
		return '_'
	}, upper)
	return fmt.Sprintf("NOTIFY_%s_TOKEN", upper)
}

// Resolve returns the token for a channel. With requireDedicated set, the
// shared fallback is refused and resolution fails closed.
func (r *CredentialResolver) Resolve(channel string, requireDedicated bool) (string, error) {
	if token, ok := r.lookupEnv(envVarName(channel)); ok && token != "" {
		return token, nil
	}

	if r.credentialsDir != "" {
		path := filepath.Join(r.credentialsDir, channel, "token")
		if data, err := os.ReadFile(path); err == nil {
			if token := strings.TrimSpace(string(data)); token != "" {
				return token, nil
			}
		}
	}

	if requireDedicated {
		return "", errors.ConfigError(fmt.Sprintf("channel %q requires dedicated credentials and none are configured", channel))
	}

	if r.sharedToken != "" {
		return r.sharedToken, nil
	}
	if r.credentialsDir != "" {
		path := filepath.Join(r.credentialsDir, "shared", "token")
		if data, err := os.ReadFile(path); err == nil {
			if token := strings.TrimSpace(string(data)); token != "" {
				return token, nil
			}
		}
	}

	return "", errors.ConfigError(fmt.Sprintf("no credentials available for channel %q", channel))
}
