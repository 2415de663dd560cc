// Package signature verifies the authenticity of inbound webhook deliveries
// before any processing runs. Two modes are supported per source: HMAC-SHA256
// signatures over the raw request bytes, and exact-match bearer tokens.
//
// Providers disagree on how they encode the digest, so a computed signature
// is accepted when the header value matches either the hex or the base64
// encoding. When a timestamp header is configured for the source, the signed
// bytes are the timestamp header value concatenated with the raw body.
package signature

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"io"
	"net/http"
	"strings"

	"lifelog-ingest/internal/common/errors"
	"lifelog-ingest/internal/common/logging"
	"lifelog-ingest/internal/config"
)

// Verifier validates webhook deliveries for one configured source.
type Verifier struct {
	source string
	cfg    config.SourceConfig
	logger logging.Logger
}

// NewVerifier creates a verifier for the given source configuration.
func NewVerifier(source string, cfg config.SourceConfig, logger logging.Logger) *Verifier {
	if logger == nil {
		logger = logging.Global()
	}
	return &Verifier{source: source, cfg: cfg, logger: logger}
}

// Verify checks the request against every verification mode the source has
// configured. It must be called with the raw, pre-parse body bytes. A nil
// return means the delivery may proceed; any error is a hard pre-processing
// rejection.
func (v *Verifier) Verify(r *http.Request, body []byte) error {
	if v.cfg.AuthToken != "" {
		if err := v.verifyBearer(r); err != nil {
			return err
		}
	}

	if v.cfg.Secret != "" {
		if err := v.verifySignature(r, body); err != nil {
			return err
		}
	}

	return nil
}

// verifyBearer performs an exact constant-time match of the Authorization
// bearer token against the configured secret.
func (v *Verifier) verifyBearer(r *http.Request) error {
	header := r.Header.Get("Authorization")
	if header == "" {
		return errors.AuthError("missing authorization header").WithContext("source", v.source)
	}

	token := strings.TrimPrefix(header, "Bearer ")
	if token == header {
		return errors.AuthError("authorization header is not a bearer token").WithContext("source", v.source)
	}

	if subtle.ConstantTimeCompare([]byte(token), []byte(v.cfg.AuthToken)) != 1 {
		v.logger.Warn("Bearer token mismatch", logging.String("source", v.source))
		return errors.AuthError("invalid bearer token").WithContext("source", v.source)
	}

	return nil
}

// verifySignature computes HMAC-SHA256 over the signed bytes and compares it
// against the header-supplied digest in both hex and base64 encodings.
func (v *Verifier) verifySignature(r *http.Request, body []byte) error {
	provided := r.Header.Get(v.cfg.SignatureHeader)
	if provided == "" {
		return errors.SignatureError("missing signature header").
			WithContext("source", v.source).
			WithContext("header", v.cfg.SignatureHeader)
	}

	if len(body) == 0 {
		return errors.SignatureError("missing request body").WithContext("source", v.source)
	}

	input := body
	if v.cfg.TimestampHeader != "" {
		ts := r.Header.Get(v.cfg.TimestampHeader)
		if ts == "" {
			return errors.SignatureError("missing timestamp header").
				WithContext("source", v.source).
				WithContext("header", v.cfg.TimestampHeader)
		}
		input = append([]byte(ts), body...)
	}

	mac := hmac.New(sha256.New, []byte(v.cfg.Secret))
	mac.Write(input)
	digest := mac.Sum(nil)

	// Providers commonly prefix the digest with the algorithm name.
	candidate := strings.TrimPrefix(provided, "sha256=")

	hexDigest := hex.EncodeToString(digest)
	b64Digest := base64.StdEncoding.EncodeToString(digest)

	if hmac.Equal([]byte(candidate), []byte(hexDigest)) || hmac.Equal([]byte(candidate), []byte(b64Digest)) {
		v.logger.Debug("Signature verified",
			logging.String("source", v.source),
			logging.String("header", v.cfg.SignatureHeader),
		)
		return nil
	}

	v.logger.Warn("Signature mismatch",
		logging.String("source", v.source),
		logging.String("header", v.cfg.SignatureHeader),
	)
	return errors.SignatureError("signature mismatch").WithContext("source", v.source)
}

// PreserveRequestBody reads and preserves the request body so the raw bytes
// can be verified and later re-parsed.
func PreserveRequestBody(r *http.Request) ([]byte, error) {
	if r.Body == nil {
		return nil, nil
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, err
	}

	r.Body = io.NopCloser(bytes.NewReader(body))
	return body, nil
}
