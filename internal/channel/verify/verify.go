// Package verify authenticates raw webhook deliveries. Every function takes
// the unparsed body and returns an error wrapping channel.ErrAuthentication
// on failure, so callers can reject with 401 before decoding anything.
package verify

import (
	"bytes"
	"crypto/ed25519"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/bwmarrin/discordgo"
	"github.com/slack-go/slack"

	"github.com/memohai/relay/internal/channel"
)

// Header names read by the verifiers.
const (
	HeaderSlackSignature   = "X-Slack-Signature"
	HeaderSlackTimestamp   = "X-Slack-Request-Timestamp"
	HeaderEd25519Signature = "X-Signature-Ed25519"
	HeaderEd25519Timestamp = "X-Signature-Timestamp"
	HeaderTelegramSecret   = "X-Telegram-Bot-Api-Secret-Token"

	hmacVersionPrefix = "v0="
)

// MaxSkewSeconds is the replay window of the HMAC scheme.
const MaxSkewSeconds = 300

// HMACSHA256 checks a "v0=" hex signature over "v0:{timestamp}:{body}" and
// rejects timestamps more than MaxSkewSeconds away from now. The digest
// comparison is hmac.Equal, so timing does not depend on where the first
// differing byte sits.
func HMACSHA256(headers http.Header, body []byte, secret string) error {
	if secret == "" {
		return fmt.Errorf("%w: signing secret not configured", channel.ErrAuthentication)
	}
	if !strings.HasPrefix(headers.Get(HeaderSlackSignature), hmacVersionPrefix) {
		return fmt.Errorf("%w: missing or unversioned signature", channel.ErrAuthentication)
	}
	sv, err := slack.NewSecretsVerifier(headers, secret)
	if err != nil {
		return fmt.Errorf("%w: %v", channel.ErrAuthentication, err)
	}
	if _, err := sv.Write(body); err != nil {
		return fmt.Errorf("%w: %v", channel.ErrAuthentication, err)
	}
	if err := sv.Ensure(); err != nil {
		return fmt.Errorf("%w: signature mismatch", channel.ErrAuthentication)
	}
	return nil
}

// Ed25519 checks the signature over timestamp||body against key.
func Ed25519(headers http.Header, body []byte, key ed25519.PublicKey) error {
	if len(key) != ed25519.PublicKeySize {
		return fmt.Errorf("%w: public key not configured", channel.ErrAuthentication)
	}
	// discordgo verifies from an *http.Request; rebuild one around the raw body.
	req, err := http.NewRequest(http.MethodPost, "/", io.NopCloser(bytes.NewReader(body)))
	if err != nil {
		return fmt.Errorf("%w: %v", channel.ErrAuthentication, err)
	}
	req.Header = headers.Clone()
	if !discordgo.VerifyInteraction(req, key) {
		return fmt.Errorf("%w: ed25519 signature invalid", channel.ErrAuthentication)
	}
	return nil
}

// SharedToken compares a static secret header in constant time.
func SharedToken(headers http.Header, header, want string) error {
	if want == "" {
		return fmt.Errorf("%w: secret token not configured", channel.ErrAuthentication)
	}
	got := headers.Get(header)
	if subtle.ConstantTimeCompare([]byte(got), []byte(want)) != 1 {
		return fmt.Errorf("%w: secret token mismatch", channel.ErrAuthentication)
	}
	return nil
}

// ParseEd25519PublicKey decodes a hex public key as published in a developer portal.
func ParseEd25519PublicKey(raw string) (ed25519.PublicKey, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, errors.New("public key is empty")
	}
	key, err := hex.DecodeString(raw)
	if err != nil {
		return nil, fmt.Errorf("decode public key: %w", err)
	}
	if len(key) != ed25519.PublicKeySize {
		return nil, fmt.Errorf("public key must be %d bytes, got %d", ed25519.PublicKeySize, len(key))
	}
	return ed25519.PublicKey(key), nil
}
