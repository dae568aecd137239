package worker

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"net/http"
)

// ErrUnauthenticated rejects a delivery whose credentials do not verify.
var ErrUnauthenticated = errors.New("delivery not authenticated")

// Header names for the two supported delivery credentials.
const (
	HeaderSignature    = "X-Broker-Signature"
	HeaderWorkerSecret = "X-Worker-Secret"
)

// AuthConfig holds worker endpoint credentials. Signing keys come in a
// current/next pair so the broker side can rotate without a deploy window.
type AuthConfig struct {
	SigningKeyCurrent string
	SigningKeyNext    string
	WorkerSecret      string
}

// Authenticator verifies that a delivery request originates from the broker.
type Authenticator struct {
	cfg AuthConfig
}

// NewAuthenticator creates an Authenticator.
func NewAuthenticator(cfg AuthConfig) *Authenticator {
	return &Authenticator{cfg: cfg}
}

// Authenticate checks the request headers against the configured
// credentials. The HMAC signature covers the raw request body and is
// accepted under either signing key. With no credentials configured every
// delivery is rejected.
func (a *Authenticator) Authenticate(r *http.Request, body []byte) error {
	if sig := r.Header.Get(HeaderSignature); sig != "" {
		if a.verifySignature(sig, body) {
			return nil
		}
		return ErrUnauthenticated
	}
	if secret := r.Header.Get(HeaderWorkerSecret); secret != "" && a.cfg.WorkerSecret != "" {
		if subtle.ConstantTimeCompare([]byte(secret), []byte(a.cfg.WorkerSecret)) == 1 {
			return nil
		}
	}
	return ErrUnauthenticated
}

func (a *Authenticator) verifySignature(sig string, body []byte) bool {
	got, err := hex.DecodeString(sig)
	if err != nil {
		return false
	}
	for _, key := range []string{a.cfg.SigningKeyCurrent, a.cfg.SigningKeyNext} {
		if key == "" {
			continue
		}
		mac := hmac.New(sha256.New, []byte(key))
		mac.Write(body)
		if hmac.Equal(got, mac.Sum(nil)) {
			return true
		}
	}
	return false
}

// Sign computes the hex HMAC-SHA256 of body under key. Used by the local
// queue mode to self-sign deliveries, and by tests.
func Sign(key string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(key))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}
