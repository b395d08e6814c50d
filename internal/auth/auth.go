package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
)

var (
	ErrIPNotAllowed      = errors.New("ip not allowed")
	ErrInvalidSignature  = errors.New("invalid signature")
	ErrInvalidAPIKey     = errors.New("invalid api key")
	ErrInvalidMerchantID = errors.New("invalid merchant id")
)

// Config holds the expected credentials. Each check is opt-in: an unset
// value disables the corresponding check, so a deployment with nothing
// configured accepts every request.
type Config struct {
	AllowedIPs []string
	Secret     string
	APIKey     string
	MerchantID string
}

// Request carries the claimed credentials of one inbound delivery.
// Body must be the exact raw bytes as received, since the signature is
// computed over them.
type Request struct {
	Body       []byte
	Signature  string
	APIKey     string
	MerchantID string
	RemoteIP   string
}

// Authenticator validates that an inbound request comes from a trusted
// provider.
type Authenticator struct {
	cfg Config
}

func New(cfg Config) *Authenticator {
	return &Authenticator{cfg: cfg}
}

// Verify runs the configured checks in order: IP allow-list, HMAC signature,
// API key, merchant id. The first failing check wins.
func (a *Authenticator) Verify(req Request) error {
	if len(a.cfg.AllowedIPs) > 0 && !a.ipAllowed(req.RemoteIP) {
		return ErrIPNotAllowed
	}

	if a.cfg.Secret != "" && !verifySignature(req.Body, req.Signature, a.cfg.Secret) {
		return ErrInvalidSignature
	}

	// Plain equality for the key and merchant id. These are routing
	// identifiers rather than signing material; the HMAC path above is the
	// timing-sensitive check.
	if a.cfg.APIKey != "" && strings.TrimSpace(req.APIKey) != a.cfg.APIKey {
		return ErrInvalidAPIKey
	}

	if a.cfg.MerchantID != "" && strings.TrimSpace(req.MerchantID) != a.cfg.MerchantID {
		return ErrInvalidMerchantID
	}

	return nil
}

func (a *Authenticator) ipAllowed(ip string) bool {
	for _, allowed := range a.cfg.AllowedIPs {
		if ip == allowed {
			return true
		}
	}
	return false
}

// verifySignature checks a hex-encoded HMAC-SHA256 of body. A malformed or
// truncated signature is a plain mismatch, never a panic.
func verifySignature(body []byte, signature, secret string) bool {
	if signature == "" {
		return false
	}

	provided, err := hex.DecodeString(strings.TrimSpace(signature))
	if err != nil {
		return false
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	expected := mac.Sum(nil)

	return hmac.Equal(provided, expected)
}
