package auth_test

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"testing"

	"github.com/ndemidov/payment-webhook/internal/auth"
)

func sign(body []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func TestPermissiveDefault(t *testing.T) {
	a := auth.New(auth.Config{})

	err := a.Verify(auth.Request{
		Body:     []byte(`{"anything":"goes"}`),
		RemoteIP: "203.0.113.7",
	})
	if err != nil {
		t.Fatalf("expected accept with no checks configured, got %v", err)
	}
}

func TestIPAllowList(t *testing.T) {
	a := auth.New(auth.Config{AllowedIPs: []string{"10.0.0.1", "10.0.0.2"}})

	if err := a.Verify(auth.Request{RemoteIP: "10.0.0.2"}); err != nil {
		t.Fatalf("expected listed ip to pass, got %v", err)
	}

	err := a.Verify(auth.Request{RemoteIP: "10.0.0.3"})
	if !errors.Is(err, auth.ErrIPNotAllowed) {
		t.Fatalf("expected ErrIPNotAllowed, got %v", err)
	}
}

func TestIPCheckRunsFirst(t *testing.T) {
	a := auth.New(auth.Config{
		AllowedIPs: []string{"10.0.0.1"},
		Secret:     "s3cret",
	})

	// Bad ip and bad signature together must surface the ip rejection.
	err := a.Verify(auth.Request{
		Body:      []byte(`{}`),
		Signature: "deadbeef",
		RemoteIP:  "192.0.2.1",
	})
	if !errors.Is(err, auth.ErrIPNotAllowed) {
		t.Fatalf("expected ErrIPNotAllowed, got %v", err)
	}
}

func TestSignature(t *testing.T) {
	const secret = "test_secret"
	body := []byte(`{"event_type":"payment.succeeded","payment_id":"p1"}`)
	a := auth.New(auth.Config{Secret: secret})

	if err := a.Verify(auth.Request{Body: body, Signature: sign(body, secret)}); err != nil {
		t.Fatalf("expected valid signature to pass, got %v", err)
	}

	cases := map[string]auth.Request{
		"missing signature": {Body: body},
		"not hex":           {Body: body, Signature: "not-a-hex-string"},
		"truncated":         {Body: body, Signature: sign(body, secret)[:16]},
		"wrong secret":      {Body: body, Signature: sign(body, "other")},
	}
	for name, req := range cases {
		if err := a.Verify(req); !errors.Is(err, auth.ErrInvalidSignature) {
			t.Errorf("%s: expected ErrInvalidSignature, got %v", name, err)
		}
	}
}

func TestSignatureSingleByteMutation(t *testing.T) {
	const secret = "test_secret"
	body := []byte(`{"payment_id":"p1","amount":1000}`)
	sig := sign(body, secret)
	a := auth.New(auth.Config{Secret: secret})

	// Mutate one byte of the body.
	mutated := append([]byte(nil), body...)
	mutated[5] ^= 0x01
	if err := a.Verify(auth.Request{Body: mutated, Signature: sig}); !errors.Is(err, auth.ErrInvalidSignature) {
		t.Fatalf("expected mutated body to be rejected, got %v", err)
	}

	// Mutate one hex digit of the signature.
	sigBytes := []byte(sig)
	if sigBytes[0] == '0' {
		sigBytes[0] = '1'
	} else {
		sigBytes[0] = '0'
	}
	if err := a.Verify(auth.Request{Body: body, Signature: string(sigBytes)}); !errors.Is(err, auth.ErrInvalidSignature) {
		t.Fatalf("expected mutated signature to be rejected, got %v", err)
	}
}

func TestAPIKey(t *testing.T) {
	a := auth.New(auth.Config{APIKey: "key-123"})

	if err := a.Verify(auth.Request{APIKey: "  key-123  "}); err != nil {
		t.Fatalf("expected trimmed key to pass, got %v", err)
	}

	if err := a.Verify(auth.Request{APIKey: "key-456"}); !errors.Is(err, auth.ErrInvalidAPIKey) {
		t.Fatalf("expected ErrInvalidAPIKey, got %v", err)
	}

	if err := a.Verify(auth.Request{}); !errors.Is(err, auth.ErrInvalidAPIKey) {
		t.Fatalf("expected missing key to be rejected, got %v", err)
	}
}

func TestMerchantID(t *testing.T) {
	a := auth.New(auth.Config{MerchantID: "m-1"})

	if err := a.Verify(auth.Request{MerchantID: "m-1"}); err != nil {
		t.Fatalf("expected matching merchant id to pass, got %v", err)
	}

	if err := a.Verify(auth.Request{MerchantID: "m-2"}); !errors.Is(err, auth.ErrInvalidMerchantID) {
		t.Fatalf("expected ErrInvalidMerchantID, got %v", err)
	}
}

func TestFirstFailureWins(t *testing.T) {
	a := auth.New(auth.Config{
		Secret: "s3cret",
		APIKey: "key-123",
	})

	// Both the signature and the key are wrong; the signature check comes
	// first in the order.
	err := a.Verify(auth.Request{
		Body:      []byte(`{}`),
		Signature: "deadbeef",
		APIKey:    "wrong",
	})
	if !errors.Is(err, auth.ErrInvalidSignature) {
		t.Fatalf("expected ErrInvalidSignature, got %v", err)
	}
}
