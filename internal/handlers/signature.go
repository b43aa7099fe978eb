package handlers

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

var ErrBadSignature = errors.New("webhook signature verification failed")

// signatureMaxAge bounds how old a signed webhook may be before it is
// rejected as a replay.
const signatureMaxAge = 5 * time.Minute

// verifySignedPayload checks a Stripe-style signature header of the
// form "t=<unix>,v1=<hex hmac>" where the hmac covers
// "<timestamp>.<payload>" under the shared secret. Comparison is
// constant-time.
func verifySignedPayload(secret string, payload []byte, header string, now time.Time) error {
	if secret == "" {
		return fmt.Errorf("%w: no secret configured", ErrBadSignature)
	}
	if header == "" {
		return fmt.Errorf("%w: signature header missing", ErrBadSignature)
	}

	var timestamp int64
	var signature string
	for _, part := range strings.Split(header, ",") {
		key, value, found := strings.Cut(strings.TrimSpace(part), "=")
		if !found {
			continue
		}
		switch key {
		case "t":
			ts, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return fmt.Errorf("%w: malformed timestamp", ErrBadSignature)
			}
			timestamp = ts
		case "v1":
			signature = value
		}
	}
	if timestamp == 0 || signature == "" {
		return fmt.Errorf("%w: malformed signature header", ErrBadSignature)
	}

	age := now.Sub(time.Unix(timestamp, 0))
	if age > signatureMaxAge || age < -time.Minute {
		return fmt.Errorf("%w: timestamp outside tolerance", ErrBadSignature)
	}

	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "%d.%s", timestamp, payload)
	expected := hex.EncodeToString(mac.Sum(nil))

	if !hmac.Equal([]byte(expected), []byte(signature)) {
		return fmt.Errorf("%w: signature mismatch", ErrBadSignature)
	}
	return nil
}
