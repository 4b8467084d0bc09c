package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strconv"
	"strings"
	"time"
)

// DefaultTolerance is the replay window for timestamp-signed deliveries.
const DefaultTolerance = 300 * time.Second

var (
	ErrMissingSignature = errors.New("missing signature")
	ErrInvalidSignature = errors.New("invalid signature")
	ErrMalformedHeader  = errors.New("malformed signature header")
	ErrOutsideTolerance = errors.New("timestamp outside tolerance")
)

// ComputeHMAC returns HMAC-SHA256(secret, parts...).
func ComputeHMAC(secret []byte, parts ...[]byte) []byte {
	mac := hmac.New(sha256.New, secret)
	for _, p := range parts {
		mac.Write(p)
	}
	return mac.Sum(nil)
}

// VerifyHMAC checks a hex HMAC-SHA256 of the raw body in constant time.
func VerifyHMAC(body []byte, signatureHex, secret string) error {
	sig := strings.TrimSpace(signatureHex)
	if sig == "" || secret == "" {
		return ErrMissingSignature
	}
	decoded, err := hex.DecodeString(strings.ToLower(sig))
	if err != nil {
		return ErrInvalidSignature
	}
	if !hmac.Equal(ComputeHMAC([]byte(secret), body), decoded) {
		return ErrInvalidSignature
	}
	return nil
}

// CheckTimestamp rejects deliveries whose timestamp is more than tolerance away from now.
func CheckTimestamp(ts, now time.Time, tolerance time.Duration) error {
	if tolerance <= 0 {
		tolerance = DefaultTolerance
	}
	diff := now.Sub(ts)
	if diff < 0 {
		diff = -diff
	}
	if diff > tolerance {
		return ErrOutsideTolerance
	}
	return nil
}

// VerifyTimestamped checks a "t=<unix>,v1=<hex>" header. The replay window is
// enforced before any signature work; the signed content is "{t}.{body}".
// Several v1 entries are accepted to allow secret rotation.
func VerifyTimestamped(body []byte, header, secret string, now time.Time, tolerance time.Duration) error {
	if strings.TrimSpace(header) == "" || secret == "" {
		return ErrMissingSignature
	}

	var (
		timestamp string
		sigs      [][]byte
	)
	for _, part := range strings.Split(header, ",") {
		kv := strings.SplitN(strings.TrimSpace(part), "=", 2)
		if len(kv) != 2 {
			continue
		}
		switch kv[0] {
		case "t":
			timestamp = kv[1]
		case "v1":
			if decoded, err := hex.DecodeString(kv[1]); err == nil {
				sigs = append(sigs, decoded)
			}
		}
	}
	if timestamp == "" || len(sigs) == 0 {
		return ErrMalformedHeader
	}
	unix, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		return ErrMalformedHeader
	}
	if err := CheckTimestamp(time.Unix(unix, 0), now, tolerance); err != nil {
		return err
	}

	expected := ComputeHMAC([]byte(secret), []byte(timestamp), []byte("."), body)
	for _, sig := range sigs {
		if hmac.Equal(expected, sig) {
			return nil
		}
	}
	return ErrInvalidSignature
}
