package security

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"strings"
	"time"
)

var (
	ErrTokenExpired = errors.New("token expired")
	ErrTokenInvalid = errors.New("token invalid")
)

// DownloadClaims is the self-contained payload of a download token.
type DownloadClaims struct {
	PurchaseID  uint  `json:"pid"`
	ResourceID  uint  `json:"rid"`
	PrincipalID uint  `json:"uid"`
	ExpiresAt   int64 `json:"exp"`
}

// DownloadTokenIssuer signs and verifies stateless download tokens.
// Rotating the secret revokes every outstanding token.
type DownloadTokenIssuer struct {
	secret []byte
	now    func() time.Time
}

func NewDownloadTokenIssuer(secret []byte) (*DownloadTokenIssuer, error) {
	if len(secret) == 0 {
		return nil, errors.New("secret is required for token generation")
	}
	return &DownloadTokenIssuer{secret: secret, now: time.Now}, nil
}

// WithClock returns a copy of the issuer that reads time from now.
func (i *DownloadTokenIssuer) WithClock(now func() time.Time) *DownloadTokenIssuer {
	cp := *i
	cp.now = now
	return &cp
}

func (i *DownloadTokenIssuer) Issue(purchaseID, resourceID, principalID uint, ttl time.Duration) (string, error) {
	if ttl <= 0 {
		return "", errors.New("ttl must be positive")
	}
	claims := DownloadClaims{
		PurchaseID:  purchaseID,
		ResourceID:  resourceID,
		PrincipalID: principalID,
		ExpiresAt:   i.now().Add(ttl).Unix(),
	}
	payload, err := json.Marshal(claims)
	if err != nil {
		return "", err
	}
	encoded := base64.RawURLEncoding.EncodeToString(payload)
	return encoded + "." + base64.RawURLEncoding.EncodeToString(i.sign(encoded)), nil
}

// Verify returns ErrTokenExpired or ErrTokenInvalid; callers must deny on either.
// The MAC covers the encoded payload and the signature is decoded strictly,
// so any change to either half of the token string is rejected.
func (i *DownloadTokenIssuer) Verify(token string) (*DownloadClaims, error) {
	parts := strings.SplitN(token, ".", 2)
	if len(parts) != 2 {
		return nil, ErrTokenInvalid
	}
	sigBytes, err := base64.RawURLEncoding.Strict().DecodeString(parts[1])
	if err != nil {
		return nil, ErrTokenInvalid
	}
	if !hmac.Equal(sigBytes, i.sign(parts[0])) {
		return nil, ErrTokenInvalid
	}
	payloadBytes, err := base64.RawURLEncoding.Strict().DecodeString(parts[0])
	if err != nil {
		return nil, ErrTokenInvalid
	}
	var claims DownloadClaims
	if err := json.Unmarshal(payloadBytes, &claims); err != nil {
		return nil, ErrTokenInvalid
	}
	if i.now().Unix() > claims.ExpiresAt {
		return nil, ErrTokenExpired
	}
	return &claims, nil
}

func (i *DownloadTokenIssuer) sign(encodedPayload string) []byte {
	mac := hmac.New(sha256.New, i.secret)
	mac.Write([]byte(encodedPayload))
	return mac.Sum(nil)
}
