package signing

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strings"
	"time"
)

// LinkSigner creates and validates the tamper-proof confirmation links mailed
// to deletion subjects.
type LinkSigner struct {
	secret []byte
	ttl    time.Duration
}

// NewLinkSigner constructs a signer with the provided secret and TTL.
func NewLinkSigner(secret string, ttl time.Duration) *LinkSigner {
	if ttl <= 0 {
		ttl = 72 * time.Hour
	}
	return &LinkSigner{
		secret: []byte(secret),
		ttl:    ttl,
	}
}

// Generate returns a signed token binding the request ID to the subject email.
func (s *LinkSigner) Generate(requestID, email string) (string, time.Time, error) {
	if requestID == "" || email == "" {
		return "", time.Time{}, fmt.Errorf("requestID and email required")
	}
	if len(s.secret) == 0 {
		return "", time.Time{}, fmt.Errorf("signing secret missing")
	}
	expiresAt := time.Now().Add(s.ttl)
	encodedEmail := base64.RawURLEncoding.EncodeToString([]byte(email))
	payload := fmt.Sprintf("%s|%d|%s", requestID, expiresAt.Unix(), encodedEmail)
	mac := hmac.New(sha256.New, s.secret)
	_, _ = mac.Write([]byte(payload))
	signature := hex.EncodeToString(mac.Sum(nil))
	token := strings.Join([]string{requestID, fmt.Sprintf("%d", expiresAt.Unix()), encodedEmail, signature}, ".")
	return token, expiresAt, nil
}

// Parse validates a confirmation token and returns the embedded parameters.
func (s *LinkSigner) Parse(token string) (requestID, email string, expiresAt time.Time, err error) {
	parts := strings.Split(token, ".")
	if len(parts) != 4 {
		return "", "", time.Time{}, fmt.Errorf("invalid token format")
	}
	requestID = parts[0]
	ts := parts[1]
	encodedEmail := parts[2]
	signature := parts[3]

	rawEmail, err := base64.RawURLEncoding.DecodeString(encodedEmail)
	if err != nil {
		return "", "", time.Time{}, fmt.Errorf("decode email: %w", err)
	}

	expUnix, err := parseUnix(ts)
	if err != nil {
		return "", "", time.Time{}, err
	}
	expiresAt = time.Unix(expUnix, 0)

	payload := fmt.Sprintf("%s|%s|%s", requestID, ts, encodedEmail)
	mac := hmac.New(sha256.New, s.secret)
	_, _ = mac.Write([]byte(payload))
	expected := hex.EncodeToString(mac.Sum(nil))
	if !hmac.Equal([]byte(expected), []byte(signature)) {
		return "", "", time.Time{}, fmt.Errorf("invalid token signature")
	}
	if time.Now().After(expiresAt) {
		return "", "", time.Time{}, fmt.Errorf("token expired")
	}
	return requestID, string(rawEmail), expiresAt, nil
}

func parseUnix(raw string) (int64, error) {
	var ts int64
	_, err := fmt.Sscanf(raw, "%d", &ts)
	if err != nil {
		return 0, fmt.Errorf("invalid timestamp")
	}
	return ts, nil
}
