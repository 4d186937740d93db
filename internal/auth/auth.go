// Package auth validates the binding between a WebSocket connection and a
// verified username. Authentication itself (credentials, accounts) is an
// external concern; this package only checks tickets minted by it.
package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// A ticket is "username:expiryUnix:signature" where the signature is
// HMAC-SHA256 over "username:expiryUnix" with the shared secret.

// IssueTicket mints a ticket for a verified username.
func IssueTicket(secret, username string, ttl time.Duration, now time.Time) string {
	expiry := now.Add(ttl).Unix()
	payload := fmt.Sprintf("%s:%d", username, expiry)
	return payload + ":" + sign(secret, payload)
}

// VerifyTicket checks a ticket's signature and expiry and returns the
// username it was issued for.
func VerifyTicket(secret, ticket string, now time.Time) (string, error) {
	payload, sig, ok := cutLast(ticket)
	if !ok {
		return "", fmt.Errorf("malformed ticket")
	}

	username, expiryStr, ok := cutLast(payload)
	if !ok || username == "" {
		return "", fmt.Errorf("malformed ticket")
	}

	expiry, err := strconv.ParseInt(expiryStr, 10, 64)
	if err != nil {
		return "", fmt.Errorf("invalid expiry: %w", err)
	}
	if now.After(time.Unix(expiry, 0)) {
		return "", fmt.Errorf("ticket expired")
	}

	if !hmac.Equal([]byte(sig), []byte(sign(secret, payload))) {
		return "", fmt.Errorf("bad signature")
	}
	return username, nil
}

func sign(secret, payload string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(payload))
	return hex.EncodeToString(mac.Sum(nil))
}

// cutLast splits s on its last colon. Usernames may contain colons;
// signatures and expiries never do.
func cutLast(s string) (before, after string, ok bool) {
	i := strings.LastIndexByte(s, ':')
	if i < 0 {
		return s, "", false
	}
	return s[:i], s[i+1:], true
}
