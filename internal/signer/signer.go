// Package signer issues and verifies HMAC-signed capability tokens that
// grant time-limited access to one file without a bearer session. Browsers'
// native <video> tags cannot attach Authorization headers to range fetches,
// so a player fetches a signed URL once and reuses it for the whole
// seek-heavy playback session. Capabilities are stateless and reusable
// until expiry; there is no revocation list.
package signer

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"
)

// Signer is a pure function of the secret and the clock; safe for
// concurrent use.
type Signer struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// New creates a Signer with the given secret and capability lifetime.
func New(secret string, ttl time.Duration) *Signer {
	return &Signer{
		secret: []byte(secret),
		ttl:    ttl,
		now:    time.Now,
	}
}

// Issue signs access to fileID. Returns the hex signature and the unix
// expiry timestamp.
func (s *Signer) Issue(fileID string) (signature string, expires int64) {
	expires = s.now().Add(s.ttl).Unix()
	return s.sign(fileID, expires), expires
}

// Verify checks a capability. Expiry is checked before any signature work,
// and the comparison is constant-time.
func (s *Signer) Verify(fileID, signature string, expires int64) bool {
	if s.now().Unix() > expires {
		return false
	}
	expected := s.sign(fileID, expires)
	return hmac.Equal([]byte(signature), []byte(expected))
}

func (s *Signer) sign(fileID string, expires int64) string {
	mac := hmac.New(sha256.New, s.secret)
	fmt.Fprintf(mac, "%s:%d", fileID, expires)
	return hex.EncodeToString(mac.Sum(nil))
}
