// Package signing issues and verifies terms link tokens. A token is a random
// nonce plus a truncated HMAC over it, so forged or mangled tokens are
// rejected before any store lookup.
package signing

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"github.com/dharsanguruparan/PartnerGate/internal/common"
)

const (
	nonceBytes = 32
	macBytes   = 16
)

// Signer generates and validates HMAC based tokens.
type Signer struct {
	secret []byte
}

// NewSigner creates a Signer.
func NewSigner(secret []byte) *Signer {
	return &Signer{secret: secret}
}

// Issue returns a fresh unguessable token.
func (s *Signer) Issue() (string, error) {
	nonce, err := common.MakeRandHexString(nonceBytes)
	if err != nil {
		return "", err
	}
	return nonce + "." + s.sign(nonce), nil
}

// Validate reports whether token was issued with this secret.
func (s *Signer) Validate(token string) bool {
	nonce, sig, ok := strings.Cut(token, ".")
	if !ok || len(nonce) != nonceBytes*2 || len(sig) != macBytes*2 {
		return false
	}
	if _, err := hex.DecodeString(nonce); err != nil {
		return false
	}
	return hmac.Equal([]byte(s.sign(nonce)), []byte(sig))
}

func (s *Signer) sign(nonce string) string {
	mac := hmac.New(sha256.New, s.secret)
	mac.Write([]byte(nonce))
	return hex.EncodeToString(mac.Sum(nil)[:macBytes])
}
