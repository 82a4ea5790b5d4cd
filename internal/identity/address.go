// Package identity normalises caller identities to EIP-55 checksummed
// addresses before they reach the store, which compares them byte for byte.
package identity

import (
	"encoding/hex"
	"errors"
	"strings"

	"golang.org/x/crypto/sha3"

	"MiniMarket/internal/store"
)

const addressLen = 20

var (
	ErrBadAddress  = errors.New("address must be 0x followed by 40 hex digits")
	ErrBadChecksum = errors.New("address checksum mismatch")
)

// Parse accepts an all-lowercase, all-uppercase or correctly checksummed
// address and returns its checksummed form. Mixed-case input with a wrong
// checksum is rejected.
func Parse(s string) (store.Address, error) {
	s = strings.TrimSpace(s)
	if len(s) != 2+2*addressLen || (s[:2] != "0x" && s[:2] != "0X") {
		return "", ErrBadAddress
	}
	body := s[2:]
	if _, err := hex.DecodeString(body); err != nil {
		return "", ErrBadAddress
	}

	sum := checksum(strings.ToLower(body))
	if isMixedCase(body) && body != sum {
		return "", ErrBadChecksum
	}
	return store.Address("0x" + sum), nil
}

func MustParse(s string) store.Address {
	a, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return a
}

func checksum(lower string) string {
	h := sha3.NewLegacyKeccak256()
	_, _ = h.Write([]byte(lower))
	digest := hex.EncodeToString(h.Sum(nil))

	out := []byte(lower)
	for i, c := range out {
		if c >= 'a' && c <= 'f' && digest[i] >= '8' {
			out[i] = c - 'a' + 'A'
		}
	}
	return string(out)
}

func isMixedCase(s string) bool {
	return strings.ToLower(s) != s && strings.ToUpper(s) != s
}
