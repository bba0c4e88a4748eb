// Package signer provides the packet signers and validators used by
// the producer and consumer contexts.
package signer

import (
	"bytes"
	"crypto/sha256"

	enc "github.com/named-data/Consumer-Producer-API/encoding"
	"github.com/named-data/Consumer-Producer-API/ndn"
)

// sha256Signer is a Data signer that uses DigestSha256.
type sha256Signer struct {
	keyLocator enc.Name
}

func (s sha256Signer) Type() ndn.SigType {
	return ndn.SignatureDigestSha256
}

func (s sha256Signer) KeyLocator() enc.Name {
	return s.keyLocator
}

func (sha256Signer) EstimateSize() uint {
	return 32
}

func (sha256Signer) Sign(covered enc.Wire) ([]byte, error) {
	h := sha256.New()
	for _, buf := range covered {
		h.Write(buf)
	}
	return h.Sum(nil), nil
}

// NewSha256Signer creates a signer that uses DigestSha256.
func NewSha256Signer() ndn.Signer {
	return sha256Signer{}
}

// NewLocatedSha256Signer creates a DigestSha256 signer whose
// SignatureInfo carries the given key locator. Used for data segments
// bound to an in-stream manifest.
func NewLocatedSha256Signer(keyLocator enc.Name) ndn.Signer {
	return sha256Signer{keyLocator: keyLocator}
}

// ValidateSha256 checks a DigestSha256 signature over the covered range.
func ValidateSha256(sigCovered enc.Wire, sig ndn.Signature) bool {
	if sig.SigType() != ndn.SignatureDigestSha256 {
		return false
	}
	h := sha256.New()
	for _, buf := range sigCovered {
		h.Write(buf)
	}
	return bytes.Equal(h.Sum(nil), sig.SigValue())
}
