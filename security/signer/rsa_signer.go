package signer

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"

	enc "github.com/named-data/Consumer-Producer-API/encoding"
	"github.com/named-data/Consumer-Producer-API/ndn"
)

// rsaSigner signs with RSA-SHA256 under an identity name.
type rsaSigner struct {
	keyName enc.Name
	key     *rsa.PrivateKey
}

func (s *rsaSigner) Type() ndn.SigType {
	return ndn.SignatureSha256WithRsa
}

func (s *rsaSigner) KeyLocator() enc.Name {
	return s.keyName
}

func (s *rsaSigner) EstimateSize() uint {
	return uint(s.key.Size())
}

func (s *rsaSigner) Sign(covered enc.Wire) ([]byte, error) {
	h := sha256.New()
	for _, buf := range covered {
		h.Write(buf)
	}
	return rsa.SignPKCS1v15(rand.Reader, s.key, crypto.SHA256, h.Sum(nil))
}

// Public returns the PKIX encoding of the public key.
func (s *rsaSigner) Public() ([]byte, error) {
	return x509.MarshalPKIXPublicKey(&s.key.PublicKey)
}

// NewRsaSigner creates an RSA-SHA256 signer for the given key name.
func NewRsaSigner(keyName enc.Name, key *rsa.PrivateKey) ndn.Signer {
	return &rsaSigner{keyName: keyName, key: key}
}

// ValidateRsa checks an RSA-SHA256 signature with the given public key.
func ValidateRsa(sigCovered enc.Wire, sig ndn.Signature, pub *rsa.PublicKey) bool {
	if sig.SigType() != ndn.SignatureSha256WithRsa {
		return false
	}
	h := sha256.New()
	for _, buf := range sigCovered {
		h.Write(buf)
	}
	return rsa.VerifyPKCS1v15(pub, crypto.SHA256, h.Sum(nil), sig.SigValue()) == nil
}
