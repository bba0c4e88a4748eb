// Package spec implements the wire codec for the selector-bearing NDN
// packet format used by this library: Data packets with MetaInfo and
// signature blocks, and Interests carrying a Selectors block with
// exclude sets, suffix bounds and child selection.
package spec

import enc "github.com/named-data/Consumer-Producer-API/encoding"

const (
	TypeInterest enc.TLNum = 0x05
	TypeData     enc.TLNum = 0x06

	TypeSelectors                 enc.TLNum = 0x09
	TypeNonce                     enc.TLNum = 0x0a
	TypeInterestLifetime          enc.TLNum = 0x0c
	TypeMinSuffixComponents       enc.TLNum = 0x0d
	TypeMaxSuffixComponents       enc.TLNum = 0x0e
	TypePublisherPublicKeyLocator enc.TLNum = 0x0f
	TypeExclude                   enc.TLNum = 0x10
	TypeChildSelector             enc.TLNum = 0x11
	TypeMustBeFresh               enc.TLNum = 0x12
	TypeAny                       enc.TLNum = 0x13

	TypeMetaInfo        enc.TLNum = 0x14
	TypeContent         enc.TLNum = 0x15
	TypeSignatureInfo   enc.TLNum = 0x16
	TypeSignatureValue  enc.TLNum = 0x17
	TypeContentType     enc.TLNum = 0x18
	TypeFreshnessPeriod enc.TLNum = 0x19
	TypeFinalBlockId    enc.TLNum = 0x1a
	TypeSignatureType   enc.TLNum = 0x1b
	TypeKeyLocator      enc.TLNum = 0x1c
	TypeKeyDigest       enc.TLNum = 0x1d

	// Payload structure of Manifest and Application NACK packets.
	TypeManifestCatalogue enc.TLNum = 0x80
	TypeKeyValuePair      enc.TLNum = 0x81
)

// appendTlv appends a TLV with the given type and value bytes.
func appendTlv(buf []byte, typ enc.TLNum, val []byte) []byte {
	hdr := make([]byte, typ.EncodingLength()+enc.TLNum(len(val)).EncodingLength())
	p := typ.EncodeInto(hdr)
	enc.TLNum(len(val)).EncodeInto(hdr[p:])
	buf = append(buf, hdr...)
	return append(buf, val...)
}

// appendNatTlv appends a TLV whose value is a minimum-length natural.
func appendNatTlv(buf []byte, typ enc.TLNum, val uint64) []byte {
	return appendTlv(buf, typ, enc.Nat(val).Bytes())
}
