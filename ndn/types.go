// Package ndn defines the abstract packet model and the interfaces
// between the consumer/producer contexts, the wire codec, and the
// engine. Concrete implementations live in spec/ and engine/.
package ndn

import (
	"time"

	enc "github.com/named-data/Consumer-Producer-API/encoding"
	"github.com/named-data/Consumer-Producer-API/types/optional"
)

// ContentType is the payload type carried in a Data packet's MetaInfo.
type ContentType uint

const (
	ContentTypeBlob     ContentType = 0
	ContentTypeLink     ContentType = 1
	ContentTypeKey      ContentType = 2
	ContentTypeNack     ContentType = 3
	ContentTypeManifest ContentType = 4
)

// SigType is the type of a packet signature.
type SigType int

const (
	SignatureNone          SigType = -1
	SignatureDigestSha256  SigType = 0
	SignatureSha256WithRsa SigType = 1
)

// Signature abstracts the signature of a received packet.
type Signature interface {
	SigType() SigType
	KeyLocator() enc.Name
	SigValue() []byte
}

// Signer is the interface of a packet signer.
type Signer interface {
	// Type returns the signature type this signer produces.
	Type() SigType
	// KeyLocator returns the key locator carried in SignatureInfo,
	// or nil for locator-less signatures.
	KeyLocator() enc.Name
	// EstimateSize returns the upper bound of the signature value size.
	EstimateSize() uint
	// Sign computes the signature over the covered range.
	Sign(covered enc.Wire) ([]byte, error)
}

// Data is a received Data packet.
type Data interface {
	Name() enc.Name
	ContentType() optional.Optional[ContentType]
	Freshness() optional.Optional[time.Duration]
	FinalBlockID() optional.Optional[enc.Component]
	Content() enc.Buffer
	Signature() Signature
}

// Interest is a received Interest packet.
type Interest interface {
	Name() enc.Name
	Lifetime() optional.Optional[time.Duration]
	Nonce() optional.Optional[uint32]
	MustBeFresh() bool
	MinSuffixComponents() optional.Optional[uint64]
	MaxSuffixComponents() optional.Optional[uint64]
	ChildSelector() optional.Optional[uint64]
	Exclude() *Exclude
	PublisherKeyLocator() enc.Name
}

// DataConfig holds the mutable fields of a Data packet under
// construction.
type DataConfig struct {
	ContentType  optional.Optional[ContentType]
	Freshness    optional.Optional[time.Duration]
	FinalBlockID optional.Optional[enc.Component]
	// KeyLocator overrides the signer's key locator when set.
	KeyLocator enc.Name
}

// InterestConfig holds the mutable fields of an Interest under
// construction. Selectors are snapshotted here; a fresh config is
// built for every expression.
type InterestConfig struct {
	Lifetime            optional.Optional[time.Duration]
	Nonce               optional.Optional[uint32]
	MustBeFresh         bool
	MinSuffixComponents optional.Optional[uint64]
	MaxSuffixComponents optional.Optional[uint64]
	ChildSelector       optional.Optional[uint64]
	Exclude             *Exclude
	PublisherKeyLocator enc.Name
}

// Child selector values.
const (
	LeftmostChild  uint64 = 0
	RightmostChild uint64 = 1
)
