package consumer

import (
	"time"

	enc "github.com/named-data/Consumer-Producer-API/encoding"
	"github.com/named-data/Consumer-Producer-API/ndn"
	"github.com/named-data/Consumer-Producer-API/packet"
	"github.com/named-data/Consumer-Producer-API/types/optional"
)

// Default and limit values for consumer options.
const (
	// DefaultInterestLifetime is the single lifetime default. While
	// the caller leaves Lifetime unset, the effective lifetime tracks
	// the RTT estimator's timeout instead.
	DefaultInterestLifetime = 200 * time.Millisecond

	DefaultInterestRetx      = 4
	MaxInterestRetx          = 32
	DefaultMinWindowSize     = 4
	DefaultMaxWindowSize     = 64
	DefaultMaxExcludedDigest = 5

	// FastRetxCondition is the number of out-of-order arrivals past a
	// gap that triggers a fast retransmission.
	FastRetxCondition = 3
)

// InterestCallback observes an Interest at one point of the pipeline.
type InterestCallback func(c *Consumer, interest ndn.Interest)

// DataCallback observes a received Data packet.
type DataCallback func(c *Consumer, data ndn.Data)

// VerificationCallback decides whether a received packet is authentic.
// The covered range is the packet's signed byte range.
type VerificationCallback func(c *Consumer, data ndn.Data, sigCovered enc.Wire) bool

// NackCallback observes a received Application NACK.
type NackCallback func(c *Consumer, nack *packet.Nack)

// ManifestCallback observes a verified in-stream manifest.
type ManifestCallback func(c *Consumer, manifest *packet.Manifest)

// ContentCallback delivers the reassembled buffer. Fires at most once
// per Consume call.
type ContentCallback func(c *Consumer, content []byte)

// ErrorCallback surfaces a terminal retrieval error.
type ErrorCallback func(c *Consumer, err error)

// Options configures a Consumer. Fields left zero take the defaults
// above; Validate reports the first out-of-range value.
type Options struct {
	// Lifetime pins the Interest lifetime. Unset, the lifetime starts
	// at DefaultInterestLifetime and follows the estimator's RTO.
	Lifetime optional.Optional[time.Duration]
	// InterestRetx bounds per-segment retransmissions (0..32).
	InterestRetx optional.Optional[int]

	MinWindowSize     int
	MaxWindowSize     int
	CurrentWindowSize int

	MustBeFresh         bool
	MinSuffixComponents optional.Optional[uint64]
	MaxSuffixComponents optional.Optional[uint64]
	ChildSelector       optional.Optional[uint64]
	Exclude             *ndn.Exclude
	PublisherKeyLocator enc.Name
	MaxExcludedDigests  int

	// AsyncMode reposts Consume calls on a busy context instead of
	// rejecting them.
	AsyncMode bool

	OnInterestLeaveCntx InterestCallback
	OnInterestRetx      InterestCallback
	OnInterestExpired   InterestCallback
	OnInterestSatisfied InterestCallback
	OnDataEnterCntx     DataCallback
	OnDataToVerify      VerificationCallback
	OnNackEnterCntx     NackCallback
	OnManifestEnterCntx ManifestCallback
	OnContentRetrieved  ContentCallback
	OnError             ErrorCallback
}

// Validate fills defaults in place and rejects out-of-range values.
func (o *Options) Validate() error {
	if v, ok := o.InterestRetx.Get(); ok && (v < 0 || v > MaxInterestRetx) {
		return ndn.ErrInvalidValue{Item: "InterestRetx", Value: v}
	}
	if o.MinWindowSize == 0 {
		o.MinWindowSize = DefaultMinWindowSize
	}
	if o.MaxWindowSize == 0 {
		o.MaxWindowSize = DefaultMaxWindowSize
	}
	if o.MinWindowSize < 1 || o.MaxWindowSize < o.MinWindowSize {
		return ndn.ErrInvalidValue{Item: "MinWindowSize", Value: o.MinWindowSize}
	}
	if o.MaxExcludedDigests == 0 {
		o.MaxExcludedDigests = DefaultMaxExcludedDigest
	}
	if o.MaxExcludedDigests < 0 {
		return ndn.ErrInvalidValue{Item: "MaxExcludedDigests", Value: o.MaxExcludedDigests}
	}
	if v, ok := o.Lifetime.Get(); ok && v <= 0 {
		return ndn.ErrInvalidValue{Item: "Lifetime", Value: v}
	}
	return nil
}

// maxRetx returns the effective retransmission ceiling.
func (o *Options) maxRetx() int {
	return o.InterestRetx.GetOr(DefaultInterestRetx)
}
