package producer

import (
	"time"

	enc "github.com/named-data/Consumer-Producer-API/encoding"
	"github.com/named-data/Consumer-Producer-API/ndn"
	"github.com/named-data/Consumer-Producer-API/spec"
)

// Default and limit values for producer options.
const (
	DefaultDataPacketSize = 2048
	MaxDataPacketSize     = 8096
	DefaultDataFreshness  = 100 * time.Second
	DefaultRcvBufSize     = 1000
	DefaultSndBufSize     = 1000
	DefaultKeyLocatorSize = 256
	DefaultSafetyOffset   = 10
)

// InterestCallback observes an Interest at one point of the request
// path.
type InterestCallback func(p *Producer, interest ndn.Interest)

// DataCallback observes a produced segment at one point of the
// emission path.
type DataCallback func(p *Producer, data *spec.Data)

// Options configures a Producer. Fields left zero take the defaults
// above; Validate reports the first out-of-range value.
type Options struct {
	// DataPacketSize bounds the wire size of emitted segments.
	DataPacketSize int
	// DataFreshness is the freshness period of emitted segments.
	DataFreshness time.Duration
	// Signer signs manifests and plain segments. Defaults to the
	// DigestSha256 signer.
	Signer ndn.Signer
	// KeyLocatorSize is the key locator estimate used when computing
	// the per-segment payload capacity.
	KeyLocatorSize int
	// RcvBufSize bounds the incoming Interest queue.
	RcvBufSize int
	// SndBufSize bounds the send-side content store.
	SndBufSize int
	// FastSigning enables manifest-chained segmentation: data
	// segments carry self-digests bound to signed in-stream manifests.
	FastSigning bool
	// ForwardingStrategy names the strategy announced for the prefix.
	// Informational; strategy negotiation is the forwarder's business.
	ForwardingStrategy string

	OnInterestEnterCntx  InterestCallback
	OnInterestDropRcvBuf InterestCallback
	OnInterestPassRcvBuf InterestCallback
	OnCacheHit           InterestCallback
	OnCacheMiss          InterestCallback

	OnNewSegment      DataCallback
	OnDataInSndBuf    DataCallback
	OnDataLeaveCntx   DataCallback
	OnDataEvictSndBuf DataCallback
}

// Validate fills defaults in place and rejects out-of-range values.
func (o *Options) Validate() error {
	if o.DataPacketSize == 0 {
		o.DataPacketSize = DefaultDataPacketSize
	}
	if o.DataPacketSize < 0 || o.DataPacketSize > MaxDataPacketSize {
		return ndn.ErrInvalidValue{Item: "DataPacketSize", Value: o.DataPacketSize}
	}
	if o.DataFreshness == 0 {
		o.DataFreshness = DefaultDataFreshness
	}
	if o.DataFreshness < 0 {
		return ndn.ErrInvalidValue{Item: "DataFreshness", Value: o.DataFreshness}
	}
	if o.KeyLocatorSize == 0 {
		o.KeyLocatorSize = DefaultKeyLocatorSize
	}
	if o.KeyLocatorSize < 0 {
		return ndn.ErrInvalidValue{Item: "KeyLocatorSize", Value: o.KeyLocatorSize}
	}
	if o.RcvBufSize == 0 {
		o.RcvBufSize = DefaultRcvBufSize
	}
	if o.RcvBufSize < 1 {
		return ndn.ErrInvalidValue{Item: "RcvBufSize", Value: o.RcvBufSize}
	}
	if o.SndBufSize == 0 {
		o.SndBufSize = DefaultSndBufSize
	}
	if o.SndBufSize < 0 {
		return ndn.ErrInvalidValue{Item: "SndBufSize", Value: o.SndBufSize}
	}
	return nil
}

// payloadCapacity computes the free space for content in one segment
// under the given ADU name.
func (o *Options) payloadCapacity(name enc.Name, signer ndn.Signer) int {
	return o.DataPacketSize - len(name.Bytes()) - int(signer.EstimateSize()) -
		o.KeyLocatorSize - DefaultSafetyOffset
}
