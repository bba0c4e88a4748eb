package producer

import (
	"crypto/sha256"
	"time"

	enc "github.com/named-data/Consumer-Producer-API/encoding"
	"github.com/named-data/Consumer-Producer-API/log"
	"github.com/named-data/Consumer-Producer-API/ndn"
	"github.com/named-data/Consumer-Producer-API/packet"
	sig "github.com/named-data/Consumer-Producer-API/security/signer"
	"github.com/named-data/Consumer-Producer-API/spec"
	"github.com/named-data/Consumer-Producer-API/types/optional"
)

// Produce cuts an application buffer into ordered signed segments
// under prefix||suffix and emits them. With FastSigning, in-stream
// manifests carrying the data segments' digests are interleaved and
// the data segments reference them by key locator. An empty buffer
// produces no segments.
func (p *Producer) Produce(suffix enc.Name, content []byte) error {
	if len(content) == 0 {
		return nil
	}

	name := p.prefix.Append(suffix...)
	payloadCap := p.opts.payloadCapacity(name, p.opts.Signer)
	if payloadCap <= 0 {
		return ndn.ErrInvalidValue{Item: "DataPacketSize", Value: p.opts.DataPacketSize}
	}

	nSegments := len(content) / payloadCap
	if nSegments == 0 {
		nSegments = 1
	}
	if payloadCap*nSegments < len(content) {
		nSegments++
	}

	if p.opts.FastSigning {
		return p.produceWithManifests(name, content, payloadCap, nSegments)
	}
	return p.producePlain(name, content, payloadCap, nSegments)
}

// AsyncProduce reposts Produce onto the engine goroutine.
func (p *Producer) AsyncProduce(suffix enc.Name, content []byte) {
	p.engine.Post(func() {
		if err := p.Produce(suffix, content); err != nil {
			log.Error(p, "Async produce failed", "err", err)
		}
	})
}

// producePlain emits nSegments Blob segments, each carrying the final
// block marker of the last one.
func (p *Producer) producePlain(name enc.Name, content []byte, payloadCap, nSegments int) error {
	finalBlock := enc.NewSegmentComponent(uint64(nSegments - 1))
	packaged := 0

	for i := 0; i < nSegments; i++ {
		payload := content[packaged:min(packaged+payloadCap, len(content))]
		packaged += len(payload)

		data, err := spec.MakeData(
			name.Append(enc.NewSegmentComponent(uint64(i))),
			&ndn.DataConfig{
				ContentType:  optional.Some(ndn.ContentTypeBlob),
				Freshness:    optional.Some(p.opts.DataFreshness),
				FinalBlockID: optional.Some(finalBlock),
			},
			enc.Wire{payload},
			p.opts.Signer,
		)
		if err != nil {
			return err
		}
		p.emitSegment(data)
	}
	return nil
}

// produceWithManifests interleaves rolling manifests with the data
// segments they dominate. Every data segment is self-digested and key
// located at its manifest; each manifest is signed by the configured
// signer and carries the projected final block marker at emission.
func (p *Producer) produceWithManifests(name enc.Name, content []byte, payloadCap, nSegments int) error {
	var manifest *packet.Manifest
	var manifestName enc.Name

	currentSegment := uint64(0)
	packaged := 0
	bytesPackaged := 0
	needManifest := true

	// projected index of the overall last segment, counting the
	// manifests emitted so far and those still pending
	projectedFinal := func() enc.Component {
		return enc.NewSegmentComponent(currentSegment + uint64(nSegments-packaged) - 1)
	}

	emitManifest := func() error {
		data, err := spec.MakeData(
			manifestName,
			&ndn.DataConfig{
				ContentType:  optional.Some(ndn.ContentTypeManifest),
				Freshness:    optional.Some(p.opts.DataFreshness),
				FinalBlockID: optional.Some(projectedFinal()),
			},
			enc.Wire{manifest.Encode()},
			p.opts.Signer,
		)
		if err != nil {
			return err
		}
		p.emitSegment(data)
		return nil
	}

	for packaged < nSegments {
		if needManifest {
			if manifest != nil {
				if err := emitManifest(); err != nil {
					return err
				}
			}
			manifest = packet.NewManifest()
			manifestName = name.Append(enc.NewSegmentComponent(currentSegment))
			needManifest = false
			currentSegment++
		}

		segName := name.Append(enc.NewSegmentComponent(currentSegment))
		payload := content[bytesPackaged:min(bytesPackaged+payloadCap, len(content))]
		bytesPackaged += len(payload)

		data, err := spec.MakeData(
			segName,
			&ndn.DataConfig{
				ContentType:  optional.Some(ndn.ContentTypeBlob),
				Freshness:    optional.Some(p.opts.DataFreshness),
				FinalBlockID: optional.Some(enc.NewSegmentComponent(currentSegment + uint64(nSegments-packaged) - 1)),
			},
			enc.Wire{payload},
			sig.NewLocatedSha256Signer(manifestName),
		)
		if err != nil {
			return err
		}
		p.emitSegment(data)
		currentSegment++
		packaged++

		wire := data.Wire.Join()
		digest := sha256.Sum256(wire)
		manifest.AddToCatalogue(segName.At(-1), digest[:])

		// start a new manifest before this one outgrows the packet
		fullNameSize := len(segName.Bytes()) + 32
		if p.estimateManifestSize(manifestName, manifest)+2*fullNameSize > p.opts.DataPacketSize {
			needManifest = true
		}

		if packaged == nSegments {
			if err := emitManifest(); err != nil {
				return err
			}
		}
	}
	return nil
}

// estimateManifestSize approximates the encoded size of a manifest
// with its name, catalogue and key locator allowance.
func (p *Producer) estimateManifestSize(manifestName enc.Name, manifest *packet.Manifest) int {
	size := len(manifestName.Bytes())
	for _, n := range manifest.Catalogue() {
		size += len(n.Bytes())
	}
	return size + p.opts.KeyLocatorSize
}

// emitSegment passes one segment through the callback ladder, caches
// it and emits it to the network.
func (p *Producer) emitSegment(data *ndn.EncodedData) {
	parsed := data.Parsed.(*spec.Data)
	wire := data.Wire.Join()

	p.stats.SegmentsProduced.Inc()
	if p.opts.OnNewSegment != nil {
		p.opts.OnNewSegment(p, parsed)
	}
	if p.opts.OnDataInSndBuf != nil {
		p.opts.OnDataInSndBuf(p, parsed)
	}
	p.sendBuffer.Insert(parsed, wire)
	if p.opts.OnDataLeaveCntx != nil {
		p.opts.OnDataLeaveCntx(p, parsed)
	}
	if err := p.engine.Put(enc.Wire{wire}); err != nil {
		log.Warn(p, "Failed to emit segment", "err", err, "name", parsed.Name())
	}
}

// ProduceData caches and emits a pre-built packet whose name falls
// under the producer's prefix.
func (p *Producer) ProduceData(data *ndn.EncodedData) error {
	parsed, ok := data.Parsed.(*spec.Data)
	if !ok {
		return ndn.ErrWrongType
	}
	if !p.prefix.IsPrefix(parsed.Name()) {
		return ndn.ErrInvalidValue{Item: "name", Value: parsed.Name()}
	}

	wire := data.Wire.Join()
	if p.opts.OnDataInSndBuf != nil {
		p.opts.OnDataInSndBuf(p, parsed)
	}
	p.sendBuffer.Insert(parsed, wire)
	if p.opts.OnDataLeaveCntx != nil {
		p.opts.OnDataLeaveCntx(p, parsed)
	}
	return p.engine.Put(enc.Wire{wire})
}

// Nack answers an Interest with an Application NACK. The NACK expires
// much faster than regular segments so caches cannot pin it.
func (p *Producer) Nack(interest ndn.Interest, code packet.NackCode, retryAfter time.Duration) error {
	nack := packet.NewNack(code)
	if retryAfter > 0 {
		nack.SetRetryAfter(retryAfter)
	}

	freshness := p.opts.DataFreshness/10 + time.Millisecond

	data, err := spec.MakeData(
		interest.Name(),
		&ndn.DataConfig{
			ContentType: optional.Some(ndn.ContentTypeNack),
			Freshness:   optional.Some(freshness),
		},
		enc.Wire{nack.Encode()},
		p.opts.Signer,
	)
	if err != nil {
		return err
	}

	p.stats.Nacks.Inc()
	parsed := data.Parsed.(*spec.Data)
	if p.opts.OnDataLeaveCntx != nil {
		p.opts.OnDataLeaveCntx(p, parsed)
	}
	return p.engine.Put(data.Wire)
}
