package producer_test

import (
	"bytes"
	"crypto/sha256"
	"testing"
	"time"

	enc "github.com/named-data/Consumer-Producer-API/encoding"
	basic_engine "github.com/named-data/Consumer-Producer-API/engine/basic"
	"github.com/named-data/Consumer-Producer-API/engine/face"
	"github.com/named-data/Consumer-Producer-API/ndn"
	"github.com/named-data/Consumer-Producer-API/packet"
	"github.com/named-data/Consumer-Producer-API/producer"
	"github.com/named-data/Consumer-Producer-API/spec"
	"github.com/named-data/Consumer-Producer-API/types/optional"
	tu "github.com/named-data/Consumer-Producer-API/utils/testutils"
	"github.com/stretchr/testify/require"
)

func executeTest(t *testing.T, opts producer.Options, main func(*face.DummyFace, *producer.Producer)) {
	tu.SetT(t)

	f := face.NewDummyFace()
	timer := basic_engine.NewDummyTimer()
	engine := basic_engine.NewEngine(f, timer)
	require.NoError(t, engine.Start())
	defer engine.Stop()

	p := tu.NoErr(producer.New(tu.NoErr(enc.NameFromStr("/app")), opts, engine))
	require.NoError(t, p.Attach())
	defer p.Detach()

	main(f, p)
}

// drainSegments collects every packet the producer emitted.
func drainSegments(f *face.DummyFace) []*spec.Data {
	var ret []*spec.Data
	for {
		buf, err := f.Consume()
		if err != nil {
			return ret
		}
		data, _, err := spec.ReadData(enc.NewView(buf))
		if err != nil {
			continue
		}
		ret = append(ret, data)
	}
}

func TestProduceEmpty(t *testing.T) {
	executeTest(t, producer.Options{}, func(f *face.DummyFace, p *producer.Producer) {
		require.NoError(t, p.Produce(nil, nil))
		require.Equal(t, 0, f.Outstanding())
		require.Equal(t, 0, p.SendBuffer().Len())
	})
}

func TestProduceSingleSegment(t *testing.T) {
	executeTest(t, producer.Options{DataPacketSize: 8096}, func(f *face.DummyFace, p *producer.Producer) {
		require.NoError(t, p.Produce(nil, []byte("hello")))

		segments := drainSegments(f)
		require.Equal(t, 1, len(segments))
		data := segments[0]
		require.Equal(t, "/app/seg=0", data.Name().String())
		require.Equal(t, []byte("hello"), []byte(data.Content()))
		require.Equal(t, uint64(0), data.FinalBlockID().Unwrap().NumberVal())
		require.Equal(t, ndn.ContentTypeBlob, data.ContentType().Unwrap())
	})
}

func TestProduceSegmentation(t *testing.T) {
	executeTest(t, producer.Options{DataPacketSize: 1024}, func(f *face.DummyFace, p *producer.Producer) {
		content := make([]byte, 5000)
		for i := range content {
			content[i] = byte(i)
		}
		suffix := tu.NoErr(enc.NameFromStr("/file"))
		require.NoError(t, p.Produce(suffix, content))

		segments := drainSegments(f)
		require.Greater(t, len(segments), 1)

		final := segments[len(segments)-1]
		require.Equal(t, final.Name().At(-1).NumberVal(),
			final.FinalBlockID().Unwrap().NumberVal())

		var reassembled []byte
		for i, data := range segments {
			require.Equal(t, uint64(i), data.Name().At(-1).NumberVal())
			require.True(t, len(data.Name().Bytes())+len(data.Content()) <= 1024)
			reassembled = append(reassembled, data.Content()...)
		}
		require.True(t, bytes.Equal(content, reassembled))
	})
}

func TestProduceExactPayloadCap(t *testing.T) {
	executeTest(t, producer.Options{DataPacketSize: 1024}, func(f *face.DummyFace, p *producer.Producer) {
		// one segment exactly at capacity
		name := tu.NoErr(enc.NameFromStr("/app"))
		opts := producer.Options{DataPacketSize: 1024}
		require.NoError(t, opts.Validate())
		capacity := 1024 - len(name.Bytes()) - 32 - opts.KeyLocatorSize - producer.DefaultSafetyOffset

		require.NoError(t, p.Produce(nil, make([]byte, capacity)))
		segments := drainSegments(f)
		require.Equal(t, 1, len(segments))
		require.Equal(t, uint64(0), segments[0].FinalBlockID().Unwrap().NumberVal())
	})
}

func TestProduceManifestChaining(t *testing.T) {
	opts := producer.Options{DataPacketSize: 1024, FastSigning: true}
	executeTest(t, opts, func(f *face.DummyFace, p *producer.Producer) {
		content := make([]byte, 20000)
		for i := range content {
			content[i] = byte(i * 7)
		}
		require.NoError(t, p.Produce(nil, content))

		segments := drainSegments(f)
		manifests := map[uint64]*packet.Manifest{}
		var blobs []*spec.Data
		var rawByName = map[string]*spec.Data{}

		for _, data := range segments {
			switch data.ContentType().Unwrap() {
			case ndn.ContentTypeManifest:
				m := tu.NoErr(packet.DecodeManifest(data.Content()))
				manifests[data.Name().At(-1).NumberVal()] = m
			case ndn.ContentTypeBlob:
				blobs = append(blobs, data)
			}
			rawByName[data.Name().String()] = data
		}
		require.NotEmpty(t, manifests)
		require.NotEmpty(t, blobs)

		// invariant: every data segment's key locator names a manifest
		// whose catalogue holds its (segment, digest) entry
		for _, data := range blobs {
			locator := data.Signature().KeyLocator()
			require.NotNil(t, locator)
			m, ok := manifests[locator.At(-1).NumberVal()]
			require.True(t, ok)

			entry := p.SendBuffer().Find(&spec.Interest{NameV: data.Name()})
			require.NotNil(t, entry)
			digest := sha256.Sum256(entry.Wire())
			require.True(t, m.VerifySegment(data.Name().At(-1), digest[:]))
		}

		// invariant: exactly one segment carries its own index as the
		// final block marker, and it is the last in name order
		terminal := 0
		var lastSeg uint64
		for _, data := range segments {
			if data.Name().At(-1).NumberVal() > lastSeg {
				lastSeg = data.Name().At(-1).NumberVal()
			}
		}
		for _, data := range segments {
			if fb, ok := data.FinalBlockID().Get(); ok &&
				fb.NumberVal() == data.Name().At(-1).NumberVal() {
				terminal++
				require.Equal(t, lastSeg, data.Name().At(-1).NumberVal())
			}
		}
		require.Equal(t, 1, terminal)

		// reassembly in segment order skipping manifests matches input
		var reassembled []byte
		for seg := uint64(0); seg <= lastSeg; seg++ {
			comp := enc.NewSegmentComponent(seg)
			data := rawByName["/app/"+comp.String()]
			require.NotNil(t, data)
			if data.ContentType().Unwrap() == ndn.ContentTypeBlob {
				reassembled = append(reassembled, data.Content()...)
			}
		}
		require.True(t, bytes.Equal(content, reassembled))
	})
}

func TestCacheHit(t *testing.T) {
	hits := 0
	misses := 0
	opts := producer.Options{
		DataPacketSize: 8096,
		OnCacheHit:     func(p *producer.Producer, i ndn.Interest) { hits++ },
		OnCacheMiss:    func(p *producer.Producer, i ndn.Interest) { misses++ },
	}
	executeTest(t, opts, func(f *face.DummyFace, p *producer.Producer) {
		require.NoError(t, p.Produce(nil, []byte("cached")))
		drainSegments(f)

		interest := tu.NoErr(spec.MakeInterest(
			tu.NoErr(enc.NameFromStr("/app/seg=0")),
			&ndn.InterestConfig{Lifetime: optional.Some(time.Second)}))
		require.NoError(t, f.FeedPacket(interest.Wire.Join()))

		segments := drainSegments(f)
		require.Equal(t, 1, len(segments))
		require.Equal(t, []byte("cached"), []byte(segments[0].Content()))
		require.Equal(t, 1, hits)
		require.Equal(t, 0, misses)
	})
}

func TestCacheMiss(t *testing.T) {
	produced := make(chan enc.Name, 1)
	opts := producer.Options{
		DataPacketSize: 8096,
		OnCacheMiss: func(p *producer.Producer, i ndn.Interest) {
			produced <- i.Name()
		},
	}
	executeTest(t, opts, func(f *face.DummyFace, p *producer.Producer) {
		interest := tu.NoErr(spec.MakeInterest(
			tu.NoErr(enc.NameFromStr("/app/other/seg=0")),
			&ndn.InterestConfig{Lifetime: optional.Some(time.Second)}))
		require.NoError(t, f.FeedPacket(interest.Wire.Join()))

		select {
		case name := <-produced:
			require.Equal(t, "/app/other/seg=0", name.String())
		case <-time.After(time.Second):
			t.Fatal("cache miss callback never fired")
		}
	})
}

func TestNackFreshness(t *testing.T) {
	opts := producer.Options{DataFreshness: 10 * time.Second}
	executeTest(t, opts, func(f *face.DummyFace, p *producer.Producer) {
		interest := spec.InterestFromConfig(
			tu.NoErr(enc.NameFromStr("/app/missing/seg=0")),
			&ndn.InterestConfig{})

		require.NoError(t, p.Nack(interest, packet.NackProducerDelay, 500*time.Millisecond))

		buf := tu.NoErr(f.Consume())
		data, _, err := spec.ReadData(enc.NewView(buf))
		require.NoError(t, err)
		require.Equal(t, ndn.ContentTypeNack, data.ContentType().Unwrap())

		// NACK freshness is strictly below the blob freshness
		require.Less(t, data.Freshness().Unwrap(), opts.DataFreshness)
		require.Equal(t, time.Second+time.Millisecond, data.Freshness().Unwrap())

		nack := tu.NoErr(packet.DecodeNack(data.Content()))
		require.Equal(t, packet.NackProducerDelay, nack.Code())
		require.Equal(t, 500*time.Millisecond, nack.RetryAfter())
	})
}
