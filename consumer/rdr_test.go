package consumer

import (
	"crypto/sha256"
	"sync"
	"testing"
	"time"

	enc "github.com/named-data/Consumer-Producer-API/encoding"
	basic_engine "github.com/named-data/Consumer-Producer-API/engine/basic"
	"github.com/named-data/Consumer-Producer-API/ndn"
	"github.com/named-data/Consumer-Producer-API/packet"
	sig "github.com/named-data/Consumer-Producer-API/security/signer"
	"github.com/named-data/Consumer-Producer-API/spec"
	"github.com/named-data/Consumer-Producer-API/types/optional"
	tu "github.com/named-data/Consumer-Producer-API/utils/testutils"
	"github.com/stretchr/testify/require"
)

// expressedInterest is one Interest captured by the mock engine.
type expressedInterest struct {
	interest *ndn.EncodedInterest
	parsed   *spec.Interest
	callback ndn.ExpressCallbackFunc
	id       ndn.PendingID
	answered bool
	removed  bool
}

// mockEngine captures expressed Interests and executes posted tasks
// inline, making every state machine transition synchronous and
// observable.
type mockEngine struct {
	mutex     sync.Mutex
	timer     *basic_engine.DummyTimer
	expressed []*expressedInterest
	nextID    ndn.PendingID
}

func newMockEngine() *mockEngine {
	return &mockEngine{timer: basic_engine.NewDummyTimer()}
}

func (m *mockEngine) String() string {
	return "mock-engine"
}

func (m *mockEngine) Timer() ndn.Timer {
	return m.timer
}

func (m *mockEngine) Start() error {
	return nil
}

func (m *mockEngine) Stop() error {
	return nil
}

func (m *mockEngine) IsRunning() bool {
	return true
}

func (m *mockEngine) Express(interest *ndn.EncodedInterest, callback ndn.ExpressCallbackFunc) (ndn.PendingID, error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.nextID++
	parsed, err := spec.ReadInterest(enc.NewView(interest.Wire.Join()))
	if err != nil {
		return 0, err
	}
	m.expressed = append(m.expressed, &expressedInterest{
		interest: interest,
		parsed:   parsed,
		callback: callback,
		id:       m.nextID,
	})
	return m.nextID, nil
}

func (m *mockEngine) RemovePending(id ndn.PendingID) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	for _, e := range m.expressed {
		if e.id == id {
			e.removed = true
			return nil
		}
	}
	return ndn.ErrInvalidValue{Item: "id", Value: id}
}

func (m *mockEngine) RemoveAllPending() {}

func (m *mockEngine) AttachHandler(prefix enc.Name, handler ndn.InterestHandler) error {
	return nil
}

func (m *mockEngine) DetachHandler(prefix enc.Name) error {
	return nil
}

func (m *mockEngine) Put(dataWire enc.Wire) error {
	return nil
}

func (m *mockEngine) Post(task func()) {
	task()
}

// pendingFor returns the most recent live Interest whose name matches.
func (m *mockEngine) pendingFor(name string) *expressedInterest {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	for i := len(m.expressed) - 1; i >= 0; i-- {
		e := m.expressed[i]
		if !e.answered && !e.removed && e.interest.FinalName.String() == name {
			return e
		}
	}
	return nil
}

// countFor returns how many Interests were expressed for a name,
// digest-pinned expressions included.
func (m *mockEngine) countFor(name string) int {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	n := 0
	for _, e := range m.expressed {
		if e.interest.FinalName.Prefix(-1).String() == name ||
			e.interest.FinalName.String() == name {
			n++
		}
	}
	return n
}

func dataArgs(t *testing.T, encoded *ndn.EncodedData) ndn.ExpressCallbackArgs {
	wire := encoded.Wire.Join()
	parsed, covered, err := spec.ReadData(enc.NewView(wire))
	require.NoError(t, err)
	return ndn.ExpressCallbackArgs{
		Result:     ndn.InterestResultData,
		Data:       parsed,
		RawData:    wire,
		SigCovered: covered,
	}
}

// respond satisfies the most recent pending Interest for name.
func (m *mockEngine) respond(t *testing.T, name string, args ndn.ExpressCallbackArgs) {
	e := m.pendingFor(name)
	require.NotNil(t, e, "no pending interest for %s", name)
	e.answered = true
	e.callback(args)
}

// timeoutPending times out the most recent pending Interest for name.
func (m *mockEngine) timeoutPending(t *testing.T, name string) {
	e := m.pendingFor(name)
	require.NotNil(t, e, "no pending interest for %s", name)
	e.answered = true
	e.callback(ndn.ExpressCallbackArgs{Result: ndn.InterestResultTimeout})
}

func blobSegment(t *testing.T, name string, final uint64, content string) *ndn.EncodedData {
	return tu.NoErr(spec.MakeData(
		tu.NoErr(enc.NameFromStr(name)),
		&ndn.DataConfig{
			ContentType:  optional.Some(ndn.ContentTypeBlob),
			Freshness:    optional.Some(time.Minute),
			FinalBlockID: optional.Some(enc.NewSegmentComponent(final)),
		},
		enc.Wire{[]byte(content)},
		sig.NewSha256Signer(),
	))
}

func newTestConsumer(t *testing.T, opts Options) (*Consumer, *mockEngine) {
	tu.SetT(t)
	engine := newMockEngine()
	c := tu.NoErr(New(tu.NoErr(enc.NameFromStr("/data")), RDR, opts, engine))
	return c, engine
}

func TestRdrStartSendsSegmentZeroOnly(t *testing.T) {
	c, engine := newTestConsumer(t, Options{})
	require.NoError(t, c.Consume(nil))

	require.Equal(t, 1, len(engine.expressed))
	require.Equal(t, "/data/seg=0", engine.expressed[0].interest.FinalName.String())

	r := c.impl.(*rdr)
	require.Equal(t, 1, r.window)
	require.Equal(t, 1, r.inFlight)
}

func TestRdrHappySingleSegment(t *testing.T) {
	var content []byte
	delivered := 0
	opts := Options{
		OnContentRetrieved: func(_ *Consumer, b []byte) {
			content = b
			delivered++
		},
	}
	c, engine := newTestConsumer(t, opts)
	require.NoError(t, c.Consume(nil))

	engine.respond(t, "/data/seg=0", dataArgs(t, blobSegment(t, "/data/seg=0", 0, "hello")))

	require.Equal(t, 1, delivered)
	require.Equal(t, []byte("hello"), content)
	require.False(t, c.Busy())
}

func TestRdrWindowOpensFromSegmentZero(t *testing.T) {
	var content []byte
	opts := Options{
		OnContentRetrieved: func(_ *Consumer, b []byte) { content = b },
	}
	c, engine := newTestConsumer(t, opts)
	require.NoError(t, c.Consume(nil))

	const nSegs = 26
	segName := func(i int) string {
		return "/data/" + enc.NewSegmentComponent(uint64(i)).String()
	}
	payload := func(i int) string {
		return string([]byte{byte('a' + i%26)})
	}

	engine.respond(t, segName(0), dataArgs(t, blobSegment(t, segName(0), nSegs-1, payload(0))))

	r := c.impl.(*rdr)
	require.Equal(t, nSegs-1, r.window)
	// the pipeline filled the window behind segment 0
	require.Equal(t, nSegs, len(engine.expressed))

	for i := 1; i < nSegs; i++ {
		engine.respond(t, segName(i), dataArgs(t, blobSegment(t, segName(i), nSegs-1, payload(i))))
	}

	var expect []byte
	for i := 0; i < nSegs; i++ {
		expect = append(expect, payload(i)...)
	}
	require.Equal(t, expect, content)
	require.False(t, c.Busy())
}

func TestRdrWindowBounds(t *testing.T) {
	opts := Options{MinWindowSize: 2, MaxWindowSize: 8}
	c, engine := newTestConsumer(t, opts)
	require.NoError(t, c.Consume(nil))

	engine.respond(t, "/data/seg=0", dataArgs(t, blobSegment(t, "/data/seg=0", 100, "x")))
	r := c.impl.(*rdr)
	require.Equal(t, 8, r.window)

	// timeouts halve the window down to the minimum
	engine.timeoutPending(t, "/data/seg=1")
	require.Equal(t, 4, r.window)
	engine.timeoutPending(t, "/data/seg=2")
	require.Equal(t, 2, r.window)
	engine.timeoutPending(t, "/data/seg=3")
	require.Equal(t, 2, r.window)

	// verified receipts grow it back, never past the maximum
	for i := 0; i < 20 && r.running; i++ {
		name := "/data/" + enc.NewSegmentComponent(r.nextSeg-1).String()
		e := engine.pendingFor(name)
		if e == nil {
			break
		}
		engine.respond(t, name, dataArgs(t, blobSegment(t, name, 100, "x")))
		require.LessOrEqual(t, r.window, 8)
	}
}

func TestRdrFastRetransmitOnce(t *testing.T) {
	c, engine := newTestConsumer(t, Options{})
	require.NoError(t, c.Consume(nil))

	segName := func(i int) string {
		return "/data/" + enc.NewSegmentComponent(uint64(i)).String()
	}

	engine.respond(t, segName(0), dataArgs(t, blobSegment(t, segName(0), 9, "0")))

	// segments 1, 2 arrive; 3 is lost; 4, 5, 6 arrive out of order
	for _, i := range []int{1, 2, 4, 5} {
		engine.respond(t, segName(i), dataArgs(t, blobSegment(t, segName(i), 9, "x")))
	}
	require.Equal(t, 1, engine.countFor(segName(3)))

	// the third out-of-order arrival past the gap triggers exactly one
	// fast retransmission
	engine.respond(t, segName(6), dataArgs(t, blobSegment(t, segName(6), 9, "x")))
	require.Equal(t, 2, engine.countFor(segName(3)))

	engine.respond(t, segName(7), dataArgs(t, blobSegment(t, segName(7), 9, "x")))
	require.Equal(t, 2, engine.countFor(segName(3)))

	r := c.impl.(*rdr)
	require.True(t, r.fastRetx[3])
}

func TestRdrExclusionRetransmit(t *testing.T) {
	forged := true
	var content []byte
	opts := Options{
		OnDataToVerify: func(_ *Consumer, data ndn.Data, covered enc.Wire) bool {
			if forged {
				forged = false
				return false
			}
			return sig.ValidateSha256(covered, data.Signature())
		},
		OnContentRetrieved: func(_ *Consumer, b []byte) { content = b },
	}
	c, engine := newTestConsumer(t, opts)
	require.NoError(t, c.Consume(nil))

	evil := blobSegment(t, "/data/seg=0", 0, "evil")
	engine.respond(t, "/data/seg=0", dataArgs(t, evil))

	// the retransmission excludes the forged wire image by digest
	retx := engine.pendingFor("/data/seg=0")
	require.NotNil(t, retx)
	require.Equal(t, 1, retx.parsed.Exclude().Size())
	digest := sha256.Sum256(evil.Wire.Join())
	require.True(t, retx.parsed.Exclude().IsExcluded(enc.NewDigestComponent(digest[:])))

	engine.respond(t, "/data/seg=0", dataArgs(t, blobSegment(t, "/data/seg=0", 0, "good")))
	require.Equal(t, []byte("good"), content)
}

func TestRdrPoisoningBudget(t *testing.T) {
	var terminal error
	opts := Options{
		InterestRetx: optional.Some(1),
		OnDataToVerify: func(_ *Consumer, _ ndn.Data, _ enc.Wire) bool {
			return false
		},
		OnError: func(_ *Consumer, err error) { terminal = err },
	}
	c, engine := newTestConsumer(t, opts)
	require.NoError(t, c.Consume(nil))

	engine.respond(t, "/data/seg=0", dataArgs(t, blobSegment(t, "/data/seg=0", 0, "evil")))
	require.Nil(t, terminal)

	engine.respond(t, "/data/seg=0", dataArgs(t, blobSegment(t, "/data/seg=0", 0, "evil2")))
	require.ErrorIs(t, terminal, ndn.ErrContentPoisoned)
	require.False(t, c.Busy())
}

func TestRdrTimeoutCeilingDeliversPrefix(t *testing.T) {
	var terminal error
	var content []byte
	opts := Options{
		InterestRetx:       optional.Some(1),
		OnError:            func(_ *Consumer, err error) { terminal = err },
		OnContentRetrieved: func(_ *Consumer, b []byte) { content = b },
	}
	c, engine := newTestConsumer(t, opts)
	require.NoError(t, c.Consume(nil))

	engine.respond(t, "/data/seg=0", dataArgs(t, blobSegment(t, "/data/seg=0", 2, "aa")))
	engine.respond(t, "/data/seg=1", dataArgs(t, blobSegment(t, "/data/seg=1", 2, "bb")))

	engine.timeoutPending(t, "/data/seg=2")
	require.Nil(t, terminal)
	// the retransmission also times out; the budget is exhausted and
	// the contiguous prefix is delivered before the error
	engine.timeoutPending(t, "/data/seg=2")
	require.ErrorIs(t, terminal, ndn.ErrNotAvailable)
	require.Equal(t, []byte("aabb"), content)
}

func TestRdrNackProducerDelay(t *testing.T) {
	var content []byte
	opts := Options{
		MaxWindowSize:      4,
		MinWindowSize:      1,
		OnContentRetrieved: func(_ *Consumer, b []byte) { content = b },
	}
	c, engine := newTestConsumer(t, opts)
	require.NoError(t, c.Consume(nil))

	nack := packet.NewNack(packet.NackProducerDelay)
	nack.SetRetryAfter(500 * time.Millisecond)
	nackData := tu.NoErr(spec.MakeData(
		tu.NoErr(enc.NameFromStr("/data/seg=0")),
		&ndn.DataConfig{
			ContentType: optional.Some(ndn.ContentTypeNack),
			Freshness:   optional.Some(time.Second),
		},
		enc.Wire{nack.Encode()},
		sig.NewSha256Signer(),
	))
	engine.respond(t, "/data/seg=0", dataArgs(t, nackData))

	// nothing is retransmitted before the producer's delay elapses
	require.Nil(t, engine.pendingFor("/data/seg=0"))
	engine.timer.MoveForward(499 * time.Millisecond)
	require.Nil(t, engine.pendingFor("/data/seg=0"))

	engine.timer.MoveForward(2 * time.Millisecond)
	retx := engine.pendingFor("/data/seg=0")
	require.NotNil(t, retx)
	require.True(t, retx.parsed.MustBeFresh())

	engine.respond(t, "/data/seg=0", dataArgs(t, blobSegment(t, "/data/seg=0", 0, "finally")))
	require.Equal(t, []byte("finally"), content)
}

func TestRdrNackNotAvailable(t *testing.T) {
	var terminal error
	opts := Options{
		OnError: func(_ *Consumer, err error) { terminal = err },
	}
	c, engine := newTestConsumer(t, opts)
	require.NoError(t, c.Consume(nil))

	nackData := tu.NoErr(spec.MakeData(
		tu.NoErr(enc.NameFromStr("/data/seg=0")),
		&ndn.DataConfig{
			ContentType: optional.Some(ndn.ContentTypeNack),
			Freshness:   optional.Some(time.Second),
		},
		enc.Wire{packet.NewNack(packet.NackDataNotAvailable).Encode()},
		sig.NewSha256Signer(),
	))
	engine.respond(t, "/data/seg=0", dataArgs(t, nackData))

	require.ErrorIs(t, terminal, ndn.ErrNotAvailable)
	require.False(t, c.Busy())
}

// manifestFor catalogues the given packets into a signed manifest
// named manifestName.
func manifestFor(t *testing.T, manifestName string, packets ...*ndn.EncodedData) *ndn.EncodedData {
	m := packet.NewManifest()
	for _, p := range packets {
		wire := p.Wire.Join()
		digest := sha256.Sum256(wire)
		parsed, _, err := spec.ReadData(enc.NewView(wire))
		require.NoError(t, err)
		m.AddToCatalogue(parsed.Name().At(-1), digest[:])
	}
	return tu.NoErr(spec.MakeData(
		tu.NoErr(enc.NameFromStr(manifestName)),
		&ndn.DataConfig{
			ContentType: optional.Some(ndn.ContentTypeManifest),
			Freshness:   optional.Some(time.Minute),
		},
		enc.Wire{m.Encode()},
		sig.NewSha256Signer(),
	))
}

// manifestBlob builds a data segment whose key locator references an
// in-stream manifest.
func manifestBlob(t *testing.T, name string, locator string, final uint64, content string) *ndn.EncodedData {
	locatorName := tu.NoErr(enc.NameFromStr(locator))
	return tu.NoErr(spec.MakeData(
		tu.NoErr(enc.NameFromStr(name)),
		&ndn.DataConfig{
			ContentType:  optional.Some(ndn.ContentTypeBlob),
			Freshness:    optional.Some(time.Minute),
			FinalBlockID: optional.Some(enc.NewSegmentComponent(final)),
		},
		enc.Wire{[]byte(content)},
		sig.NewLocatedSha256Signer(locatorName),
	))
}

func TestRdrManifestArrivesAfterData(t *testing.T) {
	var content []byte
	opts := Options{
		MaxWindowSize:      4,
		MinWindowSize:      1,
		OnContentRetrieved: func(_ *Consumer, b []byte) { content = b },
	}
	c, engine := newTestConsumer(t, opts)
	require.NoError(t, c.Consume(nil))

	d0 := manifestBlob(t, "/data/seg=0", "/data/seg=1", 0, "hello")
	m1 := manifestFor(t, "/data/seg=1", d0)

	// the data segment arrives before its manifest and is held back
	engine.respond(t, "/data/seg=0", dataArgs(t, d0))
	require.Nil(t, content)
	r := c.impl.(*rdr)
	require.Equal(t, 1, len(r.rxUnverified))

	// the manifest settles it and reassembly completes
	engine.respond(t, "/data/seg=1", dataArgs(t, m1))
	require.Equal(t, []byte("hello"), content)
	require.Equal(t, 0, len(r.rxUnverified))
	require.False(t, c.Busy())
}

func TestRdrManifestVerifiesWithoutNetwork(t *testing.T) {
	var content []byte
	opts := Options{
		MaxWindowSize:      8,
		MinWindowSize:      1,
		OnContentRetrieved: func(_ *Consumer, b []byte) { content = b },
	}
	c, engine := newTestConsumer(t, opts)
	require.NoError(t, c.Consume(nil))

	// manifest at segment 0 dominating data segments 1..3
	d1 := manifestBlob(t, "/data/seg=1", "/data/seg=0", 3, "aa")
	d2 := manifestBlob(t, "/data/seg=2", "/data/seg=0", 3, "bb")
	d3 := manifestBlob(t, "/data/seg=3", "/data/seg=0", 3, "cc")
	m0 := manifestFor(t, "/data/seg=0", d1, d2, d3)

	engine.respond(t, "/data/seg=0", dataArgs(t, m0))
	engine.respond(t, "/data/seg=1", dataArgs(t, d1))
	engine.respond(t, "/data/seg=2", dataArgs(t, d2))
	engine.respond(t, "/data/seg=3", dataArgs(t, d3))

	require.Equal(t, []byte("aabbcc"), content)
	// every data segment was settled by the catalogue: one expression
	// each, no retransmissions
	for i := 1; i <= 3; i++ {
		name := "/data/" + enc.NewSegmentComponent(uint64(i)).String()
		require.Equal(t, 1, engine.countFor(name))
	}
}

func TestRdrDigestPinnedRetransmit(t *testing.T) {
	var content []byte
	opts := Options{
		MaxWindowSize:      4,
		MinWindowSize:      1,
		OnContentRetrieved: func(_ *Consumer, b []byte) { content = b },
	}
	c, engine := newTestConsumer(t, opts)
	require.NoError(t, c.Consume(nil))

	good := manifestBlob(t, "/data/seg=0", "/data/seg=1", 0, "good")
	evil := manifestBlob(t, "/data/seg=0", "/data/seg=1", 0, "evil")
	m1 := manifestFor(t, "/data/seg=1", good)

	// the forged segment is held, then refuted by the manifest
	engine.respond(t, "/data/seg=0", dataArgs(t, evil))
	engine.respond(t, "/data/seg=1", dataArgs(t, m1))
	require.Nil(t, content)

	// the retransmission pins the catalogued digest in the name
	goodDigest := sha256.Sum256(good.Wire.Join())
	pinnedName := tu.NoErr(enc.NameFromStr("/data/seg=0")).
		Append(enc.NewDigestComponent(goodDigest[:]))
	pinned := engine.pendingFor(pinnedName.String())
	require.NotNil(t, pinned)

	engine.respond(t, pinnedName.String(), dataArgs(t, good))
	require.Equal(t, []byte("good"), content)
}

func TestRdrStopFromCallback(t *testing.T) {
	delivered := 0
	opts := Options{
		OnDataEnterCntx: func(cc *Consumer, _ ndn.Data) {
			cc.Stop()
		},
		OnContentRetrieved: func(_ *Consumer, _ []byte) { delivered++ },
	}
	c, engine := newTestConsumer(t, opts)
	require.NoError(t, c.Consume(nil))

	engine.respond(t, "/data/seg=0", dataArgs(t, blobSegment(t, "/data/seg=0", 5, "x")))
	require.False(t, c.Busy())
	require.Equal(t, 0, delivered)
}
