package consumer

import (
	"crypto/sha256"
	"slices"
	"time"

	enc "github.com/named-data/Consumer-Producer-API/encoding"
	"github.com/named-data/Consumer-Producer-API/log"
	"github.com/named-data/Consumer-Producer-API/ndn"
	"github.com/named-data/Consumer-Producer-API/packet"
	"github.com/named-data/Consumer-Producer-API/rtt"
	sig "github.com/named-data/Consumer-Producer-API/security/signer"
	"github.com/named-data/Consumer-Producer-API/spec"
	"github.com/named-data/Consumer-Producer-API/types/optional"
	"github.com/named-data/Consumer-Producer-API/utils"
)

// rxEntry is one received response held by the state machine.
type rxEntry struct {
	data       *spec.Data
	raw        enc.Buffer
	sigCovered enc.Wire
}

// rdr is the reliable retrieval state machine: a windowed, self
// clocked Interest pipeline with RTT-driven timeouts, fast
// retransmission, NACK recovery, content-poisoning recovery and
// manifest-driven verification. Every transition runs on the engine
// goroutine.
type rdr struct {
	c      *Consumer
	suffix enc.Name

	running   bool
	delivered bool

	finalKnown      bool
	finalSeg        uint64
	nextSeg         uint64
	lastReassembled uint64

	window   int
	inFlight int

	retx      map[uint64]int
	pending   map[uint64]ndn.PendingID
	scheduled map[uint64]func() error
	sendTime  map[uint64]time.Time

	rxVerified   map[uint64]*rxEntry
	rxUnverified map[uint64]*rxEntry
	manifests    map[uint64]*packet.Manifest

	received    map[uint64]bool
	maxReceived uint64
	hasReceived bool
	fastRetx    map[uint64]bool

	content []byte

	est      *rtt.Estimator
	lifetime time.Duration
}

func newRdr(c *Consumer) *rdr {
	return &rdr{c: c}
}

// start resets the per-ADU state and sends segment 0 only; segment 0
// carries the final block marker from which the window opens.
func (r *rdr) start(suffix enc.Name) {
	r.suffix = suffix
	r.running = true
	r.delivered = false
	r.finalKnown = false
	r.finalSeg = 0
	r.nextSeg = 0
	r.lastReassembled = 0
	r.window = 1
	r.inFlight = 0
	r.retx = map[uint64]int{}
	r.pending = map[uint64]ndn.PendingID{}
	r.scheduled = map[uint64]func() error{}
	r.sendTime = map[uint64]time.Time{}
	r.rxVerified = map[uint64]*rxEntry{}
	r.rxUnverified = map[uint64]*rxEntry{}
	r.manifests = map[uint64]*packet.Manifest{}
	r.received = map[uint64]bool{}
	r.maxReceived = 0
	r.hasReceived = false
	r.fastRetx = map[uint64]bool{}
	r.content = nil
	r.est = rtt.NewEstimator()
	r.lifetime = r.c.opts.Lifetime.GetOr(DefaultInterestLifetime)

	r.pipeline()
}

// stop cancels the retrieval without delivering anything.
func (r *rdr) stop() {
	r.running = false
	r.cancelAll()
	r.c.release()
}

func (r *rdr) cancelAll() {
	for _, id := range r.pending {
		r.c.engine.RemovePending(id)
	}
	r.pending = map[uint64]ndn.PendingID{}
	for _, cancel := range r.scheduled {
		cancel()
	}
	r.scheduled = map[uint64]func() error{}
}

// terminate ends the ADU with an error, delivering whatever
// contiguous prefix has accumulated first.
func (r *rdr) terminate(err error) {
	if !r.running {
		return
	}
	r.running = false
	r.reassemble()
	if len(r.content) > 0 {
		r.deliver()
	}
	r.cancelAll()
	if cb := r.c.opts.OnError; cb != nil {
		cb(r.c, err)
	}
	r.c.release()
}

// aduName builds the segment name prefix||suffix||segment(seg).
func (r *rdr) aduName(seg uint64) enc.Name {
	return r.c.prefix.Append(r.suffix...).Append(enc.NewSegmentComponent(seg))
}

// newConfig snapshots the caller's selectors into a fresh Interest
// config with the effective lifetime and a new nonce.
func (r *rdr) newConfig() *ndn.InterestConfig {
	config := &ndn.InterestConfig{
		Lifetime: optional.Some(r.lifetime),
		Nonce:    utils.ConvertNonce(r.c.engine.Timer().Nonce()),
	}
	applySelectors(config, &r.c.opts)
	return config
}

// inheritExclude copies the per-segment excludes of a previous
// expression into the new config.
func inheritExclude(config *ndn.InterestConfig, prev ndn.Interest) {
	ex := prev.Exclude()
	if ex.Size() == 0 {
		return
	}
	if config.Exclude == nil {
		config.Exclude = &ndn.Exclude{}
	}
	for _, comp := range ex.Components {
		config.Exclude.Append(comp.Clone())
	}
}

// express encodes and sends one Interest and registers the state
// machine's continuation.
func (r *rdr) express(seg uint64, name enc.Name, config *ndn.InterestConfig) {
	parsed := spec.InterestFromConfig(name, config)

	if cb := r.c.opts.OnInterestLeaveCntx; cb != nil {
		cb(r.c, parsed)
	}
	if !r.running { // user could stop the context in the callback
		return
	}

	encoded, err := spec.MakeInterest(name, config)
	if err != nil {
		log.Error(r.c, "Failed to encode interest", "err", err, "name", name)
		return
	}

	r.inFlight++
	r.c.stats.InterestsExpressed.Inc()
	id, err := r.c.engine.Express(encoded, func(args ndn.ExpressCallbackArgs) {
		r.c.engine.Post(func() { r.onResult(seg, parsed, args) })
	})
	if err != nil {
		log.Warn(r.c, "Failed to send interest", "err", err, "name", name)
	}
	r.pending[seg] = id
}

// sendInterest issues the first transmission of a segment.
func (r *rdr) sendInterest(seg uint64) {
	r.retx[seg] = 0
	r.sendTime[seg] = r.c.engine.Timer().Now()
	r.express(seg, r.aduName(seg), r.newConfig())
}

// pipeline keeps the window full.
func (r *rdr) pipeline() {
	for r.running && r.inFlight < r.window &&
		(!r.finalKnown || r.nextSeg <= r.finalSeg) {
		r.sendInterest(r.nextSeg)
		r.nextSeg++
	}
}

func (r *rdr) increaseWindow() {
	if r.window < r.c.opts.MaxWindowSize {
		r.window++
	}
}

func (r *rdr) decreaseWindow() {
	if r.window > r.c.opts.MinWindowSize {
		r.window /= 2
		if r.window < r.c.opts.MinWindowSize {
			r.window = r.c.opts.MinWindowSize
		}
	}
}

// onResult is the single entry point for Interest outcomes, already
// posted onto the engine goroutine.
func (r *rdr) onResult(seg uint64, interest *spec.Interest, args ndn.ExpressCallbackArgs) {
	switch args.Result {
	case ndn.InterestResultData:
		r.onData(seg, interest, args)
	case ndn.InterestResultTimeout:
		r.onTimeout(seg, interest)
	}
}

func (r *rdr) onData(seg uint64, interest *spec.Interest, args ndn.ExpressCallbackArgs) {
	if !r.running {
		return
	}

	r.inFlight--
	delete(r.pending, seg)
	if cancel, ok := r.scheduled[seg]; ok {
		cancel()
		delete(r.scheduled, seg)
	}

	// Karn's rule: only first transmissions feed the estimator
	if sent, ok := r.sendTime[seg]; ok {
		if r.retx[seg] == 0 {
			r.est.AddMeasurement(r.c.engine.Timer().Now().Sub(sent))
			// lifetime follows the RTO only while the user has not
			// pinned it
			if !r.c.opts.Lifetime.IsSet() {
				r.lifetime = r.est.RTO()
			}
		}
		delete(r.sendTime, seg)
	}

	data := args.Data.(*spec.Data)
	entry := &rxEntry{data: data, raw: args.RawData, sigCovered: args.SigCovered}

	if cb := r.c.opts.OnDataEnterCntx; cb != nil {
		cb(r.c, data)
	}
	if cb := r.c.opts.OnInterestSatisfied; cb != nil {
		cb(r.c, interest)
	}
	if !r.running { // user could stop the context in the callbacks
		return
	}

	switch data.ContentType().GetOr(ndn.ContentTypeBlob) {
	case ndn.ContentTypeManifest:
		r.onManifest(seg, interest, entry)
	case ndn.ContentTypeNack:
		r.onNack(seg, interest, entry)
	default:
		r.onBlob(seg, interest, entry)
	}

	if !r.running {
		return
	}
	if seg == 0 {
		// open the window toward the discovered ADU length
		w := uint64(r.c.opts.MaxWindowSize)
		if r.finalKnown && r.finalSeg < w {
			w = r.finalSeg
		}
		if w < uint64(r.c.opts.MinWindowSize) {
			w = uint64(r.c.opts.MinWindowSize)
		}
		r.window = int(w)
	}
	r.pipeline()
}

// verify runs the application's verification callback, falling back
// to the self-digest check for DigestSha256 packets.
func (r *rdr) verify(entry *rxEntry) bool {
	if cb := r.c.opts.OnDataToVerify; cb != nil {
		return cb(r.c, entry.data, entry.sigCovered)
	}
	if entry.data.Signature().SigType() == ndn.SignatureDigestSha256 {
		return sig.ValidateSha256(entry.sigCovered, entry.data.Signature())
	}
	return true
}

// referencesManifest reports whether the packet's key locator points
// to an in-stream manifest: same name prefix, differing only in the
// trailing segment component.
func referencesManifest(data *spec.Data) bool {
	locator := data.Signature().KeyLocator()
	if len(locator) == 0 || !locator.At(-1).IsSegment() {
		return false
	}
	return locator.Prefix(-1).Equal(data.Name().Prefix(-1))
}

// onManifest handles a manifest response: verify it, register its
// catalogue and settle the segments that were waiting for it.
func (r *rdr) onManifest(seg uint64, interest *spec.Interest, entry *rxEntry) {
	if !r.verify(entry) {
		r.retransmitWithExclude(seg, interest, entry)
		return
	}

	manifest, err := packet.DecodeManifest(entry.data.Content())
	if err != nil {
		log.Warn(r.c, "Malformed manifest - DROP", "err", err, "name", entry.data.Name())
		return
	}

	r.noteReceived(seg)
	r.increaseWindow()
	r.manifests[seg] = manifest
	r.rxVerified[seg] = entry

	if cb := r.c.opts.OnManifestEnterCntx; cb != nil {
		cb(r.c, manifest)
	}

	// settle out-of-order data segments that referenced this manifest
	for _, s := range sortedKeys(r.rxUnverified) {
		if !r.running {
			return
		}
		waiting := r.rxUnverified[s]
		if waiting.data.Signature().KeyLocator().At(-1).NumberVal() != seg {
			continue
		}
		segComp := waiting.data.Name().At(-1)
		catalogued := manifest.DigestForSegment(segComp)
		if catalogued == nil {
			continue
		}
		wireDigest := sha256.Sum256(waiting.raw)
		if manifest.VerifySegment(segComp, wireDigest[:]) {
			delete(r.rxUnverified, s)
			r.acceptVerified(s, waiting)
		} else {
			r.retransmitWithDigest(s, catalogued)
		}
	}

	r.reassemble()
}

// onNack handles an Application NACK response.
func (r *rdr) onNack(seg uint64, interest *spec.Interest, entry *rxEntry) {
	if r.finalKnown && seg > r.finalSeg {
		return
	}

	if !r.verify(entry) {
		r.retransmitWithExclude(seg, interest, entry)
		return
	}

	r.noteReceived(seg)
	r.decreaseWindow()
	r.c.stats.Nacks.Inc()

	nack, err := packet.DecodeNack(entry.data.Content())
	if err != nil {
		log.Warn(r.c, "Malformed nack - DROP", "err", err, "name", entry.data.Name())
		return
	}

	if cb := r.c.opts.OnNackEnterCntx; cb != nil {
		cb(r.c, nack)
	}

	switch nack.Code() {
	case packet.NackDataNotAvailable:
		r.terminate(ndn.ErrNotAvailable)

	case packet.NackProducerDelay:
		delay := nack.RetryAfter()
		r.scheduled[seg] = r.c.engine.Timer().Schedule(delay, func() {
			r.c.engine.Post(func() { r.retransmitFresh(seg, interest) })
		})

	case packet.NackInterestNotVerified:
		if cb := r.c.opts.OnError; cb != nil {
			cb(r.c, ndn.ErrInterestNotVerified)
		}

	default:
		// transient; the window was already halved
	}
}

// onBlob handles a content response.
func (r *rdr) onBlob(seg uint64, interest *spec.Interest, entry *rxEntry) {
	if referencesManifest(entry.data) {
		manifestSeg := entry.data.Signature().KeyLocator().At(-1).NumberVal()
		manifest, ok := r.manifests[manifestSeg]
		if !ok {
			// the manifest may arrive out of order; hold the segment
			r.rxUnverified[seg] = entry
			r.boundUnverified()
			return
		}

		segComp := entry.data.Name().At(-1)
		wireDigest := sha256.Sum256(entry.raw)
		if manifest.VerifySegment(segComp, wireDigest[:]) {
			r.accept(seg, entry)
			return
		}
		if catalogued := manifest.DigestForSegment(segComp); catalogued != nil {
			r.retransmitWithDigest(seg, catalogued)
		} else {
			r.retransmitWithExclude(seg, interest, entry)
		}
		return
	}

	if r.verify(entry) {
		r.accept(seg, entry)
	} else {
		r.retransmitWithExclude(seg, interest, entry)
	}
}

// accept records a directly verified blob and advances reassembly.
func (r *rdr) accept(seg uint64, entry *rxEntry) {
	r.increaseWindow()
	r.acceptVerified(seg, entry)
	r.reassemble()
}

// acceptVerified records a verified segment without touching the
// window (manifest-settled segments do not grow it).
func (r *rdr) acceptVerified(seg uint64, entry *rxEntry) {
	// final block markers on manifest-chained segments are projections
	// that only grow as manifests are inserted; keep the largest
	if fb, ok := entry.data.FinalBlockID().Get(); ok && fb.IsSegment() {
		if !r.finalKnown || fb.NumberVal() > r.finalSeg {
			r.finalSeg = fb.NumberVal()
		}
		r.finalKnown = true
	}
	r.rxVerified[seg] = entry
	r.noteReceived(seg)
}

// boundUnverified evicts the oldest held segments once the buffer
// outgrows a small multiple of the window.
func (r *rdr) boundUnverified() {
	bound := 3 * r.window
	if bound < 8 {
		bound = 8
	}
	for len(r.rxUnverified) > bound {
		keys := sortedKeys(r.rxUnverified)
		delete(r.rxUnverified, keys[0])
	}
}

// reassemble pops consecutive verified segments, appending blob
// content and skipping manifests, and fires the terminal callback on
// the final segment (or, when terminate has already cleared running,
// with whatever prefix accumulated).
func (r *rdr) reassemble() {
	for {
		entry, ok := r.rxVerified[r.lastReassembled]
		if !ok {
			return
		}
		seg := r.lastReassembled
		delete(r.rxVerified, seg)
		r.lastReassembled++

		if entry.data.ContentType().GetOr(ndn.ContentTypeBlob) == ndn.ContentTypeBlob {
			r.content = append(r.content, entry.data.Content()...)
			if (r.finalKnown && seg == r.finalSeg) || !r.running {
				r.deliver()
				return
			}
		}
	}
}

// deliver fires the content callback exactly once and shuts the
// retrieval down.
func (r *rdr) deliver() {
	if r.delivered {
		return
	}
	r.delivered = true
	r.running = false
	r.cancelAll()
	if cb := r.c.opts.OnContentRetrieved; cb != nil {
		cb(r.c, r.content)
	}
	r.c.release()
}

// noteReceived updates the received set and triggers fast
// retransmission of gaps with enough out-of-order successors.
func (r *rdr) noteReceived(seg uint64) {
	r.received[seg] = true
	delete(r.fastRetx, seg)
	if !r.hasReceived || seg > r.maxReceived {
		r.maxReceived = seg
		r.hasReceived = true
	}

	for g := r.lastReassembled; g < r.maxReceived; g++ {
		if r.received[g] || r.fastRetx[g] {
			continue
		}
		outOfOrder := 0
		for j := g + 1; j <= r.maxReceived; j++ {
			if r.received[j] {
				outOfOrder++
				if outOfOrder == FastRetxCondition {
					r.fastRetx[g] = true
					r.fastRetransmit(g)
					break
				}
			}
		}
	}
}

// fastRetransmit re-sends a gap segment once.
func (r *rdr) fastRetransmit(seg uint64) {
	if r.retx[seg] >= r.c.opts.maxRetx() {
		return
	}

	config := r.newConfig()
	name := r.aduName(seg)
	parsed := spec.InterestFromConfig(name, config)
	if cb := r.c.opts.OnInterestRetx; cb != nil {
		cb(r.c, parsed)
	}
	if !r.running {
		return
	}

	r.retx[seg]++
	r.c.stats.FastRetransmissions.Inc()
	r.c.stats.Retransmissions.Inc()
	r.express(seg, name, config)
}

// retransmitFresh re-sends a segment after a PRODUCER_DELAY NACK. The
// fresh Interest bypasses cached NACKs on the path and inherits the
// previous excludes.
func (r *rdr) retransmitFresh(seg uint64, interest *spec.Interest) {
	if !r.running {
		return
	}
	delete(r.scheduled, seg)

	if r.retx[seg] >= r.c.opts.maxRetx() {
		r.terminate(ndn.ErrNotAvailable)
		return
	}

	config := r.newConfig()
	config.MustBeFresh = true
	inheritExclude(config, interest)

	name := interest.Name()
	parsed := spec.InterestFromConfig(name, config)
	if cb := r.c.opts.OnInterestRetx; cb != nil {
		cb(r.c, parsed)
	}
	if !r.running {
		return
	}

	r.retx[seg]++
	r.c.stats.Retransmissions.Inc()
	r.express(seg, name, config)
}

// retransmitWithExclude re-sends a segment excluding a poisoned
// response by its implicit digest.
func (r *rdr) retransmitWithExclude(seg uint64, interest *spec.Interest, poisoned *rxEntry) {
	delete(r.rxUnverified, seg)
	r.c.stats.VerificationFailures.Inc()

	if r.retx[seg] >= r.c.opts.maxRetx() ||
		interest.Exclude().Size() >= r.c.opts.MaxExcludedDigests {
		r.terminate(ndn.ErrContentPoisoned)
		return
	}

	config := r.newConfig()
	inheritExclude(config, interest)
	if config.Exclude == nil {
		config.Exclude = &ndn.Exclude{}
	}
	digest := sha256.Sum256(poisoned.raw)
	config.Exclude.Append(enc.NewDigestComponent(digest[:]))

	name := interest.Name()
	parsed := spec.InterestFromConfig(name, config)
	if cb := r.c.opts.OnInterestRetx; cb != nil {
		cb(r.c, parsed)
	}
	if !r.running {
		return
	}

	r.retx[seg]++
	r.c.stats.Retransmissions.Inc()
	r.express(seg, name, config)
}

// retransmitWithDigest re-sends a segment pinned to the digest its
// manifest catalogued; only the exactly matching response returns.
func (r *rdr) retransmitWithDigest(seg uint64, expectedDigest []byte) {
	delete(r.rxUnverified, seg)
	r.c.stats.VerificationFailures.Inc()

	if r.retx[seg] >= r.c.opts.maxRetx() {
		r.terminate(ndn.ErrContentPoisoned)
		return
	}

	config := r.newConfig()
	name := r.aduName(seg).Append(enc.NewDigestComponent(expectedDigest))
	parsed := spec.InterestFromConfig(name, config)
	if cb := r.c.opts.OnInterestRetx; cb != nil {
		cb(r.c, parsed)
	}
	if !r.running {
		return
	}

	r.retx[seg]++
	r.c.stats.Retransmissions.Inc()
	r.express(seg, name, config)
}

// onTimeout halves the window and re-sends within the retransmission
// budget; past it, the ADU terminates after delivering the contiguous
// prefix.
func (r *rdr) onTimeout(seg uint64, interest *spec.Interest) {
	if !r.running {
		return
	}

	r.inFlight--
	delete(r.pending, seg)
	delete(r.sendTime, seg)
	if cancel, ok := r.scheduled[seg]; ok {
		cancel()
		delete(r.scheduled, seg)
	}

	if cb := r.c.opts.OnInterestExpired; cb != nil {
		cb(r.c, interest)
	}
	if !r.running {
		return
	}

	if r.finalKnown && seg > r.finalSeg {
		return
	}

	r.decreaseWindow()

	if r.retx[seg] >= r.c.opts.maxRetx() {
		r.terminate(ndn.ErrNotAvailable)
		return
	}

	config := r.newConfig()
	inheritExclude(config, interest)

	name := interest.Name()
	parsed := spec.InterestFromConfig(name, config)
	if cb := r.c.opts.OnInterestRetx; cb != nil {
		cb(r.c, parsed)
	}
	if !r.running {
		return
	}

	r.retx[seg]++
	r.c.stats.Retransmissions.Inc()
	r.express(seg, name, config)
	r.pipeline()
}

// sortedKeys returns the map's keys in ascending order.
func sortedKeys[V any](m map[uint64]V) []uint64 {
	keys := make([]uint64, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
