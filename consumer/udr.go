package consumer

import (
	enc "github.com/named-data/Consumer-Producer-API/encoding"
	"github.com/named-data/Consumer-Producer-API/log"
	"github.com/named-data/Consumer-Producer-API/ndn"
	"github.com/named-data/Consumer-Producer-API/spec"
	"github.com/named-data/Consumer-Producer-API/types/optional"
	"github.com/named-data/Consumer-Producer-API/utils"
)

// udr is the unreliable windowed retrieval: the RDR pipeline without
// verification, retransmission or recovery. Lost segments stay lost;
// the in-order prefix is delivered once the pipeline drains.
type udr struct {
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
	timeouts int

	rxBuffer map[uint64]*spec.Data
	content  []byte
}

func newUdr(c *Consumer) *udr {
	return &udr{c: c}
}

func (u *udr) start(suffix enc.Name) {
	u.suffix = suffix
	u.running = true
	u.delivered = false
	u.finalKnown = false
	u.finalSeg = 0
	u.nextSeg = 0
	u.lastReassembled = 0
	u.window = 1
	u.inFlight = 0
	u.timeouts = 0
	u.rxBuffer = map[uint64]*spec.Data{}
	u.content = nil

	u.pipeline()
}

func (u *udr) stop() {
	u.running = false
	u.c.release()
}

func (u *udr) pipeline() {
	for u.running && u.inFlight < u.window &&
		(!u.finalKnown || u.nextSeg <= u.finalSeg) {
		u.sendInterest(u.nextSeg)
		u.nextSeg++
	}
}

func (u *udr) sendInterest(seg uint64) {
	name := u.c.prefix.Append(u.suffix...).Append(enc.NewSegmentComponent(seg))
	config := &ndn.InterestConfig{
		Lifetime: optional.Some(u.c.opts.Lifetime.GetOr(DefaultInterestLifetime)),
		Nonce:    utils.ConvertNonce(u.c.engine.Timer().Nonce()),
	}
	applySelectors(config, &u.c.opts)

	parsed := spec.InterestFromConfig(name, config)
	if cb := u.c.opts.OnInterestLeaveCntx; cb != nil {
		cb(u.c, parsed)
	}
	if !u.running {
		return
	}

	encoded, err := spec.MakeInterest(name, config)
	if err != nil {
		log.Error(u.c, "Failed to encode interest", "err", err, "name", name)
		return
	}

	u.inFlight++
	u.c.stats.InterestsExpressed.Inc()
	if _, err := u.c.engine.Express(encoded, func(args ndn.ExpressCallbackArgs) {
		u.c.engine.Post(func() { u.onResult(seg, parsed, args) })
	}); err != nil {
		log.Warn(u.c, "Failed to send interest", "err", err, "name", name)
	}
}

func (u *udr) onResult(seg uint64, interest *spec.Interest, args ndn.ExpressCallbackArgs) {
	if !u.running {
		return
	}
	u.inFlight--

	switch args.Result {
	case ndn.InterestResultData:
		data := args.Data.(*spec.Data)
		if cb := u.c.opts.OnDataEnterCntx; cb != nil {
			cb(u.c, data)
		}
		if cb := u.c.opts.OnInterestSatisfied; cb != nil {
			cb(u.c, interest)
		}
		if !u.running {
			return
		}

		if fb, ok := data.FinalBlockID().Get(); ok && fb.IsSegment() {
			if !u.finalKnown || fb.NumberVal() > u.finalSeg {
				u.finalSeg = fb.NumberVal()
			}
			u.finalKnown = true
		}
		if u.window < u.c.opts.MaxWindowSize {
			u.window++
		}
		u.rxBuffer[seg] = data
		u.reassemble()

	case ndn.InterestResultTimeout:
		if cb := u.c.opts.OnInterestExpired; cb != nil {
			cb(u.c, interest)
		}
		if !u.running {
			return
		}
		if u.window > u.c.opts.MinWindowSize {
			u.window /= 2
		}

		// without a final block marker the pipeline would probe
		// non-existing segments forever; give up after a few misses
		if !u.finalKnown {
			u.timeouts++
			if u.timeouts > 2 {
				u.running = false
				if cb := u.c.opts.OnError; cb != nil {
					cb(u.c, ndn.ErrNotAvailable)
				}
				u.c.release()
				return
			}
		}
	}

	if !u.running {
		return
	}
	u.pipeline()

	// the pipeline has drained with losses; deliver the prefix
	if u.inFlight == 0 && u.finalKnown && u.nextSeg > u.finalSeg {
		u.deliver()
	}
}

func (u *udr) reassemble() {
	for {
		data, ok := u.rxBuffer[u.lastReassembled]
		if !ok {
			return
		}
		seg := u.lastReassembled
		delete(u.rxBuffer, seg)
		u.lastReassembled++

		if data.ContentType().GetOr(ndn.ContentTypeBlob) == ndn.ContentTypeBlob {
			u.content = append(u.content, data.Content()...)
		}
		if u.finalKnown && seg == u.finalSeg {
			u.deliver()
			return
		}
	}
}

func (u *udr) deliver() {
	if u.delivered {
		return
	}
	u.delivered = true
	u.running = false
	if cb := u.c.opts.OnContentRetrieved; cb != nil {
		cb(u.c, u.content)
	}
	u.c.release()
}
