// Package producer implements the publishing half of the library: it
// registers a prefix, segments application buffers into named signed
// Data packets, caches them in a send-side content store, and answers
// incoming Interests from the cache or the application.
package producer

import (
	"fmt"
	"sync/atomic"

	"github.com/rs/xid"

	enc "github.com/named-data/Consumer-Producer-API/encoding"
	"github.com/named-data/Consumer-Producer-API/log"
	"github.com/named-data/Consumer-Producer-API/ndn"
	sig "github.com/named-data/Consumer-Producer-API/security/signer"
	"github.com/named-data/Consumer-Producer-API/spec"
	"github.com/named-data/Consumer-Producer-API/stats"
	"github.com/named-data/Consumer-Producer-API/store"
	"github.com/named-data/Consumer-Producer-API/types/lockfree"
)

type queuedInterest struct {
	interest *spec.Interest
	raw      enc.Buffer
}

// Producer is one publishing context bound to a prefix and an engine.
type Producer struct {
	id     string
	prefix enc.Name
	opts   Options
	engine ndn.Engine

	sendBuffer *store.SendBuffer

	// rcvQueue with rcvSize is the bounded Interest receive buffer
	// shared between the engine callback and the worker.
	rcvQueue *lockfree.Queue[queuedInterest]
	rcvSize  atomic.Int32
	wake     chan struct{}
	quit     chan struct{}

	attached atomic.Bool
	stats    *stats.Set
}

// New creates a producer context. The engine is injected, never
// fetched from process-global state.
func New(prefix enc.Name, opts Options, engine ndn.Engine) (*Producer, error) {
	if engine == nil {
		return nil, ndn.ErrInvalidValue{Item: "engine", Value: nil}
	}
	if len(prefix) == 0 {
		return nil, ndn.ErrInvalidValue{Item: "prefix", Value: prefix}
	}
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	if opts.Signer == nil {
		opts.Signer = sig.NewSha256Signer()
	}

	p := &Producer{
		id:       xid.New().String(),
		prefix:   prefix,
		opts:     opts,
		engine:   engine,
		rcvQueue: lockfree.NewQueue[queuedInterest](),
		wake:     make(chan struct{}, 1),
		quit:     make(chan struct{}),
	}
	p.stats = stats.NewSet("producer", p.id)
	p.sendBuffer = store.NewSendBuffer(opts.SndBufSize, engine.Timer())
	p.sendBuffer.OnEvict = func(entry *store.Entry) {
		p.stats.Evictions.Inc()
		if p.opts.OnDataEvictSndBuf != nil {
			p.opts.OnDataEvictSndBuf(p, entry.Data())
		}
	}
	return p, nil
}

func (p *Producer) String() string {
	return fmt.Sprintf("producer (%s) %s", p.id, p.prefix)
}

// Prefix returns the registered prefix.
func (p *Producer) Prefix() enc.Name {
	return p.prefix
}

// Stats returns the producer's counter set.
func (p *Producer) Stats() *stats.Set {
	return p.stats
}

// SendBuffer returns the send-side content store.
func (p *Producer) SendBuffer() *store.SendBuffer {
	return p.sendBuffer
}

// Attach registers the prefix and starts the worker draining the
// receive buffer. Registration failure is returned synchronously.
func (p *Producer) Attach() error {
	if p.attached.Swap(true) {
		return fmt.Errorf("producer is already attached")
	}
	if err := p.engine.AttachHandler(p.prefix, p.onInterest); err != nil {
		p.attached.Store(false)
		return fmt.Errorf("%w: %s", ndn.ErrRegistrationFailed, err)
	}
	go p.worker()
	log.Info(p, "Producer attached")
	return nil
}

// Detach unregisters the prefix and stops the worker.
func (p *Producer) Detach() error {
	if !p.attached.Swap(false) {
		return fmt.Errorf("producer is not attached")
	}
	close(p.quit)
	return p.engine.DetachHandler(p.prefix)
}

// onInterest enqueues an incoming Interest for the worker, dropping it
// when the receive buffer is full.
func (p *Producer) onInterest(args ndn.InterestHandlerArgs) {
	interest, ok := args.Interest.(*spec.Interest)
	if !ok {
		return
	}

	if p.opts.OnInterestEnterCntx != nil {
		p.opts.OnInterestEnterCntx(p, interest)
	}

	if int(p.rcvSize.Load()) >= p.opts.RcvBufSize {
		p.stats.InterestsDropped.Inc()
		log.Debug(p, "Receive buffer full - DROP", "name", interest.Name())
		if p.opts.OnInterestDropRcvBuf != nil {
			p.opts.OnInterestDropRcvBuf(p, interest)
		}
		return
	}

	p.rcvSize.Add(1)
	p.rcvQueue.Push(queuedInterest{interest: interest, raw: args.RawInterest})
	if p.opts.OnInterestPassRcvBuf != nil {
		p.opts.OnInterestPassRcvBuf(p, interest)
	}

	select {
	case p.wake <- struct{}{}:
	default:
	}
}

// worker drains the receive buffer, answering from the send buffer or
// falling through to the application's cache-miss callback. FIFO.
func (p *Producer) worker() {
	for {
		select {
		case <-p.quit:
			return
		case <-p.wake:
		}

		for {
			qi, ok := p.rcvQueue.Pop()
			if !ok {
				break
			}
			p.rcvSize.Add(-1)
			p.serve(qi.interest)
		}
	}
}

func (p *Producer) serve(interest *spec.Interest) {
	if entry := p.sendBuffer.Find(interest); entry != nil {
		p.stats.CacheHits.Inc()
		if p.opts.OnCacheHit != nil {
			p.opts.OnCacheHit(p, interest)
		}
		if p.opts.OnDataLeaveCntx != nil {
			p.opts.OnDataLeaveCntx(p, entry.Data())
		}
		if err := p.engine.Put(enc.Wire{entry.Wire()}); err != nil {
			log.Warn(p, "Failed to emit cached segment", "err", err)
		}
		return
	}

	p.stats.CacheMisses.Inc()
	if p.opts.OnCacheMiss != nil {
		p.opts.OnCacheMiss(p, interest)
	}
}
