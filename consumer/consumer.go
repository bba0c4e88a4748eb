// Package consumer implements the retrieval half of the library. A
// Consumer context runs one Application Data Unit retrieval at a time
// using one of three protocols: the reliable windowed state machine
// (RDR), the unreliable windowed variant (UDR), or the one-shot
// variant (SDR). All protocol transitions execute on the engine
// goroutine.
package consumer

import (
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/rs/xid"

	enc "github.com/named-data/Consumer-Producer-API/encoding"
	"github.com/named-data/Consumer-Producer-API/ndn"
	"github.com/named-data/Consumer-Producer-API/stats"
)

// Protocol selects the retrieval state machine of a Consumer.
type Protocol int

const (
	// SDR issues one Interest and delivers the first response.
	SDR Protocol = iota
	// UDR pipelines a window of Interests without verification or
	// recovery.
	UDR
	// RDR is the reliable windowed state machine with verification,
	// retransmission and poisoning recovery.
	RDR
)

func (p Protocol) String() string {
	switch p {
	case SDR:
		return "SDR"
	case UDR:
		return "UDR"
	case RDR:
		return "RDR"
	default:
		return "unknown"
	}
}

// ErrConsumerBusy is returned by Consume while a retrieval is running
// on a context without AsyncMode.
var ErrConsumerBusy = errors.New("consumer context is busy")

// retrievalProtocol is the state machine behind a Consumer. Both
// methods must be invoked on the engine goroutine.
type retrievalProtocol interface {
	start(suffix enc.Name)
	stop()
}

// Consumer is one retrieval context bound to a prefix and an engine.
// The protocol holds a non-owning reference back to the context's
// option and callback table; the context owns the protocol.
type Consumer struct {
	id     string
	prefix enc.Name
	proto  Protocol
	opts   Options
	engine ndn.Engine

	impl  retrievalProtocol
	busy  atomic.Bool
	stats *stats.Set
}

// New creates a consumer context. The engine is injected, never
// fetched from process-global state.
func New(prefix enc.Name, proto Protocol, opts Options, engine ndn.Engine) (*Consumer, error) {
	if engine == nil {
		return nil, ndn.ErrInvalidValue{Item: "engine", Value: nil}
	}
	if len(prefix) == 0 {
		return nil, ndn.ErrInvalidValue{Item: "prefix", Value: prefix}
	}
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	c := &Consumer{
		id:     xid.New().String(),
		prefix: prefix,
		proto:  proto,
		opts:   opts,
		engine: engine,
	}
	c.stats = stats.NewSet("consumer", c.id)

	switch proto {
	case SDR:
		c.impl = newSdr(c)
	case UDR:
		c.impl = newUdr(c)
	case RDR:
		c.impl = newRdr(c)
	default:
		return nil, ndn.ErrInvalidValue{Item: "protocol", Value: proto}
	}
	return c, nil
}

func (c *Consumer) String() string {
	return fmt.Sprintf("consumer (%s, %s) %s", c.id, c.proto, c.prefix)
}

// Prefix returns the context's name prefix.
func (c *Consumer) Prefix() enc.Name {
	return c.prefix
}

// Stats returns the consumer's counter set.
func (c *Consumer) Stats() *stats.Set {
	return c.stats
}

// Consume retrieves one ADU under prefix||suffix. The call returns
// immediately; the outcome arrives through OnContentRetrieved and
// OnError. A busy context rejects the call with ErrConsumerBusy
// unless AsyncMode reposts it onto the engine loop.
func (c *Consumer) Consume(suffix enc.Name) error {
	if c.busy.Swap(true) {
		if c.opts.AsyncMode {
			c.engine.Post(func() { c.Consume(suffix) })
			return nil
		}
		return ErrConsumerBusy
	}

	c.engine.Post(func() { c.impl.start(suffix) })
	return nil
}

// Stop cancels the running retrieval and abandons in-flight
// reassembly. With RDR, all pending Interests and scheduled timers are
// removed; UDR and SDR leave Interests already expressed pending at the
// engine and ignore their outcomes while stopped.
// Safe to call from within a callback.
func (c *Consumer) Stop() {
	c.engine.Post(func() { c.impl.stop() })
}

// Busy reports whether a retrieval is in progress.
func (c *Consumer) Busy() bool {
	return c.busy.Load()
}

// release marks the context idle again. Called by the protocol at
// termination, on the engine goroutine.
func (c *Consumer) release() {
	c.busy.Store(false)
}
