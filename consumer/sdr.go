package consumer

import (
	enc "github.com/named-data/Consumer-Producer-API/encoding"
	"github.com/named-data/Consumer-Producer-API/log"
	"github.com/named-data/Consumer-Producer-API/ndn"
	"github.com/named-data/Consumer-Producer-API/spec"
	"github.com/named-data/Consumer-Producer-API/types/optional"
	"github.com/named-data/Consumer-Producer-API/utils"
)

// sdr is the one-shot retrieval: a single Interest whose first
// response is delivered as-is, retried within the retransmission
// budget on timeout.
type sdr struct {
	c       *Consumer
	suffix  enc.Name
	running bool
	retx    int
}

func newSdr(c *Consumer) *sdr {
	return &sdr{c: c}
}

func (s *sdr) start(suffix enc.Name) {
	s.suffix = suffix
	s.running = true
	s.retx = 0
	s.sendInterest()
}

func (s *sdr) stop() {
	s.running = false
	s.c.release()
}

func (s *sdr) sendInterest() {
	name := s.c.prefix.Append(s.suffix...)
	config := &ndn.InterestConfig{
		Lifetime: optional.Some(s.c.opts.Lifetime.GetOr(DefaultInterestLifetime)),
		Nonce:    utils.ConvertNonce(s.c.engine.Timer().Nonce()),
	}
	applySelectors(config, &s.c.opts)

	parsed := spec.InterestFromConfig(name, config)
	if cb := s.c.opts.OnInterestLeaveCntx; cb != nil {
		cb(s.c, parsed)
	}
	if !s.running {
		return
	}

	encoded, err := spec.MakeInterest(name, config)
	if err != nil {
		log.Error(s.c, "Failed to encode interest", "err", err, "name", name)
		return
	}

	s.c.stats.InterestsExpressed.Inc()
	if _, err := s.c.engine.Express(encoded, func(args ndn.ExpressCallbackArgs) {
		s.c.engine.Post(func() { s.onResult(parsed, args) })
	}); err != nil {
		log.Warn(s.c, "Failed to send interest", "err", err, "name", name)
	}
}

func (s *sdr) onResult(interest *spec.Interest, args ndn.ExpressCallbackArgs) {
	if !s.running {
		return
	}

	switch args.Result {
	case ndn.InterestResultData:
		data := args.Data.(*spec.Data)
		if cb := s.c.opts.OnDataEnterCntx; cb != nil {
			cb(s.c, data)
		}
		if cb := s.c.opts.OnInterestSatisfied; cb != nil {
			cb(s.c, interest)
		}
		if !s.running {
			return
		}
		s.running = false
		if cb := s.c.opts.OnContentRetrieved; cb != nil {
			cb(s.c, data.Content())
		}
		s.c.release()

	case ndn.InterestResultTimeout:
		if cb := s.c.opts.OnInterestExpired; cb != nil {
			cb(s.c, interest)
		}
		if !s.running {
			return
		}
		if s.retx >= s.c.opts.maxRetx() {
			s.running = false
			if cb := s.c.opts.OnError; cb != nil {
				cb(s.c, ndn.ErrNotAvailable)
			}
			s.c.release()
			return
		}
		s.retx++
		s.c.stats.Retransmissions.Inc()
		if cb := s.c.opts.OnInterestRetx; cb != nil {
			cb(s.c, interest)
		}
		s.sendInterest()
	}
}
