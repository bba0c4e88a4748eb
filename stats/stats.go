// Package stats exposes per-context event counters as Prometheus
// collectors. Contexts update a Set unconditionally; whether and where
// the Set is registered is the application's choice.
package stats

import "github.com/prometheus/client_golang/prometheus"

// Set holds the counters one producer or consumer context updates.
type Set struct {
	CacheHits            prometheus.Counter
	CacheMisses          prometheus.Counter
	InterestsDropped     prometheus.Counter
	InterestsExpressed   prometheus.Counter
	Retransmissions      prometheus.Counter
	FastRetransmissions  prometheus.Counter
	Nacks                prometheus.Counter
	VerificationFailures prometheus.Counter
	SegmentsProduced     prometheus.Counter
	Evictions            prometheus.Counter
}

// NewSet creates a counter set under the given subsystem with a
// context id label.
func NewSet(subsystem, id string) *Set {
	counter := func(name, help string) prometheus.Counter {
		return prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "cpapi",
			Subsystem:   subsystem,
			Name:        name,
			Help:        help,
			ConstLabels: prometheus.Labels{"context": id},
		})
	}
	return &Set{
		CacheHits:            counter("cache_hits_total", "Interests satisfied from the send buffer."),
		CacheMisses:          counter("cache_misses_total", "Interests passed to the application callback."),
		InterestsDropped:     counter("interests_dropped_total", "Interests dropped from a full receive buffer."),
		InterestsExpressed:   counter("interests_expressed_total", "Interests sent toward the network."),
		Retransmissions:      counter("retransmissions_total", "Interest retransmissions of any kind."),
		FastRetransmissions:  counter("fast_retransmissions_total", "Retransmissions triggered by out-of-order arrivals."),
		Nacks:                counter("nacks_total", "Application NACKs received or sent."),
		VerificationFailures: counter("verification_failures_total", "Data packets that failed verification."),
		SegmentsProduced:     counter("segments_produced_total", "Data segments emitted by the segmenter."),
		Evictions:            counter("evictions_total", "Entries evicted from the send buffer."),
	}
}

// Register adds every counter to the registerer.
func (s *Set) Register(reg prometheus.Registerer) error {
	for _, c := range s.collectors() {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

func (s *Set) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		s.CacheHits, s.CacheMisses, s.InterestsDropped, s.InterestsExpressed,
		s.Retransmissions, s.FastRetransmissions, s.Nacks,
		s.VerificationFailures, s.SegmentsProduced, s.Evictions,
	}
}
