package consumer

import (
	"github.com/named-data/Consumer-Producer-API/ndn"
)

// applySelectors copies the caller's request-side constraints into a
// freshly built Interest config. Every expression starts from a new
// snapshot; selector state is never mutated in place on a request.
func applySelectors(config *ndn.InterestConfig, opts *Options) {
	if v, ok := opts.MinSuffixComponents.Get(); ok {
		config.MinSuffixComponents.Set(v)
	}
	if v, ok := opts.MaxSuffixComponents.Get(); ok {
		config.MaxSuffixComponents.Set(v)
	}
	if opts.Exclude.Size() > 0 || (opts.Exclude != nil && opts.Exclude.AnyBefore) {
		if config.Exclude == nil {
			config.Exclude = opts.Exclude.Clone()
		} else {
			config.Exclude.AnyBefore = config.Exclude.AnyBefore || opts.Exclude.AnyBefore
			for _, c := range opts.Exclude.Components {
				config.Exclude.Append(c.Clone())
			}
		}
	}
	if opts.MustBeFresh {
		config.MustBeFresh = true
	}
	if v, ok := opts.ChildSelector.Get(); ok {
		config.ChildSelector.Set(v)
	}
	if opts.PublisherKeyLocator != nil {
		config.PublisherKeyLocator = opts.PublisherKeyLocator
	}
}
