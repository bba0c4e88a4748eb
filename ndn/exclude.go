package ndn

import (
	"slices"
	"strings"

	enc "github.com/named-data/Consumer-Producer-API/encoding"
)

// Exclude is an ordered set of name components an Interest refuses to
// accept as the next suffix component. Components are kept sorted in
// canonical component order; AnyBefore widens the set to everything
// ordered before the first listed component.
type Exclude struct {
	AnyBefore  bool
	Components []enc.Component
}

// NewExclude creates an Exclude over the given components.
func NewExclude(comps ...enc.Component) *Exclude {
	e := &Exclude{}
	for _, c := range comps {
		e.Append(c)
	}
	return e
}

// Size returns the number of excluded components.
func (e *Exclude) Size() int {
	if e == nil {
		return 0
	}
	return len(e.Components)
}

// Append inserts a component, keeping canonical order and dropping
// duplicates.
func (e *Exclude) Append(c enc.Component) {
	idx, found := slices.BinarySearchFunc(e.Components, c,
		func(a, b enc.Component) int { return a.Compare(b) })
	if found {
		return
	}
	e.Components = slices.Insert(e.Components, idx, c)
}

// IsExcluded reports whether the component is covered by the set.
func (e *Exclude) IsExcluded(c enc.Component) bool {
	if e == nil {
		return false
	}
	if e.AnyBefore && len(e.Components) > 0 && c.Compare(e.Components[0]) < 0 {
		return true
	}
	for _, ex := range e.Components {
		if ex.Equal(c) {
			return true
		}
	}
	return false
}

// Clone returns a deep copy, or nil for a nil receiver.
func (e *Exclude) Clone() *Exclude {
	if e == nil {
		return nil
	}
	ret := &Exclude{AnyBefore: e.AnyBefore}
	ret.Components = make([]enc.Component, len(e.Components))
	for i, c := range e.Components {
		ret.Components[i] = c.Clone()
	}
	return ret
}

func (e *Exclude) String() string {
	if e == nil || len(e.Components) == 0 {
		return "{}"
	}
	sb := strings.Builder{}
	sb.WriteRune('{')
	if e.AnyBefore {
		sb.WriteString("*,")
	}
	for i, c := range e.Components {
		if i > 0 {
			sb.WriteRune(',')
		}
		sb.WriteString(c.String())
	}
	sb.WriteRune('}')
	return sb.String()
}
