// Package store implements the producer's send-side content store: a
// bounded, name-indexed cache of produced segments that answers
// repeated Interests without re-invoking the application.
package store

import (
	"container/list"
	"crypto/sha256"
	"sync"
	"time"

	enc "github.com/named-data/Consumer-Producer-API/encoding"
	"github.com/named-data/Consumer-Producer-API/ndn"
	"github.com/named-data/Consumer-Producer-API/spec"
)

// Entry is one cached segment.
type Entry struct {
	data     *spec.Data
	wire     enc.Buffer
	arrived  time.Time
	staleAt  time.Time
	digest   []byte
	fifoElem *list.Element
}

// Data returns the cached packet.
func (e *Entry) Data() *spec.Data {
	return e.data
}

// Wire returns the cached wire image.
func (e *Entry) Wire() enc.Buffer {
	return e.wire
}

// Digest lazily computes the SHA-256 of the wire image.
func (e *Entry) Digest() []byte {
	if e.digest == nil {
		d := sha256.Sum256(e.wire)
		e.digest = d[:]
	}
	return e.digest
}

// ArrivedAt returns when the entry was inserted.
func (e *Entry) ArrivedAt() time.Time {
	return e.arrived
}

// StaleAt returns when the entry stops satisfying MustBeFresh.
func (e *Entry) StaleAt() time.Time {
	return e.staleAt
}

type node struct {
	comp     enc.Component
	parent   *node
	children map[string]*node
	entry    *Entry
}

// SendBuffer is the bounded send-side content store. Concurrent
// readers, single writer; freshness is checked lazily on lookup, never
// on a timer.
type SendBuffer struct {
	mutex sync.RWMutex
	timer ndn.Timer

	root  *node
	count int
	limit int
	fifo  *list.List // of *Entry, oldest first

	// fullName indexes entries by xxhash of name||digest for
	// digest-pinned exact match.
	fullName map[uint64]*Entry

	// OnEvict fires for each entry pushed out by the size bound.
	OnEvict func(*Entry)
}

// NewSendBuffer creates a store bounded to limit entries. A limit of
// zero disables the bound.
func NewSendBuffer(limit int, timer ndn.Timer) *SendBuffer {
	return &SendBuffer{
		timer:    timer,
		root:     &node{},
		limit:    limit,
		fifo:     list.New(),
		fullName: map[uint64]*Entry{},
	}
}

func (sb *SendBuffer) String() string {
	return "send-buffer"
}

// SetLimit changes the size bound and evicts down to it.
func (sb *SendBuffer) SetLimit(limit int) {
	sb.mutex.Lock()
	defer sb.mutex.Unlock()
	sb.limit = limit
	sb.evict()
}

// Limit returns the size bound.
func (sb *SendBuffer) Limit() int {
	sb.mutex.RLock()
	defer sb.mutex.RUnlock()
	return sb.limit
}

// Len returns the number of cached entries.
func (sb *SendBuffer) Len() int {
	sb.mutex.RLock()
	defer sb.mutex.RUnlock()
	return sb.count
}

// Insert stores a packet by name, replacing any entry with the same
// name, and evicts oldest-first beyond the limit.
func (sb *SendBuffer) Insert(data *spec.Data, wire enc.Buffer) {
	now := sb.timer.Now()
	entry := &Entry{
		data:    data,
		wire:    wire,
		arrived: now,
		staleAt: now.Add(data.Freshness().GetOr(0)),
	}

	sb.mutex.Lock()
	defer sb.mutex.Unlock()

	n := sb.root
	for _, c := range data.Name() {
		key := c.TlvStr()
		if n.children == nil {
			n.children = map[string]*node{}
		}
		child := n.children[key]
		if child == nil {
			child = &node{comp: c, parent: n}
			n.children[key] = child
		}
		n = child
	}

	if n.entry != nil {
		// same name: replace in place, keeping the FIFO position
		entry.fifoElem = n.entry.fifoElem
		entry.fifoElem.Value = entry
		delete(sb.fullName, fullNameHash(n.entry))
	} else {
		entry.fifoElem = sb.fifo.PushBack(entry)
		sb.count++
	}
	n.entry = entry
	sb.fullName[fullNameHash(entry)] = entry

	sb.evict()
}

func fullNameHash(e *Entry) uint64 {
	return e.data.Name().Append(enc.NewDigestComponent(e.Digest())).Hash()
}

// evict drops oldest entries until the store fits. Caller holds the
// write lock.
func (sb *SendBuffer) evict() {
	for sb.limit > 0 && sb.count > sb.limit {
		front := sb.fifo.Front()
		if front == nil {
			return
		}
		entry := front.Value.(*Entry)
		sb.removeLocked(entry)
		if sb.OnEvict != nil {
			sb.OnEvict(entry)
		}
	}
}

func (sb *SendBuffer) removeLocked(entry *Entry) {
	sb.fifo.Remove(entry.fifoElem)
	entry.fifoElem.Value = nil
	delete(sb.fullName, fullNameHash(entry))
	sb.count--

	n := sb.findNode(entry.data.Name())
	if n == nil || n.entry != entry {
		return
	}
	n.entry = nil
	for n.parent != nil && n.entry == nil && len(n.children) == 0 {
		delete(n.parent.children, n.comp.TlvStr())
		n = n.parent
	}
}

func (sb *SendBuffer) findNode(name enc.Name) *node {
	n := sb.root
	for _, c := range name {
		if n.children == nil {
			return nil
		}
		n = n.children[c.TlvStr()]
		if n == nil {
			return nil
		}
	}
	return n
}

// Find returns the cached entry best matching the Interest under its
// selectors, or nil.
func (sb *SendBuffer) Find(interest ndn.Interest) *Entry {
	name := interest.Name()

	// exact match on name||digest when the Interest pins a digest
	if name.At(-1).IsDigest() {
		sb.mutex.RLock()
		entry := sb.fullName[name.Hash()]
		sb.mutex.RUnlock()
		if entry != nil && !sb.filterStale(interest, entry) {
			return entry
		}
		return nil
	}

	sb.mutex.RLock()
	var candidates []*Entry
	if prefix := sb.findNode(name); prefix != nil {
		candidates = collect(prefix, nil)
	}
	sb.mutex.RUnlock()

	var best *Entry
	rightmost := interest.ChildSelector().GetOr(ndn.LeftmostChild) == ndn.RightmostChild
	for _, entry := range candidates {
		if sb.filterStale(interest, entry) {
			continue
		}
		if !matchSelectors(interest, entry) {
			continue
		}
		if best == nil {
			best = entry
			continue
		}
		cmp := entry.data.Name().Compare(best.data.Name())
		if (rightmost && cmp > 0) || (!rightmost && cmp < 0) {
			best = entry
		}
	}
	return best
}

// filterStale reports whether MustBeFresh rejects the entry. Rejected
// entries are removed from the store on the way.
func (sb *SendBuffer) filterStale(interest ndn.Interest, entry *Entry) bool {
	if !interest.MustBeFresh() {
		return false
	}
	if sb.timer.Now().Before(entry.staleAt) {
		return false
	}
	sb.mutex.Lock()
	if entry.fifoElem.Value == any(entry) { // not already removed or replaced
		sb.removeLocked(entry)
	}
	sb.mutex.Unlock()
	return true
}

func matchSelectors(interest ndn.Interest, entry *Entry) bool {
	name := interest.Name()
	entryName := entry.data.Name()

	// the trailing component right under the Interest name; the
	// implicit digest stands in when the names are equal
	var trailing enc.Component
	if len(entryName) > len(name) {
		trailing = entryName[len(name)]
	} else {
		trailing = enc.NewDigestComponent(entry.Digest())
	}
	if interest.Exclude().IsExcluded(trailing) {
		return false
	}

	// suffix bounds count the implicit digest component
	suffix := uint64(len(entryName) - len(name) + 1)
	if v, ok := interest.MinSuffixComponents().Get(); ok && suffix < v {
		return false
	}
	if v, ok := interest.MaxSuffixComponents().Get(); ok && suffix > v {
		return false
	}
	return true
}

func collect(n *node, acc []*Entry) []*Entry {
	if n.entry != nil {
		acc = append(acc, n.entry)
	}
	for _, child := range n.children {
		acc = collect(child, acc)
	}
	return acc
}
