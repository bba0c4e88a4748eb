package encoding

import (
	"hash"
	"sync"

	"github.com/cespare/xxhash"
)

var xxHashPool = sync.Pool{
	New: func() any { return xxhash.New() },
}

// Hash returns the xxhash of the component's TLV encoding.
func (c Component) Hash() uint64 {
	xx := xxHashPool.Get().(hash.Hash64)
	defer xxHashPool.Put(xx)
	xx.Reset()
	xx.Write(c.Bytes())
	return xx.Sum64()
}

// Hash returns the xxhash of the name's inner TLV encoding.
func (n Name) Hash() uint64 {
	xx := xxHashPool.Get().(hash.Hash64)
	defer xxHashPool.Put(xx)
	xx.Reset()
	xx.Write(n.BytesInner())
	return xx.Sum64()
}
