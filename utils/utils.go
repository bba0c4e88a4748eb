package utils

import (
	"github.com/named-data/Consumer-Producer-API/types/optional"
)

// IdPtr returns a pointer to the given value.
func IdPtr[T any](value T) *T {
	return &value
}

// ConvertNonce converts a nonce buffer to a 32-bit nonce value.
func ConvertNonce(nonce []byte) optional.Optional[uint32] {
	if len(nonce) < 4 {
		return optional.None[uint32]()
	}
	val := uint32(0)
	for _, b := range nonce[:4] {
		val = (val << 8) | uint32(b)
	}
	return optional.Some(val)
}
