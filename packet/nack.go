package packet

import (
	"strconv"
	"time"

	enc "github.com/named-data/Consumer-Producer-API/encoding"
	"github.com/named-data/Consumer-Producer-API/spec"
)

// NackCode is the status carried by an Application NACK.
type NackCode int

const (
	NackNone                NackCode = 0
	NackProducerDelay       NackCode = 1
	NackDataNotAvailable    NackCode = 2
	NackInterestNotVerified NackCode = 3
)

// Reserved NACK header keys.
const (
	StatusCodeHeader = "Status-code"
	RetryAfterHeader = "Retry-after"
)

// Nack is the payload of a Data packet with content type Nack: a set
// of key/value headers with two reserved keys for the status code and
// the retry delay.
//
//	Nack ::= KeyValuePair*
type Nack struct {
	headers map[string]string
}

// NewNack creates a NACK with the given status code.
func NewNack(code NackCode) *Nack {
	n := &Nack{headers: map[string]string{}}
	n.SetCode(code)
	return n
}

// SetCode stores the status code header.
func (n *Nack) SetCode(code NackCode) {
	n.headers[StatusCodeHeader] = strconv.Itoa(int(code))
}

// Code returns the status code, NackNone when absent or malformed.
func (n *Nack) Code() NackCode {
	v, err := strconv.Atoi(n.headers[StatusCodeHeader])
	if err != nil {
		return NackNone
	}
	return NackCode(v)
}

// SetRetryAfter stores the retry delay header in milliseconds.
func (n *Nack) SetRetryAfter(d time.Duration) {
	n.headers[RetryAfterHeader] = strconv.FormatInt(d.Milliseconds(), 10)
}

// RetryAfter returns the retry delay, zero when absent or malformed.
func (n *Nack) RetryAfter() time.Duration {
	v, err := strconv.ParseInt(n.headers[RetryAfterHeader], 10, 64)
	if err != nil {
		return 0
	}
	return time.Duration(v) * time.Millisecond
}

// AddHeader sets a key/value header.
func (n *Nack) AddHeader(key, value string) {
	n.headers[key] = value
}

// Header returns the value for a key, or "" when absent.
func (n *Nack) Header(key string) string {
	return n.headers[key]
}

// Headers returns the header map.
func (n *Nack) Headers() map[string]string {
	return n.headers
}

// Encode produces the NACK payload in sorted key order.
func (n *Nack) Encode() enc.Buffer {
	return appendKvPairs(make([]byte, 0, kvEncodingLength(n.headers)), n.headers)
}

// DecodeNack parses a NACK payload, skipping unknown elements and
// malformed pairs.
func DecodeNack(content enc.Buffer) (*Nack, error) {
	n := &Nack{headers: map[string]string{}}
	r := enc.NewView(content)
	for !r.EOF() {
		typ, err := r.ReadTLNum()
		if err != nil {
			return nil, err
		}
		l, err := r.ReadTLNum()
		if err != nil {
			return nil, err
		}
		field, err := r.Delegate(int(l))
		if err != nil {
			return nil, err
		}
		if typ != spec.TypeKeyValuePair {
			continue
		}
		if key, value, ok := splitKvPair(field.Range(0, field.Length())); ok {
			n.headers[key] = value
		}
	}
	return n, nil
}
