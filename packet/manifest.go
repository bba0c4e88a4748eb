// Package packet implements the payload records layered over Data
// packets: the in-stream Manifest catalogue and the Application NACK.
package packet

import (
	"bytes"
	"sort"
	"strings"

	enc "github.com/named-data/Consumer-Producer-API/encoding"
	"github.com/named-data/Consumer-Producer-API/spec"
)

// Manifest is the payload of a Data packet with content type Manifest:
// an ordered catalogue of (segment, implicit digest) full names plus
// optional key/value headers.
//
//	Manifest ::= Catalogue?
//	               Name*
//	             KeyValuePair*
type Manifest struct {
	catalogue []enc.Name
	headers   map[string]string
}

// NewManifest creates an empty manifest.
func NewManifest() *Manifest {
	return &Manifest{headers: map[string]string{}}
}

// AddToCatalogue appends a (segment, digest) entry.
func (m *Manifest) AddToCatalogue(segment enc.Component, digest []byte) {
	m.catalogue = append(m.catalogue, enc.Name{segment, enc.NewDigestComponent(digest)})
}

// Catalogue returns the ordered catalogue names.
func (m *Manifest) Catalogue() []enc.Name {
	return m.catalogue
}

// Size returns the number of catalogue entries.
func (m *Manifest) Size() int {
	return len(m.catalogue)
}

// DigestForSegment looks up the catalogued digest of a segment
// component. Returns nil when the segment is not catalogued.
func (m *Manifest) DigestForSegment(segment enc.Component) []byte {
	for _, n := range m.catalogue {
		if n.At(-2).Equal(segment) {
			return n.At(-1).Val
		}
	}
	return nil
}

// HasSegment reports whether a segment component is catalogued.
func (m *Manifest) HasSegment(segment enc.Component) bool {
	return m.DigestForSegment(segment) != nil
}

// VerifySegment checks a segment's wire image against the catalogue.
func (m *Manifest) VerifySegment(segment enc.Component, wireDigest []byte) bool {
	d := m.DigestForSegment(segment)
	return d != nil && bytes.Equal(d, wireDigest)
}

// AddHeader sets a key/value header.
func (m *Manifest) AddHeader(key, value string) {
	m.headers[key] = value
}

// Header returns the value for a key, or "" when absent.
func (m *Manifest) Header(key string) string {
	return m.headers[key]
}

// EraseHeader removes a key.
func (m *Manifest) EraseHeader(key string) {
	delete(m.headers, key)
}

// Headers returns the header map.
func (m *Manifest) Headers() map[string]string {
	return m.headers
}

// EncodingLength returns the payload size the manifest will encode to.
func (m *Manifest) EncodingLength() int {
	catalogue := 0
	for _, n := range m.catalogue {
		catalogue += len(n.Bytes())
	}
	total := 0
	if catalogue > 0 {
		total += spec.TypeManifestCatalogue.EncodingLength() +
			enc.TLNum(catalogue).EncodingLength() + catalogue
	}
	total += kvEncodingLength(m.headers)
	return total
}

// Encode produces the manifest payload. Catalogue names precede
// headers; headers are emitted in sorted key order.
func (m *Manifest) Encode() enc.Buffer {
	buf := make([]byte, 0, m.EncodingLength())
	if len(m.catalogue) > 0 {
		catalogue := make([]byte, 0, 64*len(m.catalogue))
		for _, n := range m.catalogue {
			catalogue = append(catalogue, n.Bytes()...)
		}
		buf = appendTlv(buf, spec.TypeManifestCatalogue, catalogue)
	}
	return appendKvPairs(buf, m.headers)
}

// DecodeManifest parses a manifest payload. Unknown elements and
// malformed key/value pairs are skipped.
func DecodeManifest(content enc.Buffer) (*Manifest, error) {
	m := NewManifest()
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
		switch typ {
		case spec.TypeManifestCatalogue:
			for !field.EOF() {
				nt, err := field.ReadTLNum()
				if err != nil {
					return nil, err
				}
				nl, err := field.ReadTLNum()
				if err != nil {
					return nil, err
				}
				nameField, err := field.Delegate(int(nl))
				if err != nil {
					return nil, err
				}
				if nt != enc.TypeName {
					continue
				}
				name, err := nameField.ReadName()
				if err != nil {
					return nil, err
				}
				m.catalogue = append(m.catalogue, name)
			}
		case spec.TypeKeyValuePair:
			key, value, ok := splitKvPair(field.Range(0, field.Length()))
			if ok {
				m.headers[key] = value
			}
		default:
			// unknown element, skip
		}
	}
	return m, nil
}

func kvEncodingLength(headers map[string]string) int {
	total := 0
	for k, v := range headers {
		l := len(k) + 1 + len(v)
		total += spec.TypeKeyValuePair.EncodingLength() + enc.TLNum(l).EncodingLength() + l
	}
	return total
}

func appendKvPairs(buf []byte, headers map[string]string) []byte {
	keys := make([]string, 0, len(headers))
	for k := range headers {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		buf = appendTlv(buf, spec.TypeKeyValuePair, []byte(k+"="+headers[k]))
	}
	return buf
}

func splitKvPair(val enc.Buffer) (key, value string, ok bool) {
	s := string(val)
	idx := strings.IndexByte(s, '=')
	if idx <= 0 || idx == len(s)-1 {
		return "", "", false
	}
	return s[:idx], s[idx+1:], true
}

func appendTlv(buf []byte, typ enc.TLNum, val []byte) []byte {
	hdr := make([]byte, typ.EncodingLength()+enc.TLNum(len(val)).EncodingLength())
	p := typ.EncodeInto(hdr)
	enc.TLNum(len(val)).EncodeInto(hdr[p:])
	buf = append(buf, hdr...)
	return append(buf, val...)
}
