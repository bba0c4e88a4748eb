package encoding

import (
	"crypto/sha256"
	"io"
	"strings"
)

// Name is an ordered sequence of components.
type Name []Component

const TypeName TLNum = 0x07

// String formats the name as a URI.
func (n Name) String() string {
	if len(n) == 0 {
		return "/"
	}
	sb := strings.Builder{}
	for _, c := range n {
		sb.WriteRune('/')
		sb.WriteString(c.String())
	}
	return sb.String()
}

// EncodingLength computes the encoded size of the name
// excluding the TL prefix.
func (n Name) EncodingLength() int {
	ret := 0
	for _, c := range n {
		ret += c.EncodingLength()
	}
	return ret
}

// EncodeInto encodes the name into buf excluding the TL prefix.
// Use Bytes to obtain the full encoding.
func (n Name) EncodeInto(buf Buffer) int {
	pos := 0
	for _, c := range n {
		pos += c.EncodeInto(buf[pos:])
	}
	return pos
}

// Bytes returns the full TLV encoding of the name.
func (n Name) Bytes() []byte {
	l := n.EncodingLength()
	buf := make([]byte, TypeName.EncodingLength()+TLNum(l).EncodingLength()+l)
	p1 := TypeName.EncodeInto(buf)
	p2 := TLNum(l).EncodeInto(buf[p1:])
	n.EncodeInto(buf[p1+p2:])
	return buf
}

// BytesInner returns the encoding of the name excluding the TL prefix.
func (n Name) BytesInner() []byte {
	buf := make([]byte, n.EncodingLength())
	n.EncodeInto(buf)
	return buf
}

// TlvStr returns the inner TLV encoding as a string, usable as a map key.
func (n Name) TlvStr() string {
	return string(n.BytesInner())
}

// Clone returns a deep copy of the name.
func (n Name) Clone() Name {
	ret := make(Name, len(n))
	for i, c := range n {
		ret[i] = c.Clone()
	}
	return ret
}

// At returns the ith component; negative indices count from the end.
// Out-of-range indices yield a zero component.
func (n Name) At(i int) Component {
	if i < -len(n) || i >= len(n) {
		return Component{}
	} else if i < 0 {
		return n[len(n)+i]
	}
	return n[i]
}

// Prefix returns the name's first i components; negative i removes
// components from the end. Not a deep copy.
func (n Name) Prefix(i int) Name {
	if i < 0 {
		i = len(n) + i
	}
	if i <= 0 {
		return Name{}
	}
	if i >= len(n) {
		return n
	}
	return n[:i]
}

// Append returns a copy of the name with the given components added.
func (n Name) Append(rest ...Component) Name {
	if len(rest) == 0 {
		return n
	}
	ret := make(Name, len(n)+len(rest))
	copy(ret, n)
	copy(ret[len(n):], rest)
	return ret
}

// Compare orders names componentwise, shorter first on shared prefix.
func (n Name) Compare(rhs Name) int {
	for i := 0; i < min(len(n), len(rhs)); i++ {
		if ret := n[i].Compare(rhs[i]); ret != 0 {
			return ret
		}
	}
	switch {
	case len(n) < len(rhs):
		return -1
	case len(n) > len(rhs):
		return 1
	default:
		return 0
	}
}

// Equal reports name equality.
func (n Name) Equal(rhs Name) bool {
	if len(n) != len(rhs) {
		return false
	}
	if len(n) == 0 || &n[0] == &rhs[0] {
		return true
	}
	for i := range n {
		if !n[i].Equal(rhs[i]) {
			return false
		}
	}
	return true
}

// IsPrefix reports whether n is a prefix of rhs.
func (n Name) IsPrefix(rhs Name) bool {
	if len(n) > len(rhs) {
		return false
	}
	for i := 0; i < len(n); i++ {
		if !n[i].Equal(rhs[i]) {
			return false
		}
	}
	return true
}

// ToFullName appends the implicit SHA-256 digest of rawData unless the
// name already carries one.
func (n Name) ToFullName(rawData Wire) Name {
	if n.At(-1).Typ == TypeImplicitSha256DigestComponent {
		return n
	}
	h := sha256.New()
	for _, buf := range rawData {
		h.Write(buf)
	}
	return n.Append(NewDigestComponent(h.Sum(nil)))
}

// ReadName reads components until the view is exhausted.
func (r *View) ReadName() (Name, error) {
	var err error
	var c Component
	ret := make(Name, 0, 8)
	for c, err = r.ReadComponent(); err == nil; c, err = r.ReadComponent() {
		ret = append(ret, c)
	}
	if err != io.EOF {
		return nil, err
	}
	return ret, nil
}

// NameFromStr parses a URI string into a Name.
func NameFromStr(s string) (Name, error) {
	strs := strings.Split(s, "/")
	if len(strs) > 0 && strs[0] == "" {
		strs = strs[1:]
	}
	if len(strs) > 0 && strs[len(strs)-1] == "" {
		strs = strs[:len(strs)-1]
	}
	ret := make(Name, len(strs))
	for i, str := range strs {
		if err := componentFromStrInto(str, &ret[i]); err != nil {
			return nil, err
		}
	}
	return ret, nil
}

// NameFromBytes parses a full TLV-encoded Name.
func NameFromBytes(buf []byte) (Name, error) {
	r := NewView(buf)
	t, err := r.ReadTLNum()
	if err != nil {
		return nil, err
	}
	if t != TypeName {
		return nil, ErrFormat{"encoding.NameFromBytes: given bytes is not a Name"}
	}
	l, err := r.ReadTLNum()
	if err != nil {
		return nil, err
	}
	sub, err := r.Delegate(int(l))
	if err != nil {
		return nil, err
	}
	return sub.ReadName()
}
