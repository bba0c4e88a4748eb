package encoding

import (
	"bytes"
	"encoding/hex"
	"io"
	"slices"
	"strconv"
	"strings"
)

const (
	TypeInvalidComponent              TLNum = 0x00
	TypeImplicitSha256DigestComponent TLNum = 0x01
	TypeGenericNameComponent          TLNum = 0x08
	TypeKeywordNameComponent          TLNum = 0x20
	TypeSegmentNameComponent          TLNum = 0x32
	TypeByteOffsetNameComponent       TLNum = 0x34
	TypeVersionNameComponent          TLNum = 0x36
	TypeTimestampNameComponent        TLNum = 0x38
	TypeSequenceNumNameComponent      TLNum = 0x3a
)

const DigestShaNameConvention = "sha256digest"

// Component is one typed name component.
type Component struct {
	Typ TLNum
	Val []byte
}

// NewBytesComponent creates a component of the given type and value.
func NewBytesComponent(typ TLNum, val []byte) Component {
	return Component{Typ: typ, Val: val}
}

// NewStringComponent creates a component from a string value.
func NewStringComponent(typ TLNum, val string) Component {
	return Component{Typ: typ, Val: []byte(val)}
}

// NewNumberComponent creates a component carrying a natural number.
func NewNumberComponent(typ TLNum, val uint64) Component {
	return Component{Typ: typ, Val: Nat(val).Bytes()}
}

// NewGenericComponent creates a generic component from a string.
func NewGenericComponent(val string) Component {
	return NewStringComponent(TypeGenericNameComponent, val)
}

// NewSegmentComponent creates a segment component.
func NewSegmentComponent(seg uint64) Component {
	return NewNumberComponent(TypeSegmentNameComponent, seg)
}

// NewDigestComponent creates an implicit SHA-256 digest component.
func NewDigestComponent(digest []byte) Component {
	return Component{Typ: TypeImplicitSha256DigestComponent, Val: digest}
}

// Clone returns a deep copy of the component.
func (c Component) Clone() Component {
	return Component{Typ: c.Typ, Val: slices.Clone(c.Val)}
}

// IsSegment reports whether the component is a segment component.
func (c Component) IsSegment() bool {
	return c.Typ == TypeSegmentNameComponent
}

// IsDigest reports whether the component is an implicit digest.
func (c Component) IsDigest() bool {
	return c.Typ == TypeImplicitSha256DigestComponent
}

// NumberVal decodes the component value as a big-endian number.
func (c Component) NumberVal() uint64 {
	ret := uint64(0)
	for _, v := range c.Val {
		ret = (ret << 8) | uint64(v)
	}
	return ret
}

// EncodingLength returns the encoded size of the component.
func (c Component) EncodingLength() int {
	l := len(c.Val)
	return c.Typ.EncodingLength() + TLNum(l).EncodingLength() + l
}

// EncodeInto writes the component TLV into buf.
func (c Component) EncodeInto(buf Buffer) int {
	p1 := c.Typ.EncodeInto(buf)
	p2 := TLNum(len(c.Val)).EncodeInto(buf[p1:])
	copy(buf[p1+p2:], c.Val)
	return p1 + p2 + len(c.Val)
}

// Bytes returns the TLV encoding of the component.
func (c Component) Bytes() []byte {
	buf := make([]byte, c.EncodingLength())
	c.EncodeInto(buf)
	return buf
}

// TlvStr returns the TLV encoding as a string, usable as a map key.
func (c Component) TlvStr() string {
	return string(c.Bytes())
}

// Compare orders components by type, then length, then value, the
// canonical NDN component order.
func (c Component) Compare(rhs Component) int {
	if c.Typ != rhs.Typ {
		if c.Typ < rhs.Typ {
			return -1
		}
		return 1
	}
	if len(c.Val) != len(rhs.Val) {
		if len(c.Val) < len(rhs.Val) {
			return -1
		}
		return 1
	}
	return bytes.Compare(c.Val, rhs.Val)
}

// Equal reports component equality.
func (c Component) Equal(rhs Component) bool {
	return c.Typ == rhs.Typ && bytes.Equal(c.Val, rhs.Val)
}

// ReadComponent reads one component TLV from the view.
func (r *View) ReadComponent() (Component, error) {
	typ, err := r.ReadTLNum()
	if err != nil {
		return Component{}, err
	}
	l, err := r.ReadTLNum()
	if err != nil {
		if err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		return Component{}, err
	}
	val, err := r.ReadBuf(int(l))
	if err != nil {
		return Component{}, err
	}
	return Component{Typ: typ, Val: val}, nil
}

// ComponentFromBytes parses a component from its TLV encoding.
func ComponentFromBytes(buf []byte) (Component, error) {
	return NewView(buf).ReadComponent()
}

// String formats the component as a URI path segment.
func (c Component) String() string {
	sb := strings.Builder{}
	switch c.Typ {
	case TypeGenericNameComponent:
	case TypeImplicitSha256DigestComponent:
		sb.WriteString(DigestShaNameConvention)
		sb.WriteRune('=')
		sb.WriteString(hex.EncodeToString(c.Val))
		return sb.String()
	case TypeSegmentNameComponent:
		sb.WriteString("seg=")
		sb.WriteString(strconv.FormatUint(c.NumberVal(), 10))
		return sb.String()
	case TypeVersionNameComponent:
		sb.WriteString("v=")
		sb.WriteString(strconv.FormatUint(c.NumberVal(), 10))
		return sb.String()
	default:
		sb.WriteString(strconv.FormatUint(uint64(c.Typ), 10))
		sb.WriteRune('=')
	}
	writeEscapedValue(c.Val, &sb)
	return sb.String()
}

func writeEscapedValue(val []byte, sb *strings.Builder) {
	for _, b := range val {
		if ('a' <= b && b <= 'z') || ('A' <= b && b <= 'Z') ||
			('0' <= b && b <= '9') || b == '-' || b == '.' || b == '_' || b == '~' {
			sb.WriteByte(b)
		} else {
			sb.WriteRune('%')
			sb.WriteByte(hexUpper[b>>4])
			sb.WriteByte(hexUpper[b&0xf])
		}
	}
}

var hexUpper = []byte("0123456789ABCDEF")

// componentFromStrInto parses one URI path segment into ret.
func componentFromStrInto(s string, ret *Component) error {
	typStr, valStr, hasEq := strings.Cut(s, "=")
	if !hasEq {
		valStr = s
		typStr = ""
	}
	ret.Typ = TypeGenericNameComponent
	if hasEq {
		switch typStr {
		case DigestShaNameConvention:
			val, err := hex.DecodeString(valStr)
			if err != nil || len(val) != 32 {
				return ErrFormat{"invalid digest component: " + s}
			}
			ret.Typ = TypeImplicitSha256DigestComponent
			ret.Val = val
			return nil
		case "seg":
			n, err := strconv.ParseUint(valStr, 10, 64)
			if err != nil {
				return ErrFormat{"invalid segment component: " + s}
			}
			*ret = NewSegmentComponent(n)
			return nil
		case "v":
			n, err := strconv.ParseUint(valStr, 10, 64)
			if err != nil {
				return ErrFormat{"invalid version component: " + s}
			}
			*ret = NewNumberComponent(TypeVersionNameComponent, n)
			return nil
		default:
			typInt, err := strconv.ParseUint(typStr, 10, 16)
			if err != nil || typInt == 0 {
				return ErrFormat{"invalid component type: " + s}
			}
			ret.Typ = TLNum(typInt)
		}
	}
	val, err := unescapeValue(valStr)
	if err != nil {
		return err
	}
	ret.Val = val
	return nil
}

func unescapeValue(s string) ([]byte, error) {
	ret := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		if s[i] == '%' {
			if i+2 >= len(s) {
				return nil, ErrFormat{"truncated percent escape: " + s}
			}
			b, err := hex.DecodeString(s[i+1 : i+3])
			if err != nil {
				return nil, ErrFormat{"invalid percent escape: " + s}
			}
			ret = append(ret, b[0])
			i += 2
		} else {
			ret = append(ret, s[i])
		}
	}
	return ret, nil
}

// ComponentFromStr parses a URI path segment into a Component.
func ComponentFromStr(s string) (Component, error) {
	ret := Component{}
	if err := componentFromStrInto(s, &ret); err != nil {
		return Component{}, err
	}
	return ret, nil
}
