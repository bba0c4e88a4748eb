package spec

import (
	"io"
	"time"

	enc "github.com/named-data/Consumer-Producer-API/encoding"
	"github.com/named-data/Consumer-Producer-API/ndn"
	"github.com/named-data/Consumer-Producer-API/types/optional"
)

// Data is a parsed Data packet.
type Data struct {
	NameV        enc.Name
	ContentTypeV optional.Optional[ndn.ContentType]
	FreshnessV   optional.Optional[time.Duration]
	FinalBlockV  optional.Optional[enc.Component]
	ContentV     enc.Buffer
	SignatureV   Signature
}

// Signature is the signature block of a parsed packet.
type Signature struct {
	SigTypeV    ndn.SigType
	KeyLocatorV enc.Name
	SigValueV   []byte
}

func (s Signature) SigType() ndn.SigType {
	return s.SigTypeV
}

func (s Signature) KeyLocator() enc.Name {
	return s.KeyLocatorV
}

func (s Signature) SigValue() []byte {
	return s.SigValueV
}

func (d *Data) Name() enc.Name {
	return d.NameV
}

func (d *Data) ContentType() optional.Optional[ndn.ContentType] {
	return d.ContentTypeV
}

func (d *Data) Freshness() optional.Optional[time.Duration] {
	return d.FreshnessV
}

func (d *Data) FinalBlockID() optional.Optional[enc.Component] {
	return d.FinalBlockV
}

func (d *Data) Content() enc.Buffer {
	return d.ContentV
}

func (d *Data) Signature() ndn.Signature {
	return d.SignatureV
}

// MakeData encodes and signs a Data packet. A nil signer produces an
// unsigned packet. The key locator is taken from the config when set,
// otherwise from the signer.
func MakeData(name enc.Name, config *ndn.DataConfig, content enc.Wire, signer ndn.Signer) (*ndn.EncodedData, error) {
	if len(name) == 0 {
		return nil, ndn.ErrInvalidValue{Item: "name", Value: name}
	}

	// Covered range: Name through SignatureInfo.
	covered := make([]byte, 0, 256+int(content.Length()))
	covered = append(covered, name.Bytes()...)

	meta := make([]byte, 0, 16)
	if v, ok := config.ContentType.Get(); ok {
		meta = appendNatTlv(meta, TypeContentType, uint64(v))
	}
	if v, ok := config.Freshness.Get(); ok {
		meta = appendNatTlv(meta, TypeFreshnessPeriod, uint64(v.Milliseconds()))
	}
	if v, ok := config.FinalBlockID.Get(); ok {
		meta = appendTlv(meta, TypeFinalBlockId, v.Bytes())
	}
	covered = appendTlv(covered, TypeMetaInfo, meta)

	if content != nil {
		covered = appendTlv(covered, TypeContent, content.Join())
	}

	var sigValue []byte
	if signer != nil {
		sigInfo := appendNatTlv(nil, TypeSignatureType, uint64(signer.Type()))
		keyLocator := config.KeyLocator
		if keyLocator == nil {
			keyLocator = signer.KeyLocator()
		}
		if keyLocator != nil {
			sigInfo = appendTlv(sigInfo, TypeKeyLocator, keyLocator.Bytes())
		}
		covered = appendTlv(covered, TypeSignatureInfo, sigInfo)

		var err error
		sigValue, err = signer.Sign(enc.Wire{covered})
		if err != nil {
			return nil, err
		}
	}

	inner := covered
	if signer != nil {
		inner = appendTlv(inner, TypeSignatureValue, sigValue)
	}

	wire := make([]byte, 0, len(inner)+TypeData.EncodingLength()+enc.Nat(len(inner)).EncodingLength())
	wire = appendTlv(wire, TypeData, inner)

	parsed, _, err := ReadData(enc.NewView(wire))
	if err != nil {
		return nil, ndn.ErrFailedToEncode
	}

	return &ndn.EncodedData{
		Wire:   enc.Wire{wire},
		Config: config,
		Parsed: parsed,
	}, nil
}

// ReadData parses a Data packet and returns it along with the
// signature-covered range.
func ReadData(r *enc.View) (*Data, enc.Wire, error) {
	typ, err := r.ReadTLNum()
	if err != nil {
		return nil, nil, err
	}
	if typ != TypeData {
		return nil, nil, ndn.ErrWrongType
	}
	l, err := r.ReadTLNum()
	if err != nil {
		return nil, nil, err
	}
	body, err := r.Delegate(int(l))
	if err != nil {
		return nil, nil, err
	}

	d := &Data{SignatureV: Signature{SigTypeV: ndn.SignatureNone}}
	coveredStart := -1
	coveredEnd := -1

	for !body.EOF() {
		fieldStart := body.Pos()
		ft, err := body.ReadTLNum()
		if err != nil {
			return nil, nil, err
		}
		fl, err := body.ReadTLNum()
		if err != nil {
			if err == io.EOF {
				err = io.ErrUnexpectedEOF
			}
			return nil, nil, err
		}
		field, err := body.Delegate(int(fl))
		if err != nil {
			return nil, nil, err
		}

		switch ft {
		case enc.TypeName:
			coveredStart = fieldStart
			coveredEnd = body.Pos()
			if d.NameV, err = field.ReadName(); err != nil {
				return nil, nil, enc.ErrFailToParse{TypeNum: ft, Err: err}
			}
		case TypeMetaInfo:
			coveredEnd = body.Pos()
			if err = readMetaInfo(field, d); err != nil {
				return nil, nil, enc.ErrFailToParse{TypeNum: ft, Err: err}
			}
		case TypeContent:
			coveredEnd = body.Pos()
			d.ContentV = field.Range(0, field.Length())
		case TypeSignatureInfo:
			coveredEnd = body.Pos()
			if err = readSigInfo(field, d); err != nil {
				return nil, nil, enc.ErrFailToParse{TypeNum: ft, Err: err}
			}
		case TypeSignatureValue:
			d.SignatureV.SigValueV = field.Range(0, field.Length())
		default:
			// unknown field, skip
		}
	}

	if d.NameV == nil {
		return nil, nil, ndn.ErrProtocol
	}

	var covered enc.Wire
	if coveredStart >= 0 {
		covered = enc.Wire{body.Range(coveredStart, coveredEnd)}
	}
	return d, covered, nil
}

func readMetaInfo(r *enc.View, d *Data) error {
	for !r.EOF() {
		ft, err := r.ReadTLNum()
		if err != nil {
			return err
		}
		fl, err := r.ReadTLNum()
		if err != nil {
			return err
		}
		field, err := r.Delegate(int(fl))
		if err != nil {
			return err
		}
		switch ft {
		case TypeContentType:
			v, err := enc.ParseNat(field.Range(0, field.Length()))
			if err != nil {
				return err
			}
			d.ContentTypeV = optional.Some(ndn.ContentType(v))
		case TypeFreshnessPeriod:
			v, err := enc.ParseNat(field.Range(0, field.Length()))
			if err != nil {
				return err
			}
			d.FreshnessV = optional.Some(time.Duration(v) * time.Millisecond)
		case TypeFinalBlockId:
			c, err := field.ReadComponent()
			if err != nil {
				return err
			}
			d.FinalBlockV = optional.Some(c)
		default:
			// unknown field, skip
		}
	}
	return nil
}

func readSigInfo(r *enc.View, d *Data) error {
	for !r.EOF() {
		ft, err := r.ReadTLNum()
		if err != nil {
			return err
		}
		fl, err := r.ReadTLNum()
		if err != nil {
			return err
		}
		field, err := r.Delegate(int(fl))
		if err != nil {
			return err
		}
		switch ft {
		case TypeSignatureType:
			v, err := enc.ParseNat(field.Range(0, field.Length()))
			if err != nil {
				return err
			}
			d.SignatureV.SigTypeV = ndn.SigType(v)
		case TypeKeyLocator:
			name, err := readKeyLocator(field)
			if err != nil {
				return err
			}
			d.SignatureV.KeyLocatorV = name
		default:
			// unknown field, skip
		}
	}
	return nil
}

func readKeyLocator(r *enc.View) (enc.Name, error) {
	ft, err := r.ReadTLNum()
	if err != nil {
		return nil, err
	}
	fl, err := r.ReadTLNum()
	if err != nil {
		return nil, err
	}
	field, err := r.Delegate(int(fl))
	if err != nil {
		return nil, err
	}
	switch ft {
	case enc.TypeName:
		return field.ReadName()
	case TypeKeyDigest:
		// key digests are not used by this library; surfaced as a
		// single digest component so callers can still compare
		return enc.Name{enc.NewDigestComponent(field.Range(0, field.Length()))}, nil
	}
	return nil, enc.ErrFormat{Msg: "unknown KeyLocator variant"}
}
