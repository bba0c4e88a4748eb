package spec

import (
	"encoding/binary"
	"time"

	enc "github.com/named-data/Consumer-Producer-API/encoding"
	"github.com/named-data/Consumer-Producer-API/ndn"
	"github.com/named-data/Consumer-Producer-API/types/optional"
)

// Interest is a parsed Interest packet.
type Interest struct {
	NameV        enc.Name
	LifetimeV    optional.Optional[time.Duration]
	NonceV       optional.Optional[uint32]
	MustBeFreshV bool
	MinSuffixV   optional.Optional[uint64]
	MaxSuffixV   optional.Optional[uint64]
	ChildSelV    optional.Optional[uint64]
	ExcludeV     *ndn.Exclude
	PublisherV   enc.Name
}

func (i *Interest) Name() enc.Name {
	return i.NameV
}

func (i *Interest) Lifetime() optional.Optional[time.Duration] {
	return i.LifetimeV
}

func (i *Interest) Nonce() optional.Optional[uint32] {
	return i.NonceV
}

func (i *Interest) MustBeFresh() bool {
	return i.MustBeFreshV
}

func (i *Interest) MinSuffixComponents() optional.Optional[uint64] {
	return i.MinSuffixV
}

func (i *Interest) MaxSuffixComponents() optional.Optional[uint64] {
	return i.MaxSuffixV
}

func (i *Interest) ChildSelector() optional.Optional[uint64] {
	return i.ChildSelV
}

func (i *Interest) Exclude() *ndn.Exclude {
	return i.ExcludeV
}

func (i *Interest) PublisherKeyLocator() enc.Name {
	return i.PublisherV
}

// InterestFromConfig builds the parsed view of an Interest under
// construction, for callbacks observing outgoing packets.
func InterestFromConfig(name enc.Name, config *ndn.InterestConfig) *Interest {
	return &Interest{
		NameV:        name,
		LifetimeV:    config.Lifetime,
		NonceV:       config.Nonce,
		MustBeFreshV: config.MustBeFresh,
		MinSuffixV:   config.MinSuffixComponents,
		MaxSuffixV:   config.MaxSuffixComponents,
		ChildSelV:    config.ChildSelector,
		ExcludeV:     config.Exclude,
		PublisherV:   config.PublisherKeyLocator,
	}
}

// MakeInterest encodes an Interest. Selectors are emitted only when at
// least one selector field is set; the exclude set is written in
// canonical component order.
func MakeInterest(name enc.Name, config *ndn.InterestConfig) (*ndn.EncodedInterest, error) {
	if len(name) == 0 {
		return nil, ndn.ErrInvalidValue{Item: "name", Value: name}
	}

	inner := append([]byte(nil), name.Bytes()...)

	sel := encodeSelectors(config)
	if sel != nil {
		inner = appendTlv(inner, TypeSelectors, sel)
	}

	if v, ok := config.Nonce.Get(); ok {
		nonce := make([]byte, 4)
		binary.BigEndian.PutUint32(nonce, v)
		inner = appendTlv(inner, TypeNonce, nonce)
	}

	if v, ok := config.Lifetime.Get(); ok {
		inner = appendNatTlv(inner, TypeInterestLifetime, uint64(v.Milliseconds()))
	}

	wire := appendTlv(nil, TypeInterest, inner)

	return &ndn.EncodedInterest{
		Wire:      enc.Wire{wire},
		Config:    config,
		FinalName: name,
	}, nil
}

func encodeSelectors(config *ndn.InterestConfig) []byte {
	hasAny := config.MinSuffixComponents.IsSet() || config.MaxSuffixComponents.IsSet() ||
		config.PublisherKeyLocator != nil || config.Exclude.Size() > 0 ||
		config.ChildSelector.IsSet() || config.MustBeFresh
	if !hasAny {
		return nil
	}

	sel := make([]byte, 0, 64)
	if v, ok := config.MinSuffixComponents.Get(); ok {
		sel = appendNatTlv(sel, TypeMinSuffixComponents, v)
	}
	if v, ok := config.MaxSuffixComponents.Get(); ok {
		sel = appendNatTlv(sel, TypeMaxSuffixComponents, v)
	}
	if config.PublisherKeyLocator != nil {
		sel = appendTlv(sel, TypePublisherPublicKeyLocator, config.PublisherKeyLocator.Bytes())
	}
	if config.Exclude.Size() > 0 {
		ex := make([]byte, 0, 64)
		if config.Exclude.AnyBefore {
			ex = appendTlv(ex, TypeAny, nil)
		}
		for _, c := range config.Exclude.Components {
			ex = append(ex, c.Bytes()...)
		}
		sel = appendTlv(sel, TypeExclude, ex)
	}
	if v, ok := config.ChildSelector.Get(); ok {
		sel = appendNatTlv(sel, TypeChildSelector, v)
	}
	if config.MustBeFresh {
		sel = appendTlv(sel, TypeMustBeFresh, nil)
	}
	return sel
}

// ReadInterest parses an Interest packet.
func ReadInterest(r *enc.View) (*Interest, error) {
	typ, err := r.ReadTLNum()
	if err != nil {
		return nil, err
	}
	if typ != TypeInterest {
		return nil, ndn.ErrWrongType
	}
	l, err := r.ReadTLNum()
	if err != nil {
		return nil, err
	}
	body, err := r.Delegate(int(l))
	if err != nil {
		return nil, err
	}

	i := &Interest{}
	for !body.EOF() {
		ft, err := body.ReadTLNum()
		if err != nil {
			return nil, err
		}
		fl, err := body.ReadTLNum()
		if err != nil {
			return nil, err
		}
		field, err := body.Delegate(int(fl))
		if err != nil {
			return nil, err
		}

		switch ft {
		case enc.TypeName:
			if i.NameV, err = field.ReadName(); err != nil {
				return nil, enc.ErrFailToParse{TypeNum: ft, Err: err}
			}
		case TypeSelectors:
			if err = readSelectors(field, i); err != nil {
				return nil, enc.ErrFailToParse{TypeNum: ft, Err: err}
			}
		case TypeNonce:
			buf := field.Range(0, field.Length())
			if len(buf) == 4 {
				i.NonceV = optional.Some(binary.BigEndian.Uint32(buf))
			}
		case TypeInterestLifetime:
			v, err := enc.ParseNat(field.Range(0, field.Length()))
			if err != nil {
				return nil, enc.ErrFailToParse{TypeNum: ft, Err: err}
			}
			i.LifetimeV = optional.Some(time.Duration(v) * time.Millisecond)
		default:
			// unknown field, skip
		}
	}

	if i.NameV == nil {
		return nil, ndn.ErrProtocol
	}
	return i, nil
}

func readSelectors(r *enc.View, i *Interest) error {
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
		case TypeMinSuffixComponents:
			v, err := enc.ParseNat(field.Range(0, field.Length()))
			if err != nil {
				return err
			}
			i.MinSuffixV = optional.Some(uint64(v))
		case TypeMaxSuffixComponents:
			v, err := enc.ParseNat(field.Range(0, field.Length()))
			if err != nil {
				return err
			}
			i.MaxSuffixV = optional.Some(uint64(v))
		case TypePublisherPublicKeyLocator:
			name, err := readKeyLocator(field)
			if err != nil {
				return err
			}
			i.PublisherV = name
		case TypeExclude:
			ex, err := readExclude(field)
			if err != nil {
				return err
			}
			i.ExcludeV = ex
		case TypeChildSelector:
			v, err := enc.ParseNat(field.Range(0, field.Length()))
			if err != nil {
				return err
			}
			i.ChildSelV = optional.Some(uint64(v))
		case TypeMustBeFresh:
			i.MustBeFreshV = true
		default:
			// unknown field, skip
		}
	}
	return nil
}

func readExclude(r *enc.View) (*ndn.Exclude, error) {
	ex := &ndn.Exclude{}
	first := true
	for !r.EOF() {
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
		if ft == TypeAny {
			if first {
				ex.AnyBefore = true
			}
			// ranges between components are not used by this library
		} else {
			ex.Append(enc.Component{Typ: ft, Val: field.Range(0, field.Length())})
		}
		first = false
	}
	return ex, nil
}
