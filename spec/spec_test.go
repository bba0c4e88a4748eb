package spec_test

import (
	"crypto/sha256"
	"testing"
	"time"

	enc "github.com/named-data/Consumer-Producer-API/encoding"
	"github.com/named-data/Consumer-Producer-API/ndn"
	sig "github.com/named-data/Consumer-Producer-API/security/signer"
	"github.com/named-data/Consumer-Producer-API/spec"
	"github.com/named-data/Consumer-Producer-API/types/optional"
	tu "github.com/named-data/Consumer-Producer-API/utils/testutils"
	"github.com/stretchr/testify/require"
)

func TestMakeDataBasic(t *testing.T) {
	tu.SetT(t)

	data, err := spec.MakeData(
		tu.NoErr(enc.NameFromStr("/local/ndn/prefix")),
		&ndn.DataConfig{
			ContentType: optional.Some(ndn.ContentTypeBlob),
		},
		nil,
		sig.NewSha256Signer(),
	)
	require.NoError(t, err)
	require.Equal(t, []byte(
		"\x06\x42\x07\x14\x08\x05local\x08\x03ndn\x08\x06prefix"+
			"\x14\x03\x18\x01\x00"+
			"\x16\x03\x1b\x01\x00"+
			"\x17 \x7f1\xe4\t\xc5z/\x1d\r\xdaVh8\xfd\xd9\x94"+
			"\xd8'S\x13[\xd7\x15\xa5\x9d%^\x80\xf2\xab\xf0\xb5"),
		data.Wire.Join())

	data, err = spec.MakeData(
		tu.NoErr(enc.NameFromStr("/local/ndn/prefix")),
		&ndn.DataConfig{
			ContentType: optional.Some(ndn.ContentTypeBlob),
		},
		enc.Wire{[]byte("01020304")},
		sig.NewSha256Signer(),
	)
	require.NoError(t, err)
	require.Equal(t, []byte(
		"\x06L\x07\x14\x08\x05local\x08\x03ndn\x08\x06prefix"+
			"\x14\x03\x18\x01\x00"+
			"\x15\x0801020304"+
			"\x16\x03\x1b\x01\x00"+
			"\x17 \x94\xe9\xda\x91\x1a\x11\xfft\x02i:G\x0cO\xdd!"+
			"\xe0\xc7\xb6\xfd\x8f\x9cn\xc5\x93{\x93\x04\xe0\xdf\xa6S"),
		data.Wire.Join())

	data, err = spec.MakeData(
		tu.NoErr(enc.NameFromStr("/local/ndn/prefix")),
		&ndn.DataConfig{
			ContentType: optional.Some(ndn.ContentTypeBlob),
		},
		nil,
		nil,
	)
	require.NoError(t, err)
	require.Equal(t, []byte(
		"\x06\x1b\x07\x14\x08\x05local\x08\x03ndn\x08\x06prefix"+
			"\x14\x03\x18\x01\x00"),
		data.Wire.Join())
}

func TestMakeDataMetaInfo(t *testing.T) {
	tu.SetT(t)

	data, err := spec.MakeData(
		tu.NoErr(enc.NameFromStr("/local/ndn/prefix/37=%00")),
		&ndn.DataConfig{
			ContentType:  optional.Some(ndn.ContentTypeBlob),
			Freshness:    optional.Some(1000 * time.Millisecond),
			FinalBlockID: optional.Some(enc.NewNumberComponent(enc.TypeSequenceNumNameComponent, 2)),
		},
		nil,
		sig.NewSha256Signer(),
	)
	require.NoError(t, err)
	require.Equal(t, []byte(
		"\x06\x4e\x07\x17\x08\x05local\x08\x03ndn\x08\x06prefix\x25\x01\x00"+
			"\x14\x0c\x18\x01\x00\x19\x02\x03\xe8\x1a\x03\x3a\x01\x02"+
			"\x16\x03\x1b\x01\x00"+
			"\x17 \x0f^\xa1\x0c\xa7\xf5Fb\xf0\x9cOT\xe0FeC\x8f92\x04\x9d\xabP\x80o'\x94\xaa={hQ"),
		data.Wire.Join())
}

func TestReadDataBasic(t *testing.T) {
	tu.SetT(t)

	data, covered, err := spec.ReadData(enc.NewView([]byte(
		"\x06\x42\x07\x14\x08\x05local\x08\x03ndn\x08\x06prefix" +
			"\x14\x03\x18\x01\x00" +
			"\x16\x03\x1b\x01\x00" +
			"\x17 \x7f1\xe4\t\xc5z/\x1d\r\xdaVh8\xfd\xd9\x94" +
			"\xd8'S\x13[\xd7\x15\xa5\x9d%^\x80\xf2\xab\xf0\xb5"),
	))
	require.NoError(t, err)
	require.Equal(t, "/local/ndn/prefix", data.Name().String())
	require.Equal(t, ndn.ContentTypeBlob, data.ContentType().Unwrap())
	require.False(t, data.Freshness().IsSet())
	require.False(t, data.FinalBlockID().IsSet())
	require.Equal(t, ndn.SignatureDigestSha256, data.Signature().SigType())
	require.True(t, data.Content() == nil)

	h := sha256.New()
	for _, c := range covered {
		h.Write(c)
	}
	require.Equal(t, h.Sum(nil), data.Signature().SigValue())
	require.True(t, sig.ValidateSha256(covered, data.Signature()))
}

func TestDataRoundTrip(t *testing.T) {
	tu.SetT(t)

	locator := tu.NoErr(enc.NameFromStr("/local/data/seg=0"))
	made, err := spec.MakeData(
		tu.NoErr(enc.NameFromStr("/local/data/seg=3")),
		&ndn.DataConfig{
			ContentType:  optional.Some(ndn.ContentTypeBlob),
			Freshness:    optional.Some(10 * time.Second),
			FinalBlockID: optional.Some(enc.NewSegmentComponent(7)),
			KeyLocator:   locator,
		},
		enc.Wire{[]byte("payload")},
		sig.NewLocatedSha256Signer(locator),
	)
	require.NoError(t, err)

	data, covered, err := spec.ReadData(enc.NewView(made.Wire.Join()))
	require.NoError(t, err)
	require.Equal(t, "/local/data/seg=3", data.Name().String())
	require.Equal(t, 10*time.Second, data.Freshness().Unwrap())
	require.Equal(t, uint64(7), data.FinalBlockID().Unwrap().NumberVal())
	require.Equal(t, []byte("payload"), []byte(data.Content()))
	require.True(t, data.Signature().KeyLocator().Equal(locator))
	require.True(t, sig.ValidateSha256(covered, data.Signature()))
}

func TestMakeInterestBasic(t *testing.T) {
	tu.SetT(t)

	interest, err := spec.MakeInterest(
		tu.NoErr(enc.NameFromStr("/local/ndn/prefix")),
		&ndn.InterestConfig{
			Lifetime: optional.Some(4 * time.Second),
		},
	)
	require.NoError(t, err)
	require.Equal(t, "/local/ndn/prefix", interest.FinalName.String())
	require.Equal(t,
		[]byte("\x05\x1a\x07\x14\x08\x05local\x08\x03ndn\x08\x06prefix\x0c\x02\x0f\xa0"),
		interest.Wire.Join())
}

func TestMakeInterestSelectors(t *testing.T) {
	tu.SetT(t)

	interest, err := spec.MakeInterest(
		tu.NoErr(enc.NameFromStr("/data")),
		&ndn.InterestConfig{
			Lifetime:    optional.Some(10 * time.Millisecond),
			Nonce:       optional.Some[uint32](0x01020304),
			MustBeFresh: true,
			ChildSelector: optional.Some(ndn.RightmostChild),
		},
	)
	require.NoError(t, err)
	require.Equal(t, []byte(
		"\x05\x18\x07\x06\x08\x04data"+
			"\x09\x05\x11\x01\x01\x12\x00"+
			"\x0a\x04\x01\x02\x03\x04"+
			"\x0c\x01\x0a"),
		interest.Wire.Join())
}

func TestInterestRoundTrip(t *testing.T) {
	tu.SetT(t)

	exclude := ndn.NewExclude(enc.NewDigestComponent(make([]byte, 32)))
	publisher := tu.NoErr(enc.NameFromStr("/keys/alice"))

	made, err := spec.MakeInterest(
		tu.NoErr(enc.NameFromStr("/data/seg=2")),
		&ndn.InterestConfig{
			Lifetime:            optional.Some(300 * time.Millisecond),
			Nonce:               optional.Some[uint32](0xdeadbeef),
			MustBeFresh:         true,
			MinSuffixComponents: optional.Some[uint64](1),
			MaxSuffixComponents: optional.Some[uint64](2),
			ChildSelector:       optional.Some(ndn.LeftmostChild),
			Exclude:             exclude,
			PublisherKeyLocator: publisher,
		},
	)
	require.NoError(t, err)

	interest, err := spec.ReadInterest(enc.NewView(made.Wire.Join()))
	require.NoError(t, err)
	require.Equal(t, "/data/seg=2", interest.Name().String())
	require.Equal(t, 300*time.Millisecond, interest.Lifetime().Unwrap())
	require.Equal(t, uint32(0xdeadbeef), interest.Nonce().Unwrap())
	require.True(t, interest.MustBeFresh())
	require.Equal(t, uint64(1), interest.MinSuffixComponents().Unwrap())
	require.Equal(t, uint64(2), interest.MaxSuffixComponents().Unwrap())
	require.Equal(t, ndn.LeftmostChild, interest.ChildSelector().Unwrap())
	require.Equal(t, 1, interest.Exclude().Size())
	require.True(t, interest.Exclude().IsExcluded(enc.NewDigestComponent(make([]byte, 32))))
	require.True(t, interest.PublisherKeyLocator().Equal(publisher))
}

func TestReadErrors(t *testing.T) {
	tu.SetT(t)

	_, _, err := spec.ReadData(enc.NewView([]byte("\x05\x03\x07\x01\x08")))
	require.Error(t, err)

	_, _, err = spec.ReadData(enc.NewView([]byte(
		"\x06\x6b\x07\x14\x08\x05local")))
	require.Error(t, err)

	_, err = spec.ReadInterest(enc.NewView([]byte("\x06\x02\x07\x00")))
	require.Error(t, err)

	_, err = spec.ReadInterest(enc.NewView([]byte("\x05\xff")))
	require.Error(t, err)
}
