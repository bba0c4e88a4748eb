// Package io provides TLV-framed stream helpers for stream faces.
package io

import (
	"bufio"
	stdio "io"

	enc "github.com/named-data/Consumer-Producer-API/encoding"
)

const maxPacketSize = 1 << 16

// ReadTlvStream reads TLV packets from a stream until error or EOF,
// calling onPacket for each complete packet. Reading stops when
// onPacket returns false. ignoreError can suppress recoverable decode
// errors; when nil any malformed packet stops the stream.
func ReadTlvStream(
	reader stdio.Reader,
	onPacket func(b []byte) bool,
	ignoreError func(err error) bool,
) error {
	r := bufio.NewReaderSize(reader, maxPacketSize)
	for {
		typ, err := readTlNum(r)
		if err != nil {
			if err == stdio.EOF {
				return nil
			}
			return err
		}
		length, err := readTlNum(r)
		if err != nil {
			return err
		}
		if length > maxPacketSize {
			if ignoreError != nil && ignoreError(enc.ErrBufferOverflow) {
				continue
			}
			return enc.ErrBufferOverflow
		}

		tl := make(enc.Buffer, typ.EncodingLength()+length.EncodingLength()+int(length))
		p := typ.EncodeInto(tl)
		p += length.EncodeInto(tl[p:])
		if _, err := stdio.ReadFull(r, tl[p:]); err != nil {
			return err
		}
		if !onPacket(tl) {
			return nil
		}
	}
}

func readTlNum(r *bufio.Reader) (enc.TLNum, error) {
	first, err := r.ReadByte()
	if err != nil {
		return 0, err
	}
	l := 0
	switch {
	case first <= 0xfc:
		return enc.TLNum(first), nil
	case first == 0xfd:
		l = 2
	case first == 0xfe:
		l = 4
	default:
		l = 8
	}
	val := enc.TLNum(0)
	for i := 0; i < l; i++ {
		b, err := r.ReadByte()
		if err != nil {
			if err == stdio.EOF {
				err = stdio.ErrUnexpectedEOF
			}
			return 0, err
		}
		val = val<<8 | enc.TLNum(b)
	}
	return val, nil
}
