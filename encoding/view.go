package encoding

import "io"

// View is a positional reader over a contiguous buffer. Packets
// delivered by a face always arrive in one piece, so a single-buffer
// view is sufficient for every parse path in this module.
type View struct {
	buf Buffer
	pos int
}

// NewView creates a View over buf.
func NewView(buf Buffer) *View {
	return &View{buf: buf}
}

// Pos returns the current read position.
func (r *View) Pos() int {
	return r.pos
}

// Length returns the total length of the underlying buffer.
func (r *View) Length() int {
	return len(r.buf)
}

// EOF reports whether the view is exhausted.
func (r *View) EOF() bool {
	return r.pos >= len(r.buf)
}

// ReadByte reads a single byte.
func (r *View) ReadByte() (byte, error) {
	if r.pos >= len(r.buf) {
		return 0, io.EOF
	}
	b := r.buf[r.pos]
	r.pos++
	return b, nil
}

// ReadBuf returns the next l bytes in place, without copy.
func (r *View) ReadBuf(l int) (Buffer, error) {
	if r.pos+l > len(r.buf) {
		return nil, ErrBufferOverflow
	}
	ret := r.buf[r.pos : r.pos+l]
	r.pos += l
	return ret, nil
}

// Skip advances the position by n bytes.
func (r *View) Skip(n int) error {
	if r.pos+n > len(r.buf) {
		return ErrBufferOverflow
	}
	r.pos += n
	return nil
}

// Range returns the bytes between start and end, without copy.
func (r *View) Range(start, end int) Buffer {
	return r.buf[start:end]
}

// Delegate carves out a sub-view of length l starting at the current
// position and advances past it.
func (r *View) Delegate(l int) (*View, error) {
	if r.pos+l > len(r.buf) {
		return nil, ErrBufferOverflow
	}
	sub := &View{buf: r.buf[r.pos : r.pos+l]}
	r.pos += l
	return sub, nil
}
