// Package bitio provides byte-buffered bit-level sinks and sources.
//
// A Sink accumulates bits most-significant-bit first and emits a byte to the
// underlying writer once eight bits have arrived; Flush pads a trailing
// partial byte with zero bits. A Source is the mirror image: it reads bytes
// from the underlying reader and hands them back one bit at a time, with
// support for pushing exactly one bit back (UngetBit) and for a bounded
// "garbage" allowance once the underlying reader is exhausted, matching the
// way a range coder's decoder keeps pulling bits a few positions past the
// true end of the stream.
package bitio

import (
	"bufio"
	stderrors "errors"
	"io"

	"github.com/pkg/errors"
)

// ErrCorruptInput is returned by Source.ReadBit once more synthetic bits
// have been supplied than the configured garbage allowance permits.
var ErrCorruptInput = stderrors.New("bitio: corrupt input: garbage allowance exceeded")

// Sink is a byte-buffered bit writer.
type Sink struct {
	w      *bufio.Writer
	cur    byte
	nbits  uint
	nbytes uint64
}

// NewSink returns a Sink writing to w.
func NewSink(w io.Writer) *Sink {
	return &Sink{w: bufio.NewWriter(w)}
}

// WriteBit appends a single bit (0 or 1) to the stream.
func (s *Sink) WriteBit(bit int) error {
	s.cur = (s.cur << 1) | byte(bit&1)
	s.nbits++
	if s.nbits == 8 {
		if err := s.w.WriteByte(s.cur); err != nil {
			return errors.Wrap(err, "bitio: write byte")
		}
		s.nbytes++
		s.cur = 0
		s.nbits = 0
	}
	return nil
}

// WriteBits writes the low n bits of v, most-significant bit first.
func (s *Sink) WriteBits(v uint64, n uint) error {
	for i := int(n) - 1; i >= 0; i-- {
		if err := s.WriteBit(int((v >> uint(i)) & 1)); err != nil {
			return err
		}
	}
	return nil
}

// Flush pads any partial trailing byte with zero bits and flushes the
// underlying writer.
func (s *Sink) Flush() error {
	for s.nbits != 0 {
		if err := s.WriteBit(0); err != nil {
			return err
		}
	}
	if err := s.w.Flush(); err != nil {
		return errors.Wrap(err, "bitio: flush")
	}
	return nil
}

// BytesWritten reports the number of whole bytes emitted so far (excluding
// any bits still buffered for the next byte).
func (s *Sink) BytesWritten() uint64 { return s.nbytes }

// Source is a byte-buffered bit reader with single-bit unget and a bounded
// garbage allowance past end-of-input.
type Source struct {
	r     *bufio.Reader
	cur   byte
	nbits uint // bits remaining in cur, consumed MSB-first

	ungotten  int
	haveUngot bool

	nbytes      uint64
	exhausted   bool
	garbageBits uint64
	maxGarbage  uint64 // 0 means no garbage tolerated
}

// NewSource returns a Source reading from r. maxGarbageBits bounds how many
// synthetic bits may be produced after r is exhausted before ReadBit starts
// returning ErrCorruptInput; it is rounded up to a whole number of bytes by
// the caller's convention (the rounding itself has no effect here since this
// type counts in bits).
func NewSource(r io.Reader, maxGarbageBits uint64) *Source {
	return &Source{r: bufio.NewReader(r), maxGarbage: maxGarbageBits}
}

// ReadBit returns the next bit. Once the underlying reader is exhausted it
// returns synthetic zero bits until maxGarbageBits have been handed out, then
// ErrCorruptInput.
func (s *Source) ReadBit() (int, error) {
	if s.haveUngot {
		s.haveUngot = false
		return s.ungotten, nil
	}

	if s.nbits == 0 {
		b, err := s.r.ReadByte()
		if err != nil {
			if s.garbageBits >= s.maxGarbage {
				return 0, ErrCorruptInput
			}
			s.exhausted = true
			s.garbageBits++
			return 0, nil
		}
		s.nbytes++
		s.cur = b
		s.nbits = 8
	}

	s.nbits--
	bit := int((s.cur >> s.nbits) & 1)
	return bit, nil
}

// UngetBit pushes bit back so the next call to ReadBit returns it again. Only
// a single level of unget is supported.
func (s *Source) UngetBit(bit int) {
	s.ungotten = bit
	s.haveUngot = true
}

// BytesRead reports the number of whole bytes consumed from the underlying
// reader so far.
func (s *Source) BytesRead() uint64 { return s.nbytes }

// Exhausted reports whether the underlying reader has been drained and
// ReadBit is now supplying synthetic garbage bits.
func (s *Source) Exhausted() bool { return s.exhausted }
