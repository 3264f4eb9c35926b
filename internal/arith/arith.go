// Package arith implements the revised low-precision range coder described
// in spec.md §4.B: a renormalizing arithmetic coder operating over a
// configurable B-bit code range and F-bit frequency range, with carry
// propagation deferred through a "bits outstanding" counter rather than the
// simpler (and slower to converge) two-state underflow loop.
//
// The encoder/decoder state shape (low, range computed as the width of the
// live interval, and the outstanding-bits counter) is modeled directly on
// the teacher's ac/witten/ac.go arithmeticEncoder, generalized from a binary
// split to an arbitrary (low, high, total) interval and from a fixed 32-bit
// code range to configurable B and F.
package arith

import (
	"errors"

	"github.com/craignm/sequitur/internal/bitio"
)

// ErrOutputSaturated is returned when the number of deferred outstanding
// bits exceeds the implementation bound; reachable only on pathological
// streams.
var ErrOutputSaturated = errors.New("arith: bits-outstanding bound exceeded")

// ErrCorruptInput is returned by NewDecoder when the initial code value is
// not a valid offset into the starting half-range.
var ErrCorruptInput = errors.New("arith: corrupt input")

// maxOutstanding bounds the number of bits that may be deferred before
// OutputSaturated is raised. 2^31 per spec.md §4.B's suggested bound.
const maxOutstanding = 1 << 31

// Config holds the coder's bit-width parameters. Both encoder and decoder
// must be constructed with identical Config values.
type Config struct {
	B uint // code-range bits
	F uint // frequency-range bits; must satisfy F <= B-2
	// Frugal enables frugal-bits mode: the encoder suppresses the
	// redundant leading zero bit and the decoder reads only B-1 bits at
	// start. A Decoder decodes a single sequence; bits it has read beyond
	// the last symbol are not carried into a following sequence.
	Frugal bool
}

func (c Config) half() uint64    { return uint64(1) << (c.B - 1) }
func (c Config) quarter() uint64 { return uint64(1) << (c.B - 2) }

// Encoder is a general multi-symbol range encoder.
type Encoder struct {
	cfg           Config
	sink          *bitio.Sink
	low           uint64
	rng           uint64
	outstanding   uint64
	wroteFirstBit bool
}

// NewEncoder returns an Encoder writing to sink under cfg.
func NewEncoder(sink *bitio.Sink, cfg Config) *Encoder {
	e := &Encoder{cfg: cfg, sink: sink, low: 0, rng: cfg.half()}
	return e
}

// Encode commits the interval [low, high) out of total to the stream.
// Requires low < high <= total.
func (e *Encoder) Encode(low, high, total uint64) error {
	r := e.rng / total
	var newRange uint64
	if high < total {
		newRange = r * (high - low)
	} else {
		newRange = e.rng - r*low
	}
	return e.narrow(r*low, newRange)
}

func (e *Encoder) narrow(lowDelta, newRange uint64) error {
	e.low += lowDelta
	e.rng = newRange
	return e.renormalize()
}

func (e *Encoder) renormalize() error {
	half, quarter := e.cfg.half(), e.cfg.quarter()
	for e.rng <= quarter {
		switch {
		case e.low >= half:
			if err := e.emit(1); err != nil {
				return err
			}
			e.low -= half
		case e.low+e.rng <= half:
			if err := e.emit(0); err != nil {
				return err
			}
		default:
			e.outstanding++
			if e.outstanding > maxOutstanding {
				return ErrOutputSaturated
			}
			e.low -= quarter
		}
		e.low *= 2
		e.rng *= 2
	}
	return nil
}

// emit writes bit followed by e.outstanding bits of the opposite value
// (carry-resolution "bit plus follow"), honoring frugal-bits mode's
// suppression of the very first bit of the stream: out of L=0, R=Half the
// first committed bit is always 0, so frugal mode drops it and the decoder
// simply starts one bit short, treating the missing leading bit as 0.
func (e *Encoder) emit(bit int) error {
	opposite := 1 - bit
	if e.cfg.Frugal && !e.wroteFirstBit {
		e.wroteFirstBit = true
		for ; e.outstanding > 0; e.outstanding-- {
			if err := e.sink.WriteBit(opposite); err != nil {
				return err
			}
		}
		return nil
	}
	e.wroteFirstBit = true

	if err := e.sink.WriteBit(bit); err != nil {
		return err
	}
	for ; e.outstanding > 0; e.outstanding-- {
		if err := e.sink.WriteBit(opposite); err != nil {
			return err
		}
	}
	return nil
}

// BinaryEncode commits a single bit given binary context counts c0, c1
// (counts of zero and one respectively), per spec.md §4.B's binary variant.
func (e *Encoder) BinaryEncode(c0, c1 uint64, bit int) error {
	total := c0 + c1
	r := e.rng / total
	cLPS := c0
	lps := 0
	if c1 < c0 {
		cLPS = c1
		lps = 1
	}
	rLPS := r * cLPS
	if bit == lps {
		return e.narrow(e.rng-rLPS, rLPS)
	}
	return e.narrow(0, e.rng-rLPS)
}

// Finish flushes the minimal number of bits (1..B) required to disambiguate
// the final interval, per spec.md §4.B.
func (e *Encoder) Finish() error {
	for n := uint(1); n <= e.cfg.B; n++ {
		scale := uint64(1) << (e.cfg.B - n)
		p := (e.low + scale - 1) / scale
		if p*scale+scale-1 <= e.low+e.rng-1 {
			bits := make([]int, n)
			for i := uint(0); i < n; i++ {
				bits[n-1-i] = int((p >> i) & 1)
			}
			if err := e.emit(bits[0]); err != nil {
				return err
			}
			for _, b := range bits[1:] {
				if err := e.sink.WriteBit(b); err != nil {
					return err
				}
			}
			return nil
		}
	}
	return errors.New("arith: Finish: no valid termination prefix (implementation bug)")
}

// Decoder is the mirror of Encoder.
type Decoder struct {
	cfg Config
	src *bitio.Source
	rng uint64
	d   uint64
	r   uint64 // cached from the most recent DecodeTarget
}

// NewDecoder constructs a Decoder reading from src under cfg. It primes the
// initial code value by reading B bits (B-1 in frugal mode, with an
// implicit leading zero).
func NewDecoder(src *bitio.Source, cfg Config) (*Decoder, error) {
	d := &Decoder{cfg: cfg, src: src, rng: cfg.half()}
	nbits := cfg.B
	if cfg.Frugal {
		nbits = cfg.B - 1
	}
	var v uint64
	for i := uint(0); i < nbits; i++ {
		bit, err := src.ReadBit()
		if err != nil {
			return nil, err
		}
		v = v*2 + uint64(bit)
	}
	d.d = v
	if d.d >= cfg.half() {
		return nil, ErrCorruptInput
	}
	return d, nil
}

// DecodeTarget returns a value t such that the originally encoded symbol's
// [low, high) interval contains t, caching R/total for the paired Decode
// call.
func (d *Decoder) DecodeTarget(total uint64) uint64 {
	d.r = d.rng / total
	t := d.d / d.r
	if t > total-1 {
		t = total - 1
	}
	return t
}

// Decode commits the interval [low, high) out of total that DecodeTarget's
// caller determined contained the target, advancing the decoder state.
func (d *Decoder) Decode(low, high, total uint64) error {
	d.d -= d.r * low
	var newRange uint64
	if high < total {
		newRange = d.r * (high - low)
	} else {
		newRange = d.rng - d.r*low
	}
	d.rng = newRange
	return d.renormalize()
}

func (d *Decoder) renormalize() error {
	quarter := d.cfg.quarter()
	for d.rng <= quarter {
		bit, err := d.src.ReadBit()
		if err != nil {
			return err
		}
		d.d = d.d*2 + uint64(bit)
		d.rng *= 2
	}
	return nil
}

// BinaryDecode decodes one bit given binary context counts c0, c1.
func (d *Decoder) BinaryDecode(c0, c1 uint64) (int, error) {
	total := c0 + c1
	r := d.rng / total
	cLPS := c0
	lps := 0
	if c1 < c0 {
		cLPS = c1
		lps = 1
	}
	rLPS := r * cLPS
	var bit int
	var newRange uint64
	if d.d >= d.rng-rLPS {
		bit = lps
		d.d -= d.rng - rLPS
		newRange = rLPS
	} else {
		bit = 1 - lps
		newRange = d.rng - rLPS
	}
	d.rng = newRange
	if err := d.renormalize(); err != nil {
		return 0, err
	}
	return bit, nil
}
