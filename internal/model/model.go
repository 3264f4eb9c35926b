// Package model implements the Fenwick-tree cumulative-frequency
// statistical model described in spec.md §4.C: a context over a
// dynamically grown power-of-two array of frequencies, with an escape
// ("zero-frequency") slot tracking n_singletons, a most-probable-symbol
// cache, and halving to keep total frequency bounded by 2^F.
//
// No corpus example implements a Fenwick tree (see DESIGN.md); this
// package follows spec.md §4.C directly, using the teacher's
// sentinel-error and doc-comment conventions.
package model

import (
	"errors"

	"github.com/craignm/sequitur/internal/arith"
)

// ErrTooManySymbols is returned by Install when installing one more symbol
// would push the probability budget past what F bits of frequency range can
// represent.
var ErrTooManySymbols = errors.New("model: too many symbols for this context's frequency budget")

// MinIncr is the floor below which the per-symbol increment never shrinks
// during halving.
const MinIncr = 1

// Type distinguishes a context that may grow (Dynamic) from one that is
// fixed at creation (Static).
type Type int

const (
	Dynamic Type = iota
	Static
)

// EscapeSlot is the reserved slot index for the zero-frequency symbol.
// Slot 0 is unused; user symbols occupy slots >= 2.
const EscapeSlot = 1

func back(i int) int { return i & (i - 1) }
func forw(i int) int { return i + (i & -i) }

func nextPow2(n int) int {
	p := 1
	for p < n {
		p *= 2
	}
	return p
}

// Context is a Fenwick-tree cumulative-frequency model over an alphabet of
// integer symbol slots, with escape-symbol handling for unseen symbols.
type Context struct {
	f    uint
	typ  Type

	tree      []uint64
	maxLength int // current tree capacity, a power of two
	length    int // one past the highest installed symbol index

	total       uint64
	nSymbols    int
	nSingletons uint64
	incr        uint64

	mpsValid  bool
	mpsSymbol int
	mpsCount  uint64
	mpsLow    uint64

	mpsAtEnd bool
}

// NewContext creates a context whose tree is sized for at least
// capacityHint installed symbols, per spec.md §4.C's create(length, type):
// round length+2 up to a power of two, seed the escape symbol to incr for
// dynamic contexts or 0 for static ones.
func NewContext(capacityHint int, f uint, typ Type) *Context {
	c := &Context{
		f:         f,
		typ:       typ,
		maxLength: nextPow2(capacityHint + 2),
		incr:      uint64(1) << f,
		length:    2,
	}
	c.tree = make([]uint64, c.maxLength)
	if typ == Dynamic {
		c.update(EscapeSlot, int64(c.incr))
		// The escape counts as a singleton, so its width never reaches zero.
		c.nSingletons = c.incr
	}
	return c
}

func (c *Context) update(i int, delta int64) {
	for j := i; j < c.maxLength; j = forw(j) {
		c.tree[j] = uint64(int64(c.tree[j]) + delta)
	}
	c.total = uint64(int64(c.total) + delta)
	if c.mpsValid {
		if i < c.mpsSymbol {
			c.mpsLow = uint64(int64(c.mpsLow) + delta)
		} else if i == c.mpsSymbol {
			c.mpsCount = uint64(int64(c.mpsCount) + delta)
		}
	}
}

// rawInterval walks the Fenwick tree to compute [low, high) for slot i,
// summing only the branches disjoint between i and i-1 and sharing the
// common-ancestor tail between both sums, per spec.md §4.C's get_interval.
func (c *Context) rawInterval(i int) (low, high uint64) {
	j, k := i, i-1
	for j != k {
		if j > k {
			high += c.tree[j]
			j = back(j)
		} else {
			low += c.tree[k]
			k = back(k)
		}
	}
	for j != 0 {
		v := c.tree[j]
		low += v
		high += v
		j = back(j)
	}
	return low, high
}

// getInterval is rawInterval with the most-probable-symbol shortcut: if i is
// the cached MPS, its interval is returned without a tree walk.
func (c *Context) getInterval(i int) (low, high uint64) {
	if c.mpsValid && i == c.mpsSymbol {
		return c.mpsLow, c.mpsLow + c.mpsCount
	}
	return c.rawInterval(i)
}

// GetInterval exposes get_interval, for tests.
func (c *Context) GetInterval(i int) (low, high uint64) { return c.getInterval(i) }

// SetMPSAtEnd enables or disables the MOST_PROB_AT_END remap: once on, the
// cached MPS symbol's interval is rotated to occupy [total-count, total)
// rather than its natural tree position, and every other symbol's interval
// shifts to close the gap this leaves behind. Per spec.md §4.C, an encoder
// and its matching decoder must agree on this setting.
func (c *Context) SetMPSAtEnd(on bool) { c.mpsAtEnd = on }

// remapOutgoing rewrites a real (low, high) interval into MOST_PROB_AT_END
// coder space: the MPS block moves to the top of total, and the block that
// used to sit above it (from mpsLow+mpsCount to total) slides down by
// mpsCount to fill the gap. Anything below mpsLow is untouched.
func (c *Context) remapOutgoing(low, high uint64) (uint64, uint64) {
	if !c.mpsAtEnd || !c.mpsValid {
		return low, high
	}
	m, cnt := c.mpsLow, c.mpsCount
	if low == m && high == m+cnt {
		return c.total - cnt, c.total
	}
	if low >= m+cnt {
		return low - cnt, high - cnt
	}
	return low, high
}

// unmapTarget reverses remapOutgoing on a coder-space position, recovering
// the real tree position findSymbol expects.
func (c *Context) unmapTarget(r uint64) uint64 {
	if !c.mpsAtEnd || !c.mpsValid {
		return r
	}
	m, cnt := c.mpsLow, c.mpsCount
	if r >= c.total-cnt {
		return m + (r - (c.total - cnt))
	}
	if r >= m {
		return r + cnt
	}
	return r
}

// Total returns the context's current total frequency, including escape.
func (c *Context) Total() uint64 { return c.total }

func (c *Context) refreshMPS(symbol int) {
	low, high := c.rawInterval(symbol)
	count := high - low
	if !c.mpsValid || count > c.mpsCount || symbol == c.mpsSymbol {
		c.mpsValid = true
		c.mpsSymbol = symbol
		c.mpsCount = count
		c.mpsLow = low
	}
}

func (c *Context) adjustZeroFreq() {
	if c.typ != Dynamic {
		return
	}
	elow, ehigh := c.rawInterval(EscapeSlot)
	cur := ehigh - elow
	diff := int64(c.nSingletons) - int64(cur)
	if diff != 0 {
		c.update(EscapeSlot, diff)
	}
}

func (c *Context) grow() {
	old := c.maxLength
	t := make([]uint64, old*2)
	copy(t, c.tree)
	t[old] = c.total
	c.tree = t
	c.maxLength = old * 2
}

func (c *Context) maybeHalve() {
	for c.total > (uint64(1) << c.f) {
		c.halve()
	}
}

// halve implements spec.md §4.C's halving: every slot's count is halved
// (rounded up so a live singleton never drops to zero), incr shrinks toward
// MinIncr, n_singletons is recomputed, and the MPS cache is refreshed.
func (c *Context) halve() {
	counts := make([]uint64, c.maxLength)
	for i := 1; i < c.maxLength; i++ {
		lo, hi := c.rawInterval(i)
		counts[i] = hi - lo
	}
	for i := range c.tree {
		c.tree[i] = 0
	}
	c.total = 0

	newIncr := c.incr + MinIncr
	if newIncr/2 > MinIncr {
		newIncr = newIncr / 2
	} else {
		newIncr = MinIncr
	}
	c.incr = newIncr

	var singletons uint64
	for i := 1; i < c.maxLength; i++ {
		h := (counts[i] + 1) / 2
		if h == 0 {
			continue
		}
		c.update(i, int64(h))
		if i != EscapeSlot && h == c.incr {
			singletons++
		}
	}
	if c.typ == Dynamic {
		singletons++ // the escape itself
	}
	c.nSingletons = singletons * c.incr
	c.adjustZeroFreq()
	if c.mpsValid {
		c.refreshMPS(c.mpsSymbol)
	}
}

// Install adds symbol to the context's alphabet with an initial count of
// incr, per spec.md §4.C's installation cap and growth rules.
func (c *Context) Install(symbol int) error {
	if 2*(c.nSymbols+1) >= (1 << c.f) {
		return ErrTooManySymbols
	}
	for symbol >= c.maxLength {
		c.grow()
	}
	if symbol+1 > c.length {
		c.length = symbol + 1
	}
	c.update(symbol, int64(c.incr))
	c.nSymbols++
	if c.typ == Dynamic {
		c.nSingletons += c.incr
	}
	c.adjustZeroFreq()
	c.maybeHalve()
	c.refreshMPS(symbol)
	return nil
}

// Delete zeroes symbol's count, retracting it from the context; used when a
// non-terminal's rule is forgotten and its code can never recur.
func (c *Context) Delete(symbol int) {
	lo, hi := c.rawInterval(symbol)
	width := hi - lo
	if width == 0 {
		return
	}
	wasSingleton := width == c.incr
	c.update(symbol, -int64(width))
	c.nSymbols--
	if wasSingleton && c.typ == Dynamic {
		c.nSingletons -= c.incr
	}
	c.adjustZeroFreq()
	if c.mpsValid && c.mpsSymbol == symbol {
		c.mpsValid = false
	}
}

// bump applies the increment discipline after a successful encode/decode of
// a known, non-escape symbol.
func (c *Context) bump(symbol int) {
	lo, hi := c.rawInterval(symbol)
	width := hi - lo
	c.update(symbol, int64(c.incr))
	if width == c.incr && c.typ == Dynamic {
		c.nSingletons -= c.incr
	}
	c.adjustZeroFreq()
	c.maybeHalve()
	c.refreshMPS(symbol)
}

// Encode commits symbol to enc. It returns notKnown=true if symbol has zero
// width (not yet installed): the escape symbol is encoded instead, and the
// caller must separately transmit the raw value out-of-band.
func (c *Context) Encode(enc *arith.Encoder, symbol int) (notKnown bool, err error) {
	low, high := c.getInterval(symbol)
	if high == low {
		elow, ehigh := c.getInterval(EscapeSlot)
		elow, ehigh = c.remapOutgoing(elow, ehigh)
		if err := enc.Encode(elow, ehigh, c.total); err != nil {
			return false, err
		}
		return true, nil
	}
	rlow, rhigh := c.remapOutgoing(low, high)
	if err := enc.Encode(rlow, rhigh, c.total); err != nil {
		return false, err
	}
	if symbol != EscapeSlot {
		c.bump(symbol)
	}
	return false, nil
}

// findSymbol performs the Fenwick descent from maxLength/2 down to 1,
// accumulating the greatest prefix sum <= target, per spec.md §4.C's decode.
func (c *Context) findSymbol(target uint64) int {
	pos := 0
	var cum uint64
	for bit := c.maxLength / 2; bit != 0; bit /= 2 {
		next := pos + bit
		if next < c.maxLength && cum+c.tree[next] <= target {
			pos = next
			cum += c.tree[next]
		}
	}
	return pos + 1
}

// Decode reads the next symbol from dec. notKnown=true signals the escape
// symbol was decoded: the caller must separately read the raw value
// out-of-band.
func (c *Context) Decode(dec *arith.Decoder) (symbol int, notKnown bool, err error) {
	target := dec.DecodeTarget(c.total)
	sym := c.findSymbol(c.unmapTarget(target))
	low, high := c.getInterval(sym)
	rlow, rhigh := c.remapOutgoing(low, high)
	if err := dec.Decode(rlow, rhigh, c.total); err != nil {
		return 0, false, err
	}
	if sym == EscapeSlot {
		return 0, true, nil
	}
	c.bump(sym)
	return sym, false, nil
}

// Purge resets the context's statistics to those of a freshly created
// context without discarding the Context value itself. The tree keeps its
// current capacity; a context that has grown is not shrunk back to the
// size it was created with.
func (c *Context) Purge() {
	hint := c.maxLength - 2
	if hint < 0 {
		hint = 0
	}
	*c = *NewContext(hint, c.f, c.typ)
}

// BinaryContext is the two-count analogue of Context for single-bit
// alphabets, per spec.md §4.C's "Binary context".
type BinaryContext struct {
	f        uint
	c0, c1   uint64
	incr     uint64
}

// NewBinaryContext returns a binary context with a uniform 1/1 prior.
func NewBinaryContext(f uint) *BinaryContext {
	return &BinaryContext{f: f, c0: 1, c1: 1, incr: 1}
}

func (b *BinaryContext) update(bit int) {
	if bit == 0 {
		b.c0 += b.incr
	} else {
		b.c1 += b.incr
	}
	if b.c0+b.c1 > (uint64(1) << b.f) {
		b.c0 = (b.c0 + 1) / 2
		b.c1 = (b.c1 + 1) / 2
		newIncr := b.incr + MinIncr
		if newIncr/2 > MinIncr {
			b.incr = newIncr / 2
		} else {
			b.incr = MinIncr
		}
	}
}

// Encode commits bit to enc and updates the counts.
func (b *BinaryContext) Encode(enc *arith.Encoder, bit int) error {
	if err := enc.BinaryEncode(b.c0, b.c1, bit); err != nil {
		return err
	}
	b.update(bit)
	return nil
}

// Decode reads one bit from dec and updates the counts.
func (b *BinaryContext) Decode(dec *arith.Decoder) (int, error) {
	bit, err := dec.BinaryDecode(b.c0, b.c1)
	if err != nil {
		return 0, err
	}
	b.update(bit)
	return bit, nil
}
