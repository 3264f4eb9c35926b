package grammar

import "testing"

// expandAll walks a rule's ring recursively, writing out the fully
// expanded terminal sequence, for asserting that Sequitur's grammar is a
// lossless rewriting of the appended input.
func expandAll(r *Rule, out *[]int) {
	for s := r.First(); !s.IsGuard(); s = s.Next() {
		if s.IsTerminal() {
			*out = append(*out, s.Terminal())
		} else {
			expandAll(s.Rule(), out)
		}
	}
}

func countDistinctLiveDigrams(e *Engine) map[[2]uint64]int {
	counts := map[[2]uint64]int{}
	var walk func(r *Rule)
	seen := map[*Rule]bool{}
	walk = func(r *Rule) {
		if seen[r] {
			return
		}
		seen[r] = true
		for s := r.First(); !s.IsGuard() && !s.Next().IsGuard(); s = s.Next() {
			key := [2]uint64{rawValue(s), rawValue(s.Next())}
			counts[key]++
			if s.IsNonTerminal() {
				walk(s.Rule())
			}
		}
		if f := r.First(); !f.IsGuard() && f.IsNonTerminal() {
			walk(f.Rule())
		}
	}
	walk(e.Start)
	return counts
}

func newTestEngine(k int) *Engine {
	idx := NewIndex(97, k)
	return NewEngine(idx, k)
}

func feed(e *Engine, s string) {
	for _, r := range s {
		e.Append(int(r))
	}
}

func asRunes(xs []int) string {
	rs := make([]rune, len(xs))
	for i, x := range xs {
		rs[i] = rune(x)
	}
	return string(rs)
}

func TestRoundTripRepeatedTrigram(t *testing.T) {
	e := newTestEngine(2)
	feed(e, "abcabcabc")

	var out []int
	expandAll(e.Start, &out)
	if got := asRunes(out); got != "abcabcabc" {
		t.Fatalf("expanded = %q, want %q", got, "abcabcabc")
	}
	if e.Start.UseCount() != 0 {
		t.Errorf("start rule use count = %d, want 0", e.Start.UseCount())
	}
}

func TestRoundTripLongRunOfOneSymbol(t *testing.T) {
	e := newTestEngine(2)
	feed(e, "aaaaaaaa")

	var out []int
	expandAll(e.Start, &out)
	if got := asRunes(out); got != "aaaaaaaa" {
		t.Fatalf("expanded = %q, want %q", got, "aaaaaaaa")
	}
}

func TestRoundTripQuadrupleRun(t *testing.T) {
	e := newTestEngine(2)
	feed(e, "xxxxabxxxxab")

	var out []int
	expandAll(e.Start, &out)
	if got := asRunes(out); got != "xxxxabxxxxab" {
		t.Fatalf("expanded = %q, want %q", got, "xxxxabxxxxab")
	}
}

func TestNoRuleUsedOnlyOnce(t *testing.T) {
	e := newTestEngine(2)
	feed(e, "the quick brown fox the quick brown fox jumped")

	var check func(r *Rule)
	seen := map[*Rule]bool{}
	check = func(r *Rule) {
		if seen[r] {
			return
		}
		seen[r] = true
		for s := r.First(); !s.IsGuard(); s = s.Next() {
			if s.IsNonTerminal() {
				if s.Rule() != e.Start && s.Rule().UseCount() < 2 {
					t.Errorf("rule %d has use count %d < K", s.Rule().ID(), s.Rule().UseCount())
				}
				check(s.Rule())
			}
		}
	}
	check(e.Start)
}

func TestDigramUniquenessAtQuiescence(t *testing.T) {
	e := newTestEngine(2)
	feed(e, "abababababcdcdcdcdcd")

	counts := countDistinctLiveDigrams(e)
	for key, n := range counts {
		if n > 1 {
			t.Errorf("digram %v appears %d times live, want at most 1 (modulo overlapping triples)", key, n)
		}
	}
}

func TestDelimiterBlocksDigramFormation(t *testing.T) {
	idx := NewIndex(97, 2)
	idx.SetDelimiter(int('|'))
	e := NewEngine(idx, 2)
	feed(e, "ab|ab|ab|ab")

	var out []int
	expandAll(e.Start, &out)
	if got := asRunes(out); got != "ab|ab|ab|ab" {
		t.Fatalf("expanded = %q, want %q", got, "ab|ab|ab|ab")
	}
	// No rule's body may contain the delimiter adjacent to another symbol
	// as a formed digram (the delimiter only ever appears in the start
	// rule, never folded into a repeated non-terminal).
	var walk func(r *Rule)
	seen := map[*Rule]bool{}
	walk = func(r *Rule) {
		if seen[r] || r == e.Start {
			seen[r] = true
			if r != e.Start {
				return
			}
		}
		for s := r.First(); !s.IsGuard(); s = s.Next() {
			if s.IsNonTerminal() {
				for b := s.Rule().First(); !b.IsGuard(); b = b.Next() {
					if b.IsTerminal() && b.Terminal() == int('|') {
						t.Errorf("rule %d's body contains the delimiter", s.Rule().ID())
					}
				}
			}
		}
	}
	walk(e.Start)
}

func TestKGreaterThanTwoRequiresMoreOccurrences(t *testing.T) {
	idx := NewIndex(97, 3)
	e := NewEngine(idx, 3)
	// Two occurrences of "xy" should not yet form a rule under K=3.
	feed(e, "xyxy")
	sawNonStart := false
	for s := e.Start.First(); !s.IsGuard(); s = s.Next() {
		if s.IsNonTerminal() {
			sawNonStart = true
		}
	}
	if sawNonStart {
		t.Errorf("K=3 formed a rule from only two occurrences")
	}

	// A third occurrence should trigger formation.
	feed(e, "xy")
	sawNonStart = false
	for s := e.Start.First(); !s.IsGuard(); s = s.Next() {
		if s.IsNonTerminal() {
			sawNonStart = true
		}
	}
	if !sawNonStart {
		t.Errorf("K=3 did not form a rule after a third occurrence")
	}

	var out []int
	expandAll(e.Start, &out)
	if got := asRunes(out); got != "xyxyxy" {
		t.Fatalf("expanded = %q, want %q", got, "xyxyxy")
	}
}
