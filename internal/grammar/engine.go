package grammar

// Engine drives Sequitur grammar induction: a start rule that input symbols
// are appended to, a digram index shared by every rule in the grammar, and
// the minimum digram-occurrence threshold K.
type Engine struct {
	idx        *Index
	k          int
	nextRuleID int
	Start      *Rule
}

// NewEngine returns an engine with a fresh, empty start rule.
func NewEngine(idx *Index, k int) *Engine {
	e := &Engine{idx: idx, k: k}
	e.Start = e.newRule()
	return e
}

func (e *Engine) newRule() *Rule {
	e.nextRuleID++
	return newRuleWithID(e.nextRuleID)
}

// join links a.next = b and b.prev = a, removing the digram (a, a.next)
// from the index first (per spec.md §4.D), then running the two
// triple-recovery patches that preserve the rule that exactly one digram
// of an overlapping equal-symbol run (x x x) is ever indexed: whichever of
// the two old neighbors is revealed to be the center of such a run has its
// now-only-remaining digram reinserted.
func (e *Engine) join(a, b *Symbol) {
	oldRight := a.next
	oldLeft := b.prev

	if oldRight != nil && !a.IsGuard() && !oldRight.IsGuard() {
		e.idx.Remove(a)
	}

	a.next = b
	b.prev = a

	if oldRight != nil && oldRight != b && !oldRight.IsGuard() &&
		sameValue(oldRight.prev, oldRight) && sameValue(oldRight, oldRight.next) {
		if base, crosses := e.idx.FindGroup(oldRight); !crosses {
			e.idx.Store(base, oldRight)
		}
	}
	if oldLeft != nil && oldLeft != a && !oldLeft.IsGuard() &&
		sameValue(oldLeft.prev, oldLeft) && sameValue(oldLeft, oldLeft.next) {
		if base, crosses := e.idx.FindGroup(oldLeft.prev); !crosses {
			e.idx.Store(base, oldLeft.prev)
		}
	}
}

// insertAfter splices y into the ring immediately after x, via two joins.
func (e *Engine) insertAfter(x, y *Symbol) {
	e.join(y, x.next)
	e.join(x, y)
}

// destroySymbol splices s out of its ring, removes its own digram from the
// index, and decrements the referenced rule's use count if s is a
// non-terminal, per spec.md §4.D.
func (e *Engine) destroySymbol(s *Symbol) {
	if !s.IsGuard() && s.next != nil && !s.next.IsGuard() {
		e.idx.Remove(s)
	}
	e.join(s.prev, s.next)
	if s.IsNonTerminal() {
		s.rule.useCount--
	}
	s.prev, s.next = nil, nil
}

// cloneSymbol returns a fresh symbol with the same value as s, bumping the
// referenced rule's use count for a non-terminal clone.
func (e *Engine) cloneSymbol(s *Symbol) *Symbol {
	if s.IsNonTerminal() {
		s.rule.useCount++
		return &Symbol{kind: kindNonTerminal, rule: s.rule}
	}
	return &Symbol{kind: kindTerminal, terminal: s.terminal}
}

// appendSymbol appends sym to the tail of r's body.
func (e *Engine) appendSymbol(r *Rule, sym *Symbol) {
	e.insertAfter(r.Last(), sym)
}

// Forget detaches and returns the start rule's first real symbol, without
// re-running check on its old neighbors (removing the head of the start
// rule never creates a new digram there). Returns nil if the start rule is
// empty. Used by the compression driver's eviction discipline.
func (e *Engine) Forget() *Symbol {
	s := e.Start.First()
	if s.IsGuard() {
		return nil
	}
	e.destroySymbol(s)
	return s
}

// Len reports the number of real symbols currently in the start rule,
// which the driver uses to decide when to forget.
func (e *Engine) Len() int {
	n := 0
	for s := e.Start.First(); !s.IsGuard(); s = s.Next() {
		n++
	}
	return n
}

// Append adds a terminal to the end of the start rule's body and runs the
// constraint engine on the newly formed digram, per spec.md §4.F's public
// entry point.
func (e *Engine) Append(value int) {
	e.AppendSymbol(NewTerminal(value))
}

// AppendSymbol appends an arbitrary symbol (terminal or a fresh
// non-terminal) to the start rule and checks the digram it completes.
func (e *Engine) AppendSymbol(sym *Symbol) {
	last := e.Start.Last()
	e.appendSymbol(e.Start, sym)
	e.checkOne(last)
}

// substituteDigram replaces the digram (self, self.next) with a fresh
// non-terminal referencing r, per spec.md §4.D's substitute: it remembers
// q = self.prev, destroys both digram members, inserts the non-terminal
// after q, and re-runs check on q (the new digram (q, nt)) and, if that
// produced no structural change, on the new symbol (the new digram
// (nt, nt.next)), since the insertion creates at most those two digrams.
func (e *Engine) substituteDigram(self *Symbol, r *Rule) *Symbol {
	q := self.prev
	b := self.next
	e.destroySymbol(self)
	e.destroySymbol(b)

	r.useCount++
	nt := &Symbol{kind: kindNonTerminal, rule: r}
	e.insertAfter(q, nt)

	if !e.checkOne(q) {
		e.checkOne(nt)
	}
	return nt
}

// expand splices a used-once rule's body into self's position, per
// spec.md §4.D: self's own digram is removed from the index, self is
// destroyed without decrementing its (already doomed) rule's use count, and
// the two new boundary digrams are checked.
func (e *Engine) expand(self *Symbol) {
	r := self.rule
	first := r.First()
	last := r.Last()
	q := self.prev
	n := self.next

	if !n.IsGuard() {
		e.idx.Remove(self)
	}
	e.join(q, first)
	e.join(last, n)
	self.prev, self.next, self.rule = nil, nil, nil

	e.checkOne(q)
	if last != q {
		e.checkOne(last)
	}
}

// maybeExpand expands sym in place if it is a non-terminal whose
// referenced rule has dropped to a single use, enforcing the rule-utility
// invariant (no rule used only once).
func (e *Engine) maybeExpand(sym *Symbol) {
	if sym != nil && sym.IsNonTerminal() && sym.rule.useCount == 1 {
		e.expand(sym)
	}
}

// checkOne implements spec.md §4.F's check(s) pseudocode: look up the
// digram (s, s.next) in the index; store it if the group has room; refuse
// to substitute an overlapping occurrence; otherwise form (or reuse) a
// rule covering every live, non-overlapping stored occurrence plus s.
// Returns whether a structural change (a substitution) occurred.
func (e *Engine) checkOne(s *Symbol) bool {
	if s == nil || s.IsGuard() || s.next == nil || s.next.IsGuard() {
		return false
	}
	base, crosses := e.idx.FindGroup(s)
	if crosses {
		return false
	}
	one, two := rawValue(s), rawValue(s.next)

	freeOff := -1
	var stored []*Symbol
	for off := 0; off < e.idx.groupWidth; off++ {
		v := e.idx.slots[base+off]
		if v == s {
			return false // already indexed; never store s twice
		}
		if v == nil || v == tombstone {
			if freeOff < 0 {
				freeOff = off
			}
			continue
		}
		if rawValue(v) == one && rawValue(v.next) == two {
			stored = append(stored, v)
		}
	}

	if freeOff >= 0 {
		e.idx.slots[base+freeOff] = s
		return false
	}

	for _, o := range stored {
		if o == s || o.next == s || o == s.next {
			return false
		}
	}

	if e.k == 2 && len(stored) == 1 {
		o := stored[0]
		if o.prev.IsGuard() && o.next.next.IsGuard() {
			r := o.prev.rule
			e.substituteDigram(s, r)
			e.maybeExpand(r.First())
			return true
		}
	}

	r := e.newRule()
	c1 := e.cloneSymbol(s)
	c2 := e.cloneSymbol(s.next)
	e.appendSymbol(r, c1)
	e.appendSymbol(r, c2)

	for _, o := range stored {
		if rawValue(o) != one || rawValue(o.next) != two {
			continue // already consumed earlier in this same pass
		}
		e.substituteDigram(o, r)
	}
	if base2, crosses2 := e.idx.FindGroup(r.First()); !crosses2 {
		e.idx.Store(base2, r.First())
	}
	e.substituteDigram(s, r)
	e.maybeExpand(r.First())
	return true
}
