package grammar

// Rule owns one guard symbol and, through it, the entire ring of its body.
type Rule struct {
	id       int
	guard    *Symbol
	useCount int
	usage    uint64
	index    int
}

// newRuleWithID allocates a fresh rule: a guard symbol linked to itself, use
// count, usage, and index all zero, per spec.md §4.D's construction.
func newRuleWithID(id int) *Rule {
	r := &Rule{id: id}
	g := &Symbol{kind: kindGuard, rule: r}
	g.prev = g
	g.next = g
	r.guard = g
	return r
}

// ID returns the rule's identifier, assigned once by the engine and never
// reused; rawValue keys non-terminals referencing this rule by it in the
// digram index. Coded non-terminals use Index, not ID.
func (r *Rule) ID() int { return r.id }

// Guard returns the rule's sentinel ring symbol.
func (r *Rule) Guard() *Symbol { return r.guard }

// First returns the rule's first real symbol, or its guard if empty.
func (r *Rule) First() *Symbol { return r.guard.next }

// Last returns the rule's last real symbol, or its guard if empty.
func (r *Rule) Last() *Symbol { return r.guard.prev }

// IsEmpty reports whether the rule's ring holds no real symbols.
func (r *Rule) IsEmpty() bool { return r.guard.next == r.guard }

// UseCount returns the number of live non-terminal symbols referencing r.
func (r *Rule) UseCount() int { return r.useCount }

// Usage returns the rule's occurrence count in the fully expanded input,
// populated only at finalization.
func (r *Rule) Usage() uint64 { return r.usage }

// SetUsage records the rule's expanded-input occurrence count.
func (r *Rule) SetUsage(n uint64) { r.usage = n }

// Index returns the rule's assigned non-terminal code, or 0 if its body has
// not yet been emitted to the coder.
func (r *Rule) Index() int { return r.index }

// SetIndex assigns the rule's non-terminal code at first emission.
func (r *Rule) SetIndex(i int) { r.index = i }

// Symbols returns the rule's body as a slice, for printing and testing.
func (r *Rule) Symbols() []*Symbol {
	var out []*Symbol
	for s := r.First(); !s.IsGuard(); s = s.Next() {
		out = append(out, s)
	}
	return out
}
