// Package grammar implements online Sequitur grammar induction: symbols
// linked into guarded rule rings, a digram index used to detect repeated
// digrams, and the constraint engine that keeps digram uniqueness and rule
// utility invariant at quiescence.
//
// No corpus example implements Sequitur (see DESIGN.md); this package
// follows spec.md §§3-4.D-4.F directly, adopting the teacher's naming and
// error-handling conventions (panics on invariant violations, mirroring the
// teacher's treatment of internal inconsistency as a programming error
// rather than a recoverable one).
package grammar

// valueKind discriminates what a Symbol carries.
type valueKind int

const (
	kindTerminal valueKind = iota
	kindNonTerminal
	kindGuard
)

// Symbol is a node in a doubly-linked ring belonging to exactly one rule.
type Symbol struct {
	kind     valueKind
	terminal int
	rule     *Rule // non-terminal: referenced rule; guard: owning rule
	prev     *Symbol
	next     *Symbol
}

// NewTerminal returns a freestanding terminal symbol carrying value.
func NewTerminal(value int) *Symbol {
	return &Symbol{kind: kindTerminal, terminal: value}
}

// IsGuard reports whether s is a rule's sentinel ring boundary.
func (s *Symbol) IsGuard() bool { return s.kind == kindGuard }

// IsNonTerminal reports whether s carries a reference to a Rule.
func (s *Symbol) IsNonTerminal() bool { return s.kind == kindNonTerminal }

// IsTerminal reports whether s carries a raw input value.
func (s *Symbol) IsTerminal() bool { return s.kind == kindTerminal }

// Terminal returns s's terminal value. Only valid when IsTerminal.
func (s *Symbol) Terminal() int { return s.terminal }

// Rule returns the rule a non-terminal symbol refers to, or the rule a
// guard symbol belongs to.
func (s *Symbol) Rule() *Rule { return s.rule }

// Next and Prev walk the ring. Guard detection per spec.md §3:
// is_non_terminal(self) is false for guards, so callers test IsGuard
// directly rather than relying on ring position.
func (s *Symbol) Next() *Symbol { return s.next }
func (s *Symbol) Prev() *Symbol { return s.prev }

// rawValue encodes terminal-vs-non-terminal in the low bit: terminals are
// odd, non-terminals are even (keyed by the referenced rule's id rather
// than by its pointer).
func rawValue(s *Symbol) uint64 {
	if s.IsTerminal() {
		return uint64(s.terminal)*2 + 1
	}
	return uint64(s.rule.id) * 2
}

// sameValue reports whether a and b are both non-guard and carry equal
// digram keys, used by the triple-recovery patches in join.
func sameValue(a, b *Symbol) bool {
	if a == nil || b == nil || a.IsGuard() || b.IsGuard() {
		return false
	}
	return rawValue(a) == rawValue(b)
}
