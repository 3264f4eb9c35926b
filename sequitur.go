// Package sequitur provides a streaming grammar-based compressor: input
// symbols are folded into a Sequitur grammar as they arrive, and the
// grammar is driven through an adaptive arithmetic coder to produce the
// compressed stream. See internal/grammar, internal/model and
// internal/codec for the three layers this package wires together.
package sequitur

import (
	"bufio"
	"fmt"
	"io"
	"strconv"

	"github.com/craignm/sequitur/internal/codec"
	"github.com/craignm/sequitur/internal/grammar"
	"github.com/pkg/errors"
)

// maxGarbageBits bounds how many trailing zero bits a decompressor will
// silently tolerate past the logical end of a stream, per internal/bitio.
const maxGarbageBits = 64

// Options holds every coder and grammar parameter that both a compress and
// a matching decompress call must agree on. Only AllAtOnce, MinTerminal,
// MaxTerminal and MaxRuleLen are carried in the compressed stream itself
// (see internal/codec.Config), and a decompress call takes those four from
// the stream; every other field must be given the same value as in the
// compress call that produced its input.
type Options struct {
	// K is the minimum number of digram occurrences before a rule forms.
	K int
	// Delimiter, if non-nil, is a terminal value that may never appear
	// inside a digram (it always breaks rule formation across itself).
	Delimiter *int
	// MaxSymbols bounds the live start-rule length; once exceeded, the
	// compressor forgets symbols off the head until back under budget.
	// Zero means unbounded (forget only at end of input).
	MaxSymbols int
	// HashMemory bounds the digram index's table size, in bytes.
	HashMemory uint64
	// B and F are the arithmetic coder's code-range and frequency-range
	// bit widths.
	B, F uint
	// Frugal enables the coder's frugal-bits renormalization mode.
	Frugal bool
	// MPSAtEnd enables most-probable-symbol-at-end-of-range placement.
	MPSAtEnd bool
	// MinTerminal and MaxTerminal bound the terminal alphabet (inclusive).
	MinTerminal, MaxTerminal int
	// MaxRuleLen sizes the rule-length model and is written to the stream
	// prologue, which carries values up to 9999. Rule bodies are not capped
	// at this length.
	MaxRuleLen int
	// AllAtOnce switches the model contexts from adaptive (Dynamic) to a
	// single fixed-pass (Static) discipline, appropriate when the whole
	// input is available up front. Requires MinTerminal/MaxTerminal to
	// already describe the full terminal alphabet: the symbol context
	// pre-installs every terminal in that range instead of learning them
	// lazily through the escape path, since a Static context carries no
	// escape-slot probability mass to fall back on.
	AllAtOnce bool
}

// DefaultOptions returns the parameters the CLI uses absent any flags.
func DefaultOptions() Options {
	return Options{
		K:           2,
		HashMemory:  1 << 20,
		B:           32,
		F:           16,
		MinTerminal: 0,
		MaxTerminal: 255,
		MaxRuleLen:  9999,
	}
}

func (o Options) codecConfig() codec.Config {
	cfg := codec.Config{
		B: o.B, F: o.F, K: o.K,
		Frugal: o.Frugal, MPSAtEnd: o.MPSAtEnd,
		HashMemory:  o.HashMemory,
		MinTerminal: o.MinTerminal, MaxTerminal: o.MaxTerminal,
		MaxRuleLen: o.MaxRuleLen,
		AllAtOnce:  o.AllAtOnce,
		MaxSymbols: o.MaxSymbols,
	}
	if o.Delimiter != nil {
		cfg.HasDelimiter = true
		cfg.Delimiter = *o.Delimiter
	}
	return cfg
}

// Compress reads r one byte at a time, feeds it through Sequitur grammar
// induction, and writes the arithmetic-coded stream to w.
func Compress(w io.Writer, r io.Reader, opts Options) error {
	br := bufio.NewReader(r)
	return compressSymbols(w, func() (int, error) {
		b, err := br.ReadByte()
		return int(b), err
	}, opts)
}

// CompressNumeric reads r as whitespace-separated decimal symbol values
// instead of raw bytes, for alphabets wider than a byte.
func CompressNumeric(w io.Writer, r io.Reader, opts Options) error {
	sc := bufio.NewScanner(r)
	sc.Split(bufio.ScanWords)
	return compressSymbols(w, func() (int, error) {
		if !sc.Scan() {
			if err := sc.Err(); err != nil {
				return 0, err
			}
			return 0, io.EOF
		}
		return strconv.Atoi(sc.Text())
	}, opts)
}

// compressSymbols drives a codec.Compressor from next, which must return
// io.EOF (with a zero value) once the symbol stream is exhausted.
func compressSymbols(w io.Writer, next func() (int, error), opts Options) error {
	c, err := codec.NewCompressor(w, opts.codecConfig())
	if err != nil {
		return errors.Wrap(err, "sequitur: new compressor")
	}
	for {
		v, err := next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return errors.Wrap(err, "sequitur: read input")
		}
		if err := c.Feed(v); err != nil {
			return errors.Wrap(err, "sequitur: feed symbol")
		}
	}
	return errors.Wrap(c.Close(), "sequitur: close compressor")
}

// Decompress reads a stream produced by Compress with the same Options and
// writes the reconstructed bytes to w.
func Decompress(w io.Writer, r io.Reader, opts Options) error {
	bw := bufio.NewWriter(w)
	err := decompressSymbols(r, opts, func(v int) error {
		return bw.WriteByte(byte(v))
	})
	if err != nil {
		return err
	}
	return errors.Wrap(bw.Flush(), "sequitur: flush output")
}

// DecompressNumeric is the mirror of CompressNumeric: it writes one decimal
// symbol value per line instead of raw bytes.
func DecompressNumeric(w io.Writer, r io.Reader, opts Options) error {
	bw := bufio.NewWriter(w)
	err := decompressSymbols(r, opts, func(v int) error {
		_, err := fmt.Fprintln(bw, v)
		return err
	})
	if err != nil {
		return err
	}
	return errors.Wrap(bw.Flush(), "sequitur: flush output")
}

// decompressSymbols drives a codec.Decompressor, passing every recovered
// symbol to emit in order.
func decompressSymbols(r io.Reader, opts Options, emit func(int) error) error {
	d, err := codec.NewDecompressor(r, opts.codecConfig(), maxGarbageBits)
	if err != nil {
		return errors.Wrap(err, "sequitur: new decompressor")
	}
	if err := d.Run(emit); err != nil {
		return errors.Wrap(err, "sequitur: run decompressor")
	}
	return nil
}

// Grammar is the Sequitur grammar induced from a byte stream, independent
// of any arithmetic coding, for printing or reproducing instead of
// compressing.
type Grammar struct {
	engine *grammar.Engine
}

// Induce reads every byte of r and folds it into a fresh grammar.
func Induce(r io.Reader, opts Options) (*Grammar, error) {
	br := bufio.NewReader(r)
	return induceSymbols(func() (int, error) {
		b, err := br.ReadByte()
		return int(b), err
	}, opts)
}

// InduceNumeric is the induce-only mirror of CompressNumeric: it reads
// whitespace-separated decimal symbol values instead of raw bytes.
func InduceNumeric(r io.Reader, opts Options) (*Grammar, error) {
	sc := bufio.NewScanner(r)
	sc.Split(bufio.ScanWords)
	return induceSymbols(func() (int, error) {
		if !sc.Scan() {
			if err := sc.Err(); err != nil {
				return 0, err
			}
			return 0, io.EOF
		}
		return strconv.Atoi(sc.Text())
	}, opts)
}

func induceSymbols(next func() (int, error), opts Options) (*Grammar, error) {
	idx := grammar.NewIndexForBudget(opts.HashMemory, opts.K)
	if opts.Delimiter != nil {
		idx.SetDelimiter(*opts.Delimiter)
	}
	engine := grammar.NewEngine(idx, opts.K)

	for {
		v, err := next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.Wrap(err, "sequitur: read input")
		}
		engine.Append(v)
	}
	return &Grammar{engine: engine}, nil
}

// orderedRules walks the grammar from the start rule, assigning each
// distinct rule an index in order of first reference (the start rule is
// always 0).
func (g *Grammar) orderedRules() ([]*grammar.Rule, map[*grammar.Rule]int) {
	order := []*grammar.Rule{g.engine.Start}
	index := map[*grammar.Rule]int{g.engine.Start: 0}
	for i := 0; i < len(order); i++ {
		for _, s := range order[i].Symbols() {
			if !s.IsNonTerminal() {
				continue
			}
			r := s.Rule()
			if _, seen := index[r]; seen {
				continue
			}
			index[r] = len(order)
			order = append(order, r)
		}
	}
	return order, index
}

// Reproduce writes the grammar's full expansion: the original byte stream
// it was induced from.
func (g *Grammar) Reproduce(w io.Writer) error {
	bw := bufio.NewWriter(w)
	var walk func(r *grammar.Rule) error
	walk = func(r *grammar.Rule) error {
		for _, s := range r.Symbols() {
			if s.IsTerminal() {
				if err := bw.WriteByte(byte(s.Terminal())); err != nil {
					return err
				}
				continue
			}
			if err := walk(s.Rule()); err != nil {
				return err
			}
		}
		return nil
	}
	if err := walk(g.engine.Start); err != nil {
		return errors.Wrap(err, "sequitur: reproduce")
	}
	return errors.Wrap(bw.Flush(), "sequitur: flush reproduce output")
}

// Print writes a human-readable listing of every rule in the grammar, the
// start rule labeled 0 and every other rule labeled by its first-reference
// order. Printable ASCII terminals (0x20-0x7e) print as their raw byte and
// any other terminal as its decimal value in brackets; non-terminals print
// as a rule reference.
func (g *Grammar) Print(w io.Writer) error {
	order, index := g.orderedRules()
	bw := bufio.NewWriter(w)
	if err := writeRuleRange(bw, order, index, 0, len(order)); err != nil {
		return err
	}
	return errors.Wrap(bw.Flush(), "sequitur: flush print grammar")
}

// PrintSeparate is Print split across two streams, in the classic sequitur
// -s style: w gets only the start rule (rule 0), and rulesW gets every rule
// it references, transitively. Useful when the start rule is short and the
// bulk of the grammar's bytes live in its rules, letting a caller compress
// the two streams with different settings.
func (g *Grammar) PrintSeparate(w, rulesW io.Writer) error {
	order, index := g.orderedRules()
	bw := bufio.NewWriter(w)
	if err := writeRuleRange(bw, order, index, 0, 1); err != nil {
		return err
	}
	if err := bw.Flush(); err != nil {
		return errors.Wrap(err, "sequitur: flush print grammar")
	}

	rbw := bufio.NewWriter(rulesW)
	if err := writeRuleRange(rbw, order, index, 1, len(order)); err != nil {
		return err
	}
	return errors.Wrap(rbw.Flush(), "sequitur: flush print grammar rules")
}

func writeRuleRange(bw *bufio.Writer, order []*grammar.Rule, index map[*grammar.Rule]int, from, to int) error {
	for i := from; i < to; i++ {
		r := order[i]
		if _, err := io.WriteString(bw, ruleLabel(i)); err != nil {
			return errors.Wrap(err, "sequitur: print grammar")
		}
		if _, err := io.WriteString(bw, " ->"); err != nil {
			return errors.Wrap(err, "sequitur: print grammar")
		}
		for _, s := range r.Symbols() {
			if s.IsTerminal() {
				if err := writeTerminal(bw, s.Terminal()); err != nil {
					return errors.Wrap(err, "sequitur: print grammar")
				}
				continue
			}
			if _, err := io.WriteString(bw, " "+ruleLabel(index[s.Rule()])); err != nil {
				return errors.Wrap(err, "sequitur: print grammar")
			}
		}
		if _, err := io.WriteString(bw, "\n"); err != nil {
			return errors.Wrap(err, "sequitur: print grammar")
		}
	}
	return nil
}

func ruleLabel(i int) string {
	if i == 0 {
		return "0"
	}
	return "R" + strconv.Itoa(i)
}

func writeTerminal(w *bufio.Writer, v int) error {
	if v >= 0x20 && v < 0x7f {
		return w.WriteByte(byte(v))
	}
	_, err := io.WriteString(w, "["+strconv.Itoa(v)+"]")
	return err
}
