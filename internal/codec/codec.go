// Package codec implements the compression driver described in spec.md
// §4.G: it feeds terminals into a grammar.Engine, periodically forgets
// symbols off the start rule's head (emitting them through a symbol
// context, a lengths context for rule bodies, and a keep context recording
// whether a just-emitted rule survives), and mirrors the whole process on
// decode.
//
// No corpus example implements this driver; it is built directly from
// spec.md §4.G, reusing internal/model and internal/grammar and the
// teacher's error-wrapping conventions at the package boundary.
package codec

import (
	"errors"

	"github.com/craignm/sequitur/internal/arith"
	"github.com/craignm/sequitur/internal/model"
)

// Symbol-context code layout: slot 0 is unused, slot 1 is the context's own
// escape symbol (see internal/model), so the three reserved control codes
// start at slot 2, and terminal/non-terminal codes start at reservedCodes.
const (
	codeStartRule      = 2
	codeEndOfFile      = 3
	codeStopForgetting = 4
	reservedCodes      = 5
)

// Keep codes start at 2 for the same reason the driver's reserved control
// codes do: slot 1 of any model.Context is the escape symbol, and keepYes
// must be a plain installed symbol, not one that silently triggers the
// escape path.
const (
	keepNo = iota + 2
	keepYes
	keepDummy
)

const (
	terminalTotal = 100000000 // 10^8, per spec.md §6
	ruleLenTotal  = 10000     // 10^4, per spec.md §6
)

// Config holds every parameter both sides of a stream must agree on.
// NewCompressor writes AllAtOnce, MinTerminal, MaxTerminal and MaxRuleLen
// into the stream prologue and NewDecompressor takes those from it; the
// other fields are not serialized and must match on both sides.
type Config struct {
	B, F         uint
	K            int
	Frugal       bool
	MPSAtEnd     bool
	HasDelimiter bool
	Delimiter    int
	HashMemory   uint64
	MinTerminal  int
	MaxTerminal  int
	MaxRuleLen   int
	AllAtOnce    bool
	MaxSymbols   int // 0 = no bound; forget only at end_compress
}

func (c Config) arithConfig() arith.Config {
	return arith.Config{B: c.B, F: c.F, Frugal: c.Frugal}
}

func (c Config) ctxType() model.Type {
	if c.AllAtOnce {
		return model.Static
	}
	return model.Dynamic
}

func symbolCapacityHint(cfg Config) int {
	return reservedCodes + 2*(cfg.MaxTerminal-cfg.MinTerminal+2) + 64
}

func terminalCode(cfg Config, v int) int {
	return reservedCodes + 2*(v-cfg.MinTerminal)
}

func terminalValue(cfg Config, code int) int {
	return cfg.MinTerminal + (code-reservedCodes)/2
}

func nonTerminalCode(index int) int {
	return reservedCodes + 1 + 2*(index-1)
}

func indexFromNonTerminalCode(code int) int {
	return (code-reservedCodes-1)/2 + 1
}

func isTerminalCode(code int) bool {
	return code >= reservedCodes && (code-reservedCodes)%2 == 0
}

func newKeepContext(f uint) *model.Context {
	c := model.NewContext(8, f, model.Static)
	c.Install(keepNo)
	c.Install(keepYes)
	c.Install(keepDummy)
	return c
}

// installControlCodes installs the three reserved symbol-context control
// codes so they can be encoded/decoded from the very first use, never
// going through the escape path.
func installControlCodes(ctx *model.Context) error {
	for _, code := range []int{codeStartRule, codeEndOfFile, codeStopForgetting} {
		if err := ctx.Install(code); err != nil {
			return err
		}
	}
	return nil
}

// installAllTerminals pre-installs every terminal in [MinTerminal,
// MaxTerminal] so an all-at-once (Static) symbol context never needs its
// escape slot for a terminal: a Static context carries zero escape-slot
// mass (per internal/model's create(length, static)), so without this, the
// first not-yet-installed terminal would encode against a zero-width
// interval and corrupt the stream. Dynamic contexts skip this and learn
// terminals lazily through the escape path instead.
func installAllTerminals(ctx *model.Context, cfg Config) error {
	for v := cfg.MinTerminal; v <= cfg.MaxTerminal; v++ {
		if err := ctx.Install(terminalCode(cfg, v)); err != nil {
			return err
		}
	}
	return nil
}

// ErrCorruptStream is returned when a decoded value falls outside the
// ranges the stream's declared parameters allow.
var ErrCorruptStream = errors.New("codec: corrupt stream")
