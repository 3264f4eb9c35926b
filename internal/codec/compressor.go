package codec

import (
	"io"

	"github.com/craignm/sequitur/internal/arith"
	"github.com/craignm/sequitur/internal/bitio"
	"github.com/craignm/sequitur/internal/grammar"
	"github.com/craignm/sequitur/internal/model"
	"github.com/pkg/errors"
)

// Compressor drives Sequitur grammar induction and arithmetic coding over
// an output stream, per spec.md §4.G.
type Compressor struct {
	cfg Config
	sink *bitio.Sink
	enc  *arith.Encoder

	engine *grammar.Engine

	symbolCtx  *model.Context
	lengthsCtx *model.Context
	keepCtx    *model.Context

	nextNTIndex int
	forgetting  bool
	stopped     bool
}

// NewCompressor constructs a Compressor writing to w and emits the stream
// prologue (the all-at-once flag and the min/max terminal and max-rule-len
// point intervals).
func NewCompressor(w io.Writer, cfg Config) (*Compressor, error) {
	sink := bitio.NewSink(w)
	enc := arith.NewEncoder(sink, cfg.arithConfig())

	prologueBit := 0
	if cfg.AllAtOnce {
		prologueBit = 1
	}
	if err := sink.WriteBit(prologueBit); err != nil {
		return nil, errors.Wrap(err, "codec: write prologue bit")
	}
	if err := enc.Encode(uint64(cfg.MinTerminal), uint64(cfg.MinTerminal+1), terminalTotal); err != nil {
		return nil, errors.Wrap(err, "codec: encode min_terminal")
	}
	if err := enc.Encode(uint64(cfg.MaxTerminal), uint64(cfg.MaxTerminal+1), terminalTotal); err != nil {
		return nil, errors.Wrap(err, "codec: encode max_terminal")
	}
	if err := enc.Encode(uint64(cfg.MaxRuleLen), uint64(cfg.MaxRuleLen+1), ruleLenTotal); err != nil {
		return nil, errors.Wrap(err, "codec: encode max_rule_len")
	}

	idx := grammar.NewIndexForBudget(cfg.HashMemory, cfg.K)
	if cfg.HasDelimiter {
		idx.SetDelimiter(cfg.Delimiter)
	}
	engine := grammar.NewEngine(idx, cfg.K)

	symbolCtx := model.NewContext(symbolCapacityHint(cfg), cfg.F, cfg.ctxType())
	symbolCtx.SetMPSAtEnd(cfg.MPSAtEnd)
	if err := installControlCodes(symbolCtx); err != nil {
		return nil, errors.Wrap(err, "codec: install control codes")
	}
	if cfg.AllAtOnce {
		if err := installAllTerminals(symbolCtx, cfg); err != nil {
			return nil, errors.Wrap(err, "codec: pre-install terminal alphabet")
		}
	}

	lengthsCtx := model.NewContext(cfg.MaxRuleLen+2, cfg.F, model.Dynamic)
	lengthsCtx.SetMPSAtEnd(cfg.MPSAtEnd)
	keepCtx := newKeepContext(cfg.F)
	keepCtx.SetMPSAtEnd(cfg.MPSAtEnd)

	return &Compressor{
		cfg:        cfg,
		sink:       sink,
		enc:        enc,
		engine:     engine,
		symbolCtx:  symbolCtx,
		lengthsCtx: lengthsCtx,
		keepCtx:    keepCtx,
		forgetting: true,
	}, nil
}

// Feed appends one input terminal to the grammar and, once the start
// rule's live length exceeds MaxSymbols (if bounded), forgets symbols off
// its head until back under budget.
func (c *Compressor) Feed(v int) error {
	c.engine.Append(v)
	if c.cfg.MaxSymbols <= 0 {
		return nil
	}
	for c.engine.Len() > c.cfg.MaxSymbols {
		if err := c.forgetOne(); err != nil {
			return err
		}
	}
	return nil
}

// StopForgetting emits STOP_FORGETTING once; after this point no further
// keep codes are emitted for subsequent forgets (used right before the
// final drain so the decoder knows every remaining rule is permanent).
func (c *Compressor) StopForgetting() error {
	if c.stopped {
		return nil
	}
	c.stopped = true
	c.forgetting = false
	_, err := c.symbolCtx.Encode(c.enc, codeStopForgetting)
	return err
}

// Close emits STOP_FORGETTING, drains every remaining symbol in the start
// rule, emits END_OF_FILE, finalizes the arithmetic coder, and flushes the
// bit sink. STOP_FORGETTING must precede the drain per spec.md §4.G: once
// input is exhausted every surviving rule is permanent, so the decoder
// should stop expecting a keep code after each reference.
func (c *Compressor) Close() error {
	if err := c.StopForgetting(); err != nil {
		return errors.Wrap(err, "codec: encode stop_forgetting")
	}
	for c.engine.Len() > 0 {
		if err := c.forgetOne(); err != nil {
			return err
		}
	}
	if _, err := c.symbolCtx.Encode(c.enc, codeEndOfFile); err != nil {
		return errors.Wrap(err, "codec: encode end of file")
	}
	if err := c.enc.Finish(); err != nil {
		return errors.Wrap(err, "codec: finish arithmetic coder")
	}
	if err := c.sink.Flush(); err != nil {
		return errors.Wrap(err, "codec: flush bit sink")
	}
	return nil
}

func (c *Compressor) forgetOne() error {
	s := c.engine.Forget()
	if s == nil {
		return nil
	}
	return c.forgetSymbol(s)
}

// forgetSymbol implements spec.md §4.G's forget(s).
func (c *Compressor) forgetSymbol(s *grammar.Symbol) error {
	if s.IsTerminal() {
		return c.encodeTerminal(s.Terminal())
	}
	r := s.Rule()
	if r.UseCount() > 0 {
		if err := c.emitSymbolRef(s); err != nil {
			return err
		}
		if c.forgetting {
			if _, err := c.keepCtx.Encode(c.enc, keepYes); err != nil {
				return errors.Wrap(err, "codec: encode keep_yes")
			}
		}
		return nil
	}

	if r.Index() == 0 {
		if err := c.emitRuleDefinition(r); err != nil {
			return err
		}
		if c.forgetting {
			if _, err := c.keepCtx.Encode(c.enc, keepDummy); err != nil {
				return errors.Wrap(err, "codec: encode keep_dummy")
			}
		}
	} else {
		if err := c.encodeNonTerminalRef(r); err != nil {
			return err
		}
		if c.forgetting {
			if _, err := c.keepCtx.Encode(c.enc, keepNo); err != nil {
				return errors.Wrap(err, "codec: encode keep_no")
			}
		}
	}
	// Once forgetting has stopped no keep code accompanies this reference,
	// so the decoder has no signal to delete the rule's code either; both
	// sides must leave it installed to stay in sync.
	if c.forgetting {
		c.symbolCtx.Delete(nonTerminalCode(r.Index()))
		// The decoder drops the rule here too, so a later reuse of r must
		// define it afresh rather than reference the deleted index.
		r.SetIndex(0)
	}
	return nil
}

// emitSymbolRef emits s: a terminal code, a reference to an already
// emitted rule, or the full definition of a rule not yet emitted. It is
// used for the symbol being forgotten and for each symbol of a rule body
// being defined.
func (c *Compressor) emitSymbolRef(s *grammar.Symbol) error {
	if s.IsTerminal() {
		return c.encodeTerminal(s.Terminal())
	}
	r := s.Rule()
	if r.Index() == 0 {
		return c.emitRuleDefinition(r)
	}
	return c.encodeNonTerminalRef(r)
}

func (c *Compressor) emitRuleDefinition(r *grammar.Rule) error {
	c.nextNTIndex++
	r.SetIndex(c.nextNTIndex)

	if _, err := c.symbolCtx.Encode(c.enc, codeStartRule); err != nil {
		return errors.Wrap(err, "codec: encode start_rule")
	}
	if err := c.symbolCtx.Install(nonTerminalCode(r.Index())); err != nil {
		return errors.Wrap(err, "codec: install rule code")
	}

	body := r.Symbols()
	if err := c.encodeLength(len(body)); err != nil {
		return err
	}
	for _, s := range body {
		if err := c.emitSymbolRef(s); err != nil {
			return err
		}
	}
	return nil
}

func (c *Compressor) encodeNonTerminalRef(r *grammar.Rule) error {
	_, err := c.symbolCtx.Encode(c.enc, nonTerminalCode(r.Index()))
	if err != nil {
		return errors.Wrap(err, "codec: encode non-terminal reference")
	}
	return nil
}

func (c *Compressor) encodeTerminal(v int) error {
	code := terminalCode(c.cfg, v)
	notKnown, err := c.symbolCtx.Encode(c.enc, code)
	if err != nil {
		return errors.Wrap(err, "codec: encode terminal")
	}
	if !notKnown {
		return nil
	}
	if err := c.symbolCtx.Install(code); err != nil {
		return errors.Wrap(err, "codec: install terminal code")
	}
	off := uint64(v - c.cfg.MinTerminal)
	if err := c.enc.Encode(off, off+1, terminalTotal); err != nil {
		return errors.Wrap(err, "codec: encode raw terminal value")
	}
	return nil
}

func (c *Compressor) encodeLength(n int) error {
	notKnown, err := c.lengthsCtx.Encode(c.enc, n)
	if err != nil {
		return errors.Wrap(err, "codec: encode rule length")
	}
	if !notKnown {
		return nil
	}
	if err := c.lengthsCtx.Install(n); err != nil {
		return errors.Wrap(err, "codec: install rule length")
	}
	off := uint64(n - 2)
	if err := c.enc.Encode(off, off+1, ruleLenTotal); err != nil {
		return errors.Wrap(err, "codec: encode raw rule length")
	}
	return nil
}
