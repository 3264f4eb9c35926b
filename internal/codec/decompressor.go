package codec

import (
	"io"

	"github.com/craignm/sequitur/internal/arith"
	"github.com/craignm/sequitur/internal/bitio"
	"github.com/craignm/sequitur/internal/model"
	"github.com/pkg/errors"
)

// decodedRule is a rule as seen by the decoder: its fully flattened
// terminal expansion, computed once at definition time so that emitting a
// later reference is a simple slice append.
type decodedRule struct {
	index int
	flat  []int
}

// Decompressor mirrors Compressor, rebuilding the terminal stream from a
// compressed reader without re-running Sequitur induction: every rule
// reference resolves to a precomputed flat expansion.
type Decompressor struct {
	cfg Config
	src *bitio.Source
	dec *arith.Decoder

	symbolCtx  *model.Context
	lengthsCtx *model.Context
	keepCtx    *model.Context

	rules       map[int]*decodedRule
	nextNTIndex int
	forgetting  bool
}

// NewDecompressor reads the stream prologue (all-at-once flag, min/max
// terminal, max rule length) and constructs a Decompressor ready to Run.
func NewDecompressor(r io.Reader, cfg Config, maxGarbageBits uint64) (*Decompressor, error) {
	src := bitio.NewSource(r, maxGarbageBits)

	allAtOnceBit, err := src.ReadBit()
	if err != nil {
		return nil, errors.Wrap(err, "codec: read prologue bit")
	}
	cfg.AllAtOnce = allAtOnceBit == 1

	dec, err := arith.NewDecoder(src, cfg.arithConfig())
	if err != nil {
		return nil, errors.Wrap(err, "codec: new arithmetic decoder")
	}

	minT, err := decodePointInterval(dec, terminalTotal)
	if err != nil {
		return nil, errors.Wrap(err, "codec: decode min_terminal")
	}
	maxT, err := decodePointInterval(dec, terminalTotal)
	if err != nil {
		return nil, errors.Wrap(err, "codec: decode max_terminal")
	}
	maxLen, err := decodePointInterval(dec, ruleLenTotal)
	if err != nil {
		return nil, errors.Wrap(err, "codec: decode max_rule_len")
	}
	cfg.MinTerminal, cfg.MaxTerminal, cfg.MaxRuleLen = minT, maxT, maxLen

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

	return &Decompressor{
		cfg:        cfg,
		src:        src,
		dec:        dec,
		symbolCtx:  symbolCtx,
		lengthsCtx: lengthsCtx,
		keepCtx:    keepCtx,
		rules:      make(map[int]*decodedRule),
		forgetting: true,
	}, nil
}

func decodePointInterval(dec *arith.Decoder, total uint64) (int, error) {
	target := dec.DecodeTarget(total)
	if err := dec.Decode(target, target+1, total); err != nil {
		return 0, err
	}
	return int(target), nil
}

// Run decodes the entire stream, calling emit once per reconstructed input
// terminal, until END_OF_FILE.
func (d *Decompressor) Run(emit func(int) error) error {
	for {
		code, err := d.decodeSymbolCode()
		if err != nil {
			return err
		}
		switch {
		case code == codeEndOfFile:
			return nil
		case code == codeStopForgetting:
			d.forgetting = false
		case code == codeStartRule:
			rule, err := d.readRuleDefinition()
			if err != nil {
				return err
			}
			if err := d.emitRuleOccurrence(rule, emit); err != nil {
				return err
			}
		case isTerminalCode(code):
			v, err := d.readTerminalValue(code)
			if err != nil {
				return err
			}
			if err := emit(v); err != nil {
				return errors.Wrap(err, "codec: emit terminal")
			}
		default:
			idx := indexFromNonTerminalCode(code)
			rule, ok := d.rules[idx]
			if !ok {
				return ErrCorruptStream
			}
			if err := d.emitRuleOccurrence(rule, emit); err != nil {
				return err
			}
		}
	}
}

func (d *Decompressor) emitRuleOccurrence(rule *decodedRule, emit func(int) error) error {
	for _, v := range rule.flat {
		if err := emit(v); err != nil {
			return errors.Wrap(err, "codec: emit terminal")
		}
	}
	if !d.forgetting {
		return nil
	}
	keep, _, err := d.keepCtx.Decode(d.dec)
	if err != nil {
		return errors.Wrap(err, "codec: decode keep")
	}
	if keep != keepYes {
		delete(d.rules, rule.index)
		d.symbolCtx.Delete(nonTerminalCode(rule.index))
	}
	return nil
}

func (d *Decompressor) decodeSymbolCode() (int, error) {
	sym, notKnown, err := d.symbolCtx.Decode(d.dec)
	if err != nil {
		return 0, errors.Wrap(err, "codec: decode symbol code")
	}
	if !notKnown {
		return sym, nil
	}
	// The escape path is only ever taken for a terminal code not yet
	// installed; reserved and non-terminal codes are always installed
	// before they can be referenced.
	target := d.dec.DecodeTarget(terminalTotal)
	if err := d.dec.Decode(target, target+1, terminalTotal); err != nil {
		return 0, errors.Wrap(err, "codec: decode escaped terminal")
	}
	v := int(target) + d.cfg.MinTerminal
	code := terminalCode(d.cfg, v)
	if err := d.symbolCtx.Install(code); err != nil {
		return 0, errors.Wrap(err, "codec: install terminal code")
	}
	return code, nil
}

func (d *Decompressor) readTerminalValue(code int) (int, error) {
	return terminalValue(d.cfg, code), nil
}

func (d *Decompressor) readRuleDefinition() (*decodedRule, error) {
	d.nextNTIndex++
	index := d.nextNTIndex
	if err := d.symbolCtx.Install(nonTerminalCode(index)); err != nil {
		return nil, errors.Wrap(err, "codec: install rule code")
	}

	n, err := d.decodeLength()
	if err != nil {
		return nil, err
	}

	rule := &decodedRule{index: index}
	for i := 0; i < n; i++ {
		part, err := d.readBodySymbolRef()
		if err != nil {
			return nil, err
		}
		rule.flat = append(rule.flat, part...)
	}
	d.rules[index] = rule
	return rule, nil
}

// readBodySymbolRef decodes one symbol within a rule body being defined:
// a terminal, a nested rule definition, or a reference to an
// already-defined rule. It never consumes a keep code — only top-level
// occurrences (Run's main loop) do that.
func (d *Decompressor) readBodySymbolRef() ([]int, error) {
	code, err := d.decodeSymbolCode()
	if err != nil {
		return nil, err
	}
	switch {
	case code == codeStartRule:
		rule, err := d.readRuleDefinition()
		if err != nil {
			return nil, err
		}
		return rule.flat, nil
	case isTerminalCode(code):
		v, err := d.readTerminalValue(code)
		if err != nil {
			return nil, err
		}
		return []int{v}, nil
	default:
		idx := indexFromNonTerminalCode(code)
		rule, ok := d.rules[idx]
		if !ok {
			return nil, ErrCorruptStream
		}
		return rule.flat, nil
	}
}

func (d *Decompressor) decodeLength() (int, error) {
	n, notKnown, err := d.lengthsCtx.Decode(d.dec)
	if err != nil {
		return 0, errors.Wrap(err, "codec: decode rule length")
	}
	if !notKnown {
		return n, nil
	}
	target := d.dec.DecodeTarget(ruleLenTotal)
	if err := d.dec.Decode(target, target+1, ruleLenTotal); err != nil {
		return 0, errors.Wrap(err, "codec: decode escaped rule length")
	}
	v := int(target) + 2
	if err := d.lengthsCtx.Install(v); err != nil {
		return 0, errors.Wrap(err, "codec: install rule length")
	}
	return v, nil
}
