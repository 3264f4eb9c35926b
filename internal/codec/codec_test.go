package codec

import (
	"bytes"
	"testing"
)

func testConfig() Config {
	return Config{
		B: 32, F: 16, K: 2,
		MinTerminal: 0, MaxTerminal: 255,
		MaxRuleLen: 64,
		HashMemory: 1 << 16,
	}
}

func compressAll(t *testing.T, cfg Config, input []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	c, err := NewCompressor(&buf, cfg)
	if err != nil {
		t.Fatalf("new compressor: %v", err)
	}
	for _, b := range input {
		if err := c.Feed(int(b)); err != nil {
			t.Fatalf("feed: %v", err)
		}
	}
	if err := c.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	return buf.Bytes()
}

func decompressAll(t *testing.T, compressed []byte) []byte {
	t.Helper()
	d, err := NewDecompressor(bytes.NewReader(compressed), Config{B: 32, F: 16, K: 2}, 256)
	if err != nil {
		t.Fatalf("new decompressor: %v", err)
	}
	var out []byte
	err = d.Run(func(v int) error {
		out = append(out, byte(v))
		return nil
	})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	return out
}

func TestRoundTripRepeatedPattern(t *testing.T) {
	input := []byte("abcabcabcabcabc")
	compressed := compressAll(t, testConfig(), input)
	got := decompressAll(t, compressed)
	if !bytes.Equal(got, input) {
		t.Fatalf("round trip: got %q, want %q", got, input)
	}
}

func TestRoundTripSingleByte(t *testing.T) {
	input := []byte("x")
	compressed := compressAll(t, testConfig(), input)
	got := decompressAll(t, compressed)
	if !bytes.Equal(got, input) {
		t.Fatalf("round trip: got %q, want %q", got, input)
	}
}

func TestRoundTripEmptyInput(t *testing.T) {
	input := []byte{}
	compressed := compressAll(t, testConfig(), input)
	got := decompressAll(t, compressed)
	if len(got) != 0 {
		t.Fatalf("round trip of empty input produced %q", got)
	}
}

func TestRoundTripWithBoundedMemory(t *testing.T) {
	cfg := testConfig()
	cfg.MaxSymbols = 8
	input := []byte("the quick brown fox jumps over the lazy dog. the quick brown fox jumps over the lazy dog.")
	compressed := compressAll(t, cfg, input)
	got := decompressAll(t, compressed)
	if !bytes.Equal(got, input) {
		t.Fatalf("round trip with bounded memory: got %q, want %q", got, input)
	}
}

// TestCloseEmitsStopForgettingOnce drives the decode loop by hand (rather
// than through Run) so it can count STOP_FORGETTING occurrences directly.
// A successful round trip through this loop also demonstrates that no
// KEEP_* code is read once forgetting stops: emitRuleOccurrence only reads
// one if d.forgetting is still true, and a spurious or missing read would
// desync the arithmetic coder and corrupt every symbol decoded after it.
func TestCloseEmitsStopForgettingOnce(t *testing.T) {
	cfg := testConfig()
	cfg.MaxSymbols = 8
	input := []byte("the quick brown fox jumps over the lazy dog. the quick brown fox jumps over the lazy dog.")
	compressed := compressAll(t, cfg, input)

	d, err := NewDecompressor(bytes.NewReader(compressed), Config{B: 32, F: 16, K: 2}, 256)
	if err != nil {
		t.Fatalf("new decompressor: %v", err)
	}

	var out []byte
	emit := func(v int) error {
		out = append(out, byte(v))
		return nil
	}

	stopCount := 0
loop:
	for {
		code, err := d.decodeSymbolCode()
		if err != nil {
			t.Fatalf("decode symbol code: %v", err)
		}
		switch {
		case code == codeEndOfFile:
			break loop
		case code == codeStopForgetting:
			stopCount++
			d.forgetting = false
		case code == codeStartRule:
			rule, err := d.readRuleDefinition()
			if err != nil {
				t.Fatalf("read rule definition: %v", err)
			}
			if err := d.emitRuleOccurrence(rule, emit); err != nil {
				t.Fatalf("emit rule occurrence: %v", err)
			}
		case isTerminalCode(code):
			v, err := d.readTerminalValue(code)
			if err != nil {
				t.Fatalf("read terminal value: %v", err)
			}
			if err := emit(v); err != nil {
				t.Fatalf("emit: %v", err)
			}
		default:
			idx := indexFromNonTerminalCode(code)
			rule, ok := d.rules[idx]
			if !ok {
				t.Fatalf("unknown rule reference %d", idx)
			}
			if err := d.emitRuleOccurrence(rule, emit); err != nil {
				t.Fatalf("emit rule occurrence: %v", err)
			}
		}
	}

	if stopCount != 1 {
		t.Errorf("STOP_FORGETTING appeared %d times in the stream, want exactly 1", stopCount)
	}
	if !bytes.Equal(out, input) {
		t.Fatalf("round trip via manual decode loop: got %q, want %q", out, input)
	}
}

func TestRoundTripAllBytesDistinct(t *testing.T) {
	input := make([]byte, 256)
	for i := range input {
		input[i] = byte(i)
	}
	compressed := compressAll(t, testConfig(), input)
	got := decompressAll(t, compressed)
	if !bytes.Equal(got, input) {
		t.Fatalf("round trip over all distinct bytes failed")
	}
}

// TestRoundTripAllAtOnce exercises the Static symbol-context path,
// including a terminal ("z") that never appears until the last byte of the
// input: under AllAtOnce the full terminal alphabet is pre-installed, so
// this must not take the (zero-width, for a Static context) escape path.
func TestRoundTripAllAtOnce(t *testing.T) {
	cfg := testConfig()
	cfg.AllAtOnce = true
	input := []byte("aaaaaaaaaabbbbbbbbbbccccccccccz")

	var buf bytes.Buffer
	c, err := NewCompressor(&buf, cfg)
	if err != nil {
		t.Fatalf("new compressor: %v", err)
	}
	for _, b := range input {
		if err := c.Feed(int(b)); err != nil {
			t.Fatalf("feed: %v", err)
		}
	}
	if err := c.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	d, err := NewDecompressor(bytes.NewReader(buf.Bytes()), Config{B: 32, F: 16, K: 2}, 256)
	if err != nil {
		t.Fatalf("new decompressor: %v", err)
	}
	if !d.cfg.AllAtOnce {
		t.Fatalf("decompressor did not recover the all-at-once prologue bit")
	}
	var out []byte
	err = d.Run(func(v int) error {
		out = append(out, byte(v))
		return nil
	})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if !bytes.Equal(out, input) {
		t.Fatalf("round trip all-at-once: got %q, want %q", out, input)
	}
}
