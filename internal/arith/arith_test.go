package arith

import (
	"bytes"
	"testing"

	"github.com/craignm/sequitur/internal/bitio"
)

func defaultConfig() Config { return Config{B: 32, F: 16} }

// TestGeneralRoundTrip mirrors spec.md §8 scenario 6: encode
// (0,1,4),(1,3,4),(3,4,4) three times, decode with the same totals, and
// expect the same sequence of intervals back.
func TestGeneralRoundTrip(t *testing.T) {
	type interval struct{ low, high, total uint64 }
	seq := []interval{
		{0, 1, 4}, {1, 3, 4}, {3, 4, 4},
		{0, 1, 4}, {1, 3, 4}, {3, 4, 4},
		{0, 1, 4}, {1, 3, 4}, {3, 4, 4},
	}

	var buf bytes.Buffer
	sink := bitio.NewSink(&buf)
	enc := NewEncoder(sink, defaultConfig())
	for _, iv := range seq {
		if err := enc.Encode(iv.low, iv.high, iv.total); err != nil {
			t.Fatalf("encode %+v: %v", iv, err)
		}
	}
	if err := enc.Finish(); err != nil {
		t.Fatalf("finish: %v", err)
	}
	if err := sink.Flush(); err != nil {
		t.Fatalf("flush: %v", err)
	}

	src := bitio.NewSource(&buf, 256)
	dec, err := NewDecoder(src, defaultConfig())
	if err != nil {
		t.Fatalf("new decoder: %v", err)
	}
	for i, want := range seq {
		target := dec.DecodeTarget(want.total)
		if target < want.low || target >= want.high {
			t.Fatalf("symbol %d: target %d not in [%d,%d)", i, target, want.low, want.high)
		}
		if err := dec.Decode(want.low, want.high, want.total); err != nil {
			t.Fatalf("symbol %d: decode: %v", i, err)
		}
	}
}

func TestGeneralRoundTripRandomish(t *testing.T) {
	type interval struct{ low, high, total uint64 }
	// A pseudo-random-looking but deterministic sequence of skewed
	// intervals exercising both renormalization branches repeatedly.
	seq := []interval{
		{0, 1, 100}, {90, 100, 100}, {1, 2, 100}, {50, 99, 100},
		{0, 50, 100}, {99, 100, 100}, {2, 3, 100}, {3, 4, 100},
		{4, 90, 100}, {0, 1, 100}, {1, 100, 100},
	}

	var buf bytes.Buffer
	sink := bitio.NewSink(&buf)
	enc := NewEncoder(sink, defaultConfig())
	for _, iv := range seq {
		if err := enc.Encode(iv.low, iv.high, iv.total); err != nil {
			t.Fatalf("encode %+v: %v", iv, err)
		}
	}
	if err := enc.Finish(); err != nil {
		t.Fatalf("finish: %v", err)
	}
	sink.Flush()

	src := bitio.NewSource(&buf, 256)
	dec, err := NewDecoder(src, defaultConfig())
	if err != nil {
		t.Fatalf("new decoder: %v", err)
	}
	for i, want := range seq {
		target := dec.DecodeTarget(want.total)
		if target < want.low || target >= want.high {
			t.Fatalf("symbol %d: target %d not in [%d,%d)", i, target, want.low, want.high)
		}
		if err := dec.Decode(want.low, want.high, want.total); err != nil {
			t.Fatalf("symbol %d: decode: %v", i, err)
		}
	}
}

func TestFrugalBitsRoundTrip(t *testing.T) {
	cfg := Config{B: 32, F: 16, Frugal: true}
	type interval struct{ low, high, total uint64 }
	seq := []interval{{0, 1, 4}, {1, 3, 4}, {3, 4, 4}, {2, 3, 5}, {0, 2, 5}}

	var buf bytes.Buffer
	sink := bitio.NewSink(&buf)
	enc := NewEncoder(sink, cfg)
	for _, iv := range seq {
		if err := enc.Encode(iv.low, iv.high, iv.total); err != nil {
			t.Fatalf("encode: %v", err)
		}
	}
	if err := enc.Finish(); err != nil {
		t.Fatalf("finish: %v", err)
	}
	sink.Flush()

	src := bitio.NewSource(&buf, 256)
	dec, err := NewDecoder(src, cfg)
	if err != nil {
		t.Fatalf("new decoder: %v", err)
	}
	for i, want := range seq {
		target := dec.DecodeTarget(want.total)
		if target < want.low || target >= want.high {
			t.Fatalf("symbol %d: target %d not in [%d,%d)", i, target, want.low, want.high)
		}
		if err := dec.Decode(want.low, want.high, want.total); err != nil {
			t.Fatalf("symbol %d: decode: %v", i, err)
		}
	}
}

func TestBinaryRoundTrip(t *testing.T) {
	bits := []int{1, 1, 0, 0, 1, 0, 1, 1, 1, 0, 0, 0, 1, 1, 1, 1, 0}
	var c0, c1 uint64 = 1, 1

	var buf bytes.Buffer
	sink := bitio.NewSink(&buf)
	enc := NewEncoder(sink, defaultConfig())
	ec0, ec1 := c0, c1
	for _, b := range bits {
		if err := enc.BinaryEncode(ec0, ec1, b); err != nil {
			t.Fatalf("binary encode: %v", err)
		}
		if b == 0 {
			ec0++
		} else {
			ec1++
		}
	}
	if err := enc.Finish(); err != nil {
		t.Fatalf("finish: %v", err)
	}
	sink.Flush()

	src := bitio.NewSource(&buf, 256)
	dec, err := NewDecoder(src, defaultConfig())
	if err != nil {
		t.Fatalf("new decoder: %v", err)
	}
	dc0, dc1 := c0, c1
	for i, want := range bits {
		got, err := dec.BinaryDecode(dc0, dc1)
		if err != nil {
			t.Fatalf("bit %d: %v", i, err)
		}
		if got != want {
			t.Errorf("bit %d: got %d, want %d", i, got, want)
		}
		if got == 0 {
			dc0++
		} else {
			dc1++
		}
	}
}
