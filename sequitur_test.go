package sequitur

import (
	"bytes"
	"io/ioutil"
	"os"
	"strconv"
	"testing"
)

func roundTrip(t *testing.T, opts Options, input []byte) []byte {
	t.Helper()

	f, err := ioutil.TempFile("", "sequitur.TestCompress.Compress")
	if err != nil {
		t.Fatalf("%v", err)
	}
	defer f.Close()
	defer os.Remove(f.Name())
	if err := Compress(f, bytes.NewReader(input), opts); err != nil {
		t.Fatalf("%v", err)
	}

	if _, err := f.Seek(0, 0); err != nil {
		t.Fatalf("%v", err)
	}
	df, err := ioutil.TempFile("", "sequitur.TestCompress.Decompress")
	if err != nil {
		t.Fatalf("%v", err)
	}
	defer df.Close()
	defer os.Remove(df.Name())
	if err := Decompress(df, f, opts); err != nil {
		t.Fatalf("%v", err)
	}

	if _, err := df.Seek(0, 0); err != nil {
		t.Fatalf("%v", err)
	}
	out, err := ioutil.ReadAll(df)
	if err != nil {
		t.Fatalf("%v", err)
	}
	return out
}

func TestCompressDecompressGettysburg(t *testing.T) {
	const address = `Four score and seven years ago our fathers brought forth on this
continent a new nation, conceived in liberty, and dedicated to the
proposition that all men are created equal. Now we are engaged in a
great civil war, testing whether that nation, or any nation so
conceived and so dedicated, can long endure.`

	out := roundTrip(t, DefaultOptions(), []byte(address))
	if !bytes.Equal(out, []byte(address)) {
		t.Errorf("round trip mismatch: got %q, want %q", out, address)
	}
}

func TestCompressDecompressWithBoundedMemory(t *testing.T) {
	opts := DefaultOptions()
	opts.MaxSymbols = 16
	input := bytes.Repeat([]byte("mississippi river banks overflow"), 20)

	out := roundTrip(t, opts, input)
	if !bytes.Equal(out, input) {
		t.Errorf("round trip with bounded memory mismatch")
	}
}

func TestCompressDecompressWithDelimiter(t *testing.T) {
	opts := DefaultOptions()
	delim := int('\n')
	opts.Delimiter = &delim
	input := []byte("ab\nab\nab\ncd\ncd\ncd\n")

	out := roundTrip(t, opts, input)
	if !bytes.Equal(out, input) {
		t.Errorf("round trip with delimiter mismatch: got %q, want %q", out, input)
	}
}

func TestInduceReproduceRoundTrip(t *testing.T) {
	input := []byte("abcabcabcabcabc")
	g, err := Induce(bytes.NewReader(input), DefaultOptions())
	if err != nil {
		t.Fatalf("induce: %v", err)
	}
	var buf bytes.Buffer
	if err := g.Reproduce(&buf); err != nil {
		t.Fatalf("reproduce: %v", err)
	}
	if !bytes.Equal(buf.Bytes(), input) {
		t.Errorf("reproduce mismatch: got %q, want %q", buf.Bytes(), input)
	}
}

func TestInducePrintProducesNonEmptyListing(t *testing.T) {
	input := []byte("abcabcabcabcabc")
	g, err := Induce(bytes.NewReader(input), DefaultOptions())
	if err != nil {
		t.Fatalf("induce: %v", err)
	}
	var buf bytes.Buffer
	if err := g.Print(&buf); err != nil {
		t.Fatalf("print: %v", err)
	}
	if buf.Len() == 0 {
		t.Errorf("expected a non-empty grammar listing")
	}
}

func TestCompressDecompressAllAtOnce(t *testing.T) {
	opts := DefaultOptions()
	opts.AllAtOnce = true
	input := bytes.Repeat([]byte("the quick brown fox jumps over the lazy dog. "), 5)

	out := roundTrip(t, opts, input)
	if !bytes.Equal(out, input) {
		t.Errorf("round trip with AllAtOnce mismatch: got %q, want %q", out, input)
	}
}

func TestCompressDecompressNumericRoundTrip(t *testing.T) {
	opts := DefaultOptions()
	opts.MinTerminal = 0
	opts.MaxTerminal = 999
	values := []int{10, 20, 30, 10, 20, 30, 10, 20, 30, 999, 5}
	var line bytes.Buffer
	for i, v := range values {
		if i > 0 {
			line.WriteByte(' ')
		}
		line.WriteString(strconv.Itoa(v))
	}

	var compressed bytes.Buffer
	if err := CompressNumeric(&compressed, bytes.NewReader(line.Bytes()), opts); err != nil {
		t.Fatalf("compress numeric: %v", err)
	}

	var out bytes.Buffer
	if err := DecompressNumeric(&out, &compressed, opts); err != nil {
		t.Fatalf("decompress numeric: %v", err)
	}

	got := parseNumericLines(t, out.Bytes())
	if len(got) != len(values) {
		t.Fatalf("round trip length mismatch: got %v, want %v", got, values)
	}
	for i := range values {
		if got[i] != values[i] {
			t.Errorf("symbol %d: got %d, want %d", i, got[i], values[i])
		}
	}
}

func TestPrintSeparateSplitsStartRuleFromOtherRules(t *testing.T) {
	input := []byte("abcabcabcabcabc")
	g, err := Induce(bytes.NewReader(input), DefaultOptions())
	if err != nil {
		t.Fatalf("induce: %v", err)
	}
	var start, rules bytes.Buffer
	if err := g.PrintSeparate(&start, &rules); err != nil {
		t.Fatalf("print separate: %v", err)
	}
	if start.Len() == 0 {
		t.Errorf("expected a non-empty start-rule listing")
	}
	if rules.Len() == 0 {
		t.Errorf("expected the repeated \"abc\" digram to form a non-start rule")
	}
}

func parseNumericLines(t *testing.T, b []byte) []int {
	t.Helper()
	var out []int
	for _, line := range bytes.Split(bytes.TrimRight(b, "\n"), []byte("\n")) {
		if len(line) == 0 {
			continue
		}
		v, err := strconv.Atoi(string(line))
		if err != nil {
			t.Fatalf("parse numeric line %q: %v", line, err)
		}
		out = append(out, v)
	}
	return out
}
