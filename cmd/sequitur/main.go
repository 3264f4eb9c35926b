// Command sequitur compresses or decompresses a byte stream with a
// streaming Sequitur grammar and an adaptive arithmetic coder, or prints
// the induced grammar instead of coding it.
package main

import (
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/craignm/sequitur"
)

// Exit codes per SPEC_FULL.md §6.
const (
	exitOK              = 0
	exitArgError        = 1
	exitMemoryExhausted = 2
	exitCorruptInput    = 3
	exitOutputSaturated = 4
)

var (
	flagCompress      bool
	flagDecompress    bool
	flagPrintGrammar  bool
	flagReproduce     bool
	flagQuiet         bool
	flagNumeric       bool
	flagSeparateFile  bool
	flagMinReps       int
	flagDelimiter     int
	flagHasDelimiter  bool
	flagMaxSymbols    int
	flagHashMemoryStr string
	flagCodeBits      int
	flagFreqBits      int
	flagFrugalBits    bool
	flagMPSAtEnd      bool
	flagAllAtOnce     bool
)

func main() {
	log.SetFlags(0)
	root := newRootCmd()
	if err := root.Execute(); err != nil {
		log.Printf("%+v", err)
		os.Exit(exitCodeFor(err))
	}
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "sequitur [flags] [file]",
		Short:         "streaming grammar compression via Sequitur + arithmetic coding",
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          runRoot,
	}

	flags := cmd.Flags()
	flags.BoolVarP(&flagCompress, "compress", "c", false, "compress stdin/file to stdout (default)")
	flags.BoolVarP(&flagDecompress, "decompress", "d", false, "decompress stdin/file to stdout")
	flags.BoolVarP(&flagPrintGrammar, "print-grammar", "p", false, "print the induced grammar instead of coding")
	flags.BoolVarP(&flagReproduce, "reproduce", "r", false, "print the grammar's full expansion (round-trip check)")
	flags.BoolVarP(&flagQuiet, "quiet", "q", false, "accepted for compatibility; no effect (no banner is printed)")
	flags.BoolVarP(&flagNumeric, "numeric", "n", false, "treat input as whitespace-separated decimal symbols")
	flags.BoolVarP(&flagSeparateFile, "separate-file", "s", false, "write non-start rules to <file>.s")
	flags.IntVarP(&flagMinReps, "min-reps", "K", 2, "K, minimum digram occurrences to form a rule")
	flags.IntVarP(&flagDelimiter, "delimiter", "e", 0, "terminal value that may never appear inside a digram")
	flags.IntVar(&flagMaxSymbols, "max-symbols", 0, "memory budget: max live symbols before forgetting starts")
	flags.StringVar(&flagHashMemoryStr, "hash-memory", "1MiB", "memory budget for the digram index (e.g. \"64MiB\")")
	flags.IntVarP(&flagCodeBits, "code-bits", "B", 32, "coder code-range width")
	flags.IntVarP(&flagFreqBits, "freq-bits", "F", 16, "coder frequency-range width")
	flags.BoolVar(&flagFrugalBits, "frugal-bits", false, "enable frugal-bits mode")
	flags.BoolVar(&flagMPSAtEnd, "mps-at-end", false, "enable most-probable-symbol-at-end-of-range")
	flags.BoolVar(&flagAllAtOnce, "all-at-once", false, "code with static contexts and a pre-installed terminal alphabet")

	cmd.PreRunE = func(cmd *cobra.Command, args []string) error {
		flagHasDelimiter = cmd.Flags().Changed("delimiter")
		return nil
	}

	return cmd
}

func runRoot(cmd *cobra.Command, args []string) error {
	var name string
	if len(args) > 0 {
		name = args[0]
	}

	in, err := openInput(name)
	if err != nil {
		return errors.Wrap(err, "sequitur: open input")
	}
	defer in.Close()

	opts := sequitur.DefaultOptions()
	opts.K = flagMinReps
	opts.MaxSymbols = flagMaxSymbols
	opts.B = uint(flagCodeBits)
	opts.F = uint(flagFreqBits)
	opts.Frugal = flagFrugalBits
	opts.MPSAtEnd = flagMPSAtEnd
	opts.AllAtOnce = flagAllAtOnce
	if flagHasDelimiter {
		d := flagDelimiter
		opts.Delimiter = &d
	}
	mem, err := humanize.ParseBytes(flagHashMemoryStr)
	if err != nil {
		return errors.Wrap(err, "sequitur: parse --hash-memory")
	}
	opts.HashMemory = mem

	switch {
	case flagPrintGrammar, flagReproduce:
		induce := sequitur.Induce
		if flagNumeric {
			induce = sequitur.InduceNumeric
		}
		g, err := induce(in, opts)
		if err != nil {
			return err
		}
		if flagReproduce {
			return g.Reproduce(os.Stdout)
		}
		if flagSeparateFile {
			rulesName, err := separateFileName(name)
			if err != nil {
				return errors.Wrap(err, "sequitur: -s requires a named input file")
			}
			rulesFile, err := os.Create(rulesName)
			if err != nil {
				return errors.Wrap(err, "sequitur: create rules file")
			}
			defer rulesFile.Close()
			return g.PrintSeparate(os.Stdout, rulesFile)
		}
		return g.Print(os.Stdout)
	case flagDecompress:
		if flagNumeric {
			return sequitur.DecompressNumeric(os.Stdout, in, opts)
		}
		return sequitur.Decompress(os.Stdout, in, opts)
	default:
		if flagNumeric {
			return sequitur.CompressNumeric(os.Stdout, in, opts)
		}
		return sequitur.Compress(os.Stdout, in, opts)
	}
}

// separateFileName derives the <file>.s path -s writes non-start rules to;
// it requires a named input file since stdout has nowhere else to split to.
func separateFileName(inputName string) (string, error) {
	if inputName == "" {
		return "", errors.New("no input filename given")
	}
	return inputName + ".s", nil
}

func openInput(name string) (*os.File, error) {
	if name == "" {
		return os.Stdin, nil
	}
	return os.Open(name)
}

// exitCodeFor maps a returned error to one of the exit codes SPEC_FULL.md
// §6 names; an error this CLI didn't originate falls back to a plain
// argument error.
func exitCodeFor(err error) int {
	msg := fmt.Sprint(errors.Cause(err))
	switch {
	case containsAny(msg, "too many symbols", "no memory"):
		return exitMemoryExhausted
	case containsAny(msg, "corrupt"):
		return exitCorruptInput
	case containsAny(msg, "saturated", "bits-outstanding"):
		return exitOutputSaturated
	default:
		return exitArgError
	}
}

func containsAny(s string, subs ...string) bool {
	s = strings.ToLower(s)
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
