// Command compress is a thin single-purpose wrapper around
// sequitur.Compress, kept alongside the full cmd/sequitur CLI as a
// minimal entry point for scripting.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/craignm/sequitur"
)

var k = flag.Int("K", 2, "minimum digram occurrences to form a rule")
var maxSymbols = flag.Int("max-symbols", 0, "memory budget: max live symbols before forgetting starts")

func main() {
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "usage: %s [flags] filename\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()
	name := flag.Arg(0)
	if name == "" {
		flag.Usage()
		os.Exit(1)
	}

	f, err := os.Open(name)
	if err != nil {
		log.Fatalf("%v", err)
	}
	defer f.Close()

	opts := sequitur.DefaultOptions()
	opts.K = *k
	opts.MaxSymbols = *maxSymbols
	if err := sequitur.Compress(os.Stdout, f, opts); err != nil {
		log.Fatalf("%+v", err)
	}
}
