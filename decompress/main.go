// Command decompress is a thin single-purpose wrapper around
// sequitur.Decompress, the mirror of compress/main.go. The K and
// max-symbols flags must match whatever the producing compress call used.
package main

import (
	"flag"
	"log"
	"os"

	"github.com/craignm/sequitur"
)

var k = flag.Int("K", 2, "minimum digram occurrences to form a rule")
var maxSymbols = flag.Int("max-symbols", 0, "memory budget: max live symbols before forgetting starts")

func main() {
	flag.Parse()

	opts := sequitur.DefaultOptions()
	opts.K = *k
	opts.MaxSymbols = *maxSymbols
	if err := sequitur.Decompress(os.Stdout, os.Stdin, opts); err != nil {
		log.Fatalf("%+v", err)
	}
}
