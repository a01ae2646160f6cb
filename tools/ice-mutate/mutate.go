// Copyright 2015 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

// ice-mutate splices the given seed files and prints the resulting candidates.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/matthiaskrgr/icemaker-sub000/pkg/mutate"
)

var (
	flagSeed     = flag.Int64("seed", -1, "prng seed")
	flagCount    = flag.Int("n", 10, "number of candidates")
	flagAttempts = flag.Int("attempts", 10000, "maximum number of splicer outputs to consider")
	flagChaos    = flag.Int("chaos", mutate.DefaultConfig.Chaos, "percent probability of extra chaos per splice")
	flagMaxLines = flag.Int("max-lines", mutate.DefaultMaxLines, "skip seeds with more lines")
)

func main() {
	flag.Parse()
	if flag.NArg() == 0 {
		fmt.Fprintf(os.Stderr, "usage: ice-mutate [flags] seed.rs...\n")
		flag.PrintDefaults()
		os.Exit(1)
	}
	seed := time.Now().UnixNano()
	if *flagSeed != -1 {
		seed = *flagSeed
	}
	trees := mutate.ParseSeeds(context.Background(), flag.Args(), mutate.Limits{
		MaxLines:     *flagMaxLines,
		ParseTimeout: mutate.DefaultParseTimeout,
	})
	if len(trees) == 0 {
		fmt.Fprintf(os.Stderr, "no usable seeds\n")
		os.Exit(1)
	}
	cfg := mutate.DefaultConfig
	cfg.Seed = seed
	cfg.Chaos = *flagChaos
	i := 0
	for src := range mutate.New(trees, cfg).Candidates(*flagCount, *flagAttempts) {
		fmt.Printf("// candidate %v (seed %v)\n%s\n", i, seed, src)
		i++
	}
}
