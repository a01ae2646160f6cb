// Copyright 2026 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

// icemaker runs the Rust toolchain over a corpus of source files with many flag
// combinations and reports crashes, hangs, memory exhaustion, UB and other
// misbehavior. Usage:
//
//	icemaker [flags] corpus_dir...
//
// Findings are printed to the console and saved to <workdir>/icemaker_<timestamp>/.
// The exit status is 0 regardless of findings and 1 on misuse.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/matthiaskrgr/icemaker-sub000/pkg/config"
	"github.com/matthiaskrgr/icemaker-sub000/pkg/console"
	"github.com/matthiaskrgr/icemaker-sub000/pkg/log"
	"github.com/matthiaskrgr/icemaker-sub000/pkg/manager"
	"github.com/matthiaskrgr/icemaker-sub000/pkg/mgrconfig"
	"github.com/matthiaskrgr/icemaker-sub000/pkg/osutil"
	"github.com/matthiaskrgr/icemaker-sub000/pkg/persist"
	"github.com/matthiaskrgr/icemaker-sub000/pkg/runner"
	"github.com/matthiaskrgr/icemaker-sub000/pkg/tables"
	"github.com/matthiaskrgr/icemaker-sub000/pkg/tool"
	"github.com/matthiaskrgr/icemaker-sub000/pkg/toolchain"
)

var (
	flagConfig    = flag.String("config", "", "configuration file (JSON or YAML, optional)")
	flagRustc     = flag.Bool("rustc", false, "run the compiler")
	flagClippy    = flag.Bool("clippy", false, "run the linter")
	flagClippyFix = flag.Bool("clippy-fix", false, "run the linter auto-fix and check that the fixed code compiles")
	flagRustfmt   = flag.Bool("rustfmt", false, "run the formatter twice and check idempotence")
	flagAnalyzer  = flag.Bool("analyzer", false, "run rust-analyzer analysis-stats")
	flagMiri      = flag.Bool("miri", false, "run the miri interpreter")
	flagFuzz      = flag.Bool("fuzz", false, "splice corpus files into new inputs and test those")
	flagIncrFuzz  = flag.Bool("incr-fuzz", false, "compile random file pairs with a shared incremental cache")
	flagThreads   = flag.Int("threads", -1, "number of concurrent jobs (0 means the number of CPUs)")
	flagFlagOrder = tool.EnumFlag{Allowed: []string{"small", "large"}}
	flagMinimize  = flag.Bool("minimize-flags", false, "find a minimal flag set for every finding")
	flagLocalDbg  = flag.Bool("local-debug-build", false, "use stage1 of the local compiler build as master")
	flagLocal     = flag.String("local-build", "", "checkout of the compiler sources with a finished build")
	flagChannels  = flag.Bool("channels", false, "find the oldest release channel that reproduces every finding")
	flagReduce    = flag.String("reduce", "", "reducer command line, e.g. \"treereduce-rust -o {{OUT}} -s {{SRC}} -- {{CMD}}\"")
	flagWorkdir   = flag.String("workdir", "", "directory for run outputs (default: current dir)")
	flagHTTP      = flag.String("http", "", "address of the status page (e.g. localhost:56741)")
)

func init() {
	flag.Var(&flagFlagOrder, "flag-order", "which flag subsets go first: small or large")
}

func main() {
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "usage: icemaker [flags] corpus_dir...\n")
		flag.PrintDefaults()
	}
	flag.Parse()
	cfg, err := loadConfig()
	if err != nil {
		tool.Fail(err)
	}
	tbl := tables.Default()
	if cfg.Tables != "" {
		if tbl, err = tables.Load(cfg.Tables); err != nil {
			tool.Fail(err)
		}
	}
	files, err := manager.CollectFiles(cfg.Corpus)
	if err != nil {
		tool.Fail(err)
	}
	if len(files) == 0 {
		tool.Failf("no .rs files in %v", strings.Join(cfg.Corpus, ", "))
	}

	reporter := console.NewReporter(os.Stdout)
	log.SetOutput(reporter)
	log.EnableLogCaching(1000, 1<<20)
	shutdown := make(chan struct{})
	osutil.HandleInterrupts(shutdown)
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-shutdown
		cancel()
	}()

	store, err := persist.New(cfg.Workdir, time.Now())
	if err != nil {
		log.Fatal(err)
	}
	log.Logf(0, "run %v: saving findings to %v", store.RunID, store.Path)
	if err := config.SaveFile(filepath.Join(store.Path, "config.json"), cfg); err != nil {
		log.Errorf("failed to save config: %v", err)
	}
	if err := run(ctx, cfg, tbl, files, reporter, store); err != nil && ctx.Err() == nil {
		log.Errorf("%v", err)
	}
	reporter.Close()
	if err := store.Close(); err != nil {
		log.Errorf("failed to write run summary: %v", err)
	}
	log.Logf(0, "%v unique findings, see %v", len(reporter.Emitted()), store.Path)
}

func run(ctx context.Context, cfg *mgrconfig.Config, tbl *tables.Tables, files []string,
	reporter *console.Reporter, store *persist.Dir) error {
	if cfg.Fuzz {
		return osutil.WithTempDir("icemaker-candidates", func(dir string) error {
			candidates, err := manager.WriteCandidates(ctx, cfg, files, dir)
			if err != nil {
				return err
			}
			return runJobs(ctx, cfg, tbl, candidates, reporter, store)
		})
	}
	return runJobs(ctx, cfg, tbl, files, reporter, store)
}

func runJobs(ctx context.Context, cfg *mgrconfig.Config, tbl *tables.Tables, files []string,
	reporter *console.Reporter, store *persist.Dir) error {
	threads := cfg.Threads
	if threads == 0 {
		threads = runtime.NumCPU()
	}
	heavy := cfg.HeavyJobs
	if heavy == 0 {
		heavy = mgrconfig.DefaultHeavyJobs(threads)
	}
	r := &runner.Runner{
		Resolver: &toolchain.Rustup{
			Home:               cfg.RustupHome,
			LocalBuild:         cfg.LocalBuild,
			UseLocalDebugBuild: cfg.LocalDebugBuild,
		},
		Materializer: &toolchain.CargoProject{Edition: cfg.Edition},
		Memory:       cfg.Memory(),
		Timeouts:     cfg.ParsedTimeouts,
		Heavy:        osutil.NewSemaphore(heavy),
		FixLints:     tbl.FixLints,
	}
	mgr := manager.New(cfg, files, r, reporter)
	mgr.Exceptions = tbl
	mgr.Sink = store
	if len(cfg.Reduce) != 0 {
		mgr.Reducer = &toolchain.CommandReducer{Bin: cfg.Reduce[0], Args: cfg.Reduce[1:]}
	}
	if cfg.HTTP != "" {
		serv := &manager.HTTPServer{Addr: cfg.HTTP, Mgr: mgr, StartTime: time.Now()}
		go func() {
			if err := serv.Serve(ctx); err != nil {
				log.Errorf("http server failed: %v", err)
			}
		}()
	}
	go mgr.LogStats(ctx, time.Minute)
	return mgr.Run(ctx, mgr.Jobs())
}

// loadConfig merges the config file (if any), command line flags and positional corpus dirs.
func loadConfig() (*mgrconfig.Config, error) {
	cfg := mgrconfig.DefaultValues()
	if *flagConfig != "" {
		if err := config.LoadFile(*flagConfig, cfg); err != nil {
			return nil, err
		}
	}
	if flag.NArg() != 0 {
		cfg.Corpus = flag.Args()
	}
	var tools []string
	for _, t := range []struct {
		set  bool
		tool toolchain.Tool
	}{
		{*flagRustc, toolchain.Rustc},
		{*flagClippy, toolchain.Clippy},
		{*flagClippyFix, toolchain.ClippyFix},
		{*flagRustfmt, toolchain.Rustfmt},
		{*flagAnalyzer, toolchain.Analyzer},
		{*flagMiri, toolchain.Miri},
	} {
		if t.set {
			tools = append(tools, t.tool.String())
		}
	}
	if len(tools) != 0 {
		cfg.Tools = tools
	}
	cfg.Fuzz = cfg.Fuzz || *flagFuzz
	cfg.IncrementalFuzz = cfg.IncrementalFuzz || *flagIncrFuzz
	cfg.MinimizeFlags = cfg.MinimizeFlags || *flagMinimize
	cfg.DetectChannel = cfg.DetectChannel || *flagChannels
	cfg.LocalDebugBuild = cfg.LocalDebugBuild || *flagLocalDbg
	if *flagThreads >= 0 {
		cfg.Threads = *flagThreads
	}
	if flagFlagOrder.Value != "" {
		cfg.FlagOrder = flagFlagOrder.Value
	}
	if *flagLocal != "" {
		cfg.LocalBuild = *flagLocal
	}
	if *flagReduce != "" {
		cfg.Reduce = strings.Fields(*flagReduce)
	}
	if *flagWorkdir != "" {
		cfg.Workdir = *flagWorkdir
	}
	if *flagHTTP != "" {
		cfg.HTTP = *flagHTTP
	}
	if err := mgrconfig.Complete(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
