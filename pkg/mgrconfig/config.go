// Copyright 2015 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package mgrconfig

import (
	"time"

	"github.com/matthiaskrgr/icemaker-sub000/pkg/flags"
	"github.com/matthiaskrgr/icemaker-sub000/pkg/toolchain"
)

type Config struct {
	// Directories with the corpus of source files (searched recursively for *.rs).
	Corpus []string `json:"corpus"`
	// Location of a working directory for the run. Outputs here include:
	// - <workdir>/icemaker_<timestamp>/: report files and raw logs of findings
	// - <workdir>/icemaker_<timestamp>/errors.json: all findings of the run
	Workdir string `json:"workdir"`
	// Address of the status page with /metrics and /findings (optional, e.g. "localhost:56741").
	HTTP string `json:"http,omitempty"`
	// Number of concurrent jobs, 0 means the number of CPUs.
	Threads int `json:"threads"`
	// Number of concurrent jobs that build whole cargo projects (miri, auto-fix, analyzer).
	// Such jobs are heavier than single file compilations. 0 means a quarter of Threads.
	HeavyJobs int `json:"heavy_jobs,omitempty"`

	// Tools to run: rustc, clippy, clippy-fix, rustfmt, rust-analyzer, miri.
	Tools []string `json:"tools"`
	// Also run the compiler in the incremental mode on every file.
	Incremental bool `json:"incremental"`
	// Compile random pairs of files one after another with a shared incremental cache.
	IncrementalFuzz bool `json:"incremental_fuzz"`
	// Generate new inputs by splicing corpus files and run the tools on them instead of the corpus.
	Fuzz     bool     `json:"fuzz"`
	Mutation Mutation `json:"mutation"`

	// Flag lists overriding the built-in ones, keyed by "<tool>" or "<tool>/<name>".
	// Naming any list of a tool replaces all built-in lists of the tool.
	FlagLists map[string][]string `json:"flag_lists,omitempty"`
	// Prefixes of mutually exclusive flags (e.g. "-Copt-level=").
	FlagFamilies []string `json:"flag_families"`
	// Caps on flag subset enumeration.
	FlagsPerSize int `json:"flags_per_size"`
	FlagsMaxSize int `json:"flags_max_size"`
	// Which flag subsets are tried first: "small" or "large".
	FlagOrder string `json:"flag_order"`
	// Shrink the flag set of every new finding to a minimal one that still reproduces it.
	MinimizeFlags bool `json:"minimize_flags"`
	// Find the oldest release channel that reproduces every new finding.
	DetectChannel bool `json:"detect_channel"`

	// Memory ceiling for a single invocation in MB.
	MemoryMB uint64 `json:"memory_mb"`
	// Per-tool wall clock budgets in seconds (keyed by tool name).
	Timeouts map[string]int `json:"timeouts,omitempty"`

	// RUSTUP_HOME (optional, defaults to the environment or ~/.rustup).
	RustupHome string `json:"rustup_home,omitempty"`
	// Checkout of the compiler sources with a finished build (optional).
	LocalBuild string `json:"local_build,omitempty"`
	// Use stage1 of LocalBuild as the master channel toolchain.
	LocalDebugBuild bool `json:"local_debug_build"`
	// Edition of generated cargo projects.
	Edition string `json:"edition"`

	// Reducer command line, e.g. "treereduce-rust -o {{OUT}} -s {{SRC}} -- {{CMD}}" (optional).
	Reduce []string `json:"reduce,omitempty"`
	// YAML file with exception lists and auto-fix lints (optional, built-in tables by default).
	Tables string `json:"tables,omitempty"`

	// Implementation details beyond this point. Filled after parsing.
	ParsedTools    []toolchain.Tool                 `json:"-"`
	Order          flags.Order                      `json:"-"`
	ParsedTimeouts map[toolchain.Tool]time.Duration `json:"-"`
}

type Mutation struct {
	// Number of candidates to generate.
	Candidates int `json:"candidates"`
	// Maximum number of splicer outputs consumed before giving up.
	MaxAttempts int `json:"max_attempts"`
	// Seed of the splicer, 0 means a random seed.
	Seed         int64 `json:"seed"`
	InterSplices int   `json:"inter_splices"`
	// Percent probability of an extra duplication or swap at a graft point.
	Chaos     int `json:"chaos"`
	Deletions int `json:"deletions"`
	// Seeds larger than this number of lines are not used.
	MaxLines int `json:"max_lines"`
}
