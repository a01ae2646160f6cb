// Copyright 2015 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package mgrconfig

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/matthiaskrgr/icemaker-sub000/pkg/config"
	"github.com/matthiaskrgr/icemaker-sub000/pkg/flags"
	"github.com/matthiaskrgr/icemaker-sub000/pkg/mutate"
	"github.com/matthiaskrgr/icemaker-sub000/pkg/osutil"
	"github.com/matthiaskrgr/icemaker-sub000/pkg/toolchain"
)

func LoadData(data []byte) (*Config, error) {
	cfg := DefaultValues()
	if err := config.LoadData(data, cfg); err != nil {
		return nil, err
	}
	if err := Complete(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func LoadFile(filename string) (*Config, error) {
	cfg := DefaultValues()
	if err := config.LoadFile(filename, cfg); err != nil {
		return nil, err
	}
	if err := Complete(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// DefaultValues returns a config that is complete except for the corpus.
func DefaultValues() *Config {
	return &Config{
		Workdir:      ".",
		Tools:        []string{toolchain.Rustc.String()},
		FlagFamilies: append([]string(nil), flags.DefaultFamilies...),
		FlagsPerSize: flags.DefaultLimits.PerSize,
		FlagsMaxSize: flags.DefaultLimits.MaxSize,
		FlagOrder:    "small",
		MemoryMB:     3 << 10,
		Edition:      "2021",
		Mutation: Mutation{
			Candidates:   1000,
			MaxAttempts:  100000,
			InterSplices: mutate.DefaultConfig.InterSplices,
			Chaos:        mutate.DefaultConfig.Chaos,
			Deletions:    mutate.DefaultConfig.Deletions,
			MaxLines:     mutate.DefaultMaxLines,
		},
	}
}

// Complete validates the config and fills in the derived fields.
func Complete(cfg *Config) error {
	if len(cfg.Corpus) == 0 {
		return fmt.Errorf("config param corpus is empty")
	}
	for i, dir := range cfg.Corpus {
		cfg.Corpus[i] = osutil.Abs(dir)
		if info, err := os.Stat(cfg.Corpus[i]); err != nil || !info.IsDir() {
			return fmt.Errorf("corpus dir %v does not exist", dir)
		}
	}
	if cfg.Workdir == "" {
		return fmt.Errorf("config param workdir is empty")
	}
	cfg.Workdir = osutil.Abs(cfg.Workdir)
	if cfg.Threads < 0 {
		return fmt.Errorf("bad config param threads: %v", cfg.Threads)
	}
	if cfg.HeavyJobs < 0 {
		return fmt.Errorf("bad config param heavy_jobs: %v", cfg.HeavyJobs)
	}
	if err := completeTools(cfg); err != nil {
		return err
	}
	if err := completeFlags(cfg); err != nil {
		return err
	}
	if cfg.MemoryMB == 0 {
		return fmt.Errorf("config param memory_mb is zero")
	}
	if len(cfg.Reduce) != 0 && !strings.Contains(strings.Join(cfg.Reduce, " "), "{{SRC}}") {
		return fmt.Errorf("config param reduce must reference the input file as {{SRC}}")
	}
	if cfg.LocalDebugBuild && cfg.LocalBuild == "" {
		return fmt.Errorf("local_debug_build is set, but local_build is empty")
	}
	if cfg.LocalBuild != "" {
		cfg.LocalBuild = osutil.Abs(cfg.LocalBuild)
	}
	if cfg.Tables != "" {
		cfg.Tables = osutil.Abs(cfg.Tables)
	}
	m := &cfg.Mutation
	if cfg.Fuzz && (m.Candidates <= 0 || m.MaxAttempts < m.Candidates) {
		return fmt.Errorf("bad mutation params: candidates=%v max_attempts=%v", m.Candidates, m.MaxAttempts)
	}
	if m.Chaos < 0 || m.Chaos > 100 {
		return fmt.Errorf("bad mutation param chaos: %v, want [0, 100]", m.Chaos)
	}
	return nil
}

func completeTools(cfg *Config) error {
	if len(cfg.Tools) == 0 {
		return fmt.Errorf("config param tools is empty")
	}
	cfg.ParsedTools = nil
	seen := make(map[toolchain.Tool]bool)
	for _, name := range cfg.Tools {
		tool, err := toolchain.ParseTool(name)
		if err != nil || tool == toolchain.Cargo {
			return fmt.Errorf("bad tool %q in config param tools", name)
		}
		if seen[tool] {
			return fmt.Errorf("duplicate tool %q in config param tools", name)
		}
		seen[tool] = true
		cfg.ParsedTools = append(cfg.ParsedTools, tool)
	}
	cfg.ParsedTimeouts = make(map[toolchain.Tool]time.Duration)
	for name, secs := range cfg.Timeouts {
		tool, err := toolchain.ParseTool(name)
		if err != nil {
			return fmt.Errorf("bad tool %q in config param timeouts", name)
		}
		if secs <= 0 {
			return fmt.Errorf("bad timeout for %v: %v", name, secs)
		}
		cfg.ParsedTimeouts[tool] = time.Duration(secs) * time.Second
	}
	return nil
}

func completeFlags(cfg *Config) error {
	var err error
	if cfg.Order, err = flags.ParseOrder(cfg.FlagOrder); err != nil {
		return err
	}
	if cfg.FlagsPerSize <= 0 || cfg.FlagsMaxSize < 0 {
		return fmt.Errorf("bad flag limits: flags_per_size=%v flags_max_size=%v",
			cfg.FlagsPerSize, cfg.FlagsMaxSize)
	}
	for _, family := range cfg.FlagFamilies {
		if !strings.HasPrefix(family, "-") {
			return fmt.Errorf("flag family %q does not look like a flag prefix", family)
		}
	}
	for name, list := range cfg.FlagLists {
		if len(flags.GroupLists(flags.Lists, flags.Group(name))) == 0 {
			return fmt.Errorf("unknown flag list %q", name)
		}
		if err := flags.Validate(list); err != nil {
			return fmt.Errorf("flag list %v: %w", name, err)
		}
	}
	return nil
}

// DefaultHeavyJobs is the number of concurrent project-based jobs for the number of threads.
func DefaultHeavyJobs(threads int) int {
	return max(1, threads/4)
}

// FlagLimits returns flag subset enumeration caps.
func (cfg *Config) FlagLimits() flags.Limits {
	return flags.Limits{PerSize: cfg.FlagsPerSize, MaxSize: cfg.FlagsMaxSize}
}

// GroupFlagLists returns the flag lists of a group (the tool flag list name or "rustc-incremental").
// Lists given in the config replace all built-in lists of their group.
func (cfg *Config) GroupFlagLists(group string) [][]string {
	lists := flags.Lists
	if len(flags.GroupLists(cfg.FlagLists, group)) != 0 {
		lists = cfg.FlagLists
	}
	var res [][]string
	for _, name := range flags.GroupLists(lists, group) {
		res = append(res, lists[name])
	}
	return res
}

func (cfg *Config) Memory() uint64 {
	return cfg.MemoryMB << 20
}

// MutationConfig returns splicer parameters.
func (cfg *Config) MutationConfig() mutate.Config {
	return mutate.Config{
		Seed:         cfg.Mutation.Seed,
		InterSplices: cfg.Mutation.InterSplices,
		Chaos:        cfg.Mutation.Chaos,
		Deletions:    cfg.Mutation.Deletions,
	}
}
