// Copyright 2026 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

// Package runner executes a single tool invocation on a single input under hard
// wall-clock and memory limits and captures everything it printed.
package runner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/matthiaskrgr/icemaker-sub000/pkg/log"
	"github.com/matthiaskrgr/icemaker-sub000/pkg/osutil"
	"github.com/matthiaskrgr/icemaker-sub000/pkg/toolchain"
	dmp "github.com/sergi/go-diff/diffmatchpatch"
)

type Mode int

const (
	ModeNormal Mode = iota
	// ModeIncremental compiles the same file twice with a shared incremental cache.
	ModeIncremental
	// ModePaired compiles two different files one after another with a shared incremental cache.
	ModePaired
)

func (m Mode) String() string {
	switch m {
	case ModeIncremental:
		return "incremental"
	case ModePaired:
		return "paired"
	}
	return "normal"
}

// Invocation describes what to run.
type Invocation struct {
	Tool    toolchain.Tool
	File    string
	Flags   []string
	Mode    Mode
	Partner string // the second file in ModePaired
	Channel toolchain.Channel
}

// ErrAbandoned is returned in ModePaired when one of the files does not compile on its own.
// This is not a failure, the pair is just a bad seed.
var ErrAbandoned = errors.New("paired input does not compile standalone")

const (
	DefaultMemory       = 3 << 30
	DefaultCheckTimeout = 10 * time.Second
)

type Runner struct {
	Resolver     toolchain.Resolver
	Materializer toolchain.Materializer
	// Memory ceiling for every invocation (0 means DefaultMemory).
	Memory uint64
	// Timeouts overrides per-tool wall-clock budgets.
	Timeouts map[toolchain.Tool]time.Duration
	// CheckTimeout bounds cheap standalone compilation checks.
	CheckTimeout time.Duration
	// Heavy bounds the number of concurrently running project-based jobs (optional).
	Heavy *osutil.Semaphore
	// FixLints are appended to every auto-fix invocation.
	FixLints []string
}

func (r *Runner) Timeout(tool toolchain.Tool) time.Duration {
	if t, ok := r.Timeouts[tool]; ok && t != 0 {
		return t
	}
	return tool.DefaultTimeout()
}

func (r *Runner) limits(tool toolchain.Tool) Limits {
	mem := r.Memory
	if mem == 0 {
		mem = DefaultMemory
	}
	return Limits{Memory: mem, Timeout: r.Timeout(tool)}
}

// Run executes the invocation in a private temporary directory that is removed afterwards.
// The input file is never modified.
func (r *Runner) Run(ctx context.Context, inv Invocation) (*Result, error) {
	bin, err := r.Resolver.Path(inv.Tool, inv.Channel)
	if err != nil {
		return nil, err
	}
	src, err := os.ReadFile(inv.File)
	if err != nil {
		return nil, fmt.Errorf("failed to read input: %w", err)
	}
	if inv.Tool.NeedsProject() && r.Heavy != nil {
		if err := r.Heavy.WaitContext(ctx); err != nil {
			return nil, err
		}
		defer r.Heavy.Signal()
	}
	var res *Result
	err = osutil.WithTempDir("icemaker-job", func(dir string) error {
		var err error
		switch {
		case inv.Mode == ModePaired:
			res, err = r.runPaired(ctx, dir, bin, inv)
		case inv.Mode == ModeIncremental:
			res, err = r.runIncremental(ctx, dir, bin, inv, src)
		case inv.Tool == toolchain.Rustfmt:
			res, err = r.runFormat(ctx, dir, bin, inv, src)
		case inv.Tool == toolchain.ClippyFix:
			res, err = r.runFix(ctx, dir, bin, inv, src)
		case inv.Tool == toolchain.Miri:
			res, err = r.runMiri(ctx, dir, bin, inv, src)
		case inv.Tool == toolchain.Analyzer:
			res, err = r.runAnalyzer(ctx, dir, bin, inv, src)
		default:
			res, err = r.runFile(ctx, dir, bin, inv, src)
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

func compileArgs(file string, src []byte, flags []string, outDir string) []string {
	args := []string{file}
	if !toolchain.HasMain(src) {
		// Otherwise the missing main error masks everything else.
		args = append(args, "--crate-type=lib")
	}
	args = append(args, flags...)
	return append(args, "--out-dir", outDir)
}

func (r *Runner) runFile(ctx context.Context, dir, bin string, inv Invocation, src []byte) (*Result, error) {
	cmd := exec.Command(bin, compileArgs(inv.File, src, inv.Flags, dir)...)
	cmd.Dir = dir
	return RunBounded(ctx, cmd, r.limits(inv.Tool))
}

func (r *Runner) runIncremental(ctx context.Context, dir, bin string, inv Invocation, src []byte) (*Result, error) {
	incr := filepath.Join(dir, "incremental")
	flags := append([]string{"-Cincremental=" + incr}, inv.Flags...)
	var res *Result
	for i := 0; i < 2; i++ {
		cmd := exec.Command(bin, compileArgs(inv.File, src, flags, dir)...)
		cmd.Dir = dir
		var err error
		if res, err = RunBounded(ctx, cmd, r.limits(inv.Tool)); err != nil {
			return nil, err
		}
	}
	// Only the second run exercises the cache.
	return res, nil
}

// CheckCompiles runs a cheap metadata-only compilation of the file.
func (r *Runner) CheckCompiles(ctx context.Context, bin, dir, file string, src []byte) (bool, error) {
	timeout := r.CheckTimeout
	if timeout == 0 {
		timeout = DefaultCheckTimeout
	}
	args := compileArgs(file, src, []string{"--emit=metadata"}, dir)
	cmd := exec.Command(bin, args...)
	cmd.Dir = dir
	res, err := RunBounded(ctx, cmd, Limits{Memory: r.limits(toolchain.Rustc).Memory, Timeout: timeout})
	if err != nil {
		return false, err
	}
	return res.Success(), nil
}

func (r *Runner) runPaired(ctx context.Context, dir, bin string, inv Invocation) (*Result, error) {
	var sources [][]byte
	for _, file := range []string{inv.File, inv.Partner} {
		src, err := os.ReadFile(file)
		if err != nil {
			return nil, fmt.Errorf("failed to read input: %w", err)
		}
		ok, err := r.CheckCompiles(ctx, bin, dir, file, src)
		if err != nil {
			return nil, err
		}
		if !ok {
			log.Logf(2, "abandoning pair %v/%v: %v does not compile", inv.File, inv.Partner, file)
			return nil, ErrAbandoned
		}
		sources = append(sources, src)
	}
	// Both files are compiled as the same crate, so that the second build reuses the cache of the first.
	main := filepath.Join(dir, "main.rs")
	incr := filepath.Join(dir, "incremental")
	flags := append([]string{"-Cincremental=" + incr}, inv.Flags...)
	var res *Result
	for _, src := range sources {
		if err := osutil.WriteFile(main, src); err != nil {
			return nil, err
		}
		cmd := exec.Command(bin, compileArgs(main, src, flags, dir)...)
		cmd.Dir = dir
		var err error
		if res, err = RunBounded(ctx, cmd, r.limits(inv.Tool)); err != nil {
			return nil, err
		}
	}
	return res, nil
}

func (r *Runner) runFormat(ctx context.Context, dir, bin string, inv Invocation, src []byte) (*Result, error) {
	pass := func(input []byte) (*Result, error) {
		args := append([]string{"--emit", "stdout"}, inv.Flags...)
		cmd := exec.Command(bin, args...)
		cmd.Dir = dir
		cmd.Stdin = bytes.NewReader(input)
		return RunBounded(ctx, cmd, r.limits(inv.Tool))
	}
	first, err := pass(src)
	if err != nil || !first.Success() {
		return first, err
	}
	second, err := pass(first.Stdout)
	if err != nil || !second.Success() {
		return second, err
	}
	if !bytes.Equal(first.Stdout, second.Stdout) {
		second.FormatUnstable = true
		second.FormatDiff = formatDiff(string(first.Stdout), string(second.Stdout))
	}
	return second, nil
}

func formatDiff(before, after string) string {
	differ := dmp.New()
	a, b, lines := differ.DiffLinesToChars(before, after)
	diffs := differ.DiffCharsToLines(differ.DiffMain(a, b, false), lines)
	buf := new(strings.Builder)
	for _, d := range diffs {
		prefix := " "
		switch d.Type {
		case dmp.DiffInsert:
			prefix = "+"
		case dmp.DiffDelete:
			prefix = "-"
		case dmp.DiffEqual:
			continue
		}
		for _, line := range strings.SplitAfter(d.Text, "\n") {
			if line != "" {
				buf.WriteString(prefix + line)
			}
		}
	}
	return buf.String()
}

// cargoCommand runs a cargo subcommand of the toolchain that contains bin,
// so that cargo picks clippy/miri from the same toolchain.
func cargoCommand(bin, project, targetDir string, args ...string) *exec.Cmd {
	cmd := exec.Command(bin, args...)
	cmd.Dir = project
	cmd.Env = append(os.Environ(),
		"PATH="+filepath.Dir(bin)+string(os.PathListSeparator)+os.Getenv("PATH"),
		"CARGO_TARGET_DIR="+targetDir,
		"CARGO_INCREMENTAL=0",
	)
	return cmd
}

func (r *Runner) materialize(dir string, src []byte) (string, error) {
	if r.Materializer == nil {
		return "", fmt.Errorf("no project materializer configured")
	}
	project, err := r.Materializer.Materialize(dir, src)
	if err != nil {
		return "", fmt.Errorf("failed to materialize project: %w", err)
	}
	return project, nil
}

func (r *Runner) runFix(ctx context.Context, dir, bin string, inv Invocation, src []byte) (*Result, error) {
	project, err := r.materialize(dir, src)
	if err != nil {
		return nil, err
	}
	target := filepath.Join(dir, "target")
	args := []string{"clippy", "--fix", "--allow-no-vcs", "--allow-dirty", "--"}
	args = append(args, inv.Flags...)
	args = append(args, r.FixLints...)
	res, err := RunBounded(ctx, cargoCommand(bin, project, target, args...), r.limits(inv.Tool))
	if err != nil || !res.Success() {
		return res, err
	}
	recheck, err := RunBounded(ctx, cargoCommand(bin, project, target, "check"), r.limits(toolchain.Rustc))
	if err != nil {
		return nil, err
	}
	if !recheck.Success() {
		res.FixRecheckFailed = true
		res.Stderr = append(res.Stderr, recheck.Stderr...)
	}
	return res, nil
}

func (r *Runner) runMiri(ctx context.Context, dir, bin string, inv Invocation, src []byte) (*Result, error) {
	project, err := r.materialize(dir, src)
	if err != nil {
		return nil, err
	}
	sub := "run"
	if !toolchain.HasMain(src) {
		sub = "test"
	}
	cmd := cargoCommand(bin, project, filepath.Join(dir, "target"), "miri", sub)
	cmd.Env = append(cmd.Env, "MIRIFLAGS="+strings.Join(inv.Flags, " "))
	return RunBounded(ctx, cmd, r.limits(inv.Tool))
}

func (r *Runner) runAnalyzer(ctx context.Context, dir, bin string, inv Invocation, src []byte) (*Result, error) {
	rustc, err := r.Resolver.Path(toolchain.Rustc, inv.Channel)
	if err != nil {
		return nil, err
	}
	accepted, err := r.CheckCompiles(ctx, rustc, dir, inv.File, src)
	if err != nil {
		return nil, err
	}
	project, err := r.materialize(dir, src)
	if err != nil {
		return nil, err
	}
	args := append([]string{"analysis-stats"}, inv.Flags...)
	args = append(args, project)
	cmd := exec.Command(bin, args...)
	cmd.Dir = project
	res, err := RunBounded(ctx, cmd, r.limits(inv.Tool))
	if err != nil {
		return nil, err
	}
	res.ReferenceAccepted = accepted
	return res, nil
}
