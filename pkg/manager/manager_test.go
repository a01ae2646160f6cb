// Copyright 2026 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package manager

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/matthiaskrgr/icemaker-sub000/pkg/console"
	"github.com/matthiaskrgr/icemaker-sub000/pkg/mgrconfig"
	"github.com/matthiaskrgr/icemaker-sub000/pkg/report"
	"github.com/matthiaskrgr/icemaker-sub000/pkg/runner"
	"github.com/matthiaskrgr/icemaker-sub000/pkg/testutil"
	"github.com/matthiaskrgr/icemaker-sub000/pkg/toolchain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeExecutor struct {
	mu   sync.Mutex
	invs []runner.Invocation
	run  func(inv runner.Invocation) (*runner.Result, error)
}

func (e *fakeExecutor) Run(ctx context.Context, inv runner.Invocation) (*runner.Result, error) {
	e.mu.Lock()
	e.invs = append(e.invs, inv)
	e.mu.Unlock()
	return e.run(inv)
}

func (e *fakeExecutor) invocations() []runner.Invocation {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]runner.Invocation(nil), e.invs...)
}

type fakeSink struct {
	mu      sync.Mutex
	saved   []*report.Finding
	sources [][]byte
	logs    [][]byte
	red     [][]byte
}

func (s *fakeSink) Save(f *report.Finding, source, output, reduced []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saved = append(s.saved, f)
	s.sources = append(s.sources, source)
	s.logs = append(s.logs, output)
	s.red = append(s.red, reduced)
	return nil
}

type fakeReducer struct {
	mu     sync.Mutex
	repros [][]string
}

func (r *fakeReducer) Reduce(ctx context.Context, source []byte, repro []string) ([]byte, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.repros = append(r.repros, repro)
	return []byte("fn main() {}"), nil
}

func ice() *runner.Result {
	return &runner.Result{
		ExitStatus: 101,
		Stderr: []byte("error: internal compiler error: broken MIR in DefId(0:3)\n\n" +
			"thread 'rustc' panicked at compiler/rustc_middle/src/util/bug.rs:35:26\n"),
		WallClock:   time.Millisecond,
		CommandLine: "rustc file.rs",
	}
}

func success() *runner.Result {
	return &runner.Result{WallClock: time.Millisecond}
}

func testConfig(t *testing.T, corpus, params string) *mgrconfig.Config {
	data := fmt.Sprintf(`{"corpus": [%q], "workdir": %q %v}`, corpus, t.TempDir(), params)
	cfg, err := mgrconfig.LoadData([]byte(data))
	require.NoError(t, err)
	return cfg
}

func TestCollectFiles(t *testing.T) {
	dir := t.TempDir()
	testutil.WriteFiles(t, dir, map[string]string{
		"b.rs":         "",
		"sub/a.rs":     "",
		"sub/notes.md": "",
	}, "b.rs", "sub/a.rs", "sub/notes.md")
	files, err := CollectFiles([]string{dir})
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(dir, "b.rs"), filepath.Join(dir, "sub", "a.rs")}, files)

	_, err = CollectFiles([]string{filepath.Join(dir, "missing")})
	assert.Error(t, err)
}

func TestJobs(t *testing.T) {
	dir := t.TempDir()
	cfg := testConfig(t, dir, `,
		"tools": ["rustc", "miri"],
		"flag_lists": {"rustc": ["-Za", "-Zb"], "miri": ["-Zmiri-m"]},
		"incremental": true,
		"incremental_fuzz": true`)
	mgr := New(cfg, []string{"a.rs", "b.rs"}, nil, nil)
	jobs := mgr.Jobs()
	count := func(tool toolchain.Tool, mode runner.Mode) int {
		n := 0
		for _, job := range jobs {
			if job.Tool == tool && job.Mode == mode {
				n++
			}
		}
		return n
	}
	assert.Len(t, jobs, 16)
	assert.Equal(t, 8, count(toolchain.Rustc, runner.ModeNormal))
	assert.Equal(t, 4, count(toolchain.Miri, runner.ModeNormal))
	assert.Equal(t, 2, count(toolchain.Rustc, runner.ModeIncremental))
	assert.Equal(t, 2, count(toolchain.Rustc, runner.ModePaired))
	// Small flag sets go first.
	assert.Equal(t, Job{File: "a.rs", Tool: toolchain.Rustc, Flags: []string{}, Mode: runner.ModeNormal}, jobs[0])
	assert.Equal(t, []string{"-Za", "-Zb"}, jobs[3].Flags)
	for _, job := range jobs {
		if job.Mode != runner.ModeNormal {
			assert.Empty(t, job.Flags)
		}
	}

	// A single file can't be paired.
	mgr = New(cfg, []string{"a.rs"}, nil, nil)
	assert.Len(t, mgr.Jobs(), 8)
}

func TestJobsDefaultLists(t *testing.T) {
	dir := t.TempDir()
	files := []string{"a.rs", "b.rs", "c.rs"}
	mgr := New(testConfig(t, dir, ""), files, nil, nil)
	jobs := mgr.Jobs()
	// Built-in rustc lists are expanded one by one: 32 (mir) + 32 (codegen) + 8 (generics)
	// + 4 (misc) subsets, with the empty subset shared.
	assert.Len(t, jobs, 73*len(files))
	seen := make(map[string]bool)
	for _, job := range jobs[:73] {
		key := strings.Join(job.Flags, " ")
		assert.False(t, seen[key], "duplicate flags %q", key)
		seen[key] = true
	}

	cfg := testConfig(t, dir, `,
		"tools": ["rustc", "clippy", "clippy-fix", "rustfmt", "rust-analyzer", "miri"],
		"incremental": true`)
	mgr = New(cfg, files, nil, nil)
	assert.LessOrEqual(t, len(mgr.Jobs()), 200*len(files))
}

func TestRunSkipsSolved(t *testing.T) {
	dir := t.TempDir()
	files := testutil.WriteFiles(t, dir, map[string]string{
		"a.rs": "fn main() {}\n",
		"b.rs": "fn main() {}\n",
	}, "a.rs", "b.rs")
	cfg := testConfig(t, dir, `, "threads": 1, "flag_lists": {"rustc": ["-Za", "-Zb"]}, "incremental": true`)
	exec := &fakeExecutor{run: func(inv runner.Invocation) (*runner.Result, error) {
		if inv.File == files[0] {
			return ice(), nil
		}
		return success(), nil
	}}
	out := new(bytes.Buffer)
	skippedBefore := statSkipped.Val()
	mgr := New(cfg, files, exec, console.NewReporter(out))
	jobs := mgr.Jobs()
	require.Len(t, jobs, 10)
	require.NoError(t, mgr.Run(context.Background(), jobs))
	runs := make(map[string]int)
	for _, inv := range exec.invocations() {
		runs[fmt.Sprintf("%v %v", filepath.Base(inv.File), inv.Mode)]++
	}
	assert.Equal(t, map[string]int{
		"a.rs normal":      1,
		"b.rs normal":      4,
		"a.rs incremental": 1,
		"b.rs incremental": 1,
	}, runs)
	assert.Equal(t, 3, statSkipped.Val()-skippedBefore)
	assert.Contains(t, out.String(), "[10/10 100%]")
}

func TestRunFindings(t *testing.T) {
	dir := t.TempDir()
	files := testutil.WriteFiles(t, dir, map[string]string{
		"a.rs": "#![feature(never_type)]\nfn main() {}\n",
		"b.rs": "fn main() {}\n",
	}, "a.rs", "b.rs")
	cfg := testConfig(t, dir, `,
		"flag_lists": {"rustc": ["-Zother", "-Zboom", "-Zthird"]},
		"minimize_flags": true,
		"detect_channel": true`)
	exec := &fakeExecutor{run: func(inv runner.Invocation) (*runner.Result, error) {
		if inv.File == files[0] && slices.Contains(inv.Flags, "-Zboom") && inv.Channel >= toolchain.Nightly {
			return ice(), nil
		}
		return success(), nil
	}}
	out := new(bytes.Buffer)
	sink := new(fakeSink)
	reducer := new(fakeReducer)
	mgr := New(cfg, files, exec, console.NewReporter(out))
	mgr.Sink = sink
	mgr.Reducer = reducer
	findingsBefore := statFindings.Val()

	jobs := mgr.Jobs()
	require.Len(t, jobs, 16)
	require.NoError(t, mgr.Run(context.Background(), jobs))

	assert.Equal(t, 1, statFindings.Val()-findingsBefore)
	require.Len(t, sink.saved, 1)
	f := sink.saved[0]
	assert.Equal(t, files[0], f.File)
	assert.Equal(t, []string{"-Zboom"}, f.Flags)
	assert.Equal(t, toolchain.Nightly, f.Channel)
	assert.True(t, f.RequiresFeature)
	assert.Equal(t, report.Crash{Tier: report.Interesting}, f.Kind)
	assert.Equal(t, "internal compiler error: broken MIR in DefId(0:3)", strings.TrimPrefix(f.Reason, "error: "))
	assert.Equal(t, "#![feature(never_type)]\nfn main() {}\n", string(sink.sources[0]))
	assert.Contains(t, string(sink.logs[0]), "broken MIR")
	assert.Equal(t, "fn main() {}", string(sink.red[0]))
	assert.Equal(t, [][]string{{"rustc", "-Zboom"}}, reducer.repros)
	assert.Equal(t, []*report.Finding{f}, mgr.Findings())

	assert.Contains(t, out.String(), "ICE")
	assert.Contains(t, out.String(), "[16/16 100%]")
	var channels []toolchain.Channel
	for _, inv := range exec.invocations() {
		if inv.Channel != toolchain.Master {
			channels = append(channels, inv.Channel)
		}
	}
	assert.Equal(t, []toolchain.Channel{toolchain.Stable, toolchain.Beta, toolchain.Nightly}, channels)
}

func TestRunChannelDetectionDefault(t *testing.T) {
	dir := t.TempDir()
	files := testutil.WriteFiles(t, dir, map[string]string{"a.rs": "fn main() {}\n"}, "a.rs")
	cfg := testConfig(t, dir, `, "flag_lists": {"rustc": []}, "detect_channel": true`)
	exec := &fakeExecutor{run: func(inv runner.Invocation) (*runner.Result, error) {
		switch inv.Channel {
		case toolchain.Master:
			return ice(), nil
		case toolchain.Beta:
			return nil, errors.New("beta is not installed")
		}
		return success(), nil
	}}
	sink := new(fakeSink)
	mgr := New(cfg, files, exec, console.NewReporter(new(bytes.Buffer)))
	mgr.Sink = sink
	require.NoError(t, mgr.Run(context.Background(), mgr.Jobs()))
	require.Len(t, sink.saved, 1)
	assert.Equal(t, toolchain.Master, sink.saved[0].Channel)
	assert.Len(t, exec.invocations(), 4)
}

func TestRunJobErrors(t *testing.T) {
	dir := t.TempDir()
	files := testutil.WriteFiles(t, dir, map[string]string{
		"a.rs": "fn main() {}\n",
		"b.rs": "fn main() {}\n",
	}, "a.rs", "b.rs")
	cfg := testConfig(t, dir, `, "flag_lists": {"rustc": []}`)
	exec := &fakeExecutor{run: func(inv runner.Invocation) (*runner.Result, error) {
		if inv.File == files[0] {
			return nil, errors.New("fork/exec rustc: no such file or directory")
		}
		return ice(), nil
	}}
	errorsBefore := statErrors.Val()
	sink := new(fakeSink)
	mgr := New(cfg, files, exec, console.NewReporter(new(bytes.Buffer)))
	mgr.Sink = sink
	require.NoError(t, mgr.Run(context.Background(), mgr.Jobs()))
	assert.Equal(t, 1, statErrors.Val()-errorsBefore)
	require.Len(t, sink.saved, 1)
	assert.Equal(t, files[1], sink.saved[0].File)
}

func TestRunPairedAbandoned(t *testing.T) {
	dir := t.TempDir()
	var names []string
	contents := map[string]string{}
	for i := 0; i < 4; i++ {
		name := fmt.Sprintf("f%v.rs", i)
		names = append(names, name)
		contents[name] = "fn main() {}\n"
	}
	files := testutil.WriteFiles(t, dir, contents, names...)
	cfg := testConfig(t, dir, `, "tools": ["rustfmt"], "flag_lists": {"rustfmt": []}, "incremental_fuzz": true`)
	exec := &fakeExecutor{run: func(inv runner.Invocation) (*runner.Result, error) {
		if inv.Mode == runner.ModePaired {
			return nil, runner.ErrAbandoned
		}
		return success(), nil
	}}
	abandonedBefore, errorsBefore := statAbandoned.Val(), statErrors.Val()
	mgr := New(cfg, files, exec, console.NewReporter(new(bytes.Buffer)))
	require.NoError(t, mgr.Run(context.Background(), mgr.Jobs()))
	assert.Equal(t, 4, statAbandoned.Val()-abandonedBefore)
	assert.Equal(t, 0, statErrors.Val()-errorsBefore)
	paired := 0
	for _, inv := range exec.invocations() {
		if inv.Mode == runner.ModePaired {
			paired++
			assert.NotEqual(t, inv.File, inv.Partner)
		}
	}
	assert.LessOrEqual(t, paired, 4*pairedAttempts)
}

func TestRunPairedFinding(t *testing.T) {
	dir := t.TempDir()
	var names []string
	contents := map[string]string{}
	for i := 0; i < 10; i++ {
		name := fmt.Sprintf("f%v.rs", i)
		names = append(names, name)
		contents[name] = "fn main() {}\n"
	}
	files := testutil.WriteFiles(t, dir, contents, names...)
	cfg := testConfig(t, dir, `, "tools": ["rustfmt"], "flag_lists": {"rustfmt": []}, "incremental_fuzz": true`)
	exec := &fakeExecutor{run: func(inv runner.Invocation) (*runner.Result, error) {
		if inv.Mode == runner.ModePaired {
			return ice(), nil
		}
		return success(), nil
	}}
	sink := new(fakeSink)
	mgr := New(cfg, files, exec, console.NewReporter(new(bytes.Buffer)))
	mgr.Sink = sink
	mgr.Seed = 1
	require.NoError(t, mgr.Run(context.Background(), mgr.Jobs()))
	require.NotEmpty(t, sink.saved)
	for _, f := range sink.saved {
		assert.Equal(t, toolchain.Rustc, f.Tool)
		assert.True(t, strings.HasPrefix(f.Message, "compiled after "), f.Message)
		assert.NotContains(t, f.Message, "after "+f.File+" ")
	}
}

func TestRunCanceled(t *testing.T) {
	dir := t.TempDir()
	files := testutil.WriteFiles(t, dir, map[string]string{"a.rs": "fn main() {}\n"}, "a.rs")
	cfg := testConfig(t, dir, `, "threads": 1, "flag_lists": {"rustc": ["-Za", "-Zb"]}`)
	ctx, cancel := context.WithCancel(context.Background())
	exec := &fakeExecutor{run: func(inv runner.Invocation) (*runner.Result, error) {
		cancel()
		return nil, context.Canceled
	}}
	errorsBefore := statErrors.Val()
	mgr := New(cfg, files, exec, console.NewReporter(new(bytes.Buffer)))
	jobs := mgr.Jobs()
	require.Greater(t, len(jobs), 1)
	err := mgr.Run(ctx, jobs)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Less(t, len(exec.invocations()), len(jobs))
	assert.Equal(t, 0, statErrors.Val()-errorsBefore)
}

func TestWriteCandidates(t *testing.T) {
	dir := t.TempDir()
	seeds := testutil.WriteFiles(t, dir, map[string]string{
		"a.rs": "fn main() { let v = vec![1, 2]; println!(\"{:?}\", v); }\n",
		"b.rs": "struct S { a: u8 }\nimpl S { fn get(&self) -> u8 { self.a } }\n",
	}, "a.rs", "b.rs")
	cfg := testConfig(t, dir, `, "fuzz": true, "mutation": {"candidates": 5, "max_attempts": 1000, "seed": 7}`)
	out := t.TempDir()
	files, err := WriteCandidates(context.Background(), cfg, seeds, out)
	require.NoError(t, err)
	require.NotEmpty(t, files)
	assert.LessOrEqual(t, len(files), 5)
	assert.Equal(t, filepath.Join(out, "candidate_000000.rs"), files[0])

	_, err = WriteCandidates(context.Background(), cfg, []string{filepath.Join(dir, "missing.rs")}, out)
	assert.Error(t, err)
}
