// Copyright 2026 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package report

import (
	"strings"
	"testing"
	"time"

	"github.com/matthiaskrgr/icemaker-sub000/pkg/runner"
	"github.com/matthiaskrgr/icemaker-sub000/pkg/toolchain"
	"github.com/stretchr/testify/assert"
)

type testExceptions struct {
	crash, ub []string
}

func (e testExceptions) BoringCrash(file string) bool { return contains(e.crash, file) }
func (e testExceptions) BoringUB(file string) bool    { return contains(e.ub, file) }

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

const iceOutput = `error: internal compiler error: compiler/rustc_middle/src/ty/layout.rs:123:45: unexpected type
thread 'rustc' panicked at compiler/rustc_middle/src/util/bug.rs:34:26:
Box<dyn Any>
stack backtrace:
   0: _ZN4core9panicking5panic17h0123456789abcdefE
note: we would appreciate a bug report
query stack during panic:
#0 [layout_of] computing layout of ` + "`Foo`" + `
end of query stack
`

func TestClassify(t *testing.T) {
	exceptions := testExceptions{
		crash: []string{"known/ice.rs"},
		ub:    []string{"known/ub.rs"},
	}
	tests := []struct {
		name string
		tool toolchain.Tool
		file string
		res  runner.Result
		kind Kind
	}{
		{
			name: "clean",
			tool: toolchain.Rustc,
			res:  runner.Result{Stderr: []byte("error[E0425]: cannot find value `x` in this scope\n"), ExitStatus: 1},
		},
		{
			name: "ice",
			tool: toolchain.Rustc,
			res:  runner.Result{Stderr: []byte(iceOutput), ExitStatus: 101},
			kind: Crash{Tier: Interesting},
		},
		{
			name: "boring-ice",
			tool: toolchain.Rustc,
			file: "known/ice.rs",
			res:  runner.Result{Stderr: []byte(iceOutput), ExitStatus: 101},
			kind: Crash{Tier: Boring},
		},
		{
			name: "hang-wins-over-crash-text",
			tool: toolchain.Rustc,
			res: runner.Result{Stderr: []byte(iceOutput), Killed: runner.KillTimeout,
				Budget: 90 * time.Second, ExitStatus: -1},
			kind: Hang{Seconds: 90},
		},
		{
			name: "oom-wins-over-crash-text",
			tool: toolchain.Rustc,
			res:  runner.Result{Stderr: []byte(iceOutput), Killed: runner.KillMemory, ExitStatus: -1},
			kind: OutOfMemory{},
		},
		{
			name: "oom-banner",
			tool: toolchain.Rustc,
			res:  runner.Result{Stderr: []byte("memory allocation of 34359738368 bytes failed\n"), ExitStatus: -1},
			kind: OutOfMemory{},
		},
		{
			name: "miri-program-alloc-failure",
			tool: toolchain.Miri,
			res:  runner.Result{Stderr: []byte("memory allocation of 34359738368 bytes failed\n"), ExitStatus: 1},
		},
		{
			name: "miri-killed-for-memory",
			tool: toolchain.Miri,
			res: runner.Result{Stderr: []byte("memory allocation of 34359738368 bytes failed\n"),
				Killed: runner.KillMemory, ExitStatus: -1},
			kind: OutOfMemory{},
		},
		{
			name: "double-fault",
			tool: toolchain.Rustc,
			res: runner.Result{Stderr: []byte(iceOutput +
				"thread 'rustc' panicked at compiler/rustc_errors/src/lib.rs:1:1:\n"), ExitStatus: 101},
			kind: DoubleFault{},
		},
		{
			name: "panic-while-panicking",
			tool: toolchain.Clippy,
			res: runner.Result{Stderr: []byte("thread 'rustc' panicked at src/lib.rs:1:1:\n" +
				"thread panicked while panicking. aborting.\n"), ExitStatus: 134},
			kind: DoubleFault{},
		},
		{
			name: "clippy-panic",
			tool: toolchain.Clippy,
			res:  runner.Result{Stderr: []byte("thread 'rustc' panicked at clippy_lints/src/foo.rs:10:5:\n"), ExitStatus: 101},
			kind: Crash{Tier: Interesting},
		},
		{
			name: "rustc-plain-panic-text",
			tool: toolchain.Rustc,
			res:  runner.Result{Stderr: []byte("note: panicked at is a funny string\n"), ExitStatus: 1},
		},
		{
			name: "ub",
			tool: toolchain.Miri,
			res: runner.Result{Stderr: []byte("error: Undefined Behavior: dereferencing pointer failed: null pointer\n"),
				ExitStatus: 1},
			kind: UndefinedBehavior{Tier: Interesting},
		},
		{
			name: "uninteresting-ub",
			tool: toolchain.Miri,
			file: "known/ub.rs",
			res:  runner.Result{Stderr: []byte("error: Undefined Behavior: data race\n"), ExitStatus: 1},
			kind: UndefinedBehavior{Tier: Uninteresting},
		},
		{
			name: "miri-program-panic",
			tool: toolchain.Miri,
			res: runner.Result{Stderr: []byte("thread 'main' panicked at src/main.rs:2:5:\nexplicit panic\n" +
				"note: run with `RUST_BACKTRACE=1` environment variable to display a backtrace\n"), ExitStatus: 101},
		},
		{
			name: "ub-text-from-compiler",
			tool: toolchain.Rustc,
			res:  runner.Result{Stdout: []byte("Undefined Behavior: not interpreted\n")},
		},
		{
			name: "fix-recheck",
			tool: toolchain.ClippyFix,
			res:  runner.Result{FixRecheckFailed: true, Stderr: []byte("error[E0308]: mismatched types\n")},
			kind: AutoFixFailure{},
		},
		{
			name: "fix-banner",
			tool: toolchain.ClippyFix,
			res: runner.Result{Stderr: []byte("warning: failed to automatically apply fixes suggested by rustc\n" +
				"after fixes were automatically applied the compiler reported errors within these files:\n")},
			kind: AutoFixFailure{},
		},
		{
			name: "fix-ice-wins",
			tool: toolchain.ClippyFix,
			res:  runner.Result{FixRecheckFailed: true, Stderr: []byte(iceOutput)},
			kind: Crash{Tier: Interesting},
		},
		{
			name: "formatter-unstable",
			tool: toolchain.Rustfmt,
			res:  runner.Result{FormatUnstable: true, FormatDiff: "+// pass\n"},
			kind: FormatterFailure{},
		},
		{
			name: "formatter-internal",
			tool: toolchain.Rustfmt,
			res:  runner.Result{Stderr: []byte("error[internal]: left behind trailing whitespace\n"), ExitStatus: 1},
			kind: FormatterFailure{},
		},
		{
			name: "formatter-parse-error",
			tool: toolchain.Rustfmt,
			res:  runner.Result{Stderr: []byte("error: expected one of `!` or `::`, found `<eof>`\n"), ExitStatus: 1},
		},
		{
			name: "divergence",
			tool: toolchain.Analyzer,
			res: runner.Result{ReferenceAccepted: true,
				Stdout: []byte("  exprs: 10, ??ty: 0 (0%), ?ty: 0 (0%), !ty: 2\n")},
			kind: TypeCheckDivergence{},
		},
		{
			name: "divergence-rejected-by-compiler",
			tool: toolchain.Analyzer,
			res:  runner.Result{Stdout: []byte("type mismatches: 3\n")},
		},
		{
			name: "analyzer-no-mismatches",
			tool: toolchain.Analyzer,
			res:  runner.Result{ReferenceAccepted: true, Stdout: []byte("!ty: 0\n")},
		},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			kind := Classify(test.tool, test.file, &test.res, exceptions)
			assert.Equal(t, test.kind, kind)
		})
	}
}

func TestClassifyNoExceptions(t *testing.T) {
	res := &runner.Result{Stderr: []byte(iceOutput)}
	assert.Equal(t, Crash{Tier: Interesting}, Classify(toolchain.Rustc, "a.rs", res, nil))
}

func TestExtractSignal(t *testing.T) {
	reason, message, ok := ExtractSignal([]byte(iceOutput), "internal compiler error")
	assert.True(t, ok)
	assert.Equal(t, "error: internal compiler error: compiler/rustc_middle/src/ty/layout.rs:123:45: unexpected type",
		reason)
	assert.True(t, strings.HasPrefix(message, "error: internal compiler error"))
	assert.Contains(t, message, "core::panicking::panic")
	assert.NotContains(t, message, "_ZN4core")

	_, _, ok = ExtractSignal([]byte(iceOutput), "Undefined Behavior:")
	assert.False(t, ok)
}

func TestExtractSignalShortest(t *testing.T) {
	output := "aaaa MARK long line\nMARK short\nMARK middle line\n"
	reason, _, ok := ExtractSignal([]byte(output), "MARK")
	assert.True(t, ok)
	assert.Equal(t, "MARK short", reason)
}

func TestExtractSignalLimits(t *testing.T) {
	var lines []string
	for i := 0; i < 100; i++ {
		lines = append(lines, "filler")
	}
	lines[50] = "MARK " + strings.Repeat("é", 200)
	reason, message, ok := ExtractSignal([]byte(strings.Join(lines, "\n")), "MARK")
	assert.True(t, ok)
	assert.LessOrEqual(t, len(reason), MaxReasonLen)
	assert.True(t, strings.HasPrefix(reason, "MARK é"))
	assert.Len(t, strings.Split(message, "\n"), MaxMessageLine)
	assert.Equal(t, "filler", strings.Split(message, "\n")[0])
}

func TestExtractSignalInvalidUTF8(t *testing.T) {
	reason, _, ok := ExtractSignal([]byte("MARK \xff\xfe bytes\n"), "MARK")
	assert.True(t, ok)
	assert.Equal(t, "MARK � bytes", reason)
}

func TestNewFinding(t *testing.T) {
	res := &runner.Result{Stderr: []byte(iceOutput), CommandLine: "rustc a.rs -Zmir-opt-level=4"}
	src := []byte("#![feature(generic_const_exprs)]\nfn main() {}\n")
	flags := []string{"-Zmir-opt-level=4"}
	f := NewFinding(toolchain.Rustc, "a.rs", flags, src, res, Crash{Tier: Interesting})
	flags[0] = "modified"
	assert.Equal(t, toolchain.Master, f.Channel)
	assert.True(t, f.RequiresFeature)
	assert.Equal(t, []string{"-Zmir-opt-level=4"}, f.Flags)
	assert.Contains(t, f.Reason, "internal compiler error")
	assert.Equal(t, "rustc a.rs -Zmir-opt-level=4", f.CommandLine)

	f2 := f.WithChannel(toolchain.Beta)
	assert.Equal(t, toolchain.Master, f.Channel)
	assert.Equal(t, toolchain.Beta, f2.Channel)
	assert.Equal(t, f.Key(), f2.Key())
}

func TestNewFindingReasons(t *testing.T) {
	hang := NewFinding(toolchain.Miri, "a.rs", nil, nil,
		&runner.Result{Killed: runner.KillTimeout, Budget: 20 * time.Second}, Hang{Seconds: 20})
	assert.Equal(t, "no result after 20s", hang.Reason)

	fmtFail := NewFinding(toolchain.Rustfmt, "a.rs", nil, nil,
		&runner.Result{FormatUnstable: true, FormatDiff: "-a\n+b\n"}, FormatterFailure{})
	assert.Equal(t, "formatting is not idempotent", fmtFail.Reason)
	assert.Equal(t, "-a\n+b", fmtFail.Message)

	oom := NewFinding(toolchain.Rustc, "a.rs", nil, nil,
		&runner.Result{Stderr: []byte("memory allocation of 1024 bytes failed\n")}, OutOfMemory{})
	assert.Equal(t, "memory allocation of 1024 bytes failed", oom.Reason)

	div := NewFinding(toolchain.Analyzer, "a.rs", nil, nil,
		&runner.Result{Stdout: []byte("Database loaded\n  exprs: 10, !ty: 2\n")}, TypeCheckDivergence{})
	assert.Equal(t, "exprs: 10, !ty: 2", div.Reason)
}

func TestKeyNormalization(t *testing.T) {
	mk := func(tool toolchain.Tool, file, reason string) *Finding {
		return &Finding{Tool: tool, File: file, Reason: reason, Kind: Crash{}}
	}
	a := mk(toolchain.Rustc, "a.rs", "error: internal compiler error: src/lib.rs:12:5: bad 0x7ffd1234")
	b := mk(toolchain.Rustc, "a.rs", "error: internal compiler error: src/lib.rs:99:1: bad 0xdeadbeef")
	assert.Equal(t, a.Key(), b.Key())
	assert.NotEqual(t, a.Key(), mk(toolchain.Clippy, "a.rs", a.Reason).Key())
	assert.NotEqual(t, a.Key(), mk(toolchain.Rustc, "b.rs", a.Reason).Key())
	assert.NotEqual(t, a.Key(), mk(toolchain.Rustc, "a.rs", "other").Key())
}

func TestKinds(t *testing.T) {
	kinds := []Kind{Crash{}, UndefinedBehavior{}, Hang{}, OutOfMemory{}, AutoFixFailure{},
		TypeCheckDivergence{}, DoubleFault{}, FormatterFailure{}}
	names := map[string]bool{}
	for _, k := range kinds {
		assert.False(t, names[k.Name()], k.Name())
		names[k.Name()] = true
		assert.Equal(t, Interesting, TierOf(k))
		assert.True(t, SameKind(k, k))
	}
	assert.Equal(t, Boring, TierOf(Crash{Tier: Boring}))
	assert.True(t, SameKind(Crash{Tier: Boring}, Crash{}))
	assert.False(t, SameKind(Crash{}, DoubleFault{}))
	assert.False(t, SameKind(Crash{}, nil))
	assert.Equal(t, "hang (90s)", Hang{Seconds: 90}.String())
	assert.Equal(t, "ICE (boring)", Crash{Tier: Boring}.String())
}
