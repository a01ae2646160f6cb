// Copyright 2026 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package report

import (
	"bytes"
	"regexp"
	"strconv"

	"github.com/matthiaskrgr/icemaker-sub000/pkg/runner"
	"github.com/matthiaskrgr/icemaker-sub000/pkg/toolchain"
)

// Exceptions lists files with known, already reported problems.
type Exceptions interface {
	BoringCrash(file string) bool
	BoringUB(file string) bool
}

var (
	// Markers are ordered by how well the matching line describes the fault.
	faultMarkers = [][]byte{
		[]byte("internal compiler error"),
		[]byte("query stack during panic"),
		[]byte("RUST_BACKTRACE="),
	}
	panicMarker     = []byte("panicked at")
	formatterMarker = []byte("error[internal]")
	nestedMarkers   = [][]byte{
		[]byte("panicked while processing panic"),
		[]byte("thread panicked while panicking"),
	}
	ubMarker       = []byte("Undefined Behavior:")
	fixBanner      = []byte("after fixes were automatically applied the compiler reported errors")
	allocFailureRe = regexp.MustCompile(`memory allocation of [0-9]+ bytes failed`)
	mismatchesRe   = regexp.MustCompile(`(?:!ty|type mismatches):\s*([0-9]+)`)
)

// Classify decides what kind of problem the result shows, nil means none.
// The first matching rule wins: hang, memory exhaustion, formatter failure,
// crash (or double fault), UB, auto-fix failure, type-check divergence.
func Classify(tool toolchain.Tool, file string, res *runner.Result, exceptions Exceptions) Kind {
	output := res.Output()
	switch {
	case res.Killed == runner.KillTimeout:
		return Hang{Seconds: int(res.Budget.Seconds())}
	case res.Killed == runner.KillMemory:
		return OutOfMemory{}
	case !tool.Interpreter() && allocFailureRe.Match(output):
		// The interpreted program prints the same banner when its own allocation fails.
		return OutOfMemory{}
	}
	if tool == toolchain.Rustfmt {
		if res.FormatUnstable || faultMarker(tool, output) != nil {
			return FormatterFailure{}
		}
		return nil
	}
	if marker := faultMarker(tool, output); marker != nil {
		if nestedFault(output, marker) {
			return DoubleFault{}
		}
		if exceptions != nil && exceptions.BoringCrash(file) {
			return Crash{Tier: Boring}
		}
		return Crash{Tier: Interesting}
	}
	if tool == toolchain.Miri && bytes.Contains(output, ubMarker) {
		if exceptions != nil && exceptions.BoringUB(file) {
			return UndefinedBehavior{Tier: Uninteresting}
		}
		return UndefinedBehavior{Tier: Interesting}
	}
	if tool == toolchain.ClippyFix && (res.FixRecheckFailed || bytes.Contains(output, fixBanner)) {
		return AutoFixFailure{}
	}
	if tool == toolchain.Analyzer && res.ReferenceAccepted && typeMismatches(output) != 0 {
		return TypeCheckDivergence{}
	}
	return nil
}

// faultMarker returns the most descriptive fault marker present in the output.
// A panic of the interpreted program is not a fault of the interpreter,
// so neither bare panics nor the backtrace hint count for miri.
func faultMarker(tool toolchain.Tool, output []byte) []byte {
	for _, marker := range markersFor(tool) {
		if bytes.Contains(output, marker) {
			return marker
		}
	}
	return nil
}

func markersFor(tool toolchain.Tool) [][]byte {
	switch tool {
	case toolchain.Rustc:
		return faultMarkers
	case toolchain.Miri:
		return faultMarkers[:2]
	case toolchain.Rustfmt:
		return append([][]byte{formatterMarker, panicMarker}, faultMarkers...)
	}
	return append([][]byte{faultMarkers[0], panicMarker}, faultMarkers[1:]...)
}

func nestedFault(output, marker []byte) bool {
	for _, nested := range nestedMarkers {
		if bytes.Contains(output, nested) {
			return true
		}
	}
	pos := bytes.Index(output, marker)
	return bytes.Count(output[pos:], panicMarker) >= 2
}

func typeMismatches(output []byte) int {
	total := 0
	for _, match := range mismatchesRe.FindAllSubmatch(output, -1) {
		n, _ := strconv.Atoi(string(match[1]))
		total += n
	}
	return total
}
