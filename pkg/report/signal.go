// Copyright 2026 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package report

import (
	"bytes"
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/ianlancetaylor/demangle"
	"github.com/matthiaskrgr/icemaker-sub000/pkg/runner"
	"github.com/matthiaskrgr/icemaker-sub000/pkg/toolchain"
)

const (
	MaxReasonLen   = 180
	MaxMessageLine = 40
	// Number of lines before the first marker hit included into the message.
	messageContext = 5
)

// ExtractSignal returns a one-line reason and a multi-line message for the marker.
// The reason is the shortest line that contains the marker, the message is a window
// of output lines around the first marker hit. ok is false if the marker is not present.
func ExtractSignal(output []byte, marker string) (reason, message string, ok bool) {
	lines := splitLines(output)
	first := -1
	for i, line := range lines {
		if !strings.Contains(line, marker) {
			continue
		}
		line = strings.TrimSpace(line)
		if first == -1 || len(line) < len(reason) {
			reason = line
		}
		if first == -1 {
			first = i
		}
	}
	if first == -1 {
		return "", "", false
	}
	start := max(0, first-messageContext)
	return truncate(reason, MaxReasonLen), window(lines, start), true
}

// tail returns the last lines of the output.
func tail(output []byte) string {
	lines := splitLines(output)
	return window(lines, max(0, len(lines)-MaxMessageLine))
}

func window(lines []string, start int) string {
	end := min(len(lines), start+MaxMessageLine)
	return demangleSymbols(strings.Join(lines[start:end], "\n"))
}

// splitLines decodes tool output. Invalid UTF-8 is replaced, never rejected.
func splitLines(output []byte) []string {
	text := strings.ToValidUTF8(string(output), "�")
	text = strings.TrimRight(strings.ReplaceAll(text, "\r\n", "\n"), "\n")
	if text == "" {
		return nil
	}
	return strings.Split(text, "\n")
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

var mangledRe = regexp.MustCompile(`_(?:ZN|R)[0-9A-Za-z_$.]+`)

// demangleSymbols replaces mangled symbols in backtraces with readable names.
func demangleSymbols(text string) string {
	return mangledRe.ReplaceAllStringFunc(text, func(sym string) string {
		return demangle.Filter(sym)
	})
}

// describe computes the reason and message of a finding of the given kind.
func describe(tool toolchain.Tool, res *runner.Result, kind Kind) (string, string) {
	output := res.Output()
	signal := func(markers ...[]byte) (string, string, bool) {
		for _, marker := range markers {
			if reason, message, ok := ExtractSignal(output, string(marker)); ok {
				return reason, message, true
			}
		}
		return "", "", false
	}
	switch kind.(type) {
	case Hang:
		return fmt.Sprintf("no result after %v", res.Budget), tail(output)
	case OutOfMemory:
		if loc := allocFailureRe.Find(output); loc != nil {
			if reason, message, ok := signal(loc); ok {
				return reason, message
			}
		}
		return "memory limit exceeded", tail(output)
	case FormatterFailure:
		if res.FormatUnstable {
			return "formatting is not idempotent", window(splitLines([]byte(res.FormatDiff)), 0)
		}
	case UndefinedBehavior:
		if reason, message, ok := signal(ubMarker); ok {
			return reason, message
		}
	case AutoFixFailure:
		if reason, message, ok := signal(fixBanner, []byte("error[E"), []byte("error:")); ok {
			return reason, message
		}
		return "fixed code does not compile", tail(output)
	case TypeCheckDivergence:
		if loc := mismatchesRe.Find(output); loc != nil {
			if reason, message, ok := signal(loc); ok {
				return reason, message
			}
		}
	case Crash, DoubleFault:
	default:
		panic(fmt.Sprintf("unknown kind %T", kind))
	}
	if reason, message, ok := signal(markersFor(tool)...); ok {
		return reason, message
	}
	return kind.String(), tail(output)
}

// firstLine is used to show a finding on a single console line.
func firstLine(s string) string {
	if pos := strings.IndexByte(s, '\n'); pos != -1 {
		return s[:pos]
	}
	return s
}

// Summary is a one-line description of the finding for the console.
func (f *Finding) Summary() string {
	flags := strings.Join(f.Flags, " ")
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "%v: %v %v", f.Kind, f.Tool, f.File)
	if flags != "" {
		fmt.Fprintf(&buf, " %v", flags)
	}
	if f.Reason != "" {
		fmt.Fprintf(&buf, " | %v", firstLine(f.Reason))
	}
	return buf.String()
}
