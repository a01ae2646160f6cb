// Copyright 2026 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

// Package report turns captured tool output into findings:
// it classifies the outcome, extracts a short reason and a message,
// and computes the deduplication key.
package report

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/matthiaskrgr/icemaker-sub000/pkg/hash"
	"github.com/matthiaskrgr/icemaker-sub000/pkg/runner"
	"github.com/matthiaskrgr/icemaker-sub000/pkg/toolchain"
)

// Tier says how much a crash or UB report is worth looking at.
type Tier int

const (
	Interesting Tier = iota
	// Boring is a crash on a file from the crash exception list.
	Boring
	// Uninteresting is UB in a file from the UB exception list.
	Uninteresting
)

func (t Tier) String() string {
	switch t {
	case Interesting:
		return "interesting"
	case Boring:
		return "boring"
	case Uninteresting:
		return "uninteresting"
	}
	panic(fmt.Sprintf("unknown tier %d", int(t)))
}

// Kind is the classified outcome of an invocation. The set of kinds is closed.
type Kind interface {
	// Name is a stable short identifier of the kind (independent of the tier).
	Name() string
	String() string
	isKind()
}

type Crash struct{ Tier Tier }
type UndefinedBehavior struct{ Tier Tier }
type Hang struct{ Seconds int }
type OutOfMemory struct{}
type AutoFixFailure struct{}
type TypeCheckDivergence struct{}
type DoubleFault struct{}
type FormatterFailure struct{}

func (Crash) isKind()               {}
func (UndefinedBehavior) isKind()   {}
func (Hang) isKind()                {}
func (OutOfMemory) isKind()         {}
func (AutoFixFailure) isKind()      {}
func (TypeCheckDivergence) isKind() {}
func (DoubleFault) isKind()         {}
func (FormatterFailure) isKind()    {}

func (Crash) Name() string               { return "crash" }
func (UndefinedBehavior) Name() string   { return "ub" }
func (Hang) Name() string                { return "hang" }
func (OutOfMemory) Name() string         { return "oom" }
func (AutoFixFailure) Name() string      { return "autofix" }
func (TypeCheckDivergence) Name() string { return "divergence" }
func (DoubleFault) Name() string         { return "double-fault" }
func (FormatterFailure) Name() string    { return "formatter" }

func (k Crash) String() string {
	if k.Tier == Interesting {
		return "ICE"
	}
	return "ICE (" + k.Tier.String() + ")"
}

func (k UndefinedBehavior) String() string {
	if k.Tier == Interesting {
		return "UB"
	}
	return "UB (" + k.Tier.String() + ")"
}

func (k Hang) String() string              { return fmt.Sprintf("hang (%vs)", k.Seconds) }
func (OutOfMemory) String() string         { return "OOM" }
func (AutoFixFailure) String() string      { return "auto-fix failure" }
func (TypeCheckDivergence) String() string { return "type-check divergence" }
func (DoubleFault) String() string         { return "double fault" }
func (FormatterFailure) String() string    { return "formatter failure" }

// TierOf returns the tier of crash and UB kinds, all other kinds are always interesting.
func TierOf(k Kind) Tier {
	switch k := k.(type) {
	case Crash:
		return k.Tier
	case UndefinedBehavior:
		return k.Tier
	case Hang, OutOfMemory, AutoFixFailure, TypeCheckDivergence, DoubleFault, FormatterFailure:
		return Interesting
	default:
		panic(fmt.Sprintf("unknown kind %T", k))
	}
}

// SameKind reports whether two outcomes are the same bug class (tier and hang duration are ignored).
func SameKind(a, b Kind) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Name() == b.Name()
}

// Finding is a single reported problem. Findings are not modified after creation.
type Finding struct {
	Channel         toolchain.Channel
	RequiresFeature bool
	File            string
	Flags           []string
	Reason          string
	Message         string
	Tool            toolchain.Tool
	Kind            Kind
	CommandLine     string
}

// NewFinding creates a finding for a classified result. src is the contents of file.
// The channel is Master until regression channel detection says otherwise.
func NewFinding(tool toolchain.Tool, file string, flags []string, src []byte,
	res *runner.Result, kind Kind) *Finding {
	reason, message := describe(tool, res, kind)
	return &Finding{
		Channel:         toolchain.Master,
		RequiresFeature: RequiresFeature(src),
		File:            file,
		Flags:           append([]string(nil), flags...),
		Reason:          reason,
		Message:         message,
		Tool:            tool,
		Kind:            kind,
		CommandLine:     res.CommandLine,
	}
}

// WithChannel returns a copy of the finding attributed to channel.
func (f *Finding) WithChannel(channel toolchain.Channel) *Finding {
	f1 := *f
	f1.Channel = channel
	return &f1
}

// WithFlags returns a copy of the finding with a different (e.g. minimized) flag set.
func (f *Finding) WithFlags(flags []string) *Finding {
	f1 := *f
	f1.Flags = append([]string(nil), flags...)
	return &f1
}

// Key identifies the finding for deduplication.
// Source positions and addresses do not affect the key.
func (f *Finding) Key() string {
	return hash.String([]byte(f.Tool.String()), []byte(f.File), []byte(NormalizeReason(f.Reason)))
}

func (f *Finding) String() string {
	return fmt.Sprintf("%v %v %v %v", f.Kind, f.Tool, f.File, strings.Join(f.Flags, " "))
}

func RequiresFeature(src []byte) bool {
	return strings.Contains(string(src), "#![feature")
}

var normalizers = []struct {
	re   *regexp.Regexp
	repl string
}{
	{regexp.MustCompile(`0x[0-9a-fA-F]+`), "ADDR"},
	{regexp.MustCompile(`:[0-9]+:[0-9]+`), ":LINE:COL"},
	{regexp.MustCompile(`icemaker-job[0-9]+`), "icemaker-job"},
}

func NormalizeReason(reason string) string {
	for _, n := range normalizers {
		reason = n.re.ReplaceAllString(reason, n.repl)
	}
	return strings.TrimSpace(reason)
}
