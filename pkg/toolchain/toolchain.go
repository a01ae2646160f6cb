// Copyright 2026 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

// Package toolchain describes the tools under test and the external collaborators
// that locate them and prepare inputs for them.
package toolchain

import (
	"fmt"
	"time"
)

type Tool int

const (
	Rustc Tool = iota
	Clippy
	ClippyFix
	Rustfmt
	Analyzer
	Miri
	// Cargo is not tested itself, but drives project-based tools.
	Cargo
)

var toolNames = map[Tool]string{
	Rustc:     "rustc",
	Clippy:    "clippy",
	ClippyFix: "clippy-fix",
	Rustfmt:   "rustfmt",
	Analyzer:  "rust-analyzer",
	Miri:      "miri",
	Cargo:     "cargo",
}

func (t Tool) String() string {
	if name, ok := toolNames[t]; ok {
		return name
	}
	return fmt.Sprintf("tool(%d)", int(t))
}

func ParseTool(name string) (Tool, error) {
	for t, n := range toolNames {
		if n == name {
			return t, nil
		}
	}
	return 0, fmt.Errorf("unknown tool %q", name)
}

// Binary is the executable name of the tool inside a toolchain bin dir.
func (t Tool) Binary() string {
	switch t {
	case Clippy:
		return "clippy-driver"
	case ClippyFix, Miri, Cargo:
		return "cargo"
	}
	return t.String()
}

// Interpreter reports whether the tool executes the program rather than compiling it.
func (t Tool) Interpreter() bool {
	return t == Miri
}

// NeedsProject reports whether the tool operates on a cargo project rather than on a single file.
func (t Tool) NeedsProject() bool {
	switch t {
	case ClippyFix, Miri, Analyzer:
		return true
	}
	return false
}

// FlagList is the name of the built-in flag list used for the tool.
func (t Tool) FlagList() string {
	if t == Analyzer {
		return "analyzer"
	}
	return t.String()
}

const (
	InterpreterTimeout = 20 * time.Second
	CompilerTimeout    = 90 * time.Second
)

// DefaultTimeout is the wall-clock budget of a single invocation.
// Interpretation is much slower, so it gets a tight budget to keep throughput high.
func (t Tool) DefaultTimeout() time.Duration {
	if t.Interpreter() {
		return InterpreterTimeout
	}
	return CompilerTimeout
}

// Channel is a toolchain release channel. The order is from the oldest to the newest code.
type Channel int

const (
	Stable Channel = iota
	Beta
	Nightly
	Master
)

var channelNames = []string{"stable", "beta", "nightly", "master"}

func (c Channel) String() string {
	if int(c) < len(channelNames) {
		return channelNames[c]
	}
	return fmt.Sprintf("channel(%d)", int(c))
}

func ParseChannel(name string) (Channel, error) {
	for i, n := range channelNames {
		if n == name {
			return Channel(i), nil
		}
	}
	return 0, fmt.Errorf("unknown channel %q", name)
}

// Channels lists all channels from the oldest to the newest.
func Channels() []Channel {
	return []Channel{Stable, Beta, Nightly, Master}
}
