// Copyright 2026 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package runner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"sync/atomic"
	"time"

	"github.com/matthiaskrgr/icemaker-sub000/pkg/log"
	"github.com/matthiaskrgr/icemaker-sub000/pkg/osutil"
)

// KillReason says why the supervisor terminated the process.
type KillReason int32

const (
	KillNone KillReason = iota
	KillTimeout
	KillMemory
)

func (k KillReason) String() string {
	switch k {
	case KillTimeout:
		return "timeout"
	case KillMemory:
		return "memory"
	}
	return "none"
}

type Limits struct {
	// Memory is the ceiling on resident memory of the process and all its descendants, 0 means no limit.
	Memory  uint64
	Timeout time.Duration
}

// Result is the captured outcome of a single invocation.
type Result struct {
	ExitStatus  int
	Stdout      []byte
	Stderr      []byte
	WallClock   time.Duration
	CommandLine string
	Args        []string
	Killed      KillReason
	Budget      time.Duration

	// FixRecheckFailed is set in the auto-fix mode if the fixed code does not compile.
	FixRecheckFailed bool
	// FormatUnstable is set if a second formatter pass changed the already formatted code.
	FormatUnstable bool
	FormatDiff     string
	// ReferenceAccepted is set in the analyzer mode if the compiler accepts the file.
	ReferenceAccepted bool
}

// Output returns stdout and stderr concatenated.
func (res *Result) Output() []byte {
	out := make([]byte, 0, len(res.Stdout)+len(res.Stderr)+1)
	out = append(out, res.Stdout...)
	if len(res.Stdout) != 0 && res.Stdout[len(res.Stdout)-1] != '\n' {
		out = append(out, '\n')
	}
	return append(out, res.Stderr...)
}

func (res *Result) Success() bool {
	return res.Killed == KillNone && res.ExitStatus == 0
}

const memoryPollPeriod = 100 * time.Millisecond

// Replaced in tests.
var groupRSS = osutil.GroupRSS

// RunBounded runs cmd under a wall-clock and memory supervisor.
// A non-nil error is returned only if the process could not be started or ctx was canceled,
// termination by the supervisor is reported in Result.Killed.
func RunBounded(ctx context.Context, cmd *exec.Cmd, limits Limits) (*Result, error) {
	stdout, stderr := new(bytes.Buffer), new(bytes.Buffer)
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	res := &Result{
		CommandLine: commandLine(cmd),
		Args:        cmd.Args,
		Budget:      limits.Timeout,
	}
	osutil.SetPgroup(cmd)
	start := time.Now()
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start %v: %w", res.CommandLine, err)
	}
	pid := cmd.Process.Pid
	if limits.Memory != 0 {
		// Address space limit is only a backstop for allocations that happen between polls.
		if err := osutil.LimitAddressSpace(pid, 2*limits.Memory); err != nil {
			log.Logf(2, "failed to set rlimit for %v: %v", pid, err)
		}
	}
	var reason atomic.Int32
	kill := func(why KillReason) {
		if reason.CompareAndSwap(int32(KillNone), int32(why)) {
			osutil.KillPgroup(cmd)
		}
	}
	canceled := false
	done := make(chan struct{})
	supervised := make(chan struct{})
	go func() {
		defer close(supervised)
		var timeout <-chan time.Time
		if limits.Timeout != 0 {
			timer := time.NewTimer(limits.Timeout)
			defer timer.Stop()
			timeout = timer.C
		}
		var poll <-chan time.Time
		if limits.Memory != 0 {
			ticker := time.NewTicker(memoryPollPeriod)
			defer ticker.Stop()
			poll = ticker.C
		}
		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				canceled = true
				osutil.KillPgroup(cmd)
				return
			case <-timeout:
				kill(KillTimeout)
				return
			case <-poll:
				rss, err := groupRSS(pid)
				if err != nil {
					log.Logf(2, "failed to read memory usage of %v: %v", pid, err)
					poll = nil
					continue
				}
				if rss > limits.Memory {
					kill(KillMemory)
					return
				}
			}
		}
	}()
	err := cmd.Wait()
	close(done)
	<-supervised
	res.WallClock = time.Since(start)
	res.Stdout = stdout.Bytes()
	res.Stderr = stderr.Bytes()
	res.Killed = KillReason(reason.Load())
	res.ExitStatus = cmd.ProcessState.ExitCode()
	if canceled && res.Killed == KillNone {
		return nil, ctx.Err()
	}
	var exitErr *exec.ExitError
	if err != nil && res.Killed == KillNone && !errors.As(err, &exitErr) {
		return nil, fmt.Errorf("failed to wait for %v: %w", res.CommandLine, err)
	}
	return res, nil
}

func commandLine(cmd *exec.Cmd) string {
	var env []string
	for _, kv := range cmd.Env {
		for _, name := range reproEnv {
			if strings.HasPrefix(kv, name+"=") {
				env = append(env, kv)
			}
		}
	}
	return strings.TrimSpace(strings.Join(env, " ") + " " + strings.Join(cmd.Args, " "))
}

// reproEnv are environment variables that are needed to reproduce an invocation.
var reproEnv = []string{"MIRIFLAGS", "RUSTFLAGS", "CARGO_INCREMENTAL"}
