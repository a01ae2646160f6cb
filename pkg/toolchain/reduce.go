// Copyright 2026 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package toolchain

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/matthiaskrgr/icemaker-sub000/pkg/osutil"
)

// Reducer produces a minimal reproducer of a source file for the given reproduction command.
type Reducer interface {
	Reduce(ctx context.Context, source []byte, repro []string) ([]byte, error)
}

// CommandReducer runs an external reducer binary.
// Args may contain placeholders: {{SRC}} (input file), {{OUT}} (output file),
// {{CMD}} (reproduction command as a single shell string).
type CommandReducer struct {
	Bin     string
	Args    []string
	Timeout time.Duration
}

func (r *CommandReducer) Reduce(ctx context.Context, source []byte, repro []string) ([]byte, error) {
	var reduced []byte
	err := osutil.WithTempDir("icemaker-reduce", func(dir string) error {
		src := filepath.Join(dir, "input.rs")
		out := filepath.Join(dir, "output.rs")
		if err := osutil.WriteFile(src, source); err != nil {
			return err
		}
		replacer := strings.NewReplacer(
			"{{SRC}}", src,
			"{{OUT}}", out,
			"{{CMD}}", shellJoin(repro),
		)
		var args []string
		for _, arg := range r.Args {
			args = append(args, replacer.Replace(arg))
		}
		timeout := r.Timeout
		if timeout == 0 {
			timeout = 30 * time.Minute
		}
		if deadline, ok := ctx.Deadline(); ok && time.Until(deadline) < timeout {
			timeout = time.Until(deadline)
		}
		if _, err := osutil.RunCmd(timeout, dir, r.Bin, args...); err != nil {
			return osutil.PrependContext("reducer failed", err)
		}
		data, err := os.ReadFile(out)
		if err != nil {
			return fmt.Errorf("reducer produced no output: %w", err)
		}
		reduced = data
		return nil
	})
	return reduced, err
}

func shellJoin(args []string) string {
	var quoted []string
	for _, arg := range args {
		if arg == "" || strings.ContainsAny(arg, " \t\n'\"\\$`*?;&|<>()") {
			arg = "'" + strings.ReplaceAll(arg, "'", `'\''`) + "'"
		}
		quoted = append(quoted, arg)
	}
	return strings.Join(quoted, " ")
}
