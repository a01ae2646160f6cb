// Copyright 2017 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

//go:build !linux

package osutil

import (
	"errors"
	"os/exec"
)

func SetPgroup(cmd *exec.Cmd) {
}

func KillPgroup(cmd *exec.Cmd) {
	if cmd.Process != nil {
		cmd.Process.Kill()
	}
}

func LimitAddressSpace(pid int, bytes uint64) error {
	return nil
}

var errNoProcfs = errors.New("memory accounting is not supported on this OS")

func GroupRSS(pgid int) (uint64, error) {
	return 0, errNoProcfs
}
