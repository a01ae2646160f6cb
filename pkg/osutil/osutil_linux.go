// Copyright 2017 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package osutil

import (
	"bytes"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"syscall"

	"golang.org/x/sys/unix"
)

func SetPgroup(cmd *exec.Cmd) {
	if cmd.SysProcAttr == nil {
		cmd.SysProcAttr = new(syscall.SysProcAttr)
	}
	cmd.SysProcAttr.Setpgid = true
	// We want child processes to die together with the harness.
	cmd.SysProcAttr.Pdeathsig = syscall.SIGKILL
}

// KillPgroup kills the whole process group of a started command.
func KillPgroup(cmd *exec.Cmd) {
	if cmd.Process == nil {
		return
	}
	pgid, err := unix.Getpgid(cmd.Process.Pid)
	if err == nil && pgid != unix.Getpgrp() {
		unix.Kill(-pgid, unix.SIGKILL)
	}
	cmd.Process.Kill()
}

// LimitAddressSpace sets RLIMIT_AS of an already running process.
func LimitAddressSpace(pid int, bytes uint64) error {
	lim := &unix.Rlimit{Cur: bytes, Max: bytes}
	return unix.Prlimit(pid, unix.RLIMIT_AS, lim, nil)
}

var pageSize = uint64(os.Getpagesize())

// GroupRSS returns total resident memory of all live processes in the process group pgid.
func GroupRSS(pgid int) (uint64, error) {
	entries, err := os.ReadDir("/proc")
	if err != nil {
		return 0, err
	}
	var total uint64
	for _, ent := range entries {
		if _, err := strconv.Atoi(ent.Name()); err != nil {
			continue
		}
		data, err := os.ReadFile(filepath.Join("/proc", ent.Name(), "stat"))
		if err != nil {
			// The process has exited meanwhile.
			continue
		}
		grp, rss, ok := parseProcStat(data)
		if ok && grp == pgid {
			total += rss * pageSize
		}
	}
	return total, nil
}

// parseProcStat extracts pgrp and rss (in pages) from /proc/pid/stat contents.
// The comm field may contain spaces and parens, so fields are counted from the last ')'.
func parseProcStat(data []byte) (pgrp int, rss uint64, ok bool) {
	pos := bytes.LastIndexByte(data, ')')
	if pos == -1 {
		return 0, 0, false
	}
	fields := bytes.Fields(data[pos+1:])
	// fields[0] is state (field 3), pgrp is field 5, rss is field 24.
	if len(fields) < 22 {
		return 0, 0, false
	}
	grp, err := strconv.Atoi(string(fields[2]))
	if err != nil {
		return 0, 0, false
	}
	pages, err := strconv.ParseUint(string(fields[21]), 10, 64)
	if err != nil {
		return 0, 0, false
	}
	return grp, pages, true
}
