// Copyright 2026 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package toolchain

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"

	"github.com/matthiaskrgr/icemaker-sub000/pkg/osutil"
)

// Resolver finds the executable of a tool for the given channel.
type Resolver interface {
	Path(tool Tool, channel Channel) (string, error)
}

// Rustup resolves tools inside rustup-managed toolchains.
// The master channel is either a local (debug) build of the compiler, or the "master" rustup toolchain.
type Rustup struct {
	// Home is RUSTUP_HOME, defaults to ~/.rustup.
	Home string
	// Host triple, defaults to the triple of the current machine.
	Host string
	// LocalBuild is a checkout of the compiler sources with a finished build.
	LocalBuild string
	// UseLocalDebugBuild selects stage1 of LocalBuild for the master channel.
	UseLocalDebugBuild bool
}

func (r *Rustup) Path(tool Tool, channel Channel) (string, error) {
	dir, err := r.binDir(channel)
	if err != nil {
		return "", err
	}
	path := filepath.Join(dir, tool.Binary())
	if !osutil.IsExist(path) {
		return "", fmt.Errorf("%v for %v channel is not found at %v", tool, channel, path)
	}
	return path, nil
}

func (r *Rustup) binDir(channel Channel) (string, error) {
	if channel == Master && r.UseLocalDebugBuild {
		if r.LocalBuild == "" {
			return "", fmt.Errorf("local debug build is requested, but no local build dir is configured")
		}
		return filepath.Join(r.LocalBuild, "build", r.host(), "stage1", "bin"), nil
	}
	home := r.Home
	if home == "" {
		home = os.Getenv("RUSTUP_HOME")
	}
	if home == "" {
		userHome, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to find rustup home: %w", err)
		}
		home = filepath.Join(userHome, ".rustup")
	}
	return filepath.Join(home, "toolchains", channel.String()+"-"+r.host(), "bin"), nil
}

func (r *Rustup) host() string {
	if r.Host != "" {
		return r.Host
	}
	arch := map[string]string{
		"amd64": "x86_64",
		"arm64": "aarch64",
		"386":   "i686",
	}[runtime.GOARCH]
	if arch == "" {
		arch = runtime.GOARCH
	}
	switch runtime.GOOS {
	case "darwin":
		return arch + "-apple-darwin"
	case "windows":
		return arch + "-pc-windows-msvc"
	}
	return arch + "-unknown-linux-gnu"
}

// PathResolver looks up tools in $PATH and ignores the channel.
// It is useful for testing and for machines without rustup.
type PathResolver struct{}

func (PathResolver) Path(tool Tool, channel Channel) (string, error) {
	path, err := exec.LookPath(tool.Binary())
	if err != nil {
		return "", fmt.Errorf("%v is not found in PATH: %w", tool, err)
	}
	return path, nil
}

// StaticResolver maps tools to fixed paths regardless of the channel.
type StaticResolver map[Tool]string

func (r StaticResolver) Path(tool Tool, channel Channel) (string, error) {
	path, ok := r[tool]
	if !ok {
		return "", fmt.Errorf("no path for %v", tool)
	}
	return path, nil
}
