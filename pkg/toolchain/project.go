// Copyright 2026 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package toolchain

import (
	"bytes"
	"fmt"
	"path/filepath"
	"regexp"

	"github.com/BurntSushi/toml"
	"github.com/matthiaskrgr/icemaker-sub000/pkg/osutil"
)

// Materializer wraps a snippet into a minimal buildable project.
type Materializer interface {
	Materialize(dir string, source []byte) (string, error)
}

// CargoProject writes a single-crate cargo project with the snippet as its only source file.
type CargoProject struct {
	Edition string
}

type cargoManifest struct {
	Package      cargoPackage      `toml:"package"`
	Dependencies map[string]string `toml:"dependencies"`
}

type cargoPackage struct {
	Name    string `toml:"name"`
	Version string `toml:"version"`
	Edition string `toml:"edition"`
}

var mainRe = regexp.MustCompile(`(?m)\bfn\s+main\s*\(`)

// HasMain reports whether the source defines a program entry point.
func HasMain(source []byte) bool {
	return mainRe.Match(source)
}

func (c *CargoProject) Materialize(dir string, source []byte) (string, error) {
	edition := c.Edition
	if edition == "" {
		edition = "2021"
	}
	manifest := cargoManifest{
		Package: cargoPackage{
			Name:    "icemaker_snippet",
			Version: "0.1.0",
			Edition: edition,
		},
		Dependencies: map[string]string{},
	}
	buf := new(bytes.Buffer)
	if err := toml.NewEncoder(buf).Encode(manifest); err != nil {
		return "", fmt.Errorf("failed to encode Cargo.toml: %w", err)
	}
	project := filepath.Join(dir, "project")
	if err := osutil.MkdirAll(filepath.Join(project, "src")); err != nil {
		return "", err
	}
	if err := osutil.WriteFile(filepath.Join(project, "Cargo.toml"), buf.Bytes()); err != nil {
		return "", err
	}
	srcFile := "main.rs"
	if !HasMain(source) {
		srcFile = "lib.rs"
	}
	if err := osutil.WriteFile(filepath.Join(project, "src", srcFile), source); err != nil {
		return "", err
	}
	return project, nil
}
