// Copyright 2026 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

// Package tables holds static data that tunes the harness: files with already known
// crashes and UB, and lint groups enabled in the auto-fix mode.
package tables

import (
	"bytes"
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

type Tables struct {
	// CrashExceptions are files that are known to crash the compiler.
	CrashExceptions []string `yaml:"crash_exceptions"`
	// UBExceptions are files that are known to have UB.
	UBExceptions []string `yaml:"ub_exceptions"`
	// FixLints are appended to auto-fix invocations.
	FixLints []string `yaml:"fix_lints"`
}

//go:embed default.yaml
var defaultData []byte

// Default returns the built-in tables.
func Default() *Tables {
	t, err := Parse(defaultData)
	if err != nil {
		panic(fmt.Sprintf("bad built-in tables: %v", err))
	}
	return t
}

func Load(file string) (*Tables, error) {
	data, err := os.ReadFile(file)
	if err != nil {
		return nil, fmt.Errorf("failed to read tables: %w", err)
	}
	t, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%v: %w", file, err)
	}
	return t, nil
}

func Parse(data []byte) (*Tables, error) {
	t := new(Tables)
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(t); err != nil {
		return nil, fmt.Errorf("failed to parse tables: %w", err)
	}
	for _, lint := range t.FixLints {
		if !strings.HasPrefix(lint, "-") {
			return nil, fmt.Errorf("fix lint %q does not look like a flag", lint)
		}
	}
	return t, nil
}

func (t *Tables) BoringCrash(file string) bool {
	return matchFile(t.CrashExceptions, file)
}

func (t *Tables) BoringUB(file string) bool {
	return matchFile(t.UBExceptions, file)
}

// matchFile matches relative exception entries against absolute corpus paths by whole path components.
func matchFile(list []string, file string) bool {
	file = filepath.ToSlash(file)
	for _, entry := range list {
		if file == entry || strings.HasSuffix(file, "/"+entry) {
			return true
		}
	}
	return false
}
