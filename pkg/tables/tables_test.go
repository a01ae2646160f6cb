// Copyright 2026 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package tables

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	tbl := Default()
	assert.NotEmpty(t, tbl.CrashExceptions)
	assert.NotEmpty(t, tbl.UBExceptions)
	assert.Contains(t, tbl.FixLints, "-Wclippy::pedantic")
}

func TestMatch(t *testing.T) {
	tbl := &Tables{
		CrashExceptions: []string{"tests/crashes/100041.rs"},
		UBExceptions:    []string{"tests/fail/validity/invalid_bool.rs"},
	}
	assert.True(t, tbl.BoringCrash("/home/user/rust/tests/crashes/100041.rs"))
	assert.True(t, tbl.BoringCrash("tests/crashes/100041.rs"))
	assert.False(t, tbl.BoringCrash("/home/user/rust/tests/crashes/1100041.rs"))
	assert.False(t, tbl.BoringUB("/home/user/rust/tests/crashes/100041.rs"))
	assert.True(t, tbl.BoringUB("/src/miri/tests/fail/validity/invalid_bool.rs"))
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	good := filepath.Join(dir, "good.yaml")
	require.NoError(t, os.WriteFile(good, []byte("crash_exceptions: [a.rs]\nfix_lints: [\"-Wclippy::perf\"]\n"), 0644))
	tbl, err := Load(good)
	require.NoError(t, err)
	assert.Equal(t, []string{"a.rs"}, tbl.CrashExceptions)
	assert.Empty(t, tbl.UBExceptions)

	for name, data := range map[string]string{
		"unknown.yaml": "crash_exception: [a.rs]\n",
		"lint.yaml":    "fix_lints: [\"clippy::perf\"]\n",
	} {
		file := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(file, []byte(data), 0644))
		_, err := Load(file)
		assert.Error(t, err, name)
	}
	_, err = Load(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)
}
