// Copyright 2026 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package osutil

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseProcStat(t *testing.T) {
	// Comm contains spaces and a paren to make sure we count from the last ')'.
	data := []byte("4242 (rustc (x) y) S 1 4240 4240 0 -1 4194560 5 0 0 0 0 0 0 0 20 0 1 0 " +
		"100 123456 777 18446744073709551615 1 1 0 0 0 0 0 0 0 0 0 0 17 3 0 0 0 0 0\n")
	pgrp, rss, ok := parseProcStat(data)
	assert.True(t, ok)
	assert.Equal(t, 4240, pgrp)
	assert.Equal(t, uint64(777), rss)

	_, _, ok = parseProcStat([]byte("garbage"))
	assert.False(t, ok)
}

func TestGroupRSSSelf(t *testing.T) {
	rss, err := GroupRSS(os.Getpid())
	assert.NoError(t, err)
	// The test binary is not a process group leader in general, so we only check it does not fail.
	_ = rss
}
