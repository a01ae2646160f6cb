// Copyright 2022 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package testutil

import (
	"math/rand"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/matthiaskrgr/icemaker-sub000/pkg/osutil"
)

func IterCount() int {
	iters := 1000
	if testing.Short() {
		iters /= 10
	}
	return iters
}

func RandSource(t *testing.T) rand.Source {
	seed := time.Now().UnixNano()
	if fixed := os.Getenv("ICE_SEED"); fixed != "" {
		seed, _ = strconv.ParseInt(fixed, 0, 64)
	}
	if os.Getenv("CI") != "" {
		seed = 0 // required for reproducible CI runs
	}
	t.Logf("seed=%v", seed)
	return rand.NewSource(seed)
}

// WriteFiles creates files with the given contents in dir and returns their full paths
// in the order of names.
func WriteFiles(t *testing.T, dir string, files map[string]string, names ...string) []string {
	var paths []string
	for _, name := range names {
		path := filepath.Join(dir, name)
		if err := osutil.MkdirAll(filepath.Dir(path)); err != nil {
			t.Fatal(err)
		}
		if err := osutil.WriteFile(path, []byte(files[name])); err != nil {
			t.Fatal(err)
		}
		paths = append(paths, path)
	}
	return paths
}

// Writer forwards output to the test log.
type Writer struct {
	testing.TB
}

func (w *Writer) Write(data []byte) (int, error) {
	w.TB.Logf("%s", data)
	return len(data), nil
}
