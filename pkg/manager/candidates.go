// Copyright 2026 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package manager

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/matthiaskrgr/icemaker-sub000/pkg/log"
	"github.com/matthiaskrgr/icemaker-sub000/pkg/mgrconfig"
	"github.com/matthiaskrgr/icemaker-sub000/pkg/mutate"
	"github.com/matthiaskrgr/icemaker-sub000/pkg/osutil"
)

// WriteCandidates splices the seed files into new inputs and writes them into dir.
// It returns the paths of the written candidates.
func WriteCandidates(ctx context.Context, cfg *mgrconfig.Config, seeds []string, dir string) ([]string, error) {
	trees := mutate.ParseSeeds(ctx, seeds, mutate.Limits{
		MaxLines:     cfg.Mutation.MaxLines,
		ParseTimeout: mutate.DefaultParseTimeout,
	})
	if len(trees) == 0 {
		return nil, fmt.Errorf("none of %v seed files could be used for mutation", len(seeds))
	}
	mcfg := cfg.MutationConfig()
	if mcfg.Seed == 0 {
		mcfg.Seed = time.Now().UnixNano()
	}
	log.Logf(0, "generating up to %v candidates from %v seeds (seed %v)",
		cfg.Mutation.Candidates, len(trees), mcfg.Seed)
	mut := mutate.New(trees, mcfg)
	var files []string
	for src := range mut.Candidates(cfg.Mutation.Candidates, cfg.Mutation.MaxAttempts) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		file := filepath.Join(dir, fmt.Sprintf("candidate_%06d.rs", len(files)))
		if err := osutil.WriteFile(file, src); err != nil {
			return nil, err
		}
		files = append(files, file)
	}
	log.Logf(0, "generated %v candidates", len(files))
	return files, nil
}
