// Copyright 2026 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package mutate

import (
	"bytes"
	"iter"

	"github.com/matthiaskrgr/icemaker-sub000/pkg/hash"
)

// DefaultDenylist are fragments of internal-only code. Crashes in code that uses
// compiler internals are not bugs, so such candidates are never produced.
var DefaultDenylist = []string{
	"#![no_core]",
	"#![no_std]",
	"#[rustc_",
	"rustc_attrs",
	"lang_items",
	"#[lang",
	"intrinsics",
	"core_intrinsics",
	"break rust",
	"staged_api",
	"custom_mir",
	"platform_intrinsics",
}

type Mutator struct {
	Seeds    []*Tree
	Splicer  Splicer
	Config   Config
	Denylist []string
}

func New(seeds []*Tree, cfg Config) *Mutator {
	return &Mutator{
		Seeds:    seeds,
		Splicer:  TreeSplicer{},
		Config:   cfg,
		Denylist: DefaultDenylist,
	}
}

// Candidates yields at most limit new distinct candidates that do not contain denylisted fragments.
// At most maxAttempts candidates are pulled from the splicer, so a splicer that keeps
// producing duplicates or denylisted code can't stall the caller.
func (m *Mutator) Candidates(limit, maxAttempts int) iter.Seq[[]byte] {
	return func(yield func([]byte) bool) {
		if limit <= 0 {
			return
		}
		seen := make(map[hash.Sig]bool)
		for _, seed := range m.Seeds {
			seen[hash.Hash(seed.Render())] = true
		}
		attempts, produced := 0, 0
		for candidate := range m.Splicer.Splice(m.Seeds, m.Config) {
			if attempts++; attempts > maxAttempts {
				return
			}
			if m.denied(candidate) {
				continue
			}
			sig := hash.Hash(candidate)
			if seen[sig] {
				continue
			}
			seen[sig] = true
			if !yield(candidate) {
				return
			}
			if produced++; produced == limit {
				return
			}
		}
	}
}

func (m *Mutator) denied(candidate []byte) bool {
	for _, frag := range m.Denylist {
		if bytes.Contains(candidate, []byte(frag)) {
			return true
		}
	}
	return false
}
