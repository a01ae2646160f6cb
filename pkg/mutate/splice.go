// Copyright 2026 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package mutate

import (
	"iter"
	"math/rand"
)

type Config struct {
	Seed int64
	// InterSplices is the number of cross-file grafts per candidate.
	InterSplices int
	// Chaos is the percent probability of an extra duplication or swap at a graft point.
	Chaos int
	// Deletions is the number of groups dropped per candidate.
	Deletions int
}

var DefaultConfig = Config{
	InterSplices: 3,
	Chaos:        10,
	Deletions:    1,
}

// Splicer produces an endless stream of candidates from seeds.
// The stream ends only when the consumer stops or there are no seeds.
type Splicer interface {
	Splice(seeds []*Tree, cfg Config) iter.Seq[[]byte]
}

// TreeSplicer grafts groups of one seed into groups of another seed with the same delimiters.
// The output is deterministic for the same seeds and Config.Seed.
type TreeSplicer struct{}

func (TreeSplicer) Splice(seeds []*Tree, cfg Config) iter.Seq[[]byte] {
	return func(yield func([]byte) bool) {
		if len(seeds) == 0 {
			return
		}
		r := &randGen{rand.New(rand.NewSource(cfg.Seed))}
		donors := make([][]*Node, len(seeds))
		for i, seed := range seeds {
			donors[i] = seed.Groups()
		}
		for {
			idx := r.Intn(len(seeds))
			tree := seeds[idx].Clone()
			for i := 0; i < cfg.InterSplices; i++ {
				r.graft(tree, donors, cfg.Chaos)
			}
			for i := 0; i < cfg.Deletions; i++ {
				r.remove(tree)
			}
			if !yield(tree.Render()) {
				return
			}
		}
	}
}

type randGen struct {
	*rand.Rand
}

func (r *randGen) nOutOf(n, outOf int) bool {
	return r.Intn(outOf) < n
}

// graft replaces contents of a random group of tree with a copy of a random donor group
// with the same delimiters.
func (r *randGen) graft(tree *Tree, donors [][]*Node, chaos int) {
	groups := tree.Groups()
	if len(groups) == 0 {
		return
	}
	target := groups[r.Intn(len(groups))]
	var candidates []*Node
	for _, d := range donors[r.Intn(len(donors))] {
		if d.Open == target.Open && d.Close == target.Close {
			candidates = append(candidates, d)
		}
	}
	if len(candidates) != 0 {
		donor := candidates[r.Intn(len(candidates))].clone()
		target.Children = donor.Children
	}
	if chaos > 0 && r.nOutOf(chaos, 100) {
		r.shuffle(target)
	}
}

// shuffle duplicates one child of n or swaps two of them.
func (r *randGen) shuffle(n *Node) {
	if len(n.Children) == 0 {
		return
	}
	i, j := r.Intn(len(n.Children)), r.Intn(len(n.Children))
	if r.Intn(2) == 0 {
		n.Children[i], n.Children[j] = n.Children[j], n.Children[i]
		return
	}
	dup := n.Children[i].clone()
	n.Children = append(n.Children[:j], append([]*Node{dup}, n.Children[j:]...)...)
}

// remove drops a random group together with its delimiters.
func (r *randGen) remove(tree *Tree) {
	var parents []*Node
	tree.Root.walk(func(n *Node) {
		for _, c := range n.Children {
			if c.IsGroup() {
				parents = append(parents, n)
				return
			}
		}
	})
	if len(parents) == 0 {
		return
	}
	parent := parents[r.Intn(len(parents))]
	var idx []int
	for i, c := range parent.Children {
		if c.IsGroup() {
			idx = append(idx, i)
		}
	}
	i := idx[r.Intn(len(idx))]
	parent.Children = append(parent.Children[:i], parent.Children[i+1:]...)
}
