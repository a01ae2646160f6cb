// Copyright 2023 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

// Package minimize shrinks a slice to a small subsequence that still satisfies a predicate.
// It is used to find the flags of a flag set that are really needed to trigger a finding.
package minimize

import (
	"fmt"
	"math"
	"strings"
)

type Config[T any] struct {
	// Pred(X) returns true if X still contains all elements that must stay.
	Pred func([]T) (bool, error)
	// MaxSteps limits the number of Pred calls, 0 means no limit.
	// Once the limit is hit, all remaining checks are treated as failed.
	MaxSteps int
	Logf     func(string, ...any)
}

// Slice finds a minimal subsequence of elements for which Pred returns true.
// Elements are split into progressively smaller chunks, every chunk is tried to be dropped.
// The number of Pred calls is O(|result|*log2(|elements|)).
func Slice[T any](cfg Config[T], elements []T) ([]T, error) {
	if cfg.Logf == nil {
		cfg.Logf = func(string, ...any) {}
	}
	m := &minimizer[T]{
		Config: cfg,
		parts:  []*part[T]{{elems: elements}},
	}
	if err := m.round(m.initialSplit(len(elements)), false); err != nil {
		return nil, err
	}
	for !m.done() {
		if err := m.round(2, true); err != nil {
			return nil, err
		}
	}
	return join(m.parts, nil, nil), nil
}

type minimizer[T any] struct {
	Config[T]
	parts []*part[T]
	steps int
}

type part[T any] struct {
	elems []T
	final bool
}

// round splits every non-final part into n sub-parts and keeps only the needed ones.
// If known is set, the part as a whole is known to be needed, so if all but the last
// sub-part can be dropped, the last one is needed without checking.
func (m *minimizer[T]) round(n int, known bool) error {
	m.Logf("minimization round (known=%v): %v", known, m.describe())
	var next []*part[T]
	for i, p := range m.parts {
		if p.final {
			next = append(next, p)
			continue
		}
		pieces := split(p.elems, n)
		if len(pieces) == 1 && known {
			p.final = true
			next = append(next, p)
			continue
		}
		needed := false
		for j, piece := range pieces {
			last := j == len(pieces)-1
			if last && known && !needed {
				next = append(next, &part[T]{elems: piece})
				continue
			}
			var rest []T
			for _, later := range pieces[j+1:] {
				rest = append(rest, later...)
			}
			ok, err := m.check(next, rest, m.parts[i+1:])
			if err != nil {
				return err
			}
			if ok {
				m.Logf("piece %v/%v of part %v can be dropped", j+1, len(pieces), i)
				continue
			}
			needed = true
			next = append(next, &part[T]{elems: piece})
		}
	}
	m.parts = next
	return nil
}

func (m *minimizer[T]) check(before []*part[T], mid []T, after []*part[T]) (bool, error) {
	if m.MaxSteps > 0 && m.steps >= m.MaxSteps {
		return false, nil
	}
	m.steps++
	return m.Pred(join(before, mid, after))
}

func (m *minimizer[T]) initialSplit(size int) int {
	// With few allowed steps and many elements it's better to split wide right away.
	if m.MaxSteps > 0 && math.Log2(float64(size)) > float64(m.MaxSteps) {
		return m.MaxSteps
	}
	return 3
}

func (m *minimizer[T]) done() bool {
	if m.MaxSteps > 0 && m.steps >= m.MaxSteps {
		return true
	}
	for _, p := range m.parts {
		if !p.final {
			return false
		}
	}
	return true
}

func (m *minimizer[T]) describe() string {
	var res []string
	for _, p := range m.parts {
		final := ""
		if p.final {
			final = "*"
		}
		res = append(res, fmt.Sprintf("%v%v", len(p.elems), final))
	}
	return strings.Join(res, " ")
}

func join[T any](before []*part[T], mid []T, after []*part[T]) []T {
	var res []T
	for _, p := range before {
		res = append(res, p.elems...)
	}
	res = append(res, mid...)
	for _, p := range after {
		res = append(res, p.elems...)
	}
	return res
}

func split[T any](elems []T, n int) [][]T {
	size := max((len(elems)+n-1)/n, 1)
	var res [][]T
	for i := 0; i < len(elems); i += size {
		res = append(res, elems[i:min(i+size, len(elems))])
	}
	return res
}
