// Copyright 2026 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

// Package flags expands static lists of tool flags into a reduced, deduplicated
// set of flag subsets that is tractable for exhaustive exploration.
package flags

import (
	"fmt"
	"sort"
	"strings"
)

// IncrementalSentinel is a flag list entry that requests the incremental compilation mode.
// Lists containing it are not expanded, the caller schedules incremental jobs instead.
const IncrementalSentinel = "<incremental>"

// DefaultFamilies are prefixes of mutually exclusive flags where only the last occurrence matters.
var DefaultFamilies = []string{"-Copt-level="}

type Limits struct {
	// PerSize caps the number of subsets enumerated for each subset size.
	PerSize int
	// MaxSize is the largest subset that is enumerated at all.
	MaxSize int
}

var DefaultLimits = Limits{
	PerSize: 10000,
	MaxSize: 10,
}

// Order says which flag subsets are tried first.
type Order int

const (
	SmallFirst Order = iota
	LargeFirst
)

func ParseOrder(s string) (Order, error) {
	switch s {
	case "", "small":
		return SmallFirst, nil
	case "large":
		return LargeFirst, nil
	}
	return SmallFirst, fmt.Errorf("unknown flag order %q", s)
}

// IsIncremental reports whether the list asks for the incremental mode instead of expansion.
func IsIncremental(list []string) bool {
	for _, f := range list {
		if f == IncrementalSentinel {
			return true
		}
	}
	return false
}

// PowerSet returns subsets of list from the empty one up, at most limits.PerSize subsets of each size
// and none larger than limits.MaxSize. Within a size subsets follow lexicographic order of indices.
func PowerSet(list []string, limits Limits) [][]string {
	res := [][]string{{}}
	for size := 1; size <= len(list) && size <= limits.MaxSize; size++ {
		idx := make([]int, size)
		for i := range idx {
			idx[i] = i
		}
		for n := 0; n < limits.PerSize; n++ {
			subset := make([]string, size)
			for i, j := range idx {
				subset[i] = list[j]
			}
			res = append(res, subset)
			if !nextCombination(idx, len(list)) {
				break
			}
		}
	}
	return res
}

// nextCombination advances idx to the next k-combination of n elements.
func nextCombination(idx []int, n int) bool {
	k := len(idx)
	i := k - 1
	for i >= 0 && idx[i] == n-k+i {
		i--
	}
	if i < 0 {
		return false
	}
	idx[i]++
	for j := i + 1; j < k; j++ {
		idx[j] = idx[j-1] + 1
	}
	return true
}

// Canonicalize drops all but the last occurrence of each exclusive flag family,
// keeping the original relative order of the remaining flags.
func Canonicalize(set []string, families []string) []string {
	drop := make([]bool, len(set))
	seen := make([]bool, len(families))
	for i := len(set) - 1; i >= 0; i-- {
		fam := family(set[i], families)
		if fam == -1 {
			continue
		}
		if seen[fam] {
			drop[i] = true
			continue
		}
		seen[fam] = true
	}
	res := make([]string, 0, len(set))
	for i, f := range set {
		if !drop[i] {
			res = append(res, f)
		}
	}
	return res
}

func family(flag string, families []string) int {
	for i, prefix := range families {
		if strings.HasPrefix(flag, prefix) {
			return i
		}
	}
	return -1
}

// Key returns a value that is equal for equal flag sets.
func Key(set []string) string {
	return strings.Join(set, "\x00")
}

// Combinations expands list into the flag subsets to try: the capped power set,
// canonicalized, deduplicated by value and sorted by size (stable, so equal sized
// subsets keep generation order). The result is deterministic for the same input.
func Combinations(list, families []string, limits Limits, order Order) [][]string {
	return CombineLists([][]string{list}, families, limits, order)
}

// CombineLists is Combinations over several independent lists: each list is expanded
// on its own and the subsets are merged. A subset produced by several lists
// (e.g. the empty one) is returned once. No lists means a single empty list.
func CombineLists(lists [][]string, families []string, limits Limits, order Order) [][]string {
	if len(lists) == 0 {
		lists = [][]string{nil}
	}
	seen := make(map[string]bool)
	var res [][]string
	for _, list := range lists {
		for _, subset := range PowerSet(list, limits) {
			subset = Canonicalize(subset, families)
			key := Key(subset)
			if seen[key] {
				continue
			}
			seen[key] = true
			res = append(res, subset)
		}
	}
	sort.SliceStable(res, func(i, j int) bool {
		if order == LargeFirst {
			return len(res[i]) > len(res[j])
		}
		return len(res[i]) < len(res[j])
	})
	return res
}

// Group returns the group of a list name: "rustc/mir" belongs to "rustc".
func Group(name string) string {
	group, _, _ := strings.Cut(name, "/")
	return group
}

// GroupLists returns the sorted names of the lists that belong to the group.
func GroupLists(lists map[string][]string, group string) []string {
	var names []string
	for name := range lists {
		if Group(name) == group {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// Validate checks static sanity of a flag list before a run starts.
func Validate(list []string) error {
	seen := make(map[string]bool)
	for _, f := range list {
		if f == IncrementalSentinel {
			if len(list) != 1 {
				return fmt.Errorf("%v must be the only entry of a list", IncrementalSentinel)
			}
			continue
		}
		if !strings.HasPrefix(f, "-") {
			return fmt.Errorf("flag %q does not start with '-'", f)
		}
		if strings.ContainsAny(f, " \t\n") {
			return fmt.Errorf("flag %q contains whitespace", f)
		}
		if seen[f] {
			return fmt.Errorf("duplicate flag %q", f)
		}
		seen[f] = true
	}
	return nil
}
