// Copyright 2026 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package flags

// Built-in flag lists. Lists are named "<group>" or "<group>/<name>", where the group is
// the flag list of a tool. Every list is expanded on its own, so flags that interact
// are kept in the same list and the number of subsets per file stays small.
// A config replaces all lists of a group by naming any list of it.
var Lists = map[string][]string{
	"rustc/mir": {
		"-Zvalidate-mir",
		"-Zmir-opt-level=4",
		"-Zunsound-mir-opts",
		"-Zinline-mir=yes",
		"-Zmir-enable-passes=+Inline,+GVN",
	},
	"rustc/codegen": {
		"-Copt-level=0",
		"-Copt-level=3",
		"-Copt-level=z",
		"-Cdebuginfo=2",
		"-Cpanic=abort",
		"-Zverify-llvm-ir=yes",
	},
	"rustc/generics": {
		"-Zpolymorphize=on",
		"-Zshare-generics=yes",
		"-Zcrate-attr=feature(generic_const_exprs)",
	},
	"rustc/misc": {
		"-Cinstrument-coverage",
		"-Zthreads=16",
	},
	"rustc-incremental": {
		IncrementalSentinel,
	},
	"clippy": {
		"-Wclippy::pedantic",
		"-Wclippy::nursery",
		"-Wclippy::restriction",
		"--edition=2021",
		"-Zvalidate-mir",
	},
	"clippy-fix": {
		"-Wclippy::pedantic",
		"-Wclippy::nursery",
	},
	"rustfmt": {
		"--edition=2021",
		"--config=version=Two",
		"--config=wrap_comments=true",
		"--config=normalize_doc_attributes=true",
		"--config=format_macro_matchers=true",
	},
	"miri": {
		"-Zmiri-strict-provenance",
		"-Zmiri-symbolic-alignment-check",
		"-Zmiri-tree-borrows",
		"-Zmiri-retag-fields",
		"-Zmiri-check-number-validity",
	},
	"analyzer": {},
}
