// Copyright 2026 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

// ice-classify classifies saved tool output offline. Usage:
//
//	ice-classify -tool=rustc -file=input.rs output.log[.xz]...
//	ice-classify icemaker_<timestamp>/errors.json
//
// For errors.json it prints the findings of the run instead.
package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/matthiaskrgr/icemaker-sub000/pkg/persist"
	"github.com/matthiaskrgr/icemaker-sub000/pkg/report"
	"github.com/matthiaskrgr/icemaker-sub000/pkg/runner"
	"github.com/matthiaskrgr/icemaker-sub000/pkg/tables"
	"github.com/matthiaskrgr/icemaker-sub000/pkg/tool"
	"github.com/matthiaskrgr/icemaker-sub000/pkg/toolchain"
)

var (
	flagTool   = flag.String("tool", "rustc", "tool that produced the output")
	flagFile   = flag.String("file", "", "source file the output belongs to (optional)")
	flagTables = flag.String("tables", "", "YAML file with exception lists (default: built-in)")
)

func main() {
	flag.Parse()
	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(1)
	}
	t, err := toolchain.ParseTool(*flagTool)
	if err != nil {
		tool.Fail(err)
	}
	tbl := tables.Default()
	if *flagTables != "" {
		if tbl, err = tables.Load(*flagTables); err != nil {
			tool.Fail(err)
		}
	}
	for _, file := range flag.Args() {
		if filepath.Base(file) == persist.SummaryFile {
			err = printSummary(file)
		} else {
			err = classify(t, tbl, file)
		}
		if err != nil {
			tool.Fail(err)
		}
	}
}

func classify(t toolchain.Tool, tbl *tables.Tables, file string) error {
	var output []byte
	var err error
	if strings.HasSuffix(file, ".xz") {
		output, err = persist.ReadLog(file)
	} else {
		output, err = os.ReadFile(file)
	}
	if err != nil {
		return err
	}
	var src []byte
	if *flagFile != "" {
		if src, err = os.ReadFile(*flagFile); err != nil {
			return err
		}
	}
	res := &runner.Result{Stderr: output}
	kind := report.Classify(t, *flagFile, res, tbl)
	if kind == nil {
		fmt.Printf("%v: no finding\n", file)
		return nil
	}
	f := report.NewFinding(t, *flagFile, nil, src, res, kind)
	fmt.Printf("%v: %v\n\n%v\n", file, f.Summary(), f.Message)
	return nil
}

func printSummary(file string) error {
	summary, err := persist.ReadSummary(file)
	if err != nil {
		return err
	}
	fmt.Printf("run %v started %v: %v findings\n", summary.RunID, summary.Started, len(summary.Findings))
	for _, rec := range summary.Findings {
		fmt.Printf("%-14v %-10v %-8v %v %v | %v\n", rec.Kind, rec.Tool, rec.Channel,
			rec.File, strings.Join(rec.Flags, " "), rec.Reason)
	}
	return nil
}
