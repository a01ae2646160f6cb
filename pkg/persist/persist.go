// Copyright 2026 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

// Package persist saves findings of a run to disk: a human-readable report, a copy of
// the input and a compressed raw output log per finding, and errors.json with all findings.
package persist

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/matthiaskrgr/icemaker-sub000/pkg/hash"
	"github.com/matthiaskrgr/icemaker-sub000/pkg/osutil"
	"github.com/matthiaskrgr/icemaker-sub000/pkg/report"
	"github.com/matthiaskrgr/icemaker-sub000/pkg/toolchain"
	"github.com/ulikunitz/xz"
)

// Sink receives new findings.
type Sink interface {
	Save(f *report.Finding, source, output, reduced []byte) error
}

// Record is the serialized form of a finding.
type Record struct {
	Kind            string    `json:"kind"`
	Tier            string    `json:"tier"`
	Tool            string    `json:"tool"`
	Channel         string    `json:"channel"`
	File            string    `json:"file"`
	Flags           []string  `json:"flags"`
	RequiresFeature bool      `json:"requires_feature"`
	CommandLine     string    `json:"command_line"`
	Reason          string    `json:"reason"`
	Message         string    `json:"message,omitempty"`
	Report          string    `json:"report"`
	Source          string    `json:"source"`
	Time            time.Time `json:"time"`
}

type Summary struct {
	RunID    string    `json:"run_id"`
	Started  time.Time `json:"started"`
	Findings []Record  `json:"findings"`
}

// Dir stores findings in a fresh timestamped directory under the workdir.
type Dir struct {
	Path  string
	RunID string

	mu      sync.Mutex
	started time.Time
	records []Record
	names   map[string]int
}

const (
	SummaryFile = "errors.json"
	reportExt   = ".txt"
	sourceExt   = ".rs"
	LogExt      = ".log.xz"
	maxNameLen  = 160
)

func New(workdir string, now time.Time) (*Dir, error) {
	path := filepath.Join(workdir, "icemaker_"+now.Format("2006-01-02_15-04-05"))
	if err := osutil.MkdirAll(path); err != nil {
		return nil, fmt.Errorf("failed to create run dir: %w", err)
	}
	return &Dir{
		Path:    path,
		RunID:   uuid.NewString(),
		started: now,
		names:   make(map[string]int),
	}, nil
}

// Save writes the report, the input source and the raw log of the finding.
// Inputs may live in temporary dirs, so the source copy is what reproduces the finding later.
// There is at most one report per (file, tool) in a run, a later finding overwrites the earlier one.
func (d *Dir) Save(f *report.Finding, source, output, reduced []byte) error {
	name := fileName(f.File, f.Tool)
	rec := Record{
		Kind:            f.Kind.Name(),
		Tier:            report.TierOf(f.Kind).String(),
		Tool:            f.Tool.String(),
		Channel:         f.Channel.String(),
		File:            f.File,
		Flags:           f.Flags,
		RequiresFeature: f.RequiresFeature,
		CommandLine:     f.CommandLine,
		Reason:          f.Reason,
		Message:         f.Message,
		Report:          name + reportExt,
		Source:          name + sourceExt,
		Time:            time.Now().UTC(),
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := osutil.WriteFile(filepath.Join(d.Path, name+reportExt), renderReport(f, reduced)); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	if err := osutil.WriteFile(filepath.Join(d.Path, name+sourceExt), source); err != nil {
		return fmt.Errorf("failed to write source: %w", err)
	}
	if err := writeLog(filepath.Join(d.Path, name+LogExt), output); err != nil {
		return err
	}
	if idx, ok := d.names[name]; ok {
		d.records[idx] = rec
	} else {
		d.names[name] = len(d.records)
		d.records = append(d.records, rec)
	}
	return nil
}

// Records returns saved records in the order of saving.
func (d *Dir) Records() []Record {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]Record(nil), d.records...)
}

// Close writes the run summary.
func (d *Dir) Close() error {
	d.mu.Lock()
	summary := Summary{
		RunID:    d.RunID,
		Started:  d.started,
		Findings: append([]Record{}, d.records...),
	}
	d.mu.Unlock()
	data, err := json.MarshalIndent(summary, "", "\t")
	if err != nil {
		return err
	}
	return osutil.WriteFile(filepath.Join(d.Path, SummaryFile), data)
}

// ReadSummary loads errors.json of a previous run.
func ReadSummary(file string) (*Summary, error) {
	data, err := os.ReadFile(file)
	if err != nil {
		return nil, err
	}
	summary := new(Summary)
	if err := json.Unmarshal(data, summary); err != nil {
		return nil, fmt.Errorf("failed to parse %v: %w", file, err)
	}
	return summary, nil
}

// fileName is the base name of all files of a finding. Sanitized paths may collide
// (a/b.rs and a_b.rs), so a short hash of the original path is included.
func fileName(file string, tool toolchain.Tool) string {
	return fmt.Sprintf("%v-%v-%v", sanitize(file), hash.String([]byte(file))[:8], tool)
}

var unsafeRe = regexp.MustCompile(`[^a-zA-Z0-9._-]+`)

// sanitize turns a path into a flat file name.
func sanitize(path string) string {
	name := strings.Trim(unsafeRe.ReplaceAllString(filepath.ToSlash(path), "_"), "_.")
	if len(name) > maxNameLen {
		name = name[len(name)-maxNameLen:]
	}
	if name == "" {
		name = "input"
	}
	return name
}

func renderReport(f *report.Finding, reduced []byte) []byte {
	buf := new(bytes.Buffer)
	fmt.Fprintf(buf, "kind: %v\n", f.Kind)
	fmt.Fprintf(buf, "tool: %v\n", f.Tool)
	fmt.Fprintf(buf, "channel: %v\n", f.Channel)
	fmt.Fprintf(buf, "file: %v\n", f.File)
	fmt.Fprintf(buf, "flags: %v\n", strings.Join(f.Flags, " "))
	fmt.Fprintf(buf, "requires feature: %v\n", f.RequiresFeature)
	fmt.Fprintf(buf, "command: %v\n", f.CommandLine)
	fmt.Fprintf(buf, "reason: %v\n\n%v\n", f.Reason, f.Message)
	if len(reduced) != 0 {
		fmt.Fprintf(buf, "\nreduced:\n%s\n", reduced)
	}
	return buf.Bytes()
}

func writeLog(file string, output []byte) error {
	buf := new(bytes.Buffer)
	w, err := xz.NewWriter(buf)
	if err != nil {
		return fmt.Errorf("failed to create xz writer: %w", err)
	}
	if _, err := w.Write(output); err != nil {
		return fmt.Errorf("failed to compress log: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("failed to compress log: %w", err)
	}
	return osutil.WriteFile(file, buf.Bytes())
}

// ReadLog decompresses a raw output log.
func ReadLog(file string) ([]byte, error) {
	f, err := os.Open(file)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	r, err := xz.NewReader(f)
	if err != nil {
		return nil, fmt.Errorf("failed to open %v: %w", file, err)
	}
	return io.ReadAll(r)
}
