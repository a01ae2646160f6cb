// Copyright 2026 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

// Package console renders progress and findings of a run on a terminal shared by many workers.
// A progress line is overwritten in place, findings get their own lines and are printed once.
package console

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/fatih/color"
	"github.com/matthiaskrgr/icemaker-sub000/pkg/report"
	"github.com/mattn/go-runewidth"
	"golang.org/x/term"
)

type Progress struct {
	Index int
	Total int
	File  string
}

func (p Progress) String() string {
	pct := 100
	if p.Total != 0 {
		pct = p.Index * 100 / p.Total
	}
	return fmt.Sprintf("[%v/%v %v%%] %v", p.Index, p.Total, pct, p.File)
}

// locker is satisfied by sync.Mutex and sync.RWMutex.
type locker interface {
	TryLock() bool
	Lock()
	Unlock()
}

type state int

const (
	stateNone state = iota
	stateProgress
	stateFinding
)

const (
	DefaultAttempts = 10
	DefaultStep     = 10 * time.Millisecond
)

// Reporter serializes console output of concurrent workers.
// The dedup set and the console state are guarded by separate locks
// that are acquired with a bounded number of non-blocking attempts and
// a final blocking one, so an event is never dropped because of contention.
type Reporter struct {
	out      io.Writer
	width    int
	attempts int
	step     time.Duration

	emittedMu locker
	emitted   map[string]bool
	findings  []*report.Finding

	prevMu  locker
	prev    state
	lastLen int

	colors map[report.Tier]*color.Color
	other  *color.Color
}

// NewReporter creates a reporter writing to out.
// Colors and progress truncation are enabled only if out is a terminal.
func NewReporter(out io.Writer) *Reporter {
	r := &Reporter{
		out:       out,
		attempts:  DefaultAttempts,
		step:      DefaultStep,
		emittedMu: new(sync.RWMutex),
		emitted:   make(map[string]bool),
		prevMu:    new(sync.RWMutex),
		colors: map[report.Tier]*color.Color{
			report.Interesting:   color.New(color.FgRed, color.Bold),
			report.Boring:        color.New(color.FgYellow),
			report.Uninteresting: color.New(color.FgYellow),
		},
		other: color.New(color.FgMagenta),
	}
	tty := false
	if f, ok := out.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		tty = true
		if w, _, err := term.GetSize(int(f.Fd())); err == nil {
			r.width = w
		}
	}
	for _, c := range r.colors {
		setColor(c, tty)
	}
	setColor(r.other, tty)
	return r
}

func setColor(c *color.Color, enable bool) {
	if enable {
		c.EnableColor()
	} else {
		c.DisableColor()
	}
}

func (r *Reporter) acquire(l locker) {
	for i := 0; i < r.attempts-1; i++ {
		if l.TryLock() {
			return
		}
		time.Sleep(time.Duration(i) * r.step)
	}
	l.Lock()
}

// Progress overwrites the previous progress line, or starts a new one after a finding.
func (r *Reporter) Progress(p Progress) {
	line := p.String()
	if r.width > 0 && runewidth.StringWidth(line) >= r.width {
		line = runewidth.Truncate(line, r.width-1, "")
	}
	width := runewidth.StringWidth(line)
	r.acquire(r.prevMu)
	defer r.prevMu.Unlock()
	if r.prev == stateProgress {
		pad := ""
		if r.lastLen > width {
			pad = strings.Repeat(" ", r.lastLen-width)
		}
		fmt.Fprintf(r.out, "\r%v%v", line, pad)
	} else {
		fmt.Fprint(r.out, line)
	}
	r.lastLen = width
	r.prev = stateProgress
}

// Finding prints the finding on its own line unless a finding with the same key was already printed.
// Returns true if the finding is new.
func (r *Reporter) Finding(f *report.Finding) bool {
	key := f.Key()
	r.acquire(r.emittedMu)
	if r.emitted[key] {
		r.emittedMu.Unlock()
		return false
	}
	r.emitted[key] = true
	r.findings = append(r.findings, f)
	r.emittedMu.Unlock()

	line := r.colorFor(f.Kind).Sprint(f.Summary())
	r.acquire(r.prevMu)
	defer r.prevMu.Unlock()
	if r.prev == stateProgress {
		fmt.Fprint(r.out, "\n")
	}
	fmt.Fprintf(r.out, "%v\n", line)
	r.prev = stateFinding
	return true
}

func (r *Reporter) colorFor(kind report.Kind) *color.Color {
	switch kind.(type) {
	case report.Crash, report.UndefinedBehavior, report.DoubleFault:
		return r.colors[report.TierOf(kind)]
	case report.Hang, report.OutOfMemory, report.AutoFixFailure,
		report.TypeCheckDivergence, report.FormatterFailure:
		return r.other
	default:
		panic(fmt.Sprintf("unknown kind %T", kind))
	}
}

// Write prints unrelated output (e.g. log lines) without breaking the progress line.
func (r *Reporter) Write(data []byte) (int, error) {
	r.acquire(r.prevMu)
	defer r.prevMu.Unlock()
	if r.prev == stateProgress {
		fmt.Fprint(r.out, "\n")
	}
	r.prev = stateNone
	return r.out.Write(data)
}

// Emitted returns findings printed so far in the order they were printed.
func (r *Reporter) Emitted() []*report.Finding {
	r.acquire(r.emittedMu)
	defer r.emittedMu.Unlock()
	return append([]*report.Finding(nil), r.findings...)
}

// Close terminates a pending progress line.
func (r *Reporter) Close() {
	r.acquire(r.prevMu)
	defer r.prevMu.Unlock()
	if r.prev == stateProgress {
		fmt.Fprint(r.out, "\n")
	}
	r.prev = stateNone
}
