// Copyright 2026 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

// Package manager schedules tool invocations over the corpus and turns their
// outcomes into reported, enriched and persisted findings.
package manager

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"math/rand"
	"os"
	"path/filepath"
	"runtime"
	"slices"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/matthiaskrgr/icemaker-sub000/pkg/console"
	"github.com/matthiaskrgr/icemaker-sub000/pkg/flags"
	"github.com/matthiaskrgr/icemaker-sub000/pkg/log"
	"github.com/matthiaskrgr/icemaker-sub000/pkg/mgrconfig"
	"github.com/matthiaskrgr/icemaker-sub000/pkg/minimize"
	"github.com/matthiaskrgr/icemaker-sub000/pkg/persist"
	"github.com/matthiaskrgr/icemaker-sub000/pkg/report"
	"github.com/matthiaskrgr/icemaker-sub000/pkg/runner"
	"github.com/matthiaskrgr/icemaker-sub000/pkg/stat"
	"github.com/matthiaskrgr/icemaker-sub000/pkg/toolchain"
	"golang.org/x/sync/errgroup"
)

// Job is a single unit of work. Paired jobs get their partner file at run time.
type Job struct {
	File  string
	Tool  toolchain.Tool
	Flags []string
	Mode  runner.Mode
}

func (job Job) String() string {
	return fmt.Sprintf("%v %v [%v] %v", job.Tool, job.Mode, strings.Join(job.Flags, " "), job.File)
}

// Executor runs a single invocation, *runner.Runner is the real one.
type Executor interface {
	Run(ctx context.Context, inv runner.Invocation) (*runner.Result, error)
}

type Manager struct {
	Cfg        *mgrconfig.Config
	Executor   Executor
	Reporter   *console.Reporter
	Exceptions report.Exceptions
	// Optional collaborators.
	Sink    persist.Sink
	Reducer toolchain.Reducer
	// Channels checked by regression channel detection, from the oldest.
	Channels []toolchain.Channel
	// Seed of paired partner sampling.
	Seed int64

	files     []string
	solved    sync.Map // of solvedKey
	findingMu sync.Mutex
	findings  []*report.Finding
	execTimes map[toolchain.Tool]*stat.Durations
}

const (
	// Number of partners tried for a paired job before it is dropped.
	pairedAttempts = 3
	// Limit on executions during flag minimization of a single finding.
	minimizeSteps = 64
)

var (
	statJobs = stat.New("jobs", "Finished jobs", stat.Console, stat.Rate{},
		stat.Prometheus("icemaker_jobs"))
	statFindings = stat.New("findings", "New unique findings", stat.Console,
		stat.Prometheus("icemaker_findings"))
	statErrors = stat.New("job errors", "Jobs that failed to run (setup or spawn failures)", stat.Console,
		stat.Prometheus("icemaker_job_errors"))
	statAbandoned = stat.New("abandoned pairs", "Paired jobs without a partner that compiles standalone",
		stat.Prometheus("icemaker_abandoned_pairs"))
	statExecTime = stat.New("exec time", "Wall clock of tool invocations (ms)", stat.Distribution{},
		stat.Prometheus("icemaker_exec_time_ms"))
	statSkipped = stat.New("skipped jobs", "Jobs not run because their file already has a finding for the tool",
		stat.Prometheus("icemaker_skipped_jobs"))
	statEnrich = stat.New("enrich runs", "Extra invocations for channel detection and flag minimization",
		stat.Prometheus("icemaker_enrich_runs"))
)

func New(cfg *mgrconfig.Config, files []string, exec Executor, reporter *console.Reporter) *Manager {
	mgr := &Manager{
		Cfg:       cfg,
		Executor:  exec,
		Reporter:  reporter,
		Channels:  []toolchain.Channel{toolchain.Stable, toolchain.Beta, toolchain.Nightly},
		Seed:      time.Now().UnixNano(),
		files:     files,
		execTimes: make(map[toolchain.Tool]*stat.Durations),
	}
	mgr.execTimes[toolchain.Rustc] = new(stat.Durations)
	for _, tool := range cfg.ParsedTools {
		mgr.execTimes[tool] = new(stat.Durations)
	}
	return mgr
}

// CollectFiles returns all *.rs files under the dirs, sorted.
func CollectFiles(dirs []string) ([]string, error) {
	var files []string
	for _, dir := range dirs {
		err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if !d.IsDir() && strings.HasSuffix(path, ".rs") {
				files = append(files, path)
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("failed to walk corpus: %w", err)
		}
	}
	sort.Strings(files)
	return files, nil
}

func (mgr *Manager) Files() []string {
	return mgr.files
}

// Jobs expands the corpus, the tools and their flag lists into the list of jobs.
func (mgr *Manager) Jobs() []Job {
	cfg := mgr.Cfg
	var jobs []Job
	expand := func(tool toolchain.Tool, lists [][]string, mode runner.Mode) {
		sets := [][]string{nil}
		if slices.ContainsFunc(lists, flags.IsIncremental) {
			mode = runner.ModeIncremental
		} else {
			sets = flags.CombineLists(lists, cfg.FlagFamilies, cfg.FlagLimits(), cfg.Order)
		}
		for _, file := range mgr.files {
			for _, set := range sets {
				jobs = append(jobs, Job{File: file, Tool: tool, Flags: set, Mode: mode})
			}
		}
	}
	for _, tool := range cfg.ParsedTools {
		expand(tool, cfg.GroupFlagLists(tool.FlagList()), runner.ModeNormal)
	}
	if cfg.Incremental {
		expand(toolchain.Rustc, cfg.GroupFlagLists("rustc-incremental"), runner.ModeIncremental)
	}
	if cfg.IncrementalFuzz && len(mgr.files) > 1 {
		for _, file := range mgr.files {
			jobs = append(jobs, Job{File: file, Tool: toolchain.Rustc, Mode: runner.ModePaired})
		}
	}
	return jobs
}

// Run executes the jobs on a bounded pool. Job failures are logged and counted,
// only cancellation of ctx stops the run early.
func (mgr *Manager) Run(ctx context.Context, jobs []Job) error {
	threads := mgr.Cfg.Threads
	if threads == 0 {
		threads = runtime.NumCPU()
	}
	log.Logf(0, "running %v jobs on %v threads", len(jobs), threads)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(threads)
	var done atomic.Int64
	for i, job := range jobs {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if _, ok := mgr.solved.Load(jobKey(job)); ok {
				statSkipped.Add(1)
			} else {
				mgr.runJob(gctx, i, job)
				statJobs.Add(1)
			}
			mgr.Reporter.Progress(console.Progress{
				Index: int(done.Add(1)),
				Total: len(jobs),
				File:  job.File,
			})
			return nil
		})
	}
	g.Wait()
	return ctx.Err()
}

func (mgr *Manager) runJob(ctx context.Context, idx int, job Job) {
	inv := runner.Invocation{
		Tool:    job.Tool,
		File:    job.File,
		Flags:   job.Flags,
		Mode:    job.Mode,
		Channel: toolchain.Master,
	}
	var res *runner.Result
	var err error
	if job.Mode == runner.ModePaired {
		rnd := rand.New(rand.NewSource(mgr.Seed + int64(idx)))
		for attempt := 0; attempt < pairedAttempts; attempt++ {
			inv.Partner = mgr.files[rnd.Intn(len(mgr.files))]
			if inv.Partner == inv.File {
				continue
			}
			if res, err = mgr.execute(ctx, inv); !errors.Is(err, runner.ErrAbandoned) {
				break
			}
		}
		if (res == nil && err == nil) || errors.Is(err, runner.ErrAbandoned) {
			statAbandoned.Add(1)
			return
		}
	} else {
		res, err = mgr.execute(ctx, inv)
	}
	if err != nil {
		if ctx.Err() == nil {
			statErrors.Add(1)
			log.Logf(0, "job %v failed: %v", job, err)
		}
		return
	}
	file := inv.File
	if job.Mode == runner.ModePaired {
		file = inv.Partner
	}
	kind := report.Classify(job.Tool, file, res, mgr.Exceptions)
	if kind == nil {
		return
	}
	// The remaining flag sets of this file and tool are skipped.
	mgr.solved.Store(jobKey(job), true)
	src, err := os.ReadFile(file)
	if err != nil {
		log.Logf(0, "failed to read %v: %v", file, err)
	}
	finding := report.NewFinding(job.Tool, file, job.Flags, src, res, kind)
	if job.Mode == runner.ModePaired {
		finding.Message = fmt.Sprintf("compiled after %v with a shared incremental cache\n%v",
			inv.File, finding.Message)
	}
	if !mgr.Reporter.Finding(finding) {
		return
	}
	statFindings.Add(1)
	finding = mgr.enrich(ctx, inv, finding)
	mgr.findingMu.Lock()
	mgr.findings = append(mgr.findings, finding)
	mgr.findingMu.Unlock()
	mgr.save(ctx, inv, finding, src, res)
}

type solvedKey struct {
	file string
	tool toolchain.Tool
	mode runner.Mode
}

func jobKey(job Job) solvedKey {
	return solvedKey{job.File, job.Tool, job.Mode}
}

func (mgr *Manager) execute(ctx context.Context, inv runner.Invocation) (*runner.Result, error) {
	res, err := mgr.Executor.Run(ctx, inv)
	if err == nil {
		statExecTime.Add(int(res.WallClock.Milliseconds()))
		if avg := mgr.execTimes[inv.Tool]; avg != nil {
			avg.Save(res.WallClock)
		}
	}
	return res, err
}

// reproduces says if the invocation still leads to the same kind of outcome.
func (mgr *Manager) reproduces(ctx context.Context, inv runner.Invocation, kind report.Kind) (bool, error) {
	statEnrich.Add(1)
	res, err := mgr.execute(ctx, inv)
	if err != nil {
		return false, err
	}
	file := inv.File
	if inv.Mode == runner.ModePaired {
		file = inv.Partner
	}
	return report.SameKind(report.Classify(inv.Tool, file, res, mgr.Exceptions), kind), nil
}

func (mgr *Manager) enrich(ctx context.Context, inv runner.Invocation, finding *report.Finding) *report.Finding {
	if mgr.Cfg.MinimizeFlags && len(inv.Flags) > 1 {
		finding = finding.WithFlags(mgr.minimizeFlags(ctx, inv, finding.Kind))
		inv.Flags = finding.Flags
	}
	if mgr.Cfg.DetectChannel {
		finding = finding.WithChannel(mgr.detectChannel(ctx, inv, finding.Kind))
	}
	return finding
}

// minimizeFlags returns a minimal subset of the flags that still reproduces the kind.
func (mgr *Manager) minimizeFlags(ctx context.Context, inv runner.Invocation, kind report.Kind) []string {
	res, err := minimize.Slice(minimize.Config[string]{
		Pred: func(flags []string) (bool, error) {
			inv1 := inv
			inv1.Flags = flags
			return mgr.reproduces(ctx, inv1, kind)
		},
		MaxSteps: minimizeSteps,
		Logf: func(msg string, args ...any) {
			log.Logf(2, "%v: "+msg, append([]any{inv.File}, args...)...)
		},
	}, inv.Flags)
	if err != nil {
		log.Logf(1, "flag minimization of %v failed: %v", inv.File, err)
		return inv.Flags
	}
	log.Logf(1, "minimized flags of %v: %q -> %q", inv.File, inv.Flags, res)
	return res
}

// detectChannel returns the oldest channel that reproduces the same kind, Master if none does.
func (mgr *Manager) detectChannel(ctx context.Context, inv runner.Invocation, kind report.Kind) toolchain.Channel {
	for _, channel := range mgr.Channels {
		if channel == toolchain.Master {
			break
		}
		inv1 := inv
		inv1.Channel = channel
		ok, err := mgr.reproduces(ctx, inv1, kind)
		if err != nil {
			log.Logf(1, "%v on %v: %v", inv.File, channel, err)
			continue
		}
		if ok {
			return channel
		}
	}
	return toolchain.Master
}

func (mgr *Manager) save(ctx context.Context, inv runner.Invocation, finding *report.Finding,
	src []byte, res *runner.Result) {
	if mgr.Sink == nil {
		return
	}
	var reduced []byte
	if mgr.Reducer != nil && inv.Mode != runner.ModePaired && len(src) != 0 {
		repro := append([]string{inv.Tool.Binary()}, finding.Flags...)
		var err error
		if reduced, err = mgr.Reducer.Reduce(ctx, src, repro); err != nil {
			log.Logf(0, "failed to reduce %v: %v", finding.File, err)
		}
	}
	if err := mgr.Sink.Save(finding, src, res.Output(), reduced); err != nil {
		log.Logf(0, "failed to save finding %v: %v", finding, err)
	}
}

// Findings returns enriched findings in the order of discovery.
func (mgr *Manager) Findings() []*report.Finding {
	mgr.findingMu.Lock()
	defer mgr.findingMu.Unlock()
	return append([]*report.Finding(nil), mgr.findings...)
}

// LogStats periodically prints a status line until ctx is canceled.
func (mgr *Manager) LogStats(ctx context.Context, period time.Duration) {
	ticker := time.NewTicker(period)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			log.Logf(0, "%v", mgr.statusLine())
		}
	}
}

func (mgr *Manager) statusLine() string {
	var parts []string
	for _, v := range stat.Collect(stat.Console) {
		parts = append(parts, fmt.Sprintf("%v: %v", v.Name, v.Value))
	}
	for _, tool := range mgr.Cfg.ParsedTools {
		if avg := mgr.execTimes[tool]; avg != nil && avg.Count() != 0 {
			parts = append(parts, fmt.Sprintf("avg %v: %v", tool, avg.Value().Round(time.Millisecond)))
		}
	}
	return strings.Join(parts, ", ")
}
