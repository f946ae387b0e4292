package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/compound-floodrisk/sfincs-batch/internal/domain"
	"github.com/compound-floodrisk/sfincs-batch/internal/observability"
)

// StatusPublisher announces run status changes, e.g. on a message bus.
type StatusPublisher interface {
	Publish(ctx context.Context, st domain.RunStatus) error
}

// Options selects which run directories a batch visits.
type Options struct {
	ModelDir string
	Suffixes []string
	// RerunFailed runs scenarios again whose status record says failed even
	// though their marker exists.
	RerunFailed bool
}

// Summary counts the scenarios of one batch by final state.
type Summary struct {
	Total          int
	Succeeded      int
	Failed         int
	Skipped        int
	FileOpFailures int
	Statuses       []domain.RunStatus
}

func (s *Summary) add(st domain.RunStatus) {
	s.Total++
	s.Statuses = append(s.Statuses, st)
	switch st.State {
	case domain.StateSucceeded:
		s.Succeeded++
	case domain.StateFailed:
		s.Failed++
	case domain.StateSkipped:
		s.Skipped++
	}
}

// Progress is a snapshot of a running batch.
type Progress struct {
	Planned   int    `json:"planned"`
	Done      int    `json:"done"`
	Succeeded int    `json:"succeeded"`
	Failed    int    `json:"failed"`
	Skipped   int    `json:"skipped"`
	Current   string `json:"current,omitempty"`
}

// Pipeline dispatches every scenario of a table to an executor, one at a time.
type Pipeline struct {
	source    ScenarioSource
	executor  Executor
	publisher StatusPublisher
	logger    *slog.Logger
	metrics   *observability.Metrics
	opts      Options
	ready     atomic.Bool

	mu       sync.Mutex
	progress Progress
}

// New creates a Pipeline. publisher may be nil.
func New(source ScenarioSource, executor Executor, publisher StatusPublisher, logger *slog.Logger, metrics *observability.Metrics, opts Options) *Pipeline {
	if len(opts.Suffixes) == 0 {
		opts.Suffixes = []string{""}
	}
	return &Pipeline{
		source:    source,
		executor:  executor,
		publisher: publisher,
		logger:    logger,
		metrics:   metrics,
		opts:      opts,
	}
}

// CheckReadiness returns nil once the batch has loaded its scenario table.
func (p *Pipeline) CheckReadiness(_ context.Context) error {
	if !p.ready.Load() {
		return errors.New("batch has not started dispatching scenarios yet")
	}
	return nil
}

// Progress returns a snapshot of the current batch.
func (p *Pipeline) Progress() Progress {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.progress
}

func (p *Pipeline) setProgress(fn func(*Progress)) {
	p.mu.Lock()
	fn(&p.progress)
	p.mu.Unlock()
}

// Run visits every scenario in table order. Scenarios whose directory is
// missing or already holds a run marker are skipped. A failing scenario is
// recorded and the batch moves on. Run returns early only when ctx is
// cancelled or the scenario table cannot be read.
func (p *Pipeline) Run(ctx context.Context) (Summary, error) {
	var sum Summary
	names, err := p.source.ScenarioNames(ctx)
	if err != nil {
		return sum, err
	}
	scenarios := Expand(names, p.opts.Suffixes)

	p.logger.Info("batch started", "scenarios", len(names), "runs", len(scenarios), "executor", p.executor.Name())
	p.metrics.BatchRunning.Set(1)
	defer p.metrics.BatchRunning.Set(0)
	p.setProgress(func(pr *Progress) { *pr = Progress{Planned: len(scenarios)} })
	p.ready.Store(true)

	if prep, ok := p.executor.(Preparer); ok {
		for _, o := range prep.Prepare(ctx, p.opts.ModelDir) {
			if !o.OK() {
				sum.FileOpFailures++
			}
		}
	}

	for _, s := range scenarios {
		if err := ctx.Err(); err != nil {
			p.logger.Info("batch stopping", "reason", err, "done", sum.Total, "remaining", len(scenarios)-sum.Total)
			return sum, err
		}
		p.setProgress(func(pr *Progress) { pr.Current = s.Dir() })
		st := p.runScenario(ctx, s, &sum)
		sum.add(st)
		p.metrics.Scenarios.WithLabelValues(string(st.State)).Inc()
		p.setProgress(func(pr *Progress) {
			pr.Done, pr.Succeeded, pr.Failed, pr.Skipped = sum.Total, sum.Succeeded, sum.Failed, sum.Skipped
			pr.Current = ""
		})
	}

	p.logger.Info("batch finished",
		"total", sum.Total,
		"succeeded", sum.Succeeded,
		"failed", sum.Failed,
		"skipped", sum.Skipped,
		"file_op_failures", sum.FileOpFailures,
	)
	return sum, nil
}

func (p *Pipeline) runScenario(ctx context.Context, s domain.Scenario, sum *Summary) domain.RunStatus {
	root := s.Root(p.opts.ModelDir)
	st := domain.NewRunStatus(s, root)
	logger := p.logger.With("scenario", s.Dir())

	if reason := p.skipReason(root); reason != "" {
		logger.Debug("scenario skipped", "reason", reason)
		st.State = domain.StateSkipped
		p.publish(ctx, logger, st)
		return st
	}

	st.Start(p.executor.Name())
	p.record(ctx, logger, root, st)
	logger.Info("scenario started", "dir", root)

	res, err := p.executor.Execute(ctx, root)
	for _, o := range domain.Failed(res.Outcomes) {
		sum.FileOpFailures++
		logger.Debug("file operation failed", "op", o.Op, "path", o.Path, "error", o.Err)
	}
	for _, o := range domain.Failed(res.Report.Cleanup) {
		sum.FileOpFailures++
		logger.Debug("file operation failed", "op", o.Op, "path", o.Path, "error", o.Err)
	}
	if res.ExitCode != 0 {
		logger.Warn("model exited with non-zero status", "exit_code", res.ExitCode)
	}
	p.metrics.ExitCodes.WithLabelValues(strconv.Itoa(res.ExitCode)).Inc()

	st.Finish(res.ExitCode, err)
	if err != nil {
		logger.Error("scenario failed", "error", err, "exit_code", res.ExitCode)
	} else {
		logger.Info("scenario finished", "duration", st.Duration(), "raster_computed", res.Report.Computed)
	}
	p.metrics.ScenarioDuration.Observe(st.Duration().Seconds())
	p.record(ctx, logger, root, st)
	return st
}

// skipReason returns why root must not be run, or "" to run it.
func (p *Pipeline) skipReason(root string) string {
	info, err := os.Stat(root)
	if err != nil || !info.IsDir() {
		return "run directory missing"
	}
	if _, err := os.Stat(filepath.Join(root, domain.MarkerFile)); err != nil {
		return ""
	}
	if p.opts.RerunFailed {
		prev, err := ReadStatus(root)
		if err == nil && prev.State == domain.StateFailed {
			return ""
		}
	}
	return "run marker exists"
}

// record persists and publishes st. Both are best effort.
func (p *Pipeline) record(ctx context.Context, logger *slog.Logger, root string, st domain.RunStatus) {
	if err := WriteStatus(root, st); err != nil {
		logger.Warn("write status failed", "error", err)
	}
	p.publish(ctx, logger, st)
}

func (p *Pipeline) publish(ctx context.Context, logger *slog.Logger, st domain.RunStatus) {
	if p.publisher == nil {
		return
	}
	if err := p.publisher.Publish(ctx, st); err != nil {
		logger.Warn("publish status failed", "state", st.State, "error", err)
	}
}

// Statuses reads the status record of every scenario run directory. Runs
// without a record are reported as pending, or skipped when a marker exists.
func Statuses(ctx context.Context, source ScenarioSource, opts Options) ([]domain.RunStatus, error) {
	names, err := source.ScenarioNames(ctx)
	if err != nil {
		return nil, err
	}
	if len(opts.Suffixes) == 0 {
		opts.Suffixes = []string{""}
	}
	var out []domain.RunStatus
	for _, s := range Expand(names, opts.Suffixes) {
		root := s.Root(opts.ModelDir)
		st, err := ReadStatus(root)
		switch {
		case err == nil:
		case errors.Is(err, fs.ErrNotExist):
			st = domain.NewRunStatus(s, root)
			if _, err := os.Stat(filepath.Join(root, domain.MarkerFile)); err == nil {
				st.State = domain.StateSkipped
			}
		default:
			return nil, fmt.Errorf("%s: %w", s.Dir(), err)
		}
		out = append(out, st)
	}
	return out, nil
}
