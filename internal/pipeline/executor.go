package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/otiai10/copy"

	"github.com/compound-floodrisk/sfincs-batch/internal/domain"
	"github.com/compound-floodrisk/sfincs-batch/internal/observability"
	"github.com/compound-floodrisk/sfincs-batch/internal/postprocess"
)

// Postprocessor turns a finished run directory into result files.
type Postprocessor interface {
	Process(ctx context.Context, root string) (postprocess.Report, error)
}

// Result is what an executor reports for one run.
type Result struct {
	ExitCode int
	Report   postprocess.Report
	// Outcomes of best-effort copy-back and cleanup steps.
	Outcomes []domain.Outcome
}

// Executor runs the model on one run directory and post-processes it.
type Executor interface {
	Name() string
	Execute(ctx context.Context, root string) (Result, error)
}

// Preparer is implemented by executors that need setup once per batch.
type Preparer interface {
	Prepare(ctx context.Context, modelDir string) []domain.Outcome
}

// waitDelay bounds how long a killed model may hold its output pipes.
const waitDelay = 10 * time.Second

// LocalExecutor runs a native model executable inside the run directory.
type LocalExecutor struct {
	Executable string
	Args       []string
	Post       Postprocessor
	Logger     *slog.Logger
}

func (e *LocalExecutor) Name() string { return "local" }

// Execute writes the executable's stdout to root/sfincs.log, waits for it to
// exit and post-processes root. A non-zero exit code is returned in the
// Result; post-processing runs regardless.
func (e *LocalExecutor) Execute(ctx context.Context, root string) (Result, error) {
	var res Result
	logFile, err := os.Create(filepath.Join(root, domain.MarkerFile))
	if err != nil {
		return res, fmt.Errorf("create run log: %w", err)
	}
	defer logFile.Close()

	cmd := exec.CommandContext(ctx, e.Executable, e.Args...)
	cmd.Dir = root
	cmd.Stdout = logFile
	cmd.Stderr = os.Stderr
	cmd.WaitDelay = waitDelay

	e.Logger.Info("model starting", "dir", root, "executable", e.Executable)
	if res.ExitCode, err = runCommand(ctx, cmd); err != nil {
		return res, err
	}
	if err := logFile.Close(); err != nil {
		e.Logger.Warn("close run log failed", "dir", root, "error", err)
	}

	res.Report, err = e.Post.Process(ctx, root)
	return res, err
}

// runCommand runs cmd and returns its exit code. Only failures to start the
// process, or cancellation, are errors.
func runCommand(ctx context.Context, cmd *exec.Cmd) (int, error) {
	err := cmd.Run()
	if ctx.Err() != nil {
		return -1, fmt.Errorf("model interrupted: %w", ctx.Err())
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode(), nil
	}
	if err != nil {
		return -1, fmt.Errorf("start model: %w", err)
	}
	return 0, nil
}

// ContainerExecutor stages a run directory into a scratch location and runs
// the model image there with a container runtime.
type ContainerExecutor struct {
	// Runtime is the runtime command: docker, podman, singularity or
	// apptainer, or a path to one of them.
	Runtime  string
	Image    string
	GPU      bool
	StageDir string
	// Shared lists directories below the model dir staged once per batch.
	Shared  []string
	Post    Postprocessor
	Output  io.Writer
	Logger  *slog.Logger
	Metrics *observability.Metrics
}

func (e *ContainerExecutor) Name() string { return "container" }

// RuntimeArgs returns the runtime arguments that run the image with dir
// mounted at /data.
func (e *ContainerExecutor) RuntimeArgs(dir string) []string {
	switch filepath.Base(e.Runtime) {
	case "singularity", "apptainer":
		args := []string{"run", "-B" + dir + ":/data"}
		if e.GPU {
			args = append(args, "--nv")
		}
		return append(args, e.Image)
	default:
		args := []string{"run", "--rm", "-v", dir + ":/data", "-w", "/data"}
		if e.GPU {
			args = append(args, "--gpus", "all")
		}
		return append(args, e.Image)
	}
}

// Prepare copies the shared base directories into the stage directory.
func (e *ContainerExecutor) Prepare(_ context.Context, modelDir string) []domain.Outcome {
	outcomes := make([]domain.Outcome, 0, len(e.Shared))
	for _, name := range e.Shared {
		dst := filepath.Join(e.StageDir, name)
		err := copy.Copy(filepath.Join(modelDir, name), dst)
		e.Metrics.ObserveFileOp("stage_shared", err)
		if err != nil {
			e.Logger.Warn("stage shared directory failed", "dir", name, "error", err)
		} else {
			e.Logger.Info("staged shared directory", "dir", name, "dst", dst)
		}
		outcomes = append(outcomes, domain.Outcome{Op: "stage_shared", Path: dst, Err: err})
	}
	return outcomes
}

// Execute marks root as run, copies it to the stage directory, runs the
// container there, post-processes the staged copy and copies the log and
// results back. Copy-back and cleanup failures are reported as outcomes.
func (e *ContainerExecutor) Execute(ctx context.Context, root string) (Result, error) {
	var res Result
	marker := filepath.Join(root, domain.MarkerFile)
	if err := os.WriteFile(marker, nil, 0o644); err != nil {
		return res, fmt.Errorf("write run marker: %w", err)
	}

	stage := filepath.Join(e.StageDir, filepath.Base(root))
	if err := copy.Copy(root, stage); err != nil {
		return res, fmt.Errorf("stage run: %w", err)
	}
	logger := e.Logger.With("dir", root, "stage", stage)

	exitCode, runErr := e.run(ctx, logger, stage)
	res.ExitCode = exitCode
	if runErr != nil {
		res.Outcomes = append(res.Outcomes, e.clearStage(logger, stage))
		return res, runErr
	}

	var postErr error
	res.Report, postErr = e.Post.Process(ctx, stage)

	res.Outcomes = append(res.Outcomes, e.copyBack(logger, stage, root)...)
	res.Outcomes = append(res.Outcomes, e.clearStage(logger, stage))
	return res, postErr
}

func (e *ContainerExecutor) run(ctx context.Context, logger *slog.Logger, stage string) (int, error) {
	logFile, err := os.Create(filepath.Join(stage, domain.MarkerFile))
	if err != nil {
		return -1, fmt.Errorf("create run log: %w", err)
	}
	defer logFile.Close()

	out := io.Writer(logFile)
	if e.Output != nil {
		out = io.MultiWriter(logFile, e.Output)
	}
	cmd := exec.CommandContext(ctx, e.Runtime, e.RuntimeArgs(stage)...)
	cmd.Dir = stage
	cmd.Stdout = out
	cmd.Stderr = out
	cmd.WaitDelay = waitDelay

	logger.Info("container starting", "runtime", e.Runtime, "image", e.Image, "gpu", e.GPU)
	return runCommand(ctx, cmd)
}

// copyBack replaces the marker in root with the real log and copies the
// results next to it.
func (e *ContainerExecutor) copyBack(logger *slog.Logger, stage, root string) []domain.Outcome {
	files := []string{domain.MarkerFile, postprocess.RasterPath, postprocess.PlotPath}
	outcomes := make([]domain.Outcome, 0, len(files))
	for _, rel := range files {
		dst := filepath.Join(root, rel)
		err := copy.Copy(filepath.Join(stage, rel), dst)
		e.Metrics.ObserveFileOp("copy_back", err)
		if err != nil {
			logger.Warn("copy back failed", "file", rel, "error", err)
		}
		outcomes = append(outcomes, domain.Outcome{Op: "copy_back", Path: dst, Err: err})
	}
	return outcomes
}

func (e *ContainerExecutor) clearStage(logger *slog.Logger, stage string) domain.Outcome {
	err := os.RemoveAll(stage)
	e.Metrics.ObserveFileOp("clear_stage", err)
	if err != nil {
		logger.Warn("clear stage failed", "error", err)
	}
	return domain.Outcome{Op: "clear_stage", Path: stage, Err: err}
}
