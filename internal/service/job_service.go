package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"convconv/internal/entity"
	"convconv/internal/ffmpeg"
	"convconv/internal/repository/memory"
	"convconv/internal/worker"
)

var (
	ErrJobNotFound    = errors.New("job not found")
	ErrInvalidRequest = errors.New("invalid request")
	ErrJobFinished    = errors.New("job already finished")
	ErrUnknownPreset  = errors.New("unknown preset")

	// ErrCancelPending means the job was signalled but has not stopped yet.
	ErrCancelPending = errors.New("cancel requested, job still stopping")
)

// Порт реестра задач (реализация: memory.JobRepository)
type JobRepository interface {
	Create(ctx context.Context, inputPath, outputPath, jobID string) (entity.Job, error)
	Get(ctx context.Context, id string) (entity.Job, error)
	Cancel(ctx context.Context, id, reason string) (entity.Job, error)
}

// Порт хранилища: только вычисление путей.
type PathProvider interface {
	ResolveInput(path string) (string, error)
	OutputPath(inputPath, format string) string
	TestSourceOutputPath(jobID, format string) string
}

// Dispatcher starts and stops background jobs (implemented by worker.Supervisor).
type Dispatcher interface {
	Submit(task worker.Task)
	Cancel(jobID string) error
}

// CommandPreviewer renders an argument vector as a command line.
type CommandPreviewer interface {
	Preview(args []string) string
}

type JobService struct {
	repo      JobRepository
	paths     PathProvider
	jobs      Dispatcher
	previewer CommandPreviewer
	threads   int
}

type JobServiceOption func(*JobService)

// WithThreads prefixes every conversion's custom args with -threads n when n > 0.
func WithThreads(n int) JobServiceOption {
	return func(s *JobService) { s.threads = n }
}

func NewJobService(repo JobRepository, paths PathProvider, jobs Dispatcher, previewer CommandPreviewer, opts ...JobServiceOption) *JobService {
	s := &JobService{repo: repo, paths: paths, jobs: jobs, previewer: previewer}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type ConvertRequest struct {
	File         string
	OutputFormat string
	Options      entity.ConvertOptions
}

// CommandPreview is the command a conversion would run.
type CommandPreview struct {
	Command     []string `json:"command"`
	CommandLine string   `json:"commandLine"`
}

func (s *JobService) CreateConversion(ctx context.Context, req ConvertRequest) (entity.Job, error) {
	input, output, opts, err := s.prepareConversion(req)
	if err != nil {
		return entity.Job{}, err
	}

	job, err := s.repo.Create(ctx, input, output, "")
	if err != nil {
		return entity.Job{}, err
	}
	s.jobs.Submit(worker.Task{JobID: job.ID, Convert: opts})
	return job, nil
}

// PreviewConversion returns the command CreateConversion would execute for req.
func (s *JobService) PreviewConversion(ctx context.Context, req ConvertRequest) (CommandPreview, error) {
	input, output, opts, err := s.prepareConversion(req)
	if err != nil {
		return CommandPreview{}, err
	}
	args := ffmpeg.BuildArgs(input, output, opts)
	return CommandPreview{Command: args, CommandLine: s.previewer.Preview(args)}, nil
}

func (s *JobService) prepareConversion(req ConvertRequest) (string, string, entity.ConvertOptions, error) {
	if strings.TrimSpace(req.File) == "" {
		return "", "", entity.ConvertOptions{}, fmt.Errorf("%w: file is required", ErrInvalidRequest)
	}
	if strings.TrimSpace(req.OutputFormat) == "" {
		return "", "", entity.ConvertOptions{}, fmt.Errorf("%w: outputFormat is required", ErrInvalidRequest)
	}

	input, err := s.paths.ResolveInput(req.File)
	if err != nil {
		return "", "", entity.ConvertOptions{}, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	output := s.paths.OutputPath(input, req.OutputFormat)
	return input, output, s.normalizeOptions(req.Options), nil
}

func (s *JobService) normalizeOptions(opts entity.ConvertOptions) entity.ConvertOptions {
	return WithThreadArgs(opts, s.threads)
}

// WithThreadArgs returns opts with -threads n placed ahead of the custom args.
// n <= 0 leaves opts unchanged.
func WithThreadArgs(opts entity.ConvertOptions, n int) entity.ConvertOptions {
	if n <= 0 {
		return opts
	}
	custom := make([]string, 0, len(opts.CustomArgs)+2)
	custom = append(custom, "-threads", strconv.Itoa(n))
	opts.CustomArgs = append(custom, opts.CustomArgs...)
	return opts
}

// CreateTestSource registers and starts one synthetic clip generation.
func (s *JobService) CreateTestSource(ctx context.Context, opts entity.TestSourceOptions) (entity.Job, error) {
	jobID := uuid.NewString()
	input := "test-source:" + string(opts.Pattern)
	output := s.paths.TestSourceOutputPath(jobID, opts.Format)

	job, err := s.repo.Create(ctx, input, output, jobID)
	if err != nil {
		return entity.Job{}, err
	}
	o := opts
	s.jobs.Submit(worker.Task{JobID: job.ID, TestSource: &o})
	return job, nil
}

// CreateTestSourceBatch starts one job per combination of the batch variations.
func (s *JobService) CreateTestSourceBatch(ctx context.Context, batch entity.TestSourceBatch) ([]entity.Job, error) {
	variants := ffmpeg.ExpandBatch(batch)
	jobs := make([]entity.Job, 0, len(variants))
	for _, opts := range variants {
		job, err := s.CreateTestSource(ctx, opts)
		if err != nil {
			return jobs, err
		}
		jobs = append(jobs, job)
	}
	return jobs, nil
}

func (s *JobService) Presets() []entity.TestSourcePreset {
	return ffmpeg.Presets()
}

// Preset looks up a built-in preset by id.
func (s *JobService) Preset(id string) (entity.TestSourcePreset, error) {
	for _, p := range ffmpeg.Presets() {
		if p.ID == id {
			return p, nil
		}
	}
	return entity.TestSourcePreset{}, fmt.Errorf("%w: %s", ErrUnknownPreset, id)
}

func (s *JobService) GetJob(ctx context.Context, id string) (entity.Job, error) {
	job, err := s.repo.Get(ctx, id)
	if errors.Is(err, memory.ErrNotFound) {
		return entity.Job{}, ErrJobNotFound
	}
	return job, err
}

// CancelJob stops a running job. A job that was registered but whose
// goroutine has not claimed it yet is cancelled directly in the registry.
// The returned job is always the current record; ErrJobFinished and
// ErrCancelPending report that it did not end as cancelled.
func (s *JobService) CancelJob(ctx context.Context, id string) (entity.Job, error) {
	job, err := s.GetJob(ctx, id)
	if err != nil {
		return entity.Job{}, err
	}
	if job.Status.IsTerminal() {
		return job, ErrJobFinished
	}

	err = s.jobs.Cancel(id)
	switch {
	case err == nil:
		job, err = s.GetJob(ctx, id)
		if err != nil {
			return entity.Job{}, err
		}
		switch {
		case job.Status == entity.StatusCancelled:
			return job, nil
		case job.Status.IsTerminal():
			// finished on its own before the signal landed
			return job, ErrJobFinished
		default:
			return job, ErrCancelPending
		}
	case errors.Is(err, worker.ErrNotRunning):
		job, err = s.repo.Cancel(ctx, id, worker.CancelledReason)
		if errors.Is(err, memory.ErrInvalidTransition) {
			// finished between the lookup and the cancel
			current, getErr := s.GetJob(ctx, id)
			if getErr != nil {
				return entity.Job{}, getErr
			}
			return current, ErrJobFinished
		}
		return job, err
	default:
		return entity.Job{}, err
	}
}
