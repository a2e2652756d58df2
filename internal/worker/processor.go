package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"convconv/internal/entity"
	"convconv/internal/ffmpeg"
)

const (
	// CancelledReason is stored on cancelled jobs and sent as their error event.
	CancelledReason = "cancelled"
	unknownError    = "Unknown error"
)

// Task is one unit of background work. Exactly one of Convert or TestSource applies;
// a nil TestSource means a conversion.
type Task struct {
	JobID      string
	Convert    entity.ConvertOptions
	TestSource *entity.TestSourceOptions
}

type JobRepo interface {
	Start(ctx context.Context, id string) (entity.Job, error)
	SetProgress(ctx context.Context, id string, percent int) (entity.Job, error)
	Complete(ctx context.Context, id, downloadURL string) (entity.Job, error)
	Fail(ctx context.Context, id, reason string) (entity.Job, error)
	Cancel(ctx context.Context, id, reason string) (entity.Job, error)
}

type Publisher interface {
	BroadcastProgress(jobID string, sample entity.ProgressSample)
	BroadcastComplete(jobID, downloadURL string)
	BroadcastError(jobID, errText string)
}

type Runner interface {
	Run(ctx context.Context, inv ffmpeg.Invocation, onProgress ffmpeg.ProgressFunc) ffmpeg.Result
}

// Recorder receives job outcomes.
type Recorder interface {
	JobFinished(status entity.JobStatus, elapsed time.Duration)
}

type Processor struct {
	repo    JobRepo
	events  Publisher
	runner  Runner
	metrics Recorder
	log     *zap.Logger

	minInterval time.Duration
	now         func() time.Time
}

type ProcessorOption func(*Processor)

func WithRecorder(r Recorder) ProcessorOption {
	return func(p *Processor) { p.metrics = r }
}

func WithProcessorLogger(log *zap.Logger) ProcessorOption {
	return func(p *Processor) {
		if log != nil {
			p.log = log
		}
	}
}

// WithProgressInterval sets how long an unchanged percent is held back.
func WithProgressInterval(d time.Duration) ProcessorOption {
	return func(p *Processor) { p.minInterval = d }
}

func NewProcessor(repo JobRepo, events Publisher, runner Runner, opts ...ProcessorOption) *Processor {
	p := &Processor{
		repo:        repo,
		events:      events,
		runner:      runner,
		log:         zap.NewNop(),
		minInterval: 500 * time.Millisecond,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Process drives one job from pending to a terminal state. Cancelling ctx
// kills the encoder and ends the job as cancelled.
func (p *Processor) Process(ctx context.Context, task Task) error {
	start := p.now()
	id := task.JobID
	// Завершение задачи не должно зависеть от отмены ctx.
	finalCtx := context.WithoutCancel(ctx)

	if ctx.Err() != nil {
		p.cancelled(finalCtx, id, start)
		return ctx.Err()
	}

	job, err := p.repo.Start(ctx, id)
	if err != nil {
		p.log.Warn("start job", zap.String("job_id", id), zap.Error(err))
		return err
	}
	p.log.Info("job started", zap.String("job_id", id), zap.String("status", string(job.Status)))

	p.events.BroadcastProgress(id, entity.ProgressSample{Percent: 0, Time: ffmpeg.FormatClock(0)})

	inv := invocation(job, task)
	gate := newProgressGate(p.minInterval, p.now)
	res := p.runner.Run(ctx, inv, func(s entity.ProgressSample) {
		if !gate.allow(s.Percent) {
			return
		}
		if _, err := p.repo.SetProgress(finalCtx, id, s.Percent); err != nil {
			p.log.Debug("set progress", zap.String("job_id", id), zap.Error(err))
			return
		}
		p.events.BroadcastProgress(id, s)
	})

	if res.Err != nil && ctx.Err() != nil {
		p.cancelled(finalCtx, id, start)
		return ctx.Err()
	}

	if res.Err != nil {
		msg := res.Err.Error()
		if msg == "" {
			msg = unknownError
		}
		p.fail(finalCtx, id, msg, start)
		return res.Err
	}

	downloadURL := "/api/download/" + id
	if _, err := p.repo.Complete(finalCtx, id, downloadURL); err != nil {
		p.log.Error("complete job", zap.String("job_id", id), zap.Error(err))
		return err
	}
	p.events.BroadcastComplete(id, downloadURL)
	p.finished(id, entity.StatusCompleted, start, zap.Float64("media_seconds", res.Duration))
	return nil
}

// ForceFail moves a job stuck outside a terminal state to failed. Used by the
// supervisor when Process panics.
func (p *Processor) ForceFail(ctx context.Context, jobID string, cause any) {
	msg := fmt.Sprintf("internal error: %v", cause)
	p.fail(context.WithoutCancel(ctx), jobID, msg, p.now())
}

func (p *Processor) fail(ctx context.Context, id, msg string, start time.Time) {
	if _, err := p.repo.Fail(ctx, id, msg); err != nil {
		p.log.Warn("fail job", zap.String("job_id", id), zap.Error(err))
		return
	}
	p.events.BroadcastError(id, msg)
	p.finished(id, entity.StatusFailed, start, zap.String("error", msg))
}

func (p *Processor) cancelled(ctx context.Context, id string, start time.Time) {
	if _, err := p.repo.Cancel(ctx, id, CancelledReason); err != nil {
		p.log.Warn("cancel job", zap.String("job_id", id), zap.Error(err))
		return
	}
	p.events.BroadcastError(id, CancelledReason)
	p.finished(id, entity.StatusCancelled, start)
}

func (p *Processor) finished(id string, status entity.JobStatus, start time.Time, extra ...zap.Field) {
	elapsed := p.now().Sub(start)
	fields := append([]zap.Field{
		zap.String("job_id", id),
		zap.String("status", string(status)),
		zap.Int64("duration_ms", elapsed.Milliseconds()),
	}, extra...)
	if status == entity.StatusCompleted {
		p.log.Info("job finished", fields...)
	} else {
		p.log.Warn("job finished", fields...)
	}
	if p.metrics != nil {
		p.metrics.JobFinished(status, elapsed)
	}
}

func invocation(job entity.Job, task Task) ffmpeg.Invocation {
	if task.TestSource != nil {
		return ffmpeg.Invocation{
			Args:         ffmpeg.BuildTestSourceArgs(*task.TestSource, job.OutputPath),
			OutputPath:   job.OutputPath,
			DurationHint: task.TestSource.Duration,
		}
	}
	return ffmpeg.Invocation{
		Args:       ffmpeg.BuildArgs(job.InputPath, job.OutputPath, task.Convert),
		OutputPath: job.OutputPath,
	}
}

// progressGate drops a sample when its percent equals the last one passed
// and less than interval has elapsed since then.
type progressGate struct {
	interval time.Duration
	now      func() time.Time
	last     time.Time
	percent  int
	started  bool
}

func newProgressGate(interval time.Duration, now func() time.Time) *progressGate {
	return &progressGate{interval: interval, now: now}
}

func (g *progressGate) allow(percent int) bool {
	t := g.now()
	if g.started && percent == g.percent && t.Sub(g.last) < g.interval {
		return false
	}
	g.started = true
	g.percent = percent
	g.last = t
	return true
}

// IsCancelled reports whether err came from a cancelled job context.
func IsCancelled(err error) bool {
	return errors.Is(err, context.Canceled)
}
