package service_test

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"convconv/internal/entity"
	"convconv/internal/ffmpeg"
	"convconv/internal/repository/memory"
	"convconv/internal/service"
	"convconv/internal/worker"
)

type fakePaths struct {
	resolveErr error
}

func (p *fakePaths) ResolveInput(path string) (string, error) {
	if p.resolveErr != nil {
		return "", p.resolveErr
	}
	if !strings.Contains(path, "/") {
		path = filepath.Join("uploads", path)
	}
	return path, nil
}

func (p *fakePaths) OutputPath(inputPath, format string) string {
	stem := strings.SplitN(filepath.Base(inputPath), ".", 2)[0]
	return filepath.Join("outputs", stem+"_output."+format)
}

func (p *fakePaths) TestSourceOutputPath(jobID, format string) string {
	return filepath.Join("outputs", "test_"+jobID+"."+format)
}

type fakeDispatcher struct {
	mu        sync.Mutex
	submitted []worker.Task
	cancelled []string

	// onCancel runs instead of the default ErrNotRunning reply.
	onCancel func(id string) error
}

func (d *fakeDispatcher) Submit(task worker.Task) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.submitted = append(d.submitted, task)
}

func (d *fakeDispatcher) Cancel(id string) error {
	d.mu.Lock()
	d.cancelled = append(d.cancelled, id)
	fn := d.onCancel
	d.mu.Unlock()
	if fn != nil {
		return fn(id)
	}
	return worker.ErrNotRunning
}

func newService(opts ...service.JobServiceOption) (*service.JobService, *memory.JobRepository, *fakeDispatcher, *fakePaths) {
	repo := memory.NewJobRepository()
	paths := &fakePaths{}
	jobs := &fakeDispatcher{}
	return service.NewJobService(repo, paths, jobs, ffmpeg.NewRunner(), opts...), repo, jobs, paths
}

func TestJobService_CreateConversion(t *testing.T) {
	ctx := context.Background()
	svc, repo, jobs, _ := newService()

	job, err := svc.CreateConversion(ctx, service.ConvertRequest{
		File:         "uploads/a.mov",
		OutputFormat: "mp4",
		Options:      entity.ConvertOptions{Codec: "libx265"},
	})
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if job.Status != entity.StatusPending {
		t.Fatalf("expected pending, got %s", job.Status)
	}
	if job.OutputPath != filepath.Join("outputs", "a_output.mp4") {
		t.Fatalf("unexpected output path %q", job.OutputPath)
	}

	if len(jobs.submitted) != 1 || jobs.submitted[0].JobID != job.ID {
		t.Fatalf("expected one submitted task for %s, got %#v", job.ID, jobs.submitted)
	}
	if jobs.submitted[0].TestSource != nil || jobs.submitted[0].Convert.Codec != "libx265" {
		t.Fatalf("unexpected task %#v", jobs.submitted[0])
	}

	stored, err := repo.Get(ctx, job.ID)
	if err != nil || stored.InputPath != "uploads/a.mov" {
		t.Fatalf("expected stored job, got %#v, %v", stored, err)
	}
}

func TestJobService_CreateConversion_Invalid(t *testing.T) {
	ctx := context.Background()
	svc, _, jobs, paths := newService()

	cases := []service.ConvertRequest{
		{File: "", OutputFormat: "mp4"},
		{File: "a.mov", OutputFormat: "  "},
	}
	for _, req := range cases {
		if _, err := svc.CreateConversion(ctx, req); !errors.Is(err, service.ErrInvalidRequest) {
			t.Fatalf("expected ErrInvalidRequest for %#v, got %v", req, err)
		}
	}

	paths.resolveErr = errors.New("outside upload dir")
	_, err := svc.CreateConversion(ctx, service.ConvertRequest{File: "/etc/passwd", OutputFormat: "mp4"})
	if !errors.Is(err, service.ErrInvalidRequest) {
		t.Fatalf("expected ErrInvalidRequest, got %v", err)
	}
	if len(jobs.submitted) != 0 {
		t.Fatalf("expected nothing submitted, got %d", len(jobs.submitted))
	}
}

func TestJobService_ThreadsPrefixCustomArgs(t *testing.T) {
	svc, _, jobs, _ := newService(service.WithThreads(4))

	_, err := svc.CreateConversion(context.Background(), service.ConvertRequest{
		File:         "a.mov",
		OutputFormat: "mkv",
		Options:      entity.ConvertOptions{CustomArgs: []string{"-preset", "fast"}},
	})
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}

	got := strings.Join(jobs.submitted[0].Convert.CustomArgs, " ")
	if got != "-threads 4 -preset fast" {
		t.Fatalf("expected threads ahead of custom args, got %q", got)
	}
}

func TestWithThreadArgs_LeavesInputUntouched(t *testing.T) {
	in := entity.ConvertOptions{CustomArgs: []string{"-an"}}
	out := service.WithThreadArgs(in, 2)
	if strings.Join(in.CustomArgs, " ") != "-an" {
		t.Fatalf("input mutated: %v", in.CustomArgs)
	}
	if strings.Join(out.CustomArgs, " ") != "-threads 2 -an" {
		t.Fatalf("unexpected args %v", out.CustomArgs)
	}
	if same := service.WithThreadArgs(in, 0); len(same.CustomArgs) != 1 {
		t.Fatalf("expected unchanged args, got %v", same.CustomArgs)
	}
}

func TestJobService_PreviewConversion(t *testing.T) {
	svc, repo, jobs, _ := newService()

	preview, err := svc.PreviewConversion(context.Background(), service.ConvertRequest{
		File:         "uploads/my clip.mov",
		OutputFormat: "webm",
		Options:      entity.ConvertOptions{Scale: "1280x720"},
	})
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}

	want := ffmpeg.BuildArgs("uploads/my clip.mov", filepath.Join("outputs", "my clip_output.webm"), entity.ConvertOptions{Scale: "1280x720"})
	if strings.Join(preview.Command, "|") != strings.Join(want, "|") {
		t.Fatalf("expected %v, got %v", want, preview.Command)
	}
	if !strings.HasPrefix(preview.CommandLine, `ffmpeg -i "uploads/my clip.mov"`) {
		t.Fatalf("unexpected command line %q", preview.CommandLine)
	}
	if len(jobs.submitted) != 0 || repo.CountByStatus()[entity.StatusPending] != 0 {
		t.Fatalf("preview must not register or start jobs")
	}
}

func TestJobService_CreateTestSource(t *testing.T) {
	svc, _, jobs, _ := newService()
	opts := entity.TestSourceOptions{Pattern: entity.PatternHD, Resolution: "1920x1080", Duration: 5, Format: "mov"}

	job, err := svc.CreateTestSource(context.Background(), opts)
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if job.InputPath != "test-source:hd" {
		t.Fatalf("unexpected input %q", job.InputPath)
	}
	if job.OutputPath != filepath.Join("outputs", "test_"+job.ID+".mov") {
		t.Fatalf("unexpected output %q", job.OutputPath)
	}
	if len(jobs.submitted) != 1 || jobs.submitted[0].TestSource == nil || jobs.submitted[0].TestSource.Duration != 5 {
		t.Fatalf("expected test source task, got %#v", jobs.submitted)
	}
}

func TestJobService_CreateTestSourceBatch(t *testing.T) {
	svc, repo, jobs, _ := newService()
	batch := entity.TestSourceBatch{
		BaseOptions: entity.TestSourceOptions{Pattern: entity.PatternSMPTE, Resolution: "640x480", Duration: 2, Format: "mp4"},
		Variations: entity.TestSourceVariations{
			Patterns: []entity.TestPattern{entity.PatternSMPTE, entity.PatternNoise},
			Formats:  []string{"mp4", "mkv"},
		},
	}

	created, err := svc.CreateTestSourceBatch(context.Background(), batch)
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if len(created) != 4 || len(jobs.submitted) != 4 {
		t.Fatalf("expected 4 jobs, got %d created, %d submitted", len(created), len(jobs.submitted))
	}
	if repo.CountByStatus()[entity.StatusPending] != 4 {
		t.Fatalf("expected 4 pending jobs, got %v", repo.CountByStatus())
	}
}

func TestJobService_Presets(t *testing.T) {
	svc, _, _, _ := newService()

	if len(svc.Presets()) != 3 {
		t.Fatalf("expected 3 presets, got %d", len(svc.Presets()))
	}
	p, err := svc.Preset("web-720p")
	if err != nil || p.Options.Resolution != "1280x720" {
		t.Fatalf("expected web-720p, got %#v, %v", p, err)
	}
	if _, err := svc.Preset("vhs"); !errors.Is(err, service.ErrUnknownPreset) {
		t.Fatalf("expected ErrUnknownPreset, got %v", err)
	}
}

func TestJobService_GetJob_NotFound(t *testing.T) {
	svc, _, _, _ := newService()
	if _, err := svc.GetJob(context.Background(), "missing"); !errors.Is(err, service.ErrJobNotFound) {
		t.Fatalf("expected ErrJobNotFound, got %v", err)
	}
}

func TestJobService_CancelPendingJob(t *testing.T) {
	ctx := context.Background()
	svc, _, jobs, _ := newService()
	job, _ := svc.CreateConversion(ctx, service.ConvertRequest{File: "a.mov", OutputFormat: "mp4"})

	got, err := svc.CancelJob(ctx, job.ID)
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if got.Status != entity.StatusCancelled || got.Error != worker.CancelledReason {
		t.Fatalf("expected cancelled job, got %#v", got)
	}
	if len(jobs.cancelled) != 1 {
		t.Fatalf("expected dispatcher cancel, got %v", jobs.cancelled)
	}
}

func TestJobService_CancelRunningJob(t *testing.T) {
	ctx := context.Background()
	svc, repo, jobs, _ := newService()
	job, _ := svc.CreateConversion(ctx, service.ConvertRequest{File: "a.mov", OutputFormat: "mp4"})
	if _, err := repo.Start(ctx, job.ID); err != nil {
		t.Fatal(err)
	}

	// the running job settles itself when its context is cancelled
	jobs.onCancel = func(id string) error {
		_, err := repo.Cancel(ctx, id, worker.CancelledReason)
		return err
	}

	got, err := svc.CancelJob(ctx, job.ID)
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if got.Status != entity.StatusCancelled {
		t.Fatalf("expected cancelled, got %s", got.Status)
	}
}

func TestJobService_CancelFinishedJob(t *testing.T) {
	ctx := context.Background()
	svc, repo, jobs, _ := newService()
	job, _ := svc.CreateConversion(ctx, service.ConvertRequest{File: "a.mov", OutputFormat: "mp4"})
	_, _ = repo.Start(ctx, job.ID)
	_, _ = repo.Complete(ctx, job.ID, "/api/download/"+job.ID)

	got, err := svc.CancelJob(ctx, job.ID)
	if !errors.Is(err, service.ErrJobFinished) {
		t.Fatalf("expected ErrJobFinished, got %v", err)
	}
	if got.Status != entity.StatusCompleted {
		t.Fatalf("expected completed job back, got %s", got.Status)
	}
	if len(jobs.cancelled) != 0 {
		t.Fatalf("finished job must not reach the dispatcher")
	}

	if _, err := svc.CancelJob(ctx, "missing"); !errors.Is(err, service.ErrJobNotFound) {
		t.Fatalf("expected ErrJobNotFound, got %v", err)
	}
}

func TestJobService_CancelRacesCompletion(t *testing.T) {
	ctx := context.Background()
	svc, repo, jobs, _ := newService()
	job, _ := svc.CreateConversion(ctx, service.ConvertRequest{File: "a.mov", OutputFormat: "mp4"})

	// the job finishes after the lookup but before the registry cancel
	jobs.onCancel = func(id string) error {
		_, _ = repo.Start(ctx, id)
		_, _ = repo.Fail(ctx, id, "FFmpeg exited with code 1")
		return worker.ErrNotRunning
	}

	got, err := svc.CancelJob(ctx, job.ID)
	if !errors.Is(err, service.ErrJobFinished) {
		t.Fatalf("expected ErrJobFinished, got %v", err)
	}
	if got.Status != entity.StatusFailed {
		t.Fatalf("expected failed, got %s", got.Status)
	}
}

func TestJobService_CancelNotYetStopped(t *testing.T) {
	ctx := context.Background()
	svc, repo, jobs, _ := newService()
	job, _ := svc.CreateConversion(ctx, service.ConvertRequest{File: "a.mov", OutputFormat: "mp4"})
	_, _ = repo.Start(ctx, job.ID)

	// signalled, but the job did not settle within the supervisor's wait
	jobs.onCancel = func(string) error { return nil }

	got, err := svc.CancelJob(ctx, job.ID)
	if !errors.Is(err, service.ErrCancelPending) {
		t.Fatalf("expected ErrCancelPending, got %v", err)
	}
	if got.Status != entity.StatusProcessing {
		t.Fatalf("expected processing, got %s", got.Status)
	}
}

func TestJobService_CancelLosesToCompletion(t *testing.T) {
	ctx := context.Background()
	svc, repo, jobs, _ := newService()
	job, _ := svc.CreateConversion(ctx, service.ConvertRequest{File: "a.mov", OutputFormat: "mp4"})
	_, _ = repo.Start(ctx, job.ID)

	jobs.onCancel = func(id string) error {
		_, err := repo.Complete(ctx, id, "/api/download/"+id)
		return err
	}

	got, err := svc.CancelJob(ctx, job.ID)
	if !errors.Is(err, service.ErrJobFinished) {
		t.Fatalf("expected ErrJobFinished, got %v", err)
	}
	if got.Status != entity.StatusCompleted {
		t.Fatalf("expected completed, got %s", got.Status)
	}
}
