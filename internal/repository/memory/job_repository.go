package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"convconv/internal/entity"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrAlreadyExists     = errors.New("job already exists")
	ErrInvalidTransition = errors.New("invalid transition")
)

// JobRepository is the process-local job registry. Every mutation goes
// through one of the transition methods; records are never deleted.
type JobRepository struct {
	mu   sync.RWMutex
	jobs map[string]*entity.Job
	now  func() time.Time
}

func NewJobRepository() *JobRepository {
	return &JobRepository{
		jobs: make(map[string]*entity.Job),
		now:  func() time.Time { return time.Now().UTC() },
	}
}

// Create registers a pending job. An empty jobID gets a fresh UUID.
func (r *JobRepository) Create(ctx context.Context, inputPath, outputPath, jobID string) (entity.Job, error) {
	if jobID == "" {
		jobID = uuid.NewString()
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.jobs[jobID]; ok {
		return entity.Job{}, fmt.Errorf("%w: %s", ErrAlreadyExists, jobID)
	}
	j := &entity.Job{
		ID:         jobID,
		Status:     entity.StatusPending,
		InputPath:  inputPath,
		OutputPath: outputPath,
		CreatedAt:  r.now(),
	}
	r.jobs[jobID] = j
	return snapshot(j), nil
}

func (r *JobRepository) Get(ctx context.Context, id string) (entity.Job, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	j, ok := r.jobs[id]
	if !ok {
		return entity.Job{}, ErrNotFound
	}
	return snapshot(j), nil
}

// Start moves a pending job to processing.
func (r *JobRepository) Start(ctx context.Context, id string) (entity.Job, error) {
	return r.transition(id, entity.StatusProcessing, func(j *entity.Job) {
		t := r.now()
		j.StartedAt = &t
	})
}

// SetProgress records the latest percent of a processing job, clamped to [0,100].
func (r *JobRepository) SetProgress(ctx context.Context, id string, percent int) (entity.Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	j, ok := r.jobs[id]
	if !ok {
		return entity.Job{}, ErrNotFound
	}
	if j.Status != entity.StatusProcessing {
		return entity.Job{}, fmt.Errorf("%w: progress update while %s", ErrInvalidTransition, j.Status)
	}
	p := clampPercent(percent)
	j.Progress = &p
	return snapshot(j), nil
}

// Complete finishes a processing job with its download location.
func (r *JobRepository) Complete(ctx context.Context, id, downloadURL string) (entity.Job, error) {
	return r.transition(id, entity.StatusCompleted, func(j *entity.Job) {
		t := r.now()
		p := 100
		j.CompletedAt = &t
		j.DownloadURL = downloadURL
		j.Progress = &p
	})
}

// Fail marks a pending or processing job failed and keeps the reason.
// Progress is left at its last value.
func (r *JobRepository) Fail(ctx context.Context, id, reason string) (entity.Job, error) {
	return r.transition(id, entity.StatusFailed, func(j *entity.Job) {
		t := r.now()
		j.CompletedAt = &t
		j.Error = reason
	})
}

// Cancel marks a pending or processing job cancelled.
func (r *JobRepository) Cancel(ctx context.Context, id, reason string) (entity.Job, error) {
	return r.transition(id, entity.StatusCancelled, func(j *entity.Job) {
		t := r.now()
		j.CompletedAt = &t
		j.Error = reason
	})
}

// CountByStatus returns the number of jobs per status.
func (r *JobRepository) CountByStatus() map[entity.JobStatus]int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[entity.JobStatus]int, len(entity.Statuses))
	for _, s := range entity.Statuses {
		out[s] = 0
	}
	for _, j := range r.jobs {
		out[j.Status]++
	}
	return out
}

func (r *JobRepository) transition(id string, to entity.JobStatus, apply func(*entity.Job)) (entity.Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	j, ok := r.jobs[id]
	if !ok {
		return entity.Job{}, ErrNotFound
	}
	if !isValidTransition(j.Status, to) {
		return entity.Job{}, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, j.Status, to)
	}
	j.Status = to
	apply(j)
	return snapshot(j), nil
}

// isValidTransition enforces the job state machine edges.
func isValidTransition(from, to entity.JobStatus) bool {
	switch from {
	case entity.StatusPending:
		return to == entity.StatusProcessing || to == entity.StatusFailed || to == entity.StatusCancelled
	case entity.StatusProcessing:
		return to == entity.StatusCompleted || to == entity.StatusFailed || to == entity.StatusCancelled
	default:
		return false
	}
}

func clampPercent(p int) int {
	if p < 0 {
		return 0
	}
	if p > 100 {
		return 100
	}
	return p
}

// snapshot copies j including its pointer fields so callers never alias registry state.
func snapshot(j *entity.Job) entity.Job {
	out := *j
	if j.Progress != nil {
		p := *j.Progress
		out.Progress = &p
	}
	if j.StartedAt != nil {
		t := *j.StartedAt
		out.StartedAt = &t
	}
	if j.CompletedAt != nil {
		t := *j.CompletedAt
		out.CompletedAt = &t
	}
	return out
}
