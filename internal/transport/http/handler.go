package httptransport

import (
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"convconv/internal/entity"
	"convconv/internal/service"
)

const multipartMemory = 32 << 20

// UploadStore saves uploaded media.
type UploadStore interface {
	SaveUpload(name string, r io.Reader) (string, int64, error)
}

type Handler struct {
	jobSvc    *service.JobService
	events    *service.Broadcaster
	uploads   UploadStore
	validate  *Validator
	log       *zap.Logger
	maxUpload int64
	origins   []string
}

type HandlerConfig struct {
	MaxUploadBytes int64
	AllowedOrigins []string
	Logger         *zap.Logger
}

func NewHandler(jobSvc *service.JobService, events *service.Broadcaster, uploads UploadStore, cfg HandlerConfig) *Handler {
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &Handler{
		jobSvc:    jobSvc,
		events:    events,
		uploads:   uploads,
		validate:  NewValidator(),
		log:       log,
		maxUpload: cfg.MaxUploadBytes,
		origins:   cfg.AllowedOrigins,
	}
}

type uploadResp struct {
	FilePath string `json:"filePath"`
}

type convertDTO struct {
	File         string                `json:"file" validate:"required"`
	OutputFormat string                `json:"outputFormat" validate:"required,alphanum,max=16"`
	Options      entity.ConvertOptions `json:"options"`
}

type createJobResp struct {
	JobID  string           `json:"jobId"`
	Status entity.JobStatus `json:"status"`
}

type jobResp struct {
	JobID       string           `json:"jobId"`
	Status      entity.JobStatus `json:"status"`
	Progress    *int             `json:"progress,omitempty"`
	DownloadURL string           `json:"downloadUrl,omitempty"`
	Error       string           `json:"error,omitempty"`
}

type testSourceDTO struct {
	Options *entity.TestSourceOptions `json:"options,omitempty"`
	Preset  string                    `json:"preset,omitempty"`
	Batch   *entity.TestSourceBatch   `json:"batch,omitempty"`
}

type batchResp struct {
	Jobs []createJobResp `json:"jobs"`
}

type presetsResp struct {
	Presets []entity.TestSourcePreset `json:"presets"`
}

func toJobResp(j entity.Job) jobResp {
	return jobResp{
		JobID:       j.ID,
		Status:      j.Status,
		Progress:    j.Progress,
		DownloadURL: j.DownloadURL,
		Error:       j.Error,
	}
}

// Upload godoc
// @Summary Upload a media file
// @Description Stores the multipart "file" field in the upload directory.
// @Tags files
// @Accept multipart/form-data
// @Produce json
// @Param file formData file true "media file"
// @Success 200 {object} apiResponse{data=uploadResp}
// @Failure 400 {object} apiResponse
// @Failure 413 {object} apiResponse
// @Failure 500 {object} apiResponse
// @Router /api/upload [post]
func (h *Handler) Upload(w http.ResponseWriter, r *http.Request) {
	if h.maxUpload > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, h.maxUpload)
	}
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeErr(w, http.StatusRequestEntityTooLarge, "File too large")
			return
		}
		writeErr(w, http.StatusBadRequest, "No file provided")
		return
	}
	defer func() {
		if r.MultipartForm != nil {
			_ = r.MultipartForm.RemoveAll()
		}
	}()

	file, header, err := r.FormFile("file")
	if err != nil {
		writeErr(w, http.StatusBadRequest, "No file provided")
		return
	}
	defer file.Close()

	path, _, err := h.uploads.SaveUpload(header.Filename, file)
	if err != nil {
		h.log.Error("upload failed", zap.String("name", header.Filename), zap.Error(err))
		writeErr(w, http.StatusInternalServerError, "Upload failed")
		return
	}
	writeOK(w, http.StatusOK, uploadResp{FilePath: path})
}

// Convert godoc
// @Summary Start a conversion
// @Description Registers a pending job and starts the encoder in the background.
// @Tags jobs
// @Accept json
// @Produce json
// @Param request body convertDTO true "uploaded file path, target format and options"
// @Success 200 {object} apiResponse{data=createJobResp}
// @Failure 400 {object} apiResponse
// @Failure 500 {object} apiResponse
// @Router /api/convert [post]
func (h *Handler) Convert(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decodeConvert(w, r)
	if !ok {
		return
	}

	job, err := h.jobSvc.CreateConversion(r.Context(), req)
	if err != nil {
		h.serviceError(w, err, "Conversion request failed")
		return
	}
	writeOK(w, http.StatusOK, createJobResp{JobID: job.ID, Status: job.Status})
}

// Preview godoc
// @Summary Preview a conversion command
// @Description Returns the encoder command a conversion request would run, without running it.
// @Tags jobs
// @Accept json
// @Produce json
// @Param request body convertDTO true "same body as /api/convert"
// @Success 200 {object} apiResponse{data=service.CommandPreview}
// @Failure 400 {object} apiResponse
// @Router /api/preview [post]
func (h *Handler) Preview(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decodeConvert(w, r)
	if !ok {
		return
	}

	preview, err := h.jobSvc.PreviewConversion(r.Context(), req)
	if err != nil {
		h.serviceError(w, err, "Preview failed")
		return
	}
	writeOK(w, http.StatusOK, preview)
}

func (h *Handler) decodeConvert(w http.ResponseWriter, r *http.Request) (service.ConvertRequest, bool) {
	var dto convertDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		writeErr(w, http.StatusBadRequest, "invalid json")
		return service.ConvertRequest{}, false
	}
	if err := h.validate.Struct(dto); err != nil {
		writeErr(w, http.StatusBadRequest, err.Error())
		return service.ConvertRequest{}, false
	}
	return service.ConvertRequest{File: dto.File, OutputFormat: dto.OutputFormat, Options: dto.Options}, true
}

// GetJob godoc
// @Summary Get job status
// @Tags jobs
// @Produce json
// @Param id path string true "job id"
// @Success 200 {object} apiResponse{data=jobResp}
// @Failure 404 {object} apiResponse
// @Router /api/jobs/{id} [get]
func (h *Handler) GetJob(w http.ResponseWriter, r *http.Request) {
	job, err := h.jobSvc.GetJob(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.serviceError(w, err, "Job lookup failed")
		return
	}
	writeOK(w, http.StatusOK, toJobResp(job))
}

// CancelJob godoc
// @Summary Cancel a job
// @Description Kills the encoder of a running job and marks it cancelled.
// @Tags jobs
// @Produce json
// @Param id path string true "job id"
// @Success 200 {object} apiResponse{data=jobResp}
// @Success 202 {object} apiResponse{data=jobResp} "signalled, still stopping"
// @Failure 404 {object} apiResponse
// @Failure 409 {object} apiResponse
// @Router /api/jobs/{id}/cancel [post]
func (h *Handler) CancelJob(w http.ResponseWriter, r *http.Request) {
	job, err := h.jobSvc.CancelJob(r.Context(), chi.URLParam(r, "id"))
	if errors.Is(err, service.ErrCancelPending) {
		writeOK(w, http.StatusAccepted, toJobResp(job))
		return
	}
	if err != nil {
		h.serviceError(w, err, "Cancel failed")
		return
	}
	writeOK(w, http.StatusOK, toJobResp(job))
}

// Download godoc
// @Summary Download a converted file
// @Tags files
// @Produce octet-stream
// @Param id path string true "job id"
// @Success 200 {file} file
// @Failure 404 {string} string "File not ready"
// @Router /api/download/{id} [get]
func (h *Handler) Download(w http.ResponseWriter, r *http.Request) {
	job, err := h.jobSvc.GetJob(r.Context(), chi.URLParam(r, "id"))
	if err != nil || job.Status != entity.StatusCompleted {
		http.Error(w, "File not ready", http.StatusNotFound)
		return
	}

	f, err := os.Open(job.OutputPath)
	if err != nil {
		h.log.Warn("open output", zap.String("job_id", job.ID), zap.Error(err))
		http.Error(w, "File not ready", http.StatusNotFound)
		return
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil || !info.Mode().IsRegular() {
		http.Error(w, "File not ready", http.StatusNotFound)
		return
	}

	name := filepath.Base(job.OutputPath)
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": name}))
	http.ServeContent(w, r, name, info.ModTime(), f)
}

// CreateTestSource godoc
// @Summary Generate a test source clip
// @Description Starts one generation job, or one per combination when a batch is given.
// @Description A preset id may replace the options.
// @Tags test-source
// @Accept json
// @Produce json
// @Param request body testSourceDTO true "options, preset or batch"
// @Success 200 {object} apiResponse{data=createJobResp}
// @Failure 400 {object} apiResponse
// @Router /api/test-source [post]
func (h *Handler) CreateTestSource(w http.ResponseWriter, r *http.Request) {
	var dto testSourceDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		writeErr(w, http.StatusBadRequest, "invalid json")
		return
	}

	if dto.Batch != nil {
		if err := h.validate.Struct(dto.Batch); err != nil {
			writeErr(w, http.StatusBadRequest, err.Error())
			return
		}
		jobs, err := h.jobSvc.CreateTestSourceBatch(r.Context(), *dto.Batch)
		if err != nil {
			h.serviceError(w, err, "Test source batch failed")
			return
		}
		resp := batchResp{Jobs: make([]createJobResp, 0, len(jobs))}
		for _, j := range jobs {
			resp.Jobs = append(resp.Jobs, createJobResp{JobID: j.ID, Status: j.Status})
		}
		writeOK(w, http.StatusOK, resp)
		return
	}

	opts := dto.Options
	if opts == nil && dto.Preset != "" {
		preset, err := h.jobSvc.Preset(dto.Preset)
		if err != nil {
			h.serviceError(w, err, "Unknown preset")
			return
		}
		o := preset.Options
		o.Preset = preset.ID
		opts = &o
	}
	if opts == nil {
		writeErr(w, http.StatusBadRequest, "options, preset or batch required")
		return
	}
	if err := h.validate.Struct(opts); err != nil {
		writeErr(w, http.StatusBadRequest, err.Error())
		return
	}

	job, err := h.jobSvc.CreateTestSource(r.Context(), *opts)
	if err != nil {
		h.serviceError(w, err, "Test source generation failed")
		return
	}
	writeOK(w, http.StatusOK, createJobResp{JobID: job.ID, Status: job.Status})
}

// ListPresets godoc
// @Summary List test source presets
// @Tags test-source
// @Produce json
// @Success 200 {object} apiResponse{data=presetsResp}
// @Router /api/test-source/presets [get]
func (h *Handler) ListPresets(w http.ResponseWriter, r *http.Request) {
	writeOK(w, http.StatusOK, presetsResp{Presets: h.jobSvc.Presets()})
}

func (h *Handler) serviceError(w http.ResponseWriter, err error, fallback string) {
	switch {
	case errors.Is(err, service.ErrJobNotFound):
		writeErr(w, http.StatusNotFound, "Job not found")
	case errors.Is(err, service.ErrJobFinished):
		writeErr(w, http.StatusConflict, "Job already finished")
	case errors.Is(err, service.ErrUnknownPreset):
		writeErr(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, service.ErrInvalidRequest):
		writeErr(w, http.StatusBadRequest, err.Error())
	default:
		h.log.Error(fallback, zap.Error(err))
		writeErr(w, http.StatusInternalServerError, fallback)
	}
}
