package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/lthibault/jitterbug/v2"
	"go.uber.org/zap"
)

var (
	ErrOutsideUploadDir = errors.New("path is outside the upload directory")
	ErrInvalidName      = errors.New("invalid file name")
)

// Storage owns the upload and output directories.
type Storage struct {
	uploadDir string
	outputDir string
	retention time.Duration
	log       *zap.Logger
	now       func() time.Time
}

func New(uploadDir, outputDir string, retention time.Duration, log *zap.Logger) *Storage {
	if log == nil {
		log = zap.NewNop()
	}
	return &Storage{
		uploadDir: filepath.Clean(uploadDir),
		outputDir: filepath.Clean(outputDir),
		retention: retention,
		log:       log,
		now:       time.Now,
	}
}

// Init creates both directories.
func (s *Storage) Init() error {
	for _, dir := range []string{s.uploadDir, s.outputDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create %s: %w", dir, err)
		}
	}
	return nil
}

func (s *Storage) UploadDir() string { return s.uploadDir }
func (s *Storage) OutputDir() string { return s.outputDir }

// SaveUpload writes r to <uploadDir>/<unixMillis>_<basename> and returns the path.
func (s *Storage) SaveUpload(name string, r io.Reader) (string, int64, error) {
	base := filepath.Base(filepath.Clean("/" + name))
	if base == "/" || base == "." || base == "" {
		return "", 0, ErrInvalidName
	}

	path := filepath.Join(s.uploadDir, strconv.FormatInt(s.now().UnixMilli(), 10)+"_"+base)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return "", 0, fmt.Errorf("create upload: %w", err)
	}
	n, err := io.Copy(f, r)
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		_ = os.Remove(path)
		return "", 0, fmt.Errorf("write upload: %w", err)
	}

	s.log.Info("upload saved", zap.String("path", path), zap.String("size", humanize.Bytes(uint64(n))))
	return path, n, nil
}

// ResolveInput accepts only existing regular files inside the upload directory.
func (s *Storage) ResolveInput(path string) (string, error) {
	clean := filepath.Clean(path)
	if !strings.ContainsRune(clean, filepath.Separator) {
		clean = filepath.Join(s.uploadDir, clean)
	}

	absDir, err := filepath.Abs(s.uploadDir)
	if err != nil {
		return "", err
	}
	absPath, err := filepath.Abs(clean)
	if err != nil {
		return "", err
	}
	rel, err := filepath.Rel(absDir, absPath)
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", ErrOutsideUploadDir
	}

	info, err := os.Stat(clean)
	if err != nil {
		return "", fmt.Errorf("input file: %w", err)
	}
	if !info.Mode().IsRegular() {
		return "", fmt.Errorf("input file: %s is not a regular file", path)
	}
	return clean, nil
}

// OutputPath derives <outputDir>/<stem>_output.<format>; the stem is the
// input basename up to its first dot.
func (s *Storage) OutputPath(inputPath, format string) string {
	stem := filepath.Base(inputPath)
	if i := strings.Index(stem, "."); i >= 0 {
		stem = stem[:i]
	}
	if stem == "" || stem == "/" {
		stem = "output"
	}
	return filepath.Join(s.outputDir, stem+"_output."+format)
}

func (s *Storage) TestSourceOutputPath(jobID, format string) string {
	return filepath.Join(s.outputDir, "test_"+jobID+"."+format)
}

// SweepStats summarizes one sweep.
type SweepStats struct {
	Removed int
	Bytes   uint64
}

// Sweep removes regular files older than the retention period from both directories.
func (s *Storage) Sweep(ctx context.Context) SweepStats {
	var stats SweepStats
	cutoff := s.now().Add(-s.retention)

	for _, dir := range []string{s.uploadDir, s.outputDir} {
		entries, err := os.ReadDir(dir)
		if err != nil {
			s.log.Warn("read dir", zap.String("dir", dir), zap.Error(err))
			continue
		}
		for _, e := range entries {
			if ctx.Err() != nil {
				return stats
			}
			info, err := e.Info()
			if err != nil || !info.Mode().IsRegular() {
				continue
			}
			if !info.ModTime().Before(cutoff) {
				continue
			}
			path := filepath.Join(dir, e.Name())
			if err := os.Remove(path); err != nil {
				s.log.Warn("remove old file", zap.String("path", path), zap.Error(err))
				continue
			}
			stats.Removed++
			stats.Bytes += uint64(info.Size())
			s.log.Debug("deleted old file", zap.String("path", path), zap.String("age", humanize.Time(info.ModTime())))
		}
	}

	s.log.Info("cleanup finished",
		zap.Int("removed", stats.Removed),
		zap.String("freed", humanize.Bytes(stats.Bytes)),
	)
	return stats
}

// RunSweeper sweeps once immediately and then on a jittered ticker until ctx is done.
func (s *Storage) RunSweeper(ctx context.Context, interval time.Duration) error {
	s.Sweep(ctx)

	ticker := jitterbug.New(interval, &jitterbug.Norm{Stdev: interval / 10})
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			s.Sweep(ctx)
		}
	}
}
