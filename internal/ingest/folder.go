package ingest

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/enerhogar/energia-tracker/constants"
	"github.com/enerhogar/energia-tracker/internal/pipeline"
)

// Runner runs one upload through the processing pipeline.
type Runner interface {
	Run(ctx context.Context, up pipeline.Upload) (pipeline.Result, error)
}

// Folder ingests invoice files from a drop directory. The layout is
// <root>/<user-id>/<file>: the owning user is taken from the parent
// directory name. Files already ingested (by content hash) are skipped.
type Folder struct {
	runner Runner
	logger *slog.Logger

	mu   sync.Mutex
	seen map[string]struct{} // sha256 hex of ingested content
}

func NewFolder(runner Runner, logger *slog.Logger) *Folder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Folder{
		runner: runner,
		logger: logger,
		seen:   make(map[string]struct{}),
	}
}

// userFromPath extracts the user ID from the file's parent directory name.
func userFromPath(path string) (int64, error) {
	dir := filepath.Base(filepath.Dir(path))
	id, err := strconv.ParseInt(dir, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("parent directory %q is not a user id", dir)
	}
	return id, nil
}

// IngestPath runs one file through the pipeline. A soft failure is a valid
// outcome and reported in the Result status, not as Err.
func (f *Folder) IngestPath(ctx context.Context, path string) (Result, error) {
	out := Result{SourcePath: path}

	abs, err := filepath.Abs(path)
	if err != nil {
		return out, err
	}
	ext := constants.NormalizeExt(filepath.Ext(abs))
	mediaType := constants.MediaTypeForExt(ext)
	if mediaType == "" {
		return out, fmt.Errorf("unsupported extension %q", ext)
	}

	userID, err := userFromPath(abs)
	if err != nil {
		return out, err
	}

	content, err := os.ReadFile(abs)
	if err != nil {
		return out, err
	}

	sum := sha256.Sum256(content)
	out.HashHex = hex.EncodeToString(sum[:])

	f.mu.Lock()
	if _, dup := f.seen[out.HashHex]; dup {
		f.mu.Unlock()
		f.logger.Info("skipping already ingested file", "path", abs, "hash", out.HashHex)
		out.Status = ""
		return out, nil
	}
	f.seen[out.HashHex] = struct{}{}
	f.mu.Unlock()

	res, err := f.runner.Run(ctx, pipeline.Upload{
		UserID:    userID,
		Content:   content,
		MediaType: mediaType,
		Filename:  filepath.Base(abs),
	})
	if err != nil {
		return out, err
	}

	out.UploadID = res.UploadID
	out.Status = res.Status
	return out, nil
}

// IngestDirectory walks root and ingests every accepted file, skipping
// hidden entries. Per-file failures are recorded, not fatal.
func (f *Folder) IngestDirectory(ctx context.Context, root string) ([]Result, DirStats, error) {
	var results []Result
	var stats DirStats

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		stats.Scanned++
		if walkErr != nil {
			results = append(results, Result{SourcePath: path, Err: walkErr.Error()})
			stats.Failed++
			return nil
		}
		if IsHidden(path) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			return nil
		}
		if !AllowedExt(filepath.Ext(path)) {
			return nil
		}
		stats.Matched++

		r, err := f.IngestPath(ctx, path)
		if err != nil {
			r.Err = err.Error()
			results = append(results, r)
			stats.Failed++
			return nil
		}
		if r.Status == "" {
			stats.Deduplicated++
			results = append(results, r)
			return nil
		}
		if r.Status == constants.StatusSoftFailed {
			stats.SoftFailed++
		} else {
			stats.Succeeded++
		}
		results = append(results, r)
		return nil
	})
	if err != nil {
		return results, stats, fmt.Errorf("walk: %w", err)
	}
	return results, stats, nil
}

// Watch consumes watcher events until ctx is cancelled, ingesting each
// discovered file. It blocks.
func (f *Folder) Watch(ctx context.Context, root string, debounce time.Duration) error {
	events, errs, err := StartWatcher(ctx, WatchConfig{
		Roots:       []string{root},
		InitialScan: true,
		Debounce:    debounce,
	}, f.logger)
	if err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case path, ok := <-events:
			if !ok {
				return nil
			}
			r, err := f.IngestPath(ctx, path)
			if err != nil {
				f.logger.Error("folder ingest failed", "path", path, "error", err)
				continue
			}
			if r.Status != "" {
				f.logger.Info("folder ingest finished",
					"path", path, "upload_id", r.UploadID, "status", r.Status)
			}
		case <-errs:
			// Already logged by the watcher; keep going.
		}
	}
}
