package ingest

import (
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/enerhogar/energia-tracker/constants"
)

// Result is the per-file ingest outcome.
type Result struct {
	SourcePath string
	UploadID   uuid.UUID
	Status     constants.UploadStatus
	HashHex    string
	Err        string
}

// DirStats aggregates one directory scan.
type DirStats struct {
	Scanned      int
	Matched      int
	Succeeded    int
	SoftFailed   int
	Failed       int
	Deduplicated int
}

// AllowedExt checks if a file extension is in the accepted set.
func AllowedExt(ext string) bool {
	_, ok := constants.AllowedExtensions[constants.NormalizeExt(ext)]
	return ok
}

// IsHidden checks if a file or directory is hidden (starts with '.').
func IsHidden(path string) bool {
	return strings.HasPrefix(filepath.Base(path), ".")
}
