package constants

// UploadStatus is the canonical state of one invoice upload as it moves
// through the ingestion pipeline.
type UploadStatus string

// Stable values (logged and reported to callers as these exact strings).
const (
	StatusReceived    UploadStatus = "RECEIVED"    // input validated, temp resources not yet created
	StatusRendering   UploadStatus = "RENDERING"   // paged document being rasterized
	StatusRecognizing UploadStatus = "RECOGNIZING" // OCR running page by page
	StatusExtracting  UploadStatus = "EXTRACTING"  // field extraction over assembled text
	StatusCommitted   UploadStatus = "COMMITTED"   // structured record persisted
	StatusSoftFailed  UploadStatus = "SOFT_FAILED" // no usable data; raw text kept for review
	StatusHardFailed  UploadStatus = "HARD_FAILED" // terminal failure, nothing persisted
)

// Terminal reports whether s is an end state of the pipeline.
func (s UploadStatus) Terminal() bool {
	switch s {
	case StatusCommitted, StatusSoftFailed, StatusHardFailed:
		return true
	}
	return false
}
