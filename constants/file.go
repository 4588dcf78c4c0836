package constants

import "strings"

// Formats for the uploaded document, derived from the declared media type.
const (
	PDF   = "PDF"
	IMAGE = "IMAGE"
)

// MediaTypeToFormat maps a declared media type to a document format.
// Returns "" for anything that is not a PDF or raster image.
func MediaTypeToFormat(mediaType string) string {
	mt := strings.ToLower(strings.TrimSpace(mediaType))
	switch {
	case strings.Contains(mt, "pdf"):
		return PDF
	case strings.HasPrefix(mt, "image/"):
		return IMAGE
	}
	return ""
}

// NormalizeExt lowercases and trims the dot from a file extension.
func NormalizeExt(ext string) string {
	return strings.ToLower(strings.TrimPrefix(ext, "."))
}

// AllowedExtensions is the set of file extensions (lowercase, no dot) the
// pipeline accepts from the filesystem.
var AllowedExtensions = map[string]struct{}{
	"pdf":  {},
	"jpg":  {},
	"jpeg": {},
	"png":  {},
	"tif":  {},
	"tiff": {},
	"bmp":  {},
}

// MediaTypeForExt returns the declared media type for a known file
// extension, or "" when the extension is not accepted.
func MediaTypeForExt(ext string) string {
	switch NormalizeExt(ext) {
	case "pdf":
		return "application/pdf"
	case "jpg", "jpeg":
		return "image/jpeg"
	case "png":
		return "image/png"
	case "tif", "tiff":
		return "image/tiff"
	case "bmp":
		return "image/bmp"
	}
	return ""
}
