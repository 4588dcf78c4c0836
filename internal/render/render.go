package render

import (
	"fmt"
	"image"
	"log/slog"

	"github.com/gen2brain/go-fitz"

	"github.com/enerhogar/energia-tracker/internal/common"
)

// DefaultDPI is the rasterization resolution for paged documents. It matches
// the normalizer's ~300 DPI A4 canvas.
const DefaultDPI = 300

// Page is one rendered page of a multi-page document. Index is 0-based and
// stable: recognized text must be concatenable in ascending Index order.
type Page struct {
	Index int
	Image image.Image
}

// Renderer rasterizes paged documents (PDF) into one image per page.
type Renderer struct {
	dpi    int
	logger *slog.Logger
}

func NewRenderer(dpi int, logger *slog.Logger) *Renderer {
	if dpi <= 0 {
		dpi = DefaultDPI
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Renderer{dpi: dpi, logger: logger}
}

// RenderPDF renders every page of the document, in ascending page order.
// A source that is not a valid paged document fails with ErrRender; the
// caller aborts the whole upload.
func (r *Renderer) RenderPDF(data []byte) ([]Page, error) {
	doc, err := fitz.NewFromMemory(data)
	if err != nil {
		return nil, common.NewAppError("RENDER", "opening paged document", fmt.Errorf("%w: %w", common.ErrRender, err))
	}
	defer doc.Close()

	n := doc.NumPage()
	if n == 0 {
		return nil, common.NewAppError("RENDER", "document has no pages", common.ErrRender)
	}

	pages := make([]Page, 0, n)
	for i := 0; i < n; i++ {
		img, err := doc.ImageDPI(i, float64(r.dpi))
		if err != nil {
			return nil, common.NewAppError("RENDER", fmt.Sprintf("rendering page %d", i), fmt.Errorf("%w: %w", common.ErrRender, err))
		}
		pages = append(pages, Page{Index: i, Image: img})
	}

	r.logger.Debug("document rendered", "pages", n, "dpi", r.dpi)
	return pages, nil
}
