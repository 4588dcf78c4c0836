package normalize

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"log/slog"

	"github.com/disintegration/imaging"

	"github.com/enerhogar/energia-tracker/internal/common"
)

// Defaults approximate an A4 page at 300 DPI, the geometry the recognition
// engine is tuned for.
const (
	DefaultWidth     = 2480
	DefaultHeight    = 3508
	DefaultThreshold = 160
)

// Config controls the output canvas and binarization cutoff.
type Config struct {
	Width     int
	Height    int
	Threshold uint8 // luminance cutoff for the final black-and-white pass
}

// Normalizer standardizes a page image for OCR: fit-contain onto a fixed
// white canvas, grayscale, contrast stretch, sharpen, binarize.
type Normalizer struct {
	cfg    Config
	logger *slog.Logger
}

func NewNormalizer(cfg Config, logger *slog.Logger) *Normalizer {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Width <= 0 {
		cfg.Width = DefaultWidth
	}
	if cfg.Height <= 0 {
		cfg.Height = DefaultHeight
	}
	if cfg.Threshold == 0 {
		cfg.Threshold = DefaultThreshold
	}
	return &Normalizer{cfg: cfg, logger: logger}
}

// NormalizeBytes decodes a raw page image and normalizes it. A decode
// failure is fatal for the whole document and surfaces as ErrImageDecode.
func (n *Normalizer) NormalizeBytes(data []byte) (*image.Gray, error) {
	src, err := imaging.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, common.NewAppError("IMAGE_DECODE", "decoding page image", fmt.Errorf("%w: %w", common.ErrImageDecode, err))
	}
	return n.Normalize(src), nil
}

// Normalize runs the full standardization chain over an already-decoded
// image. Aspect ratio is preserved; the page is padded onto the canvas, not
// cropped.
func (n *Normalizer) Normalize(src image.Image) *image.Gray {
	fitted := imaging.Fit(src, n.cfg.Width, n.cfg.Height, imaging.Lanczos)
	canvas := imaging.New(n.cfg.Width, n.cfg.Height, color.White)
	canvas = imaging.PasteCenter(canvas, fitted)

	gray := imaging.Grayscale(canvas)
	stretched := stretchContrast(gray)
	sharpened := imaging.Sharpen(stretched, 1.0)

	out := binarize(sharpened, n.cfg.Threshold)
	n.logger.Debug("page image normalized",
		"width", n.cfg.Width, "height", n.cfg.Height, "threshold", n.cfg.Threshold)
	return out
}

// EncodePNG serializes a normalized page for engines that require file
// input.
func EncodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encoding normalized page: %w", err)
	}
	return buf.Bytes(), nil
}

// stretchContrast linearly maps the observed luminance range onto the full
// 0..255 range. A flat image (single intensity) is returned unchanged.
func stretchContrast(img *image.NRGBA) *image.NRGBA {
	b := img.Bounds()
	lo, hi := uint8(255), uint8(0)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			// Grayscale input: R carries the luminance.
			v := img.NRGBAAt(x, y).R
			if v < lo {
				lo = v
			}
			if v > hi {
				hi = v
			}
		}
	}
	if hi <= lo {
		return img
	}

	span := int(hi) - int(lo)
	out := imaging.Clone(img)
	ob := out.Bounds()
	for y := ob.Min.Y; y < ob.Max.Y; y++ {
		for x := ob.Min.X; x < ob.Max.X; x++ {
			px := out.NRGBAAt(x, y)
			v := uint8((int(px.R) - int(lo)) * 255 / span)
			px.R, px.G, px.B = v, v, v
			out.SetNRGBA(x, y, px)
		}
	}
	return out
}

// binarize produces a near black-and-white page: at or above the threshold
// is white, below is black.
func binarize(img *image.NRGBA, threshold uint8) *image.Gray {
	b := img.Bounds()
	out := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	for y := 0; y < b.Dy(); y++ {
		for x := 0; x < b.Dx(); x++ {
			v := img.NRGBAAt(b.Min.X+x, b.Min.Y+y).R
			if v >= threshold {
				out.SetGray(x, y, color.Gray{Y: 255})
			} else {
				out.SetGray(x, y, color.Gray{Y: 0})
			}
		}
	}
	return out
}
