package compressor

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/png"
	"math"

	"photo-compressor-go/internal/extractor"

	"github.com/disintegration/imaging"
	"github.com/sirupsen/logrus"
)

const (
	minJPEGQuality  = 10
	jpegQualityStep = 10
	bytesPerMB      = 1024 * 1024
)

// ImagingTransformer re-encodes images with the disintegration/imaging library.
// JPEG output is stepped down in quality until it fits the size budget.
type ImagingTransformer struct {
	logger *logrus.Logger
}

// NewImagingTransformer returns a new ImagingTransformer.
func NewImagingTransformer(logger *logrus.Logger) *ImagingTransformer {
	return &ImagingTransformer{logger: logger}
}

// Transform decodes, orients, downsizes and re-encodes a single image.
func (t *ImagingTransformer) Transform(ctx context.Context, item Item, opts Options) ([]byte, string, error) {
	img, format, err := image.Decode(bytes.NewReader(item.Data))
	if err != nil {
		return nil, "", fmt.Errorf("decode error: %w", err)
	}

	if format == "jpeg" {
		if o := extractor.OrientationFromBytes(item.Data); o.NeedsTransform() {
			img = applyOrientation(img, o)
		}
	}

	b := img.Bounds()
	if opts.MaxDimension > 0 && (b.Dx() > opts.MaxDimension || b.Dy() > opts.MaxDimension) {
		img = imaging.Fit(img, opts.MaxDimension, opts.MaxDimension, imaging.Lanczos)
	}

	if err := ctx.Err(); err != nil {
		return nil, "", err
	}

	var buf bytes.Buffer
	switch format {
	case "png":
		if err := imaging.Encode(&buf, img, imaging.PNG, imaging.PNGCompressionLevel(png.BestCompression)); err != nil {
			return nil, "", fmt.Errorf("encode error: %w", err)
		}
		return buf.Bytes(), "image/png", nil
	case "gif":
		if err := imaging.Encode(&buf, img, imaging.GIF); err != nil {
			return nil, "", fmt.Errorf("encode error: %w", err)
		}
		return buf.Bytes(), "image/gif", nil
	}

	data, quality, err := encodeJPEGWithinBudget(img, opts)
	if err != nil {
		return nil, "", err
	}
	t.logger.WithFields(logrus.Fields{
		"entry_id": item.ID,
		"quality":  quality,
		"bytes":    len(data),
	}).Debug("Encoded JPEG")
	return data, "image/jpeg", nil
}

// encodeJPEGWithinBudget encodes at the target quality and lowers it until the
// output fits SizeBudgetMB or the minimum quality is reached.
func encodeJPEGWithinBudget(img image.Image, opts Options) ([]byte, int, error) {
	quality := jpegQuality(opts.TargetQuality)
	budget := int(opts.SizeBudgetMB * bytesPerMB)

	var buf bytes.Buffer
	for {
		buf.Reset()
		if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(quality)); err != nil {
			return nil, 0, fmt.Errorf("encode error: %w", err)
		}
		if budget <= 0 || buf.Len() <= budget || quality <= minJPEGQuality {
			return buf.Bytes(), quality, nil
		}
		quality = max(quality-jpegQualityStep, minJPEGQuality)
	}
}

func jpegQuality(fraction float64) int {
	q := int(math.Round(fraction * 100))
	return min(max(q, 1), 100)
}

// applyOrientation rotates or flips img so it displays upright.
func applyOrientation(img image.Image, o extractor.Orientation) image.Image {
	switch o {
	case extractor.OrientationFlipH:
		return imaging.FlipH(img)
	case extractor.OrientationRotate180:
		return imaging.Rotate180(img)
	case extractor.OrientationFlipV:
		return imaging.FlipV(img)
	case extractor.OrientationTranspose:
		return imaging.Transpose(img)
	case extractor.OrientationRotate90CW:
		return imaging.Rotate270(img)
	case extractor.OrientationTransverse:
		return imaging.Transverse(img)
	case extractor.OrientationRotate90CCW:
		return imaging.Rotate90(img)
	default:
		return img
	}
}
