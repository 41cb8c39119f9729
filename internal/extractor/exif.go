package extractor

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/rwcarlsen/goexif/exif"
	"github.com/rwcarlsen/goexif/tiff"
	"github.com/sirupsen/logrus"
)

// EXIFExtractor reads metadata using the rwcarlsen/goexif library.
type EXIFExtractor struct {
	logger *logrus.Logger
}

// NewEXIFExtractor returns a new EXIFExtractor.
func NewEXIFExtractor(logger *logrus.Logger) *EXIFExtractor {
	return &EXIFExtractor{logger: logger}
}

// Name returns the extractor name.
func (e *EXIFExtractor) Name() string {
	return "goexif"
}

// SupportsFile reports whether the file is supported by this extractor.
func (e *EXIFExtractor) SupportsFile(filePath string) bool {
	ext := strings.ToLower(filepath.Ext(filePath))
	return slices.Contains([]string{".jpg", ".jpeg", ".tiff", ".tif"}, ext)
}

// ExtractMetadata returns EXIF metadata from an image file.
func (e *EXIFExtractor) ExtractMetadata(filePath string) (*Metadata, error) {
	if !e.SupportsFile(filePath) {
		return nil, fmt.Errorf("file type not supported by extractor: %s", filePath)
	}

	file, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	return e.decode(file)
}

func (e *EXIFExtractor) decode(r io.Reader) (*Metadata, error) {
	x, err := exif.Decode(r)
	if err != nil {
		return nil, fmt.Errorf("failed to decode EXIF: %w", err)
	}

	md := &Metadata{
		Source:      e.Name(),
		Orientation: orientationOf(x),
		Fields:      make(map[string]string),
	}

	if tm, err := x.DateTime(); err == nil {
		md.Taken = &tm
	} else if field, err := x.Get(exif.DateTimeOriginal); err == nil {
		if s, err := field.StringVal(); err == nil {
			md.Taken = parseEXIFDateTime(s)
		}
	}

	if field, err := x.Get(exif.Software); err == nil {
		if s, err := field.StringVal(); err == nil {
			md.Software = s
		}
	}

	_ = x.Walk(fieldCollector(md.Fields))
	return md, nil
}

// OrientationFromBytes returns the EXIF orientation of an encoded image, or
// OrientationUnknown when the payload carries no readable EXIF block.
func OrientationFromBytes(data []byte) Orientation {
	x, err := exif.Decode(bytes.NewReader(data))
	if err != nil {
		return OrientationUnknown
	}
	return orientationOf(x)
}

func orientationOf(x *exif.Exif) Orientation {
	tag, err := x.Get(exif.Orientation)
	if err != nil {
		return OrientationUnknown
	}
	v, err := tag.Int(0)
	if err != nil || v < int(OrientationNormal) || v > int(OrientationRotate90CCW) {
		return OrientationUnknown
	}
	return Orientation(v)
}

type fieldCollector map[string]string

func (f fieldCollector) Walk(name exif.FieldName, tag *tiff.Tag) error {
	f[string(name)] = strings.Trim(tag.String(), `"`)
	return nil
}

// parseEXIFDateTime parses an EXIF date time string. Returns nil if parsing fails.
func parseEXIFDateTime(dateStr string) *time.Time {
	if dateStr == "" {
		return nil
	}

	formats := []string{
		"2006:01:02 15:04:05",
		"2006-01-02 15:04:05",
		"2006:01:02",
		time.RFC3339,
	}

	for _, format := range formats {
		if date, err := time.Parse(format, dateStr); err == nil {
			return &date
		}
	}
	return nil
}
