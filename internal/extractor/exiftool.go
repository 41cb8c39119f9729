package extractor

import (
	"fmt"
	"strings"

	"github.com/barasher/go-exiftool"
	"github.com/sirupsen/logrus"
)

// ExifToolExtractor reads metadata through an external exiftool process.
type ExifToolExtractor struct {
	logger *logrus.Logger
}

// NewExifToolExtractor returns a new ExifToolExtractor.
func NewExifToolExtractor(logger *logrus.Logger) *ExifToolExtractor {
	return &ExifToolExtractor{logger: logger}
}

// Name returns the extractor name.
func (e *ExifToolExtractor) Name() string {
	return "exiftool"
}

// SupportsFile reports whether the file is supported. exiftool reads every format.
func (e *ExifToolExtractor) SupportsFile(filePath string) bool {
	return filePath != ""
}

// ExtractMetadata returns metadata reported by exiftool.
func (e *ExifToolExtractor) ExtractMetadata(filePath string) (*Metadata, error) {
	et, err := exiftool.NewExiftool()
	if err != nil {
		return nil, fmt.Errorf("start exiftool: %w", err)
	}
	defer et.Close()

	files := et.ExtractMetadata(filePath)
	if len(files) == 0 {
		return nil, fmt.Errorf("exiftool returned no metadata for %s", filePath)
	}
	if files[0].Err != nil {
		return nil, files[0].Err
	}

	md := &Metadata{
		Source: e.Name(),
		Fields: make(map[string]string, len(files[0].Fields)),
	}
	for k, v := range files[0].Fields {
		md.Fields[k] = fmt.Sprint(v)
	}
	if sw, ok := files[0].Fields["Software"].(string); ok {
		md.Software = sw
	}
	if v, err := files[0].GetInt("Orientation"); err == nil {
		md.Orientation = Orientation(v)
	} else if s, err := files[0].GetString("Orientation"); err == nil {
		md.Orientation = parseOrientationName(s)
	}
	if s, err := files[0].GetString("DateTimeOriginal"); err == nil {
		md.Taken = parseEXIFDateTime(s)
	}
	return md, nil
}

func parseOrientationName(s string) Orientation {
	for o := OrientationNormal; o <= OrientationRotate90CCW; o++ {
		if strings.EqualFold(o.String(), s) {
			return o
		}
	}
	if strings.HasPrefix(strings.ToLower(s), "horizontal") {
		return OrientationNormal
	}
	return OrientationUnknown
}

// Extract tries each extractor in order and returns the first successful result.
func Extract(filePath string, extractors ...MetadataExtractor) (*Metadata, error) {
	var errs []string
	for _, ex := range extractors {
		if !ex.SupportsFile(filePath) {
			continue
		}
		md, err := ex.ExtractMetadata(filePath)
		if err == nil {
			return md, nil
		}
		errs = append(errs, fmt.Sprintf("%s: %v", ex.Name(), err))
	}
	if len(errs) == 0 {
		return nil, fmt.Errorf("no extractor supports %s", filePath)
	}
	return nil, fmt.Errorf("metadata extraction failed: %s", strings.Join(errs, "; "))
}
