package extractor

import (
	"time"
)

// MetadataExtractor is the interface for reading image metadata from files.
type MetadataExtractor interface {
	ExtractMetadata(filePath string) (*Metadata, error)
	SupportsFile(filePath string) bool
	Name() string
}

// Metadata is the subset of image metadata the tool reports.
type Metadata struct {
	Source      string
	Orientation Orientation
	Taken       *time.Time
	Software    string
	Fields      map[string]string
}

// Orientation is the EXIF orientation tag value (1..8).
type Orientation int

const (
	OrientationUnknown Orientation = iota
	OrientationNormal
	OrientationFlipH
	OrientationRotate180
	OrientationFlipV
	OrientationTranspose
	OrientationRotate90CW
	OrientationTransverse
	OrientationRotate90CCW
)

// String returns a human-readable description of the orientation.
func (o Orientation) String() string {
	switch o {
	case OrientationNormal:
		return "Normal"
	case OrientationFlipH:
		return "Mirror horizontal"
	case OrientationRotate180:
		return "Rotate 180"
	case OrientationFlipV:
		return "Mirror vertical"
	case OrientationTranspose:
		return "Mirror horizontal and rotate 270 CW"
	case OrientationRotate90CW:
		return "Rotate 90 CW"
	case OrientationTransverse:
		return "Mirror horizontal and rotate 90 CW"
	case OrientationRotate90CCW:
		return "Rotate 270 CW"
	default:
		return "Unknown"
	}
}

// NeedsTransform reports whether pixels must be rotated or flipped for display.
func (o Orientation) NeedsTransform() bool {
	return o > OrientationNormal && o <= OrientationRotate90CCW
}
