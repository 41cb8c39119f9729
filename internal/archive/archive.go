// Package archive packages entries' current bytes into one zip archive.
package archive

import (
	"bytes"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"

	"photo-compressor-go/internal/store"

	"github.com/klauspost/compress/zip"
	"github.com/sirupsen/logrus"
)

// DefaultFilename is the suggested download name for every archive.
const DefaultFilename = "compressed_images.zip"

// ErrArchive classifies every packaging failure.
var ErrArchive = errors.New("archive error")

// Archive is a finished zip archive.
type Archive struct {
	Data     []byte
	Filename string
	Files    int
}

// Builder builds zip archives.
type Builder struct {
	filename string
	logger   *logrus.Logger
	now      func() time.Time
}

// NewBuilder returns a Builder. An empty filename selects DefaultFilename.
func NewBuilder(filename string, logger *logrus.Logger) *Builder {
	if filename == "" {
		filename = DefaultFilename
	}
	return &Builder{filename: filename, logger: logger, now: time.Now}
}

type member struct {
	name string
	data []byte
}

// Build writes one member per entry, named by the entry's original file name
// and holding its current bytes. Names are not deduplicated: a later entry
// with the same name replaces the earlier member, so the archive can hold
// fewer files than entries. On failure no partial archive is returned.
func (b *Builder) Build(entries []store.Entry) (*Archive, error) {
	if len(entries) == 0 {
		return nil, fmt.Errorf("%w: no images to package", ErrArchive)
	}

	var members []member
	index := make(map[string]int)
	for _, e := range entries {
		name := memberName(e.Original.Name)
		if i, ok := index[name]; ok {
			b.logger.WithFields(logrus.Fields{"file": name, "entry_id": e.ID}).Warn("Duplicate file name in archive, keeping the later image")
			members[i].data = e.Current.Data
			continue
		}
		index[name] = len(members)
		members = append(members, member{name: name, data: e.Current.Data})
	}

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	modified := b.now()
	for _, m := range members {
		w, err := zw.CreateHeader(&zip.FileHeader{
			Name:     m.name,
			Method:   zip.Deflate,
			Modified: modified,
		})
		if err != nil {
			_ = zw.Close()
			return nil, fmt.Errorf("%w: create %s: %v", ErrArchive, m.name, err)
		}
		if _, err := w.Write(m.data); err != nil {
			_ = zw.Close()
			return nil, fmt.Errorf("%w: write %s: %v", ErrArchive, m.name, err)
		}
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("%w: finalize: %v", ErrArchive, err)
	}

	b.logger.WithFields(logrus.Fields{
		"files":    len(members),
		"entries":  len(entries),
		"bytes":    buf.Len(),
		"filename": b.filename,
	}).Info("Archive built")

	return &Archive{Data: buf.Bytes(), Filename: b.filename, Files: len(members)}, nil
}

// memberName strips any directory part so members stay at the archive root.
func memberName(name string) string {
	name = path.Base(strings.ReplaceAll(name, "\\", "/"))
	if name == "." || name == "/" || name == "" {
		return "image"
	}
	return name
}
