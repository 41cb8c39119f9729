package archive

import (
	"bytes"
	"fmt"
	"io"
	"testing"

	"photo-compressor-go/internal/store"

	"github.com/klauspost/compress/zip"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestBuilder() *Builder {
	logger, _ := test.NewNullLogger()
	return NewBuilder("", logger)
}

func entry(id, name string, current []byte) store.Entry {
	return store.Entry{
		ID:       id,
		Original: store.Blob{Name: name, MimeType: "image/jpeg", Data: []byte("original-" + id)},
		Current:  store.Blob{Name: name, MimeType: "image/jpeg", Data: current},
		Status:   store.StatusCompressed,
	}
}

func readArchive(t *testing.T, a *Archive) map[string][]byte {
	t.Helper()
	zr, err := zip.NewReader(bytes.NewReader(a.Data), int64(len(a.Data)))
	require.NoError(t, err)

	out := make(map[string][]byte)
	for _, f := range zr.File {
		rc, err := f.Open()
		require.NoError(t, err)
		data, err := io.ReadAll(rc)
		rc.Close()
		require.NoError(t, err)
		out[f.Name] = data
	}
	return out
}

func TestBuildDistinctNames(t *testing.T) {
	var entries []store.Entry
	for i := 0; i < 4; i++ {
		entries = append(entries, entry(fmt.Sprint(i), fmt.Sprintf("img%d.jpg", i), []byte(fmt.Sprintf("current-%d", i))))
	}

	a, err := newTestBuilder().Build(entries)
	require.NoError(t, err)
	assert.Equal(t, DefaultFilename, a.Filename)
	assert.Equal(t, 4, a.Files)

	files := readArchive(t, a)
	require.Len(t, files, 4)
	for i := 0; i < 4; i++ {
		assert.Equal(t, []byte(fmt.Sprintf("current-%d", i)), files[fmt.Sprintf("img%d.jpg", i)])
	}
}

func TestBuildNameCollisionKeepsLater(t *testing.T) {
	entries := []store.Entry{
		entry("a", "photo.jpg", []byte("first")),
		entry("b", "other.jpg", []byte("other")),
		entry("c", "photo.jpg", []byte("second")),
	}

	a, err := newTestBuilder().Build(entries)
	require.NoError(t, err)
	assert.Equal(t, 2, a.Files)

	files := readArchive(t, a)
	require.Len(t, files, 2)
	assert.Equal(t, []byte("second"), files["photo.jpg"])
	assert.Equal(t, []byte("other"), files["other.jpg"])
}

func TestBuildUsesCurrentBytes(t *testing.T) {
	a, err := newTestBuilder().Build([]store.Entry{entry("x", "x.jpg", []byte("compressed"))})
	require.NoError(t, err)
	assert.Equal(t, []byte("compressed"), readArchive(t, a)["x.jpg"])
}

func TestBuildEmpty(t *testing.T) {
	a, err := newTestBuilder().Build(nil)
	assert.ErrorIs(t, err, ErrArchive)
	assert.Nil(t, a)
}

func TestMemberName(t *testing.T) {
	assert.Equal(t, "a.jpg", memberName("dir/sub/a.jpg"))
	assert.Equal(t, "b.png", memberName(`C:\photos\b.png`))
	assert.Equal(t, "image", memberName(""))
}

func TestCustomFilename(t *testing.T) {
	logger, _ := test.NewNullLogger()
	a, err := NewBuilder("batch.zip", logger).Build([]store.Entry{entry("x", "x.jpg", []byte("c"))})
	require.NoError(t, err)
	assert.Equal(t, "batch.zip", a.Filename)
}
