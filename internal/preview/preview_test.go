package preview

import (
	"testing"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRegistry() *Registry {
	logger, _ := test.NewNullLogger()
	return NewRegistry(logger)
}

func TestAcquireAndGet(t *testing.T) {
	r := newTestRegistry()
	h := r.Acquire([]byte("abc"), "image/png")

	data, mimeType, ok := r.Get(h)
	require.True(t, ok)
	assert.Equal(t, []byte("abc"), data)
	assert.Equal(t, "image/png", mimeType)
	assert.Equal(t, 1, r.Live())
}

func TestHandlesAreDistinct(t *testing.T) {
	r := newTestRegistry()
	a := r.Acquire([]byte("x"), "image/jpeg")
	b := r.Acquire([]byte("x"), "image/jpeg")
	assert.NotEqual(t, a, b)
	assert.Equal(t, 2, r.Live())
}

func TestReleaseOnlyOnce(t *testing.T) {
	r := newTestRegistry()
	h := r.Acquire([]byte("x"), "image/jpeg")

	assert.True(t, r.Release(h))
	assert.False(t, r.Release(h))
	assert.False(t, r.Release("unknown"))

	_, _, ok := r.Get(h)
	assert.False(t, ok)
	assert.Equal(t, 0, r.Live())
	assert.Equal(t, int64(1), r.Acquired())
	assert.Equal(t, int64(1), r.Released())
}
