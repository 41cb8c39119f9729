package settings

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	p := Default()
	assert.Equal(t, 0.8, p.Quality())
	assert.Equal(t, 1920, p.MaxDimension())
}

func TestSetQualityUpdatesOptions(t *testing.T) {
	p := Default()
	require.NoError(t, p.SetQuality(0.7))

	opts := p.Options()
	assert.InDelta(t, 0.7, opts.TargetQuality, 1e-9)
	assert.Equal(t, 1920, opts.MaxDimension)
	assert.InDelta(t, 0.8, opts.SizeBudgetMB, 1e-9)
}

func TestSetQualitySnapsToStep(t *testing.T) {
	tests := []struct {
		in   float64
		want float64
	}{
		{0.1, 0.1},
		{0.71, 0.7},
		{0.73, 0.75},
		{0.999, 1.0},
		{0.35, 0.35},
	}
	for _, tt := range tests {
		p := Default()
		require.NoError(t, p.SetQuality(tt.in))
		assert.InDelta(t, tt.want, p.Quality(), 1e-9, "input %v", tt.in)
	}
}

func TestSetQualityOutOfRange(t *testing.T) {
	p := Default()
	for _, q := range []float64{0, 0.05, 1.2, -1} {
		err := p.SetQuality(q)
		assert.ErrorIs(t, err, ErrInvalidQuality, "quality %v", q)
	}
	assert.Equal(t, DefaultQuality, p.Quality())
}

func TestSetMaxDimension(t *testing.T) {
	p := Default()
	require.NoError(t, p.SetMaxDimension(800))
	assert.Equal(t, 800, p.Options().MaxDimension)

	assert.ErrorIs(t, p.SetMaxDimension(0), ErrInvalidMaxDimension)
	assert.Equal(t, 800, p.MaxDimension())
}

func TestSizeBudgetMB(t *testing.T) {
	assert.Equal(t, 0.5, SizeBudgetMB(0.1))
	assert.Equal(t, 0.5, SizeBudgetMB(0.45))
	assert.InDelta(t, 1.0, SizeBudgetMB(0.5), 1e-9)
	assert.InDelta(t, 0.7, SizeBudgetMB(0.8), 1e-9)
	assert.InDelta(t, 0.5, SizeBudgetMB(1.0), 1e-9)
}

func TestNewProviderValidates(t *testing.T) {
	_, err := NewProvider(2, 100)
	assert.ErrorIs(t, err, ErrInvalidQuality)

	_, err = NewProvider(0.5, -1)
	assert.ErrorIs(t, err, ErrInvalidMaxDimension)

	p, err := NewProvider(0.62, 640)
	require.NoError(t, err)
	assert.InDelta(t, 0.6, p.Quality(), 1e-9)
	assert.InDelta(t, 0.9, p.SizeBudgetMB(), 1e-9)
}
