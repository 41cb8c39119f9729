// Package settings holds the compression configuration chosen by the user and
// derives the parameters handed to the compressor.
package settings

import (
	"errors"
	"fmt"
	"math"
	"sync"

	"photo-compressor-go/internal/compressor"
)

const (
	MinQuality          = 0.1
	MaxQuality          = 1.0
	QualityStep         = 0.05
	DefaultQuality      = 0.8
	DefaultMaxDimension = 1920
)

var (
	ErrInvalidQuality      = errors.New("invalid quality")
	ErrInvalidMaxDimension = errors.New("invalid max dimension")
)

// Provider holds the current quality and max dimension.
type Provider struct {
	mu           sync.RWMutex
	quality      float64
	maxDimension int
}

// NewProvider returns a Provider with validated initial values.
func NewProvider(quality float64, maxDimension int) (*Provider, error) {
	p := &Provider{}
	if err := p.SetQuality(quality); err != nil {
		return nil, err
	}
	if err := p.SetMaxDimension(maxDimension); err != nil {
		return nil, err
	}
	return p, nil
}

// Default returns a Provider with quality 0.8 and max dimension 1920.
func Default() *Provider {
	return &Provider{quality: DefaultQuality, maxDimension: DefaultMaxDimension}
}

// Quality returns the current quality fraction.
func (p *Provider) Quality() float64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.quality
}

// MaxDimension returns the current max dimension in pixels.
func (p *Provider) MaxDimension() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.maxDimension
}

// SetQuality sets the quality, snapped to the nearest 0.05 step.
func (p *Provider) SetQuality(q float64) error {
	if math.IsNaN(q) || q < MinQuality-1e-9 || q > MaxQuality+1e-9 {
		return fmt.Errorf("%w: %v not in [%.2f, %.2f]", ErrInvalidQuality, q, MinQuality, MaxQuality)
	}
	snapped := math.Round(q/QualityStep) * QualityStep
	snapped = math.Round(snapped*100) / 100

	p.mu.Lock()
	p.quality = snapped
	p.mu.Unlock()
	return nil
}

// SetMaxDimension sets the longest-side bound in pixels.
func (p *Provider) SetMaxDimension(px int) error {
	if px <= 0 {
		return fmt.Errorf("%w: %d must be positive", ErrInvalidMaxDimension, px)
	}
	p.mu.Lock()
	p.maxDimension = px
	p.mu.Unlock()
	return nil
}

// SizeBudgetMB returns the size budget derived from the current quality.
func (p *Provider) SizeBudgetMB() float64 {
	return SizeBudgetMB(p.Quality())
}

// Options returns the compressor options for the current settings.
func (p *Provider) Options() compressor.Options {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return compressor.Options{
		TargetQuality: p.quality,
		MaxDimension:  p.maxDimension,
		SizeBudgetMB:  SizeBudgetMB(p.quality),
	}
}

// SizeBudgetMB maps quality to a per-image size budget in megabytes. Below
// quality 0.5 the budget is fixed at 0.5.
func SizeBudgetMB(quality float64) float64 {
	if quality < 0.5 {
		return 0.5
	}
	return (1 - quality) + 0.5
}
