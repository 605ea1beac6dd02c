package project

import (
	"context"

	"go.uber.org/zap"
)

// FallbackBackend prefers a central store and falls back to a local one
// when the central store reports itself unavailable. Business logic sees a
// single Backend and never branches on availability.
type FallbackBackend struct {
	Primary   Backend
	Secondary Backend
	logger    *zap.Logger
}

// NewFallbackBackend wires a primary and a secondary backend.
func NewFallbackBackend(primary, secondary Backend, logger *zap.Logger) *FallbackBackend {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FallbackBackend{Primary: primary, Secondary: secondary, logger: logger}
}

// Resolve implements Resolver.
func (f *FallbackBackend) Resolve(ctx context.Context) Backend {
	if f.Primary == nil {
		return f.Secondary
	}
	if err := f.Primary.Available(ctx); err != nil {
		f.logger.Warn("central project store unavailable, using local fallback",
			zap.String("primary", f.Primary.Name()),
			zap.String("secondary", f.Secondary.Name()),
			zap.Error(err))
		return f.Secondary
	}
	return f.Primary
}

// Name implements Backend.
func (f *FallbackBackend) Name() string {
	return f.Primary.Name() + "+" + f.Secondary.Name()
}

// Available implements Backend. It is available if either side is.
func (f *FallbackBackend) Available(ctx context.Context) error {
	return f.Resolve(ctx).Available(ctx)
}

func (f *FallbackBackend) Read(ctx context.Context, name string) (*Record, error) {
	return f.Resolve(ctx).Read(ctx, name)
}

func (f *FallbackBackend) CompareAndSwap(ctx context.Context, name string, expected int64, data []byte) (SwapResult, error) {
	return f.Resolve(ctx).CompareAndSwap(ctx, name, expected, data)
}

func (f *FallbackBackend) Lock(ctx context.Context, name string) (Unlock, error) {
	return f.Resolve(ctx).Lock(ctx, name)
}

func (f *FallbackBackend) List(ctx context.Context) ([]string, error) {
	return f.Resolve(ctx).List(ctx)
}
