package ocr

import (
	"context"
	"fmt"
)

// Pool bounds the number of concurrently running engine instances to cap
// memory use. Checkout is first-come-first-served with no priority; callers
// beyond the bound queue on the channel until an instance returns.
type Pool struct {
	engines chan Engine
	size    int
}

// NewPool creates size engine instances up front using factory. A factory
// failure tears down the instances already created.
func NewPool(size int, factory func() (Engine, error)) (*Pool, error) {
	if size < 1 {
		return nil, fmt.Errorf("pool size must be at least 1, got %d", size)
	}
	p := &Pool{
		engines: make(chan Engine, size),
		size:    size,
	}
	for i := 0; i < size; i++ {
		eng, err := factory()
		if err != nil {
			p.Close()
			return nil, fmt.Errorf("%w: creating engine %d: %v", ErrEngine, i, err)
		}
		p.engines <- eng
	}
	return p, nil
}

// Name identifies the pool by its first engine's provider.
func (p *Pool) Name() string {
	select {
	case eng := <-p.engines:
		name := eng.Name()
		p.engines <- eng
		return fmt.Sprintf("pool(%s)", name)
	default:
		return "pool"
	}
}

// Recognize checks out an engine instance, runs the request, and returns the
// instance. Waiting for an instance respects the caller's context.
func (p *Pool) Recognize(ctx context.Context, req Request) (Result, error) {
	select {
	case <-ctx.Done():
		return Result{}, fmt.Errorf("%w: waiting for engine: %v", ErrEngine, ctx.Err())
	case eng := <-p.engines:
		defer func() { p.engines <- eng }()
		return eng.Recognize(ctx, req)
	}
}

// Close shuts down every pooled instance. In-flight invocations keep their
// checked-out instance until they finish; only idle instances are closed
// here.
func (p *Pool) Close() error {
	var firstErr error
	for {
		select {
		case eng := <-p.engines:
			if err := eng.Close(); err != nil && firstErr == nil {
				firstErr = err
			}
		default:
			return firstErr
		}
	}
}
