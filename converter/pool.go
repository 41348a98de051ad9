package converter

// pool.go: process-lifetime cache of initialized engines. Building an engine
// can be expensive (loading native libraries, probing external tools), so
// each kind is built at most once and reused until it is invalidated.

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/rs/zerolog"
)

// EngineKind keys the pool.
type EngineKind string

const (
	// EnginePDF renders PDF documents to Markdown plus images.
	EnginePDF EngineKind = "pdf"
	// EngineOffice converts legacy .doc files to .docx.
	EngineOffice EngineKind = "office"
)

// Engine is an initialized, reusable conversion engine.
type Engine interface {
	Kind() EngineKind
	Close() error
}

// Factory builds an engine of one kind.
type Factory func(ctx context.Context) (Engine, error)

// Pool holds at most one engine per kind. Creation is serialized by a single
// gate so concurrent first use initializes once. Failed initializations are
// not cached.
type Pool struct {
	mu        sync.Mutex
	factories map[EngineKind]Factory
	engines   map[EngineKind]Engine
	log       zerolog.Logger
}

// NewPool returns an empty pool.
func NewPool(log zerolog.Logger) *Pool {
	return &Pool{
		factories: make(map[EngineKind]Factory),
		engines:   make(map[EngineKind]Engine),
		log:       log,
	}
}

// Register sets the factory for kind. An engine already cached for kind is
// kept until Invalidate is called.
func (p *Pool) Register(kind EngineKind, f Factory) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.factories[kind] = f
}

// Registered reports whether a factory is set for kind.
func (p *Pool) Registered(kind EngineKind) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.factories[kind]
	return ok
}

// Acquire returns the cached engine for kind, building it on first use.
func (p *Pool) Acquire(ctx context.Context, kind EngineKind) (Engine, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if e, ok := p.engines[kind]; ok {
		return e, nil
	}
	f, ok := p.factories[kind]
	if !ok {
		return nil, fmt.Errorf("no engine registered for %q", kind)
	}

	p.log.Debug().Str("engine", string(kind)).Msg("initializing engine")
	e, err := f(ctx)
	if err != nil {
		p.log.Warn().Err(err).Str("engine", string(kind)).Msg("engine initialization failed")
		return nil, err
	}
	if e == nil {
		return nil, fmt.Errorf("factory for %q returned no engine", kind)
	}
	p.engines[kind] = e
	p.log.Info().Str("engine", string(kind)).Msg("engine ready")
	return e, nil
}

// Invalidate drops and closes the cached engine for kind, if any.
func (p *Pool) Invalidate(kind EngineKind) {
	p.mu.Lock()
	e, ok := p.engines[kind]
	delete(p.engines, kind)
	p.mu.Unlock()

	if !ok {
		return
	}
	p.log.Warn().Str("engine", string(kind)).Msg("engine invalidated")
	if err := e.Close(); err != nil {
		p.log.Warn().Err(err).Str("engine", string(kind)).Msg("closing invalidated engine")
	}
}

// Evict removes e from the pool without closing it, provided it is still
// the cached engine for kind. The caller owns e afterwards.
func (p *Pool) Evict(kind EngineKind, e Engine) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if cur, ok := p.engines[kind]; !ok || cur != e {
		return false
	}
	delete(p.engines, kind)
	p.log.Warn().Str("engine", string(kind)).Msg("engine evicted")
	return true
}

// Ready lists the kinds that currently hold an initialized engine.
func (p *Pool) Ready() []EngineKind {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]EngineKind, 0, len(p.engines))
	for k := range p.engines {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Close closes every cached engine and empties the pool.
func (p *Pool) Close() error {
	p.mu.Lock()
	engines := p.engines
	p.engines = make(map[EngineKind]Engine)
	p.mu.Unlock()

	var errs []error
	for kind, e := range engines {
		if err := e.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s engine: %w", kind, err))
		}
	}
	return errors.Join(errs...)
}
