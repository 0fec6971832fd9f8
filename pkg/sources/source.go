package sources

import (
	"context"
	"fmt"

	"github.com/hwlore/hwlore/pkg/device"
)

// Source is a single external provider of device specifications. Supports
// must be cheap and synchronous; Fetch may perform network I/O and must be
// safe to call concurrently with other sources. Fetch reports every failure
// (network, parse, no match) as an error and never panics the caller.
type Source interface {
	Name() string
	// Priority is an informational tie-break hint (lower = preferred).
	// Actual merge precedence is confidence, not priority.
	Priority() int
	Supports(t device.Type, id device.Identifier) bool
	Fetch(ctx context.Context, t device.Type, id device.Identifier) (*device.PartialInfo, error)
}

// SourceError attributes a failure to one named source. It is never fatal to
// the overall enrichment.
type SourceError struct {
	Source string
	Op     string // "fetch", "parse", "no-match"
	Err    error
}

func (e *SourceError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s failed", e.Source, e.Op)
	}
	return fmt.Sprintf("%s: %s failed: %v", e.Source, e.Op, e.Err)
}

func (e *SourceError) Unwrap() error { return e.Err }

// NewSourceError wraps err with source attribution.
func NewSourceError(source, op string, err error) *SourceError {
	return &SourceError{Source: source, Op: op, Err: err}
}

// Registry holds the ordered collection of registered sources.
type Registry struct {
	sources []Source
}

func NewRegistry(srcs ...Source) *Registry {
	return &Registry{sources: srcs}
}

func (r *Registry) Register(s Source) {
	r.sources = append(r.sources, s)
}

// All returns the registered sources in registration order.
func (r *Registry) All() []Source {
	return r.sources
}

// Matching filters the registry down to sources that claim support for the
// given device, preserving registration order.
func (r *Registry) Matching(t device.Type, id device.Identifier) []Source {
	var out []Source
	for _, s := range r.sources {
		if s.Supports(t, id) {
			out = append(out, s)
		}
	}
	return out
}
