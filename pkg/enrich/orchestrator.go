package enrich

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/hwlore/hwlore/internal/utils"
	"github.com/hwlore/hwlore/pkg/device"
	"github.com/hwlore/hwlore/pkg/sources"
)

const (
	defaultConcurrency   = 5
	defaultSourceTimeout = 20 * time.Second
)

// SourceResult is the outcome of one source's fetch, success or failure.
// Order preserves the fan-out position for stable merge tie-breaking.
type SourceResult struct {
	Source string
	Order  int
	Info   *device.PartialInfo
	Err    error
}

// Orchestrator fans an enrichment query out to every supporting source
// concurrently. One source's failure never cancels or blocks the others.
type Orchestrator struct {
	registry    *sources.Registry
	concurrency int
	timeout     time.Duration
}

func NewOrchestrator(registry *sources.Registry) *Orchestrator {
	return &Orchestrator{
		registry:    registry,
		concurrency: defaultConcurrency,
		timeout:     defaultSourceTimeout,
	}
}

// SetConcurrency bounds the number of in-flight fetches; <= 0 restores the default.
func (o *Orchestrator) SetConcurrency(n int) {
	if n <= 0 {
		n = defaultConcurrency
	}
	o.concurrency = n
}

// SetTimeout adjusts the per-source fetch deadline; <= 0 restores the default.
func (o *Orchestrator) SetTimeout(d time.Duration) {
	if d <= 0 {
		d = defaultSourceTimeout
	}
	o.timeout = d
}

// FetchAll runs Fetch on every source that supports (t, id) and gathers all
// outcomes. It always returns a result per matching source; the all-failed
// case is left for the merge step to signal.
func (o *Orchestrator) FetchAll(ctx context.Context, t device.Type, id device.Identifier) []SourceResult {
	matching := o.registry.Matching(t, id)
	if len(matching) == 0 {
		return nil
	}

	results := make([]SourceResult, len(matching))
	jobChan := make(chan int, len(matching))

	var wg sync.WaitGroup
	workers := o.concurrency
	if workers > len(matching) {
		workers = len(matching)
	}
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for idx := range jobChan {
				src := matching[idx]
				info, err := o.fetchOne(ctx, src, t, id)
				results[idx] = SourceResult{Source: src.Name(), Order: idx, Info: info, Err: err}
			}
		}()
	}

	for idx := range matching {
		jobChan <- idx
	}
	close(jobChan)
	wg.Wait()

	for _, r := range results {
		if r.Err != nil {
			utils.Log.Debugf("source %s failed for %s %s: %v", r.Source, t, id.Model, r.Err)
		}
	}

	return results
}

// fetchOne applies the per-source timeout and converts a panicking source
// into that source's failure.
func (o *Orchestrator) fetchOne(ctx context.Context, src sources.Source, t device.Type, id device.Identifier) (info *device.PartialInfo, err error) {
	fetchCtx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			info = nil
			err = sources.NewSourceError(src.Name(), "fetch", fmt.Errorf("panic: %v", r))
		}
	}()

	info, err = src.Fetch(fetchCtx, t, id)
	if err != nil {
		if _, ok := err.(*sources.SourceError); !ok {
			err = sources.NewSourceError(src.Name(), "fetch", err)
		}
		return nil, err
	}
	if info == nil {
		return nil, sources.NewSourceError(src.Name(), "fetch", fmt.Errorf("source returned no data"))
	}
	return info, nil
}
