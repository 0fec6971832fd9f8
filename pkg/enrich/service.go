package enrich

import (
	"context"
	"errors"
	"time"

	"github.com/hwlore/hwlore/internal/utils"
	"github.com/hwlore/hwlore/pkg/cache"
	"github.com/hwlore/hwlore/pkg/device"
	"github.com/hwlore/hwlore/pkg/history"
	"github.com/hwlore/hwlore/pkg/images"
	"github.com/hwlore/hwlore/pkg/knowledge"
	"github.com/hwlore/hwlore/pkg/sources"
)

// Config wires the enrichment service's collaborators. Registry, Knowledge
// and Cache are required; Images and History are optional.
type Config struct {
	Registry  *sources.Registry
	Knowledge *knowledge.Store
	Cache     *cache.Manager
	Images    *images.Cache
	History   *history.Log

	CacheTTLDays int
	Concurrency  int
	Timeout      time.Duration
}

// Service is the enrichment entry point: it composes the result cache, the
// source fan-out, the session merge, the knowledge store and the image cache
// into one Enrich operation.
type Service struct {
	orch      *Orchestrator
	knowledge *knowledge.Store
	cache     *cache.Manager
	images    *images.Cache
	history   *history.Log
	ttlDays   int
}

func NewService(cfg Config) *Service {
	orch := NewOrchestrator(cfg.Registry)
	orch.SetConcurrency(cfg.Concurrency)
	orch.SetTimeout(cfg.Timeout)

	ttl := cfg.CacheTTLDays
	if ttl <= 0 {
		ttl = 7
	}
	return &Service{
		orch:      orch,
		knowledge: cfg.Knowledge,
		cache:     cfg.Cache,
		images:    cfg.Images,
		history:   cfg.History,
		ttlDays:   ttl,
	}
}

// Enrich answers (t, id) with the best available merged specification set.
// The TTL cache is consulted first unless forceRefresh is set; on a miss all
// supporting sources are fanned out, the session merge collapses their
// answers, each successful partial is folded into the knowledge store, and
// the final answer is cached. Failures local to one source or one image are
// absorbed; only the complete absence of usable data is an error.
func (s *Service) Enrich(ctx context.Context, t device.Type, id device.Identifier, forceRefresh bool) (*device.EnrichedInfo, error) {
	key := device.Key(t, id)

	if !forceRefresh {
		if cached, ok := s.cache.Get(key, t); ok {
			utils.Log.Debugf("cache hit for %s %s (%s)", t, id.Model, key)
			return cached, nil
		}
	}

	results := s.orch.FetchAll(ctx, t, id)
	merged, err := MergeSession(results, time.Now().UTC())
	if err != nil {
		if errors.Is(err, ErrNoSourceSucceeded) {
			// Previously learned knowledge still counts as usable data.
			if learned, ok := s.knowledge.Get(key); ok {
				utils.Log.Debugf("all sources failed for %s %s, serving learned data", t, id.Model)
				return enrichedFromLearned(learned), nil
			}
		}
		return nil, err
	}

	// Fold each source's answer into the knowledge store, best first, so the
	// per-field confidence comparison sees every contribution.
	for _, part := range merged.Parts {
		changes, kerr := s.knowledge.StoreOrMerge(key, t, id, part)
		if kerr != nil {
			utils.Log.Warnf("knowledge merge failed for %s: %v", key, kerr)
			continue
		}
		if s.history != nil && len(changes) > 0 {
			if herr := s.history.Record(ctx, changes); herr != nil {
				utils.Log.Warnf("could not log spec changes for %s: %v", key, herr)
			}
		}
	}

	enriched := s.buildEnriched(key, t, id, merged)
	s.cache.Set(key, t, enriched, s.ttlDays)

	if s.images != nil {
		s.cacheImagesAsync(enriched)
	}

	return enriched, nil
}

func (s *Service) buildEnriched(key string, t device.Type, id device.Identifier, m *Merged) *device.EnrichedInfo {
	e := &device.EnrichedInfo{
		Key:            key,
		Type:           t,
		Identifier:     id,
		Specs:          m.Specs,
		Categories:     m.Categories,
		Description:    m.Description,
		ReleaseDate:    m.ReleaseDate,
		ProductPageURL: m.ProductPageURL,
		SupportPageURL: m.SupportPageURL,
		ImageURL:       m.ImageURL,
		GalleryURLs:    m.GalleryURLs,
		Drivers:        m.Drivers,
		Docs:           m.Docs,
		Sources:        m.Sources,
	}

	// Descriptive fields learned in earlier sessions fill today's gaps.
	if learned, ok := s.knowledge.Get(key); ok {
		if e.Description == "" {
			e.Description = learned.Description
		}
		if e.ReleaseDate == "" {
			e.ReleaseDate = learned.ReleaseDate
		}
		if len(e.Categories) == 0 {
			e.Categories = learned.Categories
		}
	}
	return e
}

// cacheImagesAsync downloads the primary image under the device's stable
// slot key plus any gallery images, off the enrichment path. Image failures
// never surface to the caller.
func (s *Service) cacheImagesAsync(e *device.EnrichedInfo) {
	primaryURL := e.ImageURL
	gallery := append([]string(nil), e.GalleryURLs...)
	key := e.Key

	go func() {
		ctx := context.Background()
		if primaryURL != "" {
			if _, err := s.images.FetchAndCacheAs(ctx, key+"_primary", primaryURL); err != nil {
				utils.Log.Debugf("primary image for %s not cached: %v", key, err)
			}
		}
		for _, url := range gallery {
			if _, err := s.images.FetchAndCache(ctx, url); err != nil {
				utils.Log.Debugf("gallery image %s not cached: %v", url, err)
			}
		}
	}()
}

func enrichedFromLearned(d *knowledge.LearnedDevice) *device.EnrichedInfo {
	specs := make(map[string]string, len(d.Specs))
	for k, v := range d.Specs {
		specs[k] = v.Value
	}
	var names []string
	for _, si := range d.Sources {
		names = append(names, si.Name)
	}
	return &device.EnrichedInfo{
		Key:         d.Key,
		Type:        d.Type,
		Identifier:  d.Identifier,
		Specs:       specs,
		Categories:  d.Categories,
		Description: d.Description,
		ReleaseDate: d.ReleaseDate,
		Sources:     names,
	}
}
