package enrich

import (
	"errors"
	"sort"
	"time"

	"github.com/hwlore/hwlore/pkg/device"
)

// ErrNoSourceSucceeded is returned when every applicable source failed. It is
// the only condition under which an enrichment reports failure to its caller.
var ErrNoSourceSucceeded = errors.New("no source returned usable data")

// Merged is the one-shot combination of a single fetch's results. It is
// never persisted as-is; the knowledge store applies its own merge rule.
type Merged struct {
	Specs          map[string]string
	Categories     []device.SpecCategory
	Description    string
	ReleaseDate    string
	ProductPageURL string
	SupportPageURL string
	ImageURL       string
	GalleryURLs    []string
	Drivers        []device.DriverLink
	Docs           []device.DocLink

	// Sources lists contributing source names, highest confidence first.
	Sources     []string
	SourceInfos []device.SourceInfo

	// Parts holds the successful partials in merge order, for callers that
	// apply per-source follow-up work (knowledge merge, history logging).
	Parts []*device.PartialInfo
}

// MergeSession collapses a fan-out's results into a single best-effort
// answer. Failures are dropped; the remaining partials are ordered by
// confidence descending (stable on fan-out order), the best one becomes the
// base, and lower-confidence partials only fill spec keys and descriptive
// fields that are still unset. A key claimed by an earlier partial is never
// overridden by a later one.
//
// The merge is pure: it never mutates its inputs, and the same result list
// with the same timestamp always produces the same output.
func MergeSession(results []SourceResult, now time.Time) (*Merged, error) {
	var oks []SourceResult
	for _, r := range results {
		if r.Err == nil && r.Info != nil {
			oks = append(oks, r)
		}
	}
	if len(oks) == 0 {
		return nil, ErrNoSourceSucceeded
	}

	sort.SliceStable(oks, func(i, j int) bool {
		return oks[i].Info.Confidence > oks[j].Info.Confidence
	})

	base := oks[0].Info
	m := &Merged{
		Specs:          make(map[string]string, len(base.Specs)),
		Categories:     append([]device.SpecCategory(nil), base.Categories...),
		Description:    base.Description,
		ReleaseDate:    base.ReleaseDate,
		ProductPageURL: base.ProductPageURL,
		SupportPageURL: base.SupportPageURL,
		ImageURL:       base.ImageURL,
		GalleryURLs:    append([]string(nil), base.GalleryURLs...),
		Drivers:        append([]device.DriverLink(nil), base.Drivers...),
		Docs:           append([]device.DocLink(nil), base.Docs...),
	}
	for k, v := range base.Specs {
		m.Specs[k] = v
	}

	for i, r := range oks {
		info := r.Info
		m.Sources = append(m.Sources, info.SourceName)
		m.SourceInfos = append(m.SourceInfos, device.SourceInfo{
			Name:       info.SourceName,
			URL:        info.SourceURL,
			Confidence: info.Confidence,
			FetchedAt:  now,
		})
		m.Parts = append(m.Parts, info)

		if i == 0 {
			continue
		}

		for k, v := range info.Specs {
			if _, exists := m.Specs[k]; !exists {
				m.Specs[k] = v
			}
		}
		if m.Description == "" {
			m.Description = info.Description
		}
		if m.ReleaseDate == "" {
			m.ReleaseDate = info.ReleaseDate
		}
		if m.ProductPageURL == "" {
			m.ProductPageURL = info.ProductPageURL
		}
		if m.SupportPageURL == "" {
			m.SupportPageURL = info.SupportPageURL
		}
		if m.ImageURL == "" {
			m.ImageURL = info.ImageURL
		}
		if len(m.Categories) == 0 {
			m.Categories = append([]device.SpecCategory(nil), info.Categories...)
		}
		m.GalleryURLs = append(m.GalleryURLs, info.GalleryURLs...)
		m.Drivers = append(m.Drivers, info.Drivers...)
		m.Docs = append(m.Docs, info.Docs...)
	}

	return m, nil
}
