package enrich

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/hwlore/hwlore/pkg/cache"
	"github.com/hwlore/hwlore/pkg/device"
	"github.com/hwlore/hwlore/pkg/knowledge"
	"github.com/hwlore/hwlore/pkg/sources"
)

// countingSource wraps fakeSource and counts Fetch calls.
type countingSource struct {
	fakeSource
	calls int
}

func (c *countingSource) Fetch(ctx context.Context, t device.Type, id device.Identifier) (*device.PartialInfo, error) {
	c.calls++
	return c.fakeSource.Fetch(ctx, t, id)
}

func newTestService(t *testing.T, srcs ...sources.Source) (*Service, *knowledge.Store, *cache.Manager) {
	t.Helper()
	dir := t.TempDir()

	know, err := knowledge.Open(filepath.Join(dir, "learned_devices.json"))
	if err != nil {
		t.Fatal(err)
	}
	cm := cache.NewManager(filepath.Join(dir, "device_cache.json"))

	svc := NewService(Config{
		Registry:     sources.NewRegistry(srcs...),
		Knowledge:    know,
		Cache:        cm,
		CacheTTLDays: 7,
	})
	return svc, know, cm
}

func TestEnrichMergesAndCaches(t *testing.T) {
	src := &countingSource{fakeSource: fakeSource{
		name:     "good",
		supports: true,
		info: &device.PartialInfo{
			Specs:      map[string]string{"cores": "24", "threads": "32"},
			Confidence: 0.9,
			SourceName: "good",
		},
	}}
	svc, know, _ := newTestService(t, src)
	id := device.Identifier{Manufacturer: "Intel", Model: "Core i9-14900K"}

	info, err := svc.Enrich(context.Background(), device.TypeCpu, id, false)
	if err != nil {
		t.Fatal(err)
	}
	if info.Specs["cores"] != "24" {
		t.Fatalf("unexpected merged specs: %v", info.Specs)
	}
	if info.Key != device.Key(device.TypeCpu, id) {
		t.Fatalf("wrong device key: %s", info.Key)
	}

	// The knowledge store learned the device.
	if _, ok := know.Get(info.Key); !ok {
		t.Fatal("device not learned")
	}

	// Second call is served from the cache: no new fetch.
	if _, err := svc.Enrich(context.Background(), device.TypeCpu, id, false); err != nil {
		t.Fatal(err)
	}
	if src.calls != 1 {
		t.Fatalf("expected 1 fetch, got %d", src.calls)
	}

	// forceRefresh bypasses the cache.
	if _, err := svc.Enrich(context.Background(), device.TypeCpu, id, true); err != nil {
		t.Fatal(err)
	}
	if src.calls != 2 {
		t.Fatalf("expected 2 fetches after force refresh, got %d", src.calls)
	}
}

func TestEnrichAllSourcesFail(t *testing.T) {
	svc, _, _ := newTestService(t, &fakeSource{name: "bad", supports: true, err: errors.New("down")})

	_, err := svc.Enrich(context.Background(), device.TypeGpu, device.Identifier{Manufacturer: "NVIDIA", Model: "RTX 5090"}, false)
	if !errors.Is(err, ErrNoSourceSucceeded) {
		t.Fatalf("expected ErrNoSourceSucceeded, got %v", err)
	}
}

func TestEnrichFallsBackToLearnedData(t *testing.T) {
	id := device.Identifier{Manufacturer: "AMD", Model: "Ryzen 9 7950X"}
	flaky := &countingSource{fakeSource: fakeSource{
		name:     "flaky",
		supports: true,
		info: &device.PartialInfo{
			Specs:      map[string]string{"cores": "16"},
			Confidence: 0.8,
			SourceName: "flaky",
		},
	}}
	svc, _, cm := newTestService(t, flaky)

	// First enrichment succeeds and is learned.
	if _, err := svc.Enrich(context.Background(), device.TypeCpu, id, false); err != nil {
		t.Fatal(err)
	}

	// Source dies, cache is cleared: the learned device still answers.
	flaky.err = errors.New("down")
	flaky.info = nil
	cm.Clear()

	info, err := svc.Enrich(context.Background(), device.TypeCpu, id, false)
	if err != nil {
		t.Fatalf("expected learned-data fallback, got %v", err)
	}
	if info.Specs["cores"] != "16" {
		t.Fatalf("learned specs missing: %v", info.Specs)
	}
}

func TestEnrichKnowledgeSeesEverySource(t *testing.T) {
	strong := &fakeSource{name: "strong", supports: true, info: &device.PartialInfo{
		Specs:      map[string]string{"Base Clock": "3.2 GHz"},
		Confidence: 0.9,
		SourceName: "strong",
	}}
	weak := &fakeSource{name: "weak", supports: true, info: &device.PartialInfo{
		Specs:      map[string]string{"base-clock": "3.2 GHz"},
		Confidence: 0.6,
		SourceName: "weak",
	}}
	svc, know, _ := newTestService(t, strong, weak)
	id := device.Identifier{Manufacturer: "Intel", Model: "Core i5-14600K"}

	if _, err := svc.Enrich(context.Background(), device.TypeCpu, id, false); err != nil {
		t.Fatal(err)
	}

	learned, ok := know.Get(device.Key(device.TypeCpu, id))
	if !ok {
		t.Fatal("device not learned")
	}
	spec, ok := learned.Specs[knowledge.NormalizeSpecKey("Base Clock")]
	if !ok {
		t.Fatalf("normalized spec missing: %v", learned.Specs)
	}
	if spec.Confidence != 0.9 {
		t.Fatalf("confidence = %v, want the stronger source's 0.9", spec.Confidence)
	}
	if len(spec.Sources) != 2 {
		t.Fatalf("both sources should corroborate, got %v", spec.Sources)
	}
}
