package cmd

import (
	"fmt"
	"path/filepath"

	homedir "github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"

	"github.com/hwlore/hwlore/internal/utils"
	"github.com/hwlore/hwlore/pkg/cache"
	"github.com/hwlore/hwlore/pkg/enrich"
	"github.com/hwlore/hwlore/pkg/history"
	"github.com/hwlore/hwlore/pkg/images"
	"github.com/hwlore/hwlore/pkg/knowledge"
	"github.com/hwlore/hwlore/pkg/sources"
	"github.com/hwlore/hwlore/pkg/sources/llm"
	"github.com/hwlore/hwlore/pkg/sources/specdb"
	"github.com/hwlore/hwlore/pkg/sources/vendorsite"
	"github.com/hwlore/hwlore/pkg/sources/wikispecs"
	"github.com/hwlore/hwlore/pkg/whttp"
)

// app bundles the stores and the enrichment service for one CLI invocation.
type app struct {
	dataDir   string
	lock      *utils.DataLock
	registry  *sources.Registry
	knowledge *knowledge.Store
	cache     *cache.Manager
	images    *images.Cache
	history   *history.Log
	service   *enrich.Service
}

func dataDir() (string, error) {
	dir := viper.GetString("datadir")
	if dir == "" {
		home, err := homedir.Dir()
		if err != nil {
			return "", err
		}
		dir = filepath.Join(home, ".hwlore")
	}
	return dir, utils.EnsureDir(dir)
}

// openApp builds the full stack: app-data lock, the three stores, the source
// registry and the enrichment service on top.
func openApp(proxy string) (*app, error) {
	dir, err := dataDir()
	if err != nil {
		return nil, fmt.Errorf("could not prepare data directory: %w", err)
	}

	lock, err := utils.NewDataLock(dir)
	if err != nil {
		return nil, err
	}
	if err := lock.Lock(); err != nil {
		return nil, err
	}

	client := whttp.NewClient(proxy)

	know, err := knowledge.Open(filepath.Join(dir, "learned_devices.json"))
	if err != nil {
		lock.Unlock()
		return nil, err
	}

	maxImageBytes := viper.GetInt64("images.max_size_mb") << 20
	imgCache, err := images.New(filepath.Join(dir, "images"), maxImageBytes, client)
	if err != nil {
		lock.Unlock()
		return nil, err
	}

	hist, err := history.Open(filepath.Join(dir, "history.sqlite"))
	if err != nil {
		lock.Unlock()
		return nil, err
	}

	registry := sources.NewRegistry(
		vendorsite.New(client),
		specdb.New(client),
		wikispecs.New(client),
	)
	if apiKey := viper.GetString("llm.api_key"); apiKey != "" {
		llmSource, err := llm.New(llm.Config{
			APIKey:   apiKey,
			Model:    viper.GetString("llm.model"),
			Endpoint: viper.GetString("llm.endpoint"),
		})
		if err != nil {
			utils.Log.Warnf("LLM source disabled: %v", err)
		} else {
			registry.Register(llmSource)
		}
	}

	a := &app{
		dataDir:   dir,
		lock:      lock,
		registry:  registry,
		knowledge: know,
		cache:     cache.NewManager(filepath.Join(dir, "device_cache.json")),
		images:    imgCache,
		history:   hist,
	}
	a.service = enrich.NewService(enrich.Config{
		Registry:     registry,
		Knowledge:    know,
		Cache:        a.cache,
		Images:       imgCache,
		History:      hist,
		CacheTTLDays: viper.GetInt("cache.ttl_days"),
		Concurrency:  viper.GetInt("sources.concurrency"),
	})
	return a, nil
}

func (a *app) close() {
	if a.history != nil {
		a.history.Close()
	}
	if a.images != nil {
		a.images.WaitForThumbnails()
	}
	if a.lock != nil {
		if err := a.lock.Unlock(); err != nil {
			utils.Log.Warnf("%v", err)
		}
	}
}
