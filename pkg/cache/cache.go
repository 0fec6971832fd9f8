// Package cache holds the short-lived TTL cache of fully-enriched answers,
// so that recently-asked devices skip the network fan-out entirely.
package cache

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/hwlore/hwlore/internal/utils"
	"github.com/hwlore/hwlore/pkg/device"
)

// Entry is one cached enrichment result.
type Entry struct {
	Key       string              `json:"key"`
	Type      device.Type         `json:"type"`
	Info      device.EnrichedInfo `json:"info"`
	CachedAt  time.Time           `json:"cached_at"`
	ExpiresAt time.Time           `json:"expires_at"`
}

// Manager is the TTL cache, persisted as a single JSON array. A failed
// persist is logged; the in-memory state stays authoritative.
type Manager struct {
	path    string
	mu      sync.RWMutex
	entries map[string]Entry // keyed by deviceKey|type
}

// NewManager loads the cache from path, starting empty if the file does not
// exist or cannot be parsed.
func NewManager(path string) *Manager {
	m := &Manager{
		path:    path,
		entries: make(map[string]Entry),
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			utils.Log.Warnf("failed to load device cache, starting empty: %v", err)
		}
		return m
	}

	var list []Entry
	if err := json.Unmarshal(data, &list); err != nil {
		utils.Log.Warnf("failed to parse device cache, starting empty: %v", err)
		return m
	}
	for _, e := range list {
		m.entries[entryKey(e.Key, e.Type)] = e
	}
	return m
}

func entryKey(key string, t device.Type) string {
	return fmt.Sprintf("%s|%s", key, t)
}

// Get returns the cached answer for (key, type) if it has not expired.
// An expired entry behaves as a miss but is not deleted here.
func (m *Manager) Get(key string, t device.Type) (*device.EnrichedInfo, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	e, ok := m.entries[entryKey(key, t)]
	if !ok || !time.Now().Before(e.ExpiresAt) {
		return nil, false
	}
	info := e.Info
	return &info, true
}

// Set overwrites the entry for (key, type), stamping cached_at=now and
// expires_at=now+ttl, then persists.
func (m *Manager) Set(key string, t device.Type, info *device.EnrichedInfo, ttlDays int) {
	if ttlDays <= 0 {
		ttlDays = 7
	}
	now := time.Now().UTC()

	m.mu.Lock()
	defer m.mu.Unlock()

	m.entries[entryKey(key, t)] = Entry{
		Key:       key,
		Type:      t,
		Info:      *info,
		CachedAt:  now,
		ExpiresAt: now.Add(time.Duration(ttlDays) * 24 * time.Hour),
	}
	m.persistLocked()
}

// Remove drops the entry for (key, type) and persists.
func (m *Manager) Remove(key string, t device.Type) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, entryKey(key, t))
	m.persistLocked()
}

// Clear drops every entry and persists.
func (m *Manager) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = make(map[string]Entry)
	m.persistLocked()
}

// CleanupExpired removes every entry whose expiry has passed, persists the
// reduced set, and returns the number removed.
func (m *Manager) CleanupExpired() int {
	now := time.Now()

	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	for k, e := range m.entries {
		if !e.ExpiresAt.After(now) {
			delete(m.entries, k)
			removed++
		}
	}
	if removed > 0 {
		m.persistLocked()
	}
	return removed
}

// Len returns the number of entries, including expired ones not yet swept.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

// persistLocked writes the entry list atomically. Caller holds the lock.
// Persist failures are logged, not propagated: the cache only needs eventual
// consistency with disk.
func (m *Manager) persistLocked() {
	list := make([]Entry, 0, len(m.entries))
	for _, e := range m.entries {
		list = append(list, e)
	}
	sort.Slice(list, func(i, j int) bool {
		return entryKey(list[i].Key, list[i].Type) < entryKey(list[j].Key, list[j].Type)
	})

	data, err := json.MarshalIndent(list, "", "  ")
	if err != nil {
		utils.Log.Warnf("failed to encode device cache: %v", err)
		return
	}

	tmp, err := os.CreateTemp(filepath.Dir(m.path), ".device_cache-*.json")
	if err != nil {
		utils.Log.Warnf("failed to persist device cache: %v", err)
		return
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		utils.Log.Warnf("failed to persist device cache: %v", err)
		return
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		utils.Log.Warnf("failed to persist device cache: %v", err)
		return
	}
	if err := os.Rename(tmpName, m.path); err != nil {
		os.Remove(tmpName)
		utils.Log.Warnf("failed to persist device cache: %v", err)
	}
}
