package knowledge

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/hwlore/hwlore/internal/utils"
	"github.com/hwlore/hwlore/pkg/device"
)

const storeVersion = 1

// LearnedSpec is one durable specification field. Each field carries its own
// confidence and contributing-source trail, independently upgradable.
type LearnedSpec struct {
	Value       string    `json:"value"`
	Confidence  float64   `json:"confidence"`
	Sources     []string  `json:"sources"`
	LastUpdated time.Time `json:"last_updated"`
}

// LearnedDevice accumulates everything hwlore has learned about one device
// key across enrichment sessions. Never deleted automatically.
type LearnedDevice struct {
	Key          string                 `json:"key"`
	Type         device.Type            `json:"type"`
	Identifier   device.Identifier      `json:"identifier"`
	Specs        map[string]LearnedSpec `json:"specs"`
	Categories   []device.SpecCategory  `json:"categories,omitempty"`
	Description  string                 `json:"description,omitempty"`
	ReleaseDate  string                 `json:"release_date,omitempty"`
	Sources      []device.SourceInfo    `json:"sources"`
	CreatedAt    time.Time              `json:"created_at"`
	LastVerified time.Time              `json:"last_verified"`
}

// ChangeType classifies one mutation of the learned store.
type ChangeType string

const (
	// ChangeAdded: a spec key seen for the first time.
	ChangeAdded ChangeType = "added"
	// ChangeUpgraded: a strictly-higher-confidence source replaced the value.
	ChangeUpgraded ChangeType = "upgraded"
	// ChangeCorroborated: a source joined the provenance trail without
	// changing the stored value.
	ChangeCorroborated ChangeType = "corroborated"
)

// Change records one per-field mutation, for the history log.
type Change struct {
	DeviceKey  string
	SpecKey    string
	Type       ChangeType
	Source     string
	Confidence float64
}

type storeFile struct {
	Version int             `json:"version"`
	Devices []LearnedDevice `json:"devices"`
}

// Store is the durable device knowledge store, persisted as a single JSON
// file. All operations are safe for concurrent use; writes hold the lock for
// the full mutate-then-persist sequence.
type Store struct {
	path    string
	mu      sync.RWMutex
	devices map[string]*LearnedDevice
}

// Open loads the store from path, starting empty if the file does not exist.
func Open(path string) (*Store, error) {
	s := &Store{
		path:    path,
		devices: make(map[string]*LearnedDevice),
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return s, nil
		}
		return nil, fmt.Errorf("read knowledge store: %w", err)
	}

	var file storeFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse knowledge store: %w", err)
	}
	for i := range file.Devices {
		d := file.Devices[i]
		if d.Specs == nil {
			d.Specs = make(map[string]LearnedSpec)
		}
		s.devices[d.Key] = &d
	}
	return s, nil
}

// Count returns the number of learned devices.
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.devices)
}

// Get returns a copy of the learned device for key.
func (s *Store) Get(key string) (*LearnedDevice, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.devices[key]
	if !ok {
		return nil, false
	}
	return copyDevice(d), true
}

// All returns copies of every learned device, sorted by model for stable output.
func (s *Store) All() []*LearnedDevice {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*LearnedDevice, 0, len(s.devices))
	for _, d := range s.devices {
		out = append(out, copyDevice(d))
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Identifier.Model < out[j].Identifier.Model
	})
	return out
}

// Lookup finds a learned device by manufacturer and model: first an exact
// case-insensitive match, then substring matching in either direction
// against the model string.
func (s *Store) Lookup(manufacturer, model string) (*LearnedDevice, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	wantMfr := strings.ToLower(strings.TrimSpace(manufacturer))
	wantModel := strings.ToLower(strings.TrimSpace(model))

	for _, d := range s.devices {
		if strings.ToLower(d.Identifier.Manufacturer) == wantMfr &&
			strings.ToLower(d.Identifier.Model) == wantModel {
			return copyDevice(d), true
		}
	}
	for _, d := range s.devices {
		haveModel := strings.ToLower(d.Identifier.Model)
		if wantModel != "" && (strings.Contains(haveModel, wantModel) || strings.Contains(wantModel, haveModel)) {
			return copyDevice(d), true
		}
	}
	return nil, false
}

// StoreOrMerge folds one source's partial answer into the learned device for
// key, creating it on first sight. Per spec key (post-normalization): a
// missing key is inserted; an existing key has its value replaced only when
// the incoming confidence is strictly higher, while the contributing-source
// union and last_updated always advance. Descriptive fields only upgrade
// from unset to set, or to a strictly larger categorized view.
func (s *Store) StoreOrMerge(key string, t device.Type, id device.Identifier, p *device.PartialInfo) ([]Change, error) {
	if p == nil {
		return nil, errors.New("nil partial info")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	var changes []Change

	d, ok := s.devices[key]
	if !ok {
		d = &LearnedDevice{
			Key:        key,
			Type:       t,
			Identifier: id,
			Specs:      make(map[string]LearnedSpec),
			CreatedAt:  now,
		}
		s.devices[key] = d
	}

	for rawKey, value := range p.Specs {
		specKey := NormalizeSpecKey(rawKey)
		if specKey == "" {
			continue
		}

		existing, found := d.Specs[specKey]
		if !found {
			d.Specs[specKey] = LearnedSpec{
				Value:       value,
				Confidence:  p.Confidence,
				Sources:     []string{p.SourceName},
				LastUpdated: now,
			}
			changes = append(changes, Change{DeviceKey: key, SpecKey: specKey, Type: ChangeAdded, Source: p.SourceName, Confidence: p.Confidence})
			continue
		}

		upgraded := p.Confidence > existing.Confidence
		if upgraded {
			existing.Value = value
			existing.Confidence = p.Confidence
		}
		existing.Sources = appendUniqueSource(existing.Sources, p.SourceName)
		existing.LastUpdated = now
		d.Specs[specKey] = existing

		if upgraded {
			changes = append(changes, Change{DeviceKey: key, SpecKey: specKey, Type: ChangeUpgraded, Source: p.SourceName, Confidence: p.Confidence})
		} else {
			changes = append(changes, Change{DeviceKey: key, SpecKey: specKey, Type: ChangeCorroborated, Source: p.SourceName, Confidence: p.Confidence})
		}
	}

	if d.Description == "" {
		d.Description = p.Description
	}
	if d.ReleaseDate == "" {
		d.ReleaseDate = p.ReleaseDate
	}
	if len(p.Categories) > len(d.Categories) {
		d.Categories = append([]device.SpecCategory(nil), p.Categories...)
	}

	d.Sources = mergeSourceInfo(d.Sources, device.SourceInfo{
		Name:       p.SourceName,
		URL:        p.SourceURL,
		Confidence: p.Confidence,
		FetchedAt:  now,
	})
	d.LastVerified = now

	if err := s.persistLocked(); err != nil {
		utils.Log.Warnf("failed to persist knowledge store: %v", err)
	}
	return changes, nil
}

// persistLocked writes the whole store atomically. Caller holds the lock.
func (s *Store) persistLocked() error {
	file := storeFile{Version: storeVersion, Devices: make([]LearnedDevice, 0, len(s.devices))}
	keys := make([]string, 0, len(s.devices))
	for k := range s.devices {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		file.Devices = append(file.Devices, *copyDevice(s.devices[k]))
	}

	data, err := json.MarshalIndent(file, "", "  ")
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".learned_devices-*.json")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	return os.Rename(tmpName, s.path)
}

func appendUniqueSource(sources []string, name string) []string {
	for _, s := range sources {
		if s == name {
			return sources
		}
	}
	return append(sources, name)
}

func mergeSourceInfo(infos []device.SourceInfo, incoming device.SourceInfo) []device.SourceInfo {
	for i := range infos {
		if infos[i].Name == incoming.Name {
			infos[i] = incoming
			return infos
		}
	}
	return append(infos, incoming)
}

func copyDevice(d *LearnedDevice) *LearnedDevice {
	out := *d
	out.Specs = make(map[string]LearnedSpec, len(d.Specs))
	for k, v := range d.Specs {
		v.Sources = append([]string(nil), v.Sources...)
		out.Specs[k] = v
	}
	out.Categories = append([]device.SpecCategory(nil), d.Categories...)
	out.Sources = append([]device.SourceInfo(nil), d.Sources...)
	return &out
}
