package device

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"
)

// Type is the closed set of hardware categories hwlore knows about.
type Type string

const (
	TypeCpu         Type = "cpu"
	TypeGpu         Type = "gpu"
	TypeMotherboard Type = "motherboard"
	TypeMemory      Type = "memory"
	TypeStorage     Type = "storage"
	TypeMonitor     Type = "monitor"
)

// AllTypes lists every valid device type, in display order.
var AllTypes = []Type{TypeCpu, TypeGpu, TypeMotherboard, TypeMemory, TypeStorage, TypeMonitor}

// ParseType maps a user-supplied string onto a Type.
func ParseType(s string) (Type, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "cpu", "processor":
		return TypeCpu, nil
	case "gpu", "graphics":
		return TypeGpu, nil
	case "motherboard", "mainboard", "mobo":
		return TypeMotherboard, nil
	case "memory", "ram":
		return TypeMemory, nil
	case "storage", "disk", "ssd", "hdd":
		return TypeStorage, nil
	case "monitor", "display":
		return TypeMonitor, nil
	}
	return "", fmt.Errorf("unknown device type: %q", s)
}

// Identifier names a physical device as reported by the host. It is not
// unique by itself; matching against it is case- and whitespace-insensitive.
type Identifier struct {
	Manufacturer string   `json:"manufacturer"`
	Model        string   `json:"model"`
	PartNumber   string   `json:"part_number,omitempty"`
	SerialNumber string   `json:"serial_number,omitempty"`
	HardwareIDs  []string `json:"hardware_ids,omitempty"`
}

const keyHexLen = 16

// Key derives the stable identity for a device. The same logical device
// always yields the same key, regardless of casing or stray whitespace in
// the manufacturer/model strings supplied by different callers.
func Key(t Type, id Identifier) string {
	h := sha256.New()
	h.Write([]byte(normalizeKeyPart(string(t))))
	h.Write([]byte{'|'})
	h.Write([]byte(normalizeKeyPart(id.Manufacturer)))
	h.Write([]byte{'|'})
	h.Write([]byte(normalizeKeyPart(id.Model)))
	return hex.EncodeToString(h.Sum(nil))[:keyHexLen]
}

func normalizeKeyPart(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}

// SpecEntry is one labeled value inside a display category.
type SpecEntry struct {
	Label string `json:"label"`
	Value string `json:"value"`
	Unit  string `json:"unit,omitempty"`
}

// SpecCategory groups related spec entries for display (e.g. "Clock Speeds").
type SpecCategory struct {
	Name    string      `json:"name"`
	Entries []SpecEntry `json:"entries"`
}

// DriverLink points at a downloadable driver package.
type DriverLink struct {
	Name    string `json:"name"`
	Version string `json:"version,omitempty"`
	URL     string `json:"url"`
}

// DocLink points at a manual, datasheet or support article.
type DocLink struct {
	Title string `json:"title"`
	URL   string `json:"url"`
}

// PartialInfo is the answer a single source produces for one fetch. It is
// ephemeral: it always passes through a merge step before anything is kept.
type PartialInfo struct {
	Specs          map[string]string `json:"specs"`
	Categories     []SpecCategory    `json:"categories,omitempty"`
	Description    string            `json:"description,omitempty"`
	ReleaseDate    string            `json:"release_date,omitempty"`
	ProductPageURL string            `json:"product_page_url,omitempty"`
	SupportPageURL string            `json:"support_page_url,omitempty"`
	ImageURL       string            `json:"image_url,omitempty"`
	GalleryURLs    []string          `json:"gallery_urls,omitempty"`
	Drivers        []DriverLink      `json:"drivers,omitempty"`
	Docs           []DocLink         `json:"docs,omitempty"`

	// Confidence is a heuristic [0,1] reliability score used for merge
	// tie-breaking, not a calibrated probability.
	Confidence float64 `json:"confidence"`
	SourceName string  `json:"source_name"`
	SourceURL  string  `json:"source_url,omitempty"`
}

// SourceInfo records one source's contribution to a device, for provenance.
type SourceInfo struct {
	Name       string    `json:"name"`
	URL        string    `json:"url,omitempty"`
	Confidence float64   `json:"confidence"`
	FetchedAt  time.Time `json:"fetched_at"`
}

// EnrichedInfo is the final merged answer for one device.
type EnrichedInfo struct {
	Key            string            `json:"key"`
	Type           Type              `json:"type"`
	Identifier     Identifier        `json:"identifier"`
	Specs          map[string]string `json:"specs"`
	Categories     []SpecCategory    `json:"categories,omitempty"`
	Description    string            `json:"description,omitempty"`
	ReleaseDate    string            `json:"release_date,omitempty"`
	ProductPageURL string            `json:"product_page_url,omitempty"`
	SupportPageURL string            `json:"support_page_url,omitempty"`
	ImageURL       string            `json:"image_url,omitempty"`
	GalleryURLs    []string          `json:"gallery_urls,omitempty"`
	Drivers        []DriverLink      `json:"drivers,omitempty"`
	Docs           []DocLink         `json:"docs,omitempty"`

	// Sources lists contributing source names in merge order.
	Sources []string `json:"sources"`
}
