package enrich

import (
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/hwlore/hwlore/pkg/device"
)

func okResult(order int, name string, conf float64, specs map[string]string) SourceResult {
	return SourceResult{
		Source: name,
		Order:  order,
		Info: &device.PartialInfo{
			Specs:      specs,
			Confidence: conf,
			SourceName: name,
		},
	}
}

func TestMergeSessionAllFailed(t *testing.T) {
	results := []SourceResult{
		{Source: "a", Order: 0, Err: errors.New("network down")},
		{Source: "b", Order: 1, Err: errors.New("no match")},
	}
	if _, err := MergeSession(results, time.Now()); !errors.Is(err, ErrNoSourceSucceeded) {
		t.Fatalf("expected ErrNoSourceSucceeded, got %v", err)
	}
	if _, err := MergeSession(nil, time.Now()); !errors.Is(err, ErrNoSourceSucceeded) {
		t.Fatalf("expected ErrNoSourceSucceeded for empty input, got %v", err)
	}
}

func TestMergeSessionConfidencePrecedence(t *testing.T) {
	// B carries more keys but lower confidence: it may only fill gaps.
	a := okResult(0, "a", 0.95, map[string]string{"cores": "24"})
	b := okResult(1, "b", 0.75, map[string]string{"cores": "32", "threads": "32"})

	m, err := MergeSession([]SourceResult{a, b}, time.Now())
	if err != nil {
		t.Fatal(err)
	}

	want := map[string]string{"cores": "24", "threads": "32"}
	if !reflect.DeepEqual(m.Specs, want) {
		t.Fatalf("merged specs = %v, want %v", m.Specs, want)
	}
	if !reflect.DeepEqual(m.Sources, []string{"a", "b"}) {
		t.Fatalf("sources = %v, want [a b]", m.Sources)
	}
}

func TestMergeSessionOrderIndependentOfArrival(t *testing.T) {
	// The same results in reverse arrival order must merge identically.
	a := okResult(0, "a", 0.95, map[string]string{"cores": "24"})
	b := okResult(1, "b", 0.75, map[string]string{"cores": "32", "threads": "32"})
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	m1, err := MergeSession([]SourceResult{a, b}, now)
	if err != nil {
		t.Fatal(err)
	}
	m2, err := MergeSession([]SourceResult{b, a}, now)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(m1.Specs, m2.Specs) || !reflect.DeepEqual(m1.Sources, m2.Sources) {
		t.Fatalf("merge depends on arrival order: %v vs %v", m1, m2)
	}
}

func TestMergeSessionStableTieBreak(t *testing.T) {
	// Equal confidence: fan-out order decides, and the earlier source's
	// value wins contested keys.
	a := okResult(0, "a", 0.8, map[string]string{"tdp": "125 W"})
	b := okResult(1, "b", 0.8, map[string]string{"tdp": "120 W"})

	m, err := MergeSession([]SourceResult{a, b}, time.Now())
	if err != nil {
		t.Fatal(err)
	}
	if m.Specs["tdp"] != "125 W" {
		t.Fatalf("tie-break picked %q, want the first fan-out source's value", m.Specs["tdp"])
	}
	if !reflect.DeepEqual(m.Sources, []string{"a", "b"}) {
		t.Fatalf("sources = %v, want [a b]", m.Sources)
	}
}

func TestMergeSessionPure(t *testing.T) {
	a := okResult(0, "a", 0.9, map[string]string{"cores": "24"})
	b := okResult(1, "b", 0.5, map[string]string{"threads": "32"})
	b.Info.Description = "filler description"
	results := []SourceResult{a, b}
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	m1, err := MergeSession(results, now)
	if err != nil {
		t.Fatal(err)
	}
	m2, err := MergeSession(results, now)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(m1, m2) {
		t.Fatal("merging the same results twice produced different output")
	}

	// Inputs must be untouched.
	if len(a.Info.Specs) != 1 || a.Info.Specs["cores"] != "24" {
		t.Fatalf("merge mutated its input: %v", a.Info.Specs)
	}
}

func TestMergeSessionFillsDescriptiveFields(t *testing.T) {
	a := okResult(0, "a", 0.9, map[string]string{"cores": "24"})
	b := okResult(1, "b", 0.6, nil)
	b.Info.Specs = map[string]string{}
	b.Info.Description = "a desktop processor"
	b.Info.ReleaseDate = "2023"
	b.Info.ImageURL = "https://example.com/cpu.png"

	m, err := MergeSession([]SourceResult{a, b}, time.Now())
	if err != nil {
		t.Fatal(err)
	}
	if m.Description != "a desktop processor" || m.ReleaseDate != "2023" || m.ImageURL != "https://example.com/cpu.png" {
		t.Fatalf("descriptive gaps not filled: %+v", m)
	}
}

func TestMergeSessionEmptySpecsIsRealAnswer(t *testing.T) {
	// A success with an empty spec map is a thin answer, not a failure.
	a := okResult(0, "a", 0.7, map[string]string{})
	m, err := MergeSession([]SourceResult{a}, time.Now())
	if err != nil {
		t.Fatal(err)
	}
	if len(m.Sources) != 1 || m.Sources[0] != "a" {
		t.Fatalf("thin answer dropped: %v", m.Sources)
	}
}
