package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultTaxonomyValidates(t *testing.T) {
	tax := DefaultTaxonomy()
	if err := tax.Validate(); err != nil {
		t.Fatalf("default taxonomy invalid: %v", err)
	}
	band, ok := tax.Band(5)
	if !ok {
		t.Fatalf("expected band for priority 5")
	}
	if band.Midpoint() <= 0 {
		t.Fatalf("expected positive top band midpoint")
	}
}

func TestTaxonomyRejectsDecreasingBands(t *testing.T) {
	tax := DefaultTaxonomy()
	tax.ValueBands[4].Low = 0
	tax.ValueBands[4].High = 10 // midpoint below priority 4 band
	if err := tax.Validate(); err == nil {
		t.Fatalf("expected monotonicity error")
	}
}

func TestTaxonomyRejectsBadWeight(t *testing.T) {
	tax := DefaultTaxonomy()
	tax.Categories[0].Weight = 9
	if err := tax.Validate(); err == nil {
		t.Fatalf("expected weight error")
	}
}

func TestLoadTaxonomyFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "taxonomy.yaml")
	doc := `
categories:
  - name: direct consultation ask
    weight: 5
    patterns: ['\bconsult\b']
  - name: general interest
    weight: 1
    patterns: ['\binterested\b']
value_bands:
  - {priority: 1, low: 0, high: 100}
  - {priority: 2, low: 100, high: 200}
  - {priority: 3, low: 200, high: 300}
  - {priority: 4, low: 300, high: 400}
  - {priority: 5, low: 400, high: 500}
`
	if err := os.WriteFile(path, []byte(doc), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}

	tax, err := LoadTaxonomy(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(tax.Categories) != 2 {
		t.Fatalf("expected 2 categories, got %d", len(tax.Categories))
	}
	if tax.Categories[0].Weight != 5 {
		t.Fatalf("expected weight 5, got %d", tax.Categories[0].Weight)
	}
}
