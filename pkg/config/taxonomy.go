package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// PatternCategory is one entry of the inquiry pattern taxonomy: a named
// category with the phrases that signal it and its base priority weight.
type PatternCategory struct {
	Name     string   `yaml:"name"`
	Weight   int      `yaml:"weight"`
	Patterns []string `yaml:"patterns"`
}

// ValueBand maps a priority score to an estimated deal value range.
type ValueBand struct {
	Priority int     `yaml:"priority"`
	Low      float64 `yaml:"low"`
	High     float64 `yaml:"high"`
}

// Taxonomy bundles the pattern categories and value bands used by the
// inquiry detector.
type Taxonomy struct {
	Categories []PatternCategory `yaml:"categories"`
	ValueBands []ValueBand       `yaml:"value_bands"`
}

// DefaultTaxonomy returns the built-in consultation-intent taxonomy.
func DefaultTaxonomy() Taxonomy {
	return Taxonomy{
		Categories: []PatternCategory{
			{
				Name:   "direct consultation ask",
				Weight: 5,
				Patterns: []string{
					`\b(hire|engage|work with) you\b`,
					`\bfractional (cto|cpo|vp)\b`,
					`\b(consult|consultation|consulting)\b`,
					`\bdiscuss (a|an|our|the) (project|engagement|role)\b`,
				},
			},
			{
				Name:   "budget mention",
				Weight: 4,
				Patterns: []string{
					`\bbudget\b`,
					`\b(rate|rates|pricing|day rate)\b`,
					`\bapproved\b.*\b(spend|funding)\b|\bbudget approved\b`,
				},
			},
			{
				Name:   "timeline signal",
				Weight: 3,
				Patterns: []string{
					`\b(this|next) (week|month|quarter)\b`,
					`\bstart(ing)? (date|soon|asap)\b`,
					`\bhow soon\b`,
				},
			},
			{
				Name:   "referral intent",
				Weight: 2,
				Patterns: []string{
					`\b(refer|referred|introduce|intro) you\b`,
					`\bknow someone who\b`,
				},
			},
			{
				Name:   "general interest",
				Weight: 1,
				Patterns: []string{
					`\b(interested|curious|tell me more)\b`,
					`\b(great|insightful) (post|point|thread)\b.*\?`,
				},
			},
		},
		ValueBands: []ValueBand{
			{Priority: 1, Low: 0, High: 1000},
			{Priority: 2, Low: 1000, High: 5000},
			{Priority: 3, Low: 5000, High: 15000},
			{Priority: 4, Low: 15000, High: 40000},
			{Priority: 5, Low: 40000, High: 100000},
		},
	}
}

// LoadTaxonomy loads the taxonomy from a YAML file, or returns the built-in
// default when path is empty. The result is always validated.
func LoadTaxonomy(path string) (Taxonomy, error) {
	tax := DefaultTaxonomy()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Taxonomy{}, fmt.Errorf("read taxonomy file: %w", err)
		}
		tax = Taxonomy{}
		if err := yaml.Unmarshal(data, &tax); err != nil {
			return Taxonomy{}, fmt.Errorf("parse taxonomy file: %w", err)
		}
	}
	if err := tax.Validate(); err != nil {
		return Taxonomy{}, err
	}
	return tax, nil
}

// Validate checks category weights and value band monotonicity.
func (t Taxonomy) Validate() error {
	if len(t.Categories) == 0 {
		return fmt.Errorf("taxonomy must define at least one category")
	}
	seen := make(map[string]bool, len(t.Categories))
	for _, c := range t.Categories {
		if c.Name == "" {
			return fmt.Errorf("taxonomy category without a name")
		}
		if seen[c.Name] {
			return fmt.Errorf("duplicate taxonomy category %q", c.Name)
		}
		seen[c.Name] = true
		if c.Weight < 1 || c.Weight > 5 {
			return fmt.Errorf("category %q weight %d outside 1-5", c.Name, c.Weight)
		}
		if len(c.Patterns) == 0 {
			return fmt.Errorf("category %q has no patterns", c.Name)
		}
	}

	if len(t.ValueBands) == 0 {
		return fmt.Errorf("taxonomy must define value bands")
	}
	bands := make(map[int]ValueBand, len(t.ValueBands))
	for _, b := range t.ValueBands {
		if b.Priority < 1 || b.Priority > 5 {
			return fmt.Errorf("value band priority %d outside 1-5", b.Priority)
		}
		if b.High < b.Low {
			return fmt.Errorf("value band for priority %d has high < low", b.Priority)
		}
		if _, dup := bands[b.Priority]; dup {
			return fmt.Errorf("duplicate value band for priority %d", b.Priority)
		}
		bands[b.Priority] = b
	}
	for p := 1; p <= 5; p++ {
		if _, ok := bands[p]; !ok {
			return fmt.Errorf("missing value band for priority %d", p)
		}
	}
	// Midpoints must be monotonic non-decreasing in priority.
	prev := -1.0
	for p := 1; p <= 5; p++ {
		mid := bands[p].Midpoint()
		if mid < prev {
			return fmt.Errorf("value band midpoints must not decrease: priority %d midpoint %v < %v", p, mid, prev)
		}
		prev = mid
	}
	return nil
}

// Midpoint returns the band's midpoint, stored on inquiries as the
// estimated value.
func (b ValueBand) Midpoint() float64 {
	return (b.Low + b.High) / 2
}

// Band returns the value band for a priority score.
func (t Taxonomy) Band(priority int) (ValueBand, bool) {
	for _, b := range t.ValueBands {
		if b.Priority == priority {
			return b, true
		}
	}
	return ValueBand{}, false
}
