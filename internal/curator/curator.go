// Package curator implements a budget-aware evidence pool that preserves
// high-value, price-bearing evidence when the synthesis prompt would
// otherwise exceed the LLM Gateway's payload budget.
package curator

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
)

const (
	// perRecordCap is the default character cap applied to a record's
	// content at append time.
	perRecordCap = 2000

	// minPriceRecordLen is the floor a price-bearing record is truncated to
	// before the curator gives up and falls back to a price summary.
	minPriceRecordLen = 300

	// snippetRadius bounds how much context surrounds a price match in the
	// extracted summary fallback (tier 3).
	snippetRadius = 80
)

// priceSignals classifies a record's content as price-bearing: a currency
// symbol/code, or a digit group near one of a small set of pricing words.
// Precompiled package vars.
var priceSignals = []*regexp.Regexp{
	regexp.MustCompile(`\$\s?\d`),
	regexp.MustCompile(`(?i)\busd\b`),
	regexp.MustCompile(`€\s?\d`),
	regexp.MustCompile(`£\s?\d`),
	regexp.MustCompile(`(?i)\b(price|msrp|cost)\b[^.\n]{0,40}\d`),
	regexp.MustCompile(`(?i)\d[^.\n]{0,40}\b(price|msrp|cost)\b`),
}

// pricePositionPattern locates the approximate position of a price mention
// for the snippet-extraction fallback (tier 3).
var pricePositionPattern = regexp.MustCompile(`(?i)(\$\s?\d[\d,.]*|€\s?\d[\d,.]*|£\s?\d[\d,.]*|\busd\s?\d[\d,.]*|\b(price|msrp|cost)\b[^.\n]{0,40}\d[\d,.]*)`)

// Record is one piece of evidence gathered during a mission.
type Record struct {
	Source  string
	Content string
	isPrice bool
}

// Curator accumulates records and materializes them into a single string
// that fits a byte budget, applying a tiered truncation policy.
type Curator struct {
	budget  int
	records []Record
}

// New builds a Curator with the given materialize budget, derived by the
// caller from the LLM Gateway's MAX_PAYLOAD_BYTES minus the synthesis
// prompt template's fixed overhead.
func New(budget int) *Curator {
	return &Curator{budget: budget}
}

// Append adds a record, truncating its content to the per-record cap and
// classifying it as price-bearing or general.
func (c *Curator) Append(source, content string) {
	if len(content) > perRecordCap {
		content = content[:perRecordCap]
	}
	c.records = append(c.records, Record{
		Source:  source,
		Content: content,
		isPrice: IsPriceBearing(content),
	})
}

// Len reports how many records have been appended.
func (c *Curator) Len() int {
	return len(c.records)
}

// SetBudget re-sizes the materialize budget in place, used by the Mission
// Executor to retry synthesis once with a tighter budget after a
// payload-too-large response.
func (c *Curator) SetBudget(budget int) {
	c.budget = budget
}

// HasPriceEvidence reports whether any appended record classified as
// price-bearing, used to decide whether search_prices still needs to run
// for a price-focused mission.
func (c *Curator) HasPriceEvidence() bool {
	for _, r := range c.records {
		if r.isPrice {
			return true
		}
	}
	return false
}

// IsPriceBearing reports whether s matches the currency/number predicate
// used both to classify curator records and to detect a price intent in a
// mission objective.
func IsPriceBearing(s string) bool {
	for _, re := range priceSignals {
		if re.MatchString(s) {
			return true
		}
	}
	return false
}

// Materialize returns the concatenation of records that will be embedded in
// the synthesis prompt, guaranteed to fit the configured budget. It applies
// the four-tier policy in order: emit as-is if it already fits; else keep
// all price-bearing records (truncating the longest first) before any
// general record; else fall back to an extracted price summary; else (no
// price data) drop general records from the tail until it fits.
func (c *Curator) Materialize() string {
	full := c.render(c.records)
	if len(full) <= c.budget {
		return full
	}

	priceRecords, generalRecords := split(c.records)

	if len(priceRecords) > 0 {
		if fitted, ok := c.fitPriceThenGeneral(priceRecords, generalRecords); ok {
			return fitted
		}
		return c.priceSummary(priceRecords)
	}

	return c.dropTailUntilFits(generalRecords)
}

func split(records []Record) (price, general []Record) {
	for _, r := range records {
		if r.isPrice {
			price = append(price, r)
		} else {
			general = append(general, r)
		}
	}
	return price, general
}

// fitPriceThenGeneral implements tier 2: all price-bearing records, each
// progressively truncated starting with the longest, then as many general
// records as still fit.
func (c *Curator) fitPriceThenGeneral(price, general []Record) (string, bool) {
	shrunk := make([]Record, len(price))
	copy(shrunk, price)
	sort.SliceStable(shrunk, func(i, j int) bool { return len(shrunk[i].Content) > len(shrunk[j].Content) })

	for {
		rendered := c.render(shrunk)
		if len(rendered) <= c.budget {
			out := rendered
			for _, g := range general {
				candidate := out + "\n" + renderOne(g)
				if len(candidate) > c.budget {
					break
				}
				out = candidate
			}
			return out, true
		}

		longest := -1
		longestLen := minPriceRecordLen
		for i, r := range shrunk {
			if len(r.Content) > longestLen {
				longestLen = len(r.Content)
				longest = i
			}
		}
		if longest == -1 {
			return "", false
		}
		shrunk[longest].Content = shrunk[longest].Content[:minPriceRecordLen]
	}
}

// priceSummary implements tier 3: a distilled (source, snippet) list built
// around each price mention, used when even minimum-length price records
// don't fit.
func (c *Curator) priceSummary(price []Record) string {
	var sb strings.Builder
	for _, r := range price {
		loc := pricePositionPattern.FindStringIndex(r.Content)
		if loc == nil {
			continue
		}
		start := loc[0] - snippetRadius
		if start < 0 {
			start = 0
		}
		end := loc[1] + snippetRadius
		if end > len(r.Content) {
			end = len(r.Content)
		}
		snippet := strings.TrimSpace(r.Content[start:end])
		line := fmt.Sprintf("[%s] ...%s...", r.Source, snippet)
		if sb.Len()+len(line)+1 > c.budget {
			break
		}
		if sb.Len() > 0 {
			sb.WriteString("\n")
		}
		sb.WriteString(line)
	}
	return sb.String()
}

// dropTailUntilFits implements tier 4: no price data exists, so the latest
// arrivals are dropped first until the pool fits.
func (c *Curator) dropTailUntilFits(general []Record) string {
	kept := general
	for len(kept) > 0 {
		rendered := c.render(kept)
		if len(rendered) <= c.budget {
			return rendered
		}
		kept = kept[:len(kept)-1]
	}
	return ""
}

func (c *Curator) render(records []Record) string {
	parts := make([]string, 0, len(records))
	for _, r := range records {
		parts = append(parts, renderOne(r))
	}
	return strings.Join(parts, "\n")
}

func renderOne(r Record) string {
	return fmt.Sprintf("[%s] %s", r.Source, r.Content)
}
