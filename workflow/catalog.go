package workflow

import (
	"strings"

	"github.com/shopspring/decimal"
)

// CatalogEntry is one hand-curated canonical reward tier. The catalog is the
// authoritative definition of which reward rows should exist per campaign;
// the deduplicator collapses every name variant onto these.
type CatalogEntry struct {
	Name             string
	Description      string
	MinimumAmount    decimal.Decimal
	IsPhysical       bool
	RequiresShipping bool
}

func entry(name, description string, minimum int64, physical, shipping bool) CatalogEntry {
	return CatalogEntry{
		Name:             name,
		Description:      description,
		MinimumAmount:    decimal.NewFromInt(minimum),
		IsPhysical:       physical,
		RequiresShipping: shipping,
	}
}

// CanonicalCatalog maps campaign legacy id -> ordered reward tiers.
// Hand-authored from the original crowdfunding campaigns; order matters only
// for reporting, dedupe treats entries independently.
var CanonicalCatalog = map[string][]CatalogEntry{
	"film-principal": {
		entry("Digital Thank You", "Your name in the online supporters list plus production updates.", 10, false, false),
		entry("Digital Download", "A digital copy of the finished film before public release.", 25, false, false),
		entry("Signed Poster", "A poster signed by the cast and director.", 50, true, true),
		entry("Blu-ray, Signed Poster", "Collector's Blu-ray with the signed poster.", 100, true, true),
		entry("Associate Producer Credit", "Your name in the end credits as Associate Producer.", 500, false, false),
		entry("Executive Producer Credit", "Executive Producer credit plus a set visit.", 2500, false, false),
	},
	"film-postproduction": {
		entry("Digital Thank You", "Supporters list and post-production updates.", 10, false, false),
		entry("Digital Download", "Digital copy on release.", 25, false, false),
		entry("Crew T-Shirt", "The shirt the post crew wears.", 60, true, true),
		entry("Score Soundtrack, Digital Download", "The film plus the full score soundtrack.", 75, false, false),
		entry("Finishing Funds Patron Credit", "Patron credit in the finishing funds section.", 1000, false, false),
	},
}

// nameVariants returns the case/punctuation variations of a canonical name
// that legacy sources produced: upper-case, lower-case, comma-stripped and
// upper-case comma-stripped. For comma-less names the comma-stripped variant
// collapses onto the canonical name itself; it must stay in the set so a
// second row with the exact same name is still discovered. The canonical row
// is excluded by id, never by name.
func nameVariants(name string) []string {
	noComma := strings.ReplaceAll(name, ",", "")
	variants := []string{
		strings.ToUpper(name),
		strings.ToLower(name),
		noComma,
		strings.ToUpper(noComma),
	}

	seen := make(map[string]bool, len(variants))
	out := make([]string, 0, len(variants))
	for _, v := range variants {
		if !seen[v] {
			seen[v] = true
			out = append(out, v)
		}
	}
	return out
}
