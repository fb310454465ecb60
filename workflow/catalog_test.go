package workflow

import "testing"

func TestNameVariants_CommaName(t *testing.T) {
	got := nameVariants("Blu-ray, Signed Poster")
	expected := map[string]bool{
		"BLU-RAY, SIGNED POSTER": true,
		"blu-ray, signed poster": true,
		"Blu-ray Signed Poster":  true,
		"BLU-RAY SIGNED POSTER":  true,
	}
	if len(got) != len(expected) {
		t.Fatalf("expected %d variants, got %d: %v", len(expected), len(got), got)
	}
	for _, v := range got {
		if !expected[v] {
			t.Fatalf("unexpected variant %q in %v", v, got)
		}
	}
}

func TestNameVariants_CommalessNameIncludesExactName(t *testing.T) {
	// Comma-less names collapse the comma-stripped variant onto the name
	// itself. The exact name must stay reachable so a second row with the
	// same name in the same campaign is treated as a duplicate.
	got := nameVariants("Signed Poster")
	found := false
	for _, v := range got {
		if v == "Signed Poster" {
			found = true
		}
	}
	if !found {
		t.Fatalf("variants for %q must include the exact name, got %v", "Signed Poster", got)
	}
}

func TestNameVariants_DedupesCollisions(t *testing.T) {
	// A name with no comma and no letter case collapses every variant
	// onto the name itself.
	got := nameVariants("100")
	if len(got) != 1 || got[0] != "100" {
		t.Fatalf("expected exactly [100] for %q, got %v", "100", got)
	}
}

func TestCanonicalCatalog_TiersArePositive(t *testing.T) {
	for campaign, entries := range CanonicalCatalog {
		if len(entries) == 0 {
			t.Fatalf("campaign %q has no tiers", campaign)
		}
		seen := map[string]bool{}
		for _, e := range entries {
			if !e.MinimumAmount.IsPositive() {
				t.Fatalf("campaign %q tier %q has non-positive minimum %s", campaign, e.Name, e.MinimumAmount)
			}
			if seen[e.Name] {
				t.Fatalf("campaign %q repeats tier name %q", campaign, e.Name)
			}
			seen[e.Name] = true
		}
	}
}
