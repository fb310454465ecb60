package workflow

import (
	"testing"

	"github.com/shopspring/decimal"
)

func filmTiers() []CatalogTier {
	return []CatalogTier{
		{RewardId: 1, MinimumAmount: decimal.NewFromInt(10)},
		{RewardId: 2, MinimumAmount: decimal.NewFromInt(25)},
		{RewardId: 3, MinimumAmount: decimal.NewFromInt(50)},
		{RewardId: 4, MinimumAmount: decimal.NewFromInt(100)},
	}
}

func TestBestFitTier_PicksHighestQualifyingTier(t *testing.T) {
	cases := []struct {
		amount   string
		expected int
	}{
		{"10", 1},
		{"24.99", 1},
		{"25", 2},
		{"75", 3},
		{"100", 4},
		{"2500", 4},
	}
	for _, tc := range cases {
		amount, err := decimal.NewFromString(tc.amount)
		if err != nil {
			t.Fatalf("bad amount %q: %v", tc.amount, err)
		}
		got, ok := BestFitTier(filmTiers(), amount)
		if !ok {
			t.Fatalf("BestFitTier(%s) expected tier %d, got none", tc.amount, tc.expected)
		}
		if got != tc.expected {
			t.Fatalf("BestFitTier(%s) expected tier %d, got %d", tc.amount, tc.expected, got)
		}
	}
}

func TestBestFitTier_BelowEveryTier(t *testing.T) {
	amount := decimal.NewFromInt(5)
	if got, ok := BestFitTier(filmTiers(), amount); ok {
		t.Fatalf("BestFitTier(5) expected no tier, got %d", got)
	}
}

func TestBestFitTier_EmptyTiers(t *testing.T) {
	if got, ok := BestFitTier(nil, decimal.NewFromInt(100)); ok {
		t.Fatalf("BestFitTier with no tiers expected no result, got %d", got)
	}
}

func TestBestFitTier_DoesNotMutateInput(t *testing.T) {
	tiers := filmTiers()
	BestFitTier(tiers, decimal.NewFromInt(100))
	for i, expected := range []int{1, 2, 3, 4} {
		if tiers[i].RewardId != expected {
			t.Fatalf("input tiers reordered: %v", tiers)
		}
	}
}
