package workflow

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"
)

func kickstarterFormat() SourceFormat {
	return SourceFormat{
		File:      "kickstarter_rewards.csv",
		Kind:      SourceKindCSV,
		HasHeader: true,
		Columns:   []string{FieldLegacyRewardId, FieldLegacyCampaignId, FieldName, FieldMinimumAmount, FieldDescription},
	}
}

func TestExtractRow_MapsPositionalColumns(t *testing.T) {
	row := []string{"ks-101", "film-principal", "Signed Poster", "$50.00", "A poster signed by the cast."}
	s, warn, err := extractRow(row, kickstarterFormat())
	if err != nil {
		t.Fatalf("extractRow error: %v", err)
	}
	if warn != "" {
		t.Fatalf("unexpected warning: %s", warn)
	}
	if s.LegacyId != "ks-101" || s.LegacyCampaignId != "film-principal" || s.Name != "Signed Poster" {
		t.Fatalf("unexpected staged reward: %+v", s)
	}
	if !s.MinimumAmount.Equal(decimal.NewFromInt(50)) {
		t.Fatalf("expected minimum 50, got %s", s.MinimumAmount)
	}
}

func TestExtractRow_SkipColumnIsIgnored(t *testing.T) {
	format := SourceFormat{
		File:    "indiegogo_perks.csv",
		Kind:    SourceKindCSV,
		Columns: []string{FieldLegacyCampaignId, FieldLegacyRewardId, FieldMinimumAmount, FieldName, ColumnSkip, FieldDescription},
	}
	row := []string{"film-postproduction", "ig-7", "75", "Score Soundtrack, Digital Download", "claimed:12", "The film plus the score."}
	s, _, err := extractRow(row, format)
	if err != nil {
		t.Fatalf("extractRow error: %v", err)
	}
	if s.LegacyId != "ig-7" || s.Name != "Score Soundtrack, Digital Download" {
		t.Fatalf("unexpected staged reward: %+v", s)
	}
}

func TestExtractRow_TooFewColumns(t *testing.T) {
	row := []string{"ks-101", "film-principal", "Signed Poster"}
	if _, _, err := extractRow(row, kickstarterFormat()); err == nil {
		t.Fatal("expected error for short row")
	}
}

func TestExtractRow_MissingLegacyId(t *testing.T) {
	row := []string{"", "film-principal", "Signed Poster", "50", "desc"}
	if _, _, err := extractRow(row, kickstarterFormat()); err == nil {
		t.Fatal("expected error for row without legacy reward id")
	}
}

func TestExtractRow_BadMoneyDegradesToZeroWithWarning(t *testing.T) {
	row := []string{"ks-102", "film-principal", "Digital Download", "twenty five", "desc"}
	s, warn, err := extractRow(row, kickstarterFormat())
	if err != nil {
		t.Fatalf("extractRow error: %v", err)
	}
	if warn == "" {
		t.Fatal("expected a warning for unparseable money value")
	}
	if !s.MinimumAmount.IsZero() {
		t.Fatalf("expected zero minimum, got %s", s.MinimumAmount)
	}
}

func TestMergeInto_FillsOnlyEmptyFields(t *testing.T) {
	existing := &stagedReward{
		LegacyId:      "ks-101",
		Name:          "Signed Poster",
		MinimumAmount: decimal.NewFromInt(50),
		SourceFile:    "kickstarter_rewards.csv",
	}
	incoming := &stagedReward{
		LegacyId:         "ks-101",
		LegacyCampaignId: "film-principal",
		Name:             "SIGNED POSTER",
		Description:      "A poster signed by the cast.",
		MinimumAmount:    decimal.NewFromInt(55),
		SourceFile:       "site_rewards_export.xlsx",
	}
	incoming.mergeInto(existing)

	if existing.Name != "Signed Poster" {
		t.Fatalf("non-empty name overwritten: %q", existing.Name)
	}
	if existing.Description != "A poster signed by the cast." {
		t.Fatalf("empty description not filled: %q", existing.Description)
	}
	if existing.LegacyCampaignId != "film-principal" {
		t.Fatalf("empty campaign id not filled: %q", existing.LegacyCampaignId)
	}
	if !existing.MinimumAmount.Equal(decimal.NewFromInt(50)) {
		t.Fatalf("non-zero minimum overwritten: %s", existing.MinimumAmount)
	}
}

func TestMergeInto_OverwritesZeroMinimum(t *testing.T) {
	existing := &stagedReward{LegacyId: "ks-101", Name: "Signed Poster"}
	incoming := &stagedReward{LegacyId: "ks-101", MinimumAmount: decimal.NewFromInt(50)}
	incoming.mergeInto(existing)
	if !existing.MinimumAmount.Equal(decimal.NewFromInt(50)) {
		t.Fatalf("zero minimum not filled: %s", existing.MinimumAmount)
	}
}

func TestReadSourceRows_CSV(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "rewards.csv")
	content := "legacy_id,campaign,name,minimum,description\nks-101,film-principal,Signed Poster,50,desc\nks-102,film-principal,\"Blu-ray, Signed Poster\",100,desc\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	rows, err := readSourceRows(path, SourceKindCSV)
	if err != nil {
		t.Fatalf("readSourceRows error: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("expected 3 rows including header, got %d", len(rows))
	}
	if rows[2][2] != "Blu-ray, Signed Poster" {
		t.Fatalf("quoted comma field mangled: %q", rows[2][2])
	}
}

func TestReadSourceRows_MissingFile(t *testing.T) {
	if _, err := readSourceRows(filepath.Join(t.TempDir(), "nope.csv"), SourceKindCSV); err == nil {
		t.Fatal("expected error for missing file")
	}
}
