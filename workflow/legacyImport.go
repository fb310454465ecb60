package workflow

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/reelfund/donors_backend/config"
	"github.com/reelfund/donors_backend/models"
	"github.com/reelfund/donors_backend/utils"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/xuri/excelize/v2"
	"gorm.io/gorm"
)

type SourceKind string

const (
	SourceKindCSV  SourceKind = "csv"
	SourceKindXLSX SourceKind = "xlsx"
)

// Field names used in source format column lists. ColumnSkip marks columns
// the exports contain but the importer does not need.
const (
	FieldLegacyRewardId   = "legacy_reward_id"
	FieldLegacyCampaignId = "legacy_campaign_id"
	FieldName             = "name"
	FieldDescription      = "description"
	FieldMinimumAmount    = "minimum_amount"
	ColumnSkip            = "-"
)

// SourceFormat declares the positional column layout of one legacy export
// file. Legacy exports have inconsistent (or missing) headers, so extraction
// is by position; declaring the layout once here keeps the mapping central
// and lets each row be validated against the expected column count.
type SourceFormat struct {
	File      string
	Kind      SourceKind
	HasHeader bool
	Columns   []string
}

// DefaultSourceFormats lists the known legacy exports, one layout each.
var DefaultSourceFormats = []SourceFormat{
	{
		File:      "kickstarter_rewards.csv",
		Kind:      SourceKindCSV,
		HasHeader: true,
		Columns:   []string{FieldLegacyRewardId, FieldLegacyCampaignId, FieldName, FieldMinimumAmount, FieldDescription},
	},
	{
		File:      "indiegogo_perks.csv",
		Kind:      SourceKindCSV,
		HasHeader: false,
		Columns:   []string{FieldLegacyCampaignId, FieldLegacyRewardId, FieldMinimumAmount, FieldName, ColumnSkip, FieldDescription},
	},
	{
		File:      "site_rewards_export.xlsx",
		Kind:      SourceKindXLSX,
		HasHeader: true,
		Columns:   []string{FieldLegacyRewardId, FieldName, FieldDescription, FieldMinimumAmount, FieldLegacyCampaignId},
	},
}

// stagedReward accumulates one legacy reward across source files before the
// store upsert. Multiple files can describe the same legacy id.
type stagedReward struct {
	LegacyId         string
	LegacyCampaignId string
	Name             string
	Description      string
	MinimumAmount    decimal.Decimal
	SourceFile       string
}

// mergeInto applies the fill-only-empty policy: existing non-empty fields
// win, the minimum amount is overwritten only when the existing value is
// exactly zero. Each field merges independently.
func (s *stagedReward) mergeInto(existing *stagedReward) {
	if existing.Name == "" {
		existing.Name = s.Name
	}
	if existing.Description == "" {
		existing.Description = s.Description
	}
	if existing.LegacyCampaignId == "" {
		existing.LegacyCampaignId = s.LegacyCampaignId
	}
	if existing.MinimumAmount.IsZero() {
		existing.MinimumAmount = s.MinimumAmount
	}
}

type ImportOptions struct {
	// Bucket holds the legacy export files. Empty means the files are already
	// present in ScratchDir (local runs).
	Bucket     string
	ScratchDir string
	LogPath    string
	Formats    []SourceFormat
}

type ImportSummary struct {
	FilesProcessed int `json:"files_processed"`
	FilesSkipped   int `json:"files_skipped"`
	RowsStaged     int `json:"rows_staged"`
	RewardsCreated int `json:"rewards_created"`
	RewardsUpdated int `json:"rewards_updated"`
	Warnings       int `json:"warnings"`
	Errors         int `json:"errors"`
}

// RunLegacyRewardImport reads the legacy export files, stages and merges
// rows by legacy reward id, resolves campaigns, and upserts reward rows.
//
// Failure semantics: an unreadable campaign set fails the whole run (nothing
// can be associated); an unreadable source file is logged and skipped; a bad
// row is logged and skipped. A reward row is never dropped for an unresolved
// campaign: it falls back to the first campaign, flagged for review.
func RunLegacyRewardImport(ctx context.Context, db *gorm.DB, logger *logrus.Logger, opts ImportOptions) (*ImportSummary, error) {
	if len(opts.Formats) == 0 {
		opts.Formats = DefaultSourceFormats
	}
	if opts.ScratchDir == "" {
		opts.ScratchDir = os.TempDir()
	}
	if opts.LogPath == "" {
		opts.LogPath = "legacy-reward-import.log"
	}

	runLog, err := newImportRunLog(opts.LogPath)
	if err != nil {
		return nil, err
	}
	defer runLog.Close()

	summary := &ImportSummary{}

	campaignLookup, err := models.LegacyCampaignLookup(ctx, db)
	if err != nil {
		return nil, fmt.Errorf("fetch campaigns: %w", err)
	}
	if len(campaignLookup) == 0 {
		return nil, errors.New("no migrated campaigns found; rewards cannot be associated")
	}
	fallbackCampaignId, err := models.FirstCampaignId(ctx, db)
	if err != nil {
		return nil, fmt.Errorf("resolve fallback campaign: %w", err)
	}

	staged := make(map[string]*stagedReward)
	stagedOrder := make([]string, 0)

	for _, format := range opts.Formats {
		localPath := filepath.Join(opts.ScratchDir, format.File)
		if opts.Bucket != "" {
			localPath, err = utils.DownloadFileFromGCS(ctx, opts.Bucket, format.File, opts.ScratchDir)
			if err != nil {
				config.LogError(logger, "legacyImport.go", "RunLegacyRewardImport", "download source file", format.File, err)
				runLog.Row(outcomeError, "-", fmt.Sprintf("failed to download %s: %v; skipping file", format.File, err), 0)
				summary.FilesSkipped++
				continue
			}
		}

		rows, err := readSourceRows(localPath, format.Kind)
		if err != nil {
			config.LogError(logger, "legacyImport.go", "RunLegacyRewardImport", "parse source file", format.File, err)
			runLog.Row(outcomeError, "-", fmt.Sprintf("failed to parse %s: %v; skipping file", format.File, err), 0)
			summary.FilesSkipped++
			continue
		}
		if format.HasHeader && len(rows) > 0 {
			rows = rows[1:]
		}

		for _, row := range rows {
			candidate, warn, err := extractRow(row, format)
			if err != nil {
				runLog.Row(outcomeError, "-", fmt.Sprintf("%s: %v; row skipped", format.File, err), 0)
				summary.Errors++
				continue
			}
			if warn != "" {
				runLog.Row(outcomeWarning, candidate.LegacyId, warn, 0)
				summary.Warnings++
			}

			if existing, ok := staged[candidate.LegacyId]; ok {
				candidate.mergeInto(existing)
			} else {
				staged[candidate.LegacyId] = candidate
				stagedOrder = append(stagedOrder, candidate.LegacyId)
				summary.RowsStaged++
			}
		}
		summary.FilesProcessed++
	}

	for _, legacyId := range stagedOrder {
		s := staged[legacyId]
		if err := upsertStagedReward(ctx, db, runLog, summary, s, campaignLookup, fallbackCampaignId); err != nil {
			// Per-row failures never abort the batch.
			config.LogError(logger, "legacyImport.go", "RunLegacyRewardImport", "upsert reward", s.LegacyId, err)
			runLog.Row(outcomeError, s.LegacyId, fmt.Sprintf("store upsert failed: %v", err), 0)
			summary.Errors++
			recordImportError(ctx, db, s, models.ImportErrorCodeRowFailed, err.Error(), nil)
		}
	}

	logger.WithFields(logrus.Fields{
		"files_processed": summary.FilesProcessed,
		"files_skipped":   summary.FilesSkipped,
		"rows_staged":     summary.RowsStaged,
		"rewards_created": summary.RewardsCreated,
		"rewards_updated": summary.RewardsUpdated,
		"warnings":        summary.Warnings,
		"errors":          summary.Errors,
	}).Info("legacy reward import finished")

	return summary, nil
}

// extractRow maps one positional row through the format's column list. A row
// with fewer columns than declared fails extraction; extra trailing columns
// are ignored. A malformed money value degrades to zero with a warning.
func extractRow(row []string, format SourceFormat) (*stagedReward, string, error) {
	if len(row) < len(format.Columns) {
		return nil, "", fmt.Errorf("expected %d columns, got %d", len(format.Columns), len(row))
	}

	s := &stagedReward{SourceFile: format.File}
	var warn string
	for i, field := range format.Columns {
		value := strings.TrimSpace(row[i])
		switch field {
		case FieldLegacyRewardId:
			s.LegacyId = value
		case FieldLegacyCampaignId:
			s.LegacyCampaignId = value
		case FieldName:
			s.Name = value
		case FieldDescription:
			s.Description = value
		case FieldMinimumAmount:
			amount, err := utils.ParseAmount(value)
			if err != nil {
				warn = fmt.Sprintf("%v; defaulting minimum amount to 0", err)
				amount = decimal.Zero
			}
			s.MinimumAmount = amount
		case ColumnSkip:
		}
	}

	if s.LegacyId == "" {
		return nil, "", errors.New("row has no legacy reward id")
	}
	return s, warn, nil
}

func upsertStagedReward(ctx context.Context, db *gorm.DB, runLog *importRunLog, summary *ImportSummary, s *stagedReward, campaignLookup map[string]int, fallbackCampaignId int) error {
	campaignId, resolved := campaignLookup[s.LegacyCampaignId]
	needsReview := false
	if !resolved {
		// Never lose a reward record: fall back to the first campaign and
		// queue the row for manual review instead of dropping it.
		campaignId = fallbackCampaignId
		needsReview = true
		runLog.Row(outcomeWarning, s.LegacyId,
			fmt.Sprintf("legacy campaign %q not found; associated with fallback campaign %d (needs review)", s.LegacyCampaignId, fallbackCampaignId), 0)
		summary.Warnings++
	}

	now := time.Now().UTC()
	var existing models.Reward
	err := db.WithContext(ctx).Where("legacy_id = ?", s.LegacyId).First(&existing).Error
	switch {
	case err == nil:
		updates := map[string]interface{}{
			"campaign_id":    campaignId,
			"name":           s.Name,
			"description":    s.Description,
			"minimum_amount": s.MinimumAmount,
			"needs_review":   needsReview,
			"updated_at":     now,
		}
		if err := db.WithContext(ctx).Model(&models.Reward{}).
			Where("id = ?", existing.ID).
			Updates(updates).Error; err != nil {
			return err
		}
		runLog.Row(outcomeSuccess, s.LegacyId, "updated existing reward", existing.ID)
		summary.RewardsUpdated++
		if needsReview {
			recordImportError(ctx, db, s, models.ImportErrorCodeUnresolvedCampaign, "legacy campaign id did not resolve", &existing.ID)
		}
		return nil

	case errors.Is(err, gorm.ErrRecordNotFound):
		reward := models.Reward{
			CampaignId:    campaignId,
			LegacyId:      &s.LegacyId,
			Name:          s.Name,
			Description:   s.Description,
			MinimumAmount: s.MinimumAmount,
			NeedsReview:   needsReview,
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		if err := db.WithContext(ctx).Create(&reward).Error; err != nil {
			if utils.IsDuplicateKeyErr(err) {
				// Lost a race on the legacy_id unique index; the row exists now.
				return upsertStagedReward(ctx, db, runLog, summary, s, campaignLookup, fallbackCampaignId)
			}
			return err
		}
		runLog.Row(outcomeSuccess, s.LegacyId, "created reward", reward.ID)
		summary.RewardsCreated++
		if needsReview {
			recordImportError(ctx, db, s, models.ImportErrorCodeUnresolvedCampaign, "legacy campaign id did not resolve", &reward.ID)
		}
		return nil

	default:
		return err
	}
}

// recordImportError is best-effort: the run log already carries the outcome.
// Re-imports do not stack duplicate queue rows for the same unresolved issue.
func recordImportError(ctx context.Context, db *gorm.DB, s *stagedReward, code, message string, rewardId *int) {
	var open int64
	_ = db.WithContext(ctx).Model(&models.RewardImportError{}).
		Where("legacy_id = ? AND error_code = ? AND resolved = false", s.LegacyId, code).
		Count(&open).Error
	if open > 0 {
		return
	}
	_ = db.WithContext(ctx).Create(&models.RewardImportError{
		LegacyId:   s.LegacyId,
		SourceFile: s.SourceFile,
		ErrorCode:  code,
		Message:    message,
		RewardId:   rewardId,
	}).Error
}

func readSourceRows(path string, kind SourceKind) ([][]string, error) {
	switch kind {
	case SourceKindCSV:
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		reader := csv.NewReader(f)
		reader.FieldsPerRecord = -1
		return reader.ReadAll()

	case SourceKindXLSX:
		f, err := excelize.OpenFile(path)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		sheets := f.GetSheetList()
		if len(sheets) == 0 {
			return nil, errors.New("workbook has no sheets")
		}
		return f.GetRows(sheets[0])

	default:
		return nil, fmt.Errorf("unknown source kind %q", kind)
	}
}
