package workflow

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/reelfund/donors_backend/config"
	"github.com/reelfund/donors_backend/models"
	"github.com/reelfund/donors_backend/utils"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

const (
	// reassignBatchSize bounds each pledge-reassignment update. Batching keeps
	// a large duplicate set from timing out and makes the phase resumable:
	// every committed batch is a valid intermediate state.
	reassignBatchSize = 500

	// maxBatchAttempts bounds retries of one batch on transient store errors.
	// Permanent errors (constraint violations) are never retried.
	maxBatchAttempts = 3
)

type DedupeSummary struct {
	CanonicalCreated  int `json:"canonical_created"`
	CanonicalExisting int `json:"canonical_existing"`
	DuplicatesFound   int `json:"duplicates_found"`
	PledgesReassigned int `json:"pledges_reassigned"`
	DuplicatesDeleted int `json:"duplicates_deleted"`
	PledgesBackfilled int `json:"pledges_backfilled"`
}

// canonicalRef ties a catalog entry to the reward row enforcing it.
type canonicalRef struct {
	CampaignId int
	RewardId   int
	Entry      CatalogEntry
}

// RunRewardDedupe enforces a single canonical reward row per
// (campaign, catalog name), repoints pledge foreign keys at canonical rows,
// deletes verified orphans and backfills unassigned pledges by amount.
//
// Five phases, each completing across all campaigns before the next begins;
// phase 5 assumes phase 1's catalog is fully populated everywhere. The whole
// procedure is idempotent: re-running finds existing canonical rows, no
// remaining duplicates and no remaining unassigned pledges.
func RunRewardDedupe(ctx context.Context, db *gorm.DB, logger *logrus.Logger) (*DedupeSummary, error) {
	summary := &DedupeSummary{}

	campaignLookup, err := models.LegacyCampaignLookup(ctx, db)
	if err != nil {
		return nil, fmt.Errorf("fetch campaigns: %w", err)
	}

	// Phase 1: find-or-create canonical rows.
	canonicals := make([]canonicalRef, 0)
	for legacyCampaignId, entries := range CanonicalCatalog {
		campaignId, ok := campaignLookup[legacyCampaignId]
		if !ok {
			logger.WithFields(logrus.Fields{
				"legacy_campaign_id": legacyCampaignId,
			}).Warn("catalog campaign not migrated; skipping its entries")
			continue
		}

		for _, catalogEntry := range entries {
			ref, created, err := findOrCreateCanonical(ctx, db, campaignId, catalogEntry)
			if err != nil {
				config.LogError(logger, "rewardDedupe.go", "RunRewardDedupe", "find-or-create canonical", catalogEntry.Name, err)
				continue
			}
			if created {
				summary.CanonicalCreated++
			} else {
				summary.CanonicalExisting++
			}
			canonicals = append(canonicals, ref)
		}
	}

	// Phase 2: discover duplicates by name variants.
	duplicateToCanonical := make(map[int]int)
	for _, ref := range canonicals {
		var dups []models.Reward
		if err := db.WithContext(ctx).
			Select("id").
			Where("campaign_id = ? AND id <> ? AND name IN ?", ref.CampaignId, ref.RewardId, nameVariants(ref.Entry.Name)).
			Find(&dups).Error; err != nil {
			config.LogError(logger, "rewardDedupe.go", "RunRewardDedupe", "discover duplicates", ref.Entry.Name, err)
			continue
		}
		for _, dup := range dups {
			duplicateToCanonical[dup.ID] = ref.RewardId
			summary.DuplicatesFound++
		}
	}

	// Phase 3: repoint pledges at canonical rows, in bounded batches.
	reassignFailed := make(map[int]bool)
	for dupId, canonicalId := range duplicateToCanonical {
		moved, err := reassignPledges(ctx, db, logger, dupId, canonicalId)
		summary.PledgesReassigned += moved
		if err != nil {
			// Stop this duplicate's loop; it will fail the orphan check below
			// and simply not be deleted, which is safe.
			config.LogError(logger, "rewardDedupe.go", "RunRewardDedupe", "reassign pledges", dupId, err)
			reassignFailed[dupId] = true
		}
	}

	// Phase 4: delete duplicates verified to have zero remaining references.
	// Reassign fully, verify, then delete: no pledge ever dangles.
	for dupId := range duplicateToCanonical {
		if reassignFailed[dupId] {
			continue
		}
		var remaining int64
		if err := db.WithContext(ctx).Model(&models.Pledge{}).
			Where("reward_id = ?", dupId).
			Count(&remaining).Error; err != nil {
			config.LogError(logger, "rewardDedupe.go", "RunRewardDedupe", "orphan check", dupId, err)
			continue
		}
		if remaining > 0 {
			continue
		}
		if err := db.WithContext(ctx).Delete(&models.Reward{}, dupId).Error; err != nil {
			config.LogError(logger, "rewardDedupe.go", "RunRewardDedupe", "delete orphan", dupId, err)
			continue
		}
		summary.DuplicatesDeleted++
	}

	// Phase 5: backfill pledges with no reward using best-fit tiers.
	byCampaign := make(map[int][]canonicalRef)
	for _, ref := range canonicals {
		byCampaign[ref.CampaignId] = append(byCampaign[ref.CampaignId], ref)
	}
	for campaignId, refs := range byCampaign {
		assigned, err := backfillUnassignedPledges(ctx, db, campaignId, refs)
		summary.PledgesBackfilled += assigned
		if err != nil {
			config.LogError(logger, "rewardDedupe.go", "RunRewardDedupe", "backfill pledges", campaignId, err)
		}
	}

	logger.WithFields(logrus.Fields{
		"canonical_created":  summary.CanonicalCreated,
		"canonical_existing": summary.CanonicalExisting,
		"duplicates_found":   summary.DuplicatesFound,
		"pledges_reassigned": summary.PledgesReassigned,
		"duplicates_deleted": summary.DuplicatesDeleted,
		"pledges_backfilled": summary.PledgesBackfilled,
	}).Info("reward dedupe finished")

	return summary, nil
}

func findOrCreateCanonical(ctx context.Context, db *gorm.DB, campaignId int, catalogEntry CatalogEntry) (canonicalRef, bool, error) {
	ref := canonicalRef{CampaignId: campaignId, Entry: catalogEntry}

	var existing models.Reward
	err := db.WithContext(ctx).
		Where("campaign_id = ? AND name = ?", campaignId, catalogEntry.Name).
		First(&existing).Error
	if err == nil {
		ref.RewardId = existing.ID
		return ref, false, nil
	}
	if err != gorm.ErrRecordNotFound {
		return ref, false, err
	}

	reward := models.Reward{
		CampaignId:       campaignId,
		Name:             catalogEntry.Name,
		Description:      catalogEntry.Description,
		MinimumAmount:    catalogEntry.MinimumAmount,
		IsPhysical:       catalogEntry.IsPhysical,
		RequiresShipping: catalogEntry.RequiresShipping,
	}
	if err := db.WithContext(ctx).Create(&reward).Error; err != nil {
		return ref, false, err
	}
	ref.RewardId = reward.ID
	return ref, true, nil
}

// reassignPledges moves every pledge referencing dupId onto canonicalId in
// bounded sequential batches, looping until none remain. Each batch's
// success gates the next fetch, so rows already moved are never re-read.
func reassignPledges(ctx context.Context, db *gorm.DB, logger *logrus.Logger, dupId, canonicalId int) (int, error) {
	moved := 0
	for {
		var batch []models.Pledge
		if err := db.WithContext(ctx).
			Select("id").
			Where("reward_id = ?", dupId).
			Limit(reassignBatchSize).
			Find(&batch).Error; err != nil {
			return moved, err
		}
		if len(batch) == 0 {
			return moved, nil
		}

		ids := make([]int, len(batch))
		for i, p := range batch {
			ids[i] = p.ID
		}

		err := withRetry(logger, fmt.Sprintf("reassign batch dup=%d", dupId), func() error {
			return db.WithContext(ctx).Model(&models.Pledge{}).
				Where("id IN ?", ids).
				Updates(map[string]interface{}{
					"reward_id":  canonicalId,
					"updated_at": time.Now().UTC(),
				}).Error
		})
		if err != nil {
			return moved, err
		}
		moved += len(batch)
	}
}

// withRetry retries fn on transient store errors with exponential backoff,
// up to maxBatchAttempts. Permanent errors return immediately.
func withRetry(logger *logrus.Logger, op string, fn func() error) error {
	var lastErr error
	for attempt := 1; attempt <= maxBatchAttempts; attempt++ {
		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		if !utils.IsTransientDBErr(lastErr) {
			return lastErr
		}
		sleep := time.Duration(100*(1<<attempt)) * time.Millisecond
		logger.WithFields(logrus.Fields{
			"operation": op,
			"attempt":   attempt,
		}).Warn("transient store error; retrying in " + sleep.String() + ": " + lastErr.Error())
		time.Sleep(sleep)
	}
	return fmt.Errorf("%s: retries exhausted: %w", op, lastErr)
}

// backfillUnassignedPledges assigns each rewardless pledge in the campaign
// the best-fit canonical tier: the highest minimum amount still <= the
// pledge amount. Pledges below every tier stay unassigned.
func backfillUnassignedPledges(ctx context.Context, db *gorm.DB, campaignId int, refs []canonicalRef) (int, error) {
	tiers := make([]CatalogTier, 0, len(refs))
	for _, ref := range refs {
		tiers = append(tiers, CatalogTier{RewardId: ref.RewardId, MinimumAmount: ref.Entry.MinimumAmount})
	}

	var unassigned []models.Pledge
	if err := db.WithContext(ctx).
		Select("id", "amount").
		Where("campaign_id = ? AND reward_id IS NULL", campaignId).
		Find(&unassigned).Error; err != nil {
		return 0, err
	}

	assigned := 0
	for _, pledge := range unassigned {
		rewardId, ok := BestFitTier(tiers, pledge.Amount)
		if !ok {
			continue
		}
		if err := db.WithContext(ctx).Model(&models.Pledge{}).
			Where("id = ?", pledge.ID).
			Updates(map[string]interface{}{
				"reward_id":  rewardId,
				"updated_at": time.Now().UTC(),
			}).Error; err != nil {
			return assigned, err
		}
		assigned++
	}
	return assigned, nil
}

// CatalogTier is the (reward id, minimum amount) pair BestFitTier selects
// from.
type CatalogTier struct {
	RewardId      int
	MinimumAmount decimal.Decimal
}

// BestFitTier returns the reward id of the tier with the highest minimum
// amount that is still <= amount, or false when no tier qualifies.
func BestFitTier(tiers []CatalogTier, amount decimal.Decimal) (int, bool) {
	sorted := make([]CatalogTier, len(tiers))
	copy(sorted, tiers)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].MinimumAmount.GreaterThan(sorted[j].MinimumAmount)
	})
	for _, tier := range sorted {
		if tier.MinimumAmount.LessThanOrEqual(amount) {
			return tier.RewardId, true
		}
	}
	return 0, false
}
