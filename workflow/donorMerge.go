package workflow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/reelfund/donors_backend/config"
	"github.com/reelfund/donors_backend/models"
	"github.com/reelfund/donors_backend/utils"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

var (
	ErrMergeTargetUnclaimed = errors.New("target donor has no auth user; cannot merge")
	ErrMergeSameDonor       = errors.New("source and target are the same donor")
)

// MergeResult reports what a completed merge actually did. Soft-failed steps
// are surfaced as warnings rather than errors.
type MergeResult struct {
	SourceDonorId  int             `json:"source_donor_id"`
	TargetDonorId  int             `json:"target_donor_id"`
	PledgesMoved   int             `json:"pledges_moved"`
	AmountMoved    decimal.Decimal `json:"amount_moved"`
	AddressesMoved int             `json:"addresses_moved"`
	Warnings       []string        `json:"warnings,omitempty"`
}

// MergeDonorAccounts consolidates the source donor into the target donor:
// pledges move in bulk, addresses move only when the target has none, an
// audit row is written and the source is deactivated with a breadcrumb note.
//
// The pledge move is all-or-nothing and gates everything else; the audit row
// and address migration are soft steps whose failure is logged but does not
// abort, because a half-merged pair with moved pledges is harder to repair
// than a missing audit row. The source is deactivated last so a crash
// mid-merge leaves both donors visible for manual repair.
func MergeDonorAccounts(ctx context.Context, db *gorm.DB, logger *logrus.Logger, sourceEmail, targetEmail, operator string) (*MergeResult, error) {
	source, err := models.GetDonorByEmail(ctx, db, sourceEmail)
	if err != nil {
		return nil, fmt.Errorf("resolve source donor: %w", err)
	}
	target, err := models.GetDonorByEmail(ctx, db, targetEmail)
	if err != nil {
		return nil, fmt.Errorf("resolve target donor: %w", err)
	}
	if source.ID == target.ID {
		return nil, ErrMergeSameDonor
	}
	// Checked before any mutation: merging into an unclaimed account would
	// strand the moved pledges behind a donor nobody can log in as.
	if target.AuthUserId == nil || *target.AuthUserId == "" {
		return nil, ErrMergeTargetUnclaimed
	}

	pledgesMoved, amountMoved := source.PledgeTotals()
	result := &MergeResult{
		SourceDonorId: source.ID,
		TargetDonorId: target.ID,
		PledgesMoved:  pledgesMoved,
		AmountMoved:   amountMoved,
	}

	// Step 1: move pledges, all-or-nothing.
	if err := db.WithContext(ctx).Model(&models.Pledge{}).
		Where("donor_id = ?", source.ID).
		Updates(map[string]interface{}{
			"donor_id":   target.ID,
			"updated_at": time.Now().UTC(),
		}).Error; err != nil {
		return nil, fmt.Errorf("move pledges: %w", err)
	}

	// Step 2: move addresses only when the source has some and the target has
	// none. A target with its own addresses keeps them untouched.
	if len(source.Addresses) > 0 && len(target.Addresses) == 0 {
		err := db.WithContext(ctx).Model(&models.Address{}).
			Where("donor_id = ?", source.ID).
			Updates(map[string]interface{}{
				"donor_id":   target.ID,
				"updated_at": time.Now().UTC(),
			}).Error
		if err != nil {
			config.LogError(logger, "donorMerge.go", "MergeDonorAccounts", "move addresses", source.ID, err)
			result.Warnings = append(result.Warnings, "address migration failed: "+err.Error())
		} else {
			result.AddressesMoved = len(source.Addresses)
		}
	}

	// Step 3: audit row and merge event. Both best-effort.
	audit := models.MergedAccount{
		SourceDonorId:    source.ID,
		SourceEmail:      source.Email,
		TargetDonorId:    target.ID,
		TargetEmail:      target.Email,
		TargetAuthUserId: *target.AuthUserId,
		PledgesMoved:     pledgesMoved,
		AmountMoved:      amountMoved,
		Reason:           models.MergeReasonAccountConsolidation,
		Notes:            "merged by " + operator,
	}
	if err := db.WithContext(ctx).Create(&audit).Error; err != nil {
		config.LogError(logger, "donorMerge.go", "MergeDonorAccounts", "write audit row", source.ID, err)
		result.Warnings = append(result.Warnings, "audit row not written: "+err.Error())
	}

	correlationId, _ := utils.GetCorrelationIdFromContext(ctx)
	if err := config.PublishMergeEvent(config.MergeEvent{
		SourceDonorId:  source.ID,
		SourceEmail:    source.Email,
		TargetDonorId:  target.ID,
		TargetEmail:    target.Email,
		TargetAuthUser: *target.AuthUserId,
		PledgesMoved:   pledgesMoved,
		AmountMoved:    amountMoved.StringFixed(2),
		MergedAt:       time.Now().UTC(),
		CorrelationId:  correlationId,
	}); err != nil {
		logger.Warn("merge event not published: " + err.Error())
	}

	// Step 4: deactivate the source and leave a breadcrumb.
	note := fmt.Sprintf("[%s] merged into %s", time.Now().UTC().Format("2006-01-02"), target.Email)
	if source.Notes != "" {
		note = source.Notes + "\n" + note
	}
	if err := db.WithContext(ctx).Model(&models.Donor{}).
		Where("id = ?", source.ID).
		Updates(map[string]interface{}{
			"deleted":    true,
			"notes":      note,
			"updated_at": time.Now().UTC(),
		}).Error; err != nil {
		return result, fmt.Errorf("deactivate source donor: %w", err)
	}

	logger.WithFields(logrus.Fields{
		"source_donor_id": source.ID,
		"target_donor_id": target.ID,
		"pledges_moved":   pledgesMoved,
		"amount_moved":    amountMoved.StringFixed(2),
		"operator":        operator,
	}).Info("donor merge finished")

	return result, nil
}

// MergePreview is what an operator reviews before confirming a merge.
type MergePreview struct {
	Source MergePreviewDonor `json:"source"`
	Target MergePreviewDonor `json:"target"`
}

type MergePreviewDonor struct {
	DonorId     int             `json:"donor_id"`
	Email       string          `json:"email"`
	FullName    string          `json:"full_name"`
	Claimed     bool            `json:"claimed"`
	PledgeCount int             `json:"pledge_count"`
	PledgeTotal decimal.Decimal `json:"pledge_total"`
	// Pledges carry their campaign and reward rows so the operator sees
	// exactly what a confirm would move.
	Pledges   []*models.Pledge  `json:"pledges"`
	Addresses []*models.Address `json:"addresses"`
}

// PreviewDonorMerge resolves both donors and reports what a merge would move,
// without mutating anything. The same precondition checks as the merge itself
// run here so operators see failures at preview time.
func PreviewDonorMerge(ctx context.Context, db *gorm.DB, sourceEmail, targetEmail string) (*MergePreview, error) {
	source, err := models.GetDonorByEmail(ctx, db, sourceEmail)
	if err != nil {
		return nil, fmt.Errorf("resolve source donor: %w", err)
	}
	target, err := models.GetDonorByEmail(ctx, db, targetEmail)
	if err != nil {
		return nil, fmt.Errorf("resolve target donor: %w", err)
	}
	if source.ID == target.ID {
		return nil, ErrMergeSameDonor
	}
	if target.AuthUserId == nil || *target.AuthUserId == "" {
		return nil, ErrMergeTargetUnclaimed
	}

	return &MergePreview{
		Source: previewDonor(source),
		Target: previewDonor(target),
	}, nil
}

func previewDonor(d *models.Donor) MergePreviewDonor {
	count, total := d.PledgeTotals()
	return MergePreviewDonor{
		DonorId:     d.ID,
		Email:       d.Email,
		FullName:    d.FullName,
		Claimed:     d.AuthUserId != nil && *d.AuthUserId != "",
		PledgeCount: count,
		PledgeTotal: total,
		Pledges:     d.Pledges,
		Addresses:   d.Addresses,
	}
}
