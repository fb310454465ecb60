package models

import "time"

// RewardImportError queues importer rows that need operator review: rows
// associated with the fallback campaign, or rows that failed outright. The
// needs-review ops endpoint reads from here.
type RewardImportError struct {
	ID         int       `gorm:"primary_key" json:"id"`
	LegacyId   string    `gorm:"size:64;index" json:"legacy_id"`
	SourceFile string    `gorm:"size:255" json:"source_file"`
	ErrorCode  string    `gorm:"size:64" json:"error_code"`
	Message    string    `gorm:"type:text" json:"message"`
	RewardId   *int      `gorm:"index" json:"reward_id"`
	Resolved   bool      `gorm:"default:false;index" json:"resolved"`
	CreatedAt  time.Time `gorm:"autoCreateTime" json:"created_at"`
}

const (
	ImportErrorCodeUnresolvedCampaign = "unresolved_campaign"
	ImportErrorCodeRowFailed          = "row_failed"
)
