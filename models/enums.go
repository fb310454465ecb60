package models

type CampaignStatus string

const (
	CampaignStatusDraft  CampaignStatus = "draft"
	CampaignStatusActive CampaignStatus = "active"
	CampaignStatusFunded CampaignStatus = "funded"
	CampaignStatusEnded  CampaignStatus = "ended"
)

type PledgeStatus string

const (
	PledgeStatusPending   PledgeStatus = "pending"
	PledgeStatusCompleted PledgeStatus = "completed"
	PledgeStatusRefunded  PledgeStatus = "refunded"
	PledgeStatusFailed    PledgeStatus = "failed"
)

type ShippingStatus string

const (
	ShippingStatusNotShipped ShippingStatus = "not_shipped"
	ShippingStatusShipped    ShippingStatus = "shipped"
	ShippingStatusDelivered  ShippingStatus = "delivered"
	ShippingStatusReturned   ShippingStatus = "returned"
)

type AdminRole string

const (
	AdminRoleSuper   AdminRole = "Super"
	AdminRoleSupport AdminRole = "Support"
)

// MergeReasonAccountConsolidation is the fixed reason label written to every
// merged_accounts audit row created by the account merger.
const MergeReasonAccountConsolidation = "account_consolidation"
