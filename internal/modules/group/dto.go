package group

import "time"

type CreateGroupRequest struct {
	// Set server-side from the authenticated actor.
	CustomerID int64 `json:"-"`

	SkillID         int64      `json:"skill_id" binding:"required"`
	ProviderCount   int        `json:"provider_count" binding:"required"`
	BrokerID        *int64     `json:"broker_id"`
	Description     string     `json:"description" binding:"required"`
	LocationDetails string     `json:"location_details"`
	PreferredDate   *time.Time `json:"preferred_date"`
	BudgetRange     string     `json:"budget_range"`
}

type AcceptGroupRequest struct {
	ProviderIDs []int64 `json:"provider_ids" binding:"required"`
	TotalAmount float64 `json:"total_amount"`
}
