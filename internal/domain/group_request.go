package domain

import "time"

type GroupRequestStatus string

const (
	GroupPending   GroupRequestStatus = "pending"
	GroupAccepted  GroupRequestStatus = "accepted"
	GroupCompleted GroupRequestStatus = "completed"
	GroupCancelled GroupRequestStatus = "cancelled"
	GroupDeclined  GroupRequestStatus = "declined"
)

func (s GroupRequestStatus) IsTerminal() bool {
	switch s {
	case GroupCompleted, GroupCancelled, GroupDeclined:
		return true
	}
	return false
}

// GroupRequest is a customer's ask for N providers of one skill.
// BrokerID nil means the request is open to any verified broker.
type GroupRequest struct {
	ID              int64              `json:"id"`
	CustomerID      int64              `json:"customer_id" validate:"required"`
	BrokerID        *int64             `json:"broker_id,omitempty"`
	SkillID         int64              `json:"skill_id" validate:"required"`
	ProviderCount   int                `json:"provider_count" validate:"required,gte=1"`
	Description     string             `json:"description" validate:"required"`
	LocationDetails string             `json:"location_details,omitempty"`
	PreferredDate   *time.Time         `json:"preferred_date,omitempty"`
	BudgetRange     string             `json:"budget_range,omitempty"`
	Status          GroupRequestStatus `json:"status"`
	CreatedAt       time.Time          `json:"created_at"`
	AcceptedAt      *time.Time         `json:"accepted_at,omitempty"`
	CompletedAt     *time.Time         `json:"completed_at,omitempty"`
}
