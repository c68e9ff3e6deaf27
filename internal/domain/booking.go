package domain

import "time"

type BookingStatus string

const (
	BookingPending    BookingStatus = "PENDING"
	BookingAccepted   BookingStatus = "ACCEPTED"
	BookingInProgress BookingStatus = "IN_PROGRESS"
	BookingCompleted  BookingStatus = "COMPLETED"
	BookingRejected   BookingStatus = "REJECTED"
	BookingCancelled  BookingStatus = "CANCELLED"
)

// IsTerminal reports whether no further lifecycle transition is allowed.
func (s BookingStatus) IsTerminal() bool {
	switch s {
	case BookingCompleted, BookingRejected, BookingCancelled:
		return true
	}
	return false
}

type PaymentStatus string

const (
	PaymentUnpaid   PaymentStatus = "unpaid"
	PaymentPaid     PaymentStatus = "paid"
	PaymentRefunded PaymentStatus = "refunded"
)

// BookingMeta carries the free-form attributes the booking was created
// with. Kept as a typed sub-structure instead of an open map so shape
// drift shows up at compile time.
type BookingMeta struct {
	SkillRequired   string `json:"skill_required,omitempty"`
	Description     string `json:"description,omitempty"`
	LocationDetails string `json:"location_details,omitempty"`
	BudgetRange     string `json:"budget_range,omitempty"`
	CustomerName    string `json:"customer_name,omitempty"`
	CustomerMobile  string `json:"customer_mobile,omitempty"`
	ProviderCount   int    `json:"provider_count,omitempty"`
	GroupBooking    bool   `json:"group_booking,omitempty"`
}

type Booking struct {
	ID         int64  `json:"id"`
	CustomerID int64  `json:"customer_id" validate:"required"`
	ProviderID *int64 `json:"provider_id,omitempty"`
	BrokerID   *int64 `json:"broker_id,omitempty"`
	// Links sibling bookings spawned from one group request.
	GroupRequestID *int64        `json:"group_request_id,omitempty"`
	Status         BookingStatus `json:"status"`
	PaymentStatus  PaymentStatus `json:"payment_status"`
	Amount         float64       `json:"total_amount"`
	Meta           *BookingMeta  `json:"metadata,omitempty"`
	CreatedAt      time.Time     `json:"created_at"`
	UpdatedAt      time.Time     `json:"updated_at"`
	CompletedAt    *time.Time    `json:"completed_at,omitempty"`
}
