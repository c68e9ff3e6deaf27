package booking

import (
	"servicehub/internal/domain"
	"servicehub/internal/repository"
)

type CreateBookingRequest struct {
	// Set server-side from the authenticated actor, never from the body.
	CustomerID int64 `json:"-"`

	ProviderID *int64              `json:"provider_id"`
	BrokerID   *int64              `json:"broker_id"`
	Amount     float64             `json:"total_amount"`
	Meta       *domain.BookingMeta `json:"metadata"`
}

type TransitionRequest struct {
	Status string `json:"status" binding:"required"`
}

type PaymentRequest struct {
	Status string `json:"status" binding:"required"`
}

// BookingDetails is the history row shape returned to clients.
type BookingDetails struct {
	domain.Booking
	CustomerName string `json:"customer_name,omitempty"`
	ProviderName string `json:"provider_name,omitempty"`
}

func toDetails(r repository.BookingHistoryRow) BookingDetails {
	return BookingDetails{
		Booking:      r.Booking,
		CustomerName: r.CustomerName,
		ProviderName: r.ProviderName,
	}
}
