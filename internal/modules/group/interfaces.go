package group

import (
	"context"

	"servicehub/internal/domain"
)

type GroupRequestRepository interface {
	Create(ctx context.Context, g *domain.GroupRequest, notifs []domain.Notification) error
	GetByID(ctx context.Context, id int64) (*domain.GroupRequest, error)
	ListForBroker(ctx context.Context, brokerID int64) ([]domain.GroupRequest, error)
	ListForCustomer(ctx context.Context, customerID int64) ([]domain.GroupRequest, error)
	Accept(ctx context.Context, requestID, brokerID int64, bookings []*domain.Booking, notifs []domain.Notification) (*domain.GroupRequest, error)
	Finish(ctx context.Context, requestID int64, from []domain.GroupRequestStatus, to domain.GroupRequestStatus, bookingTo domain.BookingStatus, notifs []domain.Notification) (*domain.GroupRequest, []domain.Booking, error)
}

type BookingReader interface {
	GetByGroupRequestID(ctx context.Context, groupRequestID int64) ([]domain.Booking, error)
}

type UserReader interface {
	GetByID(ctx context.Context, id int64) (*domain.User, error)
	VerifiedBrokers(ctx context.Context) ([]domain.User, error)
}

// Notifier is the event emitter: Notify dual-writes (durable rows,
// then live push), Publish is live-only for flows whose rows already
// rode a repository transaction.
type Notifier interface {
	Notify(ctx context.Context, topics []string, event string, payload any, recipients []int64, message string) error
	Publish(topic, event string, data any)
}
