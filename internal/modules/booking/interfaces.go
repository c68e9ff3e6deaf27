package booking

import (
	"context"

	"servicehub/internal/domain"
	"servicehub/internal/repository"
)

// BookingRepository is the persistence gateway surface the lifecycle
// engine needs. Status writes are conditional on the expected current
// status and carry their notification rows in the same transaction.
type BookingRepository interface {
	Create(ctx context.Context, b *domain.Booking, notifs []domain.Notification) error
	GetByID(ctx context.Context, id int64) (*domain.Booking, error)
	UpdateStatusIf(ctx context.Context, id int64, from, to domain.BookingStatus, notifs []domain.Notification) (*domain.Booking, error)
	UpdatePaymentStatus(ctx context.Context, id int64, status domain.PaymentStatus) (*domain.Booking, error)
	History(ctx context.Context, userID int64) ([]repository.BookingHistoryRow, error)
	GetByProviderID(ctx context.Context, providerID int64) ([]domain.Booking, error)
}

type UserReader interface {
	GetByID(ctx context.Context, id int64) (*domain.User, error)
}

// Publisher is the live fan-out side of the notifier. Pushes are best
// effort; durable rows are written by the repository transaction.
type Publisher interface {
	Publish(topic, event string, data any)
}
