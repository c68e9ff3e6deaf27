package repository

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"servicehub/internal/domain"

	"gorm.io/gorm"
)

type BookingRepository struct {
	db *gorm.DB
}

func NewBookingRepository(db *gorm.DB) *BookingRepository {
	return &BookingRepository{db: db}
}

type bookingModel struct {
	ID             int64      `gorm:"column:id;primaryKey"`
	CustomerID     int64      `gorm:"column:customer_id"`
	ProviderID     *int64     `gorm:"column:provider_id"`
	BrokerID       *int64     `gorm:"column:broker_id"`
	GroupRequestID *int64     `gorm:"column:group_request_id"`
	Status         string     `gorm:"column:status"`
	PaymentStatus  string     `gorm:"column:payment_status"`
	TotalAmount    float64    `gorm:"column:total_amount"`
	Metadata       []byte     `gorm:"column:metadata"`
	CreatedAt      time.Time  `gorm:"column:created_at"`
	UpdatedAt      time.Time  `gorm:"column:updated_at"`
	CompletedAt    *time.Time `gorm:"column:completed_at"`
}

func (bookingModel) TableName() string { return "bookings" }

func toDomainBooking(m bookingModel) *domain.Booking {
	var meta *domain.BookingMeta
	if len(m.Metadata) > 0 {
		var v domain.BookingMeta
		if err := json.Unmarshal(m.Metadata, &v); err == nil {
			meta = &v
		}
	}

	return &domain.Booking{
		ID:             m.ID,
		CustomerID:     m.CustomerID,
		ProviderID:     m.ProviderID,
		BrokerID:       m.BrokerID,
		GroupRequestID: m.GroupRequestID,
		Status:         domain.BookingStatus(m.Status),
		PaymentStatus:  domain.PaymentStatus(m.PaymentStatus),
		Amount:         m.TotalAmount,
		Meta:           meta,
		CreatedAt:      m.CreatedAt,
		UpdatedAt:      m.UpdatedAt,
		CompletedAt:    m.CompletedAt,
	}
}

func toBookingModel(b *domain.Booking) (bookingModel, error) {
	var raw []byte
	if b.Meta != nil {
		data, err := json.Marshal(b.Meta)
		if err != nil {
			return bookingModel{}, err
		}
		raw = data
	}

	return bookingModel{
		ID:             b.ID,
		CustomerID:     b.CustomerID,
		ProviderID:     b.ProviderID,
		BrokerID:       b.BrokerID,
		GroupRequestID: b.GroupRequestID,
		Status:         string(b.Status),
		PaymentStatus:  string(b.PaymentStatus),
		TotalAmount:    b.Amount,
		Metadata:       raw,
		CreatedAt:      b.CreatedAt,
		UpdatedAt:      b.UpdatedAt,
		CompletedAt:    b.CompletedAt,
	}, nil
}

// Create inserts the booking and its notification rows as one unit, so
// a crash cannot leave a persisted booking without its durable
// notifications.
func (r *BookingRepository) Create(ctx context.Context, b *domain.Booking, notifs []domain.Notification) error {
	m, err := toBookingModel(b)
	if err != nil {
		return err
	}

	err = r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&m).Error; err != nil {
			return err
		}
		return insertNotifications(tx, notifs)
	})
	if err != nil {
		return err
	}

	*b = *toDomainBooking(m)
	return nil
}

func (r *BookingRepository) GetByID(ctx context.Context, id int64) (*domain.Booking, error) {
	var m bookingModel
	tx := r.db.WithContext(ctx).First(&m, id)
	if tx.Error != nil {
		if errors.Is(tx.Error, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, tx.Error
	}
	return toDomainBooking(m), nil
}

// UpdateStatusIf performs the optimistic status transition: the write
// only lands when the row still carries the expected current status.
// Notification rows ride in the same transaction.
func (r *BookingRepository) UpdateStatusIf(ctx context.Context, id int64, from, to domain.BookingStatus, notifs []domain.Notification) (*domain.Booking, error) {
	var m bookingModel

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		updates := map[string]any{
			"status":     string(to),
			"updated_at": time.Now().UTC(),
		}
		if to == domain.BookingCompleted {
			now := time.Now().UTC()
			updates["completed_at"] = &now
		}

		res := tx.Model(&bookingModel{}).
			Where("id = ? AND status = ?", id, string(from)).
			Updates(updates)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			var cnt int64
			if err := tx.Model(&bookingModel{}).Where("id = ?", id).Count(&cnt).Error; err != nil {
				return err
			}
			if cnt == 0 {
				return ErrNotFound
			}
			return ErrConflict
		}

		if err := insertNotifications(tx, notifs); err != nil {
			return err
		}
		return tx.First(&m, id).Error
	})
	if err != nil {
		return nil, err
	}
	return toDomainBooking(m), nil
}

func (r *BookingRepository) UpdatePaymentStatus(ctx context.Context, id int64, status domain.PaymentStatus) (*domain.Booking, error) {
	res := r.db.WithContext(ctx).Model(&bookingModel{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"payment_status": string(status),
			"updated_at":     time.Now().UTC(),
		})
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, ErrNotFound
	}
	return r.GetByID(ctx, id)
}

// BookingHistoryRow is a booking joined with the counterpart names the
// history screen shows.
type BookingHistoryRow struct {
	Booking      domain.Booking
	CustomerName string
	ProviderName string
}

type bookingHistoryScan struct {
	bookingModel
	CustomerName *string `gorm:"column:customer_name"`
	ProviderName *string `gorm:"column:provider_name"`
}

// History returns every booking the user participates in, as customer,
// provider or broker, newest first.
func (r *BookingRepository) History(ctx context.Context, userID int64) ([]BookingHistoryRow, error) {
	q := `
SELECT b.*,
       c.name AS customer_name,
       p.name AS provider_name
FROM bookings b
LEFT JOIN users c ON b.customer_id = c.id
LEFT JOIN users p ON b.provider_id = p.id
WHERE b.customer_id = ? OR b.provider_id = ? OR b.broker_id = ?
ORDER BY b.created_at DESC
`
	var rows []bookingHistoryScan
	tx := r.db.WithContext(ctx).Raw(q, userID, userID, userID).Scan(&rows)
	if tx.Error != nil {
		return nil, tx.Error
	}

	out := make([]BookingHistoryRow, 0, len(rows))
	for _, row := range rows {
		hr := BookingHistoryRow{Booking: *toDomainBooking(row.bookingModel)}
		if row.CustomerName != nil {
			hr.CustomerName = *row.CustomerName
		}
		if row.ProviderName != nil {
			hr.ProviderName = *row.ProviderName
		}
		out = append(out, hr)
	}
	return out, nil
}

func (r *BookingRepository) GetByProviderID(ctx context.Context, providerID int64) ([]domain.Booking, error) {
	var ms []bookingModel
	tx := r.db.WithContext(ctx).
		Where("provider_id = ?", providerID).
		Order("created_at DESC").
		Find(&ms)
	if tx.Error != nil {
		return nil, tx.Error
	}

	out := make([]domain.Booking, 0, len(ms))
	for _, m := range ms {
		out = append(out, *toDomainBooking(m))
	}
	return out, nil
}

func (r *BookingRepository) GetByGroupRequestID(ctx context.Context, groupRequestID int64) ([]domain.Booking, error) {
	var ms []bookingModel
	tx := r.db.WithContext(ctx).
		Where("group_request_id = ?", groupRequestID).
		Order("id").
		Find(&ms)
	if tx.Error != nil {
		return nil, tx.Error
	}

	out := make([]domain.Booking, 0, len(ms))
	for _, m := range ms {
		out = append(out, *toDomainBooking(m))
	}
	return out, nil
}
