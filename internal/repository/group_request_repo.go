package repository

import (
	"context"
	"errors"
	"time"

	"servicehub/internal/domain"

	"gorm.io/gorm"
)

type GroupRequestRepository struct {
	db *gorm.DB
}

func NewGroupRequestRepository(db *gorm.DB) *GroupRequestRepository {
	return &GroupRequestRepository{db: db}
}

type groupRequestModel struct {
	ID              int64      `gorm:"column:id;primaryKey"`
	CustomerID      int64      `gorm:"column:customer_id"`
	BrokerID        *int64     `gorm:"column:broker_id"`
	SkillID         int64      `gorm:"column:skill_id"`
	ProviderCount   int        `gorm:"column:provider_count"`
	Description     string     `gorm:"column:description"`
	LocationDetails string     `gorm:"column:location_details"`
	PreferredDate   *time.Time `gorm:"column:preferred_date"`
	BudgetRange     string     `gorm:"column:budget_range"`
	Status          string     `gorm:"column:status"`
	CreatedAt       time.Time  `gorm:"column:created_at"`
	AcceptedAt      *time.Time `gorm:"column:accepted_at"`
	CompletedAt     *time.Time `gorm:"column:completed_at"`
}

func (groupRequestModel) TableName() string { return "group_requests" }

func toDomainGroupRequest(m groupRequestModel) *domain.GroupRequest {
	return &domain.GroupRequest{
		ID:              m.ID,
		CustomerID:      m.CustomerID,
		BrokerID:        m.BrokerID,
		SkillID:         m.SkillID,
		ProviderCount:   m.ProviderCount,
		Description:     m.Description,
		LocationDetails: m.LocationDetails,
		PreferredDate:   m.PreferredDate,
		BudgetRange:     m.BudgetRange,
		Status:          domain.GroupRequestStatus(m.Status),
		CreatedAt:       m.CreatedAt,
		AcceptedAt:      m.AcceptedAt,
		CompletedAt:     m.CompletedAt,
	}
}

func toGroupRequestModel(g *domain.GroupRequest) groupRequestModel {
	return groupRequestModel{
		ID:              g.ID,
		CustomerID:      g.CustomerID,
		BrokerID:        g.BrokerID,
		SkillID:         g.SkillID,
		ProviderCount:   g.ProviderCount,
		Description:     g.Description,
		LocationDetails: g.LocationDetails,
		PreferredDate:   g.PreferredDate,
		BudgetRange:     g.BudgetRange,
		Status:          string(g.Status),
		CreatedAt:       g.CreatedAt,
		AcceptedAt:      g.AcceptedAt,
		CompletedAt:     g.CompletedAt,
	}
}

func (r *GroupRequestRepository) Create(ctx context.Context, g *domain.GroupRequest, notifs []domain.Notification) error {
	m := toGroupRequestModel(g)

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&m).Error; err != nil {
			return err
		}
		return insertNotifications(tx, notifs)
	})
	if err != nil {
		return err
	}

	*g = *toDomainGroupRequest(m)
	return nil
}

func (r *GroupRequestRepository) GetByID(ctx context.Context, id int64) (*domain.GroupRequest, error) {
	var m groupRequestModel
	tx := r.db.WithContext(ctx).First(&m, id)
	if tx.Error != nil {
		if errors.Is(tx.Error, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, tx.Error
	}
	return toDomainGroupRequest(m), nil
}

// ListForBroker returns pending requests the broker can act on: the
// ones assigned to it plus the ones open to any broker.
func (r *GroupRequestRepository) ListForBroker(ctx context.Context, brokerID int64) ([]domain.GroupRequest, error) {
	var ms []groupRequestModel
	tx := r.db.WithContext(ctx).
		Where("status = ? AND (broker_id = ? OR broker_id IS NULL)", string(domain.GroupPending), brokerID).
		Order("created_at DESC").
		Find(&ms)
	if tx.Error != nil {
		return nil, tx.Error
	}
	return toDomainGroupRequests(ms), nil
}

func (r *GroupRequestRepository) ListForCustomer(ctx context.Context, customerID int64) ([]domain.GroupRequest, error) {
	var ms []groupRequestModel
	tx := r.db.WithContext(ctx).
		Where("customer_id = ?", customerID).
		Order("created_at DESC").
		Find(&ms)
	if tx.Error != nil {
		return nil, tx.Error
	}
	return toDomainGroupRequests(ms), nil
}

func toDomainGroupRequests(ms []groupRequestModel) []domain.GroupRequest {
	out := make([]domain.GroupRequest, 0, len(ms))
	for _, m := range ms {
		out = append(out, *toDomainGroupRequest(m))
	}
	return out
}

// Accept atomically claims a pending request for the broker and fans
// it out into the given bookings, with their notification rows, in one
// transaction. The conditional claim is the guard against two brokers
// racing on the same request: the loser matches no row and gets
// ErrConflict.
func (r *GroupRequestRepository) Accept(ctx context.Context, requestID, brokerID int64, bookings []*domain.Booking, notifs []domain.Notification) (*domain.GroupRequest, error) {
	var m groupRequestModel

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := time.Now().UTC()
		res := tx.Model(&groupRequestModel{}).
			Where("id = ? AND status = ? AND (broker_id IS NULL OR broker_id = ?)",
				requestID, string(domain.GroupPending), brokerID).
			Updates(map[string]any{
				"broker_id":   brokerID,
				"status":      string(domain.GroupAccepted),
				"accepted_at": &now,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			var cnt int64
			if err := tx.Model(&groupRequestModel{}).Where("id = ?", requestID).Count(&cnt).Error; err != nil {
				return err
			}
			if cnt == 0 {
				return ErrNotFound
			}
			return ErrConflict
		}

		for _, b := range bookings {
			bm, err := toBookingModel(b)
			if err != nil {
				return err
			}
			if err := tx.Create(&bm).Error; err != nil {
				return err
			}
			*b = *toDomainBooking(bm)
		}

		if err := insertNotifications(tx, notifs); err != nil {
			return err
		}
		return tx.First(&m, requestID).Error
	})
	if err != nil {
		return nil, err
	}
	return toDomainGroupRequest(m), nil
}

// Finish moves the request from one of the given statuses to a
// terminal one and cascades the booking status to every non-terminal
// sibling booking. Returns the updated request and the bookings that
// share the group request id.
func (r *GroupRequestRepository) Finish(ctx context.Context, requestID int64, from []domain.GroupRequestStatus, to domain.GroupRequestStatus, bookingTo domain.BookingStatus, notifs []domain.Notification) (*domain.GroupRequest, []domain.Booking, error) {
	var m groupRequestModel
	var affected []bookingModel

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		fromStatuses := make([]string, 0, len(from))
		for _, s := range from {
			fromStatuses = append(fromStatuses, string(s))
		}

		updates := map[string]any{"status": string(to)}
		if to == domain.GroupCompleted {
			now := time.Now().UTC()
			updates["completed_at"] = &now
		}

		res := tx.Model(&groupRequestModel{}).
			Where("id = ? AND status IN ?", requestID, fromStatuses).
			Updates(updates)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			var cnt int64
			if err := tx.Model(&groupRequestModel{}).Where("id = ?", requestID).Count(&cnt).Error; err != nil {
				return err
			}
			if cnt == 0 {
				return ErrNotFound
			}
			return ErrConflict
		}

		bookingUpdates := map[string]any{
			"status":     string(bookingTo),
			"updated_at": time.Now().UTC(),
		}
		if bookingTo == domain.BookingCompleted {
			now := time.Now().UTC()
			bookingUpdates["completed_at"] = &now
		}

		if err := tx.Model(&bookingModel{}).
			Where("group_request_id = ? AND status NOT IN ?", requestID, terminalBookingStatuses()).
			Updates(bookingUpdates).Error; err != nil {
			return err
		}

		if err := tx.Where("group_request_id = ?", requestID).Order("id").Find(&affected).Error; err != nil {
			return err
		}

		if err := insertNotifications(tx, notifs); err != nil {
			return err
		}
		return tx.First(&m, requestID).Error
	})
	if err != nil {
		return nil, nil, err
	}

	bookings := make([]domain.Booking, 0, len(affected))
	for _, bm := range affected {
		bookings = append(bookings, *toDomainBooking(bm))
	}
	return toDomainGroupRequest(m), bookings, nil
}

func terminalBookingStatuses() []string {
	return []string{
		string(domain.BookingCompleted),
		string(domain.BookingRejected),
		string(domain.BookingCancelled),
	}
}
