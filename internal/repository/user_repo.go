package repository

import (
	"context"
	"errors"
	"time"

	"servicehub/internal/domain"

	"gorm.io/gorm"
)

type UserRepository struct {
	db *gorm.DB
}

func NewUserRepository(db *gorm.DB) *UserRepository {
	return &UserRepository{db: db}
}

type userModel struct {
	ID                 int64     `gorm:"column:id;primaryKey"`
	Name               string    `gorm:"column:name"`
	MobileNumber       string    `gorm:"column:mobile_number"`
	Role               string    `gorm:"column:role"`
	IsVerified         bool      `gorm:"column:is_verified"`
	Latitude           *float64  `gorm:"column:latitude"`
	Longitude          *float64  `gorm:"column:longitude"`
	LocationID         *int64    `gorm:"column:location_id"`
	RegisteredByBroker *int64    `gorm:"column:registered_by_broker"`
	CreatedAt          time.Time `gorm:"column:created_at"`
	UpdatedAt          time.Time `gorm:"column:updated_at"`
}

func (userModel) TableName() string { return "users" }

func toDomainUser(m userModel) *domain.User {
	return &domain.User{
		ID:                 m.ID,
		Name:               m.Name,
		MobileNumber:       m.MobileNumber,
		Role:               domain.UserRole(m.Role),
		IsVerified:         m.IsVerified,
		Latitude:           m.Latitude,
		Longitude:          m.Longitude,
		LocationID:         m.LocationID,
		RegisteredByBroker: m.RegisteredByBroker,
		CreatedAt:          m.CreatedAt,
		UpdatedAt:          m.UpdatedAt,
	}
}

func (r *UserRepository) GetByID(ctx context.Context, id int64) (*domain.User, error) {
	var m userModel
	tx := r.db.WithContext(ctx).First(&m, id)
	if tx.Error != nil {
		if errors.Is(tx.Error, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, tx.Error
	}
	return toDomainUser(m), nil
}

// VerifiedBrokers lists the brokers an open group request is broadcast
// to.
func (r *UserRepository) VerifiedBrokers(ctx context.Context) ([]domain.User, error) {
	var ms []userModel
	tx := r.db.WithContext(ctx).
		Where("role = ? AND is_verified = ?", string(domain.RoleBroker), true).
		Order("name").
		Find(&ms)
	if tx.Error != nil {
		return nil, tx.Error
	}

	out := make([]domain.User, 0, len(ms))
	for _, m := range ms {
		out = append(out, *toDomainUser(m))
	}
	return out, nil
}

// UpdateLocation stores the latest reported position so a late
// subscriber can fetch it instead of waiting for the next live push.
func (r *UserRepository) UpdateLocation(ctx context.Context, userID int64, lat, lng float64) error {
	res := r.db.WithContext(ctx).Model(&userModel{}).
		Where("id = ?", userID).
		Updates(map[string]any{
			"latitude":   lat,
			"longitude":  lng,
			"updated_at": time.Now().UTC(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
