package domain

import "time"

type UserRole string

const (
	RoleCustomer UserRole = "customer"
	RoleProvider UserRole = "provider"
	RoleBroker   UserRole = "broker"
	RoleAdmin    UserRole = "admin"
)

type User struct {
	ID           int64    `json:"id"`
	Name         string   `json:"name"`
	MobileNumber string   `json:"mobile_number" validate:"required"`
	Role         UserRole `json:"role"`
	IsVerified   bool     `json:"is_verified"`
	Latitude     *float64 `json:"latitude,omitempty"`
	Longitude    *float64 `json:"longitude,omitempty"`
	LocationID   *int64   `json:"location_id,omitempty"`
	// Set when a broker registered this provider under its own roster.
	RegisteredByBroker *int64    `json:"registered_by_broker,omitempty"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}
