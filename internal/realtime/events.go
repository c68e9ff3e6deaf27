package realtime

import (
	"fmt"

	"servicehub/internal/domain"
)

// Inbound channel events.
const (
	EventRegister          = "register"
	EventJoin              = "join"
	EventSubscribeBooking  = "subscribe_booking"
	EventSubscribeProvider = "subscribe_provider"
	EventSubscribeBroker   = "subscribe_broker"
	EventNewBookingRequest = "new_booking_request"
	EventBookingResponse   = "booking_response"
	EventUpdateLocation    = "update_location"
	EventPing              = "ping"
)

// Outbound channel events. booking_completed is used in both
// directions, matching the wire contract clients already speak.
const (
	EventNewBooking                = "new_booking"
	EventBookingStatusUpdate       = "booking_status_update"
	EventBookingCompleted          = "booking_completed"
	EventProviderLocationUpdate    = "provider_location_update"
	EventNewGroupRequest           = "new_group_request"
	EventNewGroupRequestBroadcast  = "new_group_request_broadcast"
	EventGroupRequestAccepted      = "group_request_accepted"
	EventGroupRequestDeclined      = "group_request_declined"
	EventGroupRequestCancelled     = "group_request_cancelled"
	EventGroupRequestCompleted     = "group_request_completed"
	EventError                     = "error"
	EventPong                      = "pong"
)

// Topic naming is convention, not a server-enforced namespace.
func UserTopic(id int64) string     { return fmt.Sprintf("user_%d", id) }
func BookingTopic(id int64) string  { return fmt.Sprintf("booking_%d", id) }
func ProviderTopic(id int64) string { return fmt.Sprintf("provider_%d", id) }
func CustomerTopic(id int64) string { return fmt.Sprintf("customer_%d", id) }

// Event is the wire envelope for both directions.
type Event struct {
	Event string `json:"event"`
	Data  any    `json:"data,omitempty"`
}

type NewBookingPayload struct {
	Booking        *domain.Booking `json:"booking"`
	IsGroupBooking bool            `json:"is_group_booking,omitempty"`
}

type BookingStatusPayload struct {
	BookingID int64  `json:"booking_id"`
	Status    string `json:"status"`
}

type BookingCompletedPayload struct {
	BookingID  int64  `json:"booking_id"`
	ProviderID *int64 `json:"provider_id,omitempty"`
}

type LocationPayload struct {
	ProviderID int64   `json:"provider_id"`
	Lat        float64 `json:"lat"`
	Lng        float64 `json:"lng"`
	Name       string  `json:"name,omitempty"`
	BookingID  *int64  `json:"booking_id,omitempty"`
}

type GroupRequestPayload struct {
	Request *domain.GroupRequest `json:"request"`
}

type GroupAcceptedPayload struct {
	RequestID    int64  `json:"request_id"`
	BrokerID     int64  `json:"broker_id"`
	BookingCount int    `json:"booking_count"`
	Message      string `json:"message"`
}

type GroupFinishedPayload struct {
	RequestID        int64  `json:"request_id"`
	Message          string `json:"message"`
	AffectedBookings int    `json:"affected_bookings"`
}

type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
