package ws

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"

	"servicehub/internal/domain"
	"servicehub/internal/modules/booking"
	jwtsvc "servicehub/internal/pkg/jwt"
	"servicehub/internal/realtime"
)

type MockBookingService struct {
	mock.Mock
}

func (m *MockBookingService) Create(ctx context.Context, req booking.CreateBookingRequest) (*domain.Booking, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Booking), args.Error(1)
}

func (m *MockBookingService) Transition(ctx context.Context, bookingID, actorID int64, actorRole domain.UserRole, newStatus domain.BookingStatus) (*domain.Booking, error) {
	args := m.Called(ctx, bookingID, actorID, actorRole, newStatus)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Booking), args.Error(1)
}

type MockLocationStore struct {
	mock.Mock
}

func (m *MockLocationStore) UpdateLocation(ctx context.Context, userID int64, lat, lng float64) error {
	args := m.Called(ctx, userID, lat, lng)
	return args.Error(0)
}

func newTestHandler(bookings *MockBookingService, locations *MockLocationStore) (*Handler, *realtime.Hub) {
	hub := realtime.NewHub()
	h := NewHandler(hub, jwtsvc.New("test-secret", time.Hour), bookings, locations, 1, 1)
	return h, hub
}

func raw(t *testing.T, v any) json.RawMessage {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatal(err)
	}
	return data
}

func TestDispatch_BookingResponseUppercasesStatus(t *testing.T) {
	bookings := new(MockBookingService)
	h, hub := newTestHandler(bookings, new(MockLocationStore))

	conn := realtime.NewConn(2, "provider", nil)
	hub.Register(conn)

	bookings.On("Transition", mock.Anything, int64(42), int64(2),
		domain.RoleProvider, domain.BookingAccepted).
		Return(&domain.Booking{ID: 42, Status: domain.BookingAccepted}, nil)

	h.dispatch(conn, realtime.EventBookingResponse, raw(t, map[string]any{
		"booking_id": 42,
		"status":     "accepted",
	}))

	bookings.AssertExpectations(t)
}

func TestDispatch_BookingResponseUnknownStatusNotForwarded(t *testing.T) {
	bookings := new(MockBookingService)
	h, hub := newTestHandler(bookings, new(MockLocationStore))

	conn := realtime.NewConn(2, "provider", nil)
	hub.Register(conn)

	h.dispatch(conn, realtime.EventBookingResponse, raw(t, map[string]any{
		"booking_id": 42,
		"status":     "done",
	}))

	bookings.AssertNotCalled(t, "Transition",
		mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestDispatch_BookingCompletedTransitions(t *testing.T) {
	bookings := new(MockBookingService)
	h, hub := newTestHandler(bookings, new(MockLocationStore))

	conn := realtime.NewConn(1, "customer", nil)
	hub.Register(conn)

	bookings.On("Transition", mock.Anything, int64(42), int64(1),
		domain.RoleCustomer, domain.BookingCompleted).
		Return(&domain.Booking{ID: 42, Status: domain.BookingCompleted}, nil)

	h.dispatch(conn, realtime.EventBookingCompleted, raw(t, map[string]any{"booking_id": 42}))

	bookings.AssertExpectations(t)
}

func TestDispatch_NewBookingRequestUsesConnIdentity(t *testing.T) {
	bookings := new(MockBookingService)
	h, hub := newTestHandler(bookings, new(MockLocationStore))

	conn := realtime.NewConn(7, "customer", nil)
	hub.Register(conn)

	bookings.On("Create", mock.Anything, mock.MatchedBy(func(req booking.CreateBookingRequest) bool {
		return req.CustomerID == 7
	})).Return(&domain.Booking{ID: 1}, nil)

	// customer_id in the body is ignored; the token identity wins.
	h.dispatch(conn, realtime.EventNewBookingRequest, raw(t, map[string]any{
		"customer_id":  999,
		"provider_id":  2,
		"total_amount": 100,
	}))

	bookings.AssertExpectations(t)
}

func TestDispatch_UpdateLocationProviderIdentity(t *testing.T) {
	locations := new(MockLocationStore)
	h, hub := newTestHandler(new(MockBookingService), locations)

	conn := realtime.NewConn(2, "provider", nil)
	hub.Register(conn)

	locations.On("UpdateLocation", mock.Anything, int64(2), 43.238, 76.889).Return(nil)

	// A provider cannot report on behalf of someone else.
	h.dispatch(conn, realtime.EventUpdateLocation, raw(t, map[string]any{
		"provider_id": 555,
		"lat":         43.238,
		"lng":         76.889,
	}))

	locations.AssertExpectations(t)
}

func TestDispatch_UpdateLocationNonProviderRejected(t *testing.T) {
	locations := new(MockLocationStore)
	h, hub := newTestHandler(new(MockBookingService), locations)

	conn := realtime.NewConn(1, "customer", nil)
	hub.Register(conn)

	// A customer cannot plant a position for an arbitrary provider.
	h.dispatch(conn, realtime.EventUpdateLocation, raw(t, map[string]any{
		"provider_id": 2,
		"lat":         43.238,
		"lng":         76.889,
	}))

	locations.AssertNotCalled(t, "UpdateLocation",
		mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestDispatch_UpdateLocationRateLimited(t *testing.T) {
	locations := new(MockLocationStore)
	h, hub := newTestHandler(new(MockBookingService), locations)

	conn := realtime.NewConn(2, "provider", nil)
	hub.Register(conn)

	locations.On("UpdateLocation", mock.Anything, int64(2), mock.Anything, mock.Anything).Return(nil)

	// Burst of 1: the second report inside the same second is dropped.
	payload := raw(t, map[string]any{"lat": 43.0, "lng": 76.0})
	h.dispatch(conn, realtime.EventUpdateLocation, payload)
	h.dispatch(conn, realtime.EventUpdateLocation, payload)

	locations.AssertNumberOfCalls(t, "UpdateLocation", 1)
}
