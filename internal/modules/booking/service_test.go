package booking

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"servicehub/internal/domain"
	"servicehub/internal/realtime"
	"servicehub/internal/repository"
)

// Mock repositories
type MockBookingRepository struct {
	mock.Mock
}

func (m *MockBookingRepository) Create(ctx context.Context, b *domain.Booking, notifs []domain.Notification) error {
	args := m.Called(ctx, b, notifs)
	if b != nil {
		b.ID = 999 // simulate DB insert
	}
	return args.Error(0)
}

func (m *MockBookingRepository) GetByID(ctx context.Context, id int64) (*domain.Booking, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Booking), args.Error(1)
}

func (m *MockBookingRepository) UpdateStatusIf(ctx context.Context, id int64, from, to domain.BookingStatus, notifs []domain.Notification) (*domain.Booking, error) {
	args := m.Called(ctx, id, from, to, notifs)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Booking), args.Error(1)
}

func (m *MockBookingRepository) UpdatePaymentStatus(ctx context.Context, id int64, status domain.PaymentStatus) (*domain.Booking, error) {
	args := m.Called(ctx, id, status)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Booking), args.Error(1)
}

func (m *MockBookingRepository) History(ctx context.Context, userID int64) ([]repository.BookingHistoryRow, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]repository.BookingHistoryRow), args.Error(1)
}

func (m *MockBookingRepository) GetByProviderID(ctx context.Context, providerID int64) ([]domain.Booking, error) {
	args := m.Called(ctx, providerID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.Booking), args.Error(1)
}

type MockUserReader struct {
	mock.Mock
}

func (m *MockUserReader) GetByID(ctx context.Context, id int64) (*domain.User, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.User), args.Error(1)
}

// recordingPublisher collects every live push so tests can assert the
// fan-out targets.
type recordingPublisher struct {
	published []publishedEvent
}

type publishedEvent struct {
	Topic string
	Event string
	Data  any
}

func (p *recordingPublisher) Publish(topic, event string, data any) {
	p.published = append(p.published, publishedEvent{Topic: topic, Event: event, Data: data})
}

func (p *recordingPublisher) topics(event string) []string {
	var out []string
	for _, e := range p.published {
		if e.Event == event {
			out = append(out, e.Topic)
		}
	}
	return out
}

func i64(v int64) *int64 { return &v }

func TestService_Create_Success(t *testing.T) {
	mockBookings := new(MockBookingRepository)
	mockUsers := new(MockUserReader)
	pub := &recordingPublisher{}

	mockUsers.On("GetByID", mock.Anything, int64(1)).Return(&domain.User{
		ID: 1, Name: "Asel", MobileNumber: "+77010000001", Role: domain.RoleCustomer,
	}, nil)
	mockBookings.On("Create", mock.Anything, mock.Anything, mock.Anything).Return(nil)

	service := NewService(mockBookings, mockUsers, pub)

	b, err := service.Create(context.Background(), CreateBookingRequest{
		CustomerID: 1,
		ProviderID: i64(2),
		BrokerID:   i64(3),
		Amount:     5000,
	})

	assert.NoError(t, err)
	assert.Equal(t, domain.BookingPending, b.Status)
	assert.Equal(t, domain.PaymentUnpaid, b.PaymentStatus)
	assert.Equal(t, "Asel", b.Meta.CustomerName)

	// Provider and broker both get a durable row in the create tx.
	notifs := mockBookings.Calls[0].Arguments.Get(2).([]domain.Notification)
	assert.Len(t, notifs, 2)
	assert.Equal(t, int64(2), notifs[0].UserID)
	assert.Equal(t, int64(3), notifs[1].UserID)

	// And a live new_booking each.
	assert.Equal(t, []string{"user_2", "user_3"}, pub.topics(realtime.EventNewBooking))
}

func TestService_Create_ValidationError(t *testing.T) {
	service := NewService(new(MockBookingRepository), new(MockUserReader), &recordingPublisher{})

	_, err := service.Create(context.Background(), CreateBookingRequest{CustomerID: 0})
	assert.ErrorIs(t, err, ErrValidation)

	_, err = service.Create(context.Background(), CreateBookingRequest{CustomerID: 1, Amount: -1})
	assert.ErrorIs(t, err, ErrValidation)
}

func TestService_Transition_ProviderAccepts(t *testing.T) {
	mockBookings := new(MockBookingRepository)
	pub := &recordingPublisher{}

	pending := &domain.Booking{ID: 42, CustomerID: 1, ProviderID: i64(2), Status: domain.BookingPending}
	accepted := &domain.Booking{ID: 42, CustomerID: 1, ProviderID: i64(2), Status: domain.BookingAccepted}

	mockBookings.On("GetByID", mock.Anything, int64(42)).Return(pending, nil)
	mockBookings.On("UpdateStatusIf", mock.Anything, int64(42),
		domain.BookingPending, domain.BookingAccepted, mock.Anything).Return(accepted, nil)

	service := NewService(mockBookings, new(MockUserReader), pub)

	b, err := service.Transition(context.Background(), 42, 2, domain.RoleProvider, domain.BookingAccepted)

	assert.NoError(t, err)
	assert.Equal(t, domain.BookingAccepted, b.Status)
	assert.Equal(t, []string{"booking_42", "user_1", "user_2"},
		pub.topics(realtime.EventBookingStatusUpdate))
}

func TestService_Transition_SameStatusIsNoOp(t *testing.T) {
	mockBookings := new(MockBookingRepository)
	pub := &recordingPublisher{}

	mockBookings.On("GetByID", mock.Anything, int64(42)).Return(
		&domain.Booking{ID: 42, CustomerID: 1, ProviderID: i64(2), Status: domain.BookingAccepted}, nil)

	service := NewService(mockBookings, new(MockUserReader), pub)

	b, err := service.Transition(context.Background(), 42, 2, domain.RoleProvider, domain.BookingAccepted)

	assert.NoError(t, err)
	assert.Equal(t, domain.BookingAccepted, b.Status)
	mockBookings.AssertNotCalled(t, "UpdateStatusIf", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	assert.Empty(t, pub.published)
}

func TestService_Transition_StrangerCannotProbeStatus(t *testing.T) {
	mockBookings := new(MockBookingRepository)
	mockBookings.On("GetByID", mock.Anything, int64(42)).Return(
		&domain.Booking{ID: 42, CustomerID: 1, ProviderID: i64(2), Status: domain.BookingAccepted}, nil)

	service := NewService(mockBookings, new(MockUserReader), &recordingPublisher{})

	// Re-requesting the current status must not hand the booking to a
	// non-party, even though it is a no-op for parties.
	b, err := service.Transition(context.Background(), 42, 77, domain.RoleCustomer, domain.BookingAccepted)
	assert.ErrorIs(t, err, ErrForbidden)
	assert.Nil(t, b)
}

func TestService_Transition_IllegalFromTerminal(t *testing.T) {
	mockBookings := new(MockBookingRepository)
	mockBookings.On("GetByID", mock.Anything, int64(42)).Return(
		&domain.Booking{ID: 42, CustomerID: 1, ProviderID: i64(2), Status: domain.BookingCompleted}, nil)

	service := NewService(mockBookings, new(MockUserReader), &recordingPublisher{})

	_, err := service.Transition(context.Background(), 42, 2, domain.RoleProvider, domain.BookingAccepted)
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestService_Transition_PendingCannotStart(t *testing.T) {
	mockBookings := new(MockBookingRepository)
	mockBookings.On("GetByID", mock.Anything, int64(42)).Return(
		&domain.Booking{ID: 42, CustomerID: 1, ProviderID: i64(2), Status: domain.BookingPending}, nil)

	service := NewService(mockBookings, new(MockUserReader), &recordingPublisher{})

	_, err := service.Transition(context.Background(), 42, 2, domain.RoleProvider, domain.BookingInProgress)
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestService_Transition_CustomerCannotAccept(t *testing.T) {
	mockBookings := new(MockBookingRepository)
	mockBookings.On("GetByID", mock.Anything, int64(42)).Return(
		&domain.Booking{ID: 42, CustomerID: 1, ProviderID: i64(2), Status: domain.BookingPending}, nil)

	service := NewService(mockBookings, new(MockUserReader), &recordingPublisher{})

	_, err := service.Transition(context.Background(), 42, 1, domain.RoleCustomer, domain.BookingAccepted)
	assert.ErrorIs(t, err, ErrForbidden)
}

func TestService_Transition_UnassignedProviderForbidden(t *testing.T) {
	mockBookings := new(MockBookingRepository)
	mockBookings.On("GetByID", mock.Anything, int64(42)).Return(
		&domain.Booking{ID: 42, CustomerID: 1, ProviderID: i64(2), Status: domain.BookingPending}, nil)

	service := NewService(mockBookings, new(MockUserReader), &recordingPublisher{})

	_, err := service.Transition(context.Background(), 42, 77, domain.RoleProvider, domain.BookingAccepted)
	assert.ErrorIs(t, err, ErrForbidden)
}

func TestService_Transition_RaceLoserGetsConflict(t *testing.T) {
	mockBookings := new(MockBookingRepository)

	mockBookings.On("GetByID", mock.Anything, int64(42)).Return(
		&domain.Booking{ID: 42, CustomerID: 1, ProviderID: i64(2), Status: domain.BookingPending}, nil)
	mockBookings.On("UpdateStatusIf", mock.Anything, int64(42),
		domain.BookingPending, domain.BookingAccepted, mock.Anything).Return(nil, repository.ErrConflict)

	service := NewService(mockBookings, new(MockUserReader), &recordingPublisher{})

	_, err := service.Transition(context.Background(), 42, 2, domain.RoleProvider, domain.BookingAccepted)
	assert.ErrorIs(t, err, ErrConflict)
}

func TestService_Transition_NotFound(t *testing.T) {
	mockBookings := new(MockBookingRepository)
	mockBookings.On("GetByID", mock.Anything, int64(404)).Return(nil, repository.ErrNotFound)

	service := NewService(mockBookings, new(MockUserReader), &recordingPublisher{})

	_, err := service.Transition(context.Background(), 404, 2, domain.RoleProvider, domain.BookingAccepted)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestService_Transition_CompletedFansOutExtraEvent(t *testing.T) {
	mockBookings := new(MockBookingRepository)
	pub := &recordingPublisher{}

	inProgress := &domain.Booking{ID: 42, CustomerID: 1, ProviderID: i64(2), Status: domain.BookingInProgress}
	completed := &domain.Booking{ID: 42, CustomerID: 1, ProviderID: i64(2), Status: domain.BookingCompleted}

	mockBookings.On("GetByID", mock.Anything, int64(42)).Return(inProgress, nil)
	mockBookings.On("UpdateStatusIf", mock.Anything, int64(42),
		domain.BookingInProgress, domain.BookingCompleted, mock.Anything).Return(completed, nil)

	service := NewService(mockBookings, new(MockUserReader), pub)

	_, err := service.Transition(context.Background(), 42, 1, domain.RoleCustomer, domain.BookingCompleted)

	assert.NoError(t, err)
	assert.Equal(t, []string{"booking_42", "user_1", "user_2"},
		pub.topics(realtime.EventBookingStatusUpdate))
	assert.Equal(t, []string{"booking_42", "user_1", "user_2"},
		pub.topics(realtime.EventBookingCompleted))
}

func TestService_MarkPaid_CustomerOnly(t *testing.T) {
	mockBookings := new(MockBookingRepository)

	b := &domain.Booking{ID: 42, CustomerID: 1, Status: domain.BookingAccepted}
	paid := &domain.Booking{ID: 42, CustomerID: 1, Status: domain.BookingAccepted, PaymentStatus: domain.PaymentPaid}

	mockBookings.On("GetByID", mock.Anything, int64(42)).Return(b, nil)
	mockBookings.On("UpdatePaymentStatus", mock.Anything, int64(42), domain.PaymentPaid).Return(paid, nil)

	service := NewService(mockBookings, new(MockUserReader), &recordingPublisher{})

	got, err := service.MarkPaid(context.Background(), 42, 1, domain.RoleCustomer, domain.PaymentPaid)
	assert.NoError(t, err)
	assert.Equal(t, domain.PaymentPaid, got.PaymentStatus)
	// Payment never touches the lifecycle status.
	assert.Equal(t, domain.BookingAccepted, got.Status)

	_, err = service.MarkPaid(context.Background(), 42, 99, domain.RoleCustomer, domain.PaymentPaid)
	assert.ErrorIs(t, err, ErrForbidden)
}

func TestService_MarkPaid_InvalidStatus(t *testing.T) {
	service := NewService(new(MockBookingRepository), new(MockUserReader), &recordingPublisher{})

	_, err := service.MarkPaid(context.Background(), 42, 1, domain.RoleCustomer, domain.PaymentStatus("settled"))
	assert.ErrorIs(t, err, ErrValidation)
}

func TestService_GetByID_PartiesOnly(t *testing.T) {
	mockBookings := new(MockBookingRepository)
	mockBookings.On("GetByID", mock.Anything, int64(42)).Return(
		&domain.Booking{ID: 42, CustomerID: 1, ProviderID: i64(2), BrokerID: i64(3)}, nil)

	service := NewService(mockBookings, new(MockUserReader), &recordingPublisher{})

	for _, actor := range []int64{1, 2, 3} {
		_, err := service.GetByID(context.Background(), 42, actor, domain.RoleCustomer)
		assert.NoError(t, err)
	}

	_, err := service.GetByID(context.Background(), 42, 99, domain.RoleCustomer)
	assert.ErrorIs(t, err, ErrForbidden)

	_, err = service.GetByID(context.Background(), 42, 99, domain.RoleAdmin)
	assert.NoError(t, err)
}

func TestParseStatus(t *testing.T) {
	got, ok := ParseStatus("ACCEPTED")
	assert.True(t, ok)
	assert.Equal(t, domain.BookingAccepted, got)

	_, ok = ParseStatus("accepted")
	assert.False(t, ok)

	_, ok = ParseStatus("DONE")
	assert.False(t, ok)
}
