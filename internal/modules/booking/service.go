package booking

import (
	"context"
	"errors"
	"fmt"
	"log"

	"servicehub/internal/domain"
	"servicehub/internal/realtime"
	"servicehub/internal/repository"
)

// transitions is the lifecycle state machine. Terminal states have no
// successors; a status absent here accepts nothing.
var transitions = map[domain.BookingStatus][]domain.BookingStatus{
	domain.BookingPending:    {domain.BookingAccepted, domain.BookingRejected, domain.BookingCancelled},
	domain.BookingAccepted:   {domain.BookingInProgress, domain.BookingCompleted, domain.BookingCancelled},
	domain.BookingInProgress: {domain.BookingCompleted},
}

func isLegalTransition(from, to domain.BookingStatus) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// ParseStatus normalizes a client-supplied status string.
func ParseStatus(s string) (domain.BookingStatus, bool) {
	switch domain.BookingStatus(s) {
	case domain.BookingPending, domain.BookingAccepted, domain.BookingInProgress,
		domain.BookingCompleted, domain.BookingRejected, domain.BookingCancelled:
		return domain.BookingStatus(s), true
	}
	return "", false
}

type Service struct {
	bookings  BookingRepository
	users     UserReader
	publisher Publisher
}

func NewService(bookings BookingRepository, users UserReader, publisher Publisher) *Service {
	return &Service{
		bookings:  bookings,
		users:     users,
		publisher: publisher,
	}
}

// Create persists a new PENDING booking together with the durable
// notifications for the assigned provider and broker, then pushes the
// live new_booking event to their user topics.
func (s *Service) Create(ctx context.Context, req CreateBookingRequest) (*domain.Booking, error) {
	if req.CustomerID <= 0 || req.Amount < 0 {
		return nil, ErrValidation
	}

	meta := req.Meta
	if customer, err := s.users.GetByID(ctx, req.CustomerID); err == nil {
		// Snapshot counterpart fields so the provider sees who booked
		// without another lookup.
		if meta == nil {
			meta = &domain.BookingMeta{}
		}
		if meta.CustomerName == "" {
			meta.CustomerName = customer.Name
		}
		if meta.CustomerMobile == "" {
			meta.CustomerMobile = customer.MobileNumber
		}
	}

	b := &domain.Booking{
		CustomerID:    req.CustomerID,
		ProviderID:    req.ProviderID,
		BrokerID:      req.BrokerID,
		Status:        domain.BookingPending,
		PaymentStatus: domain.PaymentUnpaid,
		Amount:        req.Amount,
		Meta:          meta,
	}

	customerName := "a customer"
	if meta != nil && meta.CustomerName != "" {
		customerName = meta.CustomerName
	}

	var notifs []domain.Notification
	if req.ProviderID != nil {
		notifs = append(notifs, domain.Notification{
			UserID:  *req.ProviderID,
			Message: fmt.Sprintf("New booking request from %s", customerName),
		})
	}
	if req.BrokerID != nil {
		notifs = append(notifs, domain.Notification{
			UserID:  *req.BrokerID,
			Message: fmt.Sprintf("New brokered booking request from %s", customerName),
		})
	}

	if err := s.bookings.Create(ctx, b, notifs); err != nil {
		return nil, err
	}

	payload := realtime.NewBookingPayload{Booking: b}
	if req.ProviderID != nil {
		s.publisher.Publish(realtime.UserTopic(*req.ProviderID), realtime.EventNewBooking, payload)
	}
	if req.BrokerID != nil {
		s.publisher.Publish(realtime.UserTopic(*req.BrokerID), realtime.EventNewBooking, payload)
	}

	return b, nil
}

// Transition moves the booking along the state machine on behalf of an
// actor. Re-requesting the current status is an idempotent no-op: no
// write, no notifications. The status write is a conditional update,
// so two racing transitions cannot both land; the loser sees
// ErrConflict and should retry with fresh state.
func (s *Service) Transition(ctx context.Context, bookingID, actorID int64, actorRole domain.UserRole, newStatus domain.BookingStatus) (*domain.Booking, error) {
	if _, ok := ParseStatus(string(newStatus)); !ok {
		return nil, ErrValidation
	}

	b, err := s.bookings.GetByID(ctx, bookingID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	// Party check first so the idempotent path below never leaks the
	// booking to strangers.
	if !isParty(b, actorID) && actorRole != domain.RoleAdmin {
		return nil, ErrForbidden
	}

	if b.Status == newStatus {
		return b, nil
	}

	if !isLegalTransition(b.Status, newStatus) {
		log.Printf("booking: illegal transition booking_id=%d actor_id=%d role=%s from=%s to=%s",
			bookingID, actorID, actorRole, b.Status, newStatus)
		return nil, ErrInvalidTransition
	}

	if !roleAllows(actorRole, b, actorID, newStatus) {
		return nil, ErrForbidden
	}

	notifs := transitionNotifications(b, newStatus)

	updated, err := s.bookings.UpdateStatusIf(ctx, bookingID, b.Status, newStatus, notifs)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrConflict):
			return nil, ErrConflict
		case errors.Is(err, repository.ErrNotFound):
			return nil, ErrNotFound
		}
		return nil, err
	}

	s.publishStatus(updated)
	return updated, nil
}

// roleAllows encodes who may drive which transition. Brokers act on
// bookings they own; admins are unrestricted.
func roleAllows(role domain.UserRole, b *domain.Booking, actorID int64, to domain.BookingStatus) bool {
	switch role {
	case domain.RoleAdmin:
		return true
	case domain.RoleCustomer:
		if b.CustomerID != actorID {
			return false
		}
		return to == domain.BookingCancelled || to == domain.BookingCompleted
	case domain.RoleProvider:
		if b.ProviderID == nil || *b.ProviderID != actorID {
			return false
		}
		switch to {
		case domain.BookingAccepted, domain.BookingRejected, domain.BookingInProgress, domain.BookingCompleted:
			return true
		}
		return false
	case domain.RoleBroker:
		return b.BrokerID != nil && *b.BrokerID == actorID
	}
	return false
}

func transitionNotifications(b *domain.Booking, to domain.BookingStatus) []domain.Notification {
	msg := fmt.Sprintf("Booking #%d is now %s", b.ID, to)

	notifs := []domain.Notification{{UserID: b.CustomerID, Message: msg}}
	if b.ProviderID != nil {
		notifs = append(notifs, domain.Notification{UserID: *b.ProviderID, Message: msg})
	}
	return notifs
}

// publishStatus fans the update out to the booking topic and both
// user topics. All three fire even when the actor is one of them, so
// every device a party holds converges.
func (s *Service) publishStatus(b *domain.Booking) {
	payload := realtime.BookingStatusPayload{BookingID: b.ID, Status: string(b.Status)}

	topics := []string{realtime.BookingTopic(b.ID), realtime.UserTopic(b.CustomerID)}
	if b.ProviderID != nil {
		topics = append(topics, realtime.UserTopic(*b.ProviderID))
	}

	for _, t := range topics {
		s.publisher.Publish(t, realtime.EventBookingStatusUpdate, payload)
	}

	if b.Status == domain.BookingCompleted {
		done := realtime.BookingCompletedPayload{BookingID: b.ID, ProviderID: b.ProviderID}
		for _, t := range topics {
			s.publisher.Publish(t, realtime.EventBookingCompleted, done)
		}
	}
}

// MarkPaid flips the payment axis. Payment state is independent of the
// lifecycle status and never written to the status column.
func (s *Service) MarkPaid(ctx context.Context, bookingID, actorID int64, actorRole domain.UserRole, status domain.PaymentStatus) (*domain.Booking, error) {
	switch status {
	case domain.PaymentUnpaid, domain.PaymentPaid, domain.PaymentRefunded:
	default:
		return nil, ErrValidation
	}

	b, err := s.bookings.GetByID(ctx, bookingID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	if actorRole != domain.RoleAdmin && b.CustomerID != actorID {
		return nil, ErrForbidden
	}

	return s.bookings.UpdatePaymentStatus(ctx, bookingID, status)
}

// GetByID returns the booking to parties of it: customer, provider,
// owning broker, or admin.
func (s *Service) GetByID(ctx context.Context, bookingID, actorID int64, actorRole domain.UserRole) (*domain.Booking, error) {
	b, err := s.bookings.GetByID(ctx, bookingID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	if !isParty(b, actorID) && actorRole != domain.RoleAdmin {
		return nil, ErrForbidden
	}
	return b, nil
}

func isParty(b *domain.Booking, userID int64) bool {
	if b.CustomerID == userID {
		return true
	}
	if b.ProviderID != nil && *b.ProviderID == userID {
		return true
	}
	if b.BrokerID != nil && *b.BrokerID == userID {
		return true
	}
	return false
}

func (s *Service) History(ctx context.Context, userID int64) ([]BookingDetails, error) {
	rows, err := s.bookings.History(ctx, userID)
	if err != nil {
		return nil, err
	}

	out := make([]BookingDetails, 0, len(rows))
	for _, r := range rows {
		out = append(out, toDetails(r))
	}
	return out, nil
}

func (s *Service) ProviderBookings(ctx context.Context, providerID int64) ([]domain.Booking, error) {
	return s.bookings.GetByProviderID(ctx, providerID)
}
