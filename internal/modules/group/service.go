package group

import (
	"context"
	"errors"
	"fmt"
	"math"

	"servicehub/internal/domain"
	"servicehub/internal/realtime"
	"servicehub/internal/repository"
)

type Service struct {
	requests GroupRequestRepository
	bookings BookingReader
	users    UserReader
	notifier Notifier
}

func NewService(requests GroupRequestRepository, bookings BookingReader, users UserReader, notifier Notifier) *Service {
	return &Service{
		requests: requests,
		bookings: bookings,
		users:    users,
		notifier: notifier,
	}
}

// Create persists a pending group request. A request with a chosen
// broker notifies that broker only; an open request is broadcast to
// every verified broker.
func (s *Service) Create(ctx context.Context, req CreateGroupRequest) (*domain.GroupRequest, error) {
	if req.CustomerID <= 0 || req.SkillID <= 0 || req.ProviderCount < 1 || req.Description == "" {
		return nil, ErrValidation
	}

	g := &domain.GroupRequest{
		CustomerID:      req.CustomerID,
		BrokerID:        req.BrokerID,
		SkillID:         req.SkillID,
		ProviderCount:   req.ProviderCount,
		Description:     req.Description,
		LocationDetails: req.LocationDetails,
		PreferredDate:   req.PreferredDate,
		BudgetRange:     req.BudgetRange,
		Status:          domain.GroupPending,
	}

	if err := s.requests.Create(ctx, g, nil); err != nil {
		return nil, err
	}

	payload := realtime.GroupRequestPayload{Request: g}
	msg := fmt.Sprintf("New group request #%d: %d provider(s) wanted", g.ID, g.ProviderCount)

	if req.BrokerID != nil {
		err := s.notifier.Notify(ctx,
			[]string{realtime.UserTopic(*req.BrokerID)},
			realtime.EventNewGroupRequest, payload,
			[]int64{*req.BrokerID}, msg)
		if err != nil {
			return nil, err
		}
		return g, nil
	}

	brokers, err := s.users.VerifiedBrokers(ctx)
	if err != nil {
		return nil, err
	}

	topics := make([]string, 0, len(brokers))
	recipients := make([]int64, 0, len(brokers))
	for _, b := range brokers {
		topics = append(topics, realtime.UserTopic(b.ID))
		recipients = append(recipients, b.ID)
	}

	if err := s.notifier.Notify(ctx, topics, realtime.EventNewGroupRequestBroadcast, payload, recipients, msg); err != nil {
		return nil, err
	}
	return g, nil
}

// Accept claims the request for the broker and fans it out into one
// ACCEPTED booking per provider, total split evenly. Only brokers can
// claim; the claim, the bookings and the durable notifications commit
// atomically. A request already claimed by another broker yields
// ErrConflict and creates nothing.
func (s *Service) Accept(ctx context.Context, requestID, brokerID int64, brokerRole domain.UserRole, req AcceptGroupRequest) (*domain.GroupRequest, []*domain.Booking, error) {
	if brokerRole != domain.RoleBroker {
		return nil, nil, ErrForbidden
	}
	if len(req.ProviderIDs) == 0 || req.TotalAmount < 0 {
		return nil, nil, ErrValidation
	}

	g, err := s.requests.GetByID(ctx, requestID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, nil, ErrNotFound
		}
		return nil, nil, err
	}
	if g.Status != domain.GroupPending {
		return nil, nil, ErrConflict
	}
	if g.BrokerID != nil && *g.BrokerID != brokerID {
		return nil, nil, ErrConflict
	}

	customerName := ""
	customerMobile := ""
	if customer, err := s.users.GetByID(ctx, g.CustomerID); err == nil {
		customerName = customer.Name
		customerMobile = customer.MobileNumber
	}

	amountEach := math.Round(req.TotalAmount/float64(len(req.ProviderIDs))*100) / 100

	bookings := make([]*domain.Booking, 0, len(req.ProviderIDs))
	notifs := []domain.Notification{{
		UserID:  g.CustomerID,
		Message: fmt.Sprintf("Your group request #%d was accepted: %d booking(s) created", g.ID, len(req.ProviderIDs)),
	}}

	for _, providerID := range req.ProviderIDs {
		pid := providerID
		bid := brokerID
		gid := g.ID
		bookings = append(bookings, &domain.Booking{
			CustomerID:     g.CustomerID,
			ProviderID:     &pid,
			BrokerID:       &bid,
			GroupRequestID: &gid,
			Status:         domain.BookingAccepted,
			PaymentStatus:  domain.PaymentUnpaid,
			Amount:         amountEach,
			Meta: &domain.BookingMeta{
				Description:     g.Description,
				LocationDetails: g.LocationDetails,
				BudgetRange:     g.BudgetRange,
				CustomerName:    customerName,
				CustomerMobile:  customerMobile,
				ProviderCount:   len(req.ProviderIDs),
				GroupBooking:    true,
			},
		})
		notifs = append(notifs, domain.Notification{
			UserID:  providerID,
			Message: fmt.Sprintf("You have been assigned a group booking for request #%d", g.ID),
		})
	}

	updated, err := s.requests.Accept(ctx, requestID, brokerID, bookings, notifs)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrConflict):
			return nil, nil, ErrConflict
		case errors.Is(err, repository.ErrNotFound):
			return nil, nil, ErrNotFound
		}
		return nil, nil, err
	}

	// Customer hears once, with the aggregate count; each provider
	// gets its own booking.
	s.notifier.Publish(realtime.UserTopic(updated.CustomerID), realtime.EventGroupRequestAccepted,
		realtime.GroupAcceptedPayload{
			RequestID:    updated.ID,
			BrokerID:     brokerID,
			BookingCount: len(bookings),
			Message:      fmt.Sprintf("Broker accepted your request and created %d booking(s)", len(bookings)),
		})
	for _, b := range bookings {
		s.notifier.Publish(realtime.UserTopic(*b.ProviderID), realtime.EventNewBooking,
			realtime.NewBookingPayload{Booking: b, IsGroupBooking: true})
	}

	return updated, bookings, nil
}

// Decline lets the broker a request was addressed to turn it down.
func (s *Service) Decline(ctx context.Context, requestID, brokerID int64, brokerRole domain.UserRole) (*domain.GroupRequest, error) {
	if brokerRole != domain.RoleBroker {
		return nil, ErrForbidden
	}
	g, err := s.getRequest(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if g.BrokerID == nil || *g.BrokerID != brokerID {
		return nil, ErrForbidden
	}

	notifs := []domain.Notification{{
		UserID:  g.CustomerID,
		Message: fmt.Sprintf("Your group request #%d was declined by the broker", g.ID),
	}}

	updated, _, err := s.requests.Finish(ctx, requestID,
		[]domain.GroupRequestStatus{domain.GroupPending},
		domain.GroupDeclined, domain.BookingCancelled, notifs)
	if err != nil {
		return nil, mapFinishErr(err)
	}

	s.notifier.Publish(realtime.UserTopic(updated.CustomerID), realtime.EventGroupRequestDeclined,
		realtime.GroupFinishedPayload{
			RequestID: updated.ID,
			Message:   "Your group request was declined",
		})
	return updated, nil
}

// Cancel marks the request cancelled and cascades CANCELLED to every
// booking sharing its id. Customer, broker and every affected provider
// are notified.
func (s *Service) Cancel(ctx context.Context, requestID, actorID int64, actorRole domain.UserRole) (*domain.GroupRequest, []domain.Booking, error) {
	g, err := s.getRequest(ctx, requestID)
	if err != nil {
		return nil, nil, err
	}
	if !mayFinish(g, actorID, actorRole) {
		return nil, nil, ErrForbidden
	}

	notifs := s.finishNotifications(ctx, g,
		fmt.Sprintf("Group request #%d has been cancelled", g.ID),
		"Your booking has been cancelled")

	updated, bookings, err := s.requests.Finish(ctx, requestID,
		[]domain.GroupRequestStatus{domain.GroupPending, domain.GroupAccepted},
		domain.GroupCancelled, domain.BookingCancelled, notifs)
	if err != nil {
		return nil, nil, mapFinishErr(err)
	}

	s.publishFinished(updated, bookings, realtime.EventGroupRequestCancelled,
		"Group booking has been cancelled")
	return updated, bookings, nil
}

// Complete is the customer's terminal sign-off, cascading COMPLETED to
// all sibling bookings.
func (s *Service) Complete(ctx context.Context, requestID, customerID int64) (*domain.GroupRequest, []domain.Booking, error) {
	g, err := s.getRequest(ctx, requestID)
	if err != nil {
		return nil, nil, err
	}
	if g.CustomerID != customerID {
		return nil, nil, ErrForbidden
	}

	notifs := s.finishNotifications(ctx, g,
		fmt.Sprintf("Group request #%d has been completed", g.ID),
		fmt.Sprintf("Customer marked group booking #%d as completed", g.ID))

	updated, bookings, err := s.requests.Finish(ctx, requestID,
		[]domain.GroupRequestStatus{domain.GroupAccepted},
		domain.GroupCompleted, domain.BookingCompleted, notifs)
	if err != nil {
		return nil, nil, mapFinishErr(err)
	}

	s.publishFinished(updated, bookings, realtime.EventGroupRequestCompleted,
		"Group booking has been completed")
	return updated, bookings, nil
}

func (s *Service) ListForBroker(ctx context.Context, brokerID int64) ([]domain.GroupRequest, error) {
	return s.requests.ListForBroker(ctx, brokerID)
}

func (s *Service) ListForCustomer(ctx context.Context, customerID int64) ([]domain.GroupRequest, error) {
	return s.requests.ListForCustomer(ctx, customerID)
}

func (s *Service) getRequest(ctx context.Context, requestID int64) (*domain.GroupRequest, error) {
	g, err := s.requests.GetByID(ctx, requestID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return g, nil
}

func mayFinish(g *domain.GroupRequest, actorID int64, role domain.UserRole) bool {
	if role == domain.RoleAdmin {
		return true
	}
	if g.CustomerID == actorID {
		return true
	}
	return g.BrokerID != nil && *g.BrokerID == actorID
}

// finishNotifications builds the durable rows for a cancel/complete:
// one for the customer, one for the broker if assigned, one per
// provider with a currently-active sibling booking.
func (s *Service) finishNotifications(ctx context.Context, g *domain.GroupRequest, partyMsg, providerMsg string) []domain.Notification {
	notifs := []domain.Notification{{UserID: g.CustomerID, Message: partyMsg}}
	if g.BrokerID != nil {
		notifs = append(notifs, domain.Notification{UserID: *g.BrokerID, Message: partyMsg})
	}

	bookings, err := s.bookings.GetByGroupRequestID(ctx, g.ID)
	if err != nil {
		return notifs
	}
	for _, b := range bookings {
		if b.ProviderID == nil || b.Status.IsTerminal() {
			continue
		}
		notifs = append(notifs, domain.Notification{UserID: *b.ProviderID, Message: providerMsg})
	}
	return notifs
}

func (s *Service) publishFinished(g *domain.GroupRequest, bookings []domain.Booking, event, message string) {
	payload := realtime.GroupFinishedPayload{
		RequestID:        g.ID,
		Message:          message,
		AffectedBookings: len(bookings),
	}

	s.notifier.Publish(realtime.UserTopic(g.CustomerID), event, payload)
	if g.BrokerID != nil {
		s.notifier.Publish(realtime.UserTopic(*g.BrokerID), event, payload)
	}

	for _, b := range bookings {
		status := realtime.BookingStatusPayload{BookingID: b.ID, Status: string(b.Status)}
		s.notifier.Publish(realtime.BookingTopic(b.ID), realtime.EventBookingStatusUpdate, status)
		if b.ProviderID != nil {
			s.notifier.Publish(realtime.UserTopic(*b.ProviderID), realtime.EventBookingStatusUpdate, status)
		}
	}
}

func mapFinishErr(err error) error {
	switch {
	case errors.Is(err, repository.ErrConflict):
		return ErrConflict
	case errors.Is(err, repository.ErrNotFound):
		return ErrNotFound
	}
	return err
}
