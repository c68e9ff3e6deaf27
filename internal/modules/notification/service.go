package notification

import (
	"context"
	"errors"

	"servicehub/internal/domain"
	"servicehub/internal/repository"
)

var ErrNotFound = errors.New("notification not found")

type NotificationRepository interface {
	CreateBatch(ctx context.Context, notifs []domain.Notification) error
	ListByUser(ctx context.Context, userID int64, limit int) ([]domain.Notification, error)
	CountUnread(ctx context.Context, userID int64) (int64, error)
	MarkRead(ctx context.Context, id, userID int64) error
	MarkAllRead(ctx context.Context, userID int64) error
}

// EventPublisher is the live side, satisfied by the realtime hub.
type EventPublisher interface {
	Publish(topic, event string, data any)
}

// Service is the event emitter/notifier: durable notification rows
// first, live push second. The push never fails the caller, offline
// recipients recover through the rows on next fetch.
type Service struct {
	repo NotificationRepository
	hub  EventPublisher
}

func NewService(repo NotificationRepository, hub EventPublisher) *Service {
	return &Service{repo: repo, hub: hub}
}

// Notify persists one notification row per recipient, then publishes
// the event to every topic. The persist error is the only one that
// propagates.
func (s *Service) Notify(ctx context.Context, topics []string, event string, payload any, recipients []int64, message string) error {
	if len(recipients) > 0 {
		notifs := make([]domain.Notification, 0, len(recipients))
		for _, userID := range recipients {
			notifs = append(notifs, domain.Notification{UserID: userID, Message: message})
		}
		if err := s.repo.CreateBatch(ctx, notifs); err != nil {
			return err
		}
	}

	for _, topic := range topics {
		s.hub.Publish(topic, event, payload)
	}
	return nil
}

// Publish is the live-only path for flows whose durable rows were
// written inside a repository transaction.
func (s *Service) Publish(topic, event string, data any) {
	s.hub.Publish(topic, event, data)
}

func (s *Service) List(ctx context.Context, userID int64, limit int) ([]domain.Notification, int64, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}

	list, err := s.repo.ListByUser(ctx, userID, limit)
	if err != nil {
		return nil, 0, err
	}

	unread, err := s.repo.CountUnread(ctx, userID)
	if err != nil {
		unread = 0
	}
	return list, unread, nil
}

func (s *Service) UnreadCount(ctx context.Context, userID int64) (int64, error) {
	return s.repo.CountUnread(ctx, userID)
}

func (s *Service) MarkRead(ctx context.Context, id, userID int64) error {
	err := s.repo.MarkRead(ctx, id, userID)
	if errors.Is(err, repository.ErrNotFound) {
		return ErrNotFound
	}
	return err
}

func (s *Service) MarkAllRead(ctx context.Context, userID int64) error {
	return s.repo.MarkAllRead(ctx, userID)
}
