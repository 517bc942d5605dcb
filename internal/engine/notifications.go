package engine

import (
	"context"
	"database/sql"
	"errors"

	"campushustle/internal/domain"
	"campushustle/internal/events"
	"campushustle/internal/repo"
)

const (
	unknownUser             = "Unknown User"
	unknownTask             = "Unknown hustle"
	notificationTypeMessage = "message"
	msgNotificationsFailed  = "Failed to load notifications"
)

type NotificationQuery struct {
	UnreadOnly      bool
	Limit           int
	CursorCreatedAt string
	CursorID        string
}

// Notifications lists messages addressed to userID, newest first.
func (e Engine) Notifications(ctx context.Context, userID string, q NotificationQuery) ([]domain.Notification, error) {
	r, _, err := e.store(ctx)
	if err != nil {
		return nil, StoreError{Op: "notifications", Message: msgNotificationsFailed, Err: err}
	}
	items, err := r.ListInbox(ctx, repo.InboxFilters{
		RecipientID:     userID,
		UnreadOnly:      q.UnreadOnly,
		Limit:           q.Limit,
		CursorCreatedAt: q.CursorCreatedAt,
		CursorID:        q.CursorID,
	})
	if err != nil {
		e.log().Logf("[ERROR] notifications for %s: %v", userID, err)
		return nil, StoreError{Op: "notifications", Message: msgNotificationsFailed, Err: err}
	}
	for i := range items {
		items[i].Type = notificationTypeMessage
		if items[i].SenderName == "" {
			items[i].SenderName = unknownUser
		}
		if items[i].TaskTitle == "" {
			items[i].TaskTitle = unknownTask
		}
	}
	if items == nil {
		items = []domain.Notification{}
	}
	return items, nil
}

func (e Engine) UnreadCount(ctx context.Context, userID string) (int, error) {
	r, _, err := e.store(ctx)
	if err != nil {
		return 0, err
	}
	return r.CountUnread(ctx, userID)
}

// MarkNotificationRead marks one message read. Messages addressed to someone
// else are reported as not found.
func (e Engine) MarkNotificationRead(ctx context.Context, userID, id string) error {
	r, _, err := e.store(ctx)
	if err != nil {
		return err
	}
	m, err := r.GetMessage(ctx, id)
	if err != nil {
		return err
	}
	if m.RecipientID != userID {
		return repo.ErrNotFound
	}
	_, err = e.markRead(ctx, userID, events.EventPayload{"message_id": id},
		func(tx *sql.Tx, r repo.Repo) (int64, error) {
			return r.MarkMessageRead(ctx, tx, id, userID)
		})
	return err
}

// MarkAllNotificationsRead marks every unread message addressed to userID.
func (e Engine) MarkAllNotificationsRead(ctx context.Context, userID string) (int64, error) {
	return e.markRead(ctx, userID, events.EventPayload{"all": true},
		func(tx *sql.Tx, r repo.Repo) (int64, error) {
			return r.MarkAllRead(ctx, tx, userID)
		})
}

// IsNotFound reports whether err means the requested record does not exist.
func IsNotFound(err error) bool {
	return errors.Is(err, repo.ErrNotFound)
}
