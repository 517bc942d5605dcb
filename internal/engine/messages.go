package engine

import (
	"context"
	"database/sql"
	"strings"

	"campushustle/internal/domain"
	"campushustle/internal/events"
	"campushustle/internal/repo"
)

const (
	msgSendFailed       = "Failed to send message. Please try again."
	msgMessageRequired  = "Please enter a message"
	msgMessageSelf      = "You cannot message yourself"
	msgMessagesFailed   = "Failed to load messages"
	msgRecipientMissing = "Please choose who to message"
)

type SendMessageOptions struct {
	TaskID      string
	SenderID    string
	RecipientID string
	Text        string
}

// SendMessage stores an unread message about a task from sender to recipient.
func (e Engine) SendMessage(ctx context.Context, opts SendMessageOptions) (domain.ChatMessage, error) {
	text := strings.TrimSpace(opts.Text)
	if text == "" {
		return domain.ChatMessage{}, invalid("message", msgMessageRequired)
	}
	if opts.RecipientID == "" {
		return domain.ChatMessage{}, invalid("recipient_id", msgRecipientMissing)
	}
	if opts.SenderID == opts.RecipientID {
		return domain.ChatMessage{}, invalid("recipient_id", msgMessageSelf)
	}
	r, _, err := e.store(ctx)
	if err != nil {
		return domain.ChatMessage{}, StoreError{Op: "send message", Message: msgSendFailed, Err: err}
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.ChatMessage{}, StoreError{Op: "send message", Message: msgSendFailed, Err: err}
	}
	defer tx.Rollback()
	if _, err := r.GetTaskTx(ctx, tx, opts.TaskID); err != nil {
		return domain.ChatMessage{}, err
	}
	m := domain.ChatMessage{
		ID:          newID(),
		TaskID:      opts.TaskID,
		SenderID:    opts.SenderID,
		RecipientID: opts.RecipientID,
		Message:     text,
		CreatedAt:   e.stamp(),
	}
	if err := r.InsertMessage(ctx, tx, m); err != nil {
		e.log().Logf("[ERROR] insert message on %s: %v", m.TaskID, err)
		return domain.ChatMessage{}, StoreError{Op: "send message", Message: msgSendFailed, Err: err}
	}
	evt, err := e.Events.Append(ctx, tx, events.MessageSent, "message", m.ID, m.SenderID, events.EventPayload{
		"hustle_id": m.TaskID, "recipient_id": m.RecipientID,
	})
	if err != nil {
		return domain.ChatMessage{}, StoreError{Op: "send message", Message: msgSendFailed, Err: err}
	}
	if err := tx.Commit(); err != nil {
		return domain.ChatMessage{}, StoreError{Op: "send message", Message: msgSendFailed, Err: err}
	}
	e.publish(evt)
	return m, nil
}

// ListThread returns the conversation between two users about a task, oldest first.
func (e Engine) ListThread(ctx context.Context, taskID, userA, userB string) ([]domain.ChatMessage, error) {
	r, _, err := e.store(ctx)
	if err != nil {
		return nil, StoreError{Op: "list thread", Message: msgMessagesFailed, Err: err}
	}
	msgs, err := r.ListThread(ctx, taskID, userA, userB)
	if err != nil {
		return nil, StoreError{Op: "list thread", Message: msgMessagesFailed, Err: err}
	}
	if msgs == nil {
		msgs = []domain.ChatMessage{}
	}
	return msgs, nil
}

// MarkThreadRead marks messages from sender to recipient on a task as read
// and returns how many were unread.
func (e Engine) MarkThreadRead(ctx context.Context, recipientID, senderID, taskID string) (int64, error) {
	return e.markRead(ctx, recipientID, events.EventPayload{"hustle_id": taskID, "sender_id": senderID},
		func(tx *sql.Tx, r repo.Repo) (int64, error) {
			return r.MarkThreadRead(ctx, tx, taskID, senderID, recipientID)
		})
}

func (e Engine) markRead(ctx context.Context, recipientID string, payload events.EventPayload, mark func(*sql.Tx, repo.Repo) (int64, error)) (int64, error) {
	r, _, err := e.store(ctx)
	if err != nil {
		return 0, err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()
	n, err := mark(tx, r)
	if err != nil {
		return 0, err
	}
	if n == 0 {
		return 0, nil
	}
	payload["count"] = n
	evt, err := e.Events.Append(ctx, tx, events.MessagesRead, "message", "", recipientID, payload)
	if err != nil {
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	e.publish(evt)
	return n, nil
}

// ListConversations summarises each (task, counterpart) thread a user takes
// part in, most recent activity first.
func (e Engine) ListConversations(ctx context.Context, userID string) ([]domain.Conversation, error) {
	r, _, err := e.store(ctx)
	if err != nil {
		return nil, StoreError{Op: "list conversations", Message: msgMessagesFailed, Err: err}
	}
	convs, err := r.ListConversations(ctx, userID)
	if err != nil {
		return nil, StoreError{Op: "list conversations", Message: msgMessagesFailed, Err: err}
	}
	for i := range convs {
		if convs[i].Counterpart == "" {
			convs[i].Counterpart = unknownUser
		}
		if convs[i].TaskTitle == "" {
			convs[i].TaskTitle = unknownTask
		}
	}
	if convs == nil {
		convs = []domain.Conversation{}
	}
	return convs, nil
}
