package repo

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"campushustle/internal/domain"
)

func (r Repo) InsertMessage(ctx context.Context, tx *sql.Tx, m domain.ChatMessage) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO chat_messages(id,hustle_id,sender_id,recipient_id,message,read,created_at) VALUES (?,?,?,?,?,?,?)`,
		m.ID, m.TaskID, m.SenderID, m.RecipientID, m.Message, boolInt(m.Read), m.CreatedAt)
	return err
}

func (r Repo) GetMessage(ctx context.Context, id string) (domain.ChatMessage, error) {
	var m domain.ChatMessage
	var read int
	err := r.DB.QueryRowContext(ctx, `SELECT id,hustle_id,sender_id,recipient_id,message,read,created_at FROM chat_messages WHERE id=?`, id).
		Scan(&m.ID, &m.TaskID, &m.SenderID, &m.RecipientID, &m.Message, &read, &m.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return m, ErrNotFound
	}
	m.Read = read != 0
	return m, err
}

// ListThread returns the messages exchanged between a and b about a task,
// oldest first.
func (r Repo) ListThread(ctx context.Context, taskID, a, b string) ([]domain.ChatMessage, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,hustle_id,sender_id,recipient_id,message,read,created_at FROM chat_messages
WHERE hustle_id=? AND ((sender_id=? AND recipient_id=?) OR (sender_id=? AND recipient_id=?))
ORDER BY created_at ASC, id ASC`, taskID, a, b, b, a)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.ChatMessage
	for rows.Next() {
		var m domain.ChatMessage
		var read int
		if err := rows.Scan(&m.ID, &m.TaskID, &m.SenderID, &m.RecipientID, &m.Message, &read, &m.CreatedAt); err != nil {
			return nil, err
		}
		m.Read = read != 0
		res = append(res, m)
	}
	return res, rows.Err()
}

// MarkThreadRead flags unread messages from sender to recipient on a task as
// read and returns how many rows changed.
func (r Repo) MarkThreadRead(ctx context.Context, tx *sql.Tx, taskID, senderID, recipientID string) (int64, error) {
	res, err := tx.ExecContext(ctx, `UPDATE chat_messages SET read=1 WHERE hustle_id=? AND sender_id=? AND recipient_id=? AND read=0`,
		taskID, senderID, recipientID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (r Repo) MarkMessageRead(ctx context.Context, tx *sql.Tx, id, recipientID string) (int64, error) {
	res, err := tx.ExecContext(ctx, `UPDATE chat_messages SET read=1 WHERE id=? AND recipient_id=? AND read=0`, id, recipientID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (r Repo) MarkAllRead(ctx context.Context, tx *sql.Tx, recipientID string) (int64, error) {
	res, err := tx.ExecContext(ctx, `UPDATE chat_messages SET read=1 WHERE recipient_id=? AND read=0`, recipientID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

type InboxFilters struct {
	RecipientID     string
	UnreadOnly      bool
	Limit           int
	CursorCreatedAt string
	CursorID        string
}

// ListInbox projects messages addressed to a user with the sender's name and
// the task title joined in. Missing profiles or tasks leave those fields empty.
func (r Repo) ListInbox(ctx context.Context, f InboxFilters) ([]domain.Notification, error) {
	clauses := []string{"m.recipient_id=?"}
	args := []any{f.RecipientID}
	if f.UnreadOnly {
		clauses = append(clauses, "m.read=0")
	}
	if f.CursorCreatedAt != "" && f.CursorID != "" {
		clauses = append(clauses, "(m.created_at < ? OR (m.created_at = ? AND m.id < ?))")
		args = append(args, f.CursorCreatedAt, f.CursorCreatedAt, f.CursorID)
	}
	query := `SELECT m.id, m.sender_id, COALESCE(p.name,''), m.hustle_id, COALESCE(h.title,''), m.message, m.read, m.created_at
FROM chat_messages m
LEFT JOIN profiles p ON p.id = m.sender_id
LEFT JOIN hustles h ON h.id = m.hustle_id
WHERE ` + strings.Join(clauses, " AND ") + `
ORDER BY m.created_at DESC, m.id DESC`
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Notification
	for rows.Next() {
		var n domain.Notification
		var read int
		if err := rows.Scan(&n.ID, &n.SenderID, &n.SenderName, &n.TaskID, &n.TaskTitle, &n.Message, &read, &n.CreatedAt); err != nil {
			return nil, err
		}
		n.Read = read != 0
		res = append(res, n)
	}
	return res, rows.Err()
}

func (r Repo) CountUnread(ctx context.Context, recipientID string) (int, error) {
	var n int
	err := r.DB.QueryRowContext(ctx, `SELECT count(*) FROM chat_messages WHERE recipient_id=? AND read=0`, recipientID).Scan(&n)
	return n, err
}

// ListConversations groups a user's messages by task and counterpart. The
// newest message of each group supplies LastMessage and LastAt.
func (r Repo) ListConversations(ctx context.Context, userID string) ([]domain.Conversation, error) {
	rows, err := r.DB.QueryContext(ctx, `WITH mine AS (
  SELECT id, hustle_id, message, created_at,
    CASE WHEN sender_id = ? THEN recipient_id ELSE sender_id END AS counterpart,
    CASE WHEN recipient_id = ? AND read = 0 THEN 1 ELSE 0 END AS unread
  FROM chat_messages WHERE sender_id = ? OR recipient_id = ?
), ranked AS (
  SELECT *, ROW_NUMBER() OVER (PARTITION BY hustle_id, counterpart ORDER BY created_at DESC, id DESC) AS rn,
    SUM(unread) OVER (PARTITION BY hustle_id, counterpart) AS unread_total
  FROM mine
)
SELECT r.hustle_id, COALESCE(h.title,''), r.counterpart, COALESCE(p.name,''), r.message, r.created_at, r.unread_total
FROM ranked r
LEFT JOIN hustles h ON h.id = r.hustle_id
LEFT JOIN profiles p ON p.id = r.counterpart
WHERE r.rn = 1
ORDER BY r.created_at DESC, r.id DESC`, userID, userID, userID, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Conversation
	for rows.Next() {
		var c domain.Conversation
		if err := rows.Scan(&c.TaskID, &c.TaskTitle, &c.CounterpartID, &c.Counterpart, &c.LastMessage, &c.LastAt, &c.Unread); err != nil {
			return nil, err
		}
		res = append(res, c)
	}
	return res, rows.Err()
}

func boolInt(v bool) int {
	if v {
		return 1
	}
	return 0
}
