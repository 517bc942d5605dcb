package repo

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"campushustle/internal/capability"
	"campushustle/internal/domain"
)

// Repo is the SQL access layer. Schema tells it which optional columns and
// tables it may reference.
type Repo struct {
	DB     *sql.DB
	Schema capability.Set
}

var (
	ErrNotFound = errors.New("not found")
	// ErrConflict is returned when a unique constraint rejects a write.
	ErrConflict = errors.New("conflict")
)

// New returns a Repo for a fully migrated store.
func New(db *sql.DB) Repo {
	return Repo{DB: db, Schema: capability.Full}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (r Repo) taskColumns() string {
	cols := "id,user_id,title,description,category,offer_type,offer_amount,trade_deal,deadline,status,created_at,updated_at"
	if r.Schema.Assignment {
		cols += ",assigned_to"
	}
	return cols
}

func (r Repo) scanTask(row rowScanner) (domain.Task, error) {
	var t domain.Task
	var offerAmount, tradeDeal, assignedTo sql.NullString
	dest := []any{&t.ID, &t.UserID, &t.Title, &t.Description, &t.Category, &t.OfferType, &offerAmount, &tradeDeal, &t.Deadline, &t.Status, &t.CreatedAt, &t.UpdatedAt}
	if r.Schema.Assignment {
		dest = append(dest, &assignedTo)
	}
	if err := row.Scan(dest...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return t, ErrNotFound
		}
		return t, err
	}
	t.OfferAmount = stringPtr(offerAmount)
	t.TradeDeal = stringPtr(tradeDeal)
	t.AssignedTo = stringPtr(assignedTo)
	return t, nil
}

func (r Repo) InsertTask(ctx context.Context, tx *sql.Tx, t domain.Task) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO hustles(id,user_id,title,description,category,offer_type,offer_amount,trade_deal,deadline,status,created_at,updated_at)
VALUES (?,?,?,?,?,?,?,?,?,?,?,?)`,
		t.ID, t.UserID, t.Title, t.Description, t.Category, t.OfferType, nullableStringPtr(t.OfferAmount), nullableStringPtr(t.TradeDeal),
		t.Deadline, t.Status, t.CreatedAt, t.UpdatedAt)
	return err
}

func (r Repo) GetTask(ctx context.Context, id string) (domain.Task, error) {
	return r.scanTask(r.DB.QueryRowContext(ctx, `SELECT `+r.taskColumns()+` FROM hustles WHERE id=?`, id))
}

func (r Repo) GetTaskTx(ctx context.Context, tx *sql.Tx, id string) (domain.Task, error) {
	return r.scanTask(tx.QueryRowContext(ctx, `SELECT `+r.taskColumns()+` FROM hustles WHERE id=?`, id))
}

type TaskFilters struct {
	UserID string
	// Involving matches tasks posted by or assigned to the user.
	Involving       string
	Status          string
	Category        string
	Limit           int
	CursorCreatedAt string
	CursorID        string
}

func (r Repo) ListTasks(ctx context.Context, f TaskFilters) ([]domain.Task, error) {
	var clauses []string
	var args []any
	if f.UserID != "" {
		clauses = append(clauses, "user_id=?")
		args = append(args, f.UserID)
	}
	if f.Involving != "" {
		if r.Schema.Assignment {
			clauses = append(clauses, "(user_id=? OR assigned_to=?)")
			args = append(args, f.Involving, f.Involving)
		} else {
			clauses = append(clauses, "user_id=?")
			args = append(args, f.Involving)
		}
	}
	if f.Status != "" {
		clauses = append(clauses, "status=?")
		args = append(args, f.Status)
	}
	if f.Category != "" {
		clauses = append(clauses, "category=?")
		args = append(args, f.Category)
	}
	if f.CursorCreatedAt != "" && f.CursorID != "" {
		clauses = append(clauses, "(created_at < ? OR (created_at = ? AND id < ?))")
		args = append(args, f.CursorCreatedAt, f.CursorCreatedAt, f.CursorID)
	}
	where := ""
	if len(clauses) > 0 {
		where = "WHERE " + strings.Join(clauses, " AND ")
	}
	query := `SELECT ` + r.taskColumns() + ` FROM hustles ` + where + ` ORDER BY created_at DESC, id DESC`
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Task
	for rows.Next() {
		t, err := r.scanTask(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, t)
	}
	return res, rows.Err()
}

// AssignTask moves a task out of fromStatus. It reports false when the row was
// not in fromStatus anymore.
func (r Repo) AssignTask(ctx context.Context, tx *sql.Tx, id, assignee, fromStatus, toStatus, updatedAt string) (bool, error) {
	res, err := tx.ExecContext(ctx, `UPDATE hustles SET status=?, assigned_to=?, updated_at=? WHERE id=? AND status=?`,
		toStatus, assignee, updatedAt, id, fromStatus)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func (r Repo) SetTaskStatus(ctx context.Context, tx *sql.Tx, id, fromStatus, toStatus, updatedAt string) (bool, error) {
	res, err := tx.ExecContext(ctx, `UPDATE hustles SET status=?, updated_at=? WHERE id=? AND status=?`,
		toStatus, updatedAt, id, fromStatus)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}

func nullableStringPtr(v *string) any {
	if v == nil || *v == "" {
		return nil
	}
	return *v
}

func nullableIntPtr(v *int) any {
	if v == nil {
		return nil
	}
	return *v
}

func stringPtr(v sql.NullString) *string {
	if !v.Valid {
		return nil
	}
	s := v.String
	return &s
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
