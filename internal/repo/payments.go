package repo

import (
	"context"
	"database/sql"
	"errors"

	"campushustle/internal/domain"
)

const paymentColumns = "id,hustle_id,payer_id,payee_id,amount,status,payment_method,mpesa_reference,phone_number,created_at,updated_at"

func scanPayment(row rowScanner) (domain.PaymentIntent, error) {
	var p domain.PaymentIntent
	var phone sql.NullString
	if err := row.Scan(&p.ID, &p.TaskID, &p.PayerID, &p.PayeeID, &p.Amount, &p.Status, &p.PaymentMethod, &p.Reference, &phone, &p.CreatedAt, &p.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return p, ErrNotFound
		}
		return p, err
	}
	p.PhoneNumber = stringPtr(phone)
	return p, nil
}

// InsertPaymentIntent returns ErrConflict when the reference is already taken.
func (r Repo) InsertPaymentIntent(ctx context.Context, tx *sql.Tx, p domain.PaymentIntent) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO payment_intents(`+paymentColumns+`) VALUES (?,?,?,?,?,?,?,?,?,?,?)`,
		p.ID, p.TaskID, p.PayerID, p.PayeeID, p.Amount, p.Status, p.PaymentMethod, p.Reference, nullableStringPtr(p.PhoneNumber), p.CreatedAt, p.UpdatedAt)
	if isUniqueViolation(err) {
		return ErrConflict
	}
	return err
}

func (r Repo) GetPaymentIntent(ctx context.Context, id string) (domain.PaymentIntent, error) {
	return scanPayment(r.DB.QueryRowContext(ctx, `SELECT `+paymentColumns+` FROM payment_intents WHERE id=?`, id))
}

func (r Repo) GetPaymentIntentByReference(ctx context.Context, reference string) (domain.PaymentIntent, error) {
	return scanPayment(r.DB.QueryRowContext(ctx, `SELECT `+paymentColumns+` FROM payment_intents WHERE mpesa_reference=?`, reference))
}

func (r Repo) GetPaymentIntentByReferenceTx(ctx context.Context, tx *sql.Tx, reference string) (domain.PaymentIntent, error) {
	return scanPayment(tx.QueryRowContext(ctx, `SELECT `+paymentColumns+` FROM payment_intents WHERE mpesa_reference=?`, reference))
}

// ListPaymentIntents returns intents where the user is payer or payee, newest first.
func (r Repo) ListPaymentIntents(ctx context.Context, userID string) ([]domain.PaymentIntent, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+paymentColumns+` FROM payment_intents
WHERE payer_id=? OR payee_id=? ORDER BY created_at DESC, id DESC`, userID, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.PaymentIntent
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, p)
	}
	return res, rows.Err()
}

// UpdatePaymentStatus moves an intent from one status to another. A nil phone
// keeps the stored number.
func (r Repo) UpdatePaymentStatus(ctx context.Context, tx *sql.Tx, id, fromStatus, toStatus string, phone *string, updatedAt string) (bool, error) {
	res, err := tx.ExecContext(ctx, `UPDATE payment_intents SET status=?, phone_number=COALESCE(?, phone_number), updated_at=? WHERE id=? AND status=?`,
		toStatus, nullableStringPtr(phone), updatedAt, id, fromStatus)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}
