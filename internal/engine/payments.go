package engine

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"campushustle/internal/domain"
	"campushustle/internal/events"
	"campushustle/internal/payment"
	"campushustle/internal/repo"
)

const (
	msgPayAmountInvalid  = "Please enter a valid payment amount"
	msgPaySelf           = "Cannot pay yourself"
	msgPayNotInProgress  = "This task is not currently in progress"
	msgPayNoCashAmount   = "This task has no cash amount to pay"
	msgPayCreateFailed   = "Failed to create payment. Please try again."
	msgPayInitiateFailed = "Failed to initiate payment. Please try again."
	msgPayAmountMismatch = "Payment amount does not match the payment request"
	msgPayStatusInvalid  = "Unknown payment status"
	referenceAttempts    = 3
)

type CreateIntentOptions struct {
	TaskID  string
	Amount  int
	PayerID string
	PayeeID string
}

// CreateIntent records a pending payment for an in-progress task.
func (e Engine) CreateIntent(ctx context.Context, opts CreateIntentOptions) (domain.PaymentIntent, error) {
	if opts.Amount <= 0 {
		return domain.PaymentIntent{}, invalid("amount", msgPayAmountInvalid)
	}
	if opts.PayerID == "" || opts.PayerID == opts.PayeeID {
		return domain.PaymentIntent{}, invalid("payer_id", msgPaySelf)
	}
	r, _, err := e.store(ctx)
	if err != nil {
		return domain.PaymentIntent{}, StoreError{Op: "create intent", Message: msgPayCreateFailed, Err: err}
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.PaymentIntent{}, StoreError{Op: "create intent", Message: msgPayCreateFailed, Err: err}
	}
	defer tx.Rollback()

	t, err := r.GetTaskTx(ctx, tx, opts.TaskID)
	if err != nil {
		return domain.PaymentIntent{}, err
	}
	if t.UserID == opts.PayerID {
		return domain.PaymentIntent{}, invalid("payer_id", msgPaySelf)
	}
	if t.Status != domain.StatusInProgress {
		return domain.PaymentIntent{}, invalid("hustle_id", msgPayNotInProgress)
	}
	now := e.stamp()
	p := domain.PaymentIntent{
		ID:            newID(),
		TaskID:        opts.TaskID,
		PayerID:       opts.PayerID,
		PayeeID:       opts.PayeeID,
		Amount:        opts.Amount,
		Status:        domain.PaymentPending,
		PaymentMethod: e.cfg().Payments.Method,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if p.PaymentMethod == "" {
		p.PaymentMethod = domain.PaymentMethodMpesa
	}
	for attempt := 1; ; attempt++ {
		p.Reference = payment.NewReference(e.now())
		err = r.InsertPaymentIntent(ctx, tx, p)
		if err == nil {
			break
		}
		if !errors.Is(err, repo.ErrConflict) || attempt == referenceAttempts {
			e.log().Logf("[ERROR] insert payment intent for %s: %v", p.TaskID, err)
			return domain.PaymentIntent{}, StoreError{Op: "create intent", Message: msgPayCreateFailed, Err: err}
		}
		e.log().Logf("[DEBUG] payment reference %s taken, retrying", p.Reference)
	}
	evt, err := e.Events.Append(ctx, tx, events.PaymentCreated, "payment", p.ID, p.PayerID, events.EventPayload{
		"hustle_id": p.TaskID, "amount": p.Amount, "reference": p.Reference, "payee_id": p.PayeeID,
	})
	if err != nil {
		return domain.PaymentIntent{}, StoreError{Op: "create intent", Message: msgPayCreateFailed, Err: err}
	}
	if err := tx.Commit(); err != nil {
		return domain.PaymentIntent{}, StoreError{Op: "create intent", Message: msgPayCreateFailed, Err: err}
	}
	e.publish(evt)
	return p, nil
}

// PayForTask pays the owner of an in-progress task its cash amount from the
// given phone number.
func (e Engine) PayForTask(ctx context.Context, taskID, payerID, phone string) (domain.PaymentIntent, error) {
	if _, err := payment.NormalizePhone(phone, e.cfg().Marketplace.CountryCode); err != nil {
		return domain.PaymentIntent{}, invalid("phone_number", err.Error())
	}
	r, _, err := e.store(ctx)
	if err != nil {
		return domain.PaymentIntent{}, StoreError{Op: "pay for task", Message: msgPayCreateFailed, Err: err}
	}
	t, err := r.GetTask(ctx, taskID)
	if err != nil {
		return domain.PaymentIntent{}, err
	}
	amount := 0
	if t.OfferType == domain.OfferCash && t.OfferAmount != nil {
		amount, _ = strconv.Atoi(*t.OfferAmount)
	}
	if amount <= 0 {
		return domain.PaymentIntent{}, invalid("amount", msgPayNoCashAmount)
	}
	p, err := e.CreateIntent(ctx, CreateIntentOptions{TaskID: taskID, Amount: amount, PayerID: payerID, PayeeID: t.UserID})
	if err != nil {
		return domain.PaymentIntent{}, err
	}
	return e.InitiateExternalPayment(ctx, phone, p.Amount, p.Reference)
}

// InitiateExternalPayment sends a pending intent to the gateway and marks it
// processing once the gateway accepts. A gateway failure leaves the intent
// pending.
func (e Engine) InitiateExternalPayment(ctx context.Context, phone string, amount int, reference string) (domain.PaymentIntent, error) {
	cfg := e.cfg()
	normalized, err := payment.NormalizePhone(phone, cfg.Marketplace.CountryCode)
	if err != nil {
		return domain.PaymentIntent{}, invalid("phone_number", err.Error())
	}
	r, _, err := e.store(ctx)
	if err != nil {
		return domain.PaymentIntent{}, StoreError{Op: "initiate payment", Message: msgPayInitiateFailed, Err: err}
	}
	p, err := r.GetPaymentIntentByReference(ctx, reference)
	if err != nil {
		return domain.PaymentIntent{}, err
	}
	if p.Amount != amount {
		return domain.PaymentIntent{}, invalid("amount", msgPayAmountMismatch)
	}
	if err := ensurePaymentTransition(p.Status, domain.PaymentProcessing); err != nil {
		return domain.PaymentIntent{}, err
	}
	gw := e.Gateway
	if gw == nil {
		gw = payment.SimulatedGateway{Logger: e.log()}
	}
	req := payment.Request{Reference: reference, Phone: normalized, Amount: amount, Currency: cfg.Marketplace.Currency, TaskID: p.TaskID}
	if err := gw.Initiate(ctx, req); err != nil {
		e.log().Logf("[WARN] payment %s left pending: %v", reference, err)
		return p, StoreError{Op: "initiate payment", Message: msgPayInitiateFailed, Err: err}
	}
	return e.transitionPayment(ctx, r, p, domain.PaymentProcessing, &normalized, p.PayerID, events.PaymentInitiated)
}

func ensurePaymentTransition(oldStatus, newStatus string) error {
	switch oldStatus {
	case domain.PaymentPending:
		if newStatus == domain.PaymentProcessing {
			return nil
		}
	case domain.PaymentProcessing:
		if newStatus == domain.PaymentCompleted || newStatus == domain.PaymentFailed {
			return nil
		}
	}
	return TransitionError{Entity: "payment", From: oldStatus, To: newStatus}
}

// UpdatePaymentStatus applies a gateway callback to the intent with the given
// reference.
func (e Engine) UpdatePaymentStatus(ctx context.Context, reference, status, actorID string) (domain.PaymentIntent, error) {
	switch status {
	case domain.PaymentPending, domain.PaymentProcessing, domain.PaymentCompleted, domain.PaymentFailed:
	default:
		return domain.PaymentIntent{}, invalid("status", msgPayStatusInvalid)
	}
	r, _, err := e.store(ctx)
	if err != nil {
		return domain.PaymentIntent{}, err
	}
	p, err := r.GetPaymentIntentByReference(ctx, reference)
	if err != nil {
		return domain.PaymentIntent{}, err
	}
	if err := ensurePaymentTransition(p.Status, status); err != nil {
		return domain.PaymentIntent{}, err
	}
	return e.transitionPayment(ctx, r, p, status, nil, actorID, events.PaymentUpdated)
}

func (e Engine) transitionPayment(ctx context.Context, r repo.Repo, p domain.PaymentIntent, to string, phone *string, actorID, evtType string) (domain.PaymentIntent, error) {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.PaymentIntent{}, err
	}
	defer tx.Rollback()
	now := e.stamp()
	ok, err := r.UpdatePaymentStatus(ctx, tx, p.ID, p.Status, to, phone, now)
	if err != nil {
		return domain.PaymentIntent{}, fmt.Errorf("update payment %s: %w", p.Reference, err)
	}
	if !ok {
		cur, err := r.GetPaymentIntentByReferenceTx(ctx, tx, p.Reference)
		if err != nil {
			return domain.PaymentIntent{}, err
		}
		return domain.PaymentIntent{}, TransitionError{Entity: "payment", From: cur.Status, To: to}
	}
	evt, err := e.Events.Append(ctx, tx, evtType, "payment", p.ID, actorID, events.EventPayload{
		"reference": p.Reference, "from": p.Status, "to": to,
	})
	if err != nil {
		return domain.PaymentIntent{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.PaymentIntent{}, err
	}
	e.publish(evt)
	p.Status = to
	p.UpdatedAt = now
	if phone != nil {
		p.PhoneNumber = phone
	}
	return p, nil
}

func (e Engine) GetIntent(ctx context.Context, id string) (domain.PaymentIntent, error) {
	r, _, err := e.store(ctx)
	if err != nil {
		return domain.PaymentIntent{}, err
	}
	return r.GetPaymentIntent(ctx, id)
}

func (e Engine) GetIntentByReference(ctx context.Context, reference string) (domain.PaymentIntent, error) {
	r, _, err := e.store(ctx)
	if err != nil {
		return domain.PaymentIntent{}, err
	}
	return r.GetPaymentIntentByReference(ctx, reference)
}

// ListUserPayments returns intents the user pays or receives, newest first.
func (e Engine) ListUserPayments(ctx context.Context, userID string) ([]domain.PaymentIntent, error) {
	r, _, err := e.store(ctx)
	if err != nil {
		return nil, err
	}
	res, err := r.ListPaymentIntents(ctx, userID)
	if err != nil {
		return nil, err
	}
	if res == nil {
		res = []domain.PaymentIntent{}
	}
	return res, nil
}
