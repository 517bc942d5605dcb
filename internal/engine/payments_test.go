package engine_test

import (
	"context"
	"errors"
	"regexp"
	"testing"

	"campushustle/internal/domain"
	"campushustle/internal/engine"
	"campushustle/internal/payment"
	"campushustle/internal/repo"
)

type recordingGateway struct {
	reqs []payment.Request
	err  error
}

func (g *recordingGateway) Initiate(_ context.Context, req payment.Request) error {
	g.reqs = append(g.reqs, req)
	return g.err
}

var referencePattern = regexp.MustCompile(`^PAY-\d{6}-[0-9A-Z]{5}$`)

func (env testEnv) assignedTask(t *testing.T, owner, amount, worker string) domain.Task {
	t.Helper()
	task := env.cashTask(t, owner, amount)
	env.bid(t, task.ID, worker, "10")
	if _, err := env.Engine.Assign(env.Ctx, task.ID, owner, worker); err != nil {
		t.Fatalf("assign: %v", err)
	}
	return task
}

func TestPayForTaskMovesToProcessing(t *testing.T) {
	env := newTestEnv(t)
	gw := &recordingGateway{}
	env.Engine.Gateway = gw
	task := env.assignedTask(t, "owner", "40", "worker")

	p, err := env.Engine.PayForTask(env.Ctx, task.ID, "worker", "0712 345 678")
	if err != nil {
		t.Fatalf("pay: %v", err)
	}
	if p.Status != domain.PaymentProcessing || p.Amount != 40 || p.PayeeID != "owner" || p.PayerID != "worker" {
		t.Fatalf("unexpected intent %+v", p)
	}
	if p.PhoneNumber == nil || *p.PhoneNumber != "254712345678" {
		t.Fatalf("phone not normalized: %v", p.PhoneNumber)
	}
	if !referencePattern.MatchString(p.Reference) {
		t.Fatalf("reference %q", p.Reference)
	}
	if len(gw.reqs) != 1 || gw.reqs[0].Reference != p.Reference || gw.reqs[0].TaskID != task.ID || gw.reqs[0].Currency != "KSh" {
		t.Fatalf("gateway requests %+v", gw.reqs)
	}

	stored, err := env.Engine.GetIntentByReference(env.Ctx, p.Reference)
	if err != nil {
		t.Fatal(err)
	}
	if stored.Status != domain.PaymentProcessing || stored.PaymentMethod != domain.PaymentMethodMpesa {
		t.Fatalf("stored intent %+v", stored)
	}

	done, err := env.Engine.UpdatePaymentStatus(env.Ctx, p.Reference, domain.PaymentCompleted, "gateway")
	if err != nil {
		t.Fatalf("complete payment: %v", err)
	}
	if done.Status != domain.PaymentCompleted {
		t.Fatalf("status %q", done.Status)
	}
	var te engine.TransitionError
	if _, err := env.Engine.UpdatePaymentStatus(env.Ctx, p.Reference, domain.PaymentFailed, "gateway"); !errors.As(err, &te) {
		t.Fatalf("terminal payment changed: %v", err)
	}
	var ve engine.ValidationError
	if _, err := env.Engine.UpdatePaymentStatus(env.Ctx, p.Reference, "refunded", "gateway"); !errors.As(err, &ve) {
		t.Fatalf("unknown status: %v", err)
	}

	mine, err := env.Engine.ListUserPayments(env.Ctx, "owner")
	if err != nil || len(mine) != 1 {
		t.Fatalf("owner payments: %v %d", err, len(mine))
	}
}

func TestPaymentGatewayFailureLeavesPending(t *testing.T) {
	env := newTestEnv(t)
	env.Engine.Gateway = &recordingGateway{err: errors.New("gateway down")}
	task := env.assignedTask(t, "owner", "40", "worker")

	p, err := env.Engine.PayForTask(env.Ctx, task.ID, "worker", "0712345678")
	var se engine.StoreError
	if !errors.As(err, &se) || se.Message != "Failed to initiate payment. Please try again." {
		t.Fatalf("expected store error, got %v", err)
	}
	stored, err := env.Engine.GetIntentByReference(env.Ctx, p.Reference)
	if err != nil {
		t.Fatal(err)
	}
	if stored.Status != domain.PaymentPending || stored.PhoneNumber != nil {
		t.Fatalf("intent moved after gateway failure: %+v", stored)
	}

	env.Engine.Gateway = &recordingGateway{}
	if _, err := env.Engine.InitiateExternalPayment(env.Ctx, "0712345678", stored.Amount+1, stored.Reference); err == nil {
		t.Fatalf("mismatched amount accepted")
	}
	retried, err := env.Engine.InitiateExternalPayment(env.Ctx, "+254712345678", stored.Amount, stored.Reference)
	if err != nil {
		t.Fatalf("retry: %v", err)
	}
	if retried.Status != domain.PaymentProcessing {
		t.Fatalf("status %q", retried.Status)
	}
}

func TestPaymentRejections(t *testing.T) {
	env := newTestEnv(t)
	open := env.cashTask(t, "owner", "40")
	trade := env.tradeTask(t, "owner", "notes")
	assigned := env.assignedTask(t, "owner", "40", "worker")

	var ve engine.ValidationError
	if _, err := env.Engine.PayForTask(env.Ctx, assigned.ID, "worker", "12345"); !errors.As(err, &ve) || ve.Message != payment.ErrInvalidPhone.Error() {
		t.Fatalf("bad phone: %v", err)
	}
	if _, err := env.Engine.PayForTask(env.Ctx, assigned.ID, "owner", "0712345678"); !errors.As(err, &ve) || ve.Message != "Cannot pay yourself" {
		t.Fatalf("self payment: %v", err)
	}
	if _, err := env.Engine.PayForTask(env.Ctx, open.ID, "worker", "0712345678"); !errors.As(err, &ve) || ve.Message != "This task is not currently in progress" {
		t.Fatalf("open task payment: %v", err)
	}
	if _, err := env.Engine.PayForTask(env.Ctx, trade.ID, "worker", "0712345678"); !errors.As(err, &ve) {
		t.Fatalf("trade task payment: %v", err)
	}
	if _, err := env.Engine.CreateIntent(env.Ctx, engine.CreateIntentOptions{TaskID: assigned.ID, Amount: 0, PayerID: "worker", PayeeID: "owner"}); !errors.As(err, &ve) {
		t.Fatalf("zero amount: %v", err)
	}
	if _, err := env.Engine.CreateIntent(env.Ctx, engine.CreateIntentOptions{TaskID: "missing", Amount: 5, PayerID: "worker", PayeeID: "owner"}); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("missing task: %v", err)
	}
	if _, err := env.Engine.GetIntentByReference(env.Ctx, "PAY-000000-XXXXX"); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("missing reference: %v", err)
	}
}

func TestPaymentReferencesAreUnique(t *testing.T) {
	env := newTestEnv(t)
	task := env.assignedTask(t, "owner", "40", "worker")
	seen := map[string]bool{}
	for i := 0; i < 20; i++ {
		p, err := env.Engine.CreateIntent(env.Ctx, engine.CreateIntentOptions{TaskID: task.ID, Amount: 40, PayerID: "worker", PayeeID: "owner"})
		if err != nil {
			t.Fatalf("create intent: %v", err)
		}
		if seen[p.Reference] {
			t.Fatalf("duplicate reference %s", p.Reference)
		}
		seen[p.Reference] = true
	}
}
