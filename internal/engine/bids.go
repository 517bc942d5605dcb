package engine

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"campushustle/internal/domain"
	"campushustle/internal/events"
	"campushustle/internal/repo"
)

const (
	msgBidAmountInvalid   = "Please enter a valid bid amount"
	msgBidMessageRequired = "Please enter a message with your bid"
	msgBidsNotProvisioned = "The bidding system is not fully set up yet. Please try again later."
	msgBidsNotSetUp       = "The bidding system is not set up yet."
	msgBidSubmitFailed    = "Failed to submit bid. Please try again."
	msgBidsLoadFailed     = "Failed to load bids"
	msgBidTaskNotOpen     = "This hustle is no longer accepting bids"
	msgBidOwnTask         = "You cannot bid on your own hustle"
	featureBids           = "bids"
)

type SubmitBidOptions struct {
	TaskID     string
	BidderID   string
	Amount     string
	Message    string
	BidderName string
}

func (e Engine) validateBid(opts SubmitBidOptions) (int, string, error) {
	amount, err := strconv.Atoi(strings.TrimSpace(opts.Amount))
	if err != nil || amount <= 0 {
		return 0, "", invalid("bid_amount", msgBidAmountInvalid)
	}
	maxBid := e.cfg().Marketplace.MaxBid
	if amount > maxBid {
		return 0, "", invalid("bid_amount", fmt.Sprintf("Maximum bid amount is %s %d", e.cfg().Marketplace.Currency, maxBid))
	}
	msg := strings.TrimSpace(opts.Message)
	if msg == "" {
		return 0, "", invalid("message", msgBidMessageRequired)
	}
	return amount, msg, nil
}

// SubmitBid records a bid. It checks the input and that bids are provisioned
// but not the task's status or who is bidding; PlaceBid adds those checks.
func (e Engine) SubmitBid(ctx context.Context, opts SubmitBidOptions) (domain.Bid, error) {
	amount, msg, err := e.validateBid(opts)
	if err != nil {
		return domain.Bid{}, err
	}
	r, set, err := e.store(ctx)
	if err != nil {
		return domain.Bid{}, StoreError{Op: "submit bid", Message: msgBidSubmitFailed, Err: err}
	}
	if !set.Bids {
		return domain.Bid{}, NotProvisionedError{Feature: featureBids, Message: msgBidsNotProvisioned}
	}
	b := domain.Bid{
		ID:         newID(),
		TaskID:     opts.TaskID,
		BidderID:   opts.BidderID,
		Amount:     amount,
		Message:    msg,
		BidderName: strings.TrimSpace(opts.BidderName),
		CreatedAt:  e.stamp(),
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Bid{}, StoreError{Op: "submit bid", Message: msgBidSubmitFailed, Err: err}
	}
	defer tx.Rollback()
	if b.BidderName == "" {
		if p, err := r.GetProfileTx(ctx, tx, b.BidderID); err == nil {
			b.BidderName = p.Name
		}
	}
	if err := r.InsertBid(ctx, tx, b); err != nil {
		e.log().Logf("[ERROR] insert bid on %s by %s: %v", b.TaskID, b.BidderID, err)
		return domain.Bid{}, StoreError{Op: "submit bid", Message: msgBidSubmitFailed, Err: err}
	}
	evt, err := e.Events.Append(ctx, tx, events.BidPlaced, "bid", b.ID, b.BidderID, events.EventPayload{
		"hustle_id": b.TaskID, "bid_amount": b.Amount,
	})
	if err != nil {
		return domain.Bid{}, StoreError{Op: "submit bid", Message: msgBidSubmitFailed, Err: err}
	}
	if err := tx.Commit(); err != nil {
		return domain.Bid{}, StoreError{Op: "submit bid", Message: msgBidSubmitFailed, Err: err}
	}
	e.publish(evt)
	return b, nil
}

// PlaceBid is SubmitBid for interactive callers: the task must exist, be
// open and belong to someone else.
func (e Engine) PlaceBid(ctx context.Context, opts SubmitBidOptions) (domain.Bid, error) {
	if _, _, err := e.validateBid(opts); err != nil {
		return domain.Bid{}, err
	}
	r, _, err := e.store(ctx)
	if err != nil {
		return domain.Bid{}, StoreError{Op: "submit bid", Message: msgBidSubmitFailed, Err: err}
	}
	t, err := r.GetTask(ctx, opts.TaskID)
	if err != nil {
		return domain.Bid{}, err
	}
	if t.Status != domain.StatusOpen {
		return domain.Bid{}, invalid("hustle_id", msgBidTaskNotOpen)
	}
	if t.UserID == opts.BidderID {
		return domain.Bid{}, invalid("bidder_id", msgBidOwnTask)
	}
	return e.SubmitBid(ctx, opts)
}

// BidList is the bid listing for a task. Notice is set when bidding is not
// available; it is informational, not an error.
type BidList struct {
	Bids   []domain.Bid `json:"bids"`
	Notice string       `json:"notice,omitempty"`
}

// ListBids returns a task's bids newest first with bidder names filled in.
func (e Engine) ListBids(ctx context.Context, taskID string) (BidList, error) {
	r, set, err := e.store(ctx)
	if err != nil {
		return BidList{Bids: []domain.Bid{}}, StoreError{Op: "list bids", Message: msgBidsLoadFailed, Err: err}
	}
	if !set.Bids {
		return BidList{Bids: []domain.Bid{}, Notice: msgBidsNotSetUp}, nil
	}
	bids, err := r.ListBids(ctx, taskID)
	if err != nil {
		e.log().Logf("[ERROR] list bids for %s: %v", taskID, err)
		return BidList{Bids: []domain.Bid{}}, StoreError{Op: "list bids", Message: msgBidsLoadFailed, Err: err}
	}
	names := map[string]string{}
	for i, b := range bids {
		if b.BidderName != "" {
			continue
		}
		name, ok := names[b.BidderID]
		if !ok {
			name = anonymousName
			p, err := r.GetProfile(ctx, b.BidderID)
			switch {
			case err == nil && p.Name != "":
				name = p.Name
			case err != nil && !errors.Is(err, repo.ErrNotFound):
				e.log().Logf("[WARN] load bidder %s: %v", b.BidderID, err)
			}
			names[b.BidderID] = name
		}
		bids[i].BidderName = name
	}
	if bids == nil {
		bids = []domain.Bid{}
	}
	return BidList{Bids: bids}, nil
}
