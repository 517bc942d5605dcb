package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"campushustle/internal/domain"
	"campushustle/internal/engine/auth"
	"campushustle/internal/events"
	"campushustle/internal/repo"
)

const (
	msgAssignNotProvisioned = "The assignment feature is not fully set up yet. Please try again later."
	msgAssignFailed         = "Failed to assign bid. Please try again."
	msgCompleteFailed       = "Failed to complete task. Please try again."
	featureAssignment       = "assignment"
)

func ensureTaskTransition(oldStatus, newStatus string) error {
	switch oldStatus {
	case domain.StatusOpen:
		if newStatus == domain.StatusInProgress {
			return nil
		}
	case domain.StatusInProgress:
		if newStatus == domain.StatusFinished {
			return nil
		}
	}
	return TransitionError{Entity: "task", From: oldStatus, To: newStatus}
}

// Assign hands an open task to one of its bidders. Only the owner may assign,
// and the write only succeeds while the task is still open.
func (e Engine) Assign(ctx context.Context, taskID, actorID, bidderID string) (domain.Task, error) {
	r, set, err := e.store(ctx)
	if err != nil {
		return domain.Task{}, StoreError{Op: "assign", Message: msgAssignFailed, Err: err}
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Task{}, StoreError{Op: "assign", Message: msgAssignFailed, Err: err}
	}
	defer tx.Rollback()

	t, err := r.GetTaskTx(ctx, tx, taskID)
	if err != nil {
		return domain.Task{}, err
	}
	if err := auth.RequireOwner(t.UserID, actorID, taskID, "assign"); err != nil {
		return domain.Task{}, err
	}
	if !set.Assignment || !set.Bids {
		return domain.Task{}, NotProvisionedError{Feature: featureAssignment, Message: msgAssignNotProvisioned}
	}
	hasBid, err := r.HasBidTx(ctx, tx, taskID, bidderID)
	if err != nil {
		return domain.Task{}, StoreError{Op: "assign", Message: msgAssignFailed, Err: err}
	}
	if !hasBid {
		return domain.Task{}, auth.InvalidBidderError{BidderID: bidderID, TaskID: taskID}
	}
	if err := ensureTaskTransition(t.Status, domain.StatusInProgress); err != nil {
		return domain.Task{}, err
	}
	now := e.stamp()
	ok, err := r.AssignTask(ctx, tx, taskID, bidderID, domain.StatusOpen, domain.StatusInProgress, now)
	if err != nil {
		e.log().Logf("[ERROR] assign %s to %s: %v", taskID, bidderID, err)
		return domain.Task{}, StoreError{Op: "assign", Message: msgAssignFailed, Err: err}
	}
	if !ok {
		return domain.Task{}, lostRace(ctx, r, tx, taskID, domain.StatusInProgress)
	}
	evt, err := e.Events.Append(ctx, tx, events.TaskAssigned, "task", taskID, actorID, events.EventPayload{
		"assigned_to": bidderID, "from": t.Status, "to": domain.StatusInProgress,
	})
	if err != nil {
		return domain.Task{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Task{}, StoreError{Op: "assign", Message: msgAssignFailed, Err: err}
	}
	e.publish(evt)
	t.Status = domain.StatusInProgress
	t.AssignedTo = &bidderID
	t.UpdatedAt = now
	return t, nil
}

// Complete finishes an in-progress task. Only the owner may complete it.
func (e Engine) Complete(ctx context.Context, taskID, actorID string) (domain.Task, error) {
	r, _, err := e.store(ctx)
	if err != nil {
		return domain.Task{}, StoreError{Op: "complete", Message: msgCompleteFailed, Err: err}
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Task{}, StoreError{Op: "complete", Message: msgCompleteFailed, Err: err}
	}
	defer tx.Rollback()

	t, err := r.GetTaskTx(ctx, tx, taskID)
	if err != nil {
		return domain.Task{}, err
	}
	if err := auth.RequireOwner(t.UserID, actorID, taskID, "complete"); err != nil {
		return domain.Task{}, err
	}
	if err := ensureTaskTransition(t.Status, domain.StatusFinished); err != nil {
		return domain.Task{}, err
	}
	now := e.stamp()
	ok, err := r.SetTaskStatus(ctx, tx, taskID, domain.StatusInProgress, domain.StatusFinished, now)
	if err != nil {
		e.log().Logf("[ERROR] complete %s: %v", taskID, err)
		return domain.Task{}, StoreError{Op: "complete", Message: msgCompleteFailed, Err: err}
	}
	if !ok {
		return domain.Task{}, lostRace(ctx, r, tx, taskID, domain.StatusFinished)
	}
	evt, err := e.Events.Append(ctx, tx, events.TaskCompleted, "task", taskID, actorID, events.EventPayload{
		"from": t.Status, "to": domain.StatusFinished,
	})
	if err != nil {
		return domain.Task{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Task{}, StoreError{Op: "complete", Message: msgCompleteFailed, Err: err}
	}
	e.publish(evt)
	t.Status = domain.StatusFinished
	t.UpdatedAt = now
	return t, nil
}

// lostRace builds the error for a conditional update that matched no row.
func lostRace(ctx context.Context, r repo.Repo, tx *sql.Tx, taskID, to string) error {
	cur, err := r.GetTaskTx(ctx, tx, taskID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return err
		}
		return fmt.Errorf("reload task %s: %w", taskID, err)
	}
	return TransitionError{Entity: "task", From: cur.Status, To: to}
}
