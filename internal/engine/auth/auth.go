package auth

import "fmt"

// UnauthorizedError is returned when the actor may not perform Action on the
// task, typically because they do not own it.
type UnauthorizedError struct {
	Action  string
	ActorID string
	TaskID  string
}

func (e UnauthorizedError) Error() string {
	return fmt.Sprintf("user %s is not allowed to %s task %s", e.ActorID, e.Action, e.TaskID)
}

// InvalidBidderError is returned when assignment targets a user without a bid.
type InvalidBidderError struct {
	BidderID string
	TaskID   string
}

func (e InvalidBidderError) Error() string {
	return fmt.Sprintf("user %s has not bid on task %s", e.BidderID, e.TaskID)
}

// RequireOwner fails unless actorID is the task owner.
func RequireOwner(ownerID, actorID, taskID, action string) error {
	if actorID == "" || actorID != ownerID {
		return UnauthorizedError{Action: action, ActorID: actorID, TaskID: taskID}
	}
	return nil
}
