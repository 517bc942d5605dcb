package events

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"campushustle/internal/domain"
)

// Event types written by the engine.
const (
	TaskCreated      = "task.created"
	TaskAssigned     = "task.assigned"
	TaskCompleted    = "task.completed"
	BidPlaced        = "bid.placed"
	MessageSent      = "message.sent"
	MessagesRead     = "message.read"
	PaymentCreated   = "payment.created"
	PaymentInitiated = "payment.initiated"
	PaymentUpdated   = "payment.status_changed"
	ProfileCreated   = "profile.created"
	ProfileUpdated   = "profile.updated"
	AvatarUploaded   = "profile.avatar_uploaded"
)

// Publisher receives events after the transaction that wrote them commits.
type Publisher interface {
	Publish(evt domain.Event)
}

type Writer struct {
	DB  *sql.DB
	Now func() time.Time
}

type EventPayload map[string]any

// Append writes an event row inside tx and returns it with its assigned id.
func (w Writer) Append(ctx context.Context, tx *sql.Tx, evtType, entityKind, entityID, actorID string, payload EventPayload) (domain.Event, error) {
	if w.Now == nil {
		w.Now = time.Now
	}
	ts := w.Now().UTC().Format(time.RFC3339)
	if payload == nil {
		payload = EventPayload{}
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return domain.Event{}, fmt.Errorf("marshal event payload: %w", err)
	}
	res, err := tx.ExecContext(ctx, `INSERT INTO events(ts,type,entity_kind,entity_id,actor_id,payload_json) VALUES (?,?,?,?,?,?)`,
		ts, evtType, entityKind, nullable(entityID), actorID, string(data))
	if err != nil {
		return domain.Event{}, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return domain.Event{}, err
	}
	return domain.Event{ID: id, TS: ts, Type: evtType, EntityKind: entityKind, EntityID: entityID, ActorID: actorID, Payload: string(data)}, nil
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}
