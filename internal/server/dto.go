package server

import (
	"encoding/json"

	"campushustle/internal/capability"
	"campushustle/internal/domain"
)

type CreateTaskRequest struct {
	Title       string `json:"title" maxLength:"50"`
	Description string `json:"description" maxLength:"200"`
	Category    string `json:"category"`
	OfferType   string `json:"offer_type" enum:"cash,trade"`
	OfferAmount string `json:"offer_amount,omitempty"`
	TradeDeal   string `json:"trade_deal,omitempty"`
	Deadline    string `json:"deadline" doc:"RFC3339 timestamp or YYYY-MM-DD"`
}

type PlaceBidRequest struct {
	Amount     string `json:"bid_amount" doc:"Whole currency units as a string"`
	Message    string `json:"message"`
	BidderName string `json:"bidder_name,omitempty"`
}

type AssignRequest struct {
	BidderID string `json:"bidder_id"`
}

type SendMessageRequest struct {
	RecipientID string `json:"recipient_id"`
	Message     string `json:"message"`
}

type MarkThreadReadRequest struct {
	SenderID string `json:"sender_id"`
}

type UpdateProfileRequest struct {
	Name   string `json:"name"`
	Email  string `json:"email,omitempty"`
	Phone  string `json:"phone,omitempty"`
	School string `json:"school,omitempty"`
	Course string `json:"course,omitempty"`
	Year   string `json:"year,omitempty"`
	Sex    string `json:"sex,omitempty"`
	Age    *int   `json:"age,omitempty"`
}

type PayForTaskRequest struct {
	PhoneNumber string `json:"phone_number"`
}

type CreatePaymentRequest struct {
	TaskID  string `json:"hustle_id"`
	Amount  int    `json:"amount"`
	PayeeID string `json:"payee_id"`
}

type InitiatePaymentRequest struct {
	PhoneNumber string `json:"phone_number"`
	Amount      int    `json:"amount"`
}

type PaymentCallbackRequest struct {
	Reference string `json:"reference"`
	Status    string `json:"status" enum:"pending,processing,completed,failed"`
}

type DevTokenRequest struct {
	UserID string `json:"user_id"`
	Name   string `json:"name,omitempty"`
	Email  string `json:"email,omitempty"`
}

type DevTokenResponse struct {
	Token string `json:"token"`
}

type CountResponse struct {
	Count int64 `json:"count"`
}

type MeResponse struct {
	UserID       string         `json:"user_id"`
	Source       string         `json:"source"`
	Profile      domain.Profile `json:"profile"`
	Capabilities capability.Set `json:"capabilities"`
}

type EventResponse struct {
	ID         int64          `json:"id"`
	TS         string         `json:"ts"`
	Type       string         `json:"type"`
	EntityKind string         `json:"entity_kind"`
	EntityID   string         `json:"entity_id,omitempty"`
	ActorID    string         `json:"actor_id"`
	Payload    map[string]any `json:"payload,omitempty"`
}

type paginatedTasks struct {
	Items      []domain.TaskView `json:"items"`
	NextCursor string            `json:"next_cursor,omitempty"`
}

type paginatedNotifications struct {
	Items      []domain.Notification `json:"items"`
	NextCursor string                `json:"next_cursor,omitempty"`
}

type paginatedEvents struct {
	Items      []EventResponse `json:"items"`
	NextCursor string          `json:"next_cursor,omitempty"`
}

func eventResponse(e domain.Event) EventResponse {
	var payload map[string]any
	if e.Payload != "" {
		_ = json.Unmarshal([]byte(e.Payload), &payload)
	}
	return EventResponse{
		ID:         e.ID,
		TS:         e.TS,
		Type:       e.Type,
		EntityKind: e.EntityKind,
		EntityID:   e.EntityID,
		ActorID:    e.ActorID,
		Payload:    payload,
	}
}

func nonNilSlice[T any](in []T) []T {
	if in == nil {
		return []T{}
	}
	return in
}
