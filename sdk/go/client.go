package hustlesdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Client is a minimal CampusHustle HTTP API client.
type Client struct {
	BaseURL     string
	BasePath    string
	BearerToken string
	// UserID is sent as X-User-Id when no token is set; only servers started
	// with --allow-user-header accept it.
	UserID     string
	HTTPClient *http.Client
	Timeout    time.Duration
}

// New creates a client with sane defaults.
func New(baseURL string) *Client {
	return &Client{
		BaseURL:  baseURL,
		BasePath: "/v1",
		Timeout:  10 * time.Second,
	}
}

// Task is a hustle as the API returns it.
type Task struct {
	ID          string  `json:"id"`
	UserID      string  `json:"user_id"`
	Title       string  `json:"title"`
	Description string  `json:"description"`
	Category    string  `json:"category"`
	OfferType   string  `json:"offer_type"`
	OfferAmount *string `json:"offer_amount,omitempty"`
	TradeDeal   *string `json:"trade_deal,omitempty"`
	Offer       string  `json:"offer,omitempty"`
	Deadline    string  `json:"deadline"`
	Status      string  `json:"status"`
	AssignedTo  *string `json:"assigned_to,omitempty"`
	BidCount    int     `json:"bid_count,omitempty"`
	CreatedAt   string  `json:"created_at"`
}

// NewTask is the body for CreateTask.
type NewTask struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Category    string `json:"category"`
	OfferType   string `json:"offer_type"`
	OfferAmount string `json:"offer_amount,omitempty"`
	TradeDeal   string `json:"trade_deal,omitempty"`
	Deadline    string `json:"deadline"`
}

type Bid struct {
	ID         string `json:"id"`
	TaskID     string `json:"hustle_id"`
	BidderID   string `json:"bidder_id"`
	Amount     int    `json:"bid_amount"`
	Message    string `json:"message"`
	BidderName string `json:"bidder_name,omitempty"`
	CreatedAt  string `json:"created_at"`
}

type Message struct {
	ID          string `json:"id"`
	TaskID      string `json:"hustle_id"`
	SenderID    string `json:"sender_id"`
	RecipientID string `json:"recipient_id"`
	Message     string `json:"message"`
	Read        bool   `json:"read"`
	CreatedAt   string `json:"created_at"`
}

type Notification struct {
	ID         string `json:"id"`
	Type       string `json:"type"`
	SenderID   string `json:"sender_id"`
	SenderName string `json:"sender_name"`
	TaskID     string `json:"hustle_id"`
	TaskTitle  string `json:"hustle_title"`
	Message    string `json:"message"`
	Read       bool   `json:"read"`
	CreatedAt  string `json:"created_at"`
}

type Payment struct {
	ID        string `json:"id"`
	TaskID    string `json:"hustle_id"`
	PayerID   string `json:"payer_id"`
	PayeeID   string `json:"payee_id"`
	Amount    int    `json:"amount"`
	Status    string `json:"status"`
	Reference string `json:"mpesa_reference"`
}

// Event represents a log entry.
type Event struct {
	ID         int64          `json:"id"`
	TS         string         `json:"ts"`
	Type       string         `json:"type"`
	EntityKind string         `json:"entity_kind"`
	EntityID   string         `json:"entity_id"`
	ActorID    string         `json:"actor_id"`
	Payload    map[string]any `json:"payload"`
}

// APIError wraps non-2xx responses. Code and Message come from the error
// envelope when the body carries one.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
	Body       string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("api error: status=%d code=%s message=%s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// PaginatedTasks wraps list responses with cursors.
type PaginatedTasks struct {
	Items      []Task `json:"items"`
	NextCursor string `json:"next_cursor"`
}

type PaginatedNotifications struct {
	Items      []Notification `json:"items"`
	NextCursor string         `json:"next_cursor"`
}

type PaginatedEvents struct {
	Items      []Event `json:"items"`
	NextCursor string  `json:"next_cursor"`
}

// TaskQuery filters ListTasks. Empty fields are not sent.
type TaskQuery struct {
	Search   string
	Category string
	Status   string
	MaxPrice string
	Limit    int
	Cursor   string
}

func (c *Client) CreateTask(ctx context.Context, t NewTask) (Task, error) {
	var resp Task
	err := c.do(ctx, http.MethodPost, "tasks", t, &resp)
	return resp, err
}

func (c *Client) GetTask(ctx context.Context, id string) (Task, error) {
	var resp Task
	err := c.do(ctx, http.MethodGet, "tasks/"+url.PathEscape(id), nil, &resp)
	return resp, err
}

// ListTasks returns one page of hustles, newest first.
func (c *Client) ListTasks(ctx context.Context, q TaskQuery) (PaginatedTasks, error) {
	v := url.Values{}
	setIf(v, "search", q.Search)
	setIf(v, "category", q.Category)
	setIf(v, "status", q.Status)
	setIf(v, "max_price", q.MaxPrice)
	setIf(v, "cursor", q.Cursor)
	if q.Limit > 0 {
		v.Set("limit", strconv.Itoa(q.Limit))
	}
	var resp PaginatedTasks
	err := c.do(ctx, http.MethodGet, withQuery("tasks", v), nil, &resp)
	return resp, err
}

// PlaceBid bids amount (whole currency units) on a hustle.
func (c *Client) PlaceBid(ctx context.Context, taskID string, amount int, message string) (Bid, error) {
	body := map[string]any{
		"bid_amount": strconv.Itoa(amount),
		"message":    message,
	}
	var resp Bid
	err := c.do(ctx, http.MethodPost, fmt.Sprintf("tasks/%s/bids", url.PathEscape(taskID)), body, &resp)
	return resp, err
}

func (c *Client) ListBids(ctx context.Context, taskID string) ([]Bid, error) {
	var resp struct {
		Bids []Bid `json:"bids"`
	}
	err := c.do(ctx, http.MethodGet, fmt.Sprintf("tasks/%s/bids", url.PathEscape(taskID)), nil, &resp)
	return resp.Bids, err
}

// Assign gives an open hustle to one of its bidders.
func (c *Client) Assign(ctx context.Context, taskID, bidderID string) (Task, error) {
	var resp Task
	err := c.do(ctx, http.MethodPost, fmt.Sprintf("tasks/%s/assign", url.PathEscape(taskID)), map[string]any{"bidder_id": bidderID}, &resp)
	return resp, err
}

func (c *Client) Complete(ctx context.Context, taskID string) (Task, error) {
	var resp Task
	err := c.do(ctx, http.MethodPost, fmt.Sprintf("tasks/%s/complete", url.PathEscape(taskID)), nil, &resp)
	return resp, err
}

func (c *Client) SendMessage(ctx context.Context, taskID, recipientID, text string) (Message, error) {
	body := map[string]any{"recipient_id": recipientID, "message": text}
	var resp Message
	err := c.do(ctx, http.MethodPost, fmt.Sprintf("tasks/%s/messages", url.PathEscape(taskID)), body, &resp)
	return resp, err
}

// Thread returns the conversation with another user about a hustle, oldest first.
func (c *Client) Thread(ctx context.Context, taskID, with string) ([]Message, error) {
	var resp []Message
	endpoint := withQuery(fmt.Sprintf("tasks/%s/messages", url.PathEscape(taskID)), url.Values{"with": {with}})
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

func (c *Client) Notifications(ctx context.Context, unreadOnly bool, limit int, cursor string) (PaginatedNotifications, error) {
	v := url.Values{}
	if unreadOnly {
		v.Set("unread_only", "true")
	}
	if limit > 0 {
		v.Set("limit", strconv.Itoa(limit))
	}
	setIf(v, "cursor", cursor)
	var resp PaginatedNotifications
	err := c.do(ctx, http.MethodGet, withQuery("notifications", v), nil, &resp)
	return resp, err
}

func (c *Client) UnreadCount(ctx context.Context) (int64, error) {
	var resp struct {
		Count int64 `json:"count"`
	}
	err := c.do(ctx, http.MethodGet, "notifications/unread-count", nil, &resp)
	return resp.Count, err
}

func (c *Client) MarkAllRead(ctx context.Context) (int64, error) {
	var resp struct {
		Count int64 `json:"count"`
	}
	err := c.do(ctx, http.MethodPost, "notifications/read-all", nil, &resp)
	return resp.Count, err
}

// PayForTask pays the owner of an in-progress hustle from phone.
func (c *Client) PayForTask(ctx context.Context, taskID, phone string) (Payment, error) {
	var resp Payment
	err := c.do(ctx, http.MethodPost, fmt.Sprintf("tasks/%s/pay", url.PathEscape(taskID)), map[string]any{"phone_number": phone}, &resp)
	return resp, err
}

// EventsPage returns a paginated listing of the caller's events.
func (c *Client) EventsPage(ctx context.Context, limit int, cursor string) (PaginatedEvents, error) {
	v := url.Values{}
	if limit > 0 {
		v.Set("limit", strconv.Itoa(limit))
	}
	setIf(v, "cursor", cursor)
	var resp PaginatedEvents
	err := c.do(ctx, http.MethodGet, withQuery("events", v), nil, &resp)
	return resp, err
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	url := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, url, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	switch {
	case c.BearerToken != "":
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	case c.UserID != "":
		req.Header.Set("X-User-Id", c.UserID)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		apiErr := &APIError{StatusCode: resp.StatusCode, Body: string(b)}
		var env struct {
			Error struct {
				Code    string `json:"code"`
				Message string `json:"message"`
			} `json:"error"`
		}
		if json.Unmarshal(b, &env) == nil {
			apiErr.Code, apiErr.Message = env.Error.Code, env.Error.Message
		}
		return apiErr
	}
	if out != nil && resp.StatusCode != http.StatusNoContent {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) base() string {
	base := strings.TrimRight(c.BaseURL, "/")
	if p := strings.Trim(c.BasePath, "/"); p != "" {
		base += "/" + p
	}
	return base
}

func withQuery(endpoint string, v url.Values) string {
	if len(v) == 0 {
		return endpoint
	}
	return endpoint + "?" + v.Encode()
}

func setIf(v url.Values, key, value string) {
	if value != "" {
		v.Set(key, value)
	}
}
