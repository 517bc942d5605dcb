package domain

// Task statuses. The stored values contain a space to stay compatible with
// existing hustle rows.
const (
	StatusOpen       = "open"
	StatusInProgress = "in progress"
	StatusFinished   = "finished"
)

const (
	OfferCash  = "cash"
	OfferTrade = "trade"
)

// Categories a task may be posted under.
var Categories = []string{"tech", "academic", "creative", "services", "other"}

const (
	PaymentPending    = "pending"
	PaymentProcessing = "processing"
	PaymentCompleted  = "completed"
	PaymentFailed     = "failed"

	PaymentMethodMpesa = "mpesa"
)

// Task is a stored hustle row.
type Task struct {
	ID          string  `json:"id"`
	UserID      string  `json:"user_id"`
	Title       string  `json:"title" maxLength:"50"`
	Description string  `json:"description" maxLength:"200"`
	Category    string  `json:"category" enum:"tech,academic,creative,services,other"`
	OfferType   string  `json:"offer_type" enum:"cash,trade"`
	OfferAmount *string `json:"offer_amount,omitempty"`
	TradeDeal   *string `json:"trade_deal,omitempty"`
	Deadline    string  `json:"deadline" format:"date-time"`
	Status      string  `json:"status" enum:"open,in progress,finished"`
	AssignedTo  *string `json:"assigned_to,omitempty"`
	CreatedAt   string  `json:"created_at" format:"date-time"`
	UpdatedAt   string  `json:"updated_at" format:"date-time"`
}

// TaskView is a task joined with its poster and bid count.
type TaskView struct {
	Task
	Offer    string     `json:"offer"`
	BidCount int        `json:"bid_count"`
	Poster   PosterInfo `json:"user"`
}

type PosterInfo struct {
	ID         string  `json:"id"`
	Name       string  `json:"name"`
	Avatar     string  `json:"avatar,omitempty"`
	TrustScore float64 `json:"trust_score"`
}

// Bid is an immutable offer to perform a task. BidderName is a snapshot taken
// when the bid was written.
type Bid struct {
	ID         string `json:"id"`
	TaskID     string `json:"hustle_id"`
	BidderID   string `json:"bidder_id"`
	Amount     int    `json:"bid_amount" minimum:"1"`
	Message    string `json:"message"`
	BidderName string `json:"bidder_name,omitempty"`
	CreatedAt  string `json:"created_at" format:"date-time"`
}

type ChatMessage struct {
	ID          string `json:"id"`
	TaskID      string `json:"hustle_id"`
	SenderID    string `json:"sender_id"`
	RecipientID string `json:"recipient_id"`
	Message     string `json:"message"`
	Read        bool   `json:"read"`
	CreatedAt   string `json:"created_at" format:"date-time"`
}

// Conversation summarises one (task, counterpart) thread for a user.
type Conversation struct {
	TaskID        string `json:"hustle_id"`
	TaskTitle     string `json:"hustle_title"`
	CounterpartID string `json:"counterpart_id"`
	Counterpart   string `json:"counterpart_name"`
	LastMessage   string `json:"last_message"`
	LastAt        string `json:"last_at" format:"date-time"`
	Unread        int    `json:"unread"`
}

// Notification is projected from a chat message addressed to the reader.
type Notification struct {
	ID         string `json:"id"`
	Type       string `json:"type" enum:"message"`
	SenderID   string `json:"sender_id"`
	SenderName string `json:"sender_name"`
	TaskID     string `json:"hustle_id"`
	TaskTitle  string `json:"hustle_title"`
	Message    string `json:"message"`
	Read       bool   `json:"read"`
	CreatedAt  string `json:"created_at" format:"date-time"`
}

type PaymentIntent struct {
	ID            string  `json:"id"`
	TaskID        string  `json:"hustle_id"`
	PayerID       string  `json:"payer_id"`
	PayeeID       string  `json:"payee_id"`
	Amount        int     `json:"amount"`
	Status        string  `json:"status" enum:"pending,processing,completed,failed"`
	PaymentMethod string  `json:"payment_method"`
	Reference     string  `json:"mpesa_reference"`
	PhoneNumber   *string `json:"phone_number,omitempty"`
	CreatedAt     string  `json:"created_at" format:"date-time"`
	UpdatedAt     string  `json:"updated_at" format:"date-time"`
}

type Profile struct {
	ID            string  `json:"id"`
	Name          string  `json:"name"`
	Email         string  `json:"email,omitempty"`
	Phone         string  `json:"phone,omitempty"`
	School        string  `json:"school,omitempty"`
	Course        string  `json:"course,omitempty"`
	Year          string  `json:"year,omitempty"`
	Sex           string  `json:"sex,omitempty"`
	Age           *int    `json:"age,omitempty"`
	ProfilePicURL string  `json:"profile_pic_url,omitempty"`
	TrustScore    float64 `json:"trust_score"`
	CreatedAt     string  `json:"created_at" format:"date-time"`
	UpdatedAt     string  `json:"updated_at" format:"date-time"`
}

type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts" format:"date-time"`
	Type       string `json:"type"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload_json"`
}
