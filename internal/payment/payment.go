// Package payment hands payment intents to a mobile-money gateway.
package payment

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
)

// ErrInvalidPhone is returned for numbers that do not normalise to a full
// national mobile number.
var ErrInvalidPhone = errors.New("Please enter a valid Kenyan phone number")

// Request asks the gateway to collect Amount from Phone.
type Request struct {
	Reference string `json:"reference"`
	Phone     string `json:"phone_number"`
	Amount    int    `json:"amount"`
	Currency  string `json:"currency"`
	TaskID    string `json:"account_reference,omitempty"`
}

// Gateway starts an external payment. A nil error means the request was
// accepted, not that money moved.
type Gateway interface {
	Initiate(ctx context.Context, req Request) error
}

// NormalizePhone keeps the digits of raw and prefixes the country code:
// numbers already carrying it pass through and a leading trunk 0 is replaced.
// The result must be the country code followed by nine digits.
func NormalizePhone(raw, countryCode string) (string, error) {
	var b strings.Builder
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	digits := b.String()
	switch {
	case strings.HasPrefix(digits, countryCode):
	case strings.HasPrefix(digits, "0"):
		digits = countryCode + digits[1:]
	default:
		digits = countryCode + digits
	}
	if len(digits) != len(countryCode)+9 {
		return "", ErrInvalidPhone
	}
	return digits, nil
}

// NewReference builds PAY-<last six digits of the unix ms clock>-<five
// uppercase alphanumerics>.
func NewReference(now time.Time) string {
	ms := now.UnixMilli() % 1000000
	id := ulid.Make().String()
	return fmt.Sprintf("PAY-%06d-%s", ms, id[len(id)-5:])
}
