package payment

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizePhone(t *testing.T) {
	cases := []struct {
		in   string
		want string
		err  bool
	}{
		{in: "0712345678", want: "254712345678"},
		{in: "0712 345 678", want: "254712345678"},
		{in: "+254712345678", want: "254712345678"},
		{in: "254712345678", want: "254712345678"},
		{in: "712345678", want: "254712345678"},
		{in: "(07) 12-345-678", want: "254712345678"},
		{in: "07123", err: true},
		{in: "", err: true},
		{in: "25471234567890", err: true},
	}
	for _, tc := range cases {
		t.Run(tc.in, func(t *testing.T) {
			got, err := NormalizePhone(tc.in, "254")
			if tc.err {
				assert.ErrorIs(t, err, ErrInvalidPhone)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestNewReferenceFormat(t *testing.T) {
	now := time.UnixMilli(1700000123456)
	ref := NewReference(now)
	assert.Regexp(t, regexp.MustCompile(`^PAY-123456-[0-9A-Z]{5}$`), ref)

	seen := map[string]bool{}
	for i := 0; i < 200; i++ {
		seen[NewReference(now)] = true
	}
	assert.Greater(t, len(seen), 190)
}

func TestSimulatedGatewayAccepts(t *testing.T) {
	require.NoError(t, SimulatedGateway{}.Initiate(context.Background(), Request{Reference: "PAY-1", Amount: 10}))
}

func TestHTTPGateway(t *testing.T) {
	var got Request
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		if !ok || user != "key" || pass != "secret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_ = json.NewDecoder(r.Body).Decode(&got)
		if got.Amount > 100 {
			w.WriteHeader(http.StatusUnprocessableEntity)
			_, _ = w.Write([]byte("amount too large"))
			return
		}
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	gw := HTTPGateway{URL: srv.URL, Key: "key", Secret: "secret", Timeout: time.Second}
	require.NoError(t, gw.Initiate(context.Background(), Request{Reference: "PAY-1", Phone: "254712345678", Amount: 40, Currency: "KSh"}))
	assert.Equal(t, "PAY-1", got.Reference)
	assert.Equal(t, "254712345678", got.Phone)

	err := gw.Initiate(context.Background(), Request{Reference: "PAY-2", Amount: 500})
	var gwErr GatewayError
	require.True(t, errors.As(err, &gwErr))
	assert.Equal(t, http.StatusUnprocessableEntity, gwErr.Status)
	assert.Equal(t, "amount too large", gwErr.Body)
}
