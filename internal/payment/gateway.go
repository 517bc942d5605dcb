package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/go-pkgz/lgr"
)

// SimulatedGateway accepts every request and only logs it.
type SimulatedGateway struct {
	Logger lgr.L
}

func (g SimulatedGateway) Initiate(_ context.Context, req Request) error {
	logger := g.Logger
	if logger == nil {
		logger = lgr.NoOp
	}
	logger.Logf("[INFO] Initiating Mpesa payment of %s %d to %s with reference %s", req.Currency, req.Amount, req.Phone, req.Reference)
	return nil
}

// HTTPGateway posts an STK-push style JSON request to URL.
type HTTPGateway struct {
	URL     string
	Key     string
	Secret  string
	Timeout time.Duration
	Client  *http.Client
	Logger  lgr.L
}

// GatewayError is a non-2xx answer from the gateway.
type GatewayError struct {
	Status int
	Body   string
}

func (e GatewayError) Error() string {
	return fmt.Sprintf("payment gateway returned %d: %s", e.Status, e.Body)
}

func (g HTTPGateway) Initiate(ctx context.Context, req Request) error {
	logger := g.Logger
	if logger == nil {
		logger = lgr.NoOp
	}
	client := g.Client
	if client == nil {
		client = &http.Client{}
	}
	timeout := g.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	body, err := json.Marshal(req)
	if err != nil {
		return err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, g.URL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-Hustle-Reference", req.Reference)
	if g.Key != "" {
		httpReq.SetBasicAuth(g.Key, g.Secret)
	}
	resp, err := client.Do(httpReq)
	if err != nil {
		logger.Logf("[WARN] payment gateway request %s failed: %v", req.Reference, err)
		return fmt.Errorf("payment gateway: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		logger.Logf("[WARN] payment gateway rejected %s with %d", req.Reference, resp.StatusCode)
		return GatewayError{Status: resp.StatusCode, Body: string(bytes.TrimSpace(data))}
	}
	logger.Logf("[INFO] payment gateway accepted %s", req.Reference)
	return nil
}
