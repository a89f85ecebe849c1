// Package tonapi reads account events from a TonAPI compatible indexer.
package tonapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/tonkeeper/tongo/ton"
)

var ErrAPI = errors.New("tonapi error")

type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client

	mu       sync.Mutex
	lastCall time.Time
	minDelay time.Duration
}

func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		minDelay: 250 * time.Millisecond,
	}
}

func (c *Client) throttle(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if wait := c.minDelay - time.Since(c.lastCall); wait > 0 {
		t := time.NewTimer(wait)
		defer t.Stop()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
		}
	}
	c.lastCall = time.Now()
	return nil
}

func (c *Client) doRequest(ctx context.Context, method, path string) ([]byte, error) {
	if err := c.throttle(ctx); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("%w %d: %s", ErrAPI, resp.StatusCode, string(data))
	}
	return data, nil
}

// GetEvents returns the most recent events for an account, newest first.
func (c *Client) GetEvents(ctx context.Context, address string, limit int) ([]Event, error) {
	path := fmt.Sprintf("/accounts/%s/events?limit=%d", url.PathEscape(address), limit)
	data, err := c.doRequest(ctx, http.MethodGet, path)
	if err != nil {
		return nil, err
	}

	var resp EventsResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("unmarshal: %w", err)
	}
	return resp.Events, nil
}

// IncomingTransfers scans recent events and keeps the finished, non-scam TON transfers
// whose recipient is address.
func (c *Client) IncomingTransfers(ctx context.Context, address string, limit int) ([]Transfer, error) {
	events, err := c.GetEvents(ctx, address, limit)
	if err != nil {
		return nil, err
	}
	return FilterIncoming(events, address), nil
}

func FilterIncoming(events []Event, address string) []Transfer {
	self := NormalizeAddress(address)

	var out []Transfer
	for _, ev := range events {
		if ev.IsScam || ev.InProgress {
			continue
		}
		for _, a := range ev.Actions {
			if a.Type != "TonTransfer" || a.TonTransfer == nil {
				continue
			}
			if a.Status != "" && a.Status != "ok" {
				continue
			}
			if NormalizeAddress(a.TonTransfer.Recipient.Address) != self {
				continue
			}
			out = append(out, Transfer{
				EventID:   ev.EventID,
				Sender:    NormalizeAddress(a.TonTransfer.Sender.Address),
				Amount:    a.TonTransfer.Amount,
				Comment:   a.TonTransfer.Comment,
				Timestamp: ev.Timestamp,
			})
		}
	}
	return out
}

// RawToFriendly converts a raw 0:... address to the bounceable user-facing form.
func RawToFriendly(raw string) string {
	if raw == "" {
		return ""
	}
	acc, err := ton.ParseAccountID(raw)
	if err != nil {
		return raw
	}
	return acc.ToHuman(true, false)
}

// NormalizeAddress converts any address form to raw (0:...). Unparseable input is returned unchanged.
func NormalizeAddress(addr string) string {
	if addr == "" {
		return ""
	}
	acc, err := ton.ParseAccountID(addr)
	if err != nil {
		return addr
	}
	return acc.String()
}

func ValidAddress(addr string) bool {
	_, err := ton.ParseAccountID(addr)
	return err == nil
}
