// Package market talks to the gift marketplace used for settlement.
package market

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/Fi44er/giftcase/utils"
	"github.com/shopspring/decimal"
	"golang.org/x/net/publicsuffix"
)

const (
	AssetTON     = "TON"
	defaultLimit = 30
)

// ErrTransport marks failures where the marketplace never answered: dial, TLS, timeouts, cancellation.
var ErrTransport = errors.New("marketplace transport error")

// APIError is a marketplace answer that was not a JSON success. Body is kept verbatim.
type APIError struct {
	Op     string
	Status int
	Body   string
}

func (e *APIError) Error() string {
	body := e.Body
	if len(body) > 512 {
		body = body[:512] + "..."
	}
	return fmt.Sprintf("marketplace %s rejected with %d: %s", e.Op, e.Status, body)
}

type Listing struct {
	ID    int64           `json:"gift_id"`
	Name  string          `json:"name"`
	Model string          `json:"model"`
	Price decimal.Decimal `json:"price"`
	Asset string          `json:"asset"`
}

type ListingFilter struct {
	Family string
	Model  string
	Asset  string
	Page   int
	Limit  int
}

func (f ListingFilter) query() map[string]any {
	asset := f.Asset
	if asset == "" {
		asset = AssetTON
	}
	q := map[string]any{
		"price":     map[string]any{"$exists": true},
		"refunded":  map[string]any{"$ne": true},
		"buyer":     map[string]any{"$exists": false},
		"asset":     asset,
		"gift_name": f.Family,
	}
	if f.Model != "" {
		q["model"] = f.Model
	}
	return q
}

type PurchaseResult struct {
	ListingID int64
	Price     decimal.Decimal
	Status    string
}

type statusResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

type Client struct {
	baseURL    string
	authData   string
	passphrase string
	httpClient *http.Client
	logger     *utils.Logger
	now        func() time.Time
}

func NewClient(baseURL, authData, passphrase string, logger *utils.Logger) (*Client, error) {
	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, fmt.Errorf("failed to create cookie jar: %w", err)
	}
	return &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		authData:   authData,
		passphrase: passphrase,
		httpClient: &http.Client{Jar: jar},
		logger:     logger,
		now:        time.Now,
	}, nil
}

func (c *Client) do(ctx context.Context, op, method, path string, body any) ([]byte, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal %s body: %w", op, err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("create %s request: %w", op, err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Origin", c.baseURL)
	req.Header.Set("Referer", c.baseURL+"/")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrTransport, op, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: read body: %w", ErrTransport, op, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &APIError{Op: op, Status: resp.StatusCode, Body: string(data)}
	}
	return data, nil
}

func (c *Client) decode(op string, data []byte, v any) error {
	if err := json.Unmarshal(data, v); err != nil {
		return &APIError{Op: op, Status: http.StatusOK, Body: string(data)}
	}
	return nil
}

// expectSuccess treats anything but {"status":"success"} as a rejection.
func (c *Client) expectSuccess(op string, data []byte) error {
	var st statusResponse
	if err := c.decode(op, data, &st); err != nil {
		return err
	}
	if st.Status != "success" {
		return &APIError{Op: op, Status: http.StatusOK, Body: string(data)}
	}
	return nil
}

// Warmup loads the landing page so the jar picks up the session cookies the API expects.
func (c *Client) Warmup(ctx context.Context) error {
	_, err := c.do(ctx, "warmup", http.MethodGet, "/", nil)
	return err
}

// SearchListings returns listings matching the filter, cheapest first.
func (c *Client) SearchListings(ctx context.Context, f ListingFilter) ([]Listing, error) {
	filter, err := json.Marshal(f.query())
	if err != nil {
		return nil, fmt.Errorf("marshal filter: %w", err)
	}
	page := f.Page
	if page < 1 {
		page = 1
	}
	limit := f.Limit
	if limit < 1 {
		limit = defaultLimit
	}

	body := map[string]any{
		"page":      page,
		"limit":     limit,
		"sort":      `{"price":1,"gift_id":-1}`,
		"filter":    string(filter),
		"ref":       0,
		"user_auth": c.authData,
	}
	data, err := c.do(ctx, "search", http.MethodPost, "/api/pageGifts", body)
	if err != nil {
		return nil, err
	}

	var listings []Listing
	if err := c.decode("search", data, &listings); err != nil {
		return nil, err
	}
	sort.SliceStable(listings, func(i, j int) bool { return listings[i].Price.LessThan(listings[j].Price) })
	c.logger.Debugf("marketplace returned %d listings for %q/%q", len(listings), f.Family, f.Model)
	return listings, nil
}

// CheckReceiver asks the marketplace whether it knows the receiving telegram user.
func (c *Client) CheckReceiver(ctx context.Context, receiverID int64) error {
	body := map[string]any{
		"authData": c.authData,
		"user":     receiverID,
	}
	data, err := c.do(ctx, "receiver", http.MethodPost, "/api/userInfo", body)
	if err != nil {
		return err
	}
	return c.expectSuccess("receiver", data)
}

// Purchase buys listing l on behalf of receiverID, paying exactly its listed price.
func (c *Client) Purchase(ctx context.Context, l Listing, receiverID int64) (*PurchaseResult, error) {
	stamp, err := Encrypt(c.passphrase, strconv.FormatInt(c.now().Unix(), 10))
	if err != nil {
		return nil, fmt.Errorf("failed to encrypt timestamp: %w", err)
	}

	asset := l.Asset
	if asset == "" {
		asset = AssetTON
	}
	// the marketplace expects price as a JSON number, as it lists it
	body := map[string]any{
		"anonymously": true,
		"asset":       asset,
		"price":       json.Number(l.Price.String()),
		"receiver":    receiverID,
		"showPrice":   false,
		"timestamp":   stamp,
		"user_auth":   c.authData,
	}
	data, err := c.do(ctx, "purchase", http.MethodPost, fmt.Sprintf("/api/buyGift/%d", l.ID), body)
	if err != nil {
		return nil, err
	}
	if err := c.expectSuccess("purchase", data); err != nil {
		return nil, err
	}
	c.logger.Infof("marketplace purchase of listing %d for %s accepted (receiver %d)", l.ID, l.Price, receiverID)
	return &PurchaseResult{ListingID: l.ID, Price: l.Price, Status: "success"}, nil
}
