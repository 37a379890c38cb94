package marketplace

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"staysync/config"
)

// WireDate is the date layout used by the marketplace API.
const WireDate = "2006-01-02"

// Client talks to one marketplace's REST API. Endpoints come from the
// marketplace YAML config; every data call is bearer-authenticated and goes
// through the 429 retry wrapper.
type Client struct {
	cfg        *config.MarketplaceConfig
	client     *http.Client
	maxRetries int
	baseDelay  time.Duration
}

func NewClient(cfg *config.MarketplaceConfig, syncCfg *config.SyncConfig) *Client {
	retries := syncCfg.MaxRetries
	if retries < 1 {
		retries = 1
	}
	return &Client{
		cfg:        cfg,
		client:     &http.Client{Timeout: 30 * time.Second},
		maxRetries: retries,
		baseDelay:  syncCfg.RetryBaseDelay,
	}
}

func (c *Client) ID() string {
	return c.cfg.ID
}

// APIError is a non-2xx marketplace response. Code carries the marketplace's
// own error code when the body had one; Details keeps the raw payload for the
// audit log.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
	Details    json.RawMessage
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("marketplace error %d (%s): %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("marketplace error %d: %s", e.StatusCode, e.Message)
}

func (c *Client) endpoint(name, accountID, itemID string) string {
	path := c.cfg.Endpoints[name]
	path = strings.ReplaceAll(path, "{account_id}", accountID)
	path = strings.ReplaceAll(path, "{item_id}", itemID)
	return c.cfg.BaseURL + path
}

// PriceInterval is one contiguous date range with uniform nightly price and
// minimum stay.
type PriceInterval struct {
	DateFrom   string `json:"date_from"`
	DateTo     string `json:"date_to"`
	NightPrice int64  `json:"night_price"`
	MinStay    int    `json:"minimal_duration"`
}

// ClosedInterval is one occupied date range, [date_from, date_to).
type ClosedInterval struct {
	DateFrom string `json:"date_from"`
	DateTo   string `json:"date_to"`
}

// BaseParams are the listing-level defaults pushed alongside prices.
type BaseParams struct {
	NightPrice int64 `json:"night_price"`
	MinStay    int   `json:"minimal_duration"`
}

func (c *Client) PushPrices(ctx context.Context, token, accountID, itemID string, intervals []PriceInterval) error {
	payload := map[string]interface{}{"prices": intervals}
	return c.postJSON(ctx, token, c.endpoint("prices", accountID, itemID), payload)
}

func (c *Client) PushBaseParams(ctx context.Context, token, accountID, itemID string, params BaseParams) error {
	return c.postJSON(ctx, token, c.endpoint("base_params", accountID, itemID), params)
}

// PushClosedIntervals sends the full closed-interval set. An empty slice is a
// meaningful payload: it opens every date on the remote calendar.
func (c *Client) PushClosedIntervals(ctx context.Context, token, accountID, itemID string, intervals []ClosedInterval) error {
	if intervals == nil {
		intervals = []ClosedInterval{}
	}
	payload := map[string]interface{}{"intervals": intervals}
	return c.postJSON(ctx, token, c.endpoint("intervals", accountID, itemID), payload)
}

// PullBookings fetches the raw bookings payload for [from, to]. The body is
// returned as-is; shape tolerance lives in ParseBookingsPayload.
func (c *Client) PullBookings(ctx context.Context, token, accountID, itemID string, from, to time.Time, includeUnpaid bool) (json.RawMessage, error) {
	url := fmt.Sprintf("%s?date_start=%s&date_end=%s&with_unpaid=%t",
		c.endpoint("bookings", accountID, itemID),
		from.Format(WireDate), to.Format(WireDate), includeUnpaid)

	resp, err := c.doWithRetry(ctx, func() (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Authorization", "Bearer "+token)
		return req, nil
	})
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, parseAPIError(resp.StatusCode, body)
	}
	return body, nil
}

func (c *Client) postJSON(ctx context.Context, token, url string, payload interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	resp, err := c.doWithRetry(ctx, func() (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+token)
		return req, nil
	})
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		respBody, _ := io.ReadAll(resp.Body)
		return parseAPIError(resp.StatusCode, respBody)
	}
	io.Copy(io.Discard, resp.Body)
	return nil
}

// parseAPIError extracts the marketplace error code/message from the response
// body, tolerating both {"error":{"code","message"}} and flat shapes.
func parseAPIError(status int, body []byte) *APIError {
	apiErr := &APIError{
		StatusCode: status,
		Message:    http.StatusText(status),
		Details:    json.RawMessage(body),
	}

	var nested struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &nested); err == nil && (nested.Error.Code != "" || nested.Error.Message != "") {
		apiErr.Code = nested.Error.Code
		if nested.Error.Message != "" {
			apiErr.Message = nested.Error.Message
		}
		return apiErr
	}

	var flat struct {
		Code        string `json:"code"`
		Message     string `json:"message"`
		Err         string `json:"error"`
		Description string `json:"error_description"`
	}
	if err := json.Unmarshal(body, &flat); err == nil {
		if flat.Code != "" {
			apiErr.Code = flat.Code
		} else if flat.Err != "" {
			apiErr.Code = flat.Err
		}
		if flat.Message != "" {
			apiErr.Message = flat.Message
		} else if flat.Description != "" {
			apiErr.Message = flat.Description
		}
	}
	return apiErr
}
