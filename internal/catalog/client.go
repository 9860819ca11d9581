package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/example/reservationd/internal/reservation"
)

// Client talks to the restaurant directory over HTTP. BaseURL points at the
// restaurants collection, e.g. http://restaurant-service/api/v1/restaurants.
type Client struct {
	hc      *http.Client
	baseURL string
}

func New(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	return &Client{
		hc:      &http.Client{Timeout: timeout},
		baseURL: strings.TrimRight(baseURL, "/"),
	}
}

// StatusError is a non-2xx answer from the directory.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("catalog returned status %d", e.Code)
	}
	return fmt.Sprintf("catalog returned status %d: %s", e.Code, e.Body)
}

// Retryable reports whether err is worth another attempt. Transport failures,
// 5xx and 429 are; other client errors are not.
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	var se *StatusError
	if errors.As(err, &se) {
		return se.Code >= 500 || se.Code == http.StatusTooManyRequests
	}
	return !errors.Is(err, context.Canceled)
}

func (c *Client) Tables(ctx context.Context, restaurantID string) ([]reservation.Table, error) {
	var out []reservation.Table
	if err := c.getJSON(ctx, c.path(restaurantID, "tables"), nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Table returns found=false for a 404.
func (c *Client) Table(ctx context.Context, restaurantID, tableID string) (reservation.Table, bool, error) {
	var t reservation.Table
	err := c.getJSON(ctx, c.path(restaurantID, "tables", tableID), nil, &t)
	var se *StatusError
	if errors.As(err, &se) && se.Code == http.StatusNotFound {
		return reservation.Table{}, false, nil
	}
	if err != nil {
		return reservation.Table{}, false, err
	}
	return t, true, nil
}

func (c *Client) AvailableTables(ctx context.Context, restaurantID string, minCapacity int) ([]reservation.Table, error) {
	q := url.Values{"capacity": {strconv.Itoa(minCapacity)}}
	var out []reservation.Table
	if err := c.getJSON(ctx, c.path(restaurantID, "tables", "available"), q, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) IsOperating(ctx context.Context, restaurantID string, at time.Time) (bool, error) {
	q := url.Values{"dateTime": {at.Format(time.RFC3339)}}
	var open bool
	if err := c.getJSON(ctx, c.path(restaurantID, "operating-hours", "check"), q, &open); err != nil {
		return false, err
	}
	return open, nil
}

func (c *Client) path(parts ...string) string {
	escaped := make([]string, len(parts))
	for i, p := range parts {
		escaped[i] = url.PathEscape(p)
	}
	return c.baseURL + "/" + strings.Join(escaped, "/")
}

func (c *Client) getJSON(ctx context.Context, rawURL string, query url.Values, out any) error {
	status, body, err := c.do(ctx, http.MethodGet, rawURL, query)
	if err != nil {
		return err
	}
	if status < 200 || status > 299 {
		return &StatusError{Code: status, Body: strings.TrimSpace(string(truncate(body, 200)))}
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode %s: %w", rawURL, err)
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, rawURL string, query url.Values) (int, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, method, rawURL, nil)
	if err != nil {
		return 0, nil, err
	}
	req.Header.Add("accept", "application/json")
	req.Header.Add("user-agent", "reservationd")
	if len(query) > 0 {
		req.URL.RawQuery = query.Encode()
	}

	res, err := c.hc.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer res.Body.Close()
	b, err := io.ReadAll(res.Body)
	if err != nil {
		return res.StatusCode, nil, err
	}
	return res.StatusCode, b, nil
}

func truncate(b []byte, n int) []byte {
	if len(b) > n {
		return b[:n]
	}
	return b
}

var _ reservation.Catalog = (*Client)(nil)
