// Package client is a small Go SDK for the reservations API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/go-querystring/query"
)

type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// New targets baseURL, e.g. "https://library.example.com/v1", and sends
// token as a bearer credential.
func New(baseURL, token string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) List(ctx context.Context, opts *ListOptions) (*ReservationList, error) {
	path := "/reservations"
	if opts != nil {
		v, err := query.Values(opts)
		if err != nil {
			return nil, err
		}
		if enc := v.Encode(); enc != "" {
			path += "?" + enc
		}
	}
	var out ReservationList
	return &out, c.do(ctx, http.MethodGet, path, nil, nil, &out)
}

func (c *Client) ListOverdue(ctx context.Context) (*ReservationList, error) {
	var out ReservationList
	return &out, c.do(ctx, http.MethodGet, "/reservations/overdue", nil, nil, &out)
}

func (c *Client) Get(ctx context.Context, id string) (*Reservation, error) {
	var out struct{ Data Reservation }
	if err := c.do(ctx, http.MethodGet, "/reservations/"+url.PathEscape(id), nil, nil, &out); err != nil {
		return nil, err
	}
	return &out.Data, nil
}

// Create books a reservation. A non-empty idempotencyKey makes retries safe.
func (c *Client) Create(ctx context.Context, req CreateRequest, idempotencyKey string) (*Reservation, error) {
	var hdr http.Header
	if idempotencyKey != "" {
		hdr = http.Header{"Idempotency-Key": []string{idempotencyKey}}
	}
	var out struct{ Data Reservation }
	if err := c.do(ctx, http.MethodPost, "/reservations", hdr, req, &out); err != nil {
		return nil, err
	}
	return &out.Data, nil
}

func (c *Client) CreateRecurring(ctx context.Context, req CreateRequest) ([]Reservation, error) {
	var out struct{ Data []Reservation }
	if err := c.do(ctx, http.MethodPost, "/reservations/recurring", nil, req, &out); err != nil {
		return nil, err
	}
	return out.Data, nil
}

func (c *Client) Update(ctx context.Context, id string, req UpdateRequest) (*Reservation, error) {
	return c.putReservation(ctx, "/reservations/"+url.PathEscape(id), req)
}

func (c *Client) Cancel(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/reservations/"+url.PathEscape(id), nil, nil, nil)
}

func (c *Client) History(ctx context.Context, id string) ([]HistoryEntry, error) {
	var out struct{ Data []HistoryEntry }
	if err := c.do(ctx, http.MethodGet, "/reservations/"+url.PathEscape(id)+"/history", nil, nil, &out); err != nil {
		return nil, err
	}
	return out.Data, nil
}

func (c *Client) UpdateNotifications(ctx context.Context, id string, prefs []NotificationPreference) (*Reservation, error) {
	body := struct {
		Notifications []NotificationPreference `json:"notifications"`
	}{prefs}
	return c.putReservation(ctx, "/reservations/"+url.PathEscape(id)+"/notifications", body)
}

func (c *Client) Complete(ctx context.Context, id, returnDate string) (*Completion, error) {
	var out Completion
	body := map[string]string{"returnDate": returnDate}
	if err := c.do(ctx, http.MethodPut, "/reservations/"+url.PathEscape(id)+"/complete", nil, body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Extend(ctx context.Context, id, newReturnDate string) (*Reservation, error) {
	return c.putReservation(ctx, "/reservations/"+url.PathEscape(id)+"/extend", map[string]string{"returnDate": newReturnDate})
}

func (c *Client) WaitlistPosition(ctx context.Context, bookID string) (*WaitlistEntry, error) {
	return c.waitlist(ctx, http.MethodGet, bookID)
}

func (c *Client) JoinWaitlist(ctx context.Context, bookID string) (*WaitlistEntry, error) {
	return c.waitlist(ctx, http.MethodPost, bookID)
}

func (c *Client) LeaveWaitlist(ctx context.Context, bookID string) error {
	return c.do(ctx, http.MethodDelete, "/books/"+url.PathEscape(bookID)+"/waitlist", nil, nil, nil)
}

func (c *Client) waitlist(ctx context.Context, method, bookID string) (*WaitlistEntry, error) {
	var out struct{ Data WaitlistEntry }
	if err := c.do(ctx, method, "/books/"+url.PathEscape(bookID)+"/waitlist", nil, nil, &out); err != nil {
		return nil, err
	}
	return &out.Data, nil
}

func (c *Client) putReservation(ctx context.Context, path string, body interface{}) (*Reservation, error) {
	var out struct{ Data Reservation }
	if err := c.do(ctx, http.MethodPut, path, nil, body, &out); err != nil {
		return nil, err
	}
	return &out.Data, nil
}

func (c *Client) do(ctx context.Context, method, path string, hdr http.Header, body, out interface{}) error {
	var rdr io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		rdr = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rdr)
	if err != nil {
		return err
	}
	for k, vs := range hdr {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	res, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	data, err := io.ReadAll(io.LimitReader(res.Body, 4<<20))
	if err != nil {
		return err
	}

	if res.StatusCode >= 300 {
		return decodeError(res.StatusCode, data)
	}
	if out == nil || len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func decodeError(status int, data []byte) error {
	if status == http.StatusBadRequest {
		var ve ValidationError
		if json.Unmarshal(data, &ve) == nil && len(ve.Errors) > 0 {
			return &ve
		}
	}
	apiErr := &APIError{StatusCode: status}
	if json.Unmarshal(data, apiErr) != nil || apiErr.Message == "" {
		apiErr.Message = strings.TrimSpace(string(data))
		if apiErr.Message == "" {
			apiErr.Message = http.StatusText(status)
		}
	}
	return apiErr
}
