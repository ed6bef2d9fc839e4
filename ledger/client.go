package ledger

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	"referral-ledger/models"
)

// Doer sends HTTP requests; *http.Client satisfies it.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client talks to the /ledger API of a running ledger server. It is the
// Ledger a device agent uses.
type Client struct {
	BaseURL string
	Token   string
	HTTP    Doer
}

var _ Ledger = (*Client)(nil)

func NewClient(baseURL, token string) *Client {
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Token:   token,
		HTTP: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

type errorBody struct {
	Error string `json:"error"`
	Cause string `json:"cause"`
}

func (c *Client) do(ctx context.Context, method, path string, in, out interface{}) error {
	var body io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("%w: encode request: %v", ErrInvalid, err)
		}
		body = bytes.NewReader(payload)
	}

	endpoint := c.BaseURL + "/ledger" + path
	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return fmt.Errorf("%w: build request %s %s: %v", ErrInvalid, method, endpoint, err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w: %v", method, path, ErrTransient, err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	if resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		var eb errorBody
		msg := strings.TrimSpace(string(raw))
		if json.Unmarshal(raw, &eb) == nil && eb.Error != "" {
			msg = eb.Error
			if eb.Cause != "" {
				msg += ": " + eb.Cause
			}
		}
		return fmt.Errorf("%s %s: %w (status %d: %s)", method, path, statusError(resp.StatusCode), resp.StatusCode, msg)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		log.Printf("⚠️ [LEDGER_CLIENT] Undecodable response from %s %s: %v", method, path, err)
		return fmt.Errorf("%s %s: %w: decode response: %v", method, path, ErrTransient, err)
	}
	return nil
}

func statusError(code int) error {
	switch {
	case code == http.StatusNotFound:
		return ErrNotFound
	case code == http.StatusConflict:
		return ErrConflict
	case code == http.StatusBadRequest, code == http.StatusUnprocessableEntity:
		return ErrInvalid
	default:
		// 401/403 included: a misconfigured token should not burn the install attempt.
		return ErrTransient
	}
}

func esc(id string) string { return url.PathEscape(id) }

func (c *Client) GetDriver(ctx context.Context, id string) (models.Driver, error) {
	var d models.Driver
	err := c.do(ctx, http.MethodGet, "/drivers/"+esc(id), nil, &d)
	return d, err
}

func (c *Client) ListDrivers(ctx context.Context) ([]models.Driver, error) {
	var out struct {
		Drivers []models.Driver `json:"drivers"`
	}
	if err := c.do(ctx, http.MethodGet, "/drivers", nil, &out); err != nil {
		return nil, err
	}
	return out.Drivers, nil
}

func (c *Client) CreateDriver(ctx context.Context, d models.Driver) (models.Driver, error) {
	var created models.Driver
	err := c.do(ctx, http.MethodPost, "/drivers", DriverRequest{ID: d.ID, Name: d.Name}, &created)
	return created, err
}

func (c *Client) RenameDriver(ctx context.Context, id, name string) error {
	return c.do(ctx, http.MethodPut, "/drivers/"+esc(id), DriverRequest{ID: id, Name: name}, nil)
}

func (c *Client) ReassignDriver(ctx context.Context, oldID, newID, name string) (models.Driver, error) {
	var moved models.Driver
	err := c.do(ctx, http.MethodPut, "/drivers/"+esc(oldID), DriverRequest{ID: newID, Name: name}, &moved)
	return moved, err
}

func (c *Client) DeleteDriver(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/drivers/"+esc(id), nil, nil)
}

func (c *Client) GetUser(ctx context.Context, id string) (models.UserRecord, error) {
	var u models.UserRecord
	err := c.do(ctx, http.MethodGet, "/users/"+esc(id), nil, &u)
	return u, err
}

func (c *Client) SetUser(ctx context.Context, id string, rec models.UserRecord) error {
	return c.do(ctx, http.MethodPut, "/users/"+esc(id), UserRequest{
		Referrer:    rec.Referrer,
		InstallDate: rec.InstallDate,
		HasRedeemed: rec.HasRedeemed,
	}, nil)
}

func (c *Client) UpdateUser(ctx context.Context, id string, patch models.UserPatch) error {
	return c.do(ctx, http.MethodPatch, "/users/"+esc(id), patch, nil)
}

func (c *Client) IncrementDriverCounter(ctx context.Context, id string, field models.CounterField, delta int64) error {
	return c.do(ctx, http.MethodPost, "/drivers/"+esc(id)+"/increment", IncrementRequest{Field: field, Delta: delta}, nil)
}

func (c *Client) CreditRedemption(ctx context.Context, userID, driverID string) (bool, error) {
	var out RedemptionResponse
	if err := c.do(ctx, http.MethodPost, "/users/"+esc(userID)+"/redemption", RedemptionRequest{DriverID: driverID}, &out); err != nil {
		return false, err
	}
	return out.Credited, nil
}

// Wire types shared by the client and the server's /ledger handlers.

type DriverRequest struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type UserRequest struct {
	Referrer    string    `json:"referrer"`
	InstallDate time.Time `json:"install_date"`
	HasRedeemed bool      `json:"has_redeemed"`
}

type IncrementRequest struct {
	Field models.CounterField `json:"field"`
	Delta int64               `json:"delta"`
}

type RedemptionRequest struct {
	DriverID string `json:"driver_id"`
}

type RedemptionResponse struct {
	Credited bool `json:"credited"`
}
