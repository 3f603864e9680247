package cli

import (
	"bytes"
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
)

const adminSecretHeader = "X-Admin-Secret"

type Client struct {
	BaseURL     string
	AdminSecret string
	HTTP        *http.Client
}

func NewClient(baseURL, adminSecret string) *Client {
	return &Client{
		BaseURL:     strings.TrimRight(baseURL, "/"),
		AdminSecret: strings.TrimSpace(adminSecret),
		HTTP: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// APIError is a non-2xx response from the ledger API.
type APIError struct {
	Status  int
	Code    string
	Reason  string
	Message string
}

func (e *APIError) Error() string {
	label := e.Code
	if e.Reason != "" {
		label += "/" + e.Reason
	}
	if label == "" {
		return fmt.Sprintf("api status %d: %s", e.Status, e.Message)
	}
	return fmt.Sprintf("api status %d (%s): %s", e.Status, label, e.Message)
}

// IsAPIError reports whether err came back from the server, as opposed to a
// transport failure.
func IsAPIError(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr)
}

// IsRetryable reports whether the server asked the client to try again later.
func IsRetryable(err error) bool {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	return apiErr.Status >= http.StatusInternalServerError || apiErr.Code == "UNAVAILABLE"
}

func playerPath(id string, rest ...string) string {
	p := "/v1/players/" + url.PathEscape(id)
	for _, r := range rest {
		p += "/" + r
	}
	return p
}

func (c *Client) Register(ctx context.Context, id, displayName, category, language string) (map[string]any, error) {
	body := map[string]any{"id": id, "display_name": displayName}
	if category != "" {
		body["category"] = category
	}
	if language != "" {
		body["language"] = language
	}
	return c.Do(ctx, http.MethodPost, "/v1/players", body, "", false)
}

func (c *Client) Player(ctx context.Context, id string) (map[string]any, error) {
	return c.Do(ctx, http.MethodGet, playerPath(id), nil, "", false)
}

func (c *Client) UpdatePlayer(ctx context.Context, id string, fields map[string]any) (map[string]any, error) {
	return c.Do(ctx, http.MethodPatch, playerPath(id), fields, "", false)
}

func (c *Client) Adjust(ctx context.Context, id, field string, delta int64) (map[string]any, error) {
	return c.Do(ctx, http.MethodPost, playerPath(id, "adjust"), map[string]any{
		"field": field,
		"delta": delta,
	}, "", false)
}

func (c *Client) Purchase(ctx context.Context, id, itemCode string, price int64, idem string) (map[string]any, error) {
	return c.Do(ctx, http.MethodPost, playerPath(id, "purchases"), PurchaseBody(itemCode, price), idem, false)
}

// PurchaseBody omits the price when it is zero so the server prices the item
// from its catalog.
func PurchaseBody(itemCode string, price int64) map[string]any {
	body := map[string]any{"item_code": itemCode}
	if price > 0 {
		body["price"] = price
	}
	return body
}

func (c *Client) Sales(ctx context.Context, id string, limit int) (map[string]any, error) {
	path := playerPath(id, "purchases")
	if limit > 0 {
		path += "?limit=" + strconv.Itoa(limit)
	}
	return c.Do(ctx, http.MethodGet, path, nil, "", false)
}

func (c *Client) Wager(ctx context.Context, id string, amount int64) (map[string]any, error) {
	return c.Do(ctx, http.MethodPost, playerPath(id, "wagers"), map[string]any{"amount": amount}, "", false)
}

func (c *Client) Claim(ctx context.Context, resource, ownerID string) (map[string]any, error) {
	return c.Do(ctx, http.MethodPost, "/v1/claims/"+url.PathEscape(resource), map[string]any{"owner_id": ownerID}, "", false)
}

func (c *Client) GetClaim(ctx context.Context, resource string) (map[string]any, error) {
	return c.Do(ctx, http.MethodGet, "/v1/claims/"+url.PathEscape(resource), nil, "", false)
}

func (c *Client) Claims(ctx context.Context, ownerID string) (map[string]any, error) {
	return c.Do(ctx, http.MethodGet, playerPath(ownerID, "claims"), nil, "", false)
}

func (c *Client) CreateBond(ctx context.Context, idA, idB, kind, initiator string) (map[string]any, error) {
	body := map[string]any{"id_a": idA, "id_b": idB, "kind": kind}
	if initiator != "" {
		body["initiator_id"] = initiator
	}
	return c.Do(ctx, http.MethodPost, "/v1/bonds", body, "", false)
}

func (c *Client) BreakBond(ctx context.Context, idA, idB, kind string) (map[string]any, error) {
	return c.Do(ctx, http.MethodDelete, "/v1/bonds", map[string]any{"id_a": idA, "id_b": idB, "kind": kind}, "", false)
}

func (c *Client) Bonds(ctx context.Context, id string) (map[string]any, error) {
	return c.Do(ctx, http.MethodGet, playerPath(id, "bonds"), nil, "", false)
}

func (c *Client) Partner(ctx context.Context, id, kind string) (map[string]any, error) {
	return c.Do(ctx, http.MethodGet, playerPath(id, "bonds", url.PathEscape(kind), "partner"), nil, "", false)
}

func (c *Client) RecordLink(ctx context.Context, sourceID, targetID, linkType, label string) (map[string]any, error) {
	return c.Do(ctx, http.MethodPost, "/v1/links", map[string]any{
		"source_id": sourceID,
		"target_id": targetID,
		"link_type": linkType,
		"label":     label,
	}, "", false)
}

func (c *Client) Links(ctx context.Context, id, direction string, limit int) (map[string]any, error) {
	q := url.Values{}
	if direction != "" {
		q.Set("direction", direction)
	}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	path := playerPath(id, "links")
	if len(q) > 0 {
		path += "?" + q.Encode()
	}
	return c.Do(ctx, http.MethodGet, path, nil, "", false)
}

func (c *Client) Catalog(ctx context.Context) (map[string]any, error) {
	return c.Do(ctx, http.MethodGet, "/v1/catalog", nil, "", false)
}

func (c *Client) PurgePlayer(ctx context.Context, id string) (map[string]any, error) {
	return c.Do(ctx, http.MethodDelete, "/v1/admin/players/"+url.PathEscape(id), nil, "", true)
}

func (c *Client) PurgeClaim(ctx context.Context, resource string) (map[string]any, error) {
	return c.Do(ctx, http.MethodDelete, "/v1/admin/claims/"+url.PathEscape(resource), nil, "", true)
}

func (c *Client) Reset(ctx context.Context) (map[string]any, error) {
	return c.Do(ctx, http.MethodDelete, "/v1/admin/players", nil, "", true)
}

// Do sends one JSON request. admin attaches the configured admin secret.
func (c *Client) Do(ctx context.Context, method, path string, body map[string]any, idem string, admin bool) (map[string]any, error) {
	var out map[string]any
	err := c.jsonRequest(ctx, method, path, body, &out, idem, admin)
	return out, err
}

func (c *Client) jsonRequest(ctx context.Context, method, path string, in any, out any, idem string, admin bool) error {
	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if admin {
		if c.AdminSecret == "" {
			return fmt.Errorf("admin secret not configured (set LEDGER_ADMIN_SECRET)")
		}
		req.Header.Set(adminSecretHeader, c.AdminSecret)
	}
	if idem != "" {
		req.Header.Set("Idempotency-Key", idem)
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return decodeAPIError(resp.StatusCode, raw)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func decodeAPIError(status int, raw []byte) *APIError {
	apiErr := &APIError{Status: status}
	var payload struct {
		Error  string `json:"error"`
		Code   string `json:"code"`
		Reason string `json:"reason"`
	}
	if err := json.Unmarshal(raw, &payload); err == nil && payload.Error != "" {
		apiErr.Message = payload.Error
		apiErr.Code = payload.Code
		apiErr.Reason = payload.Reason
		return apiErr
	}
	apiErr.Message = strings.TrimSpace(string(raw))
	return apiErr
}
