// Package collab talks to the reference server on behalf of a viewer: the
// initial load, on-demand fragments and picker actions.
package collab

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/roach88/pickboard/internal/ir"
)

// ErrNotFound is returned when the server has no such item.
var ErrNotFound = errors.New("not found")

// StatusError is a non-2xx answer from the server.
type StatusError struct {
	Status  int
	Message string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("server returned %d", e.Status)
	}
	return fmt.Sprintf("server returned %d: %s", e.Status, e.Message)
}

// Is maps 404 onto ErrNotFound.
func (e *StatusError) Is(target error) bool {
	return target == ErrNotFound && e.Status == http.StatusNotFound
}

// Client is an HTTP client for one server.
type Client struct {
	base string
	http *http.Client
}

// New creates a client for a server base URL such as http://localhost:8080.
// A nil httpClient uses one with a 10s timeout.
func New(base string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &Client{base: strings.TrimSuffix(base, "/"), http: httpClient}
}

// InitialLoad returns the fragments of every item on a list.
func (c *Client) InitialLoad(ctx context.Context, listID string) ([]ir.Fragment, error) {
	var frags []ir.Fragment
	if err := c.do(ctx, http.MethodGet, listPath(listID), nil, &frags); err != nil {
		return nil, fmt.Errorf("initial load of %s: %w", listID, err)
	}
	return frags, nil
}

// Fetch implements engine.FragmentSource. It has no side effects.
func (c *Client) Fetch(ctx context.Context, listID, itemID string) (ir.Fragment, error) {
	var f ir.Fragment
	if err := c.do(ctx, http.MethodGet, itemPath(listID, itemID, "fragment"), nil, &f); err != nil {
		return ir.Fragment{}, fmt.Errorf("fetch fragment %s/%s: %w", listID, itemID, err)
	}
	return f, nil
}

// TransitionRequest mirrors the server's transition body.
type TransitionRequest struct {
	Action         string `json:"action"`
	SubstituteName string `json:"substitute_name,omitempty"`
	EventID        string `json:"event_id,omitempty"`
}

// Transition asks the server to apply an action and returns its synchronous
// result, which the caller applies to its own view as a local transition.
func (c *Client) Transition(ctx context.Context, listID, itemID string, req TransitionRequest) (ir.TransitionResult, error) {
	var res ir.TransitionResult
	if err := c.do(ctx, http.MethodPost, itemPath(listID, itemID, "transition"), req, &res); err != nil {
		return ir.TransitionResult{}, fmt.Errorf("%s %s/%s: %w", req.Action, listID, itemID, err)
	}
	if res.ItemID == "" {
		res.ItemID = itemID
	}
	if res.ListID == "" {
		res.ListID = listID
	}
	return res, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var r io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		r = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base+path, r)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		var e struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(io.LimitReader(resp.Body, 4096)).Decode(&e)
		return &StatusError{Status: resp.StatusCode, Message: e.Error}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func listPath(listID string) string {
	return "/lists/" + url.PathEscape(listID) + "/items"
}

func itemPath(listID, itemID, action string) string {
	return listPath(listID) + "/" + url.PathEscape(itemID) + "/" + action
}
