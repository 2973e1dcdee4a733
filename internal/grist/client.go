// Package grist is a client for the subset of the Grist REST API used to
// validate API keys and to browse the documents of a user.
package grist

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/time/rate"

	"github.com/gristips/gristips/internal/repeat"
)

// maxResponseSize bounds the body read from a Grist server.
const maxResponseSize = 10 << 20

type ClientOptions struct {
	// ServerURL is the base URL of the Grist instance, as returned by
	// NormalizeServerURL.
	ServerURL string
	APIKey    string

	// HTTPClient defaults to a client with a 30 second timeout.
	HTTPClient *http.Client
	// Retrier defaults to a retrier with the default options.
	Retrier *repeat.Retrier
	// Limiter, when set, paces outgoing requests. It is usually shared by
	// every client of the process.
	Limiter *rate.Limiter
}

type Client struct {
	serverURL string
	apiKey    string
	http      *http.Client
	retrier   *repeat.Retrier
	limiter   *rate.Limiter
}

func NewClient(options ClientOptions) *Client {
	c := &Client{
		serverURL: options.ServerURL,
		apiKey:    options.APIKey,
		http:      options.HTTPClient,
		retrier:   options.Retrier,
		limiter:   options.Limiter,
	}

	if c.http == nil {
		c.http = &http.Client{Timeout: 30 * time.Second}
	}
	if c.retrier == nil {
		c.retrier = repeat.NewRetrier(repeat.RetryOptions{})
	}

	return c
}

type User struct {
	ID    int    `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name"`
}

type Org struct {
	ID     int    `json:"id"`
	Name   string `json:"name"`
	Domain string `json:"domain"`
}

type Doc struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type Workspace struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
	Docs []Doc  `json:"docs"`
}

type Table struct {
	ID string `json:"id"`
}

type Column struct {
	ID     string `json:"id"`
	Fields struct {
		Label string `json:"label"`
		Type  string `json:"type"`
	} `json:"fields"`
}

// CurrentUser returns the profile of the owner of the API key. It is the
// cheapest way to check that a key is accepted by the server.
func (c *Client) CurrentUser(ctx context.Context) (*User, error) {
	return get[*User](ctx, c, "/api/profile/user")
}

func (c *Client) ListOrgs(ctx context.Context) ([]Org, error) {
	return get[[]Org](ctx, c, "/api/orgs")
}

// ListWorkspaces returns the workspaces of an organization, with their
// documents. org is either the ID or the domain of the organization.
func (c *Client) ListWorkspaces(ctx context.Context, org string) ([]Workspace, error) {
	return get[[]Workspace](ctx, c, "/api/orgs/"+url.PathEscape(org)+"/workspaces")
}

func (c *Client) ListTables(ctx context.Context, docID string) ([]Table, error) {
	resp, err := get[struct {
		Tables []Table `json:"tables"`
	}](ctx, c, "/api/docs/"+url.PathEscape(docID)+"/tables")
	if err != nil {
		return nil, err
	}
	return resp.Tables, nil
}

func (c *Client) ListColumns(ctx context.Context, docID, tableID string) ([]Column, error) {
	path := "/api/docs/" + url.PathEscape(docID) + "/tables/" + url.PathEscape(tableID) + "/columns"
	resp, err := get[struct {
		Columns []Column `json:"columns"`
	}](ctx, c, path)
	if err != nil {
		return nil, err
	}
	return resp.Columns, nil
}

func get[Res any](ctx context.Context, c *Client, path string) (Res, error) {
	return repeat.Execute(ctx, c.retrier, func(ctx context.Context) (Res, error) {
		var res Res

		body, err := c.do(ctx, http.MethodGet, path)
		if err != nil {
			return res, err
		}

		if err := json.Unmarshal(body, &res); err != nil {
			return res, &decodeError{path: path, body: partialText(body, 100), err: err}
		}
		return res, nil
	})
}

func (c *Client) do(ctx context.Context, method, path string) ([]byte, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("%s %q: %w", method, path, err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, c.serverURL+path, nil)
	if err != nil {
		return nil, err
	}

	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %q: %w", method, path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, newAPIError(method, path, resp, body)
	}

	return body, nil
}

func partialText(body []byte, limit int) string {
	if len(body) <= limit {
		return string(body)
	}

	return string(body[:limit]) + "..."
}
