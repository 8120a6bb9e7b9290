package api

import (
	"context"
	"fmt"
	"net/url"
	"strconv"

	"github.com/lanternchat/streamhub/internal/model"
)

// SessionsResponse is one page of the session directory.
type SessionsResponse struct {
	Sessions []model.Session `json:"sessions"`
	Cursor   string          `json:"cursor"`
}

// SingleSessionResponse wraps a single directory entry.
type SingleSessionResponse struct {
	Session model.Session `json:"session"`
}

// GetSessionsOptions filters a directory listing.
type GetSessionsOptions struct {
	Limit  int
	Cursor string
	Status string
}

// CreateSessionRequest creates a new session in the directory.
type CreateSessionRequest struct {
	Title string `json:"title"`
}

// GetSessions fetches a page of the session directory.
func (c *Client) GetSessions(ctx context.Context, opts GetSessionsOptions) (*SessionsResponse, error) {
	query := url.Values{}

	if opts.Limit > 0 {
		query.Set("limit", strconv.Itoa(opts.Limit))
	}
	if opts.Cursor != "" {
		query.Set("cursor", opts.Cursor)
	}
	if opts.Status != "" {
		query.Set("status", opts.Status)
	}

	var resp SessionsResponse
	if err := c.get(ctx, "/sessions", query, &resp); err != nil {
		return nil, fmt.Errorf("get sessions: %w", err)
	}

	return &resp, nil
}

// GetAllSessions fetches the full directory by paginating through results.
func (c *Client) GetAllSessions(ctx context.Context) ([]model.Session, error) {
	return c.GetAllSessionsWithOptions(ctx, GetSessionsOptions{})
}

// GetAllSessionsWithOptions fetches all sessions matching the given options.
func (c *Client) GetAllSessionsWithOptions(ctx context.Context, opts GetSessionsOptions) ([]model.Session, error) {
	var all []model.Session
	opts.Limit = 200 // Max page size

	for {
		resp, err := c.GetSessions(ctx, opts)
		if err != nil {
			return nil, err
		}

		all = append(all, resp.Sessions...)

		if resp.Cursor == "" {
			break
		}
		opts.Cursor = resp.Cursor
	}

	return all, nil
}

// GetSession fetches a single directory entry by id.
func (c *Client) GetSession(ctx context.Context, id string) (*model.Session, error) {
	var resp SingleSessionResponse
	if err := c.get(ctx, "/sessions/"+id, nil, &resp); err != nil {
		return nil, fmt.Errorf("get session %s: %w", id, err)
	}
	return &resp.Session, nil
}

// CreateSession registers a new session and returns the directory entry.
func (c *Client) CreateSession(ctx context.Context, title string) (*model.Session, error) {
	var resp SingleSessionResponse
	if err := c.post(ctx, "/sessions", CreateSessionRequest{Title: title}, &resp); err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	return &resp.Session, nil
}

// BacklogResponse is one page of a session's message history, oldest
// first.
type BacklogResponse struct {
	Messages []model.Envelope `json:"messages"`
	Cursor   string           `json:"cursor"`
}

// GetBacklogOptions pages through a session's history.
type GetBacklogOptions struct {
	Limit  int
	Cursor string
}

// GetBacklog fetches a page of a session's stored message history.
func (c *Client) GetBacklog(ctx context.Context, id string, opts GetBacklogOptions) (*BacklogResponse, error) {
	query := url.Values{}

	if opts.Limit > 0 {
		query.Set("limit", strconv.Itoa(opts.Limit))
	}
	if opts.Cursor != "" {
		query.Set("cursor", opts.Cursor)
	}

	var resp BacklogResponse
	if err := c.get(ctx, "/sessions/"+id+"/messages", query, &resp); err != nil {
		return nil, fmt.Errorf("get backlog %s: %w", id, err)
	}

	return &resp, nil
}

// DeleteSession removes a session from the directory.
func (c *Client) DeleteSession(ctx context.Context, id string) error {
	if err := c.del(ctx, "/sessions/"+id); err != nil {
		return fmt.Errorf("delete session %s: %w", id, err)
	}
	return nil
}
