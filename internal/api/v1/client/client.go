package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/userpipe/userpipe/internal/api/v1/routes"
	"github.com/userpipe/userpipe/internal/db/models"
)

// DefaultTimeout is the default timeout for API requests
const DefaultTimeout = 30 * time.Second

// Options contains configuration options for the API client
type Options struct {
	// BaseURL is the base URL of the API
	BaseURL string

	// Timeout is the request timeout
	Timeout time.Duration
}

// DefaultOptions returns the default client options
func DefaultOptions() *Options {
	return &Options{
		BaseURL: routes.DefaultBaseURL,
		Timeout: DefaultTimeout,
	}
}

// Client talks to the userpipe HTTP API
type Client struct {
	http *resty.Client
}

// NewClient creates a new API client with the given options
func NewClient(opts *Options) (*Client, error) {
	if opts == nil {
		opts = DefaultOptions()
	}
	if opts.BaseURL == "" {
		opts.BaseURL = routes.DefaultBaseURL
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}

	if _, err := url.Parse(opts.BaseURL); err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}

	http := resty.New().
		SetBaseURL(opts.BaseURL).
		SetTimeout(opts.Timeout).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")

	return &Client{http: http}, nil
}

// TriggerJob starts a new pipeline run. jobID may be empty, in which case the
// server generates one.
func (c *Client) TriggerJob(ctx context.Context, jobID string) (*models.Job, error) {
	body := map[string]string{}
	if jobID != "" {
		body["job_id"] = jobID
	}

	resp, err := c.http.R().SetContext(ctx).SetBody(body).Post("/api/v1/jobs")
	if err != nil {
		return nil, fmt.Errorf("failed to trigger job: %w", err)
	}

	var job models.Job
	if err := c.decode(resp, &job); err != nil {
		return nil, err
	}
	return &job, nil
}

// GetJob retrieves the status record of a job
func (c *Client) GetJob(ctx context.Context, jobID string) (*models.Job, error) {
	resp, err := c.http.R().SetContext(ctx).Get("/api/v1/jobs/" + url.PathEscape(jobID))
	if err != nil {
		return nil, fmt.Errorf("failed to get job: %w", err)
	}

	var job models.Job
	if err := c.decode(resp, &job); err != nil {
		return nil, err
	}
	return &job, nil
}

// ListJobs lists jobs, optionally filtered by status
func (c *Client) ListJobs(ctx context.Context, status string, limit, offset int) ([]models.Job, error) {
	req := c.http.R().SetContext(ctx)
	if status != "" {
		req.SetQueryParam("status", status)
	}
	setPagination(req, limit, offset)

	resp, err := req.Get("/api/v1/jobs")
	if err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}

	var jobs []models.Job
	if err := c.decode(resp, &jobs); err != nil {
		return nil, err
	}
	return jobs, nil
}

// ListUsers lists users the pipeline has persisted
func (c *Client) ListUsers(ctx context.Context, limit, offset int) ([]models.User, error) {
	req := c.http.R().SetContext(ctx)
	setPagination(req, limit, offset)

	resp, err := req.Get("/api/v1/users")
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}

	var users []models.User
	if err := c.decode(resp, &users); err != nil {
		return nil, err
	}
	return users, nil
}

// CountUsers returns the total number of persisted users
func (c *Client) CountUsers(ctx context.Context) (int64, error) {
	resp, err := c.http.R().SetContext(ctx).Get("/api/v1/users/count")
	if err != nil {
		return 0, fmt.Errorf("failed to count users: %w", err)
	}

	var data struct {
		Count int64 `json:"count"`
	}
	if err := c.decode(resp, &data); err != nil {
		return 0, err
	}
	return data.Count, nil
}

// HealthCheck verifies the server is reachable
func (c *Client) HealthCheck(ctx context.Context) error {
	resp, err := c.http.R().SetContext(ctx).Get("/health")
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("health check failed: status %d", resp.StatusCode())
	}
	return nil
}

// decode unpacks the API response envelope into out
func (c *Client) decode(resp *resty.Response, out interface{}) error {
	var envelope struct {
		Slug  string          `json:"slug"`
		Error string          `json:"error"`
		Data  json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(resp.Body(), &envelope); err != nil {
		return fmt.Errorf("invalid API response (status %d): %w", resp.StatusCode(), err)
	}

	if resp.IsError() {
		if envelope.Error != "" {
			return fmt.Errorf("API error (status %d): %s", resp.StatusCode(), envelope.Error)
		}
		return fmt.Errorf("API error: status %d", resp.StatusCode())
	}

	if out == nil || len(envelope.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(envelope.Data, out); err != nil {
		return fmt.Errorf("failed to decode API response data: %w", err)
	}
	return nil
}

func setPagination(req *resty.Request, limit, offset int) {
	if limit > 0 {
		req.SetQueryParam("limit", strconv.Itoa(limit))
	}
	if offset > 0 {
		req.SetQueryParam("offset", strconv.Itoa(offset))
	}
}
