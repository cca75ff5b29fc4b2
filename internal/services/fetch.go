// Package services contains the business logic: the pipeline stage handlers,
// the worker pool, and the services backing the API handlers.
package services

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-resty/resty/v2"

	"github.com/userpipe/userpipe/internal/config"
	"github.com/userpipe/userpipe/internal/pipeline"
	"github.com/userpipe/userpipe/internal/types"
)

// Fetcher retrieves raw user records from the external provider
type Fetcher struct {
	client *resty.Client
	url    string
}

// NewFetcher creates a fetcher from the given config
func NewFetcher(cfg config.FetchConfig) *Fetcher {
	client := resty.New().SetTimeout(cfg.Timeout)
	return &Fetcher{
		client: client,
		url:    cfg.URL,
	}
}

// FetchUsers calls the external API and decodes its user list. Network and
// server-side failures are transport errors (retriable); a body that cannot
// be decoded is a validation error (terminal, the payload will not improve
// on retry).
func (f *Fetcher) FetchUsers(ctx context.Context) ([]types.ExternalUser, error) {
	resp, err := f.client.R().SetContext(ctx).Get(f.url)
	if err != nil {
		return nil, pipeline.NewTransportError("fetch users", err)
	}
	if resp.IsError() {
		return nil, pipeline.NewTransportError("fetch users",
			fmt.Errorf("provider returned status %d", resp.StatusCode()))
	}

	var users []types.ExternalUser
	if err := json.Unmarshal(resp.Body(), &users); err != nil {
		return nil, pipeline.NewValidationError("provider response is not a user list: %v", err)
	}
	return users, nil
}
