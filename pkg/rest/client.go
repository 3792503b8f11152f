// Package rest is the metadata client of the archival service API.
package rest

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/spectradata/datasets/pkg/transfer"
)

var (
	// ErrMetadataFetch wraps a network or parse failure resolving record
	// or community JSON, after retries are exhausted.
	ErrMetadataFetch = errors.New("metadata fetch failed")

	ErrInvalidAPIRoot = errors.New("api root is invalid")
)

// CatalogBound caps the number of records returned for a community query.
// A deliberate bound on catalog size, not a pagination cursor.
const CatalogBound = 512

type Client interface {
	// GetRecord fetches the raw record document for the given record id.
	GetRecord(ctx context.Context, id string) (map[string]any, error)

	// GetCommunity fetches the raw community document for the given
	// community id.
	GetCommunity(ctx context.Context, id string) (map[string]any, error)

	// FindRecords fetches the records-query document listing the records
	// of the given community (up to CatalogBound hits).
	FindRecords(ctx context.Context, communityID string) (map[string]any, error)
}

type client struct {
	api     string
	options []transfer.Option
}

// NewClient creates a metadata client for the given API root.
//
// # Args
//
// - apiRoot: absolute URL of the archival service API.
//
// - options: transfer options applied to every request (attempt budget,
// logger, backoff).
//
// # Returns
//
// - Client
//
// - error: ErrInvalidAPIRoot when apiRoot is not an absolute URL.
func NewClient(apiRoot string, options ...transfer.Option) (Client, error) {
	u, err := url.Parse(apiRoot)
	if err != nil || !u.IsAbs() {
		return nil, fmt.Errorf("%w: %s", ErrInvalidAPIRoot, apiRoot)
	}

	return &client{
		api:     strings.TrimSuffix(apiRoot, "/"),
		options: options,
	}, nil
}

// build URL with path
func (c *client) apipath(path ...string) string {
	parts := []string{c.api}
	for _, p := range path {
		parts = append(parts, strings.TrimPrefix(strings.TrimSuffix(p, "/"), "/"))
	}
	return strings.Join(parts, "/")
}

func (c *client) getJSON(ctx context.Context, url string) (map[string]any, error) {
	doc := map[string]any{}
	if err := transfer.FetchJSON(ctx, url, &doc, c.options...); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMetadataFetch, err)
	}
	return doc, nil
}

func (c *client) GetRecord(ctx context.Context, id string) (map[string]any, error) {
	return c.getJSON(ctx, c.apipath("records", id))
}

func (c *client) GetCommunity(ctx context.Context, id string) (map[string]any, error) {
	return c.getJSON(ctx, c.apipath("communities", id))
}

func (c *client) FindRecords(ctx context.Context, communityID string) (map[string]any, error) {
	query := url.Values{}
	query.Set("q", fmt.Sprintf("communities:%s", communityID))
	query.Set("size", fmt.Sprintf("%d", CatalogBound))

	return c.getJSON(ctx, c.apipath("records")+"/?"+query.Encode())
}
