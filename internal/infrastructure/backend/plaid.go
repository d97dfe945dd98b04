package backend

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
)

// CreateLinkToken requests a one-time link token for the aggregator widget.
func (c *Client) CreateLinkToken(ctx context.Context) (*LinkTokenResponse, error) {
	var resp LinkTokenResponse
	if _, err := c.do(ctx, request{method: http.MethodPost, path: linkTokenPath, body: struct{}{}}, &resp); err != nil {
		return nil, err
	}
	if resp.LinkToken == "" {
		return nil, fmt.Errorf("%w: backend returned an empty link token", ErrRequestFailed)
	}
	return &resp, nil
}

// ExchangePublicToken trades the one-time public token for a durable connection.
func (c *Client) ExchangePublicToken(ctx context.Context, publicToken string) (*BankConnection, error) {
	var resp ExchangeResponse
	req := request{
		method: http.MethodPost,
		path:   exchangePath,
		body:   exchangeRequest{PublicToken: publicToken},
	}
	if _, err := c.do(ctx, req, &resp); err != nil {
		return nil, err
	}
	return &resp.Integration, nil
}

// GetIntegrationStatus fetches the linked institutions. A 404 surfaces as
// ErrNotFound; interpreting it is the caller's job.
func (c *Client) GetIntegrationStatus(ctx context.Context) (*StatusResponse, error) {
	var resp StatusResponse
	if _, err := c.do(ctx, request{method: http.MethodGet, path: statusPath}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// GetAccounts fetches every account across linked institutions.
func (c *Client) GetAccounts(ctx context.Context) (*AccountsResponse, error) {
	var resp AccountsResponse
	if _, err := c.do(ctx, request{method: http.MethodGet, path: accountsPath}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// GetTransactions fetches one page of transactions. Pages are 1-based.
func (c *Client) GetTransactions(ctx context.Context, page, limit int) (*TransactionsResponse, error) {
	query := url.Values{}
	query.Set("page", strconv.Itoa(page))
	query.Set("limit", strconv.Itoa(limit))

	var resp TransactionsResponse
	if _, err := c.do(ctx, request{method: http.MethodGet, path: transactionsPath, query: query}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}
