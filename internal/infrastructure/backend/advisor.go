package backend

import (
	"context"
	"fmt"
	"net/http"

	"github.com/sirupsen/logrus"
)

// GetAdvisorHistory fetches the persisted conversation in server order.
func (c *Client) GetAdvisorHistory(ctx context.Context) (*HistoryResponse, error) {
	var resp HistoryResponse
	if _, err := c.do(ctx, request{method: http.MethodGet, path: advisorHistoryPath}, &resp); err != nil {
		return nil, err
	}
	if !resp.Success {
		return nil, fmt.Errorf("%w: history: %s", ErrRequestFailed, orDefault(resp.Message, "API returned success=false"))
	}
	for _, m := range resp.Data.History {
		if raw := m.Timestamp.Invalid(); raw != "" {
			c.logger.WithFields(logrus.Fields{"id": m.ID, "timestamp": raw}).Debug("Unparseable history timestamp, keeping message")
		}
	}
	return &resp, nil
}

// AskAdvisor sends one question. The server cannot abort an ask once received.
func (c *Client) AskAdvisor(ctx context.Context, question string) (*AskResponse, error) {
	var resp AskResponse
	req := request{
		method: http.MethodPost,
		path:   advisorAskPath,
		body:   askRequest{Question: question},
	}
	if _, err := c.do(ctx, req, &resp); err != nil {
		return nil, err
	}
	if !resp.Success {
		return nil, fmt.Errorf("%w: ask: %s", ErrRequestFailed, orDefault(resp.Error, orDefault(resp.Message, "API returned success=false")))
	}
	return &resp, nil
}

// ClearAdvisorHistory purges the server-side conversation.
func (c *Client) ClearAdvisorHistory(ctx context.Context) error {
	var resp SuccessResponse
	if _, err := c.do(ctx, request{method: http.MethodPost, path: advisorClearPath, body: struct{}{}}, &resp); err != nil {
		return err
	}
	if !resp.Success {
		return fmt.Errorf("%w: clear: %s", ErrRequestFailed, orDefault(resp.Error, orDefault(resp.Message, "API returned success=false")))
	}
	return nil
}

// DeleteAccount permanently removes the user's account on the backend.
func (c *Client) DeleteAccount(ctx context.Context) error {
	var resp SuccessResponse
	if _, err := c.do(ctx, request{method: http.MethodDelete, path: deleteAccountPath}, &resp); err != nil {
		return err
	}
	if !resp.Success {
		return fmt.Errorf("%w: delete account: %s", ErrRequestFailed, orDefault(resp.Error, orDefault(resp.Message, "API returned success=false")))
	}
	return nil
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
