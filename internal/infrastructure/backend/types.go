package backend

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// ConnectionStatus is the health of one linked institution.
type ConnectionStatus string

const (
	ConnectionConnected ConnectionStatus = "connected"
	ConnectionError     ConnectionStatus = "error"
)

// UnmarshalJSON folds the backend's status vocabulary onto Connected|Error.
func (s *ConnectionStatus) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("invalid connection status: %w", err)
	}
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "error", "failed", "login_required", "item_login_required", "disconnected":
		*s = ConnectionError
	default:
		*s = ConnectionConnected
	}
	return nil
}

// BankConnection is one linked institution, mirrored read-only from the backend.
type BankConnection struct {
	ID              string           `json:"id,omitempty"`
	InstitutionID   string           `json:"institutionId,omitempty"`
	InstitutionName string           `json:"institutionName"`
	Status          ConnectionStatus `json:"status"`
	CreatedAt       string           `json:"createdAt,omitempty"`
}

// LinkTokenResponse is returned by POST /plaid/link.
type LinkTokenResponse struct {
	LinkToken  string `json:"link_token"`
	Expiration string `json:"expiration,omitempty"`
}

// GetExpiration parses the optional expiration timestamp
func (r *LinkTokenResponse) GetExpiration() (*time.Time, error) {
	if r.Expiration == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, r.Expiration)
	if err != nil {
		return nil, fmt.Errorf("failed to parse expiration '%s': %w", r.Expiration, err)
	}
	return &t, nil
}

type exchangeRequest struct {
	PublicToken string `json:"public_token"`
}

// ExchangeResponse is returned by POST /plaid/exchange.
type ExchangeResponse struct {
	Integration BankConnection `json:"integration"`
}

// StatusResponse is returned by GET /plaid/status.
type StatusResponse struct {
	IsIntegrated    bool             `json:"isIntegrated"`
	BankConnections []BankConnection `json:"bankConnections"`
}

// Timestamp accepts RFC 3339 strings or epoch milliseconds. A value in any
// other shape decodes to the zero time and is kept in Invalid, so one bad
// field does not fail the whole response.
type Timestamp struct {
	time.Time
	invalid string
}

// Invalid returns the raw value that could not be parsed, if any.
func (t Timestamp) Invalid() string {
	return t.invalid
}

func (t *Timestamp) UnmarshalJSON(data []byte) error {
	t.invalid = ""
	data = bytes.TrimSpace(data)
	if len(data) == 0 || string(data) == "null" {
		t.Time = time.Time{}
		return nil
	}

	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		if s == "" {
			t.Time = time.Time{}
			return nil
		}
		parsed, err := time.Parse(time.RFC3339Nano, s)
		if err != nil {
			// Some stores drop the zone: "2025-09-28 03:00:00"
			parsed, err = time.Parse("2006-01-02 15:04:05", s)
			if err != nil {
				t.Time = time.Time{}
				t.invalid = s
				return nil
			}
		}
		t.Time = parsed
		return nil
	}

	ms, err := strconv.ParseInt(string(data), 10, 64)
	if err != nil {
		f, ferr := strconv.ParseFloat(string(data), 64)
		if ferr != nil {
			t.Time = time.Time{}
			t.invalid = string(data)
			return nil
		}
		ms = int64(f)
	}
	t.Time = time.UnixMilli(ms)
	return nil
}

func (t Timestamp) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(t.Time.Format(time.RFC3339Nano))
}

// HistoryMessage is one persisted advisor message. Content is kept raw so the
// advisor package classifies it exactly once.
type HistoryMessage struct {
	ID           string          `json:"id"`
	Type         string          `json:"type"`
	Role         string          `json:"role,omitempty"`
	Content      json.RawMessage `json:"content"`
	ResponseType string          `json:"response_type,omitempty"`
	ToolsUsed    []string        `json:"tools_used,omitempty"`
	Timestamp    Timestamp       `json:"timestamp"`
}

// HistoryResponse is returned by GET /ai-advisor/history.
type HistoryResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Data    struct {
		History []HistoryMessage `json:"history"`
	} `json:"data"`
}

type askRequest struct {
	Question string `json:"question"`
}

// AskData carries the advisor reply. AgentResponse is either a JSON string or
// a structured analysis object.
type AskData struct {
	AgentResponse json.RawMessage `json:"agent_response"`
	ResponseType  string          `json:"response_type,omitempty"`
	ToolsUsed     []string        `json:"tools_used,omitempty"`
}

// AskResponse is returned by POST /ai-advisor/ask.
type AskResponse struct {
	Success bool    `json:"success"`
	Message string  `json:"message,omitempty"`
	Error   string  `json:"error,omitempty"`
	Data    AskData `json:"data"`
}

// SuccessResponse is the {success} envelope of clear and delete calls.
type SuccessResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Account represents a linked account
type Account struct {
	ID               string           `json:"id"`
	Name             string           `json:"name"`
	OfficialName     string           `json:"officialName,omitempty"`
	Mask             string           `json:"mask,omitempty"`
	Type             string           `json:"type"`
	Subtype          string           `json:"subtype,omitempty"`
	InstitutionName  string           `json:"institutionName,omitempty"`
	CurrentBalance   decimal.Decimal  `json:"currentBalance"`
	AvailableBalance *decimal.Decimal `json:"availableBalance,omitempty"`
	CurrencyCode     string           `json:"isoCurrencyCode,omitempty"`
}

// AccountsResponse is returned by GET /plaid/accounts.
type AccountsResponse struct {
	Accounts []Account `json:"accounts"`
}

// Transaction represents one posted or pending transaction
type Transaction struct {
	ID           string          `json:"id"`
	AccountID    string          `json:"accountId"`
	Name         string          `json:"name"`
	MerchantName string          `json:"merchantName,omitempty"`
	Amount       decimal.Decimal `json:"amount"`
	DateString   string          `json:"date"` // "2025-09-28"
	Category     []string        `json:"category,omitempty"`
	Pending      bool            `json:"pending"`
	CurrencyCode string          `json:"isoCurrencyCode,omitempty"`
}

// GetDate parses and returns the transaction date
func (t *Transaction) GetDate() (*time.Time, error) {
	if t.DateString == "" {
		return nil, nil
	}
	parsed, err := time.Parse("2006-01-02", t.DateString)
	if err != nil {
		parsed, err = time.Parse(time.RFC3339, t.DateString)
		if err != nil {
			return nil, fmt.Errorf("failed to parse date '%s': %w", t.DateString, err)
		}
	}
	return &parsed, nil
}

// Pagination describes the page a transactions response covers.
type Pagination struct {
	Page    int  `json:"page"`
	Limit   int  `json:"limit"`
	Total   int  `json:"total"`
	HasMore bool `json:"hasMore"`
}

// TransactionsResponse is returned by GET /plaid/transactions.
type TransactionsResponse struct {
	Transactions []Transaction `json:"transactions"`
	Pagination   Pagination    `json:"pagination"`
}

// OK reports whether the connection is usable. A missing status counts as connected.
func (s ConnectionStatus) OK() bool {
	return s != ConnectionError
}
