package backend

import (
	"context"
)

// API defines the calls the client core makes against the backend.
type API interface {
	Health(ctx context.Context) error

	CreateLinkToken(ctx context.Context) (*LinkTokenResponse, error)
	ExchangePublicToken(ctx context.Context, publicToken string) (*BankConnection, error)
	GetIntegrationStatus(ctx context.Context) (*StatusResponse, error)
	GetAccounts(ctx context.Context) (*AccountsResponse, error)
	GetTransactions(ctx context.Context, page, limit int) (*TransactionsResponse, error)

	GetAdvisorHistory(ctx context.Context) (*HistoryResponse, error)
	AskAdvisor(ctx context.Context, question string) (*AskResponse, error)
	ClearAdvisorHistory(ctx context.Context) error

	DeleteAccount(ctx context.Context) error
}
