package ledger

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"finboard/internal/infrastructure/backend"
	"finboard/internal/shared/logging"
)

// MockAPI implements API for testing
type MockAPI struct {
	GetAccountsFunc     func(ctx context.Context) (*backend.AccountsResponse, error)
	GetTransactionsFunc func(ctx context.Context, page, limit int) (*backend.TransactionsResponse, error)
}

func (m *MockAPI) GetAccounts(ctx context.Context) (*backend.AccountsResponse, error) {
	if m.GetAccountsFunc != nil {
		return m.GetAccountsFunc(ctx)
	}
	return &backend.AccountsResponse{}, nil
}

func (m *MockAPI) GetTransactions(ctx context.Context, page, limit int) (*backend.TransactionsResponse, error) {
	if m.GetTransactionsFunc != nil {
		return m.GetTransactionsFunc(ctx, page, limit)
	}
	return &backend.TransactionsResponse{}, nil
}

// pagedAPI serves total synthetic transactions.
func pagedAPI(total int, hasMore bool) *MockAPI {
	return &MockAPI{
		GetTransactionsFunc: func(_ context.Context, page, limit int) (*backend.TransactionsResponse, error) {
			start := (page - 1) * limit
			var items []backend.Transaction
			for i := start; i < start+limit && i < total; i++ {
				items = append(items, backend.Transaction{
					ID:     fmt.Sprintf("tx-%d", i),
					Amount: decimal.NewFromInt(int64(i)),
				})
			}
			return &backend.TransactionsResponse{
				Transactions: items,
				Pagination: backend.Pagination{
					Page:    page,
					Limit:   limit,
					Total:   total,
					HasMore: hasMore && start+limit < total,
				},
			}, nil
		},
	}
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestTransactions_Defaults(t *testing.T) {
	var gotPage, gotLimit int
	api := &MockAPI{
		GetTransactionsFunc: func(_ context.Context, page, limit int) (*backend.TransactionsResponse, error) {
			gotPage, gotLimit = page, limit
			return &backend.TransactionsResponse{}, nil
		},
	}
	v := NewView(api, 0, logging.Discard())

	page, err := v.Transactions(context.Background(), Page{})
	require.NoError(t, err)
	assert.Equal(t, 1, gotPage)
	assert.Equal(t, DefaultPageSize, gotLimit)
	assert.NotNil(t, page.Items)
	assert.False(t, page.HasMore)

	_, err = v.Transactions(context.Background(), Page{Number: 3, Size: 10000})
	require.NoError(t, err)
	assert.Equal(t, 3, gotPage)
	assert.Equal(t, MaxPageSize, gotLimit)
}

func TestTransactions_HasMoreDerivedFromTotal(t *testing.T) {
	v := NewView(pagedAPI(30, false), 10, logging.Discard())

	page, err := v.Transactions(context.Background(), Page{Number: 2})
	require.NoError(t, err)
	assert.Len(t, page.Items, 10)
	assert.Equal(t, 30, page.Total)
	assert.True(t, page.HasMore)

	page, err = v.Transactions(context.Background(), Page{Number: 3})
	require.NoError(t, err)
	assert.False(t, page.HasMore)
}

func TestTransactions_Error(t *testing.T) {
	api := &MockAPI{
		GetTransactionsFunc: func(context.Context, int, int) (*backend.TransactionsResponse, error) {
			return nil, &backend.APIError{Status: 401}
		},
	}
	v := NewView(api, 10, logging.Discard())

	_, err := v.Transactions(context.Background(), Page{})
	assert.ErrorIs(t, err, backend.ErrAuthExpired)
}

func TestPager_WalksAllPages(t *testing.T) {
	v := NewView(pagedAPI(23, true), 10, logging.Discard())
	p := v.NewPager(0)

	var ids []string
	pages := 0
	for {
		page, ok, err := p.Next(context.Background())
		require.NoError(t, err)
		if !ok {
			break
		}
		pages++
		for _, tx := range page.Items {
			ids = append(ids, tx.ID)
		}
	}

	assert.Equal(t, 3, pages)
	assert.Len(t, ids, 23)
	assert.Equal(t, "tx-0", ids[0])
	assert.Equal(t, "tx-22", ids[22])
	assert.True(t, p.Done())
}

func TestPager_RetryAfterError(t *testing.T) {
	var calls int32
	inner := pagedAPI(15, true)
	api := &MockAPI{
		GetTransactionsFunc: func(ctx context.Context, page, limit int) (*backend.TransactionsResponse, error) {
			if atomic.AddInt32(&calls, 1) == 2 {
				return nil, backend.ErrNetworkUnavailable
			}
			return inner.GetTransactions(ctx, page, limit)
		},
	}
	p := NewView(api, 10, logging.Discard()).NewPager(10)

	_, ok, err := p.Next(context.Background())
	require.NoError(t, err)
	require.True(t, ok)

	_, ok, err = p.Next(context.Background())
	assert.ErrorIs(t, err, backend.ErrNetworkUnavailable)
	assert.False(t, ok)

	page, ok, err := p.Next(context.Background())
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 2, page.Page.Number)
	assert.Len(t, page.Items, 5)
	assert.True(t, p.Done())
}

func TestSummarize(t *testing.T) {
	accounts := []backend.Account{
		{Type: "depository", CurrentBalance: dec("1200.50")},
		{Type: "investment", CurrentBalance: dec("10000")},
		{Type: "credit", CurrentBalance: dec("450.25")},
		{Type: "Loan", CurrentBalance: dec("-3000")},
	}

	b := Summarize(accounts)
	assert.True(t, dec("11200.50").Equal(b.Assets), b.Assets.String())
	assert.True(t, dec("3450.25").Equal(b.Liabilities), b.Liabilities.String())
	assert.True(t, dec("7750.25").Equal(b.NetWorth), b.NetWorth.String())
}

func TestLoad(t *testing.T) {
	api := pagedAPI(3, true)
	api.GetAccountsFunc = func(context.Context) (*backend.AccountsResponse, error) {
		return &backend.AccountsResponse{Accounts: []backend.Account{
			{ID: "acc-1", Type: "depository", CurrentBalance: dec("100")},
		}}, nil
	}
	v := NewView(api, 25, logging.Discard())

	snap, err := v.Load(context.Background())
	require.NoError(t, err)
	assert.Len(t, snap.Accounts, 1)
	assert.True(t, dec("100").Equal(snap.Balances.NetWorth))
	assert.Len(t, snap.Transactions.Items, 3)
}

func TestLoad_FailureCancelsSibling(t *testing.T) {
	api := &MockAPI{
		GetAccountsFunc: func(context.Context) (*backend.AccountsResponse, error) {
			return nil, errors.New("boom")
		},
		GetTransactionsFunc: func(ctx context.Context, _, _ int) (*backend.TransactionsResponse, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		},
	}
	v := NewView(api, 25, logging.Discard())

	snap, err := v.Load(context.Background())
	assert.Nil(t, snap)
	assert.ErrorContains(t, err, "boom")
}
