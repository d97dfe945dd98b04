// Package ledger reads accounts and paginated transactions for the dashboard.
package ledger

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"finboard/internal/infrastructure/backend"
	"finboard/internal/shared/logging"
)

const (
	DefaultPageSize = 25
	MaxPageSize     = 500
)

// API is the slice of the backend the view needs.
type API interface {
	GetAccounts(ctx context.Context) (*backend.AccountsResponse, error)
	GetTransactions(ctx context.Context, page, limit int) (*backend.TransactionsResponse, error)
}

// Page selects a slice of transactions. Number is 1-based.
type Page struct {
	Number int
	Size   int
}

// TransactionPage is one fetched page.
type TransactionPage struct {
	Page    Page
	Items   []backend.Transaction
	Total   int
	HasMore bool
}

// Balances aggregates account balances.
type Balances struct {
	Assets      decimal.Decimal
	Liabilities decimal.Decimal
	NetWorth    decimal.Decimal
}

// Snapshot is what the dashboard shows on mount.
type Snapshot struct {
	Accounts     []backend.Account
	Balances     Balances
	Transactions TransactionPage
}

// View fetches ledger data on demand. It holds no state between calls.
type View struct {
	api      API
	pageSize int
	logger   logrus.FieldLogger
}

// NewView creates a view. pageSize is clamped to [1, MaxPageSize].
func NewView(api API, pageSize int, logger logrus.FieldLogger) *View {
	return &View{
		api:      api,
		pageSize: clampSize(pageSize),
		logger:   logging.Component(logger, "ledger"),
	}
}

func clampSize(size int) int {
	switch {
	case size <= 0:
		return DefaultPageSize
	case size > MaxPageSize:
		return MaxPageSize
	default:
		return size
	}
}

// Accounts lists every linked account.
func (v *View) Accounts(ctx context.Context) ([]backend.Account, error) {
	resp, err := v.api.GetAccounts(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get accounts: %w", err)
	}
	if resp == nil {
		return []backend.Account{}, nil
	}
	return resp.Accounts, nil
}

// Transactions fetches one page. A zero Page means the first page at the
// view's default size.
func (v *View) Transactions(ctx context.Context, p Page) (TransactionPage, error) {
	if p.Number < 1 {
		p.Number = 1
	}
	if p.Size <= 0 {
		p.Size = v.pageSize
	}
	p.Size = clampSize(p.Size)

	resp, err := v.api.GetTransactions(ctx, p.Number, p.Size)
	if err != nil {
		return TransactionPage{Page: p}, fmt.Errorf("failed to get transactions page %d: %w", p.Number, err)
	}
	if resp == nil {
		return TransactionPage{Page: p, Items: []backend.Transaction{}}, nil
	}

	page := TransactionPage{
		Page:    p,
		Items:   resp.Transactions,
		Total:   resp.Pagination.Total,
		HasMore: resp.Pagination.HasMore,
	}
	if page.Items == nil {
		page.Items = []backend.Transaction{}
	}
	// Older backends omit hasMore; derive it from the total.
	if !page.HasMore && page.Total > p.Number*p.Size {
		page.HasMore = true
	}

	v.logger.WithFields(logrus.Fields{
		"page":  p.Number,
		"items": len(page.Items),
		"total": page.Total,
	}).Debug("Transactions page loaded")
	return page, nil
}

// Load fetches accounts and the first transactions page concurrently.
func (v *View) Load(ctx context.Context) (*Snapshot, error) {
	var snap Snapshot

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		accounts, err := v.Accounts(gctx)
		if err != nil {
			return err
		}
		snap.Accounts = accounts
		snap.Balances = Summarize(accounts)
		return nil
	})
	g.Go(func() error {
		page, err := v.Transactions(gctx, Page{})
		if err != nil {
			return err
		}
		snap.Transactions = page
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return &snap, nil
}

// liabilityTypes are account types whose balance is owed.
var liabilityTypes = map[string]bool{
	"credit": true,
	"loan":   true,
}

// Summarize totals current balances into assets, liabilities and net worth.
func Summarize(accounts []backend.Account) Balances {
	var b Balances
	for _, a := range accounts {
		if liabilityTypes[strings.ToLower(a.Type)] {
			b.Liabilities = b.Liabilities.Add(a.CurrentBalance.Abs())
		} else {
			b.Assets = b.Assets.Add(a.CurrentBalance)
		}
	}
	b.NetWorth = b.Assets.Sub(b.Liabilities)
	return b
}

// Pager walks transaction pages in order.
type Pager struct {
	view *View
	size int
	next int
	done bool
}

// NewPager starts at page 1. size <= 0 uses the view's default.
func (v *View) NewPager(size int) *Pager {
	if size <= 0 {
		size = v.pageSize
	}
	return &Pager{view: v, size: clampSize(size), next: 1}
}

// Next fetches the following page. ok is false once the last page has been
// returned. A failed fetch can be retried by calling Next again.
func (p *Pager) Next(ctx context.Context) (page TransactionPage, ok bool, err error) {
	if p.done {
		return TransactionPage{}, false, nil
	}

	page, err = p.view.Transactions(ctx, Page{Number: p.next, Size: p.size})
	if err != nil {
		return page, false, err
	}

	p.next++
	if !page.HasMore || len(page.Items) == 0 {
		p.done = true
	}
	return page, true, nil
}

// Done reports whether every page has been returned.
func (p *Pager) Done() bool {
	return p.done
}
