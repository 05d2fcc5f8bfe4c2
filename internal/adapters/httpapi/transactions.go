package httpapi

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strconv"

	"github.com/ramppay/ramppay-sync-go/internal/domain"
)

// GetTransaction fetches the authoritative record for one transaction. A 404
// is returned as *domain.NotFoundError carrying the requested id.
func (c *Client) GetTransaction(ctx context.Context, id string) (*domain.Transaction, error) {
	var txn domain.Transaction
	err := c.doJSON(ctx, http.MethodGet, "/transactions/"+id, nil, &txn)
	if err != nil {
		var nf *domain.NotFoundError
		if errors.As(err, &nf) {
			return nil, &domain.NotFoundError{ID: id}
		}
		return nil, err
	}
	return &txn, nil
}

// ListTransactions returns a page of the user's transactions, newest first.
func (c *Client) ListTransactions(ctx context.Context, limit, offset int) ([]domain.Transaction, error) {
	var out struct {
		Transactions []domain.Transaction `json:"transactions"`
	}
	q := url.Values{}
	q.Set("limit", strconv.Itoa(limit))
	q.Set("offset", strconv.Itoa(offset))
	if err := c.doJSON(ctx, http.MethodGet, "/transactions?"+q.Encode(), nil, &out); err != nil {
		return nil, err
	}
	return out.Transactions, nil
}

// GetStatistics returns the aggregate dashboard counters and a bounded list
// of recent transactions.
func (c *Client) GetStatistics(ctx context.Context) (*domain.Statistics, error) {
	var stats domain.Statistics
	if err := c.doJSON(ctx, http.MethodGet, "/transactions/statistics", nil, &stats); err != nil {
		return nil, err
	}
	return &stats, nil
}

// GetRate returns a conversion preview for the given fiat amount.
func (c *Client) GetRate(ctx context.Context, fiatAmount float64, fiatCurrency string) (*domain.RateQuote, error) {
	var quote domain.RateQuote
	q := url.Values{}
	q.Set("amount", strconv.FormatFloat(fiatAmount, 'f', -1, 64))
	q.Set("currency", fiatCurrency)
	if err := c.doJSON(ctx, http.MethodGet, "/rates?"+q.Encode(), nil, &quote); err != nil {
		return nil, err
	}
	return &quote, nil
}

// CreatePayment initiates a payment through the selected hosted provider and
// returns the new transaction id plus the provider's widget session
// reference.
func (c *Client) CreatePayment(ctx context.Context, req *domain.CreatePaymentRequest) (*domain.CreatePaymentResponse, error) {
	var resp domain.CreatePaymentResponse
	if err := c.doJSON(ctx, http.MethodPost, "/payments", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}
