// Package cache holds the report cache. Sales summaries are expensive to
// aggregate and change constantly, so they are cached with a short TTL and
// treated as advisory: a cache failure never fails the request.
package cache

import (
	"context"

	"saaspos/backend/internal/domain"
)

type ReportCache interface {
	GetSalesSummary(ctx context.Context, key string) (*domain.SalesSummary, bool)
	SetSalesSummary(ctx context.Context, key string, summary domain.SalesSummary)
	Close() error
}

// Noop satisfies ReportCache without storing anything. It stands in when
// redis is not configured.
type Noop struct{}

func (Noop) GetSalesSummary(context.Context, string) (*domain.SalesSummary, bool) {
	return nil, false
}

func (Noop) SetSalesSummary(context.Context, string, domain.SalesSummary) {}

func (Noop) Close() error { return nil }
