package postgres

import (
	"context"
	"sort"

	"saaspos/backend/internal/domain"
)

// SalesSummary aggregates transactions, orders and ledger entries in the
// query's date range. The caller resolves the report period to concrete
// start and end times before calling.
func (s *Store) SalesSummary(ctx context.Context, query domain.SalesSummaryQuery) (domain.SalesSummary, error) {
	summary := domain.SalesSummary{
		Period:            query.Period,
		IncomeByCategory:  map[string]float64{},
		ExpenseByCategory: map[string]float64{},
		ItemsSold:         []domain.ItemSales{},
		CategoryBreakdown: []domain.CategorySales{},
		HourlyData:        []domain.HourlySales{},
	}

	dateWhere := func(col string) (string, []any) {
		where := ""
		args := []any{}
		if query.StartDate != nil {
			args = append(args, *query.StartDate)
			where += " AND " + col + " >= " + placeholder(len(args))
		}
		if query.EndDate != nil {
			args = append(args, *query.EndDate)
			where += " AND " + col + " <= " + placeholder(len(args))
		}
		return where, args
	}

	// Revenue and paid/unpaid counts from transaction headers.
	where, args := dateWhere("date")
	rows, err := s.db.QueryContext(ctx, `SELECT total, status FROM transactions WHERE true`+where, args...)
	if err != nil {
		return summary, err
	}
	for rows.Next() {
		var total float64
		var status string
		if err := rows.Scan(&total, &status); err != nil {
			rows.Close()
			return summary, err
		}
		summary.TransactionCount++
		if status == domain.PayStatusPaid {
			summary.PaidTransactionCount++
			summary.TotalRevenue += total
		} else {
			summary.UnpaidTransactionCount++
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return summary, err
	}

	// Ledger breakdown. Sales income restates transaction revenue, so it is
	// excluded from additional income.
	where, args = dateWhere("date")
	rows, err = s.db.QueryContext(ctx, `SELECT type, category, amount FROM income_expenses WHERE true`+where, args...)
	if err != nil {
		return summary, err
	}
	for rows.Next() {
		var typ, category string
		var amount float64
		if err := rows.Scan(&typ, &category, &amount); err != nil {
			rows.Close()
			return summary, err
		}
		if typ == domain.LedgerIncome {
			summary.IncomeByCategory[category] += amount
			if category != domain.LedgerCategorySales {
				summary.AdditionalIncome += amount
			}
		} else {
			summary.ExpenseByCategory[category] += amount
			summary.TotalExpenses += amount
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return summary, err
	}

	// Open order volume in the same window.
	where, args = dateWhere("created_at")
	rows, err = s.db.QueryContext(ctx, `SELECT total FROM orders WHERE true`+where, args...)
	if err != nil {
		return summary, err
	}
	for rows.Next() {
		var total float64
		if err := rows.Scan(&total); err != nil {
			rows.Close()
			return summary, err
		}
		summary.OrderCount++
		summary.OrderTotal += total
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return summary, err
	}

	// Per-item and per-category sales from transaction lines.
	where, args = dateWhere("t.date")
	itemQuery := `
		SELECT ti.product_name, COALESCE(ti.product_id, ''), COALESCE(p.category, ''),
		       SUM(ti.quantity), SUM(ti.quantity * ti.price), AVG(ti.price), COUNT(DISTINCT t.id)
		FROM transaction_items ti
		JOIN transactions t ON t.id = ti.transaction_id
		LEFT JOIN products p ON p.id = ti.product_id
		WHERE true` + where
	if query.Category != "" {
		args = append(args, query.Category)
		itemQuery += " AND p.category = " + placeholder(len(args))
	}
	itemQuery += `
		GROUP BY ti.product_name, ti.product_id, p.category
		ORDER BY SUM(ti.quantity) DESC`

	rows, err = s.db.QueryContext(ctx, itemQuery, args...)
	if err != nil {
		return summary, err
	}
	categoryAgg := map[string]*domain.CategorySales{}
	for rows.Next() {
		var it domain.ItemSales
		if err := rows.Scan(&it.ProductName, &it.ProductID, &it.Category, &it.Quantity, &it.Revenue, &it.AvgPrice, &it.OrderCount); err != nil {
			rows.Close()
			return summary, err
		}
		it.Revenue = domain.Round2(it.Revenue)
		it.AvgPrice = domain.Round2(it.AvgPrice)
		summary.ItemsSold = append(summary.ItemsSold, it)
		summary.TotalItemsSold += it.Quantity

		key := it.Category
		if key == "" {
			key = "uncategorized"
		}
		agg := categoryAgg[key]
		if agg == nil {
			agg = &domain.CategorySales{Category: key}
			categoryAgg[key] = agg
		}
		agg.Quantity += it.Quantity
		agg.Revenue = domain.Round2(agg.Revenue + it.Revenue)
		agg.UniqueProducts++
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return summary, err
	}
	for _, agg := range categoryAgg {
		summary.CategoryBreakdown = append(summary.CategoryBreakdown, *agg)
	}
	sort.Slice(summary.CategoryBreakdown, func(i, j int) bool {
		return summary.CategoryBreakdown[i].Revenue > summary.CategoryBreakdown[j].Revenue
	})

	// Hourly profile: header counts and revenue, then items sold.
	where, args = dateWhere("date")
	rows, err = s.db.QueryContext(ctx, `
		SELECT EXTRACT(HOUR FROM date)::int AS hour, COUNT(*), COALESCE(SUM(total), 0)
		FROM transactions WHERE true`+where+`
		GROUP BY hour ORDER BY hour`, args...)
	if err != nil {
		return summary, err
	}
	hourly := map[int]*domain.HourlySales{}
	for rows.Next() {
		var h domain.HourlySales
		if err := rows.Scan(&h.Hour, &h.TransactionCount, &h.Revenue); err != nil {
			rows.Close()
			return summary, err
		}
		h.Revenue = domain.Round2(h.Revenue)
		hourly[h.Hour] = &h
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return summary, err
	}

	where, args = dateWhere("t.date")
	rows, err = s.db.QueryContext(ctx, `
		SELECT EXTRACT(HOUR FROM t.date)::int AS hour, COALESCE(SUM(ti.quantity), 0)
		FROM transaction_items ti
		JOIN transactions t ON t.id = ti.transaction_id
		WHERE true`+where+`
		GROUP BY hour`, args...)
	if err != nil {
		return summary, err
	}
	for rows.Next() {
		var hour, sold int
		if err := rows.Scan(&hour, &sold); err != nil {
			rows.Close()
			return summary, err
		}
		if h := hourly[hour]; h != nil {
			h.ItemsSold = sold
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return summary, err
	}

	hours := make([]int, 0, len(hourly))
	for h := range hourly {
		hours = append(hours, h)
	}
	sort.Ints(hours)
	for _, h := range hours {
		summary.HourlyData = append(summary.HourlyData, *hourly[h])
	}

	summary.TotalRevenue = domain.Round2(summary.TotalRevenue)
	summary.TotalExpenses = domain.Round2(summary.TotalExpenses)
	summary.AdditionalIncome = domain.Round2(summary.AdditionalIncome)
	summary.OrderTotal = domain.Round2(summary.OrderTotal)
	summary.TotalIncome = domain.Round2(summary.TotalRevenue + summary.AdditionalIncome)
	summary.NetProfit = domain.Round2(summary.TotalIncome - summary.TotalExpenses)
	if summary.PaidTransactionCount > 0 {
		summary.AverageOrderValue = domain.Round2(summary.TotalRevenue / float64(summary.PaidTransactionCount))
	}
	return summary, nil
}
