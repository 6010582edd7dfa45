// Package analytics aggregates delivered orders into unit economics.
package analytics

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/xenking/rimae-ledger/internal/domain/order"
)

// Summary totals revenue and costs over a set of delivered orders.
type Summary struct {
	TotalRevenue      decimal.Decimal
	TotalCOGS         decimal.Decimal
	TotalShippingCost decimal.Decimal
	TotalPackaging    decimal.Decimal
	TotalGatewayFees  decimal.Decimal
	TotalCAC          decimal.Decimal
	TotalCosts        decimal.Decimal
	GrossProfit       decimal.Decimal
	NetProfit         decimal.Decimal
	// ProfitMargin is net profit as a percentage of revenue.
	ProfitMargin  decimal.Decimal
	OrderCount    int
	AvgOrderValue decimal.Decimal
}

// MonthPoint is one calendar month (UTC) of the trend.
type MonthPoint struct {
	Month     time.Time
	Revenue   decimal.Decimal
	COGS      decimal.Decimal
	NetProfit decimal.Decimal
	Orders    int
}

// Label formats the month as YYYY-MM.
func (p MonthPoint) Label() string {
	return p.Month.Format("2006-01")
}

// Report is the unit-economics view.
type Report struct {
	Summary Summary
	Monthly []MonthPoint
}

var hundred = decimal.NewFromInt(100)

// Summarize aggregates delivered orders; anything else is ignored. Monthly
// points are grouped by the month the order was placed, oldest first.
func Summarize(orders []order.Order) Report {
	var (
		s      Summary
		months = map[time.Time]*MonthPoint{}
	)
	for i := range orders {
		o := &orders[i]
		if o.Status != order.StatusDelivered {
			continue
		}
		s.OrderCount++
		s.TotalRevenue = s.TotalRevenue.Add(o.TotalAmount)
		s.TotalCOGS = s.TotalCOGS.Add(o.COGS)
		s.TotalShippingCost = s.TotalShippingCost.Add(o.ShippingCost)
		s.TotalPackaging = s.TotalPackaging.Add(o.PackagingCost)
		s.TotalGatewayFees = s.TotalGatewayFees.Add(o.PaymentGatewayFee)
		s.TotalCAC = s.TotalCAC.Add(o.CAC)

		created := o.CreatedAt.UTC()
		key := time.Date(created.Year(), created.Month(), 1, 0, 0, 0, 0, time.UTC)
		p, ok := months[key]
		if !ok {
			p = &MonthPoint{Month: key}
			months[key] = p
		}
		p.Orders++
		p.Revenue = p.Revenue.Add(o.TotalAmount)
		p.COGS = p.COGS.Add(o.COGS)
		p.NetProfit = p.NetProfit.Add(o.NetProfit())
	}

	s.TotalCosts = s.TotalCOGS.
		Add(s.TotalShippingCost).
		Add(s.TotalPackaging).
		Add(s.TotalGatewayFees).
		Add(s.TotalCAC)
	s.GrossProfit = s.TotalRevenue.Sub(s.TotalCOGS)
	s.NetProfit = s.TotalRevenue.Sub(s.TotalCosts)
	if !s.TotalRevenue.IsZero() {
		s.ProfitMargin = s.NetProfit.Div(s.TotalRevenue).Mul(hundred).Round(2)
	}
	if s.OrderCount > 0 {
		s.AvgOrderValue = s.TotalRevenue.Div(decimal.NewFromInt(int64(s.OrderCount))).Round(2)
	}

	monthly := make([]MonthPoint, 0, len(months))
	for _, p := range months {
		monthly = append(monthly, *p)
	}
	sort.Slice(monthly, func(i, j int) bool { return monthly[i].Month.Before(monthly[j].Month) })

	return Report{Summary: s, Monthly: monthly}
}
