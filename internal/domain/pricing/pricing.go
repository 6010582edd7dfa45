// Package pricing computes shipping, tax and cost estimates for an order.
// The Policy is plain configuration passed to whoever needs it.
package pricing

import (
	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// Policy holds the store-wide pricing settings.
type Policy struct {
	// FreeShippingThreshold is the discounted subtotal at or above which
	// shipping is free.
	FreeShippingThreshold decimal.Decimal
	FlatShipping          decimal.Decimal
	TaxPercent            decimal.Decimal
	// PackagingCost is the per-order packaging estimate.
	PackagingCost decimal.Decimal
	// GatewayFeePercent is the payment processor's cut of the order total.
	GatewayFeePercent decimal.Decimal
	// DefaultCAC is the acquisition cost allocated to each order.
	DefaultCAC decimal.Decimal
}

// DefaultPolicy returns the settings the store launched with (INR).
func DefaultPolicy() Policy {
	return Policy{
		FreeShippingThreshold: decimal.NewFromInt(999),
		FlatShipping:          decimal.NewFromInt(49),
		TaxPercent:            decimal.NewFromInt(18),
		PackagingCost:         decimal.NewFromInt(25),
		GatewayFeePercent:     decimal.NewFromInt(2),
		DefaultCAC:            decimal.Zero,
	}
}

// Quote is the shipping and tax charged on an order.
type Quote struct {
	Shipping decimal.Decimal
	Tax      decimal.Decimal
}

// Quote computes shipping and tax for a subtotal that already has the coupon
// discount taken off.
func (p Policy) Quote(taxable decimal.Decimal) Quote {
	if taxable.IsNegative() {
		taxable = decimal.Zero
	}
	shipping := p.FlatShipping
	if taxable.GreaterThanOrEqual(p.FreeShippingThreshold) {
		shipping = decimal.Zero
	}
	return Quote{
		Shipping: shipping.Round(2),
		Tax:      taxable.Mul(p.TaxPercent).Div(hundred).Round(2),
	}
}

// Costs is the estimated cost side of an order beyond COGS.
type Costs struct {
	Packaging  decimal.Decimal
	GatewayFee decimal.Decimal
	CAC        decimal.Decimal
}

// EstimateCosts returns the cost estimates recorded when an order is created.
// Admins may overwrite them once real figures arrive.
func (p Policy) EstimateCosts(total decimal.Decimal) Costs {
	return Costs{
		Packaging:  p.PackagingCost.Round(2),
		GatewayFee: total.Mul(p.GatewayFeePercent).Div(hundred).Round(2),
		CAC:        p.DefaultCAC.Round(2),
	}
}
