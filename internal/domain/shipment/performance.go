package shipment

import (
	"sort"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// CarrierPerformance aggregates delivered shipments of one carrier.
type CarrierPerformance struct {
	CarrierID       uuid.UUID
	Name            string
	Code            string
	Delivered       int
	Revenue         decimal.Decimal
	Cost            decimal.Decimal
	Profit          decimal.Decimal
	AvgDeliveryDays decimal.Decimal
}

// Performance summarizes delivered shipments per carrier. Every carrier is
// reported, including ones with no deliveries, ordered by name.
func Performance(carriers []Carrier, delivered []Shipment) []CarrierPerformance {
	type acc struct {
		CarrierPerformance
		timed int
		days  decimal.Decimal
	}
	byID := make(map[uuid.UUID]*acc, len(carriers))
	for _, c := range carriers {
		byID[c.ID] = &acc{CarrierPerformance: CarrierPerformance{
			CarrierID: c.ID,
			Name:      c.Name,
			Code:      c.Code,
		}}
	}

	for i := range delivered {
		s := &delivered[i]
		if s.Status != StatusDelivered || s.CarrierID == nil {
			continue
		}
		a, ok := byID[*s.CarrierID]
		if !ok {
			continue
		}
		a.Delivered++
		a.Revenue = a.Revenue.Add(s.ShippingCharged)
		a.Cost = a.Cost.Add(s.ShippingCost).Add(s.PackagingCost)
		if s.ShippedAt != nil && s.DeliveredAt != nil {
			a.timed++
			hours := s.DeliveredAt.Sub(*s.ShippedAt).Hours()
			a.days = a.days.Add(decimal.NewFromFloat(hours).Div(decimal.NewFromInt(24)))
		}
	}

	out := make([]CarrierPerformance, 0, len(byID))
	for _, a := range byID {
		a.Profit = a.Revenue.Sub(a.Cost)
		if a.timed > 0 {
			a.AvgDeliveryDays = a.days.Div(decimal.NewFromInt(int64(a.timed))).Round(1)
		}
		out = append(out, a.CarrierPerformance)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
