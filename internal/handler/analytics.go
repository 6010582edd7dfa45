package handler

import (
	"bytes"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"

	"github.com/xenking/rimae-ledger/internal/domain/analytics"
	"github.com/xenking/rimae-ledger/internal/report"
)

func reportRange(r *http.Request) (analytics.Range, error) {
	from, err := queryTime(r, "from")
	if err != nil {
		return analytics.Range{}, err
	}
	to, err := queryTime(r, "to")
	if err != nil {
		return analytics.Range{}, err
	}
	rng := analytics.Range{From: from, To: to}
	return rng, rng.Validate()
}

func (h *Handler) unitEconomics(w http.ResponseWriter, r *http.Request) error {
	rng, err := reportRange(r)
	if err != nil {
		return err
	}
	rep, err := h.svc.Analytics.UnitEconomics(r.Context(), rng)
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeReport(e, rep) })
}

// unitEconomicsXLSX renders the report as a workbook. It is built in memory
// so a render failure can still be reported as JSON.
func (h *Handler) unitEconomicsXLSX(w http.ResponseWriter, r *http.Request) error {
	rng, err := reportRange(r)
	if err != nil {
		return err
	}
	rep, err := h.svc.Analytics.UnitEconomics(r.Context(), rng)
	if err != nil {
		return err
	}
	var buf bytes.Buffer
	if err := report.WriteEconomics(&buf, rep); err != nil {
		return errors.Wrap(err, "render workbook")
	}
	w.Header().Set("Content-Type", report.ContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", "unit-economics.xlsx"))
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.WriteHeader(http.StatusOK)
	_, err = buf.WriteTo(w)
	return err
}

func (h *Handler) dashboard(w http.ResponseWriter, r *http.Request) error {
	rng, err := reportRange(r)
	if err != nil {
		return err
	}
	d, err := h.svc.Analytics.Dashboard(r.Context(), rng)
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.ObjStart()
		e.FieldStart("economics")
		encodeReport(e, &d.Economics)
		e.FieldStart("carriers")
		encodeList(e, d.Carriers, encodeCarrierPerformance)
		e.FieldStart("low_stock")
		encodeList(e, d.LowStock, encodeInventory)
		e.ObjEnd()
	})
}

func encodeReport(e *jx.Encoder, rep *analytics.Report) {
	s := rep.Summary
	e.ObjStart()
	e.FieldStart("summary")
	e.ObjStart()
	fieldMoney(e, "total_revenue", s.TotalRevenue)
	fieldMoney(e, "total_cogs", s.TotalCOGS)
	fieldMoney(e, "total_shipping_cost", s.TotalShippingCost)
	fieldMoney(e, "total_packaging_cost", s.TotalPackaging)
	fieldMoney(e, "total_gateway_fees", s.TotalGatewayFees)
	fieldMoney(e, "total_cac", s.TotalCAC)
	fieldMoney(e, "total_costs", s.TotalCosts)
	fieldMoney(e, "gross_profit", s.GrossProfit)
	fieldMoney(e, "net_profit", s.NetProfit)
	fieldMoney(e, "profit_margin", s.ProfitMargin)
	fieldInt(e, "order_count", s.OrderCount)
	fieldMoney(e, "avg_order_value", s.AvgOrderValue)
	e.ObjEnd()

	e.FieldStart("monthly_trend")
	encodeList(e, rep.Monthly, func(e *jx.Encoder, p *analytics.MonthPoint) {
		e.ObjStart()
		fieldStr(e, "month", p.Label())
		fieldMoney(e, "revenue", p.Revenue)
		fieldMoney(e, "cogs", p.COGS)
		fieldMoney(e, "net_profit", p.NetProfit)
		fieldInt(e, "orders", p.Orders)
		e.ObjEnd()
	})
	e.ObjEnd()
}
