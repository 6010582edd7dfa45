// Package report renders analytics for download.
package report

import (
	"io"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/tealeg/xlsx"

	"github.com/xenking/rimae-ledger/internal/domain/analytics"
)

// ContentType is the MIME type of the workbooks written here.
const ContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

const moneyFormat = "#,##0.00"

// WriteEconomics renders rep as a workbook with a Summary and a Monthly sheet.
func WriteEconomics(w io.Writer, rep *analytics.Report) error {
	file := xlsx.NewFile()

	summary, err := file.AddSheet("Summary")
	if err != nil {
		return errors.Wrap(err, "add summary sheet")
	}
	s := rep.Summary
	for _, line := range []struct {
		label string
		value decimal.Decimal
	}{
		{"Total revenue", s.TotalRevenue},
		{"COGS", s.TotalCOGS},
		{"Shipping cost", s.TotalShippingCost},
		{"Packaging", s.TotalPackaging},
		{"Gateway fees", s.TotalGatewayFees},
		{"Customer acquisition", s.TotalCAC},
		{"Total costs", s.TotalCosts},
		{"Gross profit", s.GrossProfit},
		{"Net profit", s.NetProfit},
		{"Profit margin %", s.ProfitMargin},
		{"Average order value", s.AvgOrderValue},
	} {
		row := summary.AddRow()
		row.AddCell().SetString(line.label)
		row.AddCell().SetFloatWithFormat(line.value.InexactFloat64(), moneyFormat)
	}
	row := summary.AddRow()
	row.AddCell().SetString("Orders")
	row.AddCell().SetInt(s.OrderCount)

	monthly, err := file.AddSheet("Monthly")
	if err != nil {
		return errors.Wrap(err, "add monthly sheet")
	}
	header := monthly.AddRow()
	for _, h := range []string{"Month", "Orders", "Revenue", "COGS", "Net profit"} {
		header.AddCell().SetString(h)
	}
	for _, p := range rep.Monthly {
		row := monthly.AddRow()
		row.AddCell().SetString(p.Label())
		row.AddCell().SetInt(p.Orders)
		row.AddCell().SetFloatWithFormat(p.Revenue.InexactFloat64(), moneyFormat)
		row.AddCell().SetFloatWithFormat(p.COGS.InexactFloat64(), moneyFormat)
		row.AddCell().SetFloatWithFormat(p.NetProfit.InexactFloat64(), moneyFormat)
	}

	if err := file.Write(w); err != nil {
		return errors.Wrap(err, "write workbook")
	}
	return nil
}
