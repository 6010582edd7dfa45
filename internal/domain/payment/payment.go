// Package payment records charge outcomes. The gateway protocol itself lives
// behind the Gateway interface.
package payment

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Method is how the customer pays.
type Method string

const (
	MethodCOD        Method = "cod"
	MethodUPI        Method = "upi"
	MethodCard       Method = "card"
	MethodNetBanking Method = "netbanking"
	MethodWallet     Method = "wallet"
)

// Valid reports whether m is a known method.
func (m Method) Valid() bool {
	switch m {
	case MethodCOD, MethodUPI, MethodCard, MethodNetBanking, MethodWallet:
		return true
	}
	return false
}

// Status is the state of a single payment attempt.
type Status string

const (
	StatusPending  Status = "pending"
	StatusSuccess  Status = "success"
	StatusFailed   Status = "failed"
	StatusRefunded Status = "refunded"
	// StatusNeedsRefund marks money captured for an order that could no
	// longer accept it.
	StatusNeedsRefund Status = "needs_refund"
)

// Outcome is what a gateway reports for a charge.
type Outcome struct {
	Success      bool
	GatewayTxnID string
	RawResponse  map[string]any
}

// Gateway charges a customer for an order.
type Gateway interface {
	Charge(ctx context.Context, orderID uuid.UUID, amount decimal.Decimal, method Method) (Outcome, error)
}

// Payment is one recorded charge attempt.
type Payment struct {
	ID              uuid.UUID
	TransactionID   string
	OrderID         uuid.UUID
	UserID          uuid.UUID
	Amount          decimal.Decimal
	Method          Method
	Status          Status
	GatewayTxnID    string
	GatewayResponse map[string]any
	CreatedAt       time.Time
}

// Record builds the Payment for an outcome.
func Record(orderID, userID uuid.UUID, amount decimal.Decimal, method Method, out Outcome, now time.Time) Payment {
	status := StatusFailed
	if out.Success {
		status = StatusSuccess
	}
	return Payment{
		ID:              uuid.New(),
		TransactionID:   fmt.Sprintf("TXN%s%s", now.UTC().Format("20060102150405"), uuid.NewString()[:8]),
		OrderID:         orderID,
		UserID:          userID,
		Amount:          amount,
		Method:          method,
		Status:          status,
		GatewayTxnID:    out.GatewayTxnID,
		GatewayResponse: out.RawResponse,
		CreatedAt:       now,
	}
}

// CashOnDelivery accepts every charge; money is collected by the courier.
type CashOnDelivery struct{}

var _ Gateway = CashOnDelivery{}

// Charge records a synthetic successful outcome.
func (CashOnDelivery) Charge(_ context.Context, orderID uuid.UUID, amount decimal.Decimal, method Method) (Outcome, error) {
	return Outcome{
		Success:      true,
		GatewayTxnID: "cod-" + orderID.String(),
		RawResponse: map[string]any{
			"gateway": "cod",
			"amount":  amount.StringFixed(2),
			"method":  string(method),
		},
	}, nil
}
