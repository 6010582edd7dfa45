package payment

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMethod_Valid(t *testing.T) {
	for _, m := range []Method{MethodCOD, MethodUPI, MethodCard, MethodNetBanking, MethodWallet} {
		assert.True(t, m.Valid(), m)
	}
	assert.False(t, Method("cheque").Valid())
}

func TestCashOnDelivery_Charge(t *testing.T) {
	orderID := uuid.New()
	out, err := CashOnDelivery{}.Charge(context.Background(), orderID, decimal.RequireFromString("1062.5"), MethodCOD)

	require.NoError(t, err)
	assert.True(t, out.Success)
	assert.Equal(t, "cod-"+orderID.String(), out.GatewayTxnID)
	assert.Equal(t, "1062.50", out.RawResponse["amount"])
}

func TestRecord(t *testing.T) {
	now := time.Date(2025, 2, 3, 4, 5, 6, 0, time.UTC)

	ok := Record(uuid.New(), uuid.New(), decimal.NewFromInt(10), MethodUPI, Outcome{Success: true, GatewayTxnID: "g1"}, now)
	assert.Equal(t, StatusSuccess, ok.Status)
	assert.True(t, strings.HasPrefix(ok.TransactionID, "TXN20250203040506"))
	assert.Equal(t, "g1", ok.GatewayTxnID)

	failed := Record(uuid.New(), uuid.New(), decimal.NewFromInt(10), MethodCard, Outcome{}, now)
	assert.Equal(t, StatusFailed, failed.Status)
	assert.NotEqual(t, ok.TransactionID, failed.TransactionID)
}
