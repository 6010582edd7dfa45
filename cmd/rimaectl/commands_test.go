package main

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/rimae-ledger/internal/domain/auth"
	"github.com/xenking/rimae-ledger/internal/domain/inventory"
)

func TestPrincipal(t *testing.T) {
	id := uuid.MustParse("33333333-3333-3333-3333-333333333333")

	p, err := principal(id.String(), "customer")
	require.NoError(t, err)
	assert.Equal(t, auth.Principal{UserID: id, Role: auth.RoleCustomer}, p)

	p, err = principal("", "admin")
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, p.UserID)
	assert.True(t, p.IsAdmin())

	_, err = principal(id.String(), "root")
	require.Error(t, err)
	_, err = principal("not-a-uuid", "admin")
	require.Error(t, err)
}

func TestParseRange(t *testing.T) {
	r, err := parseRange("", "")
	require.NoError(t, err)
	assert.Nil(t, r.From)
	assert.Nil(t, r.To)

	r, err = parseRange("2026-01-01", "2026-02-01T00:00:00Z")
	require.NoError(t, err)
	require.NotNil(t, r.From)
	require.NotNil(t, r.To)
	assert.Equal(t, time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), *r.From)
	assert.Equal(t, time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC), *r.To)

	_, err = parseRange("2026-03-01", "2026-02-01")
	require.Error(t, err)
	_, err = parseRange("yesterday", "")
	require.Error(t, err)
}

func TestWriteLowStock(t *testing.T) {
	var buf bytes.Buffer
	rows := []inventory.Inventory{{
		ID:               uuid.MustParse("44444444-4444-4444-4444-444444444444"),
		SKU:              "RIM-OUD-NOIR-50",
		ProductName:      "Oud Noir",
		Quantity:         9,
		ReservedQuantity: 2,
		ReorderLevel:     10,
		ReorderQuantity:  50,
	}}
	require.NoError(t, writeLowStock(&buf, rows))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.True(t, strings.HasPrefix(lines[0], "ID"))
	assert.Equal(t,
		[]string{"44444444-4444-4444-4444-444444444444", "RIM-OUD-NOIR-50", "Oud", "Noir", "7", "10", "50"},
		strings.Fields(lines[1]),
	)
}

func TestTokenCommand(t *testing.T) {
	t.Setenv("RIMAE_AUTH_JWT_SECRET", "test-secret")
	id := uuid.MustParse("55555555-5555-5555-5555-555555555555")

	var out bytes.Buffer
	root := newRootCmd(&cli{})
	root.SetOut(&out)
	root.SetArgs([]string{"token", "--user", id.String(), "--role", "customer", "--ttl", "1h"})
	require.NoError(t, root.ExecuteContext(context.Background()))

	p, err := auth.NewVerifier([]byte("test-secret")).Verify(strings.TrimSpace(out.String()))
	require.NoError(t, err)
	assert.Equal(t, id, p.UserID)
	assert.Equal(t, auth.RoleCustomer, p.Role)
}

func TestTokenCommandRequiresSecret(t *testing.T) {
	t.Setenv("RIMAE_AUTH_JWT_SECRET", "")

	root := newRootCmd(&cli{})
	root.SetOut(&bytes.Buffer{})
	root.SetArgs([]string{"token"})
	require.Error(t, root.ExecuteContext(context.Background()))
}
