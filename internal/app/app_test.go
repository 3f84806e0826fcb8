package app

import (
	"context"
	"testing"

	"github.com/openshelter/lending-engine/internal/config"
	"github.com/openshelter/lending-engine/internal/domain"
	"github.com/openshelter/lending-engine/internal/ledger"
	"github.com/openshelter/lending-engine/internal/logging"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func memoryConfig() *config.Config {
	cfg := config.Default()
	cfg.Database.Driver = config.DatabaseDriverMemory
	cfg.Redis.Enabled = false
	return cfg
}

func TestNewWithMemoryDriver(t *testing.T) {
	a, err := New(context.Background(), memoryConfig(), logging.Discard())
	require.NoError(t, err)
	defer a.Close()

	assert.Nil(t, a.DB)
	assert.Nil(t, a.Redis)
	assert.Nil(t, a.RedisCmdable())
	assert.IsType(t, &ledger.Simulated{}, a.Ledger)

	loan, err := a.Services.Loans.Apply(context.Background(), &domain.CreateLoanRequest{
		WalletAddress: "0xabc",
		Amount:        decimal.NewFromInt(100),
		TermMonths:    2,
	})
	require.NoError(t, err)

	got, err := a.Services.Loans.Get(context.Background(), loan.ID)
	require.NoError(t, err)
	assert.Equal(t, loan.ID, got.ID)
}

func TestNewWithHTTPLedger(t *testing.T) {
	cfg := memoryConfig()
	cfg.Ledger.Mode = config.LedgerModeHTTP
	cfg.Ledger.URL = "http://ledger.invalid"

	a, err := New(context.Background(), cfg, logging.Discard())
	require.NoError(t, err)
	defer a.Close()

	assert.IsType(t, &ledger.HTTPGateway{}, a.Ledger)
}
