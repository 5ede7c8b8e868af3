// cmd/bot/main_test.go
package main

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rovshanmuradov/raydium-watcher/internal/dex/raydium"
)

const (
	wsol  = "So11111111111111111111111111111111111111112"
	token = "4k3Dyjzvzp8eMZWUXbBCjEvwSkkk59S5iCNLY3QrkX6R"
)

func TestBuildQuoteRequest(t *testing.T) {
	req, err := buildQuoteRequest(token, wsol, "SELL", "2.5", "0.001", "0.01", true)
	require.NoError(t, err)

	assert.Equal(t, token, req.TokenA.String())
	assert.Equal(t, wsol, req.TokenB.String())
	assert.Equal(t, raydium.SideSell, req.Side)
	assert.True(t, req.Amount.Equal(decimal.RequireFromString("2.5")))
	assert.True(t, req.Price.Equal(decimal.RequireFromString("0.001")))
	assert.True(t, req.Slippage.Equal(decimal.RequireFromString("0.01")))
	assert.True(t, req.IsTokenBAmount)
}

func TestBuildQuoteRequestErrors(t *testing.T) {
	tests := []struct {
		name                      string
		a, b, side, amount, price string
		slippage                  string
		wantContains              string
	}{
		{"bad tokenA", "nope", wsol, "buy", "1", "", "0", "tokenA"},
		{"bad tokenB", token, "", "buy", "1", "", "0", "tokenB"},
		{"bad side", token, wsol, "hold", "1", "", "0", "side"},
		{"bad amount", token, wsol, "buy", "x", "", "0", "amount"},
		{"bad price", token, wsol, "buy", "1", "p", "0", "price"},
		{"bad slippage", token, wsol, "buy", "1", "", "s", "slippage"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := buildQuoteRequest(tt.a, tt.b, tt.side, tt.amount, tt.price, tt.slippage, false)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantContains)
		})
	}
}
