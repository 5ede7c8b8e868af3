// internal/server/types.go
package server

import (
	"github.com/rovshanmuradov/raydium-watcher/internal/dex/raydium"
	"github.com/shopspring/decimal"
)

// ErrorResponse - единый формат ошибок API.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    int    `json:"code"`
	Details any    `json:"details,omitempty"`
}

type HealthResponse struct {
	OK    bool   `json:"ok"`
	Store string `json:"store"`
}

// PoolResponse - пул, найденный по адресу или паре минтов.
type PoolResponse struct {
	Source  string           `json:"source,omitempty"`
	FeeBps  uint16           `json:"fee_bps,omitempty"`
	PoolKey *raydium.PoolKey `json:"pool_key"`
}

type QuoteResponse struct {
	PoolID    string          `json:"pool_id"`
	Source    string          `json:"source"`
	FeeBps    uint16          `json:"fee_bps"`
	InToken   string          `json:"in_token"`
	OutToken  string          `json:"out_token"`
	AToB      bool            `json:"a_to_b"`
	ExactIn   bool            `json:"exact_in"`
	AmountIn  decimal.Decimal `json:"amount_in"`
	AmountOut decimal.Decimal `json:"amount_out"`
	Price     decimal.Decimal `json:"price"`
	// Заданы только при ненулевом slippage
	MinAmountOut *decimal.Decimal `json:"min_amount_out,omitempty"`
	MaxAmountIn  *decimal.Decimal `json:"max_amount_in,omitempty"`
	Clamped      bool             `json:"clamped,omitempty"`
}

// NewQuoteResponse переводит котировку в формат API.
func NewQuoteResponse(q *raydium.Quote) QuoteResponse {
	resp := QuoteResponse{
		PoolID:    q.PoolKey.ID.String(),
		Source:    q.PoolAddress.Source,
		FeeBps:    q.FeeBps,
		InToken:   q.InToken.String(),
		OutToken:  q.OutToken.String(),
		AToB:      q.AToB,
		ExactIn:   q.ExactIn,
		AmountIn:  q.InAmount,
		AmountOut: q.OutAmount,
		Price:     q.Price,
		Clamped:   q.Clamped,
	}
	if !q.MinAmountOut.IsZero() {
		v := q.MinAmountOut
		resp.MinAmountOut = &v
	}
	if !q.MaxAmountIn.IsZero() {
		v := q.MaxAmountIn
		resp.MaxAmountIn = &v
	}
	return resp
}
