package raydium

import (
	"math/big"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Пул 1000 A (9 знаков) против 50000 B (6 знаков): цена около 50 B за A.
func baseRequest() SwapQuoteRequest {
	return SwapQuoteRequest{
		AToB:      true,
		TokenA:    testAddr(0xA),
		TokenB:    testAddr(0xB),
		DecimalsA: 9,
		DecimalsB: 6,
		FeeBps:    25,
		ReservesA: bigInt("1000000000000"),
		ReservesB: bigInt("50000000000"),
	}
}

func TestCalcAMMAmount_ExactIn(t *testing.T) {
	req := baseRequest()
	req.AmountA = dec("1")

	res, err := CalcAMMAmount(req)
	require.NoError(t, err)

	assert.True(t, res.ExactIn)
	assert.Equal(t, req.TokenA, res.InToken)
	assert.Equal(t, req.TokenB, res.OutToken)
	assert.Equal(t, "1000000000", res.InAmountRaw.String())
	assert.Equal(t, "49825174", res.OutAmountRaw.String())
	assert.True(t, dec("49.825174").Equal(res.OutAmount), "out amount %s", res.OutAmount)
	assert.True(t, dec("49.825174").Equal(res.Price), "price %s", res.Price)
	assert.Equal(t, uint16(25), res.FeeBps)
	assert.False(t, res.Clamped)
}

func TestCalcAMMAmount_ExactOut(t *testing.T) {
	req := baseRequest()
	req.AmountB = dec("1")

	res, err := CalcAMMAmount(req)
	require.NoError(t, err)

	assert.False(t, res.ExactIn)
	assert.Equal(t, "1000000", res.OutAmountRaw.String())
	assert.Equal(t, "20050526", res.InAmountRaw.String())
	assert.True(t, dec("0.020050526").Equal(res.InAmount))
}

func TestCalcAMMAmount_ConstantProductInvariant(t *testing.T) {
	cases := []struct {
		name   string
		rin    string
		rout   string
		fee    uint16
		decIn  uint8
		decOut uint8
		amount string
	}{
		{"zero fee small trade", "1000000000000", "50000000000", 0, 9, 6, "1"},
		{"zero fee big trade", "80000000000", "3000000000000", 0, 9, 6, "5"},
		{"default fee", "1000000000000", "50000000000", 25, 9, 6, "2.5"},
		{"max fee", "1000000000000", "50000000000", 10000, 9, 6, "3"},
		{"equal decimals", "1000000000000000", "1000000000000000", 30, 6, 6, "0.000007"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := SwapQuoteRequest{
				AToB:      true,
				TokenA:    testAddr(1),
				TokenB:    testAddr(2),
				AmountA:   dec(tc.amount),
				DecimalsA: tc.decIn,
				DecimalsB: tc.decOut,
				FeeBps:    tc.fee,
				ReservesA: bigInt(tc.rin),
				ReservesB: bigInt(tc.rout),
			}
			res, err := CalcAMMAmount(req)
			if tc.fee == 10000 {
				// Нулевой выход при полной комиссии: цену не из чего считать.
				require.NoError(t, err)
				assert.Equal(t, int64(0), res.OutAmountRaw.Int64())
				return
			}
			require.NoError(t, err)

			rin, rout := bigInt(tc.rin), bigInt(tc.rout)
			k := new(big.Int).Mul(rin, rout)

			newIn := new(big.Int).Add(rin, res.InAmountRaw)
			after := new(big.Int).Mul(newIn, new(big.Int).Sub(rout, res.OutAmountRaw))
			assert.True(t, after.Cmp(k) >= 0, "invariant broken: %s < %s", after, k)

			if tc.fee == 0 {
				// Без комиссии ответ максимальный: ещё одна единица нарушает инвариант.
				tighter := new(big.Int).Sub(rout, res.OutAmountRaw)
				tighter.Sub(tighter, big.NewInt(1))
				tighter.Mul(tighter, newIn)
				assert.True(t, tighter.Cmp(k) < 0, "out is not maximal")
			}
		})
	}
}

func TestCalcAMMAmount_ConstantProductEquality(t *testing.T) {
	// 100 * 300 / (100 + 200) делится нацело: равенство при нулевой комиссии.
	res, err := CalcAMMAmount(SwapQuoteRequest{
		AToB:      true,
		AmountA:   dec("100"),
		FeeBps:    0,
		ReservesA: big.NewInt(200),
		ReservesB: big.NewInt(300),
	})
	require.NoError(t, err)
	assert.Equal(t, int64(100), res.OutAmountRaw.Int64())
	assert.Equal(t, int64(200*300), (200+100)*(300-res.OutAmountRaw.Int64()))
}

func TestCalcAMMAmount_RoundTrip(t *testing.T) {
	cases := []struct{ in, rin, rout string }{
		{"1", "1000000000000", "50000000000"},
		{"0.123456789", "1000000000000", "100000000000"},
		{"5", "80000000000", "3000000000000"},
		{"0.000000007", "1000000000000000", "1000000000000000"},
	}

	for _, tc := range cases {
		t.Run(tc.in, func(t *testing.T) {
			req := SwapQuoteRequest{
				AToB: true, DecimalsA: 9, DecimalsB: 9,
				ReservesA: bigInt(tc.rin), ReservesB: bigInt(tc.rout),
			}
			x := ToBaseUnits(dec(tc.in), 9)

			forward := req
			forward.AmountA = dec(tc.in)
			fwd, err := CalcAMMAmount(forward)
			require.NoError(t, err)

			backward := req
			backward.AmountB = fwd.OutAmount
			back, err := CalcAMMAmount(backward)
			require.NoError(t, err)

			// Обратный расчёт не превышает X, а на одну единицу выхода больше уже покрывает X.
			assert.True(t, back.InAmountRaw.Cmp(x) <= 0, "recovered %s > %s", back.InAmountRaw, x)

			nextOut := new(big.Int).Add(fwd.OutAmountRaw, big.NewInt(1))
			backward.AmountB = FromBaseUnits(nextOut, 9)
			upper, err := CalcAMMAmount(backward)
			require.NoError(t, err)
			assert.True(t, upper.InAmountRaw.Cmp(x) >= 0, "upper bound %s < %s", upper.InAmountRaw, x)
		})
	}
}

func TestCalcAMMAmount_DirectionSymmetry(t *testing.T) {
	x, y := testAddr(1), testAddr(2)
	ra, rb := bigInt("1000000000000"), bigInt("50000000000")

	aToB, err := CalcAMMAmount(SwapQuoteRequest{
		AToB: true, TokenA: x, TokenB: y, AmountA: dec("2.5"),
		DecimalsA: 9, DecimalsB: 6, FeeBps: 25, ReservesA: ra, ReservesB: rb,
	})
	require.NoError(t, err)

	// Та же сделка, записанная с переставленными A и B.
	bToA, err := CalcAMMAmount(SwapQuoteRequest{
		AToB: false, TokenA: y, TokenB: x, AmountB: dec("2.5"),
		DecimalsA: 6, DecimalsB: 9, FeeBps: 25, ReservesA: rb, ReservesB: ra,
	})
	require.NoError(t, err)

	assert.Equal(t, aToB.InToken, bToA.InToken)
	assert.Equal(t, aToB.OutToken, bToA.OutToken)
	assert.Equal(t, "124376558", aToB.OutAmountRaw.String())
	assert.Equal(t, 0, aToB.OutAmountRaw.Cmp(bToA.OutAmountRaw))

	product, _ := aToB.Price.Mul(bToA.Price).Float64()
	assert.InDelta(t, 1.0, product, 1e-12)
}

func TestCalcAMMAmount_Errors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(r *SwapQuoteRequest)
		want   error
	}{
		{"both amounts", func(r *SwapQuoteRequest) { r.AmountA, r.AmountB = dec("1"), dec("1") }, ErrAmbiguousAmount},
		{"no amount", func(r *SwapQuoteRequest) {}, ErrMissingAmount},
		{"negative amount", func(r *SwapQuoteRequest) { r.AmountA = dec("-1") }, ErrInvalidAmount},
		{"fee above denominator", func(r *SwapQuoteRequest) { r.AmountA = dec("1"); r.FeeBps = 10001 }, ErrInvalidFee},
		{"zero in reserves", func(r *SwapQuoteRequest) { r.AmountA = dec("1"); r.ReservesA = big.NewInt(0) }, ErrZeroReserves},
		{"nil out reserves", func(r *SwapQuoteRequest) { r.AmountA = dec("1"); r.ReservesB = nil }, ErrZeroReserves},
		{"drain whole out reserve", func(r *SwapQuoteRequest) { r.AmountB = dec("50000") }, ErrDivisionByZero},
		{"dust in floors to zero", func(r *SwapQuoteRequest) { r.AmountA = dec("0.0000000001") }, ErrInvalidAmount},
		{"dust out floors to zero", func(r *SwapQuoteRequest) { r.AmountB = dec("0.0000001") }, ErrInvalidAmount},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := baseRequest()
			tt.mutate(&req)
			res, err := CalcAMMAmount(req)
			assert.ErrorIs(t, err, tt.want)
			assert.Nil(t, res)
		})
	}
}

func TestCalcAMMAmount_ClampsNegative(t *testing.T) {
	req := baseRequest()
	// Больше, чем лежит в пуле: знаменатель уходит в минус.
	req.AmountB = dec("60000")

	res, err := CalcAMMAmount(req)
	require.NoError(t, err)
	assert.True(t, res.Clamped)
	assert.Equal(t, 0, res.InAmountRaw.Sign())
	assert.True(t, res.Price.IsZero())
}

func TestNormalizeDirection(t *testing.T) {
	req := baseRequest()
	req.AToB = false
	req.AmountB = dec("3")
	req.Price = dec("50")

	path, err := NormalizeDirection(req)
	require.NoError(t, err)

	assert.True(t, path.ExactIn)
	assert.Equal(t, req.TokenB, path.InToken)
	assert.Equal(t, req.TokenA, path.OutToken)
	assert.Equal(t, uint8(6), path.InDecimals)
	assert.Equal(t, uint8(9), path.OutDecimals)
	assert.Equal(t, req.ReservesB, path.InReserves)
	assert.Equal(t, req.ReservesA, path.OutReserves)
	assert.True(t, dec("0.02").Equal(path.PriceHint), "hint %s", path.PriceHint)

	req.AToB = true
	path, err = NormalizeDirection(req)
	require.NoError(t, err)
	assert.False(t, path.ExactIn, "amount on the out leg means exact-out")
	assert.True(t, dec("50").Equal(path.PriceHint))
}

func TestBaseUnitConversions(t *testing.T) {
	assert.Equal(t, "1234567", ToBaseUnits(dec("1.2345679"), 6).String())
	assert.Equal(t, "1234568", ToBaseUnitsCeil(dec("1.2345671"), 6).String())
	assert.Equal(t, "1000000000", ToBaseUnits(decimal.NewFromInt(1), 9).String())
	assert.True(t, dec("0.000123").Equal(FromBaseUnits(big.NewInt(123), 6)))
	assert.True(t, FromBaseUnits(nil, 9).IsZero())
}
