// internal/dex/raydium/math.go
package raydium

import (
	"fmt"
	"math/big"

	"github.com/gagliardetto/solana-go"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"
)

// SwapQuoteRequest - входные данные для расчёта по кривой x*y=k.
//
// Токены всегда называются A и B, направление задаётся флагом AToB.
// Из AmountA/AmountB должна быть задана ровно одна сторона: сторона входного
// токена даёт exact-in, сторона выходного токена даёт exact-out.
type SwapQuoteRequest struct {
	AToB      bool
	TokenA    solana.PublicKey
	TokenB    solana.PublicKey
	AmountA   decimal.Decimal
	AmountB   decimal.Decimal
	DecimalsA uint8
	DecimalsB uint8
	FeeBps    uint16
	// Резервы в минимальных единицах
	ReservesA *big.Int
	ReservesB *big.Int
	// Price - необязательная подсказка цены, всегда "B за A".
	Price decimal.Decimal
}

// SwapPath - запрос, приведённый к виду in/out.
type SwapPath struct {
	AToB        bool
	ExactIn     bool
	InToken     solana.PublicKey
	OutToken    solana.PublicKey
	InDecimals  uint8
	OutDecimals uint8
	InReserves  *big.Int
	OutReserves *big.Int
	// Amount - заданная сторона сделки (вход при ExactIn, иначе выход).
	Amount    decimal.Decimal
	PriceHint decimal.Decimal
}

// SwapQuoteResult - результат расчёта.
type SwapQuoteResult struct {
	AToB         bool
	ExactIn      bool
	InToken      solana.PublicKey
	OutToken     solana.PublicKey
	InAmount     decimal.Decimal
	OutAmount    decimal.Decimal
	InAmountRaw  *big.Int
	OutAmountRaw *big.Int
	// Price - выход за вход для A->B, обратная величина для B->A. Не бывает отрицательной.
	Price     decimal.Decimal
	PriceHint decimal.Decimal
	FeeBps    uint16
	// Clamped - промежуточное значение ушло в минус и было обнулено.
	Clamped bool
}

// NormalizeDirection выводит in/out токены, резервы и точности из флага AToB,
// чтобы формула кривой была записана один раз для обоих направлений.
func NormalizeDirection(req SwapQuoteRequest) (SwapPath, error) {
	inAmount := lo.Ternary(req.AToB, req.AmountA, req.AmountB)
	outAmount := lo.Ternary(req.AToB, req.AmountB, req.AmountA)

	hasIn, hasOut := !inAmount.IsZero(), !outAmount.IsZero()
	switch {
	case hasIn && hasOut:
		return SwapPath{}, ErrAmbiguousAmount
	case !hasIn && !hasOut:
		return SwapPath{}, ErrMissingAmount
	}

	path := SwapPath{
		AToB:        req.AToB,
		ExactIn:     hasIn,
		InToken:     lo.Ternary(req.AToB, req.TokenA, req.TokenB),
		OutToken:    lo.Ternary(req.AToB, req.TokenB, req.TokenA),
		InDecimals:  lo.Ternary(req.AToB, req.DecimalsA, req.DecimalsB),
		OutDecimals: lo.Ternary(req.AToB, req.DecimalsB, req.DecimalsA),
		InReserves:  lo.Ternary(req.AToB, req.ReservesA, req.ReservesB),
		OutReserves: lo.Ternary(req.AToB, req.ReservesB, req.ReservesA),
		Amount:      lo.Ternary(hasIn, inAmount, outAmount),
	}

	// Подсказка приходит как "B за A", для B->A её нужно перевернуть.
	if !req.Price.IsZero() {
		path.PriceHint = req.Price
		if !req.AToB {
			path.PriceHint = decimal.NewFromInt(1).Div(req.Price)
		}
	}
	return path, nil
}

// CalcAMMAmount считает exact-in или exact-out сделку по кривой постоянного произведения.
//
// Вся арифметика кривой идёт в big.Int; decimal используется только на границе
// для перевода человеко-читаемых сумм в минимальные единицы и обратно.
func CalcAMMAmount(req SwapQuoteRequest) (*SwapQuoteResult, error) {
	if req.FeeBps > FeeDenominator {
		return nil, fmt.Errorf("%w: %d", ErrInvalidFee, req.FeeBps)
	}

	path, err := NormalizeDirection(req)
	if err != nil {
		return nil, err
	}
	if path.Amount.IsNegative() {
		return nil, fmt.Errorf("%w: %s", ErrInvalidAmount, path.Amount)
	}
	if path.InReserves == nil || path.OutReserves == nil ||
		path.InReserves.Sign() <= 0 || path.OutReserves.Sign() <= 0 {
		return nil, ErrZeroReserves
	}

	feeFactor := big.NewInt(int64(FeeDenominator - int(req.FeeBps)))
	denominator := big.NewInt(FeeDenominator)

	result := &SwapQuoteResult{
		AToB:      path.AToB,
		ExactIn:   path.ExactIn,
		InToken:   path.InToken,
		OutToken:  path.OutToken,
		PriceHint: path.PriceHint,
		FeeBps:    req.FeeBps,
	}

	if path.ExactIn {
		// out = in * reserve_out * (10000 - fee) / 10000 / (in + reserve_in)
		in := ToBaseUnits(path.Amount, path.InDecimals)
		if in.Sign() == 0 {
			return nil, fmt.Errorf("%w: %s is below one base unit", ErrInvalidAmount, path.Amount)
		}
		out := new(big.Int).Mul(in, path.OutReserves)
		out.Mul(out, feeFactor)
		out.Quo(out, denominator)

		divisor := new(big.Int).Add(in, path.InReserves)
		if divisor.Sign() == 0 {
			return nil, ErrDivisionByZero
		}
		out.Quo(out, divisor)

		result.InAmountRaw, result.OutAmountRaw = in, out
	} else {
		// in = out * reserve_in / ((reserve_out - out) * (10000 - fee) / 10000)
		out := ToBaseUnits(path.Amount, path.OutDecimals)
		if out.Sign() == 0 {
			return nil, fmt.Errorf("%w: %s is below one base unit", ErrInvalidAmount, path.Amount)
		}
		divisor := new(big.Int).Sub(path.OutReserves, out)
		divisor.Mul(divisor, feeFactor)
		divisor.Quo(divisor, denominator)
		if divisor.Sign() == 0 {
			return nil, ErrDivisionByZero
		}

		in := new(big.Int).Mul(out, path.InReserves)
		in.Quo(in, divisor)

		result.InAmountRaw, result.OutAmountRaw = in, out
	}

	// Выход за пределы резерва даёт отрицательный вход: обнуляем, не пробрасываем.
	if result.InAmountRaw.Sign() < 0 {
		result.InAmountRaw = new(big.Int)
		result.Clamped = true
	}
	if result.OutAmountRaw.Sign() < 0 {
		result.OutAmountRaw = new(big.Int)
		result.Clamped = true
	}

	result.InAmount = FromBaseUnits(result.InAmountRaw, path.InDecimals)
	result.OutAmount = FromBaseUnits(result.OutAmountRaw, path.OutDecimals)

	if result.Clamped {
		result.Price = decimal.Zero
		return result, nil
	}

	price, err := resolvedPrice(path.AToB, result.InAmount, result.OutAmount)
	if err != nil {
		return nil, err
	}
	result.Price = price
	return result, nil
}

// resolvedPrice делит уже округлённые суммы, а не сырые целые.
func resolvedPrice(aToB bool, in, out decimal.Decimal) (decimal.Decimal, error) {
	numerator, divisor := out, in
	if !aToB {
		numerator, divisor = in, out
	}
	if divisor.IsZero() {
		return decimal.Zero, ErrDivisionByZero
	}
	price := numerator.Div(divisor)
	if price.IsNegative() {
		return decimal.Zero, nil
	}
	return price, nil
}

// ToBaseUnits переводит сумму в минимальные единицы: floor(amount * 10^decimals).
func ToBaseUnits(amount decimal.Decimal, decimals uint8) *big.Int {
	return amount.Shift(int32(decimals)).Floor().BigInt()
}

// ToBaseUnitsCeil - то же, но с округлением вверх. Используется для резервов.
func ToBaseUnitsCeil(amount decimal.Decimal, decimals uint8) *big.Int {
	return amount.Shift(int32(decimals)).Ceil().BigInt()
}

// FromBaseUnits переводит минимальные единицы обратно в человеко-читаемую сумму.
func FromBaseUnits(raw *big.Int, decimals uint8) decimal.Decimal {
	if raw == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(raw, -int32(decimals))
}
