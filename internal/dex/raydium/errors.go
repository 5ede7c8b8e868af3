// internal/dex/raydium/errors.go
package raydium

import (
	"errors"
	"fmt"

	"github.com/gagliardetto/solana-go"
)

// Структурные ошибки
var (
	ErrPoolNotFound         = errors.New("pool not found")
	ErrMalformedTransaction = errors.New("malformed pool-creation transaction")
	ErrAuthorityNotFound    = errors.New("market authority derivation exhausted")
	ErrReservesNotFound     = errors.New("initial reserves not found in post balances")
)

// Ошибки политики котирования
var (
	ErrNotReferencePair = errors.New("pair does not include the reference asset")
	ErrAmbiguousAmount  = errors.New("both exact-in and exact-out amounts provided")
	ErrMissingAmount    = errors.New("no swap amount provided")
	ErrInvalidAmount    = errors.New("swap amount must be positive")
	ErrZeroReserves     = errors.New("pool reserves are zero")
	ErrInvalidFee       = errors.New("fee must be within [0, 10000] bps")
)

// Арифметические ошибки
var (
	ErrDivisionByZero = errors.New("division by zero")
)

// ErrListenerClosed возвращается, когда поток событий закрыт до первого обнаружения.
var ErrListenerClosed = errors.New("discovery listener closed")

// ValidationError представляет ошибку валидации
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error for %s: %s", e.Field, e.Message)
}

// DiscoveryError фиксирует, на каком этапе сорвалось обнаружение пула.
type DiscoveryError struct {
	Stage     ListenerState
	Signature solana.Signature
	Err       error
}

func (e *DiscoveryError) Error() string {
	return fmt.Sprintf("discovery failed at %s (tx %s): %v", e.Stage, e.Signature, e.Err)
}

func (e *DiscoveryError) Unwrap() error {
	return e.Err
}

// QuoteError представляет ошибку при расчёте котировки
type QuoteError struct {
	Stage string
	Err   error
}

func (e *QuoteError) Error() string {
	return fmt.Sprintf("quote error at %s: %v", e.Stage, e.Err)
}

func (e *QuoteError) Unwrap() error {
	return e.Err
}
