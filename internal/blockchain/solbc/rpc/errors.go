// internal/blockchain/solbc/rpc/errors.go
package rpc

import (
	"errors"
	"fmt"
)

var (
	ErrNoRPCNodes = errors.New("no RPC nodes configured")
	// ErrTimeout - истёк общий таймаут запроса вместе с повторами.
	ErrTimeout = errors.New("rpc request timeout")
)

// Error - последняя неудачная попытка: узел, метод и номер попытки.
type Error struct {
	Method  string
	NodeURL string
	Attempt int
	Err     error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s via %s (attempt %d): %v", e.Method, e.NodeURL, e.Attempt, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}
