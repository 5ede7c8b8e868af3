// internal/blockchain/solbc/client.go
package solbc

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/gagliardetto/solana-go"
	solanarpc "github.com/gagliardetto/solana-go/rpc"
	"github.com/rovshanmuradov/raydium-watcher/internal/blockchain"
	"github.com/rovshanmuradov/raydium-watcher/internal/blockchain/solbc/rpc"
	"go.uber.org/zap"
)

// Определение ошибок
var (
	ErrAccountNotFound = errors.New("account not found")
)

// IsAccountNotFoundError проверяет, является ли ошибка "not found"
func IsAccountNotFoundError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrAccountNotFound) || errors.Is(err, solanarpc.ErrNotFound) {
		return true
	}
	return strings.Contains(strings.ToLower(err.Error()), "not found")
}

// Client – тонкий адаптер к Solana RPC: чтение транзакций и аккаунтов с переключением узлов.
type Client struct {
	rpc        *rpc.RPCClient
	commitment solanarpc.CommitmentType
	logger     *zap.Logger
}

var (
	_ blockchain.TransactionFetcher = (*Client)(nil)
	_ blockchain.AccountReader      = (*Client)(nil)
	_ blockchain.AccountInfoReader  = (*Client)(nil)
)

// NewClient создаёт клиент для списка узлов.
func NewClient(urls []string, commitment solanarpc.CommitmentType, logger *zap.Logger, opts ...rpc.Option) (*Client, error) {
	pool, err := rpc.NewClient(urls, logger, opts...)
	if err != nil {
		return nil, err
	}
	if commitment == "" {
		commitment = solanarpc.CommitmentConfirmed
	}
	return &Client{
		rpc:        pool,
		commitment: commitment,
		logger:     logger.Named("solbc-client"),
	}, nil
}

// GetParsedTransaction получает транзакцию в jsonParsed виде.
// Возвращает (nil, nil), если узел не знает подпись.
func (c *Client) GetParsedTransaction(ctx context.Context, sig solana.Signature) (*blockchain.ParsedTransaction, error) {
	maxVersion := uint64(0)
	var result *solanarpc.GetParsedTransactionResult

	err := c.rpc.ExecuteWithRetry(ctx, "getTransaction", func(ctx context.Context, client *solanarpc.Client) error {
		var err error
		result, err = client.GetParsedTransaction(ctx, sig, &solanarpc.GetParsedTransactionOpts{
			Commitment:                     c.commitment,
			MaxSupportedTransactionVersion: &maxVersion,
		})
		return err
	})
	if errors.Is(err, solanarpc.ErrNotFound) {
		c.logger.Debug("Transaction not found", zap.String("signature", sig.String()))
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get transaction %s: %w", sig, err)
	}

	return convertParsedTransaction(sig, result)
}

// GetMultipleAccounts читает аккаунты одним запросом, отсутствующие - nil.
func (c *Client) GetMultipleAccounts(ctx context.Context, keys []solana.PublicKey) ([]*blockchain.AccountData, error) {
	var result *solanarpc.GetMultipleAccountsResult
	err := c.rpc.ExecuteWithRetry(ctx, "getMultipleAccounts", func(ctx context.Context, client *solanarpc.Client) error {
		var err error
		result, err = client.GetMultipleAccountsWithOpts(ctx, keys, &solanarpc.GetMultipleAccountsOpts{
			Encoding:   solana.EncodingBase64,
			Commitment: c.commitment,
		})
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("get multiple accounts: %w", err)
	}
	if result == nil || len(result.Value) != len(keys) {
		return nil, fmt.Errorf("get multiple accounts: expected %d accounts in response", len(keys))
	}

	out := make([]*blockchain.AccountData, len(keys))
	for i, acc := range result.Value {
		out[i] = convertAccount(acc)
	}
	return out, nil
}

// GetAccountInfo получает информацию об аккаунте.
func (c *Client) GetAccountInfo(ctx context.Context, key solana.PublicKey) (*blockchain.AccountData, error) {
	var result *solanarpc.GetAccountInfoResult
	err := c.rpc.ExecuteWithRetry(ctx, "getAccountInfo", func(ctx context.Context, client *solanarpc.Client) error {
		var err error
		result, err = client.GetAccountInfoWithOpts(ctx, key, &solanarpc.GetAccountInfoOpts{
			Encoding:   solana.EncodingBase64,
			Commitment: c.commitment,
		})
		return err
	})
	if errors.Is(err, solanarpc.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrAccountNotFound, key)
	}
	if err != nil {
		c.logger.Debug("GetAccountInfo error",
			zap.String("pubkey", key.String()),
			zap.Error(err))
		return nil, err
	}

	acc := convertAccount(result.Value)
	if acc == nil {
		return nil, fmt.Errorf("%w: %s", ErrAccountNotFound, key)
	}
	return acc, nil
}

// Close закрывает соединения с узлами.
func (c *Client) Close() error {
	return c.rpc.Close()
}

func convertAccount(acc *solanarpc.Account) *blockchain.AccountData {
	if acc == nil {
		return nil
	}
	out := &blockchain.AccountData{Owner: acc.Owner}
	if acc.Data != nil {
		out.Data = acc.Data.GetBinary()
	}
	return out
}

// convertParsedTransaction переводит ответ RPC в модель blockchain.
func convertParsedTransaction(sig solana.Signature, res *solanarpc.GetParsedTransactionResult) (*blockchain.ParsedTransaction, error) {
	if res == nil || res.Transaction == nil {
		return nil, nil
	}

	msg := res.Transaction.Message
	tx := &blockchain.ParsedTransaction{
		Signature:    sig,
		Slot:         res.Slot,
		AccountKeys:  make([]solana.PublicKey, len(msg.AccountKeys)),
		Instructions: make([]blockchain.ParsedInstruction, 0, len(msg.Instructions)),
	}
	for i, acc := range msg.AccountKeys {
		tx.AccountKeys[i] = acc.PublicKey
	}
	for _, ix := range msg.Instructions {
		if ix == nil {
			continue
		}
		tx.Instructions = append(tx.Instructions, blockchain.ParsedInstruction{
			ProgramID: ix.ProgramId,
			Accounts:  ix.Accounts,
		})
	}

	if res.Meta == nil {
		return tx, nil
	}
	tx.Err = res.Meta.Err
	tx.LogMessages = res.Meta.LogMessages

	tx.PostTokenBalances = make([]blockchain.TokenBalance, 0, len(res.Meta.PostTokenBalances))
	for _, b := range res.Meta.PostTokenBalances {
		if b.UiTokenAmount == nil {
			continue
		}
		amount, err := strconv.ParseUint(b.UiTokenAmount.Amount, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("token balance %d: invalid amount %q: %w", b.AccountIndex, b.UiTokenAmount.Amount, err)
		}
		balance := blockchain.TokenBalance{
			AccountIndex: b.AccountIndex,
			Mint:         b.Mint,
			Amount:       amount,
			Decimals:     b.UiTokenAmount.Decimals,
		}
		if b.Owner != nil {
			balance.Owner = *b.Owner
		}
		tx.PostTokenBalances = append(tx.PostTokenBalances, balance)
	}
	return tx, nil
}
