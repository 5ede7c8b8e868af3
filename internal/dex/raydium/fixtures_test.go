package raydium

import (
	"math/big"

	"github.com/gagliardetto/solana-go"
	"github.com/rovshanmuradov/raydium-watcher/internal/blockchain"
	"github.com/shopspring/decimal"
)

// testAddr возвращает синтетический адрес, заполненный байтом n.
func testAddr(n byte) solana.PublicKey {
	var key solana.PublicKey
	for i := range key {
		key[i] = n
	}
	return key
}

func bigInt(s string) *big.Int {
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		panic("bad big int literal: " + s)
	}
	return v
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

// fixtureInitTx строит транзакцию создания пула: на позиции i инструкции Raydium
// лежит addr<i> (addr4..addr16 по раскладке), аккаунты сообщения - addr100..addr107.
func fixtureInitTx() *blockchain.ParsedTransaction {
	return fixtureInitTxWithPool(4)
}

// fixtureInitTxWithPool - то же, но с произвольным байтом адреса пула.
func fixtureInitTxWithPool(poolByte byte) *blockchain.ParsedTransaction {
	accounts := make([]solana.PublicKey, 17)
	for i := range accounts {
		accounts[i] = testAddr(byte(i))
	}
	accounts[4] = testAddr(poolByte)
	message := make([]solana.PublicKey, 8)
	for i := range message {
		message[i] = testAddr(byte(100 + i))
	}

	mintA, mintB := accounts[8], accounts[9]
	vaultA, vaultB := accounts[10], accounts[11]

	return &blockchain.ParsedTransaction{
		Signature:   solana.Signature{1, 2, 3},
		AccountKeys: append(message, vaultA, vaultB),
		Instructions: []blockchain.ParsedInstruction{
			{ProgramID: solana.ComputeBudget, Accounts: nil},
			{ProgramID: RaydiumV4ProgramID, Accounts: accounts},
		},
		PostTokenBalances: []blockchain.TokenBalance{
			{AccountIndex: 8, Mint: mintA, Amount: 79_005_359_057, Decimals: 9},
			{AccountIndex: 9, Mint: mintB, Amount: 206_900_000_000_000, Decimals: 6},
		},
	}
}
