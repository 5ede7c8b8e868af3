// internal/dex/raydium/layout.go
package raydium

import (
	"fmt"

	"github.com/gagliardetto/solana-go"
)

// AccountField - семантическая роль аккаунта в транзакции создания пула.
type AccountField string

const (
	FieldPoolID           AccountField = "id"
	FieldAuthority        AccountField = "authority"
	FieldOpenOrders       AccountField = "openOrders"
	FieldTargetOrders     AccountField = "targetOrders"
	FieldMintA            AccountField = "mintA"
	FieldMintB            AccountField = "mintB"
	FieldVaultA           AccountField = "vault.A"
	FieldVaultB           AccountField = "vault.B"
	FieldMarketProgramID  AccountField = "marketProgramId"
	FieldMarketID         AccountField = "marketId"
	FieldMarketEventQueue AccountField = "marketEventQueue"
	FieldMarketBids       AccountField = "marketBids"
	FieldMarketAsks       AccountField = "marketAsks"
	FieldMarketBaseVault  AccountField = "marketBaseVault"
	FieldMarketQuoteVault AccountField = "marketQuoteVault"
)

// instructionFields и messageFields - роли, которые обязан описать каждый Layout.
var (
	instructionFields = []AccountField{
		FieldPoolID, FieldAuthority, FieldOpenOrders, FieldTargetOrders,
		FieldMintA, FieldMintB, FieldVaultA, FieldVaultB,
		FieldMarketProgramID, FieldMarketID,
	}
	messageFields = []AccountField{
		FieldMarketEventQueue, FieldMarketBids, FieldMarketAsks,
		FieldMarketBaseVault, FieldMarketQuoteVault,
	}
)

// Layout - версионированная таблица смещений аккаунтов.
//
// Instruction индексирует список аккаунтов инструкции программы ликвидности,
// Message индексирует общий список аккаунтов транзакции. Смена раскладки на
// стороне протокола - это новая запись таблицы, а не правка кода.
type Layout struct {
	Name        string
	Version     int
	ProgramID   solana.PublicKey
	Instruction map[AccountField]int
	Message     map[AccountField]int
}

// RaydiumV4Initialize2 - раскладка инструкции initialize2 программы AMM v4.
var RaydiumV4Initialize2 = Layout{
	Name:      "raydium-amm-v4/initialize2",
	Version:   1,
	ProgramID: RaydiumV4ProgramID,
	Instruction: map[AccountField]int{
		FieldPoolID:          4,
		FieldAuthority:       5,
		FieldOpenOrders:      6,
		FieldMintA:           8,
		FieldMintB:           9,
		FieldVaultA:          10,
		FieldVaultB:          11,
		FieldTargetOrders:    12,
		FieldMarketProgramID: 15,
		FieldMarketID:        16,
	},
	Message: map[AccountField]int{
		FieldMarketEventQueue: 3,
		FieldMarketBids:       4,
		FieldMarketAsks:       5,
		FieldMarketBaseVault:  6,
		FieldMarketQuoteVault: 7,
	},
}

// Validate проверяет, что раскладка описывает все роли и не содержит отрицательных смещений.
func (l Layout) Validate() error {
	if l.ProgramID.IsZero() {
		return fmt.Errorf("layout %s: empty program id", l.Name)
	}
	check := func(table map[AccountField]int, required []AccountField, scope string) error {
		for _, field := range required {
			offset, ok := table[field]
			if !ok {
				return fmt.Errorf("layout %s: %s offset for %s is missing", l.Name, scope, field)
			}
			if offset < 0 {
				return fmt.Errorf("layout %s: negative %s offset for %s", l.Name, scope, field)
			}
		}
		return nil
	}
	if err := check(l.Instruction, instructionFields, "instruction"); err != nil {
		return err
	}
	return check(l.Message, messageFields, "message")
}

// MinInstructionAccounts - объявленная минимальная длина списка аккаунтов инструкции.
func (l Layout) MinInstructionAccounts() int {
	return minLength(l.Instruction)
}

// MinMessageAccounts - объявленная минимальная длина списка аккаунтов транзакции.
func (l Layout) MinMessageAccounts() int {
	return minLength(l.Message)
}

func minLength(table map[AccountField]int) int {
	n := 0
	for _, offset := range table {
		if offset+1 > n {
			n = offset + 1
		}
	}
	return n
}

// String для логов
func (l Layout) String() string {
	return fmt.Sprintf("%s@v%d", l.Name, l.Version)
}
