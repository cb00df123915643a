package services

import (
	"moneymind/internal/core"

	"github.com/shopspring/decimal"
)

// Sign selects whether a transaction's effect is applied or reverted.
type Sign int

const (
	Apply  Sign = 1
	Revert Sign = -1
)

// ApplyEffect returns a copy of accounts with the balance effect of tx applied
// with the given sign. Accounts the transaction does not reference are copied
// unchanged, and a reference to an unknown account is ignored.
func ApplyEffect(accounts []core.Account, tx core.Transaction, sign Sign) []core.Account {
	out := make([]core.Account, len(accounts))
	copy(out, accounts)

	amount := tx.Amount.Mul(decimal.NewFromInt(int64(sign)))
	switch tx.Type {
	case core.Income:
		adjust(out, tx.AccountID, amount)
	case core.Expense:
		adjust(out, tx.AccountID, amount.Neg())
	case core.Transfer:
		adjust(out, tx.AccountID, amount.Neg())
		adjust(out, tx.ToAccountID, amount)
	}
	return out
}

func adjust(accounts []core.Account, id string, delta decimal.Decimal) {
	for i := range accounts {
		if accounts[i].ID == id {
			accounts[i].Balance = accounts[i].Balance.Add(delta)
			return
		}
	}
}
