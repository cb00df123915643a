package services

import (
	"fmt"
	"reflect"
	"testing"

	"moneymind/internal/core"

	"github.com/shopspring/decimal"
)

func seqIDs(prefix string) IDGenerator {
	n := 0
	return IDFunc(func() string {
		n++
		return fmt.Sprintf("%s%d", prefix, n)
	})
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func fixture() core.Snapshot {
	return core.Snapshot{
		Accounts: []core.Account{
			{ID: "x", Name: "Checking", Type: core.Bank, Balance: dec("1000")},
			{ID: "y", Name: "Savings", Type: core.Bank, Balance: dec("250.50")},
			{ID: "z", Name: "Cash", Type: core.Cash, Balance: decimal.Zero},
		},
		Categories: []core.Category{
			{ID: "food", Name: "Food", Budget: dec("400")},
			{ID: "rent", Name: "Rent", Budget: dec("1200")},
			{ID: "salary", Name: "Salary"},
		},
		Settings: core.Settings{DefaultCurrency: "USD"},
	}
}

func balance(t *testing.T, snap core.Snapshot, id string) decimal.Decimal {
	t.Helper()
	a, ok := snap.AccountByID(id)
	if !ok {
		t.Fatalf("account %s not found", id)
	}
	return a.Balance
}

func assertBalance(t *testing.T, snap core.Snapshot, id, want string) {
	t.Helper()
	if got := balance(t, snap, id); !got.Equal(dec(want)) {
		t.Fatalf("balance of %s = %s, want %s", id, got, want)
	}
}

func sameBalances(a, b []core.Account) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].ID != b[i].ID || !a[i].Balance.Equal(b[i].Balance) {
			return false
		}
	}
	return true
}

func assertDeepEqual(t *testing.T, got, want any) {
	t.Helper()
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("values differ:\n got: %+v\nwant: %+v", got, want)
	}
}
