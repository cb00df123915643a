package services

import (
	"encoding/json"
	"errors"
	"testing"

	"moneymind/internal/core"

	"github.com/shopspring/decimal"
)

func groceries() core.Transaction {
	return core.Transaction{
		Type:        core.Expense,
		Amount:      dec("42.10"),
		Date:        core.NewDate(2024, 3, 5),
		AccountID:   "x",
		CategoryID:  "food",
		Description: "Groceries",
		Tags:        []string{" weekly ", "food", "weekly"},
	}
}

func mustMutate(t *testing.T, c *Coordinator, snap core.Snapshot, m Mutation) (core.Snapshot, string) {
	t.Helper()
	res, err := c.Do(snap, m)
	if err != nil {
		t.Fatalf("mutation %s %s failed: %v", m.Action, m.Kind, err)
	}
	return res.Snapshot, res.ID
}

func TestMutate_AddTransaction(t *testing.T) {
	c := NewCoordinator(seqIDs("id-"))
	snap := fixture()

	got, id := mustMutate(t, c, snap, Mutation{Kind: core.KindTransaction, Action: core.ActionAdd, Payload: groceries()})

	if id != "id-1" {
		t.Errorf("id = %q, want fresh id", id)
	}
	tx, ok := got.TransactionByID(id)
	if !ok {
		t.Fatal("added transaction not found")
	}
	assertDeepEqual(t, tx.Tags, []string{"weekly", "food"})
	assertBalance(t, got, "x", "957.90")
	assertBalance(t, snap, "x", "1000")
	if len(snap.Transactions) != 0 {
		t.Fatal("input snapshot was modified")
	}
}

func TestMutate_TransferSymmetry(t *testing.T) {
	c := NewCoordinator(seqIDs("id-"))
	transfer := core.Transaction{Type: core.Transfer, Amount: dec("100"), Date: core.NewDate(2024, 3, 1), AccountID: "x", ToAccountID: "y"}

	added, id := mustMutate(t, c, fixture(), Mutation{Kind: core.KindTransaction, Action: core.ActionAdd, Payload: transfer})
	assertBalance(t, added, "x", "900")
	assertBalance(t, added, "y", "350.50")

	deleted, _ := mustMutate(t, c, added, Mutation{Kind: core.KindTransaction, Action: core.ActionDelete, Payload: core.Transaction{ID: id}})
	if !sameBalances(deleted.Accounts, fixture().Accounts) {
		t.Fatalf("delete did not restore balances: %+v", deleted.Accounts)
	}
	if len(deleted.Transactions) != 0 {
		t.Fatalf("transaction not removed: %+v", deleted.Transactions)
	}
}

func TestMutate_BalanceConservationUnderEdit(t *testing.T) {
	c := NewCoordinator(seqIDs("id-"))
	start := fixture()

	snap, id := mustMutate(t, c, start, Mutation{Kind: core.KindTransaction, Action: core.ActionAdd, Payload: groceries()})

	// change type, amount and both accounts at once
	edited := core.Transaction{ID: id, Type: core.Transfer, Amount: dec("10.01"), Date: core.NewDate(2024, 3, 6), AccountID: "y", ToAccountID: "z"}
	snap, _ = mustMutate(t, c, snap, Mutation{Kind: core.KindTransaction, Action: core.ActionUpdate, Payload: edited})
	assertBalance(t, snap, "x", "1000")
	assertBalance(t, snap, "y", "240.49")
	assertBalance(t, snap, "z", "10.01")

	// non-amount edit still goes through revert and apply
	edited.Description = "Moved"
	snap, _ = mustMutate(t, c, snap, Mutation{Kind: core.KindTransaction, Action: core.ActionUpdate, Payload: edited})
	assertBalance(t, snap, "y", "240.49")

	snap, _ = mustMutate(t, c, snap, Mutation{Kind: core.KindTransaction, Action: core.ActionDelete, Payload: core.Transaction{ID: id}})
	if !sameBalances(snap.Accounts, start.Accounts) {
		t.Fatalf("balances after add, update, delete = %+v, want %+v", snap.Accounts, start.Accounts)
	}
}

func TestMutate_UpdateTransactionKeepsRecurringLink(t *testing.T) {
	c := NewCoordinator(seqIDs("id-"))
	snap := fixture()
	occ := groceries()
	occ.ID, occ.RecurringID = "occ", "rule-1"
	snap.Transactions = []core.Transaction{occ}

	edit := groceries()
	edit.ID = "occ"
	edit.Amount = dec("50")
	got, _ := mustMutate(t, c, snap, Mutation{Kind: core.KindTransaction, Action: core.ActionUpdate, Payload: edit})

	tx, _ := got.TransactionByID("occ")
	if tx.RecurringID != "rule-1" || !tx.Amount.Equal(dec("50")) {
		t.Fatalf("unexpected updated occurrence: %+v", tx)
	}
}

func TestMutate_DeletionGuard(t *testing.T) {
	c := NewCoordinator(seqIDs("id-"))
	transfer := core.Transaction{Type: core.Transfer, Amount: dec("5"), Date: core.NewDate(2024, 3, 1), AccountID: "x", ToAccountID: "y"}
	snap, _ := mustMutate(t, c, fixture(), Mutation{Kind: core.KindTransaction, Action: core.ActionAdd, Payload: groceries()})
	snap, _ = mustMutate(t, c, snap, Mutation{Kind: core.KindTransaction, Action: core.ActionAdd, Payload: transfer})

	before, _ := json.Marshal(snap)

	tests := []struct {
		name string
		m    Mutation
		refs int
	}{
		{"account used as source", Mutation{Kind: core.KindAccount, Action: core.ActionDelete, Payload: core.Account{ID: "x"}}, 2},
		{"account used as destination", Mutation{Kind: core.KindAccount, Action: core.ActionDelete, Payload: core.Account{ID: "y"}}, 1},
		{"category in use", Mutation{Kind: core.KindCategory, Action: core.ActionDelete, Payload: core.Category{ID: "food"}}, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := c.Mutate(snap, tt.m)
			var ce *core.ConflictError
			if !errors.As(err, &ce) || !errors.Is(err, core.ErrConflict) {
				t.Fatalf("expected ConflictError, got %v", err)
			}
			if ce.References != tt.refs {
				t.Errorf("references = %d, want %d", ce.References, tt.refs)
			}
			after, _ := json.Marshal(got)
			if string(after) != string(before) {
				t.Fatal("snapshot changed by rejected delete")
			}
		})
	}

	// unreferenced entities can go
	got, _ := mustMutate(t, c, snap, Mutation{Kind: core.KindAccount, Action: core.ActionDelete, Payload: core.Account{ID: "z"}})
	if _, ok := got.AccountByID("z"); ok {
		t.Fatal("unreferenced account not deleted")
	}
	got, _ = mustMutate(t, c, snap, Mutation{Kind: core.KindCategory, Action: core.ActionDelete, Payload: core.Category{ID: "rent"}})
	if _, ok := got.CategoryByID("rent"); ok {
		t.Fatal("unreferenced category not deleted")
	}
}

func TestMutate_Rejections(t *testing.T) {
	c := NewCoordinator(seqIDs("id-"))
	snap := fixture()
	snap.Transactions = []core.Transaction{{ID: "t1", Type: core.Income, Amount: dec("1"), Date: core.NewDate(2024, 1, 1), AccountID: "x"}}
	snap.Accounts[0].Balance = dec("1001")

	missingCategory := groceries()
	missingCategory.CategoryID = "nope"
	transferToNowhere := core.Transaction{Type: core.Transfer, Amount: dec("1"), Date: core.NewDate(2024, 1, 1), AccountID: "x", ToAccountID: "nope"}
	zeroAmount := groceries()
	zeroAmount.Amount = decimal.Zero
	badUpdate := groceries()
	badUpdate.ID = "t1"
	badUpdate.AccountID = "nope"

	tests := []struct {
		name string
		m    Mutation
		want error
	}{
		{"missing category", Mutation{Kind: core.KindTransaction, Action: core.ActionAdd, Payload: missingCategory}, core.ErrReference},
		{"transfer to unknown account", Mutation{Kind: core.KindTransaction, Action: core.ActionAdd, Payload: transferToNowhere}, core.ErrReference},
		{"zero amount", Mutation{Kind: core.KindTransaction, Action: core.ActionAdd, Payload: zeroAmount}, core.ErrValidation},
		{"update unknown transaction", Mutation{Kind: core.KindTransaction, Action: core.ActionUpdate, Payload: core.Transaction{ID: "ghost"}}, core.ErrReference},
		{"update to unknown account", Mutation{Kind: core.KindTransaction, Action: core.ActionUpdate, Payload: badUpdate}, core.ErrReference},
		{"delete unknown transaction", Mutation{Kind: core.KindTransaction, Action: core.ActionDelete, Payload: core.Transaction{ID: "ghost"}}, core.ErrReference},
		{"delete unknown goal", Mutation{Kind: core.KindGoal, Action: core.ActionDelete, Payload: core.Goal{ID: "ghost"}}, core.ErrReference},
		{"account without name", Mutation{Kind: core.KindAccount, Action: core.ActionAdd, Payload: core.Account{Type: core.Cash}}, core.ErrValidation},
		{"negative budget", Mutation{Kind: core.KindCategory, Action: core.ActionAdd, Payload: core.Category{Name: "Fun", Budget: dec("-1")}}, core.ErrValidation},
		{"payload of another kind", Mutation{Kind: core.KindAccount, Action: core.ActionAdd, Payload: groceries()}, core.ErrValidation},
		{"unknown kind", Mutation{Kind: "budget", Action: core.ActionAdd, Payload: groceries()}, core.ErrValidation},
		{"unknown action", Mutation{Kind: core.KindTransaction, Action: "archive", Payload: groceries()}, core.ErrValidation},
		{"nil payload", Mutation{Kind: core.KindTransaction, Action: core.ActionAdd}, core.ErrValidation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			before, _ := json.Marshal(snap)
			got, err := c.Mutate(snap, tt.m)
			if !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
			after, _ := json.Marshal(got)
			if string(after) != string(before) {
				t.Fatal("rejected mutation changed the snapshot")
			}
		})
	}
}

func TestMutate_AccountAndCategoryUpdateReplace(t *testing.T) {
	c := NewCoordinator(seqIDs("id-"))
	snap, id := mustMutate(t, c, fixture(), Mutation{Kind: core.KindAccount, Action: core.ActionAdd,
		Payload: core.Account{Name: "Card", Type: core.Credit, Balance: dec("-20")}})
	assertBalance(t, snap, id, "-20")

	snap, _ = mustMutate(t, c, snap, Mutation{Kind: core.KindAccount, Action: core.ActionUpdate,
		Payload: core.Account{ID: id, Name: "Visa", Type: core.Credit, Icon: "fa-card", Balance: dec("999")}})
	a, _ := snap.AccountByID(id)
	if a.Name != "Visa" || a.Icon != "fa-card" || !a.Balance.Equal(dec("-20")) {
		t.Fatalf("account update should replace fields but keep balance: %+v", a)
	}

	snap, _ = mustMutate(t, c, snap, Mutation{Kind: core.KindCategory, Action: core.ActionUpdate,
		Payload: core.Category{ID: "food", Name: "Eating"}})
	cat, _ := snap.CategoryByID("food")
	if cat.Name != "Eating" || !cat.Budget.IsZero() {
		t.Fatalf("category update should replace wholesale: %+v", cat)
	}
}

func TestMutate_GoalLifecycle(t *testing.T) {
	c := NewCoordinator(seqIDs("goal-"))
	snap, id := mustMutate(t, c, fixture(), Mutation{Kind: core.KindGoal, Action: core.ActionAdd,
		Payload: core.Goal{Name: "Laptop", TargetAmount: dec("1500"), CurrentAmount: dec("300"), Icon: "fa-laptop"}})

	g, _ := snap.GoalByID(id)
	if !g.CurrentAmount.IsZero() {
		t.Fatalf("new goal should start at zero, got %s", g.CurrentAmount)
	}

	current := dec("120")
	snap, _ = mustMutate(t, c, snap, Mutation{Kind: core.KindGoal, Action: core.ActionUpdate,
		Payload: core.GoalPatch{ID: id, CurrentAmount: &current}})
	g, _ = snap.GoalByID(id)
	if g.Name != "Laptop" || g.Icon != "fa-laptop" || !g.TargetAmount.Equal(dec("1500")) || !g.CurrentAmount.Equal(current) {
		t.Fatalf("patch should merge only the supplied field: %+v", g)
	}

	// a full goal is treated as a patch supplying every field
	snap, _ = mustMutate(t, c, snap, Mutation{Kind: core.KindGoal, Action: core.ActionUpdate,
		Payload: core.Goal{ID: id, Name: "Desktop", TargetAmount: dec("900"), CurrentAmount: dec("120")}})
	g, _ = snap.GoalByID(id)
	if g.Name != "Desktop" || g.Icon != "" {
		t.Fatalf("full goal update = %+v", g)
	}

	zero := decimal.Zero
	if _, err := c.Mutate(snap, Mutation{Kind: core.KindGoal, Action: core.ActionUpdate,
		Payload: core.GoalPatch{ID: id, TargetAmount: &zero}}); !errors.Is(err, core.ErrValidation) {
		t.Fatalf("expected validation error for zero target, got %v", err)
	}

	snap, _ = mustMutate(t, c, snap, Mutation{Kind: core.KindGoal, Action: core.ActionDelete, Payload: core.Goal{ID: id}})
	if len(snap.Goals) != 0 {
		t.Fatalf("goal not deleted: %+v", snap.Goals)
	}
}
