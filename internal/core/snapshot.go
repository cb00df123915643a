package core

import (
	"slices"

	"github.com/shopspring/decimal"
)

const (
	KindTransaction EntityKind = "transaction"
	KindAccount     EntityKind = "account"
	KindCategory    EntityKind = "category"
	KindGoal        EntityKind = "goal"
)

const (
	ActionAdd    Action = "add"
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
)

type (
	EntityKind string
	Action     string
)

// Entity is the closed set of payloads the mutation coordinator accepts.
type Entity interface {
	EntityKind() EntityKind
	EntityID() string
}

func (Transaction) EntityKind() EntityKind { return KindTransaction }
func (Account) EntityKind() EntityKind     { return KindAccount }
func (Category) EntityKind() EntityKind    { return KindCategory }
func (Goal) EntityKind() EntityKind        { return KindGoal }
func (GoalPatch) EntityKind() EntityKind   { return KindGoal }

func (t Transaction) EntityID() string { return t.ID }
func (a Account) EntityID() string     { return a.ID }
func (c Category) EntityID() string    { return c.ID }
func (g Goal) EntityID() string        { return g.ID }
func (p GoalPatch) EntityID() string   { return p.ID }

func (k EntityKind) Valid() bool {
	switch k {
	case KindTransaction, KindAccount, KindCategory, KindGoal:
		return true
	}
	return false
}

func (a Action) Valid() bool {
	switch a {
	case ActionAdd, ActionUpdate, ActionDelete:
		return true
	}
	return false
}

// Snapshot is the complete ledger document of one owner.
type Snapshot struct {
	Accounts       []Account       `json:"accounts"`
	Transactions   []Transaction   `json:"transactions"`
	Categories     []Category      `json:"categories"`
	Goals          []Goal          `json:"goals"`
	RecurringRules []RecurringRule `json:"recurringTransactions"`
	Settings       Settings        `json:"settings"`
}

// Clone returns a deep copy that shares no mutable state with s.
func (s Snapshot) Clone() Snapshot {
	out := Snapshot{
		Accounts:       slices.Clone(s.Accounts),
		Transactions:   make([]Transaction, len(s.Transactions)),
		Categories:     slices.Clone(s.Categories),
		Goals:          slices.Clone(s.Goals),
		RecurringRules: slices.Clone(s.RecurringRules),
		Settings:       s.Settings,
	}
	for i, t := range s.Transactions {
		out.Transactions[i] = t.Clone()
	}
	if s.Transactions == nil {
		out.Transactions = nil
	}
	return out
}

// Clone copies the transaction including its tag slice and receipt.
func (t Transaction) Clone() Transaction {
	t.Tags = slices.Clone(t.Tags)
	if t.Receipt != nil {
		r := *t.Receipt
		t.Receipt = &r
	}
	return t
}

func (s Snapshot) AccountByID(id string) (Account, bool) {
	i := slices.IndexFunc(s.Accounts, func(a Account) bool { return a.ID == id })
	if i < 0 {
		return Account{}, false
	}
	return s.Accounts[i], true
}

func (s Snapshot) CategoryByID(id string) (Category, bool) {
	i := slices.IndexFunc(s.Categories, func(c Category) bool { return c.ID == id })
	if i < 0 {
		return Category{}, false
	}
	return s.Categories[i], true
}

func (s Snapshot) TransactionByID(id string) (Transaction, bool) {
	i := slices.IndexFunc(s.Transactions, func(t Transaction) bool { return t.ID == id })
	if i < 0 {
		return Transaction{}, false
	}
	return s.Transactions[i], true
}

func (s Snapshot) GoalByID(id string) (Goal, bool) {
	i := slices.IndexFunc(s.Goals, func(g Goal) bool { return g.ID == id })
	if i < 0 {
		return Goal{}, false
	}
	return s.Goals[i], true
}

// TransactionsReferencingAccount counts transactions using the account as source or destination.
func (s Snapshot) TransactionsReferencingAccount(id string) int {
	n := 0
	for _, t := range s.Transactions {
		if t.AccountID == id || (t.Type == Transfer && t.ToAccountID == id) {
			n++
		}
	}
	return n
}

func (s Snapshot) TransactionsReferencingCategory(id string) int {
	n := 0
	for _, t := range s.Transactions {
		if t.CategoryID != "" && t.CategoryID == id {
			n++
		}
	}
	return n
}

// HasOccurrence reports whether the rule already materialized a transaction on date.
func (s Snapshot) HasOccurrence(ruleID string, date Date) bool {
	return slices.ContainsFunc(s.Transactions, func(t Transaction) bool {
		return t.RecurringID == ruleID && t.Date.Equal(date.Time)
	})
}

// CheckReferences verifies that every account and category a template points to exists.
func (s Snapshot) CheckReferences(tpl Template) error {
	if _, ok := s.AccountByID(tpl.AccountID); !ok {
		return &ReferenceError{Kind: KindAccount, ID: tpl.AccountID, Field: "accountId"}
	}
	if tpl.Type == Transfer {
		if _, ok := s.AccountByID(tpl.ToAccountID); !ok {
			return &ReferenceError{Kind: KindAccount, ID: tpl.ToAccountID, Field: "toAccountId"}
		}
	}
	if tpl.Type != Income || tpl.CategoryID != "" {
		if _, ok := s.CategoryByID(tpl.CategoryID); !ok {
			return &ReferenceError{Kind: KindCategory, ID: tpl.CategoryID, Field: "categoryId"}
		}
	}
	return nil
}

// CheckTransactionReferences is CheckReferences for a concrete transaction.
func (s Snapshot) CheckTransactionReferences(t Transaction) error {
	return s.CheckReferences(t.template())
}

// TotalBalance sums all account balances.
func (s Snapshot) TotalBalance() decimal.Decimal {
	total := decimal.Zero
	for _, a := range s.Accounts {
		total = total.Add(a.Balance)
	}
	return total
}
