package services

import (
	"fmt"
	"slices"

	"moneymind/internal/core"

	"github.com/shopspring/decimal"
)

// Mutation is a single create, update or delete request against a snapshot.
// For deletes only the payload's id is consulted.
type Mutation struct {
	Kind    core.EntityKind
	Action  core.Action
	Payload core.Entity
}

// Result is the outcome of a successful mutation.
type Result struct {
	Snapshot core.Snapshot
	// ID of the entity that was added, updated or deleted.
	ID string
}

type handler func(c *Coordinator, snap *core.Snapshot, payload core.Entity) (string, error)

// handlers is the dispatch table of the coordinator, one entry per entity kind and action.
var handlers = map[core.EntityKind]map[core.Action]handler{
	core.KindTransaction: {
		core.ActionAdd:    (*Coordinator).addTransaction,
		core.ActionUpdate: (*Coordinator).updateTransaction,
		core.ActionDelete: (*Coordinator).deleteTransaction,
	},
	core.KindAccount: {
		core.ActionAdd:    (*Coordinator).addAccount,
		core.ActionUpdate: (*Coordinator).updateAccount,
		core.ActionDelete: (*Coordinator).deleteAccount,
	},
	core.KindCategory: {
		core.ActionAdd:    (*Coordinator).addCategory,
		core.ActionUpdate: (*Coordinator).updateCategory,
		core.ActionDelete: (*Coordinator).deleteCategory,
	},
	core.KindGoal: {
		core.ActionAdd:    (*Coordinator).addGoal,
		core.ActionUpdate: (*Coordinator).updateGoal,
		core.ActionDelete: (*Coordinator).deleteGoal,
	},
}

// Coordinator is the single entry point for ledger edits.
type Coordinator struct {
	ids IDGenerator
}

// NewCoordinator returns a coordinator using ids for new entities. A nil
// generator falls back to UUIDs.
func NewCoordinator(ids IDGenerator) *Coordinator {
	if ids == nil {
		ids = NewUUIDGenerator()
	}
	return &Coordinator{ids: ids}
}

// Mutate applies m to snap and returns the new snapshot. On error the returned
// snapshot is snap itself, untouched.
func (c *Coordinator) Mutate(snap core.Snapshot, m Mutation) (core.Snapshot, error) {
	res, err := c.Do(snap, m)
	if err != nil {
		return snap, err
	}
	return res.Snapshot, nil
}

// Do is Mutate that also reports the id of the affected entity.
func (c *Coordinator) Do(snap core.Snapshot, m Mutation) (Result, error) {
	if m.Payload == nil {
		return Result{Snapshot: snap}, core.Invalid("payload", fmt.Errorf("missing payload"))
	}
	actions, ok := handlers[m.Kind]
	if !ok {
		return Result{Snapshot: snap}, core.Invalid("kind", fmt.Errorf("unknown entity kind %q", m.Kind))
	}
	h, ok := actions[m.Action]
	if !ok {
		return Result{Snapshot: snap}, core.Invalid("action", fmt.Errorf("unknown action %q", m.Action))
	}
	if m.Payload.EntityKind() != m.Kind {
		return Result{Snapshot: snap}, core.Invalid("payload",
			fmt.Errorf("payload is a %s, mutation targets %s", m.Payload.EntityKind(), m.Kind))
	}

	work := snap.Clone()
	id, err := h(c, &work, m.Payload)
	if err != nil {
		return Result{Snapshot: snap}, err
	}
	return Result{Snapshot: work, ID: id}, nil
}

// Transactions

func (c *Coordinator) addTransaction(snap *core.Snapshot, payload core.Entity) (string, error) {
	tx, err := admitTransaction(snap, payload)
	if err != nil {
		return "", err
	}
	tx.ID = c.ids.NewID()
	snap.Accounts = ApplyEffect(snap.Accounts, tx, Apply)
	snap.Transactions = append(snap.Transactions, tx)
	return tx.ID, nil
}

func (c *Coordinator) updateTransaction(snap *core.Snapshot, payload core.Entity) (string, error) {
	id := payload.EntityID()
	i := slices.IndexFunc(snap.Transactions, func(t core.Transaction) bool { return t.ID == id })
	if i < 0 {
		return "", &core.ReferenceError{Kind: core.KindTransaction, ID: id}
	}
	tx, err := admitTransaction(snap, payload)
	if err != nil {
		return "", err
	}
	old := snap.Transactions[i]
	tx.ID = old.ID
	// keep the link to the generating rule so expansion does not materialize the occurrence again
	if tx.RecurringID == "" {
		tx.RecurringID = old.RecurringID
	}

	snap.Accounts = ApplyEffect(snap.Accounts, old, Revert)
	snap.Transactions[i] = tx
	snap.Accounts = ApplyEffect(snap.Accounts, tx, Apply)
	return tx.ID, nil
}

func (c *Coordinator) deleteTransaction(snap *core.Snapshot, payload core.Entity) (string, error) {
	id := payload.EntityID()
	i := slices.IndexFunc(snap.Transactions, func(t core.Transaction) bool { return t.ID == id })
	if i < 0 {
		return "", &core.ReferenceError{Kind: core.KindTransaction, ID: id}
	}
	snap.Accounts = ApplyEffect(snap.Accounts, snap.Transactions[i], Revert)
	snap.Transactions = slices.Delete(snap.Transactions, i, i+1)
	return id, nil
}

// admitTransaction validates the payload shape and its references against snap.
func admitTransaction(snap *core.Snapshot, payload core.Entity) (core.Transaction, error) {
	tx, ok := payload.(core.Transaction)
	if !ok {
		return core.Transaction{}, core.Invalid("payload", fmt.Errorf("expected a transaction, got %T", payload))
	}
	tx = tx.Clone()
	tx.Tags = core.NormalizeTags(tx.Tags)
	if err := tx.Validate(); err != nil {
		return core.Transaction{}, err
	}
	if err := snap.CheckTransactionReferences(tx); err != nil {
		return core.Transaction{}, err
	}
	return tx, nil
}

// Accounts

func (c *Coordinator) addAccount(snap *core.Snapshot, payload core.Entity) (string, error) {
	a, ok := payload.(core.Account)
	if !ok {
		return "", core.Invalid("payload", fmt.Errorf("expected an account, got %T", payload))
	}
	if err := a.Validate(); err != nil {
		return "", err
	}
	a.ID = c.ids.NewID()
	snap.Accounts = append(snap.Accounts, a)
	return a.ID, nil
}

func (c *Coordinator) updateAccount(snap *core.Snapshot, payload core.Entity) (string, error) {
	a, ok := payload.(core.Account)
	if !ok {
		return "", core.Invalid("payload", fmt.Errorf("expected an account, got %T", payload))
	}
	i := slices.IndexFunc(snap.Accounts, func(x core.Account) bool { return x.ID == a.ID })
	if i < 0 {
		return "", &core.ReferenceError{Kind: core.KindAccount, ID: a.ID}
	}
	if err := a.Validate(); err != nil {
		return "", err
	}
	// the balance is derived from history and never edited directly
	a.Balance = snap.Accounts[i].Balance
	snap.Accounts[i] = a
	return a.ID, nil
}

func (c *Coordinator) deleteAccount(snap *core.Snapshot, payload core.Entity) (string, error) {
	id := payload.EntityID()
	i := slices.IndexFunc(snap.Accounts, func(x core.Account) bool { return x.ID == id })
	if i < 0 {
		return "", &core.ReferenceError{Kind: core.KindAccount, ID: id}
	}
	if n := snap.TransactionsReferencingAccount(id); n > 0 {
		return "", &core.ConflictError{Kind: core.KindAccount, ID: id, References: n}
	}
	snap.Accounts = slices.Delete(snap.Accounts, i, i+1)
	return id, nil
}

// Categories

func (c *Coordinator) addCategory(snap *core.Snapshot, payload core.Entity) (string, error) {
	cat, ok := payload.(core.Category)
	if !ok {
		return "", core.Invalid("payload", fmt.Errorf("expected a category, got %T", payload))
	}
	if err := cat.Validate(); err != nil {
		return "", err
	}
	cat.ID = c.ids.NewID()
	snap.Categories = append(snap.Categories, cat)
	return cat.ID, nil
}

func (c *Coordinator) updateCategory(snap *core.Snapshot, payload core.Entity) (string, error) {
	cat, ok := payload.(core.Category)
	if !ok {
		return "", core.Invalid("payload", fmt.Errorf("expected a category, got %T", payload))
	}
	i := slices.IndexFunc(snap.Categories, func(x core.Category) bool { return x.ID == cat.ID })
	if i < 0 {
		return "", &core.ReferenceError{Kind: core.KindCategory, ID: cat.ID}
	}
	if err := cat.Validate(); err != nil {
		return "", err
	}
	snap.Categories[i] = cat
	return cat.ID, nil
}

func (c *Coordinator) deleteCategory(snap *core.Snapshot, payload core.Entity) (string, error) {
	id := payload.EntityID()
	i := slices.IndexFunc(snap.Categories, func(x core.Category) bool { return x.ID == id })
	if i < 0 {
		return "", &core.ReferenceError{Kind: core.KindCategory, ID: id}
	}
	if n := snap.TransactionsReferencingCategory(id); n > 0 {
		return "", &core.ConflictError{Kind: core.KindCategory, ID: id, References: n}
	}
	snap.Categories = slices.Delete(snap.Categories, i, i+1)
	return id, nil
}

// Goals

func (c *Coordinator) addGoal(snap *core.Snapshot, payload core.Entity) (string, error) {
	var g core.Goal
	switch p := payload.(type) {
	case core.Goal:
		g = p
	case core.GoalPatch:
		g = p.Apply(core.Goal{})
	default:
		return "", core.Invalid("payload", fmt.Errorf("expected a goal, got %T", payload))
	}
	g.CurrentAmount = decimal.Zero
	if err := g.Validate(); err != nil {
		return "", err
	}
	g.ID = c.ids.NewID()
	snap.Goals = append(snap.Goals, g)
	return g.ID, nil
}

// updateGoal merges only the supplied fields, unlike the other entities which
// are replaced wholesale.
func (c *Coordinator) updateGoal(snap *core.Snapshot, payload core.Entity) (string, error) {
	var patch core.GoalPatch
	switch p := payload.(type) {
	case core.GoalPatch:
		patch = p
	case core.Goal:
		patch = p.AsPatch()
	default:
		return "", core.Invalid("payload", fmt.Errorf("expected a goal, got %T", payload))
	}
	i := slices.IndexFunc(snap.Goals, func(g core.Goal) bool { return g.ID == patch.ID })
	if i < 0 {
		return "", &core.ReferenceError{Kind: core.KindGoal, ID: patch.ID}
	}
	g := patch.Apply(snap.Goals[i])
	if err := g.Validate(); err != nil {
		return "", err
	}
	snap.Goals[i] = g
	return g.ID, nil
}

func (c *Coordinator) deleteGoal(snap *core.Snapshot, payload core.Entity) (string, error) {
	id := payload.EntityID()
	i := slices.IndexFunc(snap.Goals, func(g core.Goal) bool { return g.ID == id })
	if i < 0 {
		return "", &core.ReferenceError{Kind: core.KindGoal, ID: id}
	}
	snap.Goals = slices.Delete(snap.Goals, i, i+1)
	return id, nil
}
