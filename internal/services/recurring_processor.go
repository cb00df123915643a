package services

import (
	"cmp"
	"context"
	"log/slog"
	"slices"
	"time"

	"moneymind/internal/core"
)

// RecurringProcessor materializes due occurrences of recurring rules into transactions.
type RecurringProcessor struct {
	ids IDGenerator
}

// NewRecurringProcessor creates a processor minting transaction ids with ids.
// A nil generator falls back to UUIDs.
func NewRecurringProcessor(ids IDGenerator) *RecurringProcessor {
	if ids == nil {
		ids = NewUUIDGenerator()
	}
	return &RecurringProcessor{ids: ids}
}

// Expand generates every occurrence that is due on or before the calendar date
// of now and not yet present in the snapshot. It returns the updated snapshot
// and the generated transactions in the order they were applied. The input
// snapshot is never modified.
//
// Rules that are invalid or reference a missing account or category are logged
// and skipped; the remaining rules still expand.
func (p *RecurringProcessor) Expand(ctx context.Context, snap core.Snapshot, now time.Time) (core.Snapshot, []core.Transaction) {
	today := core.DateOf(now)

	var generated []core.Transaction
	for _, rule := range snap.RecurringRules {
		txs, err := p.dueOccurrences(snap, rule, today)
		if err != nil {
			slog.WarnContext(ctx, "Skipping recurring rule",
				"rule_id", rule.ID,
				"frequency", rule.Frequency,
				"error", err)
			continue
		}
		generated = append(generated, txs...)
	}

	if len(generated) == 0 {
		return snap, nil
	}

	slices.SortStableFunc(generated, func(a, b core.Transaction) int {
		if c := a.Date.Compare(b.Date.Time); c != 0 {
			return c
		}
		return cmp.Compare(a.RecurringID, b.RecurringID)
	})

	out := snap.Clone()
	for _, tx := range generated {
		out.Accounts = ApplyEffect(out.Accounts, tx, Apply)
		out.Transactions = append(out.Transactions, tx)
	}

	slog.InfoContext(ctx, "Recurring expansion complete",
		"generated", len(generated),
		"rules", len(snap.RecurringRules),
		"processing_date", today.String())

	return out, generated
}

func (p *RecurringProcessor) dueOccurrences(snap core.Snapshot, rule core.RecurringRule, today core.Date) ([]core.Transaction, error) {
	if err := rule.Validate(); err != nil {
		return nil, err
	}
	if err := snap.CheckReferences(rule.Template); err != nil {
		return nil, err
	}
	stepper, err := GetStepper(rule.Frequency)
	if err != nil {
		return nil, err
	}

	var out []core.Transaction
	for n := 0; ; n++ {
		date := stepper.Occurrence(rule.StartDate, n)
		if date.After(today.Time) {
			break
		}
		if !rule.EndDate.IsEmpty() && date.After(rule.EndDate.Time) {
			break
		}
		if snap.HasOccurrence(rule.ID, date) {
			continue
		}
		out = append(out, rule.Materialize(p.ids.NewID(), date))
	}
	return out, nil
}
