package core

import (
	"strings"

	"github.com/shopspring/decimal"
)

const (
	Daily   Frequency = "daily"
	Weekly  Frequency = "weekly"
	Monthly Frequency = "monthly"
)

const (
	Income   TransactionType = "income"
	Expense  TransactionType = "expense"
	Transfer TransactionType = "transfer"
)

const (
	Cash       AccountType = "cash"
	Bank       AccountType = "bank"
	Credit     AccountType = "credit"
	Investment AccountType = "investment"
)

type (
	Frequency       string
	TransactionType string
	AccountType     string

	Account struct {
		ID      string          `json:"id"`
		Name    string          `json:"name"`
		Type    AccountType     `json:"type"`
		Icon    string          `json:"icon,omitempty"`
		Balance decimal.Decimal `json:"balance"`
	}

	Category struct {
		ID     string          `json:"id"`
		Name   string          `json:"name"`
		Icon   string          `json:"icon,omitempty"`
		Budget decimal.Decimal `json:"budget"` // 0 means no budget
	}

	// Receipt is an opaque reference owned by the attachment store.
	Receipt struct {
		URL  string `json:"url"`
		Path string `json:"path"`
	}

	Transaction struct {
		ID          string          `json:"id"`
		Type        TransactionType `json:"type"`
		Amount      decimal.Decimal `json:"amount"`
		Date        Date            `json:"date"`
		AccountID   string          `json:"accountId"`
		ToAccountID string          `json:"toAccountId,omitempty"`
		CategoryID  string          `json:"categoryId,omitempty"`
		Description string          `json:"description"`
		Tags        []string        `json:"tags,omitempty"`
		Receipt     *Receipt        `json:"receipt,omitempty"`
		RecurringID string          `json:"recurringId,omitempty"`
	}

	// Template is the transaction shape a recurring rule materializes.
	Template struct {
		Type        TransactionType `json:"type"`
		Amount      decimal.Decimal `json:"amount"`
		Description string          `json:"description"`
		AccountID   string          `json:"accountId"`
		ToAccountID string          `json:"toAccountId,omitempty"`
		CategoryID  string          `json:"categoryId,omitempty"`
	}

	RecurringRule struct {
		ID        string    `json:"id"`
		Frequency Frequency `json:"frequency"`
		StartDate Date      `json:"startDate"`
		EndDate   Date      `json:"endDate,omitempty"` // inclusive, zero means open-ended
		Template
	}

	Goal struct {
		ID            string          `json:"id"`
		Name          string          `json:"name"`
		TargetAmount  decimal.Decimal `json:"targetAmount"`
		CurrentAmount decimal.Decimal `json:"currentAmount"`
		Icon          string          `json:"icon,omitempty"`
		TargetDate    Date            `json:"targetDate,omitempty"`
	}

	// GoalPatch carries only the goal fields a caller wants to change.
	GoalPatch struct {
		ID            string
		Name          *string
		TargetAmount  *decimal.Decimal
		CurrentAmount *decimal.Decimal
		Icon          *string
		TargetDate    *Date
	}

	Settings struct {
		DefaultCurrency string `json:"defaultCurrency"`
		DefaultAccount  string `json:"defaultAccount,omitempty"`
		Theme           string `json:"theme,omitempty"`
	}
)

const maxDescriptionLength = 200

func (t TransactionType) Valid() bool {
	switch t {
	case Income, Expense, Transfer:
		return true
	}
	return false
}

func (a AccountType) Valid() bool {
	switch a {
	case Cash, Bank, Credit, Investment:
		return true
	}
	return false
}

func (f Frequency) Valid() bool {
	switch f {
	case Daily, Weekly, Monthly:
		return true
	}
	return false
}

func (a Account) Validate() error {
	if strings.TrimSpace(a.Name) == "" {
		return invalid("name", ErrEmptyName)
	}
	if !a.Type.Valid() {
		return invalidf("type", "unknown account type %q", a.Type)
	}
	return nil
}

func (c Category) Validate() error {
	if strings.TrimSpace(c.Name) == "" {
		return invalid("name", ErrEmptyName)
	}
	if c.Budget.IsNegative() {
		return invalidf("budget", "budget cannot be negative")
	}
	return nil
}

func (g Goal) Validate() error {
	if strings.TrimSpace(g.Name) == "" {
		return invalid("name", ErrEmptyName)
	}
	if !g.TargetAmount.IsPositive() {
		return invalid("targetAmount", ErrInvalidAmount)
	}
	if g.CurrentAmount.IsNegative() {
		return invalid("currentAmount", ErrInvalidAmount)
	}
	return nil
}

// Validate checks the payload shape only. Whether referenced accounts and
// categories exist is checked against a snapshot by Snapshot.CheckReferences.
func (t Transaction) Validate() error {
	if err := t.Date.Validate(); err != nil {
		return invalid("date", err)
	}
	if len(t.Description) > maxDescriptionLength {
		return invalidf("description", "description too long (max %d characters)", maxDescriptionLength)
	}
	return t.template().Validate()
}

func (tpl Template) Validate() error {
	if !tpl.Type.Valid() {
		return invalidf("type", "unknown transaction type %q", tpl.Type)
	}
	if !tpl.Amount.IsPositive() {
		return invalid("amount", ErrInvalidAmount)
	}
	if strings.TrimSpace(tpl.AccountID) == "" {
		return invalid("accountId", ErrMissingAccount)
	}
	if tpl.Type == Transfer {
		if strings.TrimSpace(tpl.ToAccountID) == "" {
			return invalid("toAccountId", ErrMissingDestination)
		}
		if tpl.ToAccountID == tpl.AccountID {
			return invalidf("toAccountId", "transfer source and destination must differ")
		}
	}
	if tpl.Type != Income && strings.TrimSpace(tpl.CategoryID) == "" {
		return invalid("categoryId", ErrMissingCategory)
	}
	return nil
}

func (r RecurringRule) Validate() error {
	if err := r.StartDate.Validate(); err != nil {
		return invalid("startDate", err)
	}
	if !r.EndDate.IsEmpty() && r.EndDate.Before(r.StartDate.Time) {
		return invalidf("endDate", "end date must not be before start date")
	}
	if !r.Frequency.Valid() {
		return invalidf("frequency", "unknown frequency %q", r.Frequency)
	}
	return r.Template.Validate()
}

func (t Transaction) template() Template {
	return Template{
		Type:        t.Type,
		Amount:      t.Amount,
		Description: t.Description,
		AccountID:   t.AccountID,
		ToAccountID: t.ToAccountID,
		CategoryID:  t.CategoryID,
	}
}

// Materialize builds the occurrence of the rule due on date.
func (r RecurringRule) Materialize(id string, date Date) Transaction {
	return Transaction{
		ID:          id,
		Type:        r.Type,
		Amount:      r.Amount,
		Date:        date,
		AccountID:   r.AccountID,
		ToAccountID: r.ToAccountID,
		CategoryID:  r.CategoryID,
		Description: r.Description,
		RecurringID: r.ID,
	}
}

// NormalizeTags trims tags and drops blanks and duplicates, keeping first appearance order.
func NormalizeTags(tags []string) []string {
	if len(tags) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(tags))
	out := make([]string, 0, len(tags))
	for _, tag := range tags {
		tag = strings.TrimSpace(tag)
		if tag == "" {
			continue
		}
		if _, ok := seen[tag]; ok {
			continue
		}
		seen[tag] = struct{}{}
		out = append(out, tag)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// AsPatch converts a full goal into a patch that supplies every field.
func (g Goal) AsPatch() GoalPatch {
	name, icon := g.Name, g.Icon
	target, current := g.TargetAmount, g.CurrentAmount
	date := g.TargetDate
	return GoalPatch{
		ID:            g.ID,
		Name:          &name,
		TargetAmount:  &target,
		CurrentAmount: &current,
		Icon:          &icon,
		TargetDate:    &date,
	}
}

// Apply merges the supplied fields into g.
func (p GoalPatch) Apply(g Goal) Goal {
	if p.Name != nil {
		g.Name = *p.Name
	}
	if p.TargetAmount != nil {
		g.TargetAmount = *p.TargetAmount
	}
	if p.CurrentAmount != nil {
		g.CurrentAmount = *p.CurrentAmount
	}
	if p.Icon != nil {
		g.Icon = *p.Icon
	}
	if p.TargetDate != nil {
		g.TargetDate = *p.TargetDate
	}
	return g
}
