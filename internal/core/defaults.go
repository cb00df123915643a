package core

import "github.com/shopspring/decimal"

// DefaultSnapshot returns the ledger a new owner starts with. Students get a few
// extra budget categories.
func DefaultSnapshot(student bool) Snapshot {
	categories := []Category{
		{ID: "cat_salary", Name: "Salary", Icon: "fa-briefcase", Budget: decimal.Zero},
		{ID: "cat_rent", Name: "Rent", Icon: "fa-home", Budget: decimal.NewFromInt(1200)},
		{ID: "cat_groceries", Name: "Groceries", Icon: "fa-shopping-cart", Budget: decimal.NewFromInt(400)},
		{ID: "cat_transport", Name: "Transport", Icon: "fa-car", Budget: decimal.NewFromInt(150)},
		{ID: "cat_utilities", Name: "Utilities", Icon: "fa-bolt", Budget: decimal.NewFromInt(200)},
		{ID: "cat_entertainment", Name: "Entertainment", Icon: "fa-film", Budget: decimal.NewFromInt(100)},
		{ID: "cat_health", Name: "Health", Icon: "fa-heartbeat", Budget: decimal.NewFromInt(100)},
		{ID: "cat_investments", Name: "Investments", Icon: "fa-chart-line", Budget: decimal.NewFromInt(300)},
	}
	if student {
		categories = append(categories,
			Category{ID: "cat_student_loan", Name: "Student Loan", Icon: "fa-graduation-cap", Budget: decimal.NewFromInt(300)},
			Category{ID: "cat_scholarship", Name: "Scholarship", Icon: "fa-award", Budget: decimal.Zero},
			Category{ID: "cat_textbooks", Name: "Textbooks", Icon: "fa-book", Budget: decimal.NewFromInt(200)},
		)
	}

	return Snapshot{
		Accounts: []Account{
			{ID: "acc_cash", Name: "Cash", Type: Cash, Icon: "fa-money-bill-wave", Balance: decimal.Zero},
			{ID: "acc_checking", Name: "Checking Account", Type: Bank, Icon: "fa-university", Balance: decimal.NewFromInt(1000)},
		},
		Transactions:   []Transaction{},
		Categories:     categories,
		Goals:          []Goal{},
		RecurringRules: []RecurringRule{},
		Settings: Settings{
			DefaultCurrency: DefaultCurrency,
			DefaultAccount:  "acc_checking",
			Theme:           "dark",
		},
	}
}
