// Package services provides the ledger engine and its orchestration.
//
// This file implements the strategy registry for recurring rule frequencies.
// Each frequency has a Stepper that computes the n-th occurrence of a rule
// from its start date.

package services

import (
	"fmt"

	"moneymind/internal/core"
)

// Stepper is the strategy interface for walking the occurrences of a rule.
type Stepper interface {
	// Occurrence returns the n-th occurrence (n = 0 is the start date).
	Occurrence(start core.Date, n int) core.Date
}

// DailyStepper steps one calendar day at a time.
type DailyStepper struct{}

func (DailyStepper) Occurrence(start core.Date, n int) core.Date {
	return start.AddDays(n)
}

// WeeklyStepper steps seven days at a time.
type WeeklyStepper struct{}

func (WeeklyStepper) Occurrence(start core.Date, n int) core.Date {
	return start.AddDays(7 * n)
}

// MonthlyStepper steps one calendar month at a time. Occurrences are always
// computed from the start date so a rule on the 31st returns to the 31st after
// passing through shorter months.
type MonthlyStepper struct{}

func (MonthlyStepper) Occurrence(start core.Date, n int) core.Date {
	return start.AddMonthsClamped(n)
}

// frequencySteppers maps frequencies to their steppers.
var frequencySteppers = map[core.Frequency]Stepper{
	core.Daily:   DailyStepper{},
	core.Weekly:  WeeklyStepper{},
	core.Monthly: MonthlyStepper{},
}

// GetStepper returns the stepper for a frequency.
func GetStepper(frequency core.Frequency) (Stepper, error) {
	s, ok := frequencySteppers[frequency]
	if !ok {
		return nil, fmt.Errorf("unknown frequency: %s", frequency)
	}
	return s, nil
}
