package services

import (
	"testing"

	"moneymind/internal/core"
)

func TestSteppers(t *testing.T) {
	tests := []struct {
		name      string
		frequency core.Frequency
		start     core.Date
		n         int
		want      core.Date
	}{
		{"daily start", core.Daily, core.NewDate(2024, 1, 1), 0, core.NewDate(2024, 1, 1)},
		{"daily across leap day", core.Daily, core.NewDate(2024, 2, 28), 1, core.NewDate(2024, 2, 29)},
		{"daily across year", core.Daily, core.NewDate(2023, 12, 31), 1, core.NewDate(2024, 1, 1)},
		{"weekly", core.Weekly, core.NewDate(2024, 1, 1), 3, core.NewDate(2024, 1, 22)},
		{"weekly across month", core.Weekly, core.NewDate(2024, 1, 29), 1, core.NewDate(2024, 2, 5)},
		{"monthly", core.Monthly, core.NewDate(2024, 1, 15), 3, core.NewDate(2024, 4, 15)},
		{"monthly clamps in leap year", core.Monthly, core.NewDate(2024, 1, 31), 1, core.NewDate(2024, 2, 29)},
		{"monthly clamps in common year", core.Monthly, core.NewDate(2023, 1, 31), 1, core.NewDate(2023, 2, 28)},
		{"monthly returns to the 31st", core.Monthly, core.NewDate(2024, 1, 31), 2, core.NewDate(2024, 3, 31)},
		{"monthly across year", core.Monthly, core.NewDate(2024, 11, 15), 2, core.NewDate(2025, 1, 15)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := GetStepper(tt.frequency)
			if err != nil {
				t.Fatalf("GetStepper(%s): %v", tt.frequency, err)
			}
			if got := s.Occurrence(tt.start, tt.n); !got.Equal(tt.want.Time) {
				t.Errorf("Occurrence(%s, %d) = %s, want %s", tt.start, tt.n, got, tt.want)
			}
		})
	}
}

func TestGetStepper_Unknown(t *testing.T) {
	if _, err := GetStepper("yearly"); err == nil {
		t.Error("GetStepper should fail for unsupported frequency")
	}
}
