package utils

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// GrossRepayment returns principal plus flat interest.
// Formula: Principal * (1 + Rate / 100), rate given as a percentage
func GrossRepayment(principal decimal.Decimal, ratePercent decimal.Decimal) decimal.Decimal {
	factor := decimal.NewFromInt(1).Add(ratePercent.Div(hundred))
	return principal.Mul(factor)
}

// CalculateMonthlyPayment calculates the monthly installment
// Formula: (Principal + Interest) / Term
func CalculateMonthlyPayment(principal decimal.Decimal, ratePercent decimal.Decimal, months int) decimal.Decimal {
	monthlyPayment := GrossRepayment(principal, ratePercent).Div(decimal.NewFromInt(int64(months)))

	// Round to 2 decimal places
	return monthlyPayment.Round(2)
}

// CalculateTotalRepayment is the sum of all installments.
func CalculateTotalRepayment(monthlyPayment decimal.Decimal, months int) decimal.Decimal {
	return monthlyPayment.Mul(decimal.NewFromInt(int64(months)))
}

// IsCents reports whether amount has no more than 2 decimal places.
func IsCents(amount decimal.Decimal) bool {
	return amount.Equal(amount.Round(2))
}

// ApplyAmount subtracts amount from balance, clamping at zero.
func ApplyAmount(balance, amount decimal.Decimal) decimal.Decimal {
	remaining := balance.Sub(amount)
	if remaining.IsNegative() {
		return decimal.Zero
	}
	return remaining
}

// NextDueDate returns the due date one payment interval after from.
func NextDueDate(from time.Time, intervalDays int) time.Time {
	return from.Add(time.Duration(intervalDays) * 24 * time.Hour)
}

// DaysOverdue counts whole days between dueDate and now. Zero when not overdue.
func DaysOverdue(dueDate time.Time, now time.Time) int {
	if !now.After(dueDate) {
		return 0
	}
	return int(now.Sub(dueDate).Hours() / 24)
}

// NormalizeWallet lower-cases and trims an account address so lookups are
// case-insensitive.
func NormalizeWallet(address string) string {
	return strings.ToLower(strings.TrimSpace(address))
}

// DecimalFromString converts string to decimal.Decimal
func DecimalFromString(s string) (decimal.Decimal, error) {
	return decimal.NewFromString(s)
}
