package core

type (
	// BudgetSnapshot is the global monthly aggregate the alert engine evaluates.
	BudgetSnapshot struct {
		MonthlyBudget Money
		TotalExpense  Money
		PercentUsed   int
	}

	// CategorySnapshot is the per-category monthly aggregate.
	CategorySnapshot struct {
		CategoryID   string
		Name         string
		BudgetAmount Money
		CurrentSpent Money
		PercentUsed  int
	}

	// PaymentMethodSnapshot is the per-payment-method monthly aggregate.
	PaymentMethodSnapshot struct {
		PaymentMethodID string
		Name            string
		BudgetAmount    Money
		CurrentSpent    Money
		PercentUsed     int
	}
)

// PercentOf computes spent as an integer percentage of budget, truncated.
// A zero budget yields zero so unconfigured scopes never cross a threshold.
func PercentOf(spent, budget Money) int {
	if budget.Cents <= 0 {
		return 0
	}
	return int(spent.Cents * 100 / budget.Cents)
}
