package shared

import "fmt"

// BudgetLockKey builds redis keys guarding one budget scope.
func BudgetLockKey(scopeKey string) string {
	return fmt.Sprintf("budget:scope:%s:lock", scopeKey)
}
