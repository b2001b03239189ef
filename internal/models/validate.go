package models

import "fmt"

// ValidationError reports a malformed entity payload, naming the offending
// field. The whole sync request carrying the payload is rejected.
type ValidationError struct {
	Entity string // "member", "expense", "expense_item"
	Field  string
	Msg    string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: field %q %s", e.Entity, e.Field, e.Msg)
}

// ValidateMemberName checks a member display name.
func ValidateMemberName(name string) error {
	if name == "" {
		return &ValidationError{Entity: "member", Field: "name", Msg: "is required"}
	}
	return nil
}

// ValidateExpense checks an expense payload's scalar fields.
func ValidateExpense(name string, amount, serviceFeePercent float64) error {
	if name == "" {
		return &ValidationError{Entity: "expense", Field: "name", Msg: "is required"}
	}
	if amount < 0 {
		return &ValidationError{Entity: "expense", Field: "amount", Msg: "must not be negative"}
	}
	if serviceFeePercent < 0 || serviceFeePercent > 100 {
		return &ValidationError{Entity: "expense", Field: "serviceFeePercent", Msg: "must be between 0 and 100"}
	}
	return nil
}

// ValidateExpenseItem checks an expense item payload's scalar fields.
func ValidateExpenseItem(name string, amount float64) error {
	if name == "" {
		return &ValidationError{Entity: "expense_item", Field: "name", Msg: "is required"}
	}
	if amount < 0 {
		return &ValidationError{Entity: "expense_item", Field: "amount", Msg: "must not be negative"}
	}
	return nil
}
