package tooling

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"expensechat/internal/domain"
)

// =============================================================================
// add_expense
// =============================================================================

// AddExpenseInput is the argument record of add_expense.
type AddExpenseInput struct {
	Amount      float64 `json:"amount" jsonschema:"exclusiveMinimum=0" jsonschema_description:"Amount spent"`
	Category    string  `json:"category" jsonschema:"enum=food,enum=travel,enum=bills,enum=shopping,enum=other" jsonschema_description:"Expense category"`
	Date        string  `json:"date,omitempty" jsonschema_description:"Date in YYYY-MM-DD format (default: today)"`
	Description string  `json:"description,omitempty" jsonschema_description:"Optional description"`
}

// AddExpenseResult is the success payload of add_expense.
type AddExpenseResult struct {
	Success bool           `json:"success"`
	Expense domain.Expense `json:"expense"`
}

type AddExpenseTool struct{}

func (t *AddExpenseTool) Name() string { return "add_expense" }

func (t *AddExpenseTool) Description() string { return "Add a new expense to the database" }

func (t *AddExpenseTool) Definition() string { return GenerateSchema(AddExpenseInput{}) }

func (t *AddExpenseTool) Call(ctx context.Context, scope Scope, args json.RawMessage) (any, error) {
	in, err := decodeArgs[AddExpenseInput](args)
	if err != nil {
		return nil, err
	}
	if in.Amount <= 0 || math.IsInf(in.Amount, 0) || math.IsNaN(in.Amount) {
		return nil, fmt.Errorf("%w: amount must be a positive number", domain.ErrInvalidArguments)
	}
	category, err := domain.ParseCategory(in.Category)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidArguments, err)
	}
	date := scope.Today.Format(domain.DateLayout)
	if in.Date != "" {
		if date, err = parseDate("date", in.Date); err != nil {
			return nil, err
		}
	}

	expense, err := scope.Ledger.AddExpense(ctx, scope.OwnerID, domain.NewExpense{
		Amount:      in.Amount,
		Category:    category,
		Date:        date,
		Description: strings.TrimSpace(in.Description),
	})
	if err != nil {
		return nil, err
	}
	return AddExpenseResult{Success: true, Expense: expense}, nil
}

// =============================================================================
// get_expenses
// =============================================================================

// GetExpensesInput is the argument record of get_expenses.
type GetExpensesInput struct {
	Category  string  `json:"category,omitempty" jsonschema_description:"Filter by category"`
	StartDate string  `json:"startDate,omitempty" jsonschema_description:"Start date YYYY-MM-DD"`
	EndDate   string  `json:"endDate,omitempty" jsonschema_description:"End date YYYY-MM-DD"`
	Limit     float64 `json:"limit,omitempty" jsonschema:"minimum=1" jsonschema_description:"Number of results"`
}

// ExpensesResult is the success payload of get_expenses.
type ExpensesResult struct {
	Expenses []domain.Expense `json:"expenses"`
}

type GetExpensesTool struct{}

func (t *GetExpensesTool) Name() string { return "get_expenses" }

func (t *GetExpensesTool) Description() string { return "Retrieve expenses based on filters" }

func (t *GetExpensesTool) Definition() string { return GenerateSchema(GetExpensesInput{}) }

func (t *GetExpensesTool) Call(ctx context.Context, scope Scope, args json.RawMessage) (any, error) {
	in, err := decodeArgs[GetExpensesInput](args)
	if err != nil {
		return nil, err
	}
	var f domain.ExpenseFilter
	if in.Category != "" {
		if f.Category, err = domain.ParseCategory(in.Category); err != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrInvalidArguments, err)
		}
	}
	if in.StartDate != "" {
		if f.StartDate, err = parseDate("startDate", in.StartDate); err != nil {
			return nil, err
		}
	}
	if in.EndDate != "" {
		if f.EndDate, err = parseDate("endDate", in.EndDate); err != nil {
			return nil, err
		}
	}
	if in.Limit < 0 {
		return nil, fmt.Errorf("%w: limit must be positive", domain.ErrInvalidArguments)
	}
	// Models send numbers like 10.0; fractional limits are truncated.
	f.Limit = int(in.Limit)

	expenses, err := scope.Ledger.GetExpenses(ctx, scope.OwnerID, f)
	if err != nil {
		return nil, err
	}
	if expenses == nil {
		expenses = []domain.Expense{}
	}
	return ExpensesResult{Expenses: expenses}, nil
}

// =============================================================================
// calculate_total
// =============================================================================

// CalculateTotalInput is the argument record of calculate_total.
type CalculateTotalInput struct {
	Period   string `json:"period" jsonschema:"enum=today,enum=week,enum=month,enum=all" jsonschema_description:"Time period"`
	Category string `json:"category,omitempty" jsonschema_description:"Specific category"`
}

type CalculateTotalTool struct{}

func (t *CalculateTotalTool) Name() string { return "calculate_total" }

func (t *CalculateTotalTool) Description() string { return "Calculate total expenses for a period" }

func (t *CalculateTotalTool) Definition() string { return GenerateSchema(CalculateTotalInput{}) }

func (t *CalculateTotalTool) Call(ctx context.Context, scope Scope, args json.RawMessage) (any, error) {
	in, err := decodeArgs[CalculateTotalInput](args)
	if err != nil {
		return nil, err
	}
	var f domain.TotalFilter
	if f.StartDate, f.EndDate, err = Period(in.Period).Range(scope.Today); err != nil {
		return nil, err
	}
	if in.Category != "" {
		if f.Category, err = domain.ParseCategory(in.Category); err != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrInvalidArguments, err)
		}
	}

	totals, err := scope.Ledger.CalculateTotal(ctx, scope.OwnerID, f)
	if err != nil {
		return nil, err
	}
	if totals.ByCategory == nil {
		totals.ByCategory = map[domain.Category]float64{}
	}
	return totals, nil
}

// =============================================================================
// delete_expense
// =============================================================================

// DeleteExpenseInput is the argument record of delete_expense.
type DeleteExpenseInput struct {
	ID string `json:"id" jsonschema:"minLength=1" jsonschema_description:"Expense ID to delete"`
}

// DeleteResult is the success payload of delete_expense. Deleted is false
// when no entry with that id belongs to the owner.
type DeleteResult struct {
	Success bool `json:"success"`
	Deleted bool `json:"deleted"`
}

type DeleteExpenseTool struct{}

func (t *DeleteExpenseTool) Name() string { return "delete_expense" }

func (t *DeleteExpenseTool) Description() string { return "Delete an expense by ID" }

func (t *DeleteExpenseTool) Definition() string { return GenerateSchema(DeleteExpenseInput{}) }

func (t *DeleteExpenseTool) Call(ctx context.Context, scope Scope, args json.RawMessage) (any, error) {
	in, err := decodeArgs[DeleteExpenseInput](args)
	if err != nil {
		return nil, err
	}
	id := strings.TrimSpace(in.ID)
	if id == "" {
		return nil, fmt.Errorf("%w: id must not be empty", domain.ErrInvalidArguments)
	}
	deleted, err := scope.Ledger.DeleteExpense(ctx, scope.OwnerID, id)
	if err != nil {
		return nil, err
	}
	return DeleteResult{Success: true, Deleted: deleted}, nil
}
