package settle

import (
	"math"
	"testing"

	"github.com/tallyapp/tally/internal/models"
)

func threeMemberBill() *models.Bill {
	return &models.Bill{
		ID:   "bill-1",
		Name: "Dinner",
		Members: []models.Member{
			{ID: "a", Name: "Alice", DisplayOrder: 0},
			{ID: "b", Name: "Bob", DisplayOrder: 1},
			{ID: "c", Name: "Carol", DisplayOrder: 2},
		},
	}
}

func TestCompute(t *testing.T) {
	tests := []struct {
		name         string
		bill         *models.Bill
		validateFunc func(t *testing.T, balances []MemberBalance)
	}{
		{
			name: "service fee inflates shares",
			bill: func() *models.Bill {
				b := threeMemberBill()
				b.Members = b.Members[:2]
				b.Expenses = []models.Expense{{
					ID: "e1", Name: "Lunch", Amount: 100, ServiceFeePercent: 10,
					PaidByID: "a", ParticipantIDs: []string{"a", "b"},
				}}
				return b
			}(),
			validateFunc: func(t *testing.T, balances []MemberBalance) {
				// 100 * 1.10 = 110, shared equally: 55 each.
				alice, bob := balances[0], balances[1]
				if math.Abs(alice.TotalPaid-110) > 0.001 {
					t.Errorf("Alice paid = %v, want 110", alice.TotalPaid)
				}
				if math.Abs(alice.TotalOwed-55) > 0.001 {
					t.Errorf("Alice owed = %v, want 55", alice.TotalOwed)
				}
				if math.Abs(alice.Balance-55) > 0.001 {
					t.Errorf("Alice balance = %v, want 55", alice.Balance)
				}
				if math.Abs(bob.Balance+55) > 0.001 {
					t.Errorf("Bob balance = %v, want -55", bob.Balance)
				}
			},
		},
		{
			name: "one payer three participants",
			bill: func() *models.Bill {
				b := threeMemberBill()
				b.Expenses = []models.Expense{{
					ID: "e1", Name: "Taxi", Amount: 90,
					PaidByID: "a", ParticipantIDs: []string{"a", "b", "c"},
				}}
				return b
			}(),
			validateFunc: func(t *testing.T, balances []MemberBalance) {
				want := map[string]float64{"a": 60, "b": -30, "c": -30}
				for _, bal := range balances {
					if math.Abs(bal.Balance-want[bal.MemberID]) > 0.001 {
						t.Errorf("%s balance = %v, want %v", bal.Name, bal.Balance, want[bal.MemberID])
					}
				}
			},
		},
		{
			name: "itemized expense ignores its own amount",
			bill: func() *models.Bill {
				b := threeMemberBill()
				b.Members = b.Members[:2]
				b.Expenses = []models.Expense{{
					ID: "e1", Name: "Groceries", Amount: 999, IsItemized: true,
					PaidByID: "a", ParticipantIDs: []string{"a", "b"},
					Items: []models.ExpenseItem{
						{ID: "i1", Name: "Milk", Amount: 4, PaidByID: "a", ParticipantIDs: []string{"a", "b"}},
						{ID: "i2", Name: "Steak", Amount: 20, PaidByID: "b", ParticipantIDs: []string{"b"}},
					},
				}}
				return b
			}(),
			validateFunc: func(t *testing.T, balances []MemberBalance) {
				// Alice paid 4, owes 2. Bob paid 20, owes 2 + 20.
				alice, bob := balances[0], balances[1]
				if math.Abs(alice.Balance-2) > 0.001 {
					t.Errorf("Alice balance = %v, want 2", alice.Balance)
				}
				if math.Abs(bob.Balance+2) > 0.001 {
					t.Errorf("Bob balance = %v, want -2", bob.Balance)
				}
			},
		},
		{
			name: "zero participants contributes nothing",
			bill: func() *models.Bill {
				b := threeMemberBill()
				b.Expenses = []models.Expense{{
					ID: "e1", Name: "Unassigned", Amount: 50, PaidByID: "a",
				}}
				return b
			}(),
			validateFunc: func(t *testing.T, balances []MemberBalance) {
				for _, bal := range balances {
					if bal.Balance != 0 || bal.TotalPaid != 0 || bal.TotalOwed != 0 {
						t.Errorf("%s = %+v, want all zero", bal.Name, bal)
					}
				}
			},
		},
		{
			name: "deleted expenses and items are skipped",
			bill: func() *models.Bill {
				b := threeMemberBill()
				b.Members = b.Members[:2]
				b.Expenses = []models.Expense{
					{ID: "e1", Name: "Gone", Amount: 100, PaidByID: "a",
						ParticipantIDs: []string{"a", "b"}, Deleted: true},
					{ID: "e2", Name: "Kept", Amount: 10, IsItemized: true, PaidByID: "a",
						ParticipantIDs: []string{"a", "b"},
						Items: []models.ExpenseItem{
							{ID: "i1", Name: "Live", Amount: 10, PaidByID: "a", ParticipantIDs: []string{"a", "b"}},
							{ID: "i2", Name: "Dead", Amount: 80, PaidByID: "a", ParticipantIDs: []string{"b"}, Deleted: true},
						}},
				}
				return b
			}(),
			validateFunc: func(t *testing.T, balances []MemberBalance) {
				alice := balances[0]
				if math.Abs(alice.TotalPaid-10) > 0.001 {
					t.Errorf("Alice paid = %v, want 10", alice.TotalPaid)
				}
				if math.Abs(alice.Balance-5) > 0.001 {
					t.Errorf("Alice balance = %v, want 5", alice.Balance)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			balances := Compute(tt.bill)
			tt.validateFunc(t, balances)

			// Balances must always sum to zero within rounding tolerance.
			var sum float64
			for _, b := range balances {
				sum += b.Balance
			}
			if math.Abs(sum) > 0.01*float64(len(balances)) {
				t.Errorf("balances sum = %v, want ~0", sum)
			}
		})
	}
}

func TestComputeExcludesDeletedMembers(t *testing.T) {
	bill := threeMemberBill()
	bill.Members[2].Deleted = true
	bill.Expenses = []models.Expense{{
		ID: "e1", Name: "Lunch", Amount: 30,
		PaidByID: "a", ParticipantIDs: []string{"a", "b"},
	}}

	balances := Compute(bill)
	if len(balances) != 2 {
		t.Fatalf("got %d balances, want 2", len(balances))
	}
	for _, b := range balances {
		if b.MemberID == "c" {
			t.Errorf("deleted member present in balances")
		}
	}
}

func TestTotals(t *testing.T) {
	bill := threeMemberBill()
	bill.Expenses = []models.Expense{
		{ID: "e1", Name: "Dinner", Amount: 100, ServiceFeePercent: 10,
			PaidByID: "a", ParticipantIDs: []string{"a", "b"}},
		{ID: "e2", Name: "Groceries", Amount: 999, IsItemized: true, ServiceFeePercent: 0,
			PaidByID: "a", ParticipantIDs: []string{"a"},
			Items: []models.ExpenseItem{
				{ID: "i1", Name: "Milk", Amount: 4, PaidByID: "a", ParticipantIDs: []string{"a"}},
			}},
		{ID: "e3", Name: "Old", Amount: 50, PaidByID: "a",
			ParticipantIDs: []string{"a"}, Deleted: true},
	}

	total, withFees := Totals(bill)
	if math.Abs(total-104) > 0.001 {
		t.Errorf("total = %v, want 104", total)
	}
	if math.Abs(withFees-114) > 0.001 {
		t.Errorf("total with fees = %v, want 114", withFees)
	}
}
