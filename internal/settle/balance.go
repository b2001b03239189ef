// Package settle computes member balances and the transfer plan that zeroes
// them. Everything here is pure: no I/O, deterministic output for a given
// bill state, so clients can reproduce the numbers bit-for-bit.
package settle

import "github.com/tallyapp/tally/internal/models"

// MemberBalance is one member's aggregate position across all expenses.
// All three figures are rounded to two decimals at output; intermediate
// arithmetic stays unrounded to avoid compounding error across expenses.
type MemberBalance struct {
	MemberID string
	Name     string
	// TotalPaid is the fee-inclusive sum this member paid out.
	TotalPaid float64
	// TotalOwed is the fee-inclusive sum of this member's shares.
	TotalOwed float64
	// Balance is TotalPaid - TotalOwed. Positive means the member is owed
	// money.
	Balance float64
}

// Compute returns the balance of every non-deleted member, ordered by
// display order (ties by ID). The result is keyed by member, never by
// iteration order, so it is independent of how the bill was assembled.
//
// For every non-deleted expense the fee-inclusive total is
// amount * (1 + serviceFeePercent/100). In simple mode the payer's paid
// total increases by that amount and each participant owes an equal share;
// an expense with no participants contributes nothing. In itemized mode the
// same rule applies per item, with the fee multiplier inherited from the
// parent expense.
func Compute(bill *models.Bill) []MemberBalance {
	paid := make(map[string]float64)
	owed := make(map[string]float64)

	for _, exp := range bill.Expenses {
		if exp.Deleted {
			continue
		}
		mult := 1 + exp.ServiceFeePercent/100

		if exp.IsItemized {
			for _, item := range exp.Items {
				if item.Deleted {
					continue
				}
				applyShare(paid, owed, item.Amount*mult, item.PaidByID, item.ParticipantIDs)
			}
			continue
		}
		applyShare(paid, owed, exp.Amount*mult, exp.PaidByID, exp.ParticipantIDs)
	}

	members := bill.ActiveMembers()
	balances := make([]MemberBalance, 0, len(members))
	for _, m := range members {
		p, o := paid[m.ID], owed[m.ID]
		balances = append(balances, MemberBalance{
			MemberID:  m.ID,
			Name:      m.Name,
			TotalPaid: Round2(p),
			TotalOwed: Round2(o),
			Balance:   Round2(p - o),
		})
	}
	return balances
}

// Totals returns the bill's raw total and its fee-inclusive total, rounded
// to two decimals. Itemized expenses contribute the sum of their items; the
// expense's own amount is ignored in that mode.
func Totals(bill *models.Bill) (totalAmount, totalWithFees float64) {
	for _, exp := range bill.Expenses {
		if exp.Deleted {
			continue
		}
		mult := 1 + exp.ServiceFeePercent/100
		if exp.IsItemized {
			for _, item := range exp.Items {
				if item.Deleted {
					continue
				}
				totalAmount += item.Amount
				totalWithFees += item.Amount * mult
			}
			continue
		}
		totalAmount += exp.Amount
		totalWithFees += exp.Amount * mult
	}
	return Round2(totalAmount), Round2(totalWithFees)
}

// applyShare credits the payer and spreads the fee-inclusive total equally
// across participants. Zero participants is a no-op, not an error.
func applyShare(paid, owed map[string]float64, total float64, payerID string, participantIDs []string) {
	if len(participantIDs) == 0 {
		return
	}
	if payerID != "" {
		paid[payerID] += total
	}
	share := total / float64(len(participantIDs))
	for _, id := range participantIDs {
		owed[id] += share
	}
}
