package settle

import (
	"sort"

	"github.com/shopspring/decimal"
)

// settledEpsilon is the threshold below which a balance counts as settled
// and a transfer counts as noise. It absorbs output rounding.
const settledEpsilon = 0.01

// Transfer is one pairwise payment of the settlement plan.
type Transfer struct {
	FromMemberID string
	ToMemberID   string
	Amount       float64
}

// Plan returns the list of transfers that zeroes every balance, using greedy
// largest-magnitude matching: repeatedly pay the largest creditor from the
// largest debtor. Greedy is not guaranteed minimal in every multi-party
// case, but it is deterministic and stable, which matters more here: every
// client must reproduce the server's plan exactly. Ties keep the incoming
// member order, so callers must pass balances in the order Compute returns
// them.
func Plan(balances []MemberBalance) []Transfer {
	type party struct {
		id        string
		remaining float64
	}

	var creditors, debtors []party
	for _, b := range balances {
		switch {
		case b.Balance > settledEpsilon:
			creditors = append(creditors, party{id: b.MemberID, remaining: b.Balance})
		case b.Balance < -settledEpsilon:
			debtors = append(debtors, party{id: b.MemberID, remaining: -b.Balance})
		}
	}

	sort.SliceStable(creditors, func(i, j int) bool {
		return creditors[i].remaining > creditors[j].remaining
	})
	sort.SliceStable(debtors, func(i, j int) bool {
		return debtors[i].remaining > debtors[j].remaining
	})

	var transfers []Transfer
	i, j := 0, 0
	for i < len(debtors) && j < len(creditors) {
		amount := debtors[i].remaining
		if creditors[j].remaining < amount {
			amount = creditors[j].remaining
		}

		if amount > settledEpsilon {
			transfers = append(transfers, Transfer{
				FromMemberID: debtors[i].id,
				ToMemberID:   creditors[j].id,
				Amount:       Round2(amount),
			})
		}

		debtors[i].remaining -= amount
		creditors[j].remaining -= amount
		if debtors[i].remaining < settledEpsilon {
			i++
		}
		if creditors[j].remaining < settledEpsilon {
			j++
		}
	}
	return transfers
}

// Round2 rounds to two decimal places, half away from zero.
func Round2(v float64) float64 {
	f, _ := decimal.NewFromFloat(v).Round(2).Float64()
	return f
}
