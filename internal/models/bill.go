package models

import "sort"

// Bill is the shared aggregate being split among members.
type Bill struct {
	// ID is the server-assigned identifier (UUID format).
	ID string

	// Name is the display name of the bill.
	Name string

	// ShareCode is a short code used to join the bill. Immutable once
	// generated.
	ShareCode string

	// Version starts at 0 and increases by exactly one per committed
	// mutation.
	Version int64

	// Members are all members ever added to the bill, tombstones included.
	Members []Member

	// Expenses are all expenses ever added, tombstones included.
	Expenses []Expense

	// SettledTransfers are the transfers manually acknowledged as paid.
	SettledTransfers []SettledTransfer

	// CreatedAt and UpdatedAt are Unix timestamps.
	CreatedAt int64
	UpdatedAt int64
}

// Member is one participant slot on a bill. A member exists independently of
// any user account; an account may claim a member later.
type Member struct {
	ID string

	// LocalID is the client-generated identifier that first created this
	// member, kept as the correlation key for retried syncs.
	LocalID string

	Name string

	// DisplayOrder defines stable UI ordering; ties break by ID.
	DisplayOrder int

	// LinkedUserID is the account that claimed this member, if any.
	LinkedUserID string

	// ClaimedAt is the Unix timestamp of the claim, 0 when unclaimed.
	ClaimedAt int64

	// OriginalName is the pre-claim name, retained so a claim can be
	// reversed.
	OriginalName string

	Deleted bool
}

// Expense is one cost entry on a bill. Exactly one of its two
// representations is authoritative, selected by IsItemized: in simple mode
// the expense's own Amount/PaidByID/ParticipantIDs apply; in itemized mode
// only the Items do, each inheriting ServiceFeePercent from the expense.
type Expense struct {
	ID      string
	LocalID string

	Name string

	// Amount is the flat amount in simple mode; ignored when itemized.
	Amount float64

	// ServiceFeePercent (0-100) is applied on top of the amount, and on top
	// of every item amount when itemized.
	ServiceFeePercent float64

	IsItemized bool

	// PaidByID is the member who paid; ignored when itemized.
	PaidByID string

	// ParticipantIDs are the members sharing the cost equally; ignored when
	// itemized.
	ParticipantIDs []string

	// Items are the line items; only meaningful when itemized.
	Items []ExpenseItem

	Deleted bool
}

// ExpenseItem is a single line of an itemized expense, with its own payer
// and participant set.
type ExpenseItem struct {
	ID      string
	LocalID string

	Name           string
	Amount         float64
	PaidByID       string
	ParticipantIDs []string

	Deleted bool
}

// SettledTransfer records that a computed transfer has been manually marked
// as paid. Amount is a snapshot taken when the marker was set, so later
// balance changes do not silently unsettle a transfer the user already
// marked done.
type SettledTransfer struct {
	FromMemberID string
	ToMemberID   string
	Amount       float64
	SettledAt    int64
}

// FindMember returns the member with the given remote ID, or nil.
// Tombstoned members are still found: historical references stay valid.
func (b *Bill) FindMember(id string) *Member {
	for i := range b.Members {
		if b.Members[i].ID == id {
			return &b.Members[i]
		}
	}
	return nil
}

// FindMemberByLocalID returns the member created by the given client-local
// ID, or nil.
func (b *Bill) FindMemberByLocalID(localID string) *Member {
	if localID == "" {
		return nil
	}
	for i := range b.Members {
		if b.Members[i].LocalID == localID {
			return &b.Members[i]
		}
	}
	return nil
}

// FindExpense returns the expense with the given remote ID, or nil.
func (b *Bill) FindExpense(id string) *Expense {
	for i := range b.Expenses {
		if b.Expenses[i].ID == id {
			return &b.Expenses[i]
		}
	}
	return nil
}

// FindExpenseByLocalID returns the expense created by the given client-local
// ID, or nil.
func (b *Bill) FindExpenseByLocalID(localID string) *Expense {
	if localID == "" {
		return nil
	}
	for i := range b.Expenses {
		if b.Expenses[i].LocalID == localID {
			return &b.Expenses[i]
		}
	}
	return nil
}

// ActiveMembers returns the non-deleted members in display order.
func (b *Bill) ActiveMembers() []Member {
	var out []Member
	for _, m := range b.Members {
		if !m.Deleted {
			out = append(out, m)
		}
	}
	sortMembers(out)
	return out
}

// ActiveExpenses returns the non-deleted expenses in insertion order.
func (b *Bill) ActiveExpenses() []Expense {
	var out []Expense
	for _, e := range b.Expenses {
		if !e.Deleted {
			out = append(out, e)
		}
	}
	return out
}

// ActiveItems returns the expense's non-deleted items in insertion order.
func (e *Expense) ActiveItems() []ExpenseItem {
	var out []ExpenseItem
	for _, it := range e.Items {
		if !it.Deleted {
			out = append(out, it)
		}
	}
	return out
}

// FindItem returns the item with the given remote ID, or nil.
func (e *Expense) FindItem(id string) *ExpenseItem {
	for i := range e.Items {
		if e.Items[i].ID == id {
			return &e.Items[i]
		}
	}
	return nil
}

// FindItemByLocalID returns the item created by the given client-local ID,
// or nil.
func (e *Expense) FindItemByLocalID(localID string) *ExpenseItem {
	if localID == "" {
		return nil
	}
	for i := range e.Items {
		if e.Items[i].LocalID == localID {
			return &e.Items[i]
		}
	}
	return nil
}

// FindSettled returns the settled-transfer marker for the given member pair,
// or nil.
func (b *Bill) FindSettled(fromID, toID string) *SettledTransfer {
	for i := range b.SettledTransfers {
		st := &b.SettledTransfers[i]
		if st.FromMemberID == fromID && st.ToMemberID == toID {
			return st
		}
	}
	return nil
}

func sortMembers(members []Member) {
	sort.Slice(members, func(i, j int) bool {
		if members[i].DisplayOrder != members[j].DisplayOrder {
			return members[i].DisplayOrder < members[j].DisplayOrder
		}
		return members[i].ID < members[j].ID
	})
}
