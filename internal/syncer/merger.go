package syncer

import (
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/tallyapp/tally/internal/models"
)

// applyDelta merges a client delta into the bill aggregate in place,
// returning the identifier mappings and whether anything actually changed.
// On error the bill must be discarded by the caller: the merge is
// all-or-nothing and a partially mutated aggregate is never persisted.
//
// Processing order matters and follows the reference chain: member upserts
// and deletes first, then expenses with their nested line items, then the
// settled-transfer set. A member created earlier in the same delta is
// resolvable by a later expense through the in-flight reconciler.
func applyDelta(bill *models.Bill, d *Delta) (*reconciler, bool, error) {
	rec := newReconciler()
	changed := false

	if d.Name != "" && d.Name != bill.Name {
		bill.Name = d.Name
		changed = true
	}

	for _, u := range d.Members.Upserts {
		c, err := applyMemberUpsert(bill, rec, u)
		if err != nil {
			return nil, false, err
		}
		changed = changed || c
	}
	for _, id := range d.Members.DeletedIDs {
		// Delete is idempotent: an unknown or already-deleted ID is a no-op.
		if m := bill.FindMember(id); m != nil && !m.Deleted {
			m.Deleted = true
			changed = true
		}
	}

	for _, u := range d.Expenses.Upserts {
		c, err := applyExpenseUpsert(bill, rec, u)
		if err != nil {
			return nil, false, err
		}
		changed = changed || c
	}
	for _, id := range d.Expenses.DeletedIDs {
		e := bill.FindExpense(id)
		if e == nil || e.Deleted {
			continue
		}
		e.Deleted = true
		// Deleting an expense tombstones its items with it.
		for i := range e.Items {
			e.Items[i].Deleted = true
		}
		changed = true
	}

	if d.ReplaceSettledTransfers {
		c, err := replaceSettledTransfers(bill, rec, d.SettledTransfers)
		if err != nil {
			return nil, false, err
		}
		changed = changed || c
	}

	return rec, changed, nil
}

func applyMemberUpsert(bill *models.Bill, rec *reconciler, u MemberUpsert) (bool, error) {
	if err := models.ValidateMemberName(u.Name); err != nil {
		return false, err
	}

	var target *models.Member
	if u.RemoteID != "" {
		target = bill.FindMember(u.RemoteID)
		if target == nil {
			return false, &RefIntegrityError{Entity: entityRef("member", u.LocalID, u.RemoteID), Field: "remoteId", Ref: u.RemoteID}
		}
	} else {
		// A retried sync may recreate an entity whose mapping response was
		// lost; the persisted local ID correlates it back to the same row.
		target = bill.FindMemberByLocalID(u.LocalID)
	}

	if target == nil {
		m := models.Member{
			ID:           uuid.New().String(),
			LocalID:      u.LocalID,
			Name:         u.Name,
			DisplayOrder: u.DisplayOrder,
			LinkedUserID: u.LinkedUserID,
			ClaimedAt:    u.ClaimedAt,
		}
		bill.Members = append(bill.Members, m)
		rec.record(kindMember, u.LocalID, m.ID)
		return true, nil
	}

	rec.record(kindMember, u.LocalID, target.ID)
	updated := *target
	updated.Name = u.Name
	updated.DisplayOrder = u.DisplayOrder
	updated.LinkedUserID = u.LinkedUserID
	updated.ClaimedAt = u.ClaimedAt
	// An upsert of a tombstoned member revives it, mirroring expenses.
	updated.Deleted = false
	if updated == *target {
		return false, nil
	}
	*target = updated
	return true, nil
}

func applyExpenseUpsert(bill *models.Bill, rec *reconciler, u ExpenseUpsert) (bool, error) {
	if err := models.ValidateExpense(u.Name, u.Amount, u.ServiceFeePercent); err != nil {
		return false, err
	}

	ref := entityRef("expense", u.LocalID, u.RemoteID)
	paidBy, err := resolveMemberRef(bill, rec, ref, "paidBy", u.PaidBy)
	if err != nil {
		return false, err
	}
	participants, err := resolveMemberRefs(bill, rec, ref, "participants", u.ParticipantIDs)
	if err != nil {
		return false, err
	}

	var target *models.Expense
	if u.RemoteID != "" {
		target = bill.FindExpense(u.RemoteID)
		if target == nil {
			return false, &RefIntegrityError{Entity: ref, Field: "remoteId", Ref: u.RemoteID}
		}
	} else {
		target = bill.FindExpenseByLocalID(u.LocalID)
	}

	changed := false
	if target == nil {
		e := models.Expense{
			ID:                uuid.New().String(),
			LocalID:           u.LocalID,
			Name:              u.Name,
			Amount:            u.Amount,
			ServiceFeePercent: u.ServiceFeePercent,
			IsItemized:        u.IsItemized,
			PaidByID:          paidBy,
			ParticipantIDs:    participants,
		}
		bill.Expenses = append(bill.Expenses, e)
		target = &bill.Expenses[len(bill.Expenses)-1]
		rec.record(kindExpense, u.LocalID, target.ID)
		changed = true
	} else {
		rec.record(kindExpense, u.LocalID, target.ID)
		if target.Name != u.Name {
			target.Name = u.Name
			changed = true
		}
		if target.Amount != u.Amount {
			target.Amount = u.Amount
			changed = true
		}
		if target.ServiceFeePercent != u.ServiceFeePercent {
			target.ServiceFeePercent = u.ServiceFeePercent
			changed = true
		}
		if target.IsItemized != u.IsItemized {
			target.IsItemized = u.IsItemized
			changed = true
		}
		if target.PaidByID != paidBy {
			target.PaidByID = paidBy
			changed = true
		}
		if !slices.Equal(target.ParticipantIDs, participants) {
			target.ParticipantIDs = participants
			changed = true
		}
		if target.Deleted {
			// Upserting a tombstoned expense revives it, and mirrors the
			// delete cascade by reviving its items too. An item meant to
			// stay deleted goes into the upsert's item deletes.
			target.Deleted = false
			for i := range target.Items {
				target.Items[i].Deleted = false
			}
			changed = true
		}
	}

	for _, iu := range u.Items.Upserts {
		c, err := applyItemUpsert(bill, rec, target, iu)
		if err != nil {
			return false, err
		}
		changed = changed || c
	}
	for _, id := range u.Items.DeletedIDs {
		if it := target.FindItem(id); it != nil && !it.Deleted {
			it.Deleted = true
			changed = true
		}
	}
	return changed, nil
}

func applyItemUpsert(bill *models.Bill, rec *reconciler, exp *models.Expense, u ItemUpsert) (bool, error) {
	if err := models.ValidateExpenseItem(u.Name, u.Amount); err != nil {
		return false, err
	}

	ref := entityRef("expense item", u.LocalID, u.RemoteID)
	paidBy, err := resolveMemberRef(bill, rec, ref, "paidBy", u.PaidBy)
	if err != nil {
		return false, err
	}
	participants, err := resolveMemberRefs(bill, rec, ref, "participants", u.ParticipantIDs)
	if err != nil {
		return false, err
	}

	var target *models.ExpenseItem
	if u.RemoteID != "" {
		target = exp.FindItem(u.RemoteID)
		if target == nil {
			return false, &RefIntegrityError{Entity: ref, Field: "remoteId", Ref: u.RemoteID}
		}
	} else {
		target = exp.FindItemByLocalID(u.LocalID)
	}

	if target == nil {
		it := models.ExpenseItem{
			ID:             uuid.New().String(),
			LocalID:        u.LocalID,
			Name:           u.Name,
			Amount:         u.Amount,
			PaidByID:       paidBy,
			ParticipantIDs: participants,
		}
		exp.Items = append(exp.Items, it)
		rec.record(kindItem, u.LocalID, it.ID)
		return true, nil
	}

	rec.record(kindItem, u.LocalID, target.ID)
	changed := false
	if target.Name != u.Name {
		target.Name = u.Name
		changed = true
	}
	if target.Amount != u.Amount {
		target.Amount = u.Amount
		changed = true
	}
	if target.PaidByID != paidBy {
		target.PaidByID = paidBy
		changed = true
	}
	if !slices.Equal(target.ParticipantIDs, participants) {
		target.ParticipantIDs = participants
		changed = true
	}
	if target.Deleted {
		target.Deleted = false
		changed = true
	}
	return changed, nil
}

func replaceSettledTransfers(bill *models.Bill, rec *reconciler, entries []SettledEntry) (bool, error) {
	now := time.Now().Unix()
	newSet := make([]models.SettledTransfer, 0, len(entries))
	for _, s := range entries {
		from, err := resolveMemberRef(bill, rec, "settled transfer", "from", s.From)
		if err != nil {
			return false, err
		}
		to, err := resolveMemberRef(bill, rec, "settled transfer", "to", s.To)
		if err != nil {
			return false, err
		}
		if from == "" || to == "" {
			return false, &RefIntegrityError{Entity: "settled transfer", Field: "from/to", Ref: s.From + "/" + s.To}
		}

		// Keep the original timestamp for markers that survive the
		// replacement: the snapshot belongs to the moment it was marked.
		settledAt := now
		if existing := bill.FindSettled(from, to); existing != nil {
			settledAt = existing.SettledAt
		}
		newSet = append(newSet, models.SettledTransfer{
			FromMemberID: from,
			ToMemberID:   to,
			Amount:       s.Amount,
			SettledAt:    settledAt,
		})
	}

	if settledSetsEqual(bill.SettledTransfers, newSet) {
		return false, nil
	}
	bill.SettledTransfers = newSet
	return true, nil
}

// resolveMemberRef resolves a member reference from a delta: first the
// in-flight mapping (a member created earlier in this same merge), then the
// persisted remote IDs, then persisted local IDs (a reference the client
// still keys by a local ID mapped in an earlier sync). An empty reference
// resolves to empty.
func resolveMemberRef(bill *models.Bill, rec *reconciler, entity, field, ref string) (string, error) {
	if ref == "" {
		return "", nil
	}
	if id, ok := rec.resolve(kindMember, ref); ok {
		return id, nil
	}
	if m := bill.FindMember(ref); m != nil {
		return m.ID, nil
	}
	if m := bill.FindMemberByLocalID(ref); m != nil {
		return m.ID, nil
	}
	return "", &RefIntegrityError{Entity: entity, Field: field, Ref: ref}
}

func resolveMemberRefs(bill *models.Bill, rec *reconciler, entity, field string, refs []string) ([]string, error) {
	if len(refs) == 0 {
		return nil, nil
	}
	out := make([]string, 0, len(refs))
	for _, ref := range refs {
		if ref == "" {
			return nil, &RefIntegrityError{Entity: entity, Field: field, Ref: ref}
		}
		id, err := resolveMemberRef(bill, rec, entity, field, ref)
		if err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, nil
}

func settledSetsEqual(a, b []models.SettledTransfer) bool {
	if len(a) != len(b) {
		return false
	}
	byPair := make(map[string]float64, len(a))
	for _, st := range a {
		byPair[st.FromMemberID+"\x00"+st.ToMemberID] = st.Amount
	}
	for _, st := range b {
		amount, ok := byPair[st.FromMemberID+"\x00"+st.ToMemberID]
		if !ok || amount != st.Amount {
			return false
		}
	}
	return true
}

func entityRef(kind, localID, remoteID string) string {
	if localID != "" {
		return fmt.Sprintf("%s %q", kind, localID)
	}
	return fmt.Sprintf("%s %q", kind, remoteID)
}
