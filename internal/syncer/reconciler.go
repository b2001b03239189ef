package syncer

// entityKind namespaces local IDs: two entity types may reuse the same
// local identifier without colliding.
type entityKind string

const (
	kindMember  entityKind = "member"
	kindExpense entityKind = "expense"
	kindItem    entityKind = "expense_item"
)

// reconciler maps client-local identifiers to server identifiers within one
// merge. Entities created earlier in the merge are resolvable by later
// entities before anything has been persisted; the merge ordering (members,
// then expenses, then items) depends on that.
type reconciler struct {
	byKind map[entityKind]map[string]string
}

func newReconciler() *reconciler {
	return &reconciler{byKind: map[entityKind]map[string]string{
		kindMember:  {},
		kindExpense: {},
		kindItem:    {},
	}}
}

// record stores a local-to-remote assignment. Called once per entity whose
// local ID was seen in this merge, whether freshly created or matched to an
// existing row.
func (r *reconciler) record(kind entityKind, localID, remoteID string) {
	if localID == "" {
		return
	}
	r.byKind[kind][localID] = remoteID
}

// resolve returns the remote ID recorded for a local ID in this merge.
func (r *reconciler) resolve(kind entityKind, localID string) (string, bool) {
	id, ok := r.byKind[kind][localID]
	return id, ok
}

// mappings exports the table for the sync response.
func (r *reconciler) mappings() IDMappings {
	return IDMappings{
		Members:      r.byKind[kindMember],
		Expenses:     r.byKind[kindExpense],
		ExpenseItems: r.byKind[kindItem],
	}
}
