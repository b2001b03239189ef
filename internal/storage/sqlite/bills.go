package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/tallyapp/tally/internal/models"
	"github.com/tallyapp/tally/internal/storage"
)

// CreateBill persists a new bill aggregate, children included, in one
// transaction. Nothing is committed on failure.
func (s *SQLiteStore) CreateBill(ctx context.Context, bill *models.Bill) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		"INSERT INTO bills (id, name, share_code, version, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)",
		bill.ID, bill.Name, bill.ShareCode, bill.Version, bill.CreatedAt, bill.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert bill: %w", err)
	}
	if err := insertChildren(ctx, tx, bill); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// GetBill retrieves a bill aggregate by ID, tombstones included.
func (s *SQLiteStore) GetBill(ctx context.Context, billID string) (*models.Bill, error) {
	return s.getBill(ctx, "id", billID)
}

// GetBillByShareCode retrieves a bill aggregate by its share code.
func (s *SQLiteStore) GetBillByShareCode(ctx context.Context, code string) (*models.Bill, error) {
	return s.getBill(ctx, "share_code", code)
}

func (s *SQLiteStore) getBill(ctx context.Context, column, value string) (*models.Bill, error) {
	bill := &models.Bill{}
	err := s.db.QueryRowContext(ctx,
		"SELECT id, name, share_code, version, created_at, updated_at FROM bills WHERE "+column+" = ?",
		value,
	).Scan(&bill.ID, &bill.Name, &bill.ShareCode, &bill.Version, &bill.CreatedAt, &bill.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, storage.ErrBillNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get bill: %w", err)
	}

	if err := s.loadMembers(ctx, bill); err != nil {
		return nil, err
	}
	if err := s.loadExpenses(ctx, bill); err != nil {
		return nil, err
	}
	if err := s.loadSettledTransfers(ctx, bill); err != nil {
		return nil, err
	}
	return bill, nil
}

func (s *SQLiteStore) loadMembers(ctx context.Context, bill *models.Bill) error {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, local_id, name, display_order, linked_user_id, claimed_at, original_name, deleted
		 FROM members WHERE bill_id = ? ORDER BY display_order, id`,
		bill.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to get members: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var m models.Member
		var linkedUserID sql.NullString
		if err := rows.Scan(&m.ID, &m.LocalID, &m.Name, &m.DisplayOrder,
			&linkedUserID, &m.ClaimedAt, &m.OriginalName, &m.Deleted); err != nil {
			return fmt.Errorf("failed to scan member: %w", err)
		}
		m.LinkedUserID = linkedUserID.String
		bill.Members = append(bill.Members, m)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("failed to iterate members: %w", err)
	}
	return nil
}

func (s *SQLiteStore) loadExpenses(ctx context.Context, bill *models.Bill) error {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, local_id, name, amount, service_fee_percent, is_itemized, paid_by, deleted
		 FROM expenses WHERE bill_id = ? ORDER BY id`,
		bill.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to get expenses: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var e models.Expense
		if err := rows.Scan(&e.ID, &e.LocalID, &e.Name, &e.Amount,
			&e.ServiceFeePercent, &e.IsItemized, &e.PaidByID, &e.Deleted); err != nil {
			return fmt.Errorf("failed to scan expense: %w", err)
		}
		bill.Expenses = append(bill.Expenses, e)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("failed to iterate expenses: %w", err)
	}

	for i := range bill.Expenses {
		e := &bill.Expenses[i]
		e.ParticipantIDs, err = s.loadParticipants(ctx, "expense_participants", "expense_id", e.ID)
		if err != nil {
			return err
		}
		if err := s.loadItems(ctx, e); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteStore) loadItems(ctx context.Context, exp *models.Expense) error {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, local_id, name, amount, paid_by, deleted
		 FROM expense_items WHERE expense_id = ? ORDER BY id`,
		exp.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to get expense items: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var it models.ExpenseItem
		if err := rows.Scan(&it.ID, &it.LocalID, &it.Name, &it.Amount, &it.PaidByID, &it.Deleted); err != nil {
			return fmt.Errorf("failed to scan expense item: %w", err)
		}
		exp.Items = append(exp.Items, it)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("failed to iterate expense items: %w", err)
	}

	for i := range exp.Items {
		it := &exp.Items[i]
		it.ParticipantIDs, err = s.loadParticipants(ctx, "item_participants", "item_id", it.ID)
		if err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteStore) loadParticipants(ctx context.Context, table, column, ownerID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT member_id FROM "+table+" WHERE "+column+" = ? ORDER BY position",
		ownerID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get participants: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan participant: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate participants: %w", err)
	}
	return ids, nil
}

func (s *SQLiteStore) loadSettledTransfers(ctx context.Context, bill *models.Bill) error {
	rows, err := s.db.QueryContext(ctx,
		`SELECT from_member, to_member, amount, settled_at
		 FROM settled_transfers WHERE bill_id = ? ORDER BY from_member, to_member`,
		bill.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to get settled transfers: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var st models.SettledTransfer
		if err := rows.Scan(&st.FromMemberID, &st.ToMemberID, &st.Amount, &st.SettledAt); err != nil {
			return fmt.Errorf("failed to scan settled transfer: %w", err)
		}
		bill.SettledTransfers = append(bill.SettledTransfers, st)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("failed to iterate settled transfers: %w", err)
	}
	return nil
}

// SaveBill commits the whole aggregate in one transaction. The bills row is
// updated with a WHERE clause on the expected version; zero rows affected
// means another writer got there first and nothing is committed. Child rows
// are rewritten wholesale, which keeps the write path simple and makes the
// saved state exactly the in-memory aggregate.
func (s *SQLiteStore) SaveBill(ctx context.Context, bill *models.Bill, expectedVersion int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		"UPDATE bills SET name = ?, version = ?, updated_at = ? WHERE id = ? AND version = ?",
		bill.Name, bill.Version, bill.UpdatedAt, bill.ID, expectedVersion,
	)
	if err != nil {
		return fmt.Errorf("failed to update bill: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check update result: %w", err)
	}
	if affected == 0 {
		return storage.ErrVersionMismatch
	}

	if err := deleteChildren(ctx, tx, bill.ID); err != nil {
		return err
	}
	if err := insertChildren(ctx, tx, bill); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// insertChildren writes the aggregate's child rows inside the caller's
// transaction.
func insertChildren(ctx context.Context, tx *sql.Tx, bill *models.Bill) error {
	for _, m := range bill.Members {
		var linkedUserID interface{}
		if m.LinkedUserID != "" {
			linkedUserID = m.LinkedUserID
		}
		_, err := tx.ExecContext(ctx,
			`INSERT INTO members (id, bill_id, local_id, name, display_order, linked_user_id, claimed_at, original_name, deleted)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			m.ID, bill.ID, m.LocalID, m.Name, m.DisplayOrder, linkedUserID, m.ClaimedAt, m.OriginalName, m.Deleted,
		)
		if err != nil {
			return fmt.Errorf("failed to insert member: %w", err)
		}
	}

	for _, e := range bill.Expenses {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO expenses (id, bill_id, local_id, name, amount, service_fee_percent, is_itemized, paid_by, deleted)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			e.ID, bill.ID, e.LocalID, e.Name, e.Amount, e.ServiceFeePercent, e.IsItemized, e.PaidByID, e.Deleted,
		)
		if err != nil {
			return fmt.Errorf("failed to insert expense: %w", err)
		}
		if err := insertParticipants(ctx, tx, "expense_participants", "expense_id", e.ID, e.ParticipantIDs); err != nil {
			return err
		}

		for _, it := range e.Items {
			_, err := tx.ExecContext(ctx,
				`INSERT INTO expense_items (id, expense_id, local_id, name, amount, paid_by, deleted)
				 VALUES (?, ?, ?, ?, ?, ?, ?)`,
				it.ID, e.ID, it.LocalID, it.Name, it.Amount, it.PaidByID, it.Deleted,
			)
			if err != nil {
				return fmt.Errorf("failed to insert expense item: %w", err)
			}
			if err := insertParticipants(ctx, tx, "item_participants", "item_id", it.ID, it.ParticipantIDs); err != nil {
				return err
			}
		}
	}

	for _, st := range bill.SettledTransfers {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO settled_transfers (bill_id, from_member, to_member, amount, settled_at)
			 VALUES (?, ?, ?, ?, ?)`,
			bill.ID, st.FromMemberID, st.ToMemberID, st.Amount, st.SettledAt,
		)
		if err != nil {
			return fmt.Errorf("failed to insert settled transfer: %w", err)
		}
	}
	return nil
}

// deleteChildren clears child rows bottom-up so no ordering depends on the
// driver's foreign-key pragma state.
func deleteChildren(ctx context.Context, tx *sql.Tx, billID string) error {
	statements := []string{
		`DELETE FROM item_participants WHERE item_id IN (
			SELECT id FROM expense_items WHERE expense_id IN (SELECT id FROM expenses WHERE bill_id = ?))`,
		"DELETE FROM expense_items WHERE expense_id IN (SELECT id FROM expenses WHERE bill_id = ?)",
		"DELETE FROM expense_participants WHERE expense_id IN (SELECT id FROM expenses WHERE bill_id = ?)",
		"DELETE FROM expenses WHERE bill_id = ?",
		"DELETE FROM members WHERE bill_id = ?",
		"DELETE FROM settled_transfers WHERE bill_id = ?",
	}
	for _, stmt := range statements {
		if _, err := tx.ExecContext(ctx, stmt, billID); err != nil {
			return fmt.Errorf("failed to clear bill children: %w", err)
		}
	}
	return nil
}

func insertParticipants(ctx context.Context, tx *sql.Tx, table, column, ownerID string, memberIDs []string) error {
	for i, memberID := range memberIDs {
		_, err := tx.ExecContext(ctx,
			"INSERT INTO "+table+" ("+column+", position, member_id) VALUES (?, ?, ?)",
			ownerID, i, memberID,
		)
		if err != nil {
			return fmt.Errorf("failed to insert participant: %w", err)
		}
	}
	return nil
}
