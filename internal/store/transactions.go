package store

import (
	"math"
	"time"
)

// AddTransaction inserts a financial entry. The amount sign is
// normalized to match the type: expenses are stored negative, income
// positive, regardless of the sign the caller passed.
func (s *Store) AddTransaction(t *Transaction) error {
	switch t.Type {
	case TypeExpense:
		t.Amount = -math.Abs(t.Amount)
	case TypeIncome:
		t.Amount = math.Abs(t.Amount)
	}

	now := time.Now().UTC()
	res, err := s.db.Exec(
		`INSERT INTO transactions (owner, description, amount, type, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		t.Owner, t.Description, t.Amount, t.Type, now,
	)
	if err != nil {
		return classifyErr(err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	t.ID = id
	t.CreatedAt = now
	return nil
}

// GetTransactions returns an owner's transactions newest-first.
func (s *Store) GetTransactions(owner string) ([]*Transaction, error) {
	rows, err := s.db.Query(
		`SELECT id, owner, description, amount, type, created_at
		 FROM transactions WHERE owner = ?
		 ORDER BY created_at DESC, id DESC`, owner)
	if err != nil {
		return nil, classifyErr(err)
	}
	defer rows.Close()

	var txs []*Transaction
	for rows.Next() {
		var t Transaction
		if err := rows.Scan(&t.ID, &t.Owner, &t.Description, &t.Amount, &t.Type, &t.CreatedAt); err != nil {
			return nil, err
		}
		txs = append(txs, &t)
	}
	return txs, rows.Err()
}

// GetSummary computes income, expenses and balance in SQL. Expenses
// are reported as an absolute value.
func (s *Store) GetSummary(owner string) (*Summary, error) {
	var sum Summary
	err := s.db.QueryRow(
		`SELECT
			COALESCE(SUM(CASE WHEN amount > 0 THEN amount ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN amount < 0 THEN -amount ELSE 0 END), 0),
			COALESCE(SUM(amount), 0)
		 FROM transactions WHERE owner = ?`, owner).
		Scan(&sum.Income, &sum.Expenses, &sum.Balance)
	if err != nil {
		return nil, classifyErr(err)
	}
	return &sum, nil
}
