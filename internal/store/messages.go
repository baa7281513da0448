package store

import "time"

// AppendMessage adds one entry to the conversation log.
func (s *Store) AppendMessage(m *Message) error {
	now := time.Now().UTC()
	res, err := s.db.Exec(
		`INSERT INTO messages (owner, role, text, created_at) VALUES (?, ?, ?, ?)`,
		m.Owner, m.Role, m.Text, now,
	)
	if err != nil {
		return classifyErr(err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	m.ID = id
	m.CreatedAt = now
	return nil
}

// GetMessages returns the owner's conversation log oldest-first.
func (s *Store) GetMessages(owner string) ([]*Message, error) {
	rows, err := s.db.Query(
		`SELECT id, owner, role, text, created_at
		 FROM messages WHERE owner = ? ORDER BY id ASC`, owner)
	if err != nil {
		return nil, classifyErr(err)
	}
	defer rows.Close()

	var msgs []*Message
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.ID, &m.Owner, &m.Role, &m.Text, &m.CreatedAt); err != nil {
			return nil, err
		}
		msgs = append(msgs, &m)
	}
	return msgs, rows.Err()
}
