package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/tillsync/internal/model"
)

// FindMemberByToken returns the cached member holding the given RFID token.
// Returns ErrNotFound if no member matches (including the empty token).
func (s *Store) FindMemberByToken(ctx context.Context, token string) (model.Member, error) {
	if token == "" {
		return model.Member{}, ErrNotFound
	}

	var m model.Member
	var rfid sql.NullString
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, rfid_token FROM members WHERE rfid_token = ?
	`, token).Scan(&m.ID, &m.Name, &rfid)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Member{}, ErrNotFound
	}
	if err != nil {
		return model.Member{}, fmt.Errorf("find member by token: %w", err)
	}
	m.RFIDToken = rfid.String
	return m, nil
}

// FindProductByBarcode returns the cached product with the given barcode.
// Returns ErrNotFound if no product matches (including the empty barcode).
func (s *Store) FindProductByBarcode(ctx context.Context, barcode string) (model.Product, error) {
	if barcode == "" {
		return model.Product{}, ErrNotFound
	}

	var p model.Product
	var code sql.NullString
	var price string
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, barcode, price FROM products WHERE barcode = ?
	`, barcode).Scan(&p.ID, &p.Name, &code, &price)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Product{}, ErrNotFound
	}
	if err != nil {
		return model.Product{}, fmt.Errorf("find product by barcode: %w", err)
	}

	p.Barcode = code.String
	if p.Price, err = model.ParseMoney(price); err != nil {
		return model.Product{}, fmt.Errorf("find product by barcode: %w", err)
	}
	return p, nil
}

// ReplaceMembers swaps the member cache for the given set in one
// transaction. On any failure (e.g. duplicate RFID token) the previous
// cache is left untouched.
func (s *Store) ReplaceMembers(ctx context.Context, members []model.Member) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("replace members: begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	if _, err := tx.ExecContext(ctx, `DELETE FROM members`); err != nil {
		return fmt.Errorf("replace members: delete: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO members (id, name, rfid_token, synced_at) VALUES (?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("replace members: prepare: %w", err)
	}
	defer stmt.Close()

	syncedAt := formatTime(s.now())
	for _, m := range members {
		if _, err := stmt.ExecContext(ctx, m.ID, m.Name, nullString(m.RFIDToken), syncedAt); err != nil {
			return fmt.Errorf("replace members: insert %s: %w", m.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("replace members: commit: %w", err)
	}
	return nil
}

// ReplaceProducts swaps the product cache for the given set in one
// transaction. On any failure the previous cache is left untouched.
func (s *Store) ReplaceProducts(ctx context.Context, products []model.Product) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("replace products: begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	if _, err := tx.ExecContext(ctx, `DELETE FROM products`); err != nil {
		return fmt.Errorf("replace products: delete: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO products (id, name, barcode, price, synced_at) VALUES (?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("replace products: prepare: %w", err)
	}
	defer stmt.Close()

	syncedAt := formatTime(s.now())
	for _, p := range products {
		_, err := stmt.ExecContext(ctx, p.ID, p.Name, nullString(p.Barcode), p.Price.String(), syncedAt)
		if err != nil {
			return fmt.Errorf("replace products: insert %s: %w", p.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("replace products: commit: %w", err)
	}
	return nil
}

// ListMembers returns the cached members ordered by name.
// Returns an empty slice (not nil) if the cache is empty.
func (s *Store) ListMembers(ctx context.Context) ([]model.Member, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, rfid_token FROM members ORDER BY name, id
	`)
	if err != nil {
		return nil, fmt.Errorf("query members: %w", err)
	}
	defer rows.Close()

	members := []model.Member{}
	for rows.Next() {
		var m model.Member
		var rfid sql.NullString
		if err := rows.Scan(&m.ID, &m.Name, &rfid); err != nil {
			return nil, fmt.Errorf("scan member: %w", err)
		}
		m.RFIDToken = rfid.String
		members = append(members, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate members: %w", err)
	}
	return members, nil
}
