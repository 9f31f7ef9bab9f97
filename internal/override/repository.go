package override

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Param is one stored parameter.
type Param struct {
	Key       string    `json:"key"`
	Value     string    `json:"value"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Repository is parameter persistence.
type Repository interface {
	// Get returns ErrParamNotFound if the key has no value.
	Get(ctx context.Context, key string) (*Param, error)
	List(ctx context.Context) ([]Param, error)
	// Set inserts or replaces a value.
	Set(ctx context.Context, p *Param) error
	// Delete returns ErrParamNotFound if the key has no value.
	Delete(ctx context.Context, key string) error
}

// SQLiteRepository implements Repository on the params table.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a repository on an open, migrated database.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// Get retrieves one parameter.
func (r *SQLiteRepository) Get(ctx context.Context, key string) (*Param, error) {
	row := r.db.QueryRowContext(ctx, `SELECT key, value, updated_at FROM params WHERE key = ?`, key)
	p, err := scanParam(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrParamNotFound
		}
		return nil, fmt.Errorf("querying param: %w", err)
	}
	return p, nil
}

// List retrieves every parameter ordered by key.
func (r *SQLiteRepository) List(ctx context.Context) ([]Param, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT key, value, updated_at FROM params ORDER BY key`)
	if err != nil {
		return nil, fmt.Errorf("querying params: %w", err)
	}
	defer rows.Close()

	var params []Param
	for rows.Next() {
		p, err := scanParam(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning param: %w", err)
		}
		params = append(params, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating params: %w", err)
	}
	return params, nil
}

// Set upserts a parameter.
func (r *SQLiteRepository) Set(ctx context.Context, p *Param) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO params (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT (key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		p.Key, p.Value, p.UpdatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("storing param: %w", err)
	}
	return nil
}

// Delete removes a parameter.
func (r *SQLiteRepository) Delete(ctx context.Context, key string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM params WHERE key = ?`, key)
	if err != nil {
		return fmt.Errorf("deleting param: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if n == 0 {
		return ErrParamNotFound
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanParam(s scanner) (*Param, error) {
	var p Param
	var updatedAt string
	if err := s.Scan(&p.Key, &p.Value, &updatedAt); err != nil {
		return nil, err
	}
	p.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updatedAt) //nolint:errcheck // Format is ours
	return &p, nil
}
