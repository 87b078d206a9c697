package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
)

const uniqueViolation = "23505"

func Open(ctx context.Context, databaseURL string) (*sql.DB, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	db.SetConnMaxIdleTime(5 * time.Minute)
	db.SetConnMaxLifetime(30 * time.Minute)
	db.SetMaxIdleConns(10)
	db.SetMaxOpenConns(20)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}
	return db, nil
}

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) DB() *sql.DB {
	return s.db
}

const contextColumns = `file_id, user_id, current_state, head, branch, digest, created_at, updated_at`

func scanContext(row interface{ Scan(...any) error }) (Context, error) {
	var rec Context
	err := row.Scan(&rec.FileID, &rec.UserID, &rec.CurrentState, &rec.Head, &rec.Branch, &rec.Digest, &rec.CreatedAt, &rec.UpdatedAt)
	return rec, err
}

func (s *PostgresStore) CreateContext(ctx context.Context, rec Context) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO contexts (`+contextColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, rec.FileID, rec.UserID, rec.CurrentState, rec.Head, rec.Branch, rec.Digest, rec.CreatedAt, rec.UpdatedAt)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return ErrContextExists
	}
	if err != nil {
		return fmt.Errorf("insert context: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetContext(ctx context.Context, fileID, userID string) (Context, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+contextColumns+` FROM contexts WHERE user_id=$1 AND file_id=$2`, userID, fileID)
	rec, err := scanContext(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Context{}, ErrContextNotFound
	}
	if err != nil {
		return Context{}, fmt.Errorf("read context: %w", err)
	}
	return rec, nil
}

func (s *PostgresStore) SaveContext(ctx context.Context, rec Context) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO contexts (`+contextColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (user_id, file_id) DO UPDATE SET
			current_state=EXCLUDED.current_state,
			head=EXCLUDED.head,
			branch=EXCLUDED.branch,
			digest=EXCLUDED.digest,
			updated_at=EXCLUDED.updated_at
	`, rec.FileID, rec.UserID, rec.CurrentState, rec.Head, rec.Branch, rec.Digest, rec.CreatedAt, rec.UpdatedAt)
	if err != nil {
		return fmt.Errorf("save context: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListContexts(ctx context.Context, userID string) ([]Context, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+contextColumns+` FROM contexts
		WHERE $1 = '' OR user_id = $1
		ORDER BY user_id, file_id
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("list contexts: %w", err)
	}
	defer rows.Close()

	var out []Context
	for rows.Next() {
		rec, err := scanContext(rows)
		if err != nil {
			return nil, fmt.Errorf("scan context: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list contexts: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}
