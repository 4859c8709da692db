package store

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	pgxmigrate "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// OpenDB opens a PostgreSQL connection pool for the metadata store.
func OpenDB(databaseURL string) (*sql.DB, error) {
	if databaseURL == "" {
		return nil, errors.New("DATABASE_URL is empty")
	}

	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	// Validate connectivity immediately.
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return db, nil
}

// PGStore is the PostgreSQL-backed metadata store. The database provides
// the mutation serialization and crash consistency that FileStore gets
// from its mutex and atomic replace.
type PGStore struct {
	db *sql.DB
}

// NewPGStore runs pending migrations and returns a store over db.
func NewPGStore(db *sql.DB) (*PGStore, error) {
	if err := runMigrations(db); err != nil {
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &PGStore{db: db}, nil
}

func runMigrations(db *sql.DB) error {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return err
	}
	drv, err := pgxmigrate.WithInstance(db, &pgxmigrate.Config{})
	if err != nil {
		return err
	}
	m, err := migrate.NewWithInstance("iofs", src, "pgx", drv)
	if err != nil {
		return err
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return err
	}
	return nil
}

func (s *PGStore) Create(rec FileRecord) error {
	_, err := s.db.Exec(
		`INSERT INTO files (id, name, size_bytes, stored_name, password_hash, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		rec.ID, rec.Name, rec.Size, rec.StoredName, rec.PasswordHash, rec.CreatedAt.UTC(),
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return fmt.Errorf("create %s: %w", rec.ID, ErrExists)
		}
		return fmt.Errorf("create %s: %w", rec.ID, err)
	}
	return nil
}

func (s *PGStore) Get(id string) (FileRecord, error) {
	var rec FileRecord
	err := s.db.QueryRow(
		`SELECT id, name, size_bytes, stored_name, password_hash, created_at
		 FROM files WHERE id = $1`,
		id,
	).Scan(&rec.ID, &rec.Name, &rec.Size, &rec.StoredName, &rec.PasswordHash, &rec.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return FileRecord{}, fmt.Errorf("get %s: %w", id, ErrNotFound)
		}
		return FileRecord{}, fmt.Errorf("get %s: %w", id, err)
	}
	return rec, nil
}

func (s *PGStore) Remove(id string) error {
	res, err := s.db.Exec(`DELETE FROM files WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("remove %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("remove %s: %w", id, err)
	}
	if n == 0 {
		return fmt.Errorf("remove %s: %w", id, ErrNotFound)
	}
	return nil
}

func (s *PGStore) List() ([]FileRecord, error) {
	rows, err := s.db.Query(
		`SELECT id, name, size_bytes, stored_name, password_hash, created_at
		 FROM files ORDER BY created_at ASC`,
	)
	if err != nil {
		return nil, fmt.Errorf("list: %w", err)
	}
	defer rows.Close()

	var out []FileRecord
	for rows.Next() {
		var rec FileRecord
		if err := rows.Scan(&rec.ID, &rec.Name, &rec.Size, &rec.StoredName, &rec.PasswordHash, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("list: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}
