package repository

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/ilinovom/stream-announce-bot/internal/model"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"
)

// SQLStateRepository stores the state document as a single-row JSON snapshot
// in Postgres (pgx) or SQLite.
type SQLStateRepository struct {
	db      *sql.DB
	dialect string
}

// NewSQLStateRepository opens the database for driver "postgres" or "sqlite"
// and creates the snapshot table if needed.
func NewSQLStateRepository(driver, dsn string) (*SQLStateRepository, error) {
	var sqlDriver string
	switch driver {
	case "postgres":
		sqlDriver = "pgx"
	case "sqlite":
		sqlDriver = "sqlite"
	default:
		return nil, fmt.Errorf("unsupported state driver %q", driver)
	}
	db, err := sql.Open(sqlDriver, dsn)
	if err != nil {
		return nil, err
	}
	r := &SQLStateRepository{db: db, dialect: driver}
	if err := r.init(); err != nil {
		db.Close()
		return nil, err
	}
	return r, nil
}

func (r *SQLStateRepository) init() error {
	_, err := r.db.Exec(`
        CREATE TABLE IF NOT EXISTS announce_state (
            id INTEGER PRIMARY KEY,
            document TEXT NOT NULL,
            updated_at BIGINT NOT NULL
        )`)
	return err
}

// arg returns the n-th positional placeholder for the dialect.
func (r *SQLStateRepository) arg(n int) string {
	if r.dialect == "postgres" {
		return "$" + strconv.Itoa(n)
	}
	return "?"
}

func (r *SQLStateRepository) Load(ctx context.Context) (*model.State, error) {
	var doc string
	err := r.db.QueryRowContext(ctx, `SELECT document FROM announce_state WHERE id = 1`).Scan(&doc)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.NewState(), nil
		}
		return nil, err
	}
	return DecodeState(bytes.NewBufferString(doc))
}

func (r *SQLStateRepository) Save(ctx context.Context, state *model.State) error {
	var buf bytes.Buffer
	if err := EncodeState(&buf, state); err != nil {
		return fmt.Errorf("encode state: %w", err)
	}
	query := fmt.Sprintf(`
        INSERT INTO announce_state (id, document, updated_at)
        VALUES (1, %s, %s)
        ON CONFLICT (id) DO UPDATE SET
            document=excluded.document,
            updated_at=excluded.updated_at`, r.arg(1), r.arg(2))
	_, err := r.db.ExecContext(ctx, query, buf.String(), time.Now().UnixMilli())
	return err
}

func (r *SQLStateRepository) Close() error {
	return r.db.Close()
}
