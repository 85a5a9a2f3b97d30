package persist

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	_ "modernc.org/sqlite"
)

type snapshotRow struct {
	bun.BaseModel `bun:"table:query_cache_snapshots"`

	Name      string    `bun:"name,pk"`
	Payload   []byte    `bun:"payload,notnull"`
	UpdatedAt time.Time `bun:"updated_at,notnull"`
}

// SQLiteStore keeps blobs in a single sqlite table, one row per key.
type SQLiteStore struct {
	db  *bun.DB
	now func() time.Time
}

// OpenSQLite opens (or creates) the database at path and ensures the
// snapshot table exists.
func OpenSQLite(ctx context.Context, path string) (*SQLiteStore, error) {
	sqldb, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, wrap(err, "open sqlite")
	}
	sqldb.SetMaxOpenConns(1)

	s, err := NewSQLiteStore(ctx, bun.NewDB(sqldb, sqlitedialect.New()))
	if err != nil {
		_ = sqldb.Close()
		return nil, err
	}
	return s, nil
}

// NewSQLiteStore uses an existing bun database.
func NewSQLiteStore(ctx context.Context, db *bun.DB) (*SQLiteStore, error) {
	_, err := db.NewCreateTable().
		Model((*snapshotRow)(nil)).
		IfNotExists().
		Exec(ctx)
	if err != nil {
		return nil, wrap(err, "create snapshot table")
	}
	return &SQLiteStore{db: db, now: time.Now}, nil
}

func (s *SQLiteStore) Load(ctx context.Context, key string) ([]byte, error) {
	var row snapshotRow
	err := s.db.NewSelect().
		Model(&row).
		Where("name = ?", key).
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, wrap(err, "load snapshot")
	}
	return row.Payload, nil
}

func (s *SQLiteStore) Save(ctx context.Context, key string, blob []byte) error {
	row := &snapshotRow{Name: key, Payload: blob, UpdatedAt: s.now().UTC()}
	_, err := s.db.NewInsert().
		Model(row).
		On("CONFLICT (name) DO UPDATE").
		Set("payload = EXCLUDED.payload").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	return wrap(err, "save snapshot")
}

func (s *SQLiteStore) Remove(ctx context.Context, key string) error {
	_, err := s.db.NewDelete().
		Model((*snapshotRow)(nil)).
		Where("name = ?", key).
		Exec(ctx)
	return wrap(err, "remove snapshot")
}

// UpdatedAt reports when key was last saved.
func (s *SQLiteStore) UpdatedAt(ctx context.Context, key string) (time.Time, error) {
	var row snapshotRow
	err := s.db.NewSelect().
		Model(&row).
		Column("updated_at").
		Where("name = ?", key).
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, ErrNotFound
	}
	return row.UpdatedAt, wrap(err, "load snapshot time")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
