// Package sqldb stores snapshots in a SQL database. SQLite, MySQL and
// PostgreSQL are supported.
package sqldb

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/ohowland/holarchy/internal/pkg/snapshot"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

// Store is a snapshot.Store backed by a single snapshots table.
type Store struct {
	db     *sqlx.DB
	config Config
}

// Config selects the driver and its connection settings. Sqlite uses
// Database as the file path.
type Config struct {
	Driver   string `json:"Driver"`
	Server   string `json:"Server"`
	Port     int    `json:"Port"`
	Username string `json:"Username"`
	Password string `json:"Password"`
	Database string `json:"Database"`
}

// ErrUnknownDriver is returned for a Driver other than sqlite, mysql or postgres.
var ErrUnknownDriver = errors.New("unknown sql driver")

// NewConfig reads a JSON config file.
func NewConfig(configPath string) (Config, error) {
	jsonConfig, err := os.ReadFile(configPath)
	if err != nil {
		return Config{}, err
	}
	cfg := Config{}
	if err := json.Unmarshal(jsonConfig, &cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) dsn() (string, error) {
	switch c.Driver {
	case "sqlite":
		return c.Database + "?_pragma=busy_timeout(5000)", nil
	case "mysql":
		return fmt.Sprintf("%v:%v@tcp(%v:%v)/%v", c.Username, c.Password, c.Server, c.Port, c.Database), nil
	case "postgres":
		return fmt.Sprintf("host=%v port=%v user=%v password=%v dbname=%v sslmode=disable",
			c.Server, c.Port, c.Username, c.Password, c.Database), nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownDriver, c.Driver)
}

// New reads a JSON config file and opens the store it describes.
func New(configPath string) (*Store, error) {
	cfg, err := NewConfig(configPath)
	if err != nil {
		return nil, err
	}
	return Open(cfg)
}

// Open connects to the database and creates the snapshots table if needed.
func Open(cfg Config) (*Store, error) {
	dsn, err := cfg.dsn()
	if err != nil {
		return nil, err
	}
	db, err := sqlx.Open(cfg.Driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	s := &Store{db: db, config: cfg}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	log.Printf("[SQL] snapshot store ready (%s)", cfg.Driver)
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	stateType := "TEXT"
	if s.config.Driver == "mysql" {
		stateType = "LONGTEXT"
	}
	schema := fmt.Sprintf(`
	CREATE TABLE IF NOT EXISTS snapshots (
		id VARCHAR(64) PRIMARY KEY,
		name VARCHAR(255) NOT NULL,
		created_at BIGINT NOT NULL,
		tick BIGINT NOT NULL,
		state %s NOT NULL
	)`, stateType)
	_, err := s.db.Exec(schema)
	return err
}

type row struct {
	ID        string `db:"id"`
	Name      string `db:"name"`
	CreatedAt int64  `db:"created_at"`
	Tick      int64  `db:"tick"`
	State     string `db:"state"`
}

func toRow(snap snapshot.Snapshot) (row, error) {
	state, err := json.Marshal(snap.State)
	if err != nil {
		return row{}, err
	}
	return row{
		ID:        snap.ID,
		Name:      snap.Name,
		CreatedAt: snap.Timestamp.UnixNano(),
		Tick:      int64(snap.State.Tick),
		State:     string(state),
	}, nil
}

func (r row) info() snapshot.Info {
	return snapshot.Info{
		ID:        r.ID,
		Name:      r.Name,
		Timestamp: time.Unix(0, r.CreatedAt),
		Tick:      uint64(r.Tick),
	}
}

func (r row) snapshot() (snapshot.Snapshot, error) {
	doc := snapshot.Document{}
	if err := json.Unmarshal([]byte(r.State), &doc); err != nil {
		return snapshot.Snapshot{}, fmt.Errorf("decode %s: %w", r.ID, err)
	}
	info := r.info()
	return snapshot.Snapshot{ID: info.ID, Name: info.Name, Timestamp: info.Timestamp, State: doc}, nil
}

// Save stores snap, replacing any snapshot with the same id.
func (s *Store) Save(ctx context.Context, snap snapshot.Snapshot) error {
	r, err := toRow(snap)
	if err != nil {
		return err
	}
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, tx.Rebind(`DELETE FROM snapshots WHERE id = ?`), r.ID); err != nil {
		return fmt.Errorf("save %s: %w", r.ID, err)
	}
	_, err = tx.NamedExecContext(ctx,
		`INSERT INTO snapshots (id, name, created_at, tick, state)
		VALUES (:id, :name, :created_at, :tick, :state)`, r)
	if err != nil {
		return fmt.Errorf("save %s: %w", r.ID, err)
	}
	return tx.Commit()
}

// Load returns the snapshot with the given id.
func (s *Store) Load(ctx context.Context, id string) (snapshot.Snapshot, error) {
	r := row{}
	err := s.db.GetContext(ctx, &r,
		s.db.Rebind(`SELECT id, name, created_at, tick, state FROM snapshots WHERE id = ?`), id)
	if errors.Is(err, sql.ErrNoRows) {
		return snapshot.Snapshot{}, fmt.Errorf("%w: %s", snapshot.ErrNotFound, id)
	}
	if err != nil {
		return snapshot.Snapshot{}, err
	}
	return r.snapshot()
}

// List returns every stored snapshot, newest first.
func (s *Store) List(ctx context.Context) ([]snapshot.Info, error) {
	rows := []row{}
	err := s.db.SelectContext(ctx, &rows,
		`SELECT id, name, created_at, tick FROM snapshots ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	out := make([]snapshot.Info, len(rows))
	for i, r := range rows {
		out[i] = r.info()
	}
	return out, nil
}

// Delete removes the snapshot with the given id.
func (s *Store) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, s.db.Rebind(`DELETE FROM snapshots WHERE id = ?`), id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", snapshot.ErrNotFound, id)
	}
	return nil
}
