package persist

import (
	"context"
	"errors"
	"regexp"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"roam/cmd/internal/chat"
)

// Postgres is a SnapshotStore backed by PostgreSQL, for deployments that
// want the remote-database side of the persistence contract.
//
// Ownership model:
//   - Postgres does NOT own the pgx pool. The caller must close the pool.
//   - Close() is therefore a no-op.
type Postgres struct {
	pool   *pgxpool.Pool
	schema string
}

// PostgresOption configures Postgres behavior.
type PostgresOption func(*Postgres) error

// WithSchema sets the DB schema used by this store (default: "roam").
// The schema name is validated and safely quoted in queries.
func WithSchema(schema string) PostgresOption {
	return func(s *Postgres) error {
		schema = strings.TrimSpace(schema)
		if schema == "" {
			return errors.New("persist: empty schema")
		}
		if !isValidPGIdent(schema) {
			return errors.New("persist: invalid schema identifier")
		}
		s.schema = schema
		return nil
	}
}

// NewPostgres constructs a Postgres-backed SnapshotStore.
func NewPostgres(pool *pgxpool.Pool, opts ...PostgresOption) (*Postgres, error) {
	st := &Postgres{
		pool:   pool,
		schema: "roam",
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(st); err != nil {
			return nil, err
		}
	}
	if st.pool == nil {
		return nil, errors.New("persist: nil pool")
	}
	return st, nil
}

// Close is a no-op because the pool is owned by the caller.
func (s *Postgres) Close() error { return nil }

// EnsureSchema creates the schema and snapshots table when missing.
func (s *Postgres) EnsureSchema(ctx context.Context) error {
	if s == nil || s.pool == nil {
		return errors.New("persist: nil store")
	}

	if _, err := s.pool.Exec(ctx, `CREATE SCHEMA IF NOT EXISTS `+pgx.Identifier{s.schema}.Sanitize()); err != nil {
		return err
	}

	snapshots := pgIdent(s.schema, "snapshots")
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS `+snapshots+` (
			key        text PRIMARY KEY,
			data       jsonb NOT NULL,
			updated_at timestamptz NOT NULL DEFAULT now()
		)`)
	return err
}

// Load implements chat.SnapshotStore.
func (s *Postgres) Load(ctx context.Context) (chat.State, bool, error) {
	if s == nil || s.pool == nil {
		return chat.State{}, false, errors.New("persist: nil store")
	}
	if err := ctx.Err(); err != nil {
		return chat.State{}, false, err
	}

	snapshots := pgIdent(s.schema, "snapshots")

	rawConvs, okConvs, err := s.getRow(ctx, snapshots, keyConversations)
	if err != nil {
		return chat.State{}, false, err
	}
	rawMsgs, okMsgs, err := s.getRow(ctx, snapshots, keyMessages)
	if err != nil {
		return chat.State{}, false, err
	}
	if !okConvs || !okMsgs {
		return chat.State{}, false, nil
	}
	return decodeState(rawConvs, rawMsgs)
}

// Save implements chat.SnapshotStore. Both keys are upserted in one
// transaction so a loader never sees a half-written snapshot.
func (s *Postgres) Save(ctx context.Context, st chat.State) error {
	if s == nil || s.pool == nil {
		return errors.New("persist: nil store")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	convs, msgs, err := encodeState(st)
	if err != nil {
		return err
	}

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{
		IsoLevel:   pgx.ReadCommitted,
		AccessMode: pgx.ReadWrite,
	})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	snapshots := pgIdent(s.schema, "snapshots")
	upsert := `INSERT INTO ` + snapshots + ` (key, data, updated_at) VALUES ($1, $2, now())
	           ON CONFLICT (key) DO UPDATE SET data = EXCLUDED.data, updated_at = now()`

	if _, err := tx.Exec(ctx, upsert, keyConversations, convs); err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, upsert, keyMessages, msgs); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (s *Postgres) getRow(ctx context.Context, snapshotsTable, key string) ([]byte, bool, error) {
	var data []byte
	err := s.pool.QueryRow(ctx,
		`SELECT data FROM `+snapshotsTable+` WHERE key = $1`, key,
	).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return data, true, nil
}

var pgIdentRE = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

func isValidPGIdent(s string) bool {
	return pgIdentRE.MatchString(s)
}

func pgIdent(schema, table string) string {
	// pgx.Identifier safely quotes identifiers, preventing SQL injection.
	return pgx.Identifier{schema, table}.Sanitize()
}
