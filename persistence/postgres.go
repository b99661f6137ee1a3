package persistence

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresKV is an optional durable KV backend: a single table keyed on
// the same string keys the engine uses everywhere else, with the value
// stored as bytea. It satisfies KV so the state machine can swap it in
// for MemKV without any other code noticing.
type PostgresKV struct {
	pool *pgxpool.Pool
}

// NewPostgresKV connects to Postgres and ensures the backing table
// exists. The table is created with an unlogged option disabled
// deliberately: WAL-backed durability on the kv table is the whole point
// of choosing this backend over MemKV.
func NewPostgresKV(ctx context.Context, connString string) (*PostgresKV, error) {
	pool, err := pgxpool.New(ctx, connString)
	if err != nil {
		return nil, err
	}
	const ddl = `CREATE TABLE IF NOT EXISTS engine_kv (
		key   TEXT PRIMARY KEY,
		value BYTEA NOT NULL
	)`
	if _, err := pool.Exec(ctx, ddl); err != nil {
		pool.Close()
		return nil, err
	}
	return &PostgresKV{pool: pool}, nil
}

func (p *PostgresKV) Close() {
	p.pool.Close()
}

func (p *PostgresKV) Put(key string, value []byte) error {
	ctx := context.Background()
	_, err := p.pool.Exec(ctx,
		`INSERT INTO engine_kv (key, value) VALUES ($1, $2)
		 ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value`,
		key, value)
	return err
}

func (p *PostgresKV) Get(key string) ([]byte, bool, error) {
	ctx := context.Background()
	var value []byte
	err := p.pool.QueryRow(ctx, `SELECT value FROM engine_kv WHERE key = $1`, key).Scan(&value)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return value, true, nil
}

func (p *PostgresKV) Iter(prefix string) ([]KVPair, error) {
	ctx := context.Background()
	rows, err := p.pool.Query(ctx,
		`SELECT key, value FROM engine_kv WHERE key LIKE $1 ORDER BY key`,
		prefix+"%")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []KVPair
	for rows.Next() {
		var pair KVPair
		if err := rows.Scan(&pair.Key, &pair.Value); err != nil {
			return nil, err
		}
		out = append(out, pair)
	}
	return out, rows.Err()
}

func (p *PostgresKV) Delete(key string) error {
	ctx := context.Background()
	_, err := p.pool.Exec(ctx, `DELETE FROM engine_kv WHERE key = $1`, key)
	return err
}
