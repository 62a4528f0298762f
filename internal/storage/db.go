package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// Open 建立 PostgreSQL 连接池并校验连通性
func Open(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	db.SetMaxOpenConns(8)
	db.SetMaxIdleConns(4)
	db.SetConnMaxLifetime(30 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return db, nil
}

const schemaDDL = `
CREATE TABLE IF NOT EXISTS raw_event (
	signature    TEXT      NOT NULL,
	ix_index     SMALLINT  NOT NULL,
	event_index  SMALLINT  NOT NULL,
	kind         SMALLINT  NOT NULL,
	slot         BIGINT    NOT NULL,
	block_time   BIGINT    NOT NULL,
	from_logs    BOOLEAN   NOT NULL DEFAULT FALSE,
	fields       JSONB     NOT NULL,
	raw          BYTEA,
	created_at   TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
	PRIMARY KEY (signature, ix_index, event_index)
);
CREATE INDEX IF NOT EXISTS raw_event_slot_idx ON raw_event (slot);

CREATE TABLE IF NOT EXISTS checkpoint (
	id                  SMALLINT PRIMARY KEY,
	last_processed_slot BIGINT   NOT NULL,
	updated_at          TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
);
`

// EnsureSchema 建表（幂等），服务启动时调用一次
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, schemaDDL); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

// TxRunner 把一段工作包进一个数据库事务执行，fn 返回 error 时整体回滚。
// 抽象出来是为了让分发器可以在测试中用假实现替换真实事务。
type TxRunner interface {
	RunTx(ctx context.Context, fn func(tx *sql.Tx) error) error
}

type sqlTxRunner struct {
	db *sql.DB
}

func NewTxRunner(db *sql.DB) TxRunner {
	return &sqlTxRunner{db: db}
}

func (r *sqlTxRunner) RunTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}
