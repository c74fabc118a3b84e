// Package target maintains the long-lived session against the target
// database: plain transaction control issued as statements plus the
// replication-origin operations that make progress tracking atomic with the
// data it attests to.
package target

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"

	"github.com/ashita-ai/saisei/internal/wal"
)

// Session is a single connection to the target database. Transactions are
// opened and closed with plain BEGIN/COMMIT statements so the connection
// survives across transactions; the replayed DML runs between them.
type Session struct {
	conn   *pgx.Conn
	logger *slog.Logger
}

// Connect establishes the session. Statements are sent over the simple
// query protocol: the replayed DML is passed through verbatim, never
// prepared.
func Connect(ctx context.Context, uri string, logger *slog.Logger) (*Session, error) {
	cfg, err := pgx.ParseConfig(uri)
	if err != nil {
		return nil, fmt.Errorf("target: parse connection string: %w", err)
	}
	cfg.DefaultQueryExecMode = pgx.QueryExecModeSimpleProtocol

	conn, err := pgx.ConnectConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("target: connect: %w", err)
	}

	return &Session{conn: conn, logger: logger}, nil
}

// Begin starts a transaction on the session.
func (s *Session) Begin(ctx context.Context) error {
	return s.Exec(ctx, "BEGIN")
}

// Commit ends the current transaction. Issued as a statement, not through a
// transaction handle, so the session stays usable for the next transaction.
func (s *Session) Commit(ctx context.Context) error {
	return s.Exec(ctx, "COMMIT")
}

// Exec runs one statement. A failure aborts the current transaction and is
// surfaced to the caller; nothing is retried.
func (s *Session) Exec(ctx context.Context, sql string) error {
	if _, err := s.conn.Exec(ctx, sql); err != nil {
		return fmt.Errorf("target: execute %q: %w", truncateSQL(sql), err)
	}
	return nil
}

// OriginOid looks up the oid of a replication origin on the target. Zero
// means the origin has not been registered there.
func (s *Session) OriginOid(ctx context.Context, name string) (uint32, error) {
	var oid uint32
	err := s.conn.QueryRow(ctx,
		`SELECT COALESCE(pg_replication_origin_oid($1), 0)`,
		name,
	).Scan(&oid)
	if err != nil {
		return 0, fmt.Errorf("target: replication origin oid for %q: %w", name, err)
	}
	return oid, nil
}

// OriginProgress reads the last position durably advanced for the origin.
// With flush true, only positions made durable by a flush are reported.
// Returns InvalidLSN when the origin has never advanced.
func (s *Session) OriginProgress(ctx context.Context, name string, flush bool) (wal.LSN, error) {
	var raw *string
	err := s.conn.QueryRow(ctx,
		`SELECT pg_replication_origin_progress($1, $2)::text`,
		name, flush,
	).Scan(&raw)
	if err != nil {
		return wal.InvalidLSN, fmt.Errorf("target: replication origin progress for %q: %w", name, err)
	}
	if raw == nil {
		return wal.InvalidLSN, nil
	}
	lsn, err := wal.ParseLSN(*raw)
	if err != nil {
		return wal.InvalidLSN, fmt.Errorf("target: replication origin progress for %q: %w", name, err)
	}
	return lsn, nil
}

// OriginSessionSetup attaches this session to the origin. Every commit from
// here on carries origin metadata.
func (s *Session) OriginSessionSetup(ctx context.Context, name string) error {
	if _, err := s.conn.Exec(ctx,
		`SELECT pg_replication_origin_session_setup($1)`,
		name,
	); err != nil {
		return fmt.Errorf("target: replication origin session setup for %q: %w", name, err)
	}
	return nil
}

// OriginXactSetup records, inside the open transaction, that this
// transaction replays the source position lsn committed at ts. The
// following COMMIT advances the origin atomically with the data.
func (s *Session) OriginXactSetup(ctx context.Context, lsn wal.LSN, ts string) error {
	if _, err := s.conn.Exec(ctx,
		`SELECT pg_replication_origin_xact_setup($1::pg_lsn, $2::timestamptz)`,
		lsn.String(), ts,
	); err != nil {
		return fmt.Errorf("target: replication origin xact setup at %s: %w", lsn, err)
	}
	return nil
}

// Close tears the session down.
func (s *Session) Close(ctx context.Context) error {
	if err := s.conn.Close(ctx); err != nil {
		return fmt.Errorf("target: close: %w", err)
	}
	return nil
}

// truncateSQL keeps error messages readable when a replayed statement is long.
func truncateSQL(sql string) string {
	const max = 120
	if len(sql) <= max {
		return sql
	}
	return sql[:max] + "..."
}
