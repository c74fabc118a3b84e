// Package sentinel reads and writes the shared control record on the source
// database. Every interaction opens its own short-lived connection: the
// sentinel is polled at a slow cadence and the applier must not hold a
// second long-lived connection on the source.
package sentinel

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"sort"

	"github.com/jackc/pgx/v5"

	"github.com/ashita-ai/saisei/internal/wal"
)

// Values is one snapshot of the sentinel row.
type Values struct {
	Startpos wal.LSN
	Endpos   wal.LSN
	Apply    bool

	// Positions reported by the streaming processes. The applier owns
	// ReplayLSN; WriteLSN and FlushLSN belong to the receive side and are
	// read back only for display.
	WriteLSN  wal.LSN
	FlushLSN  wal.LSN
	ReplayLSN wal.LSN
}

// Client performs sentinel operations against the source database.
type Client struct {
	uri    string
	logger *slog.Logger
}

// NewClient returns a sentinel client for the given source connection string.
func NewClient(uri string, logger *slog.Logger) *Client {
	return &Client{uri: uri, logger: logger}
}

func (c *Client) connect(ctx context.Context) (*pgx.Conn, error) {
	conn, err := pgx.Connect(ctx, c.uri)
	if err != nil {
		return nil, fmt.Errorf("sentinel: connect to source: %w", err)
	}
	return conn, nil
}

// Get reads the sentinel. Used while polling for the apply gate and by the
// CLI; failures are transient from the applier's point of view.
func (c *Client) Get(ctx context.Context) (Values, error) {
	conn, err := c.connect(ctx)
	if err != nil {
		return Values{}, err
	}
	defer func() { _ = conn.Close(ctx) }()

	var v Values
	var startpos, endpos, writeLSN, flushLSN, replayLSN string
	err = conn.QueryRow(ctx,
		`SELECT startpos::text, endpos::text, apply,
		        write_lsn::text, flush_lsn::text, replay_lsn::text
		   FROM saisei.sentinel`,
	).Scan(&startpos, &endpos, &v.Apply, &writeLSN, &flushLSN, &replayLSN)
	if err != nil {
		return Values{}, fmt.Errorf("sentinel: get: %w", err)
	}

	if v.Startpos, err = wal.ParseLSN(startpos); err != nil {
		return Values{}, fmt.Errorf("sentinel: get: %w", err)
	}
	if v.Endpos, err = wal.ParseLSN(endpos); err != nil {
		return Values{}, fmt.Errorf("sentinel: get: %w", err)
	}
	if v.WriteLSN, err = wal.ParseLSN(writeLSN); err != nil {
		return Values{}, fmt.Errorf("sentinel: get: %w", err)
	}
	if v.FlushLSN, err = wal.ParseLSN(flushLSN); err != nil {
		return Values{}, fmt.Errorf("sentinel: get: %w", err)
	}
	if v.ReplayLSN, err = wal.ParseLSN(replayLSN); err != nil {
		return Values{}, fmt.Errorf("sentinel: get: %w", err)
	}
	return v, nil
}

// Sync reports the applier's replay position and reads the control fields
// back in the same statement, so a concurrent control-plane update is
// either fully observed or observed on the next sync.
func (c *Client) Sync(ctx context.Context, replayLSN wal.LSN) (Values, error) {
	conn, err := c.connect(ctx)
	if err != nil {
		return Values{}, err
	}
	defer func() { _ = conn.Close(ctx) }()

	var v Values
	var startpos, endpos string
	err = conn.QueryRow(ctx,
		`UPDATE saisei.sentinel
		    SET replay_lsn = $1::pg_lsn
		  RETURNING startpos::text, endpos::text, apply`,
		replayLSN.String(),
	).Scan(&startpos, &endpos, &v.Apply)
	if err != nil {
		return Values{}, fmt.Errorf("sentinel: sync at %s: %w", replayLSN, err)
	}

	if v.Startpos, err = wal.ParseLSN(startpos); err != nil {
		return Values{}, fmt.Errorf("sentinel: sync: %w", err)
	}
	if v.Endpos, err = wal.ParseLSN(endpos); err != nil {
		return Values{}, fmt.Errorf("sentinel: sync: %w", err)
	}
	v.ReplayLSN = replayLSN
	return v, nil
}

// Create installs the sentinel schema from the embedded migration files,
// in filename order. Idempotent.
func (c *Client) Create(ctx context.Context, migrations fs.FS) error {
	files, err := fs.Glob(migrations, "*.sql")
	if err != nil {
		return fmt.Errorf("sentinel: list migrations: %w", err)
	}
	sort.Strings(files)

	conn, err := c.connect(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = conn.Close(ctx) }()

	for _, name := range files {
		sql, err := fs.ReadFile(migrations, name)
		if err != nil {
			return fmt.Errorf("sentinel: read migration %q: %w", name, err)
		}
		if _, err := conn.Exec(ctx, string(sql)); err != nil {
			return fmt.Errorf("sentinel: apply migration %q: %w", name, err)
		}
		c.logger.Debug("sentinel: migration applied", "file", name)
	}
	return nil
}

// SetEndpos updates the end position. When current is true the position is
// resolved from pg_current_wal_flush_lsn() on the source instead of lsn.
// Returns the value actually stored.
func (c *Client) SetEndpos(ctx context.Context, lsn wal.LSN, current bool) (wal.LSN, error) {
	conn, err := c.connect(ctx)
	if err != nil {
		return wal.InvalidLSN, err
	}
	defer func() { _ = conn.Close(ctx) }()

	var stored string
	if current {
		err = conn.QueryRow(ctx,
			`UPDATE saisei.sentinel
			    SET endpos = pg_current_wal_flush_lsn()
			  RETURNING endpos::text`,
		).Scan(&stored)
	} else {
		err = conn.QueryRow(ctx,
			`UPDATE saisei.sentinel
			    SET endpos = $1::pg_lsn
			  RETURNING endpos::text`,
			lsn.String(),
		).Scan(&stored)
	}
	if err != nil {
		return wal.InvalidLSN, fmt.Errorf("sentinel: set endpos: %w", err)
	}
	return wal.ParseLSN(stored)
}

// SetStartpos updates the start position.
func (c *Client) SetStartpos(ctx context.Context, lsn wal.LSN) error {
	conn, err := c.connect(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = conn.Close(ctx) }()

	if _, err := conn.Exec(ctx,
		`UPDATE saisei.sentinel SET startpos = $1::pg_lsn`,
		lsn.String(),
	); err != nil {
		return fmt.Errorf("sentinel: set startpos: %w", err)
	}
	return nil
}

// SetApply flips the apply gate.
func (c *Client) SetApply(ctx context.Context, enabled bool) error {
	conn, err := c.connect(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = conn.Close(ctx) }()

	if _, err := conn.Exec(ctx,
		`UPDATE saisei.sentinel SET apply = $1`,
		enabled,
	); err != nil {
		return fmt.Errorf("sentinel: set apply: %w", err)
	}
	return nil
}
