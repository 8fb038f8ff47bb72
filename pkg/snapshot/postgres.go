package snapshot

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/otherjamesbrown/voxreel/pkg/db"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

// Migrations returns the schema files for the PostgreSQL store.
func Migrations() fs.FS {
	sub, err := fs.Sub(migrationFiles, "migrations")
	if err != nil {
		panic(err)
	}
	return sub
}

// PostgresStore keeps snapshots in PostgreSQL.
type PostgresStore struct {
	pool *pgxpool.Pool
}

var _ Store = (*PostgresStore)(nil)

// NewPostgresStore applies pending migrations and returns a store on pool.
func NewPostgresStore(ctx context.Context, pool *pgxpool.Pool) (*PostgresStore, error) {
	if _, err := db.RunMigrations(ctx, pool, Migrations()); err != nil {
		return nil, fmt.Errorf("migrating snapshot schema: %w", err)
	}
	return &PostgresStore{pool: pool}, nil
}

// Save inserts snap and its sessions in one transaction.
func (s *PostgresStore) Save(ctx context.Context, snap *Snapshot) error {
	if err := snap.Validate(); err != nil {
		return err
	}

	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO snapshots (id, created_at, root, merge_threshold_ns, session_gap_ns)
			VALUES ($1, $2, $3, $4, $5)`,
			snap.ID, snap.CreatedAt, snap.Root, int64(snap.MergeThreshold), int64(snap.SessionGap))
		if err != nil {
			return fmt.Errorf("failed to insert snapshot: %w", err)
		}

		batch := &pgx.Batch{}
		for _, sess := range snap.Sessions {
			batch.Queue(`
				INSERT INTO snapshot_sessions (snapshot_id, idx, session_id, start_at, end_at, turn_ids, segment_ids)
				VALUES ($1, $2, $3, $4, $5, $6, $7)`,
				snap.ID, sess.Index, sess.ID, sess.Start, sess.End, sess.TurnIDs, sess.SegmentIDs)
		}
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("failed to insert snapshot sessions: %w", err)
		}
		return nil
	})
}

// Get loads the snapshot whose ID equals or uniquely starts with id.
func (s *PostgresStore) Get(ctx context.Context, id string) (*Snapshot, error) {
	prefix := strings.ToLower(strings.TrimSpace(id))
	rows, err := s.pool.Query(ctx,
		`SELECT id::text FROM snapshots WHERE id::text LIKE $1 || '%' ORDER BY id LIMIT 10`, prefix)
	if err != nil {
		return nil, fmt.Errorf("failed to look up snapshot: %w", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("failed to look up snapshot: %w", err)
	}
	full, err := matchID(ids, prefix)
	if err != nil {
		return nil, err
	}

	snap := &Snapshot{ID: full}
	var mergeNs, gapNs int64
	err = s.pool.QueryRow(ctx, `
		SELECT created_at, root, merge_threshold_ns, session_gap_ns
		FROM snapshots WHERE id = $1`, full).
		Scan(&snap.CreatedAt, &snap.Root, &mergeNs, &gapNs)
	if err != nil {
		return nil, fmt.Errorf("failed to load snapshot %s: %w", full, err)
	}
	snap.CreatedAt = snap.CreatedAt.UTC()
	snap.MergeThreshold = time.Duration(mergeNs)
	snap.SessionGap = time.Duration(gapNs)

	rows, err = s.pool.Query(ctx, `
		SELECT idx, session_id, start_at, end_at, turn_ids, segment_ids
		FROM snapshot_sessions WHERE snapshot_id = $1 ORDER BY idx`, full)
	if err != nil {
		return nil, fmt.Errorf("failed to load snapshot sessions: %w", err)
	}
	snap.Sessions, err = pgx.CollectRows(rows, func(row pgx.CollectableRow) (Session, error) {
		var sess Session
		err := row.Scan(&sess.Index, &sess.ID, &sess.Start, &sess.End, &sess.TurnIDs, &sess.SegmentIDs)
		sess.Start = sess.Start.UTC()
		sess.End = sess.End.UTC()
		return sess, err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load snapshot sessions: %w", err)
	}
	return snap, nil
}

// List returns summaries, newest first.
func (s *PostgresStore) List(ctx context.Context) ([]Summary, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT s.id::text, s.created_at, s.root,
		       COUNT(ss.idx)::int,
		       COALESCE(SUM(cardinality(ss.segment_ids)), 0)::int
		FROM snapshots s
		LEFT JOIN snapshot_sessions ss ON ss.snapshot_id = s.id
		GROUP BY s.id
		ORDER BY s.created_at DESC, s.id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list snapshots: %w", err)
	}
	list, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Summary, error) {
		var sum Summary
		err := row.Scan(&sum.ID, &sum.CreatedAt, &sum.Root, &sum.Sessions, &sum.Segments)
		sum.CreatedAt = sum.CreatedAt.UTC()
		return sum, err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list snapshots: %w", err)
	}
	return list, nil
}
