package persist

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// EntityRow is one hot record in a checkpoint.
type EntityRow struct {
	Entity      uint16
	Owner       uint16
	Controller  uint16
	Terrain     uint8
	Flags       uint8
	Development uint16
}

// AttributeRow is one (entity, value) pair of a named sparse collection.
type AttributeRow struct {
	Collection string
	Entity     uint16
	Value      uint16
}

// HistoryRow is the summary of one entity's history. Detail records are not
// checkpointed.
type HistoryRow struct {
	Entity       uint16
	Tier         uint8
	Total        uint64
	FirstYear    int32
	LastYear     int32
	AvgMagnitude int64 // raw Q32.32
}

// Checkpoint is a full snapshot of one completed cycle.
type Checkpoint struct {
	Cycle      uint64
	Year       int32
	Checksum   []byte
	Entities   []EntityRow
	Attributes []AttributeRow
	History    []HistoryRow
}

// ErrNoCheckpoint is returned by LatestChecksum when nothing was saved yet.
var ErrNoCheckpoint = errors.New("no checkpoint stored")

// CheckpointSink receives completed checkpoints. The core does not prescribe
// a persistence format; this is the seam an external store plugs into.
type CheckpointSink interface {
	SaveCheckpoint(ctx context.Context, cp *Checkpoint) (int64, error)
	// Prune drops all but the newest keep checkpoints and reports how many
	// went.
	Prune(ctx context.Context, keep int) (int64, error)
	// LatestChecksum returns the checksum and cycle of the newest
	// checkpoint, or ErrNoCheckpoint.
	LatestChecksum(ctx context.Context) ([]byte, uint64, error)
}

type CheckpointRepo struct {
	db *DB
}

var _ CheckpointSink = (*CheckpointRepo)(nil)

func NewCheckpointRepo(db *DB) *CheckpointRepo {
	return &CheckpointRepo{db: db}
}

// SaveCheckpoint writes cp in one transaction and returns its row id. Bulk
// tables go through COPY.
func (r *CheckpointRepo) SaveCheckpoint(ctx context.Context, cp *Checkpoint) (int64, error) {
	tx, err := r.db.Pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("checkpoint begin: %w", err)
	}
	defer tx.Rollback(ctx)

	var id int64
	if err := tx.QueryRow(ctx,
		`INSERT INTO checkpoints (cycle, year, entities, checksum)
		 VALUES ($1, $2, $3, $4) RETURNING id`,
		int64(cp.Cycle), cp.Year, len(cp.Entities), cp.Checksum,
	).Scan(&id); err != nil {
		return 0, fmt.Errorf("checkpoint insert: %w", err)
	}

	if _, err := tx.CopyFrom(ctx,
		pgx.Identifier{"checkpoint_entities"},
		[]string{"checkpoint_id", "entity_id", "owner", "controller", "terrain", "flags", "development"},
		pgx.CopyFromRows(entityRows(id, cp.Entities)),
	); err != nil {
		return 0, fmt.Errorf("checkpoint entities: %w", err)
	}
	if _, err := tx.CopyFrom(ctx,
		pgx.Identifier{"checkpoint_attributes"},
		[]string{"checkpoint_id", "collection", "entity_id", "value"},
		pgx.CopyFromRows(attributeRows(id, cp.Attributes)),
	); err != nil {
		return 0, fmt.Errorf("checkpoint attributes: %w", err)
	}
	if _, err := tx.CopyFrom(ctx,
		pgx.Identifier{"checkpoint_history"},
		[]string{"checkpoint_id", "entity_id", "tier", "total", "first_year", "last_year", "avg_magnitude"},
		pgx.CopyFromRows(historyRows(id, cp.History)),
	); err != nil {
		return 0, fmt.Errorf("checkpoint history: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("checkpoint commit: %w", err)
	}
	return id, nil
}

// Prune deletes all but the newest keep checkpoints.
func (r *CheckpointRepo) Prune(ctx context.Context, keep int) (int64, error) {
	tag, err := r.db.Pool.Exec(ctx,
		`DELETE FROM checkpoints WHERE id NOT IN
		 (SELECT id FROM checkpoints ORDER BY id DESC LIMIT $1)`, keep)
	if err != nil {
		return 0, fmt.Errorf("checkpoint prune: %w", err)
	}
	return tag.RowsAffected(), nil
}

// LatestChecksum returns the checksum and cycle of the newest checkpoint.
func (r *CheckpointRepo) LatestChecksum(ctx context.Context) ([]byte, uint64, error) {
	var sum []byte
	var cycle int64
	err := r.db.Pool.QueryRow(ctx,
		`SELECT checksum, cycle FROM checkpoints ORDER BY id DESC LIMIT 1`,
	).Scan(&sum, &cycle)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, 0, ErrNoCheckpoint
	}
	if err != nil {
		return nil, 0, fmt.Errorf("latest checkpoint: %w", err)
	}
	return sum, uint64(cycle), nil
}

// Row builders convert to the column types in the schema.

func entityRows(id int64, rows []EntityRow) [][]any {
	out := make([][]any, len(rows))
	for i, r := range rows {
		out[i] = []any{id, int32(r.Entity), int32(r.Owner), int32(r.Controller),
			int16(r.Terrain), int16(r.Flags), int32(r.Development)}
	}
	return out
}

func attributeRows(id int64, rows []AttributeRow) [][]any {
	out := make([][]any, len(rows))
	for i, r := range rows {
		out[i] = []any{id, r.Collection, int32(r.Entity), int32(r.Value)}
	}
	return out
}

func historyRows(id int64, rows []HistoryRow) [][]any {
	out := make([][]any, len(rows))
	for i, r := range rows {
		out[i] = []any{id, int32(r.Entity), int16(r.Tier), int64(r.Total),
			r.FirstYear, r.LastYear, r.AvgMagnitude}
	}
	return out
}
