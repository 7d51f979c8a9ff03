package postgres

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.opentelemetry.io/otel"

	"github.com/fairyhunter13/talent-match-engine/internal/domain"
)

// PgxPool is the minimal pool surface the repo needs; satisfied by
// *pgxpool.Pool and by test doubles.
type PgxPool interface {
	Exec(ctx domain.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx domain.Context, sql string, args ...any) pgx.Row
}

// ScoreRepo persists and loads cache entries from PostgreSQL.
type ScoreRepo struct{ Pool PgxPool }

// NewScoreRepo constructs a ScoreRepo with the given pool.
func NewScoreRepo(p PgxPool) *ScoreRepo { return &ScoreRepo{Pool: p} }

// Schema for the score_entries table. The expires_at index serves the TTL
// sweeper.
const schema = `
CREATE TABLE IF NOT EXISTS score_entries (
    key            TEXT PRIMARY KEY,
    id             UUID NOT NULL,
    kind           TEXT NOT NULL,
    subject_id     TEXT NOT NULL,
    target_id      TEXT NOT NULL,
    payload        JSONB NOT NULL,
    schema_version INT NOT NULL,
    computed_at    TIMESTAMPTZ NOT NULL,
    expires_at     TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS score_entries_expires_at_idx ON score_entries (expires_at);
`

// EnsureSchema creates the score table when it does not exist.
func (r *ScoreRepo) EnsureSchema(ctx domain.Context) error {
	if _, err := r.Pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("op=scores.ensure_schema: %w", err)
	}
	return nil
}

// Get loads one cache entry by key.
func (r *ScoreRepo) Get(ctx domain.Context, key string) (domain.CacheEntry, error) {
	tracer := otel.Tracer("repo.scores")
	ctx, span := tracer.Start(ctx, "scores.Get")
	defer span.End()
	q := `SELECT key, kind, subject_id, target_id, payload, schema_version, computed_at, expires_at FROM score_entries WHERE key=$1`
	row := r.Pool.QueryRow(ctx, q, key)
	var e domain.CacheEntry
	var payload []byte
	if err := row.Scan(&e.Key, &e.Kind, &e.SubjectID, &e.TargetID, &payload, &e.SchemaVersion, &e.ComputedAt, &e.ExpiresAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.CacheEntry{}, fmt.Errorf("op=scores.get: %w", domain.ErrNotFound)
		}
		return domain.CacheEntry{}, fmt.Errorf("op=scores.get: %w", err)
	}
	if err := json.Unmarshal(payload, &e.Payload); err != nil {
		return domain.CacheEntry{}, fmt.Errorf("op=scores.get: decode payload: %w", err)
	}
	return e, nil
}

// Put upserts a cache entry, superseding (not merging with) any prior row.
func (r *ScoreRepo) Put(ctx domain.Context, e domain.CacheEntry) error {
	tracer := otel.Tracer("repo.scores")
	ctx, span := tracer.Start(ctx, "scores.Put")
	defer span.End()
	payload, err := json.Marshal(e.Payload)
	if err != nil {
		return fmt.Errorf("op=scores.put: encode payload: %w", err)
	}
	q := `INSERT INTO score_entries (key, kind, subject_id, target_id, payload, schema_version, computed_at, expires_at, id)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
ON CONFLICT (key) DO UPDATE SET
    kind=EXCLUDED.kind, subject_id=EXCLUDED.subject_id, target_id=EXCLUDED.target_id,
    payload=EXCLUDED.payload, schema_version=EXCLUDED.schema_version,
    computed_at=EXCLUDED.computed_at, expires_at=EXCLUDED.expires_at`
	if _, err := r.Pool.Exec(ctx, q, e.Key, e.Kind, e.SubjectID, e.TargetID, payload, e.SchemaVersion, e.ComputedAt.UTC(), e.ExpiresAt.UTC(), uuid.New().String()); err != nil {
		return fmt.Errorf("op=scores.put: %w", err)
	}
	return nil
}

// Delete removes one cache entry; deleting a missing key is not an error.
func (r *ScoreRepo) Delete(ctx domain.Context, key string) error {
	tracer := otel.Tracer("repo.scores")
	ctx, span := tracer.Start(ctx, "scores.Delete")
	defer span.End()
	if _, err := r.Pool.Exec(ctx, `DELETE FROM score_entries WHERE key=$1`, key); err != nil {
		return fmt.Errorf("op=scores.delete: %w", err)
	}
	return nil
}

// DeleteExpiredBefore purges entries whose expiry is before cutoff.
func (r *ScoreRepo) DeleteExpiredBefore(ctx domain.Context, cutoff time.Time) (int64, error) {
	tracer := otel.Tracer("repo.scores")
	ctx, span := tracer.Start(ctx, "scores.DeleteExpiredBefore")
	defer span.End()
	tag, err := r.Pool.Exec(ctx, `DELETE FROM score_entries WHERE expires_at < $1`, cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("op=scores.delete_expired: %w", err)
	}
	return tag.RowsAffected(), nil
}
